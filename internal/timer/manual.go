package timer

import (
	"sync"
	"time"
)

// Manual is an AfterFunc whose timers only fire when told to.
type Manual struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

type ManualTimer struct {
	D       time.Duration
	f       func()
	mu      sync.Mutex
	stopped bool
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &ManualTimer{D: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Timers returns every timer created so far, in creation order.
func (m *Manual) Timers() []*ManualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*ManualTimer(nil), m.timers...)
}

// Last returns the most recently created timer, or nil.
func (m *Manual) Last() *ManualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	was := !t.stopped
	t.stopped = true
	return was
}

// Fire runs the callback even if the timer was stopped, the way a real timer can race
// with Stop after it already elapsed.
func (t *ManualTimer) Fire() {
	t.f()
}

func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopped
}
