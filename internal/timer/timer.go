// Package timer keeps one cancellable delayed task per session.
package timer

import (
	"sync"
	"time"
)

// Stopper is satisfied by *time.Timer.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Stopper

// FireFunc is called when the task scheduled for a question index elapses.
type FireFunc func(code string, index int)

type Scheduler struct {
	mu        sync.Mutex
	seq       uint64
	tasks     map[string]*task
	afterFunc AfterFunc
}

type task struct {
	id    uint64
	index int
	stop  Stopper
}

type Option func(*Scheduler)

// WithAfterFunc replaces time.AfterFunc, tests use it to fire timers by hand.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) {
		s.afterFunc = f
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks: make(map[string]*task),
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Schedule replaces any pending task of the session with a new one for the question index.
// A task superseded or cancelled before it fires never calls fire.
func (s *Scheduler) Schedule(code string, index int, d time.Duration, fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[code]; ok {
		t.stop.Stop()
	}

	s.seq++
	t := &task{id: s.seq, index: index}
	t.stop = s.afterFunc(d, func() {
		if !s.claim(code, t.id) {
			return
		}
		fire(code, index)
	})
	s.tasks[code] = t
}

// Cancel stops the pending task of a session, reporting whether there was one.
func (s *Scheduler) Cancel(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[code]
	if !ok {
		return false
	}

	t.stop.Stop()
	delete(s.tasks, code)
	return true
}

// Pending returns the question index the session's task was scheduled for.
func (s *Scheduler) Pending(code string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[code]
	if !ok {
		return 0, false
	}
	return t.index, true
}

// claim removes the task if it is still the current one for code.
func (s *Scheduler) claim(code string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[code]
	if !ok || t.id != id {
		return false
	}

	delete(s.tasks, code)
	return true
}
