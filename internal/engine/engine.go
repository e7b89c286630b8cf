// Package engine is the session state machine: it validates client messages against the
// session and the sender's role, applies transitions, and pushes the new state to every
// participant.
//
// All work on one session runs inside the store's lock for that session, including timer
// expiry and the broadcast, so messages for the same session behave as if serialized and
// every participant observes states in the same order.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/victornm/livequiz/internal/broadcast"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/registry"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/timer"
)

// DefaultPresenterName is the reserved nickname that takes presenter status on join.
const DefaultPresenterName = "Presenter"

// Message types accepted from clients.
const (
	TypeJoin         = "join"
	TypeVote         = "vote"
	TypeStartQuiz    = "start_quiz"
	TypeShowResults  = "show_results"
	TypeNextQuestion = "next_question"
)

// Message is one inbound client message.
type Message struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Option   string `json:"option,omitempty"`
}

type Config struct {
	Store    store.Store
	Registry *registry.Registry
	Timers   *timer.Scheduler
	EventBus *event.Bus

	// PresenterName is the reserved nickname that always takes presenter status.
	PresenterName string

	// Now defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	store     store.Store
	registry  *registry.Registry
	timers    *timer.Scheduler
	eb        *event.Bus
	presenter string
	now       func() time.Time
}

func New(c Config) *Engine {
	e := &Engine{
		store:     c.Store,
		registry:  c.Registry,
		timers:    c.Timers,
		eb:        c.EventBus,
		presenter: c.PresenterName,
		now:       c.Now,
	}

	if e.presenter == "" {
		e.presenter = DefaultPresenterName
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.timers == nil {
		e.timers = timer.New()
	}

	return e
}

type outcome int

const (
	ignored outcome = iota
	applied
	rejected
)

func (o outcome) String() string {
	switch o {
	case applied:
		return "applied"
	case rejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// Connect registers a participant's channel and sends the current state to the session.
func (e *Engine) Connect(ctx context.Context, c registry.Conn, code, id string) error {
	ok, err := e.store.Exists(ctx, code)
	if err != nil {
		return fmt.Errorf("engine: connect: %w", err)
	}
	if !ok {
		return errors.NotFound("session not found: %s", code)
	}

	e.registry.Connect(c, code, id)

	err = e.withSession(ctx, code, func(s *tx) (outcome, error) {
		e.broadcast(ctx, s.Session)
		return ignored, nil
	})
	if err != nil {
		e.registry.Disconnect(code, id)
		return err
	}

	slog.InfoContext(ctx, "engine: participant connected", "session", code, "participant", id)
	return nil
}

// HandleMessage decodes and handles a raw client message. Malformed or unknown messages are
// dropped without an error.
func (e *Engine) HandleMessage(ctx context.Context, code, id string, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.EventsProcessed.WithLabelValues("malformed", ignored.String()).Inc()
		slog.DebugContext(ctx, "engine: malformed message dropped", "session", code, "participant", id, "error", err)
		return nil
	}

	return e.Handle(ctx, code, id, msg)
}

// Handle applies one client message to the session. Policy violations (wrong phase, wrong
// role, repeated vote, unknown option) are ignored; only storage failures are returned.
func (e *Engine) Handle(ctx context.Context, code, id string, msg Message) error {
	return e.withSession(ctx, code, func(s *tx) (outcome, error) {
		o := e.apply(ctx, s, id, msg)
		telemetry.EventsProcessed.WithLabelValues(metricType(msg.Type), o.String()).Inc()
		return o, nil
	})
}

func (e *Engine) apply(ctx context.Context, s *tx, id string, msg Message) outcome {
	switch msg.Type {
	case TypeJoin:
		return e.join(ctx, s, id, msg.Nickname)
	case TypeVote:
		return e.vote(ctx, s, id, msg.Option)
	case TypeStartQuiz, TypeShowResults, TypeNextQuestion:
		if s.PresenterID == "" || s.PresenterID != id {
			return ignored
		}
		return e.command(ctx, s, msg.Type)
	default:
		return ignored
	}
}

// Disconnect drops the participant's channel and marks the player offline, keeping score and
// votes for a later reconnect. A presenter leaving cancels the pending question timer.
func (e *Engine) Disconnect(ctx context.Context, code, id string) error {
	e.registry.Disconnect(code, id)

	err := e.withSession(ctx, code, func(s *tx) (outcome, error) {
		if s.PresenterID == id {
			e.timers.Cancel(code)
		}

		p, ok := s.Players[id]
		if !ok {
			return ignored, nil
		}

		p.Online = false
		slog.InfoContext(ctx, "engine: player went offline", "session", code, "nickname", p.Nickname)
		return applied, nil
	})
	if errors.Is(err, errors.CodeNotFound) {
		return nil
	}

	return err
}

// tx is a session being modified inside its lock. Events emitted during the change are
// published only after the session was saved.
type tx struct {
	*domain.Session
	events []event.Event
}

func (t *tx) emit(ev event.Event) {
	t.events = append(t.events, ev)
}

// withSession runs fn on the session inside its lock. When fn reports a change the session
// is saved and broadcast before the lock is released.
func (e *Engine) withSession(ctx context.Context, code string, fn func(s *tx) (outcome, error)) error {
	unlock, err := e.store.Lock(ctx, code)
	if err != nil {
		return fmt.Errorf("engine: lock session %s: %w", code, err)
	}
	defer unlock()

	s, err := e.store.Get(ctx, code)
	if err != nil {
		return fmt.Errorf("engine: get session %s: %w", code, err)
	}
	if s.Code == "" {
		s.Code = code
	}

	t := &tx{Session: s}
	o, err := fn(t)
	if err != nil || o != applied {
		return err
	}

	if err := e.store.Save(ctx, code, s); err != nil {
		return fmt.Errorf("engine: save session %s: %w", code, err)
	}

	e.broadcast(ctx, s)

	if e.eb != nil {
		for _, ev := range t.events {
			e.eb.Publish(ctx, ev)
		}
	}

	return nil
}

func (e *Engine) broadcast(ctx context.Context, s *domain.Session) {
	e.registry.Broadcast(ctx, s.Code, broadcast.Compose(s))
}

func metricType(t string) string {
	switch t {
	case TypeJoin, TypeVote, TypeStartQuiz, TypeShowResults, TypeNextQuestion:
		return t
	default:
		return "unknown"
	}
}
