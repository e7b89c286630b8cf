// Package registry maps (session code, participant id) to live outbound connections and
// fans messages out to them.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/telemetry"
)

const maxConcurrent = 100

// Conn is the outbound half of one participant connection.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]Conn
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]map[string]Conn),
	}
}

func (r *Registry) Connect(c Conn, code, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[code] == nil {
		r.conns[code] = make(map[string]Conn)
	}
	if _, ok := r.conns[code][id]; !ok {
		telemetry.ActiveConnections.Inc()
	}
	r.conns[code][id] = c
}

func (r *Registry) Disconnect(code, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.conns[code]
	if !ok {
		return
	}
	if _, ok := cs[id]; ok {
		delete(cs, id)
		telemetry.ActiveConnections.Dec()
	}
	if len(cs) == 0 {
		delete(r.conns, code)
	}
}

// Rebind moves the channel registered under oldID to newID. When newID already owns a live
// channel, it is kept and the stale oldID entry is dropped.
func (r *Registry) Rebind(code, oldID, newID string) {
	if oldID == newID {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.conns[code]
	if !ok {
		return
	}
	old, ok := cs[oldID]
	if !ok {
		return
	}

	delete(cs, oldID)
	if _, ok := cs[newID]; ok {
		telemetry.ActiveConnections.Dec()
		return
	}
	cs[newID] = old
}

// Count returns the number of channels registered for a session.
func (r *Registry) Count(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[code])
}

// Send delivers payload to a single participant.
func (r *Registry) Send(ctx context.Context, code, id string, payload any) error {
	r.mu.RLock()
	c, ok := r.conns[code][id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("registry: no connection for %s/%s", code, id)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	return c.Send(ctx, b)
}

// Broadcast sends payload to every channel of a session concurrently and waits for all sends.
// A failed send is logged and left for the next disconnect to clean up; it never stops
// delivery to the other recipients.
func (r *Registry) Broadcast(ctx context.Context, code string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "registry: marshal broadcast failed", "session", code, "error", err)
		return
	}

	r.mu.RLock()
	targets := make(map[string]Conn, len(r.conns[code]))
	for id, c := range r.conns[code] {
		targets[id] = c
	}
	r.mu.RUnlock()

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for id, c := range targets {
		eg.Go(func() error {
			if err := c.Send(ctx, b); err != nil {
				telemetry.BroadcastFailures.Inc()
				slog.ErrorContext(ctx, "registry: send failed",
					"session", code,
					"participant", id,
					"error", err,
				)
			}
			return nil
		})
	}

	_ = eg.Wait()
}
