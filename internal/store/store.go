// Package store holds the authoritative state of every active session.
//
// A Store is pure data access: reads and writes replace whole session records, and
// last writer wins per code. Callers that read-modify-write a session must hold the
// session's lock for the whole step so concurrent messages can't lose updates.
package store

import (
	"context"

	"github.com/victornm/livequiz/internal/domain"
)

type Store interface {
	// Get returns a copy of the session, or a NotFound error.
	Get(ctx context.Context, code string) (*domain.Session, error)

	// Save replaces the whole session record stored under code.
	Save(ctx context.Context, code string, s *domain.Session) error

	Exists(ctx context.Context, code string) (bool, error)

	// Lock acquires the mutual-exclusion scope of one session. Sessions are independent,
	// locking one never waits on another.
	Lock(ctx context.Context, code string) (unlock func(), err error)
}
