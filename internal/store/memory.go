package store

import (
	"context"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// Memory keeps sessions in a map. Records are deep-copied in and out, so a caller holding
// a session never sees another caller's partial updates.
type Memory struct {
	*keyedMutex

	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemory() *Memory {
	return &Memory{
		keyedMutex: newKeyedMutex(),
		sessions:   make(map[string]*domain.Session),
	}
}

func (m *Memory) Get(_ context.Context, code string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[code]
	if !ok {
		return nil, errors.NotFound("session not found: %s", code)
	}

	return s.Clone(), nil
}

func (m *Memory) Save(_ context.Context, code string, s *domain.Session) error {
	c := s.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[code] = c
	return nil
}

func (m *Memory) Exists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[code]
	return ok, nil
}
