package session

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when a user has no session.
var ErrSessionNotFound = errors.New("session not found")

// Store persists sessions keyed by user. A user has at most one session.
type Store interface {
	// Save stores the session, replacing any session of the same user.
	Save(ctx context.Context, s *Session) error

	// FindByUser returns the session of userID.
	// Returns ErrSessionNotFound if there is none.
	FindByUser(ctx context.Context, userID int64) (*Session, error)

	// Delete removes the session of userID.
	// Returns ErrSessionNotFound if there is none.
	Delete(ctx context.Context, userID int64) error

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store.
// Sessions are short-lived conversations, so nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*Session),
	}
}

// Save stores a clone of s to avoid external mutations.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	clone := s.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[clone.UserID] = clone
	return nil
}

// FindByUser returns a clone to prevent external mutations.
func (m *MemoryStore) FindByUser(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Delete removes the session of userID.
func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[userID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, userID)
	return nil
}

// Count returns the number of stored sessions.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}
