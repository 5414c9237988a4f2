package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development. Rotate
// performs its compare-and-swap under the store lock, giving the same
// exactly-one-winner semantics as the conditional SQL update.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Rotate(_ context.Context, id, prevHash, newHash string, expiresAt time.Time) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if sess.Revoked() {
		return Session{}, ErrRevoked
	}
	if sess.CredentialHash != prevHash {
		return Session{}, ErrCredentialMismatch
	}
	sess.CredentialHash = newHash
	sess.RotationCounter++
	sess.ExpiresAt = expiresAt
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.Revoked() {
		return nil
	}
	sess.RevokedAt = &at
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if sess.UserID != userID || sess.Revoked() {
			continue
		}
		sess.RevokedAt = &at
		s.sessions[id] = sess
		ids = append(ids, id)
	}
	return ids, nil
}
