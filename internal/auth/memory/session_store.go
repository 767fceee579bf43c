// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
)

// SessionStore implements auth.SessionStore keyed by token hash.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*auth.Session
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*auth.Session),
	}
}

// Create implements auth.SessionStore.
func (s *SessionStore) Create(_ context.Context, session *auth.Session) error {
	if session == nil || session.TokenHash == "" {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("session must have a token hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.TokenHash]; exists {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("token hash already in use")
	}
	c := *session
	s.sessions[session.TokenHash] = &c
	return nil
}

// GetByTokenHash implements auth.SessionStore. Expired sessions are
// returned as-is; the caller decides whether to honor them.
func (s *SessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	c := *session
	return &c, nil
}

// DeleteByTokenHash implements auth.SessionStore.
func (s *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	delete(s.sessions, tokenHash)
	return nil
}

// DeleteByUser implements auth.SessionStore.
func (s *SessionStore) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements auth.SessionStore.
func (s *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, session := range s.sessions {
		if session.IsExpiredAt(now) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
