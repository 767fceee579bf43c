// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package memory provides in-process implementations of the auth ports.
// State is lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
)

// UserStore implements auth.UserRepository over a map guarded by a mutex.
// The id counter and the username index change under the same lock, so
// concurrent creates can neither share an id nor share a username.
type UserStore struct {
	mu         sync.RWMutex
	users      map[int64]*auth.User
	byUsername map[string]int64
	nextID     int64
	now        func() time.Time
}

// NewUserStore creates an empty UserStore. Ids start at 1.
func NewUserStore() *UserStore {
	return &UserStore{
		users:      make(map[int64]*auth.User),
		byUsername: make(map[string]int64),
		nextID:     1,
		now:        time.Now,
	}
}

// Create implements auth.UserRepository. On success user.ID, CreatedAt,
// UpdatedAt and Role carry the stored values.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_CREATE_FAILED").Errorf("user cannot be nil")
	}
	if user.PasswordHash == "" {
		return oops.Code("USER_CREATE_FAILED").
			With("username", user.Username).
			Errorf("password hash cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[user.Username]; taken {
		return oops.Code("USER_CREATE_FAILED").
			With("username", user.Username).
			Wrap(auth.ErrDuplicateUsername)
	}

	now := s.now()
	user.ID = s.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	if !user.Role.Valid() {
		user.Role = auth.RoleUser
	}
	s.nextID++

	s.users[user.ID] = user.Clone()
	s.byUsername[user.Username] = user.ID
	return nil
}

// GetByID implements auth.UserRepository.
func (s *UserStore) GetByID(_ context.Context, id int64) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return user.Clone(), nil
}

// GetByUsername implements auth.UserRepository.
func (s *UserStore) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return s.users[id].Clone(), nil
}

// GetByEmail implements auth.UserRepository. When several users share an
// email the one with the lowest id is returned.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *auth.User
	for _, u := range s.users {
		if u.Email == email && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return found.Clone(), nil
}

// RecordLoginFailure implements auth.UserRepository.
func (s *UserStore) RecordLoginFailure(_ context.Context, id int64, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	user.RecordFailure(now)
	return user.Clone(), nil
}

// RecordLoginSuccess implements auth.UserRepository.
func (s *UserStore) RecordLoginSuccess(_ context.Context, id int64, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if user.IsLockedAt(now) {
		return nil, oops.Code(auth.CodeAccountLocked).
			With("user_id", id).
			With("remaining", user.LockoutRemaining(now).String()).
			Errorf("account is temporarily locked")
	}
	user.RecordSuccess(now)
	return user.Clone(), nil
}

// UpdatePasswordHash implements auth.UserRepository.
func (s *UserStore) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	if hash == "" {
		return oops.Code("USER_UPDATE_FAILED").With("id", id).Errorf("password hash cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	return nil
}

// UpdateRole implements auth.UserRepository.
func (s *UserStore) UpdateRole(_ context.Context, id int64, role auth.Role) (*auth.User, error) {
	if !role.Valid() {
		return nil, oops.Code(auth.CodeInvalidRole).With("id", id).Errorf("invalid role")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	user.Role = role
	user.UpdatedAt = s.now()
	return user.Clone(), nil
}

// List implements auth.UserRepository.
func (s *UserStore) List(_ context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
