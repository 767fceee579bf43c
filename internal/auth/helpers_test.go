// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/require"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/auth/memory"
)

// fastHasher stores passwords behind a fixed prefix so service tests do not
// pay for argon2. Hashes without the prefix are treated as legacy.
type fastHasher struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	// onVerify, when set, runs inside Verify before the comparison.
	onVerify func()
}

const fastPrefix = "fast$"

func (h *fastHasher) Hash(password string) (string, error) {
	h.count()
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return fastPrefix + password, nil
}

func (h *fastHasher) Verify(password, hash string) (bool, error) {
	h.count()
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if h.onVerify != nil {
		h.onVerify()
	}
	switch {
	case strings.HasPrefix(hash, fastPrefix):
		return hash == fastPrefix+password, nil
	case strings.HasPrefix(hash, "legacy$"):
		return hash == "legacy$"+password, nil
	default:
		return false, oops.Code(auth.CodeInvalidHash).Errorf("invalid hash format")
	}
}

func (h *fastHasher) NeedsUpgrade(hash string) bool {
	return !strings.HasPrefix(hash, fastPrefix)
}

func (h *fastHasher) count() {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
}

func (h *fastHasher) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	users    *memory.UserStore
	store    *memory.SessionStore
	sessions *auth.SessionManager
	hasher   *fastHasher
	clock    *clock
	svc      *auth.Service
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	f := &fixture{
		users:  memory.NewUserStore(),
		store:  memory.NewSessionStore(),
		hasher: &fastHasher{},
		clock:  newClock(),
	}
	var err error
	f.sessions, err = auth.NewSessionManager(f.store, f.users, auth.WithSessionClock(f.clock.Now))
	require.NoError(t, err)
	f.svc, err = auth.NewAuthService(f.users, f.sessions, f.hasher, opts...)
	require.NoError(t, err)
	return f
}

// addUser stores a user directly, bypassing registration.
func (f *fixture) addUser(t *testing.T, username, password string, role auth.Role) *auth.User {
	t.Helper()
	u := &auth.User{
		Username:     username,
		Email:        username + "@lab.example",
		PasswordHash: fastPrefix + password,
		Role:         role,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}
