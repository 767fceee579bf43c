// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/auth/memory"
	"github.com/lrm2e/labsite/pkg/errutil"
)

func TestGenerateSessionToken(t *testing.T) {
	t.Run("generates secure token", func(t *testing.T) {
		token, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
		assert.Len(t, hash, 64)
		assert.NotEqual(t, token, hash)
		assert.Equal(t, auth.HashSessionToken(token), hash)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, hash1, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		token2, hash2, err := auth.GenerateSessionToken()
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestNewSession(t *testing.T) {
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		s, err := auth.NewSession(1, "hash", "curl/8", "10.0.0.1", now, now.Add(time.Hour))
		require.NoError(t, err)
		assert.NotZero(t, s.ID)
		assert.Equal(t, int64(1), s.UserID)
		assert.Equal(t, "curl/8", s.UserAgent)
	})

	tests := []struct {
		name    string
		userID  int64
		hash    string
		expires time.Time
		code    string
	}{
		{"zero user", 0, "hash", now.Add(time.Hour), "SESSION_INVALID_USER"},
		{"empty hash", 1, "", now.Add(time.Hour), "SESSION_INVALID_HASH"},
		{"expiry not after creation", 1, "hash", now, "SESSION_INVALID_EXPIRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.NewSession(tt.userID, tt.hash, "", "", now, tt.expires)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestSession_IsExpiredAt(t *testing.T) {
	now := time.Now()
	s := &auth.Session{ExpiresAt: now}

	assert.False(t, s.IsExpiredAt(now.Add(-time.Nanosecond)))
	assert.True(t, s.IsExpiredAt(now))
	assert.True(t, s.IsExpiredAt(now.Add(time.Second)))
}

func TestNewSessionManager(t *testing.T) {
	users := memory.NewUserStore()
	store := memory.NewSessionStore()

	_, err := auth.NewSessionManager(nil, users)
	errutil.AssertErrorCode(t, err, auth.CodeInternal)

	_, err = auth.NewSessionManager(store, nil)
	errutil.AssertErrorCode(t, err, auth.CodeInternal)

	m, err := auth.NewSessionManager(store, users)
	require.NoError(t, err)
	assert.Equal(t, auth.SessionTokenExpiry, m.TTL())

	m, err = auth.NewSessionManager(store, users, auth.WithSessionTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, m.TTL())
}

func TestSessionManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice", "pw", auth.RoleResearcher)

	token, session, err := f.sessions.Create(ctx, alice.ID, auth.SessionMeta{UserAgent: "ua", IPAddress: "10.1.2.3"})
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, f.clock.Now().Add(auth.SessionTokenExpiry), session.ExpiresAt)
	assert.Equal(t, "10.1.2.3", session.IPAddress)

	t.Run("resolves to the user", func(t *testing.T) {
		user, s, err := f.sessions.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, user.ID)
		assert.Equal(t, session.ID, s.ID)
	})

	t.Run("store holds only the hash", func(t *testing.T) {
		_, err := f.store.GetByTokenHash(ctx, token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = f.store.GetByTokenHash(ctx, auth.HashSessionToken(token))
		assert.NoError(t, err)
	})

	t.Run("destroy invalidates and is idempotent", func(t *testing.T) {
		require.NoError(t, f.sessions.Destroy(ctx, token))
		_, _, err := f.sessions.Resolve(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
		assert.NoError(t, f.sessions.Destroy(ctx, token))
		assert.NoError(t, f.sessions.Destroy(ctx, ""))
	})
}

func TestSessionManager_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("empty and unknown tokens", func(t *testing.T) {
		f := newFixture(t)
		for _, token := range []string{"", "deadbeef"} {
			_, _, err := f.sessions.Resolve(ctx, token)
			errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
		}
	})

	t.Run("valid until expiry then deleted", func(t *testing.T) {
		f := newFixture(t)
		alice := f.addUser(t, "alice", "pw", auth.RoleResearcher)
		token, _, err := f.sessions.Create(ctx, alice.ID, auth.SessionMeta{})
		require.NoError(t, err)

		f.clock.Advance(auth.SessionTokenExpiry - time.Second)
		_, _, err = f.sessions.Resolve(ctx, token)
		require.NoError(t, err)

		f.clock.Advance(time.Second)
		_, _, err = f.sessions.Resolve(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
		assert.Zero(t, f.store.Len())
	})

	t.Run("orphaned session is unauthenticated", func(t *testing.T) {
		f := newFixture(t)
		token, _, err := f.sessions.Create(ctx, 999, auth.SessionMeta{})
		require.NoError(t, err)

		_, _, err = f.sessions.Resolve(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeUnauthenticated)
	})

	t.Run("reflects role changes immediately", func(t *testing.T) {
		f := newFixture(t)
		bob := f.addUser(t, "bob", "pw", auth.RoleUser)
		token, _, err := f.sessions.Create(ctx, bob.ID, auth.SessionMeta{})
		require.NoError(t, err)

		_, err = f.users.UpdateRole(ctx, bob.ID, auth.RoleAdmin)
		require.NoError(t, err)

		user, _, err := f.sessions.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, user.Role)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		m, err := auth.NewSessionManager(failingSessionStore{}, memory.NewUserStore())
		require.NoError(t, err)
		_, _, err = m.Resolve(ctx, "token")
		errutil.AssertErrorCode(t, err, auth.CodeInternal)
	})
}

func TestSessionManager_DestroyAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice", "pw", auth.RoleResearcher)
	bob := f.addUser(t, "bob", "pw", auth.RoleResearcher)

	for i := 0; i < 3; i++ {
		_, _, err := f.sessions.Create(ctx, alice.ID, auth.SessionMeta{})
		require.NoError(t, err)
	}
	bobToken, _, err := f.sessions.Create(ctx, bob.ID, auth.SessionMeta{})
	require.NoError(t, err)

	n, err := f.sessions.DestroyAllForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, _, err = f.sessions.Resolve(ctx, bobToken)
	assert.NoError(t, err)
}

func TestSessionManager_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.addUser(t, "alice", "pw", auth.RoleResearcher)

	_, _, err := f.sessions.Create(ctx, alice.ID, auth.SessionMeta{})
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, _, err = f.sessions.Create(ctx, alice.ID, auth.SessionMeta{})
	require.NoError(t, err)

	f.clock.Advance(auth.SessionTokenExpiry - 30*time.Minute)
	n, err := f.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.store.Len())
}

func TestSessionManager_RunSweeper(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	users := memory.NewUserStore()
	store := memory.NewSessionStore()
	c := newClock()
	m, err := auth.NewSessionManager(store, users, auth.WithSessionClock(c.Now), auth.WithSessionTTL(time.Minute))
	require.NoError(t, err)

	_, _, err = m.Create(context.Background(), 1, auth.SessionMeta{})
	require.NoError(t, err)
	c.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

type failingSessionStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingSessionStore) Create(context.Context, *auth.Session) error { return errStoreDown }

func (failingSessionStore) GetByTokenHash(context.Context, string) (*auth.Session, error) {
	return nil, errStoreDown
}

func (failingSessionStore) DeleteByTokenHash(context.Context, string) error { return errStoreDown }

func (failingSessionStore) DeleteByUser(context.Context, int64) (int64, error) {
	return 0, errStoreDown
}

func (failingSessionStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errStoreDown
}
