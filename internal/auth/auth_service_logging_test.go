// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/auth/memory"
	"github.com/lrm2e/labsite/pkg/errutil"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestService_LogsNeverContainSecrets(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := newFixture(t, auth.WithLogger(logger))

	const password = "correct-horse-battery"
	_, reg, err := f.svc.Register(ctx, auth.Registration{Username: "alice", Password: password}, auth.SessionMeta{})
	require.NoError(t, err)
	regToken := reg.Token
	_, _, err = f.svc.Login(ctx, "alice", "wrong-"+password, auth.SessionMeta{})
	require.Error(t, err)
	_, login, err := f.svc.Login(ctx, "alice", password, auth.SessionMeta{PriorToken: regToken})
	require.NoError(t, err)
	loginToken := login.Token
	require.NoError(t, f.svc.Logout(ctx, loginToken))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, password)
	assert.NotContains(t, out, regToken)
	assert.NotContains(t, out, loginToken)
	assert.NotContains(t, out, fastPrefix)

	entries := decodeLogLines(t, &buf)
	var messages []string
	for _, e := range entries {
		messages = append(messages, e["msg"].(string))
	}
	assert.Contains(t, messages, "user registered")
	assert.Contains(t, messages, "login failed")
	assert.Contains(t, messages, "user logged in")
}

func TestService_Login_LogsFailureBookkeepingError(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	user := &auth.User{ID: 5, Username: "alice", PasswordHash: fastPrefix + "pw", Role: auth.RoleResearcher}
	repo := &mockUserRepository{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(user.Clone(), nil)
	repo.On("RecordLoginFailure", mock.Anything, int64(5), mock.Anything).Return(nil, errors.New("disk full"))

	sessions, err := auth.NewSessionManager(memory.NewSessionStore(), repo)
	require.NoError(t, err)
	svc, err := auth.NewAuthService(repo, sessions, &fastHasher{}, auth.WithLogger(logger))
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong", auth.SessionMeta{})
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	entries := decodeLogLines(t, &buf)
	var found bool
	for _, e := range entries {
		if e["msg"] == "failed to record login failure" {
			found = true
			assert.Equal(t, "WARN", e["level"])
			assert.Equal(t, float64(5), e["user_id"])
		}
	}
	assert.True(t, found, "expected bookkeeping failure to be logged")
	repo.AssertExpectations(t)
}

func TestService_Login_SuccessBookkeepingErrorIsInternal(t *testing.T) {
	ctx := context.Background()

	user := &auth.User{ID: 5, Username: "alice", PasswordHash: fastPrefix + "pw", Role: auth.RoleResearcher}
	repo := &mockUserRepository{}
	repo.On("GetByUsername", mock.Anything, "alice").Return(user.Clone(), nil)
	repo.On("RecordLoginSuccess", mock.Anything, int64(5), mock.Anything).Return(nil, errors.New("disk full"))

	store := memory.NewSessionStore()
	sessions, err := auth.NewSessionManager(store, repo)
	require.NoError(t, err)
	svc, err := auth.NewAuthService(repo, sessions, &fastHasher{})
	require.NoError(t, err)

	_, grant, err := svc.Login(ctx, "alice", "pw", auth.SessionMeta{})
	errutil.AssertErrorCode(t, err, auth.CodeInternal)
	assert.Empty(t, grant.Token)
	assert.Zero(t, store.Len())
	repo.AssertExpectations(t)
}

func TestService_Seed_LogsSharedEmail(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	f := newFixture(t, auth.WithLogger(logger))
	alice := f.addUser(t, "alice", "pw", auth.RoleResearcher)

	err := f.svc.Seed(ctx, []auth.SeedAccount{{
		Registration: auth.Registration{Username: "admin", Email: alice.Email, Password: "admin123"},
		Role:         auth.RoleAdmin,
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.users.Len())

	var found bool
	for _, e := range decodeLogLines(t, &buf) {
		if e["msg"] == "seed email already in use" {
			found = true
			assert.Equal(t, "WARN", e["level"])
			assert.Equal(t, "admin", e["username"])
			assert.Equal(t, float64(alice.ID), e["existing_user_id"])
		}
	}
	assert.True(t, found, "expected shared seed email to be logged")

	buf.Reset()
	require.NoError(t, f.svc.Seed(ctx, []auth.SeedAccount{{
		Registration: auth.Registration{Username: "admin", Email: alice.Email, Password: "admin123"},
		Role:         auth.RoleAdmin,
	}}))
	for _, e := range decodeLogLines(t, &buf) {
		assert.NotEqual(t, "seed account created", e["msg"])
	}
}
