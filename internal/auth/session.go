// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32             // 32 bytes = 64 hex chars
	SessionTokenExpiry = 24 * time.Hour // 24 hour expiry
)

// Session is a server-side record of a successful login. The plaintext token
// is held only by the client; the store keys sessions by its SHA-256 hash.
type Session struct {
	ID        ulid.ULID
	UserID    int64
	TokenHash string
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionMeta carries request details recorded with a new session.
// PriorToken is the session the request already held, if any; it is
// destroyed before a new one is issued.
type SessionMeta struct {
	PriorToken string
	UserAgent  string
	IPAddress  string
}

// NewSession creates a validated Session.
func NewSession(userID int64, tokenHash, userAgent, ipAddress string, createdAt, expiresAt time.Time) (*Session, error) {
	if userID <= 0 {
		return nil, oops.Code("SESSION_INVALID_USER").With("user_id", userID).Errorf("user ID must be positive")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation")
	}
	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the session is no longer honored at t.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Grant is an issued session as a client sees it.
type Grant struct {
	Token     string
	ExpiresAt time.Time
}

// SessionStore persists sessions. The in-memory implementation lives in
// package memory; a durable store only needs to satisfy this interface.
type SessionStore interface {
	// Create stores a new session. It must be visible to GetByTokenHash
	// once Create returns.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// DeleteByTokenHash removes a session. Returns ErrNotFound if absent.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes all sessions of a user and returns the count.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)

	// DeleteExpired removes sessions expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionManager issues, resolves and destroys sessions.
type SessionManager struct {
	store  SessionStore
	users  UserRepository
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionTTL overrides SessionTokenExpiry.
func WithSessionTTL(ttl time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionClock overrides time.Now, for tests.
func WithSessionClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSessionLogger sets the logger used for store failures.
func WithSessionLogger(logger *slog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSessionManager creates a SessionManager backed by store that resolves
// principals through users.
func NewSessionManager(store SessionStore, users UserRepository, opts ...SessionManagerOption) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Code(CodeInternal).Errorf("session store is required")
	}
	if users == nil {
		return nil, oops.Code(CodeInternal).Errorf("users repository is required")
	}
	m := &SessionManager{
		store:  store,
		users:  users,
		ttl:    SessionTokenExpiry,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create issues a session for userID and returns the plaintext token.
func (m *SessionManager) Create(ctx context.Context, userID int64, meta SessionMeta) (string, *Session, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return "", nil, oops.Code(CodeInternal).With("operation", "generate session token").Wrap(err)
	}

	now := m.now()
	session, err := NewSession(userID, tokenHash, meta.UserAgent, meta.IPAddress, now, now.Add(m.ttl))
	if err != nil {
		return "", nil, oops.Code(CodeInternal).With("operation", "create session").Wrap(err)
	}

	if err := m.store.Create(ctx, session); err != nil {
		return "", nil, oops.Code(CodeInternal).
			With("operation", "persist session").
			With("user_id", userID).
			Wrap(err)
	}
	return token, session, nil
}

// Resolve returns the user a token authenticates. Missing, expired and
// orphaned sessions all fail with CodeUnauthenticated.
func (m *SessionManager) Resolve(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, errUnauthenticated()
	}

	tokenHash := HashSessionToken(token)
	session, err := m.store.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, errUnauthenticated()
		}
		return nil, nil, oops.Code(CodeInternal).With("operation", "get session by token hash").Wrap(err)
	}

	if session.IsExpiredAt(m.now()) {
		if err := m.store.DeleteByTokenHash(ctx, tokenHash); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn("failed to delete expired session", "session_id", session.ID.String(), "error", err)
		}
		return nil, nil, errUnauthenticated()
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.logger.Warn("session references missing user",
				"session_id", session.ID.String(),
				"user_id", session.UserID)
			return nil, nil, errUnauthenticated()
		}
		return nil, nil, oops.Code(CodeInternal).
			With("operation", "get session user").
			With("user_id", session.UserID).
			Wrap(err)
	}
	return user, session, nil
}

// Destroy removes the session for token. Unknown and empty tokens are not errors.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := m.store.DeleteByTokenHash(ctx, HashSessionToken(token))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code(CodeInternal).With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DestroyAllForUser removes every session of a user.
func (m *SessionManager) DestroyAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code(CodeInternal).With("operation", "delete user sessions").With("user_id", userID).Wrap(err)
	}
	return n, nil
}

// Sweep deletes expired sessions.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, oops.Code(CodeInternal).With("operation", "delete expired sessions").Wrap(err)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (m *SessionManager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

func errUnauthenticated() error {
	return oops.Code(CodeUnauthenticated).Errorf("not authenticated")
}
