// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultHashTimeout bounds a single password hash or verification.
const DefaultHashTimeout = 5 * time.Second

// Registration is the input to Service.Register. It has no role field:
// public registration always yields RoleResearcher.
type Registration struct {
	Username   string
	Email      string
	Password   string
	FullName   *string
	Department *string
	Position   *string
}

// SeedAccount is a bootstrap account with an explicit role.
type SeedAccount struct {
	Registration
	Role Role
}

// Service provides authentication operations.
type Service struct {
	users       UserRepository
	sessions    *SessionManager
	hasher      PasswordHasher
	logger      *slog.Logger
	hashTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHashTimeout bounds each password hash or verification.
func WithHashTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.hashTimeout = d
		}
	}
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, sessions *SessionManager, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code(CodeInternal).Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code(CodeInternal).Errorf("session manager is required")
	}
	if hasher == nil {
		return nil, oops.Code(CodeInternal).Errorf("password hasher is required")
	}

	s := &Service{
		users:       users,
		sessions:    sessions,
		hasher:      hasher,
		logger:      slog.Default(),
		hashTimeout: DefaultHashTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code(CodeInternal).Errorf("logger cannot be nil")
	}
	return s, nil
}

// Sessions returns the session manager used by the service.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// dummyPasswordHash is verified when a user doesn't exist so a failed login
// takes as long as one with a real account. It matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a researcher account and logs it in.
// Returns the stripped user and the issued session.
func (s *Service) Register(ctx context.Context, reg Registration, meta SessionMeta) (*PublicUser, Grant, error) {
	user, err := s.createUser(ctx, reg, RoleResearcher)
	if err != nil {
		return nil, Grant{}, err
	}

	grant, err := s.startSession(ctx, user.ID, meta)
	if err != nil {
		return nil, Grant{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user.Public(), grant, nil
}

// Login authenticates a user and creates a session.
// Every rejection other than lockout is the same CodeInvalidCredentials
// error, and the password is verified whether or not the user exists.
func (s *Service) Login(ctx context.Context, username, password string, meta SessionMeta) (*PublicUser, Grant, error) {
	user, lookupErr := s.users.GetByUsername(ctx, username)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, Grant{}, oops.Code(CodeInternal).
			With("operation", "get user by username").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.verify(ctx, password, targetHash)
	now := s.sessions.now()
	if verifyErr != nil {
		if oopsErr, ok := oops.AsOops(verifyErr); ok && oopsErr.Code() == CodeInternal {
			return nil, Grant{}, verifyErr
		}
		if userExists {
			s.logger.WarnContext(ctx, "stored password hash is unreadable",
				"user_id", user.ID,
				"error", verifyErr)
		}
		valid = false
	}

	if !userExists || !valid {
		if userExists {
			s.recordFailure(ctx, user.ID, now)
		}
		return nil, Grant{}, errInvalidCredentials()
	}

	// The lockout check happens after verification and inside the store,
	// so only a caller who knows the password ever sees it.
	current, err := s.users.RecordLoginSuccess(ctx, user.ID, now)
	if err != nil {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == CodeAccountLocked {
			return nil, Grant{}, err
		}
		return nil, Grant{}, oops.Code(CodeInternal).
			With("operation", "record login success").
			With("user_id", user.ID).
			Wrap(err)
	}

	if s.hasher.NeedsUpgrade(current.PasswordHash) {
		s.upgradeHash(ctx, current.ID, password)
	}

	grant, err := s.startSession(ctx, current.ID, meta)
	if err != nil {
		return nil, Grant{}, err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", current.ID)
	return current.Public(), grant, nil
}

func (s *Service) recordFailure(ctx context.Context, id int64, now time.Time) {
	updated, err := s.users.RecordLoginFailure(ctx, id, now)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			"user_id", id,
			"error", err)
		return
	}
	s.logger.InfoContext(ctx, "login failed",
		"user_id", id,
		"failed_attempts", updated.FailedAttempts,
		"attempts_left", updated.AttemptsLeft(),
		"locked", updated.IsLockedAt(now))
}

func (s *Service) upgradeHash(ctx context.Context, id int64, password string) {
	newHash, err := s.hash(ctx, password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, id, newHash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", id, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", id)
}

// Logout destroys the session for token. Unknown tokens are not errors.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// CurrentUser returns the user the token authenticates.
func (s *Service) CurrentUser(ctx context.Context, token string) (*PublicUser, error) {
	user, _, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// ListUsers returns every user, stripped.
func (s *Service) ListUsers(ctx context.Context) ([]*PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, oops.Code(CodeInternal).With("operation", "list users").Wrap(err)
	}
	out := make([]*PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// UpdateRole sets the role of user id. roleName must be one of the wire
// names accepted by ParseRole; the stored role is untouched otherwise.
func (s *Service) UpdateRole(ctx context.Context, id int64, roleName string) (*PublicUser, error) {
	role, err := ParseRole(roleName)
	if err != nil {
		return nil, err
	}

	user, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).With("user_id", id).Errorf("user not found")
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "update role").
			With("user_id", id).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user role updated", "user_id", id, "role", role.String())
	return user.Public(), nil
}

// Seed creates bootstrap accounts. Accounts whose username already exists
// are left untouched. A seed email that another account already uses is
// logged but does not block creation.
func (s *Service) Seed(ctx context.Context, accounts []SeedAccount) error {
	for _, acct := range accounts {
		if !acct.Role.Valid() {
			return oops.Code(CodeInvalidRole).With("username", acct.Username).Errorf("seed account has no valid role")
		}
		s.warnSharedEmail(ctx, acct)
		_, err := s.createUser(ctx, acct.Registration, acct.Role)
		if err == nil {
			s.logger.InfoContext(ctx, "seed account created", "username", acct.Username, "role", acct.Role.String())
			continue
		}
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == CodeDuplicateUsername {
			continue
		}
		return err
	}
	return nil
}

func (s *Service) warnSharedEmail(ctx context.Context, acct SeedAccount) {
	if acct.Email == "" {
		return
	}
	existing, err := s.users.GetByEmail(ctx, acct.Email)
	if err != nil || existing.Username == acct.Username {
		return
	}
	s.logger.WarnContext(ctx, "seed email already in use",
		"username", acct.Username,
		"existing_user_id", existing.ID)
}

func (s *Service) createUser(ctx context.Context, reg Registration, role Role) (*User, error) {
	if err := ValidateUsername(reg.Username); err != nil {
		return nil, err
	}
	if reg.Password == "" {
		return nil, oops.Code(CodeInvalidPassword).Errorf("password cannot be empty")
	}

	if _, err := s.users.GetByUsername(ctx, reg.Username); err == nil {
		return nil, errDuplicateUsername(reg.Username)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeInternal).
			With("operation", "get user by username").
			Wrap(err)
	}

	hash, err := s.hash(ctx, reg.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         role,
		FullName:     reg.FullName,
		Department:   reg.Department,
		Position:     reg.Position,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and here;
		// the store's atomic check catches it.
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, errDuplicateUsername(reg.Username)
		}
		return nil, oops.Code(CodeInternal).
			With("operation", "create user").
			Wrap(err)
	}
	return user, nil
}

func (s *Service) startSession(ctx context.Context, userID int64, meta SessionMeta) (Grant, error) {
	if err := s.sessions.Destroy(ctx, meta.PriorToken); err != nil {
		return Grant{}, err
	}
	token, session, err := s.sessions.Create(ctx, userID, meta)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// hash runs the KDF on a helper goroutine bounded by hashTimeout.
func (s *Service) hash(ctx context.Context, password string) (string, error) {
	return runKDF(ctx, s.hashTimeout, "hash", func() (string, error) {
		return s.hasher.Hash(password)
	})
}

func (s *Service) verify(ctx context.Context, password, hash string) (bool, error) {
	return runKDF(ctx, s.hashTimeout, "verify", func() (bool, error) {
		return s.hasher.Verify(password, hash)
	})
}

type kdfResult[T any] struct {
	value T
	err   error
}

func runKDF[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan kdfResult[T], 1)
	go func() {
		v, err := fn()
		done <- kdfResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, oops.Code(CodeInternal).
			With("operation", "password "+op).
			With("timeout", timeout.String()).
			Wrap(ctx.Err())
	}
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid username or password")
}

func errDuplicateUsername(username string) error {
	return oops.Code(CodeDuplicateUsername).
		With("username", username).
		Errorf("username already exists")
}
