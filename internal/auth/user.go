// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import (
	"context"
	"regexp"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that start with a letter and continue with
// letters, digits, underscores, dots or hyphens.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// User is a site account. PasswordHash must never leave the server; use
// Public to obtain the client-facing form.
type User struct {
	ID             int64
	Username       string
	Email          string
	PasswordHash   string
	Role           Role
	FullName       *string
	Department     *string
	Position       *string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublicUser is a User with the password hash and lockout state stripped.
type PublicUser struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	FullName   *string   `json:"fullName"`
	Department *string   `json:"department"`
	Position   *string   `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Public returns the stripped form of u.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		FullName:   u.FullName,
		Department: u.Department,
		Position:   u.Position,
		CreatedAt:  u.CreatedAt,
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	c := *u
	c.FullName = cloneString(u.FullName)
	c.Department = cloneString(u.Department)
	c.Position = cloneString(u.Position)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// ValidateUsername validates a username against the account rules.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code(CodeInvalidUsername).Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(CodeInvalidUsername).
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code(CodeInvalidUsername).
			Errorf("username must start with a letter and contain only letters, numbers, '_', '.' and '-'")
	}
	return nil
}

// UserRepository is the user directory.
//
// Implementations return copies. Mutations are targeted operations that
// the store serializes.
type UserRepository interface {
	// Create assigns an ID, stamps CreatedAt and stores the user.
	// Returns ErrDuplicateUsername if the username is taken. The uniqueness
	// check and the insert are atomic.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByUsername retrieves a user by exact, case-sensitive username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves the first user with the given email.
	// Emails are not unique.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// RecordLoginFailure counts a failed login at now, starting a lockout
	// at the threshold, and returns the updated user. The increment is
	// atomic with respect to concurrent logins.
	RecordLoginFailure(ctx context.Context, id int64, now time.Time) (*User, error)

	// RecordLoginSuccess clears the failure counter and returns the current
	// user. It fails with CodeAccountLocked, leaving the counter untouched,
	// when the account is locked at now.
	RecordLoginSuccess(ctx context.Context, id int64, now time.Time) (*User, error)

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// UpdateRole sets the role of an existing user and returns the result.
	UpdateRole(ctx context.Context, id int64, role Role) (*User, error)

	// List returns a snapshot of all users ordered by ID.
	List(ctx context.Context) ([]*User, error)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
