// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import "time"

// Repeated login failures lock an account for LockoutDuration once
// FailedAttempts reaches LockoutThreshold.
const (
	LockoutThreshold = 7
	LockoutDuration  = 15 * time.Minute
)

// IsLockedAt reports whether the account is locked at now.
func (u *User) IsLockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// LockoutRemaining returns how long the account stays locked after now,
// or zero.
func (u *User) LockoutRemaining(now time.Time) time.Duration {
	if !u.IsLockedAt(now) {
		return 0
	}
	return u.LockedUntil.Sub(now)
}

// AttemptsLeft is the number of failures allowed before the next lockout.
func (u *User) AttemptsLeft() int {
	if u.FailedAttempts >= LockoutThreshold {
		return 0
	}
	return LockoutThreshold - u.FailedAttempts
}

// RecordFailure counts a failed login at now and starts a lockout when the
// threshold is reached. An active lockout is not extended.
func (u *User) RecordFailure(now time.Time) {
	u.FailedAttempts++
	u.UpdatedAt = now
	if u.FailedAttempts >= LockoutThreshold && !u.IsLockedAt(now) {
		until := now.Add(LockoutDuration)
		u.LockedUntil = &until
	}
}

// RecordSuccess clears the failure counter and any lockout.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
}
