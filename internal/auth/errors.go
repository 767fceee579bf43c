// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import "errors"

// Error codes carried by oops errors returned from this package.
const (
	CodeDuplicateUsername  = "AUTH_DUPLICATE_USERNAME"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidRole        = "AUTH_INVALID_ROLE"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeInternal           = "AUTH_INTERNAL"
	CodeInvalidUsername    = "AUTH_INVALID_USERNAME"
	CodeInvalidPassword    = "AUTH_INVALID_PASSWORD"
	CodeEmptyPassword      = "AUTH_EMPTY_PASSWORD"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeInvalidHash        = "AUTH_INVALID_HASH"
	CodeSaltFailed         = "AUTH_SALT_FAILED"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned by UserRepository.Create when the username is taken.
var ErrDuplicateUsername = errors.New("username already exists")
