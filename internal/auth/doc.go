// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package auth provides authentication primitives for labsite.
//
// # Domain Types
//
//   - User - a site account; Public returns the form safe to send to clients
//   - Role - closed set of authorization levels (RoleUser, RoleResearcher, RoleAdmin)
//   - Session - server-side record of a login, keyed by the SHA-256 of its token
//
// # Ports
//
// UserRepository and SessionStore are implemented in package memory. Both
// return copies and serialize their own mutations.
//
// # Services
//
//   - Argon2idHasher - password hashing and constant-time verification
//   - SessionManager - session create, resolve, destroy and expiry sweep
//   - Service - register, login, logout, current user and admin role updates
//
// Every error carries one of the Code* constants from errors.go so the HTTP
// layer can map it to a status without string matching.
package auth
