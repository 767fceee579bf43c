// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// Role is the authorization level attached to a User.
// The set is closed: the only valid values are the constants below.
type Role uint8

// Roles in ascending order of privilege. The zero value is not a role; the
// directory replaces it with RoleUser on create.
const (
	RoleUser Role = iota + 1
	RoleResearcher
	RoleAdmin
)

// AllRoles lists every valid role.
var AllRoles = []Role{RoleUser, RoleResearcher, RoleAdmin}

// ParseRole converts a wire name ("admin", "researcher", "user") to a Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "user":
		return RoleUser, nil
	case "researcher":
		return RoleResearcher, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, oops.Code(CodeInvalidRole).
			With("role", name).
			Errorf("invalid role %q: valid roles are %s", name, roleNames())
	}
}

func roleNames() string {
	names := make([]string, 0, len(AllRoles))
	for i := len(AllRoles) - 1; i >= 0; i-- {
		names = append(names, AllRoles[i].String())
	}
	return strings.Join(names, ", ")
}

// String returns the wire name of the role, or "" for an invalid value.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleResearcher:
		return "researcher"
	case RoleAdmin:
		return "admin"
	default:
		return ""
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleResearcher, RoleAdmin:
		return true
	default:
		return false
	}
}

// In reports whether r is a member of roles.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, oops.Code(CodeInvalidRole).With("role", uint8(r)).Errorf("invalid role value")
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
