// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package guard decides how page navigation responds to the viewer's
// authentication state. It mirrors the server-side role checks for UX only;
// every API route behind a guarded page enforces its own access control.
package guard

import (
	"path"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
)

// Decision is the outcome of guarding a page.
type Decision uint8

// Decisions.
const (
	// Render shows the page.
	Render Decision = iota
	// Pending shows a neutral indicator while the session is being resolved.
	Pending
	// RedirectLogin sends an anonymous viewer to the login view.
	RedirectLogin
	// RedirectHome sends a viewer whose role is not allowed to the home view.
	RedirectHome
)

// Redirect targets.
const (
	LoginPath = "/auth"
	HomePath  = "/"
)

// String returns the wire name of the decision.
func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Location returns the redirect target, or "" when the decision does not redirect.
func (d Decision) Location() string {
	switch d {
	case RedirectLogin:
		return LoginPath
	case RedirectHome:
		return HomePath
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// State is the viewer's authentication state as the page sees it.
// A nil User with Loading false is an anonymous viewer.
type State struct {
	Loading bool
	User    *auth.User
}

// Rule grants a page path pattern to a set of roles. Patterns use glob
// syntax with '/' as the separator, so "*" stays within one segment and
// "**" spans segments.
type Rule struct {
	Pattern string
	Roles   []auth.Role
}

// DefaultRules returns the protected pages of the site.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/admin", Roles: []auth.Role{auth.RoleAdmin}},
		{Pattern: "/admin/**", Roles: []auth.Role{auth.RoleAdmin}},
		{Pattern: "/researcher", Roles: []auth.Role{auth.RoleAdmin, auth.RoleResearcher}},
		{Pattern: "/researcher/**", Roles: []auth.Role{auth.RoleAdmin, auth.RoleResearcher}},
	}
}

type compiledRule struct {
	pattern string
	glob    glob.Glob
	roles   []auth.Role
}

// Guard evaluates page paths against a fixed rule table. It is immutable
// after construction and safe for concurrent use.
type Guard struct {
	rules []compiledRule
}

// New compiles rules. The first matching rule wins.
func New(rules []Rule) (*Guard, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if len(r.Roles) == 0 {
			return nil, oops.In("guard").
				Code("GUARD_INVALID_RULE").
				With("pattern", r.Pattern).
				Errorf("rule grants no roles")
		}
		for _, role := range r.Roles {
			if !role.Valid() {
				return nil, oops.In("guard").
					Code("GUARD_INVALID_RULE").
					With("pattern", r.Pattern).
					Errorf("rule grants an invalid role")
			}
		}
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, oops.In("guard").
				Code("GUARD_INVALID_RULE").
				With("pattern", r.Pattern).
				Wrap(err)
		}
		compiled = append(compiled, compiledRule{
			pattern: r.Pattern,
			glob:    g,
			roles:   append([]auth.Role(nil), r.Roles...),
		})
	}
	return &Guard{rules: compiled}, nil
}

// NewDefault returns a Guard over DefaultRules.
//
// Panics if the default patterns fail to compile (programming error).
func NewDefault() *Guard {
	g, err := New(DefaultRules())
	if err != nil {
		panic("invalid default guard rule: " + err.Error())
	}
	return g
}

// AllowedRoles returns the roles allowed to view p and whether p is
// protected at all.
func (g *Guard) AllowedRoles(p string) ([]auth.Role, bool) {
	p = normalize(p)
	for _, r := range g.rules {
		if r.glob.Match(p) {
			return append([]auth.Role(nil), r.roles...), true
		}
	}
	return nil, false
}

// Decide returns how the page at p responds to state. Unprotected pages
// always render.
func (g *Guard) Decide(p string, state State) Decision {
	roles, protected := g.AllowedRoles(p)
	switch {
	case !protected:
		return Render
	case state.Loading:
		return Pending
	case state.User == nil:
		return RedirectLogin
	case !state.User.Role.In(roles...):
		return RedirectHome
	default:
		return Render
	}
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
