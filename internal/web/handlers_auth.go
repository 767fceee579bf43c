// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/pkg/errutil"
)

type successResponse struct {
	Success bool `json:"success"`
}

func (req registerRequest) registration() auth.Registration {
	return auth.Registration{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		FullName:   optional(req.FullName),
		Department: optional(req.Department),
		Position:   optional(req.Position),
	}
}

// optional maps a blank field to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// outcome labels an auth failure for the metrics.
func outcome(err error) string {
	switch errutil.Code(err) {
	case auth.CodeDuplicateUsername:
		return "duplicate"
	case auth.CodeInvalidCredentials:
		return "invalid_credentials"
	case auth.CodeAccountLocked:
		return "locked"
	case auth.CodeInvalidUsername, auth.CodeInvalidPassword, CodeRequestInvalid:
		return "invalid"
	default:
		return "error"
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, registerSchema, &req); err != nil {
		s.metrics.RecordRegistration(outcome(err))
		s.writeError(w, r, err)
		return
	}

	user, grant, err := s.auth.Register(r.Context(), req.registration(), s.sessionMeta(r))
	if err != nil {
		s.metrics.RecordRegistration(outcome(err))
		s.writeError(w, r, err)
		return
	}
	if err := s.setSessionCookie(w, grant); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RecordRegistration("success")
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, loginSchema, &req); err != nil {
		s.metrics.RecordLogin(outcome(err))
		s.writeError(w, r, err)
		return
	}

	user, grant, err := s.auth.Login(r.Context(), req.Username, req.Password, s.sessionMeta(r))
	if err != nil {
		s.metrics.RecordLogin(outcome(err))
		s.writeError(w, r, err)
		return
	}
	if err := s.setSessionCookie(w, grant); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.RecordLogin("success")
	writeJSON(w, http.StatusOK, user)
}

// handleLogout always succeeds for the client. A store failure is logged
// and the cookie is cleared regardless.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), s.cookies.Token(r)); err != nil {
		errutil.LogErrorContext(r.Context(), s.logger, "failed to destroy session", err)
	}
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgNotAuthenticated)
		return
	}
	n, err := s.sessions.DestroyAllForUser(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "all sessions revoked", "user_id", user.ID, "count", n)
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.CurrentUser(r.Context(), s.cookies.Token(r))
	if err != nil {
		if errutil.HasCode(err, auth.CodeUnauthenticated) {
			writeMessage(w, http.StatusUnauthorized, msgNotAuthenticated)
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.auth.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateRoleRequest
	if err := decodeBody(w, r, updateRoleSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.auth.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// setSessionCookie writes the cookie for a freshly issued session. The
// cookie expires with the session.
func (s *Server) setSessionCookie(w http.ResponseWriter, grant auth.Grant) error {
	return s.cookies.Set(w, grant.Token, grant.ExpiresAt)
}

// pathID parses the {id} URL parameter as a positive integer.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID(raw)
	}
	return id, nil
}
