// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/contact"
	"github.com/lrm2e/labsite/pkg/errutil"
)

// Error codes raised by this package.
const (
	CodeRequestInvalid = "REQUEST_INVALID"
	CodeRateLimited    = "RATE_LIMITED"
)

// Client-facing messages.
const (
	msgUnexpected         = "An unexpected error occurred"
	msgValidation         = "Validation error"
	msgUnauthorized       = "Unauthorized"
	msgForbidden          = "Forbidden"
	msgNotAuthenticated   = "Not authenticated"
	msgInvalidCredentials = "Invalid username or password"
)

// errorBody is the JSON shape of every error response. Success is only
// set on the contact routes, which have always carried it.
type errorBody struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message"`
	Errors  string `json:"errors,omitempty"`
}

// writeJSON encodes v with status. Encoding failures after the header is
// written cannot be reported to the client and are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // header already sent
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// errorResponse maps err to a status and body. The second return is false
// for errors the client must not see the details of.
func errorResponse(err error) (int, errorBody, bool) {
	switch errutil.Code(err) {
	case auth.CodeDuplicateUsername:
		return http.StatusBadRequest, errorBody{Message: "Username already exists"}, true
	case auth.CodeInvalidCredentials:
		return http.StatusUnauthorized, errorBody{Message: msgInvalidCredentials}, true
	case auth.CodeAccountLocked:
		return http.StatusLocked, errorBody{Message: "Account temporarily locked. Try again later."}, true
	case auth.CodeInvalidRole:
		return http.StatusBadRequest, errorBody{Message: "Invalid role"}, true
	case auth.CodeUserNotFound:
		return http.StatusNotFound, errorBody{Message: "User not found"}, true
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized, errorBody{Message: msgUnauthorized}, true
	case auth.CodeForbidden:
		return http.StatusForbidden, errorBody{Message: msgForbidden}, true
	case auth.CodeInvalidUsername, auth.CodeInvalidPassword, auth.CodeEmptyPassword, CodeRequestInvalid:
		return http.StatusBadRequest, errorBody{Message: msgValidation, Errors: err.Error()}, true
	case contact.CodeInvalid:
		return http.StatusBadRequest, errorBody{Success: ptr(false), Message: msgValidation, Errors: err.Error()}, true
	case contact.CodeNotFound:
		return http.StatusNotFound, errorBody{Success: ptr(false), Message: "Message not found"}, true
	case CodeRateLimited:
		return http.StatusTooManyRequests, errorBody{Message: "Too many attempts. Please slow down."}, true
	default:
		return http.StatusInternalServerError, errorBody{Message: msgUnexpected}, false
	}
}

// writeError writes the response for err. Errors without a known code are
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body, known := errorResponse(err)
	if !known {
		if logger == nil {
			logger = slog.Default()
		}
		errutil.LogErrorContext(r.Context(), logger, "request failed", err,
			"method", r.Method,
			"path", r.URL.Path)
	}
	writeJSON(w, status, body)
}

func ptr[T any](v T) *T {
	return &v
}

func errInvalidID(raw string) error {
	return oops.Code(CodeRequestInvalid).With("id", raw).Errorf("invalid id %q", raw)
}
