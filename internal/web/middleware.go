// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/logging"
	"github.com/lrm2e/labsite/internal/observability"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Request-ID"

// SessionResolver resolves a plaintext session token to its user.
// *auth.SessionManager implements it.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*auth.User, *auth.Session, error)
}

type userContextKey struct{}

// UserFromContext returns the user stored by RequireAuthenticated.
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*auth.User)
	return u, ok && u != nil
}

func withUser(ctx context.Context, u *auth.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// RequireAuthenticated rejects requests without a live session with 401.
// The session is resolved on every request.
func RequireAuthenticated(sessions SessionResolver, cookies *CookieCodec) func(http.Handler) http.Handler {
	return requireRoles(sessions, cookies, nil)
}

// RequireRole rejects requests without a live session with 401 and
// requests whose user holds none of roles with 403.
func RequireRole(sessions SessionResolver, cookies *CookieCodec, roles ...auth.Role) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		panic("web: RequireRole needs at least one role")
	}
	return requireRoles(sessions, cookies, append([]auth.Role(nil), roles...))
}

func requireRoles(sessions SessionResolver, cookies *CookieCodec, roles []auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _, err := sessions.Resolve(r.Context(), cookies.Token(r))
			if err != nil {
				writeError(w, r, nil, err)
				return
			}
			if roles != nil && !user.Role.In(roles...) {
				writeError(w, r, nil, oops.Code(auth.CodeForbidden).
					With("user_id", user.ID).
					Errorf("role %s not permitted", user.Role))
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// RequestLogger tags each request with a ULID request id, logs one line
// when it completes and feeds the request metrics. metrics may be nil.
func RequestLogger(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := ulid.Make().String()
			w.Header().Set(RequestIDHeader, id)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routePattern(r)
			metrics.RecordRequest(route, r.Method, status, elapsed)

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds())
		})
	}
}

// Recoverer turns a handler panic into a logged 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.ErrorContext(r.Context(), "handler panicked",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec)
				writeMessage(w, http.StatusInternalServerError, msgUnexpected)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects requests from clients that have used up their bucket.
func RateLimit(limiter *RateLimiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := limiter.Allow(clientIP(r))
			if !allowed {
				metrics.RecordRateLimited(routePattern(r))
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
				writeError(w, r, nil, oops.Code(CodeRateLimited).Errorf("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}
