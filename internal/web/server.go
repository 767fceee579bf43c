// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package web serves the labsite JSON API and page shells.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/contact"
	"github.com/lrm2e/labsite/internal/guard"
	"github.com/lrm2e/labsite/internal/observability"
	"github.com/lrm2e/labsite/internal/research"
)

// Deps are the collaborators of a Server. Auth, Cookies, Contacts and
// Catalog are required.
type Deps struct {
	Auth     *auth.Service
	Cookies  *CookieCodec
	Guard    *guard.Guard
	Contacts *contact.Store
	Catalog  *research.Catalog

	// Limiter throttles login and registration. Nil disables throttling.
	Limiter *RateLimiter

	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger

	AllowedOrigins []string
}

// Server routes HTTP requests to the auth, admin, contact and research
// handlers.
type Server struct {
	auth     *auth.Service
	sessions *auth.SessionManager
	cookies  *CookieCodec
	guard    *guard.Guard
	contacts *contact.Store
	catalog  *research.Catalog
	limiter  *RateLimiter
	metrics  *observability.Metrics
	logger   *slog.Logger
	origins  []string

	handler http.Handler
}

// NewServer builds the router.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, oops.In("web").Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	case deps.Cookies == nil:
		return nil, oops.In("web").Code("WEB_INVALID_CONFIG").Errorf("cookie codec is required")
	case deps.Contacts == nil:
		return nil, oops.In("web").Code("WEB_INVALID_CONFIG").Errorf("contact store is required")
	case deps.Catalog == nil:
		return nil, oops.In("web").Code("WEB_INVALID_CONFIG").Errorf("research catalog is required")
	}

	s := &Server{
		auth:     deps.Auth,
		sessions: deps.Auth.Sessions(),
		cookies:  deps.Cookies,
		guard:    deps.Guard,
		contacts: deps.Contacts,
		catalog:  deps.Catalog,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		origins:  append([]string(nil), deps.AllowedOrigins...),
	}
	if s.guard == nil {
		s.guard = guard.NewDefault()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns an http.Server for addr with conservative timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.logger, s.metrics))
	r.Use(Recoverer(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticated := RequireAuthenticated(s.sessions, s.cookies)
	adminOnly := RequireRole(s.sessions, s.cookies, auth.RoleAdmin)
	staff := RequireRole(s.sessions, s.cookies, auth.RoleAdmin, auth.RoleResearcher)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(RateLimit(s.limiter, s.metrics))
			}
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})
		r.Post("/logout", s.handleLogout)
		r.Get("/user", s.handleCurrentUser)
		r.Get("/currentUser", s.handleCurrentUser)
		r.Get("/guard", s.handleGuard)

		r.With(authenticated).Post("/logout/all", s.handleLogoutAll)

		r.Post("/contact", s.handleContactSubmit)
		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/admin/users", s.handleListUsers)
			r.Patch("/admin/users/{id}", s.handleUpdateRole)
			r.Get("/contact", s.handleContactList)
			r.Delete("/contact/{id}", s.handleContactDelete)
		})

		r.Group(func(r chi.Router) {
			r.Use(staff)
			r.Get("/researcher/publications", s.handlePublications)
			r.Get("/researcher/experiments", s.handleExperiments)
			r.Get("/equipment", s.handleEquipment)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeMessage(w, http.StatusNotFound, "Not found")
		})
	})

	r.Get("/", s.handlePage)
	r.Get("/auth", s.handlePage)
	r.Get("/admin", s.handlePage)
	r.Get("/admin/*", s.handlePage)
	r.Get("/researcher", s.handlePage)
	r.Get("/researcher/*", s.handlePage)
	return r
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, s.logger, err)
}

// sessionMeta describes the client for a new session. The prior token is
// the one the client currently holds, if any.
func (s *Server) sessionMeta(r *http.Request) auth.SessionMeta {
	return auth.SessionMeta{
		PriorToken: s.cookies.Token(r),
		UserAgent:  r.UserAgent(),
		IPAddress:  clientIP(r),
	}
}
