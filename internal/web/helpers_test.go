// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/auth/memory"
	"github.com/lrm2e/labsite/internal/contact"
	"github.com/lrm2e/labsite/internal/observability"
	"github.com/lrm2e/labsite/internal/research"
	"github.com/lrm2e/labsite/internal/web"
)

const testSecret = "web-test-secret-0123456789"

// plainHasher keeps handler tests off argon2. Unknown formats, including
// the service's dummy hash, simply fail to match.
type plainHasher struct{}

const plainPrefix = "plain$"

func (plainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return plainPrefix + password, nil
}

func (plainHasher) Verify(password, hash string) (bool, error) {
	if !strings.HasPrefix(hash, plainPrefix) {
		return false, nil
	}
	return hash == plainPrefix+password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

// lockedBuffer is written by server goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type env struct {
	srv      *httptest.Server
	svc      *auth.Service
	users    *memory.UserStore
	sessions *memory.SessionStore
	contacts *contact.Store
	catalog  *research.Catalog
	cookies  *web.CookieCodec
	metrics  *observability.Metrics
	limiter  *web.RateLimiter
	logs     *lockedBuffer
}

type envOption func(*web.RateLimiterConfig)

// withStrictLimit allows burst attempts with no meaningful refill.
func withStrictLimit(burst int) envOption {
	return func(c *web.RateLimiterConfig) {
		c.Burst = burst
		c.Rate = 0.001
	}
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	logs := &lockedBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	users := memory.NewUserStore()
	store := memory.NewSessionStore()
	sessions, err := auth.NewSessionManager(store, users, auth.WithSessionLogger(logger))
	require.NoError(t, err)
	svc, err := auth.NewAuthService(users, sessions, plainHasher{}, auth.WithLogger(logger))
	require.NoError(t, err)

	cookies, err := web.NewCookieCodec("labsite_session", []byte(testSecret))
	require.NoError(t, err)

	rlCfg := web.RateLimiterConfig{Burst: 1000, Rate: 100}
	for _, opt := range opts {
		opt(&rlCfg)
	}
	limiter := web.NewRateLimiter(rlCfg)
	t.Cleanup(limiter.Close)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e := &env{
		svc:      svc,
		users:    users,
		sessions: store,
		contacts: contact.NewStore(),
		catalog:  research.NewCatalog(),
		cookies:  cookies,
		metrics:  metrics,
		limiter:  limiter,
		logs:     logs,
	}

	server, err := web.NewServer(web.Deps{
		Auth:           svc,
		Cookies:        cookies,
		Contacts:       e.contacts,
		Catalog:        e.catalog,
		Limiter:        limiter,
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	require.NoError(t, err)

	e.srv = httptest.NewServer(server.Handler())
	t.Cleanup(e.srv.Close)
	return e
}

// client returns a browser-like client with its own cookie jar. Redirects
// are returned to the caller instead of followed.
func (e *env) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// do sends body as JSON and returns the response with its body read.
func (e *env) do(t *testing.T, c *http.Client, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeObject(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return out
}

func decodeArray(t *testing.T, data []byte) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal(data, &out), "body: %s", data)
	return out
}

// seed creates an account with an explicit role.
func (e *env) seed(t *testing.T, username, password string, role auth.Role) {
	t.Helper()
	require.NoError(t, e.svc.Seed(context.Background(), []auth.SeedAccount{{
		Registration: auth.Registration{Username: username, Email: username + "@lab.example", Password: password},
		Role:         role,
	}}))
}

// loginAs returns a client holding a session for username.
func (e *env) loginAs(t *testing.T, username, password string) *http.Client {
	t.Helper()
	c := e.client(t)
	resp, body := e.do(t, c, http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login %s: %s", username, body)
	return c
}

// sessionCookie returns the session cookie from resp.
func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "labsite_session" {
			return c
		}
	}
	require.Fail(t, "response sets no session cookie")
	return nil
}

// getWithCookie sends a GET outside any jar with value as the session cookie.
func (e *env) getWithCookie(t *testing.T, path, value string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "labsite_session", Value: value})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
