// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrm2e/labsite/internal/config"
	"github.com/lrm2e/labsite/pkg/errutil"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labsite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.SecretEnv, "")

	cfg, err := config.Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
	assert.True(t, cfg.UsesDefaultSecret())
	require.NoError(t, cfg.Validate())
}

func TestLoad_NilFlags(t *testing.T) {
	t.Setenv(config.SecretEnv, "")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":8080"
  allowed_origins: ["https://lab.example"]
log:
  level: debug
session:
  secret: from-file-secret-value
  ttl: 2h
auth:
  rate_limit:
    burst: 3
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		t.Setenv(config.SecretEnv, "")
		cfg, err := config.Load(path, newFlags(t))
		require.NoError(t, err)

		assert.Equal(t, ":8080", cfg.HTTP.Addr)
		assert.Equal(t, []string{"https://lab.example"}, cfg.HTTP.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
		assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
		assert.Equal(t, 3, cfg.Auth.RateLimit.Burst)
		assert.InDelta(t, 0.2, cfg.Auth.RateLimit.Rate, 1e-9)
		assert.Equal(t, "from-file-secret-value", cfg.Session.Secret)
	})

	t.Run("explicit flags override file", func(t *testing.T) {
		t.Setenv(config.SecretEnv, "")
		cfg, err := config.Load(path, newFlags(t, "--http.addr=:9999", "--session.ttl=30m"))
		require.NoError(t, err)

		assert.Equal(t, ":9999", cfg.HTTP.Addr)
		assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("environment overrides the secret", func(t *testing.T) {
		t.Setenv(config.SecretEnv, "from-env-secret-value")
		cfg, err := config.Load(path, newFlags(t, "--session.secret=from-flag-secret-value"))
		require.NoError(t, err)

		assert.Equal(t, "from-env-secret-value", cfg.Session.Secret)
		assert.False(t, cfg.UsesDefaultSecret())
	})
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := config.Load(writeFile(t, "http: [unclosed"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		key    string
	}{
		{"empty addr", func(c *config.Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"short secret", func(c *config.Config) { c.Session.Secret = "short" }, "session.secret"},
		{"empty cookie name", func(c *config.Config) { c.Session.CookieName = "" }, "session.cookie_name"},
		{"zero ttl", func(c *config.Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"negative sweep", func(c *config.Config) { c.Session.SweepInterval = -time.Second }, "session.sweep_interval"},
		{"zero hash timeout", func(c *config.Config) { c.Auth.HashTimeout = 0 }, "auth.hash_timeout"},
		{"zero burst", func(c *config.Config) { c.Auth.RateLimit.Burst = 0 }, "auth.rate_limit"},
		{"zero rate", func(c *config.Config) { c.Auth.RateLimit.Rate = 0 }, "auth.rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}

	t.Run("zero sweep interval disables sweeping", func(t *testing.T) {
		cfg := config.Default()
		cfg.Session.SweepInterval = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestRedacted(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Secret = "super-secret-value-123"

	r := cfg.Redacted()
	assert.Equal(t, "[REDACTED]", r.Session.Secret)
	assert.Equal(t, "super-secret-value-123", cfg.Session.Secret)

	r.HTTP.AllowedOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.HTTP.AllowedOrigins[0])
}
