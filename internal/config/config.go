// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

// Package config loads labsite settings from defaults, an optional YAML file,
// command-line flags and the environment, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// SecretEnv names the environment variable that overrides session.secret.
const SecretEnv = "LABSITE_SESSION_SECRET"

// InsecureDefaultSecret signs session cookies when no secret is configured.
// Serve warns about it and refuses it under --require-secret.
//
//nolint:gosec // G101: published development default, not a credential.
const InsecureDefaultSecret = "labsite-insecure-development-secret"

// MinSecretLength is the shortest accepted session secret.
const MinSecretLength = 16

// Config is the effective configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	Metrics MetricsConfig `koanf:"metrics" yaml:"metrics"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Session SessionConfig `koanf:"session" yaml:"session"`
	Auth    AuthConfig    `koanf:"auth" yaml:"auth"`
	Seed    SeedConfig    `koanf:"seed" yaml:"seed"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr" yaml:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// SessionConfig configures session cookies and their lifetime.
type SessionConfig struct {
	Secret        string        `koanf:"secret" yaml:"secret"`
	CookieName    string        `koanf:"cookie_name" yaml:"cookie_name"`
	SecureCookie  bool          `koanf:"secure_cookie" yaml:"secure_cookie"`
	TTL           time.Duration `koanf:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
}

// AuthConfig configures credential handling.
type AuthConfig struct {
	HashTimeout time.Duration   `koanf:"hash_timeout" yaml:"hash_timeout"`
	RateLimit   RateLimitConfig `koanf:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig is a per-client token bucket for login and registration.
// Rate is in tokens per second.
type RateLimitConfig struct {
	Burst int     `koanf:"burst" yaml:"burst"`
	Rate  float64 `koanf:"rate" yaml:"rate"`
}

// SeedConfig controls bootstrap accounts.
type SeedConfig struct {
	DemoAccounts bool `koanf:"demo_accounts" yaml:"demo_accounts"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":5000",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Session: SessionConfig{
			Secret:        InsecureDefaultSecret,
			CookieName:    "labsite_session",
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Auth: AuthConfig{
			HashTimeout: 5 * time.Second,
			RateLimit:   RateLimitConfig{Burst: 10, Rate: 0.2},
		},
	}
}

// RegisterFlags adds a flag for every config key to fs. Flag defaults
// come from Default, so an unset flag never overrides the file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http.addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("http.allowed_origins", d.HTTP.AllowedOrigins, "origins allowed by CORS")
	fs.String("metrics.addr", d.Metrics.Addr, "observability listen address (empty disables)")
	fs.String("log.format", d.Log.Format, "log format (json or text)")
	fs.String("log.level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("session.secret", d.Session.Secret, "session cookie signing secret (prefer "+SecretEnv+")")
	fs.String("session.cookie_name", d.Session.CookieName, "session cookie name")
	fs.Bool("session.secure_cookie", d.Session.SecureCookie, "mark the session cookie Secure")
	fs.Duration("session.ttl", d.Session.TTL, "session lifetime")
	fs.Duration("session.sweep_interval", d.Session.SweepInterval, "interval between expired session sweeps")
	fs.Duration("auth.hash_timeout", d.Auth.HashTimeout, "bound on a single password hash or verification")
	fs.Int("auth.rate_limit.burst", d.Auth.RateLimit.Burst, "login/register attempts allowed in a burst per client")
	fs.Float64("auth.rate_limit.rate", d.Auth.RateLimit.Rate, "login/register attempts refilled per second per client")
	fs.Bool("seed.demo_accounts", d.Seed.DemoAccounts, "create the demo admin and researcher accounts")
}

// Load builds the effective config. path may be empty. fs may be nil; when
// set, only the dotted config flags registered by RegisterFlags are read.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		// With k passed, unchanged flags only fill keys the file left unset.
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !strings.Contains(f.Name, ".") {
				return "", nil
			}
			return f.Name, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if secret := os.Getenv(SecretEnv); secret != "" {
		if err := k.Set("session.secret", secret); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", SecretEnv).Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// UsesDefaultSecret reports whether cookies would be signed with the
// published development secret.
func (c *Config) UsesDefaultSecret() bool {
	return c.Session.Secret == InsecureDefaultSecret
}

// Validate checks that the config values are usable.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if len(c.Session.Secret) < MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("key", "session.secret").
			Errorf("session.secret must be at least %d characters", MinSecretLength)
	}
	if c.Session.CookieName == "" {
		return oops.Code("CONFIG_INVALID").With("key", "session.cookie_name").Errorf("session.cookie_name is required")
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "session.ttl").Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval < 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "session.sweep_interval").
			Errorf("session.sweep_interval cannot be negative")
	}
	if c.Auth.HashTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth.hash_timeout").Errorf("auth.hash_timeout must be positive")
	}
	if c.Auth.RateLimit.Burst < 1 || c.Auth.RateLimit.Rate <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "auth.rate_limit").
			Errorf("auth.rate_limit needs burst >= 1 and rate > 0")
	}
	return nil
}

// Redacted returns a copy of c safe to print.
func (c Config) Redacted() Config {
	if c.Session.Secret != "" {
		c.Session.Secret = "[REDACTED]"
	}
	c.HTTP.AllowedOrigins = append([]string(nil), c.HTTP.AllowedOrigins...)
	return c
}
