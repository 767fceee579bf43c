// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lrm2e/labsite/internal/auth"
	"github.com/lrm2e/labsite/internal/auth/memory"
	"github.com/lrm2e/labsite/internal/config"
	"github.com/lrm2e/labsite/internal/contact"
	"github.com/lrm2e/labsite/internal/logging"
	"github.com/lrm2e/labsite/internal/observability"
	"github.com/lrm2e/labsite/internal/research"
	"github.com/lrm2e/labsite/internal/web"
)

const shutdownTimeout = 5 * time.Second

// demoAccounts are created when seed.demo_accounts is set.
var demoAccounts = []auth.SeedAccount{
	{Registration: auth.Registration{Username: "admin", Password: "admin123"}, Role: auth.RoleAdmin},
	{Registration: auth.Registration{Username: "researcher", Password: "researcher123"}, Role: auth.RoleResearcher},
}

// serveConfig holds flags that only the serve command reads.
type serveConfig struct {
	requireSecret bool
}

// serveHooks lets tests observe a running server.
type serveHooks struct {
	// ready, when set, receives the bound API and observability addresses.
	ready func(apiAddr, metricsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the labsite API server",
		Long: `Start the API server and the observability listener. The process
shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, cfg, serveHooks{})
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&cfg.requireSecret, "require-secret", false,
		"refuse to start with the built-in session secret")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts *serveConfig, hooks serveHooks) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("labsite", version, cfg.Log.Format, level, cmd.ErrOrStderr())

	if cfg.UsesDefaultSecret() {
		if opts.requireSecret {
			return oops.Code("CONFIG_INSECURE_SECRET").
				Errorf("refusing to start with the built-in session secret; set %s", config.SecretEnv)
		}
		logger.Warn("session cookies are signed with the built-in development secret",
			"env", config.SecretEnv)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	users := memory.NewUserStore()
	sessions, err := auth.NewSessionManager(memory.NewSessionStore(), users,
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithSessionLogger(logger),
	)
	if err != nil {
		return err
	}

	svc, err := auth.NewAuthService(users, sessions, auth.NewArgon2idHasher(),
		auth.WithLogger(logger),
		auth.WithHashTimeout(cfg.Auth.HashTimeout),
	)
	if err != nil {
		return err
	}

	if cfg.Seed.DemoAccounts {
		if err := svc.Seed(ctx, demoAccounts); err != nil {
			return err
		}
		logger.Warn("demo accounts enabled", "usernames", []string{"admin", "researcher"})
	}

	var ready atomic.Bool

	var obsServer *observability.Server
	var metrics *observability.Metrics
	var registerer prometheus.Registerer
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, ready.Load, logger)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return fmt.Errorf("failed to start observability server: %w", startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
		registerer = obsServer.Registerer()
	}
	defer func() {
		if obsServer == nil {
			return
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}()

	limiter := web.NewRateLimiter(web.RateLimiterConfig{
		Burst:      cfg.Auth.RateLimit.Burst,
		Rate:       cfg.Auth.RateLimit.Rate,
		Registerer: registerer,
	})
	defer limiter.Close()

	cookies, err := web.NewCookieCodec(cfg.Session.CookieName, []byte(cfg.Session.Secret),
		web.WithSecureCookie(cfg.Session.SecureCookie))
	if err != nil {
		return err
	}

	api, err := web.NewServer(web.Deps{
		Auth:           svc,
		Cookies:        cookies,
		Contacts:       contact.NewStore(),
		Catalog:        research.NewCatalog(),
		Limiter:        limiter,
		Metrics:        metrics,
		Logger:         logger,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := api.HTTPServer(cfg.HTTP.Addr)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		sessions.RunSweeper(ctx, cfg.Session.SweepInterval)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	apiAddr := listener.Addr().String()
	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Printf("labsite listening on %s\n", apiAddr)
	logger.Info("labsite ready", "addr", apiAddr, "metrics_addr", metricsAddr, "version", version)
	if hooks.ready != nil {
		hooks.ready(apiAddr, metricsAddr)
	}

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case serveErr = <-errChan:
		logger.Error("API server error, shutting down", "error", serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping API server", "error", err)
	}
	sweeper.Wait()

	logger.Info("shutdown complete")
	if serveErr != nil {
		return fmt.Errorf("API server error: %w", serveErr)
	}
	return nil
}

// monitorServerErrors cancels ctx when errCh reports an error. It returns
// when errCh is closed or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
