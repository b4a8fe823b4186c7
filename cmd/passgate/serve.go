// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/logging"
	"github.com/passgate/passgate/internal/web"
	"github.com/passgate/passgate/pkg/errutil"
)

// serveFlagKeys maps serve flags to config keys.
var serveFlagKeys = map[string]string{
	"host":         "http.host",
	"port":         "http.port",
	"store":        "store",
	"auto-migrate": "database.auto_migrate",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API serving register, login and reset-password, plus
an optional observability listener for metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), serveFlagKeys)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().String("host", "", "API listen host (empty = all interfaces)")
	cmd.Flags().Int("port", 3000, "API listen port (env PORT)")
	cmd.Flags().String("store", config.StorePostgres, "user store: postgres or memory")
	cmd.Flags().Bool("auto-migrate", false, "apply pending database migrations before serving")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "json", "log format (json or text)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// runServeWithDeps runs the server until ctx is cancelled or a signal arrives.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})

	logger.Info("starting passgate", "config", *cfg)

	if cfg.Store == config.StorePostgres && cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	users, err := deps.UserStoreFactory(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open user store").With("store", cfg.Store).Wrap(err)
	}
	if users.Close != nil {
		defer users.Close()
	}
	logger.Info("user store ready", "store", cfg.Store)

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash.Params())
	if err != nil {
		return err
	}
	tokens, err := auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serviceOpts := []auth.ServiceOption{
		auth.WithResetKeySource(cfg.ResetKeySource()),
		auth.WithLogger(logger),
	}
	handlerCfg := web.HandlerConfig{
		Verifier:       tokens,
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, users.Ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")

		if metrics := obsServer.Metrics(); metrics != nil {
			serviceOpts = append(serviceOpts, auth.WithFlowRecorder(metrics))
			handlerCfg.Recorder = metrics
		}
	}

	svc, err := auth.NewService(users.Users, hasher, tokens, serviceOpts...)
	if err != nil {
		stopObservability(obsServer, cfg)
		return err
	}
	handlerCfg.Flows = svc

	handler, err := web.NewHandler(handlerCfg)
	if err != nil {
		stopObservability(obsServer, cfg)
		return err
	}

	api := web.NewServer(web.ServerConfig{
		Addr:         cfg.HTTP.Addr(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, handler)
	apiErrCh, err := api.Start()
	if err != nil {
		stopObservability(obsServer, cfg)
		return oops.With("operation", "start api server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	cmd.Println("Passgate listening on " + api.Addr())
	deps.OnReady(api.Addr())

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "error stopping api server", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

func autoMigrate(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	slog.Info("database migrations applied")
	return nil
}

func stopObservability(obsServer ObservabilityServer, cfg *config.Config) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
// It returns once the channel yields or ctx is done.
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
