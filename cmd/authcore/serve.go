// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authcore process",
		Long: `Connect to PostgreSQL, optionally apply pending migrations, start the
expired-row sweeper and the metrics/health endpoint, and run until
interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}
}

// runServeWithDeps runs the service until a signal arrives or ctx is
// cancelled. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogging(cfg, deps.LogOutput)

	logger.Info("starting authcore",
		"version", version,
		"auto_migrate", cfg.Database.AutoMigrate,
		"metrics_addr", cfg.Metrics.Addr,
	)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var reg prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, pool.Ping, logger)
		obsServer.SetBuildInfo(version, commit)
		reg = obsServer.Registry()
	}

	svc, err := newService(cfg, pool, reg, deps.MailOutput, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
	}

	svc.sweeper.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("authcore started")
	logger.Info("authcore ready")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	svc.sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error. It
// exits when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
