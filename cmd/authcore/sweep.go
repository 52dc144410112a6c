// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newSweepCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired tokens and old history once",
		Long: `Run a single sweeper cycle: delete refresh records past their grace
period, expired reset tokens, and login attempts and security events older
than their retention.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, func(ctx context.Context, svc *service, _ *slog.Logger) error {
				if err := svc.sweeper.RunOnce(ctx); err != nil {
					return err
				}
				cmd.Println("Sweep completed")
				return nil
			})
		},
	}
}

// withService wires the service for a one-shot command and runs fn.
func withService(cmd *cobra.Command, deps *Deps, fn func(ctx context.Context, svc *service, logger *slog.Logger) error) error {
	deps = deps.withDefaults()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogging(cfg, deps.LogOutput)

	pool, err := deps.PoolFactory(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := newService(cfg, pool, prometheus.NewRegistry(), deps.MailOutput, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	return fn(ctx, svc, logger)
}
