// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/observability"
	"github.com/holomush/authcore/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the database pool.
	// Default: pgxpool.NewWithConfig followed by a ping
	PoolFactory func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error)

	// MigratorFactory creates a schema migrator from a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogOutput receives process logs.
	// Default: os.Stderr
	LogOutput io.Writer

	// MailOutput receives rendered password reset messages.
	// Default: os.Stdout
	MailOutput io.Writer
}

// Pool is the database handle used by the commands. *pgxpool.Pool
// satisfies it.
type Pool interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() prometheus.Registerer
	SetBuildInfo(version, commit string)
}

// withDefaults returns a copy of d with every nil field filled in.
func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = openPool
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.MailOutput == nil {
		out.MailOutput = os.Stdout
	}
	return &out
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
	}
	return pool, nil
}
