// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/store"
)

func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, inspect and repair the authcore schema migrations.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if all {
					cmd.Println("Rolling back all migrations...")
					return m.Down()
				}
				cmd.Println("Rolling back one migration...")
				return m.Steps(-1)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply (N > 0) or roll back (N < 0) N migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				return m.Steps(n)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "status",
		Aliases: []string{"version"},
		Short:   "Show the current schema version",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use this only
after repairing a migration that failed part way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator runs fn against a migrator for the configured database.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	return fn(m)
}

// autoMigrate applies pending migrations before the service starts.
func autoMigrate(databaseURL string, factory func(string) (Migrator, error), logger *slog.Logger) error {
	m, err := factory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	st, err := m.Status()
	if err != nil {
		return err
	}
	logger.Info("schema up to date", "version", st.Version, "name", st.Name)
	return nil
}

// parseVersionArg parses a migration version or step count.
func parseVersionArg(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").
			With("input", s).
			Errorf("invalid version %q: must be an integer", s)
	}
	return v, nil
}

func printStatus(cmd *cobra.Command, st store.Status) {
	if st.Version == 0 {
		cmd.Println("version: none")
	} else {
		cmd.Printf("version: %d (%s)\n", st.Version, st.Name)
	}
	cmd.Printf("dirty:   %t\n", st.Dirty)
	cmd.Printf("applied: %s\n", joinVersions(st.Applied))
	cmd.Printf("pending: %s\n", joinVersions(st.Pending))
}

func joinVersions(vs []uint) string {
	if len(vs) == 0 {
		return "none"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
