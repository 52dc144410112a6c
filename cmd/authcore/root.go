// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/logging"
)

// defaultConfigFile is read from the working directory when --config is
// not given.
const defaultConfigFile = "authcore.yaml"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authcore CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authcore",
		Short: "authcore - credential and session lifecycle service",
		Long: `authcore manages accounts, password credentials, access and refresh
tokens, lockouts and password resets on top of PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default ./"+defaultConfigFile+" if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(newSweepCmd(deps))
	cmd.AddCommand(newRevokeCmd(deps))
	cmd.AddCommand(newSessionsCmd(deps))

	return cmd
}

// loadConfig reads the layered configuration, honouring flags set on cmd
// or any of its parents.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" && config.Exists(defaultConfigFile) {
		path = defaultConfigFile
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the process logger. A nil w writes to stderr.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := logging.Setup("authcore", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), w)
	slog.SetDefault(logger)
	return logger
}
