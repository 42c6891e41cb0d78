// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/zaakcentrum/zac/internal/config"
	"github.com/zaakcentrum/zac/internal/logging"
	"github.com/zaakcentrum/zac/internal/xdg"
)

const serviceName = "zac"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zac",
		Short: "ZAC - authorization for case management",
		Long: `ZAC decides who may see and change cases and documents. It evaluates
blueprint and atomic grants, manages authorization profiles and runs the
access request workflow on top of PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: $XDG_CONFIG_HOME/zac/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewSeedCmd(deps))
	cmd.AddCommand(NewCheckCmd(deps))
	cmd.AddCommand(NewPermissionsCmd())

	return cmd
}

// loadConfig reads the configuration named by --config, or the default
// config file when the flag is empty, and overlays the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, oops.Code(config.CodeInvalid).Wrap(err)
	}
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg *config.Config, cmd *cobra.Command) (*slog.Logger, error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, oops.Code(config.CodeInvalid).With("key", "log.level").Wrap(err)
	}
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	}), nil
}
