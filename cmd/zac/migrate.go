// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back and inspect the embedded PostgreSQL migrations.`,
	}
	cmd.AddCommand(newMigrateUpCmd(deps))
	cmd.AddCommand(newMigrateDownCmd(deps))
	cmd.AddCommand(newMigrateVersionCmd(deps))
	cmd.AddCommand(newMigrateForceCmd(deps))
	return cmd
}

func newMigrateUpCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
}

func newMigrateDownCmd(deps *Deps) *cobra.Command {
	var (
		steps int
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations (default 1). --all rolls the
schema back to version 0, dropping every grant and access request.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("--steps must be at least 1")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-steps)
				}
				if err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateVersionCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"status"},
		Short:   "Show the applied version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				return printStatus(cmd, m)
			})
		},
	}
}

func newMigrateForceCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Record VERSION as the applied schema version without running any
migration. Use it to recover from a failed migration after repairing the
schema by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printStatus(cmd, m)
			})
		},
	}
}

// parseForceVersion parses a non-negative migration version.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("version", s).Wrapf(err, "version must be an integer")
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("version", s).Errorf("version must be non-negative, got %d", v)
	}
	return v, nil
}

// withMigrator opens a migrator on the configured database, runs fn and
// closes it.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	m, err := deps.withDefaults().MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATOR_OPEN_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	name := st.Name
	if name == "" {
		name = "(none)"
	}
	cmd.Printf("version: %d %s\n", st.Version, name)
	if st.Dirty {
		cmd.Println("dirty: true (repair the schema, then run 'zac migrate force')")
	}
	if len(st.Pending) == 0 {
		cmd.Println("pending: none")
		return nil
	}
	pending := make([]string, len(st.Pending))
	for i, v := range st.Pending {
		pending[i] = fmt.Sprint(v)
	}
	cmd.Printf("pending: %s\n", strings.Join(pending, ", "))
	return nil
}
