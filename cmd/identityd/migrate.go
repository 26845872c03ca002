// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/identity/internal/store"
)

// newMigrateCmd creates the migrate command group.
func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the account schema",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL account schema migrations.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return deps.withMigrator(cmd, func(m Migrator) error {
					cmd.Println("Running migrations...")
					if err := m.Up(); err != nil {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
		newMigrateDownCmd(deps),
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied version and pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return deps.withMigrator(cmd, func(m Migrator) error {
					if err := printVersion(cmd, m); err != nil {
						return err
					}
					pending, err := m.PendingMigrations()
					if err != nil {
						return err
					}
					if len(pending) == 0 {
						cmd.Println("No pending migrations")
						return nil
					}
					cmd.Printf("Pending migrations (%d):\n", len(pending))
					for _, v := range pending {
						name, err := store.MigrationName(v)
						if err != nil {
							return err
						}
						cmd.Printf("  %s\n", name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it",
			Long: `Mark VERSION as applied without running any SQL. Use only to recover
a database left dirty by a failed migration.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return deps.withMigrator(cmd, func(m Migrator) error {
					if err := m.Force(version); err != nil {
						return err
					}
					return printVersion(cmd, m)
				})
			},
		},
	)

	return cmd
}

func newMigrateDownCmd(deps *Deps) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all accounts)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops the accounts table; pass --yes to confirm")
			}
			return deps.withMigrator(cmd, func(m Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm rollback")

	return cmd
}

// withMigrator opens a migrator for the configured database and closes it after fn.
func (d *Deps) withMigrator(cmd *cobra.Command, fn func(Migrator) error) (err error) {
	cfg, _, err := d.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database_url").
			Errorf("database_url is required for migrations")
	}

	m, err := d.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := fn(m); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", cmd.Name()).Wrap(err)
	}
	return nil
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	cmd.Printf("Schema version: %d%s\n", version, suffix)
	return nil
}

// parseForceVersion reads a leading integer; trailing characters are ignored.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}
