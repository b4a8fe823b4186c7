// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/store"
)

// Migrator wraps the store.Migrator methods the migrate commands use.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// MigratorFactory opens a Migrator for a database URL.
type MigratorFactory func(databaseURL string) (Migrator, error)

func defaultMigratorFactory(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(defaultMigratorFactory)
}

func newMigrateCmd(factory MigratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back and inspect the users schema migrations against the
database named by DATABASE_URL or database.url in the config file.`,
	}

	cmd.AddCommand(newMigrateUpCmd(factory))
	cmd.AddCommand(newMigrateDownCmd(factory))
	cmd.AddCommand(newMigrateStatusCmd(factory))
	cmd.AddCommand(newMigrateVersionCmd(factory))
	cmd.AddCommand(newMigrateForceCmd(factory))
	return cmd
}

// withMigrator resolves the database URL, opens a migrator and runs fn with it.
func withMigrator(factory MigratorFactory, fn func(Migrator) error) error {
	cfg, err := loadConfig(nil, nil)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database url is required (set DATABASE_URL)")
	}

	migrator, err := factory(cfg.Database.URL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	return fn(migrator)
}

func newMigrateUpCmd(factory MigratorFactory) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(factory, func(m Migrator) error {
				if steps > 0 {
					if err := m.Steps(steps); err != nil {
						return err
					}
				} else if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "apply at most this many migrations (0 = all)")
	return cmd
}

func newMigrateDownCmd(factory MigratorFactory) *cobra.Command {
	var (
		steps int
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back migrations. Without --steps every migration is rolled back,
which drops the users table and all accounts; --yes is required for that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 && !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("rolling back every migration deletes all users; pass --yes to confirm")
			}
			return withMigrator(factory, func(m Migrator) error {
				if steps > 0 {
					if err := m.Steps(-steps); err != nil {
						return err
					}
				} else if err := m.Down(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "roll back this many migrations (0 = all)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm rolling back every migration")
	return cmd
}

func newMigrateVersionCmd(factory MigratorFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(factory, func(m Migrator) error {
				return printVersion(cmd, m)
			})
		},
	}
}

func newMigrateStatusCmd(factory MigratorFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(factory, func(m Migrator) error {
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
	}
}

func newMigrateForceCmd(factory MigratorFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the migration version without running migrations",
		Long: `Set the recorded migration version and clear the dirty flag. Use this
after repairing a migration that failed partway.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("arg", args[0]).Errorf("version must be an integer")
			}
			return withMigrator(factory, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		cmd.Println("Current version: none")
		return nil
	}

	label := strconv.FormatUint(uint64(version), 10)
	if name, err := store.MigrationName(version); err == nil && name != "" {
		label = name
	}
	if dirty {
		label += " (dirty)"
	}
	cmd.Printf("Current version: %s\n", label)
	return nil
}
