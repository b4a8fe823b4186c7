// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/xdg"
)

// serviceName identifies this binary in logs.
const serviceName = "passgate"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Passgate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passgate",
		Short: "Passgate - username/password authentication service",
		Long: `Passgate registers users, logs them in and resets their passwords
over a small JSON API guarded by JWT bearer tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/passgate/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}

// loadConfig resolves configuration for a subcommand. An explicit --config
// file must exist; the XDG default is optional.
func loadConfig(flags *pflag.FlagSet, flagKeys map[string]string) (*config.Config, error) {
	opts := config.LoadOptions{
		File:         configFile,
		FileRequired: configFile != "",
		Flags:        flags,
		FlagKeys:     flagKeys,
	}
	if opts.File == "" {
		opts.File = xdg.DefaultConfigFile()
	}
	return config.Load(opts)
}
