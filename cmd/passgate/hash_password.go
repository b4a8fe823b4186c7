// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/passgate/passgate/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password [PASSWORD]",
		Short: "Print an argon2id hash for a password",
		Long: `Hash a password with the configured argon2id parameters and print it.
The password is read from the first line of stdin when not given as an
argument, which keeps it out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, args)
			if err != nil {
				return err
			}
			if !skipPolicy {
				if err := auth.ValidatePassword(password); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(nil, nil)
			if err != nil {
				return err
			}
			hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hash.Params())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash passwords that fail the registration policy")
	return cmd
}

func readPassword(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
		}
		return "", oops.Code(auth.CodeValidation).Errorf("no password given")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return "", oops.Code(auth.CodeValidation).Errorf("no password given")
	}
	return password, nil
}
