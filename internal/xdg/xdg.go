// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package xdg resolves XDG Base Directory paths for passgate.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "passgate"

// ConfigDir returns the XDG config directory for passgate.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the config file used when --config is not given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
