// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
)

func runHashPassword(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	isolateConfig(t)
	// Keep the test fast.
	t.Setenv("PASSGATE_HASH__MEMORY_KIB", "64")
	t.Setenv("PASSGATE_HASH__TIME", "1")
	t.Setenv("PASSGATE_HASH__THREADS", "1")

	cmd := NewHashPasswordCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("from argument", func(t *testing.T) {
		hash, err := runHashPassword(t, "", "secret123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"), hash)

		ok, err := hasher.Verify("secret123", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("from stdin", func(t *testing.T) {
		hash, err := runHashPassword(t, "secret123\r\nignored\n")
		require.NoError(t, err)

		ok, err := hasher.Verify("secret123", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("empty stdin", func(t *testing.T) {
		_, err := runHashPassword(t, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no password given")
	})

	t.Run("policy applies", func(t *testing.T) {
		_, err := runHashPassword(t, "", "short")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("policy can be skipped", func(t *testing.T) {
		hash, err := runHashPassword(t, "", "--skip-policy", "short")
		require.NoError(t, err)
		ok, err := hasher.Verify("short", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
