// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	pending []uint

	upErr  error
	calls  []string
	steps  int
	forced int
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	if m.upErr != nil {
		return m.upErr
	}
	m.version = 2
	m.pending = nil
	return nil
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	m.version = 0
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, "force")
	m.forced = version
	m.version = uint(version)
	m.dirty = false
	return nil
}

func (m *fakeMigrator) PendingMigrations() ([]uint, error) { return m.pending, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	isolateConfig(t)
	t.Setenv("DATABASE_URL", "postgres://app:pw@localhost/passgate")

	var gotURL string
	cmd := newMigrateCmd(func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		assert.Equal(t, "postgres://app:pw@localhost/passgate", gotURL)
		assert.True(t, m.closed, "migrator must be closed")
	}
	return buf.String(), err
}

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1, 2}}
	out, err := runMigrate(t, m, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.Contains(t, out, "Current version: 000002_users_nonempty_checks")
}

func TestMigrate_UpSteps(t *testing.T) {
	m := &fakeMigrator{}
	_, err := runMigrate(t, m, "up", "--steps", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"steps"}, m.calls)
	assert.Equal(t, 1, m.steps)
}

func TestMigrate_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("syntax error at line 3")}
	_, err := runMigrate(t, m, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.True(t, m.closed)
}

func TestMigrate_DownRequiresConfirmation(t *testing.T) {
	m := &fakeMigrator{version: 2}
	_, err := runMigrate(t, m, "down")
	require.Error(t, err)
	assert.Empty(t, m.calls, "nothing runs without --yes")

	out, err := runMigrate(t, m, "down", "--yes")
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, m.calls)
	assert.Contains(t, out, "Current version: none")
}

func TestMigrate_DownSteps(t *testing.T) {
	m := &fakeMigrator{version: 2}
	_, err := runMigrate(t, m, "down", "--steps", "1")
	require.NoError(t, err)
	assert.Equal(t, -1, m.steps)
}

func TestMigrate_Status(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		m := &fakeMigrator{version: 1, pending: []uint{2}}
		out, err := runMigrate(t, m, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "Current version: 000001_create_users")
		assert.Contains(t, out, "Pending migrations (1):")
		assert.Contains(t, out, "000002_users_nonempty_checks")
	})

	t.Run("up to date", func(t *testing.T) {
		m := &fakeMigrator{version: 2}
		out, err := runMigrate(t, m, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "No pending migrations")
	})
}

func TestMigrate_VersionShowsDirty(t *testing.T) {
	m := &fakeMigrator{version: 1, dirty: true}
	out, err := runMigrate(t, m, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "000001_create_users (dirty)")
}

func TestMigrate_Force(t *testing.T) {
	m := &fakeMigrator{version: 2, dirty: true}
	out, err := runMigrate(t, m, "force", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.forced)
	assert.NotContains(t, out, "dirty")

	_, err = runMigrate(t, &fakeMigrator{}, "force", "one")
	require.Error(t, err)
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	isolateConfig(t)
	called := false
	cmd := newMigrateCmd(func(string) (Migrator, error) {
		called = true
		return &fakeMigrator{}, nil
	})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"up"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
	assert.False(t, called)
}
