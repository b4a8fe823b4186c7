// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/pkg/errutil"
)

func TestNewUser(t *testing.T) {
	t.Run("assigns id and timestamps", func(t *testing.T) {
		u, err := auth.NewUser("Alice Liddell", "alice", "$argon2id$stub")
		require.NoError(t, err)
		assert.False(t, u.ID.IsZero())
		assert.Equal(t, "Alice Liddell", u.FullName)
		assert.Equal(t, "alice", u.Username)
		assert.False(t, u.CreatedAt.IsZero())
		assert.Equal(t, u.CreatedAt, u.UpdatedAt)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a, err := auth.NewUser("A", "a", "h")
		require.NoError(t, err)
		b, err := auth.NewUser("B", "b", "h")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	tests := []struct {
		name     string
		fullName string
		username string
		hash     string
	}{
		{name: "empty full name", username: "alice", hash: "h"},
		{name: "empty username", fullName: "Alice", hash: "h"},
		{name: "empty hash", fullName: "Alice", username: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := auth.NewUser(tt.fullName, tt.username, tt.hash)
			require.Error(t, err)
			assert.Nil(t, u)
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
		})
	}
}

func TestUser_JSONOmitsPasswordHash(t *testing.T) {
	u, err := auth.NewUser("Alice", "alice", "$argon2id$secret")
	require.NoError(t, err)

	data, err := json.Marshal(u)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, u.ID.String(), fields["id"])
	assert.Equal(t, "Alice", fields["fullName"])
	assert.Equal(t, "alice", fields["username"])
	assert.Contains(t, fields, "createdAt")
	assert.Contains(t, fields, "updatedAt")
	assert.NotContains(t, string(data), "secret")
	assert.Len(t, fields, 5)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{name: "valid", password: "Password1"},
		{name: "exactly eight", password: "abcdefg1"},
		{name: "too short", password: "abc1", wantMsg: "Password must be at least 8 characters long"},
		{name: "letters only", password: "abcdefghij", wantMsg: "Password must contain at least 1 letter and 1 number"},
		{name: "digits only", password: "1234567890", wantMsg: "Password must contain at least 1 letter and 1 number"},
		{name: "non-ascii letters do not count", password: "éééééééé1", wantMsg: "Password must contain at least 1 letter and 1 number"},
		{name: "multibyte counted as characters", password: "ab1ééééé"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidatePassword(tt.password)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, err.Error())
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
		})
	}
}
