// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package memory provides an in-process auth.UserRepository for local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/passgate/passgate/internal/auth"
)

// UserRepository is an in-memory auth.UserRepository. Users are copied on the
// way in and out so callers never share state with the store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]auth.User
}

// NewUserRepository creates an empty in-memory repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]auth.User),
	}
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	return &u, nil
}

// Create stores a new user. The check and insert happen under one lock, so
// concurrent registrations of the same username yield exactly one success.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return oops.Code("USER_DUPLICATE").With("username", user.Username).Wrap(auth.ErrDuplicateUsername)
	}
	r.users[user.Username] = *user
	return nil
}

// UpdatePasswordHash replaces the stored hash and bumps UpdatedAt.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, username, passwordHash string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	r.users[username] = u
	return &u, nil
}
