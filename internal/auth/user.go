// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the password policy's minimum length in characters.
const MinPasswordLength = 8

// User is a registered account.
type User struct {
	ID           ulid.ULID `json:"id"`
	FullName     string    `json:"fullName"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser creates a User with a fresh ID and timestamps.
// The username is stored as given; lookups are exact-match.
func NewUser(fullName, username, passwordHash string) (*User, error) {
	if fullName == "" {
		return nil, oops.Code(CodeValidation).Errorf("fullName cannot be empty")
	}
	if username == "" {
		return nil, oops.Code(CodeValidation).Errorf("username cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeValidation).Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	return &User{
		ID:           ulid.Make(),
		FullName:     fullName,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidatePassword checks a plaintext password against the password policy:
// at least MinPasswordLength characters with at least one ASCII letter and one digit.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return oops.Code(CodeValidation).
			With("min", MinPasswordLength).
			Errorf("Password must be at least %d characters long", MinPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case r < unicode.MaxASCII && unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return oops.Code(CodeValidation).Errorf("Password must contain at least 1 letter and 1 number")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByUsername retrieves a user by exact username.
	// Returns ErrNotFound if no user has the given username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create stores a new user.
	// Returns ErrDuplicateUsername if the username is already taken.
	Create(ctx context.Context, user *User) error

	// UpdatePasswordHash replaces the stored hash for username and returns the updated user.
	// Returns ErrNotFound if no user has the given username.
	UpdatePasswordHash(ctx context.Context, username, passwordHash string) (*User, error)
}
