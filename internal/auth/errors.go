// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to errors returned by this package. The HTTP layer
// maps them to response statuses.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeAlreadyExists      = "AUTH_ALREADY_EXISTS"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeForbidden          = "AUTH_FORBIDDEN"
	CodeInvalidResetKey    = "AUTH_INVALID_RESET_KEY"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeInternal           = "AUTH_INTERNAL"
)

// Client-facing messages for the classified failures.
const (
	MsgAlreadyExists      = "User already exists, Please login!"
	MsgNotFound           = "User doesn't exist, try registering first or username is incorrect"
	MsgForbidden          = "Unauthorized access"
	MsgInvalidCredentials = "Incorrect password"
	MsgInvalidResetKey    = "Can't reset password resetKey is invalid!"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned by a UserRepository when the username is taken.
var ErrDuplicateUsername = errors.New("username already taken")

// CodeOf returns the oops error code carried by err, or "" when err carries none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// IsClientError reports whether err carries one of the codes that describe a
// problem with the request rather than with the server.
func IsClientError(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeAlreadyExists, CodeNotFound, CodeInvalidCredentials,
		CodeForbidden, CodeInvalidResetKey, CodeUnauthenticated:
		return true
	default:
		return false
	}
}
