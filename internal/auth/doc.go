// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package auth provides the Passgate authentication core.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the name fields and
// assigns a ULID. Direct struct initialization bypasses validation.
// Repository implementations receive pre-validated users.
//
// # Services
//
// Service coordinates the three flows:
//   - Register - create a user and issue a bearer token
//   - Login - check a password for the holder of that user's token
//   - ResetPassword - replace a password when the shared reset key matches
//
// Every failure carries an oops code (see errors.go). IsClientError separates
// request problems from server faults; anything unclassified is a server fault.
package auth
