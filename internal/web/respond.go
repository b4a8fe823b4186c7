// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/pkg/errutil"
)

// Response messages.
const (
	msgRegistered     = "User registered successfully"
	msgLoggedIn       = "User logged in successfully"
	msgPasswordReset  = "Password reset successfully"
	msgNotFound       = "Not found"
	msgInternal       = "Internal server error"
	msgBodyTooLarge   = "Request body too large"
	msgUnauthorized   = auth.MsgForbidden
	headerResetKey    = "X-Api-Key"
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json; charset=utf-8"
)

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

type registerResponse struct {
	Message      string     `json:"message"`
	Data         *auth.User `json:"data"`
	TokenDetails auth.Token `json:"tokenDetails"`
}

type userResponse struct {
	Message string     `json:"message"`
	Data    *auth.User `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect; nothing useful to do
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error code to an HTTP status. Unclassified errors are 500.
func statusFor(err error) int {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch auth.CodeOf(err) {
	case auth.CodeValidation, auth.CodeAlreadyExists, auth.CodeNotFound,
		auth.CodeInvalidCredentials, auth.CodeInvalidResetKey:
		return http.StatusBadRequest
	case auth.CodeForbidden:
		return http.StatusForbidden
	case auth.CodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {message}. Server errors get a generic message;
// their detail is logged when logger is non-nil.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusRequestEntityTooLarge:
		writeJSON(w, status, messageResponse{Message: msgBodyTooLarge})
	case status >= http.StatusInternalServerError:
		if logger != nil {
			errutil.LogErrorContext(r.Context(), logger, "request failed", err)
		}
		writeJSON(w, status, messageResponse{Message: msgInternal})
	default:
		writeJSON(w, status, messageResponse{Message: err.Error()})
	}
}
