// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package web serves the auth API over HTTP.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/passgate/passgate/internal/auth"
)

// Routes.
const (
	RouteRegister      = "POST /api/auth/register"
	RouteLogin         = "POST /api/auth/login"
	RouteResetPassword = "PATCH /api/auth/reset-password"
)

// DefaultMaxBodyBytes bounds request bodies when HandlerConfig leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// AuthFlows is the part of auth.Service the API calls.
type AuthFlows interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.User, auth.Token, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.User, error)
	ResetPassword(ctx context.Context, in auth.ResetInput) (*auth.User, error)
}

// HandlerConfig wires the API handler.
type HandlerConfig struct {
	Flows    AuthFlows
	Verifier auth.TokenVerifier
	// Recorder is optional.
	Recorder RequestRecorder
	// Logger defaults to slog.Default().
	Logger         *slog.Logger
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type handlers struct {
	flows    AuthFlows
	logger   *slog.Logger
	register *bodySchema
	login    *bodySchema
	reset    *bodySchema
}

// NewHandler builds the API handler.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if cfg.Flows == nil {
		return nil, oops.Errorf("auth flows are required")
	}
	if cfg.Verifier == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &handlers{flows: cfg.Flows, logger: cfg.Logger}
	var err error
	if h.register, err = compileSchema("register", &registerRequest{}); err != nil {
		return nil, err
	}
	if h.login, err = compileSchema("login", &loginRequest{}); err != nil {
		return nil, err
	}
	if h.reset, err = compileSchema("reset-password", &resetPasswordRequest{}); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteRegister, h.handleRegister)
	// The token is checked before the body, so a bad token wins over a bad body.
	mux.Handle(RouteLogin, RequireBearer(cfg.Verifier)(http.HandlerFunc(h.handleLogin)))
	mux.HandleFunc(RouteResetPassword, h.handleResetPassword)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
	})

	mws := []Middleware{
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "passgate.http") },
		CORS(cfg.AllowedOrigins),
		LimitBody(cfg.MaxBodyBytes),
	}
	if cfg.Recorder != nil {
		mws = append(mws, Instrument(cfg.Recorder))
	}
	return chain(mux, mws...), nil
}

func (h *handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[registerRequest](r, h.register)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, token, err := h.flows.Register(r.Context(), auth.RegisterInput{
		FullName: req.FullName,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, r, nil, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		Message:      msgRegistered,
		Data:         user,
		TokenDetails: token,
	})
}

func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[loginRequest](r, h.login)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	user, err := h.flows.Login(r.Context(), auth.LoginInput{
		Username: req.Username,
		Password: req.Password,
		Subject:  claims.Subject,
	})
	if err != nil {
		writeError(w, r, nil, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Message: msgLoggedIn, Data: user})
}

func (h *handlers) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[resetPasswordRequest](r, h.reset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	_, err = h.flows.ResetPassword(r.Context(), auth.ResetInput{
		Username:    req.Username,
		NewPassword: req.NewPassword,
		ResetKey:    r.Header.Get(headerResetKey),
	})
	if err != nil {
		writeError(w, r, nil, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgPasswordReset})
}
