// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/passgate/passgate/pkg/errutil"
)

var tracer = otel.Tracer("passgate/auth")

// Flow names reported to a FlowRecorder.
const (
	FlowRegister      = "register"
	FlowLogin         = "login"
	FlowResetPassword = "reset_password"
)

// OutcomeSuccess is the outcome reported for a flow that completed.
// Failed flows report their error code.
const OutcomeSuccess = "success"

// FlowRecorder receives one observation per completed flow.
type FlowRecorder interface {
	RecordFlow(flow, outcome string)
}

// RegisterInput is the validated payload for Register.
type RegisterInput struct {
	FullName string
	Username string
	Password string
}

// LoginInput is the validated payload for Login. Subject is the subject of
// the bearer token presented with the request.
type LoginInput struct {
	Username string
	Password string
	Subject  string
}

// ResetInput is the validated payload for ResetPassword.
type ResetInput struct {
	Username    string
	NewPassword string
	ResetKey    string
}

// Service implements the register, login and reset-password flows.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	resetKey func() string
	logger   *slog.Logger
	recorder FlowRecorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithResetKeySource sets the function consulted for the reset key on every
// reset request. An empty key rejects all resets.
func WithResetKeySource(source func() string) ServiceOption {
	return func(s *Service) {
		s.resetKey = source
	}
}

// WithLogger sets the logger used for flow events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFlowRecorder sets the recorder notified after each flow.
func WithFlowRecorder(recorder FlowRecorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}

	s := &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		resetKey: func() string { return "" },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resetKey == nil {
		return nil, oops.Errorf("reset key source must not be nil")
	}
	return s, nil
}

// Register creates a user and issues a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *User, token Token, err error) {
	ctx, end := s.startFlow(ctx, FlowRegister, in.Username)
	defer func() { end(err) }()

	if in.Username == "" || in.Password == "" {
		return nil, Token{}, oops.Code(CodeValidation).Errorf("username and password are required")
	}

	_, err = s.users.GetByUsername(ctx, in.Username)
	switch {
	case err == nil:
		return nil, Token{}, oops.Code(CodeAlreadyExists).With("username", in.Username).Errorf(MsgAlreadyExists)
	case !errors.Is(err, ErrNotFound):
		return nil, Token{}, internal("GetByUsername", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, Token{}, internal("Hash", err)
	}

	user, err = NewUser(in.FullName, in.Username, hash)
	if err != nil {
		return nil, Token{}, err
	}

	if err = s.users.Create(ctx, user); err != nil {
		// A concurrent registration can win between lookup and insert.
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, Token{}, oops.Code(CodeAlreadyExists).With("username", in.Username).Errorf(MsgAlreadyExists)
		}
		return nil, Token{}, internal("Create", err)
	}

	token, err = s.tokens.Issue(user.ID.String())
	if err != nil {
		return nil, Token{}, internal("Issue", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"username", user.Username)
	return user, token, nil
}

// Login checks a user's password. The caller must already hold a token whose
// subject is that user's ID.
func (s *Service) Login(ctx context.Context, in LoginInput) (user *User, err error) {
	ctx, end := s.startFlow(ctx, FlowLogin, in.Username)
	defer func() { end(err) }()

	user, err = s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("username", in.Username).Errorf(MsgNotFound)
		}
		return nil, internal("GetByUsername", err)
	}

	if in.Subject == "" || user.ID.String() != in.Subject {
		return nil, oops.Code(CodeForbidden).With("username", in.Username).Errorf(MsgForbidden)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, internal("Verify", err)
	}
	if !ok {
		return nil, oops.Code(CodeInvalidCredentials).With("username", in.Username).Errorf(MsgInvalidCredentials)
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"username", user.Username)
	return user, nil
}

// ResetPassword replaces a user's password when the presented reset key
// matches the configured one.
func (s *Service) ResetPassword(ctx context.Context, in ResetInput) (user *User, err error) {
	ctx, end := s.startFlow(ctx, FlowResetPassword, in.Username)
	defer func() { end(err) }()

	expected := s.resetKey()
	if expected == "" || subtle.ConstantTimeCompare([]byte(in.ResetKey), []byte(expected)) != 1 {
		return nil, oops.Code(CodeInvalidResetKey).With("username", in.Username).Errorf(MsgInvalidResetKey)
	}

	if in.NewPassword == "" {
		return nil, oops.Code(CodeValidation).Errorf("new password cannot be empty")
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, internal("Hash", err)
	}

	user, err = s.users.UpdatePasswordHash(ctx, in.Username, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("username", in.Username).Errorf(MsgNotFound)
		}
		return nil, internal("UpdatePasswordHash", err)
	}

	s.logger.InfoContext(ctx, "password reset",
		"user_id", user.ID.String(),
		"username", user.Username)
	return user, nil
}

// startFlow opens a span for flow and returns a func that closes it,
// logs internal failures and reports the outcome.
func (s *Service) startFlow(ctx context.Context, flow, username string) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+flow,
		trace.WithAttributes(attribute.String("auth.username", username)),
	)
	return ctx, func(err error) {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = CodeInternal
			if IsClientError(err) {
				outcome = CodeOf(err)
			} else {
				errutil.LogErrorContext(ctx, s.logger, flow+" failed", err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		span.End()
		if s.recorder != nil {
			s.recorder.RecordFlow(flow, outcome)
		}
	}
}

func internal(operation string, err error) error {
	return oops.Code(CodeInternal).With("operation", operation).Wrap(err)
}
