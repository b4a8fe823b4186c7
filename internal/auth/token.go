// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// TokenType is the scheme clients present tokens under.
const TokenType = "Bearer"

// Token verification failures. Use errors.Is to tell them apart.
var (
	ErrTokenMalformed    = errors.New("malformed token")
	ErrTokenBadSignature = errors.New("invalid token signature")
	ErrTokenExpired      = errors.New("token expired")
)

// Token is a signed bearer token handed to a client.
type Token struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer mints tokens for a subject.
type TokenIssuer interface {
	Issue(subject string) (Token, error)
}

// TokenVerifier checks a presented token and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (Claims, error)
}

// JWTManager issues and verifies HS256 JWTs signed with a shared secret.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// JWTOption configures a JWTManager.
type JWTOption func(*JWTManager)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(m *JWTManager) {
		m.now = now
	}
}

// NewJWTManager creates a JWTManager. The secret must be non-empty and ttl positive.
func NewJWTManager(secret string, ttl time.Duration, opts ...JWTOption) (*JWTManager, error) {
	if secret == "" {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").Errorf("token secret is required")
	}
	if ttl <= 0 {
		return nil, oops.Code("AUTH_TOKEN_CONFIG").With("ttl", ttl.String()).Errorf("token ttl must be positive")
	}

	m := &JWTManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for subject that expires after the configured TTL.
func (m *JWTManager) Issue(subject string) (Token, error) {
	if subject == "" {
		return Token{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("token subject is required")
	}

	// JWT timestamps have second precision.
	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.ttl)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return Token{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").Wrap(err)
	}

	return Token{
		Token:     signed,
		TokenType: TokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature and expiry of raw.
// Errors carry CodeUnauthenticated and wrap one of ErrTokenMalformed,
// ErrTokenBadSignature or ErrTokenExpired.
func (m *JWTManager) Verify(raw string) (Claims, error) {
	registered := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, registered, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}
	if registered.Subject == "" {
		return Claims{}, oops.Code(CodeUnauthenticated).With("reason", "missing subject").Wrap(ErrTokenMalformed)
	}

	claims := Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.UTC()
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.UTC()
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	var kind error
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		kind = ErrTokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		kind = ErrTokenExpired
	default:
		kind = ErrTokenMalformed
	}
	return oops.Code(CodeUnauthenticated).With("reason", err.Error()).Wrap(kind)
}
