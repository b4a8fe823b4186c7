// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Package store owns the PostgreSQL connection pool and the users schema.
package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes the bootstrap connection attempt.
type ConnectOptions struct {
	// MaxRetries bounds how many times a failed ping is retried.
	MaxRetries uint64
	// BaseDelay is the first backoff interval; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration
}

// DefaultConnectOptions retries for roughly half a minute.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries: 6,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pool for databaseURL and pings it, retrying with
// exponential backoff while the database comes up. Errors never include the
// URL's password.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("parse database url: %s", redactURLError(err, databaseURL))
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Errorf("create pool: %s", redactURLError(err, databaseURL))
	}

	if err := pingWithRetry(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("database", cfg.ConnConfig.Database).
			Errorf("database unreachable: %s", redactURLError(err, databaseURL))
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, db pinger, opts ConnectOptions) error {
	backoff := retry.NewExponential(opts.BaseDelay)
	if opts.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(opts.MaxDelay, backoff)
	}
	backoff = retry.WithMaxRetries(opts.MaxRetries, backoff)

	//nolint:wrapcheck // caller wraps with its own code
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

var dsnPassword = regexp.MustCompile(`password=('[^']*'|\S+)`)

// redactURLError returns err's text with the password from databaseURL
// masked. It handles URLs that fail to parse as well as key=value DSNs.
func redactURLError(err error, databaseURL string) string {
	msg := err.Error()
	if password := urlPassword(databaseURL); password != "" {
		msg = strings.ReplaceAll(msg, password, "xxxxx")
	}
	return dsnPassword.ReplaceAllString(msg, "password=xxxxx")
}

func urlPassword(databaseURL string) string {
	_, rest, ok := strings.Cut(databaseURL, "://")
	if !ok {
		if m := dsnPassword.FindStringSubmatch(databaseURL); m != nil {
			return strings.Trim(m[1], "'")
		}
		return ""
	}
	authority := rest
	if i := strings.IndexAny(authority, "/?"); i >= 0 {
		authority = authority[:i]
	}
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return ""
	}
	_, password, _ := strings.Cut(authority[:at], ":")
	return password
}
