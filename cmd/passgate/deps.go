// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package main

import (
	"context"
	"time"

	"github.com/passgate/passgate/internal/auth"
	"github.com/passgate/passgate/internal/auth/memory"
	"github.com/passgate/passgate/internal/auth/postgres"
	"github.com/passgate/passgate/internal/config"
	"github.com/passgate/passgate/internal/observability"
	"github.com/passgate/passgate/internal/store"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// UserStoreFactory opens the configured user store.
	// Default: openUserStore
	UserStoreFactory func(ctx context.Context, cfg *config.Config) (*UserStore, error)

	// MigratorFactory creates a migrator for --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called with the API address once both listeners are up.
	OnReady func(apiAddr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.UserStoreFactory == nil {
		out.UserStoreFactory = openUserStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.OnReady == nil {
		out.OnReady = func(string) {}
	}
	return &out
}

// UserStore is an opened user repository with its health check.
type UserStore struct {
	Users auth.UserRepository
	// Ready is nil for stores that are always ready.
	Ready observability.ReadinessChecker
	Close func()
}

// openUserStore opens the store named by cfg.Store.
func openUserStore(ctx context.Context, cfg *config.Config) (*UserStore, error) {
	if cfg.Store == config.StoreMemory {
		return &UserStore{Users: memory.NewUserRepository(), Close: func() {}}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL, store.DefaultConnectOptions())
	if err != nil {
		return nil, err
	}
	return &UserStore{
		Users: postgres.NewUserRepository(pool),
		Ready: observability.PingReadiness(pool, readinessTimeout),
		Close: pool.Close,
	}, nil
}

// AutoMigrator is the part of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
