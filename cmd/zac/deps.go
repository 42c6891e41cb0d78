// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package main

import (
	"context"
	"net"

	"github.com/zaakcentrum/zac/internal/authz/postgres"
	"github.com/zaakcentrum/zac/internal/observability"
	"github.com/zaakcentrum/zac/internal/store"
)

// Deps contains injectable dependencies shared by the subcommands.
// Nil fields use their default implementations.
type Deps struct {
	// PoolFactory opens the database pool.
	// Default: store.Open
	PoolFactory func(ctx context.Context, url string, maxConns int32) (Pool, error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory binds the gRPC listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// Pool is the part of pgxpool.Pool the commands use.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	SetBuildInfo(version, commit string)
}

// withDefaults returns d, or an empty Deps, with every nil field set.
func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string, maxConns int32) (Pool, error) {
			pool, err := store.Open(ctx, url, maxConns)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}
