// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package store owns the PostgreSQL schema and connection pool of the
// authorization service.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// Open creates a connection pool on databaseURL and verifies it with a
// ping. maxConns <= 0 keeps the pgx default.
func Open(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DATABASE_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DATABASE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DATABASE_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}
