// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package postgres implements the grant, profile, role and access request
// repositories on PostgreSQL. The active pgx.Tx travels in the context so
// that every repository call made inside InTransaction joins it.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
	"github.com/zaakcentrum/zac/internal/authz/grant"
)

// querier is implemented by *pgxpool.Pool, pgx.Tx and pgxmock.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the connection the store runs on. *pgxpool.Pool satisfies it.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

// Store implements every repository interface of the authorization engine.
type Store struct {
	db      DB
	retries uint64
	backoff time.Duration
}

var (
	_ grant.Transactor         = (*Store)(nil)
	_ grant.RoleRepository     = (*Store)(nil)
	_ grant.Repository         = (*Store)(nil)
	_ grant.ProfileRepository  = (*Store)(nil)
	_ accessrequest.Repository = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithUpsertRetries sets how often a get-or-create is retried when the
// conflicting row cannot be read back, and the initial backoff between
// attempts.
func WithUpsertRetries(n uint64, backoff time.Duration) Option {
	return func(s *Store) {
		s.retries = n
		s.backoff = backoff
	}
}

// New creates a Store on db.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, retries: 3, backoff: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled
// back. Calls made with a context that already carries a transaction join it.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

// conn returns the transaction in ctx, or the pool.
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.db
}

// upsert runs fn until it stops returning a retryable error.
func (s *Store) upsert(ctx context.Context, fn retry.RetryFunc) error {
	b := retry.WithMaxRetries(s.retries, retry.NewExponential(s.backoff))
	return retry.Do(ctx, b, fn)
}
