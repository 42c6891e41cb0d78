// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// pgError returns the PostgreSQL error in err's chain.
func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgerrcode.UniqueViolation
}

// foreignKeyViolation returns the violated constraint name.
func foreignKeyViolation(err error) (string, bool) {
	pgErr, ok := pgError(err)
	if !ok || pgErr.Code != pgerrcode.ForeignKeyViolation {
		return "", false
	}
	return pgErr.ConstraintName, true
}

// isTransient reports whether a statement may succeed when retried.
func isTransient(err error) bool {
	pgErr, ok := pgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.UniqueViolation:
		return true
	}
	return false
}

func parseID(s, field string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.With("operation", "parse "+field).With(field, s).Wrap(err)
	}
	return id, nil
}

func parseOptionalID(s *string, field string) (*ulid.ULID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := parseID(*s, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func idPtr(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
