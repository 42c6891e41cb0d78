// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// blueprintColumns selects a blueprint grant joined with its role.
const blueprintColumns = `bg.id, bg.object_type, bg.policy, r.id, r.name, r.permissions`

func scanBlueprintGrant(row pgx.Row) (*grant.BlueprintGrant, error) {
	var (
		idStr, objectType, roleIDStr string
		raw                          []byte
		role                         permission.Role
	)
	if err := row.Scan(&idStr, &objectType, &raw, &roleIDStr, &role.Name, &role.Permissions); err != nil {
		return nil, err
	}
	id, err := parseID(idStr, "blueprint_grant_id")
	if err != nil {
		return nil, err
	}
	if role.ID, err = parseID(roleIDStr, "role_id"); err != nil {
		return nil, err
	}
	ot := authz.ObjectType(objectType)
	policy, err := blueprint.Decode(ot, raw)
	if err != nil {
		return nil, oops.With("blueprint_grant_id", idStr).Wrap(err)
	}
	return &grant.BlueprintGrant{ID: id, ObjectType: ot, Role: &role, Policy: policy}, nil
}

func scanBlueprintGrants(rows pgx.Rows) ([]*grant.BlueprintGrant, error) {
	defer rows.Close()
	var out []*grant.BlueprintGrant
	for rows.Next() {
		g, err := scanBlueprintGrant(rows)
		if err != nil {
			return nil, oops.With("operation", "scan blueprint grant").Wrap(err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate blueprint grants").Wrap(err)
	}
	return out, nil
}

// UpsertBlueprintGrant implements grant.Repository. The unique constraint on
// (role_id, object_type, policy) decides which concurrent insert wins; the
// losers read the winner's row back.
func (s *Store) UpsertBlueprintGrant(ctx context.Context, g *grant.BlueprintGrant) (*grant.BlueprintGrant, error) {
	raw, err := blueprint.Encode(g.Policy)
	if err != nil {
		return nil, err
	}
	q := s.conn(ctx)
	_, inTx := ctx.Value(txKey{}).(pgx.Tx)

	var out *grant.BlueprintGrant
	err = s.upsert(ctx, func(ctx context.Context) error {
		var idStr string
		err := q.QueryRow(ctx, `
			INSERT INTO blueprint_grants (id, role_id, object_type, policy)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (role_id, object_type, policy) DO NOTHING
			RETURNING id
		`, g.ID.String(), g.Role.ID.String(), string(g.ObjectType), raw).Scan(&idStr)
		if errors.Is(err, pgx.ErrNoRows) {
			err = q.QueryRow(ctx, `
				SELECT id FROM blueprint_grants
				WHERE role_id = $1 AND object_type = $2 AND policy = $3
			`, g.Role.ID.String(), string(g.ObjectType), raw).Scan(&idStr)
			if errors.Is(err, pgx.ErrNoRows) {
				return retry.RetryableError(err)
			}
		}
		if constraint, ok := foreignKeyViolation(err); ok {
			return oops.Code(authz.CodeRoleNotFound).With("id", g.Role.ID.String()).
				With("constraint", constraint).Wrap(authz.ErrNotFound)
		}
		if err != nil {
			if !inTx && isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		id, err := parseID(idStr, "blueprint_grant_id")
		if err != nil {
			return err
		}
		out = &grant.BlueprintGrant{ID: id, ObjectType: g.ObjectType, Role: g.Role, Policy: g.Policy}
		return nil
	})
	if err != nil {
		return nil, oops.Code("BLUEPRINT_GRANT_UPSERT_FAILED").
			With("role_id", g.Role.ID.String()).With("object_type", string(g.ObjectType)).Wrap(err)
	}
	return out, nil
}

// ActiveBlueprintGrants implements grant.Repository.
func (s *Store) ActiveBlueprintGrants(ctx context.Context, subject string, asOf time.Time) ([]*grant.BlueprintGrant, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT DISTINCT `+blueprintColumns+`
		FROM profile_assignments pa
		JOIN profile_blueprint_grants pbg ON pbg.profile_id = pa.profile_id
		JOIN blueprint_grants bg ON bg.id = pbg.blueprint_grant_id
		JOIN roles r ON r.id = bg.role_id
		WHERE pa.subject = $1
		  AND pa.valid_from <= $2
		  AND (pa.valid_until IS NULL OR pa.valid_until >= $2)
		ORDER BY bg.id
	`, subject, grant.Day(asOf))
	if err != nil {
		return nil, oops.With("operation", "active blueprint grants").With("subject", subject).Wrap(err)
	}
	return scanBlueprintGrants(rows)
}

const atomicColumns = `id, object_type, permission, object_reference`

func scanAtomicGrant(row pgx.Row) (*grant.AtomicGrant, error) {
	var g grant.AtomicGrant
	var idStr, objectType string
	if err := row.Scan(&idStr, &objectType, &g.Permission, &g.ObjectReference); err != nil {
		return nil, err
	}
	id, err := parseID(idStr, "atomic_grant_id")
	if err != nil {
		return nil, err
	}
	g.ID = id
	g.ObjectType = authz.ObjectType(objectType)
	return &g, nil
}

// UpsertAtomicGrant implements grant.Repository with the same
// insert-or-read-back loop as UpsertBlueprintGrant.
func (s *Store) UpsertAtomicGrant(ctx context.Context, g *grant.AtomicGrant) (*grant.AtomicGrant, error) {
	q := s.conn(ctx)
	_, inTx := ctx.Value(txKey{}).(pgx.Tx)

	var out *grant.AtomicGrant
	err := s.upsert(ctx, func(ctx context.Context) error {
		got, err := scanAtomicGrant(q.QueryRow(ctx, `
			INSERT INTO atomic_grants (id, object_type, permission, object_reference)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (permission, object_reference) DO NOTHING
			RETURNING `+atomicColumns,
			g.ID.String(), string(g.ObjectType), g.Permission, g.ObjectReference))
		if errors.Is(err, pgx.ErrNoRows) {
			got, err = scanAtomicGrant(q.QueryRow(ctx, `
				SELECT `+atomicColumns+` FROM atomic_grants
				WHERE permission = $1 AND object_reference = $2
			`, g.Permission, g.ObjectReference))
			if errors.Is(err, pgx.ErrNoRows) {
				return retry.RetryableError(err)
			}
		}
		if err != nil {
			if !inTx && isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = got
		return nil
	})
	if err != nil {
		return nil, oops.Code("ATOMIC_GRANT_UPSERT_FAILED").
			With("permission", g.Permission).With("object_reference", g.ObjectReference).Wrap(err)
	}
	return out, nil
}

// CreateAtomicAssignment implements grant.Repository.
func (s *Store) CreateAtomicAssignment(ctx context.Context, a *grant.AtomicGrantAssignment) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO atomic_grant_assignments
			(id, subject, atomic_grant_id, reason, comment, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID.String(), a.Subject, a.Grant.ID.String(), a.Reason, a.Comment,
		a.Window.ValidFrom, a.Window.ValidUntil, a.CreatedAt)
	if _, ok := foreignKeyViolation(err); ok {
		return oops.Code(authz.CodeGrantNotFound).With("grant_id", a.Grant.ID.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ASSIGNMENT_CREATE_FAILED").With("subject", a.Subject).Wrap(err)
	}
	return nil
}

// UpdateAtomicAssignmentWindow implements grant.Repository.
func (s *Store) UpdateAtomicAssignmentWindow(ctx context.Context, id ulid.ULID, w grant.Window) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE atomic_grant_assignments SET valid_from = $2, valid_until = $3 WHERE id = $1
	`, id.String(), w.ValidFrom, w.ValidUntil)
	if err != nil {
		return oops.Code("ASSIGNMENT_UPDATE_FAILED").With("assignment_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(authz.CodeGrantNotFound).With("assignment_id", id.String()).Wrap(authz.ErrNotFound)
	}
	return nil
}

// DeleteAtomicAssignment implements grant.Repository.
func (s *Store) DeleteAtomicAssignment(ctx context.Context, id ulid.ULID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM atomic_grant_assignments WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ASSIGNMENT_DELETE_FAILED").With("assignment_id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(authz.CodeGrantNotFound).With("assignment_id", id.String()).Wrap(authz.ErrNotFound)
	}
	return nil
}

const assignmentSelect = `
		SELECT a.id, a.subject, a.reason, a.comment, a.valid_from, a.valid_until, a.created_at,
		       g.id, g.object_type, g.permission, g.object_reference
		FROM atomic_grant_assignments a
		JOIN atomic_grants g ON g.id = a.atomic_grant_id
		WHERE a.subject = $1`

// ActiveAtomicAssignments implements grant.Repository.
func (s *Store) ActiveAtomicAssignments(ctx context.Context, subject string, asOf time.Time) ([]*grant.AtomicGrantAssignment, error) {
	rows, err := s.conn(ctx).Query(ctx, assignmentSelect+`
		  AND a.valid_from <= $2
		  AND (a.valid_until IS NULL OR a.valid_until >= $2)
		ORDER BY a.created_at, a.id
	`, subject, grant.Day(asOf))
	if err != nil {
		return nil, oops.With("operation", "active atomic assignments").With("subject", subject).Wrap(err)
	}
	return scanAssignments(rows)
}

// UnexpiredAtomicAssignments implements grant.Repository.
func (s *Store) UnexpiredAtomicAssignments(ctx context.Context, subject string, asOf time.Time) ([]*grant.AtomicGrantAssignment, error) {
	rows, err := s.conn(ctx).Query(ctx, assignmentSelect+`
		  AND (a.valid_until IS NULL OR a.valid_until >= $2)
		ORDER BY a.created_at, a.id
	`, subject, grant.Day(asOf))
	if err != nil {
		return nil, oops.With("operation", "unexpired atomic assignments").With("subject", subject).Wrap(err)
	}
	return scanAssignments(rows)
}

func scanAssignments(rows pgx.Rows) ([]*grant.AtomicGrantAssignment, error) {
	defer rows.Close()

	var out []*grant.AtomicGrantAssignment
	for rows.Next() {
		var (
			a                 grant.AtomicGrantAssignment
			idStr, grantIDStr string
			objectType        string
			err               error
		)
		if err := rows.Scan(&idStr, &a.Subject, &a.Reason, &a.Comment,
			&a.Window.ValidFrom, &a.Window.ValidUntil, &a.CreatedAt,
			&grantIDStr, &objectType, &a.Grant.Permission, &a.Grant.ObjectReference); err != nil {
			return nil, oops.With("operation", "scan atomic assignment").Wrap(err)
		}
		if a.ID, err = parseID(idStr, "assignment_id"); err != nil {
			return nil, err
		}
		if a.Grant.ID, err = parseID(grantIDStr, "atomic_grant_id"); err != nil {
			return nil, err
		}
		a.Grant.ObjectType = authz.ObjectType(objectType)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate atomic assignments").Wrap(err)
	}
	return out, nil
}
