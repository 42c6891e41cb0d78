// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

const roleColumns = `id, name, permissions`

func scanRole(row pgx.Row) (*permission.Role, error) {
	var r permission.Role
	var idStr string
	if err := row.Scan(&idStr, &r.Name, &r.Permissions); err != nil {
		return nil, err
	}
	id, err := parseID(idStr, "role_id")
	if err != nil {
		return nil, err
	}
	r.ID = id
	return &r, nil
}

// CreateRole implements grant.RoleRepository.
func (s *Store) CreateRole(ctx context.Context, role *permission.Role) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO roles (id, name, permissions) VALUES ($1, $2, $3)
	`, role.ID.String(), role.Name, role.Permissions)
	if isUniqueViolation(err) {
		return oops.Code(authz.CodeRoleExists).With("role", role.Name).Errorf("role %q already exists", role.Name)
	}
	if err != nil {
		return oops.Code("ROLE_CREATE_FAILED").With("role", role.Name).Wrap(err)
	}
	return nil
}

// GetRole implements grant.RoleRepository.
func (s *Store) GetRole(ctx context.Context, id ulid.ULID) (*permission.Role, error) {
	r, err := scanRole(s.conn(ctx).QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(authz.CodeRoleNotFound).With("id", id.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get role").With("id", id.String()).Wrap(err)
	}
	return r, nil
}

// GetRoleByName implements grant.RoleRepository.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*permission.Role, error) {
	r, err := scanRole(s.conn(ctx).QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(authz.CodeRoleNotFound).With("role", name).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get role by name").With("role", name).Wrap(err)
	}
	return r, nil
}

// SetRolePermissions implements grant.RoleRepository.
func (s *Store) SetRolePermissions(ctx context.Context, id ulid.ULID, permissions []string) error {
	if permissions == nil {
		permissions = []string{}
	}
	tag, err := s.conn(ctx).Exec(ctx, `UPDATE roles SET permissions = $2 WHERE id = $1`, id.String(), permissions)
	if err != nil {
		return oops.Code("ROLE_UPDATE_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code(authz.CodeRoleNotFound).With("id", id.String()).Wrap(authz.ErrNotFound)
	}
	return nil
}

// ListRoles implements grant.RoleRepository.
func (s *Store) ListRoles(ctx context.Context) ([]*permission.Role, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, oops.With("operation", "list roles").Wrap(err)
	}
	defer rows.Close()

	var roles []*permission.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, oops.With("operation", "scan role").Wrap(err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate roles").Wrap(err)
	}
	return roles, nil
}
