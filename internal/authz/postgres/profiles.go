// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/grant"
)

// CreateProfile implements grant.ProfileRepository.
func (s *Store) CreateProfile(ctx context.Context, p *grant.Profile) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO authorization_profiles (id, uuid, name) VALUES ($1, $2, $3)
	`, p.ID.String(), p.UUID.String(), p.Name)
	if isUniqueViolation(err) {
		return oops.Code(authz.CodeProfileExists).With("profile", p.Name).Errorf("profile %q already exists", p.Name)
	}
	if err != nil {
		return oops.Code("PROFILE_CREATE_FAILED").With("profile", p.Name).Wrap(err)
	}
	return nil
}

// GetProfile implements grant.ProfileRepository.
func (s *Store) GetProfile(ctx context.Context, id ulid.ULID) (*grant.Profile, error) {
	return s.getProfile(ctx, "id", id.String())
}

// GetProfileByName implements grant.ProfileRepository.
func (s *Store) GetProfileByName(ctx context.Context, name string) (*grant.Profile, error) {
	return s.getProfile(ctx, "name", name)
}

// getProfile loads a profile and its blueprint grants. column is a fixed
// identifier, never user input.
func (s *Store) getProfile(ctx context.Context, column, value string) (*grant.Profile, error) {
	q := s.conn(ctx)
	var p grant.Profile
	var idStr, uuidStr string
	err := q.QueryRow(ctx, `SELECT id, uuid, name FROM authorization_profiles WHERE `+column+` = $1`, value).
		Scan(&idStr, &uuidStr, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(authz.CodeProfileNotFound).With(column, value).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get profile").With(column, value).Wrap(err)
	}
	if p.ID, err = parseID(idStr, "profile_id"); err != nil {
		return nil, err
	}
	if p.UUID, err = uuid.Parse(uuidStr); err != nil {
		return nil, oops.With("operation", "parse profile uuid").With("uuid", uuidStr).Wrap(err)
	}

	rows, err := q.Query(ctx, `
		SELECT `+blueprintColumns+`
		FROM profile_blueprint_grants pbg
		JOIN blueprint_grants bg ON bg.id = pbg.blueprint_grant_id
		JOIN roles r ON r.id = bg.role_id
		WHERE pbg.profile_id = $1
		ORDER BY bg.id
	`, p.ID.String())
	if err != nil {
		return nil, oops.With("operation", "get profile grants").With("profile_id", idStr).Wrap(err)
	}
	if p.BlueprintGrants, err = scanBlueprintGrants(rows); err != nil {
		return nil, err
	}
	return &p, nil
}

// ClearProfileGrants implements grant.ProfileRepository. Only the membership
// edges are removed; the blueprint grants stay.
func (s *Store) ClearProfileGrants(ctx context.Context, profileID ulid.ULID) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM profile_blueprint_grants WHERE profile_id = $1`, profileID.String())
	if err != nil {
		return oops.Code("PROFILE_UPDATE_FAILED").With("profile_id", profileID.String()).Wrap(err)
	}
	return nil
}

// AddProfileGrant implements grant.ProfileRepository.
func (s *Store) AddProfileGrant(ctx context.Context, profileID, grantID ulid.ULID) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO profile_blueprint_grants (profile_id, blueprint_grant_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, profileID.String(), grantID.String())
	if constraint, ok := foreignKeyViolation(err); ok {
		if constraint == "profile_blueprint_grants_profile_id_fkey" {
			return oops.Code(authz.CodeProfileNotFound).With("id", profileID.String()).Wrap(authz.ErrNotFound)
		}
		return oops.Code(authz.CodeGrantNotFound).With("grant_id", grantID.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return oops.Code("PROFILE_UPDATE_FAILED").With("profile_id", profileID.String()).Wrap(err)
	}
	return nil
}

// CreateProfileAssignment implements grant.ProfileRepository.
func (s *Store) CreateProfileAssignment(ctx context.Context, a *grant.ProfileAssignment) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO profile_assignments (id, subject, profile_id, valid_from, valid_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID.String(), a.Subject, a.ProfileID.String(), a.Window.ValidFrom, a.Window.ValidUntil, a.CreatedAt)
	if _, ok := foreignKeyViolation(err); ok {
		return oops.Code(authz.CodeProfileNotFound).With("id", a.ProfileID.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ASSIGNMENT_CREATE_FAILED").With("subject", a.Subject).Wrap(err)
	}
	return nil
}

// DeleteProfileAssignments implements grant.ProfileRepository.
func (s *Store) DeleteProfileAssignments(ctx context.Context, subject string, profileID ulid.ULID) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `
		DELETE FROM profile_assignments WHERE subject = $1 AND profile_id = $2
	`, subject, profileID.String())
	if err != nil {
		return 0, oops.Code("ASSIGNMENT_DELETE_FAILED").With("subject", subject).
			With("profile_id", profileID.String()).Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// ActiveProfileAssignments implements grant.ProfileRepository.
func (s *Store) ActiveProfileAssignments(ctx context.Context, subject string, asOf time.Time) ([]*grant.ProfileAssignment, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, subject, profile_id, valid_from, valid_until, created_at
		FROM profile_assignments
		WHERE subject = $1
		  AND valid_from <= $2
		  AND (valid_until IS NULL OR valid_until >= $2)
		ORDER BY created_at, id
	`, subject, grant.Day(asOf))
	if err != nil {
		return nil, oops.With("operation", "active profile assignments").With("subject", subject).Wrap(err)
	}
	defer rows.Close()

	var out []*grant.ProfileAssignment
	for rows.Next() {
		var a grant.ProfileAssignment
		var idStr, profileIDStr string
		if err := rows.Scan(&idStr, &a.Subject, &profileIDStr, &a.Window.ValidFrom, &a.Window.ValidUntil, &a.CreatedAt); err != nil {
			return nil, oops.With("operation", "scan profile assignment").Wrap(err)
		}
		if a.ID, err = parseID(idStr, "assignment_id"); err != nil {
			return nil, err
		}
		if a.ProfileID, err = parseID(profileIDStr, "profile_id"); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate profile assignments").Wrap(err)
	}
	return out, nil
}
