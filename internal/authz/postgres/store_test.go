// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		mock.Close()
	})
	return mock
}

func pgErr(code, constraint string) error {
	return &pgconn.PgError{Code: code, ConstraintName: constraint}
}

func TestStore_InTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		profileID := ulid.Make()
		mock.ExpectExec(`DELETE FROM profile_blueprint_grants`).
			WithArgs(profileID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		s := New(mock)
		err := s.InTransaction(ctx, func(ctx context.Context) error {
			return s.ClearProfileGrants(ctx, profileID)
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := New(mock).InTransaction(ctx, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		s := New(mock)
		calls := 0
		err := s.InTransaction(ctx, func(ctx context.Context) error {
			return s.InTransaction(ctx, func(context.Context) error {
				calls++
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("begin failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := New(mock).InTransaction(ctx, func(context.Context) error { return nil })
		errutil.AssertErrorCode(t, err, "TX_BEGIN_FAILED")
	})

	t.Run("commit failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		err := New(mock).InTransaction(ctx, func(context.Context) error { return nil })
		errutil.AssertErrorCode(t, err, "TX_COMMIT_FAILED")
	})
}

func TestStore_CreateRole(t *testing.T) {
	ctx := context.Background()
	role := &permission.Role{ID: ulid.Make(), Name: "behandelaar", Permissions: []string{permission.CaseView}}

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO roles`).
			WithArgs(role.ID.String(), "behandelaar", []string{permission.CaseView}).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		require.NoError(t, New(mock).CreateRole(ctx, role))
	})

	t.Run("duplicate name", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO roles`).
			WithArgs(role.ID.String(), "behandelaar", []string{permission.CaseView}).
			WillReturnError(pgErr(pgerrcode.UniqueViolation, "roles_name_key"))
		err := New(mock).CreateRole(ctx, role)
		errutil.AssertErrorCode(t, err, authz.CodeRoleExists)
	})
}

func TestStore_GetRole(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, name, permissions FROM roles WHERE id`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "permissions"}).
				AddRow(id.String(), "raadpleger", []string{permission.CaseView, permission.DocumentView}))

		r, err := New(mock).GetRole(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, r.ID)
		assert.Equal(t, "raadpleger", r.Name)
		assert.Equal(t, []string{permission.CaseView, permission.DocumentView}, r.Permissions)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT id, name, permissions FROM roles WHERE id`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "name", "permissions"}))

		_, err := New(mock).GetRole(ctx, id)
		errutil.AssertErrorCode(t, err, authz.CodeRoleNotFound)
		assert.True(t, authz.IsNotFound(err))
	})
}

func TestStore_SetRolePermissions_UnknownRole(t *testing.T) {
	mock := newMock(t)
	id := ulid.Make()
	mock.ExpectExec(`UPDATE roles SET permissions`).
		WithArgs(id.String(), []string{}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := New(mock).SetRolePermissions(context.Background(), id, nil)
	errutil.AssertErrorCode(t, err, authz.CodeRoleNotFound)
}

func TestStore_UpsertAtomicGrant(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "object_type", "permission", "object_reference"}
	ref := "https://openzaak.local/zaken/api/v1/zaken/1"
	g := &grant.AtomicGrant{ID: ulid.Make(), ObjectType: authz.ObjectTypeCase, Permission: permission.CaseView, ObjectReference: ref}
	existing := ulid.Make()
	insertArgs := []any{g.ID.String(), "case", permission.CaseView, ref}

	t.Run("inserts a new grant", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO atomic_grants`).
			WithArgs(g.ID.String(), "case", permission.CaseView, ref).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(g.ID.String(), "case", permission.CaseView, ref))

		got, err := New(mock).UpsertAtomicGrant(ctx, g)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)
	})

	t.Run("reads back the conflicting row", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO atomic_grants`).WithArgs(insertArgs...).WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery(`SELECT id, object_type, permission, object_reference FROM atomic_grants`).
			WithArgs(permission.CaseView, ref).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(existing.String(), "case", permission.CaseView, ref))

		got, err := New(mock).UpsertAtomicGrant(ctx, g)
		require.NoError(t, err)
		assert.Equal(t, existing, got.ID)
	})

	t.Run("retries when the winner is not visible yet", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO atomic_grants`).WithArgs(insertArgs...).WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery(`SELECT .* FROM atomic_grants`).
			WithArgs(permission.CaseView, ref).
			WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery(`INSERT INTO atomic_grants`).WithArgs(insertArgs...).WillReturnRows(pgxmock.NewRows(cols))
		mock.ExpectQuery(`SELECT .* FROM atomic_grants`).
			WithArgs(permission.CaseView, ref).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(existing.String(), "case", permission.CaseView, ref))

		got, err := New(mock, WithUpsertRetries(2, time.Millisecond)).UpsertAtomicGrant(ctx, g)
		require.NoError(t, err)
		assert.Equal(t, existing, got.ID)
	})

	t.Run("retries transient errors outside a transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`INSERT INTO atomic_grants`).
			WithArgs(insertArgs...).
			WillReturnError(pgErr(pgerrcode.SerializationFailure, ""))
		mock.ExpectQuery(`INSERT INTO atomic_grants`).
			WithArgs(insertArgs...).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(g.ID.String(), "case", permission.CaseView, ref))

		got, err := New(mock, WithUpsertRetries(2, time.Millisecond)).UpsertAtomicGrant(ctx, g)
		require.NoError(t, err)
		assert.Equal(t, g.ID, got.ID)
	})

	t.Run("does not retry inside a transaction", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO atomic_grants`).
			WithArgs(insertArgs...).
			WillReturnError(pgErr(pgerrcode.SerializationFailure, ""))
		mock.ExpectRollback()

		s := New(mock, WithUpsertRetries(2, time.Millisecond))
		err := s.InTransaction(ctx, func(ctx context.Context) error {
			_, err := s.UpsertAtomicGrant(ctx, g)
			return err
		})
		errutil.AssertErrorCode(t, err, "ATOMIC_GRANT_UPSERT_FAILED")
	})
}

func TestStore_UpsertBlueprintGrant_UnknownRole(t *testing.T) {
	mock := newMock(t)
	role := &permission.Role{ID: ulid.Make(), Name: "behandelaar"}
	grantID := ulid.Make()
	mock.ExpectQuery(`INSERT INTO blueprint_grants`).
		WithArgs(grantID.String(), role.ID.String(), "case", pgxmock.AnyArg()).
		WillReturnError(pgErr(pgerrcode.ForeignKeyViolation, "blueprint_grants_role_id_fkey"))

	_, err := New(mock).UpsertBlueprintGrant(context.Background(), &grant.BlueprintGrant{
		ID:         grantID,
		ObjectType: authz.ObjectTypeCase,
		Role:       role,
		Policy:     internPolicy(),
	})
	errutil.AssertErrorCode(t, err, authz.CodeRoleNotFound)
	assert.True(t, authz.IsNotFound(err))
}

func TestStore_AddProfileGrant_ForeignKeys(t *testing.T) {
	tests := []struct {
		constraint string
		code       string
	}{
		{"profile_blueprint_grants_profile_id_fkey", authz.CodeProfileNotFound},
		{"profile_blueprint_grants_blueprint_grant_id_fkey", authz.CodeGrantNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			mock := newMock(t)
			profileID, grantID := ulid.Make(), ulid.Make()
			mock.ExpectExec(`INSERT INTO profile_blueprint_grants`).
				WithArgs(profileID.String(), grantID.String()).
				WillReturnError(pgErr(pgerrcode.ForeignKeyViolation, tt.constraint))

			err := New(mock).AddProfileGrant(context.Background(), profileID, grantID)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestStore_DeleteProfileAssignments(t *testing.T) {
	mock := newMock(t)
	profileID := ulid.Make()
	mock.ExpectExec(`DELETE FROM profile_assignments`).
		WithArgs("medewerker", profileID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := New(mock).DeleteProfileAssignments(context.Background(), "medewerker", profileID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_DeleteAtomicAssignment(t *testing.T) {
	id := ulid.Make()

	t.Run("deletes", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM atomic_grant_assignments`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, New(mock).DeleteAtomicAssignment(context.Background(), id))
	})

	t.Run("unknown assignment", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM atomic_grant_assignments`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		err := New(mock).DeleteAtomicAssignment(context.Background(), id)
		errutil.AssertErrorCode(t, err, authz.CodeGrantNotFound)
	})
}

func TestStore_UnexpiredAtomicAssignments(t *testing.T) {
	mock := newMock(t)
	asOf := time.Date(2021, 1, 15, 14, 0, 0, 0, time.UTC)
	starts := time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC)
	id, grantID := ulid.Make(), ulid.Make()
	ref := "https://openzaak.local/zaken/api/v1/zaken/1"
	mock.ExpectQuery(`FROM atomic_grant_assignments a\s+JOIN atomic_grants g ON g.id = a.atomic_grant_id\s+WHERE a.subject = \$1\s+AND \(a.valid_until IS NULL`).
		WithArgs("alice", grant.Day(asOf)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "subject", "reason", "comment", "valid_from", "valid_until", "created_at",
			"grant_id", "object_type", "permission", "object_reference",
		}).AddRow(id.String(), "alice", "toegang verleend", "", starts, (*time.Time)(nil), asOf,
			grantID.String(), "case", permission.CaseView, ref))

	got, err := New(mock).UnexpiredAtomicAssignments(context.Background(), "alice", asOf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, starts, got[0].Window.ValidFrom)
	assert.Equal(t, grantID, got[0].Grant.ID)
	assert.Equal(t, authz.ObjectTypeCase, got[0].Grant.ObjectType)
}

func TestStore_MarkAccessRequestHandled(t *testing.T) {
	ctx := context.Background()
	handled := time.Date(2021, 1, 15, 10, 0, 0, 0, time.UTC)
	r := &accessrequest.AccessRequest{
		ID:          ulid.Make(),
		Result:      accessrequest.ResultRejected,
		Handler:     "behandelaar",
		HandledDate: &handled,
	}

	updateArgs := []any{r.ID.String(), "rejected", "behandelaar", "", &handled, (*string)(nil)}

	t.Run("marks a pending request", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE access_requests`).
			WithArgs(updateArgs...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, New(mock).MarkAccessRequestHandled(ctx, r))
	})

	t.Run("already handled", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE access_requests`).WithArgs(updateArgs...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT result FROM access_requests`).
			WithArgs(r.ID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow("approved"))

		err := New(mock).MarkAccessRequestHandled(ctx, r)
		errutil.AssertErrorCode(t, err, authz.CodeAlreadyHandled)
		errutil.AssertErrorContext(t, err, "result", "approved")
		assert.True(t, authz.IsAlreadyHandled(err))
	})

	t.Run("unknown request", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`UPDATE access_requests`).WithArgs(updateArgs...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectQuery(`SELECT result FROM access_requests`).
			WithArgs(r.ID.String()).
			WillReturnRows(pgxmock.NewRows([]string{"result"}))

		err := New(mock).MarkAccessRequestHandled(ctx, r)
		errutil.AssertErrorCode(t, err, authz.CodeAccessRequestNotFound)
	})
}

func TestStore_LockAccessRequests(t *testing.T) {
	ref := "https://openzaak.local/zaken/api/v1/zaken/1"

	t.Run("locks the requester and object pair", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended\(\$1, 0\)\)`).
			WithArgs("medewerker\n" + ref).
			WillReturnResult(pgxmock.NewResult("SELECT", 1))
		require.NoError(t, New(mock).LockAccessRequests(context.Background(), "medewerker", ref))
	})

	t.Run("lock failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs("medewerker\n" + ref).
			WillReturnError(pgErr(pgerrcode.LockNotAvailable, ""))
		err := New(mock).LockAccessRequests(context.Background(), "medewerker", ref)
		errutil.AssertErrorCode(t, err, "ACCESS_REQUEST_LOCK_FAILED")
		errutil.AssertErrorContext(t, err, "object_reference", ref)
	})
}

func TestStore_ListPendingAccessRequests(t *testing.T) {
	mock := newMock(t)
	requested := time.Date(2021, 1, 14, 9, 30, 0, 0, time.UTC)
	id := ulid.Make()
	ref := "https://openzaak.local/zaken/api/v1/zaken/1"
	mock.ExpectQuery(`FROM access_requests\s+WHERE result = ''`).
		WithArgs("", ref).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "requester", "object_type", "object_reference", "comment", "result",
			"handler", "handler_comment", "requested_date", "handled_date", "resulting_assignment_id",
		}).AddRow(id.String(), "medewerker", "case", ref, "dossier nodig", "",
			"", "", requested, (*time.Time)(nil), (*string)(nil)))

	got, err := New(mock).ListPendingAccessRequests(context.Background(), "", ref)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.True(t, got[0].Pending())
	assert.Equal(t, authz.ObjectTypeCase, got[0].ObjectType)
	assert.Nil(t, got[0].HandledDate)
	assert.Nil(t, got[0].ResultingAssignmentID)
}

func internPolicy() blueprint.CasePolicy {
	return blueprint.CasePolicy{
		Catalogus:            "https://openzaak.local/catalogi/api/v1/catalogussen/1",
		ZaaktypeOmschrijving: "Melding openbare ruimte",
		MaxVA:                confidentiality.Intern,
	}
}
