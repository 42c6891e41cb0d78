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
	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
)

const requestColumns = `id, requester, object_type, object_reference, comment, result,
	handler, handler_comment, requested_date, handled_date, resulting_assignment_id`

func scanRequest(row pgx.Row) (*accessrequest.AccessRequest, error) {
	var (
		r                 accessrequest.AccessRequest
		idStr, ot, result string
		assignmentID      *string
	)
	if err := row.Scan(&idStr, &r.Requester, &ot, &r.ObjectReference, &r.Comment, &result,
		&r.Handler, &r.HandlerComment, &r.RequestedDate, &r.HandledDate, &assignmentID); err != nil {
		return nil, err
	}
	id, err := parseID(idStr, "request_id")
	if err != nil {
		return nil, err
	}
	r.ID = id
	r.ObjectType = authz.ObjectType(ot)
	r.Result = accessrequest.Result(result)
	if r.ResultingAssignmentID, err = parseOptionalID(assignmentID, "resulting_assignment_id"); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateAccessRequest implements accessrequest.Repository.
func (s *Store) CreateAccessRequest(ctx context.Context, r *accessrequest.AccessRequest) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO access_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID.String(), r.Requester, string(r.ObjectType), r.ObjectReference, r.Comment, string(r.Result),
		r.Handler, r.HandlerComment, r.RequestedDate, r.HandledDate, idPtr(r.ResultingAssignmentID))
	if err != nil {
		return oops.Code("ACCESS_REQUEST_CREATE_FAILED").With("requester", r.Requester).
			With("object_reference", r.ObjectReference).Wrap(err)
	}
	return nil
}

// LockAccessRequests implements accessrequest.Repository with a transaction
// scoped advisory lock keyed on the pair.
func (s *Store) LockAccessRequests(ctx context.Context, requester, objectReference string) error {
	_, err := s.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		requester+"\n"+objectReference)
	if err != nil {
		return oops.Code("ACCESS_REQUEST_LOCK_FAILED").With("requester", requester).
			With("object_reference", objectReference).Wrap(err)
	}
	return nil
}

// GetAccessRequest implements accessrequest.Repository.
func (s *Store) GetAccessRequest(ctx context.Context, id ulid.ULID) (*accessrequest.AccessRequest, error) {
	r, err := scanRequest(s.conn(ctx).QueryRow(ctx, `SELECT `+requestColumns+` FROM access_requests WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(authz.CodeAccessRequestNotFound).With("request_id", id.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get access request").With("request_id", id.String()).Wrap(err)
	}
	return r, nil
}

// MarkAccessRequestHandled implements accessrequest.Repository. The update
// only matches a pending row, so two concurrent handlers cannot both win.
func (s *Store) MarkAccessRequestHandled(ctx context.Context, r *accessrequest.AccessRequest) error {
	q := s.conn(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE access_requests
		SET result = $2, handler = $3, handler_comment = $4, handled_date = $5, resulting_assignment_id = $6
		WHERE id = $1 AND result = ''
	`, r.ID.String(), string(r.Result), r.Handler, r.HandlerComment, r.HandledDate, idPtr(r.ResultingAssignmentID))
	if err != nil {
		return oops.Code("ACCESS_REQUEST_UPDATE_FAILED").With("request_id", r.ID.String()).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = q.QueryRow(ctx, `SELECT result FROM access_requests WHERE id = $1`, r.ID.String()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code(authz.CodeAccessRequestNotFound).With("request_id", r.ID.String()).Wrap(authz.ErrNotFound)
	}
	if err != nil {
		return oops.With("operation", "read access request result").With("request_id", r.ID.String()).Wrap(err)
	}
	return oops.Code(authz.CodeAlreadyHandled).
		With("request_id", r.ID.String()).With("result", current).
		Errorf("access request already %s", current)
}

// ListPendingAccessRequests implements accessrequest.Repository.
func (s *Store) ListPendingAccessRequests(ctx context.Context, requester, objectReference string) ([]*accessrequest.AccessRequest, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+requestColumns+`
		FROM access_requests
		WHERE result = ''
		  AND ($1 = '' OR requester = $1)
		  AND ($2 = '' OR object_reference = $2)
		ORDER BY requested_date, id
	`, requester, objectReference)
	if err != nil {
		return nil, oops.With("operation", "list pending access requests").
			With("requester", requester).With("object_reference", objectReference).Wrap(err)
	}
	defer rows.Close()

	var out []*accessrequest.AccessRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, oops.With("operation", "scan access request").Wrap(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate access requests").Wrap(err)
	}
	return out, nil
}
