// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package accessrequest

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Result is the outcome of handling a request. The empty result means the
// request is still pending.
type Result string

// Request results.
const (
	ResultPending  Result = ""
	ResultApproved Result = "approved"
	ResultRejected Result = "rejected"
)

// ParseResult validates s as a handling result. Pending is not a valid
// handling result.
func ParseResult(s string) (Result, error) {
	switch Result(s) {
	case ResultApproved, ResultRejected:
		return Result(s), nil
	case ResultPending:
		return "", oops.Code(authz.CodeAccessRequestInvalid).With("field", "result").
			Errorf("result is required")
	default:
		return "", oops.Code(authz.CodeAccessRequestInvalid).With("field", "result").With("result", s).
			Errorf("unknown result %q", s)
	}
}

// Terminal reports whether the result ends the request lifecycle.
func (r Result) Terminal() bool {
	return r == ResultApproved || r == ResultRejected
}

func (r Result) String() string {
	if r == ResultPending {
		return "pending"
	}
	return string(r)
}

// AccessRequest is a subject's request for the view permission on one object.
type AccessRequest struct {
	ID              ulid.ULID
	Requester       string
	ObjectType      authz.ObjectType
	ObjectReference string
	// Comment is the requester's motivation.
	Comment string
	Result  Result
	// Handler is empty while the request is pending.
	Handler        string
	HandlerComment string
	RequestedDate  time.Time
	HandledDate    *time.Time
	// ResultingAssignmentID is set once an approval produced an assignment.
	ResultingAssignmentID *ulid.ULID
}

// Pending reports whether the request has not been handled yet.
func (r *AccessRequest) Pending() bool {
	return r.Result == ResultPending
}

// Repository manages access request persistence.
type Repository interface {
	// CreateAccessRequest persists a new pending request.
	CreateAccessRequest(ctx context.Context, r *AccessRequest) error

	// GetAccessRequest retrieves a request by ID.
	GetAccessRequest(ctx context.Context, id ulid.ULID) (*AccessRequest, error)

	// MarkAccessRequestHandled stores the handler fields of r. It fails with
	// ACCESS_REQUEST_HANDLED when the stored request is no longer pending.
	MarkAccessRequestHandled(ctx context.Context, r *AccessRequest) error

	// ListPendingAccessRequests returns pending requests ordered by request
	// date. An empty requester or reference matches any value.
	ListPendingAccessRequests(ctx context.Context, requester, objectReference string) ([]*AccessRequest, error)

	// LockAccessRequests serializes writers of requester's requests for
	// objectReference until the surrounding transaction ends.
	LockAccessRequests(ctx context.Context, requester, objectReference string) error
}
