// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package accessrequest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/resolver"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

// Authorizer checks whether a handler may act on an object.
// *decision.Engine satisfies it.
type Authorizer interface {
	HasPermission(ctx context.Context, subject authz.Subject, perm string, target *authz.Target) (bool, error)
}

// Config holds dependencies for Workflow.
type Config struct {
	Requests   Repository
	Grants     *grant.Service
	Transactor grant.Transactor
	// Objects, when set, is used to confirm a target exists before any
	// write transaction is opened.
	Objects authz.ObjectResolver
	// Authorizer, when set, requires handlers to hold the access-handling
	// permission on the case.
	Authorizer Authorizer
	Notifier   authz.Notifier
	// ViewPermission is the permission granted on approval. Defaults to
	// permission.CaseView.
	ViewPermission string
	Logger         *slog.Logger
}

// Workflow runs the access request state machine together with direct
// grants and revocations by handlers. Every write runs in one transaction;
// notifications are sent only after it committed.
type Workflow struct {
	requests   Repository
	grants     *grant.Service
	tx         grant.Transactor
	objects    authz.ObjectResolver
	authorizer Authorizer
	notifier   authz.Notifier
	view       permission.Permission
	logger     *slog.Logger
}

// NewWorkflow creates a Workflow. It fails when the view permission is not
// registered.
func NewWorkflow(cfg Config) (*Workflow, error) {
	if cfg.ViewPermission == "" {
		cfg.ViewPermission = permission.CaseView
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	view, err := cfg.Grants.Registry().Get(cfg.ViewPermission)
	if err != nil {
		return nil, oops.With("setting", "view_permission").Wrap(err)
	}
	w := &Workflow{
		requests:   cfg.Requests,
		grants:     cfg.Grants,
		tx:         cfg.Transactor,
		authorizer: cfg.Authorizer,
		notifier:   cfg.Notifier,
		view:       view,
		logger:     cfg.Logger,
	}
	if cfg.Objects != nil {
		w.objects = resolver.NewObjects(cfg.Objects, cfg.Logger)
	}
	return w, nil
}

// ViewPermission returns the permission requests ask for.
func (w *Workflow) ViewPermission() string {
	return w.view.Name
}

// Handling carries a handler's verdict on a request.
type Handling struct {
	// Result must be "approved" or "rejected".
	Result  string
	Comment string
	// ValidFrom defaults to today. Only used on approval.
	ValidFrom  time.Time
	ValidUntil *time.Time
}

// Create files a pending request by requester for the view permission on
// target. It fails with ACCESS_REQUEST_DUPLICATE when the requester already
// holds an active view grant on the object or has another pending request
// for it.
func (w *Workflow) Create(ctx context.Context, requester string, target authz.Target, comment string) (*AccessRequest, error) {
	requester = strings.TrimSpace(requester)
	if requester == "" {
		return nil, oops.Code(authz.CodeAccessRequestInvalid).With("field", "requester").
			Errorf("requester cannot be empty")
	}
	if err := w.checkTarget(target); err != nil {
		return nil, err
	}
	ctx = resolver.WithCache(ctx)
	if err := w.confirmExists(ctx, target); err != nil {
		return nil, err
	}

	now := w.grants.Now()
	r := &AccessRequest{
		ID:              ulid.Make(),
		Requester:       requester,
		ObjectType:      target.Type,
		ObjectReference: target.Reference,
		Comment:         comment,
		RequestedDate:   now,
	}
	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := w.requests.LockAccessRequests(ctx, requester, target.Reference); err != nil {
			return err
		}
		active, err := w.grants.ActiveAssignmentsOn(ctx, requester, w.view.Name, target.Reference, now)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return oops.Code(authz.CodeDuplicateRequest).
				With("object_reference", target.Reference).
				With("existing_assignment_id", active[0].ID.String()).
				Errorf("requester already has access to %s", target.Reference)
		}
		pending, err := w.requests.ListPendingAccessRequests(ctx, requester, target.Reference)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return oops.Code(authz.CodeDuplicateRequest).
				With("object_reference", target.Reference).
				With("existing_request_id", pending[0].ID.String()).
				Errorf("requester already has a pending request for %s", target.Reference)
		}
		return w.requests.CreateAccessRequest(ctx, r)
	})
	if err != nil {
		return nil, oops.With("requester", requester).Wrap(err)
	}
	requestsTotal.WithLabelValues("created").Inc()
	w.logger.InfoContext(ctx, "access request created",
		"request_id", r.ID.String(), "requester", requester, "object_reference", target.Reference)
	return r, nil
}

// Get returns the request with id.
func (w *Workflow) Get(ctx context.Context, id ulid.ULID) (*AccessRequest, error) {
	r, err := w.requests.GetAccessRequest(ctx, id)
	if err != nil {
		return nil, oops.With("request_id", id.String()).Wrap(err)
	}
	return r, nil
}

// Handle approves or rejects a pending request. Approval assigns the view
// permission on the object to the requester for the given window and links
// the assignment to the request; any other pending request of the requester
// for the same object is approved along with it. Rejection creates nothing.
func (w *Workflow) Handle(ctx context.Context, requestID ulid.ULID, handler authz.Subject, h Handling) (*AccessRequest, error) {
	result, err := ParseResult(h.Result)
	if err != nil {
		return nil, oops.With("request_id", requestID.String()).Wrap(err)
	}
	r, err := w.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !r.Pending() {
		return nil, alreadyHandled(r)
	}
	ctx = resolver.WithCache(ctx)
	if err := w.authorize(ctx, handler, r.target()); err != nil {
		return nil, err
	}

	now := w.grants.Now()
	var notes []authz.Notification
	err = w.tx.InTransaction(ctx, func(ctx context.Context) error {
		r, err = w.requests.GetAccessRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !r.Pending() {
			return alreadyHandled(r)
		}
		r.Result = result
		r.Handler = handler.ID
		r.HandlerComment = h.Comment
		r.HandledDate = &now

		note := w.notification(r.Requester, r.target(), handler.ID, h.Comment, now)
		note.RequestID = r.ID.String()
		note.Outcome = authz.OutcomeRejected

		if result == ResultApproved {
			from := h.ValidFrom
			if from.IsZero() {
				from = now
			}
			a, err := w.assignView(ctx, r.Requester, r.target(), grant.ReasonAccessRequest, h.Comment, from, h.ValidUntil)
			if err != nil {
				return err
			}
			r.ResultingAssignmentID = &a.ID
			note.Outcome = authz.OutcomeApproved
			note.AssignmentID = a.ID.String()
			note.ValidUntil = a.Window.ValidUntil
			if err := w.requests.MarkAccessRequestHandled(ctx, r); err != nil {
				return err
			}
			if _, err := w.AutoApproveOnDirectGrant(ctx, handler.ID, a); err != nil {
				return err
			}
		} else if err := w.requests.MarkAccessRequestHandled(ctx, r); err != nil {
			return err
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, oops.With("request_id", requestID.String()).Wrap(err)
	}
	requestsTotal.WithLabelValues(string(result)).Inc()
	w.logger.InfoContext(ctx, "access request handled",
		"request_id", r.ID.String(), "handler", handler.ID, "result", string(result))
	w.emit(ctx, notes)
	return r, nil
}

// AutoApproveOnDirectGrant approves every pending request of the assignee
// for the assignment's object, linking each to a. It joins the caller's
// transaction when there is one and sends no notifications.
func (w *Workflow) AutoApproveOnDirectGrant(ctx context.Context, handler string, a *grant.AtomicGrantAssignment) ([]*AccessRequest, error) {
	if a == nil {
		return nil, oops.Code(authz.CodeAssignmentInvalid).Errorf("auto-approval requires an assignment")
	}
	var approved []*AccessRequest
	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		pending, err := w.requests.ListPendingAccessRequests(ctx, a.Subject, a.Grant.ObjectReference)
		if err != nil {
			return err
		}
		now := w.grants.Now()
		for _, r := range pending {
			r.Result = ResultApproved
			r.Handler = handler
			r.HandlerComment = fmt.Sprintf("automatically approved: access granted by %s through assignment %s", handler, a.ID)
			r.HandledDate = &now
			id := a.ID
			r.ResultingAssignmentID = &id
			if err := w.requests.MarkAccessRequestHandled(ctx, r); err != nil {
				return err
			}
			approved = append(approved, r)
		}
		return nil
	})
	if err != nil {
		return nil, oops.With("subject", a.Subject).With("object_reference", a.Grant.ObjectReference).Wrap(err)
	}
	if len(approved) > 0 {
		requestsTotal.WithLabelValues("auto_approved").Add(float64(len(approved)))
		w.logger.InfoContext(ctx, "pending access requests auto-approved",
			"subject", a.Subject, "object_reference", a.Grant.ObjectReference,
			"assignment_id", a.ID.String(), "count", len(approved))
	}
	return approved, nil
}

// GrantAccess lets handler give subject the view permission on target
// without a request. Pending requests of subject for the object are
// approved and linked to the new assignment; subject is notified once.
func (w *Workflow) GrantAccess(ctx context.Context, handler authz.Subject, subject string, target authz.Target, comment string, validFrom time.Time, validUntil *time.Time) (*grant.AtomicGrantAssignment, error) {
	if err := w.checkTarget(target); err != nil {
		return nil, err
	}
	ctx = resolver.WithCache(ctx)
	if err := w.authorize(ctx, handler, target); err != nil {
		return nil, err
	}
	if err := w.confirmExists(ctx, target); err != nil {
		return nil, err
	}

	now := w.grants.Now()
	if validFrom.IsZero() {
		validFrom = now
	}
	var a *grant.AtomicGrantAssignment
	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		a, err = w.assignView(ctx, subject, target, grant.ReasonDirectGrant, comment, validFrom, validUntil)
		if err != nil {
			return err
		}
		_, err = w.AutoApproveOnDirectGrant(ctx, handler.ID, a)
		return err
	})
	if err != nil {
		return nil, oops.With("subject", subject).With("object_reference", target.Reference).Wrap(err)
	}
	changesTotal.WithLabelValues(string(authz.OutcomeGranted)).Inc()
	w.logger.InfoContext(ctx, "access granted",
		"subject", subject, "handler", handler.ID, "object_reference", target.Reference,
		"assignment_id", a.ID.String())

	note := w.notification(subject, target, handler.ID, comment, now)
	note.Outcome = authz.OutcomeGranted
	note.AssignmentID = a.ID.String()
	note.ValidUntil = a.Window.ValidUntil
	w.emit(ctx, []authz.Notification{note})
	return a, nil
}

// RevokeAccess ends every active view assignment subject holds on target so
// that access stops today. It returns the ended assignments; when there were
// none nothing is written and nobody is notified.
func (w *Workflow) RevokeAccess(ctx context.Context, handler authz.Subject, subject string, target authz.Target, comment string) ([]*grant.AtomicGrantAssignment, error) {
	if err := w.checkTarget(target); err != nil {
		return nil, err
	}
	ctx = resolver.WithCache(ctx)
	if err := w.authorize(ctx, handler, target); err != nil {
		return nil, err
	}

	now := w.grants.Now()
	var ended []*grant.AtomicGrantAssignment
	err := w.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		ended, err = w.grants.EndAssignmentsOn(ctx, subject, w.view.Name, target.Reference, now)
		return err
	})
	if err != nil {
		return nil, oops.With("subject", subject).With("object_reference", target.Reference).Wrap(err)
	}
	if len(ended) == 0 {
		return nil, nil
	}
	changesTotal.WithLabelValues(string(authz.OutcomeRevoked)).Inc()
	w.logger.InfoContext(ctx, "access revoked",
		"subject", subject, "handler", handler.ID, "object_reference", target.Reference, "count", len(ended))

	note := w.notification(subject, target, handler.ID, comment, now)
	note.Outcome = authz.OutcomeRevoked
	note.AssignmentID = ended[0].ID.String()
	w.emit(ctx, []authz.Notification{note})
	return ended, nil
}

// PendingForObject lists pending requests for target, oldest first.
func (w *Workflow) PendingForObject(ctx context.Context, handler authz.Subject, target authz.Target) ([]*AccessRequest, error) {
	if err := w.checkTarget(target); err != nil {
		return nil, err
	}
	if err := w.authorize(resolver.WithCache(ctx), handler, target); err != nil {
		return nil, err
	}
	rs, err := w.requests.ListPendingAccessRequests(ctx, "", target.Reference)
	if err != nil {
		return nil, oops.With("object_reference", target.Reference).Wrap(err)
	}
	return rs, nil
}

// PendingFor lists the requester's own pending requests, oldest first.
func (w *Workflow) PendingFor(ctx context.Context, requester string) ([]*AccessRequest, error) {
	rs, err := w.requests.ListPendingAccessRequests(ctx, requester, "")
	if err != nil {
		return nil, oops.With("requester", requester).Wrap(err)
	}
	return rs, nil
}

// RefreshPending counts every pending request and publishes the count as
// the zac_access_requests_pending gauge.
func (w *Workflow) RefreshPending(ctx context.Context) (int, error) {
	rs, err := w.requests.ListPendingAccessRequests(ctx, "", "")
	if err != nil {
		return 0, oops.With("operation", "count pending requests").Wrap(err)
	}
	pendingGauge.Set(float64(len(rs)))
	return len(rs), nil
}

func (w *Workflow) assignView(ctx context.Context, subject string, target authz.Target, reason, comment string, from time.Time, until *time.Time) (*grant.AtomicGrantAssignment, error) {
	g, err := w.grants.UpsertAtomicGrant(ctx, target.Type, w.view.Name, target.Reference)
	if err != nil {
		return nil, err
	}
	return w.grants.AssignAtomicGrant(ctx, subject, g, reason, comment, from, until)
}

func (w *Workflow) checkTarget(target authz.Target) error {
	if _, err := authz.ParseObjectType(string(target.Type)); err != nil {
		return err
	}
	if target.Type != w.view.ObjectType {
		return oops.Code(authz.CodeAccessRequestInvalid).
			With("field", "object_type").With("object_type", string(target.Type)).
			Errorf("access can only be requested for %s objects", w.view.ObjectType)
	}
	if strings.TrimSpace(target.Reference) == "" {
		return oops.Code(authz.CodeAccessRequestInvalid).With("field", "object_reference").
			Errorf("object reference cannot be empty")
	}
	return nil
}

func (w *Workflow) confirmExists(ctx context.Context, target authz.Target) error {
	if w.objects == nil {
		return nil
	}
	_, err := w.objects.Resolve(ctx, target)
	return err
}

func (w *Workflow) authorize(ctx context.Context, handler authz.Subject, target authz.Target) error {
	if w.authorizer == nil {
		return nil
	}
	ok, err := w.authorizer.HasPermission(ctx, handler, permission.CaseHandleAccess, &target)
	if err != nil {
		return oops.With("handler", handler.ID).With("object_reference", target.Reference).Wrap(err)
	}
	if !ok {
		return oops.Code(authz.CodeAccessDenied).
			With("handler", handler.ID).
			With("permission", permission.CaseHandleAccess).
			With("object_reference", target.Reference).
			Errorf("handler may not manage access to %s", target.Reference)
	}
	return nil
}

func (w *Workflow) notification(subject string, target authz.Target, handler, comment string, now time.Time) authz.Notification {
	return authz.Notification{
		Subject:         subject,
		ObjectType:      target.Type,
		ObjectReference: target.Reference,
		Handler:         handler,
		Comment:         comment,
		OccurredAt:      now,
	}
}

// emit delivers committed notifications. Failures are logged and dropped.
func (w *Workflow) emit(ctx context.Context, notes []authz.Notification) {
	if w.notifier == nil {
		return
	}
	for _, n := range notes {
		if err := w.notifier.Notify(ctx, n); err != nil {
			notifyFailures.Inc()
			errutil.Log(ctx, w.logger, slog.LevelWarn, "notification failed", err,
				"subject", n.Subject,
				"object_reference", n.ObjectReference,
				"outcome", string(n.Outcome))
		}
	}
}

func alreadyHandled(r *AccessRequest) error {
	return oops.Code(authz.CodeAlreadyHandled).
		With("request_id", r.ID.String()).
		With("result", string(r.Result)).
		Errorf("access request already %s", r.Result)
}

func (r *AccessRequest) target() authz.Target {
	return authz.Target{Type: r.ObjectType, Reference: r.ObjectReference}
}
