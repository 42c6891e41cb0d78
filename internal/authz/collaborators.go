// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package authz

import (
	"context"
	"time"
)

// ObjectResolver resolves a reference to the attributes policies match on.
// Implementations return an error carrying CodeObjectNotFound (or wrapping
// ErrNotFound) for unknown references and CodeResolverUnavailable for
// transport failures.
type ObjectResolver interface {
	Resolve(ctx context.Context, target Target) (Object, error)
}

// RoleKind is the kind of role a subject plays on a case.
type RoleKind string

// Role kinds relevant to the access-handling rule.
const (
	RoleKindBehandelaar RoleKind = "behandelaar"
	RoleKindInitiator   RoleKind = "initiator"
)

// RoleAssignmentLookup lists the subjects currently holding a role on a case.
type RoleAssignmentLookup interface {
	ActiveRoleHolders(ctx context.Context, objectReference string, kind RoleKind) ([]string, error)
}

// Outcome describes what happened to a subject's access.
type Outcome string

// Notification outcomes.
const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeGranted  Outcome = "granted"
	OutcomeRevoked  Outcome = "revoked"
)

// Notification is delivered to a subject after an access change committed.
type Notification struct {
	Subject         string
	ObjectType      ObjectType
	ObjectReference string
	Outcome         Outcome
	// RequestID is set when the change handled an access request.
	RequestID string
	// AssignmentID is set when a grant assignment was created or ended.
	AssignmentID string
	Handler      string
	Comment      string
	ValidUntil   *time.Time
	OccurredAt   time.Time
}

// Notifier delivers notifications. Delivery failures never roll back the
// change that caused them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
