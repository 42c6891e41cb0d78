// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package grant defines the two grant kinds and their assignment to
// subjects.
//
// A BlueprintGrant binds a role to a policy and applies to a whole class of
// objects; subjects obtain it through authorization profiles. An AtomicGrant
// is one permission on one object; subjects hold it through time-windowed
// assignments. Both grant rows are shared and created through idempotent
// upserts keyed on their uniqueness constraint.
package grant

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// ReasonAccessRequest is the assignment reason recorded for grants produced
// by an approved access request.
const ReasonAccessRequest = "access granted via request"

// ReasonDirectGrant is the assignment reason recorded for handler-initiated
// grants.
const ReasonDirectGrant = "access granted by handler"

// BlueprintGrant applies a role's permissions to every object matching
// Policy. (Role.ID, Policy) is unique.
type BlueprintGrant struct {
	ID         ulid.ULID
	ObjectType authz.ObjectType
	Role       *permission.Role
	Policy     blueprint.Policy
}

// Allows reports whether the grant's role contains perm.
func (g *BlueprintGrant) Allows(perm string) bool {
	return g != nil && g.Role.Has(perm)
}

// AtomicGrant is one permission on one object, independent of its holders.
// (Permission, ObjectReference) is unique.
type AtomicGrant struct {
	ID              ulid.ULID
	ObjectType      authz.ObjectType
	Permission      string
	ObjectReference string
}

// AtomicGrantAssignment links a subject to an AtomicGrant for a window.
type AtomicGrantAssignment struct {
	ID        ulid.ULID
	Subject   string
	Grant     AtomicGrant
	Reason    string
	Comment   string
	Window    Window
	CreatedAt time.Time
}

// ActiveAt reports whether the assignment is in effect on asOf's date.
func (a *AtomicGrantAssignment) ActiveAt(asOf time.Time) bool {
	return a != nil && a.Window.ActiveAt(asOf)
}

// Profile is a named, reusable bundle of blueprint grants.
type Profile struct {
	ID              ulid.ULID
	UUID            uuid.UUID
	Name            string
	BlueprintGrants []*BlueprintGrant
}

// ProfileAssignment links a subject to a profile for a window. A subject may
// hold several overlapping assignments.
type ProfileAssignment struct {
	ID        ulid.ULID
	Subject   string
	ProfileID ulid.ULID
	Window    Window
	CreatedAt time.Time
}

// ActiveAt reports whether the assignment is in effect on asOf's date.
func (a *ProfileAssignment) ActiveAt(asOf time.Time) bool {
	return a != nil && a.Window.ActiveAt(asOf)
}
