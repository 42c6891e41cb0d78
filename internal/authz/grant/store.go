// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package grant

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// Transactor executes a function within a database transaction.
// Repository methods called with the context passed to fn participate in
// the transaction; a non-nil error from fn rolls everything back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RoleRepository manages role persistence.
type RoleRepository interface {
	// CreateRole persists a new role. Returns ROLE_EXISTS if the name is taken.
	CreateRole(ctx context.Context, role *permission.Role) error

	// GetRole retrieves a role by ID.
	GetRole(ctx context.Context, id ulid.ULID) (*permission.Role, error)

	// GetRoleByName retrieves a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (*permission.Role, error)

	// SetRolePermissions replaces the permission list of a role.
	SetRolePermissions(ctx context.Context, id ulid.ULID, permissions []string) error

	// ListRoles returns all roles ordered by name.
	ListRoles(ctx context.Context) ([]*permission.Role, error)
}

// Repository manages grant and grant-assignment persistence.
type Repository interface {
	// UpsertBlueprintGrant returns the stored grant for (g.Role.ID, g.Policy),
	// creating it with g.ID when absent. Concurrent calls for the same key
	// return the same row.
	UpsertBlueprintGrant(ctx context.Context, g *BlueprintGrant) (*BlueprintGrant, error)

	// UpsertAtomicGrant returns the stored grant for (g.Permission,
	// g.ObjectReference), creating it with g.ID when absent.
	UpsertAtomicGrant(ctx context.Context, g *AtomicGrant) (*AtomicGrant, error)

	// CreateAtomicAssignment persists a new assignment of an existing grant.
	CreateAtomicAssignment(ctx context.Context, a *AtomicGrantAssignment) error

	// UpdateAtomicAssignmentWindow replaces the validity window of an assignment.
	UpdateAtomicAssignmentWindow(ctx context.Context, id ulid.ULID, w Window) error

	// DeleteAtomicAssignment removes an assignment.
	DeleteAtomicAssignment(ctx context.Context, id ulid.ULID) error

	// ActiveAtomicAssignments returns the subject's assignments whose window
	// covers asOf, with their grants.
	ActiveAtomicAssignments(ctx context.Context, subject string, asOf time.Time) ([]*AtomicGrantAssignment, error)

	// UnexpiredAtomicAssignments returns the subject's assignments that have
	// not ended before asOf, including those that start later.
	UnexpiredAtomicAssignments(ctx context.Context, subject string, asOf time.Time) ([]*AtomicGrantAssignment, error)

	// ActiveBlueprintGrants returns the distinct blueprint grants reachable
	// through the subject's profile assignments active on asOf. Roles are
	// loaded fresh so permission changes apply immediately.
	ActiveBlueprintGrants(ctx context.Context, subject string, asOf time.Time) ([]*BlueprintGrant, error)
}

// ProfileRepository manages authorization profiles and their assignments.
type ProfileRepository interface {
	// CreateProfile persists a new, empty profile.
	CreateProfile(ctx context.Context, p *Profile) error

	// GetProfile retrieves a profile and its blueprint grants by ID.
	GetProfile(ctx context.Context, id ulid.ULID) (*Profile, error)

	// GetProfileByName retrieves a profile and its blueprint grants by name.
	GetProfileByName(ctx context.Context, name string) (*Profile, error)

	// ClearProfileGrants unlinks every blueprint grant from a profile. The
	// grant rows themselves are kept.
	ClearProfileGrants(ctx context.Context, profileID ulid.ULID) error

	// AddProfileGrant links a blueprint grant to a profile. Linking twice is a no-op.
	AddProfileGrant(ctx context.Context, profileID, grantID ulid.ULID) error

	// CreateProfileAssignment persists a new profile assignment.
	CreateProfileAssignment(ctx context.Context, a *ProfileAssignment) error

	// DeleteProfileAssignments removes every assignment of the profile to the
	// subject and returns how many were removed.
	DeleteProfileAssignments(ctx context.Context, subject string, profileID ulid.ULID) (int64, error)

	// ActiveProfileAssignments returns the subject's profile assignments
	// whose window covers asOf.
	ActiveProfileAssignments(ctx context.Context, subject string, asOf time.Time) ([]*ProfileAssignment, error)
}
