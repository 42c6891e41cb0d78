// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package grant

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Grants   Repository
	Roles    RoleRepository
	Registry *permission.Registry
	// Now returns the current time. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Service implements the grant store operations on top of a Repository.
// It validates input before anything is written.
type Service struct {
	grants   Repository
	roles    RoleRepository
	registry *permission.Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Registry == nil {
		cfg.Registry = permission.DefaultRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		grants:   cfg.Grants,
		roles:    cfg.Roles,
		registry: cfg.Registry,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// Registry returns the permission registry the service validates against.
func (s *Service) Registry() *permission.Registry {
	return s.registry
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateRole validates and persists a new role. Permission entries may be
// glob patterns over the registry.
func (s *Service) CreateRole(ctx context.Context, name string, permissions []string) (*permission.Role, error) {
	expanded, err := s.registry.Expand(permissions)
	if err != nil {
		return nil, oops.With("role", name).Wrap(err)
	}
	role := &permission.Role{ID: ulid.Make(), Name: strings.TrimSpace(name), Permissions: expanded}
	role.Normalize()
	if err := permission.ValidateRole(s.registry, role); err != nil {
		return nil, err
	}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return nil, oops.Wrapf(err, "create role %s", role.Name)
	}
	return role, nil
}

// SetRolePermissions replaces a role's permissions. The change applies to
// every subject holding a blueprint grant through the role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID ulid.ULID, permissions []string) (*permission.Role, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, oops.Wrapf(err, "get role %s", roleID)
	}
	expanded, err := s.registry.Expand(permissions)
	if err != nil {
		return nil, oops.With("role", role.Name).Wrap(err)
	}
	role.Permissions = expanded
	role.Normalize()
	if err := permission.ValidateRole(s.registry, role); err != nil {
		return nil, err
	}
	if err := s.roles.SetRolePermissions(ctx, role.ID, role.Permissions); err != nil {
		return nil, oops.Wrapf(err, "update role %s", role.Name)
	}
	s.logger.InfoContext(ctx, "role permissions replaced",
		"role", role.Name, "permissions", role.Permissions)
	return role, nil
}

// Role returns a role by name.
func (s *Service) Role(ctx context.Context, name string) (*permission.Role, error) {
	role, err := s.roles.GetRoleByName(ctx, name)
	if err != nil {
		return nil, oops.Wrapf(err, "get role %s", name)
	}
	return role, nil
}

// Roles lists all roles.
func (s *Service) Roles(ctx context.Context) ([]*permission.Role, error) {
	roles, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, oops.Wrap(err)
	}
	return roles, nil
}

// UpsertBlueprintGrant returns the grant for (role, policy), creating it when
// absent. The policy is validated against the object type's schema first.
func (s *Service) UpsertBlueprintGrant(ctx context.Context, role *permission.Role, ot authz.ObjectType, policy blueprint.Policy) (*BlueprintGrant, error) {
	if role == nil || role.ID.IsZero() {
		return nil, oops.Code(authz.CodeRoleInvalid).Errorf("blueprint grant requires a stored role")
	}
	if _, err := authz.ParseObjectType(string(ot)); err != nil {
		return nil, err
	}
	if err := blueprint.Validate(policy); err != nil {
		return nil, err
	}
	if policy.ObjectType() != ot {
		return nil, oops.Code(authz.CodePolicyInvalid).
			With("fields", []string{"object_type"}).
			With("object_type", string(ot)).
			With("policy_object_type", string(policy.ObjectType())).
			Errorf("policy for %s cannot be attached to %s", policy.ObjectType(), ot)
	}
	g, err := s.grants.UpsertBlueprintGrant(ctx, &BlueprintGrant{
		ID:         ulid.Make(),
		ObjectType: ot,
		Role:       role,
		Policy:     policy,
	})
	if err != nil {
		return nil, oops.With("role", role.Name).Wrap(err)
	}
	return g, nil
}

// UpsertBlueprintGrantJSON decodes a raw policy for ot and upserts the grant.
func (s *Service) UpsertBlueprintGrantJSON(ctx context.Context, role *permission.Role, ot authz.ObjectType, raw json.RawMessage) (*BlueprintGrant, error) {
	policy, err := blueprint.Decode(ot, raw)
	if err != nil {
		return nil, err
	}
	return s.UpsertBlueprintGrant(ctx, role, ot, policy)
}

// UpsertAtomicGrant returns the grant for (perm, reference), creating it when
// absent.
func (s *Service) UpsertAtomicGrant(ctx context.Context, ot authz.ObjectType, perm, reference string) (*AtomicGrant, error) {
	if _, err := authz.ParseObjectType(string(ot)); err != nil {
		return nil, err
	}
	p, err := s.registry.Get(perm)
	if err != nil {
		return nil, err
	}
	if p.ObjectType != ot {
		return nil, oops.Code(authz.CodeAssignmentInvalid).
			With("permission", perm).With("object_type", string(ot)).
			Errorf("permission %q does not apply to %s objects", perm, ot)
	}
	if strings.TrimSpace(reference) == "" {
		return nil, oops.Code(authz.CodeAssignmentInvalid).With("field", "object_reference").
			Errorf("object reference cannot be empty")
	}
	g, err := s.grants.UpsertAtomicGrant(ctx, &AtomicGrant{
		ID:              ulid.Make(),
		ObjectType:      ot,
		Permission:      perm,
		ObjectReference: reference,
	})
	if err != nil {
		return nil, oops.With("permission", perm).With("object_reference", reference).Wrap(err)
	}
	return g, nil
}

// AssignAtomicGrant assigns g to subject for [validFrom, validUntil].
func (s *Service) AssignAtomicGrant(ctx context.Context, subject string, g *AtomicGrant, reason, comment string, validFrom time.Time, validUntil *time.Time) (*AtomicGrantAssignment, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, oops.Code(authz.CodeAssignmentInvalid).With("field", "subject").
			Errorf("subject cannot be empty")
	}
	if g == nil || g.ID.IsZero() {
		return nil, oops.Code(authz.CodeAssignmentInvalid).With("field", "grant").
			Errorf("assignment requires a stored atomic grant")
	}
	w, err := NewWindow(validFrom, validUntil)
	if err != nil {
		return nil, err
	}
	a := &AtomicGrantAssignment{
		ID:        ulid.Make(),
		Subject:   subject,
		Grant:     *g,
		Reason:    reason,
		Comment:   comment,
		Window:    w,
		CreatedAt: s.now(),
	}
	if err := s.grants.CreateAtomicAssignment(ctx, a); err != nil {
		return nil, oops.With("subject", subject).With("grant_id", g.ID.String()).Wrap(err)
	}
	return a, nil
}

// ActiveAtomicAssignmentsFor returns the subject's assignments active on asOf.
func (s *Service) ActiveAtomicAssignmentsFor(ctx context.Context, subject string, asOf time.Time) ([]*AtomicGrantAssignment, error) {
	as, err := s.grants.ActiveAtomicAssignments(ctx, subject, asOf)
	if err != nil {
		return nil, oops.With("subject", subject).Wrap(err)
	}
	active := as[:0:0]
	for _, a := range as {
		if a.ActiveAt(asOf) {
			active = append(active, a)
		}
	}
	return active, nil
}

// ActiveAtomicGrantsFor returns the distinct atomic grants the subject holds
// on asOf.
func (s *Service) ActiveAtomicGrantsFor(ctx context.Context, subject string, asOf time.Time) ([]*AtomicGrant, error) {
	as, err := s.ActiveAtomicAssignmentsFor(ctx, subject, asOf)
	if err != nil {
		return nil, err
	}
	seen := make(map[ulid.ULID]struct{}, len(as))
	grants := make([]*AtomicGrant, 0, len(as))
	for _, a := range as {
		if _, ok := seen[a.Grant.ID]; ok {
			continue
		}
		seen[a.Grant.ID] = struct{}{}
		g := a.Grant
		grants = append(grants, &g)
	}
	return grants, nil
}

// ActiveAssignmentsOn returns the subject's active assignments of perm on
// one object.
func (s *Service) ActiveAssignmentsOn(ctx context.Context, subject, perm, reference string, asOf time.Time) ([]*AtomicGrantAssignment, error) {
	as, err := s.ActiveAtomicAssignmentsFor(ctx, subject, asOf)
	if err != nil {
		return nil, err
	}
	var out []*AtomicGrantAssignment
	for _, a := range as {
		if a.Grant.Permission == perm && a.Grant.ObjectReference == reference {
			out = append(out, a)
		}
	}
	return out, nil
}

// EndAssignmentsOn makes sure subject holds no assignment of perm on
// reference from asOf's date onward. Assignments that started earlier end
// the day before asOf; assignments starting on asOf or later are deleted.
// It returns every assignment it ended or deleted.
func (s *Service) EndAssignmentsOn(ctx context.Context, subject, perm, reference string, asOf time.Time) ([]*AtomicGrantAssignment, error) {
	as, err := s.grants.UnexpiredAtomicAssignments(ctx, subject, asOf)
	if err != nil {
		return nil, oops.With("subject", subject).Wrap(err)
	}
	var out []*AtomicGrantAssignment
	for _, a := range as {
		if a.Grant.Permission != perm || a.Grant.ObjectReference != reference {
			continue
		}
		if w, ok := a.Window.EndedBefore(asOf); ok {
			a.Window = w
			err = s.grants.UpdateAtomicAssignmentWindow(ctx, a.ID, w)
		} else {
			err = s.grants.DeleteAtomicAssignment(ctx, a.ID)
		}
		if err != nil {
			return nil, oops.With("assignment_id", a.ID.String()).Wrap(err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ActiveBlueprintGrantsFor returns the blueprint grants the subject holds on
// asOf through active profile assignments.
func (s *Service) ActiveBlueprintGrantsFor(ctx context.Context, subject string, asOf time.Time) ([]*BlueprintGrant, error) {
	gs, err := s.grants.ActiveBlueprintGrants(ctx, subject, asOf)
	if err != nil {
		return nil, oops.With("subject", subject).Wrap(err)
	}
	return gs, nil
}
