// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package authztest provides in-memory fakes of the authorization engine's
// stores and collaborators for unit tests.
package authztest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/accessrequest"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

type txKey struct{}

type blueprintRow struct {
	id         ulid.ULID
	objectType authz.ObjectType
	roleID     ulid.ULID
	policy     blueprint.Policy
	key        string
}

type state struct {
	roles              map[ulid.ULID]permission.Role
	blueprints         []blueprintRow
	profiles           map[ulid.ULID]grant.Profile
	profileGrants      map[ulid.ULID][]ulid.ULID
	profileAssignments []grant.ProfileAssignment
	atomics            []grant.AtomicGrant
	assignments        []grant.AtomicGrantAssignment
	requests           []accessrequest.AccessRequest
}

func (s state) clone() state {
	c := state{
		roles:              make(map[ulid.ULID]permission.Role, len(s.roles)),
		blueprints:         slices.Clone(s.blueprints),
		profiles:           make(map[ulid.ULID]grant.Profile, len(s.profiles)),
		profileGrants:      make(map[ulid.ULID][]ulid.ULID, len(s.profileGrants)),
		profileAssignments: slices.Clone(s.profileAssignments),
		atomics:            slices.Clone(s.atomics),
		assignments:        slices.Clone(s.assignments),
		requests:           slices.Clone(s.requests),
	}
	for k, v := range s.roles {
		v.Permissions = slices.Clone(v.Permissions)
		c.roles[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.profileGrants {
		c.profileGrants[k] = slices.Clone(v)
	}
	return c
}

// MemoryStore implements every grant, profile, role and access request
// repository in memory. InTransaction serializes transactions and restores
// the previous state when fn fails.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	data     state
	failures map[string]error
}

var (
	_ grant.Transactor         = (*MemoryStore)(nil)
	_ grant.RoleRepository     = (*MemoryStore)(nil)
	_ grant.Repository         = (*MemoryStore)(nil)
	_ grant.ProfileRepository  = (*MemoryStore)(nil)
	_ accessrequest.Repository = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: state{
			roles:         make(map[ulid.ULID]permission.Role),
			profiles:      make(map[ulid.ULID]grant.Profile),
			profileGrants: make(map[ulid.ULID][]ulid.ULID),
		},
		failures: make(map[string]error),
	}
}

// FailOn makes the next call of the named method return err.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

func (m *MemoryStore) injected(method string) error {
	err, ok := m.failures[method]
	if !ok {
		return nil
	}
	delete(m.failures, method)
	return err
}

// InTransaction implements grant.Transactor. Nested calls join the outer
// transaction.
func (m *MemoryStore) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// CreateRole implements grant.RoleRepository.
func (m *MemoryStore) CreateRole(_ context.Context, role *permission.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateRole"); err != nil {
		return err
	}
	for _, r := range m.data.roles {
		if r.Name == role.Name {
			return oops.Code(authz.CodeRoleExists).With("role", role.Name).Errorf("role %q already exists", role.Name)
		}
	}
	stored := *role
	stored.Permissions = slices.Clone(role.Permissions)
	m.data.roles[role.ID] = stored
	return nil
}

// GetRole implements grant.RoleRepository.
func (m *MemoryStore) GetRole(_ context.Context, id ulid.ULID) (*permission.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data.roles[id]
	if !ok {
		return nil, oops.Code(authz.CodeRoleNotFound).With("id", id.String()).Wrap(authz.ErrNotFound)
	}
	return cloneRole(r), nil
}

// GetRoleByName implements grant.RoleRepository.
func (m *MemoryStore) GetRoleByName(_ context.Context, name string) (*permission.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.data.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return nil, oops.Code(authz.CodeRoleNotFound).With("role", name).Wrap(authz.ErrNotFound)
}

// SetRolePermissions implements grant.RoleRepository.
func (m *MemoryStore) SetRolePermissions(_ context.Context, id ulid.ULID, permissions []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data.roles[id]
	if !ok {
		return oops.Code(authz.CodeRoleNotFound).With("id", id.String()).Wrap(authz.ErrNotFound)
	}
	r.Permissions = slices.Clone(permissions)
	m.data.roles[id] = r
	return nil
}

// ListRoles implements grant.RoleRepository.
func (m *MemoryStore) ListRoles(_ context.Context) ([]*permission.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*permission.Role, 0, len(m.data.roles))
	for _, r := range m.data.roles {
		out = append(out, cloneRole(r))
	}
	slices.SortFunc(out, func(a, b *permission.Role) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func cloneRole(r permission.Role) *permission.Role {
	r.Permissions = slices.Clone(r.Permissions)
	return &r
}

// UpsertBlueprintGrant implements grant.Repository.
func (m *MemoryStore) UpsertBlueprintGrant(_ context.Context, g *grant.BlueprintGrant) (*grant.BlueprintGrant, error) {
	raw, err := blueprint.Encode(g.Policy)
	if err != nil {
		return nil, err
	}
	key := g.Role.ID.String() + "\x00" + string(g.ObjectType) + "\x00" + string(raw)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpsertBlueprintGrant"); err != nil {
		return nil, err
	}
	role, ok := m.data.roles[g.Role.ID]
	if !ok {
		return nil, oops.Code(authz.CodeRoleNotFound).With("id", g.Role.ID.String()).Wrap(authz.ErrNotFound)
	}
	for _, row := range m.data.blueprints {
		if row.key == key {
			return m.blueprintGrant(row), nil
		}
	}
	row := blueprintRow{id: g.ID, objectType: g.ObjectType, roleID: role.ID, policy: g.Policy, key: key}
	m.data.blueprints = append(m.data.blueprints, row)
	return m.blueprintGrant(row), nil
}

// blueprintGrant builds the grant view of row with its role loaded fresh.
// Callers hold mu.
func (m *MemoryStore) blueprintGrant(row blueprintRow) *grant.BlueprintGrant {
	return &grant.BlueprintGrant{
		ID:         row.id,
		ObjectType: row.objectType,
		Role:       cloneRole(m.data.roles[row.roleID]),
		Policy:     row.policy,
	}
}

// UpsertAtomicGrant implements grant.Repository.
func (m *MemoryStore) UpsertAtomicGrant(_ context.Context, g *grant.AtomicGrant) (*grant.AtomicGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpsertAtomicGrant"); err != nil {
		return nil, err
	}
	for _, existing := range m.data.atomics {
		if existing.Permission == g.Permission && existing.ObjectReference == g.ObjectReference {
			out := existing
			return &out, nil
		}
	}
	m.data.atomics = append(m.data.atomics, *g)
	out := *g
	return &out, nil
}

// CreateAtomicAssignment implements grant.Repository.
func (m *MemoryStore) CreateAtomicAssignment(_ context.Context, a *grant.AtomicGrantAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateAtomicAssignment"); err != nil {
		return err
	}
	if !slices.ContainsFunc(m.data.atomics, func(g grant.AtomicGrant) bool { return g.ID == a.Grant.ID }) {
		return oops.Code(authz.CodeGrantNotFound).With("grant_id", a.Grant.ID.String()).Wrap(authz.ErrNotFound)
	}
	m.data.assignments = append(m.data.assignments, *a)
	return nil
}

// UpdateAtomicAssignmentWindow implements grant.Repository.
func (m *MemoryStore) UpdateAtomicAssignmentWindow(_ context.Context, id ulid.ULID, w grant.Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateAtomicAssignmentWindow"); err != nil {
		return err
	}
	for i := range m.data.assignments {
		if m.data.assignments[i].ID == id {
			m.data.assignments[i].Window = w
			return nil
		}
	}
	return oops.Code(authz.CodeGrantNotFound).With("assignment_id", id.String()).Wrap(authz.ErrNotFound)
}

// DeleteAtomicAssignment implements grant.Repository.
func (m *MemoryStore) DeleteAtomicAssignment(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteAtomicAssignment"); err != nil {
		return err
	}
	n := len(m.data.assignments)
	m.data.assignments = slices.DeleteFunc(m.data.assignments, func(a grant.AtomicGrantAssignment) bool { return a.ID == id })
	if len(m.data.assignments) == n {
		return oops.Code(authz.CodeGrantNotFound).With("assignment_id", id.String()).Wrap(authz.ErrNotFound)
	}
	return nil
}

// UnexpiredAtomicAssignments implements grant.Repository.
func (m *MemoryStore) UnexpiredAtomicAssignments(_ context.Context, subject string, asOf time.Time) ([]*grant.AtomicGrantAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UnexpiredAtomicAssignments"); err != nil {
		return nil, err
	}
	day := grant.Day(asOf)
	var out []*grant.AtomicGrantAssignment
	for _, a := range m.data.assignments {
		if a.Subject == subject && (a.Window.ValidUntil == nil || !a.Window.ValidUntil.Before(day)) {
			out = append(out, &a)
		}
	}
	return out, nil
}

// ActiveAtomicAssignments implements grant.Repository.
func (m *MemoryStore) ActiveAtomicAssignments(_ context.Context, subject string, asOf time.Time) ([]*grant.AtomicGrantAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ActiveAtomicAssignments"); err != nil {
		return nil, err
	}
	var out []*grant.AtomicGrantAssignment
	for _, a := range m.data.assignments {
		if a.Subject == subject && a.Window.ActiveAt(asOf) {
			out = append(out, &a)
		}
	}
	return out, nil
}

// AtomicAssignments returns every stored assignment, active or not.
func (m *MemoryStore) AtomicAssignments() []grant.AtomicGrantAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data.assignments)
}

// AtomicGrants returns every stored atomic grant.
func (m *MemoryStore) AtomicGrants() []grant.AtomicGrant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data.atomics)
}

// BlueprintGrantCount returns the number of stored blueprint grants.
func (m *MemoryStore) BlueprintGrantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.blueprints)
}

// ActiveBlueprintGrants implements grant.Repository.
func (m *MemoryStore) ActiveBlueprintGrants(_ context.Context, subject string, asOf time.Time) ([]*grant.BlueprintGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ActiveBlueprintGrants"); err != nil {
		return nil, err
	}
	seen := make(map[ulid.ULID]struct{})
	var out []*grant.BlueprintGrant
	for _, pa := range m.data.profileAssignments {
		if pa.Subject != subject || !pa.Window.ActiveAt(asOf) {
			continue
		}
		for _, gid := range m.data.profileGrants[pa.ProfileID] {
			if _, ok := seen[gid]; ok {
				continue
			}
			seen[gid] = struct{}{}
			if row, ok := m.blueprintRow(gid); ok {
				out = append(out, m.blueprintGrant(row))
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) blueprintRow(id ulid.ULID) (blueprintRow, bool) {
	for _, row := range m.data.blueprints {
		if row.id == id {
			return row, true
		}
	}
	return blueprintRow{}, false
}

// CreateProfile implements grant.ProfileRepository.
func (m *MemoryStore) CreateProfile(_ context.Context, p *grant.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateProfile"); err != nil {
		return err
	}
	for _, existing := range m.data.profiles {
		if existing.Name == p.Name {
			return oops.Code(authz.CodeProfileExists).With("profile", p.Name).Errorf("profile %q already exists", p.Name)
		}
	}
	stored := *p
	stored.BlueprintGrants = nil
	m.data.profiles[p.ID] = stored
	return nil
}

// GetProfile implements grant.ProfileRepository.
func (m *MemoryStore) GetProfile(_ context.Context, id ulid.ULID) (*grant.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.profiles[id]
	if !ok {
		return nil, oops.Code(authz.CodeProfileNotFound).With("id", id.String()).Wrap(authz.ErrNotFound)
	}
	return m.profile(p), nil
}

// GetProfileByName implements grant.ProfileRepository.
func (m *MemoryStore) GetProfileByName(_ context.Context, name string) (*grant.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.data.profiles {
		if p.Name == name {
			return m.profile(p), nil
		}
	}
	return nil, oops.Code(authz.CodeProfileNotFound).With("profile", name).Wrap(authz.ErrNotFound)
}

func (m *MemoryStore) profile(p grant.Profile) *grant.Profile {
	out := p
	out.BlueprintGrants = nil
	for _, gid := range m.data.profileGrants[p.ID] {
		if row, ok := m.blueprintRow(gid); ok {
			out.BlueprintGrants = append(out.BlueprintGrants, m.blueprintGrant(row))
		}
	}
	return &out
}

// ClearProfileGrants implements grant.ProfileRepository.
func (m *MemoryStore) ClearProfileGrants(_ context.Context, profileID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ClearProfileGrants"); err != nil {
		return err
	}
	delete(m.data.profileGrants, profileID)
	return nil
}

// AddProfileGrant implements grant.ProfileRepository.
func (m *MemoryStore) AddProfileGrant(_ context.Context, profileID, grantID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("AddProfileGrant"); err != nil {
		return err
	}
	if _, ok := m.data.profiles[profileID]; !ok {
		return oops.Code(authz.CodeProfileNotFound).With("id", profileID.String()).Wrap(authz.ErrNotFound)
	}
	if _, ok := m.blueprintRow(grantID); !ok {
		return oops.Code(authz.CodeGrantNotFound).With("grant_id", grantID.String()).Wrap(authz.ErrNotFound)
	}
	if !slices.Contains(m.data.profileGrants[profileID], grantID) {
		m.data.profileGrants[profileID] = append(m.data.profileGrants[profileID], grantID)
	}
	return nil
}

// CreateProfileAssignment implements grant.ProfileRepository.
func (m *MemoryStore) CreateProfileAssignment(_ context.Context, a *grant.ProfileAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateProfileAssignment"); err != nil {
		return err
	}
	if _, ok := m.data.profiles[a.ProfileID]; !ok {
		return oops.Code(authz.CodeProfileNotFound).With("id", a.ProfileID.String()).Wrap(authz.ErrNotFound)
	}
	m.data.profileAssignments = append(m.data.profileAssignments, *a)
	return nil
}

// DeleteProfileAssignments implements grant.ProfileRepository.
func (m *MemoryStore) DeleteProfileAssignments(_ context.Context, subject string, profileID ulid.ULID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteProfileAssignments"); err != nil {
		return 0, err
	}
	before := len(m.data.profileAssignments)
	m.data.profileAssignments = slices.DeleteFunc(m.data.profileAssignments, func(a grant.ProfileAssignment) bool {
		return a.Subject == subject && a.ProfileID == profileID
	})
	return int64(before - len(m.data.profileAssignments)), nil
}

// ActiveProfileAssignments implements grant.ProfileRepository.
func (m *MemoryStore) ActiveProfileAssignments(_ context.Context, subject string, asOf time.Time) ([]*grant.ProfileAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*grant.ProfileAssignment
	for _, a := range m.data.profileAssignments {
		if a.Subject == subject && a.Window.ActiveAt(asOf) {
			out = append(out, &a)
		}
	}
	return out, nil
}

// CreateAccessRequest implements accessrequest.Repository.
func (m *MemoryStore) CreateAccessRequest(_ context.Context, r *accessrequest.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateAccessRequest"); err != nil {
		return err
	}
	m.data.requests = append(m.data.requests, *r)
	return nil
}

// GetAccessRequest implements accessrequest.Repository.
func (m *MemoryStore) GetAccessRequest(_ context.Context, id ulid.ULID) (*accessrequest.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.data.requests {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, oops.Code(authz.CodeAccessRequestNotFound).With("request_id", id.String()).Wrap(authz.ErrNotFound)
}

// MarkAccessRequestHandled implements accessrequest.Repository.
func (m *MemoryStore) MarkAccessRequestHandled(_ context.Context, r *accessrequest.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("MarkAccessRequestHandled"); err != nil {
		return err
	}
	for i := range m.data.requests {
		stored := &m.data.requests[i]
		if stored.ID != r.ID {
			continue
		}
		if !stored.Pending() {
			return oops.Code(authz.CodeAlreadyHandled).
				With("request_id", r.ID.String()).With("result", string(stored.Result)).
				Errorf("access request already %s", stored.Result)
		}
		stored.Result = r.Result
		stored.Handler = r.Handler
		stored.HandlerComment = r.HandlerComment
		stored.HandledDate = r.HandledDate
		stored.ResultingAssignmentID = r.ResultingAssignmentID
		return nil
	}
	return oops.Code(authz.CodeAccessRequestNotFound).With("request_id", r.ID.String()).Wrap(authz.ErrNotFound)
}

// LockAccessRequests implements accessrequest.Repository. Transactions on
// the memory store already run one at a time.
func (m *MemoryStore) LockAccessRequests(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.injected("LockAccessRequests")
}

// ListPendingAccessRequests implements accessrequest.Repository.
func (m *MemoryStore) ListPendingAccessRequests(_ context.Context, requester, objectReference string) ([]*accessrequest.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListPendingAccessRequests"); err != nil {
		return nil, err
	}
	var out []*accessrequest.AccessRequest
	for _, r := range m.data.requests {
		if !r.Pending() {
			continue
		}
		if requester != "" && r.Requester != requester {
			continue
		}
		if objectReference != "" && r.ObjectReference != objectReference {
			continue
		}
		out = append(out, &r)
	}
	slices.SortStableFunc(out, func(a, b *accessrequest.AccessRequest) int {
		return a.RequestedDate.Compare(b.RequestedDate)
	})
	return out, nil
}
