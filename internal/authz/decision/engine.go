// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package decision implements the allow/deny evaluation over atomic grants,
// blueprint grants reached through profiles, and the superuser bypass.
package decision

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/resolver"
)

// Grants is the read side of the grant store the engine evaluates.
type Grants interface {
	ActiveAtomicGrantsFor(ctx context.Context, subject string, asOf time.Time) ([]*grant.AtomicGrant, error)
	ActiveBlueprintGrantsFor(ctx context.Context, subject string, asOf time.Time) ([]*grant.BlueprintGrant, error)
}

// Config holds dependencies for Engine.
type Config struct {
	Grants      Grants
	Registry    *permission.Registry
	Objects     authz.ObjectResolver
	RoleHolders authz.RoleAssignmentLookup
	// Now returns the evaluation time. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Engine evaluates permission checks.
type Engine struct {
	grants      Grants
	registry    *permission.Registry
	objects     authz.ObjectResolver
	roleHolders authz.RoleAssignmentLookup
	now         func() time.Time
	logger      *slog.Logger
}

// NewEngine creates an Engine. The object resolver and role lookup are
// wrapped with request-scoped caching and fail-closed classification.
func NewEngine(cfg Config) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = permission.DefaultRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		grants:   cfg.Grants,
		registry: cfg.Registry,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if cfg.Objects != nil {
		e.objects = resolver.NewObjects(cfg.Objects, cfg.Logger)
	}
	if cfg.RoleHolders != nil {
		e.roleHolders = resolver.NewRoleHolders(cfg.RoleHolders, cfg.Logger)
	}
	return e
}

// HasPermission reports whether subject holds perm, on target when given
// or on any object when target is nil.
func (e *Engine) HasPermission(ctx context.Context, subject authz.Subject, perm string, target *authz.Target) (bool, error) {
	d, err := e.Evaluate(ctx, subject, perm, target)
	if err != nil {
		return false, err
	}
	return d.IsAllowed(), nil
}

// Evaluate decides whether subject holds perm on target. A nil target asks
// whether any grant for perm exists at all.
//
// Errors are returned for unknown permissions and for targets the resolver
// cannot find; both come with a deny decision. An unreachable resolver or
// role lookup yields EffectDenyUnresolved without an error.
func (e *Engine) Evaluate(ctx context.Context, subject authz.Subject, perm string, target *authz.Target) (Decision, error) {
	return e.evaluate(ctx, subject, perm, target, nil)
}

// CheckObject is Evaluate for an object whose attributes are already known.
func (e *Engine) CheckObject(ctx context.Context, subject authz.Subject, perm string, obj authz.Object) (Decision, error) {
	target := obj.Target()
	return e.evaluate(ctx, subject, perm, &target, &obj)
}

func (e *Engine) evaluate(ctx context.Context, subject authz.Subject, perm string, target *authz.Target, known *authz.Object) (Decision, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return NewDecision(EffectDefaultDeny, "context cancelled", ""), oops.Wrapf(err, "context cancelled before evaluation")
	}

	d, err := e.decide(ctx, subject, perm, target, known)
	if valErr := d.Validate(); valErr != nil {
		return NewDecision(EffectDefaultDeny, "invalid decision", ""), oops.Wrapf(valErr, "decision validation failed")
	}
	RecordEvaluationMetrics(time.Since(start), d.Effect)

	attrs := []any{"subject", subject.ID, "permission", perm, "effect", d.Effect.String(), "reason", d.Reason}
	if target != nil {
		attrs = append(attrs, "object_reference", target.Reference)
	}
	if d.GrantID != "" {
		attrs = append(attrs, "grant_id", d.GrantID)
	}
	e.logger.DebugContext(ctx, "permission evaluated", attrs...)
	return d, err
}

func (e *Engine) decide(ctx context.Context, subject authz.Subject, perm string, target *authz.Target, known *authz.Object) (Decision, error) {
	if subject.Superuser {
		return NewDecision(EffectSuperuserBypass, "superuser", ""), nil
	}

	p, err := e.registry.Get(perm)
	if err != nil {
		return NewDecision(EffectDefaultDeny, "unknown permission", ""), err
	}
	if target != nil && target.Type != p.ObjectType {
		return NewDecision(EffectDefaultDeny, "permission does not apply to "+string(target.Type), ""), nil
	}

	ctx = resolver.WithCache(ctx)
	asOf := e.now()

	atomics, err := e.grants.ActiveAtomicGrantsFor(ctx, subject.ID, asOf)
	if err != nil {
		return NewDecision(EffectDefaultDeny, "grant store error", ""), oops.With("subject", subject.ID).Wrap(err)
	}
	for _, g := range atomics {
		if g.Permission != perm {
			continue
		}
		if target == nil || (!p.RequiresCaseAssignment && g.ObjectReference == target.Reference) {
			return NewDecision(EffectAllowAtomic, "atomic grant", g.ID.String()), nil
		}
		if g.ObjectReference != target.Reference {
			continue
		}
		obj, d, err := e.resolve(ctx, *target, known)
		if d != nil {
			return *d, err
		}
		ok, d := e.caseAssignment(ctx, subject, obj)
		if d != nil {
			return *d, nil
		}
		if !ok {
			return NewDecision(EffectDefaultDeny, "subject is not assigned to the case", ""), nil
		}
		return NewDecision(EffectAllowAtomic, "atomic grant", g.ID.String()), nil
	}

	blueprints, err := e.grants.ActiveBlueprintGrantsFor(ctx, subject.ID, asOf)
	if err != nil {
		return NewDecision(EffectDefaultDeny, "grant store error", ""), oops.With("subject", subject.ID).Wrap(err)
	}
	candidates := make([]*grant.BlueprintGrant, 0, len(blueprints))
	for _, g := range blueprints {
		if g.Allows(perm) && g.ObjectType == p.ObjectType {
			candidates = append(candidates, g)
		}
	}
	if len(candidates) == 0 {
		return NewDecision(EffectDefaultDeny, "no grant for permission", ""), nil
	}
	if target == nil {
		return NewDecision(EffectAllowBlueprint, "blueprint grant exists", candidates[0].ID.String()), nil
	}

	obj, d, err := e.resolve(ctx, *target, known)
	if d != nil {
		return *d, err
	}

	assigned := !p.RequiresCaseAssignment
	checkedAssignment := false
	for _, g := range candidates {
		if !g.Policy.Matches(obj) {
			continue
		}
		if !checkedAssignment && !assigned {
			checkedAssignment = true
			ok, d := e.caseAssignment(ctx, subject, obj)
			if d != nil {
				return *d, nil
			}
			assigned = ok
		}
		if !assigned {
			return NewDecision(EffectDefaultDeny, "subject is not assigned to the case", ""), nil
		}
		return NewDecision(EffectAllowBlueprint, "blueprint policy matched", g.ID.String()), nil
	}
	return NewDecision(EffectDefaultDeny, "no policy matched", ""), nil
}

// resolve returns the object's attributes or the deny decision to return.
func (e *Engine) resolve(ctx context.Context, target authz.Target, known *authz.Object) (authz.Object, *Decision, error) {
	if known != nil {
		return *known, nil, nil
	}
	if e.objects == nil {
		collaboratorFailures.WithLabelValues("object_resolver").Inc()
		d := NewDecision(EffectDenyUnresolved, "no object resolver configured", "")
		return authz.Object{}, &d, nil
	}
	obj, err := e.objects.Resolve(ctx, target)
	if err == nil {
		return obj, nil, nil
	}
	if authz.IsNotFound(err) {
		d := NewDecision(EffectDenyUnresolved, "object not found", "")
		return authz.Object{}, &d, err
	}
	collaboratorFailures.WithLabelValues("object_resolver").Inc()
	e.logger.WarnContext(ctx, "denying: object could not be resolved",
		"object_reference", target.Reference, "error", err)
	d := NewDecision(EffectDenyUnresolved, "object resolver unavailable", "")
	return authz.Object{}, &d, nil
}

// caseAssignment checks the behandelaar/initiator rule. A non-nil decision
// means the lookup failed and access is denied.
func (e *Engine) caseAssignment(ctx context.Context, subject authz.Subject, obj authz.Object) (bool, *Decision) {
	if e.roleHolders == nil {
		collaboratorFailures.WithLabelValues("role_lookup").Inc()
		d := NewDecision(EffectDenyUnresolved, "no role assignment lookup configured", "")
		return false, &d
	}
	ok, err := resolver.HoldsAny(ctx, e.roleHolders, obj.Reference, subject.ID,
		authz.RoleKindBehandelaar, authz.RoleKindInitiator)
	if err != nil {
		collaboratorFailures.WithLabelValues("role_lookup").Inc()
		e.logger.WarnContext(ctx, "denying: role assignments could not be read",
			"object_reference", obj.Reference, "error", err)
		d := NewDecision(EffectDenyUnresolved, "role assignment lookup unavailable", "")
		return false, &d
	}
	return ok, nil
}

// EffectivePermissions returns the sorted permission names subject holds
// through active atomic grants and the roles of active blueprint grants.
// Superusers hold every registered permission.
func (e *Engine) EffectivePermissions(ctx context.Context, subject authz.Subject) ([]string, error) {
	if subject.Superuser {
		return e.registry.Names(), nil
	}
	asOf := e.now()
	atomics, err := e.grants.ActiveAtomicGrantsFor(ctx, subject.ID, asOf)
	if err != nil {
		return nil, oops.With("subject", subject.ID).Wrap(err)
	}
	blueprints, err := e.grants.ActiveBlueprintGrantsFor(ctx, subject.ID, asOf)
	if err != nil {
		return nil, oops.With("subject", subject.ID).Wrap(err)
	}
	var names []string
	for _, g := range atomics {
		names = append(names, g.Permission)
	}
	for _, g := range blueprints {
		if g.Role != nil {
			names = append(names, g.Role.Permissions...)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// ReusablePolicies returns the distinct policies of the subject's active
// blueprint grants on perm's object type whose role contains perm.
func (e *Engine) ReusablePolicies(ctx context.Context, subject authz.Subject, perm string) ([]blueprint.Policy, error) {
	p, err := e.registry.Get(perm)
	if err != nil {
		return nil, err
	}
	blueprints, err := e.grants.ActiveBlueprintGrantsFor(ctx, subject.ID, e.now())
	if err != nil {
		return nil, oops.With("subject", subject.ID).Wrap(err)
	}
	var out []blueprint.Policy
	for _, g := range blueprints {
		if !g.Allows(perm) || g.ObjectType != p.ObjectType {
			continue
		}
		if slices.ContainsFunc(out, func(have blueprint.Policy) bool { return blueprint.Equal(have, g.Policy) }) {
			continue
		}
		out = append(out, g.Policy)
	}
	return out, nil
}

// SearchFilter compiles the subject's grants for perm on objects of ot into
// an index filter. Superusers get an unrestricted filter; subjects without
// grants get one that matches nothing. Permissions that also require a case
// role yield an empty filter, since the index cannot check role assignments.
func (e *Engine) SearchFilter(ctx context.Context, subject authz.Subject, perm string, ot authz.ObjectType, prefix string) (blueprint.Filter, error) {
	f := blueprint.Filter{ReferenceField: blueprint.FieldPath(prefix, blueprint.ReferenceField)}
	if subject.Superuser {
		f.Unrestricted = true
		return f, nil
	}
	p, err := e.registry.Get(perm)
	if err != nil {
		return f, err
	}
	if _, err := authz.ParseObjectType(string(ot)); err != nil {
		return f, err
	}
	if p.ObjectType != ot {
		return f, nil
	}

	if p.RequiresCaseAssignment {
		return f, nil
	}

	policies, err := e.ReusablePolicies(ctx, subject, perm)
	if err != nil {
		return f, err
	}
	for _, pol := range policies {
		if pol.ObjectType() == ot {
			f.Clauses = append(f.Clauses, pol.Clause(prefix))
		}
	}

	atomics, err := e.grants.ActiveAtomicGrantsFor(ctx, subject.ID, e.now())
	if err != nil {
		return f, oops.With("subject", subject.ID).Wrap(err)
	}
	for _, g := range atomics {
		if g.Permission == perm && g.ObjectType == ot {
			f.References = append(f.References, g.ObjectReference)
		}
	}
	slices.Sort(f.References)
	f.References = slices.Compact(f.References)
	return f, nil
}

// ApplySearchFilter compiles the subject's filter and hands it to sink.
func (e *Engine) ApplySearchFilter(ctx context.Context, sink blueprint.SearchFilterSink, subject authz.Subject, perm string, ot authz.ObjectType, prefix string) error {
	f, err := e.SearchFilter(ctx, subject, perm, ot, prefix)
	if err != nil {
		return err
	}
	if err := sink.ApplyFilter(ctx, f); err != nil {
		return oops.With("subject", subject.ID).With("permission", perm).Wrap(err)
	}
	return nil
}
