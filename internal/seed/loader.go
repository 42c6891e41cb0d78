// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package seed

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/profile"
)

// Result counts what a Load changed.
type Result struct {
	RolesCreated      int
	RolesUpdated      int
	RolesUnchanged    int
	ProfilesCreated   int
	ProfilesUpdated   int
	ProfilesUnchanged int
}

// Loader applies seed files through the grant service and profile
// aggregator, so seeded rows go through the same validation and upserts as
// any other write.
type Loader struct {
	grants   *grant.Service
	profiles *profile.Aggregator
	tx       grant.Transactor
	logger   *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(grants *grant.Service, profiles *profile.Aggregator, tx grant.Transactor, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{grants: grants, profiles: profiles, tx: tx, logger: logger}
}

// Load validates f and applies it in a single transaction. Loading the same
// file twice leaves storage unchanged.
func (l *Loader) Load(ctx context.Context, f *File) (Result, error) {
	if err := f.Validate(l.grants.Registry()); err != nil {
		return Result{}, err
	}
	var res Result
	err := l.tx.InTransaction(ctx, func(ctx context.Context) error {
		res = Result{}
		for _, r := range f.Roles {
			if err := l.loadRole(ctx, r, &res); err != nil {
				return err
			}
		}
		for _, p := range f.Profiles {
			if err := l.loadProfile(ctx, p, &res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	l.logger.InfoContext(ctx, "seed loaded",
		"roles_created", res.RolesCreated, "roles_updated", res.RolesUpdated,
		"profiles_created", res.ProfilesCreated, "profiles_updated", res.ProfilesUpdated)
	return res, nil
}

func (l *Loader) loadRole(ctx context.Context, r Role, res *Result) error {
	name := strings.TrimSpace(r.Name)
	existing, err := l.grants.Role(ctx, name)
	switch {
	case authz.IsNotFound(err):
		if _, err := l.grants.CreateRole(ctx, name, r.Permissions); err != nil {
			return err
		}
		res.RolesCreated++
		return nil
	case err != nil:
		return err
	}

	want, err := l.grants.Registry().Expand(r.Permissions)
	if err != nil {
		return oops.With("role", name).Wrap(err)
	}
	if slices.Equal(want, existing.Permissions) {
		res.RolesUnchanged++
		return nil
	}
	if _, err := l.grants.SetRolePermissions(ctx, existing.ID, want); err != nil {
		return err
	}
	res.RolesUpdated++
	return nil
}

func (l *Loader) loadProfile(ctx context.Context, p Profile, res *Result) error {
	name := strings.TrimSpace(p.Name)
	specs, err := l.specs(ctx, p)
	if err != nil {
		return oops.With("profile", name).Wrap(err)
	}

	existing, err := l.profiles.Profile(ctx, name)
	switch {
	case authz.IsNotFound(err):
		if _, err := l.profiles.CreateProfile(ctx, name, specs); err != nil {
			return err
		}
		res.ProfilesCreated++
		return nil
	case err != nil:
		return err
	}

	if sameGrants(existing.BlueprintGrants, specs) {
		res.ProfilesUnchanged++
		return nil
	}
	if _, err := l.profiles.ReplaceBlueprintGrants(ctx, existing.ID, specs); err != nil {
		return err
	}
	res.ProfilesUpdated++
	return nil
}

func (l *Loader) specs(ctx context.Context, p Profile) ([]profile.GrantSpec, error) {
	roles := make(map[string]*permission.Role)
	specs := make([]profile.GrantSpec, 0, len(p.Grants))
	for i, g := range p.Grants {
		name := strings.TrimSpace(g.Role)
		role, ok := roles[name]
		if !ok {
			var err error
			role, err = l.grants.Role(ctx, name)
			if err != nil {
				return nil, oops.With("grant", i).Wrap(err)
			}
			roles[name] = role
		}
		pol, err := g.policy()
		if err != nil {
			return nil, oops.With("grant", i).Wrap(err)
		}
		specs = append(specs, profile.GrantSpec{Role: role, Policy: pol})
	}
	return specs, nil
}

// sameGrants reports whether the stored grants are exactly the distinct
// (role, policy) pairs of specs, ignoring order.
func sameGrants(stored []*grant.BlueprintGrant, specs []profile.GrantSpec) bool {
	var want []profile.GrantSpec
	for _, s := range specs {
		if !slices.ContainsFunc(want, func(w profile.GrantSpec) bool { return specMatches(w, s.Role, s.Policy) }) {
			want = append(want, s)
		}
	}
	if len(stored) != len(want) {
		return false
	}
	for _, g := range stored {
		if !slices.ContainsFunc(want, func(w profile.GrantSpec) bool { return specMatches(w, g.Role, g.Policy) }) {
			return false
		}
	}
	return true
}

func specMatches(s profile.GrantSpec, role *permission.Role, pol blueprint.Policy) bool {
	return s.Role != nil && role != nil && s.Role.ID == role.ID && blueprint.Equal(s.Policy, pol)
}
