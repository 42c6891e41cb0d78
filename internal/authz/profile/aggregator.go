// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package profile groups blueprint grants into authorization profiles and
// assigns those profiles to subjects over validity windows.
package profile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// GrantSpec describes one blueprint grant of a profile before it is stored.
type GrantSpec struct {
	Role   *permission.Role
	Policy blueprint.Policy
}

// Config holds dependencies for Aggregator.
type Config struct {
	Profiles   grant.ProfileRepository
	Grants     *grant.Service
	Transactor grant.Transactor
	Logger     *slog.Logger
}

// Aggregator manages authorization profiles.
type Aggregator struct {
	profiles grant.ProfileRepository
	grants   *grant.Service
	tx       grant.Transactor
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		profiles: cfg.Profiles,
		grants:   cfg.Grants,
		tx:       cfg.Transactor,
		logger:   cfg.Logger,
	}
}

// CreateProfile stores a new profile with the given blueprint grants.
func (a *Aggregator) CreateProfile(ctx context.Context, name string, specs []GrantSpec) (*grant.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, oops.Code(authz.CodeAssignmentInvalid).With("field", "name").
			Errorf("profile name cannot be empty")
	}
	p := &grant.Profile{ID: ulid.Make(), UUID: uuid.New(), Name: name}
	err := a.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := a.profiles.CreateProfile(ctx, p); err != nil {
			return oops.Wrapf(err, "create profile %s", name)
		}
		gs, err := a.link(ctx, p.ID, specs)
		if err != nil {
			return err
		}
		p.BlueprintGrants = gs
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "profile created", "profile", p.Name, "grants", len(p.BlueprintGrants))
	return p, nil
}

// Profile returns a profile by name with its blueprint grants.
func (a *Aggregator) Profile(ctx context.Context, name string) (*grant.Profile, error) {
	p, err := a.profiles.GetProfileByName(ctx, name)
	if err != nil {
		return nil, oops.Wrapf(err, "get profile %s", name)
	}
	return p, nil
}

// ReplaceBlueprintGrants replaces the profile's grant set: every membership
// is cleared, then the new list is upserted and linked. Grant rows that
// drop out of the profile are kept for other profiles that reference them.
func (a *Aggregator) ReplaceBlueprintGrants(ctx context.Context, profileID ulid.ULID, specs []GrantSpec) (*grant.Profile, error) {
	var out *grant.Profile
	err := a.tx.InTransaction(ctx, func(ctx context.Context) error {
		p, err := a.profiles.GetProfile(ctx, profileID)
		if err != nil {
			return oops.Wrapf(err, "get profile %s", profileID)
		}
		if err := a.profiles.ClearProfileGrants(ctx, profileID); err != nil {
			return oops.With("profile", p.Name).Wrap(err)
		}
		gs, err := a.link(ctx, profileID, specs)
		if err != nil {
			return err
		}
		p.BlueprintGrants = gs
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Aggregator) link(ctx context.Context, profileID ulid.ULID, specs []GrantSpec) ([]*grant.BlueprintGrant, error) {
	out := make([]*grant.BlueprintGrant, 0, len(specs))
	seen := make(map[ulid.ULID]struct{}, len(specs))
	for i, spec := range specs {
		if spec.Policy == nil {
			return nil, oops.Code(authz.CodePolicyInvalid).With("index", i).Errorf("grant %d has no policy", i)
		}
		g, err := a.grants.UpsertBlueprintGrant(ctx, spec.Role, spec.Policy.ObjectType(), spec.Policy)
		if err != nil {
			return nil, oops.With("index", i).Wrap(err)
		}
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		if err := a.profiles.AddProfileGrant(ctx, profileID, g.ID); err != nil {
			return nil, oops.With("grant_id", g.ID.String()).Wrap(err)
		}
		out = append(out, g)
	}
	return out, nil
}

// AssignProfile gives subject the profile for [validFrom, validUntil].
func (a *Aggregator) AssignProfile(ctx context.Context, subject string, profileID ulid.ULID, validFrom time.Time, validUntil *time.Time) (*grant.ProfileAssignment, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, oops.Code(authz.CodeAssignmentInvalid).With("field", "subject").
			Errorf("subject cannot be empty")
	}
	w, err := grant.NewWindow(validFrom, validUntil)
	if err != nil {
		return nil, err
	}
	pa := &grant.ProfileAssignment{
		ID:        ulid.Make(),
		Subject:   subject,
		ProfileID: profileID,
		Window:    w,
		CreatedAt: a.grants.Now(),
	}
	if err := a.profiles.CreateProfileAssignment(ctx, pa); err != nil {
		return nil, oops.With("subject", subject).With("profile_id", profileID.String()).Wrap(err)
	}
	a.logger.InfoContext(ctx, "profile assigned",
		"subject", subject, "profile_id", profileID.String(),
		"valid_from", w.ValidFrom.Format(time.DateOnly))
	return pa, nil
}

// RevokeProfile removes every assignment of the profile to subject. Revoking
// a profile the subject does not hold is a no-op.
func (a *Aggregator) RevokeProfile(ctx context.Context, subject string, profileID ulid.ULID) error {
	n, err := a.profiles.DeleteProfileAssignments(ctx, subject, profileID)
	if err != nil {
		return oops.With("subject", subject).With("profile_id", profileID.String()).Wrap(err)
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "profile revoked",
			"subject", subject, "profile_id", profileID.String(), "assignments", n)
	}
	return nil
}

// EffectiveProfiles returns the distinct profiles the subject holds on asOf.
func (a *Aggregator) EffectiveProfiles(ctx context.Context, subject string, asOf time.Time) ([]*grant.Profile, error) {
	as, err := a.profiles.ActiveProfileAssignments(ctx, subject, asOf)
	if err != nil {
		return nil, oops.With("subject", subject).Wrap(err)
	}
	seen := make(map[ulid.ULID]struct{}, len(as))
	out := make([]*grant.Profile, 0, len(as))
	for _, pa := range as {
		if !pa.ActiveAt(asOf) {
			continue
		}
		if _, ok := seen[pa.ProfileID]; ok {
			continue
		}
		seen[pa.ProfileID] = struct{}{}
		p, err := a.profiles.GetProfile(ctx, pa.ProfileID)
		if err != nil {
			return nil, oops.Wrapf(err, "get profile %s", pa.ProfileID)
		}
		out = append(out, p)
	}
	return out, nil
}
