// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package profile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/authztest"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
	"github.com/zaakcentrum/zac/internal/authz/grant"
	"github.com/zaakcentrum/zac/internal/authz/permission"
	"github.com/zaakcentrum/zac/internal/authz/profile"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

var today = time.Date(2021, 1, 15, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store *authztest.MemoryStore
	svc   *grant.Service
	agg   *profile.Aggregator
	role  *permission.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := authztest.NewMemoryStore()
	svc := grant.NewService(grant.ServiceConfig{
		Grants: store,
		Roles:  store,
		Now:    func() time.Time { return today },
	})
	role, err := svc.CreateRole(context.Background(), "lezer", []string{permission.CaseView})
	require.NoError(t, err)
	return &fixture{
		store: store,
		svc:   svc,
		agg:   profile.NewAggregator(profile.Config{Profiles: store, Grants: svc, Transactor: store}),
		role:  role,
	}
}

func caseSpec(role *permission.Role, caseType string) profile.GrantSpec {
	return profile.GrantSpec{Role: role, Policy: blueprint.CasePolicy{
		Catalogus: "https://catalogi/1", ZaaktypeOmschrijving: caseType, MaxVA: confidentiality.Intern,
	}}
}

func TestAggregator_CreateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, err := f.agg.CreateProfile(ctx, "lezers", []profile.GrantSpec{
		caseSpec(f.role, "T1"), caseSpec(f.role, "T2"), caseSpec(f.role, "T1"),
	})
	require.NoError(t, err)
	assert.Len(t, p.BlueprintGrants, 2, "duplicate specs collapse onto one grant")
	assert.NotEqual(t, uuid.Nil, p.UUID)

	got, err := f.agg.Profile(ctx, "lezers")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Len(t, got.BlueprintGrants, 2)

	_, err = f.agg.CreateProfile(ctx, "lezers", nil)
	errutil.AssertErrorCode(t, err, authz.CodeProfileExists)

	_, err = f.agg.CreateProfile(ctx, " ", nil)
	errutil.AssertErrorCode(t, err, authz.CodeAssignmentInvalid)
}

func TestAggregator_CreateProfile_RollsBackOnInvalidGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.agg.CreateProfile(ctx, "lezers", []profile.GrantSpec{
		caseSpec(f.role, "T1"),
		{Role: f.role, Policy: blueprint.CasePolicy{Catalogus: "c"}},
	})
	errutil.AssertErrorCode(t, err, authz.CodePolicyInvalid)

	_, err = f.agg.Profile(ctx, "lezers")
	assert.True(t, authz.IsNotFound(err))
	assert.Zero(t, f.store.BlueprintGrantCount())
}

func TestAggregator_ReplaceBlueprintGrants_KeepsSharedGrants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.agg.CreateProfile(ctx, "a", []profile.GrantSpec{caseSpec(f.role, "T1"), caseSpec(f.role, "T2")})
	require.NoError(t, err)
	b, err := f.agg.CreateProfile(ctx, "b", []profile.GrantSpec{caseSpec(f.role, "T1")})
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.BlueprintGrantCount())

	replaced, err := f.agg.ReplaceBlueprintGrants(ctx, a.ID, []profile.GrantSpec{caseSpec(f.role, "T3")})
	require.NoError(t, err)
	require.Len(t, replaced.BlueprintGrants, 1)
	assert.Equal(t, "T3", replaced.BlueprintGrants[0].Policy.(blueprint.CasePolicy).ZaaktypeOmschrijving)
	assert.Equal(t, 3, f.store.BlueprintGrantCount(), "unlinked grants are not deleted")

	stillB, err := f.agg.Profile(ctx, "b")
	require.NoError(t, err)
	require.Len(t, stillB.BlueprintGrants, 1)
	assert.Equal(t, b.BlueprintGrants[0].ID, stillB.BlueprintGrants[0].ID)

	_, err = f.agg.ReplaceBlueprintGrants(ctx, ulid.Make(), nil)
	assert.True(t, authz.IsNotFound(err))
}

func TestAggregator_ReplaceBlueprintGrants_IsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.agg.CreateProfile(ctx, "a", []profile.GrantSpec{caseSpec(f.role, "T1")})
	require.NoError(t, err)

	f.store.FailOn("AddProfileGrant", errors.New("connection reset"))
	_, err = f.agg.ReplaceBlueprintGrants(ctx, a.ID, []profile.GrantSpec{caseSpec(f.role, "T2")})
	require.Error(t, err)

	got, err := f.agg.Profile(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.BlueprintGrants, 1)
	assert.Equal(t, a.BlueprintGrants[0].ID, got.BlueprintGrants[0].ID)
}

func TestAggregator_AssignAndRevoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.agg.CreateProfile(ctx, "lezers", []profile.GrantSpec{caseSpec(f.role, "T1")})
	require.NoError(t, err)
	other, err := f.agg.CreateProfile(ctx, "anders", nil)
	require.NoError(t, err)

	until := today.AddDate(0, 0, 10)
	_, err = f.agg.AssignProfile(ctx, "alice", p.ID, today.AddDate(0, 0, -5), &until)
	require.NoError(t, err)
	_, err = f.agg.AssignProfile(ctx, "alice", p.ID, today, nil)
	require.NoError(t, err)
	_, err = f.agg.AssignProfile(ctx, "alice", other.ID, today.AddDate(0, 0, 1), nil)
	require.NoError(t, err)

	effective, err := f.agg.EffectiveProfiles(ctx, "alice", today)
	require.NoError(t, err)
	require.Len(t, effective, 1, "overlapping assignments count once and future ones not at all")
	assert.Equal(t, p.ID, effective[0].ID)

	grants, err := f.svc.ActiveBlueprintGrantsFor(ctx, "alice", today)
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	require.NoError(t, f.agg.RevokeProfile(ctx, "alice", p.ID))
	require.NoError(t, f.agg.RevokeProfile(ctx, "alice", p.ID))

	effective, err = f.agg.EffectiveProfiles(ctx, "alice", today)
	require.NoError(t, err)
	assert.Empty(t, effective)

	effective, err = f.agg.EffectiveProfiles(ctx, "alice", today.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, other.ID, effective[0].ID)
}

func TestAggregator_AssignProfile_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.agg.CreateProfile(ctx, "lezers", nil)
	require.NoError(t, err)

	_, err = f.agg.AssignProfile(ctx, "", p.ID, today, nil)
	errutil.AssertErrorCode(t, err, authz.CodeAssignmentInvalid)

	before := today.AddDate(0, 0, -1)
	_, err = f.agg.AssignProfile(ctx, "alice", p.ID, today, &before)
	errutil.AssertErrorCode(t, err, authz.CodeAssignmentInvalid)

	_, err = f.agg.AssignProfile(ctx, "alice", ulid.Make(), today, nil)
	assert.True(t, authz.IsNotFound(err))
}
