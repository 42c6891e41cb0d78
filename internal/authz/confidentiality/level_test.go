// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package confidentiality_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
	"github.com/zaakcentrum/zac/pkg/errutil"
)

func TestRank_IsTotalOrder(t *testing.T) {
	levels := confidentiality.All()
	require.Len(t, levels, 8)
	for i, l := range levels {
		assert.Equal(t, i, confidentiality.Rank(l), "rank of %s", l)
	}
	assert.Equal(t, -1, confidentiality.Rank("topsecret"))
}

func TestLeq(t *testing.T) {
	tests := []struct {
		name string
		a, b confidentiality.Level
		want bool
	}{
		{"equal levels", confidentiality.Intern, confidentiality.Intern, true},
		{"less confidential object", confidentiality.Openbaar, confidentiality.Intern, true},
		{"more confidential object", confidentiality.Geheim, confidentiality.Intern, false},
		{"extremes", confidentiality.Openbaar, confidentiality.ZeerGeheim, true},
		{"unknown left", "nope", confidentiality.ZeerGeheim, false},
		{"unknown right", confidentiality.Openbaar, "nope", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, confidentiality.Leq(tt.a, tt.b))
		})
	}
}

func TestLeq_AgreesWithRank(t *testing.T) {
	for _, a := range confidentiality.All() {
		for _, b := range confidentiality.All() {
			assert.Equal(t,
				confidentiality.Rank(a) <= confidentiality.Rank(b),
				confidentiality.Leq(a, b), "%s <= %s", a, b)
		}
	}
}

func TestLevelsUpTo(t *testing.T) {
	assert.Equal(t,
		[]confidentiality.Level{confidentiality.Openbaar, confidentiality.BeperktOpenbaar, confidentiality.Intern},
		confidentiality.LevelsUpTo(confidentiality.Intern))
	assert.Len(t, confidentiality.LevelsUpTo(confidentiality.ZeerGeheim), 8)
	assert.Nil(t, confidentiality.LevelsUpTo("bogus"))
}

func TestParse(t *testing.T) {
	l, err := confidentiality.Parse("geheim")
	require.NoError(t, err)
	assert.Equal(t, confidentiality.Geheim, l)

	_, err = confidentiality.Parse("secret")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIDENTIALITY_UNKNOWN")
}

func TestJSONSchema_EnumListsAllLevels(t *testing.T) {
	s := confidentiality.Level("").JSONSchema()
	assert.Equal(t, "string", s.Type)
	assert.Len(t, s.Enum, 8)
	assert.Equal(t, "openbaar", s.Enum[0])
}
