// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package confidentiality defines the ordered classification levels
// ("vertrouwelijkheidaanduiding") carried by cases, documents and policies.
package confidentiality

import (
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
)

// Level is a confidentiality classification.
type Level string

// Levels from least to most confidential.
const (
	Openbaar          Level = "openbaar"
	BeperktOpenbaar   Level = "beperkt_openbaar"
	Intern            Level = "intern"
	Zaakvertrouwelijk Level = "zaakvertrouwelijk"
	Vertrouwelijk     Level = "vertrouwelijk"
	Confidentieel     Level = "confidentieel"
	Geheim            Level = "geheim"
	ZeerGeheim        Level = "zeer_geheim"
)

// ordered is the total order. Index is the rank.
var ordered = [...]Level{
	Openbaar,
	BeperktOpenbaar,
	Intern,
	Zaakvertrouwelijk,
	Vertrouwelijk,
	Confidentieel,
	Geheim,
	ZeerGeheim,
}

var ranks = func() map[Level]int {
	m := make(map[Level]int, len(ordered))
	for i, l := range ordered {
		m[l] = i
	}
	return m
}()

// All returns every level, least confidential first.
func All() []Level {
	out := make([]Level, len(ordered))
	copy(out, ordered[:])
	return out
}

// Parse validates s as a known level.
func Parse(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", oops.Code("CONFIDENTIALITY_UNKNOWN").With("level", s).
			Errorf("unknown confidentiality level %q", s)
	}
	return l, nil
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	_, ok := ranks[l]
	return ok
}

// Rank returns the position of l in the order, or -1 for unknown levels.
func Rank(l Level) int {
	r, ok := ranks[l]
	if !ok {
		return -1
	}
	return r
}

// Leq reports whether a is at most as confidential as b.
// Unknown levels never compare: an unknown a or b yields false.
func Leq(a, b Level) bool {
	ra, rb := Rank(a), Rank(b)
	if ra < 0 || rb < 0 {
		return false
	}
	return ra <= rb
}

// LevelsUpTo returns all levels with rank <= Rank(ceiling), least confidential first.
// An unknown ceiling yields nil.
func LevelsUpTo(ceiling Level) []Level {
	r := Rank(ceiling)
	if r < 0 {
		return nil
	}
	out := make([]Level, r+1)
	copy(out, ordered[:r+1])
	return out
}

func (l Level) String() string {
	return string(l)
}

// JSONSchema describes Level as a string enum for reflected policy schemas.
func (Level) JSONSchema() *jsonschema.Schema {
	enum := make([]any, len(ordered))
	for i, l := range ordered {
		enum[i] = string(l)
	}
	return &jsonschema.Schema{
		Type:        "string",
		Enum:        enum,
		Description: "confidentiality level, least to most confidential",
	}
}
