// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package blueprint

import (
	"context"
	"slices"
)

// Op is a clause condition operator.
type Op string

// Condition operators.
const (
	// OpTerm requires the field to equal the single value.
	OpTerm Op = "term"
	// OpTerms requires the field to equal one of the values.
	OpTerms Op = "terms"
)

// Condition is one field constraint of a clause.
type Condition struct {
	Field  string
	Op     Op
	Values []string
}

// Clause is a conjunction of conditions, optionally nested under Path.
type Clause struct {
	Path string
	Must []Condition
}

// Query renders the clause as an Elasticsearch bool query.
func (c Clause) Query() map[string]any {
	must := make([]any, 0, len(c.Must))
	for _, cond := range c.Must {
		must = append(must, cond.query())
	}
	q := map[string]any{"bool": map[string]any{"filter": must}}
	if c.Path == "" {
		return q
	}
	return map[string]any{"nested": map[string]any{"path": c.Path, "query": q}}
}

func (cond Condition) query() map[string]any {
	if cond.Op == OpTerm && len(cond.Values) == 1 {
		return map[string]any{"term": map[string]any{cond.Field: cond.Values[0]}}
	}
	return map[string]any{"terms": map[string]any{cond.Field: cond.Values}}
}

// Matches evaluates the clause against a flat document keyed by field name.
func (c Clause) Matches(doc map[string]any) bool {
	for _, cond := range c.Must {
		if !cond.matches(doc) {
			return false
		}
	}
	return true
}

func (cond Condition) matches(doc map[string]any) bool {
	v, ok := doc[cond.Field].(string)
	if !ok {
		return false
	}
	switch cond.Op {
	case OpTerm:
		return len(cond.Values) == 1 && cond.Values[0] == v
	case OpTerms:
		return slices.Contains(cond.Values, v)
	default:
		return false
	}
}

// Filter is the disjunction a subject's grants compile to for one
// permission and object type.
type Filter struct {
	// Unrestricted filters nothing out.
	Unrestricted bool
	// Clauses come from reusable blueprint policies.
	Clauses []Clause
	// References are objects reachable through atomic grants.
	References []string
	// ReferenceField is the (possibly prefixed) field References match on.
	ReferenceField string
}

// Empty reports whether the filter can match nothing.
func (f Filter) Empty() bool {
	return !f.Unrestricted && len(f.Clauses) == 0 && len(f.References) == 0
}

// Query renders the filter as an Elasticsearch query.
func (f Filter) Query() map[string]any {
	if f.Unrestricted {
		return map[string]any{"match_all": map[string]any{}}
	}
	if f.Empty() {
		return map[string]any{"match_none": map[string]any{}}
	}
	should := make([]any, 0, len(f.Clauses)+1)
	for _, c := range f.Clauses {
		should = append(should, c.Query())
	}
	if len(f.References) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{f.ReferenceField: f.References}})
	}
	return map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}}
}

// Matches evaluates the filter against a flat document.
func (f Filter) Matches(doc map[string]any) bool {
	if f.Unrestricted {
		return true
	}
	for _, c := range f.Clauses {
		if c.Matches(doc) {
			return true
		}
	}
	if ref, ok := doc[f.ReferenceField].(string); ok && slices.Contains(f.References, ref) {
		return true
	}
	return false
}

// SearchFilterSink applies a compiled filter to a search index query.
type SearchFilterSink interface {
	ApplyFilter(ctx context.Context, f Filter) error
}
