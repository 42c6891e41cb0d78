// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package blueprint implements the declarative policies attached to
// blueprint grants. A policy is a small typed attribute set per object type
// (catalogue, type description, maximum confidentiality). The same policy
// decides whether a single resolved object matches and compiles into a
// search index clause for pre-filtering listings.
package blueprint

import (
	"encoding/json"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
)

// Policy is implemented by one struct per object type. The set of
// implementations is closed.
type Policy interface {
	// ObjectType returns the kind of object the policy applies to.
	ObjectType() authz.ObjectType
	// Matches reports whether obj satisfies the policy.
	Matches(obj authz.Object) bool
	// Clause compiles the policy into an index filter. A non-empty prefix
	// nests every field under that path.
	Clause(prefix string) Clause

	isPolicy()
}

// fieldNames maps the three matched attributes onto index field names.
type fieldNames struct {
	domain          string
	typeDescription string
	confidentiality string
}

// matchAttributes is the single match rule shared by every policy variant.
func matchAttributes(ot authz.ObjectType, domain, typeDesc string, maxConf confidentiality.Level, obj authz.Object) bool {
	return obj.Type == ot &&
		obj.Domain == domain &&
		obj.TypeDescription == typeDesc &&
		confidentiality.Leq(obj.Confidentiality, maxConf)
}

// compileAttributes builds the clause equivalent of matchAttributes.
func compileAttributes(f fieldNames, prefix, domain, typeDesc string, maxConf confidentiality.Level) Clause {
	levels := confidentiality.LevelsUpTo(maxConf)
	values := make([]string, len(levels))
	for i, l := range levels {
		values[i] = string(l)
	}
	return Clause{
		Path: prefix,
		Must: []Condition{
			{Field: withPrefix(prefix, f.domain), Op: OpTerm, Values: []string{domain}},
			{Field: withPrefix(prefix, f.typeDescription), Op: OpTerm, Values: []string{typeDesc}},
			{Field: withPrefix(prefix, f.confidentiality), Op: OpTerms, Values: values},
		},
	}
}

// FieldPath returns field nested under prefix.
func FieldPath(prefix, field string) string {
	return withPrefix(prefix, field)
}

func withPrefix(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// Decode validates raw against the schema of ot and returns the typed policy.
func Decode(ot authz.ObjectType, raw json.RawMessage) (Policy, error) {
	v, err := variantFor(ot)
	if err != nil {
		return nil, err
	}
	if err := v.schema.validate(raw); err != nil {
		return nil, oops.With("object_type", string(ot)).Wrap(err)
	}
	p := v.newPolicy()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, oops.Code(authz.CodePolicyInvalid).With("object_type", string(ot)).Wrap(err)
	}
	return deref(p), nil
}

// Encode returns the canonical JSON form of p. Identical policies always
// encode to identical bytes.
func Encode(p Policy) (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, oops.Code(authz.CodePolicyInvalid).With("object_type", string(p.ObjectType())).Wrap(err)
	}
	return data, nil
}

// Validate checks p against its object type schema.
func Validate(p Policy) error {
	if p == nil {
		return oops.Code(authz.CodePolicyInvalid).Errorf("policy is required")
	}
	v, err := variantFor(p.ObjectType())
	if err != nil {
		return err
	}
	raw, err := Encode(p)
	if err != nil {
		return err
	}
	if err := v.schema.validate(raw); err != nil {
		return oops.With("object_type", string(p.ObjectType())).Wrap(err)
	}
	return nil
}

// Equal reports whether a and b are the same policy.
func Equal(a, b Policy) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ObjectType() != b.ObjectType() {
		return false
	}
	ea, errA := Encode(a)
	eb, errB := Encode(b)
	return errA == nil && errB == nil && string(ea) == string(eb)
}

// IndexFields returns the flat document an index would hold for obj, using
// the same field names as the compiled clauses. Unknown object types yield nil.
func IndexFields(obj authz.Object, prefix string) map[string]any {
	v, err := variantFor(obj.Type)
	if err != nil {
		return nil
	}
	return map[string]any{
		withPrefix(prefix, v.fields.domain):          obj.Domain,
		withPrefix(prefix, v.fields.typeDescription): obj.TypeDescription,
		withPrefix(prefix, v.fields.confidentiality): string(obj.Confidentiality),
		withPrefix(prefix, ReferenceField):           obj.Reference,
	}
}

// variant ties an object type to its policy struct, schema and index fields.
type variant struct {
	newPolicy func() Policy
	schema    *policySchema
	fields    fieldNames
}

var (
	caseVariant = variant{
		newPolicy: func() Policy { return &CasePolicy{} },
		schema:    newPolicySchema(authz.ObjectTypeCase, &CasePolicy{}),
		fields:    caseFields,
	}
	documentVariant = variant{
		newPolicy: func() Policy { return &DocumentPolicy{} },
		schema:    newPolicySchema(authz.ObjectTypeDocument, &DocumentPolicy{}),
		fields:    documentFields,
	}
)

func variantFor(ot authz.ObjectType) (variant, error) {
	switch ot {
	case authz.ObjectTypeCase:
		return caseVariant, nil
	case authz.ObjectTypeDocument:
		return documentVariant, nil
	default:
		return variant{}, oops.Code(authz.CodeObjectTypeUnknown).With("object_type", string(ot)).
			Errorf("no policy variant for object type %q", ot)
	}
}

// deref turns the decode target back into the value type callers compare.
func deref(p Policy) Policy {
	switch v := p.(type) {
	case *CasePolicy:
		return *v
	case *DocumentPolicy:
		return *v
	default:
		return p
	}
}
