// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package blueprint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/zaakcentrum/zac/internal/authz"
)

// FieldError describes one invalid policy attribute.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors returns the per-field failures carried by a POLICY_INVALID error.
func FieldErrors(err error) []FieldError {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	fe, _ := oopsErr.Context()["errors"].([]FieldError)
	return fe
}

// policySchema is the JSON schema of one policy variant, reflected from its
// Go struct and compiled on first use.
type policySchema struct {
	objectType authz.ObjectType
	target     any

	once     sync.Once
	raw      []byte
	compiled *jschema.Schema
	err      error
}

func newPolicySchema(ot authz.ObjectType, target any) *policySchema {
	return &policySchema{objectType: ot, target: target}
}

// SchemaID returns the $id used for the policy schema of ot.
func SchemaID(ot authz.ObjectType) string {
	return "https://zac.local/schemas/policy/" + string(ot) + ".schema.json"
}

// Schema returns the JSON schema document for policies of ot.
func Schema(ot authz.ObjectType) ([]byte, error) {
	v, err := variantFor(ot)
	if err != nil {
		return nil, err
	}
	if err := v.schema.compile(); err != nil {
		return nil, err
	}
	return v.schema.raw, nil
}

func (s *policySchema) compile() error {
	s.once.Do(func() {
		r := jsonschema.Reflector{DoNotReference: true}
		schema := r.Reflect(s.target)
		schema.ID = jsonschema.ID(SchemaID(s.objectType))
		schema.Title = "Blueprint policy (" + string(s.objectType) + ")"

		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			s.err = oops.Code("POLICY_SCHEMA_FAILED").With("object_type", string(s.objectType)).Wrap(err)
			return
		}
		s.raw = data

		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			s.err = oops.Code("POLICY_SCHEMA_FAILED").With("object_type", string(s.objectType)).Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID(s.objectType), doc); err != nil {
			s.err = oops.Code("POLICY_SCHEMA_FAILED").With("object_type", string(s.objectType)).Wrap(err)
			return
		}
		s.compiled, s.err = c.Compile(SchemaID(s.objectType))
		if s.err != nil {
			s.err = oops.Code("POLICY_SCHEMA_FAILED").With("object_type", string(s.objectType)).Wrap(s.err)
		}
	})
	return s.err
}

// validate checks raw against the schema and reports every failing field.
func (s *policySchema) validate(raw json.RawMessage) error {
	if err := s.compile(); err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalidPolicy([]FieldError{{Field: "(root)", Message: "policy is required"}})
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return invalidPolicy([]FieldError{{Field: "(root)", Message: "not valid JSON"}})
	}
	err = s.compiled.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return oops.Code(authz.CodePolicyInvalid).Wrap(err)
	}
	var fields []FieldError
	collectFieldErrors(ve, &fields)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return invalidPolicy(fields)
}

func invalidPolicy(fields []FieldError) error {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Field)
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, f.Error())
	}
	return oops.Code(authz.CodePolicyInvalid).
		With("fields", names).
		With("errors", fields).
		Errorf("invalid policy: %s", strings.Join(msgs, "; "))
}

// collectFieldErrors walks the validation error tree down to its leaves.
func collectFieldErrors(ve *jschema.ValidationError, out *[]FieldError) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectFieldErrors(c, out)
		}
		return
	}
	field := strings.Join(ve.InstanceLocation, ".")
	if field == "" {
		field = "(root)"
	}
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		for _, m := range k.Missing {
			*out = append(*out, FieldError{Field: joinField(ve.InstanceLocation, m), Message: "is required"})
		}
	case *kind.AdditionalProperties:
		for _, p := range k.Properties {
			*out = append(*out, FieldError{Field: joinField(ve.InstanceLocation, p), Message: "is not allowed"})
		}
	case *kind.Enum:
		*out = append(*out, FieldError{Field: field, Message: "is not a known value"})
	case *kind.MinLength:
		*out = append(*out, FieldError{Field: field, Message: "cannot be empty"})
	case *kind.Type:
		*out = append(*out, FieldError{Field: field, Message: "has the wrong type"})
	default:
		*out = append(*out, FieldError{Field: field, Message: "is invalid"})
	}
}

func joinField(loc []string, name string) string {
	if len(loc) == 0 {
		return name
	}
	return strings.Join(loc, ".") + "." + name
}
