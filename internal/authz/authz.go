// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package authz holds the shared vocabulary of the authorization engine:
// subjects, target objects, the closed set of object types, and the narrow
// interfaces through which the engine talks to external registries.
//
// The engine itself is split over subpackages:
//   - confidentiality: ordering of classification levels
//   - permission: the permission registry and roles
//   - blueprint: per-object-type policies, matching and filter compilation
//   - grant: blueprint and atomic grants with validity windows
//   - profile: authorization profiles and their assignment to subjects
//   - decision: the allow/deny evaluation
//   - accessrequest: the request/approval workflow
package authz

import (
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz/confidentiality"
)

// ObjectType identifies the kind of object a grant targets.
type ObjectType string

// Object types known to the engine. Adding a type requires a policy
// variant in package blueprint.
const (
	ObjectTypeCase     ObjectType = "case"
	ObjectTypeDocument ObjectType = "document"
)

// ObjectTypes returns all supported object types.
func ObjectTypes() []ObjectType {
	return []ObjectType{ObjectTypeCase, ObjectTypeDocument}
}

// ParseObjectType validates s as a supported object type.
func ParseObjectType(s string) (ObjectType, error) {
	switch ObjectType(s) {
	case ObjectTypeCase, ObjectTypeDocument:
		return ObjectType(s), nil
	default:
		return "", oops.Code(CodeObjectTypeUnknown).With("object_type", s).
			Errorf("unknown object type %q", s)
	}
}

func (t ObjectType) String() string {
	return string(t)
}

// Subject is the principal a decision is made for.
type Subject struct {
	ID string
	// Superuser subjects bypass grant evaluation entirely.
	Superuser bool
}

// NewSubject returns a regular (non-superuser) subject.
func NewSubject(id string) Subject {
	return Subject{ID: id}
}

// Target references an object that may still need resolving.
type Target struct {
	Type      ObjectType
	Reference string
}

// Object carries the attributes policies are matched against.
type Object struct {
	Type      ObjectType
	Reference string
	// Domain is the catalogue the object's type belongs to.
	Domain string
	// TypeDescription is the description ("omschrijving") of the object's type.
	TypeDescription string
	Confidentiality confidentiality.Level
}

// Target returns the reference part of o.
func (o Object) Target() Target {
	return Target{Type: o.Type, Reference: o.Reference}
}
