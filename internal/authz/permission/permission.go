// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package permission defines atomic capabilities, the registry that holds
// them, and roles that bundle capability names.
//
// The registry is built once at process start and is immutable afterwards.
// Registering the same name twice is a configuration error.
package permission

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Permission is an atomic capability.
type Permission struct {
	Name        string
	Description string
	// ObjectType is the kind of object the permission is checked against.
	ObjectType authz.ObjectType
	// RequiresCaseAssignment restricts access, atomic or blueprint, to
	// subjects that are an active behandelaar or initiator of the case.
	RequiresCaseAssignment bool
}

// Default permission names.
const (
	CaseView          = "zaken:inzien"
	CaseEdit          = "zaken:wijzigen"
	CaseClose         = "zaken:afsluiten"
	CaseRequestAccess = "zaken:toegang-aanvragen"
	CaseHandleAccess  = "zaken:toegang-verlenen"
	CaseProcessTasks  = "zaakproces:taken-uitvoeren"
	DocumentView      = "documenten:inzien"
	DocumentEdit      = "documenten:bijwerken"
	DocumentDownload  = "documenten:downloaden"
	DocumentLock      = "documenten:vergrendelen"
)

// Defaults returns the built-in permissions.
func Defaults() []Permission {
	return []Permission{
		{Name: CaseView, Description: "Read case details", ObjectType: authz.ObjectTypeCase},
		{Name: CaseEdit, Description: "Change case attributes", ObjectType: authz.ObjectTypeCase},
		{Name: CaseClose, Description: "Close a case", ObjectType: authz.ObjectTypeCase},
		{Name: CaseRequestAccess, Description: "Request access to a case", ObjectType: authz.ObjectTypeCase},
		{
			Name:                   CaseHandleAccess,
			Description:            "Grant and revoke access to a case, handle access requests",
			ObjectType:             authz.ObjectTypeCase,
			RequiresCaseAssignment: true,
		},
		{Name: CaseProcessTasks, Description: "Execute process tasks of a case", ObjectType: authz.ObjectTypeCase},
		{Name: DocumentView, Description: "Read document metadata", ObjectType: authz.ObjectTypeDocument},
		{Name: DocumentEdit, Description: "Update document contents", ObjectType: authz.ObjectTypeDocument},
		{Name: DocumentDownload, Description: "Download document contents", ObjectType: authz.ObjectTypeDocument},
		{Name: DocumentLock, Description: "Lock and unlock documents", ObjectType: authz.ObjectTypeDocument},
	}
}

// Registry is the read-only set of known permissions.
type Registry struct {
	byName map[string]Permission
	names  []string
}

// NewRegistry builds a registry from perms. It fails on empty or duplicate
// names and on unknown object types.
func NewRegistry(perms ...Permission) (*Registry, error) {
	r := &Registry{byName: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		if p.Name == "" {
			return nil, oops.Code(authz.CodePermissionUnknown).Errorf("permission name cannot be empty")
		}
		if _, exists := r.byName[p.Name]; exists {
			return nil, oops.Code(authz.CodePermissionDuplicate).With("permission", p.Name).
				Errorf("permission %q registered twice", p.Name)
		}
		if _, err := authz.ParseObjectType(string(p.ObjectType)); err != nil {
			return nil, oops.With("permission", p.Name).Wrap(err)
		}
		r.byName[p.Name] = p
		r.names = append(r.names, p.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// DefaultRegistry returns a registry holding Defaults.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the permission registered under name.
func (r *Registry) Lookup(name string) (Permission, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Get is Lookup with a PERMISSION_UNKNOWN error.
func (r *Registry) Get(name string) (Permission, error) {
	p, ok := r.byName[name]
	if !ok {
		return Permission{}, oops.Code(authz.CodePermissionUnknown).With("permission", name).
			Errorf("unknown permission %q", name)
	}
	return p, nil
}

// Names returns all permission names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns all permissions sorted by name.
func (r *Registry) All() []Permission {
	out := make([]Permission, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Match returns the sorted names matching pattern. Patterns use ':' as the
// segment separator, so "zaken:*" matches "zaken:inzien" but not
// "zaakproces:taken-uitvoeren".
func (r *Registry) Match(pattern string) ([]string, error) {
	g, err := glob.Compile(pattern, ':')
	if err != nil {
		return nil, oops.Code(authz.CodePermissionUnknown).With("pattern", pattern).Wrap(err)
	}
	var out []string
	for _, n := range r.names {
		if g.Match(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Expand resolves a list of names and glob patterns to registered names.
// Literal names must be registered; patterns must match at least one name.
func (r *Registry) Expand(entries []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, e := range entries {
		if !isPattern(e) {
			if _, err := r.Get(e); err != nil {
				return nil, err
			}
			add(e)
			continue
		}
		matched, err := r.Match(e)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, oops.Code(authz.CodePermissionUnknown).With("pattern", e).
				Errorf("pattern %q matches no permission", e)
		}
		for _, n := range matched {
			add(n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func isPattern(s string) bool {
	for _, c := range s {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
