// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package permission

import (
	"slices"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Role is a named, mutable bundle of permission names.
type Role struct {
	ID          ulid.ULID
	Name        string
	Permissions []string
}

// Has reports whether the role contains the permission name.
func (r *Role) Has(name string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.Permissions, name)
}

// Normalize sorts and de-duplicates the permission list.
func (r *Role) Normalize() {
	sort.Strings(r.Permissions)
	r.Permissions = slices.Compact(r.Permissions)
}

// ValidateRole checks that the role has a name and only registered permissions.
func ValidateRole(reg *Registry, r *Role) error {
	if strings.TrimSpace(r.Name) == "" {
		return oops.Code(authz.CodeRoleInvalid).With("field", "name").Errorf("role name cannot be empty")
	}
	for _, p := range r.Permissions {
		if _, ok := reg.Lookup(p); !ok {
			return oops.Code(authz.CodeRoleInvalid).With("role", r.Name).With("permission", p).
				Errorf("role %q references unknown permission %q", r.Name, p)
		}
	}
	return nil
}
