// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package seed loads roles and authorization profiles from YAML seed files.
package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
	"github.com/zaakcentrum/zac/internal/authz/permission"
)

// Error codes.
const (
	CodeInvalid            = "SEED_INVALID"
	CodeVersionUnsupported = "SEED_VERSION_UNSUPPORTED"
)

// SupportedVersions is the range of seed file format versions this build reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

// File is a parsed seed file.
type File struct {
	Version  string    `yaml:"version"`
	Roles    []Role    `yaml:"roles"`
	Profiles []Profile `yaml:"profiles"`
}

// Role declares a role by name. Permissions may be glob patterns such as
// "zaken:*".
type Role struct {
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// Profile declares an authorization profile and its blueprint grants.
type Profile struct {
	Name   string  `yaml:"name"`
	Grants []Grant `yaml:"grants"`
}

// Grant is one blueprint grant of a profile. Policy holds the attribute bag
// for ObjectType and is validated against its schema.
type Grant struct {
	Role       string         `yaml:"role"`
	ObjectType string         `yaml:"object_type"`
	Policy     map[string]any `yaml:"policy"`
}

// ReadFile reads and parses the seed file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, oops.Code(CodeInvalid).With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return f, nil
}

// Parse decodes a seed file and checks its format version.
func Parse(data []byte) (*File, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, oops.Code(CodeInvalid).Errorf("seed file is empty")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.Code(CodeInvalid).Wrapf(err, "invalid YAML")
	}
	if err := checkVersion(f.Version); err != nil {
		return nil, err
	}
	return &f, nil
}

func checkVersion(v string) error {
	if v == "" {
		return oops.Code(CodeInvalid).With("field", "version").Errorf("version is required")
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return oops.Code(CodeInvalid).With("field", "version").With("version", v).Wrap(err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.Code(CodeInvalid).Wrap(err)
	}
	if !c.Check(ver) {
		return oops.Code(CodeVersionUnsupported).
			With("version", v).
			With("supported", SupportedVersions).
			Errorf("seed file version %s is not supported", v)
	}
	return nil
}

// Validate checks the file without touching storage: names are present and
// unique, permissions resolve against reg and every policy matches the
// schema of its object type. Roles referenced by profiles but not declared
// in the file must already exist when the file is loaded.
func (f *File) Validate(reg *permission.Registry) error {
	roles := make(map[string]struct{}, len(f.Roles))
	for i, r := range f.Roles {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return oops.Code(CodeInvalid).With("field", fmt.Sprintf("roles[%d].name", i)).
				Errorf("role name is required")
		}
		if _, dup := roles[name]; dup {
			return oops.Code(CodeInvalid).With("role", name).Errorf("role %s declared twice", name)
		}
		roles[name] = struct{}{}
		if _, err := reg.Expand(r.Permissions); err != nil {
			return oops.With("role", name).Wrap(err)
		}
	}

	profiles := make(map[string]struct{}, len(f.Profiles))
	for i, p := range f.Profiles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return oops.Code(CodeInvalid).With("field", fmt.Sprintf("profiles[%d].name", i)).
				Errorf("profile name is required")
		}
		if _, dup := profiles[name]; dup {
			return oops.Code(CodeInvalid).With("profile", name).Errorf("profile %s declared twice", name)
		}
		profiles[name] = struct{}{}
		for j, g := range p.Grants {
			if strings.TrimSpace(g.Role) == "" {
				return oops.Code(CodeInvalid).With("profile", name).
					With("field", fmt.Sprintf("grants[%d].role", j)).
					Errorf("grant role is required")
			}
			if _, err := g.policy(); err != nil {
				return oops.With("profile", name).With("grant", j).Wrap(err)
			}
		}
	}
	return nil
}

// policy decodes the grant's attribute bag into a typed blueprint policy.
func (g Grant) policy() (blueprint.Policy, error) {
	ot, err := authz.ParseObjectType(g.ObjectType)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(g.Policy)
	if err != nil {
		return nil, oops.Code(authz.CodePolicyInvalid).With("object_type", g.ObjectType).Wrap(err)
	}
	if g.Policy == nil {
		raw = nil
	}
	return blueprint.Decode(ot, raw)
}
