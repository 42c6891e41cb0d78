// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package resolver decorates the external object resolver and role
// assignment lookup with request-scoped caching and fail-closed error
// classification.
package resolver

import (
	"context"
	"log/slog"
	"slices"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Objects wraps an authz.ObjectResolver.
type Objects struct {
	next   authz.ObjectResolver
	logger *slog.Logger
}

var _ authz.ObjectResolver = (*Objects)(nil)

// NewObjects wraps next. A nil logger uses slog.Default.
func NewObjects(next authz.ObjectResolver, logger *slog.Logger) *Objects {
	if logger == nil {
		logger = slog.Default()
	}
	return &Objects{next: next, logger: logger}
}

// Resolve implements authz.ObjectResolver. Results are cached when ctx
// carries a request cache. Not-found errors propagate as OBJECT_NOT_FOUND;
// every other failure becomes RESOLVER_UNAVAILABLE. Errors are never cached.
func (o *Objects) Resolve(ctx context.Context, target authz.Target) (authz.Object, error) {
	key := "object\x00" + string(target.Type) + "\x00" + target.Reference
	cache, cached := cacheFrom(ctx)
	if cached {
		if v, ok := cache.get(key); ok {
			if obj, ok := v.(authz.Object); ok {
				return obj, nil
			}
		}
	}

	obj, err := o.next.Resolve(ctx, target)
	if err != nil {
		return authz.Object{}, o.classify(ctx, err, target)
	}
	if obj.Type == "" {
		obj.Type = target.Type
	}
	if obj.Reference == "" {
		obj.Reference = target.Reference
	}
	if cached {
		cache.put(key, obj)
	}
	return obj, nil
}

func (o *Objects) classify(ctx context.Context, err error, target authz.Target) error {
	if authz.IsNotFound(err) {
		return oops.Code(authz.CodeObjectNotFound).
			With("object_type", string(target.Type)).
			With("object_reference", target.Reference).
			Wrap(err)
	}
	o.logger.WarnContext(ctx, "object resolver unavailable",
		"object_type", string(target.Type),
		"object_reference", target.Reference,
		"error", err)
	return oops.Code(authz.CodeResolverUnavailable).
		With("object_type", string(target.Type)).
		With("object_reference", target.Reference).
		Wrap(err)
}

// RoleHolders wraps an authz.RoleAssignmentLookup.
type RoleHolders struct {
	next   authz.RoleAssignmentLookup
	logger *slog.Logger
}

var _ authz.RoleAssignmentLookup = (*RoleHolders)(nil)

// NewRoleHolders wraps next. A nil logger uses slog.Default.
func NewRoleHolders(next authz.RoleAssignmentLookup, logger *slog.Logger) *RoleHolders {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleHolders{next: next, logger: logger}
}

// ActiveRoleHolders implements authz.RoleAssignmentLookup with the same
// caching and error rules as Objects.Resolve.
func (r *RoleHolders) ActiveRoleHolders(ctx context.Context, objectReference string, kind authz.RoleKind) ([]string, error) {
	key := "roles\x00" + string(kind) + "\x00" + objectReference
	cache, cached := cacheFrom(ctx)
	if cached {
		if v, ok := cache.get(key); ok {
			if holders, ok := v.([]string); ok {
				return slices.Clone(holders), nil
			}
		}
	}

	holders, err := r.next.ActiveRoleHolders(ctx, objectReference, kind)
	if err != nil {
		r.logger.WarnContext(ctx, "role assignment lookup unavailable",
			"object_reference", objectReference, "role_kind", string(kind), "error", err)
		return nil, oops.Code(authz.CodeResolverUnavailable).
			With("object_reference", objectReference).
			With("role_kind", string(kind)).
			Wrap(err)
	}
	if cached {
		cache.put(key, slices.Clone(holders))
	}
	return holders, nil
}

// HoldsAny reports whether subject holds any of kinds on the object.
func HoldsAny(ctx context.Context, lookup authz.RoleAssignmentLookup, objectReference, subject string, kinds ...authz.RoleKind) (bool, error) {
	for _, kind := range kinds {
		holders, err := lookup.ActiveRoleHolders(ctx, objectReference, kind)
		if err != nil {
			return false, err
		}
		if slices.Contains(holders, subject) {
			return true, nil
		}
	}
	return false, nil
}
