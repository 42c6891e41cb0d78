// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package authztest

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/zaakcentrum/zac/internal/authz"
)

// Objects is a fixed ObjectResolver keyed by reference.
type Objects struct {
	mu      sync.Mutex
	objects map[string]authz.Object
	calls   int
	err     error
}

var _ authz.ObjectResolver = (*Objects)(nil)

// NewObjects creates a resolver that knows the given objects.
func NewObjects(objs ...authz.Object) *Objects {
	o := &Objects{objects: make(map[string]authz.Object)}
	for _, obj := range objs {
		o.objects[obj.Reference] = obj
	}
	return o
}

// Add registers obj.
func (o *Objects) Add(obj authz.Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[obj.Reference] = obj
}

// FailWith makes every later Resolve return err.
func (o *Objects) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Calls returns how many times Resolve was called.
func (o *Objects) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// Resolve implements authz.ObjectResolver.
func (o *Objects) Resolve(_ context.Context, target authz.Target) (authz.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return authz.Object{}, o.err
	}
	obj, ok := o.objects[target.Reference]
	if !ok || obj.Type != target.Type {
		return authz.Object{}, oops.Code(authz.CodeObjectNotFound).
			With("object_reference", target.Reference).Wrap(authz.ErrNotFound)
	}
	return obj, nil
}

// RoleHolders is a fixed RoleAssignmentLookup.
type RoleHolders struct {
	mu      sync.Mutex
	holders map[string]map[authz.RoleKind][]string
	err     error
}

var _ authz.RoleAssignmentLookup = (*RoleHolders)(nil)

// NewRoleHolders creates an empty lookup.
func NewRoleHolders() *RoleHolders {
	return &RoleHolders{holders: make(map[string]map[authz.RoleKind][]string)}
}

// Assign records subject as holding kind on the object.
func (r *RoleHolders) Assign(objectReference string, kind authz.RoleKind, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holders[objectReference] == nil {
		r.holders[objectReference] = make(map[authz.RoleKind][]string)
	}
	r.holders[objectReference][kind] = append(r.holders[objectReference][kind], subject)
}

// FailWith makes every later lookup return err.
func (r *RoleHolders) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// ActiveRoleHolders implements authz.RoleAssignmentLookup.
func (r *RoleHolders) ActiveRoleHolders(_ context.Context, objectReference string, kind authz.RoleKind) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return slices.Clone(r.holders[objectReference][kind]), nil
}

// Notifications records every notification it receives.
type Notifications struct {
	mu   sync.Mutex
	sent []authz.Notification
	err  error
}

var _ authz.Notifier = (*Notifications)(nil)

// FailWith makes every later Notify record the notification and return err.
func (n *Notifications) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify implements authz.Notifier.
func (n *Notifications) Notify(_ context.Context, note authz.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

// Sent returns the recorded notifications.
func (n *Notifications) Sent() []authz.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}
