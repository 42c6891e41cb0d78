// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package decision

import "fmt"

// Effect is the outcome of an evaluation and the grant source that caused it.
type Effect int

// Effects.
const (
	EffectDefaultDeny     Effect = iota // default_deny
	EffectAllowAtomic                   // allow_atomic
	EffectAllowBlueprint                // allow_blueprint
	EffectSuperuserBypass               // superuser_bypass
	EffectDenyUnresolved                // deny_unresolved
)

var effectNames = [...]string{"default_deny", "allow_atomic", "allow_blueprint", "superuser_bypass", "deny_unresolved"}

func (e Effect) String() string {
	if e < 0 || int(e) >= len(effectNames) {
		return fmt.Sprintf("effect(%d)", int(e))
	}
	return effectNames[e]
}

// Allows reports whether the effect grants access.
func (e Effect) Allows() bool {
	return e == EffectAllowAtomic || e == EffectAllowBlueprint || e == EffectSuperuserBypass
}

// Decision is the result of evaluating one permission check.
// The allowed field is unexported so it cannot disagree with Effect.
type Decision struct {
	allowed bool
	Effect  Effect
	Reason  string
	// GrantID identifies the atomic or blueprint grant that allowed access.
	GrantID string
}

// NewDecision creates a Decision whose allowed flag follows effect.
func NewDecision(effect Effect, reason, grantID string) Decision {
	return Decision{
		allowed: effect.Allows(),
		Effect:  effect,
		Reason:  reason,
		GrantID: grantID,
	}
}

// IsAllowed returns whether the decision grants access.
func (d Decision) IsAllowed() bool {
	return d.allowed
}

// Validate checks that the allowed flag matches the effect.
func (d Decision) Validate() error {
	if d.allowed != d.Effect.Allows() {
		return fmt.Errorf("decision invariant violated: allowed=%v but effect=%s", d.allowed, d.Effect)
	}
	return nil
}
