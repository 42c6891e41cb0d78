// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package authz

import (
	"errors"

	"github.com/samber/oops"
)

// Configuration errors. Raised at registration time and never recovered.
const (
	CodePermissionDuplicate = "PERMISSION_DUPLICATE"
	CodePermissionUnknown   = "PERMISSION_UNKNOWN"
	CodeObjectTypeUnknown   = "OBJECT_TYPE_UNKNOWN"
)

// Validation errors.
const (
	CodePolicyInvalid        = "POLICY_INVALID"
	CodeAccessRequestInvalid = "ACCESS_REQUEST_INVALID"
	CodeAssignmentInvalid    = "ASSIGNMENT_INVALID"
	CodeRoleInvalid          = "ROLE_INVALID"
)

// Workflow conflicts.
const (
	CodeDuplicateRequest = "ACCESS_REQUEST_DUPLICATE"
	CodeAlreadyHandled   = "ACCESS_REQUEST_HANDLED"
	CodeAccessDenied     = "ACCESS_DENIED"
)

// Lookup and collaborator failures.
const (
	CodeObjectNotFound        = "OBJECT_NOT_FOUND"
	CodeRoleNotFound          = "ROLE_NOT_FOUND"
	CodeRoleExists            = "ROLE_EXISTS"
	CodeProfileNotFound       = "PROFILE_NOT_FOUND"
	CodeProfileExists         = "PROFILE_EXISTS"
	CodeGrantNotFound         = "GRANT_NOT_FOUND"
	CodeAccessRequestNotFound = "ACCESS_REQUEST_NOT_FOUND"
	CodeResolverUnavailable   = "RESOLVER_UNAVAILABLE"
)

// ErrNotFound is wrapped by every not-found error so callers can use errors.Is.
var ErrNotFound = errors.New("not found")

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}

// IsNotFound reports whether err signals a missing entity or object.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	for _, code := range []string{
		CodeObjectNotFound, CodeRoleNotFound, CodeProfileNotFound,
		CodeGrantNotFound, CodeAccessRequestNotFound,
	} {
		if HasCode(err, code) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return HasCode(err, CodePolicyInvalid) ||
		HasCode(err, CodeAccessRequestInvalid) ||
		HasCode(err, CodeAssignmentInvalid) ||
		HasCode(err, CodeRoleInvalid)
}

// IsDuplicateRequest reports whether err is a duplicate access request.
func IsDuplicateRequest(err error) bool {
	return HasCode(err, CodeDuplicateRequest)
}

// IsAlreadyHandled reports whether err signals a request in a terminal state.
func IsAlreadyHandled(err error) bool {
	return HasCode(err, CodeAlreadyHandled)
}

// IsAccessDenied reports whether err signals a failed authorization check.
func IsAccessDenied(err error) bool {
	return HasCode(err, CodeAccessDenied)
}
