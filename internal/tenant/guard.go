// Package tenant enforces organization isolation on every store call.
//
// The organization is always passed explicitly in a Scope. Nothing in this package (or
// anywhere in the store) reads a "current" organization from context values or globals;
// an empty Scope is a contract violation, not a request for a default.
package tenant

import (
	"strings"

	"github.com/roach88/recordstore/internal/apperr"
)

// Scope identifies who is calling and on behalf of which organization.
type Scope struct {
	// OrganizationID is the tenant boundary for the call. Required.
	OrganizationID string `json:"organization_id"`

	// Actor is the caller-supplied identity used for created_by/updated_by stamping.
	Actor string `json:"actor,omitempty"`
}

// NewScope creates a Scope.
func NewScope(organizationID, actor string) Scope {
	return Scope{OrganizationID: organizationID, Actor: actor}
}

// Require rejects a scope without an organization id.
func Require(s Scope) error {
	if strings.TrimSpace(s.OrganizationID) == "" {
		return apperr.TenantRequired()
	}
	if strings.TrimSpace(s.OrganizationID) != s.OrganizationID {
		return apperr.Invalid("organization_id", "organization_id must not contain surrounding whitespace")
	}
	return nil
}

// Check validates the scope and the organization id carried by a payload.
// An empty payload organization is allowed (see Stamp); a different one is a mismatch.
func Check(s Scope, recordKind, payloadOrg string) error {
	if err := Require(s); err != nil {
		return err
	}
	if payloadOrg != "" && payloadOrg != s.OrganizationID {
		return apperr.TenantMismatch(recordKind, "", s.OrganizationID, payloadOrg)
	}
	return nil
}

// Stamp returns the organization id a payload must carry: the scope's.
// Call after Check.
func Stamp(s Scope, payloadOrg string) string {
	if payloadOrg == "" {
		return s.OrganizationID
	}
	return payloadOrg
}

// Owns rejects a stored record that lives under a different organization than the scope.
func Owns(s Scope, recordKind, id, recordOrg string) error {
	if recordOrg != s.OrganizationID {
		return apperr.TenantMismatch(recordKind, id, s.OrganizationID, recordOrg)
	}
	return nil
}

// ActorOr returns the scope actor, or fallback when none was supplied.
func (s Scope) ActorOr(fallback string) string {
	if s.Actor == "" {
		return fallback
	}
	return s.Actor
}
