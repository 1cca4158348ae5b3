package apperr

import (
	"sort"
	"strconv"
	"strings"
)

// TenantRequired reports a call made without an organization id.
func TenantRequired() *Error {
	return New(KindTenantRequired, "organization_id is required").WithField("organization_id")
}

// TenantMismatch reports a record or payload scoped to a different organization than declared.
func TenantMismatch(recordKind, id, declared, actual string) *Error {
	e := Newf(KindTenantMismatch, "%s belongs to a different organization", recordKind).
		WithField("organization_id").
		WithDetail("declared", declared)
	if id != "" {
		e.WithDetail("id", id)
	}
	if actual != "" {
		e.WithDetail("actual", actual)
	}
	return e
}

// InvalidSmartCode reports a malformed classification string.
func InvalidSmartCode(code, reason string) *Error {
	return Newf(KindInvalidSmartCode, "invalid smart code %q: %s", code, reason).
		WithField("smart_code").
		WithDetail("smart_code", code)
}

// NotFound reports a missing record under the requested organization.
func NotFound(recordKind, id string) *Error {
	return Newf(KindNotFound, "%s not found", recordKind).WithDetail("id", id)
}

// TypeMismatch reports a dynamic attribute value disagreeing with its declared type.
func TypeMismatch(field, declared, actual string) *Error {
	return Newf(KindTypeMismatch, "value of type %s does not match declared type %s", actual, declared).
		WithField(field).
		WithDetail("declared", declared).
		WithDetail("actual", actual)
}

// HasDependents reports a blocked hard delete. counts maps dependent kind to row count.
func HasDependents(recordKind, id string, counts map[string]int) *Error {
	kinds := make([]string, 0, len(counts))
	for k, n := range counts {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	e := Newf(KindHasDependents, "%s is still referenced by %s", recordKind, strings.Join(kinds, ", ")).
		WithDetail("id", id)
	for _, k := range kinds {
		e.WithDetail(k, strconv.Itoa(counts[k]))
	}
	return e
}

// Unbalanced reports a violated ledger sum invariant.
func Unbalanced(message string) *Error {
	return New(KindUnbalanced, message).WithField("lines")
}

// DuplicateLineNumber reports two lines claiming the same line number.
func DuplicateLineNumber(n int) *Error {
	return Newf(KindDuplicateLineNumber, "line number %d is used more than once", n).
		WithField("line_number").
		WithDetail("line_number", strconv.Itoa(n))
}

// InvalidStateTransition reports a ledger state machine violation.
func InvalidStateTransition(id, from, to string) *Error {
	return Newf(KindInvalidStateTransition, "cannot move transaction from %s to %s", from, to).
		WithField("status").
		WithDetail("id", id).
		WithDetail("from", from).
		WithDetail("to", to)
}

// Conflict reports a divergent write against an existing key or version.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Invalid reports a malformed payload field.
func Invalid(field, message string) *Error {
	return New(KindInvalidInput, message).WithField(field)
}
