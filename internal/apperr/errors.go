// Package apperr defines the structured error taxonomy shared by every record store operation.
//
// Every failure a caller can act on carries a stable Kind string plus enough detail
// (which field, which invariant) to render a targeted message without re-querying.
// Backing-store failures that are not part of the taxonomy surface as KindInternal.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the stable error kind string exposed to callers.
// Kind implements error so it can be used as an errors.Is target:
//
//	if errors.Is(err, apperr.KindNotFound) { ... }
type Kind string

const (
	KindTenantRequired         Kind = "TenantRequired"
	KindTenantMismatch         Kind = "TenantMismatch"
	KindInvalidSmartCode       Kind = "InvalidSmartCode"
	KindNotFound               Kind = "NotFound"
	KindTypeMismatch           Kind = "TypeMismatch"
	KindHasDependents          Kind = "HasDependents"
	KindUnbalanced             Kind = "Unbalanced"
	KindDuplicateLineNumber    Kind = "DuplicateLineNumber"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindConflict               Kind = "Conflict"

	// KindInvalidInput covers malformed payloads (missing required fields, bad enum values).
	KindInvalidInput Kind = "InvalidInput"

	// KindInternal covers backing-store and encoding failures.
	KindInternal Kind = "Internal"
)

// Error implements the error interface.
func (k Kind) Error() string { return string(k) }

// Error is a structured, kind-tagged failure.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Field names the offending payload field, if any.
	Field string

	// Details contains additional context (ids, counts, expected/actual values).
	Details map[string]string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field=%s)", e.Field)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Details[k])
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// WithField sets the offending field name and returns e.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetail adds a detail entry and returns e.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err.
// Returns "" for nil and KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindInternal
}

// As returns err as an *Error, wrapping foreign errors as KindInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var k Kind
	if errors.As(err, &k) {
		return &Error{Kind: k, Err: err}
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
