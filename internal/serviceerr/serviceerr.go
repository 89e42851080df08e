// Package serviceerr defines the error taxonomy returned by service
// operations. Handlers map kinds to HTTP status codes at the boundary;
// services never expose raw store errors.
package serviceerr

import "errors"

// Kind classifies a service failure.
type Kind int

// Failure kinds.
const (
	// KindValidation marks bad or conflicting input.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing record or one outside the tenant scope.
	KindNotFound
	// KindUnauthorized marks an invalid license or cross-tenant reference.
	KindUnauthorized
	// KindForbidden marks a caller without the required level.
	KindForbidden
	// KindConflict marks a uniqueness collision within a tenant scope.
	KindConflict
	// KindUnexpected marks anything else, including store failures.
	KindUnexpected
)

// Error carries a failure kind with a user-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the user-facing message.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "erro inesperado"
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation builds a validation error.
func Validation(message string) *Error { return New(KindValidation, message) }

// NotFound builds a not-found error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Unauthorized builds an unauthorized error.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Forbidden builds a forbidden error.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict builds a conflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// Unexpected wraps an internal failure.
func Unexpected(err error) *Error {
	return Wrap(KindUnexpected, "erro inesperado", err)
}

// KindOf extracts the kind from err, defaulting to KindUnexpected.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}
