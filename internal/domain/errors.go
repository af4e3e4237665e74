package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for transport mapping. Upstream provider
// failures never appear here: the router degrades those to structured
// results before they reach a handler.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindValidationFailed ErrorKind = "validation_failed"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindRateLimited      ErrorKind = "rate_limited"
	KindInternal         ErrorKind = "internal"
)

// Error is a kinded error carrying a client-safe detail message.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Detail) }

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Conflictf builds a KindConflict error.
func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidationFailed error.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidationFailed, Detail: fmt.Sprintf(format, args...)}
}

// Unauthorizedf builds a KindUnauthorized error.
func Unauthorizedf(format string, args ...interface{}) error {
	return &Error{Kind: KindUnauthorized, Detail: fmt.Sprintf(format, args...)}
}

// RateLimitedf builds a KindRateLimited error.
func RateLimitedf(format string, args ...interface{}) error {
	return &Error{Kind: KindRateLimited, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, walking the wrap chain. Unclassified
// errors report KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// HTTPStatus maps the kind onto its transport status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindValidationFailed:
		return 422
	case KindUnauthorized:
		return 401
	case KindRateLimited:
		return 429
	default:
		return 500
	}
}

// DetailOf returns the client-safe detail for err. Unclassified errors get
// a sanitized generic message so internals never leave the process.
func DetailOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return "internal error"
}
