// Package apperrors classifies service errors so transport layers can
// map them to status codes without inspecting error strings.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the error classification carried across layer boundaries.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindRateLimited         Kind = "rate_limited"
	KindAccessDenied        Kind = "access_denied"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindDegraded            Kind = "degraded"
	KindInternal            Kind = "internal"
)

// Error is a classified service error. Message is safe to return to
// callers; the cause is for logs only.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two classified errors by kind, so
// errors.Is(err, &Error{Kind: KindNotFound}) works as a kind test.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Invalid builds an invalid_input error from a format string.
func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not_found error from a format string.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// RateLimited builds a rate_limited error carrying the retry hint.
func RateLimited(message string, retryAfter time.Duration) error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// AccessDenied builds an access_denied error.
func AccessDenied(format string, args ...interface{}) error {
	return &Error{Kind: KindAccessDenied, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a dependency failure as upstream_unavailable.
func Upstream(message string, cause error) error {
	return &Error{Kind: KindUpstreamUnavailable, Message: message, cause: cause}
}

// Degraded marks a partial result produced without a dependency.
func Degraded(message string, cause error) error {
	return &Error{Kind: KindDegraded, Message: message, cause: cause}
}

// Internal wraps a programming or data fault.
func Internal(message string, cause error) error {
	return &Error{Kind: KindInternal, Message: message, cause: cause}
}

// KindOf extracts the classification; unclassified errors are internal
// and nil errors have no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf returns the retry hint carried by a rate_limited error,
// zero otherwise.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// SafeMessage returns a message suitable for API responses: the
// classified message for known errors, a generic one for everything
// else so internals never leak.
func SafeMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
