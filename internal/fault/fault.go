// Package fault defines the error taxonomy surfaced across the pipeline
// boundary. Every error that leaves a subsystem is either a *fault.Error or
// wraps one, so callers can branch on Kind without string matching.
package fault

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindPreconditionFailed Kind = "precondition_failed"
	KindProvider           Kind = "provider"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindIO                 Kind = "io"
	KindCorrupt            Kind = "corrupt"
	KindInternal           Kind = "internal"
)

// Error is the canonical error type for the pipeline API.
//
// Provider, RetryAfter, Retriable and Missing are populated only by the
// constructors of the kinds that carry them.
type Error struct {
	Kind       Kind
	Message    string
	Provider   string        // provider / rate_limited kinds
	RetryAfter time.Duration // rate_limited, when the service supplied one
	Retriable  bool          // provider kind: transient vs permanent
	Missing    []string      // precondition_failed: required artifact types
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString("(")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error { return e.Cause }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation creates a validation error. Never retried.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// NotFound creates a not-found error for a named resource.
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// PreconditionFailed creates a gating error listing the artifact types that
// must be approved before the operation can run.
func PreconditionFailed(missing ...string) *Error {
	return &Error{
		Kind:    KindPreconditionFailed,
		Message: fmt.Sprintf("requires approved artifacts: %s", strings.Join(missing, ", ")),
		Missing: missing,
	}
}

// ProviderErr creates a provider error. Retriable marks transient failures
// (network, 5xx, rate limits) as opposed to permanent ones (4xx, malformed
// responses).
func ProviderErr(provider string, retriable bool, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:      KindProvider,
		Message:   fmt.Sprintf(format, args...),
		Provider:  provider,
		Retriable: retriable,
		Cause:     cause,
	}
}

// RateLimited creates a 429-style error carrying the provider's Retry-After
// hint (zero when the service did not supply one).
func RateLimited(provider string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limited by %s", provider),
		Provider:   provider,
		RetryAfter: retryAfter,
		Retriable:  true,
	}
}

// Timeout creates a deadline-exceeded error. Terminal for the call it names.
func Timeout(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IO creates a storage error.
func IO(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindIO, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Corrupt creates a parse-failure error for stored data that exists but
// cannot be decoded.
func Corrupt(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindCorrupt, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Internal creates an unclassified error.
func Internal(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf reports the Kind of err. Unclassified non-nil errors report
// KindInternal; nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsKind reports whether err (or anything it wraps) is a fault of the given
// kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}
