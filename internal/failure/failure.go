// Package failure defines the classified error kinds that cross component
// boundaries. Components wrap their internal errors into a *Error so callers
// (and the HTTP layer) can branch on Kind instead of matching strings.
package failure

import (
	"errors"
	"fmt"
)

// Kind names a class of failure.
type Kind string

// Known failure kinds.
const (
	KindUnknown            Kind = "unknown"
	KindValidation         Kind = "validation"
	KindNavigation         Kind = "navigation"
	KindProviderError      Kind = "provider_error"
	KindProviderTimeout    Kind = "provider_timeout"
	KindProviderEmpty      Kind = "provider_empty"
	KindAllProvidersFailed Kind = "all_providers_failed"
	KindAnalysis           Kind = "analysis"
	KindExtraction         Kind = "extraction"
	KindSessionNotFound    Kind = "session_not_found"
	KindSessionClosed      Kind = "session_closed"
	KindCapacity           Kind = "capacity"
	KindCompletion         Kind = "completion"
)

// Error is a classified failure. Op names the operation that failed and
// Reason is a short human readable explanation.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error without a cause.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Newf builds a classified error with a formatted reason.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil. An err that is already
// classified keeps its kind unless it is KindUnknown.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Classifier is implemented by package-specific error types that carry
// richer payloads than *Error but still belong to a Kind.
type Classifier interface {
	error
	Class() Kind
}

// KindOf reports the kind of err, or KindUnknown when err is unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.Class()
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
