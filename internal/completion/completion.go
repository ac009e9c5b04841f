// Package completion is the single seam to a hosted language model.
package completion

import (
	"context"
	"fmt"

	"github.com/JakeFAU/webscout/internal/failure"
)

// FailureKind classifies completion failures for callers.
type FailureKind string

// Completion failure kinds.
const (
	FailureRateLimited    FailureKind = "rate_limited"
	FailureUnavailable    FailureKind = "unavailable"
	FailureInvalidRequest FailureKind = "invalid_request"
	FailureTimeout        FailureKind = "timeout"
	FailureEmpty          FailureKind = "empty"
	FailureUnknown        FailureKind = "unknown"
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Error is returned by Completer implementations.
type Error struct {
	Kind FailureKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("completion %s", e.Kind)
	}
	return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Class implements failure.Classifier.
func (e *Error) Class() failure.Kind {
	return failure.KindCompletion
}
