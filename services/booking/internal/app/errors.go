package app

import (
	"context"
	"errors"
	"fmt"

	"servicebay/pkg/ai"
)

var (
	// ErrUnauthenticated is returned when a mutation has no verified caller.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrNotFound covers both missing records and records owned by someone
	// else, so callers cannot discover other users' IDs.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration means a required integration (generator, object
	// storage, queue) is not configured.
	ErrConfiguration = errors.New("not configured")
	ErrProvider      = errors.New("generation provider failed")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	// ErrForbidden is returned for staff-only operations.
	ErrForbidden     = errors.New("forbidden")
	ErrRateLimited   = errors.New("rate limited")
)

// ProviderError wraps a failed generation call.
type ProviderError struct {
	Err       error
	Retryable bool
	Timeout   bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generate report: %v", e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

func newProviderError(err error) *ProviderError {
	pe := &ProviderError{Err: err}
	var statusErr *ai.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Timeout = true
		pe.Retryable = true
	case errors.As(err, &statusErr):
		pe.Retryable = statusErr.Temporary()
	default:
		// transport failures (refused, reset) are worth another attempt
		pe.Retryable = true
	}
	return pe
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
