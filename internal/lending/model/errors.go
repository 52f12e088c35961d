package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict indicates the offer or application changed state between
	// candidate selection and origination (capacity race, concurrent match,
	// expiry). Callers retry the next ranked candidate.
	ErrConflict = errors.New("origination conflict")

	// ErrValidation indicates a malformed criteria overlay or run config
	// supplied by a caller. Rejected before a run starts.
	ErrValidation = errors.New("validation error")

	// ErrRepository indicates the backing store is unreachable or a
	// read/write failed for infrastructural reasons.
	ErrRepository = errors.New("repository error")

	// ErrStrategyUnsupported indicates a criteria combination resolved to a
	// strategy this engine does not implement (e.g. the deprecated legacy
	// single-duration shape).
	ErrStrategyUnsupported = errors.New("strategy unsupported")

	// ErrNotFound indicates the requested offer or application does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError carries the offending field for caller-supplied input errors.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a field-level validation error that unwraps to
// ErrValidation.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorKind classifies an error into the engine's taxonomy for run summaries
// and metrics labels.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrStrategyUnsupported):
		return "strategy_unsupported"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRepository):
		return "repository"
	default:
		return "internal"
	}
}
