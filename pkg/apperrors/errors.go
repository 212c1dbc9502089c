package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrInvalidOrder            = errors.New("stage out of order")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrQuotaExceeded           = errors.New("satellite processing quota exceeded")
	ErrExternalService         = errors.New("external service failure")
	ErrInvalidHash             = errors.New("invalid content hash")
)

// ValidationError is a caller-correctable input problem (malformed request,
// out-of-order stage, short reason). It is returned directly with full detail.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// EligibilityError reports an unmet grade requirement, carrying the required
// and actual values where the requirement is numeric.
type EligibilityError struct {
	Code     string
	Field    string
	Required int
	Actual   int
	Message  string
}

func (e *EligibilityError) Error() string {
	if e.Required > 0 || e.Actual > 0 {
		return fmt.Sprintf("%s: %s (required: %d, actual: %d)", e.Code, e.Message, e.Required, e.Actual)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StateConflictError reports an invalid lifecycle transition or a lost
// concurrent modification.
type StateConflictError struct {
	Entity string
	From   string
	To     string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *StateConflictError) Unwrap() error {
	return ErrInvalidStatusTransition
}

// NewStateConflictError builds a StateConflictError for the given entity and
// attempted transition.
func NewStateConflictError(entity, from, to string) *StateConflictError {
	return &StateConflictError{Entity: entity, From: from, To: to}
}

// IsRetryable reports whether the error is a transient external failure worth
// retrying. Validation, eligibility and quota errors are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExternalService)
}
