package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "actor_id: must not be empty",
		NewValidationError("actor_id", "must not be empty").Error())
	assert.Equal(t, "must not be empty",
		(&ValidationError{Message: "must not be empty"}).Error())
}

func TestEligibilityError_Error(t *testing.T) {
	err := &EligibilityError{
		Code:     "INSUFFICIENT_INSPECTIONS",
		Required: 4,
		Actual:   2,
		Message:  "not enough inspections in window",
	}
	assert.Equal(t, "INSUFFICIENT_INSPECTIONS: not enough inspections in window (required: 4, actual: 2)", err.Error())

	bare := &EligibilityError{Code: "MISSING_SATELLITE_REPORT", Message: "no current report"}
	assert.Equal(t, "MISSING_SATELLITE_REPORT: no current report", bare.Error())
}

func TestStateConflictError_UnwrapsToInvalidTransition(t *testing.T) {
	err := NewStateConflictError("certificate", "APPROVED", "PENDING_REVIEW")

	assert.Equal(t, "certificate cannot transition from APPROVED to PENDING_REVIEW", err.Error())
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrExternalService))
	assert.True(t, IsRetryable(fmt.Errorf("anchor: %w", ErrExternalService)))
	assert.False(t, IsRetryable(ErrQuotaExceeded))
	assert.False(t, IsRetryable(ErrInvalidHash))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}
