package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Stage Types
// ============================================================================

// StageType identifies one step of custody verification for a batch.
type StageType string

const (
	StageTypeHarvest   StageType = "HARVEST"
	StageTypePacking   StageType = "PACKING"
	StageTypeColdChain StageType = "COLD_CHAIN"
	StageTypeExport    StageType = "EXPORT"
	StageTypeDelivery  StageType = "DELIVERY"
)

// StageOrder is the fixed chain-of-custody sequence. Stages must be created in
// this order with no skipping and no jumping back.
var StageOrder = []StageType{
	StageTypeHarvest,
	StageTypePacking,
	StageTypeColdChain,
	StageTypeExport,
	StageTypeDelivery,
}

// Index returns the position of the stage type in StageOrder, or -1 if the
// type is unknown.
func (t StageType) Index() int {
	for i, v := range StageOrder {
		if v == t {
			return i
		}
	}
	return -1
}

// IsValidStageType checks if the given type is one of the fixed stage types.
func IsValidStageType(t StageType) bool {
	return t.Index() >= 0
}

// FinalStageType is the last stage in the chain. Approving it completes the
// batch's chain of custody.
func FinalStageType() StageType {
	return StageOrder[len(StageOrder)-1]
}

// ============================================================================
// Stage Status
// ============================================================================

// StageStatus represents the verification status of a single stage.
// State machine:
//
//	pending → approved | rejected | flagged
//	rejected → pending (retry)
//	flagged → approved | rejected
//	approved is terminal
type StageStatus string

const (
	StageStatusPending  StageStatus = "PENDING"
	StageStatusApproved StageStatus = "APPROVED"
	StageStatusRejected StageStatus = "REJECTED"
	StageStatusFlagged  StageStatus = "FLAGGED"
)

// ValidStageStatuses contains all valid status values.
var ValidStageStatuses = []StageStatus{
	StageStatusPending,
	StageStatusApproved,
	StageStatusRejected,
	StageStatusFlagged,
}

// IsValidStageStatus checks if the given status is valid.
func IsValidStageStatus(s StageStatus) bool {
	for _, v := range ValidStageStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status admits no further transitions.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusApproved
}

// CanTransitionTo returns true if transitioning from this status to the target
// is valid. Setting the same status again is not a transition; callers treat
// it as a no-op.
func (s StageStatus) CanTransitionTo(target StageStatus) bool {
	switch s {
	case StageStatusPending:
		return target == StageStatusApproved || target == StageStatusRejected || target == StageStatusFlagged
	case StageStatusApproved:
		return false // terminal
	case StageStatusRejected:
		return target == StageStatusPending
	case StageStatusFlagged:
		return target == StageStatusApproved || target == StageStatusRejected
	default:
		return false
	}
}

// ============================================================================
// Verification Stage Model
// ============================================================================

// GeoPoint is an optional capture location for a stage event.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// VerificationStage is one step of custody for a batch. Once approved it is
// immutable.
type VerificationStage struct {
	ID        uuid.UUID   `json:"id"`
	BatchID   uuid.UUID   `json:"batch_id"`
	StageType StageType   `json:"stage_type"`
	Status    StageStatus `json:"status"`
	ActorID   string      `json:"actor_id"`
	Geo       *GeoPoint   `json:"geo,omitempty"`
	Notes     *string     `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
