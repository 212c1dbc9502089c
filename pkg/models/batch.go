package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus reflects the registration state of a batch. The certification
// core references batches but never changes their registration status.
type BatchStatus string

const (
	BatchStatusRegistered BatchStatus = "REGISTERED"
	BatchStatusInTransit  BatchStatus = "IN_TRANSIT"
	BatchStatusDelivered  BatchStatus = "DELIVERED"
)

// Batch is a traceable shipment/lot.
//
// StageVersion is an optimistic concurrency counter: every stage mutation for
// the batch must carry the version it read, and the write fails if another
// writer got there first.
type Batch struct {
	ID                 uuid.UUID   `json:"id"`
	ProducerID         string      `json:"producer_id"`
	FieldID            uuid.UUID   `json:"field_id"`
	Crop               string      `json:"crop"`
	Status             BatchStatus `json:"status"`
	StageVersion       int64       `json:"stage_version"`
	StageChainComplete bool        `json:"stage_chain_complete"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
