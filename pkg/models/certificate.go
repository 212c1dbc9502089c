package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Certificate Grades
// ============================================================================

// CertificateGrade names the certification standard a certificate attests to.
type CertificateGrade string

const (
	GradeStandard CertificateGrade = "STANDARD"
	GradePremium  CertificateGrade = "PREMIUM"
	GradeExport   CertificateGrade = "EXPORT"
	GradeOrganic  CertificateGrade = "ORGANIC"
)

// gradeRanks is the fixed upgrade hierarchy. Upgrades are only valid strictly
// upward.
var gradeRanks = map[CertificateGrade]int{
	GradeStandard: 1,
	GradePremium:  2,
	GradeExport:   3,
	GradeOrganic:  4,
}

// requiredStagesByGrade maps each grade to the stage types that must all be
// approved before the grade can be issued.
var requiredStagesByGrade = map[CertificateGrade][]StageType{
	GradeStandard: {StageTypeHarvest, StageTypePacking},
	GradePremium:  {StageTypeHarvest, StageTypePacking, StageTypeColdChain},
	GradeExport:   {StageTypeHarvest, StageTypePacking, StageTypeColdChain, StageTypeExport, StageTypeDelivery},
	GradeOrganic:  {StageTypeHarvest, StageTypePacking, StageTypeColdChain, StageTypeExport, StageTypeDelivery},
}

// Rank returns the grade's position in the upgrade hierarchy, or 0 if the
// grade is unknown.
func (g CertificateGrade) Rank() int {
	return gradeRanks[g]
}

// IsValidGrade checks if the given grade is one of the fixed grades.
func IsValidGrade(g CertificateGrade) bool {
	return g.Rank() > 0
}

// RequiredStages returns the stage types that must be approved for the grade.
// The returned slice must not be mutated.
func (g CertificateGrade) RequiredStages() []StageType {
	return requiredStagesByGrade[g]
}

// RequiresSatelliteVerdict reports whether the grade additionally needs a
// current satellite compliance report with an eligible verdict.
func (g CertificateGrade) RequiresSatelliteVerdict() bool {
	return g == GradeOrganic
}

// ============================================================================
// Certificate Status
// ============================================================================

// CertificateStatus is the issuance lifecycle state of a certificate.
// State machine:
//
//	draft → processing → pending_review → approved | rejected
//	approved → revoked
//	processing, pending_review → blockchain_failed (retryable)
//	blockchain_failed → pending_review | approved
//
// rejected and revoked are terminal.
type CertificateStatus string

const (
	CertStatusDraft            CertificateStatus = "DRAFT"
	CertStatusProcessing       CertificateStatus = "PROCESSING"
	CertStatusPendingReview    CertificateStatus = "PENDING_REVIEW"
	CertStatusApproved         CertificateStatus = "APPROVED"
	CertStatusRejected         CertificateStatus = "REJECTED"
	CertStatusRevoked          CertificateStatus = "REVOKED"
	CertStatusBlockchainFailed CertificateStatus = "BLOCKCHAIN_FAILED"
)

// ValidCertificateStatuses contains all valid status values.
var ValidCertificateStatuses = []CertificateStatus{
	CertStatusDraft,
	CertStatusProcessing,
	CertStatusPendingReview,
	CertStatusApproved,
	CertStatusRejected,
	CertStatusRevoked,
	CertStatusBlockchainFailed,
}

// IsTerminal returns true for states that admit no further transitions.
// A revoked certificate can never re-enter any prior status.
func (s CertificateStatus) IsTerminal() bool {
	return s == CertStatusRejected || s == CertStatusRevoked
}

// IsActive returns true while an issuance cycle for the certificate is still
// in flight or the certificate is live. Used to enforce idempotent issuance:
// a batch/grade pair may have at most one active certificate.
func (s CertificateStatus) IsActive() bool {
	return !s.IsTerminal()
}

// CanTransitionTo returns true if transitioning from this status to the
// target is valid.
func (s CertificateStatus) CanTransitionTo(target CertificateStatus) bool {
	switch s {
	case CertStatusDraft:
		return target == CertStatusProcessing
	case CertStatusProcessing:
		return target == CertStatusPendingReview || target == CertStatusBlockchainFailed
	case CertStatusPendingReview:
		return target == CertStatusApproved || target == CertStatusRejected || target == CertStatusBlockchainFailed
	case CertStatusApproved:
		return target == CertStatusRevoked
	case CertStatusBlockchainFailed:
		return target == CertStatusPendingReview || target == CertStatusApproved
	case CertStatusRejected, CertStatusRevoked:
		return false // terminal
	default:
		return false
	}
}

// ============================================================================
// Certificate Model
// ============================================================================

// AnchorRef records the result of anchoring a content hash on the ledger.
type AnchorRef struct {
	TxHash    string    `json:"tx_hash"`
	Network   string    `json:"network"`
	Timestamp time.Time `json:"timestamp"`
}

// Certificate is an issued (or in-flight) proof that a batch meets a named
// certification grade. ContentHash is computed once during generation and is
// never recomputed; a failed anchor retries with the same hash.
type Certificate struct {
	ID               uuid.UUID         `json:"id"`
	Number           string            `json:"number"`
	BatchID          uuid.UUID         `json:"batch_id"`
	FieldID          uuid.UUID         `json:"field_id"`
	Grade            CertificateGrade  `json:"grade"`
	Status           CertificateStatus `json:"status"`
	ValidFrom        time.Time         `json:"valid_from"`
	ValidTo          time.Time         `json:"valid_to"`
	ContentHash      *string           `json:"content_hash,omitempty"`
	ContentID        *string           `json:"content_id,omitempty"` // content-addressed pin, empty for hash-only certificates
	Anchor           *AnchorRef        `json:"anchor,omitempty"`
	ReviewedBy       *string           `json:"reviewed_by,omitempty"`
	RejectionReason  *string           `json:"rejection_reason,omitempty"`
	RevocationReason *string           `json:"revocation_reason,omitempty"`
	LastError        *string           `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsExpired reports whether the certificate's validity window has passed.
func (c *Certificate) IsExpired(now time.Time) bool {
	return now.After(c.ValidTo)
}
