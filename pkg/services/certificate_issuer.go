package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/canonical"
	"github.com/harvestproof/harvestproof-engine/pkg/clients"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
	"github.com/harvestproof/harvestproof-engine/pkg/retry"
)

// certificateValidityYears is the validity window granted at generation.
const certificateValidityYears = 1

// minRejectionReasonLength guards against empty-gesture rejections.
const minRejectionReasonLength = 10

// GenerateRequest asks for a certificate of the given grade for a batch.
type GenerateRequest struct {
	BatchID uuid.UUID               `json:"batch_id"`
	Grade   models.CertificateGrade `json:"grade"`
}

// IneligibleError is returned by Generate when the batch does not meet the
// requested grade's requirements. It carries the full evaluation so callers
// can surface every unmet requirement at once.
type IneligibleError struct {
	Grade  models.CertificateGrade
	Result *models.ValidationResult
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("batch is not eligible for grade %s (%d unmet requirements)", e.Grade, len(e.Result.Errors))
}

// Unwrap exposes each unmet requirement as an apperrors.EligibilityError so
// callers can match individual requirements with errors.As.
func (e *IneligibleError) Unwrap() []error {
	errs := make([]error, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		ee := &apperrors.EligibilityError{
			Code:    issue.Code,
			Field:   issue.Field,
			Message: issue.Message,
		}
		if issue.Required != nil {
			ee.Required = *issue.Required
		}
		if issue.Actual != nil {
			ee.Actual = *issue.Actual
		}
		errs = append(errs, ee)
	}
	return errs
}

// CertificateService drives the issuance lifecycle from eligibility check
// through review to on-chain anchoring.
type CertificateService interface {
	// Generate evaluates eligibility and, on success, creates a certificate
	// and runs it through hashing and pinning to PENDING_REVIEW. Generation
	// is idempotent per batch/grade: if an active certificate already
	// exists, it is returned as-is.
	Generate(ctx context.Context, req *GenerateRequest) (*models.Certificate, error)

	// Approve anchors the certificate's content hash and marks it APPROVED.
	// When the anchor call fails transiently the certificate is parked in
	// BLOCKCHAIN_FAILED with the error recorded, and returned without an
	// error; a later Approve resumes from the stored hash without re-pinning
	// or re-numbering.
	Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Certificate, error)

	// Reject declines a certificate under review. The reason must be at
	// least 10 characters.
	Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Certificate, error)

	// Revoke permanently invalidates an APPROVED certificate.
	Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.Certificate, error)

	Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
}

type certificateService struct {
	certRepo    repositories.CertificateRepository
	batchRepo   repositories.BatchRepository
	stageRepo   repositories.StageRepository
	eligibility EligibilityService
	anchor      clients.AnchorService
	pin         clients.PinService
	retryCfg    *retry.Config
	logger      *zap.Logger
	now         func() time.Time
}

// NewCertificateService creates a new CertificateService. pin may be nil when
// content-addressed pinning is not configured; certificates are then
// hash-only.
func NewCertificateService(
	certRepo repositories.CertificateRepository,
	batchRepo repositories.BatchRepository,
	stageRepo repositories.StageRepository,
	eligibility EligibilityService,
	anchor clients.AnchorService,
	pin clients.PinService,
	logger *zap.Logger,
) CertificateService {
	return &certificateService{
		certRepo:    certRepo,
		batchRepo:   batchRepo,
		stageRepo:   stageRepo,
		eligibility: eligibility,
		anchor:      anchor,
		pin:         pin,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.Named("certificate-service"),
		now:         time.Now,
	}
}

var _ CertificateService = (*certificateService)(nil)

func (s *certificateService) Generate(ctx context.Context, req *GenerateRequest) (*models.Certificate, error) {
	if !models.IsValidGrade(req.Grade) {
		return nil, apperrors.NewValidationError("grade", fmt.Sprintf("unknown certificate grade %q", req.Grade))
	}

	batch, err := s.batchRepo.GetByID(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}

	result, err := s.eligibility.Evaluate(ctx, req.BatchID, req.Grade)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate eligibility: %w", err)
	}
	if !result.Valid {
		return nil, &IneligibleError{Grade: req.Grade, Result: result}
	}

	number, err := newCertificateNumber(s.now())
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cert := &models.Certificate{
		ID:        uuid.New(),
		Number:    number,
		BatchID:   batch.ID,
		FieldID:   batch.FieldID,
		Grade:     req.Grade,
		Status:    models.CertStatusDraft,
		ValidFrom: now,
		ValidTo:   now.AddDate(certificateValidityYears, 0, 0),
	}

	if err := s.certRepo.Create(ctx, cert); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Lost the race or a retry of an earlier request. Return the
			// in-flight certificate instead of issuing a duplicate.
			existing, getErr := s.certRepo.GetActiveByBatchAndGrade(ctx, batch.ID, req.Grade)
			if getErr != nil {
				return nil, getErr
			}
			// A prior request that failed mid-pipeline leaves the
			// certificate before PENDING_REVIEW. Resume it from its
			// persisted state; returning it untouched would block the
			// batch/grade slot with a certificate nothing can approve.
			if existing.Status == models.CertStatusDraft || existing.Status == models.CertStatusProcessing {
				if err := s.finishIssuance(ctx, existing, batch); err != nil {
					return nil, err
				}
				s.logger.Info("certificate issuance resumed",
					zap.String("certificate_id", existing.ID.String()),
					zap.String("number", existing.Number))
			}
			return existing, nil
		}
		return nil, err
	}

	if err := s.finishIssuance(ctx, cert, batch); err != nil {
		return nil, err
	}

	s.logger.Info("certificate generated",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("number", cert.Number),
		zap.String("batch_id", batch.ID.String()),
		zap.String("grade", string(req.Grade)))

	return cert, nil
}

func (s *certificateService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Certificate, error) {
	if reviewer == "" {
		return nil, apperrors.NewValidationError("reviewer", "reviewer is required")
	}

	cert, err := s.certRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cert.Status.CanTransitionTo(models.CertStatusApproved) {
		return nil, apperrors.NewStateConflictError("certificate", string(cert.Status), string(models.CertStatusApproved))
	}
	if cert.ContentHash == nil {
		return nil, apperrors.NewValidationError("content_hash", "certificate has no content hash to anchor")
	}

	var ref *models.AnchorRef
	anchorErr := retry.DoIfRetryable(ctx, s.retryCfg, func() error {
		var err error
		ref, err = s.anchor.Anchor(ctx, *cert.ContentHash)
		return err
	})
	if anchorErr != nil {
		if !apperrors.IsRetryable(anchorErr) {
			return nil, fmt.Errorf("failed to anchor certificate: %w", anchorErr)
		}
		// Transient failure. Park the certificate so the stored hash can be
		// re-anchored later without redoing the payload work.
		msg := anchorErr.Error()
		cert.LastError = &msg
		if err := s.transition(ctx, cert, models.CertStatusBlockchainFailed); err != nil {
			return nil, err
		}
		s.logger.Warn("anchor failed, certificate parked for retry",
			zap.String("certificate_id", cert.ID.String()),
			zap.Error(anchorErr))
		return cert, nil
	}

	cert.Anchor = ref
	cert.ReviewedBy = &reviewer
	cert.LastError = nil
	if err := s.transition(ctx, cert, models.CertStatusApproved); err != nil {
		return nil, err
	}

	s.logger.Info("certificate approved",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("reviewer", reviewer),
		zap.String("anchor_tx", ref.TxHash))

	return cert, nil
}

func (s *certificateService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Certificate, error) {
	if reviewer == "" {
		return nil, apperrors.NewValidationError("reviewer", "reviewer is required")
	}
	if len(strings.TrimSpace(reason)) < minRejectionReasonLength {
		return nil, apperrors.NewValidationError("reason",
			fmt.Sprintf("rejection reason must be at least %d characters", minRejectionReasonLength))
	}

	cert, err := s.certRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != models.CertStatusPendingReview {
		return nil, apperrors.NewStateConflictError("certificate", string(cert.Status), string(models.CertStatusRejected))
	}

	cert.ReviewedBy = &reviewer
	cert.RejectionReason = &reason
	if err := s.transition(ctx, cert, models.CertStatusRejected); err != nil {
		return nil, err
	}

	s.logger.Info("certificate rejected",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("reviewer", reviewer))

	return cert, nil
}

func (s *certificateService) Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.Certificate, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewValidationError("reason", "revocation reason is required")
	}

	cert, err := s.certRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert.Status != models.CertStatusApproved {
		return nil, apperrors.NewStateConflictError("certificate", string(cert.Status), string(models.CertStatusRevoked))
	}

	cert.RevocationReason = &reason
	if err := s.transition(ctx, cert, models.CertStatusRevoked); err != nil {
		return nil, err
	}

	s.logger.Info("certificate revoked",
		zap.String("certificate_id", cert.ID.String()))

	return cert, nil
}

func (s *certificateService) Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	return s.certRepo.GetByID(ctx, id)
}

// transition moves the certificate to the target status and persists it.
func (s *certificateService) transition(ctx context.Context, cert *models.Certificate, target models.CertificateStatus) error {
	if !cert.Status.CanTransitionTo(target) {
		return apperrors.NewStateConflictError("certificate", string(cert.Status), string(target))
	}
	cert.Status = target
	if err := s.certRepo.Update(ctx, cert); err != nil {
		return fmt.Errorf("failed to persist certificate status %s: %w", target, err)
	}
	return nil
}

// certificatePayload is the canonical content snapshot that gets hashed and
// optionally pinned. Field order does not matter; the canonical encoder sorts
// keys.
type certificatePayload struct {
	Number     string                  `json:"number"`
	BatchID    string                  `json:"batch_id"`
	FieldID    string                  `json:"field_id"`
	ProducerID string                  `json:"producer_id"`
	Crop       string                  `json:"crop"`
	Grade      models.CertificateGrade `json:"grade"`
	ValidFrom  string                  `json:"valid_from"`
	ValidTo    string                  `json:"valid_to"`
	Stages     []payloadStage          `json:"stages"`
}

type payloadStage struct {
	Type       models.StageType   `json:"type"`
	Status     models.StageStatus `json:"status"`
	ActorID    string             `json:"actor_id"`
	RecordedAt string             `json:"recorded_at"`
}

// finishIssuance drives a certificate from DRAFT or PROCESSING through
// hashing and pinning to PENDING_REVIEW. Every step is keyed off persisted
// state, so a Generate retried after a mid-pipeline failure picks up where
// the previous attempt stopped. The number and validity window are fixed at
// Create, which keeps the recomputed content hash identical across attempts.
func (s *certificateService) finishIssuance(ctx context.Context, cert *models.Certificate, batch *models.Batch) error {
	if cert.Status == models.CertStatusDraft {
		if err := s.transition(ctx, cert, models.CertStatusProcessing); err != nil {
			return err
		}
	}

	payload, hash, err := s.buildPayload(ctx, cert, batch)
	if err != nil {
		return err
	}
	cert.ContentHash = &hash

	if s.pin != nil && cert.ContentID == nil {
		contentID, pinErr := s.pin.Pin(ctx, payload)
		if pinErr != nil {
			// Pinning is best-effort; a hash-only certificate is still
			// verifiable against the anchored hash.
			s.logger.Warn("pin failed, issuing hash-only certificate",
				zap.String("certificate_id", cert.ID.String()),
				zap.Error(pinErr))
		} else {
			cert.ContentID = &contentID
		}
	}

	return s.transition(ctx, cert, models.CertStatusPendingReview)
}

// buildPayload assembles the certificate's content snapshot and returns its
// serialized form together with the content hash.
func (s *certificateService) buildPayload(ctx context.Context, cert *models.Certificate, batch *models.Batch) ([]byte, string, error) {
	stages, err := s.stageRepo.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, "", err
	}

	p := certificatePayload{
		Number:     cert.Number,
		BatchID:    batch.ID.String(),
		FieldID:    batch.FieldID.String(),
		ProducerID: batch.ProducerID,
		Crop:       batch.Crop,
		Grade:      cert.Grade,
		ValidFrom:  cert.ValidFrom.UTC().Format(time.RFC3339),
		ValidTo:    cert.ValidTo.UTC().Format(time.RFC3339),
		Stages:     make([]payloadStage, 0, len(stages)),
	}
	for _, st := range stages {
		p.Stages = append(p.Stages, payloadStage{
			Type:       st.StageType,
			Status:     st.Status,
			ActorID:    st.ActorID,
			RecordedAt: st.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := canonical.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize certificate payload: %w", err)
	}
	hash, err := canonical.SHA256Hex(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash certificate payload: %w", err)
	}
	return payload, hash, nil
}

// newCertificateNumber produces a number like HP-2026-4f3a9c1e. Uniqueness is
// ultimately enforced by the database.
func newCertificateNumber(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate certificate number: %w", err)
	}
	return fmt.Sprintf("HP-%d-%s", now.UTC().Year(), hex.EncodeToString(buf)), nil
}
