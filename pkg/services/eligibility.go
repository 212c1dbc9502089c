package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/clients"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
)

// EligibilityService decides whether accumulated evidence qualifies a batch
// for a requested certificate grade.
type EligibilityService interface {
	// Evaluate checks stage history, evidence counts, and (for organic
	// grades) the latest satellite verdict. The returned result lists every
	// unmet requirement; it never short-circuits on the first failure.
	Evaluate(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.ValidationResult, error)

	// CanUpgrade reports whether target is strictly above current in the
	// grade hierarchy.
	CanUpgrade(current, target models.CertificateGrade) bool
}

type eligibilityService struct {
	batchRepo  repositories.BatchRepository
	stageRepo  repositories.StageRepository
	reportRepo repositories.ReportRepository
	evidence   clients.EvidenceAggregator
	cfg        config.EvidenceConfig
	logger     *zap.Logger
}

// NewEligibilityService creates a new EligibilityService.
func NewEligibilityService(
	batchRepo repositories.BatchRepository,
	stageRepo repositories.StageRepository,
	reportRepo repositories.ReportRepository,
	evidence clients.EvidenceAggregator,
	cfg config.EvidenceConfig,
	logger *zap.Logger,
) EligibilityService {
	return &eligibilityService{
		batchRepo:  batchRepo,
		stageRepo:  stageRepo,
		reportRepo: reportRepo,
		evidence:   evidence,
		cfg:        cfg,
		logger:     logger.Named("eligibility-service"),
	}
}

var _ EligibilityService = (*eligibilityService)(nil)

func (s *eligibilityService) Evaluate(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.ValidationResult, error) {
	result := &models.ValidationResult{Valid: true}

	if !models.IsValidGrade(grade) {
		result.AddError(models.ValidationIssue{
			Code:    models.IssueCodeUnknownGrade,
			Field:   "grade",
			Message: fmt.Sprintf("unknown certificate grade %q", grade),
		})
		return result, nil
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	stages, err := s.stageRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	s.checkRequiredStages(result, grade, batch, stages)

	if err := s.checkEvidence(ctx, result, batch.FieldID); err != nil {
		return nil, err
	}

	if grade.RequiresSatelliteVerdict() {
		if err := s.checkSatelliteVerdict(ctx, result, batch.FieldID); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Eligibility evaluated",
		zap.String("batch_id", batchID.String()),
		zap.String("grade", string(grade)),
		zap.Bool("valid", result.Valid),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

func (s *eligibilityService) CanUpgrade(current, target models.CertificateGrade) bool {
	return target.Rank() > current.Rank() && current.Rank() > 0
}

// checkRequiredStages verifies every required stage type has an approved
// verification stage and, for grades that reach delivery, that the batch's
// chain of custody is marked complete.
func (s *eligibilityService) checkRequiredStages(result *models.ValidationResult, grade models.CertificateGrade, batch *models.Batch, stages []*models.VerificationStage) {
	approved := make(map[models.StageType]bool, len(stages))
	for _, st := range stages {
		if st.Status == models.StageStatusApproved {
			approved[st.StageType] = true
		}
	}

	requiresDelivery := false
	for _, required := range grade.RequiredStages() {
		if required == models.FinalStageType() {
			requiresDelivery = true
		}
		if !approved[required] {
			result.AddError(models.ValidationIssue{
				Code:    models.IssueCodeMissingStage,
				Field:   "stages",
				Message: fmt.Sprintf("stage %s has no approved verification", required),
			})
		}
	}

	if requiresDelivery && !batch.StageChainComplete {
		result.AddError(models.ValidationIssue{
			Code:    models.IssueCodeStageChainIncomplete,
			Field:   "stage_chain_complete",
			Message: "batch chain of custody is not complete",
		})
	}
}

func (s *eligibilityService) checkEvidence(ctx context.Context, result *models.ValidationResult, fieldID uuid.UUID) error {
	counts, err := s.evidence.CountRecentEvidence(ctx, fieldID, s.cfg.WindowDays)
	if err != nil {
		return fmt.Errorf("failed to count recent evidence: %w", err)
	}

	checks := []struct {
		code     string
		field    string
		required int
		actual   int
		what     string
	}{
		{models.IssueCodeInsufficientInspections, "inspections", s.cfg.MinInspections, counts.Inspections, "field inspections"},
		{models.IssueCodeInsufficientPhotos, "photos", s.cfg.MinPhotos, counts.Photos, "evidence photos"},
		{models.IssueCodeInsufficientInputs, "verified_organic_inputs", s.cfg.MinOrganicInputs, counts.VerifiedOrganicInputs, "verified organic inputs"},
	}

	for _, c := range checks {
		if c.actual < c.required {
			required, actual := c.required, c.actual
			result.AddError(models.ValidationIssue{
				Code:     c.code,
				Field:    c.field,
				Message:  fmt.Sprintf("not enough %s within the last %d days", c.what, s.cfg.WindowDays),
				Required: &required,
				Actual:   &actual,
			})
		}
	}

	return nil
}

func (s *eligibilityService) checkSatelliteVerdict(ctx context.Context, result *models.ValidationResult, fieldID uuid.UUID) error {
	report, err := s.reportRepo.GetLatestByField(ctx, fieldID, time.Now())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			result.AddError(models.ValidationIssue{
				Code:    models.IssueCodeMissingSatelliteReport,
				Field:   "satellite_report",
				Message: "no current satellite compliance report on file",
			})
			return nil
		}
		return err
	}

	if report.ComplianceStatus != models.ComplianceEligible {
		result.AddError(models.ValidationIssue{
			Code:    models.IssueCodeSatelliteNotEligible,
			Field:   "satellite_report",
			Message: fmt.Sprintf("latest satellite verdict is %s", report.ComplianceStatus),
		})
	}

	return nil
}
