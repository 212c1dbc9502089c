package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
)

// StageLedgerService maintains the per-batch ordered record of verification
// stages and enforces the chain-of-custody state machine.
type StageLedgerService interface {
	// CreateStage appends the next stage for a batch. If requestedType is
	// nil, the next type in sequence is chosen; if given, it must be exactly
	// the next type in order (apperrors.ErrInvalidOrder otherwise).
	CreateStage(ctx context.Context, batchID uuid.UUID, requestedType *models.StageType, actorID string, geo *models.GeoPoint) (*models.VerificationStage, error)

	// UpdateStageStatus transitions a stage's status. Setting the current
	// status again is a no-op success.
	UpdateStageStatus(ctx context.Context, stageID uuid.UUID, newStatus models.StageStatus, actorID string) (*models.VerificationStage, error)

	// GetStageHistory returns the batch's stages in chain order.
	GetStageHistory(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error)
}

type stageLedgerService struct {
	batchRepo repositories.BatchRepository
	stageRepo repositories.StageRepository
	logger    *zap.Logger
}

// NewStageLedgerService creates a new StageLedgerService.
func NewStageLedgerService(
	batchRepo repositories.BatchRepository,
	stageRepo repositories.StageRepository,
	logger *zap.Logger,
) StageLedgerService {
	return &stageLedgerService{
		batchRepo: batchRepo,
		stageRepo: stageRepo,
		logger:    logger.Named("stage-ledger-service"),
	}
}

var _ StageLedgerService = (*stageLedgerService)(nil)

func (s *stageLedgerService) CreateStage(ctx context.Context, batchID uuid.UUID, requestedType *models.StageType, actorID string, geo *models.GeoPoint) (*models.VerificationStage, error) {
	if actorID == "" {
		return nil, apperrors.NewValidationError("actor_id", "actor is required")
	}
	if requestedType != nil && !models.IsValidStageType(*requestedType) {
		return nil, apperrors.NewValidationError("stage_type", fmt.Sprintf("unknown stage type %q", *requestedType))
	}

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	stages, err := s.stageRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	nextIndex := len(stages)
	if nextIndex >= len(models.StageOrder) {
		return nil, fmt.Errorf("batch %s chain already has all stages: %w", batchID, apperrors.ErrInvalidOrder)
	}
	nextType := models.StageOrder[nextIndex]

	if requestedType != nil && *requestedType != nextType {
		return nil, fmt.Errorf("requested stage %s, next in sequence is %s: %w",
			*requestedType, nextType, apperrors.ErrInvalidOrder)
	}

	// The preceding stage must be approved before the chain advances, so the
	// approved set stays a gapless prefix of the stage order.
	if nextIndex > 0 {
		prev := stages[nextIndex-1]
		if prev.Status != models.StageStatusApproved {
			return nil, fmt.Errorf("stage %s is %s, not approved: %w",
				prev.StageType, prev.Status, apperrors.ErrInvalidOrder)
		}
	}

	// Serialize concurrent creators: only the writer holding the current
	// stage version gets to append.
	if err := s.batchRepo.ClaimStageVersion(ctx, batchID, batch.StageVersion); err != nil {
		return nil, err
	}

	stage := &models.VerificationStage{
		BatchID:   batchID,
		StageType: nextType,
		Status:    models.StageStatusPending,
		ActorID:   actorID,
		Geo:       geo,
	}
	if err := s.stageRepo.Create(ctx, stage); err != nil {
		return nil, err
	}

	s.logger.Info("Stage created",
		zap.String("batch_id", batchID.String()),
		zap.String("stage_type", string(nextType)),
		zap.String("actor_id", actorID))

	return stage, nil
}

func (s *stageLedgerService) UpdateStageStatus(ctx context.Context, stageID uuid.UUID, newStatus models.StageStatus, actorID string) (*models.VerificationStage, error) {
	if !models.IsValidStageStatus(newStatus) {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown stage status %q", newStatus))
	}

	stage, err := s.stageRepo.GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}

	// No-op success when the status is unchanged.
	if stage.Status == newStatus {
		return stage, nil
	}

	if !stage.Status.CanTransitionTo(newStatus) {
		return nil, apperrors.NewStateConflictError("stage", string(stage.Status), string(newStatus))
	}

	batch, err := s.batchRepo.GetByID(ctx, stage.BatchID)
	if err != nil {
		return nil, err
	}

	// Status changes go through the same per-batch exclusive section as
	// stage creation.
	if err := s.batchRepo.ClaimStageVersion(ctx, batch.ID, batch.StageVersion); err != nil {
		return nil, err
	}

	if err := s.stageRepo.UpdateStatus(ctx, stageID, newStatus); err != nil {
		return nil, err
	}
	stage.Status = newStatus

	// Approving the final stage completes the batch's chain of custody.
	if newStatus == models.StageStatusApproved && stage.StageType == models.FinalStageType() {
		if err := s.batchRepo.MarkChainComplete(ctx, batch.ID); err != nil {
			return nil, err
		}
		s.logger.Info("Batch stage chain complete", zap.String("batch_id", batch.ID.String()))
	}

	s.logger.Info("Stage status updated",
		zap.String("stage_id", stageID.String()),
		zap.String("stage_type", string(stage.StageType)),
		zap.String("status", string(newStatus)),
		zap.String("actor_id", actorID))

	return stage, nil
}

func (s *stageLedgerService) GetStageHistory(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error) {
	if _, err := s.batchRepo.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.stageRepo.ListByBatch(ctx, batchID)
}
