package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

func newTestLedger() (StageLedgerService, *mockBatchRepository, *mockStageRepository) {
	batchRepo := newMockBatchRepo()
	stageRepo := newMockStageRepo()
	svc := NewStageLedgerService(batchRepo, stageRepo, zap.NewNop())
	return svc, batchRepo, stageRepo
}

func registerBatch(t *testing.T, repo *mockBatchRepository) *models.Batch {
	t.Helper()
	batch := &models.Batch{
		ID:         uuid.New(),
		ProducerID: "producer-1",
		FieldID:    uuid.New(),
		Crop:       "coffee",
		Status:     models.BatchStatusRegistered,
	}
	require.NoError(t, repo.Create(context.Background(), batch))
	return batch
}

// advanceChain creates and approves stages up to (not including) the given
// stage type.
func advanceChain(t *testing.T, svc StageLedgerService, batchID uuid.UUID, upTo models.StageType) {
	t.Helper()
	ctx := context.Background()
	for _, st := range models.StageOrder {
		if st == upTo {
			return
		}
		stage, err := svc.CreateStage(ctx, batchID, nil, "inspector-1", nil)
		require.NoError(t, err)
		_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusApproved, "inspector-1")
		require.NoError(t, err)
	}
}

func TestStageLedger_CreateStage_StartsWithHarvest(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)

	stage, err := svc.CreateStage(context.Background(), batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)

	assert.Equal(t, models.StageTypeHarvest, stage.StageType)
	assert.Equal(t, models.StageStatusPending, stage.Status)
	assert.Equal(t, "inspector-1", stage.ActorID)
}

func TestStageLedger_CreateStage_RejectsOutOfOrderType(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)

	packing := models.StageTypePacking
	_, err := svc.CreateStage(context.Background(), batch.ID, &packing, "inspector-1", nil)

	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
}

func TestStageLedger_CreateStage_RequiresPreviousApproved(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	// Harvest recorded but still pending.
	_, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)

	_, err = svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
}

func TestStageLedger_CreateStage_AdvancesAfterApproval(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	harvest, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)
	_, err = svc.UpdateStageStatus(ctx, harvest.ID, models.StageStatusApproved, "inspector-1")
	require.NoError(t, err)

	packing, err := svc.CreateStage(ctx, batch.ID, nil, "packer-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StageTypePacking, packing.StageType)
}

func TestStageLedger_CreateStage_FailsWhenChainComplete(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	for range models.StageOrder {
		stage, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
		require.NoError(t, err)
		_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusApproved, "inspector-1")
		require.NoError(t, err)
	}

	_, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
}

func TestStageLedger_CreateStage_ConcurrentWriterLosesVersionRace(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	batchRepo.claimErr = apperrors.ErrConflict

	_, err := svc.CreateStage(context.Background(), batch.ID, nil, "inspector-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestStageLedger_CreateStage_RequiresActor(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)

	_, err := svc.CreateStage(context.Background(), batch.ID, nil, "", nil)

	var validationErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestStageLedger_CreateStage_UnknownBatch(t *testing.T) {
	svc, _, _ := newTestLedger()

	_, err := svc.CreateStage(context.Background(), uuid.New(), nil, "inspector-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStageLedger_UpdateStageStatus_SameStatusIsNoOp(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	stage, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)

	updated, err := svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusPending, "inspector-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusPending, updated.Status)
}

func TestStageLedger_UpdateStageStatus_ApprovedIsTerminal(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	stage, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)
	_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusApproved, "inspector-1")
	require.NoError(t, err)

	_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusRejected, "inspector-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition)
}

func TestStageLedger_UpdateStageStatus_RejectedCanBeResubmitted(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	stage, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
	require.NoError(t, err)
	_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusRejected, "inspector-1")
	require.NoError(t, err)

	updated, err := svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusPending, "producer-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusPending, updated.Status)
}

func TestStageLedger_UpdateStageStatus_FlaggedResolvesEitherWay(t *testing.T) {
	for _, target := range []models.StageStatus{models.StageStatusApproved, models.StageStatusRejected} {
		svc, batchRepo, _ := newTestLedger()
		batch := registerBatch(t, batchRepo)
		ctx := context.Background()

		stage, err := svc.CreateStage(ctx, batch.ID, nil, "inspector-1", nil)
		require.NoError(t, err)
		_, err = svc.UpdateStageStatus(ctx, stage.ID, models.StageStatusFlagged, "inspector-1")
		require.NoError(t, err)

		updated, err := svc.UpdateStageStatus(ctx, stage.ID, target, "supervisor-1")
		require.NoError(t, err)
		assert.Equal(t, target, updated.Status)
	}
}

func TestStageLedger_ApprovingFinalStageCompletesChain(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	advanceChain(t, svc, batch.ID, models.StageTypeDelivery)

	delivery, err := svc.CreateStage(ctx, batch.ID, nil, "courier-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StageTypeDelivery, delivery.StageType)

	_, err = svc.UpdateStageStatus(ctx, delivery.ID, models.StageStatusApproved, "courier-1")
	require.NoError(t, err)

	updated, err := batchRepo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, updated.StageChainComplete)
}

func TestStageLedger_GetStageHistory_ReturnsChainOrder(t *testing.T) {
	svc, batchRepo, _ := newTestLedger()
	batch := registerBatch(t, batchRepo)
	ctx := context.Background()

	advanceChain(t, svc, batch.ID, models.StageTypeColdChain)

	history, err := svc.GetStageHistory(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StageTypeHarvest, history[0].StageType)
	assert.Equal(t, models.StageTypePacking, history[1].StageType)
}
