package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/database"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// BatchRepository provides data access for batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)

	// ClaimStageVersion bumps the batch's stage version if and only if the
	// caller still holds the current one. Returns apperrors.ErrConflict when
	// a concurrent writer got there first.
	ClaimStageVersion(ctx context.Context, id uuid.UUID, expectedVersion int64) error

	// MarkChainComplete records that the final stage has been approved.
	MarkChainComplete(ctx context.Context, id uuid.UUID) error
}

type batchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new BatchRepository.
func NewBatchRepository(db *database.DB) BatchRepository {
	return &batchRepository{db: db}
}

var _ BatchRepository = (*batchRepository)(nil)

func (r *batchRepository) Create(ctx context.Context, batch *models.Batch) error {
	now := time.Now()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusRegistered
	}

	query := `
		INSERT INTO batches (
			id, producer_id, field_id, crop, status,
			stage_version, stage_chain_complete, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		batch.ID, batch.ProducerID, batch.FieldID, batch.Crop, batch.Status,
		batch.StageVersion, batch.StageChainComplete, batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

func (r *batchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	query := `
		SELECT id, producer_id, field_id, crop, status,
		       stage_version, stage_chain_complete, created_at, updated_at
		FROM batches
		WHERE id = $1`

	var b models.Batch
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.ProducerID, &b.FieldID, &b.Crop, &b.Status,
		&b.StageVersion, &b.StageChainComplete, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &b, nil
}

func (r *batchRepository) ClaimStageVersion(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	query := `
		UPDATE batches
		SET stage_version = stage_version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND stage_version = $2`

	result, err := r.db.Exec(ctx, query, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to claim stage version: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("batch %s stage version %d: %w", id, expectedVersion, apperrors.ErrConflict)
	}

	return nil
}

func (r *batchRepository) MarkChainComplete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE batches
		SET stage_chain_complete = TRUE,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark batch chain complete: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}
