package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/database"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// StageRepository provides data access for verification stages.
type StageRepository interface {
	Create(ctx context.Context, stage *models.VerificationStage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationStage, error)

	// ListByBatch returns the batch's stages in chain order.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status models.StageStatus) error
}

type stageRepository struct {
	db *database.DB
}

// NewStageRepository creates a new StageRepository.
func NewStageRepository(db *database.DB) StageRepository {
	return &stageRepository{db: db}
}

var _ StageRepository = (*stageRepository)(nil)

func (r *stageRepository) Create(ctx context.Context, stage *models.VerificationStage) error {
	now := time.Now()
	stage.CreatedAt = now
	stage.UpdatedAt = now
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	if stage.Status == "" {
		stage.Status = models.StageStatusPending
	}

	geoJSON, err := marshalGeo(stage.Geo)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO verification_stages (
			id, batch_id, stage_type, stage_index, status,
			actor_id, geo, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		stage.ID, stage.BatchID, stage.StageType, stage.StageType.Index(), stage.Status,
		stage.ActorID, geoJSON, stage.Notes, stage.CreatedAt, stage.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create verification stage: %w", err)
	}

	return nil
}

func (r *stageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationStage, error) {
	query := `
		SELECT id, batch_id, stage_type, status, actor_id, geo, notes, created_at, updated_at
		FROM verification_stages
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	stage, err := scanStageRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("stage %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return stage, nil
}

func (r *stageRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error) {
	query := `
		SELECT id, batch_id, stage_type, status, actor_id, geo, notes, created_at, updated_at
		FROM verification_stages
		WHERE batch_id = $1
		ORDER BY stage_index`

	rows, err := r.db.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	var stages []*models.VerificationStage
	for rows.Next() {
		stage, err := scanStageRow(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage rows: %w", err)
	}

	return stages, nil
}

func (r *stageRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StageStatus) error {
	query := `
		UPDATE verification_stages
		SET status = $2,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update stage status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("stage %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func marshalGeo(geo *models.GeoPoint) ([]byte, error) {
	if geo == nil {
		return nil, nil
	}
	data, err := json.Marshal(geo)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geo point: %w", err)
	}
	return data, nil
}

func scanStageRow(row pgx.Row) (*models.VerificationStage, error) {
	var s models.VerificationStage
	var geoJSON []byte

	err := row.Scan(
		&s.ID, &s.BatchID, &s.StageType, &s.Status,
		&s.ActorID, &geoJSON, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}

	if len(geoJSON) > 0 {
		s.Geo = &models.GeoPoint{}
		if err := json.Unmarshal(geoJSON, s.Geo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal geo point: %w", err)
		}
	}

	return &s, nil
}
