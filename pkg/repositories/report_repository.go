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

// ReportRepository provides data access for satellite compliance reports.
type ReportRepository interface {
	Create(ctx context.Context, report *models.SatelliteComplianceReport) error

	// GetLatestByField returns the newest report for the field that has not
	// passed its retention window at the given instant. Expired reports are
	// treated as absent.
	GetLatestByField(ctx context.Context, fieldID uuid.UUID, now time.Time) (*models.SatelliteComplianceReport, error)

	// DeleteExpired removes reports past retention. Returns the number of
	// rows deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type reportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *database.DB) ReportRepository {
	return &reportRepository{db: db}
}

var _ ReportRepository = (*reportRepository)(nil)

func (r *reportRepository) Create(ctx context.Context, report *models.SatelliteComplianceReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	seriesJSON, err := json.Marshal(report.Series)
	if err != nil {
		return fmt.Errorf("failed to marshal report series: %w", err)
	}
	violationsJSON, err := json.Marshal(report.Violations)
	if err != nil {
		return fmt.Errorf("failed to marshal report violations: %w", err)
	}

	query := `
		INSERT INTO satellite_reports (
			id, field_id, crop, window_start, window_end,
			series, violations, valid_points, expected_points,
			avg_cloud_coverage, overall_confidence, compliance_status,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, query,
		report.ID, report.FieldID, report.Crop, report.WindowStart, report.WindowEnd,
		seriesJSON, violationsJSON, report.ValidPoints, report.ExpectedPoints,
		report.AvgCloudCoverage, report.OverallConfidence, report.ComplianceStatus,
		report.CreatedAt, report.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create satellite report: %w", err)
	}

	return nil
}

func (r *reportRepository) GetLatestByField(ctx context.Context, fieldID uuid.UUID, now time.Time) (*models.SatelliteComplianceReport, error) {
	query := `
		SELECT id, field_id, crop, window_start, window_end,
		       series, violations, valid_points, expected_points,
		       avg_cloud_coverage, overall_confidence, compliance_status,
		       created_at, expires_at
		FROM satellite_reports
		WHERE field_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`

	var rep models.SatelliteComplianceReport
	var seriesJSON, violationsJSON []byte

	err := r.db.QueryRow(ctx, query, fieldID, now).Scan(
		&rep.ID, &rep.FieldID, &rep.Crop, &rep.WindowStart, &rep.WindowEnd,
		&seriesJSON, &violationsJSON, &rep.ValidPoints, &rep.ExpectedPoints,
		&rep.AvgCloudCoverage, &rep.OverallConfidence, &rep.ComplianceStatus,
		&rep.CreatedAt, &rep.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("satellite report for field %s: %w", fieldID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get satellite report: %w", err)
	}

	if err := json.Unmarshal(seriesJSON, &rep.Series); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report series: %w", err)
	}
	if err := json.Unmarshal(violationsJSON, &rep.Violations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report violations: %w", err)
	}

	return &rep, nil
}

func (r *reportRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM satellite_reports WHERE expires_at <= $1`

	result, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", err)
	}

	return result.RowsAffected(), nil
}
