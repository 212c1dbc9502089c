package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/database"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// CertificateRepository provides data access for certificates.
type CertificateRepository interface {
	// Create inserts a new certificate. A partial unique index on
	// (batch_id, grade) over non-terminal statuses makes concurrent duplicate
	// generation fail with apperrors.ErrConflict.
	Create(ctx context.Context, cert *models.Certificate) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	GetActiveByBatchAndGrade(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.Certificate, error)

	// Update persists the certificate's mutable issuance fields. Called after
	// every pipeline step so a crashed issuance can resume from persisted
	// state.
	Update(ctx context.Context, cert *models.Certificate) error
}

type certificateRepository struct {
	db *database.DB
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(db *database.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

var _ CertificateRepository = (*certificateRepository)(nil)

const certificateColumns = `
	id, number, batch_id, field_id, grade, status,
	valid_from, valid_to, content_hash, content_id,
	anchor_tx_hash, anchor_network, anchor_timestamp,
	reviewed_by, rejection_reason, revocation_reason, last_error,
	created_at, updated_at`

func (r *certificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}
	if cert.Status == "" {
		cert.Status = models.CertStatusDraft
	}

	query := `
		INSERT INTO certificates (
			id, number, batch_id, field_id, grade, status,
			valid_from, valid_to, content_hash, content_id,
			anchor_tx_hash, anchor_network, anchor_timestamp,
			reviewed_by, rejection_reason, revocation_reason, last_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	txHash, network, anchoredAt := anchorColumns(cert.Anchor)

	_, err := r.db.Exec(ctx, query,
		cert.ID, cert.Number, cert.BatchID, cert.FieldID, cert.Grade, cert.Status,
		cert.ValidFrom, cert.ValidTo, cert.ContentHash, cert.ContentID,
		txHash, network, anchoredAt,
		cert.ReviewedBy, cert.RejectionReason, cert.RevocationReason, cert.LastError,
		cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("active certificate for batch %s grade %s: %w",
				cert.BatchID, cert.Grade, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	return nil
}

func (r *certificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`

	cert, err := scanCertificateRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("certificate %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return cert, nil
}

func (r *certificateRepository) GetActiveByBatchAndGrade(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.Certificate, error) {
	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE batch_id = $1 AND grade = $2 AND status NOT IN ('REJECTED', 'REVOKED')
		ORDER BY created_at DESC
		LIMIT 1`

	cert, err := scanCertificateRow(r.db.QueryRow(ctx, query, batchID, grade))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("active certificate for batch %s: %w", batchID, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return cert, nil
}

func (r *certificateRepository) Update(ctx context.Context, cert *models.Certificate) error {
	cert.UpdatedAt = time.Now()

	query := `
		UPDATE certificates
		SET status = $2,
		    content_hash = $3,
		    content_id = $4,
		    anchor_tx_hash = $5,
		    anchor_network = $6,
		    anchor_timestamp = $7,
		    reviewed_by = $8,
		    rejection_reason = $9,
		    revocation_reason = $10,
		    last_error = $11,
		    updated_at = $12
		WHERE id = $1`

	txHash, network, anchoredAt := anchorColumns(cert.Anchor)

	result, err := r.db.Exec(ctx, query,
		cert.ID, cert.Status, cert.ContentHash, cert.ContentID,
		txHash, network, anchoredAt,
		cert.ReviewedBy, cert.RejectionReason, cert.RevocationReason, cert.LastError,
		cert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update certificate: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("certificate %s: %w", cert.ID, apperrors.ErrNotFound)
	}

	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func anchorColumns(a *models.AnchorRef) (txHash, network *string, anchoredAt *time.Time) {
	if a == nil {
		return nil, nil, nil
	}
	return &a.TxHash, &a.Network, &a.Timestamp
}

func scanCertificateRow(row pgx.Row) (*models.Certificate, error) {
	var c models.Certificate
	var txHash, network *string
	var anchoredAt *time.Time

	err := row.Scan(
		&c.ID, &c.Number, &c.BatchID, &c.FieldID, &c.Grade, &c.Status,
		&c.ValidFrom, &c.ValidTo, &c.ContentHash, &c.ContentID,
		&txHash, &network, &anchoredAt,
		&c.ReviewedBy, &c.RejectionReason, &c.RevocationReason, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan certificate: %w", err)
	}

	if txHash != nil && network != nil && anchoredAt != nil {
		c.Anchor = &models.AnchorRef{TxHash: *txHash, Network: *network, Timestamp: *anchoredAt}
	}

	return &c, nil
}
