package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// mockBatchRepository is an in-memory BatchRepository for testing.
type mockBatchRepository struct {
	batches map[uuid.UUID]*models.Batch

	claimErr error // forced ClaimStageVersion failure
}

func newMockBatchRepo() *mockBatchRepository {
	return &mockBatchRepository{batches: make(map[uuid.UUID]*models.Batch)}
}

func (m *mockBatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	m.batches[batch.ID] = batch
	return nil
}

func (m *mockBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, apperrors.ErrNotFound)
	}
	copied := *b
	return &copied, nil
}

func (m *mockBatchRepository) ClaimStageVersion(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrNotFound)
	}
	if b.StageVersion != expectedVersion {
		return fmt.Errorf("stage version moved: %w", apperrors.ErrConflict)
	}
	b.StageVersion++
	return nil
}

func (m *mockBatchRepository) MarkChainComplete(ctx context.Context, id uuid.UUID) error {
	b, ok := m.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, apperrors.ErrNotFound)
	}
	b.StageChainComplete = true
	return nil
}

// mockStageRepository is an in-memory StageRepository for testing.
type mockStageRepository struct {
	stages map[uuid.UUID]*models.VerificationStage
}

func newMockStageRepo() *mockStageRepository {
	return &mockStageRepository{stages: make(map[uuid.UUID]*models.VerificationStage)}
}

func (m *mockStageRepository) Create(ctx context.Context, stage *models.VerificationStage) error {
	if stage.ID == uuid.Nil {
		stage.ID = uuid.New()
	}
	if stage.Status == "" {
		stage.Status = models.StageStatusPending
	}
	stage.CreatedAt = time.Now()
	m.stages[stage.ID] = stage
	return nil
}

func (m *mockStageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationStage, error) {
	s, ok := m.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage %s: %w", id, apperrors.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (m *mockStageRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error) {
	var result []*models.VerificationStage
	for _, s := range m.stages {
		if s.BatchID == batchID {
			copied := *s
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StageType.Index() < result[j].StageType.Index()
	})
	return result, nil
}

func (m *mockStageRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.StageStatus) error {
	s, ok := m.stages[id]
	if !ok {
		return fmt.Errorf("stage %s: %w", id, apperrors.ErrNotFound)
	}
	s.Status = status
	return nil
}

// mockCertificateRepository is an in-memory CertificateRepository for testing.
type mockCertificateRepository struct {
	certs   map[uuid.UUID]*models.Certificate
	updates int

	// updateErrs is consumed one entry per Update call; a nil entry lets
	// the call through. Used to fail a specific persistence step.
	updateErrs []error
}

func newMockCertificateRepo() *mockCertificateRepository {
	return &mockCertificateRepository{certs: make(map[uuid.UUID]*models.Certificate)}
}

func (m *mockCertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}
	if cert.Status == "" {
		cert.Status = models.CertStatusDraft
	}
	for _, existing := range m.certs {
		if existing.BatchID == cert.BatchID && existing.Grade == cert.Grade && existing.Status.IsActive() {
			return fmt.Errorf("active certificate exists: %w", apperrors.ErrConflict)
		}
	}
	cert.CreatedAt = time.Now()
	m.certs[cert.ID] = cert
	return nil
}

func (m *mockCertificateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	c, ok := m.certs[id]
	if !ok {
		return nil, fmt.Errorf("certificate %s: %w", id, apperrors.ErrNotFound)
	}
	copied := *c
	return &copied, nil
}

func (m *mockCertificateRepository) GetActiveByBatchAndGrade(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.Certificate, error) {
	for _, c := range m.certs {
		if c.BatchID == batchID && c.Grade == grade && c.Status.IsActive() {
			copied := *c
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("active certificate: %w", apperrors.ErrNotFound)
}

func (m *mockCertificateRepository) Update(ctx context.Context, cert *models.Certificate) error {
	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.certs[cert.ID]; !ok {
		return fmt.Errorf("certificate %s: %w", cert.ID, apperrors.ErrNotFound)
	}
	copied := *cert
	m.certs[cert.ID] = &copied
	m.updates++
	return nil
}

// mockReportRepository is an in-memory ReportRepository for testing.
type mockReportRepository struct {
	reports []*models.SatelliteComplianceReport
}

func newMockReportRepo() *mockReportRepository {
	return &mockReportRepository{}
}

func (m *mockReportRepository) Create(ctx context.Context, report *models.SatelliteComplianceReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	m.reports = append(m.reports, report)
	return nil
}

func (m *mockReportRepository) GetLatestByField(ctx context.Context, fieldID uuid.UUID, now time.Time) (*models.SatelliteComplianceReport, error) {
	var latest *models.SatelliteComplianceReport
	for _, r := range m.reports {
		if r.FieldID != fieldID || r.IsExpired(now) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("satellite report: %w", apperrors.ErrNotFound)
	}
	copied := *latest
	return &copied, nil
}

func (m *mockReportRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var kept []*models.SatelliteComplianceReport
	var deleted int64
	for _, r := range m.reports {
		if r.IsExpired(now) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.reports = kept
	return deleted, nil
}

// mockEvidenceAggregator returns fixed evidence counts.
type mockEvidenceAggregator struct {
	counts models.EvidenceCounts
	err    error
}

func (m *mockEvidenceAggregator) CountRecentEvidence(ctx context.Context, ref uuid.UUID, windowDays int) (*models.EvidenceCounts, error) {
	if m.err != nil {
		return nil, m.err
	}
	counts := m.counts
	return &counts, nil
}

// mockImageryProvider serves a canned series and records calls.
type mockImageryProvider struct {
	series []models.NDVIDataPoint
	err    error
	calls  int
}

func (m *mockImageryProvider) FetchIndexSeries(ctx context.Context, fieldID uuid.UUID, from, to time.Time, maxCloudCoverage float64) ([]models.NDVIDataPoint, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.series, nil
}

// mockAnchorService records anchor attempts and can fail a set number of
// times before succeeding.
type mockAnchorService struct {
	failures int
	err      error
	calls    int
}

func (m *mockAnchorService) Anchor(ctx context.Context, contentHash string) (*models.AnchorRef, error) {
	m.calls++
	if m.err != nil && (m.failures == 0 || m.calls <= m.failures) {
		return nil, m.err
	}
	return &models.AnchorRef{
		TxHash:    "0x" + contentHash[:16],
		Network:   "testnet",
		Timestamp: time.Now(),
	}, nil
}

// mockPinService records pinned payloads.
type mockPinService struct {
	err   error
	calls int
}

func (m *mockPinService) Pin(ctx context.Context, payload []byte) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("bafy-test-%d", m.calls), nil
}
