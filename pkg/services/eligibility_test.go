package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

func defaultEvidenceConfig() config.EvidenceConfig {
	return config.EvidenceConfig{
		WindowDays:       90,
		MinInspections:   4,
		MinPhotos:        12,
		MinOrganicInputs: 3,
	}
}

func sufficientEvidence() *mockEvidenceAggregator {
	return &mockEvidenceAggregator{counts: models.EvidenceCounts{
		Inspections:           6,
		Photos:                20,
		VerifiedOrganicInputs: 5,
	}}
}

type eligibilityFixture struct {
	svc        EligibilityService
	batchRepo  *mockBatchRepository
	stageRepo  *mockStageRepository
	reportRepo *mockReportRepository
	evidence   *mockEvidenceAggregator
	batch      *models.Batch
}

func newEligibilityFixture(t *testing.T) *eligibilityFixture {
	t.Helper()
	f := &eligibilityFixture{
		batchRepo:  newMockBatchRepo(),
		stageRepo:  newMockStageRepo(),
		reportRepo: newMockReportRepo(),
		evidence:   sufficientEvidence(),
	}
	f.svc = NewEligibilityService(f.batchRepo, f.stageRepo, f.reportRepo, f.evidence, defaultEvidenceConfig(), zap.NewNop())
	f.batch = registerBatch(t, f.batchRepo)
	return f
}

// approveStages records approved verification stages for the given types.
func (f *eligibilityFixture) approveStages(t *testing.T, types ...models.StageType) {
	t.Helper()
	for _, st := range types {
		err := f.stageRepo.Create(context.Background(), &models.VerificationStage{
			BatchID:   f.batch.ID,
			StageType: st,
			Status:    models.StageStatusApproved,
			ActorID:   "inspector-1",
		})
		require.NoError(t, err)
	}
}

func (f *eligibilityFixture) completeChain(t *testing.T) {
	t.Helper()
	f.approveStages(t, models.StageOrder...)
	require.NoError(t, f.batchRepo.MarkChainComplete(context.Background(), f.batch.ID))
}

func (f *eligibilityFixture) addReport(t *testing.T, status models.ComplianceStatus, expiresAt time.Time) {
	t.Helper()
	err := f.reportRepo.Create(context.Background(), &models.SatelliteComplianceReport{
		FieldID:          f.batch.FieldID,
		Crop:             f.batch.Crop,
		ComplianceStatus: status,
		CreatedAt:        time.Now(),
		ExpiresAt:        expiresAt,
	})
	require.NoError(t, err)
}

func issueCodes(result *models.ValidationResult) []string {
	codes := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

func TestEligibility_StandardGrade_Passes(t *testing.T) {
	f := newEligibilityFixture(t)
	f.approveStages(t, models.StageTypeHarvest, models.StageTypePacking)

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeStandard)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestEligibility_MissingStageReported(t *testing.T) {
	f := newEligibilityFixture(t)
	f.approveStages(t, models.StageTypeHarvest)

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeStandard)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeMissingStage)
}

func TestEligibility_PendingStageDoesNotCount(t *testing.T) {
	f := newEligibilityFixture(t)
	f.approveStages(t, models.StageTypeHarvest)
	require.NoError(t, f.stageRepo.Create(context.Background(), &models.VerificationStage{
		BatchID:   f.batch.ID,
		StageType: models.StageTypePacking,
		Status:    models.StageStatusPending,
		ActorID:   "packer-1",
	}))

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeStandard)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeMissingStage)
}

func TestEligibility_ExportGradeRequiresCompleteChain(t *testing.T) {
	f := newEligibilityFixture(t)
	// All stages approved but the chain-complete flag was never set.
	f.approveStages(t, models.StageOrder...)

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeExport)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeStageChainIncomplete)
}

func TestEligibility_InsufficientEvidenceCarriesCounts(t *testing.T) {
	f := newEligibilityFixture(t)
	f.approveStages(t, models.StageTypeHarvest, models.StageTypePacking)
	f.evidence.counts = models.EvidenceCounts{Inspections: 2, Photos: 20, VerifiedOrganicInputs: 5}

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeStandard)
	require.NoError(t, err)

	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	issue := result.Errors[0]
	assert.Equal(t, models.IssueCodeInsufficientInspections, issue.Code)
	require.NotNil(t, issue.Required)
	require.NotNil(t, issue.Actual)
	assert.Equal(t, 4, *issue.Required)
	assert.Equal(t, 2, *issue.Actual)
}

func TestEligibility_AllFailuresReportedTogether(t *testing.T) {
	f := newEligibilityFixture(t)
	f.evidence.counts = models.EvidenceCounts{}

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeOrganic)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	codes := issueCodes(result)
	assert.Contains(t, codes, models.IssueCodeMissingStage)
	assert.Contains(t, codes, models.IssueCodeInsufficientInspections)
	assert.Contains(t, codes, models.IssueCodeInsufficientPhotos)
	assert.Contains(t, codes, models.IssueCodeInsufficientInputs)
	assert.Contains(t, codes, models.IssueCodeMissingSatelliteReport)
}

func TestEligibility_OrganicRequiresEligibleSatelliteVerdict(t *testing.T) {
	f := newEligibilityFixture(t)
	f.completeChain(t)
	f.addReport(t, models.ComplianceNeedsReview, time.Now().Add(24*time.Hour))

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeOrganic)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeSatelliteNotEligible)
}

func TestEligibility_ExpiredReportTreatedAsAbsent(t *testing.T) {
	f := newEligibilityFixture(t)
	f.completeChain(t)
	f.addReport(t, models.ComplianceEligible, time.Now().Add(-time.Hour))

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeOrganic)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeMissingSatelliteReport)
}

func TestEligibility_OrganicGrade_Passes(t *testing.T) {
	f := newEligibilityFixture(t)
	f.completeChain(t)
	f.addReport(t, models.ComplianceEligible, time.Now().Add(30*24*time.Hour))

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeOrganic)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestEligibility_ExportGradeIgnoresSatellite(t *testing.T) {
	f := newEligibilityFixture(t)
	f.completeChain(t)
	// No satellite report on file.

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.GradeExport)
	require.NoError(t, err)

	assert.True(t, result.Valid)
}

func TestEligibility_UnknownGrade(t *testing.T) {
	f := newEligibilityFixture(t)

	result, err := f.svc.Evaluate(context.Background(), f.batch.ID, models.CertificateGrade("PLATINUM"))
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, issueCodes(result), models.IssueCodeUnknownGrade)
}

func TestEligibility_CanUpgrade(t *testing.T) {
	f := newEligibilityFixture(t)

	assert.True(t, f.svc.CanUpgrade(models.GradeStandard, models.GradePremium))
	assert.True(t, f.svc.CanUpgrade(models.GradeExport, models.GradeOrganic))
	assert.False(t, f.svc.CanUpgrade(models.GradePremium, models.GradePremium))
	assert.False(t, f.svc.CanUpgrade(models.GradeOrganic, models.GradeStandard))
	assert.False(t, f.svc.CanUpgrade(models.CertificateGrade("PLATINUM"), models.GradePremium))
}
