package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/services"
)

// Function-field stubs let each test pin down exactly the calls it expects.

type stubBatchRepo struct {
	createFn  func(ctx context.Context, batch *models.Batch) error
	getByIDFn func(ctx context.Context, id uuid.UUID) (*models.Batch, error)
}

func (s *stubBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	return s.createFn(ctx, batch)
}

func (s *stubBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubBatchRepo) ClaimStageVersion(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	panic("unexpected ClaimStageVersion call")
}

func (s *stubBatchRepo) MarkChainComplete(ctx context.Context, id uuid.UUID) error {
	panic("unexpected MarkChainComplete call")
}

type stubStageLedger struct {
	createFn  func(ctx context.Context, batchID uuid.UUID, requestedType *models.StageType, actorID string, geo *models.GeoPoint) (*models.VerificationStage, error)
	updateFn  func(ctx context.Context, stageID uuid.UUID, newStatus models.StageStatus, actorID string) (*models.VerificationStage, error)
	historyFn func(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error)
}

func (s *stubStageLedger) CreateStage(ctx context.Context, batchID uuid.UUID, requestedType *models.StageType, actorID string, geo *models.GeoPoint) (*models.VerificationStage, error) {
	return s.createFn(ctx, batchID, requestedType, actorID, geo)
}

func (s *stubStageLedger) UpdateStageStatus(ctx context.Context, stageID uuid.UUID, newStatus models.StageStatus, actorID string) (*models.VerificationStage, error) {
	return s.updateFn(ctx, stageID, newStatus, actorID)
}

func (s *stubStageLedger) GetStageHistory(ctx context.Context, batchID uuid.UUID) ([]*models.VerificationStage, error) {
	return s.historyFn(ctx, batchID)
}

type stubCertificateService struct {
	generateFn func(ctx context.Context, req *services.GenerateRequest) (*models.Certificate, error)
	approveFn  func(ctx context.Context, id uuid.UUID, reviewer string) (*models.Certificate, error)
	rejectFn   func(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Certificate, error)
	revokeFn   func(ctx context.Context, id uuid.UUID, reason string) (*models.Certificate, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
}

func (s *stubCertificateService) Generate(ctx context.Context, req *services.GenerateRequest) (*models.Certificate, error) {
	return s.generateFn(ctx, req)
}

func (s *stubCertificateService) Approve(ctx context.Context, id uuid.UUID, reviewer string) (*models.Certificate, error) {
	return s.approveFn(ctx, id, reviewer)
}

func (s *stubCertificateService) Reject(ctx context.Context, id uuid.UUID, reviewer, reason string) (*models.Certificate, error) {
	return s.rejectFn(ctx, id, reviewer, reason)
}

func (s *stubCertificateService) Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.Certificate, error) {
	return s.revokeFn(ctx, id, reason)
}

func (s *stubCertificateService) Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	return s.getFn(ctx, id)
}

type stubEligibilityService struct {
	evaluateFn func(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.ValidationResult, error)
}

func (s *stubEligibilityService) Evaluate(ctx context.Context, batchID uuid.UUID, grade models.CertificateGrade) (*models.ValidationResult, error) {
	return s.evaluateFn(ctx, batchID, grade)
}

func (s *stubEligibilityService) CanUpgrade(current, target models.CertificateGrade) bool {
	return target.Rank() > current.Rank()
}

type stubSatelliteService struct {
	runFn    func(ctx context.Context, fieldID uuid.UUID, crop string, params *services.AnalysisParams) (*models.SatelliteComplianceReport, error)
	latestFn func(ctx context.Context, fieldID uuid.UUID) (*models.SatelliteComplianceReport, error)
}

func (s *stubSatelliteService) RunAnalysis(ctx context.Context, fieldID uuid.UUID, crop string, params *services.AnalysisParams) (*models.SatelliteComplianceReport, error) {
	return s.runFn(ctx, fieldID, crop, params)
}

func (s *stubSatelliteService) GetLatestReport(ctx context.Context, fieldID uuid.UUID) (*models.SatelliteComplianceReport, error) {
	return s.latestFn(ctx, fieldID)
}
