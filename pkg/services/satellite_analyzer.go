package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/clients"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
	"github.com/harvestproof/harvestproof-engine/pkg/repositories"
)

// Detection-window constants shared by the rules. The calibration table tunes
// severities; these define what the rules are.
const (
	// fertilizerWindowDays bounds how far apart two samples can be for a
	// rise between them to count as one application event.
	fertilizerWindowDays = 30
	// pesticideDropFraction is the index drop (fraction of full scale) that
	// starts a drop-then-bounce signature.
	pesticideDropFraction = 0.15
	// pesticideRecoveryFraction is the bounce that completes it.
	pesticideRecoveryFraction = 0.10
	// pesticideRecoveryDays bounds the drop-to-recovery interval.
	pesticideRecoveryDays = 30
	// clearingDropFraction is the relative index drop that suggests land
	// clearing when sustained.
	clearingDropFraction = 0.40
	// clearingMinDays is the minimum sustained duration.
	clearingMinDays = 60

	// minPointsForDecision is the sample count below which the history is
	// too thin to classify at all (under two years of monthly samples).
	minPointsForDecision = 24
)

// AnalysisParams overrides the configured analysis window for one run. Zero
// values fall back to configuration defaults.
type AnalysisParams struct {
	From             time.Time
	To               time.Time
	IntervalDays     int
	MaxCloudCoverage float64
}

// SatelliteAnalysisService runs organic-compliance analysis over a field's
// vegetation-index history and persists the resulting report.
type SatelliteAnalysisService interface {
	// RunAnalysis fetches the field's index series, applies the violation
	// rules and stores a new compliance report. It consumes imagery quota;
	// when the monthly budget is spent it fails with
	// apperrors.ErrQuotaExceeded rather than truncating the series.
	RunAnalysis(ctx context.Context, fieldID uuid.UUID, crop string, params *AnalysisParams) (*models.SatelliteComplianceReport, error)

	// GetLatestReport returns the newest unexpired report for the field, or
	// apperrors.ErrNotFound when none exists.
	GetLatestReport(ctx context.Context, fieldID uuid.UUID) (*models.SatelliteComplianceReport, error)
}

type satelliteAnalysisService struct {
	imagery     clients.ImageryProvider
	reportRepo  repositories.ReportRepository
	quota       QuotaCounter
	calibration *Calibration
	cfg         config.SatelliteConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewSatelliteAnalysisService creates a new SatelliteAnalysisService.
func NewSatelliteAnalysisService(
	imagery clients.ImageryProvider,
	reportRepo repositories.ReportRepository,
	quota QuotaCounter,
	calibration *Calibration,
	cfg config.SatelliteConfig,
	logger *zap.Logger,
) SatelliteAnalysisService {
	return &satelliteAnalysisService{
		imagery:     imagery,
		reportRepo:  reportRepo,
		quota:       quota,
		calibration: calibration,
		cfg:         cfg,
		logger:      logger.Named("satellite-analysis-service"),
		now:         time.Now,
	}
}

var _ SatelliteAnalysisService = (*satelliteAnalysisService)(nil)

func (s *satelliteAnalysisService) RunAnalysis(ctx context.Context, fieldID uuid.UUID, crop string, params *AnalysisParams) (*models.SatelliteComplianceReport, error) {
	now := s.now().UTC()

	from, to, intervalDays, maxCloud := s.resolveWindow(now, params)
	if !to.After(from) {
		return nil, apperrors.NewValidationError("window", "analysis window end must be after start")
	}

	if err := s.quota.Reserve(ctx, s.cfg.UnitsPerRequest); err != nil {
		return nil, err
	}

	series, err := s.imagery.FetchIndexSeries(ctx, fieldID, from, to, maxCloud)
	if err != nil {
		// The provider never saw the request, give the units back.
		if relErr := s.quota.Release(ctx, s.cfg.UnitsPerRequest); relErr != nil {
			s.logger.Warn("failed to release quota after fetch failure",
				zap.String("field_id", fieldID.String()),
				zap.Error(relErr))
		}
		return nil, fmt.Errorf("failed to fetch index series: %w", err)
	}

	valid := filterCloudy(series, maxCloud)
	sort.Slice(valid, func(i, j int) bool { return valid[i].Date.Before(valid[j].Date) })

	baseline := s.calibration.BaselineFor(crop)
	var violations []models.ViolationFlag
	violations = append(violations, s.detectSyntheticFertilizer(valid, baseline)...)
	violations = append(violations, s.detectPesticideApplication(valid)...)
	violations = append(violations, s.detectLandClearing(valid)...)
	sort.Slice(violations, func(i, j int) bool { return violations[i].Date.Before(violations[j].Date) })

	expected := expectedPoints(from, to, intervalDays)

	report := &models.SatelliteComplianceReport{
		ID:               uuid.New(),
		FieldID:          fieldID,
		Crop:             crop,
		WindowStart:      from,
		WindowEnd:        to,
		Series:           valid,
		Violations:       violations,
		ValidPoints:      len(valid),
		ExpectedPoints:   expected,
		AvgCloudCoverage: avgCloudCoverage(valid),
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, s.cfg.ReportRetentionDays),
	}
	report.OverallConfidence = overallConfidence(len(valid), expected, len(violations), report.AvgCloudCoverage)
	report.ComplianceStatus = decideStatus(report)

	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to store compliance report: %w", err)
	}

	s.logger.Info("satellite analysis complete",
		zap.String("field_id", fieldID.String()),
		zap.String("crop", crop),
		zap.Int("valid_points", report.ValidPoints),
		zap.Int("violations", len(violations)),
		zap.String("status", string(report.ComplianceStatus)),
		zap.Float64("confidence", report.OverallConfidence))

	return report, nil
}

func (s *satelliteAnalysisService) GetLatestReport(ctx context.Context, fieldID uuid.UUID) (*models.SatelliteComplianceReport, error) {
	return s.reportRepo.GetLatestByField(ctx, fieldID, s.now().UTC())
}

// resolveWindow merges per-run overrides with configured defaults.
func (s *satelliteAnalysisService) resolveWindow(now time.Time, params *AnalysisParams) (from, to time.Time, intervalDays int, maxCloud float64) {
	to = now
	from = now.AddDate(-s.cfg.AnalysisWindowYears, 0, 0)
	intervalDays = s.cfg.SampleIntervalDays
	maxCloud = s.cfg.MaxCloudCoverage

	if params == nil {
		return from, to, intervalDays, maxCloud
	}
	if !params.From.IsZero() {
		from = params.From.UTC()
	}
	if !params.To.IsZero() {
		to = params.To.UTC()
	}
	if params.IntervalDays > 0 {
		intervalDays = params.IntervalDays
	}
	if params.MaxCloudCoverage > 0 {
		maxCloud = params.MaxCloudCoverage
	}
	return from, to, intervalDays, maxCloud
}

// ============================================================================
// Violation Rules
// ============================================================================

// detectSyntheticFertilizer flags index rises above the crop's synthetic
// threshold within a 30-day window, unless the rise lands in a peak month
// where sharp green-up is seasonally expected.
func (s *satelliteAnalysisService) detectSyntheticFertilizer(series []models.NDVIDataPoint, baseline CropBaseline) []models.ViolationFlag {
	var flags []models.ViolationFlag

	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]

		gap := cur.Date.Sub(prev.Date)
		if gap <= 0 || gap > fertilizerWindowDays*24*time.Hour {
			continue
		}

		rise := cur.IndexAvg - prev.IndexAvg
		if rise <= baseline.SyntheticDelta {
			continue
		}
		if baseline.IsPeakMonth(cur.Date.Month()) {
			continue
		}

		flags = append(flags, models.ViolationFlag{
			Date:       cur.Date,
			Type:       models.ViolationSyntheticFertilizer,
			Severity:   s.fertilizerSeverity(rise),
			Confidence: flagConfidence(prev, cur),
			Magnitude:  rise,
		})
	}

	return flags
}

// detectPesticideApplication flags drop-then-bounce signatures: an index drop
// over 15% of scale followed by a recovery over 10% of scale within 30 days.
func (s *satelliteAnalysisService) detectPesticideApplication(series []models.NDVIDataPoint) []models.ViolationFlag {
	var flags []models.ViolationFlag

	for i := 1; i < len(series); i++ {
		prev, low := series[i-1], series[i]

		drop := prev.IndexAvg - low.IndexAvg
		if drop <= pesticideDropFraction {
			continue
		}

		// Look for the bounce within the recovery window.
		for j := i + 1; j < len(series); j++ {
			next := series[j]
			if next.Date.Sub(low.Date) > pesticideRecoveryDays*24*time.Hour {
				break
			}
			if next.IndexAvg-low.IndexAvg > pesticideRecoveryFraction {
				flags = append(flags, models.ViolationFlag{
					Date:         low.Date,
					Type:         models.ViolationPesticideUse,
					Severity:     s.pesticideSeverity(drop),
					Confidence:   flagConfidence(prev, low, next),
					Magnitude:    drop,
					DurationDays: int(next.Date.Sub(low.Date).Hours() / 24),
				})
				break
			}
		}
	}

	return flags
}

// detectLandClearing flags relative drops over 40% that are sustained for at
// least 60 consecutive days with no recovery.
func (s *satelliteAnalysisService) detectLandClearing(series []models.NDVIDataPoint) []models.ViolationFlag {
	var flags []models.ViolationFlag

	for i := 1; i < len(series); i++ {
		prev, low := series[i-1], series[i]
		if prev.IndexAvg <= 0 {
			continue
		}

		relDrop := (prev.IndexAvg - low.IndexAvg) / prev.IndexAvg
		if relDrop <= clearingDropFraction {
			continue
		}

		// Ceiling below which the index must stay to count as sustained.
		ceiling := prev.IndexAvg * (1 - clearingDropFraction)
		last := low
		end := i
		for j := i + 1; j < len(series); j++ {
			if series[j].IndexAvg > ceiling {
				break
			}
			last = series[j]
			end = j
		}

		durationDays := int(last.Date.Sub(low.Date).Hours() / 24)
		if durationDays < clearingMinDays {
			continue
		}

		// The index is a field-wide average, so the relative drop is a
		// proportional estimate of the cleared fraction.
		affected := relDrop * 100
		if affected > 100 {
			affected = 100
		}

		flags = append(flags, models.ViolationFlag{
			Date:                low.Date,
			Type:                models.ViolationLandClearing,
			Severity:            s.clearingSeverity(durationDays),
			Confidence:          flagConfidence(prev, low, last),
			Magnitude:           relDrop,
			DurationDays:        durationDays,
			AffectedAreaPercent: affected,
		})
		// Skip past the cleared stretch so one clearing event yields one
		// flag rather than one per sample.
		i = end
	}

	return flags
}

// ============================================================================
// Severity & Confidence
// ============================================================================

func (s *satelliteAnalysisService) fertilizerSeverity(rise float64) models.ViolationSeverity {
	switch {
	case rise > s.calibration.Severity.FertilizerHigh:
		return models.SeverityHigh
	case rise > s.calibration.Severity.FertilizerMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func (s *satelliteAnalysisService) pesticideSeverity(drop float64) models.ViolationSeverity {
	switch {
	case drop > s.calibration.Severity.PesticideHigh:
		return models.SeverityHigh
	case drop > s.calibration.Severity.PesticideMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// clearingSeverity is MEDIUM for anything that trips the rule and HIGH once
// the drop persists past the calibrated duration.
func (s *satelliteAnalysisService) clearingSeverity(durationDays int) models.ViolationSeverity {
	if durationDays >= s.calibration.Severity.ClearingHighDays {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// flagConfidence averages the per-sample confidences of the points backing a
// flag, defaulting to 0.8 when the provider reports none.
func flagConfidence(points ...models.NDVIDataPoint) float64 {
	sum, n := 0.0, 0
	for _, p := range points {
		if p.Confidence > 0 {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0.8
	}
	return sum / float64(n)
}

func filterCloudy(series []models.NDVIDataPoint, maxCloud float64) []models.NDVIDataPoint {
	valid := make([]models.NDVIDataPoint, 0, len(series))
	for _, p := range series {
		if p.CloudCoverage <= maxCloud {
			valid = append(valid, p)
		}
	}
	return valid
}

func avgCloudCoverage(series []models.NDVIDataPoint) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range series {
		sum += p.CloudCoverage
	}
	return sum / float64(len(series))
}

func expectedPoints(from, to time.Time, intervalDays int) int {
	if intervalDays <= 0 {
		return 0
	}
	days := int(to.Sub(from).Hours() / 24)
	n := days / intervalDays
	if n < 1 {
		n = 1
	}
	return n
}

// overallConfidence scores the report:
//
//	dataCoverage*0.6 - violations*0.02 - (avgCloud/100)*0.15 + history bonus
//
// with a 0.25 bonus for two or more years of monthly samples, clamped to
// [0.5, 1.0].
func overallConfidence(validPoints, expected, violationCount int, avgCloud float64) float64 {
	coverage := 0.0
	if expected > 0 {
		coverage = float64(validPoints) / float64(expected)
		if coverage > 1 {
			coverage = 1
		}
	}

	conf := coverage*0.6 - float64(violationCount)*0.02 - (avgCloud/100)*0.15
	if validPoints >= minPointsForDecision {
		conf += 0.25
	}

	if conf < 0.5 {
		return 0.5
	}
	if conf > 1.0 {
		return 1.0
	}
	return conf
}

// decideStatus classifies the run. First matching rule wins: thin history is
// never auto-eligible, any HIGH violation is disqualifying, repeated MEDIUM
// hits or any violation at all routes to a human reviewer.
func decideStatus(report *models.SatelliteComplianceReport) models.ComplianceStatus {
	if report.ValidPoints < minPointsForDecision {
		return models.ComplianceNeedsReview
	}

	medium := 0
	for _, v := range report.Violations {
		if v.Severity == models.SeverityMedium {
			medium++
		}
	}

	switch {
	case report.HighSeverityCount() > 0:
		return models.ComplianceIneligible
	case medium >= 3:
		return models.ComplianceNeedsReview
	case len(report.Violations) > 0:
		return models.ComplianceNeedsReview
	default:
		return models.ComplianceEligible
	}
}
