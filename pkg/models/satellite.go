package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// NDVI Time Series
// ============================================================================

// NDVIDataPoint is one dated vegetation-index sample for a field, as produced
// by the imagery provider. Immutable once ingested.
type NDVIDataPoint struct {
	Date          time.Time `json:"date"`
	IndexAvg      float64   `json:"index_avg"`
	IndexStdDev   float64   `json:"index_std_dev"`
	IndexMin      float64   `json:"index_min"`
	IndexMax      float64   `json:"index_max"`
	CloudCoverage float64   `json:"cloud_coverage"` // percent, 0-100
	Confidence    float64   `json:"confidence"`
}

// ============================================================================
// Violations
// ============================================================================

// ViolationType names one of the organic-farming rules the analyzer checks.
type ViolationType string

const (
	ViolationSyntheticFertilizer ViolationType = "SYNTHETIC_FERTILIZER"
	ViolationPesticideUse        ViolationType = "PESTICIDE_APPLICATION"
	ViolationLandClearing        ViolationType = "LAND_CLEARING"
)

// ViolationSeverity buckets a violation by magnitude/duration.
type ViolationSeverity string

const (
	SeverityLow    ViolationSeverity = "LOW"
	SeverityMedium ViolationSeverity = "MEDIUM"
	SeverityHigh   ViolationSeverity = "HIGH"
)

// ViolationFlag is one detected rule breach in a field's index history.
type ViolationFlag struct {
	Date                time.Time         `json:"date"`
	Type                ViolationType     `json:"type"`
	Severity            ViolationSeverity `json:"severity"`
	Confidence          float64           `json:"confidence"`
	Magnitude           float64           `json:"magnitude"` // index delta that triggered the rule
	DurationDays        int               `json:"duration_days,omitempty"`
	AffectedAreaPercent float64           `json:"affected_area_percent,omitempty"` // only set for land clearing, other detections cannot localize within the field
}

// ============================================================================
// Compliance Report
// ============================================================================

// ComplianceStatus classifies the outcome of a satellite analysis run.
type ComplianceStatus string

const (
	ComplianceEligible    ComplianceStatus = "ELIGIBLE"
	ComplianceIneligible  ComplianceStatus = "INELIGIBLE"
	ComplianceNeedsReview ComplianceStatus = "NEEDS_REVIEW"
	ComplianceFailed      ComplianceStatus = "FAILED"
)

// SatelliteComplianceReport is the analyzer output for one field and analysis
// window. Reports are retained for a fixed window; evaluators must treat an
// expired report as absent.
type SatelliteComplianceReport struct {
	ID                uuid.UUID        `json:"id"`
	FieldID           uuid.UUID        `json:"field_id"`
	Crop              string           `json:"crop"`
	WindowStart       time.Time        `json:"window_start"`
	WindowEnd         time.Time        `json:"window_end"`
	Series            []NDVIDataPoint  `json:"series"`
	Violations        []ViolationFlag  `json:"violations"`
	ValidPoints       int              `json:"valid_points"`
	ExpectedPoints    int              `json:"expected_points"`
	AvgCloudCoverage  float64          `json:"avg_cloud_coverage"`
	OverallConfidence float64          `json:"overall_confidence"` // clamped to [0.5, 1.0]
	ComplianceStatus  ComplianceStatus `json:"compliance_status"`
	CreatedAt         time.Time        `json:"created_at"`
	ExpiresAt         time.Time        `json:"expires_at"`
}

// IsExpired reports whether the report is past its retention window.
func (r *SatelliteComplianceReport) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// HighSeverityCount returns the number of HIGH severity violations.
func (r *SatelliteComplianceReport) HighSeverityCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityHigh {
			n++
		}
	}
	return n
}
