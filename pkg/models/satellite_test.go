package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSatelliteReport_IsExpired(t *testing.T) {
	now := time.Now()
	report := &SatelliteComplianceReport{ExpiresAt: now.Add(24 * time.Hour)}

	assert.False(t, report.IsExpired(now))
	assert.True(t, report.IsExpired(now.Add(25*time.Hour)))
}

func TestSatelliteReport_HighSeverityCount(t *testing.T) {
	report := &SatelliteComplianceReport{
		Violations: []ViolationFlag{
			{Type: ViolationSyntheticFertilizer, Severity: SeverityMedium},
			{Type: ViolationLandClearing, Severity: SeverityHigh},
			{Type: ViolationPesticideUse, Severity: SeverityLow},
			{Type: ViolationLandClearing, Severity: SeverityHigh},
		},
	}

	assert.Equal(t, 2, report.HighSeverityCount())
	assert.Zero(t, (&SatelliteComplianceReport{}).HighSeverityCount())
}
