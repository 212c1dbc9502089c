package services

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// CropBaseline is the seasonal expectation for one crop: when its index peaks
// and bottoms out, the healthy index range, and the rise (over 30 days) above
// which a spike looks like synthetic fertilizer rather than growth.
type CropBaseline struct {
	PeakMonths     []time.Month `yaml:"peak_months"`
	LowMonths      []time.Month `yaml:"low_months"`
	HealthyMin     float64      `yaml:"healthy_min"`
	HealthyMax     float64      `yaml:"healthy_max"`
	SyntheticDelta float64      `yaml:"synthetic_delta"`
}

// IsPeakMonth reports whether the month is part of the crop's expected
// green-up, when a sharp index rise is seasonal rather than suspicious.
func (b CropBaseline) IsPeakMonth(m time.Month) bool {
	for _, pm := range b.PeakMonths {
		if pm == m {
			return true
		}
	}
	return false
}

// SeverityThresholds buckets violations into LOW/MEDIUM/HIGH. These are
// calibration constants, not business law; ship different numbers by pointing
// calibration_path at a replacement table.
type SeverityThresholds struct {
	// Synthetic fertilizer: index rise magnitudes.
	FertilizerMedium float64 `yaml:"fertilizer_medium"`
	FertilizerHigh   float64 `yaml:"fertilizer_high"`
	// Pesticide: index drop magnitudes.
	PesticideMedium float64 `yaml:"pesticide_medium"`
	PesticideHigh   float64 `yaml:"pesticide_high"`
	// Land clearing: sustained-drop duration in days. Anything that trips
	// the rule at all is at least MEDIUM.
	ClearingHighDays int `yaml:"clearing_high_days"`
}

// Calibration is the full replaceable tuning table for the satellite
// analyzer.
type Calibration struct {
	Crops    map[string]CropBaseline `yaml:"crops"`
	Default  CropBaseline            `yaml:"default"`
	Severity SeverityThresholds      `yaml:"severity"`
}

// DefaultCalibration returns the compiled-in tuning table. Northern-hemisphere
// seasonal baselines for the crops the platform certifies most.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Crops: map[string]CropBaseline{
			"coffee": {
				PeakMonths:     []time.Month{time.April, time.May, time.June},
				LowMonths:      []time.Month{time.December, time.January},
				HealthyMin:     0.55,
				HealthyMax:     0.85,
				SyntheticDelta: 0.20,
			},
			"cacao": {
				PeakMonths:     []time.Month{time.May, time.June, time.July},
				LowMonths:      []time.Month{time.January, time.February},
				HealthyMin:     0.60,
				HealthyMax:     0.90,
				SyntheticDelta: 0.22,
			},
			"banana": {
				PeakMonths:     []time.Month{time.March, time.April, time.May},
				LowMonths:      []time.Month{time.November, time.December},
				HealthyMin:     0.50,
				HealthyMax:     0.85,
				SyntheticDelta: 0.25,
			},
		},
		Default: CropBaseline{
			PeakMonths:     []time.Month{time.April, time.May, time.June},
			LowMonths:      []time.Month{time.December, time.January},
			HealthyMin:     0.45,
			HealthyMax:     0.85,
			SyntheticDelta: 0.20,
		},
		Severity: SeverityThresholds{
			FertilizerMedium: 0.30,
			FertilizerHigh:   0.40,
			PesticideMedium:  0.22,
			PesticideHigh:    0.30,
			ClearingHighDays: 90,
		},
	}
}

// LoadCalibration reads a calibration table from the given YAML file. An
// empty path returns the compiled-in defaults. Fields omitted from the file
// keep their default values.
func LoadCalibration(path string) (*Calibration, error) {
	cal := DefaultCalibration()
	if path == "" {
		return cal, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}

	if err := yaml.Unmarshal(data, cal); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	return cal, nil
}

// CalibratedCrops lists the crops with specific tuning, sorted.
func (c *Calibration) CalibratedCrops() []string {
	crops := make([]string, 0, len(c.Crops))
	for name := range c.Crops {
		crops = append(crops, name)
	}
	sort.Strings(crops)
	return crops
}

// BaselineFor returns the crop's seasonal baseline, falling back to the
// default baseline for crops without specific tuning.
func (c *Calibration) BaselineFor(crop string) CropBaseline {
	if b, ok := c.Crops[crop]; ok {
		return b
	}
	return c.Default
}
