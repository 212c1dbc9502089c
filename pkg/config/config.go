package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for harvestproof-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration (satellite quota counter)
	Redis RedisConfig `yaml:"redis"`

	// Satellite analysis configuration
	Satellite SatelliteConfig `yaml:"satellite"`

	// Evidence minimums for certificate eligibility
	Evidence EvidenceConfig `yaml:"evidence"`

	// External collaborator services
	Services ServicesConfig `yaml:"services"`

	// Path to the crop baseline / severity calibration table (optional; the
	// compiled-in defaults are used when empty or missing)
	CalibrationPath string `yaml:"calibration_path" env:"CALIBRATION_PATH" env-default:""`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"harvestproof"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"harvestproof_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis configuration for the shared quota counter.
// Host left empty disables Redis; the quota counter falls back to an
// in-process counter (single-instance deployments only).
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SatelliteConfig holds analyzer defaults and the imagery-provider budget.
type SatelliteConfig struct {
	// AnalysisWindowYears is the history window evaluated per run (USDA
	// convention: 3 years).
	AnalysisWindowYears int `yaml:"analysis_window_years" env:"SAT_ANALYSIS_WINDOW_YEARS" env-default:"3"`
	// SampleIntervalDays is the expected spacing of index samples.
	SampleIntervalDays int `yaml:"sample_interval_days" env:"SAT_SAMPLE_INTERVAL_DAYS" env-default:"30"`
	// MaxCloudCoverage is the ceiling (percent) above which a sample is
	// discarded.
	MaxCloudCoverage float64 `yaml:"max_cloud_coverage" env:"SAT_MAX_CLOUD_COVERAGE" env-default:"50"`
	// MonthlyBudgetUnits is the imagery provider's processing-unit budget per
	// calendar month.
	MonthlyBudgetUnits float64 `yaml:"monthly_budget_units" env:"SAT_MONTHLY_BUDGET_UNITS" env-default:"1000"`
	// UnitsPerRequest is the cost of one field analysis.
	UnitsPerRequest float64 `yaml:"units_per_request" env:"SAT_UNITS_PER_REQUEST" env-default:"0.5"`
	// ReportRetentionDays is how long a compliance report may be relied on.
	ReportRetentionDays int `yaml:"report_retention_days" env:"SAT_REPORT_RETENTION_DAYS" env-default:"90"`
}

// EvidenceConfig holds the evidence minimums checked during eligibility
// evaluation.
type EvidenceConfig struct {
	WindowDays         int `yaml:"window_days" env:"EVIDENCE_WINDOW_DAYS" env-default:"90"`
	MinInspections     int `yaml:"min_inspections" env:"EVIDENCE_MIN_INSPECTIONS" env-default:"4"`
	MinPhotos          int `yaml:"min_photos" env:"EVIDENCE_MIN_PHOTOS" env-default:"12"`
	MinOrganicInputs   int `yaml:"min_organic_inputs" env:"EVIDENCE_MIN_ORGANIC_INPUTS" env-default:"3"`
}

// ServiceEndpoint is one external collaborator's base URL and call timeout.
type ServiceEndpoint struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ServicesConfig holds the external collaborator endpoints. Every external
// call carries a timeout so no operation in the core blocks indefinitely.
type ServicesConfig struct {
	Evidence ServiceEndpoint `yaml:"evidence"`
	Imagery  ServiceEndpoint `yaml:"imagery"`
	Anchor   ServiceEndpoint `yaml:"anchor"`
	Pin      ServiceEndpoint `yaml:"pin"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.applyTimeoutDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyTimeoutDefaults fills zero service timeouts. cleanenv cannot default
// nested duration fields, so the fallback lives here.
func (c *Config) applyTimeoutDefaults() {
	for _, ep := range []*ServiceEndpoint{
		&c.Services.Evidence, &c.Services.Imagery, &c.Services.Anchor, &c.Services.Pin,
	} {
		if ep.Timeout == 0 {
			ep.Timeout = 10 * time.Second
		}
	}
}

func (c *Config) validate() error {
	if c.Satellite.SampleIntervalDays <= 0 {
		return fmt.Errorf("satellite.sample_interval_days must be positive")
	}
	if c.Satellite.AnalysisWindowYears <= 0 {
		return fmt.Errorf("satellite.analysis_window_years must be positive")
	}
	if c.Satellite.UnitsPerRequest <= 0 || c.Satellite.MonthlyBudgetUnits <= 0 {
		return fmt.Errorf("satellite quota settings must be positive")
	}
	if c.Satellite.MaxCloudCoverage < 0 || c.Satellite.MaxCloudCoverage > 100 {
		return fmt.Errorf("satellite.max_cloud_coverage must be within 0-100")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
