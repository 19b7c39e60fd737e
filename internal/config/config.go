// Package config defines the global configuration for the calculation
// platform. Configuration is loaded once at process startup and immutable
// thereafter, following 12-Factor principles.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails the process
// immediately on startup.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"indexcover/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret
// type used throughout configuration.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive
// only the subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"indexcover"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Lock          LockConfig
	Weather       WeatherConfig
	Regions       RegionConfig
	Worker        WorkerConfig
	Observability ObservabilityConfig

	// Build Metadata (injected via ldflags, not env)
	Build BuildInfo
}

// ServerConfig holds the health/admin HTTP listener settings for worker
// processes.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	RiskQueueURL  string `envconfig:"SQS_RISK_TASKS" validate:"required,url"`
	ClaimQueueURL string `envconfig:"SQS_CLAIM_TASKS" validate:"required,url"`
	DlqURL        string `envconfig:"SQS_DLQ"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// LockConfig holds the distributed lease settings. TTLs bound how long a
// crashed worker can block recomputation of its unit.
type LockConfig struct {
	RedisURL SecretString  `envconfig:"REDIS_URL" validate:"required"`
	RiskTTL  time.Duration `envconfig:"LOCK_RISK_TTL" default:"10m"`
	ClaimTTL time.Duration `envconfig:"LOCK_CLAIM_TTL" default:"10m"`
}

// WeatherConfig holds upstream weather provider settings.
type WeatherConfig struct {
	BaseURL      string        `envconfig:"WEATHER_API_URL" validate:"required,url"`
	APIKey       SecretString  `envconfig:"WEATHER_API_KEY"`
	UserAgent    string        `envconfig:"WEATHER_USER_AGENT" default:"IndexCover-Sync/1.0"`
	Timeout      time.Duration `envconfig:"WEATHER_TIMEOUT" default:"30s"`
	SyncLookback time.Duration `envconfig:"WEATHER_SYNC_LOOKBACK" default:"48h"`
	SyncInterval time.Duration `envconfig:"WEATHER_SYNC_INTERVAL" default:"1h"`
	// SeriesJSON lists the streams to sync:
	// [{"region_code":"CN-SH","weather_type":"rainfall"}]
	SeriesJSON string `envconfig:"WEATHER_SYNC_SERIES" default:"[]" validate:"json"`
}

// RegionConfig maps region codes to IANA time zones for risk calculation.
type RegionConfig struct {
	// ZonesJSON is a JSON object: {"CN-SH":"Asia/Shanghai"}
	ZonesJSON    string `envconfig:"REGION_ZONES" default:"{}" validate:"json"`
	FallbackZone string `envconfig:"REGION_FALLBACK_ZONE" default:"UTC"`
}

// WorkerConfig tunes the SQS consumer loops.
type WorkerConfig struct {
	Concurrency int   `envconfig:"WORKER_CONCURRENCY" default:"4"`
	WaitSeconds int32 `envconfig:"WORKER_WAIT_SECONDS" default:"20"`
	BatchSize   int32 `envconfig:"WORKER_BATCH_SIZE" default:"10"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"IndexCover"`
}

// ZoneMap parses the region-to-zone mapping.
func (r RegionConfig) ZoneMap() (map[string]string, error) {
	zones := make(map[string]string)
	if err := json.Unmarshal([]byte(r.ZonesJSON), &zones); err != nil {
		return nil, fmt.Errorf("config: invalid REGION_ZONES: %w", err)
	}
	return zones, nil
}

// SeriesEntry is one configured sync stream.
type SeriesEntry struct {
	RegionCode  string `json:"region_code"`
	WeatherType string `json:"weather_type"`
}

// Series parses the configured sync streams.
func (w WeatherConfig) Series() ([]SeriesEntry, error) {
	var entries []SeriesEntry
	if err := json.Unmarshal([]byte(w.SeriesJSON), &entries); err != nil {
		return nil, fmt.Errorf("config: invalid WEATHER_SYNC_SERIES: %w", err)
	}
	return entries, nil
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment values into their
	// target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
