// Package config loads and validates the engine configuration from file,
// environment and defaults.
package config

import (
	"errors"
	"time"
)

// Defaults applied before any config source is read.
const (
	DefaultWorkers             = 10
	DefaultSinkKind            = "array"
	DefaultOutputPath          = "results.json"
	DefaultCheckpointPath      = "checkpoint.json"
	DefaultCheckpointBatchSize = 100
	DefaultCheckpointResume    = true
	DefaultRetryMaxAttempts    = 3
	DefaultRetryBaseDelay      = time.Second
	DefaultRetryMaxDelay       = 60 * time.Second
	DefaultRepositoryPerMin    = 100
	DefaultExtractionPerMin    = 50
	DefaultThrottleBackoff     = 30 * time.Second
	DefaultAPIKeyEnv           = "GEMINI_API_KEY"
	DefaultPricingInput        = 3.0
	DefaultPricingOutput       = 15.0
)

// Sink kinds accepted by run.sink.
const (
	SinkArray  = "array"
	SinkLog    = "log"
	SinkLZ4Log = "lz4-log"
)

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Run           RunConfig           `mapstructure:"run"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Rate          RateConfig          `mapstructure:"rate"`
	Drive         DriveConfig         `mapstructure:"drive"`
	Extract       ExtractConfig       `mapstructure:"extract"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// RunConfig holds execution knobs.
type RunConfig struct {
	Workers    int    `mapstructure:"workers"`
	Sequential bool   `mapstructure:"sequential"`
	Output     string `mapstructure:"output"`
	Sink       string `mapstructure:"sink"`
}

// CheckpointConfig holds resumable checkpoint settings.
type CheckpointConfig struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
	Resume    bool   `mapstructure:"resume"`
	Clear     bool   `mapstructure:"clear"`
}

// RetryConfig holds the exponential-backoff retry policy.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// RateConfig holds per-provider admission rates.
type RateConfig struct {
	RepositoryPerMin int           `mapstructure:"repository_per_min"`
	ExtractionPerMin int           `mapstructure:"extraction_per_min"`
	ThrottleBackoff  time.Duration `mapstructure:"throttle_backoff"`
}

// DriveConfig holds repository client settings. Access tokens come only from
// the environment, never config files.
type DriveConfig struct {
	FolderID string `mapstructure:"folder_id"`
	BaseURL  string `mapstructure:"base_url"`
	TokenEnv string `mapstructure:"token_env"`
}

// ExtractConfig holds extraction client settings. The API key itself comes
// only from the named environment variable.
type ExtractConfig struct {
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// PricingConfig holds the cost table, or the path to an external one.
type PricingConfig struct {
	InputPerMillion  float64 `mapstructure:"input_per_million"`
	OutputPerMillion float64 `mapstructure:"output_per_million"`
	File             string  `mapstructure:"file"`
}

// ObservabilityConfig holds tracing, logging and metrics endpoints.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	LogJSON      bool   `mapstructure:"log_json"`
	LogLevel     string `mapstructure:"log_level"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("run.workers must be non-negative")
	// ErrInvalidSink indicates an unknown sink kind.
	ErrInvalidSink = errors.New("run.sink must be one of array, log, lz4-log")
	// ErrInvalidBatchSize indicates the checkpoint batch size is negative.
	ErrInvalidBatchSize = errors.New("checkpoint.batch_size must be non-negative")
	// ErrInvalidMaxAttempts indicates the retry attempt count is negative.
	ErrInvalidMaxAttempts = errors.New("retry.max_attempts must be non-negative")
	// ErrInvalidDelay indicates a retry delay is negative.
	ErrInvalidDelay = errors.New("retry delays must be non-negative")
	// ErrInvalidRate indicates a per-minute admission rate is negative.
	ErrInvalidRate = errors.New("rate limits must be non-negative")
	// ErrInvalidPricing indicates a negative price.
	ErrInvalidPricing = errors.New("pricing values must be non-negative")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	runErr := c.validateRun()
	if runErr != nil {
		return runErr
	}

	retryErr := c.validateRetry()
	if retryErr != nil {
		return retryErr
	}

	if c.Rate.RepositoryPerMin < 0 || c.Rate.ExtractionPerMin < 0 {
		return ErrInvalidRate
	}

	if c.Pricing.InputPerMillion < 0 || c.Pricing.OutputPerMillion < 0 {
		return ErrInvalidPricing
	}

	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 0 {
		return ErrInvalidWorkers
	}

	switch c.Run.Sink {
	case SinkArray, SinkLog, SinkLZ4Log:
	default:
		return ErrInvalidSink
	}

	if c.Checkpoint.BatchSize < 0 {
		return ErrInvalidBatchSize
	}

	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 0 {
		return ErrInvalidMaxAttempts
	}

	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return ErrInvalidDelay
	}

	return nil
}
