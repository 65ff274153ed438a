package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".ommsai"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for engine settings.
const envPrefix = "OMMSAI"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("run.workers", DefaultWorkers)
	viperCfg.SetDefault("run.sequential", false)
	viperCfg.SetDefault("run.output", DefaultOutputPath)
	viperCfg.SetDefault("run.sink", DefaultSinkKind)

	viperCfg.SetDefault("checkpoint.path", DefaultCheckpointPath)
	viperCfg.SetDefault("checkpoint.batch_size", DefaultCheckpointBatchSize)
	viperCfg.SetDefault("checkpoint.resume", DefaultCheckpointResume)
	viperCfg.SetDefault("checkpoint.clear", false)

	viperCfg.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	viperCfg.SetDefault("retry.base_delay", DefaultRetryBaseDelay)
	viperCfg.SetDefault("retry.max_delay", DefaultRetryMaxDelay)

	viperCfg.SetDefault("rate.repository_per_min", DefaultRepositoryPerMin)
	viperCfg.SetDefault("rate.extraction_per_min", DefaultExtractionPerMin)
	viperCfg.SetDefault("rate.throttle_backoff", DefaultThrottleBackoff)

	viperCfg.SetDefault("drive.token_env", "DRIVE_ACCESS_TOKEN")

	viperCfg.SetDefault("extract.api_key_env", DefaultAPIKeyEnv)

	viperCfg.SetDefault("pricing.input_per_million", DefaultPricingInput)
	viperCfg.SetDefault("pricing.output_per_million", DefaultPricingOutput)

	viperCfg.SetDefault("observability.log_json", false)
	viperCfg.SetDefault("observability.log_level", "info")
}
