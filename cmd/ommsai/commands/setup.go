// Package commands implements CLI command handlers for ommsai.
package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/observability"
	"github.com/ramdhavepreetam/OmmSai/pkg/version"
)

// GlobalOptions holds the persistent flags shared by every subcommand.
type GlobalOptions struct {
	Verbose    bool
	Quiet      bool
	ConfigPath string
}

// Sentinel errors for command setup.
var (
	// ErrMissingToken indicates the repository access token env var is unset.
	ErrMissingToken = errors.New("repository access token not set")
	// ErrMissingAPIKey indicates the extraction API key env var is unset.
	ErrMissingAPIKey = errors.New("extraction API key not set")
	// ErrMissingFolder indicates no folder id was configured or flagged.
	ErrMissingFolder = errors.New("folder id is required")
)

// initObservability builds providers from the loaded config and global flags.
func initObservability(cfg *config.Config, opts *GlobalOptions, mode observability.AppMode) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	obsCfg.MetricsAddr = cfg.Observability.MetricsAddr
	obsCfg.LogJSON = cfg.Observability.LogJSON
	obsCfg.LogLevel = logLevel(cfg.Observability.LogLevel)

	if opts.Verbose {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.TraceVerbose = true
	}

	if opts.Quiet {
		obsCfg.LogLevel = slog.LevelWarn
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// requireEnv reads the env var named by key, mapping empty to sentinel.
func requireEnv(key string, sentinel error) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: set %s", sentinel, key)
	}

	return value, nil
}
