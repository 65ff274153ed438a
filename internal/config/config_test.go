package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err, "explicit missing file is an error")

	// No explicit path: defaults apply.
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, cfg.Run.Workers)
	assert.Equal(t, SinkArray, cfg.Run.Sink)
	assert.Equal(t, DefaultCheckpointBatchSize, cfg.Checkpoint.BatchSize)
	assert.True(t, cfg.Checkpoint.Resume)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, DefaultRepositoryPerMin, cfg.Rate.RepositoryPerMin)
	assert.Equal(t, 30*time.Second, cfg.Rate.ThrottleBackoff)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Extract.APIKeyEnv)
	assert.InEpsilon(t, 3.0, cfg.Pricing.InputPerMillion, 1e-9)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ommsai.yaml")
	body := `
run:
  workers: 4
  sink: lz4-log
rate:
  extraction_per_min: 20
  throttle_backoff: 45s
drive:
  folder_id: folder-abc
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.Equal(t, SinkLZ4Log, cfg.Run.Sink)
	assert.Equal(t, 20, cfg.Rate.ExtractionPerMin)
	assert.Equal(t, 45*time.Second, cfg.Rate.ThrottleBackoff)
	assert.Equal(t, "folder-abc", cfg.Drive.FolderID)

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultRepositoryPerMin, cfg.Rate.RepositoryPerMin)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ommsai.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  workers: 4\n"), 0o600))

	t.Setenv("OMMSAI_RUN_WORKERS", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Run.Workers)
}

func TestLoadConfig_RejectsInvalidSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ommsai.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  sink: parquet\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSink)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{Run: RunConfig{Sink: SinkArray}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid zero config", func(*Config) {}, nil},
		{"negative workers", func(c *Config) { c.Run.Workers = -1 }, ErrInvalidWorkers},
		{"unknown sink", func(c *Config) { c.Run.Sink = "csv" }, ErrInvalidSink},
		{"negative batch size", func(c *Config) { c.Checkpoint.BatchSize = -1 }, ErrInvalidBatchSize},
		{"negative attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }, ErrInvalidMaxAttempts},
		{"negative base delay", func(c *Config) { c.Retry.BaseDelay = -time.Second }, ErrInvalidDelay},
		{"negative rate", func(c *Config) { c.Rate.RepositoryPerMin = -1 }, ErrInvalidRate},
		{"negative price", func(c *Config) { c.Pricing.InputPerMillion = -0.1 }, ErrInvalidPricing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
