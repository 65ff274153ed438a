package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
	"github.com/ramdhavepreetam/OmmSai/internal/config"
	"github.com/ramdhavepreetam/OmmSai/internal/sink"
)

func TestBuildSink_SelectsImplementation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, closer, err := buildSink(config.SinkArray, filepath.Join(dir, "r.json"))
	require.NoError(t, err)
	assert.IsType(t, &sink.ArraySink{}, s)
	assert.Nil(t, closer)

	s, closer, err = buildSink(config.SinkLog, filepath.Join(dir, "r.jsonl"))
	require.NoError(t, err)
	assert.IsType(t, &sink.LogSink{}, s)
	assert.NotNil(t, closer)

	s, closer, err = buildSink(config.SinkLZ4Log, filepath.Join(dir, "r.jsonl.lz4"))
	require.NoError(t, err)
	assert.IsType(t, &sink.CompressedLogSink{}, s)
	assert.NotNil(t, closer)

	_, _, err = buildSink("parquet", "out")
	assert.ErrorIs(t, err, ErrUnknownSink)
}

func TestReadTaskList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.txt")
	body := `
# prescriptions pending re-extraction
id-1 scan 001.pdf
id-2
id-3 followup.pdf
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	tasks, err := readTaskList(path)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, batch.Task{ID: "id-1", Name: "scan 001.pdf"}, tasks[0])
	assert.Equal(t, batch.Task{ID: "id-2", Name: "id-2"}, tasks[1])
	assert.Equal(t, "followup.pdf", tasks[2].Name)
}

func TestResolvePrices_InlineValues(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pricing.InputPerMillion = 1.5
	cfg.Pricing.OutputPerMillion = 7.5

	prices, err := resolvePrices(cfg)
	require.NoError(t, err)
	assert.InEpsilon(t, 1.5, prices.InputPerMillion, 1e-9)
	assert.InEpsilon(t, 7.5, prices.OutputPerMillion, 1e-9)
}

func TestResolvePrices_FromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_per_million: 0.5\noutput_per_million: 2.0\n"), 0o600))

	cfg := &config.Config{}
	cfg.Pricing.File = path

	prices, err := resolvePrices(cfg)
	require.NoError(t, err)
	assert.InEpsilon(t, 0.5, prices.InputPerMillion, 1e-9)
	assert.InEpsilon(t, 2.0, prices.OutputPerMillion, 1e-9)
}

func TestWriteRunSummary_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run_summary.json")

	summary := batch.Summary{Skipped: 2, Cancelled: true}
	summary.Snapshot.Total = 10
	summary.Snapshot.Processed = 8

	require.NoError(t, writeRunSummary(path, summary))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded batch.Summary

	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, summary.Snapshot.Total, loaded.Snapshot.Total)
	assert.Equal(t, summary.Skipped, loaded.Skipped)
	assert.True(t, loaded.Cancelled)
}
