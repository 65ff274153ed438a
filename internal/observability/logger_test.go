package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhavepreetam/OmmSai/internal/observability"
)

func TestTracingHandler_ServiceAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "ommsai", "test", observability.ModeCLI))

	logger.InfoContext(context.Background(), "hello", "task_id", "t1")

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "ommsai", record["service"])
	assert.Equal(t, "cli", record["mode"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "t1", record["task_id"])

	// No active span: trace context attrs must be absent.
	assert.NotContains(t, record, "trace_id")
}

func TestTracingHandler_GroupKeepsServiceAttrsTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewTracingHandler(inner, "ommsai", "", observability.ModeMCP))

	logger.WithGroup("run").Info("grouped", "workers", 4)

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "ommsai", record["service"])

	group, ok := record["run"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 4, group["workers"])
}
