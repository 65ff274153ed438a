package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

func testResult(i int) batch.Result {
	return batch.Result{
		TaskID:      fmt.Sprintf("id-%d", i),
		Name:        fmt.Sprintf("doc-%d.pdf", i),
		Status:      batch.StatusSuccess,
		Payload:     json.RawMessage(fmt.Sprintf(`{"document_id":"doc-%d.pdf","read_status":"success"}`, i)),
		CompletedAt: time.Unix(1700000000+int64(i), 0).UTC(),
	}
}

func TestArraySink_AppendGrowsArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	s := NewArray(path)

	require.NoError(t, s.Initialize())

	for i := range 3 {
		require.NoError(t, s.Append(testResult(i)))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var items []map[string]any

	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 3)
	assert.Equal(t, "doc-0.pdf", items[0]["document_id"])
	assert.Equal(t, "doc-2.pdf", items[2]["document_id"])
}

func TestArraySink_InitializeTruncates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	s := NewArray(path)

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(testResult(0)))
	require.NoError(t, s.Initialize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var items []json.RawMessage

	require.NoError(t, json.Unmarshal(data, &items))
	assert.Empty(t, items)
}

func TestArraySink_SynthesizesFailedDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.json")
	s := NewArray(path)

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(batch.Result{
		TaskID: "id-9",
		Name:   "doc-9.pdf",
		Status: batch.StatusFailed,
		Note:   "fetch failed: 503",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var items []map[string]any

	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "failed", items[0]["read_status"])
	assert.Equal(t, "fetch failed: 503", items[0]["comment"])
}

func TestLogSink_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewLog(path)

	require.NoError(t, s.Initialize())

	for i := range 3 {
		require.NoError(t, s.Append(testResult(i)))
	}

	require.NoError(t, s.Close())

	envelopes, err := ReadLog(path)
	require.NoError(t, err)
	require.Len(t, envelopes, 3)
	assert.Equal(t, "id-1", envelopes[1].TaskID)
	assert.Equal(t, batch.StatusSuccess, envelopes[1].Status)
	assert.JSONEq(t, string(testResult(1).Payload), string(envelopes[1].Document))
}

func TestCompressedLogSink_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.jsonl.lz4")
	s := NewCompressedLog(path)

	require.NoError(t, s.Initialize())

	for i := range 5 {
		require.NoError(t, s.Append(testResult(i)))
	}

	require.NoError(t, s.Close())

	envelopes, err := ReadCompressedLog(path)
	require.NoError(t, err)
	require.Len(t, envelopes, 5)
	assert.Equal(t, "id-4", envelopes[4].TaskID)
}

func TestLogSink_AppendAfterCrashLeavesPriorLinesReadable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := NewLog(path)

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Append(testResult(0)))

	// A run that dies before Close loses nothing: every line was synced.
	envelopes, err := ReadLog(path)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "id-0", envelopes[0].TaskID)

	require.NoError(t, s.Close())
}
