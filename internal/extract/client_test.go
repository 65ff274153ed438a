package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

const validResponse = `{
	"document_id": "rx-001.pdf",
	"read_status": "success",
	"document_quality": "good",
	"comment": "All fields clearly visible.",
	"fields": {
		"patient_name": {"value": "John Doe", "confidence": "high"},
		"diagnosis": {"value": null, "confidence": "low", "note": "smudged"}
	}
}`

func TestParse_ValidResponse(t *testing.T) {
	t.Parallel()

	usage := batch.Usage{InputUnits: 2000, OutputUnits: 150}

	result := Parse(validResponse, "rx-001.pdf", usage, MustSchema())

	assert.Equal(t, batch.StatusSuccess, result.Status)
	assert.Equal(t, "All fields clearly visible.", result.Note)
	assert.Equal(t, usage, result.Usage)

	var payload map[string]any

	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Equal(t, "rx-001.pdf", payload["document_id"])
}

func TestParse_StripsMarkdownFences(t *testing.T) {
	t.Parallel()

	fenced := "Here is the extraction:\n```json\n" + validResponse + "\n```\n"

	result := Parse(fenced, "rx-001.pdf", batch.Usage{}, MustSchema())

	assert.Equal(t, batch.StatusSuccess, result.Status)
}

func TestParse_BackfillsDocumentID(t *testing.T) {
	t.Parallel()

	missing := `{"read_status": "partial_success", "comment": "half legible", "fields": {}}`

	result := Parse(missing, "rx-002.pdf", batch.Usage{}, MustSchema())

	assert.Equal(t, batch.StatusPartial, result.Status)

	var payload map[string]any

	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Equal(t, "rx-002.pdf", payload["document_id"])
}

func TestParse_MalformedJSONBecomesFailedResult(t *testing.T) {
	t.Parallel()

	result := Parse(`{"document_id": "x", truncated`, "rx-003.pdf", batch.Usage{}, MustSchema())

	assert.Equal(t, batch.StatusFailed, result.Status)
	assert.Contains(t, result.Note, "JSON parsing error: ")

	var payload map[string]any

	require.NoError(t, json.Unmarshal(result.Payload, &payload))
	assert.Equal(t, "rx-003.pdf", payload["document_id"])
	assert.Equal(t, "failed", payload["read_status"])
}

func TestParse_SchemaViolationBecomesFailedResult(t *testing.T) {
	t.Parallel()

	badStatus := `{"document_id": "x.pdf", "read_status": "done", "fields": {}}`

	result := Parse(badStatus, "x.pdf", batch.Usage{}, MustSchema())

	assert.Equal(t, batch.StatusFailed, result.Status)
	assert.Contains(t, result.Note, "schema validation: ")
}

func TestParse_FieldMissingConfidenceFailsValidation(t *testing.T) {
	t.Parallel()

	noConfidence := `{
		"document_id": "x.pdf",
		"read_status": "success",
		"fields": {"patient_name": {"value": "Jane"}}
	}`

	result := Parse(noConfidence, "x.pdf", batch.Usage{}, MustSchema())

	assert.Equal(t, batch.StatusFailed, result.Status)
	assert.Contains(t, result.Note, "schema validation: ")
}

func TestCleanFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around fence", "Sure!\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, CleanFences(tt.in))
		})
	}
}

func TestSniffMIME(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/pdf", sniffMIME([]byte("%PDF-1.4 content")))
	assert.Equal(t, "application/pdf", sniffMIME([]byte{0x00, 0x01, 0x02, 0x03}))
	assert.Contains(t, sniffMIME([]byte("<html><body></body></html>")), "text/html")
}
