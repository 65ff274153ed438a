// Package extract calls the Gemini API to turn raw document bytes into the
// structured JSON document the engine persists. Responses are fence-cleaned,
// schema-validated, and converted into batch results; malformed model output
// is a terminal per-task failure, not a retryable error.
package extract

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// DefaultModel is the extraction model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// defaultMIMEType is assumed when content sniffing is inconclusive; the
// repository client exports workspace documents as PDF, so this is the common
// case.
const defaultMIMEType = "application/pdf"

//go:embed schema.json
var schemaJSON []byte

// document is the parsed shape of one model response.
type document struct {
	DocumentID string `json:"document_id"`
	ReadStatus string `json:"read_status"`
	Comment    string `json:"comment"`
}

// Config wires a Client.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model overrides DefaultModel when non-empty.
	Model string
}

// Client is a schema-validating extraction client. It is safe for concurrent
// use; one instance serves the whole worker pool.
type Client struct {
	client *genai.Client
	model  string
	schema *gojsonschema.Schema
}

// New builds a Client. Errors here are fatal-setup: a client that cannot be
// constructed cannot serve any task.
func New(ctx context.Context, cfg Config) (*Client, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Client{client: gc, model: model, schema: schema}, nil
}

// Extract sends data plus the extraction prompt to the model and converts the
// response into a Result. API errors are returned for the retry layer to
// classify; unparsable or schema-invalid responses become failed results.
func (c *Client) Extract(ctx context.Context, data []byte, displayName string) (batch.Result, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(data, sniffMIME(data)),
		genai.NewPartFromText(extractionPrompt),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return batch.Result{}, fmt.Errorf("generate content: %w", err)
	}

	usage := usageOf(resp)

	return Parse(resp.Text(), displayName, usage, c.schema), nil
}

// Parse turns one raw model response into a Result: fence-clean, JSON-parse,
// backfill document_id, schema-validate. Every failure mode yields a failed
// Result rather than an error.
func Parse(raw, displayName string, usage batch.Usage, schema *gojsonschema.Schema) batch.Result {
	cleaned := CleanFences(raw)

	var payload map[string]any

	err := json.Unmarshal([]byte(cleaned), &payload)
	if err != nil {
		return failedExtraction(displayName, "JSON parsing error: "+err.Error(), usage)
	}

	if id, _ := payload["document_id"].(string); id == "" {
		payload["document_id"] = displayName
	}

	validation, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return failedExtraction(displayName, "schema validation: "+err.Error(), usage)
	}

	if !validation.Valid() {
		return failedExtraction(displayName, "schema validation: "+validationErrors(validation), usage)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return failedExtraction(displayName, "JSON parsing error: "+err.Error(), usage)
	}

	var doc document

	// Cannot fail: payload round-tripped through Unmarshal already.
	_ = json.Unmarshal(encoded, &doc)

	return batch.Result{
		Status:  batch.Status(doc.ReadStatus),
		Note:    doc.Comment,
		Usage:   usage,
		Payload: encoded,
	}
}

// CleanFences strips a markdown code fence wrapping, when present. Models
// occasionally wrap JSON output despite instructions not to.
func CleanFences(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}

		return strings.TrimSpace(text)
	}

	if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}

		return strings.TrimSpace(text)
	}

	return strings.TrimSpace(text)
}

// MustSchema compiles the embedded document schema. For use outside the
// client (report rendering, tests).
func MustSchema() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("embedded schema does not compile: %v", err))
	}

	return schema
}

func failedExtraction(displayName, note string, usage batch.Usage) batch.Result {
	return batch.Result{
		Status:  batch.StatusFailed,
		Note:    note,
		Usage:   usage,
		Payload: batch.FailedDocument(displayName, note),
	}
}

func validationErrors(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return strings.Join(msgs, "; ")
}

func sniffMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if mime == "application/octet-stream" {
		return defaultMIMEType
	}

	return mime
}

func usageOf(resp *genai.GenerateContentResponse) batch.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return batch.Usage{}
	}

	return batch.Usage{
		InputUnits:  int64(resp.UsageMetadata.PromptTokenCount),
		OutputUnits: int64(resp.UsageMetadata.CandidatesTokenCount),
	}
}
