package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNameStatus  = "extraction_status"
	ToolNameFailed  = "extraction_failed"
	ToolNameSummary = "extraction_summary"
)

// MaxSummaryBytes caps how much of a run summary file one tool call returns.
const MaxSummaryBytes = 1 << 20

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates a required path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates the path is not absolute.
	ErrPathNotAbsolute = errors.New("path must be absolute")
	// ErrSummaryTooLarge indicates the summary file exceeds the size limit.
	ErrSummaryTooLarge = errors.New("summary file exceeds maximum size")
)

// Input types (auto-generate JSON schemas via struct tags).

// StatusInput is the input schema for the extraction_status tool.
type StatusInput struct {
	CheckpointPath string `json:"checkpoint_path" jsonschema:"absolute path to the run checkpoint file"`
}

// FailedInput is the input schema for the extraction_failed tool.
type FailedInput struct {
	CheckpointPath string `json:"checkpoint_path" jsonschema:"absolute path to the run checkpoint file"`
}

// SummaryInput is the input schema for the extraction_summary tool.
type SummaryInput struct {
	SummaryPath string `json:"summary_path" jsonschema:"absolute path to the run summary JSON file"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

// validatePath checks common path input constraints.
func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %s", ErrPathNotAbsolute, path)
	}

	return nil
}

// readCapped reads a file, rejecting anything over MaxSummaryBytes.
func readCapped(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.Size() > MaxSummaryBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrSummaryTooLarge, info.Size(), MaxSummaryBytes)
	}

	return os.ReadFile(path)
}
