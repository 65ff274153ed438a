package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ramdhavepreetam/OmmSai/internal/checkpoint"
)

// statusReport is the structured output of the extraction_status tool.
type statusReport struct {
	Stats     checkpoint.Stats `json:"stats"`
	Remaining int              `json:"remaining"`
	Recorded  int              `json:"recorded"`
	LastFlush string           `json:"last_flush,omitempty"`
}

// handleStatus processes extraction_status tool calls.
func handleStatus(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input StatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validatePath(input.CheckpointPath)
	if err != nil {
		return errorResult(err)
	}

	state, err := checkpoint.ReadFile(input.CheckpointPath)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return errorResult(fmt.Errorf("no run recorded at %s", input.CheckpointPath))
		}

		return errorResult(err)
	}

	report := statusReport{
		Stats:    state.Stats,
		Recorded: len(state.ProcessedIDs),
	}

	if remaining := state.Stats.Total - state.Stats.Processed; remaining > 0 {
		report.Remaining = remaining
	}

	if !state.LastFlush.IsZero() {
		report.LastFlush = state.LastFlush.Format("2006-01-02T15:04:05Z07:00")
	}

	return jsonResult(report)
}

// handleFailed processes extraction_failed tool calls: the failed task map
// with each task's last recorded error message.
func handleFailed(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input FailedInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validatePath(input.CheckpointPath)
	if err != nil {
		return errorResult(err)
	}

	state, err := checkpoint.ReadFile(input.CheckpointPath)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return errorResult(fmt.Errorf("no run recorded at %s", input.CheckpointPath))
		}

		return errorResult(err)
	}

	failed := state.Failed
	if failed == nil {
		failed = map[string]string{}
	}

	return jsonResult(map[string]any{
		"count":  len(failed),
		"failed": failed,
	})
}

// handleSummary processes extraction_summary tool calls: the run summary
// file the CLI writes when a run finishes.
func handleSummary(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input SummaryInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validatePath(input.SummaryPath)
	if err != nil {
		return errorResult(err)
	}

	data, err := readCapped(input.SummaryPath)
	if err != nil {
		return errorResult(fmt.Errorf("read summary: %w", err))
	}

	var summary map[string]any

	unmarshalErr := json.Unmarshal(data, &summary)
	if unmarshalErr != nil {
		return errorResult(fmt.Errorf("parse summary: %w", unmarshalErr))
	}

	return jsonResult(summary)
}
