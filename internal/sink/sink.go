// Package sink persists one result per completed task. Implementations rely
// on the executor to serialize Append calls and hold no locks of their own.
package sink

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// filePerm is the permission mode for result files.
const filePerm = 0o600

// ArraySink keeps the destination as a single on-disk JSON array of document
// payloads. Every Append reads the array, adds one object, and rewrites the
// file, which makes it O(N^2) over a run; it exists because downstream tooling
// consumes exactly this shape. Prefer LogSink for large runs.
type ArraySink struct {
	path string
}

// NewArray creates an ArraySink writing to path.
func NewArray(path string) *ArraySink {
	return &ArraySink{path: path}
}

// Initialize truncates the destination to an empty array.
func (s *ArraySink) Initialize() error {
	return writeArray(s.path, []json.RawMessage{})
}

// Append reads the full array, adds the result payload, and writes it back.
func (s *ArraySink) Append(result batch.Result) error {
	items, err := readArray(s.path)
	if err != nil {
		return err
	}

	items = append(items, payloadOf(result))

	return writeArray(s.path, items)
}

// payloadOf returns the document payload to persist, synthesizing a failed
// document when the worker produced none.
func payloadOf(result batch.Result) json.RawMessage {
	if len(result.Payload) > 0 {
		return result.Payload
	}

	return batch.FailedDocument(result.Name, result.Note)
}

func readArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []json.RawMessage{}, nil
		}

		return nil, fmt.Errorf("read results: %w", err)
	}

	var items []json.RawMessage

	unmarshalErr := json.Unmarshal(data, &items)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal results: %w", unmarshalErr)
	}

	return items, nil
}

func writeArray(path string, items []json.RawMessage) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	writeErr := os.WriteFile(path, data, filePerm)
	if writeErr != nil {
		return fmt.Errorf("write results: %w", writeErr)
	}

	return nil
}
