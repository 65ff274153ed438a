package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// Envelope is one line of a JSONL result log.
type Envelope struct {
	CompletedAt time.Time       `json:"completed_at"`
	TaskID      string          `json:"task_id"`
	Status      batch.Status    `json:"status"`
	Document    json.RawMessage `json:"document"`
}

// LogSink persists results as an append-only JSONL file: one envelope per
// line, synced after every append. Each completion costs O(1) instead of the
// ArraySink's full rewrite, while keeping durability per completion.
type LogSink struct {
	path string
	file *os.File
}

// NewLog creates a LogSink writing to path.
func NewLog(path string) *LogSink {
	return &LogSink{path: path}
}

// Initialize truncates the destination and opens it for appending.
func (s *LogSink) Initialize() error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}

	s.file = file

	return nil
}

// Append writes one envelope line and syncs it to durable storage.
func (s *LogSink) Append(result batch.Result) error {
	line, err := json.Marshal(Envelope{
		CompletedAt: result.CompletedAt,
		TaskID:      result.TaskID,
		Status:      result.Status,
		Document:    payloadOf(result),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, writeErr := s.file.Write(append(line, '\n'))
	if writeErr != nil {
		return fmt.Errorf("append result: %w", writeErr)
	}

	syncErr := s.file.Sync()
	if syncErr != nil {
		return fmt.Errorf("sync result log: %w", syncErr)
	}

	return nil
}

// Close releases the underlying file.
func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil

	if err != nil {
		return fmt.Errorf("close result log: %w", err)
	}

	return nil
}

// ReadLog decodes every envelope from a JSONL result log.
func ReadLog(path string) ([]Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result log: %w", err)
	}

	return decodeEnvelopes(data)
}
