package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// CompressedLogSink is a LogSink behind an LZ4 frame writer. The frame is
// flushed after every append so compressed envelopes reach the file per
// completion rather than sitting in the frame buffer.
type CompressedLogSink struct {
	path string
	file *os.File
	zw   *lz4.Writer
}

// NewCompressedLog creates a CompressedLogSink writing to path.
func NewCompressedLog(path string) *CompressedLogSink {
	return &CompressedLogSink{path: path}
}

// Initialize truncates the destination and opens an LZ4 frame over it.
func (s *CompressedLogSink) Initialize() error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("open compressed log: %w", err)
	}

	s.file = file
	s.zw = lz4.NewWriter(file)

	return nil
}

// Append writes one envelope line into the frame and flushes it through to
// the file.
func (s *CompressedLogSink) Append(result batch.Result) error {
	line, err := json.Marshal(Envelope{
		CompletedAt: result.CompletedAt,
		TaskID:      result.TaskID,
		Status:      result.Status,
		Document:    payloadOf(result),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, writeErr := s.zw.Write(append(line, '\n'))
	if writeErr != nil {
		return fmt.Errorf("append compressed result: %w", writeErr)
	}

	flushErr := s.zw.Flush()
	if flushErr != nil {
		return fmt.Errorf("flush compressed log: %w", flushErr)
	}

	return nil
}

// Close finishes the LZ4 frame and releases the file.
func (s *CompressedLogSink) Close() error {
	if s.file == nil {
		return nil
	}

	closeErr := s.zw.Close()
	fileErr := s.file.Close()
	s.file = nil
	s.zw = nil

	err := errors.Join(closeErr, fileErr)
	if err != nil {
		return fmt.Errorf("close compressed log: %w", err)
	}

	return nil
}

// ReadCompressedLog decodes every envelope from an LZ4-compressed result log.
func ReadCompressedLog(path string) ([]Envelope, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open compressed log: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(lz4.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decompress result log: %w", err)
	}

	return decodeEnvelopes(data)
}

// decodeEnvelopes parses JSONL envelope bytes, skipping blank lines.
func decodeEnvelopes(data []byte) ([]Envelope, error) {
	var envelopes []Envelope

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 16<<20)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var env Envelope

		err := json.Unmarshal(line, &env)
		if err != nil {
			return nil, fmt.Errorf("unmarshal envelope: %w", err)
		}

		envelopes = append(envelopes, env)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("scan result log: %w", scanErr)
	}

	return envelopes, nil
}
