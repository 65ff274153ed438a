// Package checkpoint persists a durable record of which tasks have been
// processed, so an interrupted run can resume without redoing completed work.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// DefaultBatchSize is the number of completions between durable flushes.
const DefaultBatchSize = 100

// filePerm is the permission mode for checkpoint and export files.
const filePerm = 0o600

// ErrNotFound indicates no durable checkpoint record exists at the path.
var ErrNotFound = errors.New("checkpoint not found")

// Stats is the counters block carried inside the durable record.
type Stats struct {
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Success   int       `json:"success"`
	Partial   int       `json:"partial"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// State is the durable checkpoint record. It round-trips losslessly through
// JSON and survives partial writes via atomic replace.
type State struct {
	ProcessedIDs []string          `json:"processed_ids"`
	Failed       map[string]string `json:"failed"`
	Stats        Stats             `json:"stats"`
	LastFlush    time.Time         `json:"last_flush,omitzero"`
}

// ReadFile loads the durable record at path. A missing file returns
// ErrNotFound; callers inspecting a run treat that as "nothing recorded yet".
func ReadFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return State{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var state State

	unmarshalErr := json.Unmarshal(data, &state)
	if unmarshalErr != nil {
		return State{}, fmt.Errorf("unmarshal checkpoint: %w", unmarshalErr)
	}

	return state, nil
}

// Store tracks processed tasks and flushes them durably every batchSize
// completions plus once at Finalize. One coarse mutex serializes all
// mutation; checkpoint writes are rare next to task execution, so the lock
// is never the bottleneck.
type Store struct {
	mu        sync.Mutex
	path      string
	batchSize int

	processed map[string]struct{}
	failed    map[string]string
	stats     Stats
	lastFlush time.Time

	now func() time.Time
}

// Open loads the durable record at path, or starts fresh when none exists.
// batchSize below one falls back to DefaultBatchSize.
func Open(path string, batchSize int) (*Store, error) {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	st := &Store{
		path:      path,
		batchSize: batchSize,
		processed: make(map[string]struct{}),
		failed:    make(map[string]string),
		now:       time.Now,
	}

	state, err := ReadFile(path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return st, nil
		}

		return nil, err
	}

	for _, id := range state.ProcessedIDs {
		st.processed[id] = struct{}{}
	}

	for id, msg := range state.Failed {
		st.failed[id] = msg
	}

	st.stats = state.Stats
	st.lastFlush = state.LastFlush

	return st, nil
}

// Path returns the durable record location.
func (s *Store) Path() string {
	return s.path
}

// ShouldProcess reports whether id has not been processed yet. Tasks present
// in a prior checkpoint are never re-attempted.
func (s *Store) ShouldProcess(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, done := s.processed[id]

	return !done
}

// SetTotal records the run's task count and stamps the start time on first use.
func (s *Store) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Total = n

	if s.stats.StartedAt.IsZero() {
		s.stats.StartedAt = s.now()
	}
}

// MarkProcessed adds id to the processed set and bumps the matching status
// counter. Every batchSize completions the record is flushed durably; a flush
// failure is returned so the caller can log it, but the in-memory state is
// already updated and the run may continue.
func (s *Store) MarkProcessed(id string, status batch.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.markProcessedLocked(id, status)
}

// MarkFailed records the task's last error message and marks it processed
// with the failed status.
func (s *Store) MarkFailed(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failed[id] = message

	return s.markProcessedLocked(id, batch.StatusFailed)
}

func (s *Store) markProcessedLocked(id string, status batch.Status) error {
	s.processed[id] = struct{}{}
	s.stats.Processed++

	switch status {
	case batch.StatusSuccess:
		s.stats.Success++
	case batch.StatusPartial:
		s.stats.Partial++
	default:
		s.stats.Failed++
	}

	if s.stats.Processed%s.batchSize == 0 {
		return s.flushLocked()
	}

	return nil
}

// Finalize flushes unconditionally. Called once at shutdown, including after
// cancellation, so completed work outlives the periodic cadence.
func (s *Store) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked()
}

// Clear resets in-memory state and deletes the durable record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed = make(map[string]struct{})
	s.failed = make(map[string]string)
	s.stats = Stats{}
	s.lastFlush = time.Time{}

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}

	return nil
}

// Remaining counts the candidates not yet in the processed set.
func (s *Store) Remaining(candidates []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, id := range candidates {
		if _, done := s.processed[id]; !done {
			n++
		}
	}

	return n
}

// Stats returns a copy of the counters block.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// FailedTasks returns a copy of the failed id to message map.
func (s *Store) FailedTasks() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.failed))
	for id, msg := range s.failed {
		out[id] = msg
	}

	return out
}

// ExportFailed writes the failed map to a standalone JSON file for operator
// triage and targeted retry.
func (s *Store) ExportFailed(path string) error {
	failed := s.FailedTasks()

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failed tasks: %w", err)
	}

	writeErr := os.WriteFile(path, data, filePerm)
	if writeErr != nil {
		return fmt.Errorf("write failed tasks: %w", writeErr)
	}

	return nil
}

// flushLocked writes the record to a temp file in the same directory, syncs
// it, then atomically renames it over the prior record. A crash mid-write
// leaves the prior valid checkpoint readable. Callers hold mu.
func (s *Store) flushLocked() error {
	s.lastFlush = s.now()

	state := State{
		ProcessedIDs: make([]string, 0, len(s.processed)),
		Failed:       s.failed,
		Stats:        s.stats,
		LastFlush:    s.lastFlush,
	}

	for id := range s.processed {
		state.ProcessedIDs = append(state.ProcessedIDs, id)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := s.path + ".tmp"

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}

	_, writeErr := tmp.Write(data)
	if writeErr != nil {
		tmp.Close()

		return fmt.Errorf("write checkpoint temp: %w", writeErr)
	}

	syncErr := tmp.Sync()
	if syncErr != nil {
		tmp.Close()

		return fmt.Errorf("sync checkpoint temp: %w", syncErr)
	}

	closeErr := tmp.Close()
	if closeErr != nil {
		return fmt.Errorf("close checkpoint temp: %w", closeErr)
	}

	renameErr := os.Rename(tmpPath, s.path)
	if renameErr != nil {
		return fmt.Errorf("replace checkpoint: %w", renameErr)
	}

	return nil
}
