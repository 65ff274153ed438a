// Package batch implements the batch-execution engine: a bounded worker pool
// that fetches remote documents, runs them through an extraction service, and
// survives partial failures, provider throttling, and mid-run interruption.
package batch

import (
	"context"
	"encoding/json"
	"time"
)

// Status classifies the final outcome of one completed task.
type Status string

const (
	// StatusSuccess marks a fully extracted document.
	StatusSuccess Status = "success"
	// StatusPartial marks a document extracted with gaps or low confidence.
	StatusPartial Status = "partial_success"
	// StatusFailed marks a task whose fetch or extraction did not produce a document.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the three final statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// Task is one unit of work: one remote document to fetch and extract.
// Tasks are immutable and shared read-only across workers.
type Task struct {
	// ID is the opaque repository identity of the document.
	ID string

	// Name is the human-readable display name.
	Name string

	// ContentType is the repository's content-type hint. Native workspace
	// types are exported to PDF during fetch; empty means download as-is.
	ContentType string
}

// Usage accumulates the units consumed by one extraction call.
type Usage struct {
	// InputUnits counts prompt-side units (document plus instructions).
	InputUnits int64 `json:"input_units"`

	// OutputUnits counts response-side units.
	OutputUnits int64 `json:"output_units"`
}

// Result is the outcome of one task that reached completion or exhausted its
// retries. A worker creates exactly one Result per such task and hands it to
// the sink and the progress tracker; it is never mutated afterwards.
type Result struct {
	// TaskID is the identity of the originating task.
	TaskID string `json:"task_id"`

	// Name is the task display name.
	Name string `json:"name"`

	// Status is the final outcome.
	Status Status `json:"status"`

	// Note carries free text: the extraction comment, or a synthetic
	// "fetch failed: ..." / "extraction failed: ..." message.
	Note string `json:"note,omitempty"`

	// Usage holds the units consumed, when the extraction reported any.
	Usage Usage `json:"usage"`

	// Payload is the structured document produced by extraction. The engine
	// treats it as opaque; it is what the sink persists.
	Payload json.RawMessage `json:"payload,omitempty"`

	// CompletedAt is when the worker finished the task.
	CompletedAt time.Time `json:"completed_at"`
}

// failedDocument is the persisted shape of a task that produced no document.
type failedDocument struct {
	DocumentID string         `json:"document_id"`
	ReadStatus Status         `json:"read_status"`
	Comment    string         `json:"comment"`
	Fields     map[string]any `json:"fields"`
}

// FailedDocument builds the synthetic payload persisted when a task fails
// before producing a document.
func FailedDocument(name, note string) json.RawMessage {
	doc := failedDocument{
		DocumentID: name,
		ReadStatus: StatusFailed,
		Comment:    note,
		Fields:     map[string]any{},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		// Marshalling a flat struct of strings cannot fail.
		return json.RawMessage(`{"read_status":"failed"}`)
	}

	return data
}

// Fetcher retrieves the raw content of one document. Implementations are
// either safe for concurrent use or instantiated once per worker via a
// FetcherFactory.
type Fetcher interface {
	Fetch(ctx context.Context, task Task) ([]byte, error)
}

// FetcherFactory builds the Fetcher used by one worker. Each worker calls it
// once, lazily, and caches the returned client for its lifetime. This keeps
// per-connection state (sessions, TLS) out of cross-worker sharing.
type FetcherFactory func(worker int) Fetcher

// SharedFetcher adapts a single concurrency-safe Fetcher into a FetcherFactory.
func SharedFetcher(f Fetcher) FetcherFactory {
	return func(int) Fetcher { return f }
}

// Extractor turns raw document bytes into a structured Result. It must
// tolerate concurrent invocation.
type Extractor interface {
	Extract(ctx context.Context, data []byte, displayName string) (Result, error)
}

// Sink persists one result per completed, non-skipped task. The executor
// serializes Append calls; implementations need no internal locking.
type Sink interface {
	Initialize() error
	Append(result Result) error
}

// Checkpointer records which tasks are done so an interrupted run can resume
// without reprocessing completed work.
type Checkpointer interface {
	ShouldProcess(id string) bool
	SetTotal(n int)
	MarkProcessed(id string, status Status) error
	MarkFailed(id, message string) error
	Finalize() error
}

// Progress records completions and serves statistics snapshots.
type Progress interface {
	SetTotal(n int)
	Update(status Status, inputUnits, outputUnits int64)
	Snapshot() Snapshot
	CostEstimate(table PriceTable) CostEstimate
}

// Limiter admits operations against one external dependency.
type Limiter interface {
	Acquire(ctx context.Context) error
	SetBackoff(d time.Duration)
}

// PriceTable holds per-million-unit prices for cost estimation.
type PriceTable struct {
	// InputPerMillion is the price of one million input units.
	InputPerMillion float64 `yaml:"input_per_million"`

	// OutputPerMillion is the price of one million output units.
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// DefaultPriceTable mirrors the provider rates the engine shipped with.
func DefaultPriceTable() PriceTable {
	return PriceTable{InputPerMillion: 3.0, OutputPerMillion: 15.0}
}

// CostEstimate is the spend so far plus a linear extrapolation to run end.
type CostEstimate struct {
	// InputCost is the accumulated input-unit spend.
	InputCost float64 `json:"input_cost"`

	// OutputCost is the accumulated output-unit spend.
	OutputCost float64 `json:"output_cost"`

	// TotalCost is InputCost + OutputCost.
	TotalCost float64 `json:"total_cost"`

	// EstimatedRunCost extrapolates TotalCost to the full task list by the
	// current completion ratio. Zero until the first completion.
	EstimatedRunCost float64 `json:"estimated_run_cost"`
}

// Snapshot is an immutable view of run progress. All derived quantities are
// computed at snapshot time; zero-valued fields mean "not yet known".
type Snapshot struct {
	// Total is the number of tasks in the run, when known.
	Total int `json:"total"`

	// Processed counts tasks that reached a final status this run.
	Processed int `json:"processed"`

	// Success, Partial and Failed break Processed down by status.
	Success int `json:"success"`
	Partial int `json:"partial_success"`
	Failed  int `json:"failed"`

	// Remaining is Total - Processed, floored at zero.
	Remaining int `json:"remaining"`

	// PercentComplete is Processed/Total·100, zero when Total is unknown.
	PercentComplete float64 `json:"percent_complete"`

	// Elapsed is the wall time since tracking started.
	Elapsed time.Duration `json:"elapsed"`

	// CurrentThroughput is tasks/minute over the recent completion window.
	CurrentThroughput float64 `json:"current_throughput"`

	// AverageThroughput is tasks/minute over the whole run.
	AverageThroughput float64 `json:"average_throughput"`

	// ETA is the projected time to completion. Nil when throughput is zero
	// or the total is unknown.
	ETA *time.Duration `json:"eta,omitempty"`

	// Usage totals the units consumed so far.
	Usage Usage `json:"usage"`
}

// Summary is returned to the driver when a run finishes, normally or after
// cancellation.
type Summary struct {
	// Snapshot is the final progress view.
	Snapshot Snapshot `json:"snapshot"`

	// Skipped counts tasks bypassed because a prior checkpoint had them.
	Skipped int `json:"skipped"`

	// Cancelled reports whether the run was stopped before dispatching the
	// full task list.
	Cancelled bool `json:"cancelled"`

	// Cost is the spend estimate under the run's price table.
	Cost CostEstimate `json:"cost"`
}
