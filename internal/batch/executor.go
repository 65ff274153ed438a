package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramdhavepreetam/OmmSai/internal/observability"
	"github.com/ramdhavepreetam/OmmSai/internal/retry"
)

// Worker pool bounds. The pool size is the run's only concurrency knob.
const (
	// DefaultWorkers is the pool size when none is configured.
	DefaultWorkers = 10
	// MinWorkers is the floor: one worker degenerates to sequential execution.
	MinWorkers = 1
	// MaxWorkers is the hard ceiling on pool size.
	MaxWorkers = 50
)

// DefaultThrottleBackoff is how long a limiter pauses admissions after its
// provider signals throttling.
const DefaultThrottleBackoff = 30 * time.Second

// Stage names used in spans, logs and metrics.
const (
	stageFetch   = "fetch"
	stageExtract = "extract"
)

// Wiring errors returned by NewExecutor before any task is scheduled.
var (
	// ErrNoFetcher indicates no fetcher factory was supplied.
	ErrNoFetcher = errors.New("no fetcher factory")
	// ErrNoExtractor indicates no extractor was supplied.
	ErrNoExtractor = errors.New("no extractor")
	// ErrNoSink indicates no result sink was supplied.
	ErrNoSink = errors.New("no result sink")
	// ErrNoCheckpoint indicates no checkpointer was supplied.
	ErrNoCheckpoint = errors.New("no checkpointer")
	// ErrNoProgress indicates no progress tracker was supplied.
	ErrNoProgress = errors.New("no progress tracker")
	// ErrNoLimiter indicates a rate limiter was not supplied for a stage.
	ErrNoLimiter = errors.New("no rate limiter")
)

// Options wires an Executor. Fetchers, Extractor, the two limiters,
// Checkpoint, Progress and Sink are required; everything else has a default.
type Options struct {
	// Fetchers builds one repository client per worker.
	Fetchers FetcherFactory

	// Extractor is the shared extraction client. It must tolerate concurrent
	// invocation.
	Extractor Extractor

	// RepoLimiter admits repository fetches.
	RepoLimiter Limiter

	// ExtractLimiter admits extraction calls. Independent from RepoLimiter so
	// throttling one provider never blocks the other.
	ExtractLimiter Limiter

	// Retry wraps both stages. Zero value uses retry.Default().
	Retry retry.Policy

	// Checkpoint records completions for resumable runs.
	Checkpoint Checkpointer

	// Progress tracks counters, throughput and usage.
	Progress Progress

	// Sink persists one result per completed, non-skipped task.
	Sink Sink

	// OnProgress, when set, receives a fresh snapshot after every completion.
	// It runs on the completing worker and must not block meaningfully.
	OnProgress func(Snapshot)

	// Prices is the cost table for the final summary. Zero value uses
	// DefaultPriceTable().
	Prices PriceTable

	// Workers is the pool size, clamped to [MinWorkers, MaxWorkers].
	// Zero uses DefaultWorkers.
	Workers int

	// ThrottleBackoff is the pause imposed on a stage's limiter when its
	// provider throttles. Zero uses DefaultThrottleBackoff.
	ThrottleBackoff time.Duration

	// Logger is optional; nil discards.
	Logger *slog.Logger

	// Tracer is optional; nil disables per-task spans.
	Tracer trace.Tracer

	// Metrics is optional; nil disables engine instruments.
	Metrics *observability.EngineMetrics
}

// Executor fans a fixed task list out to a bounded worker pool. Each task is
// checkpoint-checked, rate-limited, fetched and extracted with retries, then
// recorded in the checkpoint, the progress tracker and the sink. Completion
// order across tasks is unspecified.
type Executor struct {
	fetchers        FetcherFactory
	extractor       Extractor
	repoLimiter     Limiter
	extractLimiter  Limiter
	policy          retry.Policy
	checkpoint      Checkpointer
	progress        Progress
	sink            Sink
	onProgress      func(Snapshot)
	prices          PriceTable
	workers         int
	throttleBackoff time.Duration

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.EngineMetrics

	cancelled atomic.Bool
	skipped   atomic.Int64

	// sinkMu serializes Append: the sink's read-modify-write cycle must not
	// interleave across workers.
	sinkMu sync.Mutex

	now func() time.Time
}

// NewExecutor validates the wiring and builds an Executor. A wiring error
// here is fatal-setup: nothing has been scheduled yet.
func NewExecutor(opts Options) (*Executor, error) {
	err := validateOptions(opts)
	if err != nil {
		return nil, err
	}

	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Default()
	}

	prices := opts.Prices
	if prices == (PriceTable{}) {
		prices = DefaultPriceTable()
	}

	workers := opts.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}

	workers = min(max(workers, MinWorkers), MaxWorkers)

	throttleBackoff := opts.ThrottleBackoff
	if throttleBackoff <= 0 {
		throttleBackoff = DefaultThrottleBackoff
	}

	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	return &Executor{
		fetchers:        opts.Fetchers,
		extractor:       opts.Extractor,
		repoLimiter:     opts.RepoLimiter,
		extractLimiter:  opts.ExtractLimiter,
		policy:          policy,
		checkpoint:      opts.Checkpoint,
		progress:        opts.Progress,
		sink:            opts.Sink,
		onProgress:      opts.OnProgress,
		prices:          prices,
		workers:         workers,
		throttleBackoff: throttleBackoff,
		logger:          logger,
		tracer:          opts.Tracer,
		metrics:         opts.Metrics,
		now:             time.Now,
	}, nil
}

func validateOptions(opts Options) error {
	switch {
	case opts.Fetchers == nil:
		return ErrNoFetcher
	case opts.Extractor == nil:
		return ErrNoExtractor
	case opts.RepoLimiter == nil:
		return fmt.Errorf("%w: repository", ErrNoLimiter)
	case opts.ExtractLimiter == nil:
		return fmt.Errorf("%w: extraction", ErrNoLimiter)
	case opts.Checkpoint == nil:
		return ErrNoCheckpoint
	case opts.Progress == nil:
		return ErrNoProgress
	case opts.Sink == nil:
		return ErrNoSink
	}

	return nil
}

// Workers returns the clamped pool size.
func (e *Executor) Workers() int {
	return e.workers
}

// Cancel stops dispatching new tasks. Tasks already handed to a worker run to
// their natural completion; cancellation is cooperative, never preemptive.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// Run processes tasks on the worker pool and blocks until every dispatched
// task has finished or dispatch stopped on cancellation. The checkpoint is
// finalized exactly once on every exit path, so completed work survives
// cancellation and context aborts.
func (e *Executor) Run(ctx context.Context, tasks []Task) (Summary, error) {
	err := e.prepare(tasks)
	if err != nil {
		return Summary{}, err
	}

	taskChan := make(chan Task)

	var wg sync.WaitGroup

	wg.Add(e.workers)

	for w := range e.workers {
		go func(worker int) {
			defer wg.Done()

			// Each worker obtains its own fetcher lazily on first use and
			// keeps it for the run, so connection state never crosses workers.
			var fetcher Fetcher

			for task := range taskChan {
				if fetcher == nil {
					fetcher = e.fetchers(worker)
				}

				e.processTask(ctx, worker, fetcher, task)
			}
		}(w)
	}

	e.dispatch(ctx, tasks, taskChan)
	wg.Wait()

	return e.finish(ctx), ctx.Err()
}

// RunSequential processes tasks in submission order on the calling
// goroutine, with per-task semantics identical to the pool.
func (e *Executor) RunSequential(ctx context.Context, tasks []Task) (Summary, error) {
	err := e.prepare(tasks)
	if err != nil {
		return Summary{}, err
	}

	fetcher := e.fetchers(0)

	for _, task := range tasks {
		if e.cancelled.Load() || ctx.Err() != nil {
			break
		}

		e.processTask(ctx, 0, fetcher, task)
	}

	return e.finish(ctx), ctx.Err()
}

// prepare sets run totals and initializes the sink. Errors here are
// fatal-setup: no task has been scheduled.
func (e *Executor) prepare(tasks []Task) error {
	e.progress.SetTotal(len(tasks))
	e.checkpoint.SetTotal(len(tasks))

	err := e.sink.Initialize()
	if err != nil {
		return fmt.Errorf("initialize sink: %w", err)
	}

	return nil
}

// dispatch feeds tasks to the pool, stopping as soon as cancellation is
// observed between dispatches.
func (e *Executor) dispatch(ctx context.Context, tasks []Task, taskChan chan<- Task) {
	defer close(taskChan)

	for _, task := range tasks {
		if e.cancelled.Load() || ctx.Err() != nil {
			return
		}

		select {
		case taskChan <- task:
		case <-ctx.Done():
			return
		}
	}
}

// finish finalizes the checkpoint exactly once and assembles the summary.
func (e *Executor) finish(ctx context.Context) Summary {
	finalizeErr := e.checkpoint.Finalize()
	if finalizeErr != nil {
		e.logger.WarnContext(ctx, "checkpoint finalize failed", "error", finalizeErr)
	}

	return Summary{
		Snapshot:  e.progress.Snapshot(),
		Skipped:   int(e.skipped.Load()),
		Cancelled: e.cancelled.Load() || ctx.Err() != nil,
		Cost:      e.progress.CostEstimate(e.prices),
	}
}

// processTask runs one task through the full pipeline: checkpoint check,
// rate-limited fetch with retries, rate-limited extraction with retries,
// then checkpoint, progress, sink and callback.
func (e *Executor) processTask(ctx context.Context, worker int, fetcher Fetcher, task Task) {
	if !e.checkpoint.ShouldProcess(task.ID) {
		e.skipped.Add(1)
		e.logger.DebugContext(ctx, "task skipped by checkpoint", "task_id", task.ID)

		return
	}

	ctx, endSpan := e.startTaskSpan(ctx, worker, task)
	defer endSpan()

	if e.metrics != nil {
		defer e.metrics.TrackWorker(ctx)()
	}

	data, fetchErr := e.fetchStage(ctx, fetcher, task)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return
		}

		e.complete(ctx, failedResult(task, "fetch failed: "+fetchErr.Error(), e.now()))

		return
	}

	result, extractErr := e.extractStage(ctx, data, task)
	if extractErr != nil {
		if ctx.Err() != nil {
			return
		}

		e.complete(ctx, failedResult(task, "extraction failed: "+extractErr.Error(), e.now()))

		return
	}

	result.TaskID = task.ID
	result.Name = task.Name
	result.CompletedAt = e.now()

	if !result.Status.Valid() {
		result.Status = StatusFailed
	}

	e.complete(ctx, result)
}

// fetchStage acquires the repository limiter once, then fetches with retries.
func (e *Executor) fetchStage(ctx context.Context, fetcher Fetcher, task Task) ([]byte, error) {
	acquireErr := e.repoLimiter.Acquire(ctx)
	if acquireErr != nil {
		return nil, acquireErr
	}

	start := e.now()

	data, err := retry.Do(ctx, e.policy, func() ([]byte, error) {
		d, fetchErr := fetcher.Fetch(ctx, task)
		if fetchErr != nil {
			e.noteThrottle(ctx, e.repoLimiter, "repository", fetchErr)
		}

		return d, fetchErr
	})

	e.recordStage(ctx, stageFetch, err, e.now().Sub(start))

	return data, err
}

// extractStage acquires the extraction limiter once, then extracts with
// retries.
func (e *Executor) extractStage(ctx context.Context, data []byte, task Task) (Result, error) {
	acquireErr := e.extractLimiter.Acquire(ctx)
	if acquireErr != nil {
		return Result{}, acquireErr
	}

	start := e.now()

	result, err := retry.Do(ctx, e.policy, func() (Result, error) {
		r, extractErr := e.extractor.Extract(ctx, data, task.Name)
		if extractErr != nil {
			e.noteThrottle(ctx, e.extractLimiter, "extraction", extractErr)
		}

		return r, extractErr
	})

	e.recordStage(ctx, stageExtract, err, e.now().Sub(start))

	return result, err
}

// noteThrottle pauses a stage's limiter when its provider signals throttling,
// so sibling workers back off while the provider recovers.
func (e *Executor) noteThrottle(ctx context.Context, limiter Limiter, provider string, err error) {
	if !retry.IsThrottle(err) {
		return
	}

	limiter.SetBackoff(e.throttleBackoff)

	e.logger.WarnContext(ctx, "provider throttling detected",
		"provider", provider, "backoff", e.throttleBackoff, "error", err)

	if e.metrics != nil {
		e.metrics.RecordThrottle(ctx, provider)
	}
}

// complete records one finished task: checkpoint first, then progress, then
// the serialized sink append, then the optional callback.
func (e *Executor) complete(ctx context.Context, result Result) {
	var markErr error

	if result.Status == StatusFailed {
		markErr = e.checkpoint.MarkFailed(result.TaskID, result.Note)
	} else {
		markErr = e.checkpoint.MarkProcessed(result.TaskID, result.Status)
	}

	if markErr != nil {
		// Losing a periodic flush degrades resumability, never the run.
		e.logger.WarnContext(ctx, "checkpoint write failed",
			"task_id", result.TaskID, "error", markErr)
	}

	e.progress.Update(result.Status, result.Usage.InputUnits, result.Usage.OutputUnits)

	if e.metrics != nil {
		e.metrics.RecordTask(ctx, string(result.Status))
	}

	e.appendResult(ctx, result)

	e.logger.InfoContext(ctx, "task completed",
		"task_id", result.TaskID, "name", result.Name, "status", result.Status)

	if e.onProgress != nil {
		e.onProgress(e.progress.Snapshot())
	}
}

func (e *Executor) appendResult(ctx context.Context, result Result) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()

	err := e.sink.Append(result)
	if err != nil {
		e.logger.ErrorContext(ctx, "result append failed",
			"task_id", result.TaskID, "error", err)
	}
}

func (e *Executor) startTaskSpan(ctx context.Context, worker int, task Task) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, func() {}
	}

	ctx, span := e.tracer.Start(ctx, "batch.task",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.Int("worker", worker),
		),
	)

	return ctx, func() { span.End() }
}

func (e *Executor) recordStage(ctx context.Context, stage string, err error, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordStage(ctx, stage, err, elapsed)
	}

	if err != nil && ctx.Err() == nil {
		e.logger.WarnContext(ctx, "stage failed after retries",
			"stage", stage, "error", err)
	}
}

// failedResult builds the synthetic result for a task whose fetch or
// extraction exhausted its retries.
func failedResult(task Task, note string, completedAt time.Time) Result {
	return Result{
		TaskID:      task.ID,
		Name:        task.Name,
		Status:      StatusFailed,
		Note:        note,
		Payload:     FailedDocument(task.Name, note),
		CompletedAt: completedAt,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
