package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTasksTotal      = "ommsai.tasks.total"
	metricStageDuration   = "ommsai.stage.duration.seconds"
	metricWorkersInflight = "ommsai.workers.inflight"
	metricThrottleTotal   = "ommsai.throttle.backoffs.total"

	attrStatus   = "status"
	attrStage    = "stage"
	attrProvider = "provider"
	attrOutcome  = "outcome"

	outcomeOK    = "ok"
	outcomeError = "error"
)

// stageBucketBoundaries covers 100ms to 600s: fetches are usually sub-second
// while a throttled extraction can back off for minutes.
var stageBucketBoundaries = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// EngineMetrics holds the OTel instruments for the batch engine.
type EngineMetrics struct {
	tasksTotal      metric.Int64Counter
	stageDuration   metric.Float64Histogram
	workersInflight metric.Int64UpDownCounter
	throttleTotal   metric.Int64Counter
}

// NewEngineMetrics creates engine metric instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		tasksTotal:      b.counter(metricTasksTotal, "Completed tasks by final status", "{task}"),
		stageDuration:   b.histogram(metricStageDuration, "Fetch/extract stage duration in seconds", "s", stageBucketBoundaries...),
		workersInflight: b.upDownCounter(metricWorkersInflight, "Workers currently processing a task", "{worker}"),
		throttleTotal:   b.counter(metricThrottleTotal, "Backoffs imposed after provider throttling", "{backoff}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordTask records a task that reached a final status (success,
// partial_success, failed or skipped).
func (em *EngineMetrics) RecordTask(ctx context.Context, status string) {
	em.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}

// RecordStage records one fetch or extract stage with its outcome and duration.
func (em *EngineMetrics) RecordStage(ctx context.Context, stage string, err error, duration time.Duration) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}

	em.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrStage, stage),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordThrottle counts a backoff imposed on the named provider.
func (em *EngineMetrics) RecordThrottle(ctx context.Context, provider string) {
	em.throttleTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
	))
}

// TrackWorker increments the in-flight worker gauge and returns a function to
// decrement it.
func (em *EngineMetrics) TrackWorker(ctx context.Context) func() {
	em.workersInflight.Add(ctx, 1)

	return func() {
		em.workersInflight.Add(ctx, -1)
	}
}
