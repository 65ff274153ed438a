// Package progress tracks live run statistics: per-status counters, recent
// and lifetime throughput, ETA, and token cost estimation.
package progress

import (
	"sync"
	"time"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// ringSize is the number of recent completion timestamps kept for the
// current-throughput window.
const ringSize = 100

// secondsPerMinute converts a per-second rate into tasks per minute.
const secondsPerMinute = 60.0

// unitsPerPrice is the denominator of a per-million price.
const unitsPerPrice = 1_000_000.0

// Tracker is a thread-safe progress tracker. All mutation happens under one
// mutex; reads return detached snapshots so callers never hold the lock.
type Tracker struct {
	mu sync.Mutex

	total     int
	processed int
	success   int
	partial   int
	failed    int

	start       time.Time
	completions []time.Time // bounded ring of the last ringSize completions.
	usage       batch.Usage

	now func() time.Time
}

// NewTracker starts tracking from now.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.start = t.now()

	return t
}

// SetTotal records the run's task count.
func (t *Tracker) SetTotal(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = n
}

// Update records one completed task: its final status, a completion
// timestamp for the throughput window, and the units it consumed.
func (t *Tracker) Update(status batch.Status, inputUnits, outputUnits int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++

	switch status {
	case batch.StatusSuccess:
		t.success++
	case batch.StatusPartial:
		t.partial++
	default:
		t.failed++
	}

	t.completions = append(t.completions, t.now())
	if len(t.completions) > ringSize {
		t.completions = t.completions[1:]
	}

	t.usage.InputUnits += inputUnits
	t.usage.OutputUnits += outputUnits
}

// Snapshot returns an immutable view of progress with all derived quantities
// computed at call time.
func (t *Tracker) Snapshot() batch.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	snap := batch.Snapshot{
		Total:             t.total,
		Processed:         t.processed,
		Success:           t.success,
		Partial:           t.partial,
		Failed:            t.failed,
		Remaining:         max(t.total-t.processed, 0),
		Elapsed:           now.Sub(t.start),
		CurrentThroughput: t.currentThroughputLocked(),
		AverageThroughput: t.averageThroughputLocked(now),
		Usage:             t.usage,
	}

	if t.total > 0 {
		snap.PercentComplete = float64(t.processed) / float64(t.total) * 100
	}

	snap.ETA = t.etaLocked(snap)

	return snap
}

// CostEstimate multiplies accumulated usage by per-million prices and
// linearly extrapolates the full-run spend from the completion ratio.
func (t *Tracker) CostEstimate(table batch.PriceTable) batch.CostEstimate {
	t.mu.Lock()
	defer t.mu.Unlock()

	est := batch.CostEstimate{
		InputCost:  float64(t.usage.InputUnits) / unitsPerPrice * table.InputPerMillion,
		OutputCost: float64(t.usage.OutputUnits) / unitsPerPrice * table.OutputPerMillion,
	}
	est.TotalCost = est.InputCost + est.OutputCost

	if t.processed > 0 {
		est.EstimatedRunCost = est.TotalCost * float64(t.total) / float64(t.processed)
	}

	return est
}

// currentThroughputLocked derives tasks/minute from the recent completion
// window. Fewer than two completions yield zero. Callers hold mu.
func (t *Tracker) currentThroughputLocked() float64 {
	if len(t.completions) < 2 {
		return 0
	}

	span := t.completions[len(t.completions)-1].Sub(t.completions[0])
	if span <= 0 {
		return 0
	}

	perSecond := float64(len(t.completions)-1) / span.Seconds()

	return perSecond * secondsPerMinute
}

// averageThroughputLocked derives lifetime tasks/minute. Callers hold mu.
func (t *Tracker) averageThroughputLocked(now time.Time) float64 {
	elapsed := now.Sub(t.start)
	if elapsed <= 0 || t.processed == 0 {
		return 0
	}

	return float64(t.processed) / elapsed.Seconds() * secondsPerMinute
}

// etaLocked projects time to completion from the current throughput, falling
// back to the lifetime average. Nil means unknown. Callers hold mu.
func (t *Tracker) etaLocked(snap batch.Snapshot) *time.Duration {
	if snap.Total == 0 {
		return nil
	}

	if snap.Remaining == 0 {
		zero := time.Duration(0)

		return &zero
	}

	throughput := snap.CurrentThroughput
	if throughput == 0 {
		throughput = snap.AverageThroughput
	}

	if throughput == 0 {
		return nil
	}

	eta := time.Duration(float64(snap.Remaining) / throughput * float64(time.Minute))

	return &eta
}
