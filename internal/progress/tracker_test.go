package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramdhavepreetam/OmmSai/internal/batch"
)

// newTestTracker pins the tracker's clock and returns a function to advance it.
func newTestTracker() (*Tracker, func(d time.Duration)) {
	now := time.Unix(1700000000, 0)

	t := &Tracker{start: now}
	t.now = func() time.Time { return now }

	return t, func(d time.Duration) { now = now.Add(d) }
}

func TestUpdate_CountsByStatus(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	tr.SetTotal(4)

	tr.Update(batch.StatusSuccess, 100, 50)
	tr.Update(batch.StatusSuccess, 100, 50)
	tr.Update(batch.StatusPartial, 80, 20)
	tr.Update(batch.StatusFailed, 0, 0)

	snap := tr.Snapshot()

	assert.Equal(t, 4, snap.Processed)
	assert.Equal(t, 2, snap.Success)
	assert.Equal(t, 1, snap.Partial)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 0, snap.Remaining)
	assert.InDelta(t, 100.0, snap.PercentComplete, 0.001)
	assert.Equal(t, batch.Usage{InputUnits: 280, OutputUnits: 120}, snap.Usage)
}

func TestSnapshot_Throughputs(t *testing.T) {
	t.Parallel()

	tr, advance := newTestTracker()
	tr.SetTotal(10)

	// One completion every 10s: 6 tasks/minute.
	for range 4 {
		advance(10 * time.Second)
		tr.Update(batch.StatusSuccess, 0, 0)
	}

	snap := tr.Snapshot()

	assert.InDelta(t, 6.0, snap.CurrentThroughput, 0.001)
	assert.InDelta(t, 6.0, snap.AverageThroughput, 0.001)

	// 6 remaining at 6/min is one minute.
	require.NotNil(t, snap.ETA)
	assert.Equal(t, time.Minute, *snap.ETA)
}

func TestSnapshot_ETAFallsBackToAverage(t *testing.T) {
	t.Parallel()

	tr, advance := newTestTracker()
	tr.SetTotal(2)

	// A single completion leaves the recent window empty (needs two points),
	// so ETA must come from the lifetime average.
	advance(30 * time.Second)
	tr.Update(batch.StatusSuccess, 0, 0)

	snap := tr.Snapshot()

	assert.Zero(t, snap.CurrentThroughput)
	assert.InDelta(t, 2.0, snap.AverageThroughput, 0.001)
	require.NotNil(t, snap.ETA)
	assert.Equal(t, 30*time.Second, *snap.ETA)
}

func TestSnapshot_ETAUnknownWithoutThroughput(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	tr.SetTotal(5)

	snap := tr.Snapshot()

	assert.Nil(t, snap.ETA)
}

func TestSnapshot_RingBoundsRecentWindow(t *testing.T) {
	t.Parallel()

	tr, advance := newTestTracker()
	tr.SetTotal(1000)

	// Slow warmup followed by a fast tail. The ring must only see the tail.
	advance(time.Hour)
	tr.Update(batch.StatusSuccess, 0, 0)

	for range ringSize {
		advance(time.Second)
		tr.Update(batch.StatusSuccess, 0, 0)
	}

	snap := tr.Snapshot()

	// ringSize completions one second apart: 60 tasks/minute.
	assert.InDelta(t, 60.0, snap.CurrentThroughput, 0.001)
}

func TestCostEstimate_Extrapolates(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	tr.SetTotal(10)

	// 5 of 10 done at 1M input and 200k output units total.
	for range 5 {
		tr.Update(batch.StatusSuccess, 200_000, 40_000)
	}

	est := tr.CostEstimate(batch.DefaultPriceTable())

	assert.InDelta(t, 3.0, est.InputCost, 0.001)
	assert.InDelta(t, 3.0, est.OutputCost, 0.001)
	assert.InDelta(t, 6.0, est.TotalCost, 0.001)
	assert.InDelta(t, 12.0, est.EstimatedRunCost, 0.001)
}

func TestCostEstimate_ZeroBeforeFirstCompletion(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	tr.SetTotal(10)

	est := tr.CostEstimate(batch.DefaultPriceTable())

	assert.Zero(t, est.TotalCost)
	assert.Zero(t, est.EstimatedRunCost)
}

func TestLoadPriceTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_per_million: 1.25\n"), 0o600))

	table, err := LoadPriceTable(path)
	require.NoError(t, err)

	assert.InDelta(t, 1.25, table.InputPerMillion, 0.001)
	// Unset fields keep the default.
	assert.InDelta(t, batch.DefaultPriceTable().OutputPerMillion, table.OutputPerMillion, 0.001)
}

func TestLoadPriceTable_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPriceTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
