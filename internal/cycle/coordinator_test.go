package cycle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/cycle"
	"clearancewatch/internal/monitor"
	"clearancewatch/internal/storage/memory"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// stubRunner returns scripted results per ZIP and tracks concurrency.
type stubRunner struct {
	results map[string]monitor.ZipResult
	delay   time.Duration

	active    atomic.Int64
	maxActive atomic.Int64
}

func (r *stubRunner) RunForZip(_ context.Context, zip string, _ []monitor.Category) monitor.ZipResult {
	n := r.active.Add(1)
	for {
		peak := r.maxActive.Load()
		if n <= peak || r.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.active.Add(-1)

	if res, ok := r.results[zip]; ok {
		return res
	}
	return monitor.ZipResult{Zip: zip}
}

type stubPublisher struct {
	mu    sync.Mutex
	calls int
	rows  int
	err   error
}

func (p *stubPublisher) Publish(_ context.Context, states []monitor.LatestState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.rows = len(states)
	return p.err
}

type stubPinger struct {
	calls atomic.Int64
}

func (p *stubPinger) Ping(context.Context) error {
	p.calls.Add(1)
	return nil
}

var testCategories = []monitor.Category{{Name: "Tools", URL: "https://example.com/pl/Tools/1"}}

func newCoordinator(runner cycle.ZipRunner, store monitor.Store, pub monitor.SnapshotPublisher, pinger cycle.HealthPinger, cfg cycle.Config) *cycle.Coordinator {
	clock := &stubClock{now: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)}
	return cycle.New(runner, store, pub, pinger, clock, cfg, nil)
}

func TestRunCycleAggregates(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{results: map[string]monitor.ZipResult{
		"30301": {Zip: "30301", Observations: 40, Quarantined: 2, Alerts: 1},
		"30308": {Zip: "30308", Observations: 35, CategoryFailures: []monitor.CategoryFailure{{Category: "Tools", Reason: "selector miss"}}},
		"30312": {Zip: "30312", Failed: true, Err: errors.New("store context")},
	}}
	store := memory.New()
	pub := &stubPublisher{}
	pinger := &stubPinger{}

	summary := newCoordinator(runner, store, pub, pinger, cycle.Config{Retailer: "lowes"}).
		RunCycle(context.Background(), []string{"30301", "30308", "30312"}, testCategories)

	require.True(t, summary.OK, "one failed ZIP out of three is still ok")
	require.Equal(t, 3, summary.Zips)
	require.Equal(t, 1, summary.ZipFailures)
	require.Equal(t, 75, summary.Items)
	require.Equal(t, 2, summary.Quarantined)
	require.Equal(t, 1, summary.Alerts)
	require.Equal(t, 1, summary.CatFailures)

	require.Equal(t, 1, pub.calls, "snapshot published on ok cycle")
	require.EqualValues(t, 1, pinger.calls.Load(), "healthcheck pinged on ok cycle")

	cycles := store.Cycles()
	require.Len(t, cycles, 1)
	require.True(t, cycles[0].OK)
}

func TestAllZipsFailedSkipsPublishAndPing(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{results: map[string]monitor.ZipResult{
		"30301": {Zip: "30301", Failed: true, Err: errors.New("boom")},
		"30308": {Zip: "30308", Failed: true, Err: errors.New("boom")},
	}}
	store := memory.New()
	pub := &stubPublisher{}
	pinger := &stubPinger{}

	summary := newCoordinator(runner, store, pub, pinger, cycle.Config{Retailer: "lowes"}).
		RunCycle(context.Background(), []string{"30301", "30308"}, testCategories)

	require.False(t, summary.OK)
	require.Zero(t, pub.calls, "stale snapshot must survive a failed cycle")
	require.Zero(t, pinger.calls.Load())

	cycles := store.Cycles()
	require.Len(t, cycles, 1)
	require.False(t, cycles[0].OK, "failed cycles are still recorded")
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{delay: 20 * time.Millisecond}
	store := memory.New()

	zips := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	newCoordinator(runner, store, &stubPublisher{}, nil, cycle.Config{Retailer: "lowes", Concurrency: 2}).
		RunCycle(context.Background(), zips, testCategories)

	require.LessOrEqual(t, runner.maxActive.Load(), int64(2))
}

func TestSnapshotRowsComeFromLatestState(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.PutLatest(context.Background(), monitor.LatestState{StoreID: "1", SKU: "a", Price: 100}))
	require.NoError(t, store.PutLatest(context.Background(), monitor.LatestState{StoreID: "1", SKU: "b", Price: 200}))

	pub := &stubPublisher{}
	newCoordinator(&stubRunner{}, store, pub, nil, cycle.Config{Retailer: "lowes"}).
		RunCycle(context.Background(), []string{"30301"}, testCategories)

	require.Equal(t, 1, pub.calls)
	require.Equal(t, 2, pub.rows)
}

func TestQuarantinePurge(t *testing.T) {
	t.Parallel()

	store := memory.New()
	old := monitor.QuarantineEntry{SKU: "old", ObservedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
	fresh := monitor.QuarantineEntry{SKU: "fresh", ObservedAt: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.InsertQuarantine(context.Background(), old))
	require.NoError(t, store.InsertQuarantine(context.Background(), fresh))

	cfg := cycle.Config{Retailer: "lowes", QuarantineRetention: 14 * 24 * time.Hour}
	newCoordinator(&stubRunner{}, store, &stubPublisher{}, nil, cfg).
		RunCycle(context.Background(), []string{"30301"}, testCategories)

	entries := store.Quarantine()
	require.Len(t, entries, 1)
	require.Equal(t, "fresh", entries[0].SKU)
}

func TestOrderZips(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	lastSuccess := map[string]time.Time{
		"30301": base.Add(2 * time.Hour),
		"30308": base,
	}

	ordered := cycle.OrderZips([]string{"30301", "30308", "30312", "30315"}, lastSuccess)
	require.Equal(t, []string{"30308", "30301", "30312", "30315"}, ordered)
}
