package cycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/cycle"
	"clearancewatch/internal/monitor"
	"clearancewatch/internal/storage/memory"
)

// orderRunner records the order ZIPs were dispatched in.
type orderRunner struct {
	mu     sync.Mutex
	order  []string
	failed map[string]bool
}

func (r *orderRunner) RunForZip(_ context.Context, zip string, _ []monitor.Category) monitor.ZipResult {
	r.mu.Lock()
	r.order = append(r.order, zip)
	r.mu.Unlock()
	return monitor.ZipResult{Zip: zip, Failed: r.failed[zip]}
}

func TestRunOnceReordersAfterFailure(t *testing.T) {
	t.Parallel()

	runner := &orderRunner{failed: map[string]bool{"30308": true}}
	store := memory.New()
	clock := &stubClock{now: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)}
	// Concurrency 1 keeps dispatch order observable.
	coordinator := cycle.New(runner, store, &stubPublisher{}, nil, clock, cycle.Config{Retailer: "lowes", Concurrency: 1}, nil)
	scheduler := cycle.NewScheduler(coordinator, time.Hour, clock, nil)

	zips := []string{"30301", "30308", "30312"}

	summary := scheduler.RunOnce(context.Background(), zips, testCategories)
	require.True(t, summary.OK)
	require.Equal(t, zips, runner.order, "first cycle keeps configured order")

	// 30308 failed, so it has no recorded success and runs last; the other
	// two keep their relative order.
	runner.order = nil
	scheduler.RunOnce(context.Background(), zips, testCategories)
	require.Equal(t, []string{"30301", "30312", "30308"}, runner.order)
}

func TestRunOnceRecordsCycle(t *testing.T) {
	t.Parallel()

	runner := &orderRunner{}
	store := memory.New()
	clock := &stubClock{now: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)}
	coordinator := cycle.New(runner, store, &stubPublisher{}, nil, clock, cycle.Config{Retailer: "lowes"}, nil)
	scheduler := cycle.NewScheduler(coordinator, time.Hour, clock, nil)

	scheduler.RunOnce(context.Background(), []string{"30301"}, testCategories)
	require.Len(t, store.Cycles(), 1)

	last, ok, err := store.LastCycle(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "lowes", last.Retailer)
}
