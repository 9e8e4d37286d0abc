// Package cycle fans ZIP workers out under a concurrency bound and turns
// their results into a cycle summary plus a published snapshot.
package cycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"clearancewatch/internal/metrics"
	"clearancewatch/internal/monitor"
)

// ZipRunner executes one ZIP's catalog pass.
type ZipRunner interface {
	RunForZip(ctx context.Context, zip string, categories []monitor.Category) monitor.ZipResult
}

// HealthPinger notifies an external healthcheck endpoint.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// Config controls Coordinator behavior.
type Config struct {
	Retailer string
	// Concurrency bounds simultaneously active ZIP workers (default 3).
	Concurrency int
	// QuarantineRetention is how long quarantine entries are kept.
	QuarantineRetention time.Duration
}

// Coordinator runs full collection cycles.
type Coordinator struct {
	runner    ZipRunner
	store     monitor.Store
	publisher monitor.SnapshotPublisher
	pinger    HealthPinger
	clock     monitor.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Coordinator. pinger may be nil.
func New(
	runner ZipRunner,
	store monitor.Store,
	publisher monitor.SnapshotPublisher,
	pinger HealthPinger,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		runner:    runner,
		store:     store,
		publisher: publisher,
		pinger:    pinger,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunCycle dispatches workers for all ZIPs, aggregates their results, and
// publishes the snapshot. A cycle is ok when at least one ZIP completed
// without a ZIP-level failure; category failures only affect counts.
func (c *Coordinator) RunCycle(ctx context.Context, zips []string, categories []monitor.Category) monitor.CycleSummary {
	summary, _ := c.RunCycleDetailed(ctx, zips, categories)
	return summary
}

// RunCycleDetailed is RunCycle plus the per-ZIP results, for callers that
// track per-ZIP completion (the scheduler's ordering heuristic).
func (c *Coordinator) RunCycleDetailed(ctx context.Context, zips []string, categories []monitor.Category) (monitor.CycleSummary, []monitor.ZipResult) {
	started := c.clock.Now()
	results := c.collect(ctx, zips, categories)

	summary := monitor.CycleSummary{
		Retailer:  c.cfg.Retailer,
		Zips:      len(zips),
		StartedAt: started,
	}
	for _, r := range results {
		if r.Failed {
			summary.ZipFailures++
			metrics.ObserveZip("failed")
			continue
		}
		metrics.ObserveZip("ok")
		summary.Items += r.Observations
		summary.Quarantined += r.Quarantined
		summary.Alerts += r.Alerts
		summary.CatFailures += len(r.CategoryFailures)
	}
	summary.OK = len(results) > 0 && summary.ZipFailures < len(results)
	summary.Duration = c.clock.Now().Sub(started)

	if summary.OK {
		c.publishSnapshot(ctx)
	}
	c.housekeep(ctx)

	if err := c.store.RecordCycle(ctx, summary); err != nil {
		c.logger.Error("cycle record failed", zap.Error(err))
	}
	metrics.ObserveCycle(summary.OK, summary.Duration)

	if summary.OK && c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			c.logger.Warn("healthcheck ping failed", zap.Error(err))
		}
	}

	c.logger.Info("cycle finished",
		zap.Bool("ok", summary.OK),
		zap.Int("zips", summary.Zips),
		zap.Int("zip_failures", summary.ZipFailures),
		zap.Int("items", summary.Items),
		zap.Int("quarantined", summary.Quarantined),
		zap.Int("alerts", summary.Alerts),
		zap.Int("category_failures", summary.CatFailures),
		zap.Duration("duration", summary.Duration),
	)
	return summary, results
}

// collect runs the ZIP workers with a channel semaphore bounding the number
// simultaneously holding the shared page-reader resource.
func (c *Coordinator) collect(ctx context.Context, zips []string, categories []monitor.Category) []monitor.ZipResult {
	sem := make(chan struct{}, c.cfg.Concurrency)
	results := make([]monitor.ZipResult, len(zips))

	var wg sync.WaitGroup
	for i, zip := range zips {
		wg.Add(1)
		go func(slot int, zip string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[slot] = monitor.ZipResult{Zip: zip, Failed: true, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			results[slot] = c.runner.RunForZip(ctx, zip, categories)
		}(i, zip)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) publishSnapshot(ctx context.Context) {
	states, err := c.store.ListLatest(ctx)
	if err != nil {
		c.logger.Error("latest state read failed", zap.Error(err))
		return
	}
	// The export is derived and regenerable; a failed publish never
	// invalidates the history already persisted.
	if err := c.publisher.Publish(ctx, states); err != nil {
		c.logger.Error("snapshot publish failed", zap.Error(err))
	}
}

func (c *Coordinator) housekeep(ctx context.Context) {
	if c.cfg.QuarantineRetention <= 0 {
		return
	}
	cutoff := c.clock.Now().Add(-c.cfg.QuarantineRetention)
	purged, err := c.store.PurgeQuarantineBefore(ctx, cutoff)
	if err != nil {
		c.logger.Error("quarantine purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		c.logger.Info("quarantine purged", zap.Int64("entries", purged))
	}
}

// OrderZips sorts ZIPs so the ones whose last success is oldest run first;
// ZIPs with no recorded success run last in their given order.
func OrderZips(zips []string, lastSuccess map[string]time.Time) []string {
	ordered := make([]string, len(zips))
	copy(ordered, zips)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, iOK := lastSuccess[ordered[i]]
		tj, jOK := lastSuccess[ordered[j]]
		if iOK != jOK {
			return iOK
		}
		return ti.Before(tj)
	})
	return ordered
}
