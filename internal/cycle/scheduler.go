package cycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clearancewatch/internal/monitor"
)

// Scheduler runs cycles on an interval, reordering ZIPs between cycles so
// the stalest store contexts are revisited first.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	clock       monitor.Clock
	logger      *zap.Logger
	lastSuccess map[string]time.Time
}

// NewScheduler constructs a Scheduler.
func NewScheduler(coordinator *Coordinator, interval time.Duration, clock monitor.Clock, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		coordinator: coordinator,
		interval:    interval,
		clock:       clock,
		logger:      logger,
		lastSuccess: make(map[string]time.Time),
	}
}

// RunOnce executes a single cycle and prints the summary line.
func (s *Scheduler) RunOnce(ctx context.Context, zips []string, categories []monitor.Category) monitor.CycleSummary {
	ordered := OrderZips(zips, s.lastSuccess)
	summary, results := s.coordinator.RunCycleDetailed(ctx, ordered, categories)
	s.rememberSuccesses(results)
	fmt.Println(summary.Line())
	return summary
}

// Run executes cycles until the context finishes.
func (s *Scheduler) Run(ctx context.Context, zips []string, categories []monitor.Category) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx, zips, categories)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, zips, categories)
		}
	}
}

func (s *Scheduler) rememberSuccesses(results []monitor.ZipResult) {
	now := s.clock.Now()
	for _, r := range results {
		if !r.Failed {
			s.lastSuccess[r.Zip] = now
		}
	}
}
