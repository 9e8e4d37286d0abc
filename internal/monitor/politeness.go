package monitor

import (
	"context"
	"time"
)

// Pauser introduces randomized politeness delays between fetches so a
// scrape pass does not hammer the retailer. Bounds come from configuration.
type Pauser struct {
	min time.Duration
	max time.Duration
}

// NewPauser builds a Pauser for delays in [min, max].
func NewPauser(min, max time.Duration) *Pauser {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Pauser{min: min, max: max}
}

// Pause sleeps a random duration within the configured bounds, returning
// early if the context finishes.
func (p *Pauser) Pause(ctx context.Context) {
	delay := p.min + randomJitter(p.max-p.min)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
