// Package detect decides when a new observation is an alert-worthy
// transition against the stored latest state.
package detect

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"clearancewatch/internal/monitor"
)

const shardCount = 64

// Config carries the alerting thresholds.
type Config struct {
	// PctDropThreshold is the relative drop that fires an alert (default 0.25).
	PctDropThreshold float64
	// AbsoluteDropByCategory maps category name to a minimum absolute drop.
	AbsoluteDropByCategory map[string]monitor.Cents
}

// Detector runs the per-(store, sku) state machine. The read-modify-write
// on latest state for a given key is serialized through sharded locks so
// the monotonicity invariant holds under concurrent workers.
type Detector struct {
	store  monitor.Store
	idGen  monitor.IDGenerator
	cfg    Config
	logger *zap.Logger
	shards [shardCount]sync.Mutex
}

// New constructs a Detector.
func New(store monitor.Store, idGen monitor.IDGenerator, cfg Config, logger *zap.Logger) *Detector {
	if cfg.PctDropThreshold <= 0 {
		cfg.PctDropThreshold = 0.25
	}
	if len(cfg.AbsoluteDropByCategory) > 0 {
		// Category keys arrive lowercased from config; observations carry
		// title-cased names.
		normalized := make(map[string]monitor.Cents, len(cfg.AbsoluteDropByCategory))
		for name, drop := range cfg.AbsoluteDropByCategory {
			normalized[strings.ToLower(name)] = drop
		}
		cfg.AbsoluteDropByCategory = normalized
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		store:  store,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
}

// Detect compares obs against the stored baseline, overwrites the baseline,
// and returns an alert event when a qualifying transition occurred. An
// observation not newer than the stored state is a no-op.
func (d *Detector) Detect(ctx context.Context, obs monitor.Observation) (*monitor.AlertEvent, error) {
	lock := &d.shards[shardIndex(obs.Key())]
	lock.Lock()
	defer lock.Unlock()

	prior, seen, err := d.store.GetLatest(ctx, obs.StoreID, obs.SKU)
	if err != nil {
		return nil, fmt.Errorf("load latest state: %w", err)
	}

	if seen && !obs.ObservedAt.After(prior.ObservedAt) {
		d.logger.Debug("stale observation ignored",
			zap.String("store_id", obs.StoreID),
			zap.String("sku", obs.SKU),
			zap.Time("observed_at", obs.ObservedAt),
			zap.Time("baseline_at", prior.ObservedAt),
		)
		return nil, nil
	}

	var event *monitor.AlertEvent
	if seen {
		if trigger, ok := d.classify(prior, obs); ok {
			event, err = d.buildEvent(trigger, prior, obs)
			if err != nil {
				return nil, err
			}
		}
	}

	// The baseline always advances, alert or not: later comparisons use
	// the latest observation, never the first-ever one.
	if err := d.store.PutLatest(ctx, monitor.FromObservation(obs)); err != nil {
		return nil, fmt.Errorf("store latest state: %w", err)
	}
	return event, nil
}

// classify applies the alert rules in priority order: first clearance is
// the rarer, higher-value signal and wins over price-based rules.
func (d *Detector) classify(prior monitor.LatestState, obs monitor.Observation) (monitor.TriggerKind, bool) {
	if !prior.Clearance && obs.Clearance {
		return monitor.TriggerFirstClearance, true
	}
	if float64(obs.Price) <= float64(prior.Price)*(1-d.cfg.PctDropThreshold) {
		return monitor.TriggerPctDrop, true
	}
	if abs, ok := d.cfg.AbsoluteDropByCategory[strings.ToLower(obs.Category)]; ok && prior.Price-obs.Price >= abs {
		return monitor.TriggerAbsoluteDrop, true
	}
	return "", false
}

func (d *Detector) buildEvent(trigger monitor.TriggerKind, prior monitor.LatestState, obs monitor.Observation) (*monitor.AlertEvent, error) {
	id, err := d.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("alert id: %w", err)
	}
	return &monitor.AlertEvent{
		ID:             id,
		Retailer:       obs.Retailer,
		StoreID:        obs.StoreID,
		Zip:            obs.Zip,
		SKU:            obs.SKU,
		Title:          obs.Title,
		Trigger:        trigger,
		OldPrice:       prior.Price,
		NewPrice:       obs.Price,
		PriceWas:       obs.PriceWas,
		PctOff:         obs.PctOff,
		ProductURL:     obs.ProductURL,
		CreatedAt:      obs.ObservedAt,
		DeliveryStatus: monitor.DeliveryPending,
	}, nil
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}
