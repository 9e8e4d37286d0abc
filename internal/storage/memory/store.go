// Package memory implements the persistence interfaces with in-process
// maps, for tests and DB-less local runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clearancewatch/internal/monitor"
)

// Store keeps all history and derived state in memory.
type Store struct {
	mu           sync.RWMutex
	observations []monitor.Observation
	quarantine   []monitor.QuarantineEntry
	latest       map[string]monitor.LatestState
	alerts       map[string]monitor.AlertEvent
	alertOrder   []string
	cycles       []monitor.CycleSummary
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		latest: make(map[string]monitor.LatestState),
		alerts: make(map[string]monitor.AlertEvent),
	}
}

// InsertObservation appends to the immutable history.
func (s *Store) InsertObservation(_ context.Context, obs monitor.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, obs)
	return nil
}

// InsertQuarantine appends a rejected card.
func (s *Store) InsertQuarantine(_ context.Context, entry monitor.QuarantineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantine = append(s.quarantine, entry)
	return nil
}

// GetLatest returns the stored baseline for (storeID, sku).
func (s *Store) GetLatest(_ context.Context, storeID, sku string) (monitor.LatestState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.latest[storeID+"\x00"+sku]
	return state, ok, nil
}

// PutLatest overwrites the baseline.
func (s *Store) PutLatest(_ context.Context, state monitor.LatestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[state.StoreID+"\x00"+state.SKU] = state
	return nil
}

// ListLatest returns all baselines.
func (s *Store) ListLatest(_ context.Context) ([]monitor.LatestState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make([]monitor.LatestState, 0, len(s.latest))
	for _, state := range s.latest {
		states = append(states, state)
	}
	return states, nil
}

// InsertAlert stores a new alert event.
func (s *Store) InsertAlert(_ context.Context, event monitor.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[event.ID]; exists {
		return fmt.Errorf("alert %s already recorded", event.ID)
	}
	s.alerts[event.ID] = event
	s.alertOrder = append(s.alertOrder, event.ID)
	return nil
}

// UpdateAlertDelivery records the delivery outcome.
func (s *Store) UpdateAlertDelivery(_ context.Context, alertID string, status monitor.DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.alerts[alertID]
	if !ok {
		return fmt.Errorf("alert %s not found", alertID)
	}
	event.DeliveryStatus = status
	s.alerts[alertID] = event
	return nil
}

// RecordCycle appends a cycle summary.
func (s *Store) RecordCycle(_ context.Context, summary monitor.CycleSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, summary)
	return nil
}

// LastCycle returns the most recently recorded cycle summary.
func (s *Store) LastCycle(_ context.Context) (monitor.CycleSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cycles) == 0 {
		return monitor.CycleSummary{}, false, nil
	}
	return s.cycles[len(s.cycles)-1], true, nil
}

// PurgeQuarantineBefore drops quarantine entries older than cutoff.
func (s *Store) PurgeQuarantineBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.quarantine[:0]
	var purged int64
	for _, entry := range s.quarantine {
		if entry.ObservedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, entry)
	}
	s.quarantine = kept
	return purged, nil
}

// Observations returns a copy of the history (test helper).
func (s *Store) Observations() []monitor.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Observation, len(s.observations))
	copy(out, s.observations)
	return out
}

// Quarantine returns a copy of the quarantine entries (test helper).
func (s *Store) Quarantine() []monitor.QuarantineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.QuarantineEntry, len(s.quarantine))
	copy(out, s.quarantine)
	return out
}

// Alerts returns alert events in insertion order (test helper).
func (s *Store) Alerts() []monitor.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.AlertEvent, 0, len(s.alertOrder))
	for _, id := range s.alertOrder {
		out = append(out, s.alerts[id])
	}
	return out
}

// Cycles returns recorded cycle summaries (test helper).
func (s *Store) Cycles() []monitor.CycleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.CycleSummary, len(s.cycles))
	copy(out, s.cycles)
	return out
}
