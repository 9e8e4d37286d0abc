package monitor

import (
	"context"
	"time"
)

// PageReader renders retailer pages and extracts structured card records.
// Implementations own browser/HTTP mechanics; the pipeline only sees cards.
type PageReader interface {
	// SetStore scopes the session to the store serving the given ZIP.
	SetStore(ctx context.Context, zip string) (StoreContext, error)
	// ListCards returns the cards on one page of a category listing. An
	// empty slice means pagination is exhausted. A *SelectorMissError
	// signals a structural page change and must not be retried.
	ListCards(ctx context.Context, categoryURL string, page int) ([]RawCard, error)
}

// AlertSink delivers alert events. A failed delivery is recorded but not
// retried within the same cycle.
type AlertSink interface {
	Send(ctx context.Context, event AlertEvent) error
}

// Store persists the durable history plus the derived latest-state view.
type Store interface {
	InsertObservation(ctx context.Context, obs Observation) error
	InsertQuarantine(ctx context.Context, entry QuarantineEntry) error
	GetLatest(ctx context.Context, storeID, sku string) (LatestState, bool, error)
	PutLatest(ctx context.Context, state LatestState) error
	ListLatest(ctx context.Context) ([]LatestState, error)
	InsertAlert(ctx context.Context, event AlertEvent) error
	UpdateAlertDelivery(ctx context.Context, alertID string, status DeliveryStatus) error
	RecordCycle(ctx context.Context, summary CycleSummary) error
	LastCycle(ctx context.Context) (CycleSummary, bool, error)
	PurgeQuarantineBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SnapshotPublisher exports the denormalized latest-state view. The export
// is a derived, regenerable artifact; failures never invalidate history.
type SnapshotPublisher interface {
	Publish(ctx context.Context, states []LatestState) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces alert/cycle IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
