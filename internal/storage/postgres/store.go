// Package postgres provides Postgres-backed persistence for the monitor.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clearancewatch/internal/monitor"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists observations, latest state, quarantine, alerts, and
// cycle summaries in Postgres. Prices are stored as integer cents.
type Store struct {
	pool pool
}

// New creates a Store from the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS observations (
	id BIGSERIAL PRIMARY KEY,
	observed_at TIMESTAMPTZ NOT NULL,
	retailer TEXT NOT NULL,
	store_id TEXT NOT NULL,
	store_name TEXT,
	zip TEXT,
	sku TEXT NOT NULL,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	price_cents BIGINT NOT NULL,
	price_was_cents BIGINT,
	pct_off DOUBLE PRECISION,
	availability TEXT,
	image_url TEXT,
	product_url TEXT NOT NULL,
	clearance BOOLEAN NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ix_observations_store_sku_ts
	ON observations (store_id, sku, observed_at)`,
	`CREATE TABLE IF NOT EXISTS latest_state (
	store_id TEXT NOT NULL,
	sku TEXT NOT NULL,
	retailer TEXT NOT NULL,
	store_name TEXT,
	zip TEXT,
	title TEXT NOT NULL,
	category TEXT NOT NULL,
	price_cents BIGINT NOT NULL,
	price_was_cents BIGINT,
	pct_off DOUBLE PRECISION,
	availability TEXT,
	image_url TEXT,
	product_url TEXT NOT NULL,
	clearance BOOLEAN NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (store_id, sku)
)`,
	`CREATE TABLE IF NOT EXISTS quarantine (
	id BIGSERIAL PRIMARY KEY,
	observed_at TIMESTAMPTZ NOT NULL,
	retailer TEXT NOT NULL,
	store_id TEXT,
	sku TEXT,
	zip TEXT,
	category TEXT,
	raw_price TEXT,
	raw_price_was TEXT,
	reason TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	retailer TEXT NOT NULL,
	store_id TEXT NOT NULL,
	zip TEXT,
	sku TEXT NOT NULL,
	title TEXT,
	trigger_kind TEXT NOT NULL,
	old_price_cents BIGINT,
	new_price_cents BIGINT,
	price_was_cents BIGINT,
	pct_off DOUBLE PRECISION,
	product_url TEXT,
	delivery_status TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cycles (
	id BIGSERIAL PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	retailer TEXT NOT NULL,
	zips INT NOT NULL,
	zip_failures INT NOT NULL,
	items INT NOT NULL,
	quarantined INT NOT NULL,
	alerts INT NOT NULL,
	category_failures INT NOT NULL,
	duration_s DOUBLE PRECISION NOT NULL,
	ok BOOLEAN NOT NULL
)`,
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// InsertObservation appends one row to the immutable history.
func (s *Store) InsertObservation(ctx context.Context, obs monitor.Observation) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO observations (
	observed_at, retailer, store_id, store_name, zip, sku, title, category,
	price_cents, price_was_cents, pct_off, availability, image_url, product_url, clearance
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		obs.ObservedAt,
		obs.Retailer,
		obs.StoreID,
		obs.StoreName,
		obs.Zip,
		obs.SKU,
		obs.Title,
		obs.Category,
		int64(obs.Price),
		nullCents(obs.PriceWas),
		obs.PctOff,
		obs.Availability,
		obs.ImageURL,
		obs.ProductURL,
		obs.Clearance,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// InsertQuarantine records one rejected card.
func (s *Store) InsertQuarantine(ctx context.Context, entry monitor.QuarantineEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO quarantine (
	observed_at, retailer, store_id, sku, zip, category, raw_price, raw_price_was, reason
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ObservedAt,
		entry.Retailer,
		entry.StoreID,
		entry.SKU,
		entry.Zip,
		entry.Category,
		entry.RawPrice,
		entry.RawPriceWas,
		entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert quarantine: %w", err)
	}
	return nil
}

const latestColumns = `store_id, sku, retailer, store_name, zip, title, category,
	price_cents, price_was_cents, pct_off, availability, image_url, product_url, clearance, observed_at`

// GetLatest loads the comparison baseline for (storeID, sku).
func (s *Store) GetLatest(ctx context.Context, storeID, sku string) (monitor.LatestState, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+latestColumns+`
FROM latest_state
WHERE store_id = $1 AND sku = $2`, storeID, sku)

	state, err := scanLatest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.LatestState{}, false, nil
	}
	if err != nil {
		return monitor.LatestState{}, false, fmt.Errorf("get latest state: %w", err)
	}
	return state, true, nil
}

// PutLatest upserts the comparison baseline.
func (s *Store) PutLatest(ctx context.Context, state monitor.LatestState) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO latest_state (
	store_id, sku, retailer, store_name, zip, title, category,
	price_cents, price_was_cents, pct_off, availability, image_url, product_url, clearance, observed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (store_id, sku) DO UPDATE SET
	retailer = EXCLUDED.retailer,
	store_name = EXCLUDED.store_name,
	zip = EXCLUDED.zip,
	title = EXCLUDED.title,
	category = EXCLUDED.category,
	price_cents = EXCLUDED.price_cents,
	price_was_cents = EXCLUDED.price_was_cents,
	pct_off = EXCLUDED.pct_off,
	availability = EXCLUDED.availability,
	image_url = EXCLUDED.image_url,
	product_url = EXCLUDED.product_url,
	clearance = EXCLUDED.clearance,
	observed_at = EXCLUDED.observed_at`,
		state.StoreID,
		state.SKU,
		state.Retailer,
		state.StoreName,
		state.Zip,
		state.Title,
		state.Category,
		int64(state.Price),
		nullCents(state.PriceWas),
		state.PctOff,
		state.Availability,
		state.ImageURL,
		state.ProductURL,
		state.Clearance,
		state.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("put latest state: %w", err)
	}
	return nil
}

// ListLatest returns every baseline row, ordered for a stable export.
func (s *Store) ListLatest(ctx context.Context) ([]monitor.LatestState, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+latestColumns+`
FROM latest_state
ORDER BY store_id, sku`)
	if err != nil {
		return nil, fmt.Errorf("list latest state: %w", err)
	}
	defer rows.Close()

	var states []monitor.LatestState
	for rows.Next() {
		state, err := scanLatest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan latest state: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list latest state: %w", err)
	}
	return states, nil
}

// InsertAlert stores a new alert event with its pending delivery status.
func (s *Store) InsertAlert(ctx context.Context, event monitor.AlertEvent) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO alerts (
	id, created_at, retailer, store_id, zip, sku, title, trigger_kind,
	old_price_cents, new_price_cents, price_was_cents, pct_off, product_url, delivery_status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		event.ID,
		event.CreatedAt,
		event.Retailer,
		event.StoreID,
		event.Zip,
		event.SKU,
		event.Title,
		string(event.Trigger),
		int64(event.OldPrice),
		int64(event.NewPrice),
		nullCents(event.PriceWas),
		event.PctOff,
		event.ProductURL,
		string(event.DeliveryStatus),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// UpdateAlertDelivery records the delivery outcome for one alert.
func (s *Store) UpdateAlertDelivery(ctx context.Context, alertID string, status monitor.DeliveryStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET delivery_status = $1 WHERE id = $2`,
		string(status), alertID)
	if err != nil {
		return fmt.Errorf("update alert delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found", alertID)
	}
	return nil
}

// RecordCycle appends one cycle summary.
func (s *Store) RecordCycle(ctx context.Context, summary monitor.CycleSummary) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO cycles (
	started_at, retailer, zips, zip_failures, items, quarantined, alerts,
	category_failures, duration_s, ok
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		summary.StartedAt,
		summary.Retailer,
		summary.Zips,
		summary.ZipFailures,
		summary.Items,
		summary.Quarantined,
		summary.Alerts,
		summary.CatFailures,
		summary.Duration.Seconds(),
		summary.OK,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// LastCycle returns the most recently recorded cycle summary.
func (s *Store) LastCycle(ctx context.Context) (monitor.CycleSummary, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT started_at, retailer, zips, zip_failures, items, quarantined, alerts,
	category_failures, duration_s, ok
FROM cycles
ORDER BY id DESC
LIMIT 1`)

	var (
		summary   monitor.CycleSummary
		durationS float64
	)
	err := row.Scan(
		&summary.StartedAt,
		&summary.Retailer,
		&summary.Zips,
		&summary.ZipFailures,
		&summary.Items,
		&summary.Quarantined,
		&summary.Alerts,
		&summary.CatFailures,
		&durationS,
		&summary.OK,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return monitor.CycleSummary{}, false, nil
	}
	if err != nil {
		return monitor.CycleSummary{}, false, fmt.Errorf("last cycle: %w", err)
	}
	summary.Duration = time.Duration(durationS * float64(time.Second))
	return summary, true, nil
}

// PurgeQuarantineBefore drops quarantine entries older than cutoff.
func (s *Store) PurgeQuarantineBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM quarantine WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge quarantine: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanLatest(row pgx.Row) (monitor.LatestState, error) {
	var (
		state    monitor.LatestState
		price    int64
		priceWas *int64
	)
	err := row.Scan(
		&state.StoreID,
		&state.SKU,
		&state.Retailer,
		&state.StoreName,
		&state.Zip,
		&state.Title,
		&state.Category,
		&price,
		&priceWas,
		&state.PctOff,
		&state.Availability,
		&state.ImageURL,
		&state.ProductURL,
		&state.Clearance,
		&state.ObservedAt,
	)
	if err != nil {
		return monitor.LatestState{}, err
	}
	state.Price = monitor.Cents(price)
	if priceWas != nil {
		state.PriceWas = monitor.Cents(*priceWas)
	}
	return state, nil
}

func nullCents(c monitor.Cents) *int64 {
	if c <= 0 {
		return nil
	}
	v := int64(c)
	return &v
}
