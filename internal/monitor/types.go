// Package monitor defines core types shared across subsystems.
package monitor

import (
	"fmt"
	"time"
)

// TriggerKind identifies which rule produced an alert.
type TriggerKind string

// Alert trigger values persisted with each alert event.
const (
	TriggerFirstClearance TriggerKind = "first_clearance"
	TriggerPctDrop        TriggerKind = "pct_drop"
	TriggerAbsoluteDrop   TriggerKind = "absolute_drop"
)

// DeliveryStatus tracks the outcome of an alert delivery attempt.
type DeliveryStatus string

// Delivery status values. An alert is created as pending and updated once
// after the single in-cycle delivery attempt.
const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// RawCard is the structured record the page reader extracts for one product
// card. All fields are raw text as rendered; the validator owns parsing.
type RawCard struct {
	SKU           string
	Title         string
	PriceText     string
	WasPriceText  string
	Availability  string
	ImageURL      string
	ProductURL    string
	ClearanceText string
}

// StoreContext identifies the physical store a ZIP resolves to. Prices and
// stock in subsequent category listings are scoped to this store.
type StoreContext struct {
	StoreID   string
	StoreName string
}

// Category is one catalog page to monitor.
type Category struct {
	Name string
	URL  string
}

// Observation is one validated price/availability reading. Observations are
// append-only: one row per scrape per (store, sku), never updated in place.
type Observation struct {
	Retailer     string
	StoreID      string
	StoreName    string
	Zip          string
	SKU          string
	Title        string
	Category     string
	Price        Cents
	PriceWas     Cents // zero when the card showed no was-price
	PctOff       float64
	Availability string
	ImageURL     string
	ProductURL   string
	Clearance    bool
	ObservedAt   time.Time
}

// Key returns the identity the change detector compares on.
func (o Observation) Key() string {
	return o.StoreID + "\x00" + o.SKU
}

// LatestState is the derived comparison baseline, one row per (store, sku).
// It is overwritten by every newer observation and never deleted.
type LatestState struct {
	Retailer     string
	StoreID      string
	StoreName    string
	Zip          string
	SKU          string
	Title        string
	Category     string
	Price        Cents
	PriceWas     Cents
	PctOff       float64
	Availability string
	ImageURL     string
	ProductURL   string
	Clearance    bool
	ObservedAt   time.Time
}

// FromObservation builds the latest-state row a new observation supersedes to.
func FromObservation(o Observation) LatestState {
	return LatestState{
		Retailer:     o.Retailer,
		StoreID:      o.StoreID,
		StoreName:    o.StoreName,
		Zip:          o.Zip,
		SKU:          o.SKU,
		Title:        o.Title,
		Category:     o.Category,
		Price:        o.Price,
		PriceWas:     o.PriceWas,
		PctOff:       o.PctOff,
		Availability: o.Availability,
		ImageURL:     o.ImageURL,
		ProductURL:   o.ProductURL,
		Clearance:    o.Clearance,
		ObservedAt:   o.ObservedAt,
	}
}

// QuarantineEntry records a card the validator rejected, kept for
// investigation rather than discarded.
type QuarantineEntry struct {
	Retailer    string
	StoreID     string
	SKU         string
	Zip         string
	Category    string
	RawPrice    string
	RawPriceWas string
	Reason      string
	ObservedAt  time.Time
}

// AlertEvent is created exactly once per qualifying transition per cycle.
type AlertEvent struct {
	ID             string
	Retailer       string
	StoreID        string
	Zip            string
	SKU            string
	Title          string
	Trigger        TriggerKind
	OldPrice       Cents
	NewPrice       Cents
	PriceWas       Cents
	PctOff         float64
	ProductURL     string
	CreatedAt      time.Time
	DeliveryStatus DeliveryStatus
}

// CategoryFailure records one category that could not be collected.
type CategoryFailure struct {
	Category string
	Reason   string
}

// ZipResult is the structured outcome of one ZIP's catalog pass.
type ZipResult struct {
	Zip              string
	StoreID          string
	StoreName        string
	Observations     int
	Quarantined      int
	Alerts           int
	CategoryFailures []CategoryFailure
	Failed           bool
	Err              error
}

// CycleSummary aggregates one full cycle across all ZIPs. Read-only after
// the cycle ends.
type CycleSummary struct {
	Retailer    string
	Zips        int
	ZipFailures int
	Items       int
	Quarantined int
	Alerts      int
	CatFailures int
	Duration    time.Duration
	StartedAt   time.Time
	OK          bool
}

// Line renders the one-line cycle report emitted after every cycle.
func (s CycleSummary) Line() string {
	verdict := "fail"
	if s.OK {
		verdict = "ok"
	}
	return fmt.Sprintf("cycle %s | retailer=%s | zips=%d | items=%d | alerts=%d | duration=%.1fs",
		verdict, s.Retailer, s.Zips, s.Items, s.Alerts, s.Duration.Seconds())
}
