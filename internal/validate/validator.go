// Package validate classifies raw card records into observations or
// quarantine entries. The validator never writes to storage; callers
// persist whichever variant comes back.
package validate

import (
	"strings"
	"time"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/retailer"
)

// Quarantine reasons recorded with rejected cards.
const (
	ReasonPriceMissing     = "price_missing"
	ReasonPriceUnparseable = "price_unparseable"
	ReasonPriceOutOfRange  = "price_out_of_range"
	ReasonWasBelowPrice    = "was_below_price"
	ReasonSKUMissing       = "sku_missing"
	ReasonStoreMissing     = "store_missing"
)

// Config carries the price sanity bounds. Bounds are configuration, not
// hardcoded; zero values fall back to $0.01..$100,000.00.
type Config struct {
	MinPrice monitor.Cents
	MaxPrice monitor.Cents
}

// Validator enforces numeric and identity invariants on raw cards.
type Validator struct {
	cfg     Config
	profile *retailer.Profile
}

// New constructs a Validator for one retailer profile.
func New(cfg Config, profile *retailer.Profile) *Validator {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 1
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 100_000_00
	}
	return &Validator{cfg: cfg, profile: profile}
}

// CardContext carries the scrape context a card was observed under.
type CardContext struct {
	Store      monitor.StoreContext
	Zip        string
	Category   string
	ObservedAt time.Time
}

// Validate classifies one card. Exactly one of the two returns is non-nil.
func (v *Validator) Validate(card monitor.RawCard, cc CardContext) (*monitor.Observation, *monitor.QuarantineEntry) {
	sku := strings.TrimSpace(card.SKU)
	if sku == "" {
		sku = v.profile.ExtractSKU(card.ProductURL)
	}

	reject := func(reason string) *monitor.QuarantineEntry {
		return &monitor.QuarantineEntry{
			Retailer:    v.profile.Name,
			StoreID:     cc.Store.StoreID,
			SKU:         sku,
			Zip:         cc.Zip,
			Category:    cc.Category,
			RawPrice:    card.PriceText,
			RawPriceWas: card.WasPriceText,
			Reason:      reason,
			ObservedAt:  cc.ObservedAt,
		}
	}

	if cc.Store.StoreID == "" {
		return nil, reject(ReasonStoreMissing)
	}
	if sku == "" {
		return nil, reject(ReasonSKUMissing)
	}
	if strings.TrimSpace(card.PriceText) == "" {
		return nil, reject(ReasonPriceMissing)
	}

	price, err := monitor.ParseCents(card.PriceText)
	if err != nil {
		return nil, reject(ReasonPriceUnparseable)
	}
	if price < v.cfg.MinPrice || price > v.cfg.MaxPrice {
		return nil, reject(ReasonPriceOutOfRange)
	}

	var was monitor.Cents
	if strings.TrimSpace(card.WasPriceText) != "" {
		parsed, werr := monitor.ParseCents(card.WasPriceText)
		if werr == nil {
			was = parsed
		}
		if was > 0 && was < price {
			return nil, reject(ReasonWasBelowPrice)
		}
	}

	return &monitor.Observation{
		Retailer:     v.profile.Name,
		StoreID:      cc.Store.StoreID,
		StoreName:    cc.Store.StoreName,
		Zip:          cc.Zip,
		SKU:          sku,
		Title:        strings.TrimSpace(card.Title),
		Category:     cc.Category,
		Price:        price,
		PriceWas:     was,
		PctOff:       monitor.PctOff(price, was),
		Availability: strings.TrimSpace(card.Availability),
		ImageURL:     card.ImageURL,
		ProductURL:   card.ProductURL,
		Clearance:    isClearance(card.ClearanceText),
		ObservedAt:   cc.ObservedAt,
	}, nil
}

func isClearance(badge string) bool {
	return strings.Contains(strings.ToLower(badge), "clearance")
}
