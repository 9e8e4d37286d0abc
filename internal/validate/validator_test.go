package validate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/retailer"
	"clearancewatch/internal/validate"
)

func newValidator(t *testing.T) *validate.Validator {
	t.Helper()
	profile, err := retailer.Lookup("lowes")
	require.NoError(t, err)
	return validate.New(validate.Config{}, profile)
}

func cardContext() validate.CardContext {
	return validate.CardContext{
		Store:      monitor.StoreContext{StoreID: "0595", StoreName: "Atlanta, GA"},
		Zip:        "30301",
		Category:   "Tools",
		ObservedAt: time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC),
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	card := monitor.RawCard{
		SKU:           "5001844889",
		Title:         "  Cordless Drill  ",
		PriceText:     "$74.99",
		WasPriceText:  "$99.99",
		Availability:  "In Stock",
		ProductURL:    "https://www.lowes.com/pd/Cordless-Drill/5001844889",
		ClearanceText: "CLEARANCE",
	}

	obs, quarantine := v.Validate(card, cardContext())
	require.Nil(t, quarantine)
	require.NotNil(t, obs)
	require.Equal(t, "lowes", obs.Retailer)
	require.Equal(t, "0595", obs.StoreID)
	require.Equal(t, "Cordless Drill", obs.Title)
	require.Equal(t, monitor.Cents(7499), obs.Price)
	require.Equal(t, monitor.Cents(9999), obs.PriceWas)
	require.InDelta(t, 0.25, obs.PctOff, 1e-9)
	require.True(t, obs.Clearance)
}

func TestValidateSKUFallbackFromURL(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	card := monitor.RawCard{
		Title:      "Drill",
		PriceText:  "$74.99",
		ProductURL: "https://www.lowes.com/pd/Cordless-Drill/5001844889",
	}

	obs, quarantine := v.Validate(card, cardContext())
	require.Nil(t, quarantine)
	require.Equal(t, "5001844889", obs.SKU)
}

func TestValidateRejections(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	base := monitor.RawCard{
		SKU:        "5001844889",
		Title:      "Drill",
		PriceText:  "$74.99",
		ProductURL: "https://www.lowes.com/pd/Cordless-Drill/5001844889",
	}

	tests := []struct {
		name   string
		mutate func(*monitor.RawCard, *validate.CardContext)
		reason string
	}{
		{"missing store", func(_ *monitor.RawCard, cc *validate.CardContext) { cc.Store.StoreID = "" }, validate.ReasonStoreMissing},
		{"missing sku", func(c *monitor.RawCard, _ *validate.CardContext) { c.SKU = ""; c.ProductURL = "https://www.lowes.com/" }, validate.ReasonSKUMissing},
		{"missing price", func(c *monitor.RawCard, _ *validate.CardContext) { c.PriceText = "   " }, validate.ReasonPriceMissing},
		{"unparseable price", func(c *monitor.RawCard, _ *validate.CardContext) { c.PriceText = "See price in cart" }, validate.ReasonPriceUnparseable},
		{"price too high", func(c *monitor.RawCard, _ *validate.CardContext) { c.PriceText = "$2,000,000.00" }, validate.ReasonPriceOutOfRange},
		{"was below price", func(c *monitor.RawCard, _ *validate.CardContext) { c.WasPriceText = "$50.00" }, validate.ReasonWasBelowPrice},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			card := base
			cc := cardContext()
			tc.mutate(&card, &cc)

			obs, quarantine := v.Validate(card, cc)
			require.Nil(t, obs)
			require.NotNil(t, quarantine)
			require.Equal(t, tc.reason, quarantine.Reason)
			require.Equal(t, cc.ObservedAt, quarantine.ObservedAt)
		})
	}
}

func TestValidateBounds(t *testing.T) {
	t.Parallel()

	profile, err := retailer.Lookup("lowes")
	require.NoError(t, err)
	v := validate.New(validate.Config{MinPrice: 100, MaxPrice: 10000}, profile)
	cc := cardContext()

	card := monitor.RawCard{SKU: "1", PriceText: "$1.00"}
	obs, _ := v.Validate(card, cc)
	require.NotNil(t, obs, "min bound is inclusive")

	card.PriceText = "$100.00"
	obs, _ = v.Validate(card, cc)
	require.NotNil(t, obs, "max bound is inclusive")

	card.PriceText = "$0.99"
	_, quarantine := v.Validate(card, cc)
	require.NotNil(t, quarantine)

	card.PriceText = "$100.01"
	_, quarantine = v.Validate(card, cc)
	require.NotNil(t, quarantine)
}

func TestUnparseableWasPriceIsIgnored(t *testing.T) {
	t.Parallel()

	v := newValidator(t)
	card := monitor.RawCard{
		SKU:          "5001844889",
		PriceText:    "$74.99",
		WasPriceText: "was around",
	}

	obs, quarantine := v.Validate(card, cardContext())
	require.Nil(t, quarantine)
	require.Equal(t, monitor.Cents(0), obs.PriceWas)
	require.InDelta(t, 0, obs.PctOff, 1e-9)
}
