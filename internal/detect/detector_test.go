package detect_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clearancewatch/internal/detect"
	"clearancewatch/internal/monitor"
	"clearancewatch/internal/storage/memory"
)

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) NewID() (string, error) {
	return fmt.Sprintf("alert-%d", g.n.Add(1)), nil
}

func newDetector(t *testing.T, cfg detect.Config) (*detect.Detector, *memory.Store) {
	t.Helper()
	store := memory.New()
	return detect.New(store, &seqIDGen{}, cfg, nil), store
}

func obsAt(price monitor.Cents, clearance bool, at time.Time) monitor.Observation {
	return monitor.Observation{
		Retailer:   "lowes",
		StoreID:    "0595",
		Zip:        "30301",
		SKU:        "5001844889",
		Title:      "Cordless Drill",
		Category:   "Tools",
		Price:      price,
		Clearance:  clearance,
		ObservedAt: at,
	}
}

var t0 = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestFirstSightNeverAlerts(t *testing.T) {
	t.Parallel()

	d, store := newDetector(t, detect.Config{})
	event, err := d.Detect(context.Background(), obsAt(100, true, t0))
	require.NoError(t, err)
	require.Nil(t, event, "first sighting sets the baseline, even on clearance")

	state, ok, err := store.GetLatest(context.Background(), "0595", "5001844889")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, monitor.Cents(100), state.Price)
}

func TestStaleObservationIsNoOp(t *testing.T) {
	t.Parallel()

	d, store := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	// Same timestamp: not newer, baseline unchanged, no alert.
	event, err := d.Detect(ctx, obsAt(1, false, t0))
	require.NoError(t, err)
	require.Nil(t, event)

	// Earlier timestamp: same story.
	event, err = d.Detect(ctx, obsAt(1, false, t0.Add(-time.Hour)))
	require.NoError(t, err)
	require.Nil(t, event)

	state, _, err := store.GetLatest(ctx, "0595", "5001844889")
	require.NoError(t, err)
	require.Equal(t, monitor.Cents(10000), state.Price)
}

func TestPctDropThreshold(t *testing.T) {
	t.Parallel()

	d, _ := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	// $100 -> $76: a 24% drop stays quiet at the default 25% threshold.
	event, err := d.Detect(ctx, obsAt(7600, false, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.Nil(t, event)

	// $76 -> higher baseline already advanced; rebuild from scratch.
	d2, _ := newDetector(t, detect.Config{})
	_, err = d2.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	// $100 -> $74: crosses the threshold.
	event, err = d2.Detect(ctx, obsAt(7400, false, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, monitor.TriggerPctDrop, event.Trigger)
	require.Equal(t, monitor.Cents(10000), event.OldPrice)
	require.Equal(t, monitor.Cents(7400), event.NewPrice)

	// Exactly 25% fires: price <= prior * 0.75.
	d3, _ := newDetector(t, detect.Config{})
	_, err = d3.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)
	event, err = d3.Detect(ctx, obsAt(7500, false, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, event)
}

func TestFirstClearanceWinsOverPctDrop(t *testing.T) {
	t.Parallel()

	d, _ := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	// $100 -> $70 and newly clearance: both rules match, clearance wins.
	event, err := d.Detect(ctx, obsAt(7000, true, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, monitor.TriggerFirstClearance, event.Trigger)
}

func TestClearanceAlreadySetDoesNotRefire(t *testing.T) {
	t.Parallel()

	d, _ := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, true, t0))
	require.NoError(t, err)

	event, err := d.Detect(ctx, obsAt(9900, true, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.Nil(t, event, "clearance->clearance with a small drop is quiet")
}

func TestAbsoluteDropByCategory(t *testing.T) {
	t.Parallel()

	d, _ := newDetector(t, detect.Config{
		AbsoluteDropByCategory: map[string]monitor.Cents{"Tools": 2000},
	})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	// $20 drop on a $100 item: below pct threshold, at the absolute one.
	event, err := d.Detect(ctx, obsAt(8000, false, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, monitor.TriggerAbsoluteDrop, event.Trigger)
}

func TestAbsoluteDropIgnoresOtherCategories(t *testing.T) {
	t.Parallel()

	d, _ := newDetector(t, detect.Config{
		AbsoluteDropByCategory: map[string]monitor.Cents{"Appliances": 2000},
	})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	event, err := d.Detect(ctx, obsAt(8000, false, t0.Add(time.Hour)))
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestBaselineAdvancesWithoutAlert(t *testing.T) {
	t.Parallel()

	d, store := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)
	_, err = d.Detect(ctx, obsAt(9000, false, t0.Add(time.Hour)))
	require.NoError(t, err)

	// The next comparison runs against $90, not $100: a later $70 is a
	// 22% drop from the advanced baseline and stays quiet.
	event, err := d.Detect(ctx, obsAt(7000, false, t0.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Nil(t, event)

	state, _, err := store.GetLatest(ctx, "0595", "5001844889")
	require.NoError(t, err)
	require.Equal(t, monitor.Cents(7000), state.Price)
}

func TestConcurrentDetectSerializesPerKey(t *testing.T) {
	t.Parallel()

	d, store := newDetector(t, detect.Config{})
	ctx := context.Background()

	_, err := d.Detect(ctx, obsAt(10000, false, t0))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var alerts atomic.Int64
	errs := make(chan error, 16)
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event, err := d.Detect(ctx, obsAt(5000, false, t0.Add(time.Duration(i)*time.Minute)))
			if err != nil {
				errs <- err
				return
			}
			if event != nil {
				alerts.Add(1)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int64(1), alerts.Load(), "only the first qualifying transition alerts")

	state, _, err := store.GetLatest(ctx, "0595", "5001844889")
	require.NoError(t, err)
	require.Equal(t, monitor.Cents(5000), state.Price)
}
