// Package worker drives one ZIP's full catalog pass through the
// validate/detect/persist pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"clearancewatch/internal/detect"
	"clearancewatch/internal/metrics"
	"clearancewatch/internal/monitor"
	"clearancewatch/internal/validate"
)

// Config controls Worker behavior.
type Config struct {
	Retailer string
	// PageCap bounds pagination per category.
	PageCap int
	// StoreTimeout bounds each store-context acquisition attempt.
	StoreTimeout time.Duration
	// PageTimeout bounds each category page fetch attempt.
	PageTimeout time.Duration
}

// Worker executes the per-ZIP collection pipeline.
type Worker struct {
	reader    monitor.PageReader
	validator *validate.Validator
	detector  *detect.Detector
	store     monitor.Store
	sink      monitor.AlertSink
	retry     *monitor.RetryPolicy
	pauser    *monitor.Pauser
	clock     monitor.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	reader monitor.PageReader,
	validator *validate.Validator,
	detector *detect.Detector,
	store monitor.Store,
	sink monitor.AlertSink,
	retry *monitor.RetryPolicy,
	pauser *monitor.Pauser,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PageCap <= 0 {
		cfg.PageCap = 20
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 30 * time.Second
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		reader:    reader,
		validator: validator,
		detector:  detector,
		store:     store,
		sink:      sink,
		retry:     retry,
		pauser:    pauser,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunForZip collects every configured category for one ZIP. A store-context
// failure abandons the ZIP; a selector miss abandons only its category.
func (w *Worker) RunForZip(ctx context.Context, zip string, categories []monitor.Category) monitor.ZipResult {
	result := monitor.ZipResult{Zip: zip}

	sc, err := w.acquireStore(ctx, zip)
	if err != nil {
		w.logger.Warn("store context failed",
			zap.String("retailer", w.cfg.Retailer),
			zap.String("zip", zip),
			zap.Error(err),
		)
		result.Failed = true
		result.Err = &monitor.StoreContextError{Zip: zip, Err: err}
		return result
	}
	result.StoreID = sc.StoreID
	result.StoreName = sc.StoreName
	w.logger.Info("store context set",
		zap.String("retailer", w.cfg.Retailer),
		zap.String("zip", zip),
		zap.String("store_id", sc.StoreID),
		zap.String("store_name", sc.StoreName),
	)

	for _, category := range categories {
		w.pauser.Pause(ctx)
		if ctx.Err() != nil {
			result.Failed = true
			result.Err = ctx.Err()
			return result
		}
		if err := w.collectCategory(ctx, sc, zip, category, &result); err != nil {
			result.CategoryFailures = append(result.CategoryFailures, monitor.CategoryFailure{
				Category: category.Name,
				Reason:   err.Error(),
			})
			metrics.ObserveCategoryFailure(category.Name)
			w.logger.Warn("category failed",
				zap.String("zip", zip),
				zap.String("category", category.Name),
				zap.Error(err),
			)
		}
	}
	return result
}

func (w *Worker) acquireStore(ctx context.Context, zip string) (monitor.StoreContext, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.StoreTimeout)
		sc, err := w.reader.SetStore(attemptCtx, zip)
		cancel()
		if err == nil {
			return sc, nil
		}
		lastErr = err
		if !w.retry.ShouldRetry(err, attempt) {
			return monitor.StoreContext{}, lastErr
		}
		w.sleep(ctx, w.retry.Backoff(attempt))
		if ctx.Err() != nil {
			return monitor.StoreContext{}, ctx.Err()
		}
	}
}

// collectCategory paginates one category until an empty page or the page
// cap. Observations from earlier pages survive a later selector miss.
func (w *Worker) collectCategory(
	ctx context.Context,
	sc monitor.StoreContext,
	zip string,
	category monitor.Category,
	result *monitor.ZipResult,
) error {
	for page := 1; page <= w.cfg.PageCap; page++ {
		if page > 1 {
			w.pauser.Pause(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		cards, err := w.fetchPage(ctx, category, page)
		if err != nil {
			return err
		}
		if len(cards) == 0 {
			return nil
		}
		for _, card := range cards {
			w.handleCard(ctx, card, sc, zip, category, result)
		}
	}
	return nil
}

func (w *Worker) fetchPage(ctx context.Context, category monitor.Category, page int) ([]monitor.RawCard, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.PageTimeout)
		cards, err := w.reader.ListCards(attemptCtx, category.URL, page)
		cancel()
		if err == nil {
			return cards, nil
		}
		lastErr = err
		if !w.retry.ShouldRetry(err, attempt) {
			return nil, fmt.Errorf("page %d: %w", page, lastErr)
		}
		w.sleep(ctx, w.retry.Backoff(attempt))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (w *Worker) handleCard(
	ctx context.Context,
	card monitor.RawCard,
	sc monitor.StoreContext,
	zip string,
	category monitor.Category,
	result *monitor.ZipResult,
) {
	obs, quarantined := w.validator.Validate(card, validate.CardContext{
		Store:      sc,
		Zip:        zip,
		Category:   category.Name,
		ObservedAt: w.clock.Now(),
	})
	if quarantined != nil {
		if err := w.store.InsertQuarantine(ctx, *quarantined); err != nil {
			w.logger.Error("quarantine write failed",
				zap.String("sku", quarantined.SKU),
				zap.Error(err),
			)
			return
		}
		result.Quarantined++
		metrics.ObserveQuarantine(quarantined.Reason)
		return
	}

	if err := w.store.InsertObservation(ctx, *obs); err != nil {
		w.logger.Error("observation write failed",
			zap.String("store_id", obs.StoreID),
			zap.String("sku", obs.SKU),
			zap.Error(err),
		)
		return
	}
	result.Observations++
	metrics.ObserveCard(category.Name)

	event, err := w.detector.Detect(ctx, *obs)
	if err != nil {
		w.logger.Error("change detection failed",
			zap.String("store_id", obs.StoreID),
			zap.String("sku", obs.SKU),
			zap.Error(err),
		)
		return
	}
	if event == nil {
		return
	}
	w.deliverAlert(ctx, *event)
	result.Alerts++
}

// deliverAlert persists the event, attempts one delivery, and records the
// outcome. Delivery failures are never retried within the cycle.
func (w *Worker) deliverAlert(ctx context.Context, event monitor.AlertEvent) {
	if err := w.store.InsertAlert(ctx, event); err != nil {
		w.logger.Error("alert write failed", zap.String("alert_id", event.ID), zap.Error(err))
		return
	}
	metrics.ObserveAlert(string(event.Trigger))

	status := monitor.DeliveryDelivered
	if err := w.sink.Send(ctx, event); err != nil {
		status = monitor.DeliveryFailed
		w.logger.Warn("alert delivery failed",
			zap.String("alert_id", event.ID),
			zap.String("sku", event.SKU),
			zap.Error(err),
		)
	}
	if err := w.store.UpdateAlertDelivery(ctx, event.ID, status); err != nil {
		w.logger.Error("alert status update failed", zap.String("alert_id", event.ID), zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
