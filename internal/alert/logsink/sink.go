// Package logsink writes alert events to the log instead of an external
// channel. It is the default sink when no notifier is configured.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"clearancewatch/internal/monitor"
)

// Sink logs each alert at info level.
type Sink struct {
	logger *zap.Logger
}

// New creates a Sink. A nil logger falls back to the global logger.
func New(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.L()
	}
	return &Sink{logger: logger}
}

func (s *Sink) Send(_ context.Context, event monitor.AlertEvent) error {
	s.logger.Info("alert",
		zap.String("id", event.ID),
		zap.String("trigger", string(event.Trigger)),
		zap.String("retailer", event.Retailer),
		zap.String("store_id", event.StoreID),
		zap.String("zip", event.Zip),
		zap.String("sku", event.SKU),
		zap.String("title", event.Title),
		zap.String("old_price", event.OldPrice.String()),
		zap.String("new_price", event.NewPrice.String()),
		zap.Float64("pct_off", event.PctOff),
	)
	return nil
}
