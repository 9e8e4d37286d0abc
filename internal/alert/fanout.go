// Package alert composes delivery sinks.
package alert

import (
	"context"

	"go.uber.org/multierr"

	"clearancewatch/internal/monitor"
)

// Fanout delivers each event to every sink. Delivery is attempted on all
// sinks even when one fails; the errors are combined.
type Fanout struct {
	sinks []monitor.AlertSink
}

func NewFanout(sinks ...monitor.AlertSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Send(ctx context.Context, event monitor.AlertEvent) error {
	var err error
	for _, sink := range f.sinks {
		err = multierr.Append(err, sink.Send(ctx, event))
	}
	return err
}
