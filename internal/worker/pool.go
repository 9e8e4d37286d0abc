package worker

import (
	"context"

	"go.uber.org/zap"

	"clearancewatch/internal/detect"
	"clearancewatch/internal/monitor"
	"clearancewatch/internal/validate"
)

// ReaderFactory opens an isolated page-reader session. Store context is
// session state on the retailer side, so each ZIP needs its own session.
type ReaderFactory interface {
	NewSession(ctx context.Context) (monitor.PageReader, func(), error)
}

// Pool builds a Worker on a fresh reader session for every ZIP. It is the
// coordinator's ZipRunner.
type Pool struct {
	factory   ReaderFactory
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

// NewPool constructs a Pool.
func NewPool(
	factory ReaderFactory,
	validator *validate.Validator,
	detector *detect.Detector,
	store monitor.Store,
	sink monitor.AlertSink,
	retry *monitor.RetryPolicy,
	pauser *monitor.Pauser,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		factory:   factory,
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

// RunForZip opens a session and runs the full catalog pass for one ZIP.
func (p *Pool) RunForZip(ctx context.Context, zip string, categories []monitor.Category) monitor.ZipResult {
	reader, release, err := p.factory.NewSession(ctx)
	if err != nil {
		return monitor.ZipResult{
			Zip:    zip,
			Failed: true,
			Err:    &monitor.StoreContextError{Zip: zip, Err: err},
		}
	}
	defer release()

	w := New(reader, p.validator, p.detector, p.store, p.sink, p.retry, p.pauser, p.clock, p.cfg, p.logger)
	return w.RunForZip(ctx, zip, categories)
}
