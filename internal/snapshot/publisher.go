// Package snapshot exports the denormalized latest-state view as a CSV
// file, replaced atomically so readers never see a partial write.
package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"clearancewatch/internal/monitor"
	"clearancewatch/internal/retailer"
)

var header = []string{
	"ts_utc",
	"retailer",
	"store_id",
	"store_name",
	"zip",
	"sku",
	"title",
	"category",
	"price",
	"price_was",
	"pct_off",
	"availability",
	"product_url",
	"image_url",
	"state",
}

// BlobStore mirrors the export to remote object storage.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Config controls the Publisher.
type Config struct {
	// Path is the export file location.
	Path string
	// ObjectPath is the remote key used when a blob store is configured.
	ObjectPath string
}

// Publisher writes the snapshot CSV. The remote mirror is best-effort;
// only the local atomic replace decides success.
type Publisher struct {
	cfg    Config
	blob   BlobStore
	logger *zap.Logger
}

// New constructs a Publisher. blob may be nil.
func New(cfg Config, blob BlobStore, logger *zap.Logger) (*Publisher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if cfg.ObjectPath == "" {
		cfg.ObjectPath = filepath.Base(cfg.Path)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, blob: blob, logger: logger}, nil
}

// Publish renders all latest-state rows and atomically replaces the prior
// export: the CSV is written to a temp file in the same directory, then
// renamed over the target.
func (p *Publisher) Publish(ctx context.Context, states []monitor.LatestState) error {
	data, err := render(states)
	if err != nil {
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}

	dir := filepath.Dir(p.cfg.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.csv")
	if err != nil {
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}
	if err := os.Rename(tmpName, p.cfg.Path); err != nil {
		_ = os.Remove(tmpName)
		return &monitor.PublishError{Path: p.cfg.Path, Err: err}
	}

	p.mirror(ctx, data)
	p.logger.Info("snapshot published",
		zap.String("path", p.cfg.Path),
		zap.Int("rows", len(states)),
	)
	return nil
}

func (p *Publisher) mirror(ctx context.Context, data []byte) {
	if p.blob == nil {
		return
	}
	uri, err := p.blob.PutObject(ctx, p.cfg.ObjectPath, "text/csv", data)
	if err != nil {
		p.logger.Warn("snapshot mirror failed", zap.Error(err))
		return
	}
	p.logger.Info("snapshot mirrored", zap.String("uri", uri))
}

func render(states []monitor.LatestState) ([]byte, error) {
	ordered := make([]monitor.LatestState, len(states))
	copy(ordered, states)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StoreID != ordered[j].StoreID {
			return ordered[i].StoreID < ordered[j].StoreID
		}
		return ordered[i].SKU < ordered[j].SKU
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, s := range ordered {
		_, state := retailer.ParseStoreName(s.StoreName)
		was := ""
		pct := ""
		if s.PriceWas > 0 {
			was = formatDollars(s.PriceWas)
			pct = strconv.FormatFloat(s.PctOff, 'f', 4, 64)
		}
		row := []string{
			s.ObservedAt.UTC().Format(time.RFC3339),
			s.Retailer,
			s.StoreID,
			s.StoreName,
			s.Zip,
			s.SKU,
			s.Title,
			s.Category,
			formatDollars(s.Price),
			was,
			pct,
			s.Availability,
			s.ProductURL,
			s.ImageURL,
			state,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDollars(c monitor.Cents) string {
	return strconv.FormatFloat(c.Float64(), 'f', 2, 64)
}
