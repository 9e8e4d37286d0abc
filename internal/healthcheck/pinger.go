// Package healthcheck pings a dead-man's-switch URL after successful
// cycles, so an external monitor notices when the crawler stops running.
package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Pinger issues a GET to a configured URL. A zero-value URL disables it.
type Pinger struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// New creates a Pinger. When url is empty the pinger is a no-op.
func New(url string, timeout time.Duration, logger *zap.Logger) *Pinger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Pinger{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger,
	}
}

func (p *Pinger) Ping(ctx context.Context) error {
	if p.url == "" {
		return nil
	}
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		p.logger.Warn("healthcheck ping failed", zap.Error(err))
		return fmt.Errorf("healthcheck ping: %w", err)
	}
	if resp.IsError() {
		p.logger.Warn("healthcheck ping rejected", zap.Int("status", resp.StatusCode()))
		return fmt.Errorf("healthcheck ping: status %d", resp.StatusCode())
	}
	return nil
}
