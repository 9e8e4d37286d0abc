// Package telegram delivers alert events to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"clearancewatch/internal/monitor"
)

const maxMessageLen = 400

// Config carries the bot credentials.
type Config struct {
	Token   string
	ChatID  string
	Timeout time.Duration
	// BaseURL overrides the Telegram API endpoint (tests only).
	BaseURL string
}

// Sink sends one message per alert event.
type Sink struct {
	cfg    Config
	client *resty.Client
}

// New constructs a Sink.
func New(cfg Config) (*Sink, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout)
	return &Sink{cfg: cfg, client: client}, nil
}

// Send posts the alert text. A non-2xx response is a delivery failure.
func (s *Sink) Send(ctx context.Context, event monitor.AlertEvent) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  s.cfg.ChatID,
			"text":                     Format(event),
			"disable_web_page_preview": true,
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.cfg.Token))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram responded with %s", resp.Status())
	}
	return nil
}

// Format renders the alert message body.
func Format(event monitor.AlertEvent) string {
	lines := []string{headline(event)}
	lines = append(lines, "Now: "+event.NewPrice.String())
	if event.OldPrice > 0 {
		lines = append(lines, "Was: "+event.OldPrice.String())
	} else if event.PriceWas > 0 {
		lines = append(lines, "Was: "+event.PriceWas.String())
	}
	if event.PctOff > 0 {
		lines = append(lines, fmt.Sprintf("%% off: %.1f%%", event.PctOff*100))
	}
	if event.StoreID != "" {
		lines = append(lines, "Store: "+event.StoreID)
	}
	if event.Zip != "" {
		lines = append(lines, "ZIP: "+event.Zip)
	}
	lines = append(lines, event.ProductURL)

	text := strings.Join(lines, "\n")
	if runes := []rune(text); len(runes) > maxMessageLen {
		text = string(runes[:maxMessageLen-3]) + "..."
	}
	return text
}

func headline(event monitor.AlertEvent) string {
	title := shorten(event.Title, 70)
	switch event.Trigger {
	case monitor.TriggerFirstClearance:
		return "New clearance: " + title
	default:
		return "Price drop: " + title
	}
}

func shorten(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
