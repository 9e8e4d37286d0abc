// Package pubsub publishes alert events to a Google Cloud Pub/Sub topic
// for downstream consumers (dashboards, archival).
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"clearancewatch/internal/monitor"
)

// Topic is the slice of the Pub/Sub client the sink needs.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Sink publishes one JSON message per alert event.
type Sink struct {
	topic Topic
}

// New creates a Sink for the provided topic.
func New(topic Topic) (*Sink, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Sink{topic: topic}, nil
}

type alertMessage struct {
	ID         string    `json:"id"`
	Retailer   string    `json:"retailer"`
	StoreID    string    `json:"store_id"`
	Zip        string    `json:"zip,omitempty"`
	SKU        string    `json:"sku"`
	Title      string    `json:"title,omitempty"`
	Trigger    string    `json:"trigger"`
	OldPrice   float64   `json:"old_price"`
	NewPrice   float64   `json:"new_price"`
	PctOff     float64   `json:"pct_off,omitempty"`
	ProductURL string    `json:"product_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Send marshals the event and blocks on the publish result.
func (s *Sink) Send(ctx context.Context, event monitor.AlertEvent) error {
	data, err := json.Marshal(alertMessage{
		ID:         event.ID,
		Retailer:   event.Retailer,
		StoreID:    event.StoreID,
		Zip:        event.Zip,
		SKU:        event.SKU,
		Title:      event.Title,
		Trigger:    string(event.Trigger),
		OldPrice:   event.OldPrice.Float64(),
		NewPrice:   event.NewPrice.Float64(),
		PctOff:     event.PctOff,
		ProductURL: event.ProductURL,
		CreatedAt:  event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"trigger":  string(event.Trigger),
			"retailer": event.Retailer,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
