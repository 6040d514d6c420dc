// Package delivery posts the attribution batch to the configured webhook.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/sandwichfarm/herdwatch/internal/config"
	"github.com/sandwichfarm/herdwatch/internal/models"
	"github.com/sandwichfarm/herdwatch/internal/ops"
)

// ErrEmptyBatch is returned when there is nothing to deliver
var ErrEmptyBatch = errors.New("empty batch")

// Webhook delivers batches as a JSON array POST. It never retries; every
// call carries the whole batch so the next delivery supersedes a failed one.
type Webhook struct {
	url    string
	client *resty.Client
	logger *ops.Logger
}

// New creates a webhook deliverer
func New(cfg *config.Webhook, logger *ops.Logger) *Webhook {
	if logger == nil {
		logger = ops.Default()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "herdwatch")

	return &Webhook{
		url:    cfg.URL,
		client: client,
		logger: logger.WithComponent("delivery"),
	}
}

// Deliver posts records and succeeds only on a 2xx response
func (w *Webhook) Deliver(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return ErrEmptyBatch
	}

	requestID := uuid.NewString()
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(records).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to post batch %s: %w", requestID, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned status %d for batch %s: %s", resp.StatusCode(), requestID, resp.String())
	}

	w.logger.Debug("batch delivered", "request_id", requestID, "records", len(records), "status", resp.StatusCode())
	return nil
}

// URL returns the delivery target
func (w *Webhook) URL() string {
	return w.url
}

// Close releases idle connections
func (w *Webhook) Close() {
	w.client.GetClient().CloseIdleConnections()
}
