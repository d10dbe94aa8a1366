// Package notify delivers approval events to external channels. Delivery
// is best-effort by contract: callers log failures and move on, so an
// unreachable endpoint never blocks or fails the approval workflow itself.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opsgate/opsgate/internal/approval"
)

const (
	defaultAttemptTimeout = 5 * time.Second
	defaultMaxAttempts    = 2
)

// Webhook posts approval requests as JSON to a configured endpoint.
type Webhook struct {
	url     string
	client  *http.Client
	retries int
	logger  *slog.Logger
}

// NewWebhook creates a webhook notifier for the given endpoint URL.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: defaultAttemptTimeout},
		retries: defaultMaxAttempts,
		logger:  logger,
	}
}

// Notify posts the request to the endpoint, retrying once on failure. Each
// attempt is bounded by the client timeout so a dead endpoint cannot stall
// an approval wait.
func (w *Webhook) Notify(ctx context.Context, req *approval.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding approval notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.retries; attempt++ {
		lastErr = w.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		w.logger.Debug("webhook delivery attempt failed",
			"approval_id", req.ApprovalID, "attempt", attempt, "error", lastErr)

		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("delivering approval notification: %w", lastErr)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
