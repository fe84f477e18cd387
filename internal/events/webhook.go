// ==============================================================================
// WEBHOOK DISPATCHER - internal/events/webhook.go
// ==============================================================================
// Delivers KYC status events to anchor webhooks. Each body carries a
// signature: hex HMAC-SHA256 of the event JSON (without the signature field)
// under the webhook secret. The same value is sent as X-SAK-Signature.
// ==============================================================================

package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sak/internal/metrics"
	"sak/internal/security"
	"sak/pkg/domain"
	"sak/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	HeaderSignature = "X-SAK-Signature"
	HeaderEvent     = "X-SAK-Event"
)

// WebhookStore lists the webhooks to notify.
type WebhookStore interface {
	ListForEvent(ctx context.Context, event string) ([]*domain.Webhook, error)
}

// SignedEvent is the webhook body.
type SignedEvent struct {
	domain.KYCStatusEvent
	Signature string `json:"signature"`
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	return security.BlindIndex([]byte(secret), string(payload))
}

// VerifySignature checks a received body. It recomputes the signature over
// the event fields and compares in constant time.
func VerifySignature(secret string, body []byte) (bool, error) {
	var signed SignedEvent
	if err := json.Unmarshal(body, &signed); err != nil {
		return false, err
	}
	payload, err := json.Marshal(signed.KYCStatusEvent)
	if err != nil {
		return false, err
	}
	want := Sign(secret, payload)
	return hmac.Equal([]byte(want), []byte(signed.Signature)), nil
}

type WebhookConfig struct {
	Client      *http.Client
	MaxAttempts int
	Backoff     time.Duration
	// Concurrency caps parallel deliveries per event.
	Concurrency int
	Logger      logger.Logger
	Metrics     *metrics.Metrics
}

type WebhookDispatcher struct {
	store       WebhookStore
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	concurrency int
	logger      logger.Logger
	metrics     *metrics.Metrics
}

func NewWebhookDispatcher(store WebhookStore, cfg WebhookConfig) *WebhookDispatcher {
	d := &WebhookDispatcher{
		store:       store,
		client:      cfg.Client,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if d.client == nil {
		d.client = &http.Client{Timeout: 10 * time.Second}
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 3
	}
	if d.backoff <= 0 {
		d.backoff = 500 * time.Millisecond
	}
	if d.concurrency <= 0 {
		d.concurrency = 8
	}
	if d.logger == nil {
		d.logger = logger.NewNop()
	}
	if d.metrics == nil {
		d.metrics = metrics.NopMetrics()
	}
	return d
}

// Publish delivers the event to every subscribed webhook. All webhooks are
// attempted; the first delivery error is returned.
func (d *WebhookDispatcher) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	hooks, err := d.store.ListForEvent(ctx, event.Event)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, hook := range hooks {
		hook := hook
		g.Go(func() error {
			err := d.deliver(ctx, hook, event, payload)
			result := "delivered"
			if err != nil {
				result = "failed"
				d.logger.Warn("Webhook delivery failed", map[string]interface{}{
					"event":      "webhook_delivery_failed",
					"webhook_id": hook.ID.String(),
					"kyc_event":  event.Event,
					"error":      err.Error(),
				})
			}
			d.metrics.EventDeliveries.With("sink", "webhook", "result", result).Add(1)
			return err
		})
	}
	return g.Wait()
}

func (d *WebhookDispatcher) deliver(ctx context.Context, hook *domain.Webhook, event domain.KYCStatusEvent, payload []byte) error {
	sig := Sign(hook.Secret, payload)
	body, err := json.Marshal(SignedEvent{KYCStatusEvent: event, Signature: sig})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		retry, err := d.post(ctx, hook.URL, event.Event, sig, body)
		if err == nil {
			d.logger.Debug("Webhook delivered", map[string]interface{}{
				"webhook_id": hook.ID.String(),
				"kyc_event":  event.Event,
				"attempt":    attempt,
			})
			return nil
		}
		lastErr = err
		if !retry || attempt == d.maxAttempts {
			break
		}

		t := time.NewTimer(d.backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

// post reports whether a failed attempt is worth retrying.
func (d *WebhookDispatcher) post(ctx context.Context, url, event, sig string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SAK-Webhooks/1.0")
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderEvent, event)

	resp, err := d.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
