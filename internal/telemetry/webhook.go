package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/resilience"
)

// WebhookOption configures a WebhookRecorder.
type WebhookOption func(*WebhookRecorder)

// WithWebhookHTTPClient sets the HTTP client.
func WithWebhookHTTPClient(hc *http.Client) WebhookOption {
	return func(w *WebhookRecorder) {
		w.client = hc
	}
}

// WithWebhookRetry sets the retry policy for transient failures.
func WithWebhookRetry(cfg resilience.RetryConfig) WebhookOption {
	return func(w *WebhookRecorder) {
		w.retry = cfg
	}
}

// WithWebhookBreaker sets the circuit breaker config.
func WithWebhookBreaker(cfg resilience.BreakerConfig) WebhookOption {
	return func(w *WebhookRecorder) {
		w.breaker = resilience.NewCircuitBreaker(cfg)
	}
}

// WebhookRecorder posts events as JSON to an analytics collector.
type WebhookRecorder struct {
	url     string
	client  *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewWebhookRecorder creates a recorder posting to url.
func NewWebhookRecorder(url string, opts ...WebhookOption) *WebhookRecorder {
	w := &WebhookRecorder{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig()),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.retry.OnRetry == nil {
		w.retry.OnRetry = resilience.RetryLogger("analytics_webhook")
	}
	return w
}

// RecordEvent implements Recorder. Transient failures are retried; a sink
// that keeps failing is skipped until the breaker cools down.
func (w *WebhookRecorder) RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "telemetry: marshal event")
	}
	return w.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, w.retry, func(ctx context.Context) error {
			return w.post(ctx, body)
		})
	})
}

func (w *WebhookRecorder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "telemetry: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "telemetry: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	statusErr := eris.Errorf("telemetry: webhook returned status %d", resp.StatusCode)
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(statusErr, resp.StatusCode)
	}
	return statusErr
}
