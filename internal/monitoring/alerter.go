package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertTelemetryFailureRate AlertType = "telemetry_failure_rate"
	AlertDroppedEvents        AlertType = "dropped_events"
	AlertStaleStream          AlertType = "stale_stream"
)

// minDeliveries is the number of recorder calls needed before the failure
// rate is considered meaningful.
const minDeliveries = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	delivered := snap.Telemetry.Recorded + snap.Telemetry.Failed
	if delivered >= minDeliveries && snap.TelemetryFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertTelemetryFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Telemetry failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d delivered)",
				snap.TelemetryFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Telemetry.Failed, delivered,
			),
			Details: map[string]any{
				"failure_rate": snap.TelemetryFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Telemetry.Failed,
				"delivered":    delivered,
			},
			Timestamp: now,
		})
	}

	if a.cfg.DroppedEventsThreshold > 0 && snap.Telemetry.Dropped >= a.cfg.DroppedEventsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDroppedEvents,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d analytics event(s) dropped on a full queue",
				snap.Telemetry.Dropped,
			),
			Details: map[string]any{
				"dropped":   snap.Telemetry.Dropped,
				"emitted":   snap.Telemetry.Emitted,
				"threshold": a.cfg.DroppedEventsThreshold,
			},
			Timestamp: now,
		})
	}

	sub := snap.Subscription
	if a.cfg.StaleStreamSecs > 0 && sub.Active && !sub.StreamClosed {
		stale := time.Duration(a.cfg.StaleStreamSecs) * time.Second
		if !sub.LastUpdateAt.IsZero() && now.Sub(sub.LastUpdateAt) > stale {
			alerts = append(alerts, Alert{
				Type:     AlertStaleStream,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Subscription %s has not delivered an update for %s",
					sub.Handle.ID, now.Sub(sub.LastUpdateAt).Truncate(time.Second),
				),
				Details: map[string]any{
					"subscription_id": sub.Handle.ID,
					"last_update_at":  sub.LastUpdateAt,
					"updates":         sub.Updates,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
