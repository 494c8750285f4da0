package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/session"
	"github.com/sells-group/location-cli/internal/telemetry"
)

// MetricsSnapshot holds a point-in-time view of session and telemetry health.
type MetricsSnapshot struct {
	// Telemetry emitter counters (process lifetime).
	Telemetry         telemetry.Stats `json:"telemetry"`
	TelemetryFailRate float64         `json:"telemetry_fail_rate"`

	// Recorded events by name (within lookback window).
	Events      map[string]int `json:"events,omitempty"`
	EventsTotal int            `json:"events_total"`

	// Subscription state.
	Subscription session.SubscriptionStats `json:"subscription"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// TelemetrySource exposes emitter counters.
type TelemetrySource interface {
	Stats() telemetry.Stats
}

// EventCounter counts recorded analytics events by name.
type EventCounter interface {
	CountEvents(ctx context.Context, since time.Time) (map[string]int, error)
}

// SessionSource exposes subscription counters.
type SessionSource interface {
	Stats() session.SubscriptionStats
}

// Collector gathers metrics from the emitter, event store and session.
// Any source may be nil.
type Collector struct {
	telemetry TelemetrySource
	events    EventCounter
	session   SessionSource
	nowFunc   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(tel TelemetrySource, events EventCounter, sess SessionSource) *Collector {
	return &Collector{telemetry: tel, events: events, session: sess, nowFunc: time.Now}
}

// Collect gathers a snapshot of metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	if c.telemetry != nil {
		snap.Telemetry = c.telemetry.Stats()
		delivered := snap.Telemetry.Recorded + snap.Telemetry.Failed
		if delivered > 0 {
			snap.TelemetryFailRate = float64(snap.Telemetry.Failed) / float64(delivered)
		}
	}

	if c.events != nil {
		cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
		counts, err := c.events.CountEvents(ctx, cutoff)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count events")
		}
		snap.Events = counts
		for _, n := range counts {
			snap.EventsTotal += n
		}
	}

	if c.session != nil {
		snap.Subscription = c.session.Stats()
	}

	return snap, nil
}
