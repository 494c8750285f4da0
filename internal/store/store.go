// Package store persists analytics events for the location session.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/model"
)

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	Name   string    `json:"name,omitempty"`
	Since  time.Time `json:"since,omitzero"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for analytics events. Every Store
// is a telemetry recorder.
type Store interface {
	RecordEvent(ctx context.Context, ev model.AnalyticsEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]model.AnalyticsEvent, error)

	// CountEvents returns recorded events per name since the given time.
	CountEvents(ctx context.Context, since time.Time) (map[string]int, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func (f EventFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal attributes")
	}
	return string(b), nil
}

func decodeAttributes(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal attributes")
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}
