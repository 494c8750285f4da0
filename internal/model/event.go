package model

import "time"

// Analytics event names emitted by the session workflow.
const (
	EventCheckSettings     = "checkDeviceLocationSettings"
	EventGetLastLocation   = "getLastLocation"
	EventRequestUpdates    = "requestLocationUpdatesWithCallback"
	EventEnableBackground  = "enableBackgroundLocation"
	EventDisableBackground = "disableBackgroundLocation"
)

// AnalyticsEvent is a named custom event with its attribute bundle.
type AnalyticsEvent struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}
