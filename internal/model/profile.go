package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Priority is the accuracy/power trade-off requested from the fused location provider.
type Priority int

const (
	PriorityHighAccuracy Priority = 100
	PriorityBalanced     Priority = 102
	PriorityLowPower     Priority = 104
	PriorityNoPower      Priority = 105
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalanced:
		return "balanced"
	case PriorityLowPower:
		return "low_power"
	case PriorityNoPower:
		return "no_power"
	default:
		return "unknown"
	}
}

// ParsePriority maps a config string to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high_accuracy", "high":
		return PriorityHighAccuracy, nil
	case "balanced", "balanced_power_accuracy":
		return PriorityBalanced, nil
	case "low_power", "low":
		return PriorityLowPower, nil
	case "no_power", "passive":
		return PriorityNoPower, nil
	default:
		return 0, eris.Errorf("model: unknown priority %q", s)
	}
}

// LocationRequestProfile describes the updates a session asks for. It is
// built once when the session starts and passed by value afterwards.
type LocationRequestProfile struct {
	Priority        Priority      `json:"priority"`
	Interval        time.Duration `json:"interval"`
	FastestInterval time.Duration `json:"fastest_interval"`
	// NumUpdates caps deliveries; 0 means unlimited.
	NumUpdates int `json:"num_updates"`
	// SmallestDisplacement is the minimum movement in metres between delivered fixes.
	SmallestDisplacement float64       `json:"smallest_displacement"`
	Expiration           time.Duration `json:"expiration"`
	// MaxWaitTime is the batching window; fixes are delivered together when it
	// exceeds the effective interval.
	MaxWaitTime time.Duration `json:"max_wait_time"`
	NeedAddress bool          `json:"need_address"`
	Language    string        `json:"language"`
	CountryCode string        `json:"country_code"`
}

// EffectiveInterval is the delivery period: the requested interval, but never
// faster than FastestInterval.
func (p LocationRequestProfile) EffectiveInterval() time.Duration {
	if p.Interval < p.FastestInterval {
		return p.FastestInterval
	}
	return p.Interval
}

// BatchSize returns how many fixes are grouped into one delivery.
func (p LocationRequestProfile) BatchSize() int {
	every := p.EffectiveInterval()
	if every <= 0 || p.MaxWaitTime <= every {
		return 1
	}
	n := int(p.MaxWaitTime / every)
	if p.NumUpdates > 0 && n > p.NumUpdates {
		n = p.NumUpdates
	}
	return n
}

// Validate rejects profiles the location service cannot honour.
func (p LocationRequestProfile) Validate() error {
	switch p.Priority {
	case PriorityHighAccuracy, PriorityBalanced, PriorityLowPower, PriorityNoPower:
	default:
		return eris.Errorf("model: invalid priority %d", int(p.Priority))
	}
	if p.Interval < 0 || p.FastestInterval < 0 {
		return eris.New("model: intervals must not be negative")
	}
	if p.EffectiveInterval() == 0 {
		return eris.New("model: interval must be positive")
	}
	if p.NumUpdates < 0 {
		return eris.New("model: num_updates must not be negative")
	}
	if p.SmallestDisplacement < 0 {
		return eris.New("model: smallest_displacement must not be negative")
	}
	if p.Expiration < 0 || p.MaxWaitTime < 0 {
		return eris.New("model: expiration and max_wait_time must not be negative")
	}
	return nil
}

// Capability names a device permission the workflow may need.
type Capability string

const (
	CapabilityLocation           Capability = "location"
	CapabilityBackgroundLocation Capability = "background_location"
)

// SettingsRequest is validated by the platform settings service.
type SettingsRequest struct {
	Profiles []LocationRequestProfile `json:"profiles"`
	// AlwaysShow asks the platform to prompt the user to fix settings.
	AlwaysShow bool `json:"always_show"`
	// NeedBLE requires the short-range Bluetooth source as well.
	NeedBLE bool `json:"need_ble"`
}

// SettingsStates reports which location sources are usable.
type SettingsStates struct {
	GPSUsable      bool `json:"gps_usable"`
	NetworkUsable  bool `json:"network_usable"`
	BLEUsable      bool `json:"ble_usable"`
	LocationUsable bool `json:"location_usable"`
}

// SettingsCheckResult is the transient outcome of a settings check.
type SettingsCheckResult struct {
	Satisfied bool           `json:"satisfied"`
	Reason    string         `json:"reason,omitempty"`
	States    SettingsStates `json:"states"`
}
