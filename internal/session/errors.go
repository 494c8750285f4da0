package session

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	// ErrPermissionDenied halts the workflow before any subscription is made.
	ErrPermissionDenied = eris.New("location permission denied")
	// ErrSettingsUnsatisfied means device settings do not meet the request profile.
	ErrSettingsUnsatisfied = eris.New("location settings unsatisfied")
	// ErrEmptyQuery is returned for a blank forward geocoding query.
	ErrEmptyQuery = eris.New("location name is required")
)

// Op names the platform call behind a ServiceCallError.
type Op string

const (
	OpSubscribe         Op = "request_location_updates"
	OpUnsubscribe       Op = "remove_location_updates"
	OpLastFix           Op = "get_last_location"
	OpForwardGeocode    Op = "get_from_location_name"
	OpEnableBackground  Op = "enable_background_location"
	OpDisableBackground Op = "disable_background_location"
)

// ServiceCallError wraps a failed platform call. The message is passed
// through unchanged so it can be shown to the user.
type ServiceCallError struct {
	Op  Op
	Err error
}

func (e *ServiceCallError) Error() string {
	return string(e.Op) + ": " + e.Err.Error()
}

func (e *ServiceCallError) Unwrap() error {
	return e.Err
}

// IsServiceCallFailed reports whether err came from a failed platform call.
func IsServiceCallFailed(err error) bool {
	var sce *ServiceCallError
	return errors.As(err, &sce)
}
