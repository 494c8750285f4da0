package session

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
)

// GetLastFix fetches the platform's cached fix. The result is stored in the
// LastKnown field only; stream-owned fields are untouched. Failures are not
// retried.
func (c *Controller) GetLastFix(ctx context.Context) (model.LocationFix, error) {
	c.svc.Telemetry.Emit(model.EventGetLastLocation, nil)

	fix, err := c.svc.Locations.LastFix(ctx)
	if err != nil {
		c.log.Error("failed to get last location", zap.Error(err))
		return model.LocationFix{}, &ServiceCallError{Op: OpLastFix, Err: err}
	}

	c.state.setLastKnown(fix)
	c.log.Info("last location",
		zap.Float64("latitude", fix.Latitude),
		zap.Float64("longitude", fix.Longitude),
		zap.String("feature_name", fix.FeatureName),
	)
	return fix, nil
}

// ForwardGeocode resolves a place name to at most MaxGeocodeResults
// candidates, whatever the service returns.
func (c *Controller) ForwardGeocode(ctx context.Context, name string) ([]model.LocationFix, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyQuery
	}

	q := model.GeocodeQuery{
		Name:       name,
		MaxResults: MaxGeocodeResults,
		Locale:     c.locale,
	}
	results, err := c.svc.Geocoder.ForwardGeocode(ctx, q)
	if err != nil {
		c.log.Error("forward geocode failed", zap.String("query", name), zap.Error(err))
		return nil, &ServiceCallError{Op: OpForwardGeocode, Err: err}
	}
	if len(results) > MaxGeocodeResults {
		results = results[:MaxGeocodeResults]
	}

	c.state.setSearchResults(results)
	c.log.Info("forward geocode", zap.String("query", name), zap.Int("results", len(results)))
	return c.state.Snapshot().SearchResults, nil
}

// EnableBackground keeps location running behind a foreground notification.
func (c *Controller) EnableBackground(ctx context.Context) error {
	c.svc.Telemetry.Emit(model.EventEnableBackground, map[string]string{
		"notification_id": strconv.Itoa(c.notificationID),
	})

	if err := c.svc.Locations.EnableBackground(ctx, c.notificationID, c.notification); err != nil {
		c.log.Error("enable background location failed", zap.Error(err))
		return &ServiceCallError{Op: OpEnableBackground, Err: err}
	}
	c.log.Info("background location enabled", zap.Int("notification_id", c.notificationID))
	return nil
}

// DisableBackground removes the background notification.
func (c *Controller) DisableBackground(ctx context.Context) error {
	c.svc.Telemetry.Emit(model.EventDisableBackground, nil)

	if err := c.svc.Locations.DisableBackground(ctx, c.notificationID); err != nil {
		c.log.Error("disable background location failed", zap.Error(err))
		return &ServiceCallError{Op: OpDisableBackground, Err: err}
	}
	c.log.Info("background location disabled", zap.Int("notification_id", c.notificationID))
	return nil
}
