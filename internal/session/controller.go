// Package session sequences location acquisition: settings validation,
// reactive permission remediation, a single streaming subscription projected
// into presentation state, on-demand lookups, and analytics side events.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
)

// MaxGeocodeResults caps forward geocoding candidates.
const MaxGeocodeResults = 3

// SettingsService validates device settings against request profiles.
type SettingsService interface {
	CheckSettings(ctx context.Context, req model.SettingsRequest) (model.SettingsCheckResult, error)
}

// LocationService is the fused location provider.
type LocationService interface {
	LastFix(ctx context.Context) (model.LocationFix, error)

	// Subscribe registers for continuous updates. ctx bounds the registration
	// only; the returned channel stays open until the stream ends or
	// Unsubscribe is called with the handle.
	Subscribe(ctx context.Context, profile model.LocationRequestProfile) (model.SubscriptionHandle, <-chan model.UpdateBatch, error)
	Unsubscribe(ctx context.Context, handle model.SubscriptionHandle) error

	EnableBackground(ctx context.Context, id int, spec model.NotificationSpec) error
	DisableBackground(ctx context.Context, id int) error
}

// GeocodingService resolves place names to candidate locations.
type GeocodingService interface {
	ForwardGeocode(ctx context.Context, q model.GeocodeQuery) ([]model.LocationFix, error)
}

// PermissionService checks a capability and prompts for it when missing.
type PermissionService interface {
	EnsureGranted(ctx context.Context, c model.Capability) (bool, error)
}

// Emitter records analytics events without blocking the caller.
type Emitter interface {
	Emit(name string, attrs map[string]string)
}

// Services bundles the platform capabilities a Controller drives.
// Telemetry may be nil.
type Services struct {
	Settings    SettingsService
	Locations   LocationService
	Geocoder    GeocodingService
	Permissions PermissionService
	Telemetry   Emitter
}

// Outcome is the result of Start.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeSubscribed means updates are streaming.
	OutcomeSubscribed
	// OutcomePermissionGranted means settings failed, the user granted
	// permission, and the session has to be started again.
	OutcomePermissionGranted
	OutcomePermissionDenied
	OutcomeSettingsUnsatisfied
	OutcomeSubscribeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubscribed:
		return "subscribed"
	case OutcomePermissionGranted:
		return "permission_granted"
	case OutcomePermissionDenied:
		return "permission_denied"
	case OutcomeSettingsUnsatisfied:
		return "settings_unsatisfied"
	case OutcomeSubscribeFailed:
		return "subscribe_failed"
	default:
		return "none"
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithState lets the presentation layer own the state object.
func WithState(st *State) Option {
	return func(c *Controller) {
		if st != nil {
			c.state = st
		}
	}
}

// WithSettingsFlags sets the session-level flags sent with settings checks.
func WithSettingsFlags(alwaysShow, needBLE bool) Option {
	return func(c *Controller) {
		c.alwaysShow = alwaysShow
		c.needBLE = needBLE
	}
}

// WithRevalidateAfterGrant re-runs the settings check once after the user
// grants permission instead of stopping at OutcomePermissionGranted.
func WithRevalidateAfterGrant(enabled bool) Option {
	return func(c *Controller) {
		c.revalidate = enabled
	}
}

// WithBackgroundNotification sets the notification used by EnableBackground.
func WithBackgroundNotification(id int, spec model.NotificationSpec) Option {
	return func(c *Controller) {
		c.notificationID = id
		c.notification = spec
	}
}

// WithLocale sets the locale for forward geocoding.
func WithLocale(l model.Locale) Option {
	return func(c *Controller) {
		c.locale = l
	}
}

// WithObserver is called with a fresh snapshot after every stream update.
// It runs on the stream goroutine and must not call Cancel or Close.
func WithObserver(fn func(model.SessionState)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller runs the location session workflow.
type Controller struct {
	svc            Services
	profile        model.LocationRequestProfile
	alwaysShow     bool
	needBLE        bool
	revalidate     bool
	notificationID int
	notification   model.NotificationSpec
	locale         model.Locale
	observer       func(model.SessionState)
	log            *zap.Logger
	state          *State

	mu  sync.Mutex
	sub *subscription
}

// New creates a Controller for the given profile.
func New(svc Services, profile model.LocationRequestProfile, opts ...Option) *Controller {
	c := &Controller{
		svc:     svc,
		profile: profile,
		locale:  model.Locale{Language: profile.Language, Country: profile.CountryCode},
		state:   NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.L().With(zap.String("component", "session"))
	}
	if c.svc.Telemetry == nil {
		c.svc.Telemetry = noopEmitter{}
	}
	return c
}

// Profile returns the immutable request profile.
func (c *Controller) Profile() model.LocationRequestProfile {
	return c.profile
}

// State returns a snapshot of the session state.
func (c *Controller) State() model.SessionState {
	return c.state.Snapshot()
}

// Start validates settings and subscribes. When settings are unsatisfied it
// falls through to the permission gate; a denial ends the workflow with
// ErrPermissionDenied and leaves the state untouched.
func (c *Controller) Start(ctx context.Context) (Outcome, error) {
	c.svc.Telemetry.Emit(model.EventCheckSettings, nil)

	if err := c.profile.Validate(); err != nil {
		return OutcomeNone, eris.Wrap(err, "session: invalid request profile")
	}

	req := model.SettingsRequest{
		Profiles:   []model.LocationRequestProfile{c.profile},
		AlwaysShow: c.alwaysShow,
		NeedBLE:    c.needBLE,
	}

	err := c.checkSettings(ctx, req)
	if err == nil {
		return c.startUpdates(ctx)
	}
	c.log.Warn("location settings check failed", zap.Error(err))

	granted, permErr := c.svc.Permissions.EnsureGranted(ctx, model.CapabilityLocation)
	if permErr != nil || !granted {
		c.log.Error("location permission not granted, stopping", zap.Error(permErr))
		return OutcomePermissionDenied, eris.Wrap(ErrPermissionDenied, "session: permission gate")
	}

	if !c.revalidate {
		c.log.Info("location permission granted; start the session again to subscribe")
		return OutcomePermissionGranted, nil
	}

	if err := c.checkSettings(ctx, req); err != nil {
		c.log.Warn("location settings still unsatisfied after permission grant", zap.Error(err))
		return OutcomeSettingsUnsatisfied, eris.Wrap(ErrSettingsUnsatisfied, "session: revalidate settings")
	}
	return c.startUpdates(ctx)
}

func (c *Controller) checkSettings(ctx context.Context, req model.SettingsRequest) error {
	res, err := c.svc.Settings.CheckSettings(ctx, req)
	if err != nil {
		return err
	}
	if !res.Satisfied {
		return eris.Wrapf(ErrSettingsUnsatisfied, "session: %s", res.Reason)
	}
	c.log.Info("location settings satisfied",
		zap.Bool("gps_usable", res.States.GPSUsable),
		zap.Bool("network_usable", res.States.NetworkUsable),
		zap.Bool("ble_usable", res.States.BLEUsable),
	)
	return nil
}

// SubscriptionStats describes the active subscription for monitoring.
type SubscriptionStats struct {
	Active       bool                     `json:"active"`
	Handle       model.SubscriptionHandle `json:"handle"`
	StreamClosed bool                     `json:"stream_closed"`
	Updates      int                      `json:"updates"`
	LastUpdateAt time.Time                `json:"last_update_at,omitzero"`
}

// Stats returns the subscription and stream counters.
func (c *Controller) Stats() SubscriptionStats {
	var out SubscriptionStats
	c.mu.Lock()
	if c.sub != nil {
		out.Active = true
		out.Handle = c.sub.handle
		out.StreamClosed = c.sub.isClosed()
	}
	c.mu.Unlock()
	out.Updates, out.LastUpdateAt = c.state.streamStats()
	return out
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, map[string]string) {}
