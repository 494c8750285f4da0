// Package device simulates the location SDK: a settings client, a fused
// location provider replaying a track, a permission store and background
// location notifications.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
)

var (
	// ErrPermissionMissing is returned when location permission has not been granted.
	ErrPermissionMissing = eris.New("device: location permission not granted")
	// ErrNoLocation is returned by LastFix when no fix has ever been produced.
	ErrNoLocation = eris.New("device: no location available")
	// ErrBackgroundUnsupported is returned on devices without background location.
	ErrBackgroundUnsupported = eris.New("device: background location is not supported")
)

// Hardware describes which location sources are switched on.
type Hardware struct {
	GPS        bool `yaml:"gps" mapstructure:"gps"`
	Network    bool `yaml:"network" mapstructure:"network"`
	BLE        bool `yaml:"ble" mapstructure:"ble"`
	Background bool `yaml:"background" mapstructure:"background"`
}

// Addresser fills address fields on a fix.
type Addresser interface {
	Address(ctx context.Context, fix model.LocationFix, language string) (model.LocationFix, error)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithTrack sets the replayed track. Defaults to DefaultTrack.
func WithTrack(t Track) Option {
	return func(s *Simulator) {
		if len(t.Points) > 0 {
			s.track = t
		}
	}
}

// WithAddresser enables address lookup for profiles that need it.
func WithAddresser(a Addresser) Option {
	return func(s *Simulator) {
		s.addresser = a
	}
}

// WithCachedFix seeds the fix returned by LastFix before any update.
func WithCachedFix(fix model.LocationFix) Option {
	return func(s *Simulator) {
		s.last = fix
	}
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		s.log = l
	}
}

// Simulator implements the settings, location and permission services.
type Simulator struct {
	hw        Hardware
	perms     *Permissions
	track     Track
	addresser Addresser
	log       *zap.Logger

	mu         sync.Mutex
	last       model.LocationFix
	runs       map[string]*run
	nextCode   int
	background map[int]model.NotificationSpec
}

type run struct {
	stop chan struct{}
	done chan struct{}
}

// NewSimulator creates a simulated device.
func NewSimulator(hw Hardware, perms *Permissions, opts ...Option) *Simulator {
	s := &Simulator{
		hw:         hw,
		perms:      perms,
		track:      DefaultTrack(),
		runs:       make(map[string]*run),
		background: make(map[int]model.NotificationSpec),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.L().With(zap.String("component", "device"))
	}
	return s
}

// EnsureGranted implements the permission service.
func (s *Simulator) EnsureGranted(ctx context.Context, c model.Capability) (bool, error) {
	return s.perms.EnsureGranted(ctx, c)
}

// CheckSettings validates every profile in req against the hardware. A
// missing permission is an error that needs resolution by the user; unmet
// hardware requirements yield an unsatisfied result.
func (s *Simulator) CheckSettings(_ context.Context, req model.SettingsRequest) (model.SettingsCheckResult, error) {
	res := model.SettingsCheckResult{
		States: model.SettingsStates{
			GPSUsable:      s.hw.GPS,
			NetworkUsable:  s.hw.Network,
			BLEUsable:      s.hw.BLE,
			LocationUsable: s.hw.GPS || s.hw.Network,
		},
	}
	if !s.perms.Granted(model.CapabilityLocation) {
		return res, ErrPermissionMissing
	}
	if len(req.Profiles) == 0 {
		return res, eris.New("device: settings request has no profiles")
	}

	for _, p := range req.Profiles {
		if reason := s.unmet(p.Priority); reason != "" {
			res.Reason = reason
			return res, nil
		}
	}
	if req.NeedBLE && !s.hw.BLE {
		res.Reason = "bluetooth is off"
		return res, nil
	}
	res.Satisfied = true
	return res, nil
}

func (s *Simulator) unmet(p model.Priority) string {
	switch p {
	case model.PriorityHighAccuracy:
		if !s.hw.GPS {
			return "high accuracy needs gps"
		}
	case model.PriorityBalanced:
		if !s.hw.GPS && !s.hw.Network {
			return "balanced power needs gps or network location"
		}
	case model.PriorityLowPower:
		if !s.hw.Network {
			return "low power needs network location"
		}
	}
	return ""
}

// LastFix returns the most recent fix.
func (s *Simulator) LastFix(_ context.Context) (model.LocationFix, error) {
	if !s.perms.Granted(model.CapabilityLocation) {
		return model.LocationFix{}, ErrPermissionMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.IsZero() {
		return model.LocationFix{}, ErrNoLocation
	}
	return s.last, nil
}

// Subscribe starts replaying the track. The returned channel is closed when
// the update count or expiration is reached, or on Unsubscribe.
func (s *Simulator) Subscribe(_ context.Context, profile model.LocationRequestProfile) (model.SubscriptionHandle, <-chan model.UpdateBatch, error) {
	if err := profile.Validate(); err != nil {
		return model.SubscriptionHandle{}, nil, err
	}
	if !s.perms.Granted(model.CapabilityLocation) {
		return model.SubscriptionHandle{}, nil, ErrPermissionMissing
	}

	s.mu.Lock()
	s.nextCode++
	handle := model.SubscriptionHandle{ID: uuid.NewString(), RequestCode: s.nextCode}
	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	s.runs[handle.ID] = r
	s.mu.Unlock()

	out := make(chan model.UpdateBatch, 1)
	go s.replay(handle, profile, r, out)

	s.log.Debug("subscription started",
		zap.String("subscription_id", handle.ID),
		zap.Duration("interval", profile.EffectiveInterval()),
		zap.Int("batch_size", profile.BatchSize()),
	)
	return handle, out, nil
}

func (s *Simulator) replay(handle model.SubscriptionHandle, p model.LocationRequestProfile, r *run, out chan<- model.UpdateBatch) {
	defer close(r.done)
	defer close(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.EffectiveInterval())
	defer ticker.Stop()

	var expired <-chan time.Time
	if p.Expiration > 0 {
		timer := time.NewTimer(p.Expiration)
		defer timer.Stop()
		expired = timer.C
	}

	var (
		pending   []model.LocationFix
		hw        model.LocationFix
		reported  *geom.Point
		delivered int
		batchSize = p.BatchSize()
	)
	send := func() bool {
		if len(pending) == 0 {
			return true
		}
		batch := model.UpdateBatch{
			Locations:      pending,
			LastHWLocation: hw,
			LastLocation:   pending[len(pending)-1],
		}
		pending = nil
		select {
		case out <- batch:
			return true
		case <-r.stop:
			return false
		}
	}

	for i := 0; ; i++ {
		select {
		case <-r.stop:
			return
		case <-expired:
			send()
			s.log.Debug("subscription expired", zap.String("subscription_id", handle.ID))
			s.finish(handle.ID)
			return
		case now := <-ticker.C:
			fix := s.track.at(i)
			fix.Provider = providerFor(p.Priority)
			fix.Time = now.UTC()
			hw = fix

			if p.SmallestDisplacement > 0 && reported != nil &&
				model.DistanceMeters(reported, fix.Point()) < p.SmallestDisplacement {
				continue
			}
			if p.NeedAddress && s.addresser != nil {
				addressed, err := s.addresser.Address(ctx, fix, p.Language)
				if err != nil {
					s.log.Warn("address lookup failed", zap.Error(err))
				} else {
					fix = addressed
				}
			}
			reported = fix.Point()
			delivered++
			pending = append(pending, fix)
			s.remember(fix)

			done := p.NumUpdates > 0 && delivered >= p.NumUpdates
			if len(pending) >= batchSize || done {
				if !send() {
					return
				}
			}
			if done {
				s.finish(handle.ID)
				return
			}
		}
	}
}

func (s *Simulator) remember(fix model.LocationFix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = fix
}

func (s *Simulator) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
}

func providerFor(p model.Priority) string {
	switch p {
	case model.PriorityHighAccuracy:
		return "gps"
	case model.PriorityNoPower:
		return "passive"
	default:
		return "network"
	}
}

// Unsubscribe stops the subscription. Stopping a subscription that already
// ran to completion is not an error.
func (s *Simulator) Unsubscribe(_ context.Context, handle model.SubscriptionHandle) error {
	if handle.IsZero() {
		return eris.New("device: empty subscription handle")
	}
	s.mu.Lock()
	r, ok := s.runs[handle.ID]
	delete(s.runs, handle.ID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	close(r.stop)
	<-r.done
	return nil
}

// ActiveSubscriptions returns the number of running subscriptions.
func (s *Simulator) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// EnableBackground posts the foreground notification that keeps location
// running in the background.
func (s *Simulator) EnableBackground(_ context.Context, id int, spec model.NotificationSpec) error {
	if !s.hw.Background {
		return ErrBackgroundUnsupported
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	if !s.perms.Granted(model.CapabilityLocation) {
		return ErrPermissionMissing
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background[id] = spec
	return nil
}

// DisableBackground removes the notification posted under id.
func (s *Simulator) DisableBackground(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.background[id]; !ok {
		return eris.Errorf("device: no background notification with id %d", id)
	}
	delete(s.background, id)
	return nil
}

// BackgroundNotification returns the notification posted under id.
func (s *Simulator) BackgroundNotification(id int) (model.NotificationSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.background[id]
	return spec, ok
}
