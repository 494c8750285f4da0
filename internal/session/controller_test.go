package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/telemetry"
)

func satisfied() model.SettingsCheckResult {
	return model.SettingsCheckResult{Satisfied: true, States: model.SettingsStates{GPSUsable: true, LocationUsable: true}}
}

func TestStart_SettingsSatisfied_StreamsIntoState(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	c := h.controller()
	defer c.Close(context.Background()) //nolint:errcheck

	outcome, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscribed, outcome)

	fix := model.LocationFix{Latitude: 1.0, Longitude: 2.0}
	h.locs.stream(0) <- model.UpdateBatch{
		Locations:      []model.LocationFix{fix},
		LastHWLocation: fix,
		LastLocation:   fix,
	}

	got := h.nextUpdate(t)
	assert.Equal(t, 1.0, got.LastHWLocation.Latitude)
	assert.Equal(t, 2.0, got.LastHWLocation.Longitude)
	assert.Equal(t, fix, got.ListHead)
	assert.Equal(t, fix, c.State().LastHWLocation)

	assert.Equal(t, []string{"settings", "subscribe"}, h.calls.list())
	assert.Equal(t, []string{model.EventCheckSettings, model.EventRequestUpdates}, h.emitter.names())
	assert.Equal(t, 0, h.errorLogs())
}

func TestStart_SettingsRejected_PermissionDenied_Halts(t *testing.T) {
	h := newHarness()
	h.settings.errs = []error{errors.New("location settings resolution required")}
	h.perms.granted = false
	c := h.controller()

	before := c.State()
	outcome, err := c.Start(context.Background())

	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrPermissionDenied))
	assert.Equal(t, OutcomePermissionDenied, outcome)
	assert.Equal(t, []string{"settings", "permission"}, h.calls.list())
	assert.Equal(t, before, c.State())
	assert.Equal(t, 1, h.errorLogs())
	assert.False(t, c.Stats().Active)
}

func TestStart_PermissionErrorTreatedAsDenied(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{{Satisfied: false, Reason: "gps off"}}
	h.perms.err = errors.New("prompt dismissed")
	c := h.controller()

	outcome, err := c.Start(context.Background())
	assert.Equal(t, OutcomePermissionDenied, outcome)
	assert.True(t, eris.Is(err, ErrPermissionDenied))
}

func TestStart_GrantWithoutRevalidation_DoesNotReenter(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{{Satisfied: false, Reason: "permission missing"}}
	h.perms.granted = true
	c := h.controller()

	outcome, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePermissionGranted, outcome)
	assert.Equal(t, []string{"settings", "permission"}, h.calls.list())
}

func TestStart_RevalidateAfterGrant_PermissionBeforeRetry(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{{Satisfied: false}, satisfied()}
	h.perms.granted = true
	c := h.controller(WithRevalidateAfterGrant(true))
	defer c.Close(context.Background()) //nolint:errcheck

	outcome, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscribed, outcome)
	assert.Equal(t, []string{"settings", "permission", "settings", "subscribe"}, h.calls.list())
}

func TestStart_RevalidateStillUnsatisfied(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{{Satisfied: false}, {Satisfied: false, Reason: "gps off"}}
	h.perms.granted = true
	c := h.controller(WithRevalidateAfterGrant(true))

	outcome, err := c.Start(context.Background())
	assert.Equal(t, OutcomeSettingsUnsatisfied, outcome)
	assert.True(t, eris.Is(err, ErrSettingsUnsatisfied))
	assert.Equal(t, []string{"settings", "permission", "settings"}, h.calls.list())
}

func TestStart_InvalidProfile(t *testing.T) {
	h := newHarness()
	c := New(Services{
		Settings:    h.settings,
		Locations:   h.locs,
		Permissions: h.perms,
	}, model.LocationRequestProfile{}, WithLogger(zap.NewNop()))

	outcome, err := c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeNone, outcome)
	assert.Empty(t, h.calls.list())
}

func TestStart_SubscribeFailure(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	h.locs.subscribeErr = errors.New("looper thread unavailable")
	c := h.controller()

	outcome, err := c.Start(context.Background())
	assert.Equal(t, OutcomeSubscribeFailed, outcome)
	require.Error(t, err)
	assert.True(t, IsServiceCallFailed(err))
	assert.Contains(t, err.Error(), "looper thread unavailable")
	assert.False(t, c.Stats().Active)
}

func TestStart_SecondStartReplacesSubscription(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied(), satisfied()}
	c := h.controller()
	defer c.Close(context.Background()) //nolint:errcheck

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	first := c.Stats().Handle

	_, err = c.Start(context.Background())
	require.NoError(t, err)
	second := c.Stats().Handle

	assert.NotEqual(t, first, second)
	require.Len(t, h.locs.unsubscribed, 1)
	assert.Equal(t, first, h.locs.unsubscribed[0])
	assert.Equal(t, []string{"settings", "subscribe", "settings", "unsubscribe", "subscribe"}, h.calls.list())

	// Only the replacement stream feeds the state.
	fix := model.LocationFix{Latitude: 9, Longitude: 9}
	h.locs.stream(1) <- model.UpdateBatch{Locations: []model.LocationFix{fix}, LastHWLocation: fix}
	assert.Equal(t, fix, h.nextUpdate(t).LastHWLocation)
}

func TestCancel_ReleasesSubscription(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	c := h.controller()

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	handle := c.Stats().Handle

	require.NoError(t, c.Cancel(context.Background()))
	assert.False(t, c.Stats().Active)
	assert.Equal(t, []model.SubscriptionHandle{handle}, h.locs.unsubscribed)

	// Cancelling twice is a no-op.
	require.NoError(t, c.Cancel(context.Background()))
	assert.Len(t, h.locs.unsubscribed, 1)
	assert.Nil(t, c.Done())
}

func TestStreamEnd_ClosesConsumer(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	c := h.controller()

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	done := c.Done()
	require.NotNil(t, done)

	close(h.locs.stream(0))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit after stream closed")
	}
	stats := c.Stats()
	assert.True(t, stats.Active)
	assert.True(t, stats.StreamClosed)
	require.NoError(t, c.Close(context.Background()))
}

func TestStream_EmptyBatchProjectsEmptyRecord(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	c := h.controller()
	defer c.Close(context.Background()) //nolint:errcheck

	_, err := c.Start(context.Background())
	require.NoError(t, err)

	last := model.LocationFix{Latitude: 3, Longitude: 4}
	h.locs.stream(0) <- model.UpdateBatch{LastHWLocation: last}

	got := h.nextUpdate(t)
	assert.True(t, got.ListHead.IsZero())
	assert.Equal(t, last, got.LastHWLocation)
	assert.Equal(t, 1, c.Stats().Updates)
}

func TestGetLastFix_IndependentOfStreamFields(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	h.locs.lastFix = model.LocationFix{Latitude: 48.85, Longitude: 2.35, FeatureName: "Paris"}
	c := h.controller()
	defer c.Close(context.Background()) //nolint:errcheck

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	streamed := model.LocationFix{Latitude: 1, Longitude: 2}
	h.locs.stream(0) <- model.UpdateBatch{Locations: []model.LocationFix{streamed}, LastHWLocation: streamed, LastLocation: streamed}
	h.nextUpdate(t)

	before := c.State()
	fix, err := c.GetLastFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Paris", fix.FeatureName)

	after := c.State()
	assert.Equal(t, before.ListHead, after.ListHead)
	assert.Equal(t, before.LastHWLocation, after.LastHWLocation)
	assert.Equal(t, before.LastLocation, after.LastLocation)
	require.NotNil(t, after.LastKnown)
	assert.Equal(t, fix, *after.LastKnown)
	assert.Contains(t, h.emitter.names(), model.EventGetLastLocation)
}

func TestGetLastFix_FailureLoggedNotRetried(t *testing.T) {
	h := newHarness()
	h.locs.lastFixErr = errors.New("no cached location")
	c := h.controller()

	_, err := c.GetLastFix(context.Background())
	require.Error(t, err)
	assert.True(t, IsServiceCallFailed(err))
	assert.Equal(t, []string{"last_fix"}, h.calls.list())
	assert.Equal(t, 1, h.errorLogs())
	assert.Nil(t, c.State().LastKnown)
}

func TestForwardGeocode_CapsAtThree(t *testing.T) {
	h := newHarness()
	for i := 0; i < 5; i++ {
		h.geo.results = append(h.geo.results, model.LocationFix{
			Latitude:    52.5 + float64(i),
			Longitude:   13.4,
			FeatureName: fmt.Sprintf("Berlin %d", i),
		})
	}
	c := h.controller()

	results, err := c.ForwardGeocode(context.Background(), "Berlin")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Berlin 0", results[0].FeatureName)
	assert.Equal(t, "Berlin 2", results[2].FeatureName)
	assert.Len(t, c.State().SearchResults, 3)

	assert.Equal(t, "Berlin", h.geo.query.Name)
	assert.Equal(t, MaxGeocodeResults, h.geo.query.MaxResults)
	assert.Equal(t, model.Locale{Language: "en", Country: "us"}, h.geo.query.Locale)
	assert.True(t, c.State().ListHead.IsZero(), "geocoding never touches stream fields")
}

func TestForwardGeocode_Failure(t *testing.T) {
	h := newHarness()
	h.geo.err = errors.New("geocoder quota exceeded")
	c := h.controller()

	_, err := c.ForwardGeocode(context.Background(), "Berlin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocoder quota exceeded")
	assert.Empty(t, c.State().SearchResults)
}

func TestForwardGeocode_EmptyQuery(t *testing.T) {
	h := newHarness()
	c := h.controller()

	_, err := c.ForwardGeocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEnableBackground(t *testing.T) {
	h := newHarness()
	spec := model.NotificationSpec{ContentTitle: "Current Location", ChannelName: "MyChannel", Priority: 2}
	c := h.controller(WithBackgroundNotification(3, spec))

	require.NoError(t, c.EnableBackground(context.Background()))
	assert.Equal(t, 3, h.locs.bgID)
	assert.Equal(t, spec, h.locs.bgSpec)
	assert.Equal(t, []string{model.EventEnableBackground}, h.emitter.names())

	require.NoError(t, c.DisableBackground(context.Background()))
	assert.Equal(t, []string{"enable_background", "disable_background"}, h.calls.list())
}

func TestEnableBackground_Failure(t *testing.T) {
	h := newHarness()
	h.locs.bgErr = errors.New("background location is not supported on this device")
	c := h.controller()

	err := c.EnableBackground(context.Background())
	require.Error(t, err)
	assert.True(t, IsServiceCallFailed(err))
}

type failingRecorder struct {
	calls chan string
}

func (f *failingRecorder) RecordEvent(_ context.Context, ev model.AnalyticsEvent) error {
	f.calls <- ev.Name
	return errors.New("analytics promise rejected")
}

func TestTelemetryFailure_DoesNotAffectPrimaryAction(t *testing.T) {
	h := newHarness()
	h.settings.results = []model.SettingsCheckResult{satisfied()}
	h.locs.lastFix = model.LocationFix{Latitude: 1, Longitude: 2}

	rec := &failingRecorder{calls: make(chan string, 8)}
	em := telemetry.NewEmitter(rec, telemetry.WithLogger(zap.NewNop()))
	em.Start(context.Background())

	c := New(Services{
		Settings:    h.settings,
		Locations:   h.locs,
		Geocoder:    h.geo,
		Permissions: h.perms,
		Telemetry:   em,
	}, testProfile(), WithLogger(zap.NewNop()))
	defer c.Close(context.Background()) //nolint:errcheck

	outcome, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubscribed, outcome)

	fix, err := c.GetLastFix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, fix.Latitude)

	require.NoError(t, em.Close(context.Background()))
	assert.Equal(t, int64(3), em.Stats().Failed)
}

type stuckRecorder struct{ release chan struct{} }

func (s *stuckRecorder) RecordEvent(ctx context.Context, _ model.AnalyticsEvent) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return ctx.Err()
}

func TestTelemetryStall_DoesNotBlockPrimaryAction(t *testing.T) {
	h := newHarness()
	h.locs.lastFix = model.LocationFix{Latitude: 5, Longitude: 6}

	rec := &stuckRecorder{release: make(chan struct{})}
	em := telemetry.NewEmitter(rec, telemetry.WithLogger(zap.NewNop()), telemetry.WithQueueSize(1))
	em.Start(context.Background())
	defer func() {
		close(rec.release)
		_ = em.Close(context.Background())
	}()

	c := New(Services{Locations: h.locs, Telemetry: em}, testProfile(), WithLogger(zap.NewNop()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := c.GetLastFix(context.Background())
			assert.NoError(t, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("primary action blocked on telemetry")
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "subscribed", OutcomeSubscribed.String())
	assert.Equal(t, "permission_denied", OutcomePermissionDenied.String())
	assert.Equal(t, "none", OutcomeNone.String())
}
