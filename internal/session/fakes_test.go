package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/location-cli/internal/model"
)

// callLog records the order platform capabilities are invoked in.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSettings struct {
	log     *callLog
	results []model.SettingsCheckResult
	errs    []error
	n       int
}

func (f *fakeSettings) CheckSettings(_ context.Context, _ model.SettingsRequest) (model.SettingsCheckResult, error) {
	f.log.record("settings")
	i := f.n
	f.n++
	var res model.SettingsCheckResult
	var err error
	if i < len(f.results) {
		res = f.results[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

type fakePermissions struct {
	log     *callLog
	granted bool
	err     error
}

func (f *fakePermissions) EnsureGranted(_ context.Context, _ model.Capability) (bool, error) {
	f.log.record("permission")
	return f.granted, f.err
}

type fakeLocations struct {
	log *callLog

	mu           sync.Mutex
	streams      []chan model.UpdateBatch
	unsubscribed []model.SubscriptionHandle
	subscribeErr error
	lastFix      model.LocationFix
	lastFixErr   error
	bgErr        error
	bgID         int
	bgSpec       model.NotificationSpec
}

func (f *fakeLocations) LastFix(_ context.Context) (model.LocationFix, error) {
	f.log.record("last_fix")
	return f.lastFix, f.lastFixErr
}

func (f *fakeLocations) Subscribe(_ context.Context, _ model.LocationRequestProfile) (model.SubscriptionHandle, <-chan model.UpdateBatch, error) {
	f.log.record("subscribe")
	if f.subscribeErr != nil {
		return model.SubscriptionHandle{}, nil, f.subscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan model.UpdateBatch, 8)
	f.streams = append(f.streams, ch)
	n := len(f.streams)
	return model.SubscriptionHandle{ID: fmt.Sprintf("sub-%d", n), RequestCode: n}, ch, nil
}

func (f *fakeLocations) Unsubscribe(_ context.Context, h model.SubscriptionHandle) error {
	f.log.record("unsubscribe")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, h)
	return nil
}

func (f *fakeLocations) EnableBackground(_ context.Context, id int, spec model.NotificationSpec) error {
	f.log.record("enable_background")
	f.bgID, f.bgSpec = id, spec
	return f.bgErr
}

func (f *fakeLocations) DisableBackground(_ context.Context, _ int) error {
	f.log.record("disable_background")
	return f.bgErr
}

func (f *fakeLocations) stream(i int) chan model.UpdateBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type fakeGeocoder struct {
	results []model.LocationFix
	err     error
	query   model.GeocodeQuery
}

func (f *fakeGeocoder) ForwardGeocode(_ context.Context, q model.GeocodeQuery) ([]model.LocationFix, error) {
	f.query = q
	return f.results, f.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) Emit(name string, _ map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, name)
}

func (e *recordingEmitter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

type harness struct {
	calls    *callLog
	settings *fakeSettings
	perms    *fakePermissions
	locs     *fakeLocations
	geo      *fakeGeocoder
	emitter  *recordingEmitter
	logs     *observer.ObservedLogs
	updates  chan model.SessionState
}

func newHarness() *harness {
	calls := &callLog{}
	return &harness{
		calls:    calls,
		settings: &fakeSettings{log: calls},
		perms:    &fakePermissions{log: calls},
		locs:     &fakeLocations{log: calls},
		geo:      &fakeGeocoder{},
		emitter:  &recordingEmitter{},
		updates:  make(chan model.SessionState, 16),
	}
}

func (h *harness) controller(opts ...Option) *Controller {
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	base := []Option{
		WithLogger(zap.New(core)),
		WithObserver(func(s model.SessionState) { h.updates <- s }),
	}
	return New(Services{
		Settings:    h.settings,
		Locations:   h.locs,
		Geocoder:    h.geo,
		Permissions: h.perms,
		Telemetry:   h.emitter,
	}, testProfile(), append(base, opts...)...)
}

func (h *harness) errorLogs() int {
	return h.logs.FilterLevelExact(zapcore.ErrorLevel).Len()
}

func (h *harness) nextUpdate(t *testing.T) model.SessionState {
	t.Helper()
	select {
	case s := <-h.updates:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream update")
		return model.SessionState{}
	}
}

func testProfile() model.LocationRequestProfile {
	return model.LocationRequestProfile{
		Priority:        model.PriorityHighAccuracy,
		Interval:        time.Second,
		FastestInterval: time.Second,
		NumUpdates:      10,
		NeedAddress:     true,
		Language:        "en",
		CountryCode:     "us",
	}
}
