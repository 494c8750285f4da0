package main

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/location-cli/internal/config"
	"github.com/sells-group/location-cli/internal/device"
	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/session"
	"github.com/sells-group/location-cli/internal/store"
)

// testConfig returns an offline config: fast intervals, no geocode
// providers and a sqlite store in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Profile: config.ProfileConfig{
			Priority:          "high_accuracy",
			IntervalMs:        10,
			FastestIntervalMs: 10,
			NumUpdates:        2,
			Language:          "en",
		},
		Background: config.BackgroundConfig{
			NotificationID: 3,
			ContentTitle:   "Current Location",
			ChannelName:    "MyChannel",
			Priority:       2,
			DefType:        "mipmap",
		},
		Geocode:   config.GeocodeConfig{Language: "en", Country: "us"},
		Analytics: config.AnalyticsConfig{Enabled: true, Sink: "store", QueueSize: 16, RecordTimeoutSecs: 5},
		Store:     config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "events.db")},
		Device: config.DeviceConfig{
			GPS:        true,
			Network:    true,
			Background: true,
			Granted:    []string{"location"},
		},
	}
}

func TestInitEnv_TrackEndToEnd(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	env, err := initEnv(ctx, c, nil, nil)
	require.NoError(t, err)

	outcome, err := env.Controller.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, session.OutcomeSubscribed, outcome)

	select {
	case <-env.Controller.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
	st := env.Controller.State()
	assert.False(t, st.LastLocation.IsZero())
	assert.Equal(t, "gps", st.LastHWLocation.Provider)
	assert.True(t, env.Controller.Stats().StreamClosed)

	env.Close(ctx)

	reopened, err := store.NewSQLite(c.Store.SQLitePath)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck
	counts, err := reopened.CountEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.EventCheckSettings])
	assert.Equal(t, 1, counts[model.EventRequestUpdates])
}

func TestInitEnv_PermissionDeniedWithoutPrompt(t *testing.T) {
	c := testConfig(t)
	c.Device.Granted = nil
	ctx := context.Background()

	env, err := initEnv(ctx, c, nil, nil)
	require.NoError(t, err)
	defer env.Close(ctx)

	outcome, err := env.Controller.Start(ctx)
	assert.ErrorIs(t, err, session.ErrPermissionDenied)
	assert.Equal(t, session.OutcomePermissionDenied, outcome)
	assert.True(t, env.Controller.State().LastLocation.IsZero())
}

func TestInitEnv_Background(t *testing.T) {
	c := testConfig(t)
	c.Analytics.Sink = "log"
	ctx := context.Background()

	env, err := initEnv(ctx, c, nil, nil)
	require.NoError(t, err)
	defer env.Close(ctx)
	assert.Nil(t, env.Store)

	require.NoError(t, env.Controller.EnableBackground(ctx))
	spec, ok := env.Device.BackgroundNotification(3)
	require.True(t, ok)
	assert.Equal(t, "Current Location", spec.ContentTitle)
	require.NoError(t, env.Controller.DisableBackground(ctx))
}

func TestInitEnv_Errors(t *testing.T) {
	ctx := context.Background()

	c := testConfig(t)
	c.Profile.Priority = "turbo"
	_, err := initEnv(ctx, c, nil, nil)
	assert.Error(t, err)

	c = testConfig(t)
	c.Device.Granted = []string{"camera"}
	_, err = initEnv(ctx, c, nil, nil)
	assert.Error(t, err)

	c = testConfig(t)
	c.Device.TrackFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initEnv(ctx, c, nil, nil)
	assert.Error(t, err)
}

func TestInitStore_Unsupported(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitRecorder(t *testing.T) {
	rec, err := initRecorder(config.AnalyticsConfig{Sink: "log"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	rec, err = initRecorder(config.AnalyticsConfig{Sink: "webhook", WebhookURL: "http://collector.local/events"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, rec)

	_, err = initRecorder(config.AnalyticsConfig{Sink: "webhook"}, nil)
	assert.Error(t, err)

	_, err = initRecorder(config.AnalyticsConfig{Sink: "store"}, nil)
	assert.Error(t, err)

	_, err = initRecorder(config.AnalyticsConfig{Sink: "kafka"}, nil)
	assert.Error(t, err)
}

// loadedConfig returns config.Load defaults from an empty directory, made
// offline and fast: no address lookup, no geocode providers, a temp store.
func loadedConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	c, err := config.Load()
	require.NoError(t, err)

	c.Profile.IntervalMs = 10
	c.Profile.FastestIntervalMs = 10
	c.Profile.NumUpdates = 2
	c.Profile.NeedAddress = false
	c.Geocode.Providers = nil
	c.Geocode.Reverse = nil
	c.Store.SQLitePath = filepath.Join(t.TempDir(), "events.db")
	return c
}

func TestTrack_DefaultConfigSubscribesAfterGrant(t *testing.T) {
	c := loadedConfig(t)
	require.Empty(t, c.Device.Granted)
	require.True(t, c.Device.Interactive)
	require.False(t, c.Profile.RevalidateAfterGrant)
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		env, err := initEnv(ctx, c, strings.NewReader("y\n"), io.Discard, trackOptions(io.Discard, false)...)
		require.NoError(t, err)

		outcome, err := env.Controller.Start(ctx)
		require.NoError(t, err, "run %d", run)
		assert.Equal(t, session.OutcomeSubscribed, outcome, "run %d", run)

		select {
		case <-env.Controller.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d: stream did not finish", run)
		}
		assert.False(t, env.Controller.State().LastLocation.IsZero())
		env.Close(ctx)
	}
}

func TestTrack_DeclinedPromptStops(t *testing.T) {
	c := loadedConfig(t)
	ctx := context.Background()

	env, err := initEnv(ctx, c, strings.NewReader("n\n"), io.Discard, trackOptions(io.Discard, false)...)
	require.NoError(t, err)
	defer env.Close(ctx)

	outcome, err := env.Controller.Start(ctx)
	assert.ErrorIs(t, err, session.ErrPermissionDenied)
	assert.Equal(t, session.OutcomePermissionDenied, outcome)
}

func TestLast_DefaultConfigReturnsCachedFix(t *testing.T) {
	c := loadedConfig(t)
	c.Device.Granted = []string{"location"}
	ctx := context.Background()

	env, err := initEnv(ctx, c, nil, nil)
	require.NoError(t, err)
	defer env.Close(ctx)

	fix, err := env.Controller.GetLastFix(ctx)
	require.NoError(t, err)
	start := device.DefaultTrack().Points[0]
	assert.InDelta(t, start.Latitude, fix.Latitude, 1e-9)
	assert.InDelta(t, start.Longitude, fix.Longitude, 1e-9)
	assert.Equal(t, "fused", fix.Provider)
	known := env.Controller.State().LastKnown
	require.NotNil(t, known)
	assert.Equal(t, fix, *known)
}

func TestLast_NoSeedHasNoLocation(t *testing.T) {
	c := loadedConfig(t)
	c.Device.Granted = []string{"location"}
	c.Device.SeedLastFix = false
	ctx := context.Background()

	env, err := initEnv(ctx, c, nil, nil)
	require.NoError(t, err)
	defer env.Close(ctx)

	_, err = env.Controller.GetLastFix(ctx)
	assert.ErrorIs(t, err, device.ErrNoLocation)
}

func TestCachedFix(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	fix := cachedFix(device.DefaultTrack(), now)
	assert.Equal(t, "fused", fix.Provider)
	assert.Equal(t, now, fix.Time)

	stamped := now.Add(-time.Hour)
	track := device.Track{Points: []model.LocationFix{{Latitude: 1, Longitude: 2, Provider: "gps", Time: stamped}}}
	fix = cachedFix(track, now)
	assert.Equal(t, "gps", fix.Provider)
	assert.Equal(t, stamped, fix.Time)
}
