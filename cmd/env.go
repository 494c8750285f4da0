package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/config"
	"github.com/sells-group/location-cli/internal/device"
	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/resilience"
	"github.com/sells-group/location-cli/internal/session"
	"github.com/sells-group/location-cli/internal/store"
	"github.com/sells-group/location-cli/internal/telemetry"
	"github.com/sells-group/location-cli/pkg/geocode"
)

// sessionEnv holds everything a command needs to drive a location session.
type sessionEnv struct {
	Store      store.Store // nil when analytics does not persist
	Emitter    *telemetry.Emitter
	Device     *device.Simulator
	Controller *session.Controller

	tigerPool *pgxpool.Pool
}

// Close flushes analytics and releases resources.
func (e *sessionEnv) Close(ctx context.Context) {
	if e.Controller != nil {
		_ = e.Controller.Close(ctx)
	}
	if e.Emitter != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.Emitter.Close(flushCtx); err != nil {
			zap.L().Warn("analytics flush incomplete", zap.Error(err))
		}
		cancel()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.tigerPool != nil {
		e.tigerPool.Close()
	}
}

// initEnv builds the store, analytics emitter, geocoder, simulated device and
// session controller from cfg. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, promptIn io.Reader, promptOut io.Writer, opts ...session.Option) (*sessionEnv, error) {
	profile, err := c.Profile.ToProfile()
	if err != nil {
		return nil, err
	}

	env := &sessionEnv{}
	fail := func(err error) (*sessionEnv, error) {
		env.Close(ctx)
		return nil, err
	}

	if c.Analytics.Sink == "store" {
		st, err := initStore(ctx, c.Store)
		if err != nil {
			return fail(err)
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			return fail(eris.Wrap(err, "migrate store"))
		}
	}

	rec, err := initRecorder(c.Analytics, env.Store)
	if err != nil {
		return fail(err)
	}
	env.Emitter = telemetry.NewEmitter(rec,
		telemetry.WithQueueSize(c.Analytics.QueueSize),
		telemetry.WithRecordTimeout(time.Duration(c.Analytics.RecordTimeoutSecs)*time.Second),
		telemetry.WithRateLimit(c.Analytics.RateLimit, c.Analytics.Burst),
	)
	env.Emitter.Start(ctx)
	env.Emitter.SetEnabled(c.Analytics.Enabled)

	if c.Geocode.TigerDatabaseURL != "" {
		pool, err := pgxpool.New(ctx, c.Geocode.TigerDatabaseURL)
		if err != nil {
			return fail(eris.Wrap(err, "connect tiger database"))
		}
		env.tigerPool = pool
	}
	geocoder := device.NewGeocoder(buildGeocodeClient(c.Geocode, env.tigerPool))

	caps, err := c.Device.Capabilities()
	if err != nil {
		return fail(err)
	}
	var prompt device.Prompter
	if c.Device.Interactive && promptIn != nil {
		prompt = device.NewTerminalPrompt(promptIn, promptOut)
	}
	perms := device.NewPermissions(prompt, caps...)

	track := device.DefaultTrack()
	if c.Device.TrackFile != "" {
		if track, err = device.LoadTrack(c.Device.TrackFile); err != nil {
			return fail(err)
		}
	}
	simOpts := []device.Option{device.WithAddresser(geocoder), device.WithTrack(track)}
	if c.Device.SeedLastFix {
		simOpts = append(simOpts, device.WithCachedFix(cachedFix(track, time.Now())))
	}
	env.Device = device.NewSimulator(device.Hardware{
		GPS:        c.Device.GPS,
		Network:    c.Device.Network,
		BLE:        c.Device.BLE,
		Background: c.Device.Background,
	}, perms, simOpts...)

	sessOpts := append([]session.Option{
		session.WithSettingsFlags(c.Settings.AlwaysShow, c.Settings.NeedBLE),
		session.WithRevalidateAfterGrant(c.Profile.RevalidateAfterGrant),
		session.WithBackgroundNotification(c.Background.NotificationID, c.Background.Notification()),
		session.WithLocale(c.Geocode.Locale()),
	}, opts...)
	env.Controller = session.New(session.Services{
		Settings:    env.Device,
		Locations:   env.Device,
		Geocoder:    geocoder,
		Permissions: env.Device,
		Telemetry:   env.Emitter,
	}, profile, sessOpts...)
	return env, nil
}

// cachedFix stands in for the fix a real device keeps between runs: the
// track's starting point, stamped now when the track carries no time.
func cachedFix(t device.Track, now time.Time) model.LocationFix {
	fix := t.Points[0]
	if fix.Provider == "" {
		fix.Provider = "fused"
	}
	if fix.Time.IsZero() {
		fix.Time = now.UTC()
	}
	return fix
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.SQLitePath
		if dsn == "" {
			dsn = "location.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// initRecorder picks the analytics sink. Every sink also logs at debug level.
func initRecorder(ac config.AnalyticsConfig, st store.Store) (telemetry.Recorder, error) {
	logRec := telemetry.NewLogRecorder(zap.L())
	switch ac.Sink {
	case "store":
		if st == nil {
			return nil, eris.New("analytics sink \"store\" needs a store")
		}
		return telemetry.Multi(st, logRec), nil
	case "webhook":
		if ac.WebhookURL == "" {
			return nil, eris.New("analytics webhook url is required (LOCATION_ANALYTICS_WEBHOOK_URL)")
		}
		wh := telemetry.NewWebhookRecorder(ac.WebhookURL,
			telemetry.WithWebhookRetry(resilience.RetryFromConfig(ac.Retry.MaxAttempts, ac.Retry.InitialBackoffMs, ac.Retry.MaxBackoffMs)),
			telemetry.WithWebhookBreaker(resilience.BreakerFromConfig(ac.Breaker.FailureThreshold, ac.Breaker.CoolDownSecs)),
		)
		return telemetry.Multi(wh, logRec), nil
	case "log", "":
		return logRec, nil
	default:
		return nil, eris.Errorf("unsupported analytics sink: %s", ac.Sink)
	}
}

// buildGeocodeClient assembles the forward and reverse cascades in the
// configured order. Unknown or unavailable providers are skipped.
func buildGeocodeClient(gc config.GeocodeConfig, tigerPool *pgxpool.Pool) *geocode.CascadeClient {
	nominatim := geocode.NewNominatimProvider(
		geocode.WithNominatimURL(gc.NominatimURL),
		geocode.WithUserAgent(gc.UserAgent),
		geocode.WithNominatimRateLimit(gc.NominatimRPS),
	)
	google := geocode.NewGoogleProvider(gc.GoogleAPIKey, nil)
	var tiger *geocode.TigerProvider
	if tigerPool != nil {
		tiger = geocode.NewTigerProvider(tigerPool, gc.TigerMaxRating)
	}

	byName := func(name string) (geocode.Provider, bool) {
		switch name {
		case "nominatim":
			return nominatim, nominatim.Available()
		case "google":
			return google, google.Available()
		case "tiger":
			if tiger == nil {
				return nil, false
			}
			return tiger, true
		default:
			zap.L().Warn("unknown geocode provider", zap.String("provider", name))
			return nil, false
		}
	}

	var providers []geocode.Provider
	for _, name := range gc.Providers {
		if p, ok := byName(name); ok {
			providers = append(providers, p)
		}
	}
	var reversers []geocode.Reverser
	for _, name := range gc.Reverse {
		if p, ok := byName(name); ok {
			if r, ok := p.(geocode.Reverser); ok {
				reversers = append(reversers, r)
			}
		}
	}
	return geocode.NewCascadeClient(providers, geocode.WithReversers(reversers...))
}

// stdinPrompt returns the reader used for permission prompts.
func stdinPrompt() (io.Reader, io.Writer) {
	return os.Stdin, os.Stderr
}
