package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/location-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Profile    ProfileConfig    `yaml:"profile" mapstructure:"profile"`
	Settings   SettingsConfig   `yaml:"settings" mapstructure:"settings"`
	Background BackgroundConfig `yaml:"background" mapstructure:"background"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Analytics  AnalyticsConfig  `yaml:"analytics" mapstructure:"analytics"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Device     DeviceConfig     `yaml:"device" mapstructure:"device"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// ProfileConfig configures the location request profile. Durations are in
// milliseconds.
type ProfileConfig struct {
	Priority             string  `yaml:"priority" mapstructure:"priority"`
	IntervalMs           int     `yaml:"interval_ms" mapstructure:"interval_ms"`
	FastestIntervalMs    int     `yaml:"fastest_interval_ms" mapstructure:"fastest_interval_ms"`
	NumUpdates           int     `yaml:"num_updates" mapstructure:"num_updates"`
	SmallestDisplacement float64 `yaml:"smallest_displacement" mapstructure:"smallest_displacement"`
	ExpirationMs         int     `yaml:"expiration_ms" mapstructure:"expiration_ms"`
	MaxWaitMs            int     `yaml:"max_wait_ms" mapstructure:"max_wait_ms"`
	NeedAddress          bool    `yaml:"need_address" mapstructure:"need_address"`
	Language             string  `yaml:"language" mapstructure:"language"`
	CountryCode          string  `yaml:"country_code" mapstructure:"country_code"`
	RevalidateAfterGrant bool    `yaml:"revalidate_after_grant" mapstructure:"revalidate_after_grant"`
}

// ToProfile converts the config into a validated request profile.
func (p ProfileConfig) ToProfile() (model.LocationRequestProfile, error) {
	prio, err := model.ParsePriority(p.Priority)
	if err != nil {
		return model.LocationRequestProfile{}, eris.Wrap(err, "config: profile priority")
	}
	out := model.LocationRequestProfile{
		Priority:             prio,
		Interval:             ms(p.IntervalMs),
		FastestInterval:      ms(p.FastestIntervalMs),
		NumUpdates:           p.NumUpdates,
		SmallestDisplacement: p.SmallestDisplacement,
		Expiration:           ms(p.ExpirationMs),
		MaxWaitTime:          ms(p.MaxWaitMs),
		NeedAddress:          p.NeedAddress,
		Language:             p.Language,
		CountryCode:          p.CountryCode,
	}
	if err := out.Validate(); err != nil {
		return model.LocationRequestProfile{}, eris.Wrap(err, "config: profile")
	}
	return out, nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// SettingsConfig holds the session-level flags of the settings check.
type SettingsConfig struct {
	AlwaysShow bool `yaml:"always_show" mapstructure:"always_show"`
	NeedBLE    bool `yaml:"need_ble" mapstructure:"need_ble"`
}

// BackgroundConfig describes the background location notification.
type BackgroundConfig struct {
	NotificationID int    `yaml:"notification_id" mapstructure:"notification_id"`
	ContentTitle   string `yaml:"content_title" mapstructure:"content_title"`
	ContentText    string `yaml:"content_text" mapstructure:"content_text"`
	Category       string `yaml:"category" mapstructure:"category"`
	Priority       int    `yaml:"priority" mapstructure:"priority"`
	ChannelName    string `yaml:"channel_name" mapstructure:"channel_name"`
	DefType        string `yaml:"def_type" mapstructure:"def_type"`
	ResourceName   string `yaml:"resource_name" mapstructure:"resource_name"`
}

// Notification returns the notification spec.
func (b BackgroundConfig) Notification() model.NotificationSpec {
	return model.NotificationSpec{
		ContentTitle: b.ContentTitle,
		ContentText:  b.ContentText,
		Category:     b.Category,
		Priority:     b.Priority,
		ChannelName:  b.ChannelName,
		DefType:      b.DefType,
		ResourceName: b.ResourceName,
	}
}

// GeocodeConfig configures the geocoding providers.
type GeocodeConfig struct {
	Language  string   `yaml:"language" mapstructure:"language"`
	Country   string   `yaml:"country" mapstructure:"country"`
	Providers []string `yaml:"providers" mapstructure:"providers"`
	Reverse   []string `yaml:"reverse" mapstructure:"reverse"`

	NominatimURL string  `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	NominatimRPS float64 `yaml:"nominatim_rps" mapstructure:"nominatim_rps"`

	GoogleAPIKey string `yaml:"google_api_key" mapstructure:"google_api_key"`

	TigerDatabaseURL string `yaml:"tiger_database_url" mapstructure:"tiger_database_url"`
	TigerMaxRating   int    `yaml:"tiger_max_rating" mapstructure:"tiger_max_rating"`
}

// Locale returns the forward geocoding locale.
func (g GeocodeConfig) Locale() model.Locale {
	return model.Locale{Language: g.Language, Country: g.Country}
}

// AnalyticsConfig configures event collection and delivery.
type AnalyticsConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	Sink              string        `yaml:"sink" mapstructure:"sink"` // store, webhook, log
	WebhookURL        string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	QueueSize         int           `yaml:"queue_size" mapstructure:"queue_size"`
	RateLimit         float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	RecordTimeoutSecs int           `yaml:"record_timeout_secs" mapstructure:"record_timeout_secs"`
	Retry             RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker           BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// RetryConfig configures webhook retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// BreakerConfig configures the webhook circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CoolDownSecs     int `yaml:"cool_down_secs" mapstructure:"cool_down_secs"`
}

// StoreConfig configures analytics persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DeviceConfig configures the simulated device.
type DeviceConfig struct {
	GPS         bool     `yaml:"gps" mapstructure:"gps"`
	Network     bool     `yaml:"network" mapstructure:"network"`
	BLE         bool     `yaml:"ble" mapstructure:"ble"`
	Background  bool     `yaml:"background" mapstructure:"background"`
	TrackFile   string   `yaml:"track_file" mapstructure:"track_file"`
	Granted     []string `yaml:"granted" mapstructure:"granted"`
	Interactive bool     `yaml:"interactive" mapstructure:"interactive"`
	SeedLastFix bool     `yaml:"seed_last_fix" mapstructure:"seed_last_fix"` // cache the track's first point as the last known fix
}

// Capabilities returns the pre-granted capabilities.
func (d DeviceConfig) Capabilities() ([]model.Capability, error) {
	out := make([]model.Capability, 0, len(d.Granted))
	for _, g := range d.Granted {
		c := model.Capability(strings.ToLower(strings.TrimSpace(g)))
		switch c {
		case model.CapabilityLocation, model.CapabilityBackgroundLocation:
			out = append(out, c)
		default:
			return nil, eris.Errorf("config: unknown capability %q", g)
		}
	}
	return out, nil
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the alert checker.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DroppedEventsThreshold int64   `yaml:"dropped_events_threshold" mapstructure:"dropped_events_threshold"`
	StaleStreamSecs        int     `yaml:"stale_stream_secs" mapstructure:"stale_stream_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. AutomaticEnv only
// resolves keys viper already knows, so every field needs a default.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOCATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("profile.priority", "high_accuracy")
	v.SetDefault("profile.interval_ms", 1000)
	v.SetDefault("profile.fastest_interval_ms", 1000)
	v.SetDefault("profile.num_updates", 10)
	v.SetDefault("profile.smallest_displacement", 0)
	v.SetDefault("profile.expiration_ms", 200000)
	v.SetDefault("profile.max_wait_ms", 0)
	v.SetDefault("profile.need_address", true)
	v.SetDefault("profile.language", "en")
	v.SetDefault("profile.country_code", "en")
	v.SetDefault("profile.revalidate_after_grant", false)

	v.SetDefault("settings.always_show", true)
	v.SetDefault("settings.need_ble", true)

	v.SetDefault("background.notification_id", 3)
	v.SetDefault("background.content_title", "Current Location")
	v.SetDefault("background.content_text", "Location Notification")
	v.SetDefault("background.category", "service")
	v.SetDefault("background.priority", 2)
	v.SetDefault("background.channel_name", "MyChannel")
	v.SetDefault("background.def_type", "mipmap")
	v.SetDefault("background.resource_name", "ic_launcher")

	v.SetDefault("geocode.language", "en")
	v.SetDefault("geocode.country", "us")
	v.SetDefault("geocode.providers", []string{"nominatim", "google"})
	v.SetDefault("geocode.reverse", []string{"nominatim"})
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "location-cli/1.0")
	v.SetDefault("geocode.nominatim_rps", 1)
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.tiger_database_url", "")
	v.SetDefault("geocode.tiger_max_rating", 20)

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.sink", "store")
	v.SetDefault("analytics.webhook_url", "")
	v.SetDefault("analytics.queue_size", 256)
	v.SetDefault("analytics.rate_limit", 0)
	v.SetDefault("analytics.burst", 10)
	v.SetDefault("analytics.record_timeout_secs", 10)
	v.SetDefault("analytics.retry.max_attempts", 3)
	v.SetDefault("analytics.retry.initial_backoff_ms", 200)
	v.SetDefault("analytics.retry.max_backoff_ms", 5000)
	v.SetDefault("analytics.breaker.failure_threshold", 5)
	v.SetDefault("analytics.breaker.cool_down_secs", 30)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "location.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)

	v.SetDefault("device.gps", true)
	v.SetDefault("device.network", true)
	v.SetDefault("device.ble", true)
	v.SetDefault("device.background", true)
	v.SetDefault("device.granted", []string{})
	v.SetDefault("device.interactive", true)
	v.SetDefault("device.track_file", "")
	v.SetDefault("device.seed_last_fix", true)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.dropped_events_threshold", 1)
	v.SetDefault("monitoring.stale_stream_secs", 60)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
