package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/config"
)

var (
	cfg *config.Config

	grantFlags []string
	trackFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "location-cli",
	Short: "Location session workflow on a simulated device",
	Long:  "Validates location settings, remediates permissions, streams location updates, geocodes place names and records analytics events.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyDeviceFlags(c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		logSessionSetup(zap.L(), cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyDeviceFlags layers the device flags over the loaded config. Granted
// capabilities add to device.granted rather than replacing it.
func applyDeviceFlags(c *config.Config) {
	c.Device.Granted = append(c.Device.Granted, grantFlags...)
	if trackFlag != "" {
		c.Device.TrackFile = trackFlag
	}
}

func logSessionSetup(log *zap.Logger, c *config.Config) {
	log.Debug("location session setup",
		zap.String("priority", c.Profile.Priority),
		zap.Int("interval_ms", c.Profile.IntervalMs),
		zap.Int("num_updates", c.Profile.NumUpdates),
		zap.Bool("need_address", c.Profile.NeedAddress),
		zap.Bool("gps", c.Device.GPS),
		zap.Bool("network", c.Device.Network),
		zap.Bool("ble", c.Device.BLE),
		zap.Strings("granted", c.Device.Granted),
		zap.String("track_file", c.Device.TrackFile),
		zap.String("analytics_sink", c.Analytics.Sink),
	)
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&grantFlags, "grant", nil, "pre-grant capabilities (location, background_location)")
	rootCmd.PersistentFlags().StringVar(&trackFlag, "track", "", "YAML track file replayed by the simulated device")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
