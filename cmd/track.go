package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/session"
)

var (
	trackUpdates    int
	trackJSON       bool
	trackBackground bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Check settings, request permission if needed, and stream location updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if trackUpdates > 0 {
			cfg.Profile.NumUpdates = trackUpdates
		}

		out := cmd.OutOrStdout()
		in, promptOut := stdinPrompt()
		env, err := initEnv(ctx, cfg, in, promptOut, trackOptions(out, trackJSON)...)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		outcome, err := env.Controller.Start(ctx)
		switch {
		case eris.Is(err, session.ErrPermissionDenied):
			fmt.Fprintln(out, "Location permission denied; not requesting updates.")
			return nil
		case eris.Is(err, session.ErrSettingsUnsatisfied):
			fmt.Fprintln(out, "Location settings do not meet the request profile; not requesting updates.")
			return nil
		case err != nil:
			return err
		}
		zap.L().Info("session started", zap.String("outcome", outcome.String()))

		if trackBackground {
			if err := env.Controller.EnableBackground(ctx); err != nil {
				zap.L().Warn("background location unavailable", zap.Error(err))
			} else {
				defer env.Controller.DisableBackground(ctx) //nolint:errcheck
			}
		}

		select {
		case <-env.Controller.Done():
		case <-ctx.Done():
		}

		stats := env.Controller.Stats()
		zap.L().Info("tracking finished",
			zap.Int("updates", stats.Updates),
			zap.Bool("stream_closed", stats.StreamClosed),
		)
		if trackJSON {
			return writeJSON(out, env.Controller.State())
		}
		return nil
	},
}

// trackOptions configures a one-shot CLI session. A grant made at the
// prompt lives only as long as the process, so the session re-checks
// settings and subscribes in the same run.
func trackOptions(out io.Writer, asJSON bool) []session.Option {
	return []session.Option{
		session.WithRevalidateAfterGrant(true),
		session.WithObserver(stateObserver(out, asJSON)),
	}
}

// stateObserver prints each projected state as it arrives.
func stateObserver(w io.Writer, asJSON bool) func(model.SessionState) {
	n := 0
	return func(st model.SessionState) {
		n++
		if asJSON {
			_ = writeJSON(w, st)
			return
		}
		fmt.Fprintf(w, "#%d  list head: %s\n", n, formatFix(st.ListHead))
		fmt.Fprintf(w, "    last hw:   %s\n", formatFix(st.LastHWLocation))
		fmt.Fprintf(w, "    last:      %s\n", formatFix(st.LastLocation))
	}
}

func init() {
	trackCmd.Flags().IntVar(&trackUpdates, "updates", 0, "number of updates (default from config)")
	trackCmd.Flags().BoolVar(&trackJSON, "json", false, "print states as JSON")
	trackCmd.Flags().BoolVar(&trackBackground, "background", false, "keep location running behind a notification")
	rootCmd.AddCommand(trackCmd)
}
