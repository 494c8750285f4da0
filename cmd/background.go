package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Background location notification",
}

var backgroundEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Post the notification that keeps location running in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, promptOut := stdinPrompt()
		env, err := initEnv(ctx, cfg, in, promptOut)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		if err := env.Controller.EnableBackground(ctx); err != nil {
			return err
		}
		spec, _ := env.Device.BackgroundNotification(cfg.Background.NotificationID)
		fmt.Fprintf(cmd.OutOrStdout(), "background location enabled (notification %d: %q on channel %s)\n",
			cfg.Background.NotificationID, spec.ContentTitle, spec.ChannelName)
		return nil
	},
}

var backgroundDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the background location notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, nil, nil)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		// The simulated device keeps no state between runs, so the
		// notification is posted first and then removed.
		if err := env.Controller.EnableBackground(ctx); err != nil {
			return err
		}
		if err := env.Controller.DisableBackground(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "background location disabled")
		return nil
	},
}

func init() {
	backgroundCmd.AddCommand(backgroundEnableCmd, backgroundDisableCmd)
	rootCmd.AddCommand(backgroundCmd)
}
