package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/location-cli/internal/model"
)

var lastJSON bool

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the last known location",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, promptOut := stdinPrompt()
		env, err := initEnv(ctx, cfg, in, promptOut)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		granted, err := env.Device.EnsureGranted(ctx, model.CapabilityLocation)
		if err != nil {
			return err
		}
		if !granted {
			fmt.Fprintln(cmd.OutOrStdout(), "Location permission denied; no last location available.")
			return nil
		}

		fix, err := env.Controller.GetLastFix(ctx)
		if err != nil {
			return err
		}
		if lastJSON {
			return writeJSON(cmd.OutOrStdout(), fix)
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatFix(fix))
		return nil
	},
}

func init() {
	lastCmd.Flags().BoolVar(&lastJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(lastCmd)
}
