package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/location-cli/internal/model"
)

var geocodeFormat string

var geocodeCmd = &cobra.Command{
	Use:   "geocode <place name>",
	Short: "Resolve a place name to up to three candidate locations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, nil, nil)
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		results, err := env.Controller.ForwardGeocode(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printCandidates(cmd.OutOrStdout(), results, geocodeFormat)
	},
}

func printCandidates(w io.Writer, results []model.LocationFix, format string) error {
	switch format {
	case "json":
		if results == nil {
			results = []model.LocationFix{}
		}
		return writeJSON(w, results)
	case "geojson":
		return writeJSON(w, model.FeatureCollection(results))
	case "text":
		if len(results) == 0 {
			fmt.Fprintln(w, "no results")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(w, "%d. %s\n", i+1, formatFix(r))
		}
		return nil
	default:
		return eris.Errorf("unsupported format: %s", format)
	}
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeFormat, "format", "text", "output format: text, json or geojson")
	rootCmd.AddCommand(geocodeCmd)
}
