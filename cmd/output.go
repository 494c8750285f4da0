package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sells-group/location-cli/internal/model"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatFix renders a fix on one line for terminal output.
func formatFix(f model.LocationFix) string {
	if f.IsZero() {
		return "(none)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%.6f, %.6f", f.Latitude, f.Longitude)
	if f.Provider != "" {
		fmt.Fprintf(&b, " [%s]", f.Provider)
	}
	switch {
	case f.FeatureName != "" && f.Address != "" && f.Address != f.FeatureName:
		fmt.Fprintf(&b, " %s (%s)", f.FeatureName, f.Address)
	case f.FeatureName != "":
		fmt.Fprintf(&b, " %s", f.FeatureName)
	case f.Address != "":
		fmt.Fprintf(&b, " %s", f.Address)
	}
	if f.CountryCode != "" {
		fmt.Fprintf(&b, " %s", strings.ToUpper(f.CountryCode))
	}
	return b.String()
}
