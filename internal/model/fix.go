package model

import (
	"time"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// earthRadiusM is the mean Earth radius used for great-circle distances.
const earthRadiusM = 6371008.8

// LocationFix is a single positional sample. The zero value is the empty
// record shown before any fix has arrived.
type LocationFix struct {
	Latitude    float64   `json:"latitude" yaml:"latitude"`
	Longitude   float64   `json:"longitude" yaml:"longitude"`
	Altitude    float64   `json:"altitude,omitempty" yaml:"altitude,omitempty"`
	Accuracy    float64   `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
	Speed       float64   `json:"speed,omitempty" yaml:"speed,omitempty"`
	Bearing     float64   `json:"bearing,omitempty" yaml:"bearing,omitempty"`
	Provider    string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	FeatureName string    `json:"feature_name,omitempty" yaml:"feature_name,omitempty"`
	Address     string    `json:"address,omitempty" yaml:"address,omitempty"`
	CountryCode string    `json:"country_code,omitempty" yaml:"country_code,omitempty"`
	Time        time.Time `json:"time,omitzero" yaml:"time,omitempty"`
}

// IsZero reports whether f is the empty record.
func (f LocationFix) IsZero() bool {
	return f == LocationFix{}
}

// Point returns the fix as a WGS84 point (x = longitude, y = latitude).
func (f LocationFix) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{f.Longitude, f.Latitude}).SetSRID(4326)
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b *geom.Point) float64 {
	from := s2.LatLngFromDegrees(a.Y(), a.X())
	to := s2.LatLngFromDegrees(b.Y(), b.X())
	return from.Distance(to).Radians() * earthRadiusM
}

// FeatureCollection renders fixes as GeoJSON features carrying their
// descriptive fields as properties.
func FeatureCollection(fixes []LocationFix) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(fixes))}
	for _, f := range fixes {
		props := map[string]any{}
		if f.FeatureName != "" {
			props["feature_name"] = f.FeatureName
		}
		if f.Address != "" {
			props["address"] = f.Address
		}
		if f.CountryCode != "" {
			props["country_code"] = f.CountryCode
		}
		if f.Provider != "" {
			props["provider"] = f.Provider
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Point(),
			Properties: props,
		})
	}
	return fc
}

// UpdateBatch is one delivery on a location subscription.
type UpdateBatch struct {
	Locations      []LocationFix `json:"locations"`
	LastHWLocation LocationFix   `json:"last_hw_location"`
	LastLocation   LocationFix   `json:"last_location"`
}

// SubscriptionHandle identifies a streaming subscription for cancellation.
type SubscriptionHandle struct {
	ID          string `json:"id"`
	RequestCode int    `json:"request_code"`
}

// IsZero reports whether h refers to no subscription.
func (h SubscriptionHandle) IsZero() bool {
	return h.ID == ""
}

// SessionState is the presentation-visible view of a location session.
// ListHead, LastHWLocation and LastLocation belong to the update stream;
// LastKnown and SearchResults are written only by on-demand operations.
type SessionState struct {
	ListHead       LocationFix   `json:"list_head"`
	LastHWLocation LocationFix   `json:"last_hw_location"`
	LastLocation   LocationFix   `json:"last_location"`
	LastKnown      *LocationFix  `json:"last_known,omitempty"`
	SearchResults  []LocationFix `json:"search_results,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at,omitzero"`
}
