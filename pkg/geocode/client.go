// Package geocode resolves place names to coordinates and coordinates to
// addresses through a cascade of providers (Nominatim, Google, PostGIS TIGER).
package geocode

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoResults is returned when every provider came back empty.
var ErrNoResults = eris.New("geocode: no results")

// Query is a forward geocoding request.
type Query struct {
	Text     string
	Limit    int
	Language string // BCP 47 base language, e.g. "en"
	Country  string // ISO 3166-1 alpha-2, lower or upper case
}

func (q Query) normalized() (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, eris.New("geocode: query text is required")
	}
	if q.Limit <= 0 {
		q.Limit = 1
	}
	q.Country = strings.ToLower(q.Country)
	return q, nil
}

// Candidate is one geocoding result.
type Candidate struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	CountryCode string  `json:"country_code,omitempty"`
	Source      string  `json:"source"`
	Quality     string  `json:"quality,omitempty"` // "rooftop", "range", "centroid", "approximate"
}

// Provider is a single forward geocoding backend.
type Provider interface {
	Name() string
	Available() bool
	Forward(ctx context.Context, q Query) ([]Candidate, error)
}

// Reverser turns a coordinate into an address.
type Reverser interface {
	Name() string
	Reverse(ctx context.Context, lat, lng float64, language string) (*Candidate, error)
}

// Client is the geocoding surface used by the location service.
type Client interface {
	Forward(ctx context.Context, q Query) ([]Candidate, error)
	Reverse(ctx context.Context, lat, lng float64, language string) (*Candidate, error)
}
