package device

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/pkg/geocode"
)

// Geocoder adapts a geocode.Client to the session's geocoding service and
// to the simulator's address lookup.
type Geocoder struct {
	client geocode.Client
}

// NewGeocoder wraps client.
func NewGeocoder(client geocode.Client) *Geocoder {
	return &Geocoder{client: client}
}

// ForwardGeocode resolves q.Name. An empty result set is not an error.
func (g *Geocoder) ForwardGeocode(ctx context.Context, q model.GeocodeQuery) ([]model.LocationFix, error) {
	loc := q.Locale
	if loc.Language != "" {
		var err error
		if loc, err = loc.Normalize(); err != nil {
			return nil, err
		}
	}
	candidates, err := g.client.Forward(ctx, geocode.Query{
		Text:     q.Name,
		Limit:    q.MaxResults,
		Language: loc.Language,
		Country:  loc.Country,
	})
	if eris.Is(err, geocode.ErrNoResults) {
		return []model.LocationFix{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.LocationFix, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, model.LocationFix{
			Latitude:    c.Latitude,
			Longitude:   c.Longitude,
			Provider:    c.Source,
			FeatureName: c.Name,
			Address:     c.Address,
			CountryCode: c.CountryCode,
		})
	}
	return out, nil
}

// Address fills the descriptive fields of fix from a reverse lookup. A
// coordinate with no known address is returned unchanged.
func (g *Geocoder) Address(ctx context.Context, fix model.LocationFix, language string) (model.LocationFix, error) {
	c, err := g.client.Reverse(ctx, fix.Latitude, fix.Longitude, language)
	if eris.Is(err, geocode.ErrNoResults) {
		return fix, nil
	}
	if err != nil {
		return fix, err
	}
	if c == nil {
		return fix, nil
	}
	fix.FeatureName = c.Name
	fix.Address = c.Address
	fix.CountryCode = c.CountryCode
	return fix, nil
}
