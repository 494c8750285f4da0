package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
}

func (r googleResult) candidate() Candidate {
	c := Candidate{
		Latitude:  r.Geometry.Location.Lat,
		Longitude: r.Geometry.Location.Lng,
		Address:   r.FormattedAddress,
		Source:    "google",
		Quality:   googleLocationTypeToQuality(r.Geometry.LocationType),
	}
	for _, comp := range r.AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "country":
				c.CountryCode = comp.ShortName
			case "locality", "point_of_interest", "establishment":
				if c.Name == "" {
					c.Name = comp.LongName
				}
			}
		}
	}
	if c.Name == "" {
		c.Name, _, _ = strings.Cut(r.FormattedAddress, ",")
	}
	return c
}

// GoogleProvider geocodes with the Google Geocoding API.
type GoogleProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGoogleProvider creates a GoogleProvider. It is unavailable without a key.
func NewGoogleProvider(apiKey string, hc *http.Client) *GoogleProvider {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleProvider{
		apiKey:     apiKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(50, 50),
	}
}

// Name implements Provider.
func (g *GoogleProvider) Name() string { return "google" }

// Available implements Provider.
func (g *GoogleProvider) Available() bool { return g.apiKey != "" }

// Forward implements Provider.
func (g *GoogleProvider) Forward(ctx context.Context, q Query) ([]Candidate, error) {
	params := url.Values{"address": {q.Text}}
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if q.Country != "" {
		params.Set("region", q.Country)
	}
	results, err := g.call(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, min(len(results), q.Limit))
	for _, r := range results {
		if len(out) == q.Limit {
			break
		}
		out = append(out, r.candidate())
	}
	return out, nil
}

// Reverse implements Reverser.
func (g *GoogleProvider) Reverse(ctx context.Context, lat, lng float64, language string) (*Candidate, error) {
	params := url.Values{
		"latlng": {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)},
	}
	if language != "" {
		params.Set("language", language)
	}
	results, err := g.call(ctx, params)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	c := results[0].candidate()
	return &c, nil
}

func (g *GoogleProvider) call(ctx context.Context, params url.Values) ([]googleResult, error) {
	if g.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params.Set("key", g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch googleResp.Status {
	case "OK":
		return googleResp.Results, nil
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", googleResp.Status, googleResp.ErrorMessage)
	}
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
