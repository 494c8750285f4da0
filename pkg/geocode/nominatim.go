package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultNominatimURL       = "https://nominatim.openstreetmap.org"
	defaultNominatimUserAgent = "location-cli/1.0"
)

// coordinate accepts both the string and numeric forms Nominatim emits.
type coordinate float64

func (c *coordinate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return eris.Wrapf(err, "geocode: parse coordinate %q", text)
		}
		*c = coordinate(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.New("geocode: coordinate must be a string or number")
	}
	*c = coordinate(v)
	return nil
}

type nominatimPlace struct {
	Lat         coordinate `json:"lat"`
	Lon         coordinate `json:"lon"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	AddressType string     `json:"addresstype"`
	Address     struct {
		CountryCode string `json:"country_code"`
	} `json:"address"`
	Error string `json:"error"`
}

func (p nominatimPlace) candidate() Candidate {
	name := p.Name
	if name == "" {
		name, _, _ = strings.Cut(p.DisplayName, ",")
	}
	return Candidate{
		Latitude:    float64(p.Lat),
		Longitude:   float64(p.Lon),
		Name:        name,
		Address:     p.DisplayName,
		CountryCode: strings.ToUpper(p.Address.CountryCode),
		Source:      "nominatim",
		Quality:     nominatimQuality(p.AddressType),
	}
}

func nominatimQuality(addrType string) string {
	switch addrType {
	case "building", "house", "amenity":
		return "rooftop"
	case "road", "street":
		return "range"
	case "city", "town", "village", "suburb", "neighbourhood", "postcode":
		return "centroid"
	default:
		return "approximate"
	}
}

// NominatimProvider queries an OpenStreetMap Nominatim server.
type NominatimProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NominatimOption configures a NominatimProvider.
type NominatimOption func(*NominatimProvider)

// WithNominatimURL points the provider at a self-hosted server.
func WithNominatimURL(u string) NominatimOption {
	return func(p *NominatimProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header the usage policy requires.
func WithUserAgent(ua string) NominatimOption {
	return func(p *NominatimProvider) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithNominatimHTTPClient sets the HTTP client.
func WithNominatimHTTPClient(hc *http.Client) NominatimOption {
	return func(p *NominatimProvider) {
		p.httpClient = hc
	}
}

// WithNominatimRateLimit sets requests per second. The public server allows 1.
func WithNominatimRateLimit(rps float64) NominatimOption {
	return func(p *NominatimProvider) {
		if rps > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewNominatimProvider creates a provider for the public Nominatim server
// unless overridden.
func NewNominatimProvider(opts ...NominatimOption) *NominatimProvider {
	p := &NominatimProvider{
		baseURL:    defaultNominatimURL,
		userAgent:  defaultNominatimUserAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// Available implements Provider.
func (p *NominatimProvider) Available() bool { return p.baseURL != "" }

// Forward implements Provider.
func (p *NominatimProvider) Forward(ctx context.Context, q Query) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Language != "" {
		params.Set("accept-language", q.Language)
	}
	if q.Country != "" {
		params.Set("countrycodes", q.Country)
	}

	var places []nominatimPlace
	if err := p.get(ctx, "/search", params, &places); err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(places))
	for _, pl := range places {
		out = append(out, pl.candidate())
	}
	return out, nil
}

// Reverse implements Reverser.
func (p *NominatimProvider) Reverse(ctx context.Context, lat, lng float64, language string) (*Candidate, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	if language != "" {
		params.Set("accept-language", language)
	}

	var place nominatimPlace
	if err := p.get(ctx, "/reverse", params, &place); err != nil {
		return nil, err
	}
	if place.Error != "" {
		return nil, nil
	}
	c := place.candidate()
	return &c, nil
}

func (p *NominatimProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: nominatim rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "geocode: nominatim parse response")
	}
	return nil
}
