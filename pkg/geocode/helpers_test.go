package geocode

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

var (
	_ Provider = (*NominatimProvider)(nil)
	_ Provider = (*GoogleProvider)(nil)
	_ Provider = (*TigerProvider)(nil)
	_ Reverser = (*NominatimProvider)(nil)
	_ Reverser = (*GoogleProvider)(nil)
	_ Reverser = (*TigerProvider)(nil)
	_ Client   = (*CascadeClient)(nil)
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient redirects requests matching targetPrefix to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	if !strings.HasPrefix(orig, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	parsed, err := req.URL.Parse(t.testServer + orig[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	out := req.Clone(req.Context())
	out.URL = parsed
	out.Host = parsed.Host
	return t.base.RoundTrip(out)
}

type stubProvider struct {
	name      string
	available bool
	results   []Candidate
	err       error
	calls     int
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Available() bool { return s.available }
func (s *stubProvider) Forward(_ context.Context, _ Query) ([]Candidate, error) {
	s.calls++
	return s.results, s.err
}

type stubReverser struct {
	name string
	res  *Candidate
	err  error
}

func (s *stubReverser) Name() string { return s.name }
func (s *stubReverser) Reverse(_ context.Context, _, _ float64, _ string) (*Candidate, error) {
	return s.res, s.err
}
