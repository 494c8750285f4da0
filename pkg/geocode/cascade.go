package geocode

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CascadeClient tries providers in order until one returns results.
type CascadeClient struct {
	providers []Provider
	reversers []Reverser
}

// CascadeOption configures the CascadeClient.
type CascadeOption func(*CascadeClient)

// WithReversers sets the reverse geocoders, tried in order.
func WithReversers(rs ...Reverser) CascadeOption {
	return func(c *CascadeClient) {
		c.reversers = append(c.reversers, rs...)
	}
}

// NewCascadeClient creates a CascadeClient that tries providers in order.
func NewCascadeClient(providers []Provider, opts ...CascadeOption) *CascadeClient {
	c := &CascadeClient{providers: providers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Forward returns the first non-empty provider result, truncated to the
// query limit. Provider errors fall through to the next provider; if all
// providers fail the errors are joined.
func (c *CascadeClient) Forward(ctx context.Context, q Query) ([]Candidate, error) {
	q, err := q.normalized()
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		results, err := p.Forward(ctx, q)
		if err != nil {
			zap.L().Debug("cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		if len(results) > q.Limit {
			results = results[:q.Limit]
		}
		return results, nil
	}
	if len(errs) > 0 {
		return nil, eris.Wrap(errors.Join(errs...), "geocode: all providers failed")
	}
	return nil, ErrNoResults
}

// Reverse returns the first reverser's address for the coordinate.
func (c *CascadeClient) Reverse(ctx context.Context, lat, lng float64, language string) (*Candidate, error) {
	var errs []error
	for _, r := range c.reversers {
		res, err := r.Reverse(ctx, lat, lng, language)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res != nil {
			return res, nil
		}
	}
	if len(errs) > 0 {
		return nil, eris.Wrap(errors.Join(errs...), "geocode: reverse failed")
	}
	return nil, ErrNoResults
}
