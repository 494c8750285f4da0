package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int, source string) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{Latitude: float64(i), Source: source}
	}
	return out
}

func TestCascade_FirstNonEmptyWins(t *testing.T) {
	down := &stubProvider{name: "down", available: false}
	empty := &stubProvider{name: "empty", available: true}
	hit := &stubProvider{name: "hit", available: true, results: candidates(5, "hit")}
	never := &stubProvider{name: "never", available: true, results: candidates(1, "never")}

	c := NewCascadeClient([]Provider{down, empty, hit, never})
	results, err := c.Forward(context.Background(), Query{Text: " Berlin ", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "hit", results[0].Source)
	assert.Zero(t, down.calls)
	assert.Zero(t, never.calls)
}

func TestCascade_ErrorFallsThrough(t *testing.T) {
	broken := &stubProvider{name: "broken", available: true, err: errors.New("timeout")}
	ok := &stubProvider{name: "ok", available: true, results: candidates(1, "ok")}

	results, err := NewCascadeClient([]Provider{broken, ok}).Forward(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].Source)
}

func TestCascade_AllFail(t *testing.T) {
	a := &stubProvider{name: "a", available: true, err: errors.New("quota exceeded")}
	b := &stubProvider{name: "b", available: true, err: errors.New("bad gateway")}

	_, err := NewCascadeClient([]Provider{a, b}).Forward(context.Background(), Query{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestCascade_NoResults(t *testing.T) {
	empty := &stubProvider{name: "empty", available: true}

	_, err := NewCascadeClient([]Provider{empty}).Forward(context.Background(), Query{Text: "x"})
	assert.True(t, eris.Is(err, ErrNoResults))
}

func TestCascade_EmptyQuery(t *testing.T) {
	p := &stubProvider{name: "p", available: true}

	_, err := NewCascadeClient([]Provider{p}).Forward(context.Background(), Query{Text: "  "})
	require.Error(t, err)
	assert.Zero(t, p.calls)
}

func TestCascade_Reverse(t *testing.T) {
	failing := &stubReverser{name: "f", err: errors.New("down")}
	empty := &stubReverser{name: "e"}
	found := &stubReverser{name: "ok", res: &Candidate{Address: "Unter den Linden 1"}}

	c := NewCascadeClient(nil, WithReversers(failing, empty, found))
	res, err := c.Reverse(context.Background(), 52.5, 13.4, "de")
	require.NoError(t, err)
	assert.Equal(t, "Unter den Linden 1", res.Address)

	_, err = NewCascadeClient(nil).Reverse(context.Background(), 0, 0, "")
	assert.True(t, eris.Is(err, ErrNoResults))

	_, err = NewCascadeClient(nil, WithReversers(failing)).Reverse(context.Background(), 0, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}
