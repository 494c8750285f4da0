package geocode

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/db"
)

// TigerProvider geocodes US addresses with the PostGIS TIGER geocoder.
type TigerProvider struct {
	pool      db.Pool
	maxRating int
}

// NewTigerProvider creates a TigerProvider. Matches rated worse than
// maxRating (lower is better, 0 is exact) are discarded.
func NewTigerProvider(pool db.Pool, maxRating int) *TigerProvider {
	return &TigerProvider{pool: pool, maxRating: maxRating}
}

// Name implements Provider.
func (p *TigerProvider) Name() string { return "tiger" }

// Available implements Provider. TIGER only covers the United States.
func (p *TigerProvider) Available() bool { return p.pool != nil }

// Forward implements Provider.
func (p *TigerProvider) Forward(ctx context.Context, q Query) ([]Candidate, error) {
	if q.Country != "" && q.Country != "us" {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT
			ST_Y(geomout) AS lat,
			ST_X(geomout) AS lon,
			rating,
			pprint_addy(addy) AS matched_address,
			(addy).location AS place
		FROM geocode($1, $2)
		ORDER BY rating`,
		q.Text, q.Limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: tiger query")
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var lat, lon float64
		var rating int
		var addr, place sql.NullString
		if err := rows.Scan(&lat, &lon, &rating, &addr, &place); err != nil {
			return nil, eris.Wrap(err, "geocode: tiger scan")
		}
		if rating > p.maxRating {
			zap.L().Debug("tiger provider: rating exceeds threshold",
				zap.String("query", q.Text),
				zap.Int("rating", rating),
				zap.Int("max_rating", p.maxRating),
			)
			continue
		}
		out = append(out, Candidate{
			Latitude:    lat,
			Longitude:   lon,
			Name:        place.String,
			Address:     addr.String,
			CountryCode: "US",
			Source:      "tiger",
			Quality:     ratingToQuality(rating),
		})
	}
	return out, eris.Wrap(rows.Err(), "geocode: tiger iterate")
}

// Reverse implements Reverser.
func (p *TigerProvider) Reverse(ctx context.Context, lat, lng float64, _ string) (*Candidate, error) {
	var fullAddr, place sql.NullString
	err := p.pool.QueryRow(ctx, `
		SELECT
			pprint_addy(addy[1]),
			(addy[1]).location
		FROM reverse_geocode(ST_SetSRID(ST_MakePoint($1, $2), 4269), true)`,
		lng, lat,
	).Scan(&fullAddr, &place)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Debug("reverse geocode: no result",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)
		return nil, eris.Wrap(err, "geocode: tiger reverse geocode")
	}
	if !fullAddr.Valid {
		return nil, nil
	}
	return &Candidate{
		Latitude:    lat,
		Longitude:   lng,
		Name:        place.String,
		Address:     fullAddr.String,
		CountryCode: "US",
		Source:      "tiger",
	}, nil
}

// ratingToQuality maps PostGIS geocoder rating to quality taxonomy.
func ratingToQuality(rating int) string {
	switch {
	case rating < 10:
		return "rooftop"
	case rating < 20:
		return "range"
	case rating < 50:
		return "centroid"
	default:
		return "approximate"
	}
}
