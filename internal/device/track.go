package device

import (
	"bytes"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/location-cli/internal/model"
)

// Track is a replayable sequence of fixes.
type Track struct {
	Name   string              `yaml:"name"`
	Points []model.LocationFix `yaml:"points"`
}

// LoadTrack reads a YAML track file.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, eris.Wrapf(err, "device: read track %s", path)
	}
	return ParseTrack(data)
}

// ParseTrack decodes and validates a YAML track.
func ParseTrack(data []byte) (Track, error) {
	var t Track
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Track{}, eris.Wrap(err, "device: parse track")
	}
	if len(t.Points) == 0 {
		return Track{}, eris.New("device: track has no points")
	}
	for i, p := range t.Points {
		if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
			return Track{}, eris.Errorf("device: point %d out of range (%f, %f)", i, p.Latitude, p.Longitude)
		}
	}
	return t, nil
}

// DefaultTrack is a short walk down Unter den Linden in Berlin.
func DefaultTrack() Track {
	return Track{
		Name: "unter-den-linden",
		Points: []model.LocationFix{
			{Latitude: 52.516275, Longitude: 13.377704, Altitude: 34, Accuracy: 5, Speed: 1.4, Bearing: 90},
			{Latitude: 52.516812, Longitude: 13.381440, Altitude: 35, Accuracy: 4, Speed: 1.4, Bearing: 85},
			{Latitude: 52.517226, Longitude: 13.385390, Altitude: 35, Accuracy: 6, Speed: 1.3, Bearing: 84},
			{Latitude: 52.517573, Longitude: 13.389271, Altitude: 36, Accuracy: 5, Speed: 1.5, Bearing: 83},
			{Latitude: 52.517895, Longitude: 13.393213, Altitude: 36, Accuracy: 4, Speed: 1.4, Bearing: 85},
			{Latitude: 52.518238, Longitude: 13.397121, Altitude: 37, Accuracy: 5, Speed: 1.4, Bearing: 84},
		},
	}
}

// at returns the i-th point, wrapping around the end of the track.
func (t Track) at(i int) model.LocationFix {
	return t.Points[i%len(t.Points)]
}
