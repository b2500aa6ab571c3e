package store

import (
	"context"
	"fmt"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ParseGeoJSON reads Point features from a GeoJSON FeatureCollection.
// The "title" and "description" properties become the marker text;
// "name" is accepted as a title fallback. Other geometry types are skipped.
func ParseGeoJSON(data []byte) ([]models.NewMarker, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	var markers []models.NewMarker
	for i, f := range fc.Features {
		point, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		coord := location.FromPoint(point)
		if err := coord.Validate(); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		markers = append(markers, models.NewMarker{
			Latitude:    coord.Latitude,
			Longitude:   coord.Longitude,
			Title:       f.Properties.MustString("title", f.Properties.MustString("name", "")),
			Description: f.Properties.MustString("description", ""),
		})
	}
	return markers, nil
}

// ImportGeoJSON adds every Point feature of data to s and returns the created markers.
func ImportGeoJSON(ctx context.Context, s MarkerStore, data []byte) ([]models.Marker, error) {
	inputs, err := ParseGeoJSON(data)
	if err != nil {
		return nil, err
	}

	created := make([]models.Marker, 0, len(inputs))
	for _, in := range inputs {
		m, err := s.AddMarker(ctx, in)
		if err != nil {
			return created, fmt.Errorf("import marker %q: %w", in.Title, err)
		}
		created = append(created, m)
	}
	return created, nil
}

// ExportGeoJSON renders markers as a FeatureCollection of points.
func ExportGeoJSON(markers []models.Marker) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewFeature(m.Coordinate.Point())
		f.ID = m.ID
		f.Properties["title"] = m.Title
		if m.Description != "" {
			f.Properties["description"] = m.Description
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
