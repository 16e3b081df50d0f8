// Package loader reads point and polygon GeoJSON sources into marker groups
// and polygon overlays, correcting coordinate order and CRS on the way in.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// rawCollection keeps geometries undecoded so a single bad feature can be
// skipped instead of failing the whole file.
type rawCollection struct {
	Type     string          `json:"type"`
	BBox     []float64       `json:"bbox"`
	CRS      json.RawMessage `json:"crs"`
	Features []rawFeature    `json:"features"`
}

type rawFeature struct {
	ID         any             `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type rawGeometryHeader struct {
	Type string `json:"type"`
}

func (f rawFeature) geometryType() string {
	if isNullJSON(f.Geometry) {
		return ""
	}
	var h rawGeometryHeader
	if err := json.Unmarshal(f.Geometry, &h); err != nil {
		return ""
	}
	return h.Type
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func readCollectionFile(path string) (*rawCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFound("GeoJSON not found: %s", path)
		}
		return nil, apperr.Wrap(apperr.KindNotFound, err, "reading %s", path)
	}
	return parseCollection(data, path)
}

func parseCollection(data []byte, source string) (*rawCollection, error) {
	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "parsing GeoJSON %s", source)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, apperr.InvalidFormat("%s: expected FeatureCollection, got %s", source, fc.Type)
	}
	return &fc, nil
}
