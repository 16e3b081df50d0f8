package loader

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/geoportal/internal/geo"
)

// SensorFeature is one point sensor read from a GeoJSON file.
type SensorFeature struct {
	ID             string             `json:"sensor_id"`
	Lat            float64            `json:"lat"`
	Lon            float64            `json:"lon"`
	Properties     geojson.Properties `json:"properties"`
	InstalledSince string             `json:"installed_since,omitempty"`
}

// Location returns the sensor position as an orb point (lon, lat).
func (s SensorFeature) Location() orb.Point { return orb.Point{s.Lon, s.Lat} }

// MarkerGroup is every sensor of one source file.
type MarkerGroup struct {
	Source  string          `json:"source"`
	Markers []SensorFeature `json:"markers"`
}

// Find returns the marker with the given sensor id.
func (g *MarkerGroup) Find(id string) (SensorFeature, bool) {
	if g == nil {
		return SensorFeature{}, false
	}
	for _, m := range g.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return SensorFeature{}, false
}

type rawPoint struct {
	Type        string     `json:"type"`
	Coordinates []*float64 `json:"coordinates"`
}

// LoadPointFeatures reads the Point features of path into a MarkerGroup and
// returns padded bounds around them. Features with missing or null
// coordinates are skipped. A file with no valid points yields (nil, nil, nil).
func LoadPointFeatures(path string) (*MarkerGroup, *geo.Bounds, error) {
	fc, err := readCollectionFile(path)
	if err != nil {
		return nil, nil, err
	}

	group := &MarkerGroup{Source: path}
	var pts []orb.Point
	for i, f := range fc.Features {
		if f.geometryType() != "Point" {
			continue
		}
		p, ok := decodePoint(f.Geometry)
		if !ok {
			continue
		}
		props := geojson.Properties(f.Properties)
		if props == nil {
			props = geojson.Properties{}
		}
		group.Markers = append(group.Markers, SensorFeature{
			ID:             sensorID(props, f.ID, i),
			Lon:            p[0],
			Lat:            p[1],
			Properties:     props,
			InstalledSince: installedSince(props),
		})
		pts = append(pts, p)
	}

	if len(group.Markers) == 0 {
		return nil, nil, nil
	}
	return group, geo.PaddedBounds(pts, geo.DefaultMinSpan, geo.DefaultPad), nil
}

func decodePoint(raw json.RawMessage) (orb.Point, bool) {
	var rp rawPoint
	if err := json.Unmarshal(raw, &rp); err != nil {
		return orb.Point{}, false
	}
	if len(rp.Coordinates) < 2 || rp.Coordinates[0] == nil || rp.Coordinates[1] == nil {
		return orb.Point{}, false
	}
	return orb.Point{*rp.Coordinates[0], *rp.Coordinates[1]}, true
}

func sensorID(props geojson.Properties, featureID any, index int) string {
	for _, key := range []string{"sensor_id", "id", "name"} {
		if s := propString(props, key); s != "" {
			return s
		}
	}
	if featureID != nil {
		return fmt.Sprint(featureID)
	}
	return fmt.Sprintf("sensor-%d", index+1)
}

func installedSince(props geojson.Properties) string {
	for _, key := range []string{"installed_since", "installed", "install_date"} {
		if s := propString(props, key); s != "" {
			return s
		}
	}
	return ""
}
