// Package geo holds the bounding-box and slippy-map tile math shared by the
// loaders, the tile pyramid introspector and the layer synchronizer.
package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
)

// Defaults for PaddedBounds.
const (
	DefaultMinSpan = 0.05
	DefaultPad     = 0.25
)

// Bounds is a lat/lon box. It marshals as Leaflet bounds
// [[south, west], [north, east]].
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

// FromOrb converts an orb.Bound (Min is west/south) into Bounds.
func FromOrb(b orb.Bound) Bounds {
	return Bounds{South: b.Min[1], West: b.Min[0], North: b.Max[1], East: b.Max[0]}
}

// Orb returns the box as an orb.Bound in lon/lat order.
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}

// Intersects reports whether the two boxes overlap, edges included.
func (b Bounds) Intersects(o Bounds) bool {
	return b.Orb().Intersects(o.Orb())
}

// Contains reports whether p (lon, lat) lies inside the box.
func (b Bounds) Contains(p orb.Point) bool {
	return b.Orb().Contains(p)
}

// Center returns the (lon, lat) center.
func (b Bounds) Center() orb.Point {
	return b.Orb().Center()
}

// Leaflet returns [[south, west], [north, east]].
func (b Bounds) Leaflet() [2][2]float64 {
	return [2][2]float64{{b.South, b.West}, {b.North, b.East}}
}

func (b Bounds) String() string {
	return fmt.Sprintf("[[%.6f, %.6f], [%.6f, %.6f]]", b.South, b.West, b.North, b.East)
}

func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Leaflet())
}

func (b *Bounds) UnmarshalJSON(data []byte) error {
	var ll [2][2]float64
	if err := json.Unmarshal(data, &ll); err != nil {
		return err
	}
	*b = Bounds{South: ll[0][0], West: ll[0][1], North: ll[1][0], East: ll[1][1]}
	return nil
}

// Schema describes the [[south, west], [north, east]] wire form.
func (b Bounds) Schema(r huma.Registry) *huma.Schema {
	corner := &huma.Schema{
		Type:     huma.TypeArray,
		Items:    &huma.Schema{Type: huma.TypeNumber},
		MinItems: ptr(2),
		MaxItems: ptr(2),
	}
	return &huma.Schema{
		Type:        huma.TypeArray,
		Description: "[[south, west], [north, east]]",
		Items:       corner,
		MinItems:    ptr(2),
		MaxItems:    ptr(2),
	}
}

func ptr(n int) *int { return &n }

// PaddedBounds returns the box around points (lon, lat) with each axis
// widened to at least minSpan degrees and then padded by pad times the span
// on both sides. It returns nil for an empty input.
func PaddedBounds(points []orb.Point, minSpan, pad float64) *Bounds {
	if len(points) == 0 {
		return nil
	}

	b := orb.MultiPoint(points).Bound()
	south, west := b.Min[1], b.Min[0]
	north, east := b.Max[1], b.Max[0]

	south, north = expandAxis(south, north, minSpan, pad)
	west, east = expandAxis(west, east, minSpan, pad)

	return &Bounds{South: south, West: west, North: north, East: east}
}

func expandAxis(lo, hi, minSpan, pad float64) (float64, float64) {
	span := hi - lo
	if span < minSpan {
		mid := (lo + hi) / 2
		lo, hi = mid-minSpan/2, mid+minSpan/2
		span = minSpan
	}
	return lo - pad*span, hi + pad*span
}

// ValidLonLat reports whether p is a valid lon/lat pair.
func ValidLonLat(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) &&
		p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}

// ParseROI builds Bounds from (latMin, lonMin, latMax, lonMax), tolerating
// swapped min/max values.
func ParseROI(latMin, lonMin, latMax, lonMax float64) Bounds {
	if latMin > latMax {
		latMin, latMax = latMax, latMin
	}
	if lonMin > lonMax {
		lonMin, lonMax = lonMax, lonMin
	}
	return Bounds{South: latMin, West: lonMin, North: latMax, East: lonMax}
}
