// Package vectortile cuts the corrected polygon overlays into Mapbox
// vector tiles on request, so large field layers reach the browser one
// tile at a time instead of as a single GeoJSON download.
package vectortile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/loader"
)

// MaxZoom is the deepest zoom tiles are cut for. The client overzooms
// beyond it.
const MaxZoom = 16

// ContentType is the media type of an encoded tile.
const ContentType = "application/vnd.mapbox-vector-tile"

// Tile encodes the features of ov that touch tile t as a gzipped MVT with
// one layer named layer. A tile with no features returns (nil, nil).
func Tile(ov *loader.PolygonOverlay, layer string, t maptile.Tile) ([]byte, error) {
	if t.Z > MaxZoom || !t.Valid() {
		return nil, apperr.NotFound("tile %d/%d/%d out of range", t.Z, t.X, t.Y)
	}
	if ov == nil {
		return nil, nil
	}

	tileBound := t.Bound()
	fc := geojson.NewFeatureCollection()
	for _, f := range ov.Features {
		if !f.Bound().Intersects(tileBound) || !intersectsTile(f.Geometry, tileBound) {
			continue
		}
		// mvt clips and projects in place; the overlay is shared
		g := cloneGeometry(f.Geometry)
		if g == nil {
			continue
		}
		gf := geojson.NewFeature(g)
		gf.ID = f.ID
		for k, v := range loader.DisplayProperties(f.Properties) {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	if len(fc.Features) == 0 {
		return nil, nil
	}

	l := mvt.NewLayer(layer, fc)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		l.Simplify(simplify.DouglasPeucker(eps))
	}
	l.Clip(tileBound)
	l.ProjectToTile(t)
	l.RemoveEmpty(0.5, 0.5)
	if len(l.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{l})
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	return data, nil
}

// intersectsTile refines the bbox test for polygons: a vertex inside the
// tile, or a tile corner or center inside the polygon.
func intersectsTile(geom orb.Geometry, tileBound orb.Bound) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if tileBound.Contains(p) {
					return true
				}
			}
		}
		corners := []orb.Point{
			tileBound.Min,
			{tileBound.Max[0], tileBound.Min[1]},
			tileBound.Max,
			{tileBound.Min[0], tileBound.Max[1]},
			tileBound.Center(),
		}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, poly := range g {
			if poly.Bound().Intersects(tileBound) && intersectsTile(poly, tileBound) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees per zoom.
// Center-pivot circles are a few hundred meters across, so low zooms
// still keep them recognizable.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 13:
		return 0
	case z >= 10:
		return 0.00002
	case z >= 7:
		return 0.0002
	default:
		return 0.001
	}
}

func cloneGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		return clonePolygon(geom)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, p := range geom {
			out[i] = clonePolygon(p)
		}
		return out
	default:
		return nil
	}
}

func clonePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = append(orb.Ring(nil), r...)
	}
	return out
}

// TileRange lists the tiles at zoom z that cover the overlay's bounds.
func TileRange(ov *loader.PolygonOverlay, z maptile.Zoom) []maptile.Tile {
	if ov == nil || ov.Bounds == nil {
		return nil
	}
	b := ov.Bounds.Orb()
	lo := maptile.At(orb.Point{b.Min[0], b.Max[1]}, z)
	hi := maptile.At(orb.Point{b.Max[0], b.Min[1]}, z)
	var out []maptile.Tile
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			out = append(out, maptile.New(x, y, z))
		}
	}
	return out
}
