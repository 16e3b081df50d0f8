package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/geo"
)

// Source is either a local path or a URL.
type Source struct {
	Path string
	URL  string
}

// IsURL reports whether the source is fetched over HTTP.
func (s Source) IsURL() bool { return s.URL != "" }

func (s Source) String() string {
	if s.IsURL() {
		return s.URL
	}
	return s.Path
}

// PolygonOptions tunes LoadPolygonFeatures.
type PolygonOptions struct {
	Name string
	// Clip keeps only features whose own bbox overlaps it. Ignored for URLs.
	Clip         *geo.Bounds
	FallbackEPSG int
	// Simplify is a Douglas-Peucker tolerance in degrees. Zero disables it.
	Simplify float64
	Client   *http.Client
}

// PolygonFeature is one corrected field polygon.
type PolygonFeature struct {
	ID         string             `json:"id"`
	Geometry   orb.Geometry       `json:"-"`
	Properties geojson.Properties `json:"properties"`
	bound      orb.Bound
}

// Bound returns the feature's lon/lat bbox.
func (f PolygonFeature) Bound() orb.Bound { return f.bound }

// PolygonOverlay is a named, corrected polygon layer.
type PolygonOverlay struct {
	Source   string           `json:"source"`
	Name     string           `json:"name"`
	Fixup    string           `json:"fixup"`
	Features []PolygonFeature `json:"features"`
	Bounds   *geo.Bounds      `json:"bounds"`
	// Dropped counts features skipped for unsupported or unreadable geometry.
	Dropped int `json:"dropped"`
}

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// LoadPolygonFeatures reads the Polygon and MultiPolygon features of src,
// runs coordinate-order/CRS correction, applies the optional bbox clip to
// local sources and derives bounds from the top-level bbox when it can be
// trusted or by sampling every Nth vertex otherwise.
func LoadPolygonFeatures(ctx context.Context, src Source, opts PolygonOptions) (*PolygonOverlay, *geo.Bounds, error) {
	fc, err := readSource(ctx, src, opts.Client)
	if err != nil {
		return nil, nil, err
	}

	overlay := &PolygonOverlay{Source: src.String(), Name: opts.Name}
	var geoms []orb.Geometry
	var feats []rawFeature
	for _, f := range fc.Features {
		switch f.geometryType() {
		case "Polygon", "MultiPolygon":
		default:
			overlay.Dropped++
			continue
		}
		g, err := geojson.UnmarshalGeometry(f.Geometry)
		if err != nil || g.Geometry() == nil {
			overlay.Dropped++
			continue
		}
		geoms = append(geoms, g.Geometry())
		feats = append(feats, f)
	}

	if len(geoms) == 0 {
		if len(fc.Features) > 0 {
			return nil, nil, apperr.Geometry("%s has no Polygon or MultiPolygon features", src)
		}
		return overlay, nil, nil
	}

	policy, ambiguous, err := ChooseFixup(samplePairs(geoms), ParseCRS(fc.CRS), opts.FallbackEPSG)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", src, err)
	}
	if ambiguous {
		slog.Warn("ambiguous coordinate order, assuming lon/lat", "source", src.String())
	}
	overlay.Fixup = policy.Name()

	clip := opts.Clip
	if src.IsURL() {
		clip = nil
	}
	var dp *simplify.DouglasPeuckerSimplifier
	if opts.Simplify > 0 {
		dp = simplify.DouglasPeucker(opts.Simplify)
	}

	for i, g := range geoms {
		fixed, err := ApplyFixup(g, policy)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", src, err)
		}
		b := fixed.Bound()
		if clip != nil && !b.Intersects(clip.Orb()) {
			continue
		}
		if dp != nil {
			fixed = dp.Simplify(fixed)
		}
		props := geojson.Properties(feats[i].Properties)
		if props == nil {
			props = geojson.Properties{}
		}
		overlay.Features = append(overlay.Features, PolygonFeature{
			ID:         featureID(props, feats[i].ID, i),
			Geometry:   fixed,
			Properties: props,
			bound:      b,
		})
	}

	if _, assumed := policy.(AssumeLonLat); assumed && clip == nil {
		overlay.Bounds = bboxBounds(fc.BBox)
	}
	if overlay.Bounds == nil {
		overlay.Bounds = featureBounds(overlay.Features)
	}
	return overlay, overlay.Bounds, nil
}

func readSource(ctx context.Context, src Source, client *http.Client) (*rawCollection, error) {
	if !src.IsURL() {
		return readCollectionFile(src.Path)
	}
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidFormat, err, "bad URL %s", src.URL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err, "fetching %s", src.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.NotFound("fetching %s: HTTP %d", src.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err, "reading %s", src.URL)
	}
	return parseCollection(data, src.URL)
}

// bboxBounds trusts a [minX, minY, maxX, maxY] member when it reads as
// valid degrees.
func bboxBounds(bbox []float64) *geo.Bounds {
	if len(bbox) < 4 {
		return nil
	}
	// 3D bboxes carry [minX, minY, minZ, maxX, maxY, maxZ]
	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	if len(bbox) == 6 {
		maxX, maxY = bbox[3], bbox[4]
	}
	if !geo.ValidLonLat(orb.Point{minX, minY}) || !geo.ValidLonLat(orb.Point{maxX, maxY}) || minX > maxX || minY > maxY {
		return nil
	}
	return &geo.Bounds{South: minY, West: minX, North: maxY, East: maxX}
}

// featureBounds unions the per-feature boxes computed during loading.
func featureBounds(features []PolygonFeature) *geo.Bounds {
	if len(features) == 0 {
		return nil
	}
	b := features[0].bound
	for _, f := range features[1:] {
		b = b.Union(f.bound)
	}
	out := geo.FromOrb(b)
	return &out
}

func featureID(props geojson.Properties, id any, index int) string {
	if s := FieldID(props); s != "" {
		return s
	}
	if id != nil {
		return fmt.Sprint(id)
	}
	return fmt.Sprintf("feature-%d", index+1)
}

// FeatureAt returns the first feature containing p (lon, lat).
func (o *PolygonOverlay) FeatureAt(p orb.Point) (PolygonFeature, bool) {
	if o == nil {
		return PolygonFeature{}, false
	}
	for _, f := range o.Features {
		if !f.bound.Contains(p) {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, p) {
				return f, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, p) {
				return f, true
			}
		}
	}
	return PolygonFeature{}, false
}

// Feature returns the feature with the given id.
func (o *PolygonOverlay) Feature(id string) (PolygonFeature, bool) {
	if o == nil {
		return PolygonFeature{}, false
	}
	for _, f := range o.Features {
		if f.ID == id {
			return f, true
		}
	}
	return PolygonFeature{}, false
}

// FeatureCollection returns the corrected features as GeoJSON.
func (o *PolygonOverlay) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if o == nil {
		return fc
	}
	for _, f := range o.Features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		gf.Properties = f.Properties.Clone()
		fc.Append(gf)
	}
	if o.Bounds != nil {
		fc.BBox = geojson.NewBBox(o.Bounds.Orb())
	}
	return fc
}
