package loader

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/geo"
)

// CoordinateFixupPolicy corrects the coordinate order or CRS of a source so
// every pair ends up as WGS84 (lon, lat).
type CoordinateFixupPolicy interface {
	Name() string
	Fix(p orb.Point) (orb.Point, error)
}

// AssumeLonLat leaves coordinates untouched.
type AssumeLonLat struct{}

func (AssumeLonLat) Name() string                       { return "assume-lonlat" }
func (AssumeLonLat) Fix(p orb.Point) (orb.Point, error) { return p, nil }

// SwapToLonLat swaps (lat, lon) sources into (lon, lat).
type SwapToLonLat struct{}

func (SwapToLonLat) Name() string                       { return "swap-to-lonlat" }
func (SwapToLonLat) Fix(p orb.Point) (orb.Point, error) { return orb.Point{p[1], p[0]}, nil }

const (
	sampleMaxPairs = 8
	samplePerRing  = 4
	degreeTolLon   = 180.5
	degreeTolLat   = 90.5
	wgs84EPSG      = 4326
)

// ChooseFixup picks a policy from a sample of raw coordinate pairs.
// crsEPSG is the code declared by the source (0 if none) and fallbackEPSG
// the configured code used when the source declares nothing.
//
// ambiguous is true when the sample reads as valid degrees in both orders
// and the source declares no CRS, in which case lon/lat is assumed.
func ChooseFixup(sample []orb.Point, crsEPSG, fallbackEPSG int) (policy CoordinateFixupPolicy, ambiguous bool, err error) {
	if len(sample) == 0 {
		return AssumeLonLat{}, false, nil
	}
	lonlat := looksLonLat(sample)
	latlon := looksLatLon(sample)

	switch {
	case !lonlat && !latlon:
		epsg := crsEPSG
		if epsg <= 0 || epsg == wgs84EPSG {
			epsg = fallbackEPSG
		}
		if epsg <= 0 {
			return nil, false, apperr.Geometry("coordinates are not in degrees and no source EPSG code is known")
		}
		r, err := NewReproject(epsg)
		if err != nil {
			return nil, false, err
		}
		return r, false, nil
	case latlon && !lonlat:
		return SwapToLonLat{}, false, nil
	default:
		return AssumeLonLat{}, lonlat && latlon && crsEPSG == 0, nil
	}
}

func looksLonLat(pairs []orb.Point) bool {
	return countWithin(pairs, degreeTolLon, degreeTolLat) >= majority(len(pairs))
}

func looksLatLon(pairs []orb.Point) bool {
	return countWithin(pairs, degreeTolLat, degreeTolLon) >= majority(len(pairs))
}

func countWithin(pairs []orb.Point, xTol, yTol float64) int {
	n := 0
	for _, p := range pairs {
		if math.Abs(p[0]) <= xTol && math.Abs(p[1]) <= yTol {
			n++
		}
	}
	return n
}

func majority(n int) int {
	if n/2 < 1 {
		return 1
	}
	return n / 2
}

// samplePairs collects up to sampleMaxPairs pairs, taking the first
// samplePerRing points of each ring in feature order.
func samplePairs(geoms []orb.Geometry) []orb.Point {
	var out []orb.Point
	add := func(r []orb.Point) bool {
		for i, p := range r {
			if i >= samplePerRing || len(out) >= sampleMaxPairs {
				break
			}
			out = append(out, p)
		}
		return len(out) >= sampleMaxPairs
	}
	for _, g := range geoms {
		switch t := g.(type) {
		case orb.Point:
			if add([]orb.Point{t}) {
				return out
			}
		case orb.Polygon:
			for _, r := range t {
				if add(r) {
					return out
				}
			}
		case orb.MultiPolygon:
			for _, poly := range t {
				for _, r := range poly {
					if add(r) {
						return out
					}
				}
			}
		}
	}
	return out
}

// ApplyFixup rewrites g in place through policy and checks that every
// resulting pair is a valid lon/lat.
func ApplyFixup(g orb.Geometry, policy CoordinateFixupPolicy) (orb.Geometry, error) {
	var fixErr error
	out := project.Geometry(g, func(p orb.Point) orb.Point {
		if fixErr != nil {
			return p
		}
		q, err := policy.Fix(p)
		if err != nil {
			fixErr = err
			return p
		}
		if !geo.ValidLonLat(q) {
			fixErr = apperr.Geometry("coordinate (%g, %g) out of range after %s", q[0], q[1], policy.Name())
		}
		return q
	})
	if fixErr != nil {
		return nil, fixErr
	}
	return out, nil
}

var epsgToken = regexp.MustCompile(`\b(\d{4,5})\b`)

// ParseCRS extracts an EPSG code from a GeoJSON crs member. It accepts
// "EPSG:32638", "urn:ogc:def:crs:EPSG::32638", a properties.code number,
// and any free-standing 4 or 5 digit token. CRS84 maps to 4326.
// It returns 0 when no code can be found.
func ParseCRS(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var crs struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &crs); err != nil {
		return 0
	}

	var candidates []string
	for _, key := range []string{"name", "code"} {
		switch v := crs.Properties[key].(type) {
		case string:
			candidates = append(candidates, v)
		case float64:
			candidates = append(candidates, strconv.Itoa(int(v)))
		}
	}

	for _, c := range candidates {
		s := strings.ToUpper(strings.TrimSpace(c))
		if strings.HasSuffix(s, "CRS84") {
			return wgs84EPSG
		}
		s = strings.ReplaceAll(s, "::", ":")
		if i := strings.LastIndex(s, "EPSG:"); i >= 0 {
			if code, err := strconv.Atoi(strings.TrimSpace(s[i+len("EPSG:"):])); err == nil {
				return code
			}
		}
		if code, err := strconv.Atoi(s); err == nil {
			return code
		}
		if m := epsgToken.FindStringSubmatch(s); m != nil {
			code, _ := strconv.Atoi(m[1])
			return code
		}
	}
	return 0
}
