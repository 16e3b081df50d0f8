package service

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/layers"
)

const (
	tileSize     = 256
	maxViewZoom  = 22
	defaultViewW = 1024
	defaultViewH = 768
)

// Viewport is the server-side model of a viewer's map: it computes the
// zoom a fitBounds call lands on so the session can report it. A legacy
// viewport rejects the max-zoom clamp like old map clients do.
type Viewport struct {
	Width, Height int
	Legacy        bool

	zoom   int
	center orb.Point
}

// NewViewport returns a viewport centered at center (lon, lat).
func NewViewport(center orb.Point, zoom int) *Viewport {
	return &Viewport{Width: defaultViewW, Height: defaultViewH, center: center, zoom: zoom}
}

// FitBounds centers b and picks the largest zoom that shows it inside the
// padded viewport.
func (v *Viewport) FitBounds(b geo.Bounds, opts layers.FitOptions) error {
	if v.Legacy && opts.MaxZoom > 0 {
		return layers.ErrMaxZoomUnsupported
	}
	sw := project.WGS84.ToMercator(orb.Point{b.West, b.South})
	ne := project.WGS84.ToMercator(orb.Point{b.East, b.North})

	w := float64(max(v.Width-2*opts.Padding[0], 1))
	h := float64(max(v.Height-2*opts.Padding[1], 1))
	// meters per pixel at zoom 0
	res0 := 2 * math.Pi * orb.EarthRadius / tileSize

	z := maxViewZoom
	dx, dy := ne[0]-sw[0], ne[1]-sw[1]
	if dx > 0 || dy > 0 {
		scale := math.Min(w*res0/math.Max(dx, 1e-9), h*res0/math.Max(dy, 1e-9))
		z = int(math.Floor(math.Log2(scale)))
	}
	z = min(max(z, 0), maxViewZoom)
	if opts.MaxZoom > 0 && z > opts.MaxZoom {
		z = opts.MaxZoom
	}
	v.zoom = z
	v.center = b.Center()
	return nil
}

func (v *Viewport) Zoom() int { return v.zoom }

func (v *Viewport) SetZoom(z int) { v.zoom = z }

// Center returns the (lon, lat) center.
func (v *Viewport) Center() orb.Point { return v.center }
