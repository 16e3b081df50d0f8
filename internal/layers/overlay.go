// Package layers keeps the map's attached overlay stack in step with the
// desired overlay set. Reconcile computes an explicit plan from
// (desired, attached); Plan.Apply replays it on a stack. Both are pure.
package layers

import (
	"fmt"
	"strings"

	"github.com/joeblew999/geoportal/internal/geo"
)

// Kind is the overlay type. Kinds stack in declaration order: base layers
// at the bottom, the popup on top.
type Kind string

const (
	KindBase      Kind = "base"
	KindRaster    Kind = "raster"
	KindPolygon   Kind = "polygon"
	KindHighlight Kind = "highlight"
	KindMarkers   Kind = "markers"
	KindPopup     Kind = "popup"
)

var kindOrder = []Kind{KindBase, KindRaster, KindPolygon, KindHighlight, KindMarkers, KindPopup}

// Rank is the z-order class of k. Unknown kinds rank with polygons.
func (k Kind) Rank() int {
	for i, o := range kindOrder {
		if o == k {
			return i
		}
	}
	return 2
}

func (k *Kind) UnmarshalText(b []byte) error {
	s := Kind(strings.ToLower(string(b)))
	for _, o := range kindOrder {
		if o == s {
			*k = s
			return nil
		}
	}
	return fmt.Errorf("unknown overlay kind %q", s)
}

// Overlay is one named map layer. Name is the semantic slot ("Center Pivot
// Fields"); ID identifies the instance filling it ("cpf:2023"), so a new
// year or source swaps by name while an opacity change restyles in place.
type Overlay struct {
	Name    string      `json:"name" doc:"Semantic layer name" example:"Center Pivot Fields"`
	ID      string      `json:"id" doc:"Instance identity; a change swaps the layer" example:"cpf:2023"`
	Kind    Kind        `json:"kind" enum:"base,raster,polygon,highlight,markers,popup" doc:"Layer type and z-order class"`
	Visible bool        `json:"visible" doc:"Whether the layer should be attached"`
	Opacity float64     `json:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity"`
	Bounds  *geo.Bounds `json:"bounds,omitempty" doc:"[[south,west],[north,east]]"`
	URL     string      `json:"url,omitempty" doc:"Tile URL template or GeoJSON/MVT source URL"`
	Color   string      `json:"color,omitempty" doc:"Stroke/fill color for vector layers" example:"#56B4E9"`
	MinZoom int         `json:"minZoom,omitempty"`
	MaxZoom int         `json:"maxZoom,omitempty"`
}

// Same reports whether o and other are the same instance.
func (o Overlay) Same(other Overlay) bool {
	return o.Name == other.Name && o.ID == other.ID
}

// BaseRunLength counts the contiguous base layers at the bottom of stack.
func BaseRunLength(stack []Overlay) int {
	n := 0
	for _, o := range stack {
		if o.Kind != KindBase {
			break
		}
		n++
	}
	return n
}

// IndexOf returns the position of the overlay named name, or -1.
func IndexOf(stack []Overlay, name string) int {
	for i, o := range stack {
		if o.Name == name {
			return i
		}
	}
	return -1
}

// Names lists the stack bottom to top.
func Names(stack []Overlay) []string {
	out := make([]string, len(stack))
	for i, o := range stack {
		out[i] = o.Name
	}
	return out
}

// Top returns the topmost overlay.
func Top(stack []Overlay) (Overlay, bool) {
	if len(stack) == 0 {
		return Overlay{}, false
	}
	return stack[len(stack)-1], true
}
