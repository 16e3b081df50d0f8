package layers

import (
	"errors"
	"sync"

	"github.com/joeblew999/geoportal/internal/geo"
)

// ErrMaxZoomUnsupported is returned by a MapView that cannot clamp the zoom
// while fitting.
var ErrMaxZoomUnsupported = errors.New("fit bounds: max zoom clamp unsupported")

// FitOptions configures a viewport fit. Zero MaxZoom or MinZoom means no
// clamp on that side.
type FitOptions struct {
	Padding [2]int `json:"padding"`
	MaxZoom int    `json:"maxZoom,omitempty"`
	MinZoom int    `json:"minZoom,omitempty"`
}

// MapView is the viewport being fitted.
type MapView interface {
	FitBounds(b geo.Bounds, opts FitOptions) error
	Zoom() int
	SetZoom(z int)
}

// Fit fits view to b. When the view rejects the max-zoom clamp it fits
// unclamped and then clamps the zoom by hand.
func Fit(view MapView, b geo.Bounds, opts FitOptions) error {
	err := view.FitBounds(b, opts)
	if errors.Is(err, ErrMaxZoomUnsupported) {
		unclamped := opts
		unclamped.MaxZoom = 0
		err = view.FitBounds(b, unclamped)
		if err == nil && opts.MaxZoom > 0 && view.Zoom() > opts.MaxZoom {
			view.SetZoom(opts.MaxZoom)
		}
	}
	if err != nil {
		return err
	}
	if opts.MinZoom > 0 && view.Zoom() < opts.MinZoom {
		view.SetZoom(opts.MinZoom)
	}
	return nil
}

// FitTracker makes fit-to-bounds a one-shot per logical load. A load is
// identified by the overlay name plus a key that changes when the overlay
// is reloaded (a new file, a new year); opacity and visibility toggles keep
// the key and so never refit.
type FitTracker struct {
	mu     sync.Mutex
	fitted map[string]string
}

// NewFitTracker returns an empty tracker.
func NewFitTracker() *FitTracker {
	return &FitTracker{fitted: make(map[string]string)}
}

// ShouldFit reports whether the load (name, key) with the given bounds
// still needs its fit, and marks it done if so. Nil bounds never fit and
// do not consume the load's fit.
func (t *FitTracker) ShouldFit(name, key string, bounds *geo.Bounds) bool {
	if bounds == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.fitted[name]; ok && prev == key {
		return false
	}
	t.fitted[name] = key
	return true
}

// Reset forgets the fit of name so its next load fits again.
func (t *FitTracker) Reset(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fitted, name)
}
