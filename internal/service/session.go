package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/debounce"
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/layers"
	"github.com/joeblew999/geoportal/internal/loader"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/pyramid"
)

// Names of the session-owned overlays.
const (
	HighlightLayer = "Selected Field"
	PopupLayer     = "Popup"
)

// SessionDeps are the shared components a session works with.
type SessionDeps struct {
	Config  *config.Config
	Catalog *OverlayCatalog
	Popups  *popup.Builder
	Bus     *EventBus
}

type highlight struct {
	layer   string // catalog key
	name    string // overlay name
	fieldID string
	feature loader.PolygonFeature
	bounds  geo.Bounds
}

type openPopup struct {
	key     string
	kind    popup.Kind
	at      orb.Point
	props   map[string]any
	content popup.Content
}

// Session is one viewer's map. It owns the attached overlay stack and the
// active marker, highlight and popup. Every mutation happens under mu, so
// request handlers and debounced loads see a single logical UI thread.
type Session struct {
	ID string

	cfg     *config.Config
	catalog *OverlayCatalog
	popups  *popup.Builder
	bus     *EventBus

	mu       sync.Mutex
	state    State
	attached []layers.Overlay
	view     *Viewport
	fits     *layers.FitTracker
	// loads remembers the last reported load key per overlay name so a
	// load toasts once, not on every sync.
	loads map[string]string

	markerDeb    *debounce.Debouncer
	markersWant  string
	markers      *loader.MarkerGroup
	markerBounds *geo.Bounds
	markersKey   string
	pending      []Toast

	pyr *pyramid.Introspector

	activeMarker string
	hl           *highlight
	popup        *openPopup
	closed       bool
}

// NewSession returns a session showing the configured defaults. The first
// Update starts the marker load and the pyramid scan.
func NewSession(id string, deps SessionDeps) *Session {
	cfg := deps.Config
	s := &Session{
		ID:        id,
		cfg:       cfg,
		catalog:   deps.Catalog,
		popups:    deps.Popups,
		bus:       deps.Bus,
		view:      NewViewport(orb.Point{cfg.MapCenter.Lon, cfg.MapCenter.Lat}, cfg.MapZoom),
		fits:      layers.NewFitTracker(),
		loads:     make(map[string]string),
		markerDeb: debounce.New(time.Duration(cfg.MarkerDebounce) * time.Millisecond),
	}
	s.pyr = pyramid.NewIntrospector(time.Duration(cfg.TilesDebounce)*time.Millisecond, s.onPyramid)
	return s
}

// DefaultState is the initial state of a new viewer.
func DefaultState(cfg *config.Config) State {
	st := State{
		MarkersPath:        cfg.SensorGeoJSON,
		ShowMarkers:        true,
		ShowRaster:         true,
		RasterOpacity:      cfg.RasterOpacity,
		CenterPivotYear:    cfg.CenterPivotYear,
		CenterPivotOpacity: cfg.CenterPivotOpacity,
		DatePalmsOpacity:   cfg.DatePalmsOpacity,
		Zoom:               cfg.MapZoom,
	}
	if len(cfg.BaseLayers) > 0 {
		st.BaseLayer = cfg.BaseLayers[0].Name
	}
	return st
}

func (s *Session) normalize(st State) State {
	if st.MarkersPath == "" {
		st.MarkersPath = s.cfg.SensorGeoJSON
	}
	if st.RasterOpacity <= 0 {
		st.RasterOpacity = s.cfg.RasterOpacity
	}
	if st.CenterPivotYear == 0 {
		st.CenterPivotYear = s.cfg.CenterPivotYear
	}
	if st.CenterPivotOpacity <= 0 {
		st.CenterPivotOpacity = s.cfg.CenterPivotOpacity
	}
	if st.DatePalmsOpacity <= 0 {
		st.DatePalmsOpacity = s.cfg.DatePalmsOpacity
	}
	return st
}

// State returns the last state applied.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attached returns a copy of the attached stack, bottom to top.
func (s *Session) Attached() []layers.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]layers.Overlay(nil), s.attached...)
}

// Markers returns the loaded marker group, or nil.
func (s *Session) Markers() *loader.MarkerGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers
}

// ActiveMarker returns the id of the highlighted sensor, or "".
func (s *Session) ActiveMarker() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeMarker
}

// Update applies st and reconciles the map. A changed marker path or
// raster root is loaded after its debounce period; the result arrives as
// an Event on the bus.
func (s *Session) Update(ctx context.Context, st State) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SyncResult{Attached: append([]layers.Overlay(nil), s.attached...)}
	}

	st = s.normalize(st)
	s.state = st
	if st.ViewWidth > 0 && st.ViewHeight > 0 {
		s.view.Width, s.view.Height = st.ViewWidth, st.ViewHeight
	}
	if st.Zoom > 0 {
		s.view.SetZoom(st.Zoom)
	}
	s.view.Legacy = st.LegacyFit

	if st.MarkersPath != s.markersWant {
		path := st.MarkersPath
		s.markersWant = path
		s.markerDeb.Trigger(func() { s.loadMarkers(path) })
	}
	s.pyr.SetRoot(s.rasterRoot(st))

	return s.syncLocked(ctx)
}

// Sync reconciles the map against the current state without changing it.
func (s *Session) Sync(ctx context.Context) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx)
}

func (s *Session) rasterRoot(st State) string {
	if st.RasterYear > 0 {
		return s.cfg.YearTilesDir(st.RasterYear)
	}
	return s.cfg.TilesDir
}

func (s *Session) rasterBase(st State) string {
	if st.RasterYear > 0 {
		return "/tiles/" + strconv.Itoa(st.RasterYear)
	}
	return s.cfg.TilesHTTPBase
}

func (s *Session) loadMarkers(path string) {
	group, bounds, err := loader.LoadPointFeatures(path)

	s.mu.Lock()
	if s.closed || path != s.markersWant {
		s.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		slog.Warn("sensor load failed", "path", path, "error", err)
		s.markers, s.markerBounds, s.markersKey = nil, nil, ""
		s.pending = append(s.pending, Toast{Kind: ToastError, Message: "Failed to load sensors: " + err.Error()})
	case group == nil:
		s.markers, s.markerBounds, s.markersKey = nil, nil, ""
		s.pending = append(s.pending, Toast{Kind: ToastWarning, Message: "No sensor points in " + path})
	default:
		s.markers, s.markerBounds = group, bounds
		s.markersKey = fmt.Sprintf("%s@%d", path, time.Now().UnixNano())
		s.pending = append(s.pending, Toast{Kind: ToastSuccess, Message: fmt.Sprintf("Loaded %d sensors", len(group.Markers))})
	}
	if s.activeMarker != "" {
		if _, ok := s.markers.Find(s.activeMarker); !ok {
			s.activeMarker = ""
		}
	}
	res := s.syncLocked(context.Background())
	s.mu.Unlock()

	s.publish("markers", res)
}

func (s *Session) onPyramid(d pyramid.Descriptor) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if d.Ready() {
		s.pending = append(s.pending, Toast{Kind: ToastInfo, Message: d.Summary()})
	} else {
		s.pending = append(s.pending, Toast{Kind: ToastWarning, Message: d.Reason})
	}
	res := s.syncLocked(context.Background())
	s.mu.Unlock()

	s.publish("tiles", res)
}

func (s *Session) publish(action string, res SyncResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(Event{Action: action, ID: s.ID, Result: &res})
}

func (s *Session) syncLocked(ctx context.Context) SyncResult {
	desired, toasts := s.desiredLocked(ctx)
	plan := layers.Reconcile(desired, s.attached)
	s.attached = plan.Apply(s.attached)

	res := SyncResult{
		Plan:     plan,
		Attached: append([]layers.Overlay(nil), s.attached...),
		Fits:     s.fitsLocked(desired),
		Toasts:   append(s.pending, toasts...),
		Pyramid:  s.pyr.Descriptor(),
	}
	s.pending = nil
	if s.popup != nil {
		c := s.popup.content
		res.Popup = &c
	}
	return res
}

// desiredLocked lists the overlays the state asks for, in z-order.
func (s *Session) desiredLocked(ctx context.Context) ([]layers.Overlay, []Toast) {
	st := s.state
	var out []layers.Overlay
	var toasts []Toast

	for i, b := range s.cfg.BaseLayers {
		visible := b.Name == st.BaseLayer || (st.BaseLayer == "" && i == 0)
		out = append(out, layers.Overlay{
			Name:    b.Name,
			ID:      "base:" + b.Name,
			Kind:    layers.KindBase,
			Visible: visible,
			Opacity: 1,
			URL:     b.URL,
		})
	}

	if d := s.pyr.Descriptor(); d.Ready() {
		out = append(out, layers.Overlay{
			Name:    s.cfg.RasterLayerName,
			ID:      "raster:" + d.Root + "#" + d.Version(),
			Kind:    layers.KindRaster,
			Visible: st.ShowRaster,
			Opacity: st.RasterOpacity,
			Bounds:  d.Bounds,
			URL:     d.URLTemplate(s.rasterBase(st)),
			MinZoom: d.MinZoom,
			MaxZoom: d.LayerMaxZoom(),
		})
	}

	if st.ShowCenterPivot {
		key := CenterPivotLayerKey(st.CenterPivotYear, st.ClipCenterPivot)
		ov, err := s.catalog.CenterPivot(ctx, st.CenterPivotYear, st.ClipCenterPivot)
		toasts = append(toasts, s.loadToast(s.cfg.CenterPivotLayer, key, ov, err)...)
		if err == nil {
			out = append(out, s.polygonOverlay(s.cfg.CenterPivotLayer, key, ov, st.CenterPivotOpacity, s.cfg.CenterPivotColor))
		}
	}
	if st.ShowDatePalms {
		ov, err := s.catalog.DatePalms(ctx)
		toasts = append(toasts, s.loadToast(s.cfg.DatePalmsLayer, LayerDatePalms, ov, err)...)
		if err == nil {
			out = append(out, s.polygonOverlay(s.cfg.DatePalmsLayer, LayerDatePalms, ov, st.DatePalmsOpacity, s.cfg.DatePalmsColor))
		}
	}

	if hl := s.hl; hl != nil && s.polygonVisible(hl.name) {
		b := hl.bounds
		out = append(out, layers.Overlay{
			Name:    HighlightLayer,
			ID:      "highlight:" + hl.layer + ":" + hl.fieldID,
			Kind:    layers.KindHighlight,
			Visible: true,
			Opacity: 1,
			Bounds:  &b,
			URL:     "/api/v1/overlays/" + hl.layer + "/features/" + hl.fieldID,
			Color:   s.cfg.HighlightColor,
		})
	}

	if s.markers != nil {
		out = append(out, layers.Overlay{
			Name:    s.cfg.LayerGroupName,
			ID:      "markers:" + s.markersKey,
			Kind:    layers.KindMarkers,
			Visible: st.ShowMarkers,
			Opacity: 1,
			Bounds:  s.markerBounds,
			URL:     "/api/v1/markers?path=" + url.QueryEscape(s.markersWant),
			Color:   s.cfg.Icon.Color,
		})
	}

	if p := s.popup; p != nil {
		b := geo.Bounds{South: p.at[1], West: p.at[0], North: p.at[1], East: p.at[0]}
		out = append(out, layers.Overlay{
			Name:    PopupLayer,
			ID:      "popup:" + p.key,
			Kind:    layers.KindPopup,
			Visible: true,
			Bounds:  &b,
		})
	}
	return out, toasts
}

func (s *Session) polygonOverlay(name, key string, ov *loader.PolygonOverlay, opacity float64, color string) layers.Overlay {
	return layers.Overlay{
		Name:    name,
		ID:      "polygon:" + key,
		Kind:    layers.KindPolygon,
		Visible: true,
		Opacity: opacity,
		Bounds:  ov.Bounds,
		URL:     "/api/v1/overlays/" + key + "/tiles/{z}/{x}/{y}",
		Color:   color,
	}
}

func (s *Session) polygonVisible(name string) bool {
	switch name {
	case s.cfg.CenterPivotLayer:
		return s.state.ShowCenterPivot
	case s.cfg.DatePalmsLayer:
		return s.state.ShowDatePalms
	}
	return false
}

// loadToast reports a polygon load once per (name, key).
func (s *Session) loadToast(name, key string, ov *loader.PolygonOverlay, err error) []Toast {
	token := key
	if err != nil {
		token += "!" + err.Error()
	}
	if s.loads[name] == token {
		return nil
	}
	s.loads[name] = token
	if err != nil {
		return []Toast{{Kind: ToastError, Message: fmt.Sprintf("%s: %v", name, err)}}
	}
	msg := fmt.Sprintf("%s: %d features", name, len(ov.Features))
	if ov.Dropped > 0 {
		msg += fmt.Sprintf(" (%d skipped)", ov.Dropped)
	}
	return []Toast{{Kind: ToastSuccess, Message: msg}}
}

// fitsLocked fits the viewport once per load of each visible overlay.
func (s *Session) fitsLocked(desired []layers.Overlay) []FitCommand {
	opts := layers.FitOptions{Padding: s.cfg.FitPadding, MaxZoom: s.cfg.FitMaxZoom}
	var fits []FitCommand
	for _, o := range desired {
		switch o.Kind {
		case layers.KindRaster, layers.KindPolygon, layers.KindMarkers:
		default:
			continue
		}
		if !o.Visible || !s.fits.ShouldFit(o.Name, o.ID, o.Bounds) {
			continue
		}
		if err := layers.Fit(s.view, *o.Bounds, opts); err != nil {
			slog.Warn("fit bounds failed", "layer", o.Name, "error", err)
			continue
		}
		fits = append(fits, FitCommand{Layer: o.Name, Bounds: *o.Bounds, Padding: opts.Padding, Zoom: s.view.Zoom()})
	}
	return fits
}

// Click handles a click on a sensor marker or a field polygon. The popup
// opens without its series; LoadSeries fetches it on demand. A click that
// hits nothing closes the popup and clears the highlight.
func (s *Session) Click(ctx context.Context, c Click) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Kind {
	case popup.Sensor:
		m, ok := s.markers.Find(c.ID)
		if !ok {
			s.closePopupLocked()
			break
		}
		s.activeMarker = m.ID
		s.openLocked(ctx, "sensor:"+m.ID, popup.Sensor, m.Location(), m.Properties)
	case popup.Field:
		if !s.clickFieldLocked(ctx, c) {
			s.closePopupLocked()
		}
	default:
		s.closePopupLocked()
	}
	return s.syncLocked(ctx)
}

func (s *Session) clickFieldLocked(ctx context.Context, c Click) bool {
	key, ok := s.layerKey(c.Layer)
	if !ok {
		return false
	}
	ov, err := s.catalog.Layer(ctx, key)
	if err != nil {
		s.pending = append(s.pending, Toast{Kind: ToastError, Message: err.Error()})
		return false
	}
	pt := orb.Point{c.Lon, c.Lat}
	f, found := ov.Feature(c.ID)
	if !found {
		f, found = ov.FeatureAt(pt)
	}
	if !found {
		return false
	}
	if c.Lat == 0 && c.Lon == 0 {
		pt = f.Bound().Center()
	}
	s.hl = &highlight{
		layer:   key,
		name:    c.Layer,
		fieldID: f.ID,
		feature: f,
		bounds:  geo.FromOrb(f.Bound()),
	}
	s.activeMarker = ""
	s.openLocked(ctx, "field:"+key+":"+f.ID, popup.Field, pt, f.Properties)
	return true
}

// layerKey maps a polygon overlay name to its catalog key under the
// current state.
func (s *Session) layerKey(name string) (string, bool) {
	switch name {
	case s.cfg.CenterPivotLayer, "":
		return CenterPivotLayerKey(s.state.CenterPivotYear, s.state.ClipCenterPivot), s.state.ShowCenterPivot
	case s.cfg.DatePalmsLayer:
		return LayerDatePalms, s.state.ShowDatePalms
	}
	return "", false
}

func (s *Session) openLocked(ctx context.Context, key string, kind popup.Kind, at orb.Point, props map[string]any) {
	s.popup = &openPopup{
		key:     key,
		kind:    kind,
		at:      at,
		props:   props,
		content: s.popups.Build(ctx, kind, props, false),
	}
}

// ClosePopup closes the popup and clears the active marker and highlight.
func (s *Session) ClosePopup(ctx context.Context) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closePopupLocked()
	return s.syncLocked(ctx)
}

func (s *Session) closePopupLocked() {
	s.popup = nil
	s.hl = nil
	s.activeMarker = ""
}

// LoadSeries builds the time series of the open popup. It runs without
// the session lock and keeps the result only if the same popup is still
// open. ok is false when no popup is open.
func (s *Session) LoadSeries(ctx context.Context) (content popup.Content, ok bool) {
	s.mu.Lock()
	p := s.popup
	s.mu.Unlock()
	if p == nil {
		return popup.Content{}, false
	}

	content = s.popups.Build(ctx, p.kind, p.props, true)

	s.mu.Lock()
	if s.popup != nil && s.popup.key == p.key {
		s.popup.content = content
	}
	s.mu.Unlock()
	return content, true
}

// Popup returns the open popup's content.
func (s *Session) Popup() (popup.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.popup == nil {
		return popup.Content{}, false
	}
	return s.popup.content, true
}

// Highlighted returns the highlighted field feature.
func (s *Session) Highlighted() (loader.PolygonFeature, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hl == nil {
		return loader.PolygonFeature{}, false
	}
	return s.hl.feature, true
}

// Close cancels pending loads. Later debounced results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.markerDeb.Stop()
	s.pyr.Close()
}
