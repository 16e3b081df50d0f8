package service

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/loader"
)

// Overlay layer keys used in URLs.
const (
	LayerDatePalms         = "date-palms"
	centerPivotLayerPrefix = "center-pivot-"
)

// CenterPivotLayerKey returns the URL key of a center-pivot year, with
// "-clip" appended for the ROI-clipped variant.
func CenterPivotLayerKey(year int, clip bool) string {
	key := centerPivotLayerPrefix + strconv.Itoa(year)
	if clip {
		key += "-clip"
	}
	return key
}

type catalogEntry struct {
	modTime time.Time
	size    int64
	overlay *loader.PolygonOverlay
}

// OverlayCatalog loads the polygon overlays and memoizes them. Local files
// are reloaded when their size or modification time changes; URL sources
// are fetched once per process.
type OverlayCatalog struct {
	cfg    *config.Config
	client *http.Client

	mu      sync.Mutex
	entries map[string]catalogEntry
}

// NewOverlayCatalog returns an empty catalog. A nil client uses the
// loader's default.
func NewOverlayCatalog(cfg *config.Config, client *http.Client) *OverlayCatalog {
	return &OverlayCatalog{
		cfg:     cfg,
		client:  client,
		entries: make(map[string]catalogEntry),
	}
}

// CenterPivot returns the center-pivot fields of year. With clip the
// local file is read and cut to the configured ROI; without it the HTTP
// base is preferred when one is configured.
func (c *OverlayCatalog) CenterPivot(ctx context.Context, year int, clip bool) (*loader.PolygonOverlay, error) {
	if !c.cfg.HasCenterPivotYear(year) {
		return nil, apperr.NotFound("Year %d not in allowed set: %v", year, c.cfg.CenterPivotYears)
	}
	opts := loader.PolygonOptions{
		Name:         c.cfg.CenterPivotLayer,
		FallbackEPSG: c.cfg.PolygonFallbackEPSG,
		Client:       c.client,
	}
	if clip {
		roi := c.cfg.CenterPivotROI
		b := geo.ParseROI(roi.LatMin, roi.LonMin, roi.LatMax, roi.LonMax)
		opts.Clip = &b
	}

	var src loader.Source
	if c.cfg.CenterPivotHTTPBase != "" && !clip {
		url, err := loader.CenterPivotURL(c.cfg.CenterPivotHTTPBase, year)
		if err != nil {
			return nil, err
		}
		src.URL = url
	} else {
		path, err := loader.ResolveCenterPivot(c.cfg.CenterPivotDir, year)
		if err != nil {
			return nil, err
		}
		src.Path = path
	}
	return c.load(ctx, CenterPivotLayerKey(year, clip), src, opts)
}

// DatePalms returns the date palm fields, from the configured file or URL.
func (c *OverlayCatalog) DatePalms(ctx context.Context) (*loader.PolygonOverlay, error) {
	src := loader.Source{Path: c.cfg.DatePalmsGeoJSON, URL: c.cfg.DatePalmsURL}
	if src.Path == "" && src.URL == "" {
		return nil, apperr.Configuration("no date palm GeoJSON configured")
	}
	return c.load(ctx, LayerDatePalms, src, loader.PolygonOptions{
		Name:         c.cfg.DatePalmsLayer,
		FallbackEPSG: c.cfg.PolygonFallbackEPSG,
		Client:       c.client,
	})
}

// Layer resolves a layer key: "date-palms", "center-pivot-<year>" or
// "center-pivot-<year>-clip".
func (c *OverlayCatalog) Layer(ctx context.Context, key string) (*loader.PolygonOverlay, error) {
	if key == LayerDatePalms {
		return c.DatePalms(ctx)
	}
	rest, ok := strings.CutPrefix(key, centerPivotLayerPrefix)
	if !ok {
		return nil, apperr.NotFound("unknown overlay %q", key)
	}
	rest, clip := strings.CutSuffix(rest, "-clip")
	year, err := strconv.Atoi(rest)
	if err != nil {
		return nil, apperr.NotFound("unknown overlay %q", key)
	}
	return c.CenterPivot(ctx, year, clip)
}

func (c *OverlayCatalog) load(ctx context.Context, key string, src loader.Source, opts loader.PolygonOptions) (*loader.PolygonOverlay, error) {
	var st os.FileInfo
	if !src.IsURL() {
		var err error
		st, err = os.Stat(src.Path)
		if err != nil {
			return nil, apperr.NotFound("GeoJSON not found: %s", src.Path)
		}
	}
	cacheKey := key + "|" + src.String()

	c.mu.Lock()
	e, ok := c.entries[cacheKey]
	c.mu.Unlock()
	if ok && (st == nil || (e.modTime.Equal(st.ModTime()) && e.size == st.Size())) {
		return e.overlay, nil
	}

	start := time.Now()
	overlay, _, err := loader.LoadPolygonFeatures(ctx, src, opts)
	if err != nil {
		slog.Warn("overlay load failed", "layer", key, "path", src.String(), "error", err)
		return nil, err
	}
	slog.Info("overlay loaded",
		"layer", key,
		"path", src.String(),
		"features", len(overlay.Features),
		"dropped", overlay.Dropped,
		"fixup", overlay.Fixup,
		"took", time.Since(start))

	e = catalogEntry{overlay: overlay}
	if st != nil {
		e.modTime, e.size = st.ModTime(), st.Size()
	}
	c.mu.Lock()
	c.entries[cacheKey] = e
	c.mu.Unlock()
	return overlay, nil
}
