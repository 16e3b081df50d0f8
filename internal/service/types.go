// Package service holds the stateful side of the geoportal: map sessions,
// the memoized polygon overlay catalog, data-directory listings and the
// event bus that carries debounced results back to the viewers.
package service

import (
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/layers"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/pyramid"
)

// State is what the viewer wants on the map. Active marker, highlight and
// popup are driven by clicks, not by State.
type State struct {
	BaseLayer     string  `json:"baseLayer,omitempty" doc:"Visible base layer name; empty picks the first" example:"OpenStreetMap"`
	MarkersPath   string  `json:"markersPath,omitempty" doc:"Sensor GeoJSON path; empty uses the configured file"`
	ShowMarkers   bool    `json:"showMarkers" doc:"Show the sensor marker group" example:"true"`
	RasterYear    int     `json:"rasterYear,omitempty" doc:"Classification year; 0 uses the default tiles folder" example:"2023"`
	ShowRaster    bool    `json:"showRaster" doc:"Show the classification raster" example:"true"`
	RasterOpacity float64 `json:"rasterOpacity,omitempty" minimum:"0" maximum:"1" doc:"Raster opacity; 0 uses the configured default" example:"0.75"`

	CenterPivotYear    int     `json:"cpfYear,omitempty" doc:"Center-pivot year; 0 uses the configured default" example:"2023"`
	ShowCenterPivot    bool    `json:"showCpf" doc:"Show center-pivot fields"`
	ClipCenterPivot    bool    `json:"clipCpf" doc:"Clip center-pivot fields to the configured ROI"`
	CenterPivotOpacity float64 `json:"cpfOpacity,omitempty" minimum:"0" maximum:"1" doc:"Center-pivot opacity; 0 uses the configured default"`
	ShowDatePalms      bool    `json:"showDatePalms" doc:"Show date palm fields"`
	DatePalmsOpacity   float64 `json:"datePalmsOpacity,omitempty" minimum:"0" maximum:"1" doc:"Date palm opacity; 0 uses the configured default"`

	ViewWidth  int  `json:"viewWidth,omitempty" doc:"Map viewport width in pixels" example:"1280"`
	ViewHeight int  `json:"viewHeight,omitempty" doc:"Map viewport height in pixels" example:"720"`
	Zoom       int  `json:"zoom,omitempty" doc:"Current map zoom"`
	LegacyFit  bool `json:"legacyFit,omitempty" doc:"Map client cannot clamp zoom while fitting bounds"`
}

// ToastKind is the severity of a notification.
type ToastKind string

const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastWarning ToastKind = "warning"
	ToastError   ToastKind = "error"
)

// Toast is a non-fatal notification shown to the viewer.
type Toast struct {
	Kind    ToastKind `json:"kind" enum:"info,success,warning,error" doc:"Severity"`
	Message string    `json:"message" doc:"Text shown to the user"`
}

// FitCommand asks the viewer to show Bounds at Zoom.
type FitCommand struct {
	Layer   string     `json:"layer" doc:"Overlay whose load triggered the fit"`
	Bounds  geo.Bounds `json:"bounds" doc:"[[south,west],[north,east]]"`
	Padding [2]int     `json:"padding" doc:"Pixel padding"`
	Zoom    int        `json:"zoom" doc:"Resulting zoom, already clamped"`
}

// SyncResult is one reconciliation of a session's map.
type SyncResult struct {
	Plan     layers.Plan        `json:"plan" doc:"Edits applied to the attached stack"`
	Attached []layers.Overlay   `json:"attached" doc:"Attached stack after the edits, bottom to top"`
	Fits     []FitCommand       `json:"fits,omitempty" doc:"Viewport fits, in order"`
	Toasts   []Toast            `json:"toasts,omitempty" doc:"Notifications raised by this sync"`
	Pyramid  pyramid.Descriptor `json:"pyramid" doc:"Current raster pyramid"`
	Popup    *popup.Content     `json:"popup,omitempty" doc:"Open popup, if any"`
}

// Click is a map click on a feature. Kind is "sensor" or "field".
type Click struct {
	Kind  popup.Kind `json:"kind" enum:"sensor,field" doc:"Clicked feature type"`
	Layer string     `json:"layer,omitempty" doc:"Polygon overlay name for field clicks" example:"Center Pivot Fields"`
	ID    string     `json:"id,omitempty" doc:"Sensor or field id, when known"`
	Lat   float64    `json:"lat,omitempty" doc:"Click latitude"`
	Lon   float64    `json:"lon,omitempty" doc:"Click longitude"`
}

// SourceFile is a data file under the data directory.
type SourceFile struct {
	Name     string `json:"name" doc:"Path relative to the data directory" example:"sensors/sensors.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"GeoJSON or CSV" example:"GeoJSON"`
	URL      string `json:"url" doc:"Static URL under /assets" example:"/assets/sensors/sensors.geojson"`
}
