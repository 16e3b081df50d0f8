// Package config holds the static per-process configuration of the geoportal.
//
// A Config is built once at startup from Default, optionally overlaid with a
// YAML file, validated, and then passed by pointer to every component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// LatLon is a (lat, lon) pair in degrees.
type LatLon struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

// LegendItem is one entry in a layer legend.
type LegendItem struct {
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color"`
}

// IconStyle is the marker icon styling for normal and active markers.
type IconStyle struct {
	Icon        string `yaml:"icon" json:"icon"`
	Color       string `yaml:"color" json:"color"`
	ActiveColor string `yaml:"active_color" json:"active_color"`
	IconColor   string `yaml:"icon_color" json:"icon_color"`
}

// BaseLayer is a background tile layer that always sits at the bottom of the
// map stack.
type BaseLayer struct {
	Name        string `yaml:"name" json:"name"`
	URL         string `yaml:"url" json:"url"`
	Attribution string `yaml:"attribution" json:"attribution"`
}

// ROI is a region of interest given as latitude and longitude ranges.
type ROI struct {
	LatMin float64 `yaml:"lat_min" json:"lat_min"`
	LonMin float64 `yaml:"lon_min" json:"lon_min"`
	LatMax float64 `yaml:"lat_max" json:"lat_max"`
	LonMax float64 `yaml:"lon_max" json:"lon_max"`
}

// TimeSeries configures the soil-moisture chart.
type TimeSeries struct {
	Width        int       `yaml:"width" json:"width"`
	BandHeightPx int       `yaml:"band_height_px" json:"band_height_px"`
	GapFrac      float64   `yaml:"gap_frac" json:"gap_frac"`
	MaxLayers    int       `yaml:"max_layers" json:"max_layers"`
	ReverseDepth bool      `yaml:"reverse_depth" json:"reverse_depth"`
	Palette      string    `yaml:"palette" json:"palette"`
	Colors       []string  `yaml:"colors" json:"colors"`
	LineWidth    float64   `yaml:"line_width" json:"line_width"`
	ZebraFills   []string  `yaml:"zebra_fills" json:"zebra_fills"`
	RootZoneCol  string    `yaml:"sm_column" json:"sm_column"`
	Thresholds   []float64 `yaml:"sm_thresholds" json:"sm_thresholds"`
	RegionColors []string  `yaml:"sm_colors" json:"sm_colors"`
	YMin         float64   `yaml:"sm_top_ylim_min" json:"sm_top_ylim_min"`
	MinCeiling   float64   `yaml:"sm_top_min_ceiling" json:"sm_top_min_ceiling"`
	YPad         float64   `yaml:"sm_top_ylim_pad" json:"sm_top_ylim_pad"`
}

// Config is the full set of named options.
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`

	MapCenter      LatLon      `yaml:"map_center" json:"map_center"`
	MapZoom        int         `yaml:"map_zoom" json:"map_zoom"`
	FitMaxZoom     int         `yaml:"fit_bounds_max_zoom" json:"fit_bounds_max_zoom"`
	FitPadding     [2]int      `yaml:"fit_bounds_padding" json:"fit_bounds_padding"`
	BaseLayers     []BaseLayer `yaml:"base_layers" json:"base_layers"`
	LayerGroupName string      `yaml:"layer_group_name" json:"layer_group_name"`
	Icon           IconStyle   `yaml:"icon" json:"icon"`

	// Sensors
	SensorGeoJSON  string   `yaml:"sensor_geojson" json:"sensor_geojson"`
	SensorCSVDir   string   `yaml:"sensor_csv_dir" json:"sensor_csv_dir"`
	TimeColumns    []string `yaml:"time_col_candidates" json:"time_col_candidates"`
	MarkerDebounce int      `yaml:"marker_debounce_ms" json:"marker_debounce_ms"`

	// NDVI
	NDVICSVDir   string `yaml:"ndvi_csv_dir" json:"ndvi_csv_dir"`
	NDVIHTTPBase string `yaml:"ndvi_http_base" json:"ndvi_http_base"`

	// Raster classification tiles
	TilesDir           string       `yaml:"default_tiles_dir" json:"default_tiles_dir"`
	TilesHTTPBase      string       `yaml:"tiles_http_base" json:"tiles_http_base"`
	RasterLayerName    string       `yaml:"raster_layer_name" json:"raster_layer_name"`
	RasterOpacity      float64      `yaml:"raster_opacity_default" json:"raster_opacity_default"`
	RasterMaxZoom      int          `yaml:"raster_max_zoom" json:"raster_max_zoom"`
	RasterLegend       []LegendItem `yaml:"raster_legend" json:"raster_legend"`
	TilesDebounce      int          `yaml:"tiles_debounce_ms" json:"tiles_debounce_ms"`
	YearTilesDirFormat string       `yaml:"year_tiles_dir_format" json:"year_tiles_dir_format"`

	// Center-pivot fields
	CenterPivotDir      string  `yaml:"center_pivot_dir" json:"center_pivot_dir"`
	CenterPivotHTTPBase string  `yaml:"center_pivot_http_base" json:"center_pivot_http_base"`
	CenterPivotYears    []int   `yaml:"center_pivot_years" json:"center_pivot_years"`
	CenterPivotYear     int     `yaml:"center_pivot_default_year" json:"center_pivot_default_year"`
	CenterPivotLayer    string  `yaml:"center_pivot_layer_name" json:"center_pivot_layer_name"`
	CenterPivotColor    string  `yaml:"center_pivot_color" json:"center_pivot_color"`
	CenterPivotOpacity  float64 `yaml:"center_pivot_opacity" json:"center_pivot_opacity"`
	CenterPivotROI      ROI     `yaml:"center_pivot_roi" json:"center_pivot_roi"`
	PolygonFallbackEPSG int     `yaml:"polygon_fallback_epsg" json:"polygon_fallback_epsg"`

	// Date palms
	DatePalmsGeoJSON string  `yaml:"datepalms_geojson" json:"datepalms_geojson"`
	DatePalmsURL     string  `yaml:"datepalms_url" json:"datepalms_url"`
	DatePalmsLayer   string  `yaml:"datepalms_layer_name" json:"datepalms_layer_name"`
	DatePalmsColor   string  `yaml:"datepalms_color" json:"datepalms_color"`
	DatePalmsOpacity float64 `yaml:"datepalms_opacity" json:"datepalms_opacity"`
	HighlightColor   string  `yaml:"highlight_color" json:"highlight_color"`

	TimeSeries TimeSeries `yaml:"timeseries" json:"timeseries"`
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		MapCenter:      LatLon{Lat: 29, Lon: 40},
		MapZoom:        5,
		FitMaxZoom:     14,
		FitPadding:     [2]int{20, 20},
		LayerGroupName: "Sensors in AlDka",
		BaseLayers: []BaseLayer{
			{Name: "OpenStreetMap", URL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png", Attribution: "© OpenStreetMap contributors"},
			{Name: "Esri World Imagery", URL: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}", Attribution: "Tiles © Esri"},
		},
		Icon: IconStyle{Icon: "tint", Color: "blue", ActiveColor: "lightred", IconColor: "white"},

		SensorGeoJSON:  filepath.Join(dataDir, "sensors", "sensors.geojson"),
		SensorCSVDir:   filepath.Join(dataDir, "sensors", "csv"),
		TimeColumns:    []string{"timestamp", "time", "datetime", "date", "Date Time"},
		MarkerDebounce: 500,

		NDVICSVDir: filepath.Join(dataDir, "ndvi"),

		TilesDir:        filepath.Join(dataDir, "tiles", "classification"),
		TilesHTTPBase:   "/tiles/raster",
		RasterLayerName: "Tree-Vege-NonVege Classification",
		RasterOpacity:   0.75,
		RasterMaxZoom:   14,
		RasterLegend: []LegendItem{
			{Label: "Non-vegetation", Color: "#FDAE61"},
			{Label: "Non-tree vegetation", Color: "#FFFFBF"},
			{Label: "Trees", Color: "#ABDDA4"},
		},
		TilesDebounce:      350,
		YearTilesDirFormat: filepath.Join(dataDir, "rasters", "tiles_%d"),

		CenterPivotDir:      filepath.Join(dataDir, "center_pivot"),
		CenterPivotYears:    []int{1995, 2000, 2005, 2010, 2015, 2016, 2017, 2018, 2019, 2020, 2021, 2022, 2023},
		CenterPivotYear:     2023,
		CenterPivotLayer:    "Center Pivot Fields",
		CenterPivotColor:    "#56B4E9",
		CenterPivotOpacity:  0.6,
		CenterPivotROI:      ROI{LatMin: 24, LonMin: 40, LatMax: 28, LonMax: 45},
		PolygonFallbackEPSG: 0,

		DatePalmsGeoJSON: filepath.Join(dataDir, "datepalms", "datepalms.geojson"),
		DatePalmsLayer:   "Date Palm Fields",
		DatePalmsColor:   "#009E73",
		DatePalmsOpacity: 0.6,
		HighlightColor:   "#CC79A7",

		TimeSeries: TimeSeries{
			Width:        1800,
			BandHeightPx: 100,
			GapFrac:      0,
			MaxLayers:    9,
			ReverseDepth: true,
			Palette:      "kaarten_ova",
			LineWidth:    2,
			ZebraFills:   []string{"rgba(0,0,0,0.02)", "rgba(0,0,0,0.05)"},
			RootZoneCol:  "soil_moisture_root_zone",
			Thresholds:   []float64{26, 28, 40},
			RegionColors: []string{"#F076A9", "#F3D421", "#ADF69E", "#3E88E9"},
			YMin:         0,
			MinCeiling:   45,
			YPad:         5,
		},
	}
}

// Load returns Default(dataDir) overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path, dataDir string) (*Config, error) {
	cfg := Default(dataDir)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values needed to mount static assets.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return apperr.Configuration("data_dir is required to mount static assets")
	}
	if strings.TrimSpace(c.TilesHTTPBase) == "" {
		return apperr.Configuration("tiles_http_base is required to serve the raster overlay")
	}
	if len(c.TimeSeries.Thresholds) != 3 {
		return apperr.Configuration("timeseries.sm_thresholds needs exactly 3 cut points, got %d", len(c.TimeSeries.Thresholds))
	}
	if len(c.TimeSeries.RegionColors) != 4 {
		return apperr.Configuration("timeseries.sm_colors needs exactly 4 colors, got %d", len(c.TimeSeries.RegionColors))
	}
	return nil
}

// YearTilesDir returns the pyramid directory for a classification year.
func (c *Config) YearTilesDir(year int) string {
	return fmt.Sprintf(c.YearTilesDirFormat, year)
}

// HasCenterPivotYear reports whether year is one of the configured years.
func (c *Config) HasCenterPivotYear(year int) bool {
	for _, y := range c.CenterPivotYears {
		if y == year {
			return true
		}
	}
	return false
}
