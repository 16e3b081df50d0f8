package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeblew999/geoportal/internal/apperr"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TimeSeries.RootZoneCol != "soil_moisture_root_zone" {
		t.Fatalf("root zone column = %q", cfg.TimeSeries.RootZoneCol)
	}
	if !cfg.HasCenterPivotYear(2023) || cfg.HasCenterPivotYear(2001) {
		t.Fatal("center pivot years mismatch")
	}
}

func TestValidateMissingValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"no tiles base", func(c *Config) { c.TilesHTTPBase = " " }},
		{"bad thresholds", func(c *Config) { c.TimeSeries.Thresholds = []float64{26} }},
		{"bad colors", func(c *Config) { c.TimeSeries.RegionColors = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("data")
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperr.ErrConfiguration) {
				t.Fatalf("Validate() = %v, want configuration error", err)
			}
		})
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geoportal.yaml")
	body := "tiles_http_base: https://cdn.example.com/tiles\nmap_zoom: 7\ntimeseries:\n  sm_thresholds: [20, 30, 45]\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TilesHTTPBase != "https://cdn.example.com/tiles" {
		t.Fatalf("tiles base = %q", cfg.TilesHTTPBase)
	}
	if cfg.MapZoom != 7 {
		t.Fatalf("map zoom = %d", cfg.MapZoom)
	}
	if got := cfg.TimeSeries.Thresholds; len(got) != 3 || got[2] != 45 {
		t.Fatalf("thresholds = %v", got)
	}
	// untouched keys keep their defaults
	if cfg.RasterLayerName != "Tree-Vege-NonVege Classification" {
		t.Fatalf("raster layer name = %q", cfg.RasterLayerName)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "data"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestYearTilesDir(t *testing.T) {
	cfg := Default("data")
	want := filepath.Join("data", "rasters", "tiles_2021")
	if got := cfg.YearTilesDir(2021); got != want {
		t.Fatalf("YearTilesDir = %q, want %q", got, want)
	}
}
