package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/pyramid"
)

// TileService finds the raster tile pyramids: the default classification
// folder and the per-year folders.
type TileService struct {
	cfg *config.Config
}

// NewTileService creates a new tile service.
func NewTileService(cfg *config.Config) *TileService {
	return &TileService{cfg: cfg}
}

// Pyramid is a scanned pyramid with the URL prefix that serves it.
type Pyramid struct {
	Year       int                `json:"year,omitempty" doc:"Classification year; 0 for the default folder" example:"2023"`
	Descriptor pyramid.Descriptor `json:"descriptor"`
	URL        string             `json:"url,omitempty" doc:"Tile URL template when ready" example:"/tiles/raster/{z}/{x}/{y}.png?v=12345678"`
}

// List scans the default pyramid and every configured year. Missing year
// folders are left out; the default one is always listed.
func (s *TileService) List() []Pyramid {
	def := pyramid.Scan(s.cfg.TilesDir)
	out := []Pyramid{{Descriptor: def, URL: urlIfReady(def, s.cfg.TilesHTTPBase)}}

	years := append([]int(nil), s.cfg.CenterPivotYears...)
	sort.Ints(years)
	for _, y := range years {
		root := s.cfg.YearTilesDir(y)
		if st, err := os.Stat(root); err != nil || !st.IsDir() {
			continue
		}
		d := pyramid.Scan(root)
		out = append(out, Pyramid{Year: y, Descriptor: d, URL: urlIfReady(d, fmt.Sprintf("/tiles/%d", y))})
	}
	return out
}

// YearTilePath returns the tile file for (year, z, x, y) with the given
// extension.
func (s *TileService) YearTilePath(year, z, x, y int, ext string) string {
	return filepath.Join(s.cfg.YearTilesDir(year), fmt.Sprint(z), fmt.Sprint(x), fmt.Sprintf("%d.%s", y, ext))
}

func urlIfReady(d pyramid.Descriptor, base string) string {
	if !d.Ready() {
		return ""
	}
	return d.URLTemplate(base)
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
