package service

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/geo"
)

// SourceService lists the GeoJSON and CSV files under the data directory.
type SourceService struct {
	dataDir string
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{dataDir: dataDir}
}

// Supported source file extensions and their types
var extToType = map[string]string{
	".geojson": "GeoJSON",
	".json":    "GeoJSON",
	".csv":     "CSV",
}

// List returns every GeoJSON and CSV file below the data directory. Tile
// pyramids are skipped.
func (s *SourceService) List() ([]SourceFile, error) {
	files := []SourceFile{}
	err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.dataDir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != s.dataDir && isPyramidDir(path) {
				return fs.SkipDir
			}
			return nil
		}

		fileType, ok := extToType[strings.ToLower(filepath.Ext(d.Name()))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(s.dataDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		files = append(files, SourceFile{
			Name:     rel,
			Size:     formatSize(info.Size()),
			FileType: fileType,
			URL:      "/assets/" + rel,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// DataDir returns the data directory.
func (s *SourceService) DataDir() string {
	return s.dataDir
}

// Resolve maps a client-supplied path onto the data directory. A path
// already under the data directory is kept; any other relative path is
// joined to it. Absolute paths elsewhere and escapes via ".." fail with an
// InvalidFormat error. An empty path resolves to "".
func (s *SourceService) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	p = filepath.Clean(p)
	if rel, err := filepath.Rel(s.dataDir, p); err == nil && filepath.IsLocal(rel) {
		return p, nil
	}
	if filepath.IsLocal(p) {
		return filepath.Join(s.dataDir, p), nil
	}
	return "", apperr.InvalidFormat("path %q is outside the data directory", p)
}

// isPyramidDir reports whether dir looks like an XYZ pyramid root.
func isPyramidDir(dir string) bool {
	_, _, ok := geo.DetectZoomRange(dir)
	return ok
}
