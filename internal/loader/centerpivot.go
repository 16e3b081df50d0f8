package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// CenterPivotFilename is the canonical simplified file name for a year.
func CenterPivotFilename(year int) string {
	return fmt.Sprintf("CPF_fields_%d_simpl.geojson", year)
}

// centerPivotCandidates lists the names seen in delivered data sets, the
// misspelled "fileds" variant included.
func centerPivotCandidates(year int) []string {
	return []string{
		CenterPivotFilename(year),
		fmt.Sprintf("CPF_fileds_%d_simpl.geojson", year),
		fmt.Sprintf("CPF_fields_%d.geojson", year),
		fmt.Sprintf("CPF_fileds_%d.geojson", year),
	}
}

// ResolveCenterPivot returns the local file for year under dir.
func ResolveCenterPivot(dir string, year int) (string, error) {
	for _, name := range centerPivotCandidates(year) {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", apperr.NotFound("no center-pivot GeoJSON for %d in %s", year, dir)
}

// CenterPivotURL joins the HTTP base and the canonical file name.
func CenterPivotURL(base string, year int) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", apperr.Configuration("center_pivot_http_base is empty")
	}
	return strings.TrimRight(base, "/") + "/" + CenterPivotFilename(year), nil
}
