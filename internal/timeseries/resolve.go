package timeseries

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joeblew999/geoportal/internal/apperr"
)

// ResolveSeriesPath returns the CSV behind a sensor's properties: an
// explicit csv_path, else <sensorDir>/<sensor_id or id>.csv. A relative
// csv_path is taken from root; an absolute one must lie under root.
func ResolveSeriesPath(props map[string]any, sensorDir, root string) (string, error) {
	if p := propText(props, "csv_path"); p != "" {
		return within(root, p)
	}
	id := propText(props, "sensor_id")
	if id == "" {
		id = propText(props, "id")
	}
	if id == "" {
		return "", apperr.NotFound("No 'csv_path' or 'sensor_id'/'id' in properties")
	}
	name, err := csvName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(sensorDir, name), nil
}

// within confines p to root. An empty root accepts any path.
func within(root, p string) (string, error) {
	p = filepath.Clean(p)
	if root == "" {
		return p, nil
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if !filepath.IsAbs(p) {
		if !filepath.IsLocal(p) {
			return "", apperr.InvalidFormat("csv_path %q is outside the data directory", p)
		}
		return filepath.Join(root, p), nil
	}
	if rel, err := filepath.Rel(root, p); err == nil && filepath.IsLocal(rel) {
		return p, nil
	}
	return "", apperr.InvalidFormat("csv_path %q is outside the data directory", p)
}

// csvName turns an identifier into "<id>.csv", refusing ids that would
// leave the directory.
func csvName(id string) (string, error) {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", apperr.InvalidFormat("invalid series id %q", id)
	}
	return id + ".csv", nil
}

func propText(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
