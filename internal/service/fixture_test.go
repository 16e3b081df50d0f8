package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/timeseries"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func pointsGeoJSON(ids ...string) string {
	s := `{"type":"FeatureCollection","features":[`
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(`{"type":"Feature","geometry":{"type":"Point","coordinates":[%g,%g]},"properties":{"sensor_id":%q}}`,
			41+0.1*float64(i), 25+0.1*float64(i), id)
	}
	return s + "]}"
}

func fieldsGeoJSON(fields map[string][2]float64) string {
	s := `{"type":"FeatureCollection","features":[`
	first := true
	for id, ll := range fields {
		lon, lat := ll[0], ll[1]
		ring, _ := json.Marshal([][]float64{{lon, lat}, {lon + 0.1, lat}, {lon + 0.1, lat + 0.1}, {lon, lat + 0.1}, {lon, lat}})
		if !first {
			s += ","
		}
		first = false
		s += `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[` + string(ring) + `]},"properties":{"Field_id":"` + id + `"}}`
	}
	return s + "]}"
}

// fixture lays out a data directory with two sensors, one raster tile and
// the 2023 center-pivot file.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.MarkerDebounce = 10
	cfg.TilesDebounce = 10

	writeFile(t, cfg.SensorGeoJSON, pointsGeoJSON("S1", "S2"))
	writeFile(t, filepath.Join(cfg.TilesDir, "10", "628", "437.png"), "")
	writeFile(t, filepath.Join(cfg.CenterPivotDir, "CPF_fields_2023_simpl.geojson"), fieldsGeoJSON(map[string][2]float64{
		"F100": {41, 25},
		"F200": {44, 27},
	}))
	return cfg
}

func testDeps(cfg *config.Config) SessionDeps {
	return SessionDeps{
		Config:  cfg,
		Catalog: NewOverlayCatalog(cfg, nil),
		Popups:  popup.NewBuilder(cfg, timeseries.NewNDVISource(cfg.NDVICSVDir, "", nil)),
		Bus:     NewEventBus(),
	}
}

// waitAll reads events of session id until every action has arrived once.
func waitAll(t *testing.T, ch <-chan Event, id string, actions ...string) map[string]Event {
	t.Helper()
	got := make(map[string]Event)
	timeout := time.After(3 * time.Second)
	for len(got) < len(actions) {
		select {
		case e := <-ch:
			if e.ID != id {
				continue
			}
			for _, a := range actions {
				if e.Action == a {
					got[a] = e
				}
			}
		case <-timeout:
			t.Fatalf("events for session %s: got %d of %v", id, len(got), actions)
		}
	}
	return got
}

func fixtureBounds(south, west, north, east float64) geo.Bounds {
	return geo.Bounds{South: south, West: west, North: north, East: east}
}
