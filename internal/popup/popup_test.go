package popup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/timeseries"
)

func newBuilder(t *testing.T) (*Builder, *config.Config) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	for _, dir := range []string{cfg.SensorCSVDir, cfg.NDVICSVDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return NewBuilder(cfg, timeseries.NewNDVISource(cfg.NDVICSVDir, "", nil)), cfg
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildRowsHideStyling(t *testing.T) {
	b, _ := newBuilder(t)
	props := geojson.Properties{
		"sensor_id":       "S1",
		"style":           map[string]any{"color": "red"},
		"_style":          "x",
		"visual_style":    "y",
		"depth":           30.0,
		"docs":            "https://example.org/s1",
		"installed_since": "2021-04-01",
	}
	c := b.Build(context.Background(), Sensor, props, false)

	if c.Title != "Sensor S1" || c.InstalledSince != "2021-04-01" {
		t.Fatalf("content = %+v", c)
	}
	keys := make([]string, len(c.Rows))
	for i, r := range c.Rows {
		keys[i] = r.Key
	}
	if got := strings.Join(keys, ","); got != "depth,docs,installed_since,sensor_id" {
		t.Fatalf("rows = %s", got)
	}
	if c.Rows[0].Value != "30" || !c.Rows[1].Link || c.Rows[3].Link {
		t.Fatalf("rows = %+v", c.Rows)
	}
	if c.Chart != nil || c.Error != "" {
		t.Fatalf("series loaded without being asked: %+v", c)
	}
}

func TestBuildSensorSeries(t *testing.T) {
	b, cfg := newBuilder(t)
	write(t, filepath.Join(cfg.SensorCSVDir, "S1.csv"),
		"timestamp,A1(5),A2(15),soil_moisture_root_zone\n"+
			"2024-01-01 00:00,1,2,0.25\n"+
			"2024-01-01 01:00,2,3,0.27\n")

	c := b.Build(context.Background(), Sensor, geojson.Properties{"sensor_id": "S1"}, true)
	if c.Error != "" || c.Chart == nil {
		t.Fatalf("content = %+v", c)
	}
	if len(c.Chart.Panels) != 2 || !strings.HasSuffix(c.Source, "S1.csv") {
		t.Fatalf("chart = %+v source %q", c.Chart, c.Source)
	}
}

func TestBuildErrorsInline(t *testing.T) {
	b, cfg := newBuilder(t)
	write(t, filepath.Join(cfg.SensorCSVDir, "bad.csv"), "when,x\nfoo,1\n")

	tests := []struct {
		name  string
		kind  Kind
		props geojson.Properties
		want  string
	}{
		{"no id", Sensor, geojson.Properties{"name": ""}, "csv_path"},
		{"missing csv", Sensor, geojson.Properties{"sensor_id": "S9"}, "CSV not found"},
		{"no time column", Sensor, geojson.Properties{"sensor_id": "bad"}, "No datetime column"},
		{"missing ndvi", Field, geojson.Properties{"Field_id": "F100"}, "F100"},
		{"field without id", Field, geojson.Properties{"area": 3.0}, "Field_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := b.Build(context.Background(), tt.kind, tt.props, true)
			if c.Chart != nil {
				t.Fatal("chart set on failure")
			}
			if !strings.HasPrefix(c.Error, "Failed to load time series: ") || !strings.Contains(c.Error, tt.want) {
				t.Fatalf("error = %q, want it to mention %q", c.Error, tt.want)
			}
		})
	}
}

func TestBuildRefusesCSVOutsideDataDir(t *testing.T) {
	b, cfg := newBuilder(t)
	secret := filepath.Join(t.TempDir(), "secret.csv")
	write(t, secret, "timestamp,A1\n2024-01-01,1\n")
	inside := filepath.Join(cfg.SensorCSVDir, "own.csv")
	write(t, inside, "timestamp,A1(5),soil_moisture_root_zone\n"+
		"2024-01-01 00:00,1,0.25\n"+
		"2024-01-01 01:00,2,0.27\n")

	c := b.Build(context.Background(), Sensor, geojson.Properties{"sensor_id": "S1", "csv_path": secret}, true)
	if c.Chart != nil || !strings.Contains(c.Error, "outside the data directory") {
		t.Fatalf("outside csv_path: chart=%v error=%q source=%q", c.Chart != nil, c.Error, c.Source)
	}

	c = b.Build(context.Background(), Sensor, geojson.Properties{"sensor_id": "S1", "csv_path": inside}, true)
	if c.Error != "" || c.Source != inside {
		t.Fatalf("inside csv_path: error=%q source=%q", c.Error, c.Source)
	}
}

func TestBuildFieldNDVI(t *testing.T) {
	b, cfg := newBuilder(t)
	write(t, filepath.Join(cfg.NDVICSVDir, "F100.csv"),
		"date,ndvi_median\n2024-03-01,0.3\n,0.9\n2024-03-11,0.4\n2024-03-21,0.5\n")

	c := b.Build(context.Background(), Field, geojson.Properties{"Field_id": "F100"}, true)
	if c.Error != "" {
		t.Fatalf("error = %s", c.Error)
	}
	if c.Title != "Field F100" || c.Chart.Points() != 3 {
		t.Fatalf("title %q points %d", c.Title, c.Chart.Points())
	}
	if !strings.HasPrefix(c.Source, "Local file: ") {
		t.Fatalf("source = %q", c.Source)
	}
}
