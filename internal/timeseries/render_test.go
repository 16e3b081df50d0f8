package timeseries

import (
	"bytes"
	"errors"
	"testing"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/config"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestRenderPNG(t *testing.T) {
	cfg := config.Default(t.TempDir()).TimeSeries
	tab := table(map[string][]float64{
		"A1(5)":                   {1, 2, 3, 2},
		"A2(15)":                  {3, 2, 1, 2},
		"soil_moisture_root_zone": {0.25, 0.3, 0.35, 0.32},
	}, "A1(5)", "A2(15)", "soil_moisture_root_zone")
	c, err := SoilMoistureChart(tab, "Sensor S1", cfg)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{PanelRootZone, PanelBands} {
		var buf bytes.Buffer
		if err := RenderPNG(c, id, &buf); err != nil {
			t.Fatalf("RenderPNG(%s): %v", id, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
			t.Fatalf("RenderPNG(%s) did not write a PNG", id)
		}
	}

	if err := RenderPNG(c, PanelNDVI, &bytes.Buffer{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown panel err = %v", err)
	}
}

func TestRenderPNGTooFewPoints(t *testing.T) {
	tab := table(map[string][]float64{"ndvi": {0.4}}, "ndvi")
	c, err := NDVIChart(tab, "F1", 800)
	if err != nil {
		t.Fatal(err)
	}
	if err := RenderPNG(c, PanelNDVI, &bytes.Buffer{}); !errors.Is(err, apperr.ErrInvalidFormat) {
		t.Fatalf("err = %v, want InvalidFormat", err)
	}
}
