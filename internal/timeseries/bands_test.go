package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/joeblew999/geoportal/internal/config"
)

func table(cols map[string][]float64, order ...string) *Table {
	n := len(cols[order[0]])
	t := &Table{Path: "mem", TimeColumn: "timestamp", Values: cols, Columns: order}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		t.Times = append(t.Times, base.Add(time.Duration(i)*time.Hour))
	}
	return t
}

func TestNormalizeConstantBand(t *testing.T) {
	got := NormalizeBand([]float64{3, 3, 3})
	for _, v := range got {
		if v != 0.5 {
			t.Fatalf("constant band = %v, want all 0.5", got)
		}
	}

	tab := table(map[string][]float64{"A1": {3, 3, 3}, "A2": {3, 3, 3}}, "A1", "A2")
	bands := DepthBands(tab, BandOptions{Gap: 0.5})
	if bands[1].Offset != 1.5 {
		t.Fatalf("offset = %v, want 1.5", bands[1].Offset)
	}
	for _, v := range bands[1].Values {
		if v != 2.0 {
			t.Fatalf("flat band after offset = %v, want 2.0", bands[1].Values)
		}
	}
}

func TestNormalizeBand(t *testing.T) {
	got := NormalizeBand([]float64{10, math.NaN(), 20, 15})
	if got[0] != 0 || got[2] != 1 || got[3] != 0.5 || !math.IsNaN(got[1]) {
		t.Fatalf("NormalizeBand = %v", got)
	}
	if all := NormalizeBand([]float64{math.NaN()}); all[0] != 0.5 {
		t.Fatalf("all-NaN band = %v", all)
	}
}

func TestDepthBandsSelectionAndOrder(t *testing.T) {
	tab := table(map[string][]float64{
		"A1(5)":                   {1, 2},
		"A2(15)":                  {1, 2},
		"A3(25)":                  {1, 2},
		"soil_moisture_root_zone": {0.2, 0.3},
	}, "A1(5)", "A2(15)", "A3(25)", "soil_moisture_root_zone")

	bands := DepthBands(tab, BandOptions{MaxLayers: 2, Reverse: true, Palette: "okabe_ito"})
	if len(bands) != 2 {
		t.Fatalf("bands = %d, want 2", len(bands))
	}
	if bands[0].Column != "A2(15)" || bands[1].Column != "A1(5)" {
		t.Fatalf("order = %s, %s; want reversed A2, A1", bands[0].Column, bands[1].Column)
	}
	if bands[1].Label != "0–10 cm" || bands[0].Color != "#E69F00" {
		t.Fatalf("band = %+v", bands[1])
	}

	plain := table(map[string][]float64{"x": {1, 2}, "y": {2, 1}}, "x", "y")
	if got := DepthBands(plain, BandOptions{}); len(got) != 2 || got[0].Label != "x" {
		t.Fatalf("fallback bands = %+v", got)
	}
}

func TestPalette(t *testing.T) {
	got := Palette("nope", nil, 10)
	if got[0] != "#0077BB" || got[9] != "#0077BB" {
		t.Fatalf("fallback palette = %v", got)
	}
	if got := Palette("okabe_ito", []string{"red"}, 2); got[1] != "red" {
		t.Fatalf("explicit colors = %v", got)
	}
}

func TestRootZone(t *testing.T) {
	opts := RootZoneOptions{
		Column:     "sm",
		Thresholds: []float64{26, 28, 40},
		Colors:     []string{"a", "b", "c", "d"},
		MinCeiling: 45,
		Pad:        5,
	}

	frac := table(map[string][]float64{"sm": {0.2, math.NaN(), 0.3}}, "sm")
	rz, ok := RootZone(frac, opts)
	if !ok || !rz.Converted {
		t.Fatalf("fractions not converted: %+v", rz)
	}
	if math.Abs(rz.Values[0]-20) > 1e-9 || math.Abs(rz.Values[2]-30) > 1e-9 || !math.IsNaN(rz.Values[1]) {
		t.Fatalf("values = %v", rz.Values)
	}
	if rz.YMax != 45 {
		t.Fatalf("ymax = %v, want floor 45", rz.YMax)
	}
	if len(rz.Regions) != 4 || rz.Regions[3].From != 40 || rz.Regions[3].To != 45 || rz.Regions[0].Label != "Warning" {
		t.Fatalf("regions = %+v", rz.Regions)
	}

	pct := table(map[string][]float64{"sm": {30, 50}}, "sm")
	rz, _ = RootZone(pct, opts)
	if rz.Converted || rz.YMax != 55 {
		t.Fatalf("percent series = %+v", rz)
	}

	if _, ok := RootZone(pct, RootZoneOptions{Column: "other"}); ok {
		t.Fatal("missing column reported ok")
	}
}

func TestSoilMoistureChart(t *testing.T) {
	cfg := config.Default(t.TempDir()).TimeSeries
	tab := table(map[string][]float64{
		"A1(5)":                   {1, 2, 3},
		"A2(15)":                  {3, 2, 1},
		"soil_moisture_root_zone": {0.25, 0.3, 0.35},
	}, "A1(5)", "A2(15)", "soil_moisture_root_zone")

	c, err := SoilMoistureChart(tab, "Sensor S1", cfg)
	if err != nil {
		t.Fatalf("SoilMoistureChart: %v", err)
	}
	if len(c.Panels) != 2 || c.Panels[0].ID != PanelRootZone || c.Panels[1].ID != PanelBands {
		t.Fatalf("panels = %+v", c.Panels)
	}
	bands, _ := c.Panel(PanelBands)
	if len(bands.Ticks) != 2 || bands.Ticks[1].Label != "0–10 cm" {
		t.Fatalf("ticks = %+v", bands.Ticks)
	}
	if c.Height != 720 || c.Points() != 3 {
		t.Fatalf("height %d points %d", c.Height, c.Points())
	}
}

func TestValuesMarshalNaN(t *testing.T) {
	b, err := Values{1.5, math.NaN(), 2}.MarshalJSON()
	if err != nil || string(b) != "[1.5,null,2]" {
		t.Fatalf("MarshalJSON = %s, %v", b, err)
	}
}

func TestIsDepthBand(t *testing.T) {
	tests := []struct {
		col  string
		want bool
	}{
		{"A1", true},
		{"A9(85)", true},
		{"A0", false},
		{"A", false},
		{"AB", false},
		{"B1", false},
		{"a1", false},
	}
	for _, tt := range tests {
		if got := IsDepthBand(tt.col); got != tt.want {
			t.Errorf("IsDepthBand(%q) = %v, want %v", tt.col, got, tt.want)
		}
	}
}
