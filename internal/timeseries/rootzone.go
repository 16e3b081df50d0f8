package timeseries

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RegionLabels name the four root-zone regions, bottom to top.
var RegionLabels = [4]string{"Warning", "Stress", "Refill", "Full"}

const (
	// percentCutoff is the largest maximum still read as a fraction.
	percentCutoff = 1.00001
	regionOpacity = 0.35
)

// Region is a horizontal background band of the root-zone panel.
type Region struct {
	Label   string  `json:"label,omitempty"`
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity,omitempty"`
	From    float64 `json:"from"`
	To      float64 `json:"to"`
}

// RootZoneOptions configures the root-zone panel.
type RootZoneOptions struct {
	Column string
	// Thresholds are the three ascending cut points in percent.
	Thresholds []float64
	// Colors holds one color per region, bottom to top.
	Colors     []string
	YMin       float64
	MinCeiling float64
	Pad        float64
}

// RootZoneSeries is the root-zone soil moisture in percent with its
// threshold regions and y range.
type RootZoneSeries struct {
	Column string `json:"column"`
	Values Values `json:"values"`
	// Converted is true when fractions were scaled to percent.
	Converted  bool      `json:"converted"`
	YMin       float64   `json:"yMin"`
	YMax       float64   `json:"yMax"`
	Thresholds []float64 `json:"thresholds"`
	Regions    []Region  `json:"regions"`
}

// EnsurePercent returns vals scaled by 100 when their maximum is at most
// 1.0, otherwise a copy of vals. converted reports which happened.
func EnsurePercent(vals []float64) (out []float64, converted bool) {
	out = make([]float64, len(vals))
	copy(out, vals)
	present := finite(vals)
	if len(present) == 0 || floats.Max(present) > percentCutoff {
		return out, false
	}
	floats.Scale(100, out)
	return out, true
}

// RootZone builds the root-zone series of t. ok is false when t has no
// such column.
func RootZone(t *Table, opts RootZoneOptions) (rz *RootZoneSeries, ok bool) {
	raw, ok := t.Column(opts.Column)
	if !ok {
		return nil, false
	}
	vals, converted := EnsurePercent(raw)

	peak := 0.0
	if present := finite(vals); len(present) > 0 {
		peak = floats.Max(present)
	}
	ymax := math.Max(opts.MinCeiling, peak+opts.Pad)

	th := opts.Thresholds
	rz = &RootZoneSeries{
		Column:     opts.Column,
		Values:     Values(vals),
		Converted:  converted,
		YMin:       opts.YMin,
		YMax:       ymax,
		Thresholds: append([]float64(nil), th...),
	}
	if len(th) == 3 {
		edges := []float64{opts.YMin, th[0], th[1], th[2], ymax}
		for i := 0; i < 4; i++ {
			color := ""
			if i < len(opts.Colors) {
				color = opts.Colors[i]
			}
			rz.Regions = append(rz.Regions, Region{
				Label:   RegionLabels[i],
				Color:   color,
				Opacity: regionOpacity,
				From:    edges[i],
				To:      edges[i+1],
			})
		}
	}
	return rz, true
}
