package timeseries

import (
	"math"
	"regexp"

	"gonum.org/v1/gonum/floats"
)

// depthLabels maps sensor depth-band columns to the depth they measure.
var depthLabels = map[string]string{
	"A1": "0–10 cm",
	"A2": "10–20 cm",
	"A3": "20–30 cm",
	"A4": "30–40 cm",
	"A5": "40–50 cm",
	"A6": "50–60 cm",
	"A7": "60–70 cm",
	"A8": "70–80 cm",
	"A9": "80–90 cm",
}

// bandColumn matches depth-band names such as "A3" or "A3(25)".
var bandColumn = regexp.MustCompile(`^(A[1-9])(\(.*\))?$`)

// IsDepthBand reports whether col follows the depth-band naming: "A"
// followed by a digit 1-9.
func IsDepthBand(col string) bool {
	return len(col) >= 2 && col[0] == 'A' && col[1] >= '1' && col[1] <= '9'
}

// DepthLabel returns the human-readable depth of a band column, or col
// itself when it is not a known band.
func DepthLabel(col string) string {
	if m := bandColumn.FindStringSubmatch(col); m != nil {
		if label, ok := depthLabels[m[1]]; ok {
			return label
		}
	}
	return col
}

var palettes = map[string][]string{
	"okabe_ito":   {"#E69F00", "#56B4E9", "#009E73", "#F0E442", "#0072B2", "#D55E00", "#CC79A7", "#999999"},
	"tol_bright":  {"#4477AA", "#66CCEE", "#228833", "#CCBB44", "#EE6677", "#AA3377", "#BBBBBB", "#000000", "#332288"},
	"kaarten_ova": {"#0077BB", "#33BBEE", "#009988", "#EE7733", "#CC3311", "#EE3377", "#228833", "#AA4499", "#807A7A"},
}

// Palette returns n colors. Explicit colors win over the named palette;
// unknown names fall back to kaarten_ova. Colors repeat cyclically.
func Palette(name string, colors []string, n int) []string {
	pal := colors
	if len(pal) == 0 {
		pal = palettes[name]
	}
	if len(pal) == 0 {
		pal = palettes["kaarten_ova"]
	}
	out := make([]string, n)
	for i := range out {
		out[i] = pal[i%len(pal)]
	}
	return out
}

// BandOptions shapes the stacked depth-band panel.
type BandOptions struct {
	MaxLayers int
	Gap       float64
	// Reverse puts the shallowest band on top.
	Reverse bool
	Palette string
	Colors  []string
}

// Band is one depth channel normalized to [0,1] and lifted by Offset.
type Band struct {
	Column string  `json:"column"`
	Label  string  `json:"label"`
	Color  string  `json:"color"`
	Offset float64 `json:"offset"`
	Raw    Values  `json:"raw"`
	Values Values  `json:"values"`
}

// DepthBands selects the depth-band columns of t (every numeric column
// when none follows the naming), caps them at MaxLayers and stacks them at
// offsets i*(1+Gap).
func DepthBands(t *Table, opts BandOptions) []Band {
	var cols []string
	for _, c := range t.Columns {
		if IsDepthBand(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		cols = append(cols, t.Columns...)
	}
	if opts.MaxLayers > 0 && len(cols) > opts.MaxLayers {
		cols = cols[:opts.MaxLayers]
	}
	if opts.Reverse {
		for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
			cols[i], cols[j] = cols[j], cols[i]
		}
	}

	colors := Palette(opts.Palette, opts.Colors, len(cols))
	bands := make([]Band, len(cols))
	for i, c := range cols {
		raw := t.Values[c]
		offset := float64(i) * (1 + opts.Gap)
		norm := NormalizeBand(raw)
		floats.AddConst(offset, norm)
		bands[i] = Band{
			Column: c,
			Label:  DepthLabel(c),
			Color:  colors[i],
			Offset: offset,
			Raw:    Values(raw),
			Values: Values(norm),
		}
	}
	return bands
}

// NormalizeBand min-max scales vals to [0,1], ignoring NaN. A band with
// no spread, or no values at all, becomes a flat line at 0.5. NaN cells of
// a band with spread stay NaN.
func NormalizeBand(vals []float64) []float64 {
	out := make([]float64, len(vals))
	present := finite(vals)
	if len(present) == 0 {
		fill(out, 0.5)
		return out
	}
	lo, hi := floats.Min(present), floats.Max(present)
	rng := hi - lo
	if !(rng > 0) {
		fill(out, 0.5)
		return out
	}
	copy(out, vals)
	floats.AddConst(-lo, out)
	floats.Scale(1/rng, out)
	return out
}

func finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func fill(dst []float64, v float64) {
	for i := range dst {
		dst[i] = v
	}
}
