package timeseries

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/config"
)

// Panel ids.
const (
	PanelRootZone = "root_zone"
	PanelBands    = "bands"
	PanelNDVI     = "ndvi"
)

const rootZoneColor = "#4477AA"

// Values is a float series that encodes NaN as JSON null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
			continue
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

// Series is one line of a panel.
type Series struct {
	Name  string      `json:"name"`
	Color string      `json:"color"`
	X     []time.Time `json:"x"`
	Y     Values      `json:"y"`
	// Raw holds the unnormalized values shown on hover.
	Raw Values `json:"raw,omitempty"`
}

// Points counts the entries with a value.
func (s Series) Points() int {
	n := 0
	for _, v := range s.Y {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Tick is a labelled axis position.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Panel is one subplot sharing the chart's time axis.
type Panel struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	Height     int       `json:"height"`
	YLabel     string    `json:"yLabel"`
	YMin       float64   `json:"yMin"`
	YMax       float64   `json:"yMax"`
	Regions    []Region  `json:"regions,omitempty"`
	Thresholds []float64 `json:"thresholds,omitempty"`
	Ticks      []Tick    `json:"ticks,omitempty"`
	Series     []Series  `json:"series"`
}

// Chart is a renderer-neutral chart descriptor.
type Chart struct {
	Title     string  `json:"title"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	LineWidth float64 `json:"lineWidth"`
	XLabel    string  `json:"xLabel"`
	Panels    []Panel `json:"panels"`
}

// Panel returns the panel with the given id.
func (c *Chart) Panel(id string) (Panel, bool) {
	for _, p := range c.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return Panel{}, false
}

// Points returns the row count of the chart's time axis.
func (c *Chart) Points() int {
	n := 0
	for _, p := range c.Panels {
		for _, s := range p.Series {
			if len(s.X) > n {
				n = len(s.X)
			}
		}
	}
	return n
}

// SoilMoistureChart builds the sensor chart: the root-zone panel (when the
// column exists) over the stacked depth bands.
func SoilMoistureChart(t *Table, title string, cfg config.TimeSeries) (*Chart, error) {
	if t.Len() == 0 {
		return nil, apperr.InvalidFormat("No data to plot in %s", t.Path)
	}
	c := &Chart{Title: title, Width: cfg.Width, LineWidth: cfg.LineWidth, XLabel: "Time"}

	if rz, ok := RootZone(t, RootZoneOptions{
		Column:     cfg.RootZoneCol,
		Thresholds: cfg.Thresholds,
		Colors:     cfg.RegionColors,
		YMin:       cfg.YMin,
		MinCeiling: cfg.MinCeiling,
		Pad:        cfg.YPad,
	}); ok {
		c.Panels = append(c.Panels, Panel{
			ID:         PanelRootZone,
			Height:     400,
			YLabel:     "Soil moisture (root zone, %)",
			YMin:       rz.YMin,
			YMax:       rz.YMax,
			Regions:    rz.Regions,
			Thresholds: rz.Thresholds,
			Series: []Series{{
				Name:  "Soil Moisture (Root Zone)",
				Color: rootZoneColor,
				X:     t.Times,
				Y:     rz.Values,
			}},
		})
	}

	bands := DepthBands(t, BandOptions{
		MaxLayers: cfg.MaxLayers,
		Gap:       cfg.GapFrac,
		Reverse:   cfg.ReverseDepth,
		Palette:   cfg.Palette,
		Colors:    cfg.Colors,
	})
	if len(bands) > 0 {
		p := Panel{
			ID:     PanelBands,
			Height: max(300, len(bands)*cfg.BandHeightPx+150),
			YLabel: "Soil moisture (per depth layer, %)",
			YMin:   -0.2,
			YMax:   float64(len(bands)-1)*(1+cfg.GapFrac) + 1.2,
		}
		for i, b := range bands {
			if len(cfg.ZebraFills) > 0 {
				p.Regions = append(p.Regions, Region{
					Color: cfg.ZebraFills[i%len(cfg.ZebraFills)],
					From:  b.Offset,
					To:    b.Offset + 1,
				})
			}
			p.Ticks = append(p.Ticks, Tick{Value: b.Offset + 0.5, Label: b.Label})
			p.Series = append(p.Series, Series{Name: b.Label, Color: b.Color, X: t.Times, Y: b.Values, Raw: b.Raw})
		}
		c.Panels = append(c.Panels, p)
	}

	if len(c.Panels) == 0 {
		return nil, apperr.InvalidFormat("No numeric columns available for plotting in %s", t.Path)
	}
	height := len(bands)*cfg.BandHeightPx + 200
	if height < 720 {
		height = 720
	}
	c.Height = height
	return c, nil
}

// NDVIChart builds the single-panel NDVI chart of a field. t holds the
// NDVI values in its first column.
func NDVIChart(t *Table, fieldID string, width int) (*Chart, error) {
	if len(t.Columns) == 0 || t.Len() == 0 {
		return nil, apperr.InvalidFormat("NDVI CSV for Field_id=%s has no data", fieldID)
	}
	col := t.Columns[0]
	vals := t.Values[col]
	lo, hi := 0.0, 1.0
	if present := finite(vals); len(present) > 0 {
		for _, v := range present {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	return &Chart{
		Title:     fmt.Sprintf("NDVI time series — Field %s", fieldID),
		Width:     width,
		Height:    340,
		LineWidth: 2,
		XLabel:    "Date",
		Panels: []Panel{{
			ID:     PanelNDVI,
			Height: 340,
			YLabel: "NDVI (median)",
			YMin:   lo,
			YMax:   hi,
			Series: []Series{{Name: "NDVI median", Color: "#009E73", X: t.Times, Y: Values(vals)}},
		}},
	}, nil
}
