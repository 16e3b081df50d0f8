package timeseries

import (
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/joeblew999/geoportal/internal/apperr"
)

const thresholdColor = "#555555"

// RenderPNG draws one panel of c as a PNG.
func RenderPNG(c *Chart, panelID string, w io.Writer) error {
	p, ok := c.Panel(panelID)
	if !ok {
		return apperr.NotFound("chart has no %q panel", panelID)
	}
	x0, x1, ok := timeSpan(p)
	if !ok {
		return apperr.InvalidFormat("not enough points to render the %s panel", panelID)
	}

	var series []chart.Series
	// Background regions are filled down to the axis, so paint them
	// top-down and let each lower region cover the one above it.
	for i := len(p.Regions) - 1; i >= 0; i-- {
		r := p.Regions[i]
		alpha := r.Opacity
		if alpha <= 0 {
			alpha = 1
		}
		fill := solid(r.Color, alpha)
		// go-chart only fills under a stroked line
		series = append(series, constant(x0, x1, r.To, chart.Style{
			StrokeWidth: 1,
			StrokeColor: fill,
			FillColor:   fill,
		}))
	}
	for _, th := range p.Thresholds {
		series = append(series, constant(x0, x1, th, chart.Style{
			StrokeColor:     drawing.ParseColor(thresholdColor),
			StrokeWidth:     1,
			StrokeDashArray: []float64{4, 4},
		}))
	}

	width := c.LineWidth
	if width <= 0 {
		width = 2
	}
	for _, s := range p.Series {
		xs, ys := present(s.X, s.Y)
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: drawing.ParseColor(s.Color),
				StrokeWidth: width,
			},
		})
	}

	var ticks []chart.Tick
	for _, t := range p.Ticks {
		ticks = append(ticks, chart.Tick{Value: t.Value, Label: t.Label})
	}
	height := p.Height
	if height <= 0 {
		height = 400
	}
	title := p.Title
	if title == "" {
		title = c.Title
	}

	graph := chart.Chart{
		Title:  title,
		Width:  c.Width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:           c.XLabel,
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name:  p.YLabel,
			Range: &chart.ContinuousRange{Min: p.YMin, Max: p.YMax},
			Ticks: ticks,
		},
		Series: series,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return apperr.Wrap(apperr.KindInvalidFormat, err, "rendering %s panel", panelID)
	}
	return nil
}

func timeSpan(p Panel) (first, last time.Time, ok bool) {
	for _, s := range p.Series {
		xs, _ := present(s.X, s.Y)
		if len(xs) < 2 {
			continue
		}
		if !ok || xs[0].Before(first) {
			first = xs[0]
		}
		if !ok || xs[len(xs)-1].After(last) {
			last = xs[len(xs)-1]
		}
		ok = true
	}
	return first, last, ok
}

func present(x []time.Time, y []float64) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if i < len(y) && !math.IsNaN(y[i]) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	return xs, ys
}

func constant(x0, x1 time.Time, y float64, style chart.Style) chart.TimeSeries {
	return chart.TimeSeries{
		XValues: []time.Time{x0, x1},
		YValues: []float64{y, y},
		Style:   style,
	}
}

// solid flattens a CSS color with extra opacity onto white so overlapping
// fills do not blend.
func solid(css string, alpha float64) drawing.Color {
	c := drawing.ParseColor(css)
	a := float64(c.A) / 255 * alpha
	mix := func(v uint8) uint8 {
		return uint8(math.Round(float64(v)*a + 255*(1-a)))
	}
	return drawing.Color{R: mix(c.R), G: mix(c.G), B: mix(c.B), A: 255}
}
