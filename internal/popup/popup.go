// Package popup builds the content shown when a sensor marker or a field
// polygon is clicked: the attribute table and, on request, its time series.
package popup

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/loader"
	"github.com/joeblew999/geoportal/internal/timeseries"
)

// Kind is the type of feature a popup belongs to.
type Kind string

const (
	Sensor Kind = "sensor"
	Field  Kind = "field"
)

// ndviWidth is the NDVI chart width in pixels.
const ndviWidth = 1200

// Row is one attribute of the clicked feature.
type Row struct {
	Key   string `json:"key" doc:"Attribute name"`
	Value string `json:"value" doc:"Attribute value as text"`
	Link  bool   `json:"link,omitempty" doc:"Value is an http(s) URL"`
}

// Content is everything a popup displays. When a series was requested
// but could not be built, Chart is nil and Error holds the message.
type Content struct {
	Kind           Kind              `json:"kind" doc:"sensor or field" enum:"sensor,field"`
	ID             string            `json:"id" doc:"Sensor id or Field_id" example:"S1"`
	Title          string            `json:"title" doc:"Popup heading"`
	Rows           []Row             `json:"rows" doc:"Attributes without styling keys, sorted by name"`
	InstalledSince string            `json:"installedSince,omitempty" doc:"Sensor installation date when known"`
	Chart          *timeseries.Chart `json:"chart,omitempty" doc:"Time-series chart descriptor"`
	Source         string            `json:"source,omitempty" doc:"Where the series was read from"`
	Error          string            `json:"error,omitempty" doc:"Inline error shown instead of the chart"`
}

// Builder resolves and shapes the series behind a feature.
type Builder struct {
	dataDir     string
	sensorDir   string
	timeColumns []string
	chart       config.TimeSeries
	ndvi        *timeseries.NDVISource
}

// NewBuilder returns a Builder reading sensor CSVs from cfg and NDVI
// through ndvi.
func NewBuilder(cfg *config.Config, ndvi *timeseries.NDVISource) *Builder {
	return &Builder{
		dataDir:     cfg.DataDir,
		sensorDir:   cfg.SensorCSVDir,
		timeColumns: cfg.TimeColumns,
		chart:       cfg.TimeSeries,
		ndvi:        ndvi,
	}
}

// Build returns the popup of a feature with the given properties. The
// series is only resolved when withSeries is set. Build never fails: any
// series error ends up in Content.Error.
func (b *Builder) Build(ctx context.Context, kind Kind, props geojson.Properties, withSeries bool) Content {
	shown := loader.DisplayProperties(props)
	c := Content{Kind: kind, Rows: Rows(shown)}

	switch kind {
	case Sensor:
		c.ID = firstText(shown, "sensor_id", "id", "name")
		c.Title = "Sensor " + c.ID
		c.InstalledSince = firstText(shown, "installed_since", "installed", "install_date")
	case Field:
		c.ID = loader.FieldID(shown)
		c.Title = "Field " + c.ID
	default:
		c.ID = firstText(shown, "id", "name")
		c.Title = firstText(shown, "name", "id")
	}
	c.Title = strings.TrimSpace(c.Title)

	if !withSeries {
		return c
	}
	var err error
	switch kind {
	case Sensor:
		c.Chart, c.Source, err = b.sensorSeries(shown)
	case Field:
		c.Chart, c.Source, err = b.fieldSeries(ctx, shown)
	default:
		err = fmt.Errorf("no time series for %q features", kind)
	}
	if err != nil {
		c.Chart = nil
		c.Error = "Failed to load time series: " + err.Error()
	}
	return c
}

// SensorTable reads the CSV of the sensor with the given properties. An
// explicit csv_path must lie under the data directory.
func (b *Builder) SensorTable(props geojson.Properties) (*timeseries.Table, error) {
	path, err := timeseries.ResolveSeriesPath(props, b.sensorDir, b.dataDir)
	if err != nil {
		return nil, err
	}
	return timeseries.ReadTimeSeries(path, b.timeColumns)
}

// SensorChart shapes t into the soil-moisture chart of a sensor.
func (b *Builder) SensorChart(t *timeseries.Table, sensorID string) (*timeseries.Chart, error) {
	return timeseries.SoilMoistureChart(t, "Soil moisture — Sensor "+sensorID, b.chart)
}

// FieldChart loads the NDVI series of fieldID.
func (b *Builder) FieldChart(ctx context.Context, fieldID string) (*timeseries.Chart, string, error) {
	if b.ndvi == nil {
		return nil, "", fmt.Errorf("no NDVI source configured for Field_id=%s", fieldID)
	}
	t, src, err := b.ndvi.Load(ctx, fieldID)
	if err != nil {
		return nil, "", err
	}
	c, err := timeseries.NDVIChart(t, fieldID, ndviWidth)
	return c, src, err
}

func (b *Builder) sensorSeries(props geojson.Properties) (*timeseries.Chart, string, error) {
	t, err := b.SensorTable(props)
	if err != nil {
		return nil, "", err
	}
	c, err := b.SensorChart(t, firstText(props, "sensor_id", "id", "name"))
	return c, t.Path, err
}

func (b *Builder) fieldSeries(ctx context.Context, props geojson.Properties) (*timeseries.Chart, string, error) {
	id := loader.FieldID(props)
	if id == "" {
		return nil, "", fmt.Errorf("no Field_id in properties")
	}
	return b.FieldChart(ctx, id)
}

// Rows lists props as text rows sorted by key.
func Rows(props geojson.Properties) []Row {
	rows := make([]Row, 0, len(props))
	for _, k := range loader.SortedKeys(props) {
		v := formatValue(props[k])
		rows = append(rows, Row{Key: k, Value: v, Link: isLink(v)})
	}
	return rows
}

func isLink(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func firstText(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(formatValue(props[k])); s != "" {
			return s
		}
	}
	return ""
}
