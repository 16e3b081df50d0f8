package api

import (
	"bytes"
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/layers"
	"github.com/joeblew999/geoportal/internal/loader"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/timeseries"
)

type SensorSeriesInput struct {
	ID       string   `path:"id" doc:"Sensor id" example:"S1"`
	Variable []string `query:"variable" doc:"Columns to return; empty returns all"`
	Start    string   `query:"start" doc:"Inclusive lower time bound" example:"2023-05-01"`
	End      string   `query:"end" doc:"Inclusive upper time bound" example:"2023-06-01T12:00:00"`
}

type FieldSeriesInput struct {
	ID string `path:"id" doc:"Field id" example:"F100"`
}

type ChartInput struct {
	Panel string `query:"panel" doc:"Panel id; empty renders the first" example:"root_zone"`
}

type SensorChartInput struct {
	SensorSeriesInput
	ChartInput
}

type FieldChartInput struct {
	FieldSeriesInput
	ChartInput
}

type SeriesBody struct {
	Source     string                       `json:"source" doc:"Where the series was read from"`
	TimeColumn string                       `json:"timeColumn,omitempty" doc:"Timestamp column of the CSV"`
	Times      []time.Time                  `json:"times" doc:"Row timestamps, ascending"`
	Columns    map[string]timeseries.Values `json:"columns" doc:"Numeric columns; missing values are null"`
	Chart      *timeseries.Chart            `json:"chart,omitempty" doc:"Chart descriptor"`
	ChartError string                       `json:"chartError,omitempty" doc:"Why no chart could be built from the selection"`
}

type PNGOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type PopupRequest struct {
	Body struct {
		Kind       popup.Kind         `json:"kind" enum:"sensor,field" doc:"Clicked feature type"`
		Properties geojson.Properties `json:"properties" doc:"Feature properties as read from GeoJSON"`
		WithSeries bool               `json:"withSeries,omitempty" doc:"Also build the time series"`
	}
}

type ReconcileRequest struct {
	Body struct {
		Desired  []layers.Overlay `json:"desired" doc:"Overlays the view should show, any order"`
		Attached []layers.Overlay `json:"attached" doc:"Attached stack, bottom to top"`
	}
}

type ReconcileBody struct {
	Plan     layers.Plan      `json:"plan" doc:"Edits to apply, in field order"`
	Attached []layers.Overlay `json:"attached" doc:"Stack after applying the plan"`
}

// RegisterSeries registers popup and time-series routes.
func (h *APIHandler) RegisterSeries(api huma.API) {
	huma.Post(api, "/api/v1/popup", h.BuildPopup, huma.OperationTags("series"))
	huma.Get(api, "/api/v1/series/sensors/{id}", h.GetSensorSeries, huma.OperationTags("series"))
	huma.Get(api, "/api/v1/series/sensors/{id}/chart.png", h.GetSensorChart, huma.OperationTags("series"))
	huma.Get(api, "/api/v1/series/fields/{id}", h.GetFieldSeries, huma.OperationTags("series"))
	huma.Get(api, "/api/v1/series/fields/{id}/chart.png", h.GetFieldChart, huma.OperationTags("series"))
}

// RegisterReconcile registers the layer planning route.
func (h *APIHandler) RegisterReconcile(api huma.API) {
	huma.Post(api, "/api/v1/reconcile", h.Reconcile, huma.OperationTags("layers"))
}

func (h *APIHandler) BuildPopup(ctx context.Context, input *PopupRequest) (*struct{ Body popup.Content }, error) {
	props := input.Body.Properties
	if props == nil {
		props = geojson.Properties{}
	}
	if p := props.MustString("csv_path", ""); p != "" {
		if _, err := h.svc.Sources.Resolve(p); err != nil {
			return nil, toHuma(err)
		}
	}
	c := h.svc.Popups.Build(ctx, input.Body.Kind, props, input.Body.WithSeries)
	return &struct{ Body popup.Content }{Body: c}, nil
}

func (h *APIHandler) GetSensorSeries(ctx context.Context, input *SensorSeriesInput) (*struct{ Body SeriesBody }, error) {
	t, err := h.sensorTable(input)
	if err != nil {
		return nil, toHuma(err)
	}
	body := SeriesBody{Source: t.Path, TimeColumn: t.TimeColumn, Times: t.Times, Columns: columns(t)}
	if body.Times == nil {
		body.Times = []time.Time{}
	}
	if c, err := h.svc.Popups.SensorChart(t, input.ID); err != nil {
		body.ChartError = err.Error()
	} else {
		body.Chart = c
	}
	return &struct{ Body SeriesBody }{Body: body}, nil
}

func (h *APIHandler) GetSensorChart(ctx context.Context, input *SensorChartInput) (*PNGOutput, error) {
	t, err := h.sensorTable(&input.SensorSeriesInput)
	if err != nil {
		return nil, toHuma(err)
	}
	c, err := h.svc.Popups.SensorChart(t, input.ID)
	if err != nil {
		return nil, toHuma(err)
	}
	return renderPNG(c, input.Panel)
}

func (h *APIHandler) GetFieldSeries(ctx context.Context, input *FieldSeriesInput) (*struct{ Body SeriesBody }, error) {
	c, src, err := h.svc.Popups.FieldChart(ctx, input.ID)
	if err != nil {
		return nil, toHuma(err)
	}
	body := SeriesBody{Source: src, Times: []time.Time{}, Columns: map[string]timeseries.Values{}, Chart: c}
	if len(c.Panels) > 0 {
		for _, s := range c.Panels[0].Series {
			body.Times = s.X
			body.Columns[s.Name] = s.Y
		}
	}
	return &struct{ Body SeriesBody }{Body: body}, nil
}

func (h *APIHandler) GetFieldChart(ctx context.Context, input *FieldChartInput) (*PNGOutput, error) {
	c, _, err := h.svc.Popups.FieldChart(ctx, input.ID)
	if err != nil {
		return nil, toHuma(err)
	}
	return renderPNG(c, input.Panel)
}

func (h *APIHandler) Reconcile(ctx context.Context, input *ReconcileRequest) (*struct{ Body ReconcileBody }, error) {
	plan := layers.Reconcile(input.Body.Desired, input.Body.Attached)
	attached := plan.Apply(input.Body.Attached)
	if attached == nil {
		attached = []layers.Overlay{}
	}
	return &struct{ Body ReconcileBody }{Body: ReconcileBody{Plan: plan, Attached: attached}}, nil
}

// sensorTable finds the sensor in the configured GeoJSON, reads its CSV
// and applies the column and time filters.
func (h *APIHandler) sensorTable(input *SensorSeriesInput) (*timeseries.Table, error) {
	start, err := parseBound("start", input.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseBound("end", input.End)
	if err != nil {
		return nil, err
	}

	path := h.svc.Config.SensorGeoJSON
	group, _, err := loader.LoadPointFeatures(path)
	if err != nil {
		return nil, err
	}
	m, ok := group.Find(input.ID)
	if !ok {
		return nil, apperr.NotFound("sensor %q not in %s", input.ID, path)
	}
	t, err := h.svc.Popups.SensorTable(m.Properties)
	if err != nil {
		return nil, err
	}
	return t.Filter(input.Variable, start, end)
}

func parseBound(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, ok := timeseries.ParseTime(s)
	if !ok {
		return time.Time{}, apperr.InvalidFormat("%s: unrecognised time %q", name, s)
	}
	return ts, nil
}

func columns(t *timeseries.Table) map[string]timeseries.Values {
	out := make(map[string]timeseries.Values, len(t.Columns))
	for _, c := range t.Columns {
		out[c] = t.Values[c]
	}
	return out
}

func renderPNG(c *timeseries.Chart, panel string) (*PNGOutput, error) {
	if panel == "" && len(c.Panels) > 0 {
		panel = c.Panels[0].ID
	}
	var buf bytes.Buffer
	if err := timeseries.RenderPNG(c, panel, &buf); err != nil {
		return nil, toHuma(err)
	}
	return &PNGOutput{ContentType: "image/png", CacheControl: "no-cache", Body: buf.Bytes()}, nil
}
