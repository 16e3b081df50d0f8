package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geoportal/internal/config"
)

type InfoHandler struct {
	cfg   *config.Config
	dbOK  bool
	views []string
}

func NewInfoHandler(cfg *config.Config, dbOK bool, views []string) *InfoHandler {
	return &InfoHandler{cfg: cfg, dbOK: dbOK, views: views}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name             string              `json:"name" doc:"Service name"`
	Version          string              `json:"version" doc:"Service version"`
	DataDir          string              `json:"data_dir" doc:"Data directory path"`
	DB               bool                `json:"db" doc:"Whether database is available"`
	Views            []string            `json:"views" doc:"DuckDB views over the CSV folders"`
	Features         []string            `json:"features" doc:"Available features"`
	CenterPivotYears []int               `json:"center_pivot_years" doc:"Years with center-pivot field overlays"`
	BaseLayers       []config.BaseLayer  `json:"base_layers" doc:"Background tile layers, first is the default"`
	RasterLegend     []config.LegendItem `json:"raster_legend" doc:"Classification legend"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	views := h.views
	if views == nil {
		views = []string{}
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:             "geoportal",
		Version:          Version,
		DataDir:          h.cfg.DataDir,
		DB:               h.dbOK,
		Views:            views,
		Features:         []string{"sensors", "raster-tiles", "center-pivot", "date-palms", "mvt", "ndvi", "duckdb"},
		CenterPivotYears: h.cfg.CenterPivotYears,
		BaseLayers:       h.cfg.BaseLayers,
		RasterLegend:     h.cfg.RasterLegend,
	}}, nil
}
