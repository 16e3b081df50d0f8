// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/humastar"
	"github.com/joeblew999/geoportal/internal/loader"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/pyramid"
	"github.com/joeblew999/geoportal/internal/service"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Config   *config.Config
	Catalog  *service.OverlayCatalog
	Popups   *popup.Builder
	Sessions *service.SessionStore
	Sources  *service.SourceService
	Tiles    *service.TileService
}

// Types

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type TextOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type PageInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Page size; 0 returns everything"`
}

type MarkersInput struct {
	Path string `query:"path" doc:"Sensor GeoJSON path relative to the data directory; empty uses the configured file" example:"sensors/sensors.geojson"`
}

type MarkersBody struct {
	Group  *loader.MarkerGroup `json:"group" doc:"Sensors of the file, in file order"`
	Bounds *geo.Bounds         `json:"bounds,omitempty" doc:"Padded [[south,west],[north,east]] around the sensors"`
}

type PyramidInput struct {
	Root string `query:"root" doc:"Pyramid root relative to the data directory; empty uses the default tiles folder" example:"rasters/tiles_2023"`
}

// APIHandler holds the REST handlers. Methods named Register* are
// discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Register(api, huma.Operation{
		OperationID: "ping",
		Method:      http.MethodGet,
		Path:        "/api/ping",
		Summary:     "Liveness probe",
		Tags:        []string{"health"},
	}, h.Ping)
}

// RegisterSources registers data file listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterTiles registers raster pyramid routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/pyramid", h.GetPyramid, huma.OperationTags("tiles"))
}

// RegisterMarkers registers sensor marker routes.
func (h *APIHandler) RegisterMarkers(api huma.API) {
	huma.Get(api, "/api/v1/markers", h.GetMarkers, huma.OperationTags("markers"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) Ping(ctx context.Context, input *struct{}) (*TextOutput, error) {
	return &TextOutput{ContentType: "text/plain; charset=utf-8", Body: []byte("pong")}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *PageInput) (*struct {
	Body humastar.PageBody[service.SourceFile]
}, error) {
	sources, err := h.svc.Sources.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("listing sources", err)
	}
	return &struct {
		Body humastar.PageBody[service.SourceFile]
	}{Body: humastar.Page(sources, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.Pyramid }, error) {
	return &struct{ Body []service.Pyramid }{Body: h.svc.Tiles.List()}, nil
}

func (h *APIHandler) GetPyramid(ctx context.Context, input *PyramidInput) (*struct{ Body pyramid.Descriptor }, error) {
	root, err := h.svc.Sources.Resolve(input.Root)
	if err != nil {
		return nil, toHuma(err)
	}
	if root == "" {
		root = h.svc.Config.TilesDir
	}
	return &struct{ Body pyramid.Descriptor }{Body: pyramid.Scan(root)}, nil
}

func (h *APIHandler) GetMarkers(ctx context.Context, input *MarkersInput) (*struct{ Body MarkersBody }, error) {
	path, err := h.svc.Sources.Resolve(input.Path)
	if err != nil {
		return nil, toHuma(err)
	}
	if path == "" {
		path = h.svc.Config.SensorGeoJSON
	}
	group, bounds, err := loader.LoadPointFeatures(path)
	if err != nil {
		return nil, toHuma(err)
	}
	if group == nil {
		return nil, toHuma(apperr.NotFound("no sensor points in %s", path))
	}
	return &struct{ Body MarkersBody }{Body: MarkersBody{Group: group, Bounds: bounds}}, nil
}
