package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/loader"
	"github.com/joeblew999/geoportal/internal/service"
	"github.com/joeblew999/geoportal/internal/vectortile"
)

const geoJSONType = "application/geo+json"

type OverlayInfo struct {
	Key     string `json:"key" doc:"Layer key used in tile and feature URLs" example:"center-pivot-2023"`
	Name    string `json:"name" doc:"Display name" example:"Center Pivot Fields"`
	Year    int    `json:"year,omitempty" doc:"Center-pivot year"`
	GeoJSON string `json:"geojson" doc:"Corrected GeoJSON URL"`
	Tiles   string `json:"tiles" doc:"Vector tile URL template"`
}

type CenterPivotInput struct {
	Year int  `path:"year" doc:"Center-pivot year" example:"2023"`
	Clip bool `query:"clip" doc:"Keep only fields inside the configured region of interest"`
}

type OverlayTileInput struct {
	Layer string `path:"layer" doc:"Layer key" example:"center-pivot-2023"`
	Z     int    `path:"z" minimum:"0" maximum:"22"`
	X     int    `path:"x" minimum:"0"`
	Y     int    `path:"y" minimum:"0"`
}

type FeatureInput struct {
	Layer string `path:"layer" doc:"Layer key" example:"date-palms"`
	ID    string `path:"id" doc:"Field id" example:"F100"`
}

type ArchiveInput struct {
	Layer   string `path:"layer" doc:"Layer key" example:"center-pivot-2023"`
	MinZoom int    `query:"minzoom" minimum:"0" maximum:"16" default:"4" doc:"Lowest zoom cut"`
	MaxZoom int    `query:"maxzoom" minimum:"0" maximum:"16" default:"12" doc:"Highest zoom cut"`
}

type ArchiveOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type GeoJSONOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type VectorTileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	CacheControl    string `header:"Cache-Control"`
	Body            []byte
}

// RegisterOverlays registers the polygon overlay routes.
func (h *APIHandler) RegisterOverlays(api huma.API) {
	huma.Get(api, "/api/v1/overlays", h.ListOverlays, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/center-pivot/{year}", h.GetCenterPivot, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/date-palms", h.GetDatePalms, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/{layer}/tiles/{z}/{x}/{y}", h.GetOverlayTile, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/overlays/{layer}/features/{id}", h.GetFeature, huma.OperationTags("overlays"))
	huma.Get(api, "/api/v1/archives/{layer}", h.GetArchive, huma.OperationTags("overlays"))
}

func (h *APIHandler) ListOverlays(ctx context.Context, input *struct{}) (*struct{ Body []OverlayInfo }, error) {
	cfg := h.svc.Config
	out := make([]OverlayInfo, 0, len(cfg.CenterPivotYears)+1)
	for _, y := range cfg.CenterPivotYears {
		key := service.CenterPivotLayerKey(y, false)
		out = append(out, OverlayInfo{
			Key:     key,
			Name:    cfg.CenterPivotLayer,
			Year:    y,
			GeoJSON: fmt.Sprintf("/api/v1/overlays/center-pivot/%d", y),
			Tiles:   "/api/v1/overlays/" + key + "/tiles/{z}/{x}/{y}",
		})
	}
	out = append(out, OverlayInfo{
		Key:     service.LayerDatePalms,
		Name:    cfg.DatePalmsLayer,
		GeoJSON: "/api/v1/overlays/date-palms",
		Tiles:   "/api/v1/overlays/" + service.LayerDatePalms + "/tiles/{z}/{x}/{y}",
	})
	return &struct{ Body []OverlayInfo }{Body: out}, nil
}

func (h *APIHandler) GetCenterPivot(ctx context.Context, input *CenterPivotInput) (*GeoJSONOutput, error) {
	ov, err := h.svc.Catalog.CenterPivot(ctx, input.Year, input.Clip)
	if err != nil {
		return nil, toHuma(err)
	}
	return geoJSON(ov.FeatureCollection())
}

func (h *APIHandler) GetDatePalms(ctx context.Context, input *struct{}) (*GeoJSONOutput, error) {
	ov, err := h.svc.Catalog.DatePalms(ctx)
	if err != nil {
		return nil, toHuma(err)
	}
	return geoJSON(ov.FeatureCollection())
}

func (h *APIHandler) GetOverlayTile(ctx context.Context, input *OverlayTileInput) (*VectorTileOutput, error) {
	ov, err := h.svc.Catalog.Layer(ctx, input.Layer)
	if err != nil {
		return nil, toHuma(err)
	}
	t := maptile.New(uint32(input.X), uint32(input.Y), maptile.Zoom(input.Z))
	data, err := vectortile.Tile(ov, input.Layer, t)
	if err != nil {
		return nil, toHuma(err)
	}
	if data == nil {
		return &VectorTileOutput{Status: http.StatusNoContent}, nil
	}
	return &VectorTileOutput{
		Status:          http.StatusOK,
		ContentType:     vectortile.ContentType,
		ContentEncoding: "gzip",
		CacheControl:    "public, max-age=300",
		Body:            data,
	}, nil
}

func (h *APIHandler) GetFeature(ctx context.Context, input *FeatureInput) (*GeoJSONOutput, error) {
	ov, err := h.svc.Catalog.Layer(ctx, input.Layer)
	if err != nil {
		return nil, toHuma(err)
	}
	f, ok := ov.Feature(input.ID)
	if !ok {
		return nil, toHuma(apperr.NotFound("no feature %q in %s", input.ID, input.Layer))
	}
	return geoJSON(feature(f))
}

// GetArchive bakes the overlay into a PMTiles file for offline or CDN use.
func (h *APIHandler) GetArchive(ctx context.Context, input *ArchiveInput) (*ArchiveOutput, error) {
	if input.MinZoom > input.MaxZoom {
		return nil, huma.Error422UnprocessableEntity("minzoom must not exceed maxzoom")
	}
	ov, err := h.svc.Catalog.Layer(ctx, input.Layer)
	if err != nil {
		return nil, toHuma(err)
	}
	a, err := vectortile.Export(ov, input.Layer, maptile.Zoom(input.MinZoom), maptile.Zoom(input.MaxZoom))
	if err != nil {
		return nil, toHuma(err)
	}
	if a.Len() == 0 {
		return nil, huma.Error404NotFound("overlay has no features in the zoom range")
	}
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &ArchiveOutput{
		ContentType:        "application/vnd.pmtiles",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", input.Layer+".pmtiles"),
		Body:               buf.Bytes(),
	}, nil
}

func feature(f loader.PolygonFeature) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = f.ID
	gf.Properties = loader.DisplayProperties(f.Properties)
	gf.BBox = geojson.NewBBox(f.Bound())
	return gf
}

func geoJSON(v any) (*GeoJSONOutput, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding GeoJSON", err)
	}
	return &GeoJSONOutput{ContentType: geoJSONType, CacheControl: "public, max-age=60", Body: data}, nil
}
