package vectortile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/geoportal/internal/apperr"
	"github.com/joeblew999/geoportal/internal/loader"
)

const fields = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"Field_id":"F1","style":{"color":"red"}},"geometry":{"type":"Polygon","coordinates":[[[41,25],[41.1,25],[41.1,25.1],[41,25.1],[41,25]]]}},
{"type":"Feature","properties":{"Field_id":"F2"},"geometry":{"type":"Polygon","coordinates":[[[44,27],[44.1,27],[44.1,27.1],[44,27.1],[44,27]]]}}
]}`

func loadOverlay(t *testing.T) *loader.PolygonOverlay {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fields.geojson")
	if err := os.WriteFile(path, []byte(fields), 0644); err != nil {
		t.Fatal(err)
	}
	ov, _, err := loader.LoadPolygonFeatures(context.Background(), loader.Source{Path: path}, loader.PolygonOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return ov
}

func TestTile(t *testing.T) {
	ov := loadOverlay(t)
	tile := maptile.At(orb.Point{41.05, 25.05}, 10)

	data, err := Tile(ov, "fields", tile)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Fatal("tile is not gzipped")
	}
	layers, err := mvt.UnmarshalGzipped(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(layers) != 1 || layers[0].Name != "fields" || len(layers[0].Features) != 1 {
		t.Fatalf("layers = %+v", layers)
	}
	props := layers[0].Features[0].Properties
	if props["Field_id"] != "F1" {
		t.Fatalf("properties = %v", props)
	}
	if _, ok := props["style"]; ok {
		t.Fatal("styling key leaked into the tile")
	}

	// the overlay is shared and must not be projected by encoding
	if ov.Features[0].Geometry.Bound().Min[0] != 41 {
		t.Fatalf("source geometry mutated: %v", ov.Features[0].Geometry.Bound())
	}
}

func TestTileEmptyAndOutOfRange(t *testing.T) {
	ov := loadOverlay(t)

	data, err := Tile(ov, "fields", maptile.At(orb.Point{-100, 40}, 10))
	if err != nil || data != nil {
		t.Fatalf("empty tile = %d bytes, %v", len(data), err)
	}
	if _, err := Tile(ov, "fields", maptile.New(0, 0, MaxZoom+1)); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deep zoom err = %v", err)
	}
}

func TestTileRange(t *testing.T) {
	ov := loadOverlay(t)
	tiles := TileRange(ov, 4)
	if len(tiles) == 0 {
		t.Fatal("no tiles")
	}
	for _, tile := range tiles {
		if tile.Z != 4 {
			t.Fatalf("tile %v at wrong zoom", tile)
		}
	}
	if TileRange(nil, 4) != nil {
		t.Fatal("nil overlay has tiles")
	}
}
