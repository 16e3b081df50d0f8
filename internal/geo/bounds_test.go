package geo

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
)

func TestPaddedBoundsEmpty(t *testing.T) {
	if b := PaddedBounds(nil, DefaultMinSpan, DefaultPad); b != nil {
		t.Fatalf("PaddedBounds(nil) = %v, want nil", b)
	}
}

func TestPaddedBoundsContainsPoints(t *testing.T) {
	tests := []struct {
		name   string
		points []orb.Point
	}{
		{"single point", []orb.Point{{46, 24}}},
		{"two sensors", []orb.Point{{46, 24}, {47, 25}}},
		{"tight cluster", []orb.Point{{46.001, 24.001}, {46.002, 24.0015}, {46.0011, 24.0019}}},
		{"negative coords", []orb.Point{{-122.4, 37.7}, {-122.3, 37.9}}},
		{"wide", []orb.Point{{-10, -40}, {120, 60}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := PaddedBounds(tt.points, DefaultMinSpan, DefaultPad)
			if b == nil {
				t.Fatal("got nil bounds")
			}
			if b.North-b.South < DefaultMinSpan || b.East-b.West < DefaultMinSpan {
				t.Fatalf("span too small: %v", b)
			}
			for _, p := range tt.points {
				lon, lat := p[0], p[1]
				if !(b.South < lat && lat < b.North) {
					t.Fatalf("lat %v not strictly inside %v", lat, b)
				}
				if !(b.West < lon && lon < b.East) {
					t.Fatalf("lon %v not strictly inside %v", lon, b)
				}
			}
		})
	}
}

func TestPaddedBoundsFormula(t *testing.T) {
	b := PaddedBounds([]orb.Point{{46, 24}, {47, 25}}, DefaultMinSpan, DefaultPad)
	want := Bounds{South: 23.75, West: 45.75, North: 25.25, East: 47.25}
	if *b != want {
		t.Fatalf("PaddedBounds = %v, want %v", *b, want)
	}

	// a single point expands to minSpan before padding
	b = PaddedBounds([]orb.Point{{10, 20}}, 0.05, 0.25)
	if got := b.North - b.South; math.Abs(got-0.075) > 1e-12 {
		t.Fatalf("lat span = %v, want 0.075", got)
	}
}

func TestBoundsJSON(t *testing.T) {
	b := Bounds{South: 1, West: 2, North: 3, East: 4}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[[1,2],[3,4]]" {
		t.Fatalf("json = %s", data)
	}
	var back Bounds
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != b {
		t.Fatalf("round trip = %v", back)
	}
}

func TestBoundsIntersects(t *testing.T) {
	roi := ParseROI(28, 45, 24, 40)
	if roi.South != 24 || roi.West != 40 {
		t.Fatalf("ParseROI did not order values: %v", roi)
	}
	tests := []struct {
		name string
		b    Bounds
		want bool
	}{
		{"inside", Bounds{South: 25, West: 41, North: 26, East: 42}, true},
		{"overlap edge", Bounds{South: 27, West: 44, North: 30, East: 50}, true},
		{"outside", Bounds{South: 10, West: 10, North: 11, East: 11}, false},
	}
	for _, tt := range tests {
		if got := roi.Intersects(tt.b); got != tt.want {
			t.Errorf("%s: Intersects = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestValidLonLat(t *testing.T) {
	if !ValidLonLat(orb.Point{180, -90}) {
		t.Fatal("edge values should be valid")
	}
	if ValidLonLat(orb.Point{24, 95}) || ValidLonLat(orb.Point{math.NaN(), 0}) {
		t.Fatal("out of range accepted")
	}
}

func TestBoundsSchemaMatchesWireForm(t *testing.T) {
	registry := huma.NewMapRegistry("#/components/schemas/", huma.DefaultSchemaNamer)
	s := registry.Schema(reflect.TypeOf(Bounds{}), false, "")
	if s.Type != huma.TypeArray || s.Items == nil || s.Items.Type != huma.TypeArray {
		t.Fatalf("schema = %+v, want array of arrays", s)
	}
	if s.Items.Items == nil || s.Items.Items.Type != huma.TypeNumber {
		t.Fatalf("corner items = %+v", s.Items.Items)
	}
}
