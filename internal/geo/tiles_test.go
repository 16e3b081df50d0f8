package geo

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// touch creates root/rel and any parent directories.
func touch(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0644); err != nil {
		t.Fatal(err)
	}
}

func tileLon(x, z int) float64 {
	return float64(x)/math.Exp2(float64(z))*360 - 180
}

func tileLat(y, z int) float64 {
	n := math.Pi - 2*math.Pi*float64(y)/math.Exp2(float64(z))
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSingleTilePyramid(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "5/3/7.png")

	zmin, zmax, ok := DetectZoomRange(root)
	if !ok || zmin != 5 || zmax != 5 {
		t.Fatalf("DetectZoomRange = (%d, %d, %v), want (5, 5, true)", zmin, zmax, ok)
	}
	if ext := DetectExtension(root); ext != "png" {
		t.Fatalf("DetectExtension = %q, want png", ext)
	}

	b := TileBoundsFromPyramid(root, 5)
	if b == nil {
		t.Fatal("TileBoundsFromPyramid returned nil")
	}
	if !near(b.West, tileLon(3, 5)) || !near(b.North, tileLat(7, 5)) {
		t.Fatalf("north-west = (%v, %v), want tile (3,7) origin", b.North, b.West)
	}
	if !near(b.East, tileLon(4, 5)) || !near(b.South, tileLat(8, 5)) {
		t.Fatalf("south-east = (%v, %v), want tile (4,8) origin", b.South, b.East)
	}
}

func TestTileBoundsIdempotent(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"12/2650/1710.png", "12/2650/1712.png", "12/2655/1711.png", "12/2652/1799.png"} {
		touch(t, root, rel)
	}
	a := TileBoundsFromPyramid(root, 12)
	b := TileBoundsFromPyramid(root, 12)
	if a == nil || b == nil {
		t.Fatal("nil bounds")
	}
	if *a != *b {
		t.Fatalf("bounds differ between calls: %v vs %v", a, b)
	}
	// y range comes from the min and max x columns only
	if !near(a.South, tileLat(1713, 12)) {
		t.Fatalf("south = %v, want edge of y=1712", a.South)
	}
}

func TestTileBoundsMissing(t *testing.T) {
	root := t.TempDir()
	if b := TileBoundsFromPyramid(root, 3); b != nil {
		t.Fatalf("missing zoom dir: got %v", b)
	}
	if err := os.MkdirAll(filepath.Join(root, "3", "1"), 0755); err != nil {
		t.Fatal(err)
	}
	if b := TileBoundsFromPyramid(root, 3); b != nil {
		t.Fatalf("empty x dir: got %v", b)
	}
}

func TestDetectZoomRangeOrder(t *testing.T) {
	root := t.TempDir()
	// created out of order, and with a non-numeric sibling
	for _, z := range []string{"12", "5", "9", "openlayers"} {
		if err := os.MkdirAll(filepath.Join(root, z), 0755); err != nil {
			t.Fatal(err)
		}
	}
	zmin, zmax, ok := DetectZoomRange(root)
	if !ok || zmin != 5 || zmax != 12 {
		t.Fatalf("DetectZoomRange = (%d, %d, %v), want (5, 12, true)", zmin, zmax, ok)
	}

	if _, _, ok := DetectZoomRange(filepath.Join(root, "nope")); ok {
		t.Fatal("missing root should not be ok")
	}
}

func TestDetectExtension(t *testing.T) {
	tests := []struct {
		name   string
		files  []string
		want   string
		onDisk string
	}{
		{"jpg only", []string{"4/1/1.jpg"}, "jpg", "jpg"},
		{"png preferred", []string{"4/1/1.jpg", "4/1/2.png"}, "png", "png"},
		{"uppercase normalized", []string{"4/1/1.PNG"}, "png", "PNG"},
		{"jpeg reported as jpg", []string{"3/0/0.jpeg", "4/1/1.png"}, "jpg", "jpeg"},
		{"no images", []string{"4/1/1.txt"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, f := range tt.files {
				touch(t, root, f)
			}
			if got := DetectExtension(root); got != tt.want {
				t.Fatalf("DetectExtension = %q, want %q", got, tt.want)
			}
			if got := DetectFileExtension(root); got != tt.onDisk {
				t.Fatalf("DetectFileExtension = %q, want %q", got, tt.onDisk)
			}
		})
	}
}
