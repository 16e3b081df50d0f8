package pyramid

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func makeTile(t *testing.T, root string, rel string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestScanSingleTile(t *testing.T) {
	root := t.TempDir()
	makeTile(t, root, "5/3/7.png")

	d := Scan(root)
	if d.State != Ready {
		t.Fatalf("state = %s, want ready", d.State)
	}
	if d.MinZoom != 5 || d.MaxZoom != 5 || d.Ext != "png" {
		t.Fatalf("descriptor = %+v", d)
	}
	if d.Bounds == nil {
		t.Fatal("bounds = nil")
	}
	// tile x=3 at z5 spans lon -146.25 .. -135
	if math.Abs(d.Bounds.West+146.25) > 1e-9 || math.Abs(d.Bounds.East+135) > 1e-9 {
		t.Fatalf("west/east = %v/%v", d.Bounds.West, d.Bounds.East)
	}
	if d.Bounds.North <= d.Bounds.South {
		t.Fatalf("north %v <= south %v", d.Bounds.North, d.Bounds.South)
	}
}

func TestScanMissing(t *testing.T) {
	dir := t.TempDir()
	d := Scan(filepath.Join(dir, "nope"))
	if d.State != Missing || !strings.Contains(d.Reason, "Tiles folder not found") {
		t.Fatalf("descriptor = %+v", d)
	}

	d = Scan(dir)
	if d.State != Missing {
		t.Fatalf("empty dir state = %s, want missing", d.State)
	}
}

func TestURLTemplate(t *testing.T) {
	root := t.TempDir()
	makeTile(t, root, "3/1/1.JPG")
	d := Scan(root)
	got := d.URLTemplate("/tiles/raster/")
	if !strings.HasPrefix(got, "/tiles/raster/{z}/{x}/{y}.JPG?v=") {
		t.Fatalf("URLTemplate = %q", got)
	}
	if got != d.URLTemplate("/tiles/raster") {
		t.Fatal("URLTemplate is not stable")
	}
	if d.Ext != "jpg" || d.FileExt != "JPG" {
		t.Fatalf("ext = %q, fileExt = %q", d.Ext, d.FileExt)
	}
	other := Descriptor{Root: root + "x", Ext: "jpg", FileExt: "JPG"}
	if other.Version() == d.Version() {
		t.Fatal("version did not change with root")
	}
	if d.LayerMaxZoom() != 22 {
		t.Fatalf("LayerMaxZoom = %d", d.LayerMaxZoom())
	}
}

func TestIntrospectorSupersedes(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	makeTile(t, first, "4/1/1.png")
	makeTile(t, second, "9/10/10.png")

	got := make(chan Descriptor, 4)
	in := NewIntrospector(20*time.Millisecond, func(d Descriptor) { got <- d })
	defer in.Close()

	in.SetRoot(first)
	in.SetRoot(second)

	select {
	case d := <-got:
		if d.MaxZoom != 9 {
			t.Fatalf("scanned %s, want the second root", d.Root)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no scan completed")
	}
	select {
	case d := <-got:
		t.Fatalf("superseded root was scanned: %+v", d)
	case <-time.After(80 * time.Millisecond):
	}

	if d := in.Descriptor(); d.State != Ready || d.MaxZoom != 9 {
		t.Fatalf("cached descriptor = %+v", d)
	}
}

func TestIntrospectorCloseCancels(t *testing.T) {
	root := t.TempDir()
	makeTile(t, root, "1/0/0.png")
	called := make(chan struct{}, 1)
	in := NewIntrospector(20*time.Millisecond, func(Descriptor) { called <- struct{}{} })
	in.SetRoot(root)
	in.Close()
	select {
	case <-called:
		t.Fatal("scan ran after Close")
	case <-time.After(80 * time.Millisecond):
	}
	if in.Descriptor().State != Unscanned {
		t.Fatalf("state = %s, want unscanned", in.Descriptor().State)
	}
}
