package layers

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/joeblew999/geoportal/internal/geo"
)

var (
	osm     = Overlay{Name: "OpenStreetMap", ID: "osm", Kind: KindBase, Visible: true}
	esri    = Overlay{Name: "Esri", ID: "esri", Kind: KindBase, Visible: true}
	raster  = Overlay{Name: "Classification", ID: "raster:/a", Kind: KindRaster, Visible: true, Opacity: 0.75}
	cpf     = Overlay{Name: "Center Pivot Fields", ID: "cpf:2023", Kind: KindPolygon, Visible: true, Opacity: 0.6}
	palms   = Overlay{Name: "Date Palm Fields", ID: "dp", Kind: KindPolygon, Visible: true, Opacity: 0.6}
	markers = Overlay{Name: "Sensors", ID: "sensors.geojson", Kind: KindMarkers, Visible: true}
	popup   = Overlay{Name: "popup", ID: "S1", Kind: KindPopup, Visible: true}
)

func with(o Overlay, f func(*Overlay)) Overlay {
	f(&o)
	return o
}

func reconcileAndApply(desired, attached []Overlay) []Overlay {
	return Reconcile(desired, attached).Apply(attached)
}

func TestReconcileFromEmpty(t *testing.T) {
	desired := []Overlay{osm, esri, raster, cpf, palms, markers, popup}
	got := Names(reconcileAndApply(desired, nil))
	want := Names(desired)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
}

func TestReconcileNoop(t *testing.T) {
	desired := []Overlay{osm, raster, cpf, markers}
	if p := Reconcile(desired, desired); !p.Empty() {
		t.Fatalf("plan = %+v, want empty", p)
	}
}

func TestReconcileToggleKeepsMarkersOnTop(t *testing.T) {
	desired := []Overlay{osm, esri, raster, cpf, markers}
	stack := reconcileAndApply(desired, nil)

	hidden := []Overlay{osm, esri, raster, with(cpf, func(o *Overlay) { o.Visible = false }), markers}
	stack = reconcileAndApply(hidden, stack)
	if IndexOf(stack, cpf.Name) != -1 {
		t.Fatalf("hidden polygon still attached: %v", Names(stack))
	}

	stack = reconcileAndApply(desired, stack)
	top, _ := Top(stack)
	if top.Name != markers.Name {
		t.Fatalf("top = %s, want markers; stack %v", top.Name, Names(stack))
	}
	if IndexOf(stack, cpf.Name) != 3 {
		t.Fatalf("polygon index = %d, want 3 (above raster); stack %v", IndexOf(stack, cpf.Name), Names(stack))
	}
}

func TestReconcileInsertsRasterAboveBaseRun(t *testing.T) {
	attached := []Overlay{osm, esri, cpf, markers}
	plan := Reconcile([]Overlay{osm, esri, raster, cpf, markers}, attached)
	if len(plan.ToAdd) != 1 || plan.ToAdd[0].Index != 2 {
		t.Fatalf("ToAdd = %+v, want raster at 2", plan.ToAdd)
	}
	got := Names(plan.Apply(attached))
	want := []string{"OpenStreetMap", "Esri", "Classification", "Center Pivot Fields", "Sensors"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
}

func TestReconcileSwapByName(t *testing.T) {
	attached := []Overlay{osm, raster, cpf, markers}
	cpf2019 := with(cpf, func(o *Overlay) { o.ID = "cpf:2019" })
	plan := Reconcile([]Overlay{osm, raster, cpf2019, markers}, attached)

	if len(plan.ToRemove) != 1 || plan.ToRemove[0].ID != "cpf:2023" {
		t.Fatalf("ToRemove = %+v", plan.ToRemove)
	}
	if len(plan.ToAdd) != 1 || plan.ToAdd[0].Overlay.ID != "cpf:2019" {
		t.Fatalf("ToAdd = %+v", plan.ToAdd)
	}
	stack := plan.Apply(attached)
	if stack[2].ID != "cpf:2019" || stack[3].Name != markers.Name {
		t.Fatalf("stack = %+v", stack)
	}
}

func TestReconcileOpacityRestylesInPlace(t *testing.T) {
	attached := []Overlay{osm, raster, markers}
	faded := with(raster, func(o *Overlay) { o.Opacity = 0.3 })
	plan := Reconcile([]Overlay{osm, faded, markers}, attached)
	if len(plan.ToRemove) != 0 || len(plan.ToAdd) != 0 {
		t.Fatalf("opacity change swapped the layer: %+v", plan)
	}
	if len(plan.ToRestyle) != 1 || plan.ToRestyle[0].Opacity != 0.3 {
		t.Fatalf("ToRestyle = %+v", plan.ToRestyle)
	}
	if got := plan.Apply(attached)[1].Opacity; got != 0.3 {
		t.Fatalf("applied opacity = %v", got)
	}
	if attached[1].Opacity != 0.75 {
		t.Fatal("Apply modified its input")
	}
}

func TestReconcileSinglePopup(t *testing.T) {
	old := with(popup, func(o *Overlay) { o.Name = "popup-old"; o.ID = "S9" })
	attached := []Overlay{osm, markers, old}
	second := with(popup, func(o *Overlay) { o.Name = "popup-2"; o.ID = "S2" })

	stack := reconcileAndApply([]Overlay{osm, markers, popup, second}, attached)
	n := 0
	for _, o := range stack {
		if o.Kind == KindPopup {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("popups attached = %d, want 1; stack %v", n, Names(stack))
	}
	if top, _ := Top(stack); top.ID != "S1" {
		t.Fatalf("top = %+v, want popup S1", top)
	}
}

func TestReconcileRepairsOrder(t *testing.T) {
	attached := []Overlay{osm, markers, cpf}
	got := Names(reconcileAndApply([]Overlay{osm, cpf, markers}, attached))
	want := []string{"OpenStreetMap", "Center Pivot Fields", "Sensors"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
}

func TestReconcileDropsDuplicates(t *testing.T) {
	attached := []Overlay{osm, markers, markers}
	stack := reconcileAndApply([]Overlay{osm, markers}, attached)
	if len(stack) != 2 {
		t.Fatalf("stack = %v, want duplicates removed", Names(stack))
	}
}

func TestPolygonOrderFollowsDesired(t *testing.T) {
	attached := []Overlay{osm, raster, palms, markers}
	got := Names(reconcileAndApply([]Overlay{osm, raster, cpf, palms, markers}, attached))
	want := []string{"OpenStreetMap", "Classification", "Center Pivot Fields", "Date Palm Fields", "Sensors"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stack = %v, want %v", got, want)
	}
}

type fakeView struct {
	zoom     int
	fitZoom  int
	legacy   bool
	fits     []FitOptions
	setZooms []int
}

func (v *fakeView) FitBounds(b geo.Bounds, opts FitOptions) error {
	if v.legacy && opts.MaxZoom > 0 {
		return ErrMaxZoomUnsupported
	}
	v.fits = append(v.fits, opts)
	v.zoom = v.fitZoom
	if opts.MaxZoom > 0 && v.zoom > opts.MaxZoom {
		v.zoom = opts.MaxZoom
	}
	return nil
}

func (v *fakeView) Zoom() int     { return v.zoom }
func (v *fakeView) SetZoom(z int) { v.zoom = z; v.setZooms = append(v.setZooms, z) }

func TestFit(t *testing.T) {
	b := geo.Bounds{South: 24, West: 46, North: 25, East: 47}
	tests := []struct {
		name     string
		view     *fakeView
		opts     FitOptions
		wantZoom int
		wantSets int
	}{
		{"clamped", &fakeView{fitZoom: 18}, FitOptions{MaxZoom: 14}, 14, 0},
		{"legacy fallback", &fakeView{fitZoom: 18, legacy: true}, FitOptions{MaxZoom: 14}, 14, 1},
		{"legacy under clamp", &fakeView{fitZoom: 10, legacy: true}, FitOptions{MaxZoom: 14}, 10, 0},
		{"min zoom", &fakeView{fitZoom: 3}, FitOptions{MaxZoom: 14, MinZoom: 5}, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Fit(tt.view, b, tt.opts); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if tt.view.zoom != tt.wantZoom {
				t.Errorf("zoom = %d, want %d", tt.view.zoom, tt.wantZoom)
			}
			if len(tt.view.setZooms) != tt.wantSets {
				t.Errorf("SetZoom calls = %v, want %d", tt.view.setZooms, tt.wantSets)
			}
		})
	}
}

func TestFitTrackerOneShot(t *testing.T) {
	ft := NewFitTracker()
	b := &geo.Bounds{South: 1, West: 1, North: 2, East: 2}

	if ft.ShouldFit("Sensors", "a.geojson", nil) {
		t.Fatal("nil bounds fitted")
	}
	if !ft.ShouldFit("Sensors", "a.geojson", b) {
		t.Fatal("first load did not fit")
	}
	if ft.ShouldFit("Sensors", "a.geojson", b) {
		t.Fatal("same load fitted twice")
	}
	if !ft.ShouldFit("Sensors", "b.geojson", b) {
		t.Fatal("new load did not fit")
	}
	ft.Reset("Sensors")
	if !ft.ShouldFit("Sensors", "b.geojson", b) {
		t.Fatal("fit after Reset did not fit")
	}
}

func TestKindJSONAndRank(t *testing.T) {
	b, err := json.Marshal(markers)
	if err != nil {
		t.Fatal(err)
	}
	var got Overlay
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindMarkers {
		t.Fatalf("kind = %q, want markers", got.Kind)
	}
	if err := json.Unmarshal([]byte(`{"name":"x","kind":"volcano"}`), &got); err == nil {
		t.Fatal("unknown kind accepted")
	}
	for i := 1; i < len(kindOrder); i++ {
		if kindOrder[i-1].Rank() >= kindOrder[i].Rank() {
			t.Fatalf("%s does not rank below %s", kindOrder[i-1], kindOrder[i])
		}
	}
}
