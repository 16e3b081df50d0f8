// Package pyramid introspects XYZ tile pyramids (root/z/x/y.ext) by
// directory enumeration only. No tile contents are read.
package pyramid

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joeblew999/geoportal/internal/debounce"
	"github.com/joeblew999/geoportal/internal/geo"
)

// DefaultQuietPeriod is the debounce applied to root changes.
const DefaultQuietPeriod = 350 * time.Millisecond

// Tile layers always advertise at least this max zoom so the map keeps
// overzooming past the deepest level on disk.
const minAdvertisedMaxZoom = 22

// State is the scan state of a pyramid root.
type State string

const (
	Unscanned State = "unscanned"
	Ready     State = "ready"
	Missing   State = "missing"
)

// Descriptor is the result of scanning one pyramid root. It is replaced,
// never mutated, when the root changes.
type Descriptor struct {
	Root    string      `json:"root" doc:"Pyramid root directory"`
	State   State       `json:"state" enum:"unscanned,ready,missing" doc:"Scan state"`
	MinZoom int         `json:"minZoom" doc:"Smallest zoom level on disk"`
	MaxZoom int         `json:"maxZoom" doc:"Largest zoom level on disk"`
	Ext     string      `json:"ext,omitempty" enum:"png,jpg" doc:"Tile image type" example:"png"`
	FileExt string      `json:"fileExt,omitempty" doc:"Tile file extension as spelled on disk" example:"PNG"`
	Bounds  *geo.Bounds `json:"bounds,omitempty" doc:"[[south,west],[north,east]] at the largest zoom"`
	Reason  string      `json:"reason,omitempty" doc:"Why the pyramid is missing"`
}

// Scan enumerates root and returns its descriptor. A root that does not
// exist, is not a directory, or holds no zoom directories is Missing.
func Scan(root string) Descriptor {
	abs, err := filepath.Abs(root)
	if err == nil {
		root = abs
	}
	d := Descriptor{Root: root, State: Unscanned}

	st, err := os.Stat(root)
	if err != nil || !st.IsDir() {
		d.State = Missing
		d.Reason = fmt.Sprintf("Tiles folder not found: %s", root)
		return d
	}
	zmin, zmax, ok := geo.DetectZoomRange(root)
	if !ok {
		d.State = Missing
		d.Reason = fmt.Sprintf("No zoom directories under %s", root)
		return d
	}
	d.State = Ready
	d.MinZoom, d.MaxZoom = zmin, zmax
	d.Ext = geo.DetectExtension(root)
	d.FileExt = geo.DetectFileExtension(root)
	if d.Ext == "" {
		d.Ext, d.FileExt = "png", "png"
	}
	d.Bounds = geo.TileBoundsFromPyramid(root, zmax)
	return d
}

// Ready reports whether the pyramid can be attached as an overlay.
func (d Descriptor) Ready() bool { return d.State == Ready }

// Version is a short token that changes with the root so browsers refetch
// tiles after the root is switched.
func (d Descriptor) Version() string {
	h := fnv.New32a()
	h.Write([]byte(d.Root))
	return fmt.Sprintf("%d", h.Sum32()%100000000)
}

// URLTemplate returns the XYZ URL template under base. The extension keeps
// its on-disk spelling for case-sensitive static hosts.
func (d Descriptor) URLTemplate(base string) string {
	ext := d.FileExt
	if ext == "" {
		ext = d.Ext
	}
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%s/{z}/{x}/{y}.%s?v=%s", strings.TrimRight(base, "/"), ext, d.Version())
}

// LayerMaxZoom is the max zoom advertised on the tile layer.
func (d Descriptor) LayerMaxZoom() int {
	if d.MaxZoom > minAdvertisedMaxZoom {
		return d.MaxZoom
	}
	return minAdvertisedMaxZoom
}

// Summary is the toast shown after a successful scan.
func (d Descriptor) Summary() string {
	return fmt.Sprintf("Tiles ready z∈[%d,%d] • ext=.%s", d.MinZoom, d.MaxZoom, d.Ext)
}

// Introspector tracks the configured root of one pyramid. Root changes are
// debounced; a new root supersedes a pending one and the descriptor is
// cached until the next change.
type Introspector struct {
	mu       sync.Mutex
	root     string
	desc     Descriptor
	deb      *debounce.Debouncer
	onChange func(Descriptor)
}

// NewIntrospector returns an Introspector that reports completed scans to
// onChange. onChange runs on the debounce goroutine.
func NewIntrospector(quiet time.Duration, onChange func(Descriptor)) *Introspector {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Introspector{
		desc:     Descriptor{State: Unscanned},
		deb:      debounce.New(quiet),
		onChange: onChange,
	}
}

// SetRoot schedules a scan of root. Setting the current root again is a
// no-op once it has been scanned.
func (in *Introspector) SetRoot(root string) {
	in.mu.Lock()
	if root == in.root && in.desc.State != Unscanned {
		in.mu.Unlock()
		return
	}
	in.root = root
	in.desc = Descriptor{Root: root, State: Unscanned}
	in.mu.Unlock()

	in.deb.Trigger(func() { in.scan(root) })
}

// ScanNow scans root synchronously, dropping any pending scan.
func (in *Introspector) ScanNow(root string) Descriptor {
	in.deb.Cancel()
	in.mu.Lock()
	in.root = root
	in.mu.Unlock()
	return in.scan(root)
}

func (in *Introspector) scan(root string) Descriptor {
	d := Scan(root)
	in.mu.Lock()
	if in.root != root {
		// superseded while scanning
		in.mu.Unlock()
		return d
	}
	in.desc = d
	cb := in.onChange
	in.mu.Unlock()
	if cb != nil {
		cb(d)
	}
	return d
}

// Descriptor returns the cached descriptor of the current root.
func (in *Introspector) Descriptor() Descriptor {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.desc
}

// Root returns the current root.
func (in *Introspector) Root() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.root
}

// Close cancels any pending scan.
func (in *Introspector) Close() {
	in.deb.Stop()
}
