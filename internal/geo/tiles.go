package geo

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// imageExts is the detection order for pyramid tile files.
var imageExts = []string{"png", "jpg", "jpeg"}

// TileBoundsFromPyramid derives bounds from the x directories and y file
// stems at zoom z of an XYZ pyramid rooted at root. The south-east corner
// comes from tile (xmax+1, ymax+1) so the last tile is covered in full.
// It returns nil when the zoom directory is missing or holds no tiles.
func TileBoundsFromPyramid(root string, z int) *Bounds {
	zdir := filepath.Join(root, strconv.Itoa(z))
	xs := numericEntries(zdir)
	if len(xs) == 0 {
		return nil
	}
	xmin, xmax := xs[0], xs[len(xs)-1]

	ys := tileStems(filepath.Join(zdir, strconv.Itoa(xmin)))
	if xmax != xmin {
		ys = append(ys, tileStems(filepath.Join(zdir, strconv.Itoa(xmax)))...)
	}
	if len(ys) == 0 {
		return nil
	}
	sort.Ints(ys)
	ymin, ymax := ys[0], ys[len(ys)-1]

	zoom := maptile.Zoom(z)
	nw := maptile.New(uint32(xmin), uint32(ymin), zoom).Bound()
	se := maptile.New(uint32(xmax), uint32(ymax), zoom).Bound()

	return &Bounds{
		North: nw.Max[1],
		West:  nw.Min[0],
		South: se.Min[1],
		East:  se.Max[0],
	}
}

// DetectZoomRange returns the smallest and largest numeric directory names
// under root. ok is false when there are none.
func DetectZoomRange(root string) (min, max int, ok bool) {
	zs := numericEntries(root)
	if len(zs) == 0 {
		return 0, 0, false
	}
	return zs[0], zs[len(zs)-1], true
}

// DetectExtension returns the normalized extension of the pyramid's tiles:
// "png", "jpg" (jpeg is reported as jpg) or "" when no tile image exists.
func DetectExtension(root string) string {
	switch ext := strings.ToLower(DetectFileExtension(root)); ext {
	case "jpeg":
		return "jpg"
	default:
		return ext
	}
}

// DetectFileExtension walks zoom and x directories in ascending order and
// returns the extension of the first tile image found, as spelled on disk.
// Within one x directory png wins over jpg, and jpg over jpeg.
func DetectFileExtension(root string) string {
	for _, z := range numericEntries(root) {
		zdir := filepath.Join(root, strconv.Itoa(z))
		for _, x := range numericEntries(zdir) {
			if ext := firstImageExt(filepath.Join(zdir, strconv.Itoa(x))); ext != "" {
				return ext
			}
		}
	}
	return ""
}

func firstImageExt(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	found := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(e.Name()), ".")
		lower := strings.ToLower(ext)
		if _, seen := found[lower]; !seen {
			found[lower] = ext
		}
	}
	for _, want := range imageExts {
		if ext, ok := found[want]; ok {
			return ext
		}
	}
	return ""
}

// IsTileImage reports whether name has a tile image extension.
func IsTileImage(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, want := range imageExts {
		if ext == want {
			return true
		}
	}
	return false
}

// numericEntries returns the sorted integer names of the subdirectories
// under dir.
func numericEntries(dir string) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func tileStems(dir string) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() || !IsTileImage(e.Name()) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		n, err := strconv.Atoi(stem)
		if err != nil || n < 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
