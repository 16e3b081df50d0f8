package vectortile

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/geoportal/internal/loader"
)

// PMTiles v3 layout constants.
// https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
const (
	headerLen = 127
	// Header and root directory must fit in the first 16 KiB.
	maxRootLen = 16384 - headerLen

	compressionGzip = 2
	tileTypeMVT     = 1
)

// Header is the fixed PMTiles v3 header.
type Header struct {
	RootOffset, RootLength         uint64
	MetadataOffset, MetadataLength uint64
	TileDataOffset, TileDataLength uint64
	AddressedTiles                 uint64
	TileEntries                    uint64
	TileContents                   uint64
	MinZoom, MaxZoom               uint8
	MinLonE7, MinLatE7             int32
	MaxLonE7, MaxLatE7             int32
	CenterZoom                     uint8
	CenterLonE7, CenterLatE7       int32
}

type entry struct {
	id     uint64
	offset uint64
	length uint32
	run    uint32
}

// Archive collects gzipped MVT tiles of one overlay and writes them as a
// single clustered PMTiles v3 file. Identical tiles are stored once.
type Archive struct {
	Name    string
	Bounds  [4]float64 // west, south, east, north
	MinZoom maptile.Zoom
	MaxZoom maptile.Zoom
	tiles   map[uint64][]byte
}

// NewArchive returns an empty archive named name.
func NewArchive(name string) *Archive {
	return &Archive{Name: name, tiles: map[uint64][]byte{}}
}

// Add stores one encoded tile.
func (a *Archive) Add(t maptile.Tile, data []byte) {
	if len(a.tiles) == 0 || t.Z < a.MinZoom {
		a.MinZoom = t.Z
	}
	if len(a.tiles) == 0 || t.Z > a.MaxZoom {
		a.MaxZoom = t.Z
	}
	a.tiles[TileID(t)] = data
}

// Len returns the number of tiles added.
func (a *Archive) Len() int { return len(a.tiles) }

// WriteTo writes the archive: header, root directory, metadata, tile data.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if len(a.tiles) == 0 {
		return 0, errors.New("no tiles to write")
	}
	ids := make([]uint64, 0, len(a.tiles))
	for id := range a.tiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var data bytes.Buffer
	seen := map[string]uint64{}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		tile := a.tiles[id]
		off, dup := seen[string(tile)]
		if !dup {
			off = uint64(data.Len())
			seen[string(tile)] = off
			data.Write(tile)
		}
		// consecutive ids with the same content collapse into one run
		if n := len(entries); n > 0 {
			last := &entries[n-1]
			if last.offset == off && last.id+uint64(last.run) == id {
				last.run++
				continue
			}
		}
		entries = append(entries, entry{id: id, offset: off, length: uint32(len(tile)), run: 1})
	}

	root, err := gzipBytes(encodeEntries(entries))
	if err != nil {
		return 0, err
	}
	if len(root) > maxRootLen {
		return 0, fmt.Errorf("root directory is %d bytes, limit %d: lower the max zoom", len(root), maxRootLen)
	}
	meta, err := json.Marshal(map[string]any{
		"name":    a.Name,
		"format":  "pbf",
		"minzoom": a.MinZoom,
		"maxzoom": a.MaxZoom,
		"vector_layers": []map[string]any{
			{"id": a.Name, "minzoom": a.MinZoom, "maxzoom": a.MaxZoom, "fields": map[string]string{}},
		},
	})
	if err != nil {
		return 0, err
	}
	if meta, err = gzipBytes(meta); err != nil {
		return 0, err
	}

	h := Header{
		RootOffset:     headerLen,
		RootLength:     uint64(len(root)),
		MetadataOffset: headerLen + uint64(len(root)),
		MetadataLength: uint64(len(meta)),
		TileDataLength: uint64(data.Len()),
		AddressedTiles: uint64(len(ids)),
		TileEntries:    uint64(len(entries)),
		TileContents:   uint64(len(seen)),
		MinZoom:        uint8(a.MinZoom),
		MaxZoom:        uint8(a.MaxZoom),
		MinLonE7:       e7(a.Bounds[0]),
		MinLatE7:       e7(a.Bounds[1]),
		MaxLonE7:       e7(a.Bounds[2]),
		MaxLatE7:       e7(a.Bounds[3]),
		CenterZoom:     uint8(a.MinZoom),
		CenterLonE7:    e7((a.Bounds[0] + a.Bounds[2]) / 2),
		CenterLatE7:    e7((a.Bounds[1] + a.Bounds[3]) / 2),
	}
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength

	var total int64
	for _, part := range [][]byte{h.encode(), root, meta, data.Bytes()} {
		n, err := w.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Export cuts ov into tiles for zooms minZ..maxZ and collects the
// non-empty ones.
func Export(ov *loader.PolygonOverlay, layer string, minZ, maxZ maptile.Zoom) (*Archive, error) {
	if maxZ > MaxZoom {
		maxZ = MaxZoom
	}
	if minZ > maxZ {
		return nil, fmt.Errorf("min zoom %d above max zoom %d", minZ, maxZ)
	}
	a := NewArchive(layer)
	if ov != nil && ov.Bounds != nil {
		b := ov.Bounds
		a.Bounds = [4]float64{b.West, b.South, b.East, b.North}
	}
	for z := minZ; z <= maxZ; z++ {
		for _, t := range TileRange(ov, z) {
			data, err := Tile(ov, layer, t)
			if err != nil {
				return nil, err
			}
			if data != nil {
				a.Add(t, data)
			}
		}
	}
	return a, nil
}

// TileID is the Hilbert-curve tile id used by PMTiles directories.
func TileID(t maptile.Tile) uint64 {
	z := uint64(t.Z)
	id := ((uint64(1) << (2 * z)) - 1) / 3
	x, y := uint64(t.X), uint64(t.Y)
	n := uint64(1) << z
	var d uint64
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x&(s-1)
				y = s - 1 - y&(s-1)
			}
			x, y = y, x
		}
	}
	return id + d
}

func encodeEntries(entries []entry) []byte {
	var b []byte
	b = binary.AppendUvarint(b, uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		b = binary.AppendUvarint(b, e.id-last)
		last = e.id
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.run))
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			b = binary.AppendUvarint(b, 0)
		} else {
			b = binary.AppendUvarint(b, e.offset+1)
		}
	}
	return b
}

func (h Header) encode() []byte {
	b := make([]byte, headerLen)
	copy(b, "PMTiles")
	b[7] = 3
	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength,
		h.MetadataOffset, h.MetadataLength,
		0, 0, // leaf directories
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTiles, h.TileEntries, h.TileContents,
	} {
		le.PutUint64(b[8+8*i:], v)
	}
	b[96] = 1 // clustered
	b[97] = compressionGzip
	b[98] = compressionGzip
	b[99] = tileTypeMVT
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b
}

// ReadHeader parses the header at the start of a PMTiles file.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < headerLen || string(b[:7]) != "PMTiles" {
		return Header{}, errors.New("not a PMTiles archive")
	}
	if b[7] != 3 {
		return Header{}, fmt.Errorf("unsupported PMTiles version %d", b[7])
	}
	le := binary.LittleEndian
	u := func(i int) uint64 { return le.Uint64(b[8+8*i:]) }
	i32 := func(off int) int32 { return int32(le.Uint32(b[off:])) }
	return Header{
		RootOffset:     u(0),
		RootLength:     u(1),
		MetadataOffset: u(2),
		MetadataLength: u(3),
		TileDataOffset: u(6),
		TileDataLength: u(7),
		AddressedTiles: u(8),
		TileEntries:    u(9),
		TileContents:   u(10),
		MinZoom:        b[100],
		MaxZoom:        b[101],
		MinLonE7:       i32(102),
		MinLatE7:       i32(106),
		MaxLonE7:       i32(110),
		MaxLatE7:       i32(114),
		CenterZoom:     b[118],
		CenterLonE7:    i32(119),
		CenterLatE7:    i32(123),
	}, nil
}

func gzipBytes(p []byte) ([]byte, error) {
	var b bytes.Buffer
	zw, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func e7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}
