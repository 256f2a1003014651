package tiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// PMTiles v3 constants used by the writer.
// Spec: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
const (
	headerLen       = 127
	compressionGzip = 2
	tileTypeMVT     = 1
)

// Header is the fixed PMTiles v3 header.
type Header struct {
	RootOffset     uint64
	RootLength     uint64
	MetadataOffset uint64
	MetadataLength uint64
	TileDataOffset uint64
	TileDataLength uint64
	TileEntries    uint64
	Clustered      bool
	TileType       uint8
	MinZoom        uint8
	MaxZoom        uint8
	Bound          orb.Bound
	CenterZoom     uint8
	Center         orb.Point
}

// Archive describes a PMTiles export.
type Archive struct {
	Name    string
	Layer   string // vector layer inside the tiles
	MinZoom maptile.Zoom
	MaxZoom maptile.Zoom
}

type entry struct {
	id     uint64
	offset uint64
	length uint32
}

// WriteArchive writes tiles as a single-directory, clustered PMTiles v3
// archive with gzipped MVT tiles.
func WriteArchive(w io.Writer, tiles map[maptile.Tile][]byte, a Archive) error {
	if len(tiles) == 0 {
		return maperr.Configuration("archive %q has no tiles", a.Name)
	}

	type tile struct {
		id   uint64
		data []byte
	}
	sorted := make([]tile, 0, len(tiles))
	var bound orb.Bound
	first := true
	for t, data := range tiles {
		sorted = append(sorted, tile{id: TileID(t), data: data})
		if first {
			bound, first = t.Bound(), false
		} else {
			bound = bound.Union(t.Bound())
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var data bytes.Buffer
	entries := make([]entry, 0, len(sorted))
	for _, t := range sorted {
		entries = append(entries, entry{id: t.id, offset: uint64(data.Len()), length: uint32(len(t.data))})
		data.Write(t.data)
	}

	root, err := serializeEntries(entries)
	if err != nil {
		return err
	}
	meta, err := gzipJSON(map[string]any{
		"name":        a.Name,
		"format":      "pbf",
		"compression": "gzip",
		"minzoom":     a.MinZoom,
		"maxzoom":     a.MaxZoom,
		"vector_layers": []map[string]any{
			{"id": a.Layer, "minzoom": a.MinZoom, "maxzoom": a.MaxZoom, "fields": map[string]string{}},
		},
	})
	if err != nil {
		return err
	}

	h := Header{
		RootOffset:     headerLen,
		RootLength:     uint64(len(root)),
		MetadataOffset: headerLen + uint64(len(root)),
		MetadataLength: uint64(len(meta)),
		TileDataOffset: headerLen + uint64(len(root)) + uint64(len(meta)),
		TileDataLength: uint64(data.Len()),
		TileEntries:    uint64(len(entries)),
		Clustered:      true,
		TileType:       tileTypeMVT,
		MinZoom:        uint8(a.MinZoom),
		MaxZoom:        uint8(a.MaxZoom),
		Bound:          bound,
		CenterZoom:     uint8(a.MinZoom),
		Center:         bound.Center(),
	}
	for _, b := range [][]byte{serializeHeader(h), root, meta, data.Bytes()} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// TileID is the PMTiles Hilbert id of t.
func TileID(t maptile.Tile) uint64 {
	z, x, y := uint8(t.Z), t.X, t.Y
	acc := (uint64(1)<<(z*2) - 1) / 3
	for s := uint32(1) << z >> 1; s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) * uint64(s)
		if ry == 0 {
			if rx != 0 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
	}
	return acc
}

func e7(v float64) uint32 {
	return uint32(int32(math.Round(v * 1e7)))
}

func serializeHeader(h Header) []byte {
	b := make([]byte, headerLen)
	copy(b[0:7], "PMTiles")
	b[7] = 3
	le := binary.LittleEndian
	le.PutUint64(b[8:], h.RootOffset)
	le.PutUint64(b[16:], h.RootLength)
	le.PutUint64(b[24:], h.MetadataOffset)
	le.PutUint64(b[32:], h.MetadataLength)
	// no leaf directories: 40-55 stay zero
	le.PutUint64(b[56:], h.TileDataOffset)
	le.PutUint64(b[64:], h.TileDataLength)
	le.PutUint64(b[72:], h.TileEntries) // addressed tiles
	le.PutUint64(b[80:], h.TileEntries) // tile entries
	le.PutUint64(b[88:], h.TileEntries) // tile contents, no dedup
	if h.Clustered {
		b[96] = 1
	}
	b[97] = compressionGzip
	b[98] = compressionGzip
	b[99] = h.TileType
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], e7(h.Bound.Min.Lon()))
	le.PutUint32(b[106:], e7(h.Bound.Min.Lat()))
	le.PutUint32(b[110:], e7(h.Bound.Max.Lon()))
	le.PutUint32(b[114:], e7(h.Bound.Max.Lat()))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], e7(h.Center.Lon()))
	le.PutUint32(b[123:], e7(h.Center.Lat()))
	return b
}

// ReadHeader parses the header at the start of an archive.
func ReadHeader(r io.Reader) (Header, error) {
	b := make([]byte, headerLen)
	if _, err := io.ReadFull(r, b); err != nil {
		return Header{}, err
	}
	if string(b[0:7]) != "PMTiles" || b[7] != 3 {
		return Header{}, errors.New("not a PMTiles v3 archive")
	}
	le := binary.LittleEndian
	deg := func(off int) float64 { return float64(int32(le.Uint32(b[off:]))) / 1e7 }
	return Header{
		RootOffset:     le.Uint64(b[8:]),
		RootLength:     le.Uint64(b[16:]),
		MetadataOffset: le.Uint64(b[24:]),
		MetadataLength: le.Uint64(b[32:]),
		TileDataOffset: le.Uint64(b[56:]),
		TileDataLength: le.Uint64(b[64:]),
		TileEntries:    le.Uint64(b[80:]),
		Clustered:      b[96] == 1,
		TileType:       b[99],
		MinZoom:        b[100],
		MaxZoom:        b[101],
		Bound:          orb.Bound{Min: orb.Point{deg(102), deg(106)}, Max: orb.Point{deg(110), deg(114)}},
		CenterZoom:     b[118],
		Center:         orb.Point{deg(119), deg(123)},
	}, nil
}

// serializeEntries writes a gzipped directory: count, delta ids, run
// lengths, lengths, then offsets (0 when contiguous with the previous).
func serializeEntries(entries []entry) ([]byte, error) {
	var b bytes.Buffer
	w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		w.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	last := uint64(0)
	for _, e := range entries {
		put(e.id - last)
		last = e.id
	}
	for range entries {
		put(1)
	}
	for _, e := range entries {
		put(uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			put(0)
		} else {
			put(e.offset + 1)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func gzipJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	w.Write(raw)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
