package tiles

import (
	"bytes"
	"io"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

func encoder(t *testing.T) Encoder {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)

	fc := geojson.NewFeatureCollection()
	for _, f := range []struct {
		code string
		b    orb.Bound
	}{
		{"751010101", orb.Bound{Min: orb.Point{2.33, 48.85}, Max: orb.Point{2.35, 48.87}}},
		{"751010103", orb.Bound{Min: orb.Point{2.44, 48.84}, Max: orb.Point{2.48, 48.86}}},
	} {
		feat := geojson.NewFeature(f.b.ToPolygon())
		feat.Properties["CODE_IRIS"] = f.code
		fc.Append(feat)
	}
	return Encoder{Catalog: cat, Fixtures: memory.Collections{"iris": fc}}
}

func TestEncodeTile(t *testing.T) {
	e := encoder(t)
	tile := maptile.At(orb.Point{2.34, 48.86}, 10)

	data, err := e.Tile("iris", tile)
	require.NoError(t, err)
	require.NotNil(t, data)

	layers, err := mvt.UnmarshalGzipped(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "iris-ign-simple-8us3r7", layers[0].Name)

	var codes []any
	for _, f := range layers[0].Features {
		codes = append(codes, f.Properties["CODE_IRIS"])
	}
	assert.Contains(t, codes, "751010101")

	// clipping works on copies
	src := e.Fixtures.(memory.Collections)["iris"]
	assert.Equal(t, orb.Bound{Min: orb.Point{2.33, 48.85}, Max: orb.Point{2.35, 48.87}}, src.Features[0].Geometry.Bound())
}

func TestEncodeEmptyAndErrors(t *testing.T) {
	e := encoder(t)

	data, err := e.Tile("iris", maptile.At(orb.Point{-70, 40}, 10))
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = e.Tile("nope", maptile.New(0, 0, 0))
	assert.Equal(t, maperr.KindNotFound, maperr.KindOf(err))

	_, err = e.Tile("iris", maptile.New(0, 0, 20))
	assert.Equal(t, maperr.KindInteraction, maperr.KindOf(err))

	data, err = e.Tile("communes", maptile.New(0, 0, 0))
	require.NoError(t, err)
	assert.Nil(t, data, "no fixtures")
}

func TestTileID(t *testing.T) {
	for _, tt := range []struct {
		tile maptile.Tile
		id   uint64
	}{
		{maptile.New(0, 0, 0), 0},
		{maptile.New(0, 0, 1), 1},
		{maptile.New(0, 1, 1), 2},
		{maptile.New(1, 1, 1), 3},
		{maptile.New(1, 0, 1), 4},
		{maptile.New(0, 0, 2), 5},
	} {
		assert.Equal(t, tt.id, TileID(tt.tile), "%v", tt.tile)
	}
}

func TestArchive(t *testing.T) {
	e := encoder(t)
	pyramid, err := e.Pyramid("iris", 8, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pyramid)
	for tile := range pyramid {
		assert.GreaterOrEqual(t, tile.Z, maptile.Zoom(8))
		assert.LessOrEqual(t, tile.Z, maptile.Zoom(10))
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, pyramid, Archive{Name: "iris", Layer: "iris-ign-simple-8us3r7", MinZoom: 8, MaxZoom: 10}))

	h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint64(len(pyramid)), h.TileEntries)
	assert.Equal(t, uint8(8), h.MinZoom)
	assert.Equal(t, uint8(10), h.MaxZoom)
	assert.True(t, h.Clustered)
	assert.Equal(t, uint64(buf.Len()), h.TileDataOffset+h.TileDataLength)
	assert.True(t, h.Bound.Contains(orb.Point{2.34, 48.86}))

	_, err = ReadHeader(bytes.NewReader([]byte("not an archive")))
	assert.Error(t, err)

	err = WriteArchive(&buf, nil, Archive{Name: "empty"})
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))

	_, err = e.Pyramid("iris", 10, 8)
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))
}

func TestPyramidSkipsNullGeometries(t *testing.T) {
	e := encoder(t)
	fc := e.Fixtures.(memory.Collections)["iris"]
	unplaced := geojson.NewFeature(nil)
	unplaced.Properties["CODE_IRIS"] = "751010199"
	fc.Features = append([]*geojson.Feature{unplaced}, fc.Features...)

	pyramid, err := e.Pyramid("iris", 8, 9)
	require.NoError(t, err)
	assert.NotEmpty(t, pyramid)

	only := geojson.NewFeatureCollection()
	only.Append(unplaced)
	e.Fixtures = memory.Collections{"iris": only}
	pyramid, err = e.Pyramid("iris", 0, 2)
	require.NoError(t, err)
	assert.Empty(t, pyramid)

	// an empty export is refused, not written
	err = WriteArchive(io.Discard, pyramid, Archive{Name: "iris"})
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))
}
