package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

func box(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}.ToPolygon()
}

func feature(g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

// Two zones: "a" inside one z10 tile, "b" straddling the lon 2.4609375
// tile edge.
func zones() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(feature(box(2.33, 48.85, 2.35, 48.87), map[string]any{"CODE": "a", "v": 10.0}))
	fc.Append(feature(box(2.44, 48.84, 2.48, 48.86), map[string]any{"CODE": "b", "v": 30.0}))
	return fc
}

func loaded(t *testing.T) *Canvas {
	t.Helper()
	c := New(Options{Fixtures: Collections{"zones": zones()}})
	c.Load()
	require.NoError(t, c.AddSource("zones", style.Source{Type: "vector", URL: "mapbox://zones"}))
	require.NoError(t, c.AddLayer(style.Layer{
		ID: "zones", Type: style.TypeFill, Source: "zones", SourceLayer: "zones",
		Paint: map[string]any{"fill-color": style.FlagColor("clicked", "#FF0000", "#8338ec")},
	}))
	return c
}

func TestNotReady(t *testing.T) {
	c := New(Options{})
	err := c.AddSource("zones", style.Source{Type: "vector"})
	require.Error(t, err)
	assert.Equal(t, maperr.KindNotReady, maperr.KindOf(err))
	assert.False(t, c.HasSource("zones"))

	err = c.AddLayer(style.Layer{ID: "zones", Type: style.TypeFill, Source: "zones"})
	assert.Equal(t, maperr.KindNotReady, maperr.KindOf(err))
}

func TestDuplicatesAndMissing(t *testing.T) {
	c := loaded(t)

	require.Error(t, c.AddSource("zones", style.Source{Type: "vector"}))
	require.Error(t, c.AddLayer(style.Layer{ID: "zones", Type: style.TypeFill, Source: "zones"}))

	err := c.AddLayer(style.Layer{ID: "x", Type: style.TypeFill, Source: "nope"})
	assert.Equal(t, maperr.KindNotFound, maperr.KindOf(err))

	err = c.SetVisibility("nope", true)
	assert.Equal(t, maperr.KindNotFound, maperr.KindOf(err))

	err = c.AddSource("raster", style.Source{Type: "raster"})
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))
}

func TestTileSplit(t *testing.T) {
	c := loaded(t)

	features, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{"zones"}})
	require.NoError(t, err)

	byCode := map[string][]canvas.Feature{}
	for _, f := range features {
		byCode[f.Properties["CODE"].(string)] = append(byCode[f.Properties["CODE"].(string)], f)
	}
	assert.Len(t, byCode["a"], 1)
	require.Len(t, byCode["b"], 2)
	assert.NotEqual(t, byCode["b"][0].Ref.ID, byCode["b"][1].Ref.ID)
	assert.Equal(t, "zones", byCode["b"][0].Ref.SourceLayer)
}

func TestHitTest(t *testing.T) {
	c := loaded(t)

	p := orb.Point{2.34, 48.86}
	hits, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{"zones"}, Point: &p})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Properties["CODE"])

	p = orb.Point{2.20, 48.80}
	hits, err = c.QueryRenderedFeatures(canvas.RenderedQuery{Point: &p})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHiddenLayersDoNotRender(t *testing.T) {
	c := loaded(t)
	require.NoError(t, c.SetVisibility("zones", false))

	visible, err := c.Visibility("zones")
	require.NoError(t, err)
	assert.False(t, visible)

	features, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{"zones"}})
	require.NoError(t, err)
	assert.Empty(t, features)

	// source queries ignore visibility
	all, err := c.QuerySourceFeatures("zones", canvas.SourceQuery{SourceLayer: "zones"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFilter(t *testing.T) {
	c := loaded(t)
	filter := style.InFilter("CODE", []string{"b"})
	require.NoError(t, c.SetFilter("zones", filter))

	got, err := c.Filter("zones")
	require.NoError(t, err)
	assert.Equal(t, filter, got)

	features, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{"zones"}})
	require.NoError(t, err)
	require.Len(t, features, 2)
	for _, f := range features {
		assert.Equal(t, "b", f.Properties["CODE"])
	}

	require.Error(t, c.SetFilter("zones", style.Expression{"bogus"}))
}

func TestFeatureStateDrivesPaint(t *testing.T) {
	c := loaded(t)
	p := orb.Point{2.34, 48.86}
	hits, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{"zones"}, Point: &p})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	color, err := c.PaintValue("zones", "fill-color", hits[0])
	require.NoError(t, err)
	assert.Equal(t, "#8338ec", color)

	require.NoError(t, c.SetFeatureState(hits[0].Ref, map[string]any{"clicked": true}))
	assert.Equal(t, map[string]any{"clicked": true}, c.FeatureState(hits[0].Ref))
	assert.Equal(t, 1, c.Snapshot().Flagged)

	color, err = c.PaintValue("zones", "fill-color", hits[0])
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", color)
}

func TestFitBounds(t *testing.T) {
	c := loaded(t)
	before := c.Camera()

	b := orb.Bound{Min: orb.Point{2.33, 48.85}, Max: orb.Point{2.37, 48.87}}
	require.NoError(t, c.FitBounds(b, 50))

	cam := c.Camera()
	assert.NotEqual(t, before, cam)
	assert.InDelta(t, 2.35, cam.Center[0], 1e-6)
	assert.InDelta(t, 48.86, cam.Center[1], 1e-3)
	assert.Greater(t, cam.Zoom, before.Zoom)

	// the fitted view contains the whole bound
	vp := viewport(cam, c.opts)
	assert.True(t, vp.Contains(b.Min))
	assert.True(t, vp.Contains(b.Max))

	require.Error(t, c.FitBounds(b, 600))
}

func TestZoomChangesParts(t *testing.T) {
	c := loaded(t)
	p := orb.Point{2.45, 48.85}
	at10, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Point: &p})
	require.NoError(t, err)
	require.Len(t, at10, 1)

	c.JumpTo(canvas.Camera{Center: orb.Point{2.45, 48.85}, Zoom: 12.5})
	at12, err := c.QueryRenderedFeatures(canvas.RenderedQuery{Point: &p})
	require.NoError(t, err)
	require.Len(t, at12, 1)
	assert.NotEqual(t, at10[0].Ref.ID, at12[0].Ref.ID)
}

func TestDirFixtures(t *testing.T) {
	dir := t.TempDir()
	data, err := zones().MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones.geojson"), data, 0o644))

	c := New(Options{Fixtures: Dir(dir)})
	c.Load()
	require.NoError(t, c.AddSource("zones", style.Source{Type: "vector"}))
	require.NoError(t, c.AddSource("empty", style.Source{Type: "vector"}))

	fs, err := c.QuerySourceFeatures("zones", canvas.SourceQuery{})
	require.NoError(t, err)
	assert.Len(t, fs, 3)

	fs, err = c.QuerySourceFeatures("empty", canvas.SourceQuery{})
	require.NoError(t, err)
	assert.Empty(t, fs)
}
