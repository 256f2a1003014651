// Package tiles encodes the fixture sources of the headless canvas as
// Mapbox vector tiles, so a browser map can draw the same features the
// sessions query. Tiles are served one by one or packed into a PMTiles
// archive.
package tiles

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// MaxZoom is the deepest tile served.
const MaxZoom = 16

// Encoder builds tiles for catalog layers from fixtures.
type Encoder struct {
	Catalog  *catalog.Catalog
	Fixtures memory.Fixtures
}

// Tile returns the gzipped tile t of layerID's source. The tile layer is
// named after the catalog source layer. Empty tiles return nil.
func (e Encoder) Tile(layerID string, t maptile.Tile) ([]byte, error) {
	if t.Z > MaxZoom || !t.Valid() {
		return nil, maperr.Interaction("tile %d/%d/%d out of range", t.Z, t.X, t.Y)
	}
	def, fc, err := e.collection(layerID)
	if err != nil {
		return nil, err
	}
	return Encode(fc, t, def.Source.SourceLayer)
}

// Pyramid encodes every non-empty tile of layerID between minZ and maxZ.
func (e Encoder) Pyramid(layerID string, minZ, maxZ maptile.Zoom) (map[maptile.Tile][]byte, error) {
	if minZ > maxZ || maxZ > MaxZoom {
		return nil, maperr.Configuration("zoom range %d-%d is invalid", minZ, maxZ)
	}
	def, fc, err := e.collection(layerID)
	if err != nil {
		return nil, err
	}

	out := make(map[maptile.Tile][]byte)
	bound, ok := extent(fc)
	if !ok {
		return out, nil
	}
	for z := minZ; z <= maxZ; z++ {
		for _, t := range tilesInBounds(bound, z) {
			data, err := Encode(fc, t, def.Source.SourceLayer)
			if err != nil {
				return nil, err
			}
			if data != nil {
				out[t] = data
			}
		}
	}
	return out, nil
}

func (e Encoder) collection(layerID string) (catalog.LayerDefinition, *geojson.FeatureCollection, error) {
	def, err := e.Catalog.Lookup(layerID)
	if err != nil {
		return def, nil, err
	}
	fc, err := e.Fixtures.Collection(def.SourceID(), style.Source{Type: def.Source.Type, URL: def.Source.URL})
	if err != nil {
		return def, nil, maperr.Internal(err, "load fixtures of %q", def.ID)
	}
	return def, fc, nil
}

// Encode clips the features of fc to t and returns the gzipped tile, or
// nil when nothing falls inside.
func Encode(fc *geojson.FeatureCollection, t maptile.Tile, layerName string) ([]byte, error) {
	if fc == nil {
		return nil, nil
	}
	tb := t.Bound()
	in := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil || !f.Geometry.Bound().Intersects(tb) {
			continue
		}
		// Clip and ProjectToTile mutate geometries in place.
		clone := geojson.NewFeature(orb.Clone(f.Geometry))
		clone.ID = f.ID
		for k, v := range f.Properties {
			clone.Properties[k] = v
		}
		in.Append(clone)
	}
	if len(in.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(layerName, in)
	if eps := simplifyEpsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(tb)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, maperr.Internal(err, "encode tile %d/%d/%d", t.Z, t.X, t.Y)
	}
	return data, nil
}

// extent is the bound of the features of fc that have a geometry.
func extent(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	if fc == nil {
		return bound, false
	}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			bound, found = f.Geometry.Bound(), true
		} else {
			bound = bound.Union(f.Geometry.Bound())
		}
	}
	return bound, found
}

// tilesInBounds returns the tiles of zoom z covering b.
func tilesInBounds(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	minT := maptile.At(orb.Point{b.Min[0], b.Max[1]}, z)
	maxT := maptile.At(orb.Point{b.Max[0], b.Min[1]}, z)

	var out []maptile.Tile
	for x := minT.X; x <= maxT.X; x++ {
		for y := minT.Y; y <= maxT.Y; y++ {
			out = append(out, maptile.New(x, y, z))
		}
	}
	return out
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees. IRIS units
// are a few hundred metres wide, so it stays well below that.
func simplifyEpsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 14:
		return 0
	case z >= 10:
		return 0.00001
	case z >= 6:
		return 0.0001
	default:
		return 0.0005
	}
}
