package memory

import (
	"fmt"
	"hash/fnv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// part is one feature clipped to one tile.
type part struct {
	id    uint64
	tile  maptile.Tile
	props map[string]any
	geom  orb.Geometry
}

// renderID is stable for a (feature, tile) pair and distinct across tiles.
func renderID(source string, index int, t maptile.Tile) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s/%d/%d/%d/%d", source, index, t.Z, t.X, t.Y)
	return h.Sum64()
}

// partsAt splits every feature of s across the tiles it touches at z.
func (s *source) partsAt(id string, z maptile.Zoom) []part {
	if ps, ok := s.parts[uint32(z)]; ok {
		return ps
	}
	var out []part
	for i, f := range s.features {
		if f == nil || f.Geometry == nil {
			continue
		}
		for _, t := range tilesInBounds(f.Geometry.Bound(), z) {
			// clip uses its input as scratch space
			g := clip.Geometry(t.Bound(), orb.Clone(f.Geometry))
			if g == nil || isEmpty(g) {
				continue
			}
			out = append(out, part{
				id:    renderID(id, i, t),
				tile:  t,
				props: f.Properties,
				geom:  g,
			})
		}
	}
	s.parts[uint32(z)] = out
	return out
}

func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 4
	case orb.MultiPolygon:
		return len(g) == 0
	}
	return false
}

// QueryRenderedFeatures returns the parts of visible layers drawn in the
// viewport, topmost layer first. With a point, only parts under it.
func (c *Canvas) QueryRenderedFeatures(q canvas.RenderedQuery) ([]canvas.Feature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, maperr.NotReady("query rendered features: style is not loaded")
	}

	want := map[string]bool{}
	for _, id := range q.Layers {
		if c.layer(id) == nil {
			return nil, maperr.NotFound("query rendered features: layer %q not found", id)
		}
		want[id] = true
	}

	z := tileZoom(c.camera.Zoom)
	inView := map[maptile.Tile]bool{}
	for _, t := range tilesInBounds(viewport(c.camera, c.opts), z) {
		inView[t] = true
	}

	var out []canvas.Feature
	for i := len(c.layers) - 1; i >= 0; i-- {
		l := c.layers[i]
		if len(want) > 0 && !want[l.ID] {
			continue
		}
		if !l.visible || !c.inZoomRange(l) {
			continue
		}
		src := c.sources[l.Source]
		for _, p := range src.partsAt(l.Source, z) {
			if !inView[p.tile] {
				continue
			}
			if q.Point != nil && !contains(p.geom, *q.Point) {
				continue
			}
			ref := canvas.FeatureRef{Source: l.Source, SourceLayer: l.SourceLayer, ID: p.id}
			state := c.state[ref]
			if !c.eval.Match(l.Filter, p.props, state) {
				continue
			}
			out = append(out, canvas.Feature{
				Ref:        ref,
				Layer:      l.ID,
				Properties: copyMap(p.props),
				Geometry:   p.geom,
				State:      copyMap(state),
			})
		}
	}
	return out, nil
}

// QuerySourceFeatures returns every part of the source at the current tile
// zoom matching the filter, whether or not a layer shows it.
func (c *Canvas) QuerySourceFeatures(sourceID string, q canvas.SourceQuery) ([]canvas.Feature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil, maperr.NotReady("query source features: style is not loaded")
	}
	src, ok := c.sources[sourceID]
	if !ok {
		return nil, maperr.NotFound("query source features: source %q not found", sourceID)
	}
	var out []canvas.Feature
	for _, p := range src.partsAt(sourceID, tileZoom(c.camera.Zoom)) {
		if !c.eval.Match(q.Filter, p.props, nil) {
			continue
		}
		ref := canvas.FeatureRef{Source: sourceID, SourceLayer: q.SourceLayer, ID: p.id}
		out = append(out, canvas.Feature{
			Ref:        ref,
			Properties: copyMap(p.props),
			Geometry:   p.geom,
			State:      copyMap(c.state[ref]),
		})
	}
	return out, nil
}

// PaintValue evaluates a paint property of a layer for one rendered part.
func (c *Canvas) PaintValue(layerID, name string, f canvas.Feature) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.layer(layerID)
	if l == nil {
		return nil, maperr.NotFound("layer %q not found", layerID)
	}
	v, ok := l.Paint[name]
	if !ok {
		return nil, maperr.NotFound("layer %q has no paint property %q", layerID, name)
	}
	return c.eval.Eval(v, f.Properties, c.state[f.Ref])
}

func (c *Canvas) inZoomRange(l *layer) bool {
	z := c.camera.Zoom
	if l.MinZoom > 0 && z < l.MinZoom {
		return false
	}
	if l.MaxZoom > 0 && z >= l.MaxZoom {
		return false
	}
	return true
}

func contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	}
	return false
}
