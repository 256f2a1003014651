// Package memory is a headless canvas. It keeps the render state a vector
// map SDK would keep (sources, ordered primitives, visibility, filters,
// paint, feature-state and camera) and renders GeoJSON fixtures through
// the same tile split a tiled source produces, so one entity crossing a
// tile edge renders as several parts.
package memory

import (
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// Options configures a headless canvas.
type Options struct {
	Width    int     // viewport width in px
	Height   int     // viewport height in px
	TileSize float64 // px per tile edge
	Camera   canvas.Camera
	// Fixtures resolves source ids to feature collections.
	Fixtures Fixtures
}

// Initial view over Paris.
var DefaultCamera = canvas.Camera{Center: orb.Point{2.361, 48.852}, Zoom: 10}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 768
	}
	if o.TileSize <= 0 {
		o.TileSize = 512
	}
	if o.Camera == (canvas.Camera{}) {
		o.Camera = DefaultCamera
	}
	if o.Fixtures == nil {
		o.Fixtures = Collections{}
	}
	return o
}

type source struct {
	spec     style.Source
	features []*geojson.Feature
	parts    map[uint32][]part // by tile zoom
}

type layer struct {
	style.Layer
	visible bool
}

// Canvas is an in-process canvas.Canvas.
type Canvas struct {
	mu      sync.Mutex
	opts    Options
	loaded  bool
	sources map[string]*source
	layers  []*layer
	state   map[canvas.FeatureRef]map[string]any
	camera  canvas.Camera
	cursor  string
	eval    *style.Evaluator
}

var _ canvas.Canvas = (*Canvas)(nil)

// New creates an unloaded canvas.
func New(opts Options) *Canvas {
	opts = opts.withDefaults()
	return &Canvas{
		opts:    opts,
		sources: make(map[string]*source),
		state:   make(map[canvas.FeatureRef]map[string]any),
		camera:  opts.Camera,
		eval:    style.NewEvaluator(),
	}
}

// Load marks the style as loaded. Until then every mutation fails with a
// not ready error.
func (c *Canvas) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
}

func (c *Canvas) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Canvas) HasSource(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sources[id]
	return ok
}

func (c *Canvas) AddSource(id string, src style.Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return maperr.NotReady("add source %q: style is not loaded", id)
	}
	if _, ok := c.sources[id]; ok {
		return maperr.Internal(nil, "there is already a source with id %q", id)
	}
	switch src.Type {
	case "vector", "geojson":
	default:
		return maperr.Configuration("source %q: unsupported type %q", id, src.Type)
	}
	fc, err := c.opts.Fixtures.Collection(id, src)
	if err != nil {
		return maperr.Internal(err, "load source %q", id)
	}
	var features []*geojson.Feature
	if fc != nil {
		features = fc.Features
	}
	c.sources[id] = &source{spec: src, features: features, parts: make(map[uint32][]part)}
	return nil
}

func (c *Canvas) HasLayer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layer(id) != nil
}

func (c *Canvas) AddLayer(l style.Layer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return maperr.NotReady("add layer %q: style is not loaded", l.ID)
	}
	if c.layer(l.ID) != nil {
		return maperr.Internal(nil, "there is already a layer with id %q", l.ID)
	}
	if _, ok := c.sources[l.Source]; !ok {
		return maperr.NotFound("layer %q: source %q not found", l.ID, l.Source)
	}
	if l.Type != style.TypeFill && l.Type != style.TypeSymbol {
		return maperr.Configuration("layer %q: unsupported type %q", l.ID, l.Type)
	}
	if len(l.Filter) > 0 {
		if _, err := style.Translate(l.Filter); err != nil {
			return maperr.Configuration("layer %q: invalid filter: %v", l.ID, err)
		}
	}
	l.Layout = copyMap(l.Layout)
	l.Paint = copyMap(l.Paint)
	c.layers = append(c.layers, &layer{Layer: l, visible: l.Visibility() != style.None})
	return nil
}

func (c *Canvas) SetVisibility(id string, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := c.mutable(id)
	if err != nil {
		return err
	}
	l.visible = visible
	if l.Layout == nil {
		l.Layout = map[string]any{}
	}
	if visible {
		l.Layout["visibility"] = style.Visible
	} else {
		l.Layout["visibility"] = style.None
	}
	return nil
}

func (c *Canvas) Visibility(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.layer(id)
	if l == nil {
		return false, maperr.NotFound("layer %q not found", id)
	}
	return l.visible, nil
}

func (c *Canvas) SetFilter(id string, filter style.Expression) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := c.mutable(id)
	if err != nil {
		return err
	}
	if len(filter) > 0 {
		if _, err := style.Translate(filter); err != nil {
			return maperr.Configuration("layer %q: invalid filter: %v", id, err)
		}
	}
	l.Filter = append(style.Expression(nil), filter...)
	return nil
}

func (c *Canvas) Filter(id string) (style.Expression, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.layer(id)
	if l == nil {
		return nil, maperr.NotFound("layer %q not found", id)
	}
	return append(style.Expression(nil), l.Filter...), nil
}

func (c *Canvas) SetPaintProperty(id, name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, err := c.mutable(id)
	if err != nil {
		return err
	}
	if l.Paint == nil {
		l.Paint = map[string]any{}
	}
	l.Paint[name] = value
	return nil
}

// Paint returns the current value of a paint property.
func (c *Canvas) Paint(id, name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.layer(id)
	if l == nil {
		return nil, false
	}
	v, ok := l.Paint[name]
	return v, ok
}

func (c *Canvas) SetFeatureState(ref canvas.FeatureRef, state map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return maperr.NotReady("set feature state: style is not loaded")
	}
	if _, ok := c.sources[ref.Source]; !ok {
		return maperr.NotFound("set feature state: source %q not found", ref.Source)
	}
	cur := c.state[ref]
	if cur == nil {
		cur = make(map[string]any, len(state))
		c.state[ref] = cur
	}
	for k, v := range state {
		cur[k] = v
	}
	return nil
}

func (c *Canvas) FeatureState(ref canvas.FeatureRef) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyMap(c.state[ref])
}

func (c *Canvas) Camera() canvas.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera
}

func (c *Canvas) JumpTo(cam canvas.Camera) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cam.Zoom = clampZoom(cam.Zoom)
	c.camera = cam
}

func (c *Canvas) FitBounds(b orb.Bound, padding float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return maperr.NotReady("fit bounds: style is not loaded")
	}
	cam, err := fit(b, padding, c.opts)
	if err != nil {
		return err
	}
	c.camera = cam
	return nil
}

func (c *Canvas) SetCursor(cursor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = cursor
}

func (c *Canvas) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Snapshot is the observable render state, for comparisons in tests and
// the debug API.
type Snapshot struct {
	Loaded  bool            `json:"loaded"`
	Sources []string        `json:"sources"`
	Layers  []LayerSnapshot `json:"layers"`
	Flagged int             `json:"flagged" doc:"Feature parts with a true feature-state flag"`
	Camera  canvas.Camera   `json:"camera"`
	Cursor  string          `json:"cursor,omitempty"`
}

// LayerSnapshot is one primitive in a Snapshot.
type LayerSnapshot struct {
	ID      string           `json:"id"`
	Type    string           `json:"type"`
	Source  string           `json:"source"`
	Visible bool             `json:"visible"`
	Filter  style.Expression `json:"filter,omitempty"`
}

// Snapshot captures the current state.
func (c *Canvas) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Loaded: c.loaded, Camera: c.camera, Cursor: c.cursor, Sources: []string{}, Layers: []LayerSnapshot{}}
	for id := range c.sources {
		s.Sources = append(s.Sources, id)
	}
	sort.Strings(s.Sources)
	for _, l := range c.layers {
		s.Layers = append(s.Layers, LayerSnapshot{
			ID: l.ID, Type: l.Type, Source: l.Source, Visible: l.visible,
			Filter: append(style.Expression(nil), l.Filter...),
		})
	}
	for _, st := range c.state {
		for _, v := range st {
			if b, ok := v.(bool); ok && b {
				s.Flagged++
				break
			}
		}
	}
	return s
}

func (c *Canvas) layer(id string) *layer {
	for _, l := range c.layers {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (c *Canvas) mutable(id string) (*layer, error) {
	if !c.loaded {
		return nil, maperr.NotReady("layer %q: style is not loaded", id)
	}
	l := c.layer(id)
	if l == nil {
		return nil, maperr.NotFound("layer %q not found", id)
	}
	return l, nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
