// Package canvas defines the contract of the vector map rendering SDK the
// session drives. Implementations own tile fetching, painting and camera
// math; callers only see sources, primitives and rendered features.
package canvas

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// FeatureRef addresses one rendered feature part for feature-state.
type FeatureRef struct {
	Source      string `json:"source"`
	SourceLayer string `json:"sourceLayer"`
	ID          uint64 `json:"id"`
}

// Feature is a rendered or source feature part.
type Feature struct {
	Ref        FeatureRef     `json:"ref"`
	Layer      string         `json:"layer,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   orb.Geometry   `json:"-"`
	State      map[string]any `json:"state,omitempty"`
}

// Camera is the current view.
type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// RenderedQuery selects rendered features. Empty Layers means every
// visible layer; a nil Point means the whole viewport.
type RenderedQuery struct {
	Layers []string
	Point  *orb.Point
}

// SourceQuery selects features of a source regardless of visibility.
type SourceQuery struct {
	SourceLayer string
	Filter      style.Expression
}

// Canvas is the map SDK surface.
type Canvas interface {
	// Loaded reports whether the canvas accepts sources and layers.
	Loaded() bool

	HasSource(id string) bool
	AddSource(id string, src style.Source) error

	HasLayer(id string) bool
	AddLayer(layer style.Layer) error
	SetVisibility(layerID string, visible bool) error
	Visibility(layerID string) (bool, error)
	SetFilter(layerID string, filter style.Expression) error
	Filter(layerID string) (style.Expression, error)
	SetPaintProperty(layerID, name string, value any) error

	SetFeatureState(ref FeatureRef, state map[string]any) error
	FeatureState(ref FeatureRef) map[string]any

	QueryRenderedFeatures(q RenderedQuery) ([]Feature, error)
	QuerySourceFeatures(sourceID string, q SourceQuery) ([]Feature, error)

	Camera() Camera
	JumpTo(cam Camera)
	FitBounds(b orb.Bound, padding float64) error

	SetCursor(cursor string)
	Cursor() string
}
