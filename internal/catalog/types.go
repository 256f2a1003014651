// Package catalog holds the immutable set of layer definitions a map
// session can show.
package catalog

import "github.com/joeblew999/plat-mapbridge/internal/style"

// Kind selects the style variant of a layer.
type Kind string

const (
	KindPlain      Kind = "plain"
	KindChoropleth Kind = "choropleth"
	KindFilterable Kind = "filterable"
)

// Interaction modes.
const (
	ModeClicked = "clicked"
	ModeToggle  = "toggle"
)

// Feature-state flags set by the interaction modes.
const (
	FlagClicked  = "clicked"
	FlagSelected = "selected"
)

// LayerDefinition describes one catalog layer. Exactly one of Plain,
// Choropleth and Filterable is set, matching Kind.
type LayerDefinition struct {
	ID          string           `json:"id" yaml:"id" doc:"Layer ID" example:"iris"`
	Kind        Kind             `json:"kind" yaml:"kind" doc:"Style variant" enum:"plain,choropleth,filterable"`
	Source      SourceRef        `json:"source" yaml:"source"`
	IDField     string           `json:"idField,omitempty" yaml:"idField,omitempty" doc:"Feature property holding the external ID" example:"CODE_IRIS"`
	Plain       *PlainStyle      `json:"plain,omitempty" yaml:"plain,omitempty"`
	Choropleth  *ChoroplethStyle `json:"choropleth,omitempty" yaml:"choropleth,omitempty"`
	Filterable  *FillStyle       `json:"filterable,omitempty" yaml:"filterable,omitempty"`
	Labels      *LabelStyle      `json:"labels,omitempty" yaml:"labels,omitempty"`
	Interaction *Interaction     `json:"interaction,omitempty" yaml:"interaction,omitempty"`
	Zoom        *ZoomRange       `json:"zoom,omitempty" yaml:"zoom,omitempty"`
}

// SourceRef points at a remote vector tile source.
type SourceRef struct {
	Type        string `json:"type" yaml:"type" doc:"Source type" example:"vector"`
	URL         string `json:"url" yaml:"url" doc:"Tile source URL"`
	SourceLayer string `json:"sourceLayer" yaml:"sourceLayer" doc:"Layer name inside the tileset"`
}

// FillStyle is a static polygon fill.
type FillStyle struct {
	Fill    string  `json:"fill" yaml:"fill" example:"#2C3E50"`
	Opacity float64 `json:"opacity" yaml:"opacity" example:"0.8"`
	Outline string  `json:"outline" yaml:"outline" example:"#FFFFFF"`
}

// PlainStyle is a static fill with an optional feature-state highlight.
type PlainStyle struct {
	FillStyle `yaml:",inline"`
	Highlight *Highlight `json:"highlight,omitempty" yaml:"highlight,omitempty"`
}

// Highlight paints features whose State flag is set.
type Highlight struct {
	State string `json:"state" yaml:"state" enum:"clicked,selected"`
	Color string `json:"color" yaml:"color" example:"#FF0000"`
}

// ChoroplethStyle is a stepped colour ramp over a numeric property.
type ChoroplethStyle struct {
	Property string    `json:"property" yaml:"property" example:"nv_moyen"`
	Breaks   []float64 `json:"breaks" yaml:"breaks"`
	Colors   []string  `json:"colors" yaml:"colors"`
	Opacity  float64   `json:"opacity" yaml:"opacity"`
	Outline  string    `json:"outline" yaml:"outline"`
}

// Ramp returns the colour ramp of the style.
func (c ChoroplethStyle) Ramp() style.Ramp {
	return style.Ramp{Property: c.Property, Breaks: c.Breaks, Colors: c.Colors}
}

// LabelStyle draws a text label from a feature property.
type LabelStyle struct {
	Field     string  `json:"field" yaml:"field" example:"NOM_IRIS"`
	Size      float64 `json:"size" yaml:"size"`
	Color     string  `json:"color" yaml:"color"`
	HaloColor string  `json:"haloColor" yaml:"haloColor"`
	HaloWidth float64 `json:"haloWidth" yaml:"haloWidth"`
}

// Interaction binds pointer events on the layer.
type Interaction struct {
	Mode         string        `json:"mode" yaml:"mode" enum:"clicked,toggle"`
	GroupTag     string        `json:"groupTag,omitempty" yaml:"groupTag,omitempty" example:"com"`
	Cursor       string        `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	SpecialCases *SpecialCases `json:"specialCases,omitempty" yaml:"specialCases,omitempty"`
}

// SpecialCases remaps sentinel IDs to the value of another field.
type SpecialCases struct {
	IDs            []string `json:"ids" yaml:"ids"`
	AlternateField string   `json:"alternateField" yaml:"alternateField"`
}

// Contains reports whether id is a sentinel.
func (s *SpecialCases) Contains(id string) bool {
	if s == nil {
		return false
	}
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// ZoomRange limits the zoom levels a layer renders at.
type ZoomRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// MainPrimitiveID is the id of the fill primitive of a layer.
func (d LayerDefinition) MainPrimitiveID() string {
	if d.Kind == KindChoropleth {
		return d.ID + "-choropleth"
	}
	return d.ID
}

// LabelPrimitiveID is the id of the label primitive of a layer.
func (d LayerDefinition) LabelPrimitiveID() string {
	return d.ID + "-labels"
}

// SourceID is the id the layer's source is registered under.
func (d LayerDefinition) SourceID() string {
	return d.ID
}

// PrimitiveIDs lists the primitives the layer may own, main first.
func (d LayerDefinition) PrimitiveIDs() []string {
	ids := []string{d.MainPrimitiveID()}
	if d.Labels != nil {
		ids = append(ids, d.LabelPrimitiveID())
	}
	return ids
}

// Interactive reports whether the layer reacts to clicks.
func (d LayerDefinition) Interactive() bool {
	return d.Interaction != nil
}

// Fill returns the static fill style for plain and filterable layers.
func (d LayerDefinition) Fill() (FillStyle, bool) {
	switch {
	case d.Kind == KindPlain && d.Plain != nil:
		return d.Plain.FillStyle, true
	case d.Kind == KindFilterable && d.Filterable != nil:
		return *d.Filterable, true
	}
	return FillStyle{}, false
}
