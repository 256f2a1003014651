package session

import (
	"errors"

	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// Overrides replace parts of a choropleth ramp for one activation.
// Empty fields keep the catalog value.
type Overrides struct {
	Property string    `json:"property,omitempty" doc:"Numeric feature property" example:"nv_moyen"`
	Breaks   []float64 `json:"breaks,omitempty" doc:"Ascending class breaks"`
	Colors   []string  `json:"colors,omitempty" doc:"One more colour than breaks"`
}

// Empty reports whether o changes nothing.
func (o *Overrides) Empty() bool {
	return o == nil || (o.Property == "" && o.Breaks == nil && o.Colors == nil)
}

// Ramp returns o as a partial ramp.
func (o *Overrides) Ramp() style.Ramp {
	if o == nil {
		return style.Ramp{}
	}
	return style.Ramp{Property: o.Property, Breaks: o.Breaks, Colors: o.Colors}
}

func (o *Overrides) clone() *Overrides {
	if o.Empty() {
		return nil
	}
	return &Overrides{
		Property: o.Property,
		Breaks:   append([]float64(nil), o.Breaks...),
		Colors:   append([]string(nil), o.Colors...),
	}
}

// Primitives builds the render primitives of def: the fill first, then the
// label primitive when def has labels. Both start hidden.
func Primitives(def catalog.LayerDefinition, o *Overrides) ([]style.Layer, error) {
	paint, err := fillPaint(def, o)
	if err != nil {
		return nil, err
	}
	main := style.Layer{
		ID:          def.MainPrimitiveID(),
		Type:        style.TypeFill,
		Source:      def.SourceID(),
		SourceLayer: def.Source.SourceLayer,
		Layout:      map[string]any{"visibility": style.None},
		Paint:       paint,
	}
	if def.Zoom != nil {
		main.MinZoom, main.MaxZoom = def.Zoom.Min, def.Zoom.Max
	}
	out := []style.Layer{main}

	if lb := def.Labels; lb != nil {
		out = append(out, style.Layer{
			ID:          def.LabelPrimitiveID(),
			Type:        style.TypeSymbol,
			Source:      def.SourceID(),
			SourceLayer: def.Source.SourceLayer,
			MinZoom:     main.MinZoom,
			MaxZoom:     main.MaxZoom,
			Layout: map[string]any{
				"visibility":  style.None,
				"text-field":  style.Get(lb.Field),
				"text-size":   lb.Size,
				"text-anchor": "center",
			},
			Paint: map[string]any{
				"text-color":      lb.Color,
				"text-halo-color": lb.HaloColor,
				"text-halo-width": lb.HaloWidth,
			},
		})
	}
	return out, nil
}

func fillPaint(def catalog.LayerDefinition, o *Overrides) (map[string]any, error) {
	switch def.Kind {
	case catalog.KindChoropleth:
		ramp := def.Choropleth.Ramp().Merge(o.Ramp())
		if err := ramp.Validate(); err != nil {
			return nil, err
		}
		return map[string]any{
			"fill-color":         ramp.Expression(),
			"fill-opacity":       def.Choropleth.Opacity,
			"fill-outline-color": def.Choropleth.Outline,
		}, nil
	case catalog.KindPlain, catalog.KindFilterable:
		fill, ok := def.Fill()
		if !ok {
			return nil, maperr.Configuration("layer %q has no %s style", def.ID, def.Kind)
		}
		var color any = fill.Fill
		if def.Kind == catalog.KindPlain && def.Plain.Highlight != nil {
			h := def.Plain.Highlight
			color = style.FlagColor(h.State, h.Color, fill.Fill)
		}
		return map[string]any{
			"fill-color":         color,
			"fill-opacity":       fill.Opacity,
			"fill-outline-color": fill.Outline,
		}, nil
	}
	return nil, maperr.Configuration("layer %q has unknown kind %q", def.ID, def.Kind)
}

// ensureSourceRegistered adds the source of def once per session.
func (s *Session) ensureSourceRegistered(def catalog.LayerDefinition) error {
	id := def.SourceID()
	if s.render.sources[id] {
		return nil
	}
	if s.cv.HasSource(id) {
		s.render.sources[id] = true
		return nil
	}
	if !s.cv.Loaded() {
		return maperr.NotReady("register source %q: canvas not loaded", id)
	}
	if err := s.cv.AddSource(id, style.Source{Type: def.Source.Type, URL: def.Source.URL}); err != nil {
		return err
	}
	s.render.sources[id] = true
	s.log.Debug().Str("source", id).Str("url", def.Source.URL).Msg("source registered")
	return nil
}

// ensureLayerMaterialized creates the primitives of def, hidden. When the
// fill primitive already exists it only adds a missing label primitive.
func (s *Session) ensureLayerMaterialized(def catalog.LayerDefinition, o *Overrides) error {
	if s.cv.HasLayer(def.MainPrimitiveID()) {
		s.render.layers[def.MainPrimitiveID()] = true
		if def.Labels == nil || s.cv.HasLayer(def.LabelPrimitiveID()) {
			return nil
		}
	}
	if err := s.ensureSourceRegistered(def); err != nil {
		return err
	}
	prims, err := Primitives(def, o)
	if err != nil {
		return err
	}
	for i, p := range prims {
		if s.cv.HasLayer(p.ID) {
			continue
		}
		if err := s.cv.AddLayer(p); err != nil {
			return err
		}
		s.render.layers[p.ID] = true
		if i == 0 && def.Kind == catalog.KindChoropleth {
			s.render.overridden[def.ID] = !o.Empty()
		}
	}
	if def.Interactive() {
		s.bind(def)
	}
	s.log.Debug().Str("layer", def.ID).Int("primitives", len(prims)).Msg("layer materialized")
	return nil
}

// syncRamp repaints an existing choropleth when the requested ramp differs
// from the one it was painted with.
func (s *Session) syncRamp(def catalog.LayerDefinition, o *Overrides) error {
	if def.Kind != catalog.KindChoropleth {
		return nil
	}
	if o.Empty() && !s.render.overridden[def.ID] {
		return nil
	}
	ramp := def.Choropleth.Ramp().Merge(o.Ramp())
	if err := ramp.Validate(); err != nil {
		return err
	}
	if err := s.cv.SetPaintProperty(def.MainPrimitiveID(), "fill-color", ramp.Expression()); err != nil {
		return err
	}
	s.render.overridden[def.ID] = !o.Empty()
	return nil
}

// setVisible toggles every primitive def owns.
func (s *Session) setVisible(def catalog.LayerDefinition, visible bool) error {
	if !s.cv.HasLayer(def.MainPrimitiveID()) {
		return maperr.NotFound("layer %q is not materialized", def.ID)
	}
	for _, id := range def.PrimitiveIDs() {
		if !s.cv.HasLayer(id) {
			continue
		}
		if err := s.cv.SetVisibility(id, visible); err != nil {
			return err
		}
	}
	return nil
}

// hideAll hides every materialized primitive of the catalog. It keeps
// going past failures and returns them joined.
func (s *Session) hideAll() error {
	var errs []error
	for _, def := range s.cat.Definitions() {
		for _, id := range def.PrimitiveIDs() {
			if !s.cv.HasLayer(id) {
				continue
			}
			if err := s.cv.SetVisibility(id, false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.render.visible = ""
	return errors.Join(errs...)
}

// applyIDFilter restricts def and its labels to features whose id field is
// in ids. Duplicates are dropped; an empty list hides every feature.
func (s *Session) applyIDFilter(def catalog.LayerDefinition, ids []string) (style.Expression, error) {
	if def.IDField == "" {
		return nil, maperr.Configuration("layer %q has no idField to filter on", def.ID)
	}
	if !s.cv.HasLayer(def.MainPrimitiveID()) {
		return nil, maperr.NotFound("layer %q is not materialized", def.ID)
	}
	filter := style.InFilter(def.IDField, dedupe(ids))
	for _, id := range def.PrimitiveIDs() {
		if !s.cv.HasLayer(id) {
			continue
		}
		if err := s.cv.SetFilter(id, filter); err != nil {
			return nil, err
		}
	}
	return filter, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
