package session

import (
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// binding is the click handler installed for an interactive layer.
type binding struct {
	def catalog.LayerDefinition
}

func (s *Session) bind(def catalog.LayerDefinition) {
	if _, ok := s.bindings[def.ID]; ok {
		return
	}
	s.bindings[def.ID] = binding{def: def}
	s.log.Debug().Str("layer", def.ID).Str("mode", def.Interaction.Mode).Msg("click handler bound")
}

// selection is the interaction state. It belongs to one layer at a time;
// touching another layer resets it first.
type selection struct {
	layer   string
	group   string
	ids     []string
	parts   map[string][]canvas.FeatureRef
	clicked *clickedFeature
}

type clickedFeature struct {
	layer      string
	externalID string
	parts      []canvas.FeatureRef
}

func newSelection() selection {
	return selection{parts: make(map[string][]canvas.FeatureRef)}
}

// ClickEvent is a primary click on a layer. Point is the clicked location;
// FeatureID picks one rendered part directly. At least one must be set.
type ClickEvent struct {
	LayerID   string
	Point     *orb.Point
	FeatureID *uint64
}

// HandleClick routes a click to the interaction mode of its layer.
func (s *Session) HandleClick(ev ClickEvent) {
	s.run(op{name: "click", layer: ev.LayerID, fn: func() error {
		return s.click(ev)
	}})
}

// HandlePointer switches the cursor as the pointer enters or leaves an
// interactive layer. Layers without a binding are ignored.
func (s *Session) HandlePointer(layerID string, over bool) {
	s.run(op{name: "pointer", layer: layerID, fn: func() error {
		b, ok := s.bindings[layerID]
		if !ok {
			return nil
		}
		cursor := ""
		if over {
			cursor = b.def.Interaction.Cursor
		}
		s.cv.SetCursor(cursor)
		return nil
	}})
}

// HandlePointerEnter shows the layer cursor.
func (s *Session) HandlePointerEnter(layerID string) { s.HandlePointer(layerID, true) }

// HandlePointerLeave restores the default cursor.
func (s *Session) HandlePointerLeave(layerID string) { s.HandlePointer(layerID, false) }

// HandleCameraMove moves the camera and re-flags the parts of tracked
// features, since a new tile zoom renders them as different parts.
func (s *Session) HandleCameraMove(cam canvas.Camera) {
	s.run(op{name: "cameraMove", fn: func() error {
		s.cv.JumpTo(cam)
		return s.rehighlight()
	}})
}

func (s *Session) click(ev ClickEvent) error {
	b, ok := s.bindings[ev.LayerID]
	if !ok {
		return maperr.NotFound("no click handler on layer %q", ev.LayerID)
	}
	f, err := s.pick(b.def, ev)
	if err != nil {
		return err
	}
	if s.sel.layer != b.def.ID {
		s.resetSelection()
		s.sel.layer = b.def.ID
		s.sel.group = b.def.Interaction.GroupTag
	}
	switch b.def.Interaction.Mode {
	case catalog.ModeClicked:
		return s.clickSingle(b.def, f)
	case catalog.ModeToggle:
		return s.toggle(b.def, f)
	}
	return maperr.Configuration("layer %q has unknown interaction mode %q", b.def.ID, b.def.Interaction.Mode)
}

func (s *Session) pick(def catalog.LayerDefinition, ev ClickEvent) (canvas.Feature, error) {
	if ev.Point == nil && ev.FeatureID == nil {
		return canvas.Feature{}, maperr.Interaction("click on %q has neither a point nor a feature", def.ID)
	}
	feats, err := s.cv.QueryRenderedFeatures(canvas.RenderedQuery{
		Layers: []string{def.MainPrimitiveID()},
		Point:  ev.Point,
	})
	if err != nil {
		return canvas.Feature{}, err
	}
	for _, f := range feats {
		if ev.FeatureID == nil || f.Ref.ID == *ev.FeatureID {
			return f, nil
		}
	}
	return canvas.Feature{}, maperr.Interaction("no rendered feature of %q under the click", def.ID)
}

// clickSingle flags every rendered part of the clicked entity and clears
// the previous one.
func (s *Session) clickSingle(def catalog.LayerDefinition, f canvas.Feature) error {
	id, err := s.resolveID(def, f.Properties, false)
	if err != nil {
		return err
	}
	parts, err := s.partsOf(def, id, false)
	if err != nil {
		return err
	}
	parts = withRef(parts, f.Ref)

	var previous []canvas.FeatureRef
	if c := s.sel.clicked; c != nil {
		previous = c.parts
	}
	if err := s.reflag(previous, parts, catalog.FlagClicked); err != nil {
		return err
	}
	s.sel.clicked = &clickedFeature{layer: def.ID, externalID: id, parts: parts}
	s.log.Debug().Str("layer", def.ID).Str("id", id).Int("parts", len(parts)).Msg("feature clicked")
	s.host.MapClicked(def.ID, id)
	return nil
}

// toggle adds or removes the clicked entity from the ordered selection and
// reports the whole selection.
func (s *Session) toggle(def catalog.LayerDefinition, f canvas.Feature) error {
	id, err := s.resolveID(def, f.Properties, true)
	if err != nil {
		return err
	}
	if i := indexOf(s.sel.ids, id); i >= 0 {
		current, err := s.partsOf(def, id, true)
		if err != nil {
			return err
		}
		stale := append(append([]canvas.FeatureRef{}, s.sel.parts[id]...), current...)
		if err := s.flag(stale, catalog.FlagSelected, false); err != nil {
			return err
		}
		s.sel.ids = append(s.sel.ids[:i:i], s.sel.ids[i+1:]...)
		delete(s.sel.parts, id)
	} else {
		parts, err := s.partsOf(def, id, true)
		if err != nil {
			return err
		}
		parts = withRef(parts, f.Ref)
		if err := s.flag(parts, catalog.FlagSelected, true); err != nil {
			return err
		}
		s.sel.ids = append(s.sel.ids, id)
		s.sel.parts[id] = parts
	}
	s.log.Debug().Str("layer", def.ID).Str("id", id).Strs("selected", s.sel.ids).Msg("selection toggled")
	s.host.SelectedFeatures(def.Interaction.GroupTag, append([]string{}, s.sel.ids...))
	return nil
}

// resolveID reads the external id of a feature. In toggle mode special
// case ids are replaced by the value of the alternate field.
func (s *Session) resolveID(def catalog.LayerDefinition, props map[string]any, remap bool) (string, error) {
	id := ""
	if raw, ok := props[def.IDField]; ok && raw != nil {
		id = style.FormatValue(raw)
	}
	if id == "" {
		return "", maperr.Interaction("feature of %q has no %s", def.ID, def.IDField)
	}
	sc := def.Interaction.SpecialCases
	if !remap || !sc.Contains(id) {
		return id, nil
	}
	if raw, ok := props[sc.AlternateField]; ok && raw != nil {
		if alt := style.FormatValue(raw); alt != "" {
			return alt, nil
		}
	}
	s.log.Warn().Str("layer", def.ID).Str("id", id).Str("field", sc.AlternateField).Msg("special case id without alternate value")
	return id, nil
}

// partsOf lists the rendered parts of the entity with external id.
func (s *Session) partsOf(def catalog.LayerDefinition, id string, remap bool) ([]canvas.FeatureRef, error) {
	feats, err := s.cv.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{def.MainPrimitiveID()}})
	if err != nil {
		return nil, err
	}
	var out []canvas.FeatureRef
	for _, f := range feats {
		got, err := s.resolveID(def, f.Properties, remap)
		if err != nil || got != id {
			continue
		}
		out = withRef(out, f.Ref)
	}
	return out, nil
}

func (s *Session) flag(refs []canvas.FeatureRef, name string, on bool) error {
	var errs []error
	for _, ref := range refs {
		if err := s.cv.SetFeatureState(ref, map[string]any{name: on}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reflag clears name on the parts of previous that are not in next, then
// sets it on next.
func (s *Session) reflag(previous, next []canvas.FeatureRef, name string) error {
	var stale []canvas.FeatureRef
	for _, ref := range previous {
		if !hasRef(next, ref) {
			stale = append(stale, ref)
		}
	}
	return errors.Join(s.flag(stale, name, false), s.flag(next, name, true))
}

// resetSelection clears both interaction modes and their flags.
func (s *Session) resetSelection() {
	var errs []error
	if c := s.sel.clicked; c != nil {
		errs = append(errs, s.flag(c.parts, catalog.FlagClicked, false))
	}
	for _, id := range s.sel.ids {
		errs = append(errs, s.flag(s.sel.parts[id], catalog.FlagSelected, false))
	}
	if err := errors.Join(errs...); err != nil {
		s.fail(op{name: "resetSelection", layer: s.sel.layer}, err)
	}
	s.sel = newSelection()
}

// rehighlight re-resolves the parts of tracked entities against what is
// rendered now.
func (s *Session) rehighlight() error {
	var errs []error
	if c := s.sel.clicked; c != nil {
		if def, err := s.cat.Lookup(c.layer); err == nil {
			parts, err := s.partsOf(def, c.externalID, false)
			if err == nil {
				err = s.reflag(c.parts, parts, catalog.FlagClicked)
				c.parts = parts
			}
			errs = append(errs, err)
		}
	}
	if len(s.sel.ids) > 0 {
		def, err := s.cat.Lookup(s.sel.layer)
		if err != nil {
			return err
		}
		for _, id := range s.sel.ids {
			parts, err := s.partsOf(def, id, true)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			errs = append(errs, s.reflag(s.sel.parts[id], parts, catalog.FlagSelected))
			s.sel.parts[id] = parts
		}
	}
	return errors.Join(errs...)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func hasRef(refs []canvas.FeatureRef, ref canvas.FeatureRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func withRef(refs []canvas.FeatureRef, ref canvas.FeatureRef) []canvas.FeatureRef {
	if hasRef(refs, ref) {
		return refs
	}
	return append(refs, ref)
}
