package session

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// FilterByIDList shows layerID alone, restricted to features whose id
// field is in ids. The selection is reset and the camera stays put.
func (s *Session) FilterByIDList(layerID string, ids []string) {
	ids = append([]string(nil), ids...)
	s.run(op{name: "filterByIdList", layer: layerID, fn: func() error {
		_, _, err := s.filterLayer(layerID, ids)
		return err
	}})
}

// FilterAdministrativeUnits filters the administrative layer to ids and
// fits the camera to the matching features. When nothing matches the
// camera does not move.
func (s *Session) FilterAdministrativeUnits(ids []string) {
	ids = append([]string(nil), ids...)
	layerID := s.cat.AdministrativeLayer()
	s.run(op{name: "filterAdministrativeUnits", layer: layerID, fn: func() error {
		def, filter, err := s.filterLayer(layerID, ids)
		if err != nil {
			return err
		}
		return s.fitTo(def, filter)
	}})
}

// FilterAdministrativeUnitsCSV is FilterAdministrativeUnits over a comma
// separated list.
func (s *Session) FilterAdministrativeUnitsCSV(csv string) {
	s.FilterAdministrativeUnits(ParseIDList(csv))
}

// ParseIDList splits a comma separated list, trimming blanks and dropping
// empty entries.
func ParseIDList(csv string) []string {
	out := []string{}
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Session) filterLayer(layerID string, ids []string) (catalog.LayerDefinition, style.Expression, error) {
	def, err := s.cat.Lookup(layerID)
	if err != nil {
		return def, nil, err
	}
	if def.IDField == "" {
		return def, nil, maperr.Configuration("layer %q has no idField to filter on", def.ID)
	}
	s.resetSelection()
	if err := s.hideAll(); err != nil {
		return def, nil, err
	}
	if err := s.ensureLayerMaterialized(def, nil); err != nil {
		return def, nil, err
	}
	if err := s.setVisible(def, true); err != nil {
		return def, nil, err
	}
	s.render.visible = def.ID
	filter, err := s.applyIDFilter(def, ids)
	if err != nil {
		return def, nil, err
	}
	s.log.Debug().Str("layer", def.ID).Int("ids", len(ids)).Msg("filter applied")
	return def, filter, nil
}

// fitTo moves the camera over every source feature matching filter.
func (s *Session) fitTo(def catalog.LayerDefinition, filter style.Expression) error {
	feats, err := s.cv.QuerySourceFeatures(def.SourceID(), canvas.SourceQuery{
		SourceLayer: def.Source.SourceLayer,
		Filter:      filter,
	})
	if err != nil {
		return err
	}
	b, ok := outerBound(feats)
	if !ok {
		s.log.Debug().Str("layer", def.ID).Msg("no feature matches, camera unchanged")
		return nil
	}
	if err := s.cv.FitBounds(b, s.fitPadding); err != nil {
		return err
	}
	return s.rehighlight()
}

// outerBound is the bound of the outer rings of polygonal features.
func outerBound(feats []canvas.Feature) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	add := func(ring orb.Ring) {
		for _, p := range ring {
			if !found {
				b, found = orb.Bound{Min: p, Max: p}, true
				continue
			}
			b = b.Extend(p)
		}
	}
	for _, f := range feats {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			if len(g) > 0 {
				add(g[0])
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if len(poly) > 0 {
					add(poly[0])
				}
			}
		}
	}
	return b, found
}
