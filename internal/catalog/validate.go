package catalog

import (
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// Label defaults applied when a label style leaves a field empty.
const (
	DefaultLabelSize      = 12
	DefaultLabelColor     = "#000"
	DefaultLabelHaloColor = "#fff"
	DefaultLabelHaloWidth = 1
)

// Validate checks that d is a well formed tagged union.
func (d LayerDefinition) Validate() error {
	if d.ID == "" {
		return maperr.Configuration("layer id is required")
	}
	if d.Source.URL == "" {
		return maperr.Configuration("layer %q: source url is required", d.ID)
	}
	if d.Source.SourceLayer == "" {
		return maperr.Configuration("layer %q: source layer is required", d.ID)
	}

	variants := 0
	for _, set := range []bool{d.Plain != nil, d.Choropleth != nil, d.Filterable != nil} {
		if set {
			variants++
		}
	}
	if variants != 1 {
		return maperr.Configuration("layer %q: exactly one style variant must be set, got %d", d.ID, variants)
	}

	switch d.Kind {
	case KindPlain:
		if d.Plain == nil {
			return maperr.Configuration("layer %q: plain layer needs a plain style", d.ID)
		}
		if err := validateFill(d.ID, d.Plain.FillStyle); err != nil {
			return err
		}
		if h := d.Plain.Highlight; h != nil {
			if h.State != FlagClicked && h.State != FlagSelected {
				return maperr.Configuration("layer %q: highlight state %q must be %q or %q", d.ID, h.State, FlagClicked, FlagSelected)
			}
			if h.Color == "" {
				return maperr.Configuration("layer %q: highlight color is required", d.ID)
			}
		}
	case KindChoropleth:
		if d.Choropleth == nil {
			return maperr.Configuration("layer %q: choropleth layer needs a choropleth style", d.ID)
		}
		if err := d.Choropleth.Ramp().Validate(); err != nil {
			return maperr.Configuration("layer %q: %s", d.ID, maperr.Message(err))
		}
		if d.Choropleth.Opacity < 0 || d.Choropleth.Opacity > 1 {
			return maperr.Configuration("layer %q: opacity %v out of [0,1]", d.ID, d.Choropleth.Opacity)
		}
	case KindFilterable:
		if d.Filterable == nil {
			return maperr.Configuration("layer %q: filterable layer needs a filterable style", d.ID)
		}
		if err := validateFill(d.ID, *d.Filterable); err != nil {
			return err
		}
		if d.IDField == "" {
			return maperr.Configuration("layer %q: filterable layer needs an idField", d.ID)
		}
	default:
		return maperr.Configuration("layer %q: unknown kind %q", d.ID, d.Kind)
	}

	if d.Labels != nil && d.Labels.Field == "" {
		return maperr.Configuration("layer %q: label field is required", d.ID)
	}

	if in := d.Interaction; in != nil {
		if d.IDField == "" {
			return maperr.Configuration("layer %q: interactive layer needs an idField", d.ID)
		}
		switch in.Mode {
		case ModeClicked:
		case ModeToggle:
			if in.GroupTag == "" {
				return maperr.Configuration("layer %q: toggle interaction needs a groupTag", d.ID)
			}
		default:
			return maperr.Configuration("layer %q: unknown interaction mode %q", d.ID, in.Mode)
		}
		if sc := in.SpecialCases; sc != nil && (len(sc.IDs) == 0 || sc.AlternateField == "") {
			return maperr.Configuration("layer %q: special cases need ids and an alternate field", d.ID)
		}
		if d.Kind == KindPlain && d.Plain.Highlight != nil {
			want := FlagClicked
			if in.Mode == ModeToggle {
				want = FlagSelected
			}
			if d.Plain.Highlight.State != want {
				return maperr.Configuration("layer %q: %s interaction highlights %q, not %q", d.ID, in.Mode, want, d.Plain.Highlight.State)
			}
		}
	}

	if z := d.Zoom; z != nil {
		if z.Min < 0 || z.Max > 24 || z.Min > z.Max {
			return maperr.Configuration("layer %q: invalid zoom range [%v, %v]", d.ID, z.Min, z.Max)
		}
	}
	return nil
}

func validateFill(id string, f FillStyle) error {
	if f.Fill == "" {
		return maperr.Configuration("layer %q: fill color is required", id)
	}
	if f.Opacity < 0 || f.Opacity > 1 {
		return maperr.Configuration("layer %q: opacity %v out of [0,1]", id, f.Opacity)
	}
	return nil
}

// withDefaults fills optional style fields the way the canvas would.
func (d LayerDefinition) withDefaults() LayerDefinition {
	if d.Source.Type == "" {
		d.Source.Type = "vector"
	}
	if d.Labels != nil {
		l := *d.Labels
		if l.Size == 0 {
			l.Size = DefaultLabelSize
		}
		if l.Color == "" {
			l.Color = DefaultLabelColor
		}
		if l.HaloColor == "" {
			l.HaloColor = DefaultLabelHaloColor
		}
		if l.HaloWidth == 0 {
			l.HaloWidth = DefaultLabelHaloWidth
		}
		d.Labels = &l
	}
	if d.Choropleth != nil {
		c := *d.Choropleth
		if c.Opacity == 0 {
			c.Opacity = 0.7
		}
		if c.Outline == "" {
			c.Outline = "#ffffff"
		}
		d.Choropleth = &c
	}
	if d.Interaction != nil && d.Interaction.Cursor == "" {
		in := *d.Interaction
		in.Cursor = "pointer"
		d.Interaction = &in
	}
	return d
}
