package style

import (
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// Ramp is a stepped colour scale over a numeric property.
type Ramp struct {
	Property string
	Breaks   []float64
	Colors   []string
}

// Validate checks the ramp shape: one more colour than breaks and strictly
// ascending breaks.
func (r Ramp) Validate() error {
	if r.Property == "" {
		return maperr.Configuration("ramp property is required")
	}
	if len(r.Colors) == 0 {
		return maperr.Configuration("ramp on %q has no colors", r.Property)
	}
	if len(r.Colors) != len(r.Breaks)+1 {
		return maperr.Configuration("ramp on %q has %d colors for %d breaks, want %d",
			r.Property, len(r.Colors), len(r.Breaks), len(r.Breaks)+1)
	}
	for i := 1; i < len(r.Breaks); i++ {
		if r.Breaks[i] <= r.Breaks[i-1] {
			return maperr.Configuration("ramp on %q breaks not strictly ascending at index %d (%v <= %v)",
				r.Property, i, r.Breaks[i], r.Breaks[i-1])
		}
	}
	for i, c := range r.Colors {
		if c == "" {
			return maperr.Configuration("ramp on %q color %d is empty", r.Property, i)
		}
	}
	return nil
}

// ColorFor returns the colour a value falls into. Values below the first
// break get Colors[0]; a value equal to a break belongs to the upper bin.
func (r Ramp) ColorFor(v float64) string {
	i := 0
	for i < len(r.Breaks) && v >= r.Breaks[i] {
		i++
	}
	return r.Colors[i]
}

// Expression renders the ramp as a step expression.
func (r Ramp) Expression() Expression {
	return Step(Get(r.Property), r.Colors, r.Breaks)
}

// Merge returns r with the non-empty fields of o applied on top.
func (r Ramp) Merge(o Ramp) Ramp {
	out := r
	if o.Property != "" {
		out.Property = o.Property
	}
	if o.Breaks != nil {
		out.Breaks = append([]float64(nil), o.Breaks...)
	}
	if o.Colors != nil {
		out.Colors = append([]string(nil), o.Colors...)
	}
	return out
}
