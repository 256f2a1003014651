// Package session owns the render and selection state of one map canvas.
//
// A Session is not safe for concurrent use. Every call must come from one
// goroutine; wrap it in an Actor when several goroutines drive it.
// Public entry points never return errors: failures are logged and
// reported as diagnostics, and the call does nothing.
package session

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// DefaultFitPadding is the margin in px kept around fitted bounds.
const DefaultFitPadding = 50

// Options configures a Session.
type Options struct {
	ID         string
	Catalog    *catalog.Catalog
	Canvas     canvas.Canvas
	Host       host.Callbacks
	Reporter   diag.Reporter
	Logger     zerolog.Logger
	FitPadding float64
}

// Session is the state of one canvas.
type Session struct {
	id         string
	cat        *catalog.Catalog
	cv         canvas.Canvas
	host       host.Callbacks
	diag       diag.Reporter
	log        zerolog.Logger
	fitPadding float64

	phase   phase
	pending []op

	render   renderState
	sel      selection
	bindings map[string]binding
}

type renderState struct {
	sources    map[string]bool
	layers     map[string]bool
	visible    string
	overridden map[string]bool
}

// New creates a session in the uninitialized phase.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = "default"
	}
	if opts.Host == nil {
		opts.Host = host.Nop
	}
	if opts.FitPadding <= 0 {
		opts.FitPadding = DefaultFitPadding
	}
	logger := opts.Logger.With().Str("session", opts.ID).Logger()
	if opts.Reporter == nil {
		opts.Reporter = diag.NewMemoryRecorder(logger, 0)
	}
	return &Session{
		id:         opts.ID,
		cat:        opts.Catalog,
		cv:         opts.Canvas,
		host:       opts.Host,
		diag:       opts.Reporter,
		log:        logger,
		fitPadding: opts.FitPadding,
		render: renderState{
			sources:    make(map[string]bool),
			layers:     make(map[string]bool),
			overridden: make(map[string]bool),
		},
		sel:      newSelection(),
		bindings: make(map[string]binding),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Canvas returns the canvas the session drives.
func (s *Session) Canvas() canvas.Canvas { return s.cv }

// Catalog returns the session's catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.cat }

// ActivateLayer hides every layer, then materializes and shows layerID.
// Overrides replace the choropleth ramp for this activation only.
func (s *Session) ActivateLayer(layerID string, o *Overrides) {
	o = o.clone()
	s.run(op{name: "activateLayer", layer: layerID, fn: func() error {
		return s.activate(layerID, o)
	}})
}

// HideAllLayers hides every materialized layer and its labels.
func (s *Session) HideAllLayers() {
	s.run(op{name: "hideAllLayers", fn: s.hideAll})
}

func (s *Session) activate(layerID string, o *Overrides) error {
	def, err := s.cat.Lookup(layerID)
	if err != nil {
		return err
	}
	if !o.Empty() {
		if def.Kind != catalog.KindChoropleth {
			s.log.Warn().Str("layer", layerID).Msg("style overrides ignored on non choropleth layer")
			o = nil
		} else if err := def.Choropleth.Ramp().Merge(o.Ramp()).Validate(); err != nil {
			return err
		}
	}

	previous := s.render.visible
	if err := s.hideAll(); err != nil {
		return err
	}
	if previous != layerID {
		s.resetSelection()
	}
	if err := s.ensureLayerMaterialized(def, o); err != nil {
		return err
	}
	if err := s.syncRamp(def, o); err != nil {
		return err
	}
	if err := s.setVisible(def, true); err != nil {
		return err
	}
	s.render.visible = layerID
	s.log.Debug().Str("layer", layerID).Msg("layer activated")
	return nil
}

// RenderedFeatures lists the rendered parts of a layer's fill primitive.
// Unlike the entry points above it returns its error.
func (s *Session) RenderedFeatures(layerID string) ([]canvas.Feature, error) {
	def, err := s.cat.Lookup(layerID)
	if err != nil {
		return nil, err
	}
	if !s.cv.HasLayer(def.MainPrimitiveID()) {
		return []canvas.Feature{}, nil
	}
	return s.cv.QueryRenderedFeatures(canvas.RenderedQuery{Layers: []string{def.MainPrimitiveID()}})
}

// fail records a swallowed error.
func (s *Session) fail(o op, err error) {
	s.diag.Report(diag.Entry{
		Session: s.id,
		Op:      o.name,
		Layer:   o.layer,
		Kind:    maperr.KindOf(err),
		Message: err.Error(),
	})
}

// Snapshot is the observable session state.
type Snapshot struct {
	ID            string           `json:"id"`
	Ready         bool             `json:"ready"`
	Pending       int              `json:"pending" doc:"Operations waiting for the canvas"`
	Sources       []string         `json:"sources"`
	Materialized  []string         `json:"materialized" doc:"Primitive ids on the canvas"`
	Visible       string           `json:"visible,omitempty" doc:"Active layer"`
	Overridden    []string         `json:"overridden,omitempty" doc:"Layers painted with a per call ramp"`
	SelectedGroup string           `json:"selectedGroup,omitempty"`
	SelectedIDs   []string         `json:"selectedIds"`
	Clicked       *ClickedSnapshot `json:"clicked,omitempty"`
	Camera        canvas.Camera    `json:"camera"`
	Cursor        string           `json:"cursor,omitempty"`
}

// ClickedSnapshot is the single-select state.
type ClickedSnapshot struct {
	Layer      string `json:"layer"`
	ExternalID string `json:"externalId"`
	Parts      int    `json:"parts"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Ready:         s.phase == phaseReady,
		Pending:       len(s.pending),
		Sources:       sortedKeys(s.render.sources),
		Materialized:  sortedKeys(s.render.layers),
		Visible:       s.render.visible,
		Overridden:    sortedKeys(s.render.overridden),
		SelectedGroup: s.sel.group,
		SelectedIDs:   append([]string{}, s.sel.ids...),
		Camera:        s.cv.Camera(),
		Cursor:        s.cv.Cursor(),
	}
	if c := s.sel.clicked; c != nil {
		snap.Clicked = &ClickedSnapshot{Layer: c.layer, ExternalID: c.externalID, Parts: len(c.parts)}
	}
	return snap
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
