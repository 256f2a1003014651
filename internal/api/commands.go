package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/session"
)

// Command ops.
const (
	OpReady          = "ready"
	OpActivate       = "activate"
	OpHide           = "hide"
	OpFilter         = "filter"
	OpAdministrative = "administrative-filter"
	OpClick          = "click"
	OpPointer        = "pointer"
	OpCamera         = "camera"
)

// Command is one session call. REST handlers build it from their input;
// the websocket bridge reads it as JSON.
type Command struct {
	Op        string             `json:"op" enum:"ready,activate,hide,filter,administrative-filter,click,pointer,camera"`
	LayerID   string             `json:"layerId,omitempty"`
	IDs       []string           `json:"ids,omitempty"`
	CSV       string             `json:"csv,omitempty"`
	Overrides *session.Overrides `json:"overrides,omitempty"`
	Lon       *float64           `json:"lon,omitempty"`
	Lat       *float64           `json:"lat,omitempty"`
	Zoom      *float64           `json:"zoom,omitempty"`
	FeatureID *uint64            `json:"featureId,omitempty"`
	Over      bool               `json:"over,omitempty"`
}

// loader is implemented by canvases whose style load is driven by the host.
type loader interface {
	Load()
}

// prepare validates c against the catalog and returns the session call.
// Failures inside the session are never returned here; they are journaled.
func prepare(cat *catalog.Catalog, c Command) (func(*session.Session), error) {
	switch c.Op {
	case OpReady:
		return func(s *session.Session) {
			if l, ok := s.Canvas().(loader); ok {
				l.Load()
			}
			s.MarkReady()
		}, nil

	case OpActivate:
		def, err := cat.Lookup(c.LayerID)
		if err != nil {
			return nil, err
		}
		if !c.Overrides.Empty() && def.Kind == catalog.KindChoropleth {
			if err := def.Choropleth.Ramp().Merge(c.Overrides.Ramp()).Validate(); err != nil {
				return nil, err
			}
		}
		return func(s *session.Session) { s.ActivateLayer(c.LayerID, c.Overrides) }, nil

	case OpHide:
		return func(s *session.Session) { s.HideAllLayers() }, nil

	case OpFilter:
		def, err := cat.Lookup(c.LayerID)
		if err != nil {
			return nil, err
		}
		if def.IDField == "" {
			return nil, maperr.Configuration("layer %q cannot be filtered by id", def.ID)
		}
		return func(s *session.Session) { s.FilterByIDList(c.LayerID, c.IDs) }, nil

	case OpAdministrative:
		ids := append(append([]string{}, c.IDs...), session.ParseIDList(c.CSV)...)
		return func(s *session.Session) { s.FilterAdministrativeUnits(ids) }, nil

	case OpClick:
		if _, err := cat.Lookup(c.LayerID); err != nil {
			return nil, err
		}
		if (c.Lon == nil) != (c.Lat == nil) {
			return nil, maperr.Interaction("click needs both lon and lat")
		}
		ev := session.ClickEvent{LayerID: c.LayerID, FeatureID: c.FeatureID}
		if c.Lon != nil {
			ev.Point = &orb.Point{*c.Lon, *c.Lat}
		}
		if ev.Point == nil && ev.FeatureID == nil {
			return nil, maperr.Interaction("click needs a position or a featureId")
		}
		return func(s *session.Session) { s.HandleClick(ev) }, nil

	case OpPointer:
		if _, err := cat.Lookup(c.LayerID); err != nil {
			return nil, err
		}
		return func(s *session.Session) { s.HandlePointer(c.LayerID, c.Over) }, nil

	case OpCamera:
		if c.Lon == nil || c.Lat == nil || c.Zoom == nil {
			return nil, maperr.Interaction("camera needs lon, lat and zoom")
		}
		cam := canvas.Camera{Center: orb.Point{*c.Lon, *c.Lat}, Zoom: *c.Zoom}
		return func(s *session.Session) { s.HandleCameraMove(cam) }, nil
	}
	return nil, maperr.Interaction("unknown op %q", c.Op)
}

// apply runs c on a session and returns the state after it.
func (h *APIHandler) apply(ctx context.Context, id string, c Command) (session.Snapshot, error) {
	a, err := h.svc.Sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	fn, err := prepare(h.svc.Catalog, c)
	if err != nil {
		return session.Snapshot{}, err
	}
	var snap session.Snapshot
	err = a.Do(ctx, func(s *session.Session) {
		fn(s)
		snap = s.Snapshot()
	})
	return snap, err
}

// statusError maps an error kind to an HTTP problem.
func statusError(err error) error {
	msg := maperr.Message(err)
	switch maperr.KindOf(err) {
	case maperr.KindNotFound:
		return huma.Error404NotFound(msg)
	case maperr.KindConfiguration, maperr.KindInteraction:
		return huma.Error422UnprocessableEntity(msg)
	case maperr.KindNotReady:
		return huma.Error409Conflict(msg)
	}
	if errors.Is(err, session.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return huma.Error503ServiceUnavailable("session unavailable", err)
	}
	return huma.Error500InternalServerError(msg, err)
}
