package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapbridge/internal/canvas"
	"github.com/joeblew999/plat-mapbridge/internal/humastar"
	"github.com/joeblew999/plat-mapbridge/internal/session"
)

type SessionInput struct {
	Session string `path:"session" doc:"Session ID" example:"default"`
}

// SessionBody is a session snapshot with the actions its state allows.
type SessionBody struct {
	session.Snapshot
}

var (
	readyAction  = humastar.ActionDef{Rel: "ready", Pattern: "/api/v1/sessions/%s/ready", Method: http.MethodPost, Title: "Signal canvas ready"}
	eventsAction = humastar.ActionDef{Rel: "events", Pattern: "/api/v1/sessions/%s/events", Method: http.MethodGet, Title: "Callback stream"}
	hideAction   = humastar.ActionDef{Rel: "hide", Pattern: "/api/v1/sessions/%s/hide", Method: http.MethodPost, Title: "Hide all layers"}
	adminAction  = humastar.ActionDef{Rel: "administrative-filter", Pattern: "/api/v1/sessions/%s/administrative-filter", Method: http.MethodPost, Title: "Filter administrative units"}
)

// Actions returns the state-dependent actions of the session.
func (b SessionBody) Actions() []humastar.Action {
	if !b.Ready {
		return humastar.ActionsFor(b.ID, readyAction, eventsAction)
	}
	defs := []humastar.ActionDef{eventsAction, adminAction}
	if b.Visible != "" {
		defs = append(defs, hideAction)
	}
	return humastar.ActionsFor(b.ID, defs...)
}

type SessionOutput struct {
	Body SessionBody
}

type SessionListBody struct {
	Sessions []string `json:"sessions" doc:"Running session IDs in creation order"`
}

type ActivateInput struct {
	SessionInput
	LayerIDInput
	Body *session.Overrides `required:"false"`
}

type FilterInput struct {
	SessionInput
	LayerIDInput
	Body struct {
		IDs []string `json:"ids" doc:"External IDs to keep" example:"[\"751010101\"]"`
	}
}

type AdministrativeFilterInput struct {
	SessionInput
	Body struct {
		IDs []string `json:"ids,omitempty" doc:"Administrative unit codes"`
		CSV string   `json:"csv,omitempty" doc:"Comma separated codes, merged with ids" example:"751010101,751010102"`
	}
}

type ClickInput struct {
	SessionInput
	Body struct {
		LayerID   string   `json:"layerId" doc:"Layer receiving the click" example:"iris"`
		Lon       *float64 `json:"lon,omitempty" doc:"Click longitude"`
		Lat       *float64 `json:"lat,omitempty" doc:"Click latitude"`
		FeatureID *uint64  `json:"featureId,omitempty" doc:"Rendered feature id, instead of a position"`
	}
}

type PointerInput struct {
	SessionInput
	Body struct {
		LayerID string `json:"layerId" doc:"Layer under the pointer" example:"communes"`
		Over    bool   `json:"over" doc:"Whether the pointer entered or left"`
	}
}

type CameraInput struct {
	SessionInput
	Body struct {
		Lon  float64 `json:"lon" example:"2.35"`
		Lat  float64 `json:"lat" example:"48.86"`
		Zoom float64 `json:"zoom" minimum:"0" maximum:"24" example:"12"`
	}
}

type FeaturesInput struct {
	SessionInput
	Layer string `query:"layer" required:"true" doc:"Layer ID" example:"iris"`
}

type FeaturesBody struct {
	Layer    string           `json:"layer"`
	Features []canvas.Feature `json:"features"`
}

// RegisterSessions registers session lifecycle routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions", h.CreateSession, huma.OperationTags("sessions"),
		func(o *huma.Operation) { o.DefaultStatus = http.StatusCreated })
	huma.Get(api, "/api/v1/sessions/{session}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{session}", h.DeleteSession, huma.OperationTags("sessions"),
		func(o *huma.Operation) { o.DefaultStatus = http.StatusNoContent })
}

// RegisterCommands registers the session operations.
func (h *APIHandler) RegisterCommands(api huma.API) {
	tags := huma.OperationTags("commands")
	huma.Post(api, "/api/v1/sessions/{session}/ready", h.Ready, tags)
	huma.Post(api, "/api/v1/sessions/{session}/layers/{id}/activate", h.Activate, tags)
	huma.Post(api, "/api/v1/sessions/{session}/hide", h.Hide, tags)
	huma.Post(api, "/api/v1/sessions/{session}/layers/{id}/filter", h.Filter, tags)
	huma.Post(api, "/api/v1/sessions/{session}/administrative-filter", h.AdministrativeFilter, tags)
	huma.Post(api, "/api/v1/sessions/{session}/click", h.Click, tags)
	huma.Post(api, "/api/v1/sessions/{session}/pointer", h.Pointer, tags)
	huma.Post(api, "/api/v1/sessions/{session}/camera", h.Camera, tags)
	huma.Get(api, "/api/v1/sessions/{session}/features", h.Features, tags)
}

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body SessionListBody }, error) {
	return &struct{ Body SessionListBody }{Body: SessionListBody{Sessions: h.svc.Sessions.IDs()}}, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	a, err := h.svc.Sessions.Create()
	if err != nil {
		return nil, statusError(err)
	}
	return h.snapshot(ctx, a)
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	a, err := h.svc.Sessions.Get(input.Session)
	if err != nil {
		return nil, statusError(err)
	}
	return h.snapshot(ctx, a)
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if err := h.svc.Sessions.Remove(input.Session); err != nil {
		return nil, statusError(err)
	}
	return &struct{}{}, nil
}

func (h *APIHandler) snapshot(ctx context.Context, a *session.Actor) (*SessionOutput, error) {
	var snap session.Snapshot
	if err := a.Do(ctx, func(s *session.Session) { snap = s.Snapshot() }); err != nil {
		return nil, statusError(err)
	}
	return &SessionOutput{Body: SessionBody{snap}}, nil
}

func (h *APIHandler) snapshotOf(ctx context.Context, id string) (session.Snapshot, error) {
	a, err := h.svc.Sessions.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	var snap session.Snapshot
	err = a.Do(ctx, func(s *session.Session) { snap = s.Snapshot() })
	return snap, err
}

func (h *APIHandler) run(ctx context.Context, id string, c Command) (*SessionOutput, error) {
	snap, err := h.apply(ctx, id, c)
	if err != nil {
		return nil, statusError(err)
	}
	return &SessionOutput{Body: SessionBody{snap}}, nil
}

func (h *APIHandler) Ready(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpReady})
}

func (h *APIHandler) Activate(ctx context.Context, input *ActivateInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpActivate, LayerID: input.ID, Overrides: input.Body})
}

func (h *APIHandler) Hide(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpHide})
}

func (h *APIHandler) Filter(ctx context.Context, input *FilterInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpFilter, LayerID: input.ID, IDs: input.Body.IDs})
}

func (h *APIHandler) AdministrativeFilter(ctx context.Context, input *AdministrativeFilterInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpAdministrative, IDs: input.Body.IDs, CSV: input.Body.CSV})
}

func (h *APIHandler) Click(ctx context.Context, input *ClickInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{
		Op:        OpClick,
		LayerID:   input.Body.LayerID,
		Lon:       input.Body.Lon,
		Lat:       input.Body.Lat,
		FeatureID: input.Body.FeatureID,
	})
}

func (h *APIHandler) Pointer(ctx context.Context, input *PointerInput) (*SessionOutput, error) {
	return h.run(ctx, input.Session, Command{Op: OpPointer, LayerID: input.Body.LayerID, Over: input.Body.Over})
}

func (h *APIHandler) Camera(ctx context.Context, input *CameraInput) (*SessionOutput, error) {
	b := input.Body
	return h.run(ctx, input.Session, Command{Op: OpCamera, Lon: &b.Lon, Lat: &b.Lat, Zoom: &b.Zoom})
}

// Features lists the rendered parts of one layer in the current viewport.
func (h *APIHandler) Features(ctx context.Context, input *FeaturesInput) (*struct{ Body FeaturesBody }, error) {
	a, err := h.svc.Sessions.Get(input.Session)
	if err != nil {
		return nil, statusError(err)
	}
	if _, err := h.svc.Catalog.Lookup(input.Layer); err != nil {
		return nil, statusError(err)
	}
	var features []canvas.Feature
	var qerr error
	if err := a.Do(ctx, func(s *session.Session) { features, qerr = s.RenderedFeatures(input.Layer) }); err != nil {
		return nil, statusError(err)
	}
	if qerr != nil {
		return nil, statusError(qerr)
	}
	if features == nil {
		features = []canvas.Feature{}
	}
	return &struct{ Body FeaturesBody }{Body: FeaturesBody{Layer: input.Layer, Features: features}}, nil
}
