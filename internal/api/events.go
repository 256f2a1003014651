package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/humastar"
	"github.com/joeblew999/plat-mapbridge/internal/templates"
)

// backlogSize is how many recent diagnostics a new stream starts with.
const backlogSize = 20

var quiet = templates.Empty{Title: "All quiet", Message: "No diagnostics recorded for this session."}

// EventsHandler streams the host callbacks of a session to a Datastar UI.
type EventsHandler struct {
	humastar.Handler
	svc *Services
}

func NewEventsHandler(svc *Services) *EventsHandler {
	return &EventsHandler{Handler: humastar.Handler{Renderer: svc.Renderer}, svc: svc}
}

func (h *EventsHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/sessions/{session}/events", h.Events,
		huma.OperationTags("sessions"),
	)
}

func (h *EventsHandler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	if _, err := h.svc.Sessions.Get(input.Session); err != nil {
		return nil, statusError(err)
	}
	return h.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)
		h.backlog(sse, input.Session)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Session == input.Session {
					h.push(sse, ev)
				}
			}
		}
	}), nil
}

// patcher is the part of humastar.SSE the stream writes to.
type patcher interface {
	Patch(html, selector string)
	Replace(html, selector string)
	Signals(signals map[string]any)
	Dispatch(name string, detail any)
}

// backlog fills #diagnostics with the latest entries of the session.
func (h *EventsHandler) backlog(p patcher, session string) {
	var entries []diag.Entry
	if h.svc.Diag != nil {
		entries = h.svc.Diag.Entries(session, backlogSize)
	}
	p.Patch(humastar.RenderEach(&h.Handler, "diagnostic", entries, quiet), "#diagnostics")
}

// push renders ev into its fragment, updates the signals and fires the
// matching DOM event.
func (h *EventsHandler) push(p patcher, ev host.Event) {
	switch ev.Kind {
	case host.EventMapClicked:
		p.Patch(h.Render("clicked", ev), "#clicked")
		p.Signals(map[string]any{"clicked": map[string]any{"layer": ev.LayerID, "id": ev.ExternalID}})
	case host.EventSelectedFeatures:
		p.Replace(h.Render("selection", ev), fmt.Sprintf("#selection-%s", ev.GroupTag))
		p.Signals(map[string]any{"selected": map[string]any{ev.GroupTag: ev.IDs}})
	default:
		return
	}
	p.Dispatch(ev.Kind, ev)
}
