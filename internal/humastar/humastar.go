// Package humastar streams Datastar SSE through Huma operations.
//
// A handler embeds [Handler] to render fragments and returns [Handler.Stream]
// from its operation; the stream callback gets an [SSE] bound to the
// underlying response writer. Action and pagination links feed the RFC 8288
// Link headers of the REST bodies.
package humastar

import (
	"bytes"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-mapbridge/internal/templates"
)

// Handler renders fragments for SSE operations.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream wraps fn as a streaming response body.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) { fn(NewSSE(ctx)) },
	}
}

// Render renders one fragment. A failing fragment renders as an empty state
// carrying the error, so the stream keeps going.
func (h *Handler) Render(tmpl string, data any) string {
	var buf bytes.Buffer
	if err := h.Renderer.RenderToBuffer(&buf, tmpl, data); err != nil {
		buf.Reset()
		h.Renderer.RenderToBuffer(&buf, "empty-state", templates.Empty{Title: "Render failed", Message: err.Error()})
	}
	return buf.String()
}

// RenderEach renders tmpl once per item, or the empty state when there are
// no items.
func RenderEach[T any](h *Handler, tmpl string, items []T, empty templates.Empty) string {
	if len(items) == 0 {
		return h.Render("empty-state", empty)
	}
	var buf bytes.Buffer
	for _, item := range items {
		buf.WriteString(h.Render(tmpl, item))
	}
	return buf.String()
}

// SSE is a Datastar event generator with the patch modes the streams use.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch morphs html into the children of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeInner())
}

// Replace swaps the element at selector for html.
func (s SSE) Replace(html, selector string) {
	s.PatchElements(html, datastar.WithSelector(selector), datastar.WithModeOuter())
}

func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Dispatch fires a DOM CustomEvent named after the host callback.
func (s SSE) Dispatch(name string, detail any) {
	s.DispatchCustomEvent(name, detail)
}
