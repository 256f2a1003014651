// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/session"
	"github.com/joeblew999/plat-mapbridge/internal/style"
	"github.com/joeblew999/plat-mapbridge/internal/templates"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the dependencies of the API handlers.
type Services struct {
	Catalog  *catalog.Catalog
	Sessions *session.Registry
	Bus      *host.Bus
	Diag     *diag.Recorder
	DB       *sql.DB
	Renderer *templates.Renderer
}

// Types

type LayerIDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"iris"`
}

type CatalogBody struct {
	AdministrativeLayer string                    `json:"administrativeLayer" doc:"Target of administrative unit filters" example:"iris"`
	Layers              []catalog.LayerDefinition `json:"layers" doc:"Valid layers in declaration order"`
	Rejected            map[string]string         `json:"rejected,omitempty" doc:"Layers dropped at load, with the reason"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

// APIHandler holds the REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route of svc.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	huma.AutoRegister(api, NewInfoHandler(svc))
	huma.AutoRegister(api, NewDBHandler(svc.DB, svc.Diag))
	if svc.Bus != nil && svc.Renderer != nil {
		huma.AutoRegister(api, NewEventsHandler(svc))
	}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterCatalog registers read-only catalog routes.
func (h *APIHandler) RegisterCatalog(api huma.API) {
	huma.Get(api, "/api/v1/catalog", h.GetCatalog, huma.OperationTags("catalog"))
	huma.Get(api, "/api/v1/catalog/{id}", h.GetLayer, huma.OperationTags("catalog"))
	huma.Get(api, "/api/v1/catalog/{id}/style", h.GetLayerStyle, huma.OperationTags("catalog"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetCatalog(ctx context.Context, input *struct{}) (*struct{ Body CatalogBody }, error) {
	body := CatalogBody{
		AdministrativeLayer: h.svc.Catalog.AdministrativeLayer(),
		Layers:              h.svc.Catalog.Definitions(),
	}
	if rejected := h.svc.Catalog.Rejected(); len(rejected) > 0 {
		body.Rejected = make(map[string]string, len(rejected))
		for id, err := range rejected {
			body.Rejected[id] = err.Error()
		}
	}
	return &struct{ Body CatalogBody }{Body: body}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *LayerIDInput) (*struct{ Body catalog.LayerDefinition }, error) {
	def, err := h.svc.Catalog.Lookup(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body catalog.LayerDefinition }{Body: def}, nil
}

// GetLayerStyle returns a standalone style document showing one layer.
func (h *APIHandler) GetLayerStyle(ctx context.Context, input *LayerIDInput) (*struct{ Body style.Document }, error) {
	def, err := h.svc.Catalog.Lookup(input.ID)
	if err != nil {
		return nil, statusError(err)
	}
	doc, err := LayerStyle(def)
	if err != nil {
		return nil, statusError(err)
	}
	return &struct{ Body style.Document }{Body: doc}, nil
}

// LayerStyle builds a style document with def's source and primitives, the
// main primitive visible.
func LayerStyle(def catalog.LayerDefinition) (style.Document, error) {
	layers, err := session.Primitives(def, nil)
	if err != nil {
		return style.Document{}, err
	}
	for i := range layers {
		if layers[i].ID == def.MainPrimitiveID() {
			layers[i].Layout["visibility"] = style.Visible
		}
	}
	cam := memory.DefaultCamera
	return style.Document{
		Version: 8,
		Name:    def.ID,
		Center:  []float64{cam.Center.Lon(), cam.Center.Lat()},
		Zoom:    cam.Zoom,
		Sources: map[string]style.Source{
			def.SourceID(): {Type: def.Source.Type, URL: def.Source.URL},
		},
		Layers: layers,
	}, nil
}
