package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	svc *Services
}

func NewInfoHandler(svc *Services) *InfoHandler {
	return &InfoHandler{svc: svc}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name                string   `json:"name" doc:"Service name"`
	Version             string   `json:"version" doc:"Service version"`
	Layers              int      `json:"layers" doc:"Valid catalog layers"`
	AdministrativeLayer string   `json:"administrativeLayer" doc:"Target of administrative unit filters"`
	Sessions            int      `json:"sessions" doc:"Running sessions"`
	Subscribers         int      `json:"subscribers" doc:"Open callback streams"`
	DB                  bool     `json:"db" doc:"Whether diagnostics are journaled in DuckDB"`
	Features            []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	body := InfoBody{
		Name:                "plat-mapbridge",
		Version:             Version,
		Layers:              h.svc.Catalog.Len(),
		AdministrativeLayer: h.svc.Catalog.AdministrativeLayer(),
		Sessions:            len(h.svc.Sessions.IDs()),
		DB:                  h.svc.DB != nil,
		Features:            []string{"choropleth", "selection", "administrative-filter", "sse", "websocket", "vector-tiles"},
	}
	if h.svc.Bus != nil {
		body.Subscribers = h.svc.Bus.Subscribers()
	}
	if body.DB {
		body.Features = append(body.Features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: body}, nil
}
