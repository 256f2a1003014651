package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/humastar"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/session"
	"github.com/joeblew999/plat-mapbridge/internal/style"
	"github.com/joeblew999/plat-mapbridge/internal/templates"
)

func box(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}.ToPolygon()
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

func feature(g orb.Geometry, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(g)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f
}

func fixtures() memory.Collections {
	return memory.Collections{
		"iris": collection(
			feature(box(2.33, 48.85, 2.35, 48.87), map[string]any{"CODE_IRIS": "751010101", "NOM_IRIS": "Saint-Germain l'Auxerrois 1"}),
			feature(box(2.35, 48.85, 2.37, 48.87), map[string]any{"CODE_IRIS": "751010102", "NOM_IRIS": "Saint-Germain l'Auxerrois 2"}),
			feature(box(2.44, 48.84, 2.48, 48.86), map[string]any{"CODE_IRIS": "751010103", "NOM_IRIS": "Montreuil Est"}),
		),
		"communes": collection(
			feature(box(2.33, 48.85, 2.35, 48.87), map[string]any{"INSEE_COM": "75056", "INSEE_ARM": "75101", "NOM": "Paris 1er"}),
			feature(box(2.42, 48.85, 2.45, 48.87), map[string]any{"INSEE_COM": "93048", "NOM": "Montreuil"}),
		),
	}
}

func newServices(t *testing.T) *Services {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	rec, err := diag.NewRecorder(zerolog.Nop(), nil, 0)
	require.NoError(t, err)
	r, err := templates.New()
	require.NoError(t, err)
	bus := host.NewBus()

	reg := session.NewRegistry(func(id string) (*session.Session, error) {
		return session.New(session.Options{
			ID:       id,
			Catalog:  cat,
			Canvas:   memory.New(memory.Options{Fixtures: fixtures()}),
			Host:     host.Multi{host.BusCallbacks{Bus: bus, Session: id}, rec.Callbacks(id)},
			Reporter: rec,
			Logger:   zerolog.Nop(),
		}), nil
	})
	t.Cleanup(reg.Close)
	_, err = reg.Open(session.DefaultID)
	require.NoError(t, err)

	return &Services{Catalog: cat, Sessions: reg, Bus: bus, Diag: rec, Renderer: r}
}

func testConfig() huma.Config {
	cfg := huma.DefaultConfig("mapbridge test", Version)
	cfg.CreateHooks = nil
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	return cfg
}

func newTestAPI(t *testing.T) (humatest.TestAPI, *Services) {
	t.Helper()
	svc := newServices(t)
	_, api := humatest.New(t, testConfig())
	RegisterRoutes(api, svc)
	return api, svc
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func links(h http.Header) string {
	return strings.Join(h.Values("Link"), ", ")
}

const base = "/api/v1/sessions/" + session.DefaultID

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthBody](t, resp.Body.Bytes()).Status)
	assert.Contains(t, links(resp.Header()), `</api/v1/sessions>; rel="sessions"`)

	info := decode[InfoBody](t, api.Get("/api/v1/info").Body.Bytes())
	assert.Equal(t, "plat-mapbridge", info.Name)
	assert.Equal(t, 7, info.Layers)
	assert.Equal(t, 1, info.Sessions)
	assert.False(t, info.DB)
}

func TestCatalog(t *testing.T) {
	api, _ := newTestAPI(t)

	body := decode[CatalogBody](t, api.Get("/api/v1/catalog").Body.Bytes())
	assert.Equal(t, "iris", body.AdministrativeLayer)
	require.Len(t, body.Layers, 7)
	assert.Equal(t, "communes", body.Layers[0].ID)
	assert.Empty(t, body.Rejected)

	resp := api.Get("/api/v1/catalog/iris")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "CODE_IRIS", decode[catalog.LayerDefinition](t, resp.Body.Bytes()).IDField)
	assert.Contains(t, links(resp.Header()), `</api/v1/catalog/iris>; rel="self"`)

	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/catalog/nope").Code)
}

func TestLayerStyle(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/api/v1/catalog/niveauVie/style")
	require.Equal(t, http.StatusOK, resp.Code)

	doc := decode[style.Document](t, resp.Body.Bytes())
	assert.Equal(t, 8, doc.Version)
	assert.Contains(t, doc.Sources, "niveauVie")
	require.NotEmpty(t, doc.Layers)
	assert.Equal(t, "niveauVie-choropleth", doc.Layers[0].ID)
	assert.Equal(t, style.Visible, doc.Layers[0].Visibility())
	assert.Equal(t, "step", doc.Layers[0].Paint["fill-color"].([]any)[0])
}

func TestSessionLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)

	list := decode[SessionListBody](t, api.Get("/api/v1/sessions").Body.Bytes())
	assert.Equal(t, []string{session.DefaultID}, list.Sessions)

	resp := api.Post("/api/v1/sessions")
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decode[SessionBody](t, resp.Body.Bytes())
	require.NotEmpty(t, created.ID)
	assert.False(t, created.Ready)
	assert.Contains(t, links(resp.Header()), `</api/v1/sessions/`+created.ID+`/ready>; rel="ready"; method="POST"`)

	path := "/api/v1/sessions/" + created.ID
	assert.Equal(t, http.StatusOK, api.Get(path).Code)
	assert.Equal(t, http.StatusNoContent, api.Delete(path).Code)
	assert.Equal(t, http.StatusNotFound, api.Get(path).Code)
	assert.Equal(t, http.StatusNotFound, api.Delete(path).Code)
	assert.Equal(t, http.StatusNotFound, api.Post(path+"/ready").Code)
}

func TestQueuedUntilReady(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Post(base + "/layers/iris/activate")
	require.Equal(t, http.StatusOK, resp.Code)
	snap := decode[SessionBody](t, resp.Body.Bytes())
	assert.False(t, snap.Ready)
	assert.Equal(t, 1, snap.Pending)
	assert.Empty(t, snap.Visible)

	resp = api.Post(base + "/ready")
	require.Equal(t, http.StatusOK, resp.Code)
	snap = decode[SessionBody](t, resp.Body.Bytes())
	assert.True(t, snap.Ready)
	assert.Zero(t, snap.Pending)
	assert.Equal(t, "iris", snap.Visible)
	assert.Contains(t, links(resp.Header()), `rel="hide"`)
	assert.NotContains(t, links(resp.Header()), `rel="ready"`)

	// a second ready changes nothing
	again := decode[SessionBody](t, api.Post(base+"/ready").Body.Bytes())
	assert.Equal(t, snap.Materialized, again.Materialized)
}

func TestAdministrativeFilterThenClick(t *testing.T) {
	api, svc := newTestAPI(t)
	ch := svc.Bus.Subscribe()
	defer svc.Bus.Unsubscribe(ch)

	api.Post(base + "/ready")
	api.Post(base + "/layers/niveauVie/activate")

	resp := api.Post(base+"/administrative-filter", map[string]any{"csv": "751010101,751010102"})
	require.Equal(t, http.StatusOK, resp.Code)
	snap := decode[SessionBody](t, resp.Body.Bytes())
	assert.Equal(t, "iris", snap.Visible)
	assert.InDelta(t, 2.35, snap.Camera.Center[0], 1e-6)
	assert.InDelta(t, 48.86, snap.Camera.Center[1], 1e-3)

	features := decode[FeaturesBody](t, api.Get(base+"/features?layer=iris").Body.Bytes())
	require.NotEmpty(t, features.Features)
	for _, f := range features.Features {
		assert.Contains(t, []any{"751010101", "751010102"}, f.Properties["CODE_IRIS"])
	}

	resp = api.Post(base+"/click", map[string]any{"layerId": "iris", "lon": 2.34, "lat": 48.86})
	require.Equal(t, http.StatusOK, resp.Code)
	snap = decode[SessionBody](t, resp.Body.Bytes())
	require.NotNil(t, snap.Clicked)
	assert.Equal(t, "751010101", snap.Clicked.ExternalID)

	ev := <-ch
	assert.Equal(t, host.EventMapClicked, ev.Kind)
	assert.Equal(t, session.DefaultID, ev.Session)
	assert.Equal(t, "751010101", ev.ExternalID)
}

func TestToggleOverREST(t *testing.T) {
	api, _ := newTestAPI(t)
	api.Post(base + "/ready")
	api.Post(base + "/layers/communes/activate")

	snap := decode[SessionBody](t, api.Post(base+"/click",
		map[string]any{"layerId": "communes", "lon": 2.34, "lat": 48.86}).Body.Bytes())
	assert.Equal(t, "com", snap.SelectedGroup)
	assert.Equal(t, []string{"75101"}, snap.SelectedIDs)

	snap = decode[SessionBody](t, api.Post(base+"/click",
		map[string]any{"layerId": "communes", "lon": 2.34, "lat": 48.86}).Body.Bytes())
	assert.Empty(t, snap.SelectedIDs)

	snap = decode[SessionBody](t, api.Post(base+"/pointer",
		map[string]any{"layerId": "communes", "over": true}).Body.Bytes())
	assert.Equal(t, "pointer", snap.Cursor)
}

func TestCommandErrors(t *testing.T) {
	api, _ := newTestAPI(t)
	api.Post(base + "/ready")

	for _, tt := range []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown layer", base + "/layers/nope/activate", nil, http.StatusNotFound},
		{"unknown session", "/api/v1/sessions/nope/hide", nil, http.StatusNotFound},
		{"bad overrides", base + "/layers/niveauVie/activate", map[string]any{"breaks": []float64{3, 1}}, http.StatusUnprocessableEntity},
		{"filter without id field", base + "/layers/niveauVie/filter", map[string]any{"ids": []string{"1"}}, http.StatusUnprocessableEntity},
		{"click without position", base + "/click", map[string]any{"layerId": "iris"}, http.StatusUnprocessableEntity},
		{"click on half a position", base + "/click", map[string]any{"layerId": "iris", "lon": 2.3}, http.StatusUnprocessableEntity},
	} {
		t.Run(tt.name, func(t *testing.T) {
			args := []any{}
			if tt.body != nil {
				args = append(args, tt.body)
			}
			assert.Equal(t, tt.status, api.Post(tt.path, args...).Code)
		})
	}
}

func TestSwallowedFailuresAreDiagnosed(t *testing.T) {
	api, _ := newTestAPI(t)
	api.Post(base + "/ready")
	api.Post(base + "/layers/iris/activate")

	// the call succeeds but hits nothing
	resp := api.Post(base+"/click", map[string]any{"layerId": "iris", "lon": 2.0, "lat": 48.0})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, decode[SessionBody](t, resp.Body.Bytes()).Clicked)

	resp = api.Get("/api/v1/diagnostics?session=" + session.DefaultID + "&limit=10")
	require.Equal(t, http.StatusOK, resp.Code)
	page := decode[humastar.PageBody[diag.Entry]](t, resp.Body.Bytes())
	require.Equal(t, 1, page.Total)
	assert.Equal(t, maperr.KindInteraction, page.Data[0].Kind)
	assert.Equal(t, "iris", page.Data[0].Layer)
	assert.Contains(t, links(resp.Header()), `rel="first"`)

	empty := decode[humastar.PageBody[diag.Entry]](t, api.Get("/api/v1/diagnostics?session=other").Body.Bytes())
	assert.Zero(t, empty.Total)
}

func TestTablesWithoutDB(t *testing.T) {
	api, _ := newTestAPI(t)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/tables").Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Post("/api/v1/query", map[string]any{"query": "SELECT 1"}).Code)
}
