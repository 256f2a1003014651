package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

const irisFixture = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"CODE_IRIS":"751010101"},"geometry":{"type":"Polygon","coordinates":[[[2.33,48.85],[2.35,48.85],[2.35,48.87],[2.33,48.87],[2.33,48.85]]]}}
]}`

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestServerRoutes(t *testing.T) {
	s := newServer(t, Config{Host: "localhost", Port: "8087"})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/nope").Code)

	var root map[string]any
	require.NoError(t, json.Unmarshal(do(s, http.MethodGet, "/").Body.Bytes(), &root))
	assert.Equal(t, "plat-mapbridge", root["service"])
	assert.Equal(t, []any{"default"}, root["sessions"])

	// not an upgrade request
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/ws/sessions/default").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/ws/sessions/nope").Code)

	oapi := s.OpenAPI()
	for _, p := range []string{"/api/v1/catalog", "/api/v1/sessions/{session}/click", "/api/v1/diagnostics"} {
		assert.Contains(t, oapi.Paths, p)
	}
}

func TestServerJournalsDiagnostics(t *testing.T) {
	s := newServer(t, Config{})
	require.NotNil(t, s.db, "in-memory duckdb")

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/v1/sessions/default/ready").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/api/v1/sessions/default/layers/iris/activate").Code)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT count(*) FROM diagnostics").Scan(&n))
	assert.Zero(t, n)

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"layerId":"iris","lon":2.0,"lat":40.0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/default/click", body)
	req.Header.Set("Content-Type", "application/json")
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, s.db.QueryRow("SELECT count(*) FROM diagnostics WHERE kind = 'interaction'").Scan(&n))
	assert.Equal(t, 1, n)

	query := func(q string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"query": q})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		return w
	}
	w = query("SELECT kind, count(*) AS n FROM diagnostics GROUP BY kind")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Rows  []map[string]any `json:"rows"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "interaction", out.Rows[0]["kind"])

	assert.Equal(t, http.StatusUnprocessableEntity, query("DELETE FROM diagnostics").Code)
}

func TestServerFixtures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iris.geojson"), []byte(irisFixture), 0o644))
	s := newServer(t, Config{Fixtures: dir, FitPadding: 10})

	do(s, http.MethodPost, "/api/v1/sessions/default/ready")
	do(s, http.MethodPost, "/api/v1/sessions/default/layers/iris/activate")

	var out struct {
		Features []map[string]any `json:"features"`
	}
	w := do(s, http.MethodGet, "/api/v1/sessions/default/features?layer=iris")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Features)
}

func TestServerTiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iris.geojson"), []byte(irisFixture), 0o644))
	s := newServer(t, Config{Fixtures: dir})

	tile := maptile.At(orb.Point{2.34, 48.86}, 10)
	w := do(s, http.MethodGet, fmt.Sprintf("/tiles/iris/%d/%d/%d.mvt", tile.Z, tile.X, tile.Y))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.mapbox-vector-tile", w.Header().Get("Content-Type"))
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	layers, err := mvt.UnmarshalGzipped(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "iris-ign-simple-8us3r7", layers[0].Name)

	for path, code := range map[string]int{
		"/tiles/iris/10/0/0":     http.StatusNoContent,
		"/tiles/communes/0/0/0":  http.StatusNoContent,
		"/tiles/nope/0/0/0":      http.StatusNotFound,
		"/tiles/iris/a/0/0":      http.StatusBadRequest,
		"/tiles/iris/1/5/0":      http.StatusBadRequest,
		"/tiles/iris/20/0/0.pbf": http.StatusBadRequest,
	} {
		assert.Equal(t, code, do(s, http.MethodGet, path).Code, path)
	}
	assert.Equal(t, http.StatusOK, do(s, http.MethodOptions, "/tiles/iris/0/0/0").Code)
}

func TestStrictCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`administrativeLayer: iris
layers:
  - id: iris
    kind: filterable
    source: {type: vector, url: "mapbox://iris", sourceLayer: iris}
    idField: CODE_IRIS
    filterable: {fill: "#8338ec", opacity: 0.7, outline: "#fff"}
  - id: broken
    kind: choropleth
    source: {type: vector, url: "mapbox://broken", sourceLayer: broken}
`), 0o644))

	s := newServer(t, Config{Catalog: path})
	assert.Equal(t, 1, s.Catalog().Len())

	_, err := New(Config{Catalog: path, StrictCatalog: true, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))

	_, err = New(Config{Catalog: filepath.Join(t.TempDir(), "missing.yaml"), Logger: zerolog.Nop()})
	assert.Equal(t, maperr.KindConfiguration, maperr.KindOf(err))
}
