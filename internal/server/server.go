package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-mapbridge/internal/api"
	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/db"
	"github.com/joeblew999/plat-mapbridge/internal/diag"
	"github.com/joeblew999/plat-mapbridge/internal/host"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/session"
	"github.com/joeblew999/plat-mapbridge/internal/templates"
	"github.com/joeblew999/plat-mapbridge/internal/tiles"
)

// Config holds the server configuration.
type Config struct {
	Host string
	Port string

	Catalog       string // catalog YAML, empty for the built-in one
	StrictCatalog bool   // refuse to start when a catalog entry is rejected
	Fixtures      string // GeoJSON directory backing the headless canvases
	Templates     string // fragment directory overriding the embedded templates
	DataDir       string // DuckDB journal directory, empty for in-memory

	ViewportWidth  int
	ViewportHeight int
	FitPadding     float64

	Logger zerolog.Logger
}

// Server is the mapbridge HTTP server.
type Server struct {
	config   Config
	log      zerolog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	tiles    tiles.Encoder
}

// New loads the catalog and starts the default session. Catalog errors are
// configuration errors; with StrictCatalog any rejected entry is fatal.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger.With().Str("component", "server").Logger()

	cat, err := catalog.Load(cfg.Catalog)
	if cat == nil {
		return nil, err
	}
	if err != nil {
		if cfg.StrictCatalog {
			return nil, err
		}
		logger.Warn().Err(err).Int("layers", cat.Len()).Msg("catalog entries rejected")
	}

	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "mapbridge"})
	if err != nil {
		logger.Warn().Err(err).Msg("diagnostics journal unavailable")
		conn = nil
	}
	rec, err := diag.NewRecorder(cfg.Logger, conn, 0)
	if err != nil {
		return nil, err
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, err
	}
	if cfg.Templates != "" {
		if err := renderer.Reload(cfg.Templates); err != nil {
			return nil, err
		}
		logger.Info().Str("dir", cfg.Templates).Msg("loaded fragment templates")
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-mapbridge API", api.Version)
	humaConfig.Info.Description = "Drives map canvases from a layer catalog: activation, choropleths, selection and administrative filters."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:  cfg,
		log:     logger,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		db:      conn,
	}

	bus := host.NewBus()
	s.services = &api.Services{
		Catalog:  cat,
		Bus:      bus,
		Diag:     rec,
		DB:       conn,
		Renderer: renderer,
	}
	s.services.Sessions = session.NewRegistry(s.newSession)
	s.tiles = tiles.Encoder{Catalog: cat, Fixtures: memory.Dir(cfg.Fixtures)}
	if _, err := s.services.Sessions.Open(session.DefaultID); err != nil {
		return nil, err
	}

	s.routes()
	return s, nil
}

// newSession gives every session its own headless canvas. Callbacks go to
// the bus and the journal.
func (s *Server) newSession(id string) (*session.Session, error) {
	cv := memory.New(memory.Options{
		Width:    s.config.ViewportWidth,
		Height:   s.config.ViewportHeight,
		Fixtures: memory.Dir(s.config.Fixtures),
	})
	svc := s.services
	return session.New(session.Options{
		ID:      id,
		Catalog: svc.Catalog,
		Canvas:  cv,
		Host: host.Multi{
			host.BusCallbacks{Bus: svc.Bus, Session: id},
			svc.Diag.Callbacks(id),
		},
		Reporter:   svc.Diag,
		Logger:     s.config.Logger,
		FitPadding: s.config.FitPadding,
	}), nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Catalog returns the loaded catalog.
func (s *Server) Catalog() *catalog.Catalog {
	return s.services.Catalog
}

// Close stops the sessions and closes the journal.
func (s *Server) Close() error {
	s.services.Sessions.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	s.mux.Handle("GET /ws/sessions/{session}", api.NewWSBridge(s.services, s.config.Logger))
	s.mux.Handle("/tiles/{layer}/{z}/{x}/{y}", s.handleTiles())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-mapbridge",
		"status":   "running",
		"sessions": s.services.Sessions.IDs(),
	})
}

// handleTiles serves fixture sources as gzipped vector tiles. The y segment
// may carry a .mvt or .pbf extension.
func (s *Server) handleTiles() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodGet, http.MethodHead:
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		y := strings.TrimSuffix(strings.TrimSuffix(r.PathValue("y"), ".mvt"), ".pbf")
		var coords [3]uint64
		for i, v := range []string{r.PathValue("z"), r.PathValue("x"), y} {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				http.Error(w, "invalid tile coordinate "+strconv.Quote(v), http.StatusBadRequest)
				return
			}
			coords[i] = n
		}
		t := maptile.New(uint32(coords[1]), uint32(coords[2]), maptile.Zoom(coords[0]))

		data, err := s.tiles.Tile(r.PathValue("layer"), t)
		if err != nil {
			status := http.StatusInternalServerError
			switch maperr.KindOf(err) {
			case maperr.KindNotFound, maperr.KindConfiguration:
				status = http.StatusNotFound
			case maperr.KindInteraction:
				status = http.StatusBadRequest
			default:
				s.log.Error().Err(err).Str("layer", r.PathValue("layer")).Msg("tile encoding failed")
			}
			http.Error(w, maperr.Message(err), status)
			return
		}
		if data == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(data)
	})
}
