package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb/maptile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapbridge/internal/canvas/memory"
	"github.com/joeblew999/plat-mapbridge/internal/catalog"
	"github.com/joeblew999/plat-mapbridge/internal/maperr"
	"github.com/joeblew999/plat-mapbridge/internal/server"
	"github.com/joeblew999/plat-mapbridge/internal/session"
	"github.com/joeblew999/plat-mapbridge/internal/tiles"
)

// Options defines all CLI flags and env vars for the mapbridge server.
// Flags: --host, --port, --catalog, --fixtures, --log-level, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CATALOG, SERVICE_FIXTURES, ...
type Options struct {
	Host           string  `doc:"Host to bind to" default:"0.0.0.0"`
	Port           int     `doc:"Port to listen on" short:"p" default:"8087"`
	Catalog        string  `doc:"Layer catalog YAML, empty for the built-in catalog"`
	StrictCatalog  bool    `doc:"Refuse to start when a catalog entry is invalid"`
	Fixtures       string  `doc:"Directory of <source>.geojson files backing the canvases"`
	Templates      string  `doc:"Directory of fragment templates overriding the embedded ones"`
	DataDir        string  `doc:"Directory of the DuckDB journal, empty for in-memory"`
	LogLevel       string  `doc:"Log level" enum:"debug,info,warn,error" default:"info"`
	ViewportWidth  int     `doc:"Canvas viewport width in px" default:"1024"`
	ViewportHeight int     `doc:"Canvas viewport height in px" default:"768"`
	FitPadding     float64 `doc:"Padding in px around fitted bounds" default:"50"`
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// exitCodeFor returns 2 for configuration errors and 1 otherwise.
func exitCodeFor(err error) int {
	if maperr.KindOf(err) == maperr.KindConfiguration {
		return 2
	}
	return 1
}

func fatal(err error) {
	log.Error().Err(err).Str("kind", string(maperr.KindOf(err))).Msg(maperr.Message(err))
	os.Exit(exitCodeFor(err))
}

func newServer(opts *Options) (*server.Server, error) {
	setupLogging(opts.LogLevel)
	return server.New(server.Config{
		Host:           opts.Host,
		Port:           fmt.Sprintf("%d", opts.Port),
		Catalog:        opts.Catalog,
		StrictCatalog:  opts.StrictCatalog,
		Fixtures:       opts.Fixtures,
		Templates:      opts.Templates,
		DataDir:        opts.DataDir,
		ViewportWidth:  opts.ViewportWidth,
		ViewportHeight: opts.ViewportHeight,
		FitPadding:     opts.FitPadding,
		Logger:         log.Logger,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			log.Info().
				Str("server", baseURL).
				Str("docs", baseURL+"/docs").
				Str("openapi", baseURL+"/openapi.json").
				Str("session", fmt.Sprintf("%s/api/v1/sessions/%s", baseURL, session.DefaultID)).
				Int("layers", srv.Catalog().Len()).
				Msg("plat-mapbridge API server starting")

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
		})
	})

	cli.Root().Use = "mapbridge"
	cli.Root().Short = "Map layer adapter: catalog driven layers, selection and filters"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// catalog subcommand: validate and print the catalog
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print the layer catalog (YAML by default, --json for JSON)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts.LogLevel)
			cat, err := catalog.Load(opts.Catalog)
			if cat == nil {
				fatal(err)
			}

			file := catalog.File{AdministrativeLayer: cat.AdministrativeLayer(), Layers: cat.Definitions()}
			useJSON, _ := cmd.Flags().GetBool("json")
			var output []byte
			var merr error
			if useJSON {
				output, merr = json.MarshalIndent(file, "", "  ")
			} else {
				output, merr = yaml.Marshal(file)
			}
			if merr != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling catalog: %v\n", merr)
				os.Exit(1)
			}
			fmt.Println(string(output))

			if err != nil {
				for id, rerr := range cat.Rejected() {
					log.Error().Str("layer", id).Msg(maperr.Message(rerr))
				}
				fatal(err)
			}
		}),
	}
	catalogCmd.Flags().Bool("json", false, "Output as JSON instead of YAML")
	cli.Root().AddCommand(catalogCmd)

	// tiles subcommand: export a layer's fixtures as a PMTiles archive
	tilesCmd := &cobra.Command{
		Use:   "tiles",
		Short: "Export a layer's fixture source as a PMTiles archive",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts.LogLevel)
			layer, _ := cmd.Flags().GetString("layer")
			out, _ := cmd.Flags().GetString("out")
			minZ, _ := cmd.Flags().GetUint32("min-zoom")
			maxZ, _ := cmd.Flags().GetUint32("max-zoom")
			if out == "" {
				out = layer + ".pmtiles"
			}

			cat, err := catalog.Load(opts.Catalog)
			if cat == nil {
				fatal(err)
			}
			def, err := cat.Lookup(layer)
			if maperr.Is(err, maperr.KindNotFound) {
				err = maperr.Configuration("unknown layer %q", layer)
			}
			if err != nil {
				fatal(err)
			}

			enc := tiles.Encoder{Catalog: cat, Fixtures: memory.Dir(opts.Fixtures)}
			pyramid, err := enc.Pyramid(layer, maptile.Zoom(minZ), maptile.Zoom(maxZ))
			if err != nil {
				fatal(err)
			}

			f, err := os.Create(out)
			if err != nil {
				fatal(err)
			}
			defer f.Close()
			err = tiles.WriteArchive(f, pyramid, tiles.Archive{
				Name:    def.ID,
				Layer:   def.Source.SourceLayer,
				MinZoom: maptile.Zoom(minZ),
				MaxZoom: maptile.Zoom(maxZ),
			})
			if err != nil {
				f.Close()
				os.Remove(out)
				fatal(err)
			}
			log.Info().Str("layer", layer).Str("out", out).Int("tiles", len(pyramid)).Msg("archive written")
		}),
	}
	tilesCmd.Flags().String("layer", catalog.DefaultAdministrativeLayer, "Catalog layer to export")
	tilesCmd.Flags().StringP("out", "o", "", "Output file, <layer>.pmtiles by default")
	tilesCmd.Flags().Uint32("min-zoom", 0, "Lowest zoom level")
	tilesCmd.Flags().Uint32("max-zoom", 12, "Highest zoom level")
	cli.Root().AddCommand(tilesCmd)

	cli.Run()
}
