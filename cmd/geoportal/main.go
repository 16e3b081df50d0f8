package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/pyramid"
	"github.com/joeblew999/geoportal/internal/server"
	"github.com/joeblew999/geoportal/internal/service"
	"github.com/joeblew999/geoportal/internal/vectortile"
)

// Options defines all CLI flags and env vars for the geoportal server.
// Flags: --host, --port, --data-dir, --config, --web-dir, --log-format
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory holding sensors, rasters and overlays" default:".data"`
	Config    string `doc:"YAML file overriding the built-in configuration"`
	WebDir    string `doc:"Serve static files and templates from this directory instead of the embedded copies"`
	LogFormat string `doc:"Log output format" enum:"json,text" default:"json"`
}

func setupLogging(format string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func loadConfig(opts *Options) *config.Config {
	cfg, err := config.Load(opts.Config, opts.DataDir)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func newServer(opts *Options) *server.Server {
	srv, err := server.New(server.Config{
		Host:   opts.Host,
		Port:   fmt.Sprintf("%d", opts.Port),
		App:    loadConfig(opts),
		WebDir: opts.WebDir,
	})
	if err != nil {
		slog.Error("creating server", "error", err)
		os.Exit(1)
	}
	return srv
}

func printValue(v any, useYAML bool) {
	var output []byte
	var err error
	if useYAML {
		output, err = yaml.Marshal(v)
	} else {
		output, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		setupLogging(opts.LogFormat)
		srv := newServer(opts)
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			slog.Info("geoportal starting",
				"server", baseURL,
				"data", opts.DataDir,
				"viewer", baseURL+"/viewer",
				"docs", baseURL+"/docs",
				"openapi", baseURL+"/openapi.json",
			)

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(ctx)
			if err := srv.Close(); err != nil {
				slog.Warn("closing server", "error", err)
			}
		})
	})

	cli.Root().Use = "geoportal"
	cli.Root().Short = "Agricultural remote sensing geoportal"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts.LogFormat)
			srv := newServer(opts)
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			printValue(srv.OpenAPI(), useYAML)
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// scan subcommand: describe the raster pyramids without starting the server
	scanCmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Describe the raster tile pyramids (default and per-year)",
		Args:  cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts.LogFormat)
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if len(args) == 1 {
				printValue(pyramid.Scan(args[0]), useYAML)
				return
			}
			printValue(service.NewTileService(loadConfig(opts)).List(), useYAML)
		}),
	}
	scanCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(scanCmd)

	// export subcommand: bake a polygon overlay into a PMTiles archive
	exportCmd := &cobra.Command{
		Use:   "export <layer>",
		Short: "Write a polygon overlay (e.g. center-pivot-2023, date-palms) as a PMTiles archive",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts.LogFormat)
			out, _ := cmd.Flags().GetString("output")
			minZoom, _ := cmd.Flags().GetUint32("min-zoom")
			maxZoom, _ := cmd.Flags().GetUint32("max-zoom")
			if out == "" {
				out = args[0] + ".pmtiles"
			}
			if err := exportLayer(cmd.Context(), loadConfig(opts), args[0], out, maptile.Zoom(minZoom), maptile.Zoom(maxZoom)); err != nil {
				slog.Error("export failed", "layer", args[0], "error", err)
				os.Exit(1)
			}
		}),
	}
	exportCmd.Flags().StringP("output", "o", "", "Output file (default <layer>.pmtiles)")
	exportCmd.Flags().Uint32("min-zoom", 4, "Lowest zoom to cut")
	exportCmd.Flags().Uint32("max-zoom", 12, "Highest zoom to cut")
	cli.Root().AddCommand(exportCmd)

	cli.Run()
}

func exportLayer(ctx context.Context, cfg *config.Config, layer, out string, minZoom, maxZoom maptile.Zoom) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ov, err := service.NewOverlayCatalog(cfg, nil).Layer(ctx, layer)
	if err != nil {
		return err
	}
	a, err := vectortile.Export(ov, layer, minZoom, maxZoom)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := a.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	slog.Info("exported overlay", "layer", layer, "file", out, "tiles", a.Len(), "bytes", n)
	return nil
}
