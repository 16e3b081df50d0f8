package server

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CAFxX/httpcompression"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/geoportal/internal/api"
	"github.com/joeblew999/geoportal/internal/api/viewer"
	"github.com/joeblew999/geoportal/internal/config"
	"github.com/joeblew999/geoportal/internal/db"
	"github.com/joeblew999/geoportal/internal/geo"
	"github.com/joeblew999/geoportal/internal/humastar"
	"github.com/joeblew999/geoportal/internal/popup"
	"github.com/joeblew999/geoportal/internal/service"
	"github.com/joeblew999/geoportal/internal/templates"
	"github.com/joeblew999/geoportal/internal/timeseries"
)

// DatastarURL is the client bundle loaded by the viewer page.
const DatastarURL = "https://cdn.jsdelivr.net/gh/starfederation/datastar@v1.0.0-RC.6/bundles/datastar.js"

//go:embed static
var staticFS embed.FS

// Config holds the server configuration.
type Config struct {
	Host string
	Port string
	App  *config.Config
	// WebDir, when set, serves static files and fragment templates from
	// disk instead of the embedded copies.
	WebDir string
}

// Server is the geoportal HTTP server.
type Server struct {
	config   Config
	app      *config.Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	views    []string
	services *api.Services
	bus      *service.EventBus
	renderer *templates.Renderer
}

// New creates a new geoportal server. A missing database only disables
// the SQL routes.
func New(cfg Config) (*Server, error) {
	app := cfg.App
	if app == nil {
		app = config.Default(".data")
	}

	renderer, err := newRenderer(cfg.WebDir)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	bus := service.NewEventBus()
	catalog := service.NewOverlayCatalog(app, nil)
	popups := popup.NewBuilder(app, timeseries.NewNDVISource(app.NDVICSVDir, app.NDVIHTTPBase, nil))
	services := &api.Services{
		Config:  app,
		Catalog: catalog,
		Popups:  popups,
		Sessions: service.NewSessionStore(service.SessionDeps{
			Config:  app,
			Catalog: catalog,
			Popups:  popups,
			Bus:     bus,
		}),
		Sources: service.NewSourceService(app.DataDir),
		Tiles:   service.NewTileService(app),
	}

	s := &Server{
		config:   cfg,
		app:      app,
		mux:      http.NewServeMux(),
		services: services,
		bus:      bus,
		renderer: renderer,
	}

	conn, err := db.Open(db.Config{DataDir: app.DataDir, DBName: "geoportal"})
	if err != nil {
		slog.Warn("database unavailable", "error", err)
	} else {
		s.db = conn
		s.views = db.RegisterCSVViews(context.Background(), conn, []db.CSVView{
			{Name: "sensor_readings", Dir: app.SensorCSVDir},
			{Name: "ndvi_series", Dir: app.NDVICSVDir},
		})
	}

	s.humaAPI = s.newAPI()
	s.routes()
	return s, nil
}

func newRenderer(webDir string) (*templates.Renderer, error) {
	if webDir != "" {
		dir := filepath.Join(webDir, "templates", "fragments")
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			slog.Info("loading fragment templates", "dir", dir)
			return templates.NewFromDir(dir)
		}
	}
	return templates.New()
}

func (s *Server) newAPI() huma.API {
	links := humastar.NewLinks()

	humaConfig := huma.DefaultConfig("Geoportal API", api.Version)
	humaConfig.Info.Description = "Sensor markers, classification rasters, field overlays and time series for agricultural remote sensing."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", s.config.Host, s.config.Port), Description: "Local server"},
	}
	// Disable $schema property in responses
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(s.mux, humaConfig)

	huma.AutoRegister(humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.app, s.db != nil, s.views).RegisterRoutes(humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(humaAPI)
	viewer.NewHandler(s.app, s.services.Sessions, s.services.Sources, s.bus, s.renderer).RegisterRoutes(humaAPI)

	links.Build(humaAPI, "/health", "viewer")
	return humaAPI
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close ends every session and closes the database.
func (s *Server) Close() error {
	s.services.Sessions.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		slog.Warn("response compression disabled", "error", err)
		compress = func(h http.Handler) http.Handler { return h }
	}

	var static http.Handler
	if s.config.WebDir != "" {
		static = http.FileServer(http.Dir(filepath.Join(s.config.WebDir, "static")))
	} else {
		sub, _ := fs.Sub(staticFS, "static")
		static = http.FileServerFS(sub)
	}
	s.mux.Handle("/static/", compress(http.StripPrefix("/static/", static)))
	s.mux.Handle("/assets/", compress(http.StripPrefix("/assets/", http.FileServer(http.Dir(s.app.DataDir)))))

	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles()))

	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/viewer", http.StatusFound)
}

// ViewerPage is the data of the viewer page template.
type ViewerPage struct {
	Title       string
	DatastarURL string
	Signals     string
	Legend      Legend
}

type Legend struct {
	Title string
	Items []config.LegendItem
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	signals, err := viewer.PageSignals(s.app)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	html, err := s.renderer.Render("viewer", ViewerPage{
		Title:       "Geoportal",
		DatastarURL: DatastarURL,
		Signals:     signals,
		Legend:      Legend{Title: s.app.RasterLayerName, Items: s.app.RasterLegend},
	})
	if err != nil {
		slog.Error("render viewer", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(html))
}

// handleTiles serves the default pyramid under raster/ and the per-year
// pyramids under <year>/z/x/y.ext.
func (s *Server) handleTiles() http.Handler {
	raster := http.StripPrefix("raster/", http.FileServer(http.Dir(s.app.TilesDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if strings.HasPrefix(r.URL.Path, "raster/") {
			raster.ServeHTTP(w, r)
			return
		}
		s.serveYearTile(w, r)
	})
}

func (s *Server) serveYearTile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) != 4 {
		http.NotFound(w, r)
		return
	}
	yfile, ext, _ := strings.Cut(parts[3], ".")
	nums := make([]int, 4)
	for i, p := range []string{parts[0], parts[1], parts[2], yfile} {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			http.NotFound(w, r)
			return
		}
		nums[i] = n
	}
	year := nums[0]

	path := s.services.Tiles.YearTilePath(year, nums[1], nums[2], nums[3], ext)
	st, err := os.Stat(path)
	if !geo.IsTileImage(parts[3]) || err != nil || st.IsDir() {
		http.Error(w, fmt.Sprintf("Tile not found: %s. Did you run gdal2tiles for %d?", path, year), http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}
