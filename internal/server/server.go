package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/atxgeo/parcelmap/internal/api"
	"github.com/atxgeo/parcelmap/internal/api/live"
	"github.com/atxgeo/parcelmap/internal/composer"
	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/db"
	"github.com/atxgeo/parcelmap/internal/enrich"
	"github.com/atxgeo/parcelmap/internal/store"
	"github.com/atxgeo/parcelmap/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host        string
	Port        string
	DataDir     string
	WebDir      string // Path to web/ directory for static files and templates
	MapboxToken string // Geocoding access token; empty disables geocoding
}

// Server is the parcelmap HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	data     *dataset.Collection
	services *api.Services
	renderer *templates.Renderer
	surface  *stateSurface
	composer *composer.Composer
	log      *slog.Logger
}

// New creates a new parcelmap server: loads every dataset, opens the
// property store and analytics database, and registers all routes.
func New(cfg Config) *Server {
	mux := http.NewServeMux()
	log := slog.Default().With("component", "server")

	humaConfig := huma.DefaultConfig("parcelmap API", "1.0.0")
	humaConfig.Info.Description = "Travis County parcel and building map: property submissions, dataset summaries, layer-mode control, and SQL analytics over parcel valuations."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	loader := dataset.NewLoader(cfg.DataDir)
	data := loader.LoadAll(context.Background())
	log.Info("datasets loaded",
		"parcels", len(data.Parcels),
		"addresses", len(data.Addresses),
		"counties", len(data.Counties),
		"buildings", data.Buildings.LoadedCount,
		"synthetic_buildings", data.Buildings.Synthetic)

	properties := store.NewPropertyService(
		store.NewFileBlobStore(filepath.Join(cfg.DataDir, "store")))

	var geocoder *enrich.Geocoder
	if cfg.MapboxToken != "" {
		geocoder = enrich.NewGeocoder(enrich.GeocoderConfig{AccessToken: cfg.MapboxToken})
	} else {
		log.Warn("no geocoding token configured, submissions must carry coordinates")
	}

	services := &api.Services{
		Properties: properties,
		Geocoder:   geocoder,
		Sampler:    enrich.NewSampler(geocoder),
		Data:       data,
		Mode:       &api.ModeState{},
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		data:     data,
		services: services,
		log:      log,
	}

	// Analytics store: best effort, the map works without it.
	if conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "parcelmap"}); err != nil {
		log.Warn("analytics database unavailable", "error", err)
	} else {
		s.db = conn
		services.DB = conn
		if err := db.LoadParcels(context.Background(), conn, data.Parcels); err != nil {
			log.Warn("parcel analytics load failed", "error", err)
		}
	}

	// The composer materializes the active layer set onto the server-side
	// surface; the map page pulls the snapshot from /api/v1/layer-state.
	s.surface = newStateSurface()
	s.composer = composer.New(composer.Config{Surface: s.surface})
	s.composer.SetData(data)
	s.composer.SetProperties(properties.List())
	go watchStore(s.composer, properties)

	s.renderer = newRenderer(cfg.WebDir, log)

	s.routes()
	return s
}

// watchStore keeps the composer reconciled: property mutations re-supply
// the submitted list, layer-mode switches published on the same bus
// re-run the mode plan.
func watchStore(comp *composer.Composer, properties *store.PropertyService) {
	ch := properties.Bus().Subscribe()
	for ev := range ch {
		if ev.Action == "mode-changed" {
			if mode, err := composer.ParseLayerMode(ev.ID); err == nil {
				comp.SetMode(mode)
			}
			continue
		}
		comp.SetProperties(properties.List())
	}
}

// newRenderer prefers on-disk fragments when a web dir is configured,
// falling back to the embedded set.
func newRenderer(webDir string, log *slog.Logger) *templates.Renderer {
	if webDir != "" {
		fragmentsDir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			if r, err := templates.NewFromDir(fragmentsDir); err == nil {
				log.Info("loaded fragment templates", "dir", fragmentsDir)
				return r
			}
		}
	}
	r, err := templates.New()
	if err != nil {
		// The embedded set is compiled in; a parse failure is a build bug.
		panic(err)
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI exposes the generated spec for the CLI export subcommand.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	info := api.NewInfoHandler(s.config.DataDir, s.db != nil)
	info.RegisterRoutes(s.humaAPI)

	// Live SSE routes for the map page
	liveHandler := live.NewPropertyHandler(
		s.services.Properties, s.services.Geocoder, s.services.Mode, s.renderer)
	liveHandler.RegisterRoutes(s.humaAPI)

	// Materialized layer state the map page applies
	huma.Get(s.humaAPI, "/api/v1/layer-state", s.getLayerState, huma.OperationTags("layers"))

	// Normalized dataset GeoJSON for the map page
	s.mux.HandleFunc("/data/parcels.geojson", s.handleParcelsGeoJSON)
	s.mux.HandleFunc("/data/addresses.geojson", s.handleAddressesGeoJSON)
	s.mux.HandleFunc("/data/buildings.geojson", s.handleBuildingsGeoJSON)
	s.mux.Handle("/data/", http.StripPrefix("/data/", s.handleDataFiles(s.config.DataDir)))

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/map", s.handleMap)
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

// LayerStateOutput is the layer-state response.
type LayerStateOutput struct {
	Body struct {
		Mode string `json:"mode" doc:"Active layer mode"`
		LayerState
	}
}

func (s *Server) getLayerState(ctx context.Context, input *struct{}) (*LayerStateOutput, error) {
	out := &LayerStateOutput{}
	out.Body.Mode = s.composer.Mode().String()
	out.Body.LayerState = s.surface.snapshot()
	return out, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "parcelmap",
		"status":  "running",
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "map.html")
	http.ServeFile(w, r, templatePath)
}

// handleDataFiles serves raw dataset files with the CORS headers the
// browser map needs for range requests.
func (s *Server) handleDataFiles(dataDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(dataDir)).ServeHTTP(w, r)
	})
}

func (s *Server) handleParcelsGeoJSON(w http.ResponseWriter, r *http.Request) {
	s.writeGeoJSON(w, parcelsFeatureCollection(s.data))
}

func (s *Server) handleAddressesGeoJSON(w http.ResponseWriter, r *http.Request) {
	s.writeGeoJSON(w, addressesFeatureCollection(s.data))
}

func (s *Server) handleBuildingsGeoJSON(w http.ResponseWriter, r *http.Request) {
	s.writeGeoJSON(w, buildingsFeatureCollection(s.data))
}

func (s *Server) writeGeoJSON(w http.ResponseWriter, fc any) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		s.log.Warn("writing geojson response failed", "error", err)
	}
}
