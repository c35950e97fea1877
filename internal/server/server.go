// Package server wires the chronomaps services, REST API, viewer stream and
// page routes into one http.Handler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/chronomaps/internal/api"
	"github.com/joeblew999/chronomaps/internal/api/viewer"
	"github.com/joeblew999/chronomaps/internal/config"
	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/db"
	"github.com/joeblew999/chronomaps/internal/humastar"
	"github.com/joeblew999/chronomaps/internal/markertiles"
	"github.com/joeblew999/chronomaps/internal/service"
	"github.com/joeblew999/chronomaps/internal/templates"
	"github.com/joeblew999/chronomaps/web"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Optional web/ directory overriding the built-in templates and static files
	// Tunables are the synchronization and content settings.
	Tunables config.Config
	// IdleTimeout closes views whose stream has been gone this long.
	IdleTimeout time.Duration
	// NoCache skips the DuckDB snapshot cache.
	NoCache bool
	// Source overrides the Baserow content source, mainly for tests.
	Source service.SourceFunc
	Logger  *slog.Logger
}

// Server is the chronomaps HTTP server.
type Server struct {
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	links    *humastar.Links
	bus      *service.EventBus
	cache    *db.Store
	services *api.Services
	renderer *templates.Renderer

	cancel context.CancelFunc
}

// New creates a new chronomaps server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	logger := cfg.Logger.With("component", "server")
	mux := http.NewServeMux()
	links := humastar.NewLinks()

	humaConfig := huma.DefaultConfig("Chronomaps API", api.Version)
	humaConfig.Info.Description = "Timeline, map and content synchronization for chronomaps backed by Baserow."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	renderer := loadRenderer(cfg.WebDir, logger)

	var cache *db.Store
	if !cfg.NoCache {
		store, err := db.Open(db.Config{DataDir: cfg.DataDir})
		if err != nil {
			logger.Warn("snapshot cache unavailable", "error", err)
		} else {
			cache = store
		}
	}

	bus := service.NewEventBus()
	maps := service.NewChronomapService(cfg.DataDir, bus)
	contentOpts := service.ContentOptions{
		Endpoint:     cfg.Tunables.Content.Endpoint,
		PollInterval: cfg.Tunables.Content.PollInterval,
		Source:       cfg.Source,
		Logger:       cfg.Logger,
	}
	if cache != nil {
		contentOpts.Store = cache
	}
	contents := service.NewContentService(maps, bus, contentOpts)
	views := service.NewViewService(maps, contents, bus, cfg.Tunables.ViewOptions, cfg.Logger)

	s := &Server{
		config:   cfg,
		logger:   logger,
		mux:      mux,
		humaAPI:  humaAPI,
		links:    links,
		bus:      bus,
		cache:    cache,
		renderer: renderer,
		services: &api.Services{
			Chronomaps: maps,
			Content:    contents,
			Views:      views,
			Cache:      cache,
			Tiles: markertiles.Options{
				MinZoom: cfg.Tunables.Tiles.MinZoom,
				MaxZoom: cfg.Tunables.Tiles.MaxZoom,
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go views.RunReaper(ctx, cfg.IdleTimeout)

	s.routes()
	links.Build(humaAPI)
	return s
}

// loadRenderer prefers templates under webDir and falls back to the
// built-in ones.
func loadRenderer(webDir string, logger *slog.Logger) *templates.Renderer {
	if webDir != "" {
		fragmentsDir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			r, err := templates.New(fragmentsDir)
			if err == nil {
				logger.Info("loaded fragment templates", "dir", fragmentsDir)
				return r
			}
			logger.Warn("fragment templates failed to parse", "dir", fragmentsDir, "error", err)
		}
	}
	r, err := templates.New("")
	if err != nil {
		panic(fmt.Sprintf("built-in templates: %v", err))
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the server's services to the CLI.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close stops every view and content poller and closes the cache.
func (s *Server) Close() error {
	s.cancel()
	s.services.Views.CloseAll()
	s.services.Content.Close()
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)

	// Viewer stream and browser events (Huma + Datastar SDK)
	viewer.NewHandler(s.services.Views, s.renderer, s.config.Logger).RegisterRoutes(s.humaAPI)

	// Static files
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFS()))))

	// Page routes
	s.mux.HandleFunc("GET /c/{slug}", s.handlePage)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) staticFS() fs.FS {
	if s.config.WebDir != "" {
		dir := filepath.Join(s.config.WebDir, "static")
		if _, err := os.Stat(dir); err == nil {
			return os.DirFS(dir)
		}
	}
	sub, err := fs.Sub(web.Static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":    "chronomaps",
		"status":     "running",
		"chronomaps": len(s.services.Chronomaps.List()),
		"views":      s.services.Views.Len(),
	})
}

// handlePage opens a view and serves the page shell that streams it.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, _, err := s.services.Views.Open(ctx, service.ViewRequest{
		Slug:    slug,
		Desktop: r.Header.Get("Sec-CH-UA-Mobile") != "?1",
	})
	if err != nil {
		s.pageError(w, slug, err)
		return
	}
	snap, err := s.services.Content.Snapshot(ctx, slug)
	if err != nil {
		s.pageError(w, slug, err)
		return
	}
	data, err := templates.NewPageData(slug, id, snap)
	if err != nil {
		s.pageError(w, slug, err)
		return
	}
	html, err := s.renderer.Page(data)
	if err != nil {
		s.pageError(w, slug, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Accept-CH", "Sec-CH-UA-Mobile")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprint(w, html)
}

func (s *Server) pageError(w http.ResponseWriter, slug string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "Chronomap not found", http.StatusNotFound)
	case errors.Is(err, content.ErrNotReady):
		w.Header().Set("Retry-After", "5")
		http.Error(w, "Chronomap content is still loading", http.StatusServiceUnavailable)
	default:
		s.logger.Error("page failed", "chronomap", slug, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
