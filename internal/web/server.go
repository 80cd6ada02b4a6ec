// Package web exposes the matching engine over HTTP.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-matcher/internal/cache"
	"github.com/kozaktomas/photo-matcher/internal/config"
	"github.com/kozaktomas/photo-matcher/internal/matcher"
	"github.com/kozaktomas/photo-matcher/internal/store"
	"github.com/kozaktomas/photo-matcher/internal/web/handlers"
	"github.com/kozaktomas/photo-matcher/internal/web/middleware"
)

// Server is the HTTP front for the matching engine.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	jobs       *handlers.JobManager
}

// NewServer wires the matching engine and its asset store into an HTTP
// server listening on host:port.
func NewServer(cfg *config.Config, engine *matcher.Engine, assets store.AssetStore, descriptors *cache.Cache, host string, port int) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		jobs:   handlers.NewJobManager(),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())

	s.setupRoutes(cfg, engine, assets, descriptors)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // matching runs can be long
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(cfg *config.Config, engine *matcher.Engine, assets store.AssetStore, descriptors *cache.Cache) {
	matchHandler := handlers.NewMatchHandler(engine, assets, &cfg.Matching, s.jobs)
	presetsHandler := handlers.NewPresetsHandler(&cfg.Matching)
	statsHandler := handlers.NewStatsHandler(assets, descriptors)
	descriptorsHandler := handlers.NewDescriptorsHandler(descriptors)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/match", matchHandler.Match)
		r.Post("/match/jobs", matchHandler.Start)
		r.Get("/match/jobs/{jobId}", matchHandler.Status)
		r.Delete("/match/jobs/{jobId}", matchHandler.Cancel)

		r.Get("/presets", presetsHandler.List)
		r.Get("/stats", statsHandler.Get)
		r.Get("/descriptors/*", descriptorsHandler.Get)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
