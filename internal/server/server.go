// Package server provides the HTTP API for mirip.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mirip/internal/catalog"
	"github.com/hyperjump/mirip/internal/config"
	"github.com/hyperjump/mirip/internal/indexstore"
	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/storage"
)

// Server is the HTTP server for the mirip API.
type Server struct {
	catalog   *catalog.Service
	manager   *lifecycle.Manager
	history   storage.History
	persister *indexstore.Persister
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. history and
// persister may be nil; the build history and disk usage are then not reported.
func NewServer(
	svc *catalog.Service,
	history storage.History,
	persister *indexstore.Persister,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		catalog:   svc,
		manager:   svc.Manager(),
		history:   history,
		persister: persister,
		config:    cfg,
		logger:    logger,
	}
}

// Router builds the HTTP handler with all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/products/{id}", s.handleAddProduct)
		r.Delete("/products/{id}", s.handleDeleteProduct)
		r.Post("/rebuild", s.handleRebuild)
		r.Get("/status", s.handleStatus)
		r.Get("/builds", s.handleListBuilds)
		r.Get("/builds/{id}", s.handleGetBuild)
	})

	r.Post("/search", s.handleLegacySearch)
	r.Post("/add-product/{id}", s.handleLegacyAddProduct)
	r.Post("/delete-product/{id}", s.handleDeleteProduct)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
