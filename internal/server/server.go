// Package server provides the HTTP API for kagami.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/config"
	"github.com/hyperjump/kagami/internal/search"
	"github.com/hyperjump/kagami/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the kagami API.
type Server struct {
	service   *search.Service
	catalog   *catalog.Catalog
	history   storage.HistoryStore
	config    *config.ServerConfig
	root      string
	storePath string
	exts      []string
	logger    *zap.Logger
	server    *http.Server
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithCatalog enables the catalog endpoints.
func WithCatalog(c *catalog.Catalog, root string) Option {
	return func(s *Server) {
		s.catalog = c
		s.root = root
	}
}

// WithHistory enables the history endpoints.
func WithHistory(h storage.HistoryStore) Option {
	return func(s *Server) { s.history = h }
}

// WithStorePath enables POST /api/v1/reload from the persisted store at path.
func WithStorePath(path string) Option {
	return func(s *Server) { s.storePath = path }
}

// WithExtensions rejects multipart uploads whose filename has another extension.
func WithExtensions(exts []string) Option {
	return func(s *Server) { s.exts = exts }
}

// NewServer creates a server with the given dependencies.
func NewServer(svc *search.Service, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: svc,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.With(middleware.Compress(5)).Get("/stats", s.handleStats)
		r.With(middleware.Compress(5)).Get("/catalog", s.handleCatalog)
		r.With(middleware.Compress(5)).Get("/classes", s.handleClasses)
		r.Get("/history", s.handleHistoryList)
		r.Get("/history/{id}", s.handleHistoryGet)
		r.Get("/artifacts/{row}", s.handleArtifact)
		r.Post("/reload", s.handleReload)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
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
