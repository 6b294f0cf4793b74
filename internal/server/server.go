// Package server exposes CoreContext's Query/Result contract over HTTP.
// The core stays transport-agnostic; this is a thin wrapper around it.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/core"
)

// Server is the HTTP surface over a CoreContext.
type Server struct {
	core   *core.Context
	logger *zap.Logger
	server *http.Server
}

// New builds a Server around ctx.
func New(ctx *core.Context, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{core: ctx, logger: logger}
}

// Start builds the router and listens on addr; it blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/v1/suggestions", s.handleSuggestions)
	r.Post("/api/v1/rebuild", s.handleStartRebuild)
	r.Post("/api/v1/rebuild/cancel", s.handleCancelRebuild)
	r.Get("/api/v1/rebuild/status", s.handleRebuildStatus)
	r.Get("/api/v1/history/recent", s.handleHistoryRecent)
	r.Get("/api/v1/history/popular", s.handleHistoryPopular)
	r.Get("/api/v1/saved-searches", s.handleListSavedSearches)
	r.Post("/api/v1/saved-searches", s.handleSaveSearch)
	r.Delete("/api/v1/saved-searches/{id}", s.handleDeleteSavedSearch)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	s.server = &http.Server{Addr: addr, Handler: r}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
