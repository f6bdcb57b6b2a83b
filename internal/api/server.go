// Package api provides the re-harvester's admin HTTP surface: a health
// check, Prometheus metrics, and read-only introspection into the
// scheduler and fetch-history log. It is deliberately small — just the
// chi-based router middleware stack (request ID, recoverer, timeout)
// plus a handful of read-only routes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harvestnet/reharvest/internal/infra/store"
)

// QueueInspector reports live scheduler state.
type QueueInspector interface {
	QueueDepth() int
}

// Server is the re-harvester's admin HTTP server.
type Server struct {
	queue   QueueInspector
	history *store.DB
}

// NewServer creates a new admin API server. history may be nil if the
// run was configured without a fetch-history log.
func NewServer(queue QueueInspector, history *store.DB) *Server {
	return &Server{queue: queue, history: history}
}

// Handler returns the chi router with every admin route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue", s.handleQueue)
		r.Get("/history", s.handleRecentHistory)
		r.Get("/history/{url}", s.handleHistoryForURL)
	})

	return r
}
