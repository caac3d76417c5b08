package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesearch/internal/config"
	"github.com/JakeFAU/sitesearch/internal/crawler"
	"github.com/JakeFAU/sitesearch/internal/logging"
	"github.com/JakeFAU/sitesearch/internal/metrics"
	"github.com/JakeFAU/sitesearch/internal/search"
)

const defaultRequestTimeout = 60 * time.Second

// Indexing controls crawls and reports index statistics.
type Indexing interface {
	StartIndexing(ctx context.Context) error
	StopIndexing(ctx context.Context) error
	IndexPage(ctx context.Context, rawURL string) error
	Statistics(ctx context.Context) (crawler.Statistics, error)
}

// Searcher answers ranked queries.
type Searcher interface {
	Search(ctx context.Context, query, site string, offset, limit int) (search.Response, error)
}

// IDGenerator produces request IDs.
type IDGenerator interface {
	MustID() string
}

// ReadinessCheck reports whether downstream dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the crawl service and the search engine.
type Server struct {
	router   chi.Router
	indexing Indexing
	searcher Searcher
	ready    ReadinessCheck
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil.
func NewServer(
	indexing Indexing,
	searcher Searcher,
	ids IDGenerator,
	ready ReadinessCheck,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		indexing: indexing,
		searcher: searcher,
		ready:    ready,
		logger:   logging.OrNop(logger).Named("api"),
	}
	timeout := defaultRequestTimeout
	if cfg.Server.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(ids))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Get("/search", s.search)
		r.Get("/statistics", s.statistics)
		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Get("/startIndexing", s.startIndexing)
			r.Get("/stopIndexing", s.stopIndexing)
			r.Post("/indexPage", s.indexPage)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
