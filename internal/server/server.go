// Package server exposes the retrieval pipeline and the study over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/coursebot/internal/lexical"
	"github.com/ziadkadry99/coursebot/internal/logger"
	"github.com/ziadkadry99/coursebot/internal/markdown"
	"github.com/ziadkadry99/coursebot/internal/retrieval"
	"github.com/ziadkadry99/coursebot/internal/study"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowAll       bool          // allow all CORS origins (dev mode)
	RequestTimeout time.Duration // 0 means 60s
	DefaultK       int           // used when a request omits k
}

// QueryProcessor is the retrieval pipeline as the server uses it.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, q retrieval.Query) (retrieval.Answer, error)
	Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Document, error)
}

// FacetSource lists the values available for filtering.
type FacetSource interface {
	Facets(ctx context.Context) (lexical.FacetValues, error)
}

// Server serves the query API, the study API and the chat websocket.
type Server struct {
	cfg        Config
	pipeline   QueryProcessor
	facets     FacetSource
	studies    *study.Manager
	renderer   *markdown.Renderer
	log        *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server. studies may be nil, in which case the session
// endpoints are not mounted.
func New(cfg Config, pipeline QueryProcessor, facets FacetSource, studies *study.Manager, log *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		facets:   facets,
		studies:  studies,
		renderer: markdown.NewRenderer(),
		log:      log,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.log))
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The websocket outlives the request timeout.
	r.Get("/ws/chat", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/api/facets", s.handleFacets)
		r.Post("/api/query", s.handleQuery)
		r.Post("/api/retrieve", s.handleRetrieve)

		if s.studies != nil {
			r.Route("/api/sessions", func(r chi.Router) {
				r.Post("/", s.handleStartSession)
				r.Get("/{id}", s.handleGetSession)
				r.Post("/{id}/query", s.handleSessionQuery)
				r.Post("/{id}/feedback", s.handleSessionFeedback)
				r.Post("/{id}/advance", s.handleSessionAdvance)
				r.Get("/{id}/logs", s.handleSessionLogs)
			})
		}
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info("coursebot server listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
