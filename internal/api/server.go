package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/auth"
	"github.com/mattjoyce/plantdata-gw/internal/events"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
)

// InspectionReader reads durable inspection records.
type InspectionReader interface {
	Get(ctx context.Context, inspectionID string) (*inspection.Record, error)
	Recent(ctx context.Context, limit int) ([]*inspection.Record, error)
}

// RuleTable is the live tag-analysis table used by the dispatcher.
type RuleTable interface {
	Refresh(ctx context.Context, src analysis.Source) (int, error)
	Len() int
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the operator HTTP API server
type Server struct {
	config    Config
	records   InspectionReader
	mappings  analysis.Source
	rules     RuleTable
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger
	auth      *auth.Authenticator
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. It fails if a token carries an
// unknown scope.
func New(config Config, records InspectionReader, mappings analysis.Source, rules RuleTable, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	authenticator, err := auth.NewAuthenticator(config.APIKey, config.Tokens)
	if err != nil {
		return nil, fmt.Errorf("api auth: %w", err)
	}
	return &Server{
		config:    config,
		auth:      authenticator,
		records:   records,
		mappings:  mappings,
		rules:     rules,
		bus:       bus,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// Start starts the HTTP server and blocks until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.require(auth.Inspections, auth.Read)).Get("/inspections", s.handleListInspections)
		r.With(s.require(auth.Inspections, auth.Read)).Get("/inspections/{inspectionID}", s.handleGetInspection)
		r.With(s.require(auth.Mappings, auth.Read)).Get("/mappings", s.handleListMappings)
		r.With(s.require(auth.Mappings, auth.Write)).Post("/mappings/reload", s.handleReloadMappings)
		r.With(s.require(auth.Events, auth.Read)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
