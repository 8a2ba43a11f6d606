package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/log"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
)

// Server represents the webhook HTTP server.
type Server struct {
	config  Config
	pub     EventPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	server  *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance. A nil logger uses the
// "webhook" component logger.
func New(config Config, pub EventPublisher, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = log.WithComponent("webhook")
	}

	endpoints := make(map[string]*EndpointConfig)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}
		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		pub:       pub,
		logger:    logger,
		metrics:   m,
		endpoints: endpoints,
	}
}

// Start runs the webhook HTTP server until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the routed handler for all configured endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}
	return r
}

// loggingMiddleware logs HTTP requests without their bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleWebhook verifies, validates and publishes one ISAR payload.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(endpoint.SignatureHeader)
	if err := verifySignature(body, signature, endpoint.Secret); err != nil {
		s.logger.Warn("webhook signature rejected",
			"path", r.URL.Path,
			"header", endpoint.SignatureHeader,
			"present", signature != "",
		)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	inspectionID, err := inspection.ValidateTopicPayload(endpoint.Topic, body)
	if err != nil {
		s.metrics.Failure(metrics.StageIngest)
		s.logger.Warn("rejecting invalid webhook payload", "path", r.URL.Path, "topic", endpoint.Topic, "error", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := log.WithInspection(s.logger, inspectionID)
	ctx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	defer cancel()
	eventID, err := s.pub.Publish(ctx, endpoint.Topic, body)
	if err != nil {
		s.metrics.Failure(metrics.StageIngest)
		logger.Error("failed to publish webhook payload",
			"path", r.URL.Path,
			"topic", endpoint.Topic,
			"error", err,
		)
		msg := "event bus unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "event bus busy"
		}
		s.respondError(w, http.StatusServiceUnavailable, msg)
		return
	}

	logger.Info("webhook payload published",
		"path", r.URL.Path,
		"topic", endpoint.Topic,
		"event_id", eventID,
	)
	s.respondJSON(w, http.StatusAccepted, TriggerResponse{EventID: eventID, InspectionID: inspectionID})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
