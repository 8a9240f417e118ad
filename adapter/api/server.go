// Package api serves the icesync webhook and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/icesync/internal/trigger"
	"github.com/felixgeelhaar/icesync/pkg/observability"
)

// Webhook response bodies.
const (
	MsgProcessing        = "Processing Tasks."
	MsgAlreadyProcessing = "Already processing webhooks. Please wait."
	MsgError             = "Error processing tasks."
)

// Trigger admits webhook calls.
type Trigger interface {
	OnTrigger(ctx context.Context) (trigger.Admission, error)
}

// MetricsSnapshotter exposes collected metrics.
type MetricsSnapshotter interface {
	Snapshot() observability.Snapshot
}

// Server is the HTTP server for the webhook, health and metrics endpoints.
type Server struct {
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	trigger Trigger
	health  *observability.HealthRegistry
	metrics MetricsSnapshotter
}

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":3000",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates the server. health and metrics may be nil.
func NewServer(cfg ServerConfig, trig Trigger, health *observability.HealthRegistry, metrics MetricsSnapshotter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if health == nil {
		health = observability.NewHealthRegistry()
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		trigger: trig,
		health:  health,
		metrics: metrics,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// Handler returns the root handler with request context and access logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.NewRequestContext(r.Context(), r.Header.Get(observability.CorrelationIDHeader))
		w.Header().Set(observability.CorrelationIDHeader, observability.CorrelationIDFromContext(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		s.mux.ServeHTTP(rec, r.WithContext(ctx))

		s.logger.DebugContext(ctx, "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// handleWebhook admits or rejects a trigger. The body is ignored.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	adm, err := s.admit(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "error processing tasks", "error", err)
		writeText(w, http.StatusInternalServerError, MsgError)
		return
	}

	if !adm.Admitted {
		writeText(w, http.StatusOK, MsgAlreadyProcessing)
		return
	}
	writeText(w, http.StatusOK, MsgProcessing)
}

// admit turns a panic in the trigger into an error so the caller gets a 500.
func (s *Server) admit(ctx context.Context) (adm trigger.Admission, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during admission: %v", r)
		}
	}()
	return s.trigger.OnTrigger(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health.GetOverallHealth(r.Context())

	status := http.StatusOK
	if h.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, observability.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting webhook server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down webhook server")
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}
