// Package api serves the task store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/smstask/internal/logging"
	"github.com/nhle/smstask/internal/metrics"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
)

// Error codes carried in the "code" field of error bodies.
const (
	CodeValidation       = "VALIDATION"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeMalformed        = "MALFORMED"
	CodeInternal         = "INTERNAL"
)

// TaskStore is the store surface the API needs.
type TaskStore interface {
	Create(ctx context.Context, owner, description string) (model.Summary, error)
	List(ctx context.Context) ([]model.Task, error)
	Find(ctx context.Context, f store.Filter) ([]model.Task, error)
	Update(ctx context.Context, f store.Filter, changes store.Changes) (int, error)
	Delete(ctx context.Context, f store.Filter) (model.Summary, bool, error)
	Stats() store.Stats
}

// Server is the HTTP API server.
type Server struct {
	tasks   TaskStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request counts on m and serves it on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a new Server.
func New(tasks TaskStore, opts ...Option) *Server {
	s := &Server{
		tasks:  tasks,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "api")
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// shutdownTimeout bounds how long in-flight requests may take after the
// serve context is cancelled.
const shutdownTimeout = 10 * time.Second

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}

func (s *Server) routes() {
	s.handle("GET /tasks", s.handleTaskList)
	s.handle("POST /tasks", s.handleTaskCreate)
	s.handle("GET /tasks/{id}", s.handleTaskGet)
	s.handle("PUT /tasks/{id}", s.handleTaskUpdate)
	s.handle("DELETE /tasks/{id}", s.handleTaskDelete)

	s.handle("GET /ping", s.handlePing)
	s.handle("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// handle registers fn with request logging, a request ID and metrics.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)

		s.metrics.Request(pattern, rec.status)
		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			slog.String("route", pattern),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", reqID),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"slots":  s.tasks.Stats(),
	})
}

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorBody{Error: msg, Code: code})
}
