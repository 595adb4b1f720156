// Package server implements the HTTP server that exposes the document Q&A
// service as a REST API. The server is started by the `askdocs serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdocs/askdocs-go/internal/chunker"
	"github.com/askdocs/askdocs-go/internal/logging"
	"github.com/askdocs/askdocs-go/internal/metastore"
)

// ownerHeader carries the requesting user's identity. Authentication beyond
// the static API key is handled outside this service; the header is trusted
// once the Bearer token has been verified.
const ownerHeader = "X-User"

// New constructs a Server over the application facade.
func New(svc appService, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: service must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout covers the whole query chain, including generation.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.APIKey == "" {
		cfg.Logger.Warn("server: API key not set, authentication disabled")
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/documents", s.instrument("documents_upload", s.handleUploadDocument))
	mux.HandleFunc("GET /api/documents", s.instrument("documents_list", s.handleListDocuments))
	mux.HandleFunc("GET /api/documents/{id}", s.instrument("documents_get", s.handleGetDocument))
	mux.HandleFunc("PUT /api/documents/{id}/tags", s.instrument("documents_tags", s.handleUpdateTags))
	mux.HandleFunc("DELETE /api/documents/{id}", s.instrument("documents_delete", s.handleDeleteDocument))

	mux.HandleFunc("POST /api/query", s.instrument("query", s.handleQuery))

	mux.HandleFunc("POST /api/chats", s.instrument("chats_create", s.handleCreateChat))
	mux.HandleFunc("GET /api/chats", s.instrument("chats_list", s.handleListChats))
	mux.HandleFunc("GET /api/chats/count", s.instrument("chats_count", s.handleChatCount))
	mux.HandleFunc("GET /api/chats/{id}", s.instrument("chats_get", s.handleGetChat))
	mux.HandleFunc("PUT /api/chats/{id}", s.instrument("chats_update", s.handleUpdateChat))
	mux.HandleFunc("DELETE /api/chats/{id}", s.instrument("chats_delete", s.handleDeleteChat))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.instrument("messages_append", s.handleAppendMessage))
	mux.HandleFunc("DELETE /api/chats/{id}/messages/{messageID}", s.instrument("messages_delete", s.handleDeleteMessage))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Middleware order, outermost first: request logging wraps everything so
	// auth and rate-limit rejections are logged too.
	var handler http.Handler = mux
	handler = rl.middleware(handler)
	handler = authMiddleware(cfg.APIKey, handler)
	handler = requestLogger(cfg.Logger, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the fully wired handler chain for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("askdocs server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// owner extracts the requesting user from the request, writing 400 and
// returning false when the header is absent.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o := r.Header.Get(ownerHeader)
	if o == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s header is required", ownerHeader))
		return "", false
	}
	return o, true
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError encodes an errorResponse with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps a service error onto an HTTP status: not-found to
// 404, capacity and unsupported-format to 400, everything else to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, metastore.ErrCapacity), errors.Is(err, chunker.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
