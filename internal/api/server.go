// Package api exposes the resolver over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"NewYorkCrimes/internal/domain"
	"NewYorkCrimes/internal/logging"
	"NewYorkCrimes/internal/usecase"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	shutdownTimeout     = 5 * time.Second
)

// Service is the use case surface the HTTP handlers depend on.
type Service interface {
	Resolve(ctx context.Context, raw string) (domain.Resolution, error)
	History(ctx context.Context, limit int) ([]domain.Resolution, error)
	Classify(raw string) (domain.HostClass, bool)
}

type Server struct {
	service Service
	logger  *slog.Logger
}

func NewServer(service Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{service: service, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/classify", s.classify)
	r.Get("/resolve", s.resolve)
	r.Get("/history", s.history)

	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http server stopped")
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if r.URL.Path == "/health" {
			return
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	class, intercept := s.service.Classify(raw)
	writeJSON(w, map[string]any{
		"url":       raw,
		"class":     class,
		"intercept": intercept,
	})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	res, err := s.service.Resolve(r.Context(), raw)
	switch {
	case err == nil:
		writeJSON(w, resolutionToOutput(res))
	case errors.Is(err, usecase.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, usecase.ErrNotArticle):
		writeJSONStatus(w, map[string]any{"url": raw, "intercept": false}, http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("resolve failed", "url", raw, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	items, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.logger.Error("history failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	output := make([]map[string]any, 0, len(items))
	for _, item := range items {
		output = append(output, resolutionToOutput(item))
	}
	writeJSON(w, map[string]any{"resolutions": output})
}

func resolutionToOutput(res domain.Resolution) map[string]any {
	trail := res.Trail
	if trail == nil {
		trail = []string{}
	}
	return map[string]any{
		"id":          res.ID,
		"original":    res.Original,
		"resolved":    res.Resolved,
		"stage":       res.Stage,
		"fallback":    res.Fallback,
		"cached":      res.Cached,
		"trail":       trail,
		"started_at":  res.StartedAt,
		"duration_ms": res.Duration.Milliseconds(),
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSONStatus(w, map[string]string{"error": message}, statusCode)
}
