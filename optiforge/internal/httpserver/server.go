package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optiforge/platform/optiforge/internal/config"
	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/service"
	"github.com/optiforge/platform/optiforge/internal/store"
)

const (
	maxSpecBytes       = 1 << 20
	minRequestTimeout  = 30 * time.Second
	requestTimeoutPad  = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
)

type Server struct {
	cfg      config.Config
	svc      *service.Service
	db       store.Store
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New builds the HTTP surface. A nil gatherer disables /metrics.
func New(cfg config.Config, svc *service.Service, db store.Store, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, svc: svc, db: db, gatherer: gatherer, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/{id}", s.handleGetRun)
		r.Post("/{id}/generate", s.handleGenerate)
		r.Post("/{id}/solve", s.handleSolve)
	})

	return r
}

// requestTimeout covers a generate call with all provider retries, or a
// solve at the configured budget.
func (s *Server) requestTimeout() time.Duration {
	generate := s.cfg.ProviderTimeout() * time.Duration(s.cfg.ProviderRetries+1)
	d := max(generate, s.cfg.SolverBudget()) + requestTimeoutPad
	return max(d, minRequestTimeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.db.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var spec models.ProblemSpec
	if err := decodeJSON(w, r, &spec, maxSpecBytes); err != nil {
		respondError(w, http.StatusBadRequest, service.Code(service.ErrInvalidInput), err.Error())
		return
	}
	id, err := s.svc.Create(r.Context(), spec, "", "")
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	rec, err := s.svc.Get(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Solve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	respondError(w, status, service.Code(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrSchemaInvalid), errors.Is(err, service.ErrSemanticInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGeneratorFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
