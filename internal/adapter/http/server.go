// Package http exposes the dashboard pipeline over a small JSON API,
// alongside health, readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/pipeline"
)

// Dashboard is the pipeline surface the API serves.
type Dashboard interface {
	View() pipeline.ViewModel
	RequestLocation()
	SelectCourse(course domain.Course)
	ClearManualSelection()
	ToggleUnits() domain.Units
	Refresh(ctx context.Context)
	SearchCourses(ctx context.Context, query string) ([]domain.Course, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the dashboard API plus health, readiness, and metrics
// routes.
type Server struct {
	httpServer *http.Server
	dashboard  Dashboard
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, dashboard Dashboard, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dashboard: dashboard,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/view", s.handleView)
	mux.HandleFunc("GET /api/v1/courses/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/course", s.handleSelectCourse)
	mux.HandleFunc("DELETE /api/v1/course", s.handleClearCourse)
	mux.HandleFunc("POST /api/v1/location/request", s.handleLocationRequest)
	mux.HandleFunc("POST /api/v1/units/toggle", s.handleToggleUnits)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.dashboard.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dashboard.View())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	courses, err := s.dashboard.SearchCourses(r.Context(), query)
	if err != nil {
		s.logger.Warn("course search failed", "query", query, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleSelectCourse(w http.ResponseWriter, r *http.Request) {
	var course domain.Course
	if err := json.NewDecoder(r.Body).Decode(&course); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid course payload"})
		return
	}

	s.dashboard.SelectCourse(course)
	writeJSON(w, http.StatusOK, s.dashboard.View())
}

func (s *Server) handleClearCourse(w http.ResponseWriter, _ *http.Request) {
	s.dashboard.ClearManualSelection()
	writeJSON(w, http.StatusOK, s.dashboard.View())
}

func (s *Server) handleLocationRequest(w http.ResponseWriter, _ *http.Request) {
	// The position request runs in the background; poll the view for the
	// outcome.
	s.dashboard.RequestLocation()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleToggleUnits(w http.ResponseWriter, _ *http.Request) {
	units := s.dashboard.ToggleUnits()
	writeJSON(w, http.StatusOK, map[string]domain.Units{"units": units})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.dashboard.View())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
