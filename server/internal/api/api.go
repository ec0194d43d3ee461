// Package api provides the HTTP surface of the fleet server.
//
// # Endpoints
//
// Report API:
//   - GET  /api/v1/report - Latest aggregate report
//   - GET  /api/v1/report/hosts.csv - Latest per-host inventory as CSV
//   - POST /api/v1/refresh - Trigger a collection run (409 if one is running)
//
// Run history:
//   - GET  /api/v1/runs - List run summaries, newest first
//   - GET  /api/v1/runs/{id} - Full report of one run
//
// Operational:
//   - GET  /api/v1/activity - Recent refresh activity
//   - GET  /api/v1/health - Health check
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/export"
	"github.com/pilot-net/esxi-fleet/pkg/types"
	"github.com/pilot-net/esxi-fleet/server/internal/metrics"
	"github.com/pilot-net/esxi-fleet/server/internal/service"
)

const defaultRunsLimit = 50

// Server is the HTTP API server.
type Server struct {
	svc              *service.Service
	metricsCollector *metrics.Collector // may be nil
	logger           *slog.Logger
	mux              *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(svc *service.Service, metricsCollector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		svc:              svc,
		metricsCollector: metricsCollector,
		logger:           logger,
		mux:              http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request",
		"method", r.Method,
		"path", r.URL.Path,
		"duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/v1/report", s.handleReport)
	s.mux.HandleFunc("GET /api/v1/report/hosts.csv", s.handleReportCSV)
	s.mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)

	s.mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)

	s.mux.HandleFunc("GET /api/v1/activity", s.handleActivity)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.metricsCollector != nil {
		s.writeJSON(w, http.StatusOK, s.metricsCollector.GetHealth(r.Context()))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.LatestReport(r.Context())
	if errors.Is(err, service.ErrNoReport) {
		s.writeError(w, http.StatusNotFound, "no report available yet")
		return
	}
	if err != nil {
		s.logger.Error("failed to load report", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.LatestReport(r.Context())
	if errors.Is(err, service.ErrNoReport) {
		s.writeError(w, http.StatusNotFound, "no report available yet")
		return
	}
	if err != nil {
		s.logger.Error("failed to load report", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="esxi_hosts.csv"`)
	if err := export.WriteCSV(w, report); err != nil {
		s.logger.Error("failed to write csv", "error", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.svc.StartRefresh()
	if errors.Is(err, service.ErrRefreshInProgress) {
		s.writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}
	if err != nil {
		s.logger.Error("failed to start refresh", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start refresh")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.svc.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []types.RunSummary{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := s.svc.GetRun(r.Context(), id)
	if errors.Is(err, service.ErrNoReport) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Activity())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
