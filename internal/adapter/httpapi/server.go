// Package httpapi exposes the enrichment and ingestion operations over HTTP,
// alongside health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parcelworks/gis-enrichment-service/internal/domain"
	"github.com/parcelworks/gis-enrichment-service/internal/enrich"
	"github.com/parcelworks/gis-enrichment-service/internal/seeder"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Ingestor runs one ingestion pass over the given layers. Implemented by
// seeder.Seeder.
type Ingestor interface {
	Run(ctx context.Context, layers []domain.LayerConfig) seeder.Summary
}

// Server exposes the enrichment API plus operational endpoints.
type Server struct {
	httpServer *http.Server
	enricher   enrich.Enricher
	ingestor   Ingestor
	layers     []domain.LayerConfig
	ingesting  atomic.Bool
	logger     *slog.Logger
}

// ingestRequest selects which configured layers one ingestion run covers.
// Empty fields match everything.
type ingestRequest struct {
	LayerKey     string `json:"layer_key,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Category     string `json:"category,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the enrichment and ingestion handlers onto a chi router
// with /healthz, /readyz, and /metrics.
func NewServer(addr string, enricher enrich.Enricher, ingestor Ingestor, layers []domain.LayerConfig, ready ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		enricher: enricher,
		ingestor: ingestor,
		layers:   layers,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/ingest", s.handleIngest)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

// handleEnrich runs site enrichment for one coordinate. Category failures
// come back inside the result body; only malformed requests and
// unresolvable jurisdictions produce non-200 statuses.
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrich.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Coordinate.Lat < -90 || req.Coordinate.Lat > 90 || req.Coordinate.Lng < -180 || req.Coordinate.Lng > 180 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "coordinate out of range"})
		return
	}

	result, err := s.enricher.Enrich(r.Context(), req)
	if err != nil {
		if containsFlag(result.Flags, enrich.FlagJurisdictionNotConfigured) {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		s.logger.Error("enrichment failed", "request_id", result.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// errIngestionRunning rejects overlapping runs; the resume offset is read
// per run, so two writers would double-ingest pages.
var errIngestionRunning = errors.New("ingestion already running")

// handleIngest triggers one synchronous ingestion pass. A single run at a
// time; concurrent triggers get 409.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ingestion not configured"})
		return
	}

	var req ingestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	layers := seeder.Filter(s.layers, req.LayerKey, req.Jurisdiction, req.Category)
	if len(layers) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no layers match the requested filter"})
		return
	}

	if !s.ingesting.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: errIngestionRunning.Error()})
		return
	}
	defer s.ingesting.Store(false)

	summary := s.ingestor.Run(r.Context(), layers)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
