// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/linkray"
	"github.com/zombar/linkray/db"
	"github.com/zombar/linkray/identity"
	"github.com/zombar/linkray/metrics"
	"github.com/zombar/linkray/models"
)

// Server represents the API server.
type Server struct {
	db              *db.DB
	service         *linkray.Service
	identity        *identity.Client
	addr            string
	server          *http.Server
	mux             *http.ServeMux
	corsEnabled     bool
	anonymousRecent bool
}

// Config contains server configuration.
type Config struct {
	Addr            string
	CORSEnabled     bool
	AnonymousRecent bool // allow GET /api/recent without a token
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		CORSEnabled: true,
	}
}

// NewServer creates an API server over an already-wired pipeline. identity
// may be nil, in which case every request is treated as anonymous.
func NewServer(config Config, database *db.DB, service *linkray.Service, identityClient *identity.Client) *Server {
	s := &Server{
		db:              database,
		service:         service,
		identity:        identityClient,
		addr:            config.Addr,
		mux:             http.NewServeMux(),
		corsEnabled:     config.CORSEnabled,
		anonymousRecent: config.AnonymousRecent,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "linkray-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // deep crawls are slow
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze(s.service.QuickAnalyze))
	s.mux.HandleFunc("/api/analyze/deep", s.handleAnalyze(s.service.DeepAnalyze))
	s.mux.HandleFunc("/api/recent", s.handleRecent)
	s.mux.HandleFunc("/api/scans/", s.handleScan) // handles /api/scans/{id}
}

// Start starts the API server.
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware applies CORS, request logging and duration metrics to all
// routes. Health checks are excluded from logging to reduce noise.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		metrics.ObserveRequest(r.URL.Path, r.Method, recorder.status, duration)
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", duration.Round(time.Millisecond))
		}
	})
}

// resolveUser resolves the request's bearer token, if any. A missing or
// rejected token yields an empty owner ID; auth service outages also degrade
// to anonymous so that analysis stays available.
func (s *Server) resolveUser(r *http.Request) string {
	token := bearerToken(r)
	if token == "" || s.identity == nil {
		return ""
	}

	user, err := s.identity.Resolve(r.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrUnauthenticated) {
			slog.Warn("identity resolution failed, continuing anonymous", "error", err)
		}
		return ""
	}
	return user.ID
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// handleHealth returns server health status, using a scan count as the
// database liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}

	count, err := s.db.CountScans(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unavailable", "db_unavailable")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"scans":  count,
		"time":   time.Now().UTC(),
	})
}

type analyzeFunc func(ctx context.Context, rawURL, ownerID string) (*models.ScanResult, error)

// handleAnalyze builds the handler shared by the quick and deep endpoints.
func (s *Server) handleAnalyze(analyze analyzeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}

		var req models.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", string(linkray.KindInvalidURL))
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			respondError(w, http.StatusBadRequest, "url is required", string(linkray.KindInvalidURL))
			return
		}

		ownerID := s.resolveUser(r)

		result, err := analyze(r.Context(), req.URL, ownerID)
		if err != nil {
			kind := linkray.KindOf(err)
			slog.Error("analysis failed", "url", req.URL, "kind", kind, "error", err)
			respondError(w, statusForKind(kind), linkray.MessageOf(err), string(kind))
			return
		}

		respondJSON(w, http.StatusOK, models.AnalyzeResponse{Success: true, Data: result})
	}
}

// handleRecent lists the caller's stored scans, newest first. Without a
// valid token the endpoint is only available when anonymous listing is
// enabled, and then returns scans across all owners.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}

	ownerID := s.resolveUser(r)
	if ownerID == "" && !s.anonymousRecent {
		respondError(w, http.StatusUnauthorized, "authentication required", string(linkray.KindUnauthenticated))
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	results, err := s.service.RecentScans(r.Context(), ownerID, limit)
	if err != nil {
		kind := linkray.KindOf(err)
		slog.Error("recent listing failed", "kind", kind, "error", err)
		respondError(w, statusForKind(kind), linkray.MessageOf(err), string(kind))
		return
	}

	respondJSON(w, http.StatusOK, models.RecentResponse{Success: true, Data: results})
}

// handleScan handles per-scan operations. Deletion is owner-scoped: a scan
// can only be removed by the user it belongs to.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required", "bad_request")
		return
	}

	if r.Method != http.MethodDelete {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}

	ownerID := s.resolveUser(r)
	if ownerID == "" {
		respondError(w, http.StatusUnauthorized, "authentication required", string(linkray.KindUnauthenticated))
		return
	}

	if err := s.db.DeleteScan(r.Context(), id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "scan not found", "not_found")
			return
		}
		slog.Error("scan deletion failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete scan", string(linkray.KindPersistenceFailed))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "scan deleted"})
}

// statusForKind maps pipeline error classifications to HTTP statuses.
func statusForKind(kind linkray.Kind) int {
	switch kind {
	case linkray.KindInvalidURL:
		return http.StatusBadRequest
	case linkray.KindUnauthenticated:
		return http.StatusUnauthorized
	case linkray.KindNoContent:
		return http.StatusUnprocessableEntity
	case linkray.KindFetchTimeout:
		return http.StatusGatewayTimeout
	case linkray.KindFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, models.AnalyzeResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
