package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacksfoundry/yra/internal/logger"
	"github.com/stacksfoundry/yra/internal/metrics"
	"github.com/stacksfoundry/yra/internal/oracle"
	"github.com/stacksfoundry/yra/internal/recommender"
	"github.com/stacksfoundry/yra/internal/state"
	"github.com/stacksfoundry/yra/internal/syncer"
	"github.com/stacksfoundry/yra/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

var startTime = time.Now()

// Server exposes the engine's status and operator surfaces over HTTP. All
// responses are JSON; reads come from atomic snapshots and the database,
// never from a running cycle.
type Server struct {
	router      *mux.Router
	port        string
	syncEngine  *syncer.Engine
	recommender *recommender.Engine
	oracle      oracle.Oracle
	httpServer  *http.Server
}

// NewServer creates a new web server instance.
func NewServer(port string, syncEngine *syncer.Engine, rec *recommender.Engine, orc oracle.Oracle) *Server {
	if port == "" {
		port = "8080"
	}

	server := &Server{
		router:      mux.NewRouter(),
		port:        port,
		syncEngine:  syncEngine,
		recommender: rec,
		oracle:      orc,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health and metrics (direct routes)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	// API endpoints
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/opportunities", s.handleGetOpportunities).Methods("GET")
	api.HandleFunc("/syncs/recent", s.handleGetRecentSyncs).Methods("GET")
	api.HandleFunc("/syncs/{id}", s.handleGetSync).Methods("GET")
	// OPTIONS is listed so browser preflights reach the CORS middleware
	// instead of mux's 405 handler.
	api.HandleFunc("/sync/force", s.handleForceSync).Methods("POST", "OPTIONS")
	api.HandleFunc("/recommendation", s.handleRecommendation).Methods("POST", "OPTIONS")
	api.HandleFunc("/recommendations/recent", s.handleGetRecentRecommendations).Methods("GET")
	api.HandleFunc("/parameters", s.handleGetParameters).Methods("GET")

	// Add CORS middleware
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)
}

// Start starts the web server and blocks until it stops.
func (s *Server) Start() error {
	webLogger.Info().Str("port", s.port).Msg("Starting web server")

	s.httpServer = &http.Server{
		Addr:        ":" + s.port,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Force-sync holds the connection for a full cycle, so writes get
		// more room than reads.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	webLogger.Info().Msg("Shutting down web server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	hasErrors := false

	// Database connection status
	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	// Snapshot freshness
	var snapshotInfo map[string]interface{}
	if snap := s.syncEngine.LatestSnapshot(); snap != nil {
		snapshotInfo = map[string]interface{}{
			"fetched_at":    snap.FetchedAt,
			"age_seconds":   int64(time.Since(snap.FetchedAt).Seconds()),
			"opportunities": len(snap.Opportunities),
			"adapters_ok":   snap.Succeeded(),
		}
	} else {
		// No snapshot yet; expected briefly after startup
		snapshotInfo = map[string]interface{}{
			"fetched_at":    nil,
			"opportunities": 0,
			"adapters_ok":   0,
		}
		hasErrors = true
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(startTime).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "yra-yield-recommendation-aggregator",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"snapshot":         snapshotInfo,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSONResponse(w, statusCode, response)
}

// handleStatus returns the composite engine status: the latest aggregation
// snapshot summary, the oracle baseline, the contract's reported state, and
// sync activity counts. DB and oracle lookups are best effort so the status
// surface stays useful when either is down.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"timestamp": time.Now().UTC(),
	}

	if snap := s.syncEngine.LatestSnapshot(); snap != nil {
		response["snapshot"] = map[string]interface{}{
			"fetched_at":       snap.FetchedAt,
			"opportunities":    len(snap.Opportunities),
			"total_tvl_usd":    snap.TotalTVLUSD,
			"highest_apy":      snap.HighestAPY,
			"adapter_statuses": snap.AdapterStatuses,
		}
	} else {
		response["snapshot"] = nil
	}

	// Baseline is nil until the first accepted push
	response["baseline"] = s.syncEngine.Baseline()

	if orcState, err := s.oracle.Read(r.Context()); err != nil {
		webLogger.Warn().Err(err).Msg("Oracle read failed for status surface")
		response["oracle"] = map[string]interface{}{"error": err.Error()}
	} else {
		response["oracle"] = orcState
	}

	if summary, err := state.GetSyncActivitySummary(); err != nil {
		webLogger.Warn().Err(err).Msg("Sync activity summary unavailable for status surface")
		response["sync_activity"] = nil
	} else {
		response["sync_activity"] = summary
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOpportunities returns the opportunity set from the latest
// aggregation snapshot
func (s *Server) handleGetOpportunities(w http.ResponseWriter, r *http.Request) {
	snap := s.syncEngine.LatestSnapshot()
	if snap == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "No aggregation snapshot available yet")
		return
	}

	response := map[string]interface{}{
		"opportunities":    snap.Opportunities,
		"count":            len(snap.Opportunities),
		"fetched_at":       snap.FetchedAt,
		"adapter_statuses": snap.AdapterStatuses,
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRecentSyncs returns recent sync cycle records
func (s *Server) handleGetRecentSyncs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := state.GetRecentSyncCycles(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent sync cycles")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve sync cycles")
		return
	}

	response := map[string]interface{}{
		"syncs": cycles,
		"count": len(cycles),
		"limit": limit,
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSync returns a specific sync cycle by its cycle ID
func (s *Server) handleGetSync(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cycleID := vars["id"]

	cycle, err := state.GetSyncCycleByID(cycleID)
	if err != nil {
		webLogger.Error().Err(err).Str("cycleId", cycleID).Msg("Failed to get sync cycle")
		s.writeErrorResponse(w, http.StatusNotFound, "Sync cycle not found")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleForceSync clears the baseline and runs a sync cycle immediately. A
// cycle already in flight maps to 409; the trigger is dropped, never queued.
func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncEngine.ForceSync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrCycleInProgress) {
			s.writeErrorResponse(w, http.StatusConflict, "A sync cycle is already in progress")
			return
		}
		webLogger.Error().Err(err).Msg("Forced sync cycle failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Sync cycle failed: "+err.Error())
		return
	}

	s.writeJSONResponse(w, http.StatusOK, result)
}

// handleRecommendation generates a recommendation for the profile in the
// request body, against the latest aggregation snapshot
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	var profile types.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid profile body: "+err.Error())
		return
	}

	snap := s.syncEngine.LatestSnapshot()
	if snap == nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, "No aggregation snapshot available yet")
		return
	}

	rec, err := s.recommender.GetRecommendation(r.Context(), snap.Opportunities, profile)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidProfile):
			s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, recommender.ErrNoSuitableOpportunities):
			s.writeErrorResponse(w, http.StatusNotFound, err.Error())
		default:
			webLogger.Error().Err(err).Msg("Recommendation failed")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to generate recommendation")
		}
		return
	}

	// Persistence is best effort; the caller still gets their answer
	if _, err := state.SaveRecommendation(*rec, profile); err != nil {
		webLogger.Error().Err(err).Str("rec_id", rec.ID).Msg("Failed to persist recommendation")
	}

	s.writeJSONResponse(w, http.StatusOK, rec)
}

// handleGetRecentRecommendations returns recently generated recommendations
func (s *Server) handleGetRecentRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	recs, err := state.GetRecentRecommendations(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent recommendations")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}

	response := map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
		"limit":           limit,
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetParameters returns the currently active engine parameters
func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := state.LoadActiveEngineParameters(state.DefaultParametersConfig)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get engine parameters")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve engine parameters")
		return
	}

	response := map[string]interface{}{
		"parameters": params,
		"timestamp":  time.Now().UTC(),
	}

	s.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	s.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
