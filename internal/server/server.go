package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/gobeyondidentity/census-sync/internal/census"
	"github.com/gobeyondidentity/census-sync/internal/config"
	syncengine "github.com/gobeyondidentity/census-sync/internal/sync"
)

// Version is reported by /health and /version
var Version = "0.1.0"

const requestIDHeader = "X-Request-ID"

// Server represents the HTTP server for Census sync operations
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
	config     *config.Config
	syncEngine SyncEngine
	scheduler  *Scheduler
	metrics    *Metrics
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	LastSync    *time.Time        `json:"last_sync,omitempty"`
	NextSync    *time.Time        `json:"next_sync,omitempty"`
	SyncEnabled bool              `json:"sync_enabled"`
}

// SyncResponse represents the response to a run of all configured syncs
type SyncResponse struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Result    *SyncStats `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// SyncStats represents the outcome of a batch of sync runs
type SyncStats struct {
	SyncsTriggered   int            `json:"syncs_triggered"`
	RunsCompleted    int            `json:"runs_completed"`
	RunsFailed       int            `json:"runs_failed"`
	RunsTimedOut     int            `json:"runs_timed_out"`
	RecordsProcessed int64          `json:"records_processed"`
	Runs             []*RunResponse `json:"runs,omitempty"`
	Duration         time.Duration  `json:"duration"`
	Errors           []string       `json:"errors"`
}

// RunResponse describes a single sync run
type RunResponse struct {
	Status         string          `json:"status"`
	Message        string          `json:"message,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	SyncID         int64           `json:"sync_id,omitempty"`
	RunID          int64           `json:"sync_run_id,omitempty"`
	SyncHistoryURL string          `json:"sync_history_url,omitempty"`
	Run            *census.SyncRun `json:"sync_run,omitempty"`
	Duration       time.Duration   `json:"duration,omitempty"`
	DryRun         bool            `json:"dry_run,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ErrorResponse is returned for requests that could not be served
type ErrorResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.Config, syncEngine SyncEngine, logger *logrus.Logger) *Server {
	metrics := NewMetrics()

	// Create scheduler if scheduling is enabled
	var scheduler *Scheduler
	if cfg.Server.ScheduleEnabled {
		scheduler = NewScheduler(cfg.Server.Schedule, syncEngine, logger, metrics)
	}

	server := &Server{
		logger:     logger,
		config:     cfg,
		syncEngine: syncEngine,
		scheduler:  scheduler,
		metrics:    metrics,
	}

	router := mux.NewRouter()
	server.registerRoutes(router)

	// Waiting endpoints hold the connection open for up to max_wait_seconds
	var writeTimeout time.Duration
	if cfg.Sync.MaxWaitSeconds > 0 {
		writeTimeout = time.Duration(cfg.Sync.MaxWaitSeconds)*time.Second + time.Minute
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// registerRoutes sets up HTTP endpoints
func (s *Server) registerRoutes(router *mux.Router) {
	router.Use(s.requestIDMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/version", s.handleVersion).Methods("GET")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	// Sync endpoints
	router.HandleFunc("/sync", s.handleSync).Methods("POST")
	router.HandleFunc("/syncs/{sync_id:[0-9]+}", s.handleSyncInfo).Methods("GET")
	router.HandleFunc("/syncs/{sync_id:[0-9]+}/trigger", s.handleTriggerSync).Methods("POST")
	router.HandleFunc("/sync_runs/{run_id:[0-9]+}", s.handleSyncRunInfo).Methods("GET")
	router.HandleFunc("/sync_runs/{run_id:[0-9]+}/wait", s.handleWaitForRun).Methods("POST")

	// Scheduler control endpoints
	if s.scheduler != nil {
		router.HandleFunc("/scheduler/start", s.handleSchedulerStart).Methods("POST")
		router.HandleFunc("/scheduler/stop", s.handleSchedulerStop).Methods("POST")
		router.HandleFunc("/scheduler/status", s.handleSchedulerStatus).Methods("GET")
	}
}

// Start starts the HTTP server and scheduler, and blocks until shutdown
func (s *Server) Start() error {
	s.logger.Infof("Starting Census sync server on port %d", s.config.Server.Port)

	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		s.logger.Info("Scheduler started successfully")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.logger.Info("Census sync server started successfully")

	return s.waitForShutdown(errChan)
}

// waitForShutdown waits for termination signals and performs graceful shutdown
func (s *Server) waitForShutdown(errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	select {
	case sig := <-sigChan:
		s.logger.Infof("Received signal %s, starting graceful shutdown...", sig)
	case serveErr = <-errChan:
		s.logger.Errorf("HTTP server error: %v", serveErr)
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.logger.Info("HTTP server stopped gracefully")
	}

	if serveErr != nil {
		return fmt.Errorf("HTTP server error: %w", serveErr)
	}
	return nil
}

// requestIDMiddleware tags every request with an id, reusing the caller's if present
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Debug("Handled request")
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"census":    "configured",
		"scheduler": "disabled",
	}
	if s.config.App.TestMode {
		services["census"] = "test_mode"
	}

	response := HealthResponse{
		Status:      "healthy",
		Version:     Version,
		Timestamp:   time.Now(),
		Services:    services,
		SyncEnabled: s.scheduler != nil,
	}

	if s.scheduler != nil {
		services["scheduler"] = "stopped"
		if s.scheduler.IsRunning() {
			services["scheduler"] = "running"
		}
		response.LastSync = s.scheduler.GetLastSync()
		response.NextSync = s.scheduler.GetNextSync()
	}

	writeJSON(w, http.StatusOK, response)
}

// handleSync runs every configured sync and waits for all of them
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Manual sync requested via API")

	startTime := time.Now()
	result, err := s.syncEngine.Sync(r.Context())
	duration := time.Since(startTime)

	response := SyncResponse{
		Timestamp: time.Now(),
	}

	if result == nil {
		if err == nil {
			err = errors.New("sync returned no result")
		}
		s.logger.Errorf("Manual sync failed: %v", err)
		s.metrics.RecordFailedSync(err, duration)

		response.Status = "error"
		response.Message = "Sync operation failed"
		response.Error = err.Error()

		status := http.StatusInternalServerError
		if errors.Is(err, syncengine.ErrNoSyncsConfigured) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, response)
		return
	}

	s.metrics.RecordSync(result, duration)

	response.Status = "success"
	response.Message = "Sync operation completed"
	if len(result.Errors) > 0 {
		response.Status = "partial_failure"
		response.Message = fmt.Sprintf("Sync operation completed with %d errors", len(result.Errors))
		response.Error = result.Err().Error()
	}

	stats := &SyncStats{
		SyncsTriggered:   result.SyncsTriggered,
		RunsCompleted:    result.RunsCompleted,
		RunsFailed:       result.RunsFailed,
		RunsTimedOut:     result.RunsTimedOut,
		RecordsProcessed: result.RecordsProcessed,
		Duration:         duration,
		Errors:           errorStrings(result.Errors),
	}
	for _, run := range result.Runs {
		stats.Runs = append(stats.Runs, newRunResponse(run, nil))
	}
	response.Result = stats

	writeJSON(w, http.StatusOK, response)
}

// handleTriggerSync triggers one sync, optionally waiting for the run to finish
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	syncID, err := pathID(r, "sync_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	query := r.URL.Query()
	wait, err := queryBool(query.Get("wait"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid wait: %w", err))
		return
	}
	forceFullSync, err := queryBool(query.Get("force_full_sync"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid force_full_sync: %w", err))
		return
	}

	s.logger.Infof("Trigger requested via API for sync %d (wait: %t, full sync: %t)", syncID, wait, forceFullSync)

	var result *syncengine.RunResult
	if wait {
		opts, err := waitOptionsFromQuery(r, s.syncEngine.DefaultWaitOptions())
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err = s.syncEngine.TriggerAndWait(r.Context(), syncID, syncengine.TriggerOptions{
			ForceFullSync: forceFullSync,
			Wait:          opts,
		})
		s.metrics.RecordRun(result, err)
		writeRunResult(w, result, err)
		return
	}

	start := time.Now()
	runID, err := s.syncEngine.TriggerSync(r.Context(), syncID, forceFullSync)
	result = &syncengine.RunResult{
		SyncID:   syncID,
		RunID:    runID,
		Duration: time.Since(start),
		DryRun:   err == nil && s.config.App.TestMode,
	}
	s.metrics.RecordRun(result, err)
	writeRunResult(w, result, err)
}

// handleSyncInfo returns the configuration of a sync
func (s *Server) handleSyncInfo(w http.ResponseWriter, r *http.Request) {
	syncID, err := pathID(r, "sync_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	info, err := s.syncEngine.GetSyncInfo(r.Context(), syncID)
	if err != nil {
		s.logger.Errorf("Failed to get sync %d: %v", syncID, err)
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleSyncRunInfo returns the current state of a sync run
func (s *Server) handleSyncRunInfo(w http.ResponseWriter, r *http.Request) {
	runID, err := pathID(r, "run_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run, err := s.syncEngine.GetSyncRunInfo(r.Context(), runID)
	if err != nil {
		s.logger.Errorf("Failed to get sync run %d: %v", runID, err)
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleWaitForRun blocks until a sync run reaches a terminal status
func (s *Server) handleWaitForRun(w http.ResponseWriter, r *http.Request) {
	runID, err := pathID(r, "run_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts, err := waitOptionsFromQuery(r, s.syncEngine.DefaultWaitOptions())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	run, err := s.syncEngine.WaitForCompletion(r.Context(), runID, opts)
	result := &syncengine.RunResult{
		RunID:    runID,
		Run:      run,
		Duration: time.Since(start),
	}
	if run != nil {
		result.SyncID = run.SyncID
	}
	s.metrics.RecordWait(result, err)

	writeRunResult(w, result, err)
}

// handleMetrics handles metrics requests
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.GetStats())
}

// handleSchedulerStart handles scheduler start requests
func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusBadRequest)
		return
	}

	if err := s.scheduler.Start(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to start scheduler: %v", err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("Scheduler started via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleSchedulerStop handles scheduler stop requests
func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusBadRequest)
		return
	}

	s.scheduler.Stop()
	s.logger.Info("Scheduler stopped via API")

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleSchedulerStatus handles scheduler status requests
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "Scheduler not configured", http.StatusBadRequest)
		return
	}

	status := map[string]interface{}{
		"running":   s.scheduler.IsRunning(),
		"schedule":  s.config.Server.Schedule,
		"sync_ids":  s.config.Sync.SyncIDs,
		"last_sync": s.scheduler.GetLastSync(),
		"next_sync": s.scheduler.GetNextSync(),
	}

	writeJSON(w, http.StatusOK, status)
}

// handleVersion handles version requests
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := map[string]string{
		"version":    Version,
		"build_time": time.Now().Format(time.RFC3339),
		"mode":       "server",
	}

	writeJSON(w, http.StatusOK, version)
}

func newRunResponse(result *syncengine.RunResult, err error) *RunResponse {
	response := &RunResponse{
		Timestamp: time.Now(),
		SyncID:    result.SyncID,
		RunID:     result.RunID,
		Run:       result.Run,
		Duration:  result.Duration,
		DryRun:    result.DryRun,
	}
	if result.SyncID != 0 {
		response.SyncHistoryURL = census.SyncHistoryURL(result.SyncID)
	}

	switch {
	case err != nil:
		response.Status = "error"
		response.Error = err.Error()
		if errors.Is(err, syncengine.ErrSyncRunFailed) {
			response.Status = "failed"
		} else if errors.Is(err, syncengine.ErrSyncRunCancelled) {
			response.Status = "cancelled"
		} else if errors.Is(err, syncengine.ErrSyncRunTimeout) {
			response.Status = "timeout"
		}
	case result.DryRun:
		response.Status = "dry_run"
		response.Message = "Test mode: sync run not triggered"
	case result.Run != nil:
		response.Status = string(result.Run.EffectiveStatus())
	default:
		response.Status = "triggered"
	}

	return response
}

func writeRunResult(w http.ResponseWriter, result *syncengine.RunResult, err error) {
	if result == nil {
		result = &syncengine.RunResult{}
	}
	status := http.StatusOK
	if err != nil {
		status = statusForError(err)
	}
	writeJSON(w, status, newRunResponse(result, err))
}

// statusForError maps an operation error onto an HTTP status code. A run
// that finished as failed or cancelled is still a successful wait.
func statusForError(err error) int {
	var apiErr *census.APIError
	switch {
	case errors.Is(err, syncengine.ErrSyncRunFailed), errors.Is(err, syncengine.ErrSyncRunCancelled):
		return http.StatusOK
	case errors.Is(err, syncengine.ErrSyncRunTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func waitOptionsFromQuery(r *http.Request, defaults syncengine.WaitOptions) (syncengine.WaitOptions, error) {
	opts := defaults
	query := r.URL.Query()

	if v := query.Get("max_wait_seconds"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds < 0 {
			return opts, fmt.Errorf("invalid max_wait_seconds: %q", v)
		}
		opts.MaxWait = time.Duration(seconds) * time.Second
	}
	if v := query.Get("poll_frequency_seconds"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return opts, fmt.Errorf("invalid poll_frequency_seconds: %q", v)
		}
		opts.PollInterval = time.Duration(seconds) * time.Second
	}
	if v := query.Get("max_poll_attempts"); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil || attempts < 0 {
			return opts, fmt.Errorf("invalid max_poll_attempts: %q", v)
		}
		opts.MaxAttempts = attempts
	}

	return opts, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{
		Status:    "error",
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

// errorStrings converts a slice of errors to a slice of strings
func errorStrings(errors []error) []string {
	if len(errors) == 0 {
		return nil
	}

	result := make([]string, len(errors))
	for i, err := range errors {
		result[i] = err.Error()
	}
	return result
}
