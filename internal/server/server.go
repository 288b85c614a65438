package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cloudetl/pipeline-runner/internal/config"
	"github.com/cloudetl/pipeline-runner/internal/models"
	"github.com/cloudetl/pipeline-runner/internal/storage"
)

// RunStatus holds the result of the most recent pipeline run, in process
// memory only. Nothing persists across invocations.
type RunStatus struct {
	mu     sync.RWMutex
	last   *models.RunResult
	lastAt time.Time
}

// Set records the latest run result.
func (s *RunStatus) Set(result models.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &result
	s.lastAt = time.Now().UTC()
}

// Get returns the latest run result, or nil when no run has completed yet.
func (s *RunStatus) Get() (*models.RunResult, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastAt
}

// Server handles read-back HTTP requests in serve mode.
type Server struct {
	config  config.Server
	storage storage.Storage
	status  *RunStatus
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.Server, store storage.Storage, status *RunStatus) *Server {
	s := &Server{
		config:  cfg,
		storage: store,
		status:  status,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/records/", s.handleRecordByID)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth reports whether the storage backend is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := s.storage.HealthCheck(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRecords handles GET requests for stored records.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse query parameters
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	limit := 10 // default
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	offset := 0 // default
	if offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	records, err := s.storage.GetRecords(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve records: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"records": records,
		"count":   len(records),
		"limit":   limit,
		"offset":  offset,
	})
}

// handleRecordByID handles GET requests for the latest record with an id.
func (s *Server) handleRecordByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Path[len("/records/"):]
	if id == "" {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}

	record, err := s.storage.GetRecordByID(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve record: %v", err), http.StatusInternalServerError)
		return
	}

	if record == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// handleStatus returns the result of the most recent run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	last, lastAt := s.status.Get()

	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		json.NewEncoder(w).Encode(map[string]string{"status": "never_run"})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      statusLabel(*last),
		"last_run_at": lastAt.Format(time.RFC3339),
		"result":      last,
	})
}

func statusLabel(result models.RunResult) string {
	if result.Success() {
		return "success"
	}
	return "failure"
}
