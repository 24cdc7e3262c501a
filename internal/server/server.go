package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bebuch/localmin/internal/store"
)

// Server exposes minimization over HTTP: jobs, where the server evaluates an
// expression objective itself, and sessions, where a remote caller drives
// the reverse-communication handshake and owns the objective.
type Server struct {
	jobManager     *JobManager
	sessionManager *SessionManager
	checkpoints    store.Store
	dataDir        string
	addr           string
	server         *http.Server
}

// NewServer creates a server listening on addr. dataDir may be empty, which
// disables traces and checkpoints.
func NewServer(addr, dataDir string, checkpoints store.Store) *Server {
	return &Server{
		jobManager:     NewJobManager(),
		sessionManager: NewSessionManager(),
		checkpoints:    checkpoints,
		dataDir:        dataDir,
		addr:           addr,
	}
}

// Start starts the HTTP server and blocks until it shuts down.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)

	handler := s.loggingMiddleware(s.corsMiddleware(mux))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIndex answers / with a short service description.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "localmin",
		"jobs":    "/api/v1/jobs",
		"session": "/api/v1/sessions",
	})
}

// handleJobs handles /api/v1/jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*.
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "trace":
		s.handleGetJobTrace(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleSessions handles /api/v1/sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleCreateSession(w, r)
}

// handleSessionsWithID handles /api/v1/sessions/:id/*.
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	sessionID := parts[0]

	switch {
	case len(parts) >= 2 && parts[1] == "step" && r.Method == http.MethodPost:
		s.handleSessionStep(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		s.handleDeleteSession(w, r, sessionID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.Expr == "" {
		http.Error(w, "expr is required", http.StatusBadRequest)
		return
	}
	if config.High <= config.Low {
		http.Error(w, fmt.Sprintf("low < high is required, got low=%g high=%g", config.Low, config.High), http.StatusBadRequest)
		return
	}
	if config.MaxEvals < 0 {
		http.Error(w, "maxEvals cannot be negative", http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)

	go runJob(context.Background(), s.jobManager, s.checkpoints, s.dataDir, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status.
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	var eps float64
	if elapsed.Seconds() > 0 {
		eps = float64(job.Evaluations) / elapsed.Seconds()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"config":      job.Config,
		"bestX":       job.BestX,
		"bestValue":   job.BestValue,
		"evaluations": job.Evaluations,
		"low":         job.Low,
		"high":        job.High,
		"converged":   job.Converged,
		"elapsed":     elapsed.Seconds(),
		"eps":         eps,
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	})
}

// handleGetJobTrace handles GET /api/v1/jobs/:id/trace, serving the raw
// JSONL evaluation history.
func (s *Server) handleGetJobTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.dataDir == "" {
		http.Error(w, "Tracing disabled", http.StatusNotFound)
		return
	}
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	reader, err := store.NewTraceReader(s.dataDir, jobID)
	if err != nil {
		http.Error(w, "No trace yet", http.StatusNotFound)
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			slog.Error("Failed to encode trace entry", "error", err)
			return
		}
	}
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
