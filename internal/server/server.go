package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/report"
	"github.com/cwbudde/onefifth/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	runner     *runner
	addr       string
	server     *http.Server

	// baseCtx is the parent of every job context; Shutdown cancels it
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup
}

// NewServer creates a new HTTP server. checkpointStore and history may be nil.
func NewServer(addr string, checkpointStore store.Store, history *store.SQLiteHistory) *Server {
	jm := NewJobManager()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: jm,
		runner:     &runner{jm: jm, store: checkpointStore, history: history},
		addr:       addr,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register API routes
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	// Wrap with middleware
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, gracefully shuts down the server and waits
// for the job workers to save their final checkpoints.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}

// startJob runs a created job in the background under its own context.
func (s *Server) startJob(jobID string) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	if err := s.jobManager.setCancel(jobID, cancel); err != nil {
		cancel()
		slog.Error("Failed to start job", "job_id", jobID, "error", err)
		return
	}
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		s.runner.runJob(ctx, jobID)
	}()
}

// handleJobs handles /api/v1/jobs
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

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	// Route based on subpath
	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "trace":
		s.handleGetTrace(w, r, jobID)
	case "plot.png":
		s.handleGetPlot(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	case "resume":
		s.handleResumeJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs. Fields missing from the body
// take their default values.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	cfg := config.Default()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Validate config, including the strategy parameters
	if _, err := config.Prepare(cfg, cfg.Seed); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Create job
	job := s.jobManager.CreateJob(cfg)

	// Start worker in background
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	elapsed := job.Elapsed()
	eps := float64(0)
	if elapsed.Seconds() > 0 {
		eps = float64(job.Evaluations) / elapsed.Seconds()
	}

	// Create response
	response := map[string]interface{}{
		"id":             job.ID,
		"state":          job.State,
		"config":         job.Config,
		"best":           job.Best,
		"bestFitness":    job.BestFitness,
		"initialFitness": job.InitialFitness,
		"generation":     job.Generation,
		"evaluations":    job.Evaluations,
		"sigma":          job.Sigma,
		"psucc":          job.PSucc,
		"stopReason":     job.StopReason,
		"resumedFrom":    job.ResumedFrom,
		"elapsed":        elapsed.Seconds(),
		"eps":            eps,
		"startTime":      job.StartTime,
		"endTime":        job.EndTime,
		"error":          job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		s.handleStoredTrace(w, jobID)
		return
	}
	lb := job.Logbook()
	if lb == nil {
		lb = driver.Logbook{}
	}
	writeJSON(w, http.StatusOK, lb)
}

// handleStoredTrace serves the trace file of a job that is not held in
// memory, such as one run by an earlier server process.
func (s *Server) handleStoredTrace(w http.ResponseWriter, jobID string) {
	if s.runner.store == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	entries, err := store.ReadTrace(filepath.Join(s.runner.store.JobDir(jobID), store.TraceFileName))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}
	lb := make(driver.Logbook, len(entries))
	for i, e := range entries {
		lb[i] = e.Record
	}
	writeJSON(w, http.StatusOK, lb)
}

// handleGetPlot handles GET /api/v1/jobs/:id/plot.png
func (s *Server) handleGetPlot(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	// Check if job has results
	lb := job.Logbook()
	if len(lb) == 0 {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}

	p, err := report.FitnessPlot(job.Config.Objective, lb)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to build plot: %v", err), http.StatusInternalServerError)
		return
	}

	// Set headers
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")

	// Encode and send
	if err := report.WritePNG(p, w); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// resumeRequest is the optional body of a resume request.
type resumeRequest struct {
	// Generations is the new total generation budget (0 keeps the checkpoint's)
	Generations int `json:"generations"`
}

// handleResumeJob handles POST /api/v1/jobs/:id/resume, where id names a
// checkpoint. A new job continues from it.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request, checkpointID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.runner.store == nil {
		http.Error(w, "Checkpoint store not configured", http.StatusServiceUnavailable)
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	cp, err := s.runner.store.LoadCheckpoint(checkpointID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Checkpoint not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cfg := cp.Config
	if req.Generations > 0 {
		cfg.Generations = req.Generations
	}
	if _, err := config.PrepareResume(cp, cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(cfg)
	if err := s.jobManager.UpdateJob(job.ID, func(j *Job) { j.ResumedFrom = checkpointID }); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	job.ResumedFrom = checkpointID
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
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
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
