package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/es"
	"github.com/cwbudde/onefifth/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the state is terminal.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job represents an optimization job
type Job struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Config         JobConfig  `json:"config"`
	Best           []float64  `json:"best,omitempty"`
	BestFitness    float64    `json:"bestFitness"`
	InitialFitness float64    `json:"initialFitness"`
	Generation     int        `json:"generation"`
	Evaluations    int        `json:"evaluations"`
	Sigma          float64    `json:"sigma"`
	PSucc          float64    `json:"psucc"`
	StopReason     string     `json:"stopReason,omitempty"`
	ResumedFrom    string     `json:"resumedFrom,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Error          string     `json:"error,omitempty"`

	logbook       driver.Logbook
	strategyState es.State
	cancel        context.CancelFunc
}

// Logbook returns the generation records collected so far.
func (j *Job) Logbook() driver.Logbook {
	return j.logbook
}

// Elapsed returns the job's wall-clock run time so far.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(a, b int) bool {
		if jobs[a].StartTime.Equal(jobs[b].StartTime) {
			return jobs[a].ID < jobs[b].ID
		}
		return jobs[a].StartTime.Before(jobs[b].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}

// setCancel registers the function that stops a job's worker.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) error {
	return jm.UpdateJob(id, func(j *Job) {
		j.cancel = cancel
	})
}

// CancelJob requests cancellation of a pending or running job. The worker
// marks the job cancelled once it observes the request.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.RLock()
	job, exists := jm.jobs[id]
	var cancel context.CancelFunc
	var state JobState
	if exists {
		cancel = job.cancel
		state = job.State
	}
	jm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if state.Done() {
		return fmt.Errorf("job %s is already %s", id, state)
	}
	if cancel == nil {
		return fmt.Errorf("job %s has no worker", id)
	}
	cancel()
	return nil
}

// CancelAll cancels every job that has a worker.
func (jm *JobManager) CancelAll() {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	for _, job := range jm.jobs {
		if job.cancel != nil && !job.State.Done() {
			job.cancel()
		}
	}
}

// snapshot copies the job. The logbook is append-only, so sharing its
// backing array up to the current length is safe.
func (j *Job) snapshot() Job {
	c := *j
	c.Best = append([]float64(nil), j.Best...)
	c.logbook = j.logbook[:len(j.logbook):len(j.logbook)]
	c.strategyState.Parent = j.strategyState.Parent.Clone()
	c.cancel = nil
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return c
}
