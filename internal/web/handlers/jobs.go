package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-matcher/internal/matcher"
)

// JobStatus represents the status of an async matching job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// MatchJob is one async matching run.
type MatchJob struct {
	mu     sync.RWMutex
	cancel context.CancelFunc

	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *matchResponse `json:"result,omitempty"`
	Request     matchRequest   `json:"request"`
}

// Snapshot returns a copy safe to serialize while the job is running.
func (j *MatchJob) Snapshot() MatchJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return MatchJob{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Total:       j.Total,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
		Request:     j.Request,
	}
}

func (j *MatchJob) setProgress(p matcher.ProgressInfo) {
	j.mu.Lock()
	j.Progress = p.Current
	j.Total = p.Total
	j.mu.Unlock()
}

func (j *MatchJob) finish(status JobStatus, result *matchResponse, err error) {
	now := time.Now()
	j.mu.Lock()
	j.Status = status
	j.Result = result
	j.CompletedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
	j.mu.Unlock()
}

// Cancel aborts the job's context.
func (j *MatchJob) Cancel() {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	if j.Status == JobStatusPending || j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
	}
	j.mu.Unlock()
}

// JobManager tracks async matching jobs by id.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*MatchJob
}

// NewJobManager creates an empty job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*MatchJob)}
}

// Create registers a new pending job and returns it with its cancel hook.
func (m *JobManager) Create(req matchRequest, cancel context.CancelFunc) *MatchJob {
	job := &MatchJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		Request:   req,
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job
}

// Get retrieves a job by id, or nil.
func (m *JobManager) Get(id string) *MatchJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Delete removes a job.
func (m *JobManager) Delete(id string) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
}
