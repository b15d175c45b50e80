// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsyncgo/zsyncgo/internal/blockmatch"
	"github.com/zsyncgo/zsyncgo/internal/httpfetch"
	"github.com/zsyncgo/zsyncgo/pkg/zsync"
)

// JobStatus represents the state of a sync job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job tracks a single sync request submitted through the API.
type Job struct {
	ID                  string      `json:"id"`
	ControlFileLocation string      `json:"controlFileLocation"`
	OutputPath          string      `json:"outputPath,omitempty"`
	SeedFiles           []string    `json:"seedFiles,omitempty"`
	Referrer            string      `json:"referrer,omitempty"`
	FinalPath           string      `json:"finalPath,omitempty"`
	Status              JobStatus   `json:"status"`
	Progress            JobProgress `json:"progress"`
	Error               string      `json:"error,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	StartedAt           *time.Time  `json:"startedAt,omitempty"`
	EndedAt             *time.Time  `json:"endedAt,omitempty"`

	cancel context.CancelFunc `json:"-"`
}

// JobProgress is a snapshot of a running job's progress.
type JobProgress struct {
	Percent   float64 `json:"percent"`
	BytesDown int64   `json:"bytesDown"`
}

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	ControlFileLocation string   `json:"controlFileLocation"`
	OutputPath          string   `json:"outputPath,omitempty"`
	SeedFiles           []string `json:"seedFiles,omitempty"`
	Referrer            string   `json:"referrer,omitempty"`
}

// JobManager tracks and executes sync jobs, bounding concurrent execution
// with an errgroup used purely as a SetLimit semaphore: the server runs
// for the process lifetime, so Wait is never called on it.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	config Config
	group  *errgroup.Group

	listeners  []chan *Job
	listenerMu sync.RWMutex
	wsHub      *WSHub
}

// NewJobManager creates a new job manager bounded by cfg.Concurrency.
func NewJobManager(cfg Config, wsHub *WSHub) *JobManager {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	group := &errgroup.Group{}
	group.SetLimit(concurrency)

	return &JobManager{
		jobs:   make(map[string]*Job),
		config: cfg,
		group:  group,
		wsHub:  wsHub,
	}
}

func generateID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateJob registers a new job and schedules it for execution. The
// second return value reports whether an existing, non-terminal job for
// the same (ControlFileLocation, OutputPath) pair was returned instead of
// a new one being created.
func (m *JobManager) CreateJob(req JobRequest) (*Job, bool, error) {
	if req.ControlFileLocation == "" {
		return nil, false, fmt.Errorf("controlFileLocation is required")
	}

	m.mu.Lock()
	for _, existing := range m.jobs {
		if existing.ControlFileLocation == req.ControlFileLocation &&
			existing.OutputPath == req.OutputPath &&
			(existing.Status == JobStatusQueued || existing.Status == JobStatusRunning) {
			m.mu.Unlock()
			return existing, true, nil
		}
	}

	job := &Job{
		ID:                  generateID(),
		ControlFileLocation: req.ControlFileLocation,
		OutputPath:          req.OutputPath,
		SeedFiles:           req.SeedFiles,
		Referrer:            req.Referrer,
		Status:              JobStatusQueued,
		CreatedAt:           time.Now(),
	}

	m.jobs[job.ID] = job
	m.mu.Unlock()

	// dispatch blocks on the errgroup's SetLimit semaphore, so it runs in
	// its own goroutine: CreateJob must return the "queued" job immediately.
	go m.dispatch(job)

	return job, false, nil
}

func (m *JobManager) dispatch(job *Job) {
	m.group.Go(func() error {
		m.runJob(job)
		return nil
	})
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelJob cancels a running or queued job.
func (m *JobManager) CancelJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}

	if job.Status == JobStatusQueued || job.Status == JobStatusRunning {
		if job.cancel != nil {
			job.cancel()
		}
		job.Status = JobStatusCancelled
		now := time.Now()
		job.EndedAt = &now
		m.notifyListeners(job)
		return true
	}

	return false
}

// DeleteJob removes a job from the list.
func (m *JobManager) DeleteJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}

	if job.cancel != nil && (job.Status == JobStatusQueued || job.Status == JobStatusRunning) {
		job.cancel()
	}

	delete(m.jobs, id)
	return true
}

// Subscribe adds a listener for job updates.
func (m *JobManager) Subscribe() chan *Job {
	ch := make(chan *Job, 100)
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenerMu.Unlock()
	return ch
}

// Unsubscribe removes a listener.
func (m *JobManager) Unsubscribe(ch chan *Job) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *JobManager) notifyListeners(job *Job) {
	m.listenerMu.RLock()
	for _, ch := range m.listeners {
		select {
		case ch <- job:
		default:
		}
	}
	m.listenerMu.RUnlock()

	if m.wsHub != nil {
		m.wsHub.BroadcastJob(job)
	}
}

// runJob drives a single zsync.Driver.Run to completion, translating its
// progress and result into Job state visible through the API and WS hub.
func (m *JobManager) runJob(job *Job) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if job.Status == JobStatusCancelled {
		// CancelJob already cancelled this job while it was queued.
		m.mu.Unlock()
		cancel()
		return
	}
	job.cancel = cancel
	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	m.mu.Unlock()
	m.notifyListeners(job)

	logger := m.config.logger().With("job", job.ID)

	opts := zsync.Options{
		ControlFileLocation: job.ControlFileLocation,
		OutputPath:          job.OutputPath,
		SeedFiles:           job.SeedFiles,
		Referrer:            job.Referrer,
		Quiet:               false,
		Matcher:             blockmatch.New(logger),
		Decompressor:        blockmatch.GzipDecompressor{},
		HTTP: httpfetch.New(httpfetch.Options{
			Retries:        m.config.HTTPRetries,
			Timeout:        m.config.HTTPTimeout,
			BackoffInitial: m.config.BackoffInitial,
			BackoffMax:     m.config.BackoffMax,
			Logger:         logger,
		}),
		Progress: &jobProgress{manager: m, job: job},
		Logger:   logger,
	}

	drv := zsync.NewDriver(opts)
	result, err := drv.Run(ctx)

	m.mu.Lock()
	endTime := time.Now()
	job.EndedAt = &endTime
	if ctx.Err() != nil {
		job.Status = JobStatusCancelled
	} else if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = JobStatusCompleted
		job.FinalPath = result.FinalPath
		job.Progress.Percent = 1
		job.Progress.BytesDown = result.HTTPBytesDownloaded
	}
	m.mu.Unlock()

	if err != nil {
		logger.Warn("job ended", "status", job.Status, "error", err)
	} else {
		logger.Info("job completed", "finalPath", job.FinalPath)
	}

	m.notifyListeners(job)
}

// jobProgress adapts a Job's bookkeeping to the zsync.ProgressCollaborator
// interface, pushing updates into Job.Progress and out over the
// WebSocket hub as they arrive.
type jobProgress struct {
	manager *JobManager
	job     *Job
}

var _ zsync.ProgressCollaborator = (*jobProgress)(nil)

func (p *jobProgress) Start(url string) zsync.ProgressHandle {
	return p.job
}

func (p *jobProgress) Update(h zsync.ProgressHandle, percent float64, bytesDown int64) {
	p.manager.mu.Lock()
	p.job.Progress.Percent = percent
	p.job.Progress.BytesDown = bytesDown
	p.manager.mu.Unlock()
	p.manager.notifyListeners(p.job)
}

func (p *jobProgress) Finish(h zsync.ProgressHandle, outcome zsync.ProgressOutcome) {
	// Terminal state is recorded by runJob once Driver.Run returns.
}
