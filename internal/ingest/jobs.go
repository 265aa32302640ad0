package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
)

// JobStatus is the lifecycle state of a background ingestion job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a background ingestion run. Progress mirrors the latest
// pipeline update while the job is running.
type Job struct {
	ID         string    `json:"id"`
	DocID      string    `json:"doc_id"`
	PDFPath    string    `json:"pdf_path"`
	Status     JobStatus `json:"status"`
	Progress   Progress  `json:"progress"`
	Result     *Result   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// IngestFunc runs one ingestion; the job manager binds it to
// Pipeline.Ingest in production.
type IngestFunc func(ctx context.Context, docID, pdfPath string, progress ProgressFunc) (*Result, error)

// JobManager queues ingestion jobs onto a bounded worker pool and keeps
// a bounded in-memory history, newest jobs kept.
type JobManager struct {
	run     IngestFunc
	workers int
	maxJobs int
	logger  *slog.Logger

	mu    sync.Mutex
	jobs  map[string]*Job
	order []string // oldest first
	queue chan string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// JobManagerOption configures the manager.
type JobManagerOption func(*JobManager)

// WithJobLogger sets the logger.
func WithJobLogger(logger *slog.Logger) JobManagerOption {
	return func(m *JobManager) { m.logger = logger }
}

// NewJobManager builds a manager with the given pool size and history
// bound. Both are clamped to at least 1.
func NewJobManager(run IngestFunc, workers, maxJobs int, opts ...JobManagerOption) *JobManager {
	if workers < 1 {
		workers = 1
	}
	if maxJobs < 1 {
		maxJobs = 1
	}
	m := &JobManager{
		run:     run,
		workers: workers,
		maxJobs: maxJobs,
		logger:  slog.Default(),
		jobs:    map[string]*Job{},
		queue:   make(chan string, maxJobs),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker pool. Jobs submitted before Start wait in
// the queue.
func (m *JobManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
}

// Stop cancels running jobs and waits for the workers to exit.
func (m *JobManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Submit enqueues an ingestion job and returns its snapshot.
func (m *JobManager) Submit(docID, pdfPath string) (Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		DocID:     docID,
		PDFPath:   pdfPath,
		Status:    JobQueued,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.trimLocked()
	snapshot := *job
	m.mu.Unlock()

	select {
	case m.queue <- job.ID:
		return snapshot, nil
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		if n := len(m.order); n > 0 && m.order[n-1] == job.ID {
			m.order = m.order[:n-1]
		}
		m.mu.Unlock()
		return Job{}, qaerrors.New(qaerrors.ErrCodeIngestFailed, "ingestion queue is full", nil)
	}
}

// Get returns a snapshot of one job.
func (m *JobManager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns job snapshots, newest first.
func (m *JobManager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if job, ok := m.jobs[m.order[i]]; ok {
			out = append(out, *job)
		}
	}
	return out
}

func (m *JobManager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.runJob(ctx, id)
		}
	}
}

func (m *JobManager) runJob(ctx context.Context, id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		// Trimmed from history before a worker picked it up.
		m.mu.Unlock()
		return
	}
	job.Status = JobRunning
	job.StartedAt = time.Now().UTC()
	docID, pdfPath := job.DocID, job.PDFPath
	m.mu.Unlock()

	progress := func(update Progress) {
		m.mu.Lock()
		if job, ok := m.jobs[id]; ok {
			job.Progress = update
		}
		m.mu.Unlock()
	}

	result, err := m.run(ctx, docID, pdfPath, progress)

	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok = m.jobs[id]
	if !ok {
		return
	}
	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		m.logger.Warn("ingestion job failed", "job_id", id, "doc_id", docID, "error", err)
		return
	}
	job.Status = JobCompleted
	job.Result = result
}

// trimLocked drops the oldest finished jobs once the history exceeds
// maxJobs. Queued and running jobs are never dropped.
func (m *JobManager) trimLocked() {
	for len(m.order) > m.maxJobs {
		dropped := false
		for i, id := range m.order {
			job, ok := m.jobs[id]
			if !ok {
				m.order = append(m.order[:i], m.order[i+1:]...)
				dropped = true
				break
			}
			if job.Status == JobCompleted || job.Status == JobFailed {
				delete(m.jobs, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}
