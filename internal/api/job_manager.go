package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/jobstore"
	"github.com/sidewalk-timeline/server/internal/metrics"
	"github.com/sidewalk-timeline/server/internal/service"
)

// JobManagerConfig contains configuration for the job manager.
type JobManagerConfig struct {
	MaxConcurrent int    // Max concurrent prefetch jobs (default 1)
	SQLitePath    string // Path to SQLite database
	RetentionDays int    // Days to keep finished jobs (default 7)
	QueueSize     int
	CleanupPeriod time.Duration
}

// Executor runs one prefetch job and reports progress as it goes.
type Executor func(ctx context.Context, job *jobstore.Job, progress func(jobstore.JobProgress)) error

// JobManager runs prefetch jobs on a bounded worker pool with SQLite
// persistence. Jobs outlive the requests that created them.
type JobManager struct {
	cfg      JobManagerConfig
	store    *jobstore.Store
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	stopped  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	Executor Executor
}

// NewJobManager creates a new job manager with SQLite persistence.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}

	store, err := jobstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &JobManager{
		cfg:     cfg,
		store:   store,
		queue:   make(chan string, cfg.QueueSize),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}, nil
}

// PrefetchExecutor warms the caches of svc.
func PrefetchExecutor(svc *service.TimelineService) Executor {
	return func(ctx context.Context, job *jobstore.Job, progress func(jobstore.JobProgress)) error {
		req := service.PrefetchRequest{
			Tiles:   job.Params.Tiles,
			Years:   job.Params.Years,
			Formats: job.Params.Formats,
		}
		_, err := svc.Prefetch(ctx, req, func(p service.PrefetchProgress) {
			progress(jobstore.JobProgress{Phase: p.Phase, Done: p.Done, Total: p.Total, Failed: p.Failed})
		})
		return err
	}
}

// Store returns the underlying store for direct access.
func (jm *JobManager) Store() *jobstore.Store {
	return jm.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from previous shutdown.
func (jm *JobManager) Start() {
	// Jobs that were running when the process died cannot be resumed.
	if err := jm.store.MarkRunningAsFailed("server restarted"); err != nil {
		zap.L().Error("mark running jobs as failed", zap.Error(err))
	}

	queued, err := jm.store.ListQueuedJobs()
	if err != nil {
		zap.L().Error("list queued jobs", zap.Error(err))
	} else {
		for _, job := range queued {
			select {
			case jm.queue <- job.ID:
				zap.L().Info("re-queued prefetch job", zap.String("job", job.ID))
			default:
				zap.L().Warn("queue full, cannot re-queue job", zap.String("job", job.ID))
			}
		}
	}

	for i := 0; i < jm.cfg.MaxConcurrent; i++ {
		jm.wg.Add(1)
		go jm.worker()
	}

	go jm.cleaner()
}

// Stop cancels running jobs and waits for the workers to exit.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		jm.mu.Lock()
		jm.stopped = true
		for _, cancel := range jm.running {
			cancel()
		}
		close(jm.queue)
		jm.mu.Unlock()

		close(jm.stopCh)
		jm.wg.Wait()
		jm.store.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for jobID := range jm.queue {
		jm.runJob(jobID)
	}
}

func (jm *JobManager) runJob(jobID string) {
	job, err := jm.store.GetJob(jobID)
	if err != nil || job == nil {
		zap.L().Warn("prefetch job vanished", zap.String("job", jobID), zap.Error(err))
		return
	}
	// cancelled while queued
	if job.Status != jobstore.JobStatusQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jm.mu.Lock()
	if jm.stopped {
		jm.mu.Unlock()
		return
	}
	jm.running[jobID] = cancel
	jm.mu.Unlock()

	defer func() {
		jm.mu.Lock()
		delete(jm.running, jobID)
		jm.mu.Unlock()
	}()

	if err := jm.store.UpdateJobStarted(jobID); err != nil {
		zap.L().Error("mark job started", zap.String("job", jobID), zap.Error(err))
		return
	}

	progress := func(p jobstore.JobProgress) {
		if err := jm.store.UpdateJobProgress(jobID, p); err != nil {
			zap.L().Debug("update job progress", zap.String("job", jobID), zap.Error(err))
		}
	}

	var execErr error
	if jm.Executor != nil {
		execErr = jm.Executor(ctx, job, progress)
	}

	status, msg := jobstore.JobStatusCompleted, ""
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status, msg = jobstore.JobStatusCancelled, "cancelled by user"
	case execErr != nil:
		status, msg = jobstore.JobStatusFailed, execErr.Error()
	}
	if err := jm.store.UpdateJobStatus(jobID, status, msg); err != nil {
		zap.L().Error("update job status", zap.String("job", jobID), zap.Error(err))
	}
	metrics.PrefetchJobsTotal.WithLabelValues(string(status)).Inc()
	zap.L().Info("prefetch job finished", zap.String("job", jobID), zap.String("status", string(status)))
}

func (jm *JobManager) cleaner() {
	ticker := time.NewTicker(jm.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.cleanup()
		}
	}
}

func (jm *JobManager) cleanup() {
	deleted, err := jm.store.DeleteExpiredJobs(jm.cfg.RetentionDays)
	if err != nil {
		zap.L().Error("job cleanup", zap.Error(err))
	} else if deleted > 0 {
		zap.L().Info("cleaned up expired jobs", zap.Int64("deleted", deleted))
	}
}

// Submit creates a new job and enqueues it for execution.
func (jm *JobManager) Submit(params jobstore.JobParams) (*jobstore.Job, error) {
	job := &jobstore.Job{
		ID:        uuid.NewString(),
		Status:    jobstore.JobStatusQueued,
		Params:    params,
		Progress:  jobstore.JobProgress{Phase: "queued"},
		CreatedAt: time.Now(),
	}
	if err := jm.store.CreateJob(job); err != nil {
		return nil, err
	}

	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.stopped {
		return jm.reject(job, "server shutting down")
	}
	select {
	case jm.queue <- job.ID:
	default:
		return jm.reject(job, "job queue is full; try again later")
	}
	return job, nil
}

func (jm *JobManager) reject(job *jobstore.Job, reason string) (*jobstore.Job, error) {
	if err := jm.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, reason); err != nil {
		return nil, err
	}
	job.Status = jobstore.JobStatusFailed
	job.Error = reason
	return job, nil
}

// Get returns a job by ID, or nil when it does not exist.
func (jm *JobManager) Get(id string) *jobstore.Job {
	job, err := jm.store.GetJob(id)
	if err != nil {
		zap.L().Error("get job", zap.String("job", id), zap.Error(err))
		return nil
	}
	return job
}

// List returns the most recent jobs.
func (jm *JobManager) List(limit int) ([]*jobstore.Job, error) {
	return jm.store.ListJobs(limit)
}

// Cancel attempts to cancel a queued or running job.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	cancel, ok := jm.running[id]
	jm.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	job, err := jm.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == jobstore.JobStatusQueued {
		if err := jm.store.UpdateJobStatus(id, jobstore.JobStatusCancelled, "cancelled before start"); err != nil {
			zap.L().Error("cancel queued job", zap.String("job", id), zap.Error(err))
			return false
		}
		return true
	}
	return false
}

// Delete deletes a job.
func (jm *JobManager) Delete(id string) error {
	return jm.store.DeleteJob(id)
}
