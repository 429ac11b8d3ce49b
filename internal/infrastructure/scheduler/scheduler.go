// Package scheduler runs the periodic billing jobs: monthly bill generation,
// the overdue sweep and credit expiry. A cron trigger submits jobs to a small
// worker pool that retries transient failures and records every run.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"go.uber.org/zap"
)

// JobExecutor runs one job and returns a one-line summary of what it did
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) (string, error)
}

// JobRecorder persists job runs. Scheduling never fails because a record
// could not be written.
type JobRecorder interface {
	RecordStart(ctx context.Context, job *Job) error
	RecordFinish(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         32,
		JobTimeout:        time.Hour,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// Scheduler executes submitted jobs on a fixed worker pool
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	recorder JobRecorder
	logger   *zap.Logger
	now      func() time.Time

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[*Job]*time.Timer
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.MaxConcurrentJobs < 1 {
		config.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}
	if config.QueueSize < 1 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
		jobs:     make(chan *Job, config.QueueSize),
		retries:  make(map[*Job]*time.Timer),
	}
}

// SetRecorder sets the run recorder (optional)
func (s *Scheduler) SetRecorder(r JobRecorder) {
	s.recorder = r
}

// SetClock replaces the time source
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers. Pending retries are
// dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for job, timer := range s.retries {
		timer.Stop()
		delete(s.retries, job)
	}
	s.cancel()
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// Submit queues a job for execution
func (s *Scheduler) Submit(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("job", job.Label()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.processJob(ctx, job, workerID)
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job", job.Label()),
		zap.Int("attempt", job.RetryCount+1),
	)

	job.Start(s.now())
	s.record(ctx, job, true)
	log.Info("Job started")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	summary, err := s.executor.Execute(jobCtx, job)
	cancel()

	if err == nil {
		job.Complete(s.now(), summary)
		s.record(ctx, job, false)
		log.Info("Job completed", zap.String("summary", summary))
		return
	}

	job.Fail(s.now(), err.Error())
	s.record(ctx, job, false)
	log.Error("Job failed", zap.Error(err))

	if retryable(err) && job.ShouldRetry() && ctx.Err() == nil {
		job.ScheduleRetry(s.now(), s.config.RetryDelay)
		s.scheduleRetry(job)
		log.Info("Job scheduled for retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Duration("delay", s.config.RetryDelay),
		)
	}
}

// scheduleRetry resubmits job once its retry delay has passed
func (s *Scheduler) scheduleRetry(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.retries[job] = time.AfterFunc(s.config.RetryDelay, func() {
		s.mu.Lock()
		delete(s.retries, job)
		s.mu.Unlock()
		if err := s.Submit(job); err != nil {
			s.logger.Warn("Failed to resubmit job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	})
}

func (s *Scheduler) record(ctx context.Context, job *Job, start bool) {
	if s.recorder == nil {
		return
	}
	var err error
	if start {
		err = s.recorder.RecordStart(ctx, job)
	} else {
		err = s.recorder.RecordFinish(ctx, job)
	}
	if err != nil {
		s.logger.Warn("Failed to record job run", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// retryable is true for contention and infrastructure failures. Domain
// rejections repeat identically and are never retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if shared.IsRetryable(err) {
		return true
	}
	return shared.ErrorCode(err) == ""
}
