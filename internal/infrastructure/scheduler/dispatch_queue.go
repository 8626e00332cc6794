// Package scheduler runs campaign dispatch jobs on a bounded worker pool and
// drives the periodic background loops (status reconciliation, release of due
// scheduled campaigns).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// JobStatus represents the status of a dispatch job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// DispatchJob is one request to dispatch a campaign
type DispatchJob struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CampaignID  uuid.UUID
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
}

// NewDispatchJob creates a pending job
func NewDispatchJob(tenantID, campaignID uuid.UUID, maxRetries int) *DispatchJob {
	return &DispatchJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		CampaignID: campaignID,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *DispatchJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *DispatchJob) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *DispatchJob) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if a failed job has retries left
func (j *DispatchJob) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back into pending for another attempt
func (j *DispatchJob) ScheduleRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.Error = ""
}

// DispatchExecutor runs one campaign dispatch
type DispatchExecutor interface {
	Dispatch(ctx context.Context, tenantID, campaignID uuid.UUID) error
}

// DispatchFunc adapts a function to DispatchExecutor
type DispatchFunc func(ctx context.Context, tenantID, campaignID uuid.UUID) error

// Dispatch calls f
func (f DispatchFunc) Dispatch(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	return f(ctx, tenantID, campaignID)
}

// RetryPolicy decides whether a failed dispatch is worth another attempt
type RetryPolicy func(err error) bool

// RetryAll retries every error except cancellation
func RetryAll(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// QueueConfig holds dispatch queue configuration
type QueueConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// QueueConfigFromSettings maps the dispatch settings section
func QueueConfigFromSettings(cfg config.DispatchConfig) QueueConfig {
	return QueueConfig{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		JobTimeout:    cfg.JobTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}
}

// DefaultQueueConfig returns default queue configuration
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:       2,
		QueueSize:     100,
		JobTimeout:    2 * time.Hour,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
	}
}

// Validate checks the configuration
func (c QueueConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// QueueOption configures a DispatchQueue
type QueueOption func(*DispatchQueue)

// WithRetryPolicy replaces the default RetryAll policy
func WithRetryPolicy(p RetryPolicy) QueueOption {
	return func(q *DispatchQueue) {
		if p != nil {
			q.shouldRetry = p
		}
	}
}

// WithQueueLogger sets the logger
func WithQueueLogger(logger *zap.Logger) QueueOption {
	return func(q *DispatchQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// DispatchQueue is an in-process worker pool executing campaign dispatches.
// A failed job is resubmitted after RetryDelay while retries remain and the
// retry policy accepts the error.
type DispatchQueue struct {
	config      QueueConfig
	executor    DispatchExecutor
	shouldRetry RetryPolicy
	logger      *zap.Logger

	jobs      chan *DispatchJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	retries   map[uuid.UUID]*time.Timer
}

// NewDispatchQueue creates a dispatch queue
func NewDispatchQueue(cfg QueueConfig, executor DispatchExecutor, opts ...QueueOption) (*DispatchQueue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidConfig)
	}
	q := &DispatchQueue{
		config:      cfg,
		executor:    executor,
		shouldRetry: RetryAll,
		logger:      zap.NewNop(),
		retries:     make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Start starts the worker pool
func (q *DispatchQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return nil
	}
	q.jobs = make(chan *DispatchJob, q.config.QueueSize)
	q.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.logger.Info("Dispatch queue started",
		zap.Int("workers", q.config.Workers),
		zap.Int("queue_size", q.config.QueueSize),
		zap.Duration("job_timeout", q.config.JobTimeout),
	)
	return nil
}

// Stop stops accepting jobs, cancels pending retries and waits for running
// dispatches. Jobs still queued are dropped; their campaigns stay in
// processing and are picked up again by the next send.
func (q *DispatchQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	for id, timer := range q.retries {
		timer.Stop()
		delete(q.retries, id)
	}
	close(q.jobs)
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Dispatch queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Dispatch queue stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the queue accepts jobs
func (q *DispatchQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isRunning
}

// Enqueue submits a dispatch for the campaign
func (q *DispatchQueue) Enqueue(_ context.Context, tenantID, campaignID uuid.UUID) error {
	return q.Submit(NewDispatchJob(tenantID, campaignID, q.config.RetryAttempts))
}

// Submit places a job on the queue without blocking
func (q *DispatchQueue) Submit(job *DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("Dispatch job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("campaign_id", job.CampaignID.String()),
		)
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *DispatchQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.processJob(ctx, job, workerID)
		}
	}
}

func (q *DispatchQueue) processJob(ctx context.Context, job *DispatchJob, workerID int) {
	job.Start()
	log := q.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("campaign_id", job.CampaignID.String()),
	)
	log.Info("Processing dispatch job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, q.config.JobTimeout)
	defer cancel()

	err := q.run(jobCtx, job)
	if err == nil {
		job.Complete()
		log.Info("Dispatch job completed")
		return
	}

	job.Fail(err.Error())
	log.Error("Dispatch job failed", zap.Error(err))

	if !job.ShouldRetry() || !q.shouldRetry(err) {
		return
	}
	job.ScheduleRetry()
	log.Info("Dispatch job scheduled for retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", q.config.RetryDelay),
	)
	q.scheduleRetry(job)
}

// run executes the job and turns a panic into an error so a worker survives it
func (q *DispatchQueue) run(ctx context.Context, job *DispatchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	return q.executor.Dispatch(ctx, job.TenantID, job.CampaignID)
}

func (q *DispatchQueue) scheduleRetry(job *DispatchJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.isRunning {
		return
	}
	q.retries[job.ID] = time.AfterFunc(q.config.RetryDelay, func() {
		q.mu.Lock()
		delete(q.retries, job.ID)
		q.mu.Unlock()
		if err := q.Submit(job); err != nil {
			q.logger.Warn("Failed to re-queue dispatch job",
				zap.String("job_id", job.ID.String()),
				zap.String("campaign_id", job.CampaignID.String()),
				zap.Error(err),
			)
		}
	})
}
