package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/internal/retry"
	"github.com/jdziat/sitepipe/pkg/pipeline"
	"github.com/jdziat/sitepipe/pkg/queue"
	"github.com/jdziat/sitepipe/pkg/schedule"
)

// Runner executes the pipeline for one claimed job.
// *pipeline.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, job *core.Job) (*pipeline.Result, error)
}

// TickResult counts what one tick did.
type TickResult struct {
	Processed int   `json:"processed"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Recovered int64 `json:"recovered"`
}

// Scheduler claims queued jobs and runs them through the pipeline.
type Scheduler struct {
	queue   *queue.Queue
	runner  Runner
	config  Config
	logger  *zap.Logger
	trigger chan struct{}
}

// New creates a scheduler.
func New(q *queue.Queue, runner Runner, opts ...Option) *Scheduler {
	config := Config{
		BatchSize:   DefaultBatchSize,
		Pacing:      DefaultPacing,
		Lease:       DefaultLease,
		MaxAttempts: DefaultMaxAttempts,
		WorkerID:    uuid.New().String(),
		Schedule:    schedule.Every(DefaultInterval),
		// Longer backoff for claims to avoid hammering the store during outages
		ClaimRetry: retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		},
		StoreRetry: retry.Default(),
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt.Apply(&config)
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = config.Lease / 3
	}

	return &Scheduler{
		queue:   q,
		runner:  runner,
		config:  config,
		logger:  config.Logger.With(zap.String("worker_id", config.WorkerID)),
		trigger: make(chan struct{}, 1),
	}
}

// WorkerID returns the identity this scheduler claims jobs under.
func (s *Scheduler) WorkerID() string {
	return s.config.WorkerID
}

// Tick runs one scheduler pass: recover expired leases, claim up to the
// batch size, and run each claimed job to a terminal state one after the
// other. A store outage during the claim makes the tick a logged no-op.
//
// Cancelling ctx stops the pacing delays but not the jobs already claimed;
// each of them still runs to completion or failure.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	start := time.Now()
	var result TickResult
	defer func() {
		s.queue.Emit(&core.TickCompleted{
			Processed: result.Processed,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Recovered: result.Recovered,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		})
	}()

	store := s.queue.Store()

	requeued, expired, err := store.RecoverExpired(ctx, time.Now(), s.config.MaxAttempts)
	if err != nil {
		s.logger.Warn("lease recovery failed", zap.Error(err))
	} else if requeued > 0 || expired > 0 {
		s.logger.Info("recovered expired leases",
			zap.Int64("requeued", requeued),
			zap.Int64("failed", expired),
		)
	}
	result.Recovered = requeued

	jobs, err := s.claimWithRetry(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("failed to claim after retries", zap.Error(err))
		}
		return result
	}
	if len(jobs) == 0 {
		return result
	}

	s.logger.Debug("claimed batch", zap.Int("jobs", len(jobs)))
	for i, job := range jobs {
		if i > 0 {
			s.pace(ctx)
		}
		result.Processed++
		if s.processJob(ctx, job) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}

// Trigger requests a tick from Start. Requests made while one is already
// pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start ticks on the configured schedule and on every Trigger until ctx is
// cancelled. Ticks started here never overlap; the in-flight tick finishes
// before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	next := s.config.Schedule.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
			s.Tick(ctx)
		case <-timer.C:
			s.Tick(ctx)
			next = s.config.Schedule.Next(time.Now())
			timer.Reset(time.Until(next))
		}
	}
}

// claimWithRetry claims a batch with exponential backoff on failure.
func (s *Scheduler) claimWithRetry(ctx context.Context) ([]*core.Job, error) {
	var jobs []*core.Job
	err := retry.Do(ctx, s.config.ClaimRetry, func() error {
		var claimErr error
		jobs, claimErr = s.queue.Store().ClaimNextBatch(ctx, s.config.BatchSize, s.config.WorkerID, s.config.Lease)
		return claimErr
	})
	return jobs, err
}

func (s *Scheduler) pace(ctx context.Context) {
	if s.config.Pacing <= 0 || ctx.Err() != nil {
		return
	}
	timer := time.NewTimer(s.config.Pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processJob runs one job and reports whether it completed.
func (s *Scheduler) processJob(ctx context.Context, job *core.Job) bool {
	startTime := time.Now()
	jobCtx := context.WithoutCancel(ctx)

	s.queue.CallStartHooks(jobCtx, job)
	s.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go s.runHeartbeat(heartbeatCtx, job)

	res, err := s.runner.Run(jobCtx, job)

	cancelHeartbeat()

	if err != nil {
		var stage core.Stage
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		s.logger.Warn("job failed", zap.String("job_id", job.ID), zap.String("stage", string(stage)), zap.Error(err))
		s.queue.CallFailHooks(jobCtx, job, err)
		s.queue.Emit(&core.JobFailed{Job: job, Stage: stage, Error: err, Timestamp: time.Now()})
		return false
	}

	s.queue.CallCompleteHooks(jobCtx, job)
	s.queue.Emit(&core.JobCompleted{
		Job:       job,
		Degraded:  res.Degraded,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
	})
	return true
}

// runHeartbeat periodically extends the lease while a job runs so lease
// recovery leaves it alone.
func (s *Scheduler) runHeartbeat(ctx context.Context, job *core.Job) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retry.Do(ctx, s.config.StoreRetry, func() error {
				return s.queue.Store().ExtendLease(ctx, job.ID, s.config.WorkerID, s.config.Lease)
			})
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("heartbeat failed after retries", zap.String("job_id", job.ID), zap.Error(err))
			} else {
				s.logger.Debug("heartbeat sent", zap.String("job_id", job.ID))
			}
		}
	}
}
