package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/internal/retry"
	"github.com/jdziat/sitepipe/pkg/progress"
	"github.com/jdziat/sitepipe/pkg/security"
)

// Result is what a finished pipeline produced.
type Result struct {
	Outputs  map[core.Stage]json.RawMessage
	Degraded []core.Stage
	// Raw is the JSON object written to the job as its result.
	Raw json.RawMessage
}

// Executor runs the fixed stage sequence for one claimed job.
type Executor struct {
	store  core.Store
	stages []Stage
	config Config
	logger *zap.Logger
}

// NewExecutor creates an executor. stages must follow core.Stages exactly.
func NewExecutor(store core.Store, stages []Stage, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if len(stages) != len(core.Stages) {
		return nil, fmt.Errorf("pipeline: expected %d stages, got %d", len(core.Stages), len(stages))
	}
	for i, s := range stages {
		if s == nil || s.Name() != core.Stages[i] {
			return nil, fmt.Errorf("pipeline: stage %d must be %s", i, core.Stages[i])
		}
	}

	config := Config{
		StageTimeout: DefaultStageTimeout,
		StoreRetry:   retry.Default(),
		Logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt.Apply(&config)
	}

	return &Executor{
		store:  store,
		stages: stages,
		config: config,
		logger: config.Logger,
	}, nil
}

// StageTimeout returns the configured per-stage timeout.
func (e *Executor) StageTimeout() time.Duration {
	return e.config.StageTimeout
}

// Run drives job through every stage. The returned error is a *StageError
// when a required stage failed, or the store error when the terminal write
// could not be made. Caller cancellation does not interrupt stages already
// running; each stage is bounded by the stage timeout instead.
func (e *Executor) Run(ctx context.Context, job *core.Job) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	log := e.logger.With(zap.String("job_id", job.ID), zap.String("key", job.Key))

	payload, err := job.DecodePayload()
	if err != nil {
		// An unreadable payload is handed over raw; stages use the key only.
		log.Warn("payload not decodable", zap.Error(err))
		payload = core.Payload{}
	}
	in := Input{
		JobID:      job.ID,
		Key:        job.Key,
		Payload:    payload,
		RawPayload: json.RawMessage(job.Payload),
		Outputs:    make(map[core.Stage]json.RawMessage, len(e.stages)),
	}

	var degraded []core.Stage
	completed := 0

	for _, stage := range e.stages {
		name := stage.Name()
		started := time.Now()
		overall := core.OverallPercent(completed)

		e.record(ctx, log, &core.ProgressStep{
			JobID:          job.ID,
			Stage:          name,
			Status:         core.StepRunning,
			OverallPercent: overall,
		})
		e.track(log, job.ID, progress.Delta{Stage: name, StageStatus: core.StepRunning})

		out, runErr := e.invoke(ctx, stage, in.clone())
		isDegraded := false
		message := ""

		if runErr != nil {
			if stage.Required() {
				return nil, e.abort(ctx, log, job, name, runErr, overall, started)
			}

			log.Warn("stage degraded", zap.String("stage", string(name)), zap.Error(runErr))
			out, err = fallback(stage, in.clone(), runErr)
			if err != nil {
				// A degradable stage without a usable fallback is treated like
				// a required failure; later stages would lack their input.
				return nil, e.abort(ctx, log, job, name, fmt.Errorf("%v; fallback: %w", runErr, err), overall, started)
			}
			isDegraded = true
			message = "degraded: " + security.SanitizeErrorMessage(runErr.Error())
			degraded = append(degraded, name)
		}

		in.Outputs[name] = out
		completed++

		e.record(ctx, log, &core.ProgressStep{
			JobID:          job.ID,
			Stage:          name,
			Status:         core.StepCompleted,
			Percent:        100,
			OverallPercent: core.OverallPercent(completed),
			Degraded:       isDegraded,
			Message:        message,
		})
		e.track(log, job.ID, progress.Delta{
			Stage:       name,
			StageStatus: core.StepCompleted,
			Message:     message,
			Degraded:    isDegraded,
		})

		outcome := core.OutcomeSucceeded
		if isDegraded {
			outcome = core.OutcomeDegraded
		}
		e.emit(&core.StageFinished{
			JobID:     job.ID,
			Stage:     name,
			Outcome:   outcome,
			Duration:  time.Since(started),
			Timestamp: time.Now(),
		})
	}

	raw, err := json.Marshal(in.Outputs)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	err = retry.Do(ctx, e.config.StoreRetry, func() error {
		return e.store.Complete(ctx, job.ID, job.LockedBy, raw)
	})
	if err != nil {
		log.Error("failed to complete job after retries", zap.Error(err))
		return nil, err
	}
	e.track(log, job.ID, progress.Delta{Status: progress.SessionCompleted})

	log.Info("job completed", zap.Int("degraded", len(degraded)))
	return &Result{Outputs: in.Outputs, Degraded: degraded, Raw: raw}, nil
}

// invoke runs one stage under the stage timeout. The stage goroutine is
// abandoned on timeout; its late result is discarded.
func (e *Executor) invoke(ctx context.Context, stage Stage, in Input) (json.RawMessage, error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.config.StageTimeout)
	defer cancel()

	type outcome struct {
		out json.RawMessage
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o = outcome{err: fmt.Errorf("panic: %v", r)}
			}
			done <- o
		}()
		o.out, o.err = stage.Run(stageCtx, in)
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrStageTimeout, o.err)
			}
			return nil, o.err
		}
		if !json.Valid(o.out) {
			return nil, fmt.Errorf("stage %s produced invalid JSON", stage.Name())
		}
		return o.out, nil
	case <-stageCtx.Done():
		return nil, fmt.Errorf("%w after %s", ErrStageTimeout, e.config.StageTimeout)
	}
}

// fallback runs a stage's fallback, turning a panic or invalid output into
// an error.
func fallback(stage Stage, in Input, cause error) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = stage.Fallback(in, cause)
	if err == nil && !json.Valid(out) {
		err = fmt.Errorf("fallback produced invalid JSON")
	}
	return out, err
}

func (e *Executor) abort(ctx context.Context, log *zap.Logger, job *core.Job, name core.Stage, cause error, overall int, started time.Time) error {
	stageErr := &StageError{Stage: name, Err: cause}
	msg := security.SanitizeErrorMessage(stageErr.Error())

	log.Error("required stage failed", zap.String("stage", string(name)), zap.Error(cause))

	e.record(ctx, log, &core.ProgressStep{
		JobID:          job.ID,
		Stage:          name,
		Status:         core.StepFailed,
		OverallPercent: overall,
		Message:        msg,
	})

	err := retry.Do(ctx, e.config.StoreRetry, func() error {
		return e.store.Fail(ctx, job.ID, job.LockedBy, msg)
	})
	if err != nil {
		log.Error("failed to mark job as failed after retries", zap.Error(err))
	}

	e.track(log, job.ID, progress.Delta{
		Stage:       name,
		StageStatus: core.StepFailed,
		Message:     msg,
	})
	e.track(log, job.ID, progress.Delta{Status: progress.SessionFailed, Error: msg})

	e.emit(&core.StageFinished{
		JobID:     job.ID,
		Stage:     name,
		Outcome:   core.OutcomeFailed,
		Duration:  time.Since(started),
		Timestamp: time.Now(),
	})
	return stageErr
}

// record appends a progress step. Failures are logged and dropped.
func (e *Executor) record(ctx context.Context, log *zap.Logger, step *core.ProgressStep) {
	err := retry.Do(ctx, e.config.StoreRetry, func() error {
		s := *step
		return e.store.RecordProgress(ctx, &s)
	})
	if err != nil {
		log.Warn("progress write dropped",
			zap.String("stage", string(step.Stage)),
			zap.String("status", string(step.Status)),
			zap.Error(err),
		)
	}
}

func (e *Executor) track(log *zap.Logger, jobID string, delta progress.Delta) {
	if e.config.Tracker == nil {
		return
	}
	if err := e.config.Tracker.Publish(jobID, delta); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		log.Debug("progress publish failed", zap.Error(err))
	}
}

func (e *Executor) emit(ev core.Event) {
	if e.config.Emitter != nil {
		e.config.Emitter.Emit(ev)
	}
}
