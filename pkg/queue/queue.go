package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/security"
)

// SubmitRequest is one job submission.
type SubmitRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JobView is a job together with its progress history.
type JobView struct {
	Job      *core.Job           `json:"job"`
	Progress []core.ProgressStep `json:"progress"`
}

// Queue records submissions and fans out job lifecycle notifications.
type Queue struct {
	store  core.Store
	config Config
	logger *zap.Logger
	mu     sync.RWMutex

	// Hooks
	onStart    []func(context.Context, *core.Job)
	onComplete []func(context.Context, *core.Job)
	onFail     []func(context.Context, *core.Job, error)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a Queue over store.
func New(store core.Store, opts ...Option) *Queue {
	config := Config{
		EventBuffer: DefaultEventBuffer,
		Logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt.Apply(&config)
	}
	return &Queue{
		store:  store,
		config: config,
		logger: config.Logger,
	}
}

// Store returns the underlying store.
func (q *Queue) Store() core.Store {
	return q.store
}

// Submit validates req and durably enqueues it. Validation failures match
// core.IsValidation; store failures wrap core.ErrStoreUnavailable and
// leave no job behind.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (*core.Job, error) {
	key := security.NormalizeKey(req.Key)
	if err := security.ValidateKey(key); err != nil {
		return nil, err
	}

	payload := []byte(req.Payload)
	if string(payload) == "null" {
		payload = nil
	}
	if err := security.ValidatePayload(payload); err != nil {
		return nil, err
	}

	job, err := q.store.Enqueue(ctx, key, payload)
	if err != nil {
		if !errors.Is(err, core.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
		q.logger.Error("enqueue failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	if q.config.Sessions != nil {
		if p, err := job.DecodePayload(); err == nil && p.Track {
			q.config.Sessions.Open(job.ID)
		}
	}

	if q.config.Notifier != nil {
		if err := q.config.Notifier.NotifyEnqueued(ctx, job); err != nil {
			// The job is recorded; the next periodic tick picks it up.
			q.logger.Warn("enqueue notification failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	q.logger.Info("job enqueued", zap.String("job_id", job.ID), zap.String("key", key))
	q.Emit(&core.JobEnqueued{Job: job, Timestamp: time.Now()})
	return job, nil
}

// Get returns a job and its progress history, or core.ErrJobNotFound.
func (q *Queue) Get(ctx context.Context, id string) (*JobView, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.ErrJobNotFound
	}
	steps, err := q.store.Progress(ctx, id)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []core.ProgressStep{}
	}
	return &JobView{Job: job, Progress: steps}, nil
}

// List returns recent jobs matching filter, newest first.
func (q *Queue) List(ctx context.Context, filter core.JobFilter, limit int) ([]*core.Job, error) {
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: %q", core.ErrInvalidStatus, s)
		}
	}
	if filter.Key != "" {
		filter.Key = security.NormalizeKey(filter.Key)
	}
	return q.store.ListRecent(ctx, filter, security.ClampListLimit(limit))
}

// OnJobStart registers a callback for when a job starts its pipeline.
func (q *Queue) OnJobStart(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnJobComplete registers a callback for when a job completes.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a callback for when a job fails.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, q.config.EventBuffer)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed; after Unsubscribe returns no further events
// are sent to it.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers without blocking. Subscribers
// with a full buffer miss the event.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, job *core.Job) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job)
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, job, err)
	}
}
