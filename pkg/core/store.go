package core

import (
	"context"
	"time"
)

// Store defines the persistence layer for jobs and their progress history.
type Store interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Enqueue durably records a new queued job. The job is not visible to
	// ClaimNextBatch until the write has committed.
	Enqueue(ctx context.Context, key string, payload []byte) (*Job, error)

	// ClaimNextBatch moves up to limit queued jobs, oldest first, to
	// processing and returns them. No job is returned to two callers.
	ClaimNextBatch(ctx context.Context, limit int, workerID string, lease time.Duration) ([]*Job, error)

	// RecordProgress appends one entry to a job's progress history.
	RecordProgress(ctx context.Context, step *ProgressStep) error

	// Terminal writes, accepted only from the worker holding the claim.
	// Repeating the same write is a no-op.
	Complete(ctx context.Context, jobID string, workerID string, result []byte) error
	Fail(ctx context.Context, jobID string, workerID string, errMsg string) error

	// Leases
	ExtendLease(ctx context.Context, jobID string, workerID string, lease time.Duration) error
	RecoverExpired(ctx context.Context, now time.Time, maxAttempts int) (requeued int64, failed int64, err error)

	// Queries
	Get(ctx context.Context, jobID string) (*Job, error)
	Progress(ctx context.Context, jobID string) ([]ProgressStep, error)
	ListRecent(ctx context.Context, filter JobFilter, limit int) ([]*Job, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
