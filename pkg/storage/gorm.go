// Package storage provides storage implementations for sitepipe.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/security"
)

// GormStore implements core.Store using GORM.
type GormStore struct {
	db *gorm.DB
}

var _ core.Store = (*GormStore)(nil)

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying connection.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// IsPostgres reports whether the store runs on PostgreSQL.
func (s *GormStore) IsPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.ProgressStep{})
}

// Enqueue durably records a new queued job.
func (s *GormStore) Enqueue(ctx context.Context, key string, payload []byte) (*core.Job, error) {
	job := &core.Job{
		ID:     uuid.New().String(),
		Key:    key,
		Status: core.StatusQueued,
	}
	if len(payload) > 0 {
		job.Payload = datatypes.JSON(payload)
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return job, nil
}

// ClaimNextBatch moves up to limit queued jobs to processing.
//
// Every job is claimed with its own conditional update on status, so a job
// that another caller claimed between the read and the write is skipped.
// On PostgreSQL the candidate read also takes row locks with SKIP LOCKED so
// concurrent callers spread over different rows instead of racing.
func (s *GormStore) ClaimNextBatch(ctx context.Context, limit int, workerID string, lease time.Duration) ([]*core.Job, error) {
	limit = security.ClampBatchSize(limit)
	var claimed []*core.Job

	claim := func(tx *gorm.DB) error {
		claimed = claimed[:0]

		query := tx.Where("status = ?", core.StatusQueued).
			Order("created_at ASC").
			Order("id ASC").
			Limit(limit)
		if s.IsPostgres() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var candidates []*core.Job
		if err := query.Find(&candidates).Error; err != nil {
			return err
		}

		now := time.Now()
		until := now.Add(lease)
		for _, job := range candidates {
			result := tx.Model(&core.Job{}).
				Where("id = ? AND status = ?", job.ID, core.StatusQueued).
				Updates(map[string]any{
					"status":           core.StatusProcessing,
					"locked_by":        workerID,
					"lease_expires_at": until,
					"started_at":       now,
					"attempt":          gorm.Expr("attempt + 1"),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}

			job.Status = core.StatusProcessing
			job.LockedBy = workerID
			job.LeaseExpiresAt = &until
			job.StartedAt = &now
			job.Attempt++
			claimed = append(claimed, job)
		}
		return nil
	}

	var err error
	if s.IsPostgres() {
		err = s.db.WithContext(ctx).Transaction(claim)
	} else {
		err = claim(s.db.WithContext(ctx))
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RecordProgress appends a progress step.
func (s *GormStore) RecordProgress(ctx context.Context, step *core.ProgressStep) error {
	if step.RecordedAt.IsZero() {
		step.RecordedAt = time.Now()
	}
	step.Message = security.SanitizeErrorMessage(step.Message)
	return s.db.WithContext(ctx).Create(step).Error
}

// Complete marks a processing job owned by workerID as completed with its
// result. Completing an already completed job is a no-op.
func (s *GormStore) Complete(ctx context.Context, jobID string, workerID string, result []byte) error {
	updates := map[string]any{
		"status":           core.StatusCompleted,
		"completed_at":     time.Now(),
		"locked_by":        "",
		"lease_expires_at": nil,
	}
	if len(result) > 0 {
		updates["result"] = datatypes.JSON(result)
	}
	return s.finish(ctx, jobID, workerID, core.StatusCompleted, updates)
}

// Fail marks a processing job owned by workerID as failed.
// Error messages are sanitized before storage. Failing an already failed
// job is a no-op.
func (s *GormStore) Fail(ctx context.Context, jobID string, workerID string, errMsg string) error {
	return s.finish(ctx, jobID, workerID, core.StatusFailed, map[string]any{
		"status":           core.StatusFailed,
		"error":            security.SanitizeErrorMessage(errMsg),
		"completed_at":     time.Now(),
		"locked_by":        "",
		"lease_expires_at": nil,
	})
}

// finish applies a terminal write. A lease that expired and was recovered
// may have handed the job to another worker; the old owner's write is then
// rejected with ErrJobNotOwned.
func (s *GormStore) finish(ctx context.Context, jobID string, workerID string, target core.JobStatus, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ? AND locked_by = ?", jobID, core.StatusProcessing, workerID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return core.ErrJobNotFound
	}
	if job.Status == target {
		return nil
	}
	if job.Status == core.StatusProcessing {
		return core.ErrJobNotOwned
	}
	return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, job.Status, target)
}

// ExtendLease pushes the lease of a job the worker still owns.
func (s *GormStore) ExtendLease(ctx context.Context, jobID string, workerID string, lease time.Duration) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusProcessing).
		Update("lease_expires_at", time.Now().Add(lease))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// RecoverExpired handles processing jobs whose lease ran out before a
// terminal write. Jobs that already used maxAttempts claims are failed,
// the rest go back to queued. A maxAttempts of zero or less never fails.
func (s *GormStore) RecoverExpired(ctx context.Context, now time.Time, maxAttempts int) (int64, int64, error) {
	var failed int64
	if maxAttempts > 0 {
		result := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("status = ? AND lease_expires_at < ? AND attempt >= ?", core.StatusProcessing, now, maxAttempts).
			Updates(map[string]any{
				"status":           core.StatusFailed,
				"error":            fmt.Sprintf("lease expired after %d attempts", maxAttempts),
				"completed_at":     now,
				"locked_by":        "",
				"lease_expires_at": nil,
			})
		if result.Error != nil {
			return 0, 0, result.Error
		}
		failed = result.RowsAffected
	}

	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ? AND lease_expires_at < ?", core.StatusProcessing, now).
		Updates(map[string]any{
			"status":           core.StatusQueued,
			"locked_by":        "",
			"lease_expires_at": nil,
			"started_at":       nil,
		})
	if result.Error != nil {
		return 0, failed, result.Error
	}
	return result.RowsAffected, failed, nil
}

// Get retrieves a job by ID. It returns nil, nil when the job does not exist.
func (s *GormStore) Get(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Progress returns a job's progress history in recording order.
func (s *GormStore) Progress(ctx context.Context, jobID string) ([]core.ProgressStep, error) {
	var steps []core.ProgressStep
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&steps).Error
	return steps, err
}

// ListRecent returns the newest jobs matching filter.
func (s *GormStore) ListRecent(ctx context.Context, filter core.JobFilter, limit int) ([]*core.Job, error) {
	query := s.db.WithContext(ctx).Model(&core.Job{})
	if len(filter.Statuses) > 0 {
		for _, st := range filter.Statuses {
			if !st.Valid() {
				return nil, fmt.Errorf("%w: %q", core.ErrInvalidStatus, st)
			}
		}
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Key != "" {
		query = query.Where("job_key = ?", filter.Key)
	}

	var jobList []*core.Job
	err := query.
		Order("created_at DESC").
		Limit(security.ClampListLimit(limit)).
		Find(&jobList).Error
	return jobList, err
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
