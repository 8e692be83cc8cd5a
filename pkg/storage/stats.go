package storage

import (
	"context"

	"github.com/jdziat/sitepipe/pkg/core"
)

// CountByStatus returns the number of jobs in every status. Statuses with
// no jobs are reported as zero.
func (s *GormStore) CountByStatus(ctx context.Context) (map[core.JobStatus]int64, error) {
	var rows []struct {
		Status core.JobStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[core.JobStatus]int64{
		core.StatusQueued:     0,
		core.StatusProcessing: 0,
		core.StatusCompleted:  0,
		core.StatusFailed:     0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
