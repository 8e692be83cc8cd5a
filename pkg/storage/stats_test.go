package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/sitepipe/pkg/core"
)

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 4)
	assert.Zero(t, counts[core.StatusQueued])

	for _, k := range []string{"a.com", "b.com", "c.com"} {
		_, err := s.Enqueue(ctx, k, nil)
		require.NoError(t, err)
	}
	jobs, err := s.ClaimNextBatch(ctx, 2, "w", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, jobs[0].ID, "w", []byte(`{}`)))

	counts, err = s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[core.StatusQueued])
	assert.EqualValues(t, 1, counts[core.StatusProcessing])
	assert.EqualValues(t, 1, counts[core.StatusCompleted])
	assert.Zero(t, counts[core.StatusFailed])
}
