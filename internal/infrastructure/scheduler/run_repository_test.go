package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormJobRecorder(t *testing.T) {
	db := sqlitetest.Open(t)
	rec := NewGormJobRecorder(db)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)

	t.Run("no runs yet", func(t *testing.T) {
		last, err := rec.LastRun(ctx, JobGenerateBills)
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	job := NewGenerationJob(billing.Period{Year: 2026, Month: time.September}, now, 1)

	// First attempt fails and is retried
	job.Start(now)
	require.NoError(t, rec.RecordStart(ctx, job))
	job.Fail(now.Add(time.Second), "lock timeout")
	require.NoError(t, rec.RecordFinish(ctx, job))
	job.ScheduleRetry(now, time.Minute)

	job.Start(now.Add(time.Minute))
	require.NoError(t, rec.RecordStart(ctx, job))
	job.Complete(now.Add(2*time.Minute), "period 2026-09: 3 accounts")
	require.NoError(t, rec.RecordFinish(ctx, job))

	t.Run("each attempt is a row", func(t *testing.T) {
		history, err := rec.History(ctx, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)

		assert.Equal(t, 2, history[0].Attempt)
		assert.Equal(t, string(JobStatusSuccess), history[0].Status)
		assert.Equal(t, "period 2026-09: 3 accounts", history[0].Summary)
		assert.Equal(t, "2026-09", history[0].Period)

		assert.Equal(t, 1, history[1].Attempt)
		assert.Equal(t, string(JobStatusFailed), history[1].Status)
		assert.Equal(t, "lock timeout", history[1].Error)
		require.NotNil(t, history[1].CompletedAt)
		assert.Equal(t, job.ID, history[1].JobID)
	})

	t.Run("last run by kind", func(t *testing.T) {
		sweep := NewJob(JobMarkOverdue, now, 0)
		sweep.Start(now.Add(time.Hour))
		require.NoError(t, rec.RecordStart(ctx, sweep))

		last, err := rec.LastRun(ctx, JobGenerateBills)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 2, last.Attempt)

		last, err = rec.LastRun(ctx, JobMarkOverdue)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, string(JobStatusRunning), last.Status)
		assert.Empty(t, last.Period)
		assert.Nil(t, last.CompletedAt)
	})
}
