package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type collectingSubmitter struct {
	mu   sync.Mutex
	jobs []*Job
	err  error
}

func (c *collectingSubmitter) Submit(job *Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, job)
	return nil
}

func newTestTrigger(t *testing.T, sub Submitter) *CronTrigger {
	t.Helper()
	entries, err := BillingEntries(DefaultBillingSchedules(), 2)
	require.NoError(t, err)
	return NewCronTrigger(DefaultCronTriggerConfig(), sub, entries, zaptest.NewLogger(t))
}

func TestCronTrigger_FiresOncePerMinute(t *testing.T) {
	sub := &collectingSubmitter{}
	trigger := newTestTrigger(t, sub)

	at := time.Date(2026, 10, 14, 2, 0, 5, 0, time.UTC)
	assert.Equal(t, 1, trigger.tick(at))
	assert.Equal(t, 0, trigger.tick(at.Add(30*time.Second)), "same minute does not fire twice")
	assert.Equal(t, 0, trigger.tick(at.Add(time.Minute)))

	require.Len(t, sub.jobs, 1)
	assert.Equal(t, JobMarkOverdue, sub.jobs[0].Kind)
	assert.Equal(t, 2, sub.jobs[0].MaxRetries)
	assert.Equal(t, at, sub.jobs[0].AsOf)

	assert.Equal(t, 1, trigger.tick(at.AddDate(0, 0, 1)), "fires again the next day")
}

func TestCronTrigger_MonthlyGeneration(t *testing.T) {
	sub := &collectingSubmitter{}
	trigger := newTestTrigger(t, sub)

	assert.Equal(t, 0, trigger.tick(time.Date(2026, 10, 2, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, trigger.tick(time.Date(2026, 10, 1, 3, 0, 0, 0, time.UTC)))

	require.Len(t, sub.jobs, 1)
	job := sub.jobs[0]
	assert.Equal(t, JobGenerateBills, job.Kind)
	assert.Equal(t, billing.Period{Year: 2026, Month: time.September}, job.Period)
}

func TestCronTrigger_GenerationInJanuaryBillsDecember(t *testing.T) {
	sub := &collectingSubmitter{}
	trigger := newTestTrigger(t, sub)

	require.Equal(t, 1, trigger.tick(time.Date(2027, 1, 1, 3, 0, 0, 0, time.UTC)))
	assert.Equal(t, billing.Period{Year: 2026, Month: time.December}, sub.jobs[0].Period)
}

func TestCronTrigger_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	entries, err := BillingEntries(DefaultBillingSchedules(), 0)
	require.NoError(t, err)
	sub := &collectingSubmitter{}
	trigger := NewCronTrigger(CronTriggerConfig{Location: loc}, sub, entries, nil)

	// 23:00 UTC is 02:00 in UTC+3
	assert.Equal(t, 1, trigger.tick(time.Date(2026, 10, 13, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, JobMarkOverdue, sub.jobs[0].Kind)
}

func TestCronTrigger_SubmitFailureIsNotCounted(t *testing.T) {
	sub := &collectingSubmitter{err: ErrJobQueueFull}
	trigger := newTestTrigger(t, sub)
	assert.Equal(t, 0, trigger.tick(time.Date(2026, 10, 14, 2, 30, 0, 0, time.UTC)))
}

func TestBillingEntries_InvalidSchedule(t *testing.T) {
	s := DefaultBillingSchedules()
	s.ExpireCredits = "every night"
	_, err := BillingEntries(s, 0)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCronTrigger_StartStop(t *testing.T) {
	trigger := newTestTrigger(t, &collectingSubmitter{})
	ctx := t.Context()
	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Start(ctx), "start is idempotent")
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))
}
