package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	appbilling "github.com/erp/utilitybilling/internal/application/billing"
	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngines struct {
	period      billing.Period
	accountIDs  []uuid.UUID
	concurrency int
	asOf        time.Time
	runID       string
	actor       string
	err         error
}

func (f *fakeEngines) capture(ctx context.Context) {
	f.runID = logger.GetRunID(ctx)
	f.actor = logger.GetActor(ctx)
}

func (f *fakeEngines) GenerateForAccounts(ctx context.Context, period billing.Period, accountIDs []uuid.UUID, concurrency int) (*appbilling.BulkGenerationReport, error) {
	f.capture(ctx)
	f.period, f.accountIDs, f.concurrency = period, accountIDs, concurrency
	if f.err != nil {
		return nil, f.err
	}
	return &appbilling.BulkGenerationReport{
		Period:     period.String(),
		Total:      5,
		Succeeded:  3,
		Duplicates: 1,
		Failed:     1,
		Billed:     decimal.RequireFromString("1234.5"),
	}, nil
}

func (f *fakeEngines) MarkOverdue(ctx context.Context, asOf time.Time) (*appbilling.OverdueSweepResult, error) {
	f.capture(ctx)
	f.asOf = asOf
	if f.err != nil {
		return nil, f.err
	}
	return &appbilling.OverdueSweepResult{AsOf: asOf, Scanned: 4, Marked: 2, LateFees: decimal.RequireFromString("50")}, nil
}

func (f *fakeEngines) ExpireCredits(ctx context.Context, asOf time.Time) (*reconciliation.CreditExpiryResult, error) {
	f.capture(ctx)
	f.asOf = asOf
	if f.err != nil {
		return nil, f.err
	}
	return &reconciliation.CreditExpiryResult{AsOf: asOf, Expired: 1, Amount: decimal.RequireFromString("12.3")}, nil
}

func newTestExecutor(f *fakeEngines) *BillingJobExecutor {
	return NewBillingJobExecutor(f, f, f, 4, zap.NewNop())
}

func TestBillingJobExecutor_GenerateBills(t *testing.T) {
	f := &fakeEngines{}
	job := NewGenerationJob(billing.Period{Year: 2026, Month: time.September}, time.Now(), 0)

	summary, err := newTestExecutor(f).Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "period 2026-09: 5 accounts, 3 billed, 1 duplicates, 1 failed, total 1234.50", summary)
	assert.Equal(t, job.Period, f.period)
	assert.Nil(t, f.accountIDs, "all billable accounts")
	assert.Equal(t, 4, f.concurrency)
	assert.Equal(t, job.ID.String(), f.runID)
	assert.Equal(t, "system:scheduler", f.actor)
}

func TestBillingJobExecutor_Sweeps(t *testing.T) {
	asOf := time.Date(2026, 10, 14, 2, 0, 0, 0, time.UTC)

	t.Run("mark overdue", func(t *testing.T) {
		f := &fakeEngines{}
		summary, err := newTestExecutor(f).Execute(context.Background(), NewJob(JobMarkOverdue, asOf, 0))
		require.NoError(t, err)
		assert.Equal(t, "scanned 4, marked 2, late fees 50.00, failed 0", summary)
		assert.Equal(t, asOf, f.asOf)
	})

	t.Run("expire credits", func(t *testing.T) {
		f := &fakeEngines{}
		summary, err := newTestExecutor(f).Execute(context.Background(), NewJob(JobExpireCredits, asOf, 0))
		require.NoError(t, err)
		assert.Equal(t, "expired 1 credits worth 12.30, failed 0", summary)
		assert.Equal(t, asOf, f.asOf)
	})
}

func TestBillingJobExecutor_Errors(t *testing.T) {
	boom := errors.New("database unavailable")
	f := &fakeEngines{err: boom}
	exec := newTestExecutor(f)

	_, err := exec.Execute(context.Background(), NewJob(JobMarkOverdue, time.Now(), 0))
	assert.ErrorIs(t, err, boom)

	_, err = exec.Execute(context.Background(), NewJob(JobKind("REBUILD_INDEX"), time.Now(), 0))
	assert.ErrorIs(t, err, ErrUnknownJobKind)
}

func TestNewBillingJobExecutor_ClampsConcurrency(t *testing.T) {
	exec := NewBillingJobExecutor(nil, nil, nil, 0, nil)
	assert.Equal(t, 1, exec.concurrency)
}
