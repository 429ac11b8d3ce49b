package billing

import (
	"context"
	"errors"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BulkActor is recorded as the generator of bills created by a bulk run
const BulkActor = "system:bulk"

// GenerateForAccounts generates the period's bill for each account with at
// most concurrency accounts in flight. An empty accountIDs bills every
// billable account. Each account runs in its own transaction; one account's
// failure is reported in its outcome and never stops the others.
func (e *BillingEngine) GenerateForAccounts(ctx context.Context, period billing.Period, accountIDs []uuid.UUID, concurrency int) (*BulkGenerationReport, error) {
	if period.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Billing period is required")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opGenerateBulk)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPeriod, period.String())

	if len(accountIDs) == 0 {
		err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			ids, err := repos.Accounts().FindBillableIDs(ctx)
			accountIDs = ids
			return err
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	issuedAt := e.now().UTC()
	report := &BulkGenerationReport{
		Period:    period.String(),
		Total:     len(accountIDs),
		FailedBy:  map[string]int{},
		Billed:    decimal.Zero,
		Outcomes:  make([]AccountOutcome, len(accountIDs)),
		StartedAt: issuedAt,
	}

	e.logger.Info("Bulk generation started",
		zap.String("period", period.String()),
		zap.Int("accounts", len(accountIDs)),
		zap.Int("concurrency", concurrency),
	)

	scope := telemetry.NewProfilingScope(nil).
		WithComponent(componentName).
		WithOperation(opGenerateBulk).
		WithRegion("worker")

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, accountID := range accountIDs {
		g.Go(func() error {
			scope.Run(ctx, func(c context.Context) {
				report.Outcomes[i] = e.generateOutcome(c, period, accountID, issuedAt)
			})
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range report.Outcomes {
		switch o.Status {
		case OutcomeGenerated:
			report.Succeeded++
			report.Billed = report.Billed.Add(o.TotalAmount)
		case OutcomeDuplicate:
			report.Duplicates++
		default:
			report.Failed++
			report.FailedBy[o.ErrorCode]++
		}
	}
	report.FinishedAt = e.now().UTC()

	telemetry.SetAttributes(span,
		"bulk.succeeded", report.Succeeded,
		"bulk.duplicates", report.Duplicates,
		"bulk.failed", report.Failed,
	)
	telemetry.SetOK(span)
	e.logger.Info("Bulk generation finished",
		zap.String("period", period.String()),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed),
		zap.String("billed", report.Billed.StringFixed(2)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (e *BillingEngine) generateOutcome(ctx context.Context, period billing.Period, accountID uuid.UUID, issuedAt time.Time) AccountOutcome {
	outcome := AccountOutcome{AccountID: accountID, TotalAmount: decimal.Zero}
	if err := ctx.Err(); err != nil {
		outcome.Status = OutcomeFailed
		outcome.ErrorCode = "CANCELLED"
		outcome.Error = err.Error()
		return outcome
	}

	req := GenerateBillRequest{AccountID: accountID, Period: period, IssuedAt: issuedAt, Actor: BulkActor}
	bill, err := e.generateWithOp(ctx, req, opGenerateBulk)
	switch {
	case err == nil:
		id := bill.ID
		outcome.Status = OutcomeGenerated
		outcome.BillID = &id
		outcome.TotalAmount = bill.TotalAmount
	case errors.Is(err, billing.ErrDuplicateBill):
		outcome.Status = OutcomeDuplicate
		outcome.ErrorCode = billing.CodeDuplicateBill
	default:
		outcome.Status = OutcomeFailed
		outcome.ErrorCode = shared.ErrorCode(err)
		if outcome.ErrorCode == "" {
			outcome.ErrorCode = "INTERNAL"
		}
		outcome.Error = err.Error()
	}
	return outcome
}
