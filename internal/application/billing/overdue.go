package billing

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarkOverdue flags every outstanding bill whose due date is before asOf and
// assesses its late fee. Candidates are processed one account per
// transaction, under that account's lock. A zero asOf means now.
func (e *BillingEngine) MarkOverdue(ctx context.Context, asOf time.Time) (*OverdueSweepResult, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}
	asOf = asOf.UTC()

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opMarkOverdue)
	defer span.End()

	start := e.now()
	result := &OverdueSweepResult{AsOf: asOf, LateFees: decimal.Zero}
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, opMarkOverdue, ""), func(c context.Context) {
		err = e.markOverdue(c, asOf, result)
	})
	e.observe(ctx, opMarkOverdue, start, err)

	telemetry.SetAttributes(span,
		"overdue.scanned", result.Scanned,
		"overdue.marked", result.Marked,
		"overdue.failed", result.Failed,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		e.logger.Error("Overdue sweep aborted", zap.Int("marked", result.Marked), zap.Error(err))
		return result, err
	}
	telemetry.SetOK(span)
	e.logger.Info("Overdue sweep finished",
		zap.Time("as_of", asOf),
		zap.Int("scanned", result.Scanned),
		zap.Int("marked", result.Marked),
		zap.Int("failed", result.Failed),
		zap.String("late_fees", result.LateFees.StringFixed(2)),
	)
	return result, nil
}

func (e *BillingEngine) markOverdue(ctx context.Context, asOf time.Time, result *OverdueSweepResult) error {
	seen := make(map[uuid.UUID]bool)
	for {
		var batch []billing.Bill
		err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			batch, err = repos.Bills().FindOverdueCandidates(ctx, asOf, e.overdueBatchSize)
			return err
		})
		if err != nil {
			return err
		}

		// Group unseen candidates by account, keeping the oldest-first order
		var order []uuid.UUID
		byAccount := make(map[uuid.UUID][]uuid.UUID)
		for _, b := range batch {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			if _, ok := byAccount[b.AccountID]; !ok {
				order = append(order, b.AccountID)
			}
			byAccount[b.AccountID] = append(byAccount[b.AccountID], b.ID)
		}
		if len(order) == 0 {
			return nil
		}

		for _, accountID := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			billIDs := byAccount[accountID]
			result.Scanned += len(billIDs)

			marked, err := e.markAccountOverdue(ctx, accountID, billIDs, asOf)
			if err != nil {
				result.Failed += len(billIDs)
				if shared.IsRetryable(err) {
					e.metrics.RecordContention(ctx, opMarkOverdue)
				}
				e.logger.Warn("Overdue marking failed for account",
					zap.String("account_id", accountID.String()),
					zap.Int("bills", len(billIDs)),
					zap.Error(err),
				)
				continue
			}
			for _, b := range marked {
				result.Marked++
				result.LateFees = result.LateFees.Add(b.LateFeeAmount)
				result.BillIDs = append(result.BillIDs, b.ID)
			}
			if len(marked) > 0 {
				e.invalidate(ctx, accountID)
			}
		}

		if len(batch) < e.overdueBatchSize {
			return nil
		}
	}
}

// markAccountOverdue marks the given bills of one account in one transaction
func (e *BillingEngine) markAccountOverdue(ctx context.Context, accountID uuid.UUID, billIDs []uuid.UUID, asOf time.Time) ([]billing.Bill, error) {
	var marked []billing.Bill
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		marked = nil
		if _, err := repos.Accounts().LockForUpdate(ctx, accountID); err != nil {
			return err
		}
		bills, err := repos.Bills().FindByIDs(ctx, billIDs)
		if err != nil {
			return err
		}
		allocated, err := repos.Allocations().SumByBills(ctx, billIDs)
		if err != nil {
			return err
		}

		epsilon := e.cfg.Epsilon()
		var events []shared.DomainEvent
		for i := range bills {
			b := &bills[i]
			// State may have changed between the candidate scan and the lock
			if !b.IsOverdueCandidate(asOf) {
				continue
			}
			paid := allocated[b.ID]
			balance := b.Balance(paid)
			if balance.LessThanOrEqual(epsilon) {
				continue
			}
			fee := e.lateFees.Calculate(balance, b.DaysOverdue(asOf))
			if err := b.MarkOverdue(asOf, balance, fee); err != nil {
				return err
			}
			if err := repos.Bills().Update(ctx, b); err != nil {
				return err
			}
			events = append(events, b.PullDomainEvents()...)
			marked = append(marked, *b)
		}
		if len(events) == 0 {
			return nil
		}
		return repos.Events().Record(ctx, events...)
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}
