package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/application/validation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reverse undoes a reconciliation. Allocations are removed, credits drawn by
// them are restored, bill statuses are recomputed and the payment returns to
// pending. The account is left exactly as it was before Reconcile.
func (e *ReconciliationEngine) Reverse(ctx context.Context, req ReverseRequest) (*ReversalResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opReverse)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, req.PaymentID.String())

	start := e.now()
	var result *ReversalResult
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, opReverse, ""), func(c context.Context) {
		result, err = e.reverse(c, req)
	})
	e.observe(ctx, opReverse, start, err)

	if err != nil {
		telemetry.RecordError(span, err)
		e.logger.Info("Reversal failed",
			zap.String("payment_id", req.PaymentID.String()),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, result.Payment.AccountID.String(),
		telemetry.SpanAttrAllocationCount, int(result.RemovedAllocations),
	)
	telemetry.SetOK(span)
	e.invalidate(ctx, result.Payment.AccountID)
	e.logger.Info("Payment reconciliation reversed",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("account_id", result.Payment.AccountID.String()),
		zap.Int64("removed_allocations", result.RemovedAllocations),
		zap.Int("restored_credits", len(result.RestoredCredits)),
		zap.String("actor", req.Actor),
		zap.String("reason", req.Reason),
	)
	return result, nil
}

func (e *ReconciliationEngine) reverse(ctx context.Context, req ReverseRequest) (*ReversalResult, error) {
	var result *ReversalResult
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		pmt, err := repos.Payments().FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if err := pmt.CanReverse(); err != nil {
			return err
		}
		if _, err := repos.Accounts().LockForUpdate(ctx, pmt.AccountID); err != nil {
			return err
		}
		pmt, err = repos.Payments().FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if err := pmt.CanReverse(); err != nil {
			return err
		}

		now := e.now().UTC()
		allocations, err := repos.Allocations().FindByPayment(ctx, pmt.ID)
		if err != nil {
			return err
		}

		restored, err := restoreCredits(ctx, repos, allocations, now)
		if err != nil {
			return err
		}

		removed, err := repos.Allocations().DeleteByPayment(ctx, pmt.ID)
		if err != nil {
			return err
		}

		affected := affectedBills(allocations)
		updated, events, err := e.recomputeAfterRemoval(ctx, repos, affected, now)
		if err != nil {
			return err
		}

		deletedCredits, err := repos.CarryForwards().DeleteByPayment(ctx, pmt.ID)
		if err != nil {
			return err
		}

		if err := pmt.ResetReconciliation(req.Reason, req.Actor, int(removed), affected, now); err != nil {
			return err
		}
		if err := repos.Payments().Update(ctx, pmt); err != nil {
			return err
		}
		events = append(events, pmt.PullDomainEvents()...)
		if err := repos.Events().Record(ctx, events...); err != nil {
			return err
		}

		balance, err := accountBalance(ctx, repos, pmt.AccountID, now)
		if err != nil {
			return err
		}
		result = &ReversalResult{
			Payment:              pmt,
			RemovedAllocations:   removed,
			RestoredCredits:      restored,
			DeletedCarryForwards: deletedCredits,
			UpdatedBills:         updated,
			Balance:              balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// restoreCredits gives back what credit-sourced allocations drew
func restoreCredits(ctx context.Context, repos TransactionalRepositories, allocations []ledger.Allocation, at time.Time) ([]ledger.CarryForward, error) {
	var order []uuid.UUID
	drawn := make(map[uuid.UUID]decimal.Decimal)
	for _, a := range allocations {
		if a.Source != ledger.SourceCredit || a.CreditID == nil {
			continue
		}
		if _, ok := drawn[*a.CreditID]; !ok {
			order = append(order, *a.CreditID)
		}
		drawn[*a.CreditID] = drawn[*a.CreditID].Add(a.Amount)
	}

	restored := make([]ledger.CarryForward, 0, len(order))
	for _, id := range order {
		cf, err := repos.CarryForwards().FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load credit %s: %w", id, err)
		}
		if err := cf.Restore(drawn[id], at); err != nil {
			return nil, err
		}
		if err := repos.CarryForwards().Update(ctx, cf); err != nil {
			return nil, err
		}
		restored = append(restored, *cf)
	}
	return restored, nil
}

// recomputeAfterRemoval re-derives the status of bills that lost allocations
func (e *ReconciliationEngine) recomputeAfterRemoval(ctx context.Context, repos TransactionalRepositories, billIDs []uuid.UUID, at time.Time) ([]billing.Bill, []shared.DomainEvent, error) {
	if len(billIDs) == 0 {
		return nil, nil, nil
	}
	bills, err := repos.Bills().FindByIDs(ctx, billIDs)
	if err != nil {
		return nil, nil, err
	}
	allocated, err := repos.Allocations().SumByBills(ctx, billIDs)
	if err != nil {
		return nil, nil, err
	}

	var updated []billing.Bill
	var events []shared.DomainEvent
	for i := range bills {
		b := &bills[i]
		if !b.RecomputeStatus(allocated[b.ID], e.cfg.Epsilon(), at) {
			continue
		}
		if err := repos.Bills().Update(ctx, b); err != nil {
			return nil, nil, err
		}
		events = append(events, b.PullDomainEvents()...)
		updated = append(updated, *b)
	}
	return updated, events, nil
}

func affectedBills(allocations []ledger.Allocation) []uuid.UUID {
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(allocations))
	for _, a := range allocations {
		if !seen[a.BillID] {
			seen[a.BillID] = true
			ids = append(ids, a.BillID)
		}
	}
	return ids
}
