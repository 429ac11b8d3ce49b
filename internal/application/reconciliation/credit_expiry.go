package reconciliation

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExpireCredits moves every active credit whose expiry is at or before asOf
// to expired. Each account runs in its own transaction under its lock, so a
// credit drawn concurrently is re-checked before it expires. A zero asOf
// means now.
func (e *ReconciliationEngine) ExpireCredits(ctx context.Context, asOf time.Time) (*CreditExpiryResult, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}
	asOf = asOf.UTC()

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opExpireCredits)
	defer span.End()

	start := e.now()
	result := &CreditExpiryResult{AsOf: asOf, Amount: decimal.Zero}
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, opExpireCredits, ""), func(c context.Context) {
		err = e.expireCredits(c, asOf, result)
	})
	e.observe(ctx, opExpireCredits, start, err)
	e.metrics.RecordCreditsExpired(ctx, result.Expired)

	telemetry.SetAttributes(span,
		"expiry.expired", result.Expired,
		"expiry.failed", result.Failed,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		e.logger.Error("Credit expiry aborted", zap.Int("expired", result.Expired), zap.Error(err))
		return result, err
	}
	telemetry.SetOK(span)
	e.logger.Info("Credit expiry finished",
		zap.Time("as_of", asOf),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed),
		zap.String("amount", result.Amount.StringFixed(2)),
	)
	return result, nil
}

func (e *ReconciliationEngine) expireCredits(ctx context.Context, asOf time.Time, result *CreditExpiryResult) error {
	seen := make(map[uuid.UUID]bool)
	for {
		var batch []ledger.CarryForward
		err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			batch, err = repos.CarryForwards().FindExpired(ctx, asOf, e.expiryBatchSize)
			return err
		})
		if err != nil {
			return err
		}

		var order []uuid.UUID
		byAccount := make(map[uuid.UUID][]uuid.UUID)
		for _, cf := range batch {
			if seen[cf.ID] {
				continue
			}
			seen[cf.ID] = true
			if _, ok := byAccount[cf.AccountID]; !ok {
				order = append(order, cf.AccountID)
			}
			byAccount[cf.AccountID] = append(byAccount[cf.AccountID], cf.ID)
		}
		if len(order) == 0 {
			return nil
		}

		for _, accountID := range order {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids := byAccount[accountID]
			expired, err := e.expireAccountCredits(ctx, accountID, ids, asOf)
			if err != nil {
				result.Failed += len(ids)
				if shared.IsRetryable(err) {
					e.metrics.RecordContention(ctx, opExpireCredits)
				}
				e.logger.Warn("Credit expiry failed for account",
					zap.String("account_id", accountID.String()),
					zap.Int("credits", len(ids)),
					zap.Error(err),
				)
				continue
			}
			for _, cf := range expired {
				result.Expired++
				result.Amount = result.Amount.Add(cf.Balance)
				result.CreditIDs = append(result.CreditIDs, cf.ID)
			}
			if len(expired) > 0 {
				e.invalidate(ctx, accountID)
			}
		}

		if len(batch) < e.expiryBatchSize {
			return nil
		}
	}
}

func (e *ReconciliationEngine) expireAccountCredits(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID, asOf time.Time) ([]ledger.CarryForward, error) {
	var expired []ledger.CarryForward
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		expired = nil
		if _, err := repos.Accounts().LockForUpdate(ctx, accountID); err != nil {
			return err
		}
		for _, id := range ids {
			cf, err := repos.CarryForwards().FindByID(ctx, id)
			if err != nil {
				return err
			}
			// Drawn to zero or already expired since the scan
			if cf.Status != ledger.CarryForwardActive {
				continue
			}
			if err := cf.Expire(asOf); err != nil {
				return err
			}
			if err := repos.CarryForwards().Update(ctx, cf); err != nil {
				return err
			}
			expired = append(expired, *cf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
