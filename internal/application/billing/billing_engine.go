// Package billing hosts the billing engine: bill generation from meter
// readings, void and regeneration, overdue sweeps and bulk meter distribution.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/application/validation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	componentName = "billing_engine"

	opGenerate     = "generate"
	opGenerateBulk = "generate_bulk"
	opVoid         = "void_and_regenerate"
	opMarkOverdue  = "mark_overdue"
	opDistribute   = "distribute"

	supersededReason = "Superseded by regenerated bill"

	// DefaultOverdueBatchSize is the number of candidates loaded per sweep page
	DefaultOverdueBatchSize = 200
)

// BillingEngine generates and maintains bills. It is safe for concurrent use;
// all state lives in the database and every write to an account runs under
// that account's row lock.
type BillingEngine struct {
	txScope          TransactionScope
	cfg              policy.EngineConfig
	calculator       *billing.ChargeCalculator
	estimator        billing.Estimator
	lateFees         *billing.LateFeePolicy
	logger           *zap.Logger
	metrics          *telemetry.BillingMetrics
	cache            CacheInvalidator
	now              func() time.Time
	overdueBatchSize int
}

// NewBillingEngine creates a billing engine with the given policies
func NewBillingEngine(txScope TransactionScope, cfg policy.EngineConfig, logger *zap.Logger) (*BillingEngine, error) {
	if txScope == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "transaction scope is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	estimator, err := billing.NewEstimator(cfg.Estimation)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingEngine{
		txScope:          txScope,
		cfg:              cfg,
		calculator:       billing.NewChargeCalculator(),
		estimator:        estimator,
		lateFees:         billing.NewLateFeePolicy(cfg.LateFee),
		logger:           logger.Named(componentName),
		now:              time.Now,
		overdueBatchSize: DefaultOverdueBatchSize,
	}, nil
}

// SetMetrics sets the metrics recorder (optional)
func (e *BillingEngine) SetMetrics(m *telemetry.BillingMetrics) {
	e.metrics = m
}

// SetCacheInvalidator sets the balance cache invalidator (optional)
func (e *BillingEngine) SetCacheInvalidator(c CacheInvalidator) {
	e.cache = c
}

// SetClock replaces the time source
func (e *BillingEngine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SetOverdueBatchSize sets the page size of the overdue sweep
func (e *BillingEngine) SetOverdueBatchSize(n int) {
	if n > 0 {
		e.overdueBatchSize = n
	}
}

// Generate creates the bill of one account for one period.
//
// The account row is locked for the whole transaction, so concurrent
// generations for the same account serialize and the second one sees the
// first one's bill.
func (e *BillingEngine) Generate(ctx context.Context, req GenerateBillRequest) (*billing.Bill, error) {
	return e.generateWithOp(ctx, req, opGenerate)
}

func (e *BillingEngine) generateWithOp(ctx context.Context, req GenerateBillRequest, op string) (*billing.Bill, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, op)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, req.AccountID.String(),
		telemetry.SpanAttrPeriod, req.Period.String(),
	)

	start := e.now()
	var bill *billing.Bill
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, op, ""), func(c context.Context) {
		bill, err = e.generate(c, req)
	})
	e.observe(ctx, op, start, err)

	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, billing.ErrDuplicateBill) {
			e.metrics.RecordBillGenerated(ctx, op, telemetry.OutcomeDuplicate)
		} else {
			e.metrics.RecordBillGenerated(ctx, op, telemetry.OutcomeFailed)
		}
		e.logger.Info("Bill generation failed",
			zap.String("account_id", req.AccountID.String()),
			zap.String("period", req.Period.String()),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrBillID, bill.ID.String(),
		telemetry.SpanAttrBillNumber, bill.BillNumber,
		telemetry.SpanAttrAmount, bill.TotalAmount.String(),
	)
	telemetry.SetOK(span)
	e.metrics.RecordBillGenerated(ctx, op, telemetry.OutcomeSuccess)
	e.metrics.RecordBillAmount(ctx, op, bill.TotalAmount)
	e.invalidate(ctx, req.AccountID)

	e.logger.Info("Bill generated",
		zap.String("account_id", req.AccountID.String()),
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.String("period", req.Period.String()),
		zap.String("total_amount", bill.TotalAmount.StringFixed(2)),
		zap.Int("details", len(bill.Details)),
	)
	return bill, nil
}

func (e *BillingEngine) generate(ctx context.Context, req GenerateBillRequest) (*billing.Bill, error) {
	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = e.now()
	}
	issuedAt = issuedAt.UTC()

	var bill *billing.Bill
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		account, err := repos.Accounts().LockForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if !account.Status.IsBillable() {
			return shared.NewDomainError(shared.CodeInvalidState,
				fmt.Sprintf("Account %s is %s and cannot be billed", account.AccountNumber, account.Status))
		}

		superseded, err := e.findSuperseded(ctx, repos, req)
		if err != nil {
			return err
		}

		b, err := e.buildBill(ctx, repos, account, req.Period, issuedAt, req.Actor)
		if err != nil {
			return err
		}

		events := make([]shared.DomainEvent, 0, 2)
		if superseded != nil {
			if err := superseded.Void(supersededReason, req.Actor, issuedAt); err != nil {
				return err
			}
			if err := superseded.LinkReplacement(b); err != nil {
				return err
			}
			// The voided bill must leave the active index before the new one is inserted
			if err := repos.Bills().Update(ctx, superseded); err != nil {
				return err
			}
			events = append(events, superseded.PullDomainEvents()...)
		}
		if err := repos.Bills().Save(ctx, b); err != nil {
			return err
		}
		events = append(events, b.PullDomainEvents()...)
		if err := repos.Events().Record(ctx, events...); err != nil {
			return err
		}
		bill = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bill, nil
}

// findSuperseded returns the active bill a regeneration would replace, or
// nil when the period has no bill yet. It fails with DUPLICATE_BILL when
// duplicates are prevented or the existing bill cannot be replaced.
func (e *BillingEngine) findSuperseded(ctx context.Context, repos TransactionalRepositories, req GenerateBillRequest) (*billing.Bill, error) {
	existing, err := repos.Bills().FindActiveByAccountAndPeriod(ctx, req.AccountID, req.Period)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if e.cfg.PreventDuplicateBills && !req.AllowDuplicate {
		return nil, shared.NewDomainError(billing.CodeDuplicateBill,
			fmt.Sprintf("Bill %s already exists for account %s period %s", existing.BillNumber, req.AccountID, req.Period))
	}
	if existing.Status == billing.BillStatusPaid {
		return nil, shared.NewDomainError(billing.CodeDuplicateBill,
			fmt.Sprintf("Bill %s for period %s is paid and cannot be superseded", existing.BillNumber, req.Period))
	}
	allocated, err := repos.Allocations().SumByBills(ctx, []uuid.UUID{existing.ID})
	if err != nil {
		return nil, err
	}
	if allocated[existing.ID].IsPositive() {
		return nil, shared.NewDomainError(billing.CodeDuplicateBill,
			fmt.Sprintf("Bill %s has payments applied; reverse them before regenerating", existing.BillNumber))
	}
	return existing, nil
}

// buildBill prices every active meter of the account for the period. The
// returned bill is not saved. Estimated readings and reset flags are written
// through repos, so they commit or roll back with the bill.
func (e *BillingEngine) buildBill(ctx context.Context, repos TransactionalRepositories, account *metering.Account, period billing.Period, issuedAt time.Time, actor string) (*billing.Bill, error) {
	meters, err := repos.Meters().FindByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	active := make([]metering.Meter, 0, len(meters))
	for _, m := range meters {
		if m.IsActive() {
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil, shared.NewDomainError(billing.CodeNoActiveMeters,
			fmt.Sprintf("Account %s has no active meters", account.AccountNumber))
	}

	details := make([]billing.BillingDetail, 0, len(active))
	for i := range active {
		detail, err := e.billMeter(ctx, repos, &active[i], period)
		if err != nil {
			return nil, err
		}
		if detail != nil {
			details = append(details, *detail)
		}
	}
	if len(details) == 0 {
		return nil, shared.NewDomainError(billing.CodeNoBillableMeters,
			fmt.Sprintf("No meter of account %s has a reading for %s", account.AccountNumber, period))
	}

	return billing.NewBill(account.ID, period, issuedAt, e.cfg.DueDays, details, actor)
}

// billMeter returns the priced detail of one meter, or nil when the meter
// has no reading in the period and none could be estimated.
func (e *BillingEngine) billMeter(ctx context.Context, repos TransactionalRepositories, meter *metering.Meter, period billing.Period) (*billing.BillingDetail, error) {
	previous, err := optional(repos.Readings().FindLatestBefore(ctx, meter.ID, period.Start()))
	if err != nil {
		return nil, err
	}
	current, err := optional(repos.Readings().FindLatestInRange(ctx, meter.ID, period.Start(), period.End()))
	if err != nil {
		return nil, err
	}

	if current == nil {
		current, err = e.estimateReading(ctx, repos, meter, previous, period)
		if err != nil {
			return nil, err
		}
		if current == nil {
			e.logger.Debug("Meter skipped, no reading in period",
				zap.String("meter_id", meter.ID.String()),
				zap.String("period", period.String()),
			)
			return nil, nil
		}
	}

	usage := metering.Consumption(previous, current)
	if usage.Reset && !current.NeedsReview {
		current.FlagForReview(fmt.Sprintf("Reading %s is below the previous reading %s; meter reset or replacement suspected",
			current.Value.String(), previous.Value.String()))
		if err := repos.Readings().Update(ctx, current); err != nil {
			return nil, err
		}
		e.logger.Warn("Meter reset detected",
			zap.String("meter_id", meter.ID.String()),
			zap.String("reading_id", current.ID.String()),
		)
	}

	on := current.ReadingDate
	tariffs, err := repos.Tariffs().FindEffective(ctx, meter.Category, on)
	if err != nil {
		return nil, err
	}
	t, err := tariff.Resolve(tariffs, meter.Category, on)
	if err != nil {
		return nil, err
	}

	charge, err := e.calculator.Calculate(usage.Units, t, billing.ChargeContext{
		MeterType: meter.Type,
		Category:  meter.Category,
	})
	if err != nil {
		return nil, err
	}

	detail := &billing.BillingDetail{
		MeterID:           meter.ID,
		ReadingID:         current.ID,
		TariffID:          t.ID,
		TariffCode:        t.Code,
		PreviousValue:     decimal.Zero,
		CurrentValue:      current.Value,
		CurrentDate:       current.ReadingDate,
		Units:             charge.Consumption,
		ConsumptionCharge: charge.ConsumptionCharge,
		FixedCharge:       charge.FixedCharge,
		Tax:               charge.Tax,
		AverageRate:       charge.AverageRate,
		Amount:            charge.Total,
		Estimated:         current.Type == metering.ReadingTypeEstimated,
		MeterReset:        usage.Reset,
	}
	if previous != nil {
		prevDate := previous.ReadingDate
		detail.PreviousValue = previous.Value
		detail.PreviousDate = &prevDate
	}
	return detail, nil
}

// estimateReading creates and saves an estimated reading dated on the last
// day of the period. It returns nil when estimation is disabled or the
// meter's history is too short.
func (e *BillingEngine) estimateReading(ctx context.Context, repos TransactionalRepositories, meter *metering.Meter, previous *metering.MeterReading, period billing.Period) (*metering.MeterReading, error) {
	if e.estimator == nil {
		return nil, nil
	}
	history, err := repos.Readings().FindHistory(ctx, meter.ID, period.Start(), e.estimator.HistoryDepth())
	if err != nil {
		return nil, err
	}
	units, ok := e.estimator.Estimate(history, period)
	if !ok {
		return nil, nil
	}

	base := decimal.Zero
	if previous != nil {
		base = previous.Value
	}
	reading, err := metering.NewMeterReading(meter.ID, period.End().AddDate(0, 0, -1), base.Add(units.Round(4)), metering.ReadingTypeEstimated)
	if err != nil {
		return nil, err
	}
	if err := repos.Readings().Save(ctx, reading); err != nil {
		return nil, err
	}
	e.logger.Info("Estimated missing reading",
		zap.String("meter_id", meter.ID.String()),
		zap.String("period", period.String()),
		zap.String("units", units.Round(4).String()),
	)
	return reading, nil
}

// VoidAndRegenerate voids a bill and, when requested, generates its
// replacement from the current readings and tariffs in the same transaction.
// Allocations already applied to the voided bill are kept.
func (e *BillingEngine) VoidAndRegenerate(ctx context.Context, req VoidBillRequest) (*VoidResult, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opVoid)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrBillID, req.BillID.String())

	start := e.now()
	var result *VoidResult
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, opVoid, ""), func(c context.Context) {
		result, err = e.voidAndRegenerate(c, req)
	})
	e.observe(ctx, opVoid, start, err)

	if err != nil {
		telemetry.RecordError(span, err)
		e.logger.Info("Void failed",
			zap.String("bill_id", req.BillID.String()),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.SetOK(span)
	e.invalidate(ctx, result.Voided.AccountID)
	fields := []zap.Field{
		zap.String("bill_id", result.Voided.ID.String()),
		zap.String("account_id", result.Voided.AccountID.String()),
		zap.String("reason", req.Reason),
		zap.String("actor", req.Actor),
	}
	if result.Replacement != nil {
		telemetry.AddEvent(span, "bill.regenerated", telemetry.SpanAttrBillID, result.Replacement.ID.String())
		e.metrics.RecordBillGenerated(ctx, opVoid, telemetry.OutcomeSuccess)
		e.metrics.RecordBillAmount(ctx, opVoid, result.Replacement.TotalAmount)
		fields = append(fields, zap.String("replacement_id", result.Replacement.ID.String()))
	}
	e.logger.Info("Bill voided", fields...)
	return result, nil
}

func (e *BillingEngine) voidAndRegenerate(ctx context.Context, req VoidBillRequest) (*VoidResult, error) {
	var result *VoidResult
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		bill, err := repos.Bills().FindByID(ctx, req.BillID)
		if err != nil {
			return err
		}
		account, err := repos.Accounts().LockForUpdate(ctx, bill.AccountID)
		if err != nil {
			return err
		}
		// Re-read under the lock; a reconciliation may have paid it meanwhile
		bill, err = repos.Bills().FindByID(ctx, req.BillID)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		if err := bill.Void(req.Reason, req.Actor, now); err != nil {
			return err
		}

		var replacement *billing.Bill
		if req.Regenerate {
			if !account.Status.IsBillable() {
				return shared.NewDomainError(shared.CodeInvalidState,
					fmt.Sprintf("Account %s is %s and cannot be billed", account.AccountNumber, account.Status))
			}
			replacement, err = e.buildBill(ctx, repos, account, bill.Period, now, req.Actor)
			if err != nil {
				return err
			}
			if err := bill.LinkReplacement(replacement); err != nil {
				return err
			}
		}

		if err := repos.Bills().Update(ctx, bill); err != nil {
			return err
		}
		events := bill.PullDomainEvents()
		if replacement != nil {
			if err := repos.Bills().Save(ctx, replacement); err != nil {
				return err
			}
			events = append(events, replacement.PullDomainEvents()...)
		}
		if err := repos.Events().Record(ctx, events...); err != nil {
			return err
		}

		result = &VoidResult{Voided: bill, Replacement: replacement}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// observe records duration and contention of one engine operation
func (e *BillingEngine) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeFailed
		if errors.Is(err, shared.ErrContention) {
			e.metrics.RecordContention(ctx, op)
		}
	}
	e.metrics.RecordOperationDuration(ctx, op, outcome, e.now().Sub(start))
}

// invalidate drops cached balances after a commit; failures only log
func (e *BillingEngine) invalidate(ctx context.Context, accountIDs ...uuid.UUID) {
	if e.cache == nil || len(accountIDs) == 0 {
		return
	}
	if err := e.cache.Invalidate(ctx, accountIDs...); err != nil {
		e.logger.Warn("Failed to invalidate balance cache", zap.Int("accounts", len(accountIDs)), zap.Error(err))
	}
}

// optional maps ErrNotFound to a nil result
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
