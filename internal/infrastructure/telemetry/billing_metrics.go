package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BillingMetrics records billing and reconciliation activity.
// All recording methods are safe to call on a nil receiver.
type BillingMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics
	billsGeneratedTotal  *Counter
	billAmountTotal      *Counter
	reconciliationsTotal *Counter
	allocatedAmountTotal *Counter
	contentionTotal      *Counter
	creditsExpiredTotal  *Counter

	// Histogram metrics
	operationDuration *Histogram

	// Gauge metrics
	billsByStatus          *Gauge
	pendingReconciliations *Gauge
	activeCreditBalance    *FloatGauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stateProvider BillingStateProvider
}

// BillingStateProvider provides ledger state for periodic gauge collection.
// It keeps the telemetry layer free of domain imports.
type BillingStateProvider interface {
	// CountBillsByStatus returns the number of bills in each status
	CountBillsByStatus(ctx context.Context) (map[string]int64, error)

	// CountPendingReconciliation returns completed payments not yet reconciled
	CountPendingReconciliation(ctx context.Context) (int64, error)

	// ActiveCreditBalance returns the sum of active carry-forward credit balances
	ActiveCreditBalance(ctx context.Context) (decimal.Decimal, error)
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter         metric.Meter
	Logger        *zap.Logger
	StateProvider BillingStateProvider
}

// Outcome labels shared by the billing counters.
const (
	OutcomeSuccess   = "success"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
)

// NewBillingMetrics creates a new BillingMetrics instance.
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bm := &BillingMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stateProvider: cfg.StateProvider,
	}

	var err error

	bm.billsGeneratedTotal, err = NewCounter(
		cfg.Meter,
		"billing_bills_generated_total",
		"Total number of bill generation attempts by outcome",
		"{bills}",
	)
	if err != nil {
		return nil, err
	}

	bm.billAmountTotal, err = NewCounter(
		cfg.Meter,
		"billing_bill_amount_total",
		"Total billed amount in minor currency units",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	bm.reconciliationsTotal, err = NewCounter(
		cfg.Meter,
		"billing_reconciliations_total",
		"Total number of payment reconciliations by mode and outcome",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	bm.allocatedAmountTotal, err = NewCounter(
		cfg.Meter,
		"billing_allocated_amount_total",
		"Total amount allocated to bills in minor currency units",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	bm.contentionTotal, err = NewCounter(
		cfg.Meter,
		"billing_lock_contention_total",
		"Operations aborted because an account row lock could not be taken",
		"{operations}",
	)
	if err != nil {
		return nil, err
	}

	bm.creditsExpiredTotal, err = NewCounter(
		cfg.Meter,
		"billing_credits_expired_total",
		"Carry-forward credits moved to expired",
		"{credits}",
	)
	if err != nil {
		return nil, err
	}

	bm.operationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "billing_operation_duration_seconds",
		Description: "Duration of billing engine operations",
		Unit:        "s",
		Boundaries:  OperationDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	bm.billsByStatus, err = NewGauge(
		cfg.Meter,
		"billing_bills_by_status",
		"Current number of bills in each status",
		"{bills}",
	)
	if err != nil {
		return nil, err
	}

	bm.pendingReconciliations, err = NewGauge(
		cfg.Meter,
		"billing_pending_reconciliations",
		"Completed payments waiting for reconciliation",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	bm.activeCreditBalance, err = NewFloatGauge(
		cfg.Meter,
		"billing_active_credit_balance",
		"Sum of active carry-forward credit balances",
		"{currency}",
	)
	if err != nil {
		return nil, err
	}

	return bm, nil
}

// toCents converts an amount to minor units for the integer counters
func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// =============================================================================
// Billing Metrics
// =============================================================================

// RecordBillGenerated records one bill generation attempt by the operation
// that triggered it.
func (bm *BillingMetrics) RecordBillGenerated(ctx context.Context, operation, outcome string) {
	if bm == nil {
		return
	}
	bm.billsGeneratedTotal.Inc(ctx,
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	)
}

// RecordBillAmount adds a generated bill total.
func (bm *BillingMetrics) RecordBillAmount(ctx context.Context, operation string, amount decimal.Decimal) {
	if bm == nil || !amount.IsPositive() {
		return
	}
	bm.billAmountTotal.Add(ctx, toCents(amount), AttrOperation.String(operation))
}

// =============================================================================
// Reconciliation Metrics
// =============================================================================

// RecordReconciliation records one reconciliation attempt.
func (bm *BillingMetrics) RecordReconciliation(ctx context.Context, mode, outcome string) {
	if bm == nil {
		return
	}
	bm.reconciliationsTotal.Inc(ctx,
		AttrReconciliationMode.String(mode),
		AttrOutcome.String(outcome),
	)
}

// RecordAllocatedAmount adds the amount a reconciliation applied to bills.
func (bm *BillingMetrics) RecordAllocatedAmount(ctx context.Context, mode string, amount decimal.Decimal) {
	if bm == nil || !amount.IsPositive() {
		return
	}
	bm.allocatedAmountTotal.Add(ctx, toCents(amount), AttrReconciliationMode.String(mode))
}

// RecordCreditsExpired adds the number of credits an expiry sweep closed.
func (bm *BillingMetrics) RecordCreditsExpired(ctx context.Context, count int) {
	if bm == nil || count <= 0 {
		return
	}
	bm.creditsExpiredTotal.Add(ctx, int64(count))
}

// =============================================================================
// Operation Metrics
// =============================================================================

// RecordContention records an operation that lost the account lock.
func (bm *BillingMetrics) RecordContention(ctx context.Context, operation string) {
	if bm == nil {
		return
	}
	bm.contentionTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordOperationDuration records how long an engine operation took.
func (bm *BillingMetrics) RecordOperationDuration(ctx context.Context, operation, outcome string, d time.Duration) {
	if bm == nil {
		return
	}
	bm.operationDuration.RecordDuration(ctx, d,
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	)
}

// RecordBillsByStatus records the current count of bills in a status.
func (bm *BillingMetrics) RecordBillsByStatus(ctx context.Context, status string, count int64) {
	if bm == nil {
		return
	}
	bm.billsByStatus.Record(ctx, count, AttrBillStatus.String(status))
}

// RecordPendingReconciliations records the reconciliation backlog.
func (bm *BillingMetrics) RecordPendingReconciliations(ctx context.Context, count int64) {
	if bm == nil {
		return
	}
	bm.pendingReconciliations.Record(ctx, count)
}

// RecordActiveCreditBalance records the outstanding credit liability.
func (bm *BillingMetrics) RecordActiveCreditBalance(ctx context.Context, balance decimal.Decimal) {
	if bm == nil {
		return
	}
	bm.activeCreditBalance.Record(ctx, balance.InexactFloat64())
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of gauge metrics.
// It is non-blocking; use Stop() to end collection.
func (bm *BillingMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if bm == nil {
		return
	}
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BillingMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.CollectOnce(ctx)

	for {
		select {
		case <-bm.stopChan:
			bm.logger.Info("Stopping periodic billing metrics collection")
			return
		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping periodic billing metrics collection")
			return
		case <-ticker.C:
			bm.CollectOnce(ctx)
		}
	}
}

// CollectOnce queries the state provider and records every gauge.
func (bm *BillingMetrics) CollectOnce(ctx context.Context) {
	if bm == nil {
		return
	}
	if bm.stateProvider == nil {
		bm.logger.Debug("No billing state provider configured, skipping gauge collection")
		return
	}

	byStatus, err := bm.stateProvider.CountBillsByStatus(ctx)
	if err != nil {
		bm.logger.Warn("Failed to count bills by status", zap.Error(err))
	} else {
		for status, count := range byStatus {
			bm.RecordBillsByStatus(ctx, status, count)
		}
	}

	pending, err := bm.stateProvider.CountPendingReconciliation(ctx)
	if err != nil {
		bm.logger.Warn("Failed to count pending reconciliations", zap.Error(err))
	} else {
		bm.RecordPendingReconciliations(ctx, pending)
	}

	credit, err := bm.stateProvider.ActiveCreditBalance(ctx)
	if err != nil {
		bm.logger.Warn("Failed to sum active credit balance", zap.Error(err))
	} else {
		bm.RecordActiveCreditBalance(ctx, credit)
	}
}

// Stop stops the periodic collection.
func (bm *BillingMetrics) Stop() {
	if bm == nil {
		return
	}
	bm.stopOnce.Do(func() {
		close(bm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewBillingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
