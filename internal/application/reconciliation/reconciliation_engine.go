// Package reconciliation applies payments to bills, reverses those
// applications and serves read-only balance projections.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/erp/utilitybilling/internal/application/validation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/payment"
	domainrecon "github.com/erp/utilitybilling/internal/domain/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	componentName = "reconciliation_engine"

	opReconcile     = "reconcile"
	opReverse       = "reverse"
	opExpireCredits = "expire_credits"

	// DefaultExpiryBatchSize is the number of expired credits loaded per page
	DefaultExpiryBatchSize = 200
)

// ReconciliationEngine matches payments against outstanding bills. Every
// operation locks the paying account for the duration of its transaction.
type ReconciliationEngine struct {
	txScope         TransactionScope
	cfg             policy.EngineConfig
	logger          *zap.Logger
	metrics         *telemetry.BillingMetrics
	cache           BalanceCache
	now             func() time.Time
	creditExpiry    int
	expiryBatchSize int
}

// NewReconciliationEngine creates a reconciliation engine with the given policies
func NewReconciliationEngine(txScope TransactionScope, cfg policy.EngineConfig, logger *zap.Logger) (*ReconciliationEngine, error) {
	if txScope == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "transaction scope is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationEngine{
		txScope:         txScope,
		cfg:             cfg,
		logger:          logger.Named(componentName),
		now:             time.Now,
		expiryBatchSize: DefaultExpiryBatchSize,
	}, nil
}

// SetMetrics sets the metrics recorder (optional)
func (e *ReconciliationEngine) SetMetrics(m *telemetry.BillingMetrics) {
	e.metrics = m
}

// SetBalanceCache sets the cache invalidated after each commit (optional)
func (e *ReconciliationEngine) SetBalanceCache(c BalanceCache) {
	e.cache = c
}

// SetClock replaces the time source
func (e *ReconciliationEngine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SetCreditExpiryDays makes new overpayment credits expire after days.
// Zero keeps them forever.
func (e *ReconciliationEngine) SetCreditExpiryDays(days int) {
	if days >= 0 {
		e.creditExpiry = days
	}
}

// SetExpiryBatchSize sets the page size of the credit expiry sweep
func (e *ReconciliationEngine) SetExpiryBatchSize(n int) {
	if n > 0 {
		e.expiryBatchSize = n
	}
}

// Reconcile applies a completed payment to the account's outstanding bills.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconciliationResult, error) {
	if req.Mode == "" {
		req.Mode = ModeAuto
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if req.Mode == ModeManual && len(req.Allocations) == 0 {
		return nil, shared.NewDomainError(ledger.CodeInvalidAllocation, "Manual reconciliation needs at least one allocation")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, componentName, opReconcile)
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, req.PaymentID.String(),
		telemetry.SpanAttrMode, string(req.Mode),
	)

	start := e.now()
	var result *ReconciliationResult
	var err error
	telemetry.WithProfilingLabels(ctx, telemetry.BillingLabels(componentName, opReconcile, string(req.Mode)), func(c context.Context) {
		result, err = e.reconcile(c, req)
	})
	e.observe(ctx, opReconcile, start, err)

	if err != nil {
		telemetry.RecordError(span, err)
		e.metrics.RecordReconciliation(ctx, string(req.Mode), telemetry.OutcomeFailed)
		e.logger.Info("Reconciliation failed",
			zap.String("payment_id", req.PaymentID.String()),
			zap.String("mode", string(req.Mode)),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAccountID, result.Payment.AccountID.String(),
		telemetry.SpanAttrAllocationCount, len(result.Allocations),
		telemetry.SpanAttrAmount, result.TotalAllocated.String(),
	)
	telemetry.SetOK(span)
	e.metrics.RecordReconciliation(ctx, string(req.Mode), telemetry.OutcomeSuccess)
	e.metrics.RecordAllocatedAmount(ctx, string(req.Mode), result.TotalAllocated.Add(result.CreditApplied))
	e.invalidate(ctx, result.Payment.AccountID)

	fields := []zap.Field{
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("account_id", result.Payment.AccountID.String()),
		zap.String("mode", string(req.Mode)),
		zap.Int("allocations", len(result.Allocations)),
		zap.String("allocated", result.TotalAllocated.StringFixed(2)),
		zap.String("credit_applied", result.CreditApplied.StringFixed(2)),
		zap.String("remaining", result.RemainingAmount.StringFixed(2)),
	}
	if result.CarryForward != nil {
		fields = append(fields, zap.String("carry_forward_id", result.CarryForward.ID.String()))
	}
	e.logger.Info("Payment reconciled", fields...)
	return result, nil
}

// plan accumulates the allocations of one reconciliation
type plan struct {
	order       []uuid.UUID
	bills       map[uuid.UUID]*billing.Bill
	allocated   map[uuid.UUID]decimal.Decimal // existing plus planned, per bill
	allocations []*ledger.Allocation
	fromPayment decimal.Decimal
	fromCredit  decimal.Decimal
	credits     []*ledger.CarryForward // credits drawn on, in draw order
}

func newPlan(bills []billing.Bill, allocated map[uuid.UUID]decimal.Decimal) *plan {
	p := &plan{
		order:       make([]uuid.UUID, 0, len(bills)),
		bills:       make(map[uuid.UUID]*billing.Bill, len(bills)),
		allocated:   make(map[uuid.UUID]decimal.Decimal, len(bills)),
		fromPayment: decimal.Zero,
		fromCredit:  decimal.Zero,
	}
	for i := range bills {
		b := &bills[i]
		p.order = append(p.order, b.ID)
		p.bills[b.ID] = b
		p.allocated[b.ID] = allocated[b.ID]
	}
	return p
}

func (p *plan) balance(billID uuid.UUID) decimal.Decimal {
	return p.bills[billID].Balance(p.allocated[billID])
}

func (p *plan) add(a *ledger.Allocation) {
	p.allocations = append(p.allocations, a)
	p.allocated[a.BillID] = p.allocated[a.BillID].Add(a.Amount)
	if a.Source == ledger.SourceCredit {
		p.fromCredit = p.fromCredit.Add(a.Amount)
	} else {
		p.fromPayment = p.fromPayment.Add(a.Amount)
	}
}

func (e *ReconciliationEngine) reconcile(ctx context.Context, req ReconcileRequest) (*ReconciliationResult, error) {
	var result *ReconciliationResult
	err := e.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		pmt, err := repos.Payments().FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if err := pmt.CanReconcile(); err != nil {
			return err
		}
		if _, err := repos.Accounts().LockForUpdate(ctx, pmt.AccountID); err != nil {
			return err
		}
		// Re-read under the lock; a concurrent reconcile may have won
		pmt, err = repos.Payments().FindByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if err := pmt.CanReconcile(); err != nil {
			return err
		}

		bills, err := repos.Bills().FindOutstandingByAccount(ctx, pmt.AccountID)
		if err != nil {
			return err
		}
		existing, err := repos.Allocations().SumByBills(ctx, billIDs(bills))
		if err != nil {
			return err
		}

		now := e.now().UTC()
		epsilon := e.cfg.Epsilon()
		p := newPlan(bills, existing)

		var credits []ledger.CarryForward
		if req.Mode != ModeManual {
			if credits, err = repos.CarryForwards().FindActiveCredits(ctx, pmt.AccountID); err != nil {
				return err
			}
		}
		if err := e.apply(p, e.strategyFor(req), pmt, credits, req.Actor, now); err != nil {
			return err
		}

		if len(p.allocations) > 0 {
			if err := repos.Allocations().Save(ctx, p.allocations...); err != nil {
				return err
			}
		}
		for _, cf := range p.credits {
			if err := repos.CarryForwards().Update(ctx, cf); err != nil {
				return err
			}
		}

		var events []shared.DomainEvent
		remaining := pmt.Amount.Sub(p.fromPayment)
		var credit *ledger.CarryForward
		if remaining.GreaterThan(epsilon) {
			credit, err = ledger.NewCredit(pmt.AccountID, &pmt.ID, remaining, ledger.OverpaymentDescription(pmt.Reference), e.expiresAt(now))
			if err != nil {
				return err
			}
			if err := repos.CarryForwards().Save(ctx, credit); err != nil {
				return err
			}
			events = append(events, credit.PullDomainEvents()...)
		}

		updated, touched, billEvents, err := recomputeBills(ctx, repos, p, epsilon, now)
		if err != nil {
			return err
		}
		events = append(billEvents, events...)

		if err := pmt.MarkReconciled(p.fromPayment, remaining, epsilon, touched, req.Actor, now); err != nil {
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

		allocations := make([]ledger.Allocation, len(p.allocations))
		for i, a := range p.allocations {
			allocations[i] = *a
		}
		result = &ReconciliationResult{
			Payment:         pmt,
			Mode:            req.Mode,
			Allocations:     allocations,
			TotalAllocated:  p.fromPayment,
			CreditApplied:   p.fromCredit,
			RemainingAmount: remaining,
			CarryForward:    credit,
			UpdatedBills:    updated,
			Balance:         balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// strategyFor picks the domain allocation strategy of the request
func (e *ReconciliationEngine) strategyFor(req ReconcileRequest) domainrecon.AllocationStrategy {
	if req.Mode == ModeManual {
		requests := make([]domainrecon.ManualRequest, len(req.Allocations))
		for i, a := range req.Allocations {
			requests[i] = domainrecon.ManualRequest{BillID: a.BillID, Amount: a.Amount}
		}
		return domainrecon.NewManualStrategy(requests)
	}
	return domainrecon.NewFIFOStrategy(e.cfg.Epsilon())
}

// apply plans the payment with the strategy, verifies the plan and turns it
// into allocation rows and credit draws on p. Only credits usable at now are
// offered to the strategy.
func (e *ReconciliationEngine) apply(p *plan, s domainrecon.AllocationStrategy, pmt *payment.Payment, credits []ledger.CarryForward, actor string, now time.Time) error {
	targets := make([]domainrecon.BillTarget, 0, len(p.order))
	for _, id := range p.order {
		b := p.bills[id]
		targets = append(targets, domainrecon.BillTarget{
			BillID:     b.ID,
			BillNumber: b.BillNumber,
			DueDate:    b.DueDate,
			CreatedAt:  b.CreatedAt,
			Balance:    p.balance(id),
		})
	}
	usable := make(map[uuid.UUID]*ledger.CarryForward, len(credits))
	var sources []domainrecon.CreditSource
	for i := range credits {
		cf := &credits[i]
		if !cf.IsUsableAt(now) {
			continue
		}
		usable[cf.ID] = cf
		sources = append(sources, domainrecon.CreditSource{CreditID: cf.ID, Balance: cf.Balance, CreatedAt: cf.CreatedAt})
	}

	planned, err := s.Plan(pmt.Amount, targets, sources)
	if err != nil {
		return err
	}
	if err := planned.Verify(pmt.Amount, targets, sources, e.cfg.Epsilon()); err != nil {
		return err
	}
	e.logger.Debug("Allocation planned",
		zap.String("strategy", s.Name()),
		zap.String("payment_id", pmt.ID.String()),
		zap.Int("bills", len(planned.BillIDs())),
		zap.String("from_payment", planned.PaymentAllocated.StringFixed(2)),
		zap.String("from_credit", planned.CreditApplied.StringFixed(2)),
	)

	for _, d := range planned.Draws {
		cf := usable[d.CreditID]
		if err := cf.Apply(d.Amount, now); err != nil {
			return err
		}
		p.credits = append(p.credits, cf)
	}
	for _, pa := range planned.Allocations {
		var a *ledger.Allocation
		if pa.Source == ledger.SourceCredit && pa.CreditID != nil {
			a, err = ledger.NewCreditAllocation(pmt.ID, pa.BillID, pmt.AccountID, *pa.CreditID, pa.Amount, actor, now)
		} else {
			a, err = ledger.NewAllocation(pmt.ID, pa.BillID, pmt.AccountID, pa.Amount, actor, now)
		}
		if err != nil {
			return err
		}
		p.add(a)
	}
	return nil
}

// recomputeBills updates the status of every bill the plan touched and
// returns the changed bills, the touched IDs and the raised events
func recomputeBills(ctx context.Context, repos TransactionalRepositories, p *plan, epsilon decimal.Decimal, now time.Time) ([]billing.Bill, []uuid.UUID, []shared.DomainEvent, error) {
	touched := make([]uuid.UUID, 0, len(p.allocations))
	seen := make(map[uuid.UUID]bool)
	for _, a := range p.allocations {
		if !seen[a.BillID] {
			seen[a.BillID] = true
			touched = append(touched, a.BillID)
		}
	}

	var updated []billing.Bill
	var events []shared.DomainEvent
	for _, id := range touched {
		b := p.bills[id]
		if !b.RecomputeStatus(p.allocated[id], epsilon, now) {
			continue
		}
		if err := repos.Bills().Update(ctx, b); err != nil {
			return nil, nil, nil, err
		}
		events = append(events, b.PullDomainEvents()...)
		updated = append(updated, *b)
	}
	return updated, touched, events, nil
}

// accountBalance projects the account inside the current transaction
func accountBalance(ctx context.Context, repos TransactionalRepositories, accountID uuid.UUID, asOf time.Time) (ledger.AccountBalance, error) {
	bills, err := repos.Bills().FindOutstandingByAccount(ctx, accountID)
	if err != nil {
		return ledger.AccountBalance{}, err
	}
	allocated, err := repos.Allocations().SumByBills(ctx, billIDs(bills))
	if err != nil {
		return ledger.AccountBalance{}, err
	}
	credits, err := repos.CarryForwards().FindActiveCredits(ctx, accountID)
	if err != nil {
		return ledger.AccountBalance{}, err
	}
	return ledger.BuildAccountBalance(accountID, bills, allocated, credits, asOf), nil
}

func (e *ReconciliationEngine) expiresAt(now time.Time) *time.Time {
	if e.creditExpiry <= 0 {
		return nil
	}
	at := now.AddDate(0, 0, e.creditExpiry)
	return &at
}

// observe records duration and contention of one engine operation
func (e *ReconciliationEngine) observe(ctx context.Context, op string, start time.Time, err error) {
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
func (e *ReconciliationEngine) invalidate(ctx context.Context, accountIDs ...uuid.UUID) {
	if e.cache == nil || len(accountIDs) == 0 {
		return
	}
	if err := e.cache.Invalidate(ctx, accountIDs...); err != nil {
		e.logger.Warn("Failed to invalidate balance cache", zap.Int("accounts", len(accountIDs)), zap.Error(err))
	}
}

func billIDs(bills []billing.Bill) []uuid.UUID {
	ids := make([]uuid.UUID, len(bills))
	for i := range bills {
		ids[i] = bills[i].ID
	}
	return ids
}
