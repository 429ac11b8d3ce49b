// Package reconciliation decides how a payment is spread over outstanding
// bills. Strategies here only plan; the application layer persists the plan.
package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects the allocation strategy
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeAuto || m == ModeManual
}

// BillTarget is an outstanding bill that can receive money
type BillTarget struct {
	BillID     uuid.UUID
	BillNumber string
	DueDate    time.Time
	CreatedAt  time.Time
	Balance    decimal.Decimal
}

// CreditSource is an active credit that FIFO mode may draw on
type CreditSource struct {
	CreditID  uuid.UUID
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// ManualRequest asks for an amount to go to a specific bill
type ManualRequest struct {
	BillID uuid.UUID
	Amount decimal.Decimal
}

// PlannedAllocation is one allocation row to be written
type PlannedAllocation struct {
	BillID   uuid.UUID
	Amount   decimal.Decimal
	Source   ledger.Source
	CreditID *uuid.UUID
}

// CreditDraw is the amount taken from one credit
type CreditDraw struct {
	CreditID uuid.UUID
	Amount   decimal.Decimal
}

// Plan is the outcome of an allocation strategy
type Plan struct {
	Allocations []PlannedAllocation
	Draws       []CreditDraw
	// PaymentAllocated is the new money applied to bills
	PaymentAllocated decimal.Decimal
	// CreditApplied is the carry-forward credit applied to bills
	CreditApplied decimal.Decimal
	// Remaining is the payment amount not applied to any bill
	Remaining decimal.Decimal
}

// TotalAllocated returns money and credit applied together
func (p *Plan) TotalAllocated() decimal.Decimal {
	return p.PaymentAllocated.Add(p.CreditApplied)
}

// BillIDs returns the distinct bills touched, in allocation order
func (p *Plan) BillIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(p.Allocations))
	ids := make([]uuid.UUID, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		if !seen[a.BillID] {
			seen[a.BillID] = true
			ids = append(ids, a.BillID)
		}
	}
	return ids
}

// Verify rejects plans that would allocate beyond a bill balance, beyond the
// payment amount, or beyond the credits available
func (p *Plan) Verify(amount decimal.Decimal, targets []BillTarget, credits []CreditSource, epsilon decimal.Decimal) error {
	balances := make(map[uuid.UUID]decimal.Decimal, len(targets))
	for _, t := range targets {
		balances[t.BillID] = t.Balance
	}
	fromPayment := decimal.Zero
	perBill := make(map[uuid.UUID]decimal.Decimal)
	for _, a := range p.Allocations {
		if !a.Amount.IsPositive() {
			return shared.NewDomainError(ledger.CodeInvalidAllocation, "Allocation amount must be positive")
		}
		balance, ok := balances[a.BillID]
		if !ok {
			return shared.NewDomainError(ledger.CodeInvalidAllocation, fmt.Sprintf("Bill %s is not outstanding", a.BillID))
		}
		perBill[a.BillID] = perBill[a.BillID].Add(a.Amount)
		if perBill[a.BillID].GreaterThan(balance.Add(epsilon)) {
			return shared.NewDomainError(ledger.CodeAllocationExceedsBalance,
				fmt.Sprintf("Allocating %s to bill %s exceeds its balance of %s", perBill[a.BillID].String(), a.BillID, balance.String()))
		}
		if a.Source == ledger.SourcePayment {
			fromPayment = fromPayment.Add(a.Amount)
		}
	}
	if fromPayment.GreaterThan(amount) {
		return shared.NewDomainError(ledger.CodeAllocationExceedsPayment,
			fmt.Sprintf("Allocations of %s exceed the payment amount of %s", fromPayment.String(), amount.String()))
	}

	available := make(map[uuid.UUID]decimal.Decimal, len(credits))
	for _, c := range credits {
		available[c.CreditID] = c.Balance
	}
	for _, d := range p.Draws {
		if d.Amount.GreaterThan(available[d.CreditID]) {
			return shared.NewDomainError(ledger.CodeInsufficientCredit, fmt.Sprintf("Credit %s cannot cover %s", d.CreditID, d.Amount.String()))
		}
		available[d.CreditID] = available[d.CreditID].Sub(d.Amount)
	}
	return nil
}

// AllocationStrategy plans how a payment is applied
type AllocationStrategy interface {
	strategy.Strategy
	Mode() Mode
	Plan(amount decimal.Decimal, targets []BillTarget, credits []CreditSource) (*Plan, error)
}

// SortFIFO orders bills by due date, then creation time, oldest first
func SortFIFO(targets []BillTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		if !targets[i].DueDate.Equal(targets[j].DueDate) {
			return targets[i].DueDate.Before(targets[j].DueDate)
		}
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})
}

// FIFOStrategy applies money to the oldest bills first. Active credits add
// to the capacity, but new money is spent first and credit only covers what
// the payment alone could not.
type FIFOStrategy struct {
	strategy.Descriptor
	epsilon decimal.Decimal
}

// NewFIFOStrategy creates a FIFO strategy that stops once less than epsilon
// remains to allocate
func NewFIFOStrategy(epsilon decimal.Decimal) *FIFOStrategy {
	return &FIFOStrategy{
		Descriptor: strategy.Describe(
			"fifo_reconciliation",
			strategy.KindAllocation,
			"Allocates to the oldest outstanding bills first by due date, then creation date",
		),
		epsilon: epsilon,
	}
}

// Mode returns ModeAuto
func (s *FIFOStrategy) Mode() Mode { return ModeAuto }

// Plan implements AllocationStrategy
func (s *FIFOStrategy) Plan(amount decimal.Decimal, targets []BillTarget, credits []CreditSource) (*Plan, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Payment amount must be positive")
	}

	bills := append([]BillTarget(nil), targets...)
	SortFIFO(bills)
	pool := append([]CreditSource(nil), credits...)
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].CreatedAt.Before(pool[j].CreatedAt) })

	creditAvailable := decimal.Zero
	for _, c := range pool {
		if c.Balance.IsPositive() {
			creditAvailable = creditAvailable.Add(c.Balance)
		}
	}

	plan := &Plan{PaymentAllocated: decimal.Zero, CreditApplied: decimal.Zero}
	money := amount
	capacity := amount.Add(creditAvailable)
	draws := make(map[uuid.UUID]decimal.Decimal)
	next := 0

	for _, bill := range bills {
		if capacity.LessThan(s.epsilon) || !capacity.IsPositive() {
			break
		}
		if !bill.Balance.IsPositive() {
			continue
		}
		alloc := decimal.Min(capacity, bill.Balance)

		fromPayment := decimal.Min(money, alloc)
		if fromPayment.IsPositive() {
			plan.Allocations = append(plan.Allocations, PlannedAllocation{BillID: bill.BillID, Amount: fromPayment, Source: ledger.SourcePayment})
			plan.PaymentAllocated = plan.PaymentAllocated.Add(fromPayment)
			money = money.Sub(fromPayment)
		}

		shortfall := alloc.Sub(fromPayment)
		for shortfall.IsPositive() && next < len(pool) {
			c := &pool[next]
			left := c.Balance.Sub(draws[c.CreditID])
			if !left.IsPositive() {
				next++
				continue
			}
			take := decimal.Min(left, shortfall)
			creditID := c.CreditID
			plan.Allocations = append(plan.Allocations, PlannedAllocation{BillID: bill.BillID, Amount: take, Source: ledger.SourceCredit, CreditID: &creditID})
			draws[creditID] = draws[creditID].Add(take)
			plan.CreditApplied = plan.CreditApplied.Add(take)
			shortfall = shortfall.Sub(take)
		}
		capacity = capacity.Sub(alloc)
	}

	for _, c := range pool {
		if d, ok := draws[c.CreditID]; ok {
			plan.Draws = append(plan.Draws, CreditDraw{CreditID: c.CreditID, Amount: d})
		}
	}
	plan.Remaining = amount.Sub(plan.PaymentAllocated)
	return plan, nil
}

// ManualStrategy applies caller-chosen amounts to caller-chosen bills in
// the order given. It never draws on credits.
type ManualStrategy struct {
	strategy.Descriptor
	requests []ManualRequest
}

// NewManualStrategy creates a manual strategy for the given requests
func NewManualStrategy(requests []ManualRequest) *ManualStrategy {
	return &ManualStrategy{
		Descriptor: strategy.Describe(
			"manual_reconciliation",
			strategy.KindAllocation,
			"Allocates to user-specified bills in the order supplied",
		),
		requests: requests,
	}
}

// Mode returns ModeManual
func (s *ManualStrategy) Mode() Mode { return ModeManual }

// Requests returns the configured requests
func (s *ManualStrategy) Requests() []ManualRequest { return s.requests }

// Plan implements AllocationStrategy. Each amount is clamped to the
// remaining payment and the bill balance. A request naming a bill that is
// not outstanding, or asking for a non-positive amount, fails the whole plan.
func (s *ManualStrategy) Plan(amount decimal.Decimal, targets []BillTarget, _ []CreditSource) (*Plan, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Payment amount must be positive")
	}
	if len(s.requests) == 0 {
		return nil, shared.NewDomainError(ledger.CodeInvalidAllocation, "Manual reconciliation requires at least one allocation")
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(targets))
	for _, t := range targets {
		balances[t.BillID] = t.Balance
	}
	for _, req := range s.requests {
		if _, ok := balances[req.BillID]; !ok {
			return nil, shared.NewDomainError(ledger.CodeInvalidAllocation, fmt.Sprintf("Bill %s is not an outstanding bill of the account", req.BillID))
		}
		if !req.Amount.IsPositive() {
			return nil, shared.NewDomainError(ledger.CodeInvalidAllocation, fmt.Sprintf("Allocation to bill %s must be positive", req.BillID))
		}
	}

	plan := &Plan{PaymentAllocated: decimal.Zero, CreditApplied: decimal.Zero}
	remaining := amount
	for _, req := range s.requests {
		if !remaining.IsPositive() {
			break
		}
		alloc := decimal.Min(req.Amount, remaining, balances[req.BillID])
		if !alloc.IsPositive() {
			continue
		}
		plan.Allocations = append(plan.Allocations, PlannedAllocation{BillID: req.BillID, Amount: alloc, Source: ledger.SourcePayment})
		plan.PaymentAllocated = plan.PaymentAllocated.Add(alloc)
		remaining = remaining.Sub(alloc)
		balances[req.BillID] = balances[req.BillID].Sub(alloc)
	}
	plan.Remaining = remaining
	return plan, nil
}
