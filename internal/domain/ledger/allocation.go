package ledger

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source distinguishes new payment money from drawn carry-forward credit
type Source string

const (
	SourcePayment Source = "payment"
	SourceCredit  Source = "credit"
)

// Error codes for monetary invariant breaches
const (
	CodeAllocationExceedsBalance = "ALLOCATION_EXCEEDS_BALANCE"
	CodeAllocationExceedsPayment = "ALLOCATION_EXCEEDS_PAYMENT"
	CodeInvalidAllocation        = "INVALID_ALLOCATION"
	CodeInsufficientCredit       = "INSUFFICIENT_CREDIT"
)

var (
	ErrAllocationExceedsBalance = shared.NewDomainError(CodeAllocationExceedsBalance, "Allocation exceeds the bill balance")
	ErrAllocationExceedsPayment = shared.NewDomainError(CodeAllocationExceedsPayment, "Allocations exceed the payment amount")
	ErrInvalidAllocation        = shared.NewDomainError(CodeInvalidAllocation, "Invalid allocation")
	ErrInsufficientCredit       = shared.NewDomainError(CodeInsufficientCredit, "Credit balance is insufficient")
)

// Allocation assigns part of a payment to part of a bill. Credit-sourced
// allocations also name the carry-forward they drew on.
type Allocation struct {
	ID          uuid.UUID
	PaymentID   uuid.UUID
	BillID      uuid.UUID
	AccountID   uuid.UUID
	CreditID    *uuid.UUID
	Amount      decimal.Decimal
	Source      Source
	AllocatedAt time.Time
	CreatedBy   string
}

// NewAllocation creates a payment-sourced allocation
func NewAllocation(paymentID, billID, accountID uuid.UUID, amount decimal.Decimal, actor string, at time.Time) (*Allocation, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(CodeInvalidAllocation, "Allocation amount must be positive")
	}
	return &Allocation{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		BillID:      billID,
		AccountID:   accountID,
		Amount:      amount,
		Source:      SourcePayment,
		AllocatedAt: at,
		CreatedBy:   actor,
	}, nil
}

// NewCreditAllocation creates an allocation funded by a carry-forward credit
func NewCreditAllocation(paymentID, billID, accountID, creditID uuid.UUID, amount decimal.Decimal, actor string, at time.Time) (*Allocation, error) {
	a, err := NewAllocation(paymentID, billID, accountID, amount, actor, at)
	if err != nil {
		return nil, err
	}
	a.Source = SourceCredit
	a.CreditID = &creditID
	return a, nil
}

// SumByBill totals allocation amounts per bill
func SumByBill(allocations []Allocation) map[uuid.UUID]decimal.Decimal {
	sums := make(map[uuid.UUID]decimal.Decimal)
	for _, a := range allocations {
		sums[a.BillID] = sums[a.BillID].Add(a.Amount)
	}
	return sums
}

// SumPaymentSourced totals the payment-sourced allocations
func SumPaymentSourced(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		if a.Source == SourcePayment {
			total = total.Add(a.Amount)
		}
	}
	return total
}
