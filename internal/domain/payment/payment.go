// Package payment holds the Payment aggregate and its reconciliation lifecycle.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the capture status set by the upstream payment flow
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid checks if the status is valid
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// ReconciliationStatus tracks how much of the payment has been applied
type ReconciliationStatus string

const (
	ReconciliationPending             ReconciliationStatus = "pending"
	ReconciliationPartiallyReconciled ReconciliationStatus = "partially_reconciled"
	ReconciliationReconciled          ReconciliationStatus = "reconciled"
)

// Method is how the money was received
type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodMobileMoney  Method = "mobile_money"
	MethodCheque       Method = "cheque"
)

// Error codes raised by the payment domain
const (
	CodeAlreadyReconciled = "ALREADY_RECONCILED"
	CodeNotReconciled     = "NOT_RECONCILED"
)

var (
	ErrAlreadyReconciled = shared.NewDomainError(CodeAlreadyReconciled, "Payment has already been reconciled")
	ErrNotReconciled     = shared.NewDomainError(CodeNotReconciled, "Payment is not reconciled")
)

// Payment is money received for an account. Reference is unique.
type Payment struct {
	shared.BaseAggregateRoot
	AccountID            uuid.UUID
	Amount               decimal.Decimal
	Method               Method
	Reference            string
	Status               Status
	ReceivedAt           time.Time
	ReconciliationStatus ReconciliationStatus
	ReconciledAt         *time.Time
	ReconciledBy         string
}

// NewPayment creates a completed payment awaiting reconciliation
func NewPayment(accountID uuid.UUID, amount decimal.Decimal, method Method, reference string, receivedAt time.Time) (*Payment, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Payment amount must be positive")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Payment reference cannot be empty")
	}
	return &Payment{
		BaseAggregateRoot:    shared.NewBaseAggregateRoot(),
		AccountID:            accountID,
		Amount:               amount,
		Method:               method,
		Reference:            reference,
		Status:               StatusCompleted,
		ReceivedAt:           receivedAt,
		ReconciliationStatus: ReconciliationPending,
	}, nil
}

// CanReconcile checks that the payment may be allocated. A partially
// reconciled payment already parked its remainder as a credit and counts
// as reconciled.
func (p *Payment) CanReconcile() error {
	if p.Status != StatusCompleted {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Payment %s is %s, only completed payments can be reconciled", p.Reference, p.Status))
	}
	if p.ReconciliationStatus != ReconciliationPending {
		return ErrAlreadyReconciled
	}
	return nil
}

// MarkReconciled stamps the reconciliation outcome and raises PaymentReconciled
func (p *Payment) MarkReconciled(totalAllocated, remaining, epsilon decimal.Decimal, billIDs []uuid.UUID, actor string, at time.Time) error {
	if err := p.CanReconcile(); err != nil {
		return err
	}
	if remaining.LessThanOrEqual(epsilon) {
		p.ReconciliationStatus = ReconciliationReconciled
	} else {
		p.ReconciliationStatus = ReconciliationPartiallyReconciled
	}
	p.ReconciledAt = &at
	p.ReconciledBy = actor
	p.UpdatedAt = at
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentReconciledEvent(p, totalAllocated, remaining, billIDs))
	return nil
}

// CanReverse checks that the payment is exactly reconciled
func (p *Payment) CanReverse() error {
	if p.ReconciliationStatus != ReconciliationReconciled {
		return ErrNotReconciled
	}
	return nil
}

// ResetReconciliation returns the payment to pending reconciliation and
// raises PaymentReversed
func (p *Payment) ResetReconciliation(reason, actor string, removedAllocations int, billIDs []uuid.UUID, at time.Time) error {
	if err := p.CanReverse(); err != nil {
		return err
	}
	p.ReconciliationStatus = ReconciliationPending
	p.ReconciledAt = nil
	p.ReconciledBy = ""
	p.UpdatedAt = at
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentReversedEvent(p, reason, actor, removedAllocations, billIDs))
	return nil
}

// Fail marks a payment that never completed upstream
func (p *Payment) Fail() error {
	if p.ReconciliationStatus != ReconciliationPending {
		return shared.NewDomainError(shared.CodeInvalidState, "Cannot fail a reconciled payment")
	}
	p.Status = StatusFailed
	p.Touch()
	p.IncrementVersion()
	return nil
}

// IsCompleted returns true if the money was captured
func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}
