package payment

import (
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentReconciled = "PaymentReconciled"
	EventTypePaymentReversed   = "PaymentReversed"
)

// AggregateTypePayment is the aggregate type of payment events
const AggregateTypePayment = "Payment"

// PaymentReconciledEvent is raised when a payment's allocations are committed
type PaymentReconciledEvent struct {
	shared.BaseDomainEvent
	PaymentID            uuid.UUID       `json:"payment_id"`
	AccountID            uuid.UUID       `json:"account_id"`
	Reference            string          `json:"reference"`
	Amount               decimal.Decimal `json:"amount"`
	TotalAllocated       decimal.Decimal `json:"total_allocated"`
	RemainingAmount      decimal.Decimal `json:"remaining_amount"`
	ReconciliationStatus string          `json:"reconciliation_status"`
	BillIDs              []uuid.UUID     `json:"bill_ids"`
	ReconciledBy         string          `json:"reconciled_by"`
}

// NewPaymentReconciledEvent creates a PaymentReconciledEvent
func NewPaymentReconciledEvent(p *Payment, totalAllocated, remaining decimal.Decimal, billIDs []uuid.UUID) *PaymentReconciledEvent {
	return &PaymentReconciledEvent{
		BaseDomainEvent:      shared.NewBaseDomainEvent(EventTypePaymentReconciled, AggregateTypePayment, p.ID),
		PaymentID:            p.ID,
		AccountID:            p.AccountID,
		Reference:            p.Reference,
		Amount:               p.Amount,
		TotalAllocated:       totalAllocated,
		RemainingAmount:      remaining,
		ReconciliationStatus: string(p.ReconciliationStatus),
		BillIDs:              billIDs,
		ReconciledBy:         p.ReconciledBy,
	}
}

// PaymentReversedEvent is raised when a reconciliation is undone
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	PaymentID          uuid.UUID   `json:"payment_id"`
	AccountID          uuid.UUID   `json:"account_id"`
	Reference          string      `json:"reference"`
	Reason             string      `json:"reason"`
	ReversedBy         string      `json:"reversed_by"`
	AllocationsRemoved int         `json:"allocations_removed"`
	BillIDs            []uuid.UUID `json:"bill_ids"`
}

// NewPaymentReversedEvent creates a PaymentReversedEvent
func NewPaymentReversedEvent(p *Payment, reason, actor string, removed int, billIDs []uuid.UUID) *PaymentReversedEvent {
	return &PaymentReversedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypePaymentReversed, AggregateTypePayment, p.ID),
		PaymentID:          p.ID,
		AccountID:          p.AccountID,
		Reference:          p.Reference,
		Reason:             reason,
		ReversedBy:         actor,
		AllocationsRemoved: removed,
		BillIDs:            billIDs,
	}
}
