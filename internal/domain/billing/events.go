package billing

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants for bills
const (
	EventTypeBillGenerated = "BillGenerated"
	EventTypeBillPaid      = "BillPaid"
	EventTypeBillVoided    = "BillVoided"
	EventTypeBillOverdue   = "BillOverdue"
)

// AggregateTypeBill is the aggregate type of bill events
const AggregateTypeBill = "Bill"

// BillGeneratedEvent is raised when a bill is created
type BillGeneratedEvent struct {
	shared.BaseDomainEvent
	BillID         uuid.UUID       `json:"bill_id"`
	BillNumber     string          `json:"bill_number"`
	AccountID      uuid.UUID       `json:"account_id"`
	Period         string          `json:"period"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DueDate        time.Time       `json:"due_date"`
	MeterCount     int             `json:"meter_count"`
	Estimated      bool            `json:"estimated"`
	ReplacesBillID *uuid.UUID      `json:"replaces_bill_id,omitempty"`
}

// NewBillGeneratedEvent creates a BillGeneratedEvent
func NewBillGeneratedEvent(b *Bill) *BillGeneratedEvent {
	estimated := false
	for _, d := range b.Details {
		estimated = estimated || d.Estimated
	}
	return &BillGeneratedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillGenerated, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		BillNumber:      b.BillNumber,
		AccountID:       b.AccountID,
		Period:          b.Period.String(),
		TotalAmount:     b.TotalAmount,
		DueDate:         b.DueDate,
		MeterCount:      len(b.Details),
		Estimated:       estimated,
		ReplacesBillID:  b.ReplacesBillID,
	}
}

// BillPaidEvent is raised when allocations cover a bill in full
type BillPaidEvent struct {
	shared.BaseDomainEvent
	BillID      uuid.UUID       `json:"bill_id"`
	AccountID   uuid.UUID       `json:"account_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

// NewBillPaidEvent creates a BillPaidEvent
func NewBillPaidEvent(b *Bill) *BillPaidEvent {
	paidAt := time.Now()
	if b.PaidAt != nil {
		paidAt = *b.PaidAt
	}
	return &BillPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillPaid, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		AccountID:       b.AccountID,
		TotalAmount:     b.TotalAmount,
		PaidAt:          paidAt,
	}
}

// BillVoidedEvent is raised when a bill is voided
type BillVoidedEvent struct {
	shared.BaseDomainEvent
	BillID    uuid.UUID `json:"bill_id"`
	AccountID uuid.UUID `json:"account_id"`
	Period    string    `json:"period"`
	Reason    string    `json:"reason"`
	VoidedBy  string    `json:"voided_by"`
}

// NewBillVoidedEvent creates a BillVoidedEvent
func NewBillVoidedEvent(b *Bill) *BillVoidedEvent {
	return &BillVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillVoided, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		AccountID:       b.AccountID,
		Period:          b.Period.String(),
		Reason:          b.VoidReason,
		VoidedBy:        b.VoidedBy,
	}
}

// BillOverdueEvent is raised when the overdue sweep flags a bill
type BillOverdueEvent struct {
	shared.BaseDomainEvent
	BillID        uuid.UUID       `json:"bill_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	Balance       decimal.Decimal `json:"balance"`
	LateFeeAmount decimal.Decimal `json:"late_fee_amount"`
	DaysOverdue   int             `json:"days_overdue"`
}

// NewBillOverdueEvent creates a BillOverdueEvent
func NewBillOverdueEvent(b *Bill, balance decimal.Decimal, daysOverdue int) *BillOverdueEvent {
	return &BillOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillOverdue, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		AccountID:       b.AccountID,
		Balance:         balance,
		LateFeeAmount:   b.LateFeeAmount,
		DaysOverdue:     daysOverdue,
	}
}
