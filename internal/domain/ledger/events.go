package ledger

import (
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeCarryForwardCreated is raised when an overpayment becomes a credit
const EventTypeCarryForwardCreated = "CarryForwardCreated"

// CarryForwardCreatedEvent is raised when a carry-forward balance is created
type CarryForwardCreatedEvent struct {
	shared.BaseDomainEvent
	CarryForwardID uuid.UUID       `json:"carry_forward_id"`
	AccountID      uuid.UUID       `json:"account_id"`
	PaymentID      *uuid.UUID      `json:"payment_id,omitempty"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
}

// NewCarryForwardCreatedEvent creates a CarryForwardCreatedEvent
func NewCarryForwardCreatedEvent(c *CarryForward) *CarryForwardCreatedEvent {
	return &CarryForwardCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCarryForwardCreated, "CarryForward", c.ID),
		CarryForwardID:  c.ID,
		AccountID:       c.AccountID,
		PaymentID:       c.PaymentID,
		Type:            string(c.Type),
		Amount:          c.OriginalAmount,
		Description:     c.Description,
	}
}
