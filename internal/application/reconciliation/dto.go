package reconciliation

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode selects how a payment is spread over bills
type Mode string

const (
	// ModeAuto applies the payment to the oldest outstanding bills first
	ModeAuto Mode = "auto"
	// ModeManual applies caller-chosen amounts to caller-chosen bills
	ModeManual Mode = "manual"
)

// ManualAllocation is one requested bill/amount pair
type ManualAllocation struct {
	BillID uuid.UUID       `json:"bill_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// ReconcileRequest asks for a payment to be applied to bills
type ReconcileRequest struct {
	PaymentID   uuid.UUID          `json:"payment_id" validate:"required"`
	Mode        Mode               `json:"mode" validate:"omitempty,oneof=auto manual"`
	Allocations []ManualAllocation `json:"allocations" validate:"required_if=Mode manual,dive"`
	Actor       string             `json:"actor" validate:"required,max=100"`
}

// ReconciliationResult is the committed outcome of a reconciliation.
// TotalAllocated counts payment money only; credit draws are in CreditApplied.
type ReconciliationResult struct {
	Payment         *payment.Payment      `json:"payment"`
	Mode            Mode                  `json:"mode"`
	Allocations     []ledger.Allocation   `json:"allocations"`
	TotalAllocated  decimal.Decimal       `json:"total_allocated"`
	CreditApplied   decimal.Decimal       `json:"credit_applied"`
	RemainingAmount decimal.Decimal       `json:"remaining_amount"`
	CarryForward    *ledger.CarryForward  `json:"carry_forward,omitempty"`
	UpdatedBills    []billing.Bill        `json:"updated_bills"`
	Balance         ledger.AccountBalance `json:"balance"`
}

// ReverseRequest asks for a reconciliation to be undone
type ReverseRequest struct {
	PaymentID uuid.UUID `json:"payment_id" validate:"required"`
	Actor     string    `json:"actor" validate:"required,max=100"`
	Reason    string    `json:"reason" validate:"required,max=500"`
}

// ReversalResult is the committed outcome of a reversal
type ReversalResult struct {
	Payment              *payment.Payment      `json:"payment"`
	RemovedAllocations   int64                 `json:"removed_allocations"`
	RestoredCredits      []ledger.CarryForward `json:"restored_credits"`
	DeletedCarryForwards int64                 `json:"deleted_carry_forwards"`
	UpdatedBills         []billing.Bill        `json:"updated_bills"`
	Balance              ledger.AccountBalance `json:"balance"`
}

// CreditExpiryResult summarizes an ExpireCredits run
type CreditExpiryResult struct {
	AsOf      time.Time       `json:"as_of"`
	Expired   int             `json:"expired"`
	Amount    decimal.Decimal `json:"amount"`
	Failed    int             `json:"failed"`
	CreditIDs []uuid.UUID     `json:"credit_ids"`
}
