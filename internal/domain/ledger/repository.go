package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationRepository persists payment allocations
type AllocationRepository interface {
	Save(ctx context.Context, allocations ...*Allocation) error
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]Allocation, error)
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]Allocation, error)
	// SumByBills totals the allocations of completed payments per bill
	SumByBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	// DeleteByPayment removes every allocation of the payment and returns the count
	DeleteByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

// CarryForwardRepository persists carry-forward balances
type CarryForwardRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*CarryForward, error)
	// FindActiveCredits returns active credits of the account, oldest created first
	FindActiveCredits(ctx context.Context, accountID uuid.UUID) ([]CarryForward, error)
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]CarryForward, error)
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]CarryForward, error)
	// FindExpired returns active balances whose expiry is at or before asOf
	FindExpired(ctx context.Context, asOf time.Time, limit int) ([]CarryForward, error)
	Save(ctx context.Context, cf *CarryForward) error
	Update(ctx context.Context, cf *CarryForward) error
	// DeleteByPayment removes the balances created by the payment
	DeleteByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

// Store is the ledger of allocations and carry-forward balances
type Store interface {
	Allocations() AllocationRepository
	CarryForwards() CarryForwardRepository
}
