package reconciliation

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to the reconciliation
// repositories. Reconcile and Reverse each run in exactly one Execute call.
type TransactionScope interface {
	// Execute runs fn within a database transaction. The transaction is
	// rolled back if fn returns an error and committed otherwise.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the repositories of one transaction.
//
// Aggregate boundary notes:
//   - Accounts: LockForUpdate serializes reconciliation against billing.
//   - Payments: the reconciliation status lives on the Payment aggregate.
//   - Allocations and CarryForwards: the ledger; written only here.
//   - Events: domain events recorded here commit with the state change.
type TransactionalRepositories interface {
	Accounts() metering.AccountRepository
	Payments() payment.Repository
	Bills() billing.BillRepository
	Allocations() ledger.AllocationRepository
	CarryForwards() ledger.CarryForwardRepository
	Events() shared.EventRecorder
}

// BalanceCache stores account balance projections. Get returns nil, nil on
// a miss. Implementations must apply their own expiry.
type BalanceCache interface {
	Get(ctx context.Context, accountID uuid.UUID) (*ledger.AccountBalance, error)
	Set(ctx context.Context, balance *ledger.AccountBalance) error
	Invalidate(ctx context.Context, accountIDs ...uuid.UUID) error
}
