package billing

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/google/uuid"
)

// TransactionScope provides transactional access to the billing repositories.
// Every engine operation runs in exactly one Execute call; nothing inside
// fn may open another transaction.
type TransactionScope interface {
	// Execute runs fn within a database transaction. The transaction is
	// rolled back if fn returns an error and committed otherwise.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides the repositories of one transaction.
//
// Aggregate boundary notes:
//   - Accounts: LockForUpdate is the serialization point for every write to an account.
//   - Bills: the Bill aggregate owns its BillingDetail lines, which are saved with it.
//   - Allocations: read-only here; allocated sums drive overdue balances.
//   - Events: domain events recorded here commit with the state change.
type TransactionalRepositories interface {
	Accounts() metering.AccountRepository
	Meters() metering.MeterRepository
	Readings() metering.ReadingRepository
	Tariffs() tariff.Repository
	Bills() billing.BillRepository
	Allocations() ledger.AllocationRepository
	Events() shared.EventRecorder
}

// CacheInvalidator drops cached projections of an account. It is called
// after the transaction that changed the account has committed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, accountIDs ...uuid.UUID) error
}
