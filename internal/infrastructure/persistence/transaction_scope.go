package persistence

import (
	"context"
	"fmt"
	"time"

	appbilling "github.com/erp/utilitybilling/internal/application/billing"
	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/erp/utilitybilling/internal/infrastructure/event"
	"gorm.io/gorm"
)

// gormScope runs one GORM transaction per call. On postgres the account
// lock wait is bounded with SET LOCAL lock_timeout.
type gormScope struct {
	db          *gorm.DB
	serializer  *event.EventSerializer
	lockTimeout time.Duration
}

func (s gormScope) run(ctx context.Context, fn func(repos *gormTransactionalRepositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return translateError(err)
			}
		}
		return fn(&gormTransactionalRepositories{tx: tx, serializer: s.serializer})
	})
	return translateError(err)
}

// GormBillingTransactionScope implements the billing engine's TransactionScope
type GormBillingTransactionScope struct {
	scope gormScope
}

// NewGormBillingTransactionScope creates a billing transaction scope. Events
// recorded inside a transaction are written to the outbox with serializer.
func NewGormBillingTransactionScope(db *gorm.DB, serializer *event.EventSerializer, lockTimeout time.Duration) *GormBillingTransactionScope {
	return &GormBillingTransactionScope{scope: newGormScope(db, serializer, lockTimeout)}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormBillingTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.scope.run(ctx, func(repos *gormTransactionalRepositories) error {
		return fn(repos)
	})
}

// GormReconciliationTransactionScope implements the reconciliation engine's
// TransactionScope
type GormReconciliationTransactionScope struct {
	scope gormScope
}

// NewGormReconciliationTransactionScope creates a reconciliation transaction scope
func NewGormReconciliationTransactionScope(db *gorm.DB, serializer *event.EventSerializer, lockTimeout time.Duration) *GormReconciliationTransactionScope {
	return &GormReconciliationTransactionScope{scope: newGormScope(db, serializer, lockTimeout)}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormReconciliationTransactionScope) Execute(ctx context.Context, fn func(repos reconciliation.TransactionalRepositories) error) error {
	return s.scope.run(ctx, func(repos *gormTransactionalRepositories) error {
		return fn(repos)
	})
}

func newGormScope(db *gorm.DB, serializer *event.EventSerializer, lockTimeout time.Duration) gormScope {
	if serializer == nil {
		serializer = event.NewEngineEventSerializer()
	}
	return gormScope{db: db, serializer: serializer, lockTimeout: lockTimeout}
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx         *gorm.DB
	serializer *event.EventSerializer
}

// Accounts returns the account repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Accounts() metering.AccountRepository {
	return NewGormAccountRepository(r.tx)
}

// Meters returns the meter repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Meters() metering.MeterRepository {
	return NewGormMeterRepository(r.tx)
}

// Readings returns the reading repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Readings() metering.ReadingRepository {
	return NewGormReadingRepository(r.tx)
}

// Tariffs returns the tariff repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Tariffs() tariff.Repository {
	return NewGormTariffRepository(r.tx)
}

// Bills returns the bill repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Bills() billing.BillRepository {
	return NewGormBillRepository(r.tx)
}

// Payments returns the payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Payments() payment.Repository {
	return NewGormPaymentRepository(r.tx)
}

// Allocations returns the allocation repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Allocations() ledger.AllocationRepository {
	return NewGormAllocationRepository(r.tx)
}

// CarryForwards returns the carry-forward repository scoped to the current transaction.
func (r *gormTransactionalRepositories) CarryForwards() ledger.CarryForwardRepository {
	return NewGormCarryForwardRepository(r.tx)
}

// Events returns an outbox recorder bound to the current transaction.
func (r *gormTransactionalRepositories) Events() shared.EventRecorder {
	return event.NewOutboxRecorder(r.tx, r.serializer)
}

var (
	_ appbilling.TransactionScope              = (*GormBillingTransactionScope)(nil)
	_ reconciliation.TransactionScope          = (*GormReconciliationTransactionScope)(nil)
	_ appbilling.TransactionalRepositories     = (*gormTransactionalRepositories)(nil)
	_ reconciliation.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
