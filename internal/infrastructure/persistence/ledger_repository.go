package persistence

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormAllocationRepository implements ledger.AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// Save inserts allocations in one statement
func (r *GormAllocationRepository) Save(ctx context.Context, allocations ...*ledger.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	rows := make([]*models.PaymentAllocationModel, len(allocations))
	for i, a := range allocations {
		rows[i] = models.PaymentAllocationModelFromDomain(a)
	}
	return translateError(r.db.WithContext(ctx).Create(&rows).Error)
}

// FindByPayment returns the allocations of a payment in allocation order
func (r *GormAllocationRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]ledger.Allocation, error) {
	return r.find(r.db.WithContext(ctx).Where("payment_id = ?", paymentID))
}

// FindByAccount returns the allocations of an account in allocation order
func (r *GormAllocationRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Allocation, error) {
	return r.find(r.db.WithContext(ctx).Where("account_id = ?", accountID))
}

// FindByBill returns the allocations made to a bill
func (r *GormAllocationRepository) FindByBill(ctx context.Context, billID uuid.UUID) ([]ledger.Allocation, error) {
	return r.find(r.db.WithContext(ctx).Where("bill_id = ?", billID))
}

func (r *GormAllocationRepository) find(query *gorm.DB) ([]ledger.Allocation, error) {
	var rows []models.PaymentAllocationModel
	if err := query.Order("allocated_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	allocations := make([]ledger.Allocation, len(rows))
	for i := range rows {
		allocations[i] = rows[i].ToDomain()
	}
	return allocations, nil
}

type billAllocationSum struct {
	BillID uuid.UUID
	Total  decimal.Decimal
}

// SumByBills totals the allocations of completed payments per bill. Bills
// without allocations are absent from the map.
func (r *GormAllocationRepository) SumByBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal, len(billIDs))
	if len(billIDs) == 0 {
		return sums, nil
	}
	var rows []billAllocationSum
	if err := r.db.WithContext(ctx).
		Table("payment_allocations AS a").
		Select("a.bill_id AS bill_id, SUM(a.amount) AS total").
		Joins("JOIN payments p ON p.id = a.payment_id").
		Where("a.bill_id IN ? AND p.status = ?", billIDs, payment.StatusCompleted).
		Group("a.bill_id").
		Scan(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	for _, row := range rows {
		sums[row.BillID] = row.Total.Round(2)
	}
	return sums, nil
}

// DeleteByPayment removes every allocation of the payment
func (r *GormAllocationRepository) DeleteByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&models.PaymentAllocationModel{})
	return result.RowsAffected, translateError(result.Error)
}

// GormCarryForwardRepository implements ledger.CarryForwardRepository using GORM
type GormCarryForwardRepository struct {
	db *gorm.DB
}

// NewGormCarryForwardRepository creates a new GormCarryForwardRepository
func NewGormCarryForwardRepository(db *gorm.DB) *GormCarryForwardRepository {
	return &GormCarryForwardRepository{db: db}
}

// FindByID finds a carry-forward balance by its ID
func (r *GormCarryForwardRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.CarryForward, error) {
	var model models.CarryForwardModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindActiveCredits returns active credits of the account, oldest created first
func (r *GormCarryForwardRepository) FindActiveCredits(ctx context.Context, accountID uuid.UUID) ([]ledger.CarryForward, error) {
	return r.find(r.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND status = ?", accountID, ledger.CarryForwardCredit, ledger.CarryForwardActive))
}

// FindByAccount returns every carry-forward of the account, oldest first
func (r *GormCarryForwardRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.CarryForward, error) {
	return r.find(r.db.WithContext(ctx).Where("account_id = ?", accountID))
}

// FindByPayment returns the carry-forwards created by a payment
func (r *GormCarryForwardRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]ledger.CarryForward, error) {
	return r.find(r.db.WithContext(ctx).Where("payment_id = ?", paymentID))
}

// FindExpired returns active balances whose expiry is at or before asOf
func (r *GormCarryForwardRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]ledger.CarryForward, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", ledger.CarryForwardActive, asOf.UTC())
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

func (r *GormCarryForwardRepository) find(query *gorm.DB) ([]ledger.CarryForward, error) {
	var rows []models.CarryForwardModel
	if err := query.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	balances := make([]ledger.CarryForward, len(rows))
	for i := range rows {
		balances[i] = *rows[i].ToDomain()
	}
	return balances, nil
}

// Save inserts a carry-forward balance
func (r *GormCarryForwardRepository) Save(ctx context.Context, cf *ledger.CarryForward) error {
	return translateError(r.db.WithContext(ctx).Create(models.CarryForwardModelFromDomain(cf)).Error)
}

// Update persists the balance and lifecycle fields
func (r *GormCarryForwardRepository) Update(ctx context.Context, cf *ledger.CarryForward) error {
	m := models.CarryForwardModelFromDomain(cf)
	return updateVersioned(ctx, r.db, &models.CarryForwardModel{}, cf.ID, cf.Version, map[string]any{
		"status":     m.Status,
		"balance":    m.Balance,
		"applied_at": m.AppliedAt,
		"expired_at": m.ExpiredAt,
		"updated_at": m.UpdatedAt,
	})
}

// DeleteByPayment removes the balances created by the payment
func (r *GormCarryForwardRepository) DeleteByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&models.CarryForwardModel{})
	return result.RowsAffected, translateError(result.Error)
}

// GormLedgerStore groups the ledger repositories over one connection
type GormLedgerStore struct {
	allocations   *GormAllocationRepository
	carryForwards *GormCarryForwardRepository
}

// NewGormLedgerStore creates a ledger store over db
func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{
		allocations:   NewGormAllocationRepository(db),
		carryForwards: NewGormCarryForwardRepository(db),
	}
}

// Allocations returns the allocation repository
func (s *GormLedgerStore) Allocations() ledger.AllocationRepository {
	return s.allocations
}

// CarryForwards returns the carry-forward repository
func (s *GormLedgerStore) CarryForwards() ledger.CarryForwardRepository {
	return s.carryForwards
}

var (
	_ ledger.AllocationRepository   = (*GormAllocationRepository)(nil)
	_ ledger.CarryForwardRepository = (*GormCarryForwardRepository)(nil)
	_ ledger.Store                  = (*GormLedgerStore)(nil)
)
