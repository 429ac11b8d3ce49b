package persistence

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormBillRepository implements billing.BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByID returns the bill with its details
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("current_reading_date") }).
		First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByNumber returns the bill with its details by bill number
func (r *GormBillRepository) FindByNumber(ctx context.Context, billNumber string) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).Preload("Details").First(&model, "bill_number = ?", billNumber).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindActiveByAccountAndPeriod returns the non-voided bill for the period
func (r *GormBillRepository) FindActiveByAccountAndPeriod(ctx context.Context, accountID uuid.UUID, period billing.Period) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).
		Preload("Details").
		Where("account_id = ? AND period = ? AND status <> ?", accountID, period.String(), billing.BillStatusVoided).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindOutstandingByAccount returns outstanding bills, oldest due first
func (r *GormBillRepository) FindOutstandingByAccount(ctx context.Context, accountID uuid.UUID) ([]billing.Bill, error) {
	return r.find(ctx, r.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, billing.OutstandingStatuses()).
		Order("due_date ASC").
		Order("created_at ASC"))
}

// FindByAccount returns every bill of the account, newest period first
func (r *GormBillRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]billing.Bill, error) {
	return r.find(ctx, r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("period DESC").
		Order("created_at DESC"))
}

// FindByIDs returns the given bills without details
func (r *GormBillRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]billing.Bill, error) {
	if len(ids) == 0 {
		return []billing.Bill{}, nil
	}
	return r.find(ctx, r.db.WithContext(ctx).Where("id IN ?", ids).Order("due_date ASC"))
}

// FindOverdueCandidates returns outstanding bills past due that are not yet overdue
func (r *GormBillRepository) FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]billing.Bill, error) {
	query := r.db.WithContext(ctx).
		Where("status IN ? AND overdue_at IS NULL AND due_date < ?",
			[]billing.BillStatus{billing.BillStatusPending, billing.BillStatusPartiallyPaid}, asOf.UTC()).
		Order("due_date ASC").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(ctx, query)
}

func (r *GormBillRepository) find(_ context.Context, query *gorm.DB) ([]billing.Bill, error) {
	var rows []models.BillModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	bills := make([]billing.Bill, len(rows))
	for i := range rows {
		bills[i] = *rows[i].ToDomain()
	}
	return bills, nil
}

// Save inserts a new bill with its details. A second non-voided bill for
// the same account and period fails with billing.ErrDuplicateBill.
func (r *GormBillRepository) Save(ctx context.Context, bill *billing.Bill) error {
	err := translateError(r.db.WithContext(ctx).Create(models.BillModelFromDomain(bill)).Error)
	if isAlreadyExists(err) {
		return shared.NewDomainError(billing.CodeDuplicateBill, err.Error())
	}
	return err
}

// Update persists the mutable header fields of a bill
func (r *GormBillRepository) Update(ctx context.Context, bill *billing.Bill) error {
	m := models.BillModelFromDomain(bill)
	return updateVersioned(ctx, r.db, &models.BillModel{}, bill.ID, bill.Version, map[string]any{
		"status":              m.Status,
		"paid_at":             m.PaidAt,
		"overdue_at":          m.OverdueAt,
		"late_fee_amount":     m.LateFeeAmount,
		"voided_at":           m.VoidedAt,
		"void_reason":         m.VoidReason,
		"voided_by":           m.VoidedBy,
		"replaces_bill_id":    m.ReplacesBillID,
		"replaced_by_bill_id": m.ReplacedByBillID,
		"updated_at":          m.UpdatedAt,
	})
}

var _ billing.BillRepository = (*GormBillRepository)(nil)
