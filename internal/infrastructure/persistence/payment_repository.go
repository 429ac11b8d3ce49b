package persistence

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByReference finds a payment by its unique reference
func (r *GormPaymentRepository) FindByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "reference = ?", reference).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByAccount returns the account's payments, newest received first
func (r *GormPaymentRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]payment.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("received_at DESC").
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	payments := make([]payment.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

// FindPendingReconciliation returns completed payments not yet reconciled, oldest first
func (r *GormPaymentRepository) FindPendingReconciliation(ctx context.Context, limit int) ([]payment.Payment, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND reconciliation_status = ?", payment.StatusCompleted, payment.ReconciliationPending).
		Order("received_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PaymentModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	payments := make([]payment.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

// Save inserts a payment
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	err := translateError(r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(p)).Error)
	if isAlreadyExists(err) {
		return shared.NewDomainError(shared.CodeAlreadyExists, "Payment reference "+p.Reference+" already exists")
	}
	return err
}

// Update persists the status and reconciliation fields of a payment
func (r *GormPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	m := models.PaymentModelFromDomain(p)
	return updateVersioned(ctx, r.db, &models.PaymentModel{}, p.ID, p.Version, map[string]any{
		"status":                m.Status,
		"reconciliation_status": m.ReconciliationStatus,
		"reconciled_at":         m.ReconciledAt,
		"reconciled_by":         m.ReconciledBy,
		"updated_at":            m.UpdatedAt,
	})
}

var _ payment.Repository = (*GormPaymentRepository)(nil)
