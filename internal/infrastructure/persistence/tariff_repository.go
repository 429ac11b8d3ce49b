package persistence

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTariffRepository implements tariff.Repository using GORM
type GormTariffRepository struct {
	db *gorm.DB
}

// NewGormTariffRepository creates a new GormTariffRepository
func NewGormTariffRepository(db *gorm.DB) *GormTariffRepository {
	return &GormTariffRepository{db: db}
}

// FindEffective returns the category and universal tariffs effective on the
// date, newest EffectiveFrom first
func (r *GormTariffRepository) FindEffective(ctx context.Context, category string, on time.Time) ([]tariff.Tariff, error) {
	y, m, d := on.UTC().Date()
	endOfDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	var rows []models.TariffModel
	if err := r.db.WithContext(ctx).
		Preload("Rates").
		Where("category IN ?", []string{category, ""}).
		Where("effective_from < ?", endOfDay).
		Order("effective_from DESC").
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}

	tariffs := make([]tariff.Tariff, 0, len(rows))
	for i := range rows {
		t := rows[i].ToDomain()
		if t.IsEffectiveOn(on) {
			tariffs = append(tariffs, *t)
		}
	}
	return tariffs, nil
}

// FindByCode finds a tariff with its rates by code
func (r *GormTariffRepository) FindByCode(ctx context.Context, code string) (*tariff.Tariff, error) {
	var model models.TariffModel
	if err := r.db.WithContext(ctx).Preload("Rates").First(&model, "code = ?", code).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save inserts a tariff or replaces an existing one together with its rates
func (r *GormTariffRepository) Save(ctx context.Context, t *tariff.Tariff) error {
	model := models.TariffModelFromDomain(t)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TariffModel{}).Where("id = ?", t.ID).Count(&count).Error; err != nil {
			return translateError(err)
		}
		if count == 0 {
			return translateError(tx.Create(model).Error)
		}
		if err := tx.Where("tariff_id = ?", t.ID).Delete(&models.TariffRateModel{}).Error; err != nil {
			return translateError(err)
		}
		if len(model.Rates) > 0 {
			if err := tx.Create(&model.Rates).Error; err != nil {
				return translateError(err)
			}
		}
		return translateError(tx.Omit("Rates").Save(model).Error)
	})
}

var _ tariff.Repository = (*GormTariffRepository)(nil)
