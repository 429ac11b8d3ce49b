package persistence

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAccountRepository implements metering.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByID finds an account by its ID
func (r *GormAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an account by its account number
func (r *GormAccountRepository) FindByNumber(ctx context.Context, accountNumber string) (*metering.Account, error) {
	var model models.AccountModel
	if err := r.db.WithContext(ctx).First(&model, "account_number = ?", accountNumber).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// LockForUpdate loads the account with an exclusive row lock held until the
// transaction ends. On sqlite a no-op write takes the database write lock.
func (r *GormAccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*metering.Account, error) {
	db := r.db.WithContext(ctx)
	if isSQLite(db) {
		if err := db.Exec("UPDATE accounts SET version = version WHERE id = ?", id).Error; err != nil {
			return nil, translateError(err)
		}
	}
	var model models.AccountModel
	if err := forUpdate(db).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBillableIDs returns active and suspended accounts ordered by account number
func (r *GormAccountRepository) FindBillableIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.AccountModel{}).
		Where("status IN ?", []metering.AccountStatus{metering.AccountStatusActive, metering.AccountStatusSuspended}).
		Order("account_number").
		Pluck("id", &ids).Error; err != nil {
		return nil, translateError(err)
	}
	return ids, nil
}

// Save inserts a new account or updates an existing one
func (r *GormAccountRepository) Save(ctx context.Context, account *metering.Account) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AccountModel{}).Where("id = ?", account.ID).Count(&count).Error; err != nil {
		return translateError(err)
	}
	if count == 0 {
		return translateError(r.db.WithContext(ctx).Create(models.AccountModelFromDomain(account)).Error)
	}
	return updateVersioned(ctx, r.db, &models.AccountModel{}, account.ID, account.Version, map[string]any{
		"name":       account.Name,
		"status":     account.Status,
		"updated_at": account.UpdatedAt.UTC(),
	})
}

// GormMeterRepository implements metering.MeterRepository using GORM
type GormMeterRepository struct {
	db *gorm.DB
}

// NewGormMeterRepository creates a new GormMeterRepository
func NewGormMeterRepository(db *gorm.DB) *GormMeterRepository {
	return &GormMeterRepository{db: db}
}

// FindByID finds a meter by its ID
func (r *GormMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBySerial finds a meter by its serial number
func (r *GormMeterRepository) FindBySerial(ctx context.Context, serial string) (*metering.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "serial_number = ?", serial).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByAccount returns all meters of an account ordered by serial number
func (r *GormMeterRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) ([]metering.Meter, error) {
	return r.find(ctx, "account_id = ?", accountID)
}

// FindSubMeters returns the sub-meters of a bulk meter ordered by serial number
func (r *GormMeterRepository) FindSubMeters(ctx context.Context, bulkMeterID uuid.UUID) ([]metering.Meter, error) {
	return r.find(ctx, "parent_meter_id = ?", bulkMeterID)
}

func (r *GormMeterRepository) find(ctx context.Context, query string, args ...any) ([]metering.Meter, error) {
	var rows []models.MeterModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order("serial_number").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	meters := make([]metering.Meter, len(rows))
	for i := range rows {
		meters[i] = *rows[i].ToDomain()
	}
	return meters, nil
}

// Save creates or updates a meter
func (r *GormMeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	return translateError(r.db.WithContext(ctx).Save(models.MeterModelFromDomain(meter)).Error)
}

// GormReadingRepository implements metering.ReadingRepository using GORM
type GormReadingRepository struct {
	db *gorm.DB
}

// NewGormReadingRepository creates a new GormReadingRepository
func NewGormReadingRepository(db *gorm.DB) *GormReadingRepository {
	return &GormReadingRepository{db: db}
}

// FindByID finds a reading by its ID
func (r *GormReadingRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.MeterReading, error) {
	var model models.MeterReadingModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindLatestBefore returns the newest reading strictly before the date
func (r *GormReadingRepository) FindLatestBefore(ctx context.Context, meterID uuid.UUID, before time.Time) (*metering.MeterReading, error) {
	var model models.MeterReadingModel
	if err := r.db.WithContext(ctx).
		Where("meter_id = ? AND reading_date < ?", meterID, before.UTC()).
		Order("reading_date DESC").
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindLatestInRange returns the newest reading with from <= date < to
func (r *GormReadingRepository) FindLatestInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) (*metering.MeterReading, error) {
	var model models.MeterReadingModel
	if err := r.db.WithContext(ctx).
		Where("meter_id = ? AND reading_date >= ? AND reading_date < ?", meterID, from.UTC(), to.UTC()).
		Order("reading_date DESC").
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindHistory returns up to limit readings strictly before the date, newest first
func (r *GormReadingRepository) FindHistory(ctx context.Context, meterID uuid.UUID, before time.Time, limit int) ([]metering.MeterReading, error) {
	if limit <= 0 {
		return []metering.MeterReading{}, nil
	}
	var rows []models.MeterReadingModel
	if err := r.db.WithContext(ctx).
		Where("meter_id = ? AND reading_date < ?", meterID, before.UTC()).
		Order("reading_date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	readings := make([]metering.MeterReading, len(rows))
	for i := range rows {
		readings[i] = *rows[i].ToDomain()
	}
	return readings, nil
}

// Save inserts new readings in one statement
func (r *GormReadingRepository) Save(ctx context.Context, readings ...*metering.MeterReading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]*models.MeterReadingModel, len(readings))
	for i, reading := range readings {
		rows[i] = models.MeterReadingModelFromDomain(reading)
	}
	err := translateError(r.db.WithContext(ctx).Create(&rows).Error)
	if isAlreadyExists(err) {
		return metering.ErrDuplicateReading
	}
	return err
}

// Update persists the mutable flags of a reading
func (r *GormReadingRepository) Update(ctx context.Context, reading *metering.MeterReading) error {
	m := models.MeterReadingModelFromDomain(reading)
	result := r.db.WithContext(ctx).
		Model(&models.MeterReadingModel{}).
		Where("id = ?", reading.ID).
		Updates(map[string]any{
			"distributed":    m.Distributed,
			"distributed_at": m.DistributedAt,
			"needs_review":   m.NeedsReview,
			"review_note":    m.ReviewNote,
			"updated_at":     m.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound)
	}
	return nil
}

var (
	_ metering.AccountRepository = (*GormAccountRepository)(nil)
	_ metering.MeterRepository   = (*GormMeterRepository)(nil)
	_ metering.ReadingRepository = (*GormReadingRepository)(nil)
)
