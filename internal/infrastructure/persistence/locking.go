package persistence

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func isSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// sqlite has no row locks; its writers are serialized by the database lock.
func forUpdate(db *gorm.DB) *gorm.DB {
	if isSQLite(db) {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// updateVersioned writes the columns of a versioned row. The stored version
// must be below the new one, otherwise someone else saved a newer copy.
func updateVersioned(ctx context.Context, db *gorm.DB, model any, id uuid.UUID, version int, columns map[string]any) error {
	columns["version"] = version
	result := db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version < ?", id, version).
		Updates(columns)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
			return translateError(err)
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}
