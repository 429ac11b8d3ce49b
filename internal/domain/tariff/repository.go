package tariff

import (
	"context"
	"time"
)

// Repository defines persistence for tariffs
type Repository interface {
	// FindEffective returns every tariff for the category or universal scope
	// that is effective on the date, with rates in ascending order
	FindEffective(ctx context.Context, category string, on time.Time) ([]Tariff, error)
	FindByCode(ctx context.Context, code string) (*Tariff, error)
	Save(ctx context.Context, t *Tariff) error
}
