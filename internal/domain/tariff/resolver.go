package tariff

import (
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
)

// Resolve picks the tariff for a category on a date. An exact category match
// beats a universal tariff; within the same class the newest EffectiveFrom
// wins. Returns ErrNoTariff when nothing applies.
func Resolve(tariffs []Tariff, category string, on time.Time) (*Tariff, error) {
	var exact, universal *Tariff
	for i := range tariffs {
		t := &tariffs[i]
		if !t.IsEffectiveOn(on) {
			continue
		}
		switch {
		case t.Category == category && category != "":
			if exact == nil || t.EffectiveFrom.After(exact.EffectiveFrom) {
				exact = t
			}
		case t.IsUniversal():
			if universal == nil || t.EffectiveFrom.After(universal.EffectiveFrom) {
				universal = t
			}
		}
	}
	if exact != nil {
		return exact, nil
	}
	if universal != nil {
		return universal, nil
	}
	return nil, NewNoTariffError(category, on)
}

// NewNoTariffError returns a NO_TARIFF error naming the category and date
func NewNoTariffError(category string, on time.Time) *shared.DomainError {
	if category == "" {
		category = "(none)"
	}
	return shared.NewDomainError(CodeNoTariff, fmt.Sprintf("No tariff is effective for category %s on %s", category, on.Format("2006-01-02")))
}
