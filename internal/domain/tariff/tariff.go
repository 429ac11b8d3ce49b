// Package tariff holds versioned rate schedules and their resolution rules.
package tariff

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Rate is one consumption tier. MaxUnits nil means the tier is unbounded.
type Rate struct {
	MinUnits    decimal.Decimal
	MaxUnits    *decimal.Decimal
	RatePerUnit decimal.Decimal
}

// Width returns the number of units the tier covers, nil when unbounded
func (r Rate) Width() *decimal.Decimal {
	if r.MaxUnits == nil {
		return nil
	}
	w := r.MaxUnits.Sub(r.MinUnits)
	return &w
}

// Tariff is a rate schedule for a meter category, effective over a date range.
// An empty Category makes the tariff universal.
type Tariff struct {
	shared.BaseAggregateRoot
	Code            string
	Name            string
	Category        string
	EffectiveFrom   time.Time
	EffectiveTo     *time.Time
	FixedCharge     decimal.Decimal
	BulkFixedCharge *decimal.Decimal
	TaxRate         decimal.Decimal // percent
	Rates           []Rate
}

// NewTariff creates a validated tariff. Rates are stored in ascending
// MinUnits order.
func NewTariff(code, name, category string, effectiveFrom time.Time, fixedCharge, taxRate decimal.Decimal, rates []Rate) (*Tariff, error) {
	t := &Tariff{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.TrimSpace(code),
		Name:              strings.TrimSpace(name),
		Category:          strings.TrimSpace(category),
		EffectiveFrom:     effectiveFrom.UTC(),
		FixedCharge:       fixedCharge,
		TaxRate:           taxRate,
		Rates:             append([]Rate(nil), rates...),
	}
	t.SortRates()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// SortRates orders the tiers by ascending MinUnits
func (t *Tariff) SortRates() {
	sort.SliceStable(t.Rates, func(i, j int) bool {
		return t.Rates[i].MinUnits.LessThan(t.Rates[j].MinUnits)
	})
}

// Validate checks the tariff fields and that no two tiers overlap
func (t *Tariff) Validate() error {
	if t.Code == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tariff code cannot be empty")
	}
	if t.EffectiveFrom.IsZero() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tariff effective from date is required")
	}
	if t.EffectiveTo != nil && t.EffectiveTo.Before(t.EffectiveFrom) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tariff effective to date cannot precede effective from")
	}
	if t.FixedCharge.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Fixed charge cannot be negative")
	}
	if t.BulkFixedCharge != nil && t.BulkFixedCharge.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Bulk fixed charge cannot be negative")
	}
	if t.TaxRate.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Tax rate cannot be negative")
	}

	rates := append([]Rate(nil), t.Rates...)
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].MinUnits.LessThan(rates[j].MinUnits) })
	for i, r := range rates {
		if r.MinUnits.IsNegative() {
			return shared.NewDomainError(CodeInvalidTier, fmt.Sprintf("Tier %d has a negative minimum", i+1))
		}
		if r.RatePerUnit.IsNegative() {
			return shared.NewDomainError(CodeInvalidTier, fmt.Sprintf("Tier %d has a negative rate", i+1))
		}
		if r.MaxUnits != nil && !r.MaxUnits.GreaterThan(r.MinUnits) {
			return shared.NewDomainError(CodeInvalidTier, fmt.Sprintf("Tier %d maximum must be above its minimum", i+1))
		}
		if i == 0 {
			continue
		}
		prev := rates[i-1]
		if prev.MaxUnits == nil || r.MinUnits.LessThan(*prev.MaxUnits) {
			return shared.NewDomainError(CodeOverlappingTiers,
				fmt.Sprintf("Tier starting at %s overlaps the tier starting at %s", r.MinUnits.String(), prev.MinUnits.String()))
		}
	}
	return nil
}

// IsEffectiveOn reports whether the tariff applies on the given date.
// EffectiveTo is inclusive.
func (t *Tariff) IsEffectiveOn(date time.Time) bool {
	day := dateOnly(date)
	if day.Before(dateOnly(t.EffectiveFrom)) {
		return false
	}
	if t.EffectiveTo != nil && day.After(dateOnly(*t.EffectiveTo)) {
		return false
	}
	return true
}

// IsUniversal returns true if the tariff applies to every category
func (t *Tariff) IsUniversal() bool {
	return t.Category == ""
}

// FixedChargeFor returns the fixed charge for a meter, using the bulk
// override for bulk meters when one is configured
func (t *Tariff) FixedChargeFor(bulk bool) decimal.Decimal {
	if bulk && t.BulkFixedCharge != nil {
		return *t.BulkFixedCharge
	}
	return t.FixedCharge
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
