package models

import (
	"sort"
	"time"

	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TariffModel is the persistence model for a tariff header
type TariffModel struct {
	AggregateModel
	Code            string            `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name            string            `gorm:"type:varchar(200);not null"`
	Category        string            `gorm:"type:varchar(50);not null;default:'';index:idx_tariff_category_from,priority:1"`
	EffectiveFrom   time.Time         `gorm:"not null;index:idx_tariff_category_from,priority:2"`
	EffectiveTo     *time.Time
	FixedCharge     decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0"`
	BulkFixedCharge *decimal.Decimal  `gorm:"type:decimal(18,4)"`
	TaxRate         decimal.Decimal   `gorm:"type:decimal(7,4);not null;default:0"`
	Rates           []TariffRateModel `gorm:"foreignKey:TariffID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (TariffModel) TableName() string {
	return "tariffs"
}

// TariffRateModel is one consumption tier of a tariff
type TariffRateModel struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TariffID    uuid.UUID        `gorm:"type:uuid;not null;index"`
	MinUnits    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	MaxUnits    *decimal.Decimal `gorm:"type:decimal(18,4)"`
	RatePerUnit decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (TariffRateModel) TableName() string {
	return "tariff_rates"
}

// ToDomain converts the persistence model to a domain Tariff
func (m *TariffModel) ToDomain() *tariff.Tariff {
	rates := make([]tariff.Rate, len(m.Rates))
	for i, r := range m.Rates {
		rates[i] = tariff.Rate{MinUnits: r.MinUnits, MaxUnits: r.MaxUnits, RatePerUnit: r.RatePerUnit}
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].MinUnits.LessThan(rates[j].MinUnits) })
	return &tariff.Tariff{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		Category:          m.Category,
		EffectiveFrom:     m.EffectiveFrom,
		EffectiveTo:       m.EffectiveTo,
		FixedCharge:       m.FixedCharge,
		BulkFixedCharge:   m.BulkFixedCharge,
		TaxRate:           m.TaxRate,
		Rates:             rates,
	}
}

// FromDomain populates the persistence model from a domain Tariff
func (m *TariffModel) FromDomain(t *tariff.Tariff) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.Code = t.Code
	m.Name = t.Name
	m.Category = t.Category
	m.EffectiveFrom = utc(t.EffectiveFrom)
	m.EffectiveTo = utcPtr(t.EffectiveTo)
	m.FixedCharge = t.FixedCharge
	m.BulkFixedCharge = t.BulkFixedCharge
	m.TaxRate = t.TaxRate
	m.Rates = make([]TariffRateModel, len(t.Rates))
	for i, r := range t.Rates {
		m.Rates[i] = TariffRateModel{
			ID:          uuid.New(),
			TariffID:    t.ID,
			MinUnits:    r.MinUnits,
			MaxUnits:    r.MaxUnits,
			RatePerUnit: r.RatePerUnit,
		}
	}
}

// TariffModelFromDomain creates a new persistence model from a domain Tariff
func TariffModelFromDomain(t *tariff.Tariff) *TariffModel {
	m := &TariffModel{}
	m.FromDomain(t)
	return m
}
