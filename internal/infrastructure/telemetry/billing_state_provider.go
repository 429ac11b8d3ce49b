package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBillingStateProvider implements BillingStateProvider with aggregate
// queries over the billing tables.
type GormBillingStateProvider struct {
	db *gorm.DB
}

// NewGormBillingStateProvider creates a new GormBillingStateProvider.
func NewGormBillingStateProvider(db *gorm.DB) *GormBillingStateProvider {
	return &GormBillingStateProvider{db: db}
}

// CountBillsByStatus returns the number of bills per status.
func (p *GormBillingStateProvider) CountBillsByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("bills").
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}
	return m, nil
}

// CountPendingReconciliation returns completed payments still pending reconciliation.
func (p *GormBillingStateProvider) CountPendingReconciliation(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("payments").
		Where("status = ? AND reconciliation_status = ?", "completed", "pending").
		Count(&count).Error
	return count, err
}

// ActiveCreditBalance sums the balances of active carry-forward credits.
func (p *GormBillingStateProvider) ActiveCreditBalance(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := p.db.WithContext(ctx).
		Table("carry_forward_balances").
		Select("SUM(balance)").
		Where("type = ? AND status = ?", "credit", "active").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}

var _ BillingStateProvider = (*GormBillingStateProvider)(nil)
