package models

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentAllocationModel is the persistence model for one payment-to-bill allocation
type PaymentAllocationModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PaymentID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	BillID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	CreditID    *uuid.UUID      `gorm:"type:uuid;index"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Source      ledger.Source   `gorm:"type:varchar(20);not null;default:'payment'"`
	AllocatedAt time.Time       `gorm:"not null"`
	CreatedBy   string          `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain Allocation
func (m *PaymentAllocationModel) ToDomain() ledger.Allocation {
	return ledger.Allocation{
		ID:          m.ID,
		PaymentID:   m.PaymentID,
		BillID:      m.BillID,
		AccountID:   m.AccountID,
		CreditID:    m.CreditID,
		Amount:      m.Amount,
		Source:      m.Source,
		AllocatedAt: m.AllocatedAt,
		CreatedBy:   m.CreatedBy,
	}
}

// PaymentAllocationModelFromDomain creates a persistence model from a domain Allocation
func PaymentAllocationModelFromDomain(a *ledger.Allocation) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		ID:          a.ID,
		PaymentID:   a.PaymentID,
		BillID:      a.BillID,
		AccountID:   a.AccountID,
		CreditID:    a.CreditID,
		Amount:      a.Amount,
		Source:      a.Source,
		AllocatedAt: utc(a.AllocatedAt),
		CreatedBy:   a.CreatedBy,
	}
}

// CarryForwardModel is the persistence model for a carry-forward balance
type CarryForwardModel struct {
	AggregateModel
	AccountID      uuid.UUID                 `gorm:"type:uuid;not null;index:idx_cf_account_status,priority:1"`
	PaymentID      *uuid.UUID                `gorm:"type:uuid;index"`
	Type           ledger.CarryForwardType   `gorm:"type:varchar(10);not null;default:'credit'"`
	Status         ledger.CarryForwardStatus `gorm:"type:varchar(20);not null;default:'active';index:idx_cf_account_status,priority:2"`
	OriginalAmount decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	Balance        decimal.Decimal           `gorm:"type:decimal(18,2);not null"`
	ExpiresAt      *time.Time                `gorm:"index"`
	Description    string                    `gorm:"type:text"`
	AppliedAt      *time.Time
	ExpiredAt      *time.Time
}

// TableName returns the table name for GORM
func (CarryForwardModel) TableName() string {
	return "carry_forward_balances"
}

// ToDomain converts the persistence model to a domain CarryForward
func (m *CarryForwardModel) ToDomain() *ledger.CarryForward {
	return &ledger.CarryForward{
		BaseAggregateRoot: m.ToAggregateRoot(),
		AccountID:         m.AccountID,
		PaymentID:         m.PaymentID,
		Type:              m.Type,
		Status:            m.Status,
		OriginalAmount:    m.OriginalAmount,
		Balance:           m.Balance,
		ExpiresAt:         m.ExpiresAt,
		Description:       m.Description,
		AppliedAt:         m.AppliedAt,
		ExpiredAt:         m.ExpiredAt,
	}
}

// FromDomain populates the persistence model from a domain CarryForward
func (m *CarryForwardModel) FromDomain(c *ledger.CarryForward) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.AccountID = c.AccountID
	m.PaymentID = c.PaymentID
	m.Type = c.Type
	m.Status = c.Status
	m.OriginalAmount = c.OriginalAmount
	m.Balance = c.Balance
	m.ExpiresAt = utcPtr(c.ExpiresAt)
	m.Description = c.Description
	m.AppliedAt = utcPtr(c.AppliedAt)
	m.ExpiredAt = utcPtr(c.ExpiredAt)
}

// CarryForwardModelFromDomain creates a new persistence model from a domain CarryForward
func CarryForwardModelFromDomain(c *ledger.CarryForward) *CarryForwardModel {
	m := &CarryForwardModel{}
	m.FromDomain(c)
	return m
}
