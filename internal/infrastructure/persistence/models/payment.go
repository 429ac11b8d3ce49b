package models

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for a received payment
type PaymentModel struct {
	AggregateModel
	AccountID            uuid.UUID                    `gorm:"type:uuid;not null;index"`
	Amount               decimal.Decimal              `gorm:"type:decimal(18,2);not null"`
	Method               payment.Method               `gorm:"type:varchar(30);not null"`
	Reference            string                       `gorm:"type:varchar(100);not null;uniqueIndex"`
	Status               payment.Status               `gorm:"type:varchar(20);not null;default:'completed'"`
	ReceivedAt           time.Time                    `gorm:"not null;index"`
	ReconciliationStatus payment.ReconciliationStatus `gorm:"type:varchar(30);not null;default:'pending';index"`
	ReconciledAt         *time.Time
	ReconciledBy         string `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		BaseAggregateRoot:    m.ToAggregateRoot(),
		AccountID:            m.AccountID,
		Amount:               m.Amount,
		Method:               m.Method,
		Reference:            m.Reference,
		Status:               m.Status,
		ReceivedAt:           m.ReceivedAt,
		ReconciliationStatus: m.ReconciliationStatus,
		ReconciledAt:         m.ReconciledAt,
		ReconciledBy:         m.ReconciledBy,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *payment.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.AccountID = p.AccountID
	m.Amount = p.Amount
	m.Method = p.Method
	m.Reference = p.Reference
	m.Status = p.Status
	m.ReceivedAt = utc(p.ReceivedAt)
	m.ReconciliationStatus = p.ReconciliationStatus
	m.ReconciledAt = utcPtr(p.ReconciledAt)
	m.ReconciledBy = p.ReconciledBy
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}
