package models

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillModel is the persistence model for a bill header.
// At most one non-voided bill exists per account and period.
type BillModel struct {
	AggregateModel
	BillNumber       string             `gorm:"type:varchar(50);not null;uniqueIndex"`
	AccountID        uuid.UUID          `gorm:"type:uuid;not null;index:idx_bill_account_status,priority:1;uniqueIndex:idx_bill_account_period,priority:1,where:status <> 'voided'"`
	Period           string             `gorm:"type:varchar(7);not null;uniqueIndex:idx_bill_account_period,priority:2,where:status <> 'voided'"`
	TotalAmount      decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	Status           billing.BillStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_bill_account_status,priority:2"`
	IssuedAt         time.Time          `gorm:"not null"`
	DueDate          time.Time          `gorm:"not null;index"`
	PaidAt           *time.Time
	OverdueAt        *time.Time
	LateFeeAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	VoidedAt         *time.Time
	VoidReason       string               `gorm:"type:text"`
	VoidedBy         string               `gorm:"type:varchar(100)"`
	GeneratedBy      string               `gorm:"type:varchar(100)"`
	ReplacesBillID   *uuid.UUID           `gorm:"type:uuid"`
	ReplacedByBillID *uuid.UUID           `gorm:"type:uuid"`
	Details          []BillingDetailModel `gorm:"foreignKey:BillID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// BillingDetailModel is the persistence model for one meter line of a bill
type BillingDetailModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BillID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	MeterID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	ReadingID         uuid.UUID       `gorm:"type:uuid;not null"`
	TariffID          uuid.UUID       `gorm:"type:uuid;not null"`
	TariffCode        string          `gorm:"type:varchar(50);not null"`
	PreviousValue     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PreviousDate      *time.Time      `gorm:"column:previous_reading_date"`
	CurrentValue      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CurrentDate       time.Time       `gorm:"column:current_reading_date;not null"`
	Units             decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ConsumptionCharge decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	FixedCharge       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Tax               decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AverageRate       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Estimated         bool            `gorm:"not null;default:false"`
	MeterReset        bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (BillingDetailModel) TableName() string {
	return "billing_details"
}

// ToDomain converts the persistence model to a domain Bill.
// Details are included only when they were preloaded.
func (m *BillModel) ToDomain() *billing.Bill {
	period, _ := billing.ParsePeriod(m.Period)
	b := &billing.Bill{
		BaseAggregateRoot: m.ToAggregateRoot(),
		BillNumber:        m.BillNumber,
		AccountID:         m.AccountID,
		Period:            period,
		TotalAmount:       m.TotalAmount,
		Status:            m.Status,
		IssuedAt:          m.IssuedAt,
		DueDate:           m.DueDate,
		PaidAt:            m.PaidAt,
		OverdueAt:         m.OverdueAt,
		LateFeeAmount:     m.LateFeeAmount,
		VoidedAt:          m.VoidedAt,
		VoidReason:        m.VoidReason,
		VoidedBy:          m.VoidedBy,
		GeneratedBy:       m.GeneratedBy,
		ReplacesBillID:    m.ReplacesBillID,
		ReplacedByBillID:  m.ReplacedByBillID,
	}
	if len(m.Details) > 0 {
		b.Details = make([]billing.BillingDetail, len(m.Details))
		for i := range m.Details {
			b.Details[i] = m.Details[i].ToDomain()
		}
	}
	return b
}

// FromDomain populates the persistence model from a domain Bill
func (m *BillModel) FromDomain(b *billing.Bill) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.BillNumber = b.BillNumber
	m.AccountID = b.AccountID
	m.Period = b.Period.String()
	m.TotalAmount = b.TotalAmount
	m.Status = b.Status
	m.IssuedAt = utc(b.IssuedAt)
	m.DueDate = utc(b.DueDate)
	m.PaidAt = utcPtr(b.PaidAt)
	m.OverdueAt = utcPtr(b.OverdueAt)
	m.LateFeeAmount = b.LateFeeAmount
	m.VoidedAt = utcPtr(b.VoidedAt)
	m.VoidReason = b.VoidReason
	m.VoidedBy = b.VoidedBy
	m.GeneratedBy = b.GeneratedBy
	m.ReplacesBillID = b.ReplacesBillID
	m.ReplacedByBillID = b.ReplacedByBillID
	m.Details = make([]BillingDetailModel, len(b.Details))
	for i := range b.Details {
		m.Details[i].FromDomain(&b.Details[i])
	}
}

// BillModelFromDomain creates a new persistence model from a domain Bill
func BillModelFromDomain(b *billing.Bill) *BillModel {
	m := &BillModel{}
	m.FromDomain(b)
	return m
}

// ToDomain converts the persistence model to a domain BillingDetail
func (m *BillingDetailModel) ToDomain() billing.BillingDetail {
	return billing.BillingDetail{
		ID:                m.ID,
		BillID:            m.BillID,
		MeterID:           m.MeterID,
		ReadingID:         m.ReadingID,
		TariffID:          m.TariffID,
		TariffCode:        m.TariffCode,
		PreviousValue:     m.PreviousValue,
		PreviousDate:      m.PreviousDate,
		CurrentValue:      m.CurrentValue,
		CurrentDate:       m.CurrentDate,
		Units:             m.Units,
		ConsumptionCharge: m.ConsumptionCharge,
		FixedCharge:       m.FixedCharge,
		Tax:               m.Tax,
		AverageRate:       m.AverageRate,
		Amount:            m.Amount,
		Estimated:         m.Estimated,
		MeterReset:        m.MeterReset,
	}
}

// FromDomain populates the persistence model from a domain BillingDetail
func (m *BillingDetailModel) FromDomain(d *billing.BillingDetail) {
	m.ID = d.ID
	m.BillID = d.BillID
	m.MeterID = d.MeterID
	m.ReadingID = d.ReadingID
	m.TariffID = d.TariffID
	m.TariffCode = d.TariffCode
	m.PreviousValue = d.PreviousValue
	m.PreviousDate = utcPtr(d.PreviousDate)
	m.CurrentValue = d.CurrentValue
	m.CurrentDate = utc(d.CurrentDate)
	m.Units = d.Units
	m.ConsumptionCharge = d.ConsumptionCharge
	m.FixedCharge = d.FixedCharge
	m.Tax = d.Tax
	m.AverageRate = d.AverageRate
	m.Amount = d.Amount
	m.Estimated = d.Estimated
	m.MeterReset = d.MeterReset
}
