package models

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountModel is the persistence model for a customer account.
// Its row is the lock target for every billing and reconciliation run.
type AccountModel struct {
	AggregateModel
	AccountNumber string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name          string                 `gorm:"type:varchar(200)"`
	Status        metering.AccountStatus `gorm:"type:varchar(20);not null;default:'active';index"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account
func (m *AccountModel) ToDomain() *metering.Account {
	return &metering.Account{
		BaseAggregateRoot: m.ToAggregateRoot(),
		AccountNumber:     m.AccountNumber,
		Name:              m.Name,
		Status:            m.Status,
	}
}

// FromDomain populates the persistence model from a domain Account
func (m *AccountModel) FromDomain(a *metering.Account) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.AccountNumber = a.AccountNumber
	m.Name = a.Name
	m.Status = a.Status
}

// AccountModelFromDomain creates a new persistence model from a domain Account
func AccountModelFromDomain(a *metering.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}

// MeterModel is the persistence model for a meter
type MeterModel struct {
	BaseModel
	AccountID            uuid.UUID            `gorm:"type:uuid;not null;index"`
	SerialNumber         string               `gorm:"type:varchar(100);not null;uniqueIndex"`
	Type                 metering.MeterType   `gorm:"type:varchar(20);not null;default:'individual'"`
	Category             string               `gorm:"type:varchar(50);not null;default:''"`
	Status               metering.MeterStatus `gorm:"type:varchar(20);not null;default:'active'"`
	ParentMeterID        *uuid.UUID           `gorm:"type:uuid;index"`
	AllocationPercentage decimal.Decimal      `gorm:"type:decimal(7,4);not null;default:0"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the persistence model to a domain Meter
func (m *MeterModel) ToDomain() *metering.Meter {
	return &metering.Meter{
		BaseEntity:           m.BaseModel.ToDomain(),
		AccountID:            m.AccountID,
		SerialNumber:         m.SerialNumber,
		Type:                 m.Type,
		Category:             m.Category,
		Status:               m.Status,
		ParentMeterID:        m.ParentMeterID,
		AllocationPercentage: m.AllocationPercentage,
	}
}

// FromDomain populates the persistence model from a domain Meter
func (m *MeterModel) FromDomain(e *metering.Meter) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.AccountID = e.AccountID
	m.SerialNumber = e.SerialNumber
	m.Type = e.Type
	m.Category = e.Category
	m.Status = e.Status
	m.ParentMeterID = e.ParentMeterID
	m.AllocationPercentage = e.AllocationPercentage
}

// MeterModelFromDomain creates a new persistence model from a domain Meter
func MeterModelFromDomain(e *metering.Meter) *MeterModel {
	m := &MeterModel{}
	m.FromDomain(e)
	return m
}

// MeterReadingModel is the persistence model for a meter reading.
// A meter has at most one reading per date.
type MeterReadingModel struct {
	BaseModel
	MeterID         uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_reading_meter_date,priority:1"`
	ReadingDate     time.Time            `gorm:"not null;uniqueIndex:idx_reading_meter_date,priority:2"`
	Value           decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Type            metering.ReadingType `gorm:"type:varchar(20);not null;default:'actual'"`
	SourceReadingID *uuid.UUID           `gorm:"type:uuid;index"`
	Distributed     bool                 `gorm:"not null;default:false"`
	DistributedAt   *time.Time
	NeedsReview     bool   `gorm:"not null;default:false"`
	ReviewNote      string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the persistence model to a domain MeterReading
func (m *MeterReadingModel) ToDomain() *metering.MeterReading {
	return &metering.MeterReading{
		BaseEntity:      m.BaseModel.ToDomain(),
		MeterID:         m.MeterID,
		ReadingDate:     m.ReadingDate,
		Value:           m.Value,
		Type:            m.Type,
		SourceReadingID: m.SourceReadingID,
		Distributed:     m.Distributed,
		DistributedAt:   m.DistributedAt,
		NeedsReview:     m.NeedsReview,
		ReviewNote:      m.ReviewNote,
	}
}

// FromDomain populates the persistence model from a domain MeterReading
func (m *MeterReadingModel) FromDomain(r *metering.MeterReading) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.MeterID = r.MeterID
	m.ReadingDate = utc(r.ReadingDate)
	m.Value = r.Value
	m.Type = r.Type
	m.SourceReadingID = r.SourceReadingID
	m.Distributed = r.Distributed
	m.DistributedAt = utcPtr(r.DistributedAt)
	m.NeedsReview = r.NeedsReview
	m.ReviewNote = r.ReviewNote
}

// MeterReadingModelFromDomain creates a new persistence model from a domain MeterReading
func MeterReadingModelFromDomain(r *metering.MeterReading) *MeterReadingModel {
	m := &MeterReadingModel{}
	m.FromDomain(r)
	return m
}
