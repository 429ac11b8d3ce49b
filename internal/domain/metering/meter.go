package metering

import (
	"fmt"
	"strings"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MeterType distinguishes regular meters from bulk meters
type MeterType string

const (
	MeterTypeIndividual MeterType = "individual"
	MeterTypeBulk       MeterType = "bulk"
)

// IsValid checks if the meter type is valid
func (t MeterType) IsValid() bool {
	return t == MeterTypeIndividual || t == MeterTypeBulk
}

// MeterStatus represents whether a meter takes part in billing
type MeterStatus string

const (
	MeterStatusActive   MeterStatus = "active"
	MeterStatusInactive MeterStatus = "inactive"
)

// Meter belongs to one account. A bulk meter owns zero or more sub-meters;
// each sub-meter carries the share of the bulk consumption it receives.
type Meter struct {
	shared.BaseEntity
	AccountID            uuid.UUID
	SerialNumber         string
	Type                 MeterType
	Category             string // tariff category, e.g. "residential"
	Status               MeterStatus
	ParentMeterID        *uuid.UUID
	AllocationPercentage decimal.Decimal
}

// NewMeter creates a new active meter
func NewMeter(accountID uuid.UUID, serialNumber string, meterType MeterType, category string) (*Meter, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ACCOUNT", "Account ID cannot be empty")
	}
	serialNumber = strings.TrimSpace(serialNumber)
	if serialNumber == "" {
		return nil, shared.NewDomainError("INVALID_SERIAL_NUMBER", "Meter serial number cannot be empty")
	}
	if !meterType.IsValid() {
		return nil, shared.NewDomainError("INVALID_METER_TYPE", fmt.Sprintf("Unknown meter type %q", meterType))
	}
	return &Meter{
		BaseEntity:   shared.NewBaseEntity(),
		AccountID:    accountID,
		SerialNumber: serialNumber,
		Type:         meterType,
		Category:     strings.TrimSpace(category),
		Status:       MeterStatusActive,
	}, nil
}

// NewSubMeter creates an individual meter fed by the given bulk meter
func NewSubMeter(parent *Meter, accountID uuid.UUID, serialNumber, category string, percentage decimal.Decimal) (*Meter, error) {
	if parent == nil || !parent.IsBulk() {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Sub-meters can only be attached to a bulk meter")
	}
	if err := ValidateAllocationPercentage(percentage); err != nil {
		return nil, err
	}
	m, err := NewMeter(accountID, serialNumber, MeterTypeIndividual, category)
	if err != nil {
		return nil, err
	}
	parentID := parent.ID
	m.ParentMeterID = &parentID
	m.AllocationPercentage = percentage
	return m, nil
}

// ValidateAllocationPercentage checks that a share lies in (0, 100]
func ValidateAllocationPercentage(pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return NewInvalidAllocationPercentageError(fmt.Sprintf("Allocation percentage %s must be greater than 0 and at most 100", pct.String()))
	}
	return nil
}

// IsBulk returns true for bulk meters
func (m *Meter) IsBulk() bool {
	return m.Type == MeterTypeBulk
}

// IsActive returns true if the meter takes part in billing
func (m *Meter) IsActive() bool {
	return m.Status == MeterStatusActive
}

// IsSubMeter returns true if the meter is fed by a bulk meter
func (m *Meter) IsSubMeter() bool {
	return m.ParentMeterID != nil
}

// Deactivate removes the meter from billing and distribution
func (m *Meter) Deactivate() {
	m.Status = MeterStatusInactive
	m.Touch()
}
