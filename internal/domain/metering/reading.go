package metering

import (
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReadingType records how a reading value was obtained
type ReadingType string

const (
	ReadingTypeActual     ReadingType = "actual"
	ReadingTypeEstimated  ReadingType = "estimated"
	ReadingTypeCalculated ReadingType = "calculated" // derived from a bulk reading
)

// IsValid checks if the reading type is valid
func (t ReadingType) IsValid() bool {
	switch t {
	case ReadingTypeActual, ReadingTypeEstimated, ReadingTypeCalculated:
		return true
	}
	return false
}

// MeterReading is an immutable register value taken on a date.
// Readings are unique per meter and date.
type MeterReading struct {
	shared.BaseEntity
	MeterID         uuid.UUID
	ReadingDate     time.Time
	Value           decimal.Decimal
	Type            ReadingType
	SourceReadingID *uuid.UUID // bulk reading this value was derived from
	Distributed     bool       // bulk readings only; one-way
	DistributedAt   *time.Time
	NeedsReview     bool
	ReviewNote      string
}

// NewMeterReading creates a reading; the date is truncated to a calendar day
func NewMeterReading(meterID uuid.UUID, readingDate time.Time, value decimal.Decimal, readingType ReadingType) (*MeterReading, error) {
	if meterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_METER", "Meter ID cannot be empty")
	}
	if readingDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_READING_DATE", "Reading date cannot be empty")
	}
	if value.IsNegative() {
		return nil, shared.NewDomainError("INVALID_READING_VALUE", "Reading value cannot be negative")
	}
	if !readingType.IsValid() {
		return nil, shared.NewDomainError("INVALID_READING_TYPE", fmt.Sprintf("Unknown reading type %q", readingType))
	}
	return &MeterReading{
		BaseEntity:  shared.NewBaseEntity(),
		MeterID:     meterID,
		ReadingDate: DateOnly(readingDate),
		Value:       value,
		Type:        readingType,
	}, nil
}

// MarkDistributed flags a bulk reading as distributed. The flag is terminal.
func (r *MeterReading) MarkDistributed(at time.Time) error {
	if r.Distributed {
		return ErrAlreadyDistributed
	}
	r.Distributed = true
	r.DistributedAt = &at
	r.UpdatedAt = at
	return nil
}

// FlagForReview marks the reading for manual review
func (r *MeterReading) FlagForReview(note string) {
	r.NeedsReview = true
	r.ReviewNote = note
	r.Touch()
}

// IsDerived returns true if the reading was calculated from a bulk reading
func (r *MeterReading) IsDerived() bool {
	return r.SourceReadingID != nil
}

// ConsumptionResult is the consumption between two readings
type ConsumptionResult struct {
	Units decimal.Decimal
	// Reset is true when the later value is below the earlier one. The units
	// are then zero and the reading should be reviewed.
	Reset bool
}

// Consumption returns max(0, current - previous). A nil previous reading is
// treated as a zero baseline (first reading of a new meter).
func Consumption(previous, current *MeterReading) ConsumptionResult {
	if current == nil {
		return ConsumptionResult{Units: decimal.Zero}
	}
	base := decimal.Zero
	if previous != nil {
		base = previous.Value
	}
	delta := current.Value.Sub(base)
	if delta.IsNegative() {
		return ConsumptionResult{Units: decimal.Zero, Reset: true}
	}
	return ConsumptionResult{Units: delta}
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
