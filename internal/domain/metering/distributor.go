package metering

import (
	"fmt"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubMeterInput is a sub-meter together with its latest reading before the
// bulk reading date, if any
type SubMeterInput struct {
	Meter           *Meter
	PreviousReading *MeterReading
}

// DistributionInput is everything needed to split one bulk reading
type DistributionInput struct {
	BulkMeter           *Meter
	BulkReading         *MeterReading
	PreviousBulkReading *MeterReading
	SubMeters           []SubMeterInput
	At                  time.Time
}

// SubMeterAllocation is the share of bulk consumption given to one sub-meter
type SubMeterAllocation struct {
	MeterID              uuid.UUID
	Percentage           decimal.Decimal
	AllocatedConsumption decimal.Decimal
	Reading              *MeterReading
}

// DistributionResult is the outcome of splitting a bulk reading
type DistributionResult struct {
	BulkMeterID     uuid.UUID
	BulkReadingID   uuid.UUID
	BulkConsumption decimal.Decimal
	TotalAllocated  decimal.Decimal
	Unallocated     decimal.Decimal
	Allocations     []SubMeterAllocation
}

// Readings returns the derived sub-meter readings
func (r *DistributionResult) Readings() []*MeterReading {
	readings := make([]*MeterReading, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		readings = append(readings, a.Reading)
	}
	return readings
}

// SetupValidation is the result of a bulk meter pre-flight check
type SetupValidation struct {
	Valid           bool
	Errors          []string
	TotalPercentage decimal.Decimal
	ActiveSubMeters int
}

// BulkMeterDistributor splits the consumption of a bulk meter across its
// active sub-meters by allocation percentage.
type BulkMeterDistributor struct {
	fullAllocationRequired bool
}

// NewBulkMeterDistributor creates a distributor. When fullAllocationRequired
// is set, active sub-meter percentages must sum to exactly 100.
func NewBulkMeterDistributor(fullAllocationRequired bool) *BulkMeterDistributor {
	return &BulkMeterDistributor{fullAllocationRequired: fullAllocationRequired}
}

// Distribute computes the derived sub-meter readings for a bulk reading and
// marks the bulk reading as distributed. Nothing is mutated on error.
func (d *BulkMeterDistributor) Distribute(in DistributionInput) (*DistributionResult, error) {
	if in.BulkMeter == nil || in.BulkReading == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Bulk meter and reading are required")
	}
	if !in.BulkMeter.IsBulk() {
		return nil, shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Meter %s is not a bulk meter", in.BulkMeter.SerialNumber))
	}
	if in.BulkReading.MeterID != in.BulkMeter.ID {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Reading does not belong to the bulk meter")
	}
	if in.BulkReading.Distributed {
		return nil, ErrAlreadyDistributed
	}

	active := make([]SubMeterInput, 0, len(in.SubMeters))
	for _, sub := range in.SubMeters {
		if sub.Meter != nil && sub.Meter.IsActive() {
			active = append(active, sub)
		}
	}
	if len(active) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Bulk meter has no active sub-meters")
	}
	if in.PreviousBulkReading == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "No previous bulk reading to compute consumption from")
	}

	bulkConsumption := in.BulkReading.Value.Sub(in.PreviousBulkReading.Value)
	if bulkConsumption.IsNegative() {
		return nil, shared.NewDomainError(CodeNegativeConsumption,
			fmt.Sprintf("Bulk consumption is negative (%s); meter reset on a bulk meter must be corrected manually", bulkConsumption.String()))
	}

	total := decimal.Zero
	for _, sub := range active {
		if err := ValidateAllocationPercentage(sub.Meter.AllocationPercentage); err != nil {
			return nil, err
		}
		if sub.PreviousReading != nil && !sub.PreviousReading.ReadingDate.Before(in.BulkReading.ReadingDate) {
			return nil, shared.NewDomainError(CodeDuplicateReading,
				fmt.Sprintf("Sub-meter %s already has a reading on or after %s", sub.Meter.SerialNumber, in.BulkReading.ReadingDate.Format("2006-01-02")))
		}
		total = total.Add(sub.Meter.AllocationPercentage)
	}
	if total.GreaterThan(hundred) {
		return nil, NewInvalidAllocationPercentageError(fmt.Sprintf("Sub-meter percentages sum to %s, above 100", total.String()))
	}
	if d.fullAllocationRequired && !total.Equal(hundred) {
		return nil, NewInvalidAllocationPercentageError(fmt.Sprintf("Sub-meter percentages sum to %s, full allocation requires 100", total.String()))
	}

	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	shares := allocateShares(bulkConsumption, active, total.Equal(hundred))

	result := &DistributionResult{
		BulkMeterID:     in.BulkMeter.ID,
		BulkReadingID:   in.BulkReading.ID,
		BulkConsumption: bulkConsumption,
		TotalAllocated:  decimal.Zero,
		Allocations:     make([]SubMeterAllocation, 0, len(active)),
	}
	sourceID := in.BulkReading.ID
	for i, sub := range active {
		value := shares[i]
		if sub.PreviousReading != nil {
			value = sub.PreviousReading.Value.Add(shares[i])
		}
		reading, err := NewMeterReading(sub.Meter.ID, in.BulkReading.ReadingDate, value, ReadingTypeCalculated)
		if err != nil {
			return nil, err
		}
		reading.SourceReadingID = &sourceID

		result.Allocations = append(result.Allocations, SubMeterAllocation{
			MeterID:              sub.Meter.ID,
			Percentage:           sub.Meter.AllocationPercentage,
			AllocatedConsumption: shares[i],
			Reading:              reading,
		})
		result.TotalAllocated = result.TotalAllocated.Add(shares[i])
	}
	result.Unallocated = bulkConsumption.Sub(result.TotalAllocated)

	if err := in.BulkReading.MarkDistributed(at); err != nil {
		return nil, err
	}
	return result, nil
}

// allocateShares rounds each share to 2 places. With a full 100% split the
// last sub-meter absorbs the rounding difference so the shares sum exactly to
// the bulk consumption; otherwise the last share is trimmed if rounding ever
// pushes the sum past it.
func allocateShares(bulk decimal.Decimal, subs []SubMeterInput, full bool) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(subs))
	sum := decimal.Zero
	for i, sub := range subs {
		shares[i] = bulk.Mul(sub.Meter.AllocationPercentage).Div(hundred).Round(2)
		sum = sum.Add(shares[i])
	}
	last := len(shares) - 1
	switch {
	case full:
		shares[last] = decimal.Max(decimal.Zero, bulk.Sub(sum.Sub(shares[last])))
	case sum.GreaterThan(bulk):
		shares[last] = decimal.Max(decimal.Zero, shares[last].Sub(sum.Sub(bulk)))
	}
	return shares
}

// ValidateSetup checks a bulk meter configuration without mutating anything
func (d *BulkMeterDistributor) ValidateSetup(bulkMeter *Meter, subMeters []Meter) SetupValidation {
	v := SetupValidation{TotalPercentage: decimal.Zero}
	if bulkMeter == nil {
		v.Errors = append(v.Errors, "bulk meter is required")
		return v
	}
	if !bulkMeter.IsBulk() {
		v.Errors = append(v.Errors, fmt.Sprintf("meter %s is not a bulk meter", bulkMeter.SerialNumber))
	}
	if !bulkMeter.IsActive() {
		v.Errors = append(v.Errors, fmt.Sprintf("bulk meter %s is inactive", bulkMeter.SerialNumber))
	}

	for i := range subMeters {
		sub := &subMeters[i]
		if !sub.IsActive() {
			v.Errors = append(v.Errors, fmt.Sprintf("sub-meter %s is inactive and will be skipped", sub.SerialNumber))
			continue
		}
		v.ActiveSubMeters++
		if !sub.AllocationPercentage.IsPositive() {
			v.Errors = append(v.Errors, fmt.Sprintf("sub-meter %s has non-positive allocation percentage %s", sub.SerialNumber, sub.AllocationPercentage.String()))
		} else if sub.AllocationPercentage.GreaterThan(hundred) {
			v.Errors = append(v.Errors, fmt.Sprintf("sub-meter %s has allocation percentage %s above 100", sub.SerialNumber, sub.AllocationPercentage.String()))
		}
		v.TotalPercentage = v.TotalPercentage.Add(sub.AllocationPercentage)
	}

	if v.ActiveSubMeters == 0 {
		v.Errors = append(v.Errors, "bulk meter has no active sub-meters")
	}
	if v.TotalPercentage.GreaterThan(hundred) {
		v.Errors = append(v.Errors, fmt.Sprintf("active sub-meter percentages sum to %s, above 100", v.TotalPercentage.String()))
	} else if d.fullAllocationRequired && !v.TotalPercentage.Equal(hundred) {
		v.Errors = append(v.Errors, fmt.Sprintf("active sub-meter percentages sum to %s, full allocation requires 100", v.TotalPercentage.String()))
	}

	v.Valid = len(v.Errors) == 0
	return v
}
