package metering

import (
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeBulkReadingDistributed is raised once per distributed bulk reading
const EventTypeBulkReadingDistributed = "BulkReadingDistributed"

// BulkReadingDistributedEvent is raised when a bulk reading is split across sub-meters
type BulkReadingDistributedEvent struct {
	shared.BaseDomainEvent
	BulkMeterID     uuid.UUID       `json:"bulk_meter_id"`
	BulkReadingID   uuid.UUID       `json:"bulk_reading_id"`
	BulkConsumption decimal.Decimal `json:"bulk_consumption"`
	TotalAllocated  decimal.Decimal `json:"total_allocated"`
	SubReadingIDs   []uuid.UUID     `json:"sub_reading_ids"`
}

// EventType returns the event type name
func (e *BulkReadingDistributedEvent) EventType() string {
	return EventTypeBulkReadingDistributed
}

// NewBulkReadingDistributedEvent creates the event from a distribution result
func NewBulkReadingDistributedEvent(r *DistributionResult) *BulkReadingDistributedEvent {
	ids := make([]uuid.UUID, 0, len(r.Allocations))
	for _, a := range r.Allocations {
		ids = append(ids, a.Reading.ID)
	}
	return &BulkReadingDistributedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBulkReadingDistributed, "MeterReading", r.BulkReadingID),
		BulkMeterID:     r.BulkMeterID,
		BulkReadingID:   r.BulkReadingID,
		BulkConsumption: r.BulkConsumption,
		TotalAllocated:  r.TotalAllocated,
		SubReadingIDs:   ids,
	}
}
