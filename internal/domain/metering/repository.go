package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines persistence for accounts
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// LockForUpdate loads the account and holds an exclusive row lock on it
	// until the enclosing transaction ends. It fails with shared.ErrContention
	// when the lock cannot be acquired in time.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	// FindBillableIDs returns the IDs of accounts that can be billed
	FindBillableIDs(ctx context.Context) ([]uuid.UUID, error)
	Save(ctx context.Context, account *Account) error
}

// MeterRepository defines persistence for meters
type MeterRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)
	// FindByAccount returns all meters of an account ordered by serial number
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]Meter, error)
	// FindSubMeters returns the sub-meters of a bulk meter ordered by serial number
	FindSubMeters(ctx context.Context, bulkMeterID uuid.UUID) ([]Meter, error)
	Save(ctx context.Context, meter *Meter) error
}

// ReadingRepository defines persistence for meter readings
type ReadingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*MeterReading, error)
	// FindLatestBefore returns the newest reading strictly before the date,
	// or shared.ErrNotFound
	FindLatestBefore(ctx context.Context, meterID uuid.UUID, before time.Time) (*MeterReading, error)
	// FindLatestInRange returns the newest reading with from <= date < to,
	// or shared.ErrNotFound
	FindLatestInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) (*MeterReading, error)
	// FindHistory returns up to limit readings strictly before the date, newest first
	FindHistory(ctx context.Context, meterID uuid.UUID, before time.Time, limit int) ([]MeterReading, error)
	// Save inserts new readings; a reading on an existing (meter, date) fails
	// with ErrDuplicateReading
	Save(ctx context.Context, readings ...*MeterReading) error
	Update(ctx context.Context, reading *MeterReading) error
}
