package metering

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeterReading(t *testing.T) {
	meterID := uuid.New()
	at := time.Date(2026, 9, 30, 17, 45, 0, 0, time.FixedZone("X", 3600))

	r, err := NewMeterReading(meterID, at, d("12.5"), ReadingTypeActual)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 9, 30), r.ReadingDate)

	_, err = NewMeterReading(meterID, at, d("-1"), ReadingTypeActual)
	assert.Error(t, err)
	_, err = NewMeterReading(meterID, at, d("1"), "guessed")
	assert.Error(t, err)
	_, err = NewMeterReading(uuid.Nil, at, d("1"), ReadingTypeActual)
	assert.Error(t, err)
}

func TestConsumption(t *testing.T) {
	meterID := uuid.New()
	prev, _ := NewMeterReading(meterID, date(2026, 8, 31), d("100"), ReadingTypeActual)
	curr, _ := NewMeterReading(meterID, date(2026, 9, 30), d("160.5"), ReadingTypeActual)
	reset, _ := NewMeterReading(meterID, date(2026, 9, 30), d("4"), ReadingTypeActual)

	c := Consumption(prev, curr)
	assert.True(t, c.Units.Equal(d("60.5")))
	assert.False(t, c.Reset)

	c = Consumption(prev, reset)
	assert.True(t, c.Units.IsZero())
	assert.True(t, c.Reset)

	c = Consumption(nil, curr)
	assert.True(t, c.Units.Equal(d("160.5")))
}

func TestMeterReading_MarkDistributed(t *testing.T) {
	r, _ := NewMeterReading(uuid.New(), date(2026, 9, 30), d("1"), ReadingTypeActual)

	require.NoError(t, r.MarkDistributed(time.Now()))
	assert.True(t, r.Distributed)
	assert.NotNil(t, r.DistributedAt)
	assert.True(t, errors.Is(r.MarkDistributed(time.Now()), ErrAlreadyDistributed))
}

func TestNewSubMeter(t *testing.T) {
	bulk, err := NewMeter(uuid.New(), "B-1", MeterTypeBulk, "")
	require.NoError(t, err)
	individual, err := NewMeter(uuid.New(), "I-1", MeterTypeIndividual, "")
	require.NoError(t, err)

	sub, err := NewSubMeter(bulk, uuid.New(), "S-1", "", d("25"))
	require.NoError(t, err)
	assert.True(t, sub.IsSubMeter())
	assert.Equal(t, bulk.ID, *sub.ParentMeterID)

	_, err = NewSubMeter(individual, uuid.New(), "S-2", "", d("25"))
	assert.Error(t, err)
	_, err = NewSubMeter(bulk, uuid.New(), "S-3", "", d("101"))
	assert.True(t, errors.Is(err, ErrInvalidAllocationPercentage))
}

func TestAccount_ChangeStatus(t *testing.T) {
	a, err := NewAccount("ACC-1", "Jane")
	require.NoError(t, err)
	assert.True(t, a.IsActive())

	require.NoError(t, a.ChangeStatus(AccountStatusSuspended))
	assert.True(t, a.Status.IsBillable())
	assert.Equal(t, 2, a.Version)

	require.NoError(t, a.ChangeStatus(AccountStatusInactive))
	assert.False(t, a.Status.IsBillable())
	assert.Error(t, a.ChangeStatus("closed"))

	_, err = NewAccount("  ", "x")
	assert.Error(t, err)
}
