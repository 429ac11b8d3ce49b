package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestNewCredit(t *testing.T) {
	paymentID := uuid.New()
	cf, err := NewCredit(uuid.New(), &paymentID, d("300"), OverpaymentDescription("TRX-1"), nil)
	require.NoError(t, err)

	assert.Equal(t, CarryForwardCredit, cf.Type)
	assert.Equal(t, CarryForwardActive, cf.Status)
	assert.True(t, cf.Balance.Equal(d("300")))
	assert.Contains(t, cf.Description, "TRX-1")

	events := cf.PullDomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeCarryForwardCreated, events[0].EventType())

	_, err = NewCredit(uuid.New(), nil, decimal.Zero, "", nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestCarryForward_ApplyAndRestore(t *testing.T) {
	cf, err := NewCredit(uuid.New(), nil, d("100"), "", nil)
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, cf.Apply(d("40"), now))
	assert.True(t, cf.Balance.Equal(d("60")))
	assert.Equal(t, CarryForwardActive, cf.Status)

	assert.True(t, errors.Is(cf.Apply(d("61"), now), ErrInsufficientCredit))

	require.NoError(t, cf.Apply(d("60"), now))
	assert.Equal(t, CarryForwardApplied, cf.Status)
	assert.NotNil(t, cf.AppliedAt)
	assert.False(t, cf.IsActive())
	assert.Error(t, cf.Apply(d("1"), now))

	require.NoError(t, cf.Restore(d("60"), now))
	assert.Equal(t, CarryForwardActive, cf.Status)
	assert.True(t, cf.Balance.Equal(d("60")))
	assert.Error(t, cf.Restore(d("41"), now), "cannot exceed the original amount")
}

func TestCarryForward_Expire(t *testing.T) {
	expires := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	cf, err := NewCredit(uuid.New(), nil, d("10"), "", &expires)
	require.NoError(t, err)

	assert.Error(t, cf.Expire(expires.AddDate(0, 0, -1)))
	assert.True(t, cf.IsUsableAt(expires.AddDate(0, 0, -1)))
	assert.False(t, cf.IsUsableAt(expires))

	require.NoError(t, cf.Expire(expires))
	assert.Equal(t, CarryForwardExpired, cf.Status)
	assert.Error(t, cf.Expire(expires))
}

func TestSums(t *testing.T) {
	billA, billB := uuid.New(), uuid.New()
	allocs := []Allocation{
		{BillID: billA, Amount: d("10"), Source: SourcePayment},
		{BillID: billA, Amount: d("5"), Source: SourceCredit},
		{BillID: billB, Amount: d("2.5"), Source: SourcePayment},
	}
	sums := SumByBill(allocs)
	assert.True(t, sums[billA].Equal(d("15")))
	assert.True(t, sums[billB].Equal(d("2.5")))
	assert.True(t, SumPaymentSourced(allocs).Equal(d("12.5")))

	_, err := NewAllocation(uuid.New(), billA, uuid.New(), decimal.Zero, "x", time.Now())
	assert.True(t, errors.Is(err, ErrInvalidAllocation))
}
