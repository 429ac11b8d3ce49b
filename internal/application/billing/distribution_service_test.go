package billing_test

import (
	"context"
	"testing"
	"time"

	appbilling "github.com/erp/utilitybilling/internal/application/billing"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bulkSetup struct {
	bulk    *metering.Meter
	first   *metering.Meter
	second  *metering.Meter
	reading *metering.MeterReading
}

func (f *fixture) bulkMeter(firstPct, secondPct string) bulkSetup {
	f.t.Helper()
	ctx := context.Background()
	meters := persistence.NewGormMeterRepository(f.db)

	owner := f.account("BLK-1")
	bulk, err := metering.NewMeter(owner.ID, "SN-BULK", metering.MeterTypeBulk, "residential")
	require.NoError(f.t, err)
	require.NoError(f.t, meters.Save(ctx, bulk))

	first, err := metering.NewSubMeter(bulk, f.account("FLAT-1").ID, "SN-SUB-1", "residential", d(firstPct))
	require.NoError(f.t, err)
	require.NoError(f.t, meters.Save(ctx, first))
	second, err := metering.NewSubMeter(bulk, f.account("FLAT-2").ID, "SN-SUB-2", "residential", d(secondPct))
	require.NoError(f.t, err)
	require.NoError(f.t, meters.Save(ctx, second))

	f.reading(bulk.ID, day(2026, time.June, 30), "1000")
	current := f.reading(bulk.ID, day(2026, time.July, 31), "1100")
	return bulkSetup{bulk: bulk, first: first, second: second, reading: current}
}

func newDistributionService(f *fixture) *appbilling.DistributionService {
	svc := appbilling.NewDistributionService(f.scope, true, nil)
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func TestDistribute_SplitsBulkConsumption(t *testing.T) {
	f := newFixture(t, policy.DefaultEngineConfig())
	setup := f.bulkMeter("60", "40")
	// The second flat already has a history, its derived reading continues from it
	f.reading(setup.second.ID, day(2026, time.June, 30), "250")
	svc := newDistributionService(f)
	ctx := context.Background()

	resp, err := svc.Distribute(ctx, appbilling.DistributeRequest{ReadingID: setup.reading.ID, Actor: "meter-ops"})
	require.NoError(t, err)

	assertMoney(t, "100", resp.BulkConsumption)
	assertMoney(t, "100", resp.TotalAllocated)
	assertMoney(t, "0", resp.Unallocated)
	require.Len(t, resp.Allocations, 2)

	byMeter := map[uuid.UUID]metering.SubMeterAllocation{}
	for _, a := range resp.Allocations {
		byMeter[a.MeterID] = a
	}
	assertMoney(t, "60", byMeter[setup.first.ID].AllocatedConsumption)
	assertMoney(t, "60", byMeter[setup.first.ID].Reading.Value)
	assertMoney(t, "40", byMeter[setup.second.ID].AllocatedConsumption)
	assertMoney(t, "290", byMeter[setup.second.ID].Reading.Value)

	readings := persistence.NewGormReadingRepository(f.db)
	derived, err := readings.FindLatestInRange(ctx, setup.first.ID, july.Start(), july.End())
	require.NoError(t, err)
	assert.Equal(t, metering.ReadingTypeCalculated, derived.Type)
	require.NotNil(t, derived.SourceReadingID)
	assert.Equal(t, setup.reading.ID, *derived.SourceReadingID)

	bulkReading, err := readings.FindByID(ctx, setup.reading.ID)
	require.NoError(t, err)
	assert.True(t, bulkReading.Distributed)

	_, err = svc.Distribute(ctx, appbilling.DistributeRequest{ReadingID: setup.reading.ID, Actor: "meter-ops"})
	require.Error(t, err)
	assert.ErrorIs(t, err, metering.ErrAlreadyDistributed)
}

func TestDistribute_DerivedReadingsAreBillable(t *testing.T) {
	f := newFixture(t, policy.DefaultEngineConfig())
	setup := f.bulkMeter("60", "40")
	ctx := context.Background()

	_, err := newDistributionService(f).Distribute(ctx, appbilling.DistributeRequest{ReadingID: setup.reading.ID, Actor: "meter-ops"})
	require.NoError(t, err)

	bill, err := f.engine.Generate(ctx, appbilling.GenerateBillRequest{AccountID: setup.first.AccountID, Period: july, Actor: "scheduler"})
	require.NoError(t, err)
	// 60 units: 10*50 + 40*75 + 10*100
	assertMoney(t, "4500", bill.TotalAmount)
}

func TestDistribute_RejectsPartialAllocation(t *testing.T) {
	f := newFixture(t, policy.DefaultEngineConfig())
	setup := f.bulkMeter("60", "30")
	ctx := context.Background()

	_, err := newDistributionService(f).Distribute(ctx, appbilling.DistributeRequest{ReadingID: setup.reading.ID, Actor: "meter-ops"})
	require.Error(t, err)
	assert.Equal(t, metering.CodeInvalidAllocationPercentage, shared.ErrorCode(err))

	bulkReading, err := persistence.NewGormReadingRepository(f.db).FindByID(ctx, setup.reading.ID)
	require.NoError(t, err)
	assert.False(t, bulkReading.Distributed, "nothing commits on failure")
}

func TestValidateSetup(t *testing.T) {
	f := newFixture(t, policy.DefaultEngineConfig())
	setup := f.bulkMeter("60", "30")
	svc := newDistributionService(f)

	v, err := svc.ValidateSetup(context.Background(), setup.bulk.ID)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Errors)
	assertMoney(t, "90", v.TotalPercentage)
	assert.Equal(t, 2, v.ActiveSubMeters)

	_, err = svc.ValidateSetup(context.Background(), uuid.Nil)
	assert.Equal(t, shared.CodeInvalidInput, shared.ErrorCode(err))
}
