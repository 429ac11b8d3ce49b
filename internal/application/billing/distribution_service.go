package billing

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/erp/utilitybilling/internal/application/validation"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const distributionComponent = "distribution_service"

// DistributionService splits bulk meter readings across sub-meters
type DistributionService struct {
	txScope     TransactionScope
	distributor *metering.BulkMeterDistributor
	logger      *zap.Logger
	metrics     *telemetry.BillingMetrics
	now         func() time.Time
}

// NewDistributionService creates a distribution service. When
// fullAllocationRequired is set the active sub-meter percentages of a bulk
// meter must sum to exactly 100.
func NewDistributionService(txScope TransactionScope, fullAllocationRequired bool, logger *zap.Logger) *DistributionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributionService{
		txScope:     txScope,
		distributor: metering.NewBulkMeterDistributor(fullAllocationRequired),
		logger:      logger.Named(distributionComponent),
		now:         time.Now,
	}
}

// SetMetrics sets the metrics recorder (optional)
func (s *DistributionService) SetMetrics(m *telemetry.BillingMetrics) {
	s.metrics = m
}

// SetClock replaces the time source
func (s *DistributionService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Distribute splits one bulk reading. The derived sub-meter readings and the
// distributed flag on the bulk reading commit together or not at all.
//
// Every account owning the bulk meter or one of its sub-meters is locked,
// in ascending ID order, before anything is read for the calculation.
func (s *DistributionService) Distribute(ctx context.Context, req DistributeRequest) (*DistributionResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, distributionComponent, opDistribute)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReadingID, req.ReadingID.String())

	start := s.now()
	var result *metering.DistributionResult
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		reading, err := repos.Readings().FindByID(ctx, req.ReadingID)
		if err != nil {
			return err
		}
		bulkMeter, err := repos.Meters().FindByID(ctx, reading.MeterID)
		if err != nil {
			return err
		}
		subMeters, err := repos.Meters().FindSubMeters(ctx, bulkMeter.ID)
		if err != nil {
			return err
		}

		if err := lockAccounts(ctx, repos, bulkMeter, subMeters); err != nil {
			return err
		}

		// Re-read under the lock; a concurrent distribution may have won
		reading, err = repos.Readings().FindByID(ctx, req.ReadingID)
		if err != nil {
			return err
		}
		previous, err := optional(repos.Readings().FindLatestBefore(ctx, bulkMeter.ID, reading.ReadingDate))
		if err != nil {
			return err
		}

		// A sub-meter reading on the bulk date itself must be visible, so
		// the lookup bound is the following day
		dayAfter := reading.ReadingDate.AddDate(0, 0, 1)
		inputs := make([]metering.SubMeterInput, 0, len(subMeters))
		for i := range subMeters {
			sub := &subMeters[i]
			var prev *metering.MeterReading
			if sub.IsActive() {
				prev, err = optional(repos.Readings().FindLatestBefore(ctx, sub.ID, dayAfter))
				if err != nil {
					return err
				}
			}
			inputs = append(inputs, metering.SubMeterInput{Meter: sub, PreviousReading: prev})
		}

		result, err = s.distributor.Distribute(metering.DistributionInput{
			BulkMeter:           bulkMeter,
			BulkReading:         reading,
			PreviousBulkReading: previous,
			SubMeters:           inputs,
			At:                  s.now().UTC(),
		})
		if err != nil {
			return err
		}

		if err := repos.Readings().Save(ctx, result.Readings()...); err != nil {
			return err
		}
		if err := repos.Readings().Update(ctx, reading); err != nil {
			return err
		}
		return repos.Events().Record(ctx, metering.NewBulkReadingDistributedEvent(result))
	})

	outcome := telemetry.OutcomeSuccess
	if err != nil {
		outcome = telemetry.OutcomeFailed
	}
	s.metrics.RecordOperationDuration(ctx, opDistribute, outcome, s.now().Sub(start))

	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Info("Bulk distribution failed",
			zap.String("reading_id", req.ReadingID.String()),
			zap.String("code", shared.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrMeterID, result.BulkMeterID.String(),
		telemetry.SpanAttrAllocationCount, len(result.Allocations),
	)
	telemetry.SetOK(span)
	s.logger.Info("Bulk reading distributed",
		zap.String("meter_id", result.BulkMeterID.String()),
		zap.String("reading_id", result.BulkReadingID.String()),
		zap.String("consumption", result.BulkConsumption.String()),
		zap.String("unallocated", result.Unallocated.String()),
		zap.Int("sub_meters", len(result.Allocations)),
		zap.String("actor", req.Actor),
	)
	return newDistributionResponse(result), nil
}

// ValidateSetup checks the sub-meter configuration of a bulk meter without
// changing anything
func (s *DistributionService) ValidateSetup(ctx context.Context, bulkMeterID uuid.UUID) (*metering.SetupValidation, error) {
	if bulkMeterID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Bulk meter ID is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, distributionComponent, "validate_setup")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrMeterID, bulkMeterID.String())

	var v metering.SetupValidation
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		bulkMeter, err := repos.Meters().FindByID(ctx, bulkMeterID)
		if err != nil {
			return err
		}
		subMeters, err := repos.Meters().FindSubMeters(ctx, bulkMeterID)
		if err != nil {
			return err
		}
		v = s.distributor.ValidateSetup(bulkMeter, subMeters)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, "setup.valid", v.Valid)
	return &v, nil
}

func lockAccounts(ctx context.Context, repos TransactionalRepositories, bulkMeter *metering.Meter, subMeters []metering.Meter) error {
	ids := []uuid.UUID{bulkMeter.AccountID}
	for _, m := range subMeters {
		if !slices.Contains(ids, m.AccountID) {
			ids = append(ids, m.AccountID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	for _, id := range ids {
		if _, err := repos.Accounts().LockForUpdate(ctx, id); err != nil {
			return fmt.Errorf("lock account %s: %w", id, err)
		}
	}
	return nil
}
