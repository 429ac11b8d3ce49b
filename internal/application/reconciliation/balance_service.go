package reconciliation

import (
	"context"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	balanceComponent = "balance_service"

	// DefaultHistoryPageSize is used when a history request names no page size
	DefaultHistoryPageSize = 20
	// MaxHistoryPageSize caps the history page size
	MaxHistoryPageSize = 100
)

// BalanceService serves the read-only account projections. Each call reads
// one consistent snapshot; nothing is written.
type BalanceService struct {
	txScope TransactionScope
	cache   BalanceCache
	logger  *zap.Logger
	now     func() time.Time
}

// NewBalanceService creates a balance service. cache may be nil.
func NewBalanceService(txScope TransactionScope, cache BalanceCache, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{
		txScope: txScope,
		cache:   cache,
		logger:  logger.Named(balanceComponent),
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (s *BalanceService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetAccountBalance returns the account balance, served from the cache when
// a snapshot is present
func (s *BalanceService) GetAccountBalance(ctx context.Context, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account ID is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, balanceComponent, "get_balance")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, accountID)
		if err != nil {
			s.logger.Warn("Balance cache read failed", zap.String("account_id", accountID.String()), zap.Error(err))
		} else if cached != nil {
			telemetry.AddEvent(span, "cache.hit")
			telemetry.SetOK(span)
			return cached, nil
		}
	}

	var balance ledger.AccountBalance
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Accounts().FindByID(ctx, accountID); err != nil {
			return err
		}
		var err error
		balance, err = accountBalance(ctx, repos, accountID, s.now().UTC())
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, &balance); err != nil {
			s.logger.Warn("Balance cache write failed", zap.String("account_id", accountID.String()), zap.Error(err))
		}
	}
	telemetry.SetOK(span)
	return &balance, nil
}

// GetAgingReport buckets the account's outstanding balances by days past due
func (s *BalanceService) GetAgingReport(ctx context.Context, accountID uuid.UUID) (*ledger.AgingReport, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account ID is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, balanceComponent, "get_aging")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())

	var report ledger.AgingReport
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Accounts().FindByID(ctx, accountID); err != nil {
			return err
		}
		bills, err := repos.Bills().FindOutstandingByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		allocated, err := repos.Allocations().SumByBills(ctx, billIDs(bills))
		if err != nil {
			return err
		}
		report = ledger.BuildAgingReport(accountID, bills, allocated, s.now().UTC())
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return &report, nil
}

// GetPaymentHistory returns one page of the account's payments, newest
// first, each with its allocations
func (s *BalanceService) GetPaymentHistory(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*shared.Paginated[ledger.PaymentHistoryEntry], error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account ID is required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultHistoryPageSize
	}
	if pageSize > MaxHistoryPageSize {
		pageSize = MaxHistoryPageSize
	}

	ctx, span := telemetry.StartServiceSpan(ctx, balanceComponent, "get_history")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())

	var history shared.Paginated[ledger.PaymentHistoryEntry]
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Accounts().FindByID(ctx, accountID); err != nil {
			return err
		}
		payments, err := repos.Payments().FindByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		allocations, err := repos.Allocations().FindByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		history = ledger.BuildPaymentHistory(payments, allocations, page, pageSize)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetOK(span)
	return &history, nil
}
