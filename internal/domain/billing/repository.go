package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BillRepository defines persistence for bills and their details
type BillRepository interface {
	// FindByID returns the bill with its details
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// FindActiveByAccountAndPeriod returns the non-voided bill for the period,
	// or shared.ErrNotFound
	FindActiveByAccountAndPeriod(ctx context.Context, accountID uuid.UUID, period Period) (*Bill, error)
	// FindOutstandingByAccount returns pending, partially paid and overdue
	// bills ordered by due date, then creation time, oldest first
	FindOutstandingByAccount(ctx context.Context, accountID uuid.UUID) ([]Bill, error)
	// FindByIDs returns the given bills without details
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Bill, error)
	// FindOverdueCandidates returns outstanding bills due before asOf that
	// have not been marked overdue, oldest first
	FindOverdueCandidates(ctx context.Context, asOf time.Time, limit int) ([]Bill, error)
	// Save inserts a new bill with its details
	Save(ctx context.Context, bill *Bill) error
	// Update persists the mutable header fields of a bill
	Update(ctx context.Context, bill *Bill) error
}
