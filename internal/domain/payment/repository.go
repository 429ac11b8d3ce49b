package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for payments
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	// FindByAccount returns the account's payments, newest received first
	FindByAccount(ctx context.Context, accountID uuid.UUID) ([]Payment, error)
	// Save inserts a payment; a duplicate reference fails with shared.ErrAlreadyExists
	Save(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
}
