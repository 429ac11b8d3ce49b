package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes that mean another transaction holds what we need
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

// translateError maps driver and gorm errors onto domain errors. Errors it
// does not recognize are returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(shared.CodeAlreadyExists, "Resource already exists: "+err.Error())
	}
	if isContention(err) {
		return shared.NewDomainError(shared.CodeContention, fmt.Sprintf("%s: %v", shared.ErrContention.Message, err))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return shared.NewDomainError(shared.CodeAlreadyExists, "Resource already exists: "+pgErr.ConstraintName)
	}
	return err
}

// isContention reports lock waits that ran out, deadlocks, serialization
// failures and a busy sqlite database
func isContention(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// isAlreadyExists reports a translated unique constraint violation
func isAlreadyExists(err error) bool {
	return errors.Is(err, shared.ErrAlreadyExists)
}
