package scheduler

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/wasteflow/wasteflow/internal/authz"
)

const (
	errorTypeDeadlineExceeded = "deadline_exceeded"
	errorTypeAuthorization    = "authorization"
	errorTypeDB               = "db"
	errorTypeBusinessRule     = "business_rule"
)

// classifyJobError buckets a job failure into a low-cardinality type
// for the run log.
func classifyJobError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return errorTypeDeadlineExceeded
	case isAuthorizationError(err):
		return errorTypeAuthorization
	case isDBError(err):
		return errorTypeDB
	default:
		return errorTypeBusinessRule
	}
}

// isRetryableJobError reports whether the failure is transient enough
// that the next scheduler cycle should simply try again.
func isRetryableJobError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authz.ErrForbidden) ||
		errors.Is(err, authz.ErrInvalidActor) ||
		errors.Is(err, authz.ErrInvalidOrganization) ||
		errors.Is(err, authz.ErrInvalidObject) ||
		errors.Is(err, authz.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
