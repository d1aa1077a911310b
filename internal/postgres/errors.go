package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATEs that abort a transaction without saying anything about the
// request itself; the caller may resubmit.
var retryableCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
	"57014": true, // query_canceled (statement/lock timeout)
	"57P01": true, // admin_shutdown
	"53300": true, // too_many_connections
}

// Classify turns storage failures that are safe to retry into
// apperr.Transient. Errors that already carry an apperr kind, and
// everything else, pass through untouched.
func Classify(err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Transient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if retryableCodes[pgErr.Code] || strings.HasPrefix(pgErr.Code, "08") {
			return apperr.Transient(err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return apperr.Transient(err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperr.Transient(err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique_violation on constraint
// (any constraint when name is empty).
func IsUniqueViolation(err error, name string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return name == "" || pgErr.ConstraintName == name
}
