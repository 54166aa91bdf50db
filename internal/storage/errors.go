package storage

import (
	"errors"

	apperrors "github.com/estrella/internal/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// storeError wraps a driver failure as STORE_UNAVAILABLE. Errors that are already
// categorized pass through unchanged.
func storeError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		return err
	}
	return apperrors.NewStoreUnavailableError(operation, err)
}
