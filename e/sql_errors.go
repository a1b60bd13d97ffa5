package e

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	// PQErr23505UniqueViolation Postgres code for unique violation
	PQErr23505UniqueViolation = "23505"
	// PQErr58030IOError Postgres code for i/o error ("could not write to temporary file")
	PQErr58030IOError = "58030"
)

// IsPQError checks if the passed error is the specified Postgres error code. Both
// lib/pq and pgx errors are recognized.
func IsPQError(err error, errorCode string) bool {
	return PQErrorCode(err) == errorCode
}

// PQErrorCode returns the Postgres SQLSTATE of the error, or an empty string
// if it did not originate from Postgres
func PQErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var pqerr *pq.Error
	var pgErr *pgconn.PgError
	if ee := AsExtendedError(err); ee != nil {
		if ee.AsError(&pqerr) {
			return string(pqerr.Code)
		}
		if ee.AsError(&pgErr) {
			return pgErr.Code
		}
		return ""
	}

	if errors.As(err, &pqerr) {
		return string(pqerr.Code)
	}
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}
