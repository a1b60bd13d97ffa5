package sql

import (
	"errors"

	"github.com/Skyrin/go-migrate/e"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsUniqueViolation checks if the error is a unique/primary key violation reported
// by any of the supported drivers
func IsUniqueViolation(err error) bool {
	if e.IsPQError(err, e.PQErr23505UniqueViolation) {
		return true
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3.SQLITE_CONSTRAINT:
			return true
		}
	}

	return false
}
