package sql

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-migrate/e"
	"github.com/lib/pq"
)

const (
	ECode020401 = e.Code0204 + "01"

	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite"
)

// Dialect describes the differences between the supported backing stores
type Dialect struct {
	Name           string               // Dialect name, postgres or sqlite
	Driver         string               // The database/sql driver name
	Placeholder    sq.PlaceholderFormat // Bind parameter format used by the statement builders
	SupportsSchema bool                 // Whether CREATE SCHEMA and schema qualified names are available
	TimestampType  string               // Column type used for timestamps
	AdvisoryLock   bool                 // Whether pg_advisory_lock is available
}

var (
	// Postgres dialect using github.com/lib/pq
	Postgres = Dialect{
		Name:           "postgres",
		Driver:         DriverPostgres,
		Placeholder:    sq.Dollar,
		SupportsSchema: true,
		TimestampType:  "TIMESTAMPTZ",
		AdvisoryLock:   true,
	}

	// PGX dialect using github.com/jackc/pgx/v5/stdlib
	PGX = Dialect{
		Name:           "postgres",
		Driver:         DriverPGX,
		Placeholder:    sq.Dollar,
		SupportsSchema: true,
		TimestampType:  "TIMESTAMPTZ",
		AdvisoryLock:   true,
	}

	// SQLite dialect using modernc.org/sqlite
	SQLite = Dialect{
		Name:          "sqlite",
		Driver:        DriverSQLite,
		Placeholder:   sq.Question,
		TimestampType: "TIMESTAMP",
	}
)

// DialectForDriver returns the dialect registered for the driver name
func DialectForDriver(driver string) (d Dialect, err error) {
	switch strings.ToLower(driver) {
	case "", DriverPostgres, "postgresql":
		return Postgres, nil
	case DriverPGX:
		return PGX, nil
	case DriverSQLite, "sqlite3":
		return SQLite, nil
	}

	return Dialect{}, e.NK(e.KindConfig, ECode020401, e.MsgConfigDriverInvalid)
}

// QuoteIdentifier quotes each non empty part and joins them with a dot, e.g.
// ("public", "migrations") => "public"."migrations"
func (d Dialect) QuoteIdentifier(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		quoted = append(quoted, pq.QuoteIdentifier(p))
	}

	return strings.Join(quoted, ".")
}
