package sqlmodel

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/migration/model"
	"github.com/Skyrin/go-migrate/sql"
)

const (
	MigrationDefaultTable  = "migrations"
	MigrationDefaultSchema = "public"

	ECode000301 = e.Code0003 + "01"
	ECode000302 = e.Code0003 + "02"
	ECode000303 = e.Code0003 + "03"
	ECode000304 = e.Code0003 + "04"
	ECode000305 = e.Code0003 + "05"
	ECode000306 = e.Code0003 + "06"
	ECode000307 = e.Code0003 + "07"
	ECode000308 = e.Code0003 + "08"
	ECode000309 = e.Code0003 + "09"
	ECode00030A = e.Code0003 + "0A"
	ECode00030B = e.Code0003 + "0B"
	ECode00030C = e.Code0003 + "0C"
	ECode00030D = e.Code0003 + "0D"
	ECode00030E = e.Code0003 + "0E"
	ECode00030F = e.Code0003 + "0F"
	ECode00030G = e.Code0003 + "0G"
)

// Ledger the durable record of applied migrations. It is the only writer of the
// ledger table. Every call is a single round trip, nothing is cached.
type Ledger struct {
	db     *sql.Connection
	schema string
	table  string
}

// LedgerListParam list params
type LedgerListParam struct {
	OrderBy   string // model.OrderByName or model.OrderByAppliedAt
	Direction string // model.DirectionAsc or model.DirectionDesc
}

// NewLedger initializes a ledger stored in schema.table. The schema is dropped
// when the dialect has no schemas.
func NewLedger(db *sql.Connection, schema, table string) (l *Ledger) {
	if table == "" {
		table = MigrationDefaultTable
	}
	if !db.Dialect.SupportsSchema {
		schema = ""
	}

	return &Ledger{
		db:     db,
		schema: schema,
		table:  table,
	}
}

// WithConn returns a copy of the ledger using the passed connection, typically a
// transaction returned by BeginReturnDB
func (l *Ledger) WithConn(db *sql.Connection) *Ledger {
	return &Ledger{
		db:     db,
		schema: l.schema,
		table:  l.table,
	}
}

// TableName returns the quoted, schema qualified ledger table name
func (l *Ledger) TableName() string {
	return l.db.Dialect.QuoteIdentifier(l.schema, l.table)
}

// EnsureReady creates the schema (if configured) and the ledger table if they do
// not exist. Safe to call repeatedly.
func (l *Ledger) EnsureReady(ctx context.Context) (err error) {
	// public always exists and creating it requires CREATE on the database
	if l.schema != "" && l.schema != MigrationDefaultSchema {
		stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s",
			l.db.Dialect.QuoteIdentifier(l.schema))
		if _, err := l.db.Exec(ctx, stmt); err != nil {
			return e.WK(err, e.KindExecution, ECode000301, e.MsgMigrationLedgerUnavailable)
		}
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		applied_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, l.TableName(), l.db.Dialect.TimestampType)
	if _, err := l.db.Exec(ctx, stmt); err != nil {
		return e.WK(err, e.KindExecution, ECode000302, e.MsgMigrationLedgerUnavailable)
	}

	return nil
}

// IsApplied checks if a ledger row exists for the name
func (l *Ledger) IsApplied(ctx context.Context, name string) (applied bool, err error) {
	sb := l.db.Select("1").
		From(l.TableName()).
		Where(sq.Eq{"name": name}).
		Limit(1)

	row, err := l.db.ToSQLAndQueryRow(ctx, sb)
	if err != nil {
		return false, e.W(err, ECode000303)
	}

	var one int
	if err := row.Scan(&one); err != nil {
		if sql.IsNoRows(err) {
			return false, nil
		}
		return false, e.W(err, ECode000304, fmt.Sprintf("name: %s", name))
	}

	return true, nil
}

// ListApplied returns the applied names in the requested order. Ties on
// applied_at are broken by name in the same direction, so rows recorded within
// the same clock tick keep their application order.
func (l *Ledger) ListApplied(ctx context.Context, p *LedgerListParam) (nameList []string, err error) {
	orderBy, err := orderClause(p)
	if err != nil {
		return nil, e.W(err, ECode000305)
	}

	sb := l.db.Select("name").
		From(l.TableName()).
		OrderBy(orderBy...)

	rows, err := l.db.ToSQLAndQuery(ctx, sb)
	if err != nil {
		return nil, e.W(err, ECode000306)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, e.W(err, ECode000307)
		}
		nameList = append(nameList, name)
	}

	if err := rows.Err(); err != nil {
		return nil, e.W(err, ECode000308)
	}

	return nameList, nil
}

// RecordApplied inserts the ledger row for the name. A duplicate means another
// writer raced this one and is reported as a conflict.
func (l *Ledger) RecordApplied(ctx context.Context, name string) (err error) {
	ib := l.db.Insert(l.TableName()).
		Columns("name").
		Values(name)

	if err := l.db.ExecInsert(ctx, ib); err != nil {
		if sql.IsUniqueViolation(err) {
			return e.WK(err, e.KindConflict, ECode000309,
				e.MsgMigrationAlreadyApplied, fmt.Sprintf("name: %s", name))
		}
		return e.W(err, ECode00030A, fmt.Sprintf("name: %s", name))
	}

	return nil
}

// RecordReverted deletes the ledger row for the name. Deleting a name that is
// not recorded is not an error.
func (l *Ledger) RecordReverted(ctx context.Context, name string) (err error) {
	db := l.db.Delete(l.TableName()).
		Where(sq.Eq{"name": name})

	if _, err := l.db.ExecDelete(ctx, db); err != nil {
		return e.W(err, ECode00030B, fmt.Sprintf("name: %s", name))
	}

	return nil
}

// Entries returns every ledger row, oldest first
func (l *Ledger) Entries(ctx context.Context) (eList []*model.Entry, err error) {
	sb := l.db.Select("name", "CAST(applied_at AS TEXT)").
		From(l.TableName()).
		OrderBy("applied_at ASC", "name ASC")

	rows, err := l.db.ToSQLAndQuery(ctx, sb)
	if err != nil {
		return nil, e.W(err, ECode00030C)
	}
	defer rows.Close()

	for rows.Next() {
		en := &model.Entry{}
		if err := rows.Scan(&en.Name, &en.AppliedAt); err != nil {
			return nil, e.W(err, ECode00030D)
		}
		eList = append(eList, en)
	}

	if err := rows.Err(); err != nil {
		return nil, e.W(err, ECode00030E)
	}

	return eList, nil
}

// orderClause validates the ordering, only known columns and directions are
// allowed into the statement
func orderClause(p *LedgerListParam) (clause []string, err error) {
	if p == nil {
		p = &LedgerListParam{}
	}

	dir := strings.ToUpper(p.Direction)
	switch dir {
	case "":
		dir = "ASC"
	case "ASC", "DESC":
	default:
		return nil, e.N(ECode00030F, e.MsgMigrationLedgerOrderInvalid)
	}

	switch p.OrderBy {
	case "", model.OrderByName:
		return []string{"name " + dir}, nil
	case model.OrderByAppliedAt:
		return []string{"applied_at " + dir, "name " + dir}, nil
	}

	return nil, e.N(ECode00030G, e.MsgMigrationLedgerOrderInvalid)
}
