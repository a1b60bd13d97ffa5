package sql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/Skyrin/go-migrate/e"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	// Including the database/sql drivers for each supported dialect
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	ECode020101 = e.Code0201 + "01"
	ECode020102 = e.Code0201 + "02"
	ECode020103 = e.Code0201 + "03"
	ECode020104 = e.Code0201 + "04"
	ECode020105 = e.Code0201 + "05"
	ECode020106 = e.Code0201 + "06"
	ECode020107 = e.Code0201 + "07"
	ECode020108 = e.Code0201 + "08"
	ECode020109 = e.Code0201 + "09"
	ECode02010A = e.Code0201 + "0A"
	ECode02010B = e.Code0201 + "0B"
	ECode02010C = e.Code0201 + "0C"
	ECode02010D = e.Code0201 + "0D"
	ECode02010E = e.Code0201 + "0E"
	ECode02010F = e.Code0201 + "0F"
	ECode02010G = e.Code0201 + "0G"
	ECode02010H = e.Code0201 + "0H"
	ECode02010I = e.Code0201 + "0I"
)

// Connection wrapper of the *sql.DB
// If a transaction is started with BeginReturnDB, the returned copy stores it
// internally and automatically uses it when making DB calls until commit/rollback
// is executed.
//
// The pool is capped at a single open connection, so session state (advisory
// locks, search_path, transactions) always lives on the same session. While a
// transaction copy is open, calls on the parent connection block until it is
// committed or rolled back.
type Connection struct {
	DB      *sql.DB
	Dialect Dialect
	txn     *sql.Tx
}

// ConnParam connection parameters used to initialize a connection
type ConnParam struct {
	Driver      string // postgres, pgx or sqlite
	URL         string // Full connection string, takes precedence over the parts below
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SearchPath  string // Schema to put first on the search path (postgres only)
	PingRetries int    // Extra ping attempts, with exponential backoff, before giving up
}

// GetConnectionStr returns a connection string
func GetConnectionStr(cp *ConnParam) (connStr string) {
	if strings.EqualFold(cp.Driver, DriverSQLite) {
		return cp.URL
	}

	if cp.URL != "" {
		return withSearchPath(cp.URL, cp.SearchPath)
	}

	var csb strings.Builder

	_, _ = csb.WriteString("host=")
	_, _ = csb.WriteString(cp.Host)
	if cp.Port != "" {
		_, _ = csb.WriteString(" port=")
		_, _ = csb.WriteString(cp.Port)
	}
	_, _ = csb.WriteString(" user=")
	_, _ = csb.WriteString(cp.User)
	if cp.Password != "" {
		_, _ = csb.WriteString(" password=")
		_, _ = csb.WriteString(cp.Password)
	}
	_, _ = csb.WriteString(" dbname=")
	_, _ = csb.WriteString(cp.DBName)

	_, _ = csb.WriteString(" sslmode=")
	if cp.SSLMode != "" {
		_, _ = csb.WriteString(cp.SSLMode)
	} else {
		_, _ = csb.WriteString("require")
	}

	if cp.SearchPath != "" {
		_, _ = csb.WriteString(" search_path=")
		_, _ = csb.WriteString(cp.SearchPath)
	}

	return csb.String()
}

// withSearchPath adds the search_path runtime parameter to a URL or keyword/value
// connection string. Both lib/pq and pgx forward unknown parameters to the server.
func withSearchPath(connStr, searchPath string) string {
	if searchPath == "" {
		return connStr
	}

	if !strings.Contains(connStr, "://") {
		return fmt.Sprintf("%s search_path=%s", connStr, searchPath)
	}

	u, err := url.Parse(connStr)
	if err != nil {
		// Leave it to the driver to report the malformed URL
		return connStr
	}

	q := u.Query()
	if q.Get("search_path") == "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// NewConn opens a connection for the dialect matching the driver in the params
// and verifies it with a ping
func NewConn(ctx context.Context, cp *ConnParam) (conn *Connection, err error) {
	d, err := DialectForDriver(cp.Driver)
	if err != nil {
		return nil, e.W(err, ECode020101)
	}

	sqlConn, err := sql.Open(d.Driver, GetConnectionStr(cp))
	if err != nil {
		return nil, e.WWM(err, ECode020102, e.MsgDBConnectFailed)
	}
	sqlConn.SetMaxOpenConns(1)

	retries := cp.PingRetries
	if retries < 0 {
		retries = 0
	}
	var bo backoff.BackOff = backoff.NewExponentialBackOff()
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
	if err := backoff.Retry(func() error {
		if err := sqlConn.PingContext(ctx); err != nil {
			log.Debug().Err(err).Msg("[Connection.NewConn] ping failed")
			return err
		}
		return nil
	}, bo); err != nil {
		_ = sqlConn.Close()
		return nil, e.WWM(err, ECode020103, e.MsgDBPingFailed)
	}

	return &Connection{DB: sqlConn, Dialect: d}, nil
}

// NewConnFromDB wraps an already opened *sql.DB
func NewConnFromDB(db *sql.DB, d Dialect) (conn *Connection) {
	db.SetMaxOpenConns(1)
	return &Connection{DB: db, Dialect: d}
}

// Close wrapper for close
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Txn returns the underlying transaction, if currently in one
func (c *Connection) Txn() *sql.Tx {
	return c.txn
}

// BeginReturnDB begins a new transaction, returning a copy of
// the database connection with the txn already set. This copy
// should be used to call all txn commands and then discarded.
func (c *Connection) BeginReturnDB(ctx context.Context) (db *Connection, err error) {
	if c.txn != nil {
		return nil, e.WWM(nil, ECode020104, "already in a txn")
	}

	txn, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, e.W(err, ECode020105)
	}

	return &Connection{
		DB:      c.DB,
		Dialect: c.Dialect,
		txn:     txn,
	}, nil
}

// Commit wrapper for sql.Commit. If successfull, will unset the txn object
func (c *Connection) Commit() (err error) {
	if c.txn == nil {
		return e.WWM(nil, ECode020106, "not in a txn")
	}

	if err = c.txn.Commit(); err != nil {
		return e.W(err, ECode020107)
	}

	c.txn = nil

	return nil
}

// RollbackIfInTxn same as Rollback, except if it is not in a txn, it will not
// log a warning
func (c *Connection) RollbackIfInTxn() {
	if c.txn == nil {
		return
	}

	c.Rollback()
}

// Rollback wrapper for sql.Rollback - no matter what the transaction will
// be cancelled. So, we will log errors here, but will always assume the
// txn is rolled back and now unavailable
func (c *Connection) Rollback() {
	if c.txn == nil {
		log.Warn().Msg("[Connection.Rollback.1] not in txn")
		return
	}

	if err := c.txn.Rollback(); err != nil {
		log.Error().Err(err).Msg("[Connection.Rollback.2]")
	}

	c.txn = nil
}

// Query wrapper for sql.Query with automatic txn handling
func (c *Connection) Query(ctx context.Context, query string, args ...interface{}) (rows *Rows, err error) {
	var sqlRows *sql.Rows
	if c.txn != nil {
		sqlRows, err = c.txn.QueryContext(ctx, query, args...)
	} else {
		sqlRows, err = c.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode020108, fmt.Sprintf("query: %s", query))
	}

	return &Rows{
		rows:  sqlRows,
		query: query,
	}, nil
}

// Exec wrapper for sql.Exec with automatic txn handling
func (c *Connection) Exec(ctx context.Context, query string, args ...interface{}) (res sql.Result, err error) {
	if c.txn != nil {
		res, err = c.txn.ExecContext(ctx, query, args...)
	} else {
		res, err = c.DB.ExecContext(ctx, query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode020109, fmt.Sprintf("query: %s", query))
	}

	return res, nil
}

// ExecBatch executes one or more statements in a single round trip. No bind
// parameters are sent, so both Postgres drivers use the simple query protocol,
// which accepts multiple statements.
func (c *Connection) ExecBatch(ctx context.Context, batch string) (err error) {
	if strings.TrimSpace(batch) == "" {
		return nil
	}

	if _, err := c.Exec(ctx, batch); err != nil {
		return e.W(err, ECode02010A)
	}

	return nil
}

// QueryRow wrapper for sql.QueryRow with automatic txn handling
func (c *Connection) QueryRow(ctx context.Context, query string, args ...interface{}) (row *Row) {
	if c.txn != nil {
		return &Row{
			row:   c.txn.QueryRowContext(ctx, query, args...),
			query: query,
		}
	}
	return &Row{
		row:   c.DB.QueryRowContext(ctx, query, args...),
		query: query,
	}
}

// builder returns a statement builder using the dialect placeholder format
func (c *Connection) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(c.Dialect.Placeholder)
}

// Select wrapper for github.com/Masterminds/squirrel.Select
func (c *Connection) Select(columns ...string) sq.SelectBuilder {
	return c.builder().Select(columns...)
}

// Insert wrapper for github.com/Masterminds/squirrel.Insert
func (c *Connection) Insert(table string) sq.InsertBuilder {
	return c.builder().Insert(table)
}

// Delete wrapper for github.com/Masterminds/squirrel.Delete
func (c *Connection) Delete(from string) sq.DeleteBuilder {
	return c.builder().Delete(from)
}

// ToSQLAndQuery converts the select build to a SQL statement and bind parameters,
// then attempts to execute the query, returning the rows
func (c *Connection) ToSQLAndQuery(ctx context.Context, sb sq.SelectBuilder) (rows *Rows, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode02010B, fmt.Sprintf("stmt: %s", stmt))
	}

	rows, err = c.Query(ctx, stmt, bindList...)
	if err != nil {
		return nil, e.W(err, ECode02010C)
	}

	return rows, nil
}

// ToSQLAndQueryRow converts the select builder to a SQL statement and bind parameters,
// then attempts to execute the query, returning a single row
func (c *Connection) ToSQLAndQueryRow(ctx context.Context, sb sq.SelectBuilder) (row *Row, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode02010D, fmt.Sprintf("stmt: %s", stmt))
	}

	return c.QueryRow(ctx, stmt, bindList...), nil
}

// ExecInsert wrapper to generate SQL/bind list and then execute insert query
func (c *Connection) ExecInsert(ctx context.Context, ib sq.InsertBuilder) (err error) {
	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return e.W(err, ECode02010E, fmt.Sprintf("stmt: %s", stmt))
	}

	if _, err := c.Exec(ctx, stmt, bindList...); err != nil {
		return e.W(err, ECode02010F)
	}

	return nil
}

// ExecDelete wrapper to generate SQL/bind list and then execute delete query.
// Returns the number of deleted rows.
func (c *Connection) ExecDelete(ctx context.Context, delB sq.DeleteBuilder) (n int64, err error) {
	stmt, bindList, err := delB.ToSql()
	if err != nil {
		return 0, e.W(err, ECode02010G, fmt.Sprintf("stmt: %s", stmt))
	}

	res, err := c.Exec(ctx, stmt, bindList...)
	if err != nil {
		return 0, e.W(err, ECode02010H)
	}

	n, err = res.RowsAffected()
	if err != nil {
		return 0, e.W(err, ECode02010I)
	}

	return n, nil
}
