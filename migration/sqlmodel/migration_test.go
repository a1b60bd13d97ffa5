package sqlmodel

import (
	"context"
	dbsql "database/sql"
	"testing"

	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/migration/model"
	"github.com/Skyrin/go-migrate/sql"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := dbsql.Open(sql.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l := NewLedger(sql.NewConnFromDB(db, sql.SQLite), "public", "")
	require.NoError(t, l.EnsureReady(context.Background()))
	return l
}

func TestLedgerTableName(t *testing.T) {
	l := newTestLedger(t)
	require.Equal(t, `"migrations"`, l.TableName())

	pg := NewLedger(&sql.Connection{Dialect: sql.Postgres}, "tenant", "schema_log")
	require.Equal(t, `"tenant"."schema_log"`, pg.TableName())
}

func TestLedgerEnsureReadyIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordApplied(ctx, "001_a.sql"))
	require.NoError(t, l.EnsureReady(ctx))

	ok, err := l.IsApplied(ctx, "001_a.sql")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLedgerRecordAndRevert(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.IsApplied(ctx, "001_a.sql")
	require.NoError(t, err)
	require.False(t, ok)

	for _, name := range []string{"002_b.sql", "001_a.sql", "003_c.sql"} {
		require.NoError(t, l.RecordApplied(ctx, name))
	}

	err = l.RecordApplied(ctx, "001_a.sql")
	require.Error(t, err)
	require.ErrorIs(t, err, e.KindConflict)

	nameList, err := l.ListApplied(ctx, &LedgerListParam{OrderBy: model.OrderByName})
	require.NoError(t, err)
	require.Equal(t, []string{"001_a.sql", "002_b.sql", "003_c.sql"}, nameList)

	nameList, err = l.ListApplied(ctx, &LedgerListParam{
		OrderBy:   model.OrderByName,
		Direction: model.DirectionDesc,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"003_c.sql", "002_b.sql", "001_a.sql"}, nameList)

	require.NoError(t, l.RecordReverted(ctx, "002_b.sql"))
	require.NoError(t, l.RecordReverted(ctx, "002_b.sql"))

	eList, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, eList, 2)
	require.Equal(t, "001_a.sql", eList[0].Name)
	require.NotEmpty(t, eList[0].AppliedAt)
}

func TestLedgerListAppliedByAppliedAt(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Explicit timestamps, inserted out of order
	for _, row := range [][2]string{
		{"b", "2024-01-02 00:00:00"},
		{"a", "2024-01-03 00:00:00"},
		{"c", "2024-01-01 00:00:00"},
	} {
		require.NoError(t, l.db.ExecInsert(ctx, l.db.Insert(l.TableName()).
			Columns("name", "applied_at").
			Values(row[0], row[1])))
	}

	nameList, err := l.ListApplied(ctx, &LedgerListParam{
		OrderBy:   model.OrderByAppliedAt,
		Direction: model.DirectionDesc,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, nameList)

	nameList, err = l.ListApplied(ctx, &LedgerListParam{OrderBy: model.OrderByAppliedAt})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, nameList)
}

func TestLedgerListAppliedInvalidOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.ListApplied(ctx, &LedgerListParam{OrderBy: "name; DROP TABLE migrations"})
	require.Error(t, err)
	require.True(t, e.ContainsError(err, ECode00030G), err.Error())

	_, err = l.ListApplied(ctx, &LedgerListParam{Direction: "sideways"})
	require.Error(t, err)
	require.True(t, e.ContainsError(err, ECode00030F), err.Error())

	nameList, err := l.ListApplied(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, nameList)
}

func TestLedgerWithConn(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	tx, err := l.db.BeginReturnDB(ctx)
	require.NoError(t, err)
	require.NoError(t, l.WithConn(tx).RecordApplied(ctx, "001_a.sql"))
	tx.RollbackIfInTxn()

	ok, err := l.IsApplied(ctx, "001_a.sql")
	require.NoError(t, err)
	require.False(t, ok)
}
