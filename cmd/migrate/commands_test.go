package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	dir    string
	dbPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	te := &testEnv{
		dir:    filepath.Join(root, "migrations"),
		dbPath: filepath.Join(root, "test.db"),
	}
	require.NoError(t, os.Mkdir(te.dir, 0o700))

	for _, k := range []string{
		"MIGRATION_SCHEMA", "MIGRATION_DIR", "MIGRATION_TABLE", "MIGRATION_ID_POLICY",
		"MIGRATION_ID_SEPARATOR", "MIGRATION_LOCK", "MIGRATION_TRANSACTIONAL", "DBHOST",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("MIGRATION_DRIVER", "sqlite")
	t.Setenv("MIGRATION_DATABASE_URL", te.dbPath)
	t.Setenv("MIGRATION_PING_RETRIES", "0")

	return te
}

func (te *testEnv) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(te.dir, name), []byte(content), 0o600))
}

func (te *testEnv) run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--dir", te.dir, "--log-format", "json", "--log-level", "warn"}, args...)
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func table(name string) string {
	return "-- up\nCREATE TABLE " + name + " (id INTEGER PRIMARY KEY);\n-- down\nDROP TABLE " + name + ";\n"
}

func TestCommands(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "001_a.sql", table("a"))
	te.write(t, "002_b.sql", table("b"))
	te.write(t, "README.md", "not a migration")

	code, out, _ := te.run(t, "list")
	require.Equal(t, ExitOK, code)
	require.Equal(t, filepath.Join(te.dir, "001_a.sql")+"\n"+filepath.Join(te.dir, "002_b.sql")+"\n", out)

	code, out, _ = te.run(t, "up")
	require.Equal(t, ExitOK, code)
	require.Equal(t, "Applied: 001_a.sql\nApplied: 002_b.sql\nApplied 2 migrations.\n", out)

	code, out, _ = te.run(t, "up")
	require.Equal(t, ExitOK, code)
	require.Equal(t, MsgNothingToApply+"\n", out)

	code, out, _ = te.run(t, "list")
	require.Equal(t, ExitOK, code)
	require.Equal(t, MsgNoPending+"\n", out)

	code, out, _ = te.run(t, "status")
	require.Equal(t, ExitOK, code)
	require.True(t, strings.HasPrefix(out, "NAME"), out)
	require.Contains(t, out, "001_a.sql")
	require.Contains(t, out, "002_b.sql")

	code, out, _ = te.run(t, "down")
	require.Equal(t, ExitOK, code)
	require.Equal(t, "Reverted: 002_b.sql\nReverted 1 migration.\n", out)

	te.write(t, "003_c.sql", table("c"))
	code, _, _ = te.run(t, "up")
	require.Equal(t, ExitOK, code)

	code, out, _ = te.run(t, "down", "--all")
	require.Equal(t, ExitOK, code)
	require.Equal(t, "Reverted: 003_c.sql\nReverted: 002_b.sql\nReverted: 001_a.sql\nReverted 3 migrations.\n", out)

	code, out, _ = te.run(t, "down", "--step", "2")
	require.Equal(t, ExitOK, code)
	require.Equal(t, MsgNothingToRevert+"\n", out)
}

func TestDownMissingFileWarns(t *testing.T) {
	te := newTestEnv(t)
	te.write(t, "001_a.sql", table("a"))
	te.write(t, "002_b.sql", table("b"))

	code, _, _ := te.run(t, "up")
	require.Equal(t, ExitOK, code)

	require.NoError(t, os.Remove(filepath.Join(te.dir, "002_b.sql")))

	code, out, errOut := te.run(t, "down", "--step", "-1")
	require.Equal(t, ExitOK, code)
	require.Contains(t, errOut, "Warning: Migration file not found: 002_b.sql")
	require.Equal(t, "Reverted: 001_a.sql\nReverted 1 migration.\n", out)
}

func TestDownIgnoresStrayFile(t *testing.T) {
	te := newTestEnv(t)
	t.Setenv("MIGRATION_ID_POLICY", "prefix")
	te.write(t, "001_a.sql", table("a"))

	code, _, _ := te.run(t, "up")
	require.Equal(t, ExitOK, code)

	te.write(t, "draft.sql", table("draft"))

	code, _, _ = te.run(t, "up")
	require.Equal(t, ExitFormat, code)

	code, out, _ := te.run(t, "down")
	require.Equal(t, ExitOK, code)
	require.Equal(t, "Reverted: 001\nReverted 1 migration.\n", out)
}

func TestExitCodes(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		newTestEnv(t)
		t.Setenv("MIGRATION_DATABASE_URL", "")

		code, _, errOut := (&testEnv{dir: t.TempDir()}).run(t, "list")
		require.Equal(t, ExitConfig, code)
		require.Contains(t, errOut, "MIGRATION_DATABASE_URL must be set")
	})

	t.Run("log level", func(t *testing.T) {
		te := newTestEnv(t)
		var out, errOut bytes.Buffer
		code := run(context.Background(), []string{"--dir", te.dir, "--log-level", "loud", "list"}, &out, &errOut)
		require.Equal(t, ExitConfig, code)
	})

	t.Run("io", func(t *testing.T) {
		te := newTestEnv(t)
		te.dir = filepath.Join(te.dir, "missing")

		code, _, _ := te.run(t, "up")
		require.Equal(t, ExitIO, code)
	})

	t.Run("format", func(t *testing.T) {
		te := newTestEnv(t)
		te.write(t, "001_a.sql", table("a"))
		te.write(t, "002_b.sql", "-- up\nCREATE TABLE b (id INTEGER);\n")

		code, out, _ := te.run(t, "up")
		require.Equal(t, ExitFormat, code)
		require.Equal(t, "Applied: 001_a.sql\n", out)
	})

	t.Run("execution", func(t *testing.T) {
		te := newTestEnv(t)
		te.write(t, "001_a.sql", "-- up\nCREATE TABLE (;\n-- down\nSELECT 1;\n")

		code, _, errOut := te.run(t, "up")
		require.Equal(t, ExitExecution, code)
		require.Contains(t, errOut, "Migration SQL failed to execute: 001_a.sql: ")
		require.Contains(t, errOut, "syntax error")
	})

	t.Run("unknown command", func(t *testing.T) {
		te := newTestEnv(t)
		code, _, _ := te.run(t, "sideways")
		require.Equal(t, ExitUnknown, code)
	})
}

func TestVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"version"}, &out, &errOut)
	require.Equal(t, ExitOK, code)
	require.True(t, strings.HasPrefix(out.String(), "sha: "), out.String())
}
