// Package migration applies and reverts SQL migration files against a ledger
// table. Basic usage:
//
// Errors should be handled, but ignored for example code
//
//	db, _ := sql.NewConn(ctx, &sql.ConnParam{Driver: sql.DriverPostgres, URL: url})
//	m, _ := migration.NewMigrator(db, migration.DefaultConfig("migrations"))
//	applied, _ := m.Up(ctx)
//	res, _ := m.Down(ctx, nil) // reverts the most recently applied migration
//
// Each file holds an "-- up" block followed by a "-- down" block:
//
//	-- up
//	CREATE TABLE account (id INT);
//	-- down
//	DROP TABLE account;
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/migration/model"
	"github.com/Skyrin/go-migrate/migration/sqlmodel"
	"github.com/Skyrin/go-migrate/sql"
)

const (
	ECode000101 = e.Code0001 + "01"
	ECode000102 = e.Code0001 + "02"
	ECode000103 = e.Code0001 + "03"
	ECode000104 = e.Code0001 + "04"
	ECode000105 = e.Code0001 + "05"
	ECode000106 = e.Code0001 + "06"
	ECode000107 = e.Code0001 + "07"
	ECode000108 = e.Code0001 + "08"
	ECode000109 = e.Code0001 + "09"
	ECode00010A = e.Code0001 + "0A"
	ECode00010B = e.Code0001 + "0B"
	ECode00010C = e.Code0001 + "0C"
	ECode00010D = e.Code0001 + "0D"
	ECode00010E = e.Code0001 + "0E"
	ECode00010F = e.Code0001 + "0F"
	ECode00010G = e.Code0001 + "0G"
	ECode00010H = e.Code0001 + "0H"
	ECode00010I = e.Code0001 + "0I"
	ECode00010J = e.Code0001 + "0J"
	ECode00010K = e.Code0001 + "0K"
	ECode00010L = e.Code0001 + "0L"
	ECode00010M = e.Code0001 + "0M"
	ECode00010N = e.Code0001 + "0N"
	ECode00010O = e.Code0001 + "0O"

	// StepAll step value reverting every applied migration
	StepAll = -1

	DefaultDir = "migrations"
)

// Event actions
const (
	EventApplied  = "applied"
	EventReverted = "reverted"
	EventMissing  = "missing"
)

// Event reports progress of a run, one per migration
type Event struct {
	Action string
	ID     string
	File   *File // nil for EventMissing
}

// Config settings of a migrator
type Config struct {
	Dir           string      // Migration directory
	FS            fs.FS       // Optional, read instead of Dir when set
	Schema        string      // Schema of the ledger table, ignored by dialects without schemas
	Table         string      // Ledger table name
	IDPolicy      IDPolicy    // How identifiers are derived from file names
	Transactional bool        // Run each execute and ledger write in one transaction
	Lock          bool        // Hold a lock for the duration of Up and Down
	Progress      func(Event) // Optional, called after each migration
}

// DefaultConfig returns the default settings for the directory
func DefaultConfig(dir string) Config {
	if dir == "" {
		dir = DefaultDir
	}

	return Config{
		Dir:           dir,
		Schema:        sqlmodel.MigrationDefaultSchema,
		Table:         sqlmodel.MigrationDefaultTable,
		IDPolicy:      IDPolicy{Kind: IDFullFilename, Separator: DefaultIDSeparator},
		Transactional: true,
		Lock:          true,
	}
}

// DownResult the outcome of a Down run
type DownResult struct {
	Reverted []string // Identifiers reverted, in order
	Missing  []string // Identifiers skipped because their file no longer exists
}

// Migrator reconciles the ledger with the migration files
type Migrator struct {
	db     *sql.Connection
	cfg    Config
	list   *List
	ledger *sqlmodel.Ledger
	locker Locker
	log    *Logger
}

// NewMigrator initializes a new migrator
func NewMigrator(db *sql.Connection, cfg Config) (m *Migrator, err error) {
	if db == nil {
		return nil, e.NK(e.KindConfig, ECode000101, "no database connection")
	}

	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.IDPolicy.Kind, err = ParseIDKind(string(cfg.IDPolicy.Kind)); err != nil {
		return nil, e.W(err, ECode000102)
	}

	m = &Migrator{
		db:     db,
		cfg:    cfg,
		ledger: sqlmodel.NewLedger(db, cfg.Schema, cfg.Table),
		locker: NewLocker(db),
	}

	if cfg.FS != nil {
		m.list = NewList(cfg.Dir, cfg.FS, cfg.IDPolicy)
	} else {
		m.list = NewDirList(cfg.Dir, cfg.IDPolicy)
	}
	m.log = NewLogger(m.ledger.TableName())

	return m, nil
}

// Ledger returns the ledger used by the migrator
func (m *Migrator) Ledger() *sqlmodel.Ledger {
	return m.ledger
}

// Pending returns the migration files not recorded in the ledger, in ascending
// identifier order
func (m *Migrator) Pending(ctx context.Context) (fList []*File, err error) {
	if err := m.ledger.EnsureReady(ctx); err != nil {
		return nil, e.W(err, ECode000103)
	}

	nameList, err := m.ledger.ListApplied(ctx, &sqlmodel.LedgerListParam{
		OrderBy:   model.OrderByName,
		Direction: model.DirectionAsc,
	})
	if err != nil {
		return nil, e.W(err, ECode000104)
	}

	applied := make(map[string]struct{}, len(nameList))
	for _, name := range nameList {
		applied[name] = struct{}{}
	}

	all, err := m.list.Discover()
	if err != nil {
		return nil, e.W(err, ECode000105)
	}

	fList = make([]*File, 0, len(all))
	for _, f := range all {
		if _, ok := applied[f.ID]; ok {
			continue
		}
		fList = append(fList, f)
	}

	return fList, nil
}

// Up applies every pending migration in ascending identifier order, one at a
// time. The first failure stops the run, migrations applied before it stay
// applied. Returns the files applied by this run.
func (m *Migrator) Up(ctx context.Context) (applied []*File, err error) {
	release, err := m.lock(ctx)
	if err != nil {
		return nil, e.W(err, ECode000106)
	}
	defer release()

	if err := m.ledger.EnsureReady(ctx); err != nil {
		return nil, e.W(err, ECode000107)
	}

	fList, err := m.list.Discover()
	if err != nil {
		return nil, e.W(err, ECode000108)
	}

	for _, f := range fList {
		ok, err := m.ledger.IsApplied(ctx, f.ID)
		if err != nil {
			return applied, e.W(err, ECode000109, fmt.Sprintf("id: %s", f.ID))
		}
		if ok {
			continue
		}

		p, err := m.list.ReadFile(f)
		if err != nil {
			return applied, e.W(err, ECode00010A)
		}

		m.log.Debug("applying %s", f.ID)
		if err := m.run(ctx, f.ID, p.Up, func(l *sqlmodel.Ledger) error {
			return l.RecordApplied(ctx, f.ID)
		}); err != nil {
			return applied, e.W(err, ECode00010B, fmt.Sprintf("id: %s", f.ID))
		}
		m.log.Info("applied %s", f.ID)

		applied = append(applied, f)
		m.notify(Event{Action: EventApplied, ID: f.ID, File: f})
	}

	return applied, nil
}

// Down reverts the most recently applied migrations, newest first. See
// ResolveSteps for the meaning of step. Migrations whose file no longer exists
// are skipped with a warning.
func (m *Migrator) Down(ctx context.Context, step *int) (res *DownResult, err error) {
	release, err := m.lock(ctx)
	if err != nil {
		return nil, e.W(err, ECode00010C)
	}
	defer release()

	if err := m.ledger.EnsureReady(ctx); err != nil {
		return nil, e.W(err, ECode00010D)
	}

	nameList, err := m.ledger.ListApplied(ctx, &sqlmodel.LedgerListParam{
		OrderBy:   model.OrderByAppliedAt,
		Direction: model.DirectionDesc,
	})
	if err != nil {
		return nil, e.W(err, ECode00010E)
	}

	res = &DownResult{}
	if len(nameList) == 0 {
		return res, nil
	}

	k, lenient := ResolveSteps(step, len(nameList))
	if lenient {
		m.log.Warn("step %d is not valid, reverting %d", *step, k)
	}

	// Only the files being reverted matter here, a badly named file elsewhere
	// in the directory must not block the rollback
	byID, err := m.list.Index(func(name string, err error) {
		m.log.Warn("ignoring %s: %s", name, e.UserMessage(err))
	})
	if err != nil {
		return nil, e.W(err, ECode00010F)
	}

	for _, name := range nameList[:k] {
		fl := byID[name]
		if len(fl) == 0 {
			m.missing(res, name)
			continue
		}
		if len(fl) > 1 {
			return res, e.NK(e.KindFormat, ECode00010O,
				fmt.Sprintf("%s: %s (%s, %s)", e.MsgMigrationFileNameDuplicate,
					name, fl[0].Name, fl[1].Name))
		}
		f := fl[0]

		p, err := m.list.ReadFile(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				m.missing(res, name)
				continue
			}
			return res, e.W(err, ECode00010G)
		}

		m.log.Debug("reverting %s", name)
		if err := m.run(ctx, name, p.Down, func(l *sqlmodel.Ledger) error {
			return l.RecordReverted(ctx, name)
		}); err != nil {
			return res, e.W(err, ECode00010H, fmt.Sprintf("id: %s", name))
		}
		m.log.Info("reverted %s", name)

		res.Reverted = append(res.Reverted, name)
		m.notify(Event{Action: EventReverted, ID: name, File: f})
	}

	return res, nil
}

// Status returns every ledger entry, oldest first
func (m *Migrator) Status(ctx context.Context) (eList []*model.Entry, err error) {
	if err := m.ledger.EnsureReady(ctx); err != nil {
		return nil, e.W(err, ECode00010I)
	}

	eList, err = m.ledger.Entries(ctx)
	if err != nil {
		return nil, e.W(err, ECode00010J)
	}

	return eList, nil
}

// ResolveSteps returns how many of the n applied migrations to revert for the
// step value: nil reverts one, StepAll reverts all, a positive value reverts
// that many. Any other value falls back to one and lenient is set.
func ResolveSteps(step *int, n int) (k int, lenient bool) {
	switch {
	case step == nil:
		k = 1
	case *step == StepAll:
		k = n
	case *step > 0:
		k = *step
	default:
		k, lenient = 1, true
	}

	if k > n {
		k = n
	}

	return k, lenient
}

// run executes the batch and the ledger write, in one transaction when the
// migrator is transactional
func (m *Migrator) run(ctx context.Context, id, batch string, record func(l *sqlmodel.Ledger) error) (err error) {
	if !m.cfg.Transactional {
		if err := m.db.ExecBatch(ctx, batch); err != nil {
			return execErr(err, ECode00010K, id)
		}
		return record(m.ledger)
	}

	tx, err := m.db.BeginReturnDB(ctx)
	if err != nil {
		return execErr(err, ECode00010L, id)
	}
	defer tx.RollbackIfInTxn()

	if err := tx.ExecBatch(ctx, batch); err != nil {
		return execErr(err, ECode00010M, id)
	}

	if err := record(m.ledger.WithConn(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return execErr(err, ECode00010N, id)
	}

	return nil
}

// execErr classifies a failed statement. The user message names the migration
// and carries the driver's reason.
func execErr(err error, code, id string) error {
	reason := err
	if c := e.Cause(err); c != nil {
		reason = c
	}

	return e.WK(err, e.KindExecution, code,
		fmt.Sprintf("%s: %s: %s", e.MsgMigrationExecFailed, id, reason))
}

func (m *Migrator) lock(ctx context.Context) (release func(), err error) {
	if !m.cfg.Lock {
		return func() {}, nil
	}

	return m.locker.Acquire(ctx, m.ledger.TableName())
}

func (m *Migrator) missing(res *DownResult, name string) {
	m.log.Warn("%s: %s, skipping", e.MsgMigrationFileNotFound, name)
	res.Missing = append(res.Missing, name)
	m.notify(Event{Action: EventMissing, ID: name})
}

func (m *Migrator) notify(ev Event) {
	if m.cfg.Progress != nil {
		m.cfg.Progress(ev)
	}
}
