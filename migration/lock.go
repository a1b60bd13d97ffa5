package migration

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/sql"
)

const (
	ECode000501 = e.Code0005 + "01"
	ECode000502 = e.Code0005 + "02"
)

// Locker serializes migration runs. The returned release func must be called
// once the run is complete.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// localLocker shared by every migrator of the process on a store without
// advisory locks
var localLocker = &MutexLocker{}

// NewLocker returns the locker suited to the connection's dialect
func NewLocker(db *sql.Connection) Locker {
	if db.Dialect.AdvisoryLock {
		return &AdvisoryLocker{db: db}
	}
	return localLocker
}

// AdvisoryLocker session level pg_advisory_lock keyed by a hash of the key. The
// connection is limited to a single session, so lock and unlock run on the same
// backend.
type AdvisoryLocker struct {
	db *sql.Connection
}

// Acquire blocks until the advisory lock is held
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string) (release func(), err error) {
	lockID := LockID(key)

	if _, err := l.db.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return nil, e.WK(err, e.KindExecution, ECode000501, e.MsgMigrationLockFailed,
			fmt.Sprintf("lockID: %d", lockID))
	}

	return func() {
		if _, err := l.db.Exec(context.Background(),
			"SELECT pg_advisory_unlock($1)", lockID); err != nil {
			NewLogger(key).Warn("failed to release lock %d: %s", lockID, err)
		}
	}, nil
}

// MutexLocker process local lock for stores without advisory locks. It only
// serializes runs within one process, across processes SQLite's own database
// file lock is what keeps writers apart.
type MutexLocker struct {
	mu sync.Mutex
}

// Acquire takes the mutex, fails if the context is already done
func (l *MutexLocker) Acquire(ctx context.Context, _ string) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, e.WK(err, e.KindExecution, ECode000502, e.MsgMigrationLockFailed)
	}

	l.mu.Lock()
	return l.mu.Unlock, nil
}

// LockID FNV-1a hash of the key, masked to a positive int64
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
