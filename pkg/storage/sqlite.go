package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/govern-go/pkg/config"
	"github.com/XiaoConstantine/govern-go/pkg/errors"
	"github.com/XiaoConstantine/govern-go/pkg/logging"
)

// Store wraps the sqlite database holding capabilities, proposals and the
// trust history. All row-level helpers accept a Querier so they compose both
// inside and outside a transaction.
type Store struct {
	db   *sql.DB
	path string
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

// Querier is the subset of *sql.DB and *sql.Tx the row helpers need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open opens (and if needed creates) the governance database.
// A path of ":memory:" opens a shared in-memory database, useful in tests.
func Open(cfg config.StorageConfig) (*Store, error) {
	dsn := cfg.Path
	busyMillis := int(cfg.BusyTimeout.Milliseconds())
	if dsn == ":memory:" {
		// Named per-store so two in-memory stores in one process never
		// share state; shared cache keeps it visible across the pool.
		dsn = fmt.Sprintf("file:memdb-%s?mode=memory&cache=shared&_busy_timeout=%d&_txlock=immediate",
			uuid.New().String(), busyMillis)
	} else {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on", dsn, busyMillis)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open database"),
			errors.Fields{"path": cfg.Path},
		)
	}

	// sqlite serializes writers; a single connection avoids spurious
	// SQLITE_BUSY on the shared in-memory database and costs nothing for a
	// short-transaction workload.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, path: cfg.Path}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to initialize schema")
	}
	return nil
}

// DB exposes the raw handle for read-only composition.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to close database connection")
	}
	return nil
}

// InTx runs fn inside a single transaction. The transaction is rolled back
// unless fn returns nil and the commit succeeds, so a failed trust-history
// append also undoes the capability write that preceded it.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin transaction")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logging.GetLogger().Error(ctx, "failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit transaction")
	}
	return nil
}

// WithRetry runs fn in a transaction, retrying the whole read-compute-write
// cycle when an optimistic-lock conflict is detected. Retries are bounded;
// when exhausted the conflict surfaces as a transient failure the caller may
// retry at its own pace.
func (s *Store) WithRetry(ctx context.Context, attempts int, fn func(tx *sql.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if cerr := errors.CheckContext(ctx, "transaction"); cerr != nil {
			return cerr
		}
		err = s.InTx(ctx, fn)
		if err == nil || !errors.HasCode(err, errors.ConflictDetected) {
			return err
		}
	}
	return errors.WithFields(
		errors.Wrap(err, errors.TransientFailure, "optimistic lock retries exhausted"),
		errors.Fields{"attempts": attempts},
	)
}
