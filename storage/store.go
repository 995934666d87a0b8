// Package storage provides the SQLite-backed artifact store.
// It handles persistence of artifacts and their derived generations, path mapping,
// stored queries, ontologies, audit entries, and translation of compiled queries to SQL.
package storage

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/artificer/db"
	"github.com/teranos/artificer/errors"
)

// timeLayout is fixed width so stored timestamps order lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// reader holds the read operations shared by SQLStore and Tx
type reader struct {
	q          Querier
	logger     *zap.SugaredLogger
	classifier Classifier
}

// SQLStore is the artifact store over a SQLite database.
// Reads run directly on the pool; writes run in a transaction (see InTx).
type SQLStore struct {
	reader
	db *sql.DB
}

// NewSQLStore creates a new SQL-based artifact store
func NewSQLStore(database *sql.DB, logger *zap.SugaredLogger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SQLStore{
		reader: reader{q: database, logger: logger},
		db:     database,
	}
}

// DB returns the underlying pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Tx is one store transaction. It carries every read and all write operations.
type Tx struct {
	reader
	tx *sql.Tx
}

// SQL exposes the raw transaction for engines that share it (graph)
func (t *Tx) SQL() *sql.Tx {
	return t.tx
}

// InTx runs fn in a single transaction: committed when fn returns nil, rolled back otherwise.
// Store errors are classified; busy and locked errors come back retryable.
func (s *SQLStore) InTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify(errors.Wrap(err, "failed to begin transaction"))
	}
	tx := &Tx{reader: reader{q: sqlTx, logger: s.logger, classifier: s.classifier}, tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warnw("Rollback failed", "error", rbErr)
		}
		return db.Classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return db.Classify(errors.Wrap(err, "failed to commit transaction"))
	}
	return nil
}

// rowsAffected returns the affected row count of res, treating driver errors as store failures
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}
