package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/kozaktomas/attendance/internal/database"
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// stores implements database.Stores on top of a queryer. db is set only
// outside a transaction and is used to open one for multi-statement writes.
type stores struct {
	q   queryer
	db  *sqlx.DB
	dim int
}

// Store is the PostgreSQL record store.
type Store struct {
	*stores
	pool *Pool
}

var _ database.RecordStore = (*Store)(nil)

// NewStore creates a record store over an already migrated pool.
func NewStore(pool *Pool, dim int) *Store {
	if dim <= 0 {
		dim = database.DefaultEmbeddingDim
	}
	return &Store{
		stores: &stores{q: pool.db, db: pool.db, dim: dim},
		pool:   pool,
	}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// WithTransaction runs fn inside a single transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Stores) error) error {
	return runInTx(ctx, s.pool.db, nil, func(tx *sqlx.Tx) error {
		return fn(ctx, &stores{q: tx, dim: s.dim})
	})
}

// ReadSnapshot runs fn in a read-only REPEATABLE READ transaction.
func (s *Store) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, tx database.Stores) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return runInTx(ctx, s.pool.db, opts, func(tx *sqlx.Tx) error {
		return fn(ctx, &stores{q: tx, dim: s.dim})
	})
}

// runInTx commits when fn succeeds and rolls back on error or panic.
func runInTx(ctx context.Context, db *sqlx.DB, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return classify("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("Warning: rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// atomic runs fn in the current transaction, or opens one when called outside.
func (s *stores) atomic(ctx context.Context, fn func(q queryer) error) error {
	if s.db == nil {
		return fn(s.q)
	}
	return runInTx(ctx, s.db, nil, func(tx *sqlx.Tx) error {
		return fn(tx)
	})
}

// Dim returns the configured embedding dimension.
func (s *stores) Dim() int {
	return s.dim
}

// exists reports whether a row with the given id exists in table.
func exists(ctx context.Context, q queryer, table string, id int64) (bool, error) {
	var ok bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", table)
	if err := q.GetContext(ctx, &ok, query, id); err != nil {
		return false, classify("check "+table+" exists", err)
	}
	return ok, nil
}

// expectAffected turns a zero-row write into ErrNotFound.
func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, database.ErrNotFound)
	}
	return nil
}
