// Package dbx holds the small database/sql helpers shared by the local
// SQLite spaces and the remote Postgres gateway.
package dbx

import (
	"context"
	"database/sql"

	"github.com/vytor/hanziflash/internal/logger"
)

// DBTX is the subset of database/sql used by repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with it, and commits on success or
// rolls back on error or panic. Panics are rethrown after the rollback.
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	log := logger.FromContext(ctx).WithPrefix("tx")
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction: %v", err)
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			log.Debug("transaction rolled back due to error: %v", err)
			return
		}
		if err = tx.Commit(); err != nil {
			log.Error("failed to commit transaction: %v", err)
			return
		}
		log.Debug("transaction committed")
	}()

	err = fn(ctx, tx)
	return err
}
