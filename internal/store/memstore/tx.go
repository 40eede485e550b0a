package memstore

import (
	"context"
	"database/sql"
	"errors"
)

var errNoSQL = errors.New("memstore: SQL is not supported")

// noopTx satisfies store.Tx so callers can use the same transactional code
// path against either backend.
type noopTx struct{}

func (noopTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (noopTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (noopTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }
