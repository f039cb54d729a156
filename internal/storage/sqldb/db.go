// Package sqldb stores users, addresses, repositories, texts and contents in
// SQLite.
//
// Row identifiers are not autoincremented: every insert takes the lowest free
// positive identifier of its table (see [LowestFreeID]), so identifiers of
// deleted rows are reused.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jarq/jarq/internal/storage"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		name TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		password_hash BLOB,
		creation_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS addresses (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		postal_code TEXT NOT NULL,
		city TEXT NOT NULL,
		street TEXT NOT NULL,
		house_no TEXT NOT NULL,
		apartment_no TEXT NOT NULL DEFAULT '',
		creation_date TEXT NOT NULL,
		last_modification_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		name TEXT NOT NULL,
		creation_date TEXT NOT NULL,
		last_modification_date TEXT NOT NULL,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS repositories_user_id ON repositories(user_id)`,
	`CREATE TABLE IF NOT EXISTS texts (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		name TEXT NOT NULL,
		creation_date TEXT NOT NULL,
		last_modification_date TEXT NOT NULL,
		repository_id INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
		history_base TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS texts_repository_id ON texts(repository_id)`,
	`CREATE TABLE IF NOT EXISTS contents (
		id INTEGER PRIMARY KEY CHECK (id > 0),
		text_id INTEGER NOT NULL REFERENCES texts(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		size INTEGER NOT NULL,
		checksum INTEGER NOT NULL,
		creation_date TEXT NOT NULL,
		last_modification_date TEXT NOT NULL,
		UNIQUE (text_id, filename)
	)`,
}

// dbtx is implemented by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs the data access operations on a connection or a transaction.
type Queries struct {
	db dbtx
}

// DB is an open database.
//
// The embedded Queries run outside of any transaction. Do not use them from
// within an InTx callback: the pool holds a single connection.
type DB struct {
	*Queries
	sql *sql.DB
}

// Open opens or creates the SQLite database at path and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, daoFailure("open", path, err)
	}
	// Single writer; also keeps foreign_keys on the only connection.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, daoFailure("apply schema", path, err)
		}
	}
	return &DB{Queries: &Queries{db: db}, sql: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.sql.Close()
}

// InTx runs fn in a transaction. The transaction is rolled back if fn returns
// an error and committed otherwise.
func (d *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return daoFailure("begin", "", err)
	}
	if err := fn(&Queries{db: tx}); err != nil {
		if err2 := tx.Rollback(); err2 != nil && !errors.Is(err2, sql.ErrTxDone) {
			return errors.Join(err, daoFailure("rollback", "", err2))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return daoFailure("commit", "", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// queryAll runs query and scans every row with scan. Rows are always closed.
func queryAll[T any](ctx context.Context, db dbtx, op, table string, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, daoFailure(op, table, err)
	}
	defer func() { _ = rows.Close() }()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, daoFailure(op, table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, daoFailure(op, table, err)
	}
	return out, nil
}

// queryOne scans a single row, mapping sql.ErrNoRows to KindNotFound.
func queryOne[T any](ctx context.Context, db dbtx, op, table string, scan func(scanner) (T, error), query string, args ...any) (T, error) {
	v, err := scan(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, storage.NewError(storage.KindNotFound, op, table, err)
		}
		return zero, daoFailure(op, table, err)
	}
	return v, nil
}

// exec runs a statement and returns the number of affected rows.
func exec(ctx context.Context, db dbtx, op, table, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, daoFailure(op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, daoFailure(op, table, err)
	}
	return n, nil
}

func daoFailure(op, table string, err error) error {
	return storage.NewError(storage.KindDaoFailure, op, table, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
