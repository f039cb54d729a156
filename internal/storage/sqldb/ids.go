package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/jarq/jarq/internal/storage"
)

// Querier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LowestFreeID returns the smallest positive integer not used as id in table.
//
// It reads every id of the table, so it is meant to run in the same
// transaction as the insert that consumes the identifier. It returns a
// KindAllocationFailure error when the table holds duplicate or non-positive
// identifiers.
func LowestFreeID(ctx context.Context, q Querier, table string) (int, error) {
	const op = "lowest free id"
	if !tableNameRe.MatchString(table) {
		return 0, storage.NewError(storage.KindInvalid, op, table, errors.New("table name is not a plain identifier"))
	}
	rows, err := q.QueryContext(ctx, "SELECT id FROM "+table)
	if err != nil {
		return 0, daoFailure(op, table, err)
	}
	defer func() { _ = rows.Close() }()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return 0, daoFailure(op, table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, daoFailure(op, table, err)
	}
	id, err := lowestFree(ids)
	if err != nil {
		return 0, storage.NewError(storage.KindAllocationFailure, op, table, err)
	}
	return id, nil
}

// lowestFree returns the smallest positive integer absent from ids. ids is
// sorted in place.
func lowestFree(ids []int) (int, error) {
	slices.Sort(ids)
	for i, id := range ids {
		if id <= 0 {
			return 0, fmt.Errorf("non-positive identifier %d", id)
		}
		if i > 0 && ids[i-1] == id {
			return 0, fmt.Errorf("duplicate identifier %d", id)
		}
	}
	// N distinct positive values cannot cover all of 1..N+1.
	next := 0
	for candidate := 1; candidate <= len(ids)+1; candidate++ {
		if next < len(ids) && ids[next] == candidate {
			next++
			continue
		}
		return candidate, nil
	}
	return 0, fmt.Errorf("no free identifier in 1..%d", len(ids)+1)
}
