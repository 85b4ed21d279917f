package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRows bulk-inserts rows into a table via the COPY protocol. Used by
// the seed importer where row counts make per-row INSERTs too slow.
func CopyRows(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// UpsertRows inserts rows one statement at a time with
// INSERT ... ON CONFLICT (keys) DO UPDATE. Suitable for the moderate
// volumes of a directory seed import where conflict handling matters more
// than raw throughput.
func UpsertRows(ctx context.Context, pool Pool, table string, columns, conflictKeys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 || len(conflictKeys) == 0 {
		return 0, eris.New("db: upsert: columns and conflict keys required")
	}

	conflictSet := make(map[string]bool, len(conflictKeys))
	for _, k := range conflictKeys {
		conflictSet[k] = true
	}
	var updates []string
	for _, c := range columns {
		if !conflictSet[c] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictKeys, ", "),
		strings.Join(updates, ", "),
	)

	var affected int64
	for i, row := range rows {
		if len(row) != len(columns) {
			return affected, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), len(columns))
		}
		tag, err := pool.Exec(ctx, sql, row...)
		if err != nil {
			return affected, eris.Wrapf(err, "db: upsert into %s", table)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}
