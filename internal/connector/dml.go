package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/model"
)

// insertBatchSize caps the rows per multi-row INSERT so restores of large
// tables stay under driver placeholder limits.
const insertBatchSize = 100

// QuoteFunc quotes a single identifier for a dialect.
type QuoteFunc func(string) string

// FetchRows reads every row of a table in storage order.
func FetchRows(ctx context.Context, conn Conn, quote QuoteFunc, table string) ([]model.Row, error) {
	query := "SELECT * FROM " + quote(table)
	rows, err := conn.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select from %q: %w", table, err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		m := make(map[string]interface{})
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan row of %q: %w", table, err)
		}
		// Drivers hand text back as []byte; keep it as string so rows survive
		// a round trip through JSON and YAML.
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, model.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %q: %w", table, err)
	}
	return out, nil
}

// CountRows returns SELECT COUNT(*) for the table.
func CountRows(ctx context.Context, conn Conn, quote QuoteFunc, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + quote(table)
	if err := sqlx.GetContext(ctx, conn, &n, query); err != nil {
		return 0, fmt.Errorf("count rows of %q: %w", table, err)
	}
	return n, nil
}

// CountNonNull returns the number of rows whose column is not NULL.
func CountNonNull(ctx context.Context, conn Conn, quote QuoteFunc, table, column string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(%s) FROM %s", quote(column), quote(table))
	if err := sqlx.GetContext(ctx, conn, &n, query); err != nil {
		return 0, fmt.Errorf("count non-null %s.%s: %w", table, column, err)
	}
	return n, nil
}

// BulkInsert writes rows into table using batched multi-row INSERTs. The
// column list comes from the first row, sorted for stable SQL; rows missing
// a column insert NULL. Row order is preserved.
func BulkInsert(ctx context.Context, conn Conn, quote QuoteFunc, table string, rows []model.Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", quote(table), strings.Join(quoted, ", "))
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		tuples := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*len(cols))
		for i, row := range batch {
			tuples[i] = tuple
			for _, c := range cols {
				args = append(args, row[c])
			}
		}

		query := conn.Rebind(prefix + strings.Join(tuples, ", "))
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert into %q (rows %d-%d): %w", table, start+1, end, err)
		}
	}
	return nil
}
