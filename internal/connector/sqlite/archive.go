package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
)

// ArchiveTable renames table to newName. It returns false when the table
// does not exist.
func (c *SQLiteAdapter) ArchiveTable(ctx context.Context, table, newName string) (bool, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return false, err
	}
	if err := c.Execute(ctx, c.RenameTableSQL(table, newName)); err != nil {
		return false, fmt.Errorf("archive table %q: %w", table, err)
	}
	return true, nil
}

// ArchiveColumn renames column to newName by rebuilding the table, which
// works for every column kind SQLite supports:
//
//  1. read the stored DDL, the column list and the row count
//  2. create a temporary table from the DDL with the column renamed
//  3. copy the rows across, skipped when the table is empty
//  4. drop the original table
//  5. rename the temporary table into place
//
// Indexes are recreated afterwards against the renamed column. The steps
// run in one transaction when the connection supports it. It returns false
// when the table or column does not exist.
func (c *SQLiteAdapter) ArchiveColumn(ctx context.Context, table, column, newName string) (bool, error) {
	exists, err := c.ColumnExists(ctx, table, column)
	if err != nil || !exists {
		return false, err
	}

	createSQL, err := c.tableSQL(ctx, table)
	if err != nil {
		return false, err
	}
	indexSQL, err := c.indexSQL(ctx, table)
	if err != nil {
		return false, err
	}
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return false, err
	}
	count, err := c.GetTableRowCount(ctx, table)
	if err != nil {
		return false, err
	}

	tmp := tempTableName(table)
	open := strings.IndexByte(createSQL, '(')
	if open < 0 {
		return false, fmt.Errorf("archive column %s.%s: unrecognized table DDL", table, column)
	}
	stmts := []string{
		"CREATE TABLE " + c.QuoteIdentifier(tmp) + " " + renameColumnRefs(createSQL[open:], column, newName, c.QuoteIdentifier),
	}

	if count > 0 {
		from := make([]string, len(info))
		to := make([]string, len(info))
		for i, col := range info {
			from[i] = col.Name
			to[i] = col.Name
			if col.Name == column {
				to[i] = newName
			}
		}
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			c.QuoteIdentifier(tmp), connector.QuoteList(c.QuoteIdentifier, to),
			connector.QuoteList(c.QuoteIdentifier, from), c.QuoteIdentifier(table)))
	}

	stmts = append(stmts, c.DropTableSQL(table, false), c.RenameTableSQL(tmp, table))

	for _, idx := range indexSQL {
		if open := strings.IndexByte(idx, '('); open >= 0 {
			stmts = append(stmts, idx[:open]+renameRefs(tokenize(idx[open:]), column, newName, c.QuoteIdentifier))
		}
	}

	if err := c.ExecuteBatch(ctx, stmts); err != nil {
		return false, fmt.Errorf("archive column %s.%s: %w", table, column, err)
	}
	return true, nil
}
