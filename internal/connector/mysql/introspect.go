package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// columnRow holds the result of querying information_schema.columns for MySQL.
type columnRow struct {
	ColumnName string  `db:"COLUMN_NAME"`
	ColumnType string  `db:"COLUMN_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Default    *string `db:"COLUMN_DEFAULT"`
	ColumnKey  string  `db:"COLUMN_KEY"`
	Extra      string  `db:"EXTRA"`
}

// indexRow holds one column of an index from information_schema.statistics.
type indexRow struct {
	IndexName  string `db:"INDEX_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	NonUnique  int    `db:"NON_UNIQUE"`
	Seq        int    `db:"SEQ_IN_INDEX"`
	IndexType  string `db:"INDEX_TYPE"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	ConstraintName   string `db:"CONSTRAINT_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
	DeleteRule       string `db:"DELETE_RULE"`
	UpdateRule       string `db:"UPDATE_RULE"`
}

// GetAllTables returns a list of all base table names in the configured schema.
func (c *MySQLAdapter) GetAllTables(ctx context.Context) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var names []string
	if err := sqlx.SelectContext(ctx, c.conn, &names, query, c.schemaName); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// TableExists reports whether a base table of that name exists.
func (c *MySQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	const query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND TABLE_TYPE = 'BASE TABLE'`

	var n int
	if err := sqlx.GetContext(ctx, c.conn, &n, query, c.schemaName, table); err != nil {
		return false, fmt.Errorf("table exists %q: %w", table, err)
	}
	return n > 0, nil
}

// ColumnExists reports whether the table has the column.
func (c *MySQLAdapter) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	const query = `SELECT COUNT(*) FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME = ?`

	var n int
	if err := sqlx.GetContext(ctx, c.conn, &n, query, c.schemaName, table, column); err != nil {
		return false, fmt.Errorf("column exists %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// GetTableColumns returns the table's columns in ordinal order. COLUMN_TYPE
// is already the canonical type grammar.
func (c *MySQLAdapter) GetTableColumns(ctx context.Context, table string) ([]model.Column, error) {
	const query = `SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			COLUMN_KEY,
			EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`

	var rows []columnRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("introspect columns for %q: %w", table, err)
	}

	columns := make([]model.Column, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, columnFromRow(r))
	}
	return columns, nil
}

func columnFromRow(r columnRow) model.Column {
	col := model.Column{
		Name:     r.ColumnName,
		Type:     r.ColumnType,
		Nullable: r.IsNullable == "YES",
		Default:  connector.NormalizeDefault(r.Default),
		Extra:    normalizeExtra(r.Extra),
	}
	switch r.ColumnKey {
	case "PRI":
		col.Key = model.KeyPrimary
	case "UNI":
		col.Key = model.KeyUnique
	}
	return col
}

// normalizeExtra lower-cases EXTRA and drops MySQL 8's DEFAULT_GENERATED
// marker, which only says the default is an expression.
func normalizeExtra(extra string) string {
	e := strings.ToLower(extra)
	e = strings.ReplaceAll(e, "default_generated", "")
	return strings.Join(strings.Fields(e), " ")
}

// GetTableIndexes returns the table's indexes, including PRIMARY, with
// columns in SEQ_IN_INDEX order.
func (c *MySQLAdapter) GetTableIndexes(ctx context.Context, table string) ([]model.Index, error) {
	const query = `SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, SEQ_IN_INDEX, INDEX_TYPE
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`

	var rows []indexRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("introspect indexes for %q: %w", table, err)
	}
	return groupIndexes(rows), nil
}

// groupIndexes folds per-column statistics rows into one Index per name.
// Rows must arrive ordered by index name and sequence.
func groupIndexes(rows []indexRow) []model.Index {
	indexes := make([]model.Index, 0)
	for _, r := range rows {
		n := len(indexes)
		if n == 0 || indexes[n-1].Name != r.IndexName {
			indexes = append(indexes, model.Index{
				Name:    r.IndexName,
				Unique:  r.NonUnique == 0,
				Primary: r.IndexName == "PRIMARY",
				Type:    r.IndexType,
			})
			n++
		}
		indexes[n-1].Columns = append(indexes[n-1].Columns, r.ColumnName)
	}
	return indexes
}

// GetTableForeignKeys returns the table's foreign keys by constraint name.
func (c *MySQLAdapter) GetTableForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	const query = `SELECT
			kcu.CONSTRAINT_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			rc.DELETE_RULE,
			rc.UPDATE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

	var rows []fkRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("introspect foreign keys for %q: %w", table, err)
	}

	fks := make([]model.ForeignKey, 0, len(rows))
	for _, fk := range rows {
		fks = append(fks, model.ForeignKey{
			Name:          fk.ConstraintName,
			Column:        fk.ColumnName,
			ForeignTable:  fk.ReferencedTable,
			ForeignColumn: fk.ReferencedColumn,
			OnDelete:      connector.CanonicalAction(fk.DeleteRule),
			OnUpdate:      connector.CanonicalAction(fk.UpdateRule),
		})
	}
	return fks, nil
}

// GetTableStructure returns SHOW CREATE TABLE output, or "" when the table
// does not exist.
func (c *MySQLAdapter) GetTableStructure(ctx context.Context, table string) (string, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return "", err
	}

	var name, ddl string
	row := c.conn.QueryRowxContext(ctx, "SHOW CREATE TABLE "+c.QuoteIdentifier(table))
	if err := row.Scan(&name, &ddl); err != nil {
		return "", fmt.Errorf("show create table %q: %w", table, err)
	}
	return ddl, nil
}
