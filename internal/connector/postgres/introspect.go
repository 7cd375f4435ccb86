package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// columnRow holds a row from information_schema.columns.
type columnRow struct {
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	UDTName    string  `db:"udt_name"`
	MaxLength  *int64  `db:"character_maximum_length"`
	Precision  *int64  `db:"numeric_precision"`
	Scale      *int64  `db:"numeric_scale"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	IsIdentity string  `db:"is_identity"`
}

// indexRow holds one column of one index from pg_index.
type indexRow struct {
	IndexName  string `db:"index_name"`
	ColumnName string `db:"column_name"`
	IsUnique   bool   `db:"is_unique"`
	IsPrimary  bool   `db:"is_primary"`
	IndexType  string `db:"index_type"`
}

// fkRow holds one foreign key from pg_constraint.
type fkRow struct {
	ConstraintName string `db:"constraint_name"`
	ColumnName     string `db:"column_name"`
	ForeignTable   string `db:"foreign_table"`
	ForeignColumn  string `db:"foreign_column"`
	DeleteRule     string `db:"delete_rule"`
	UpdateRule     string `db:"update_rule"`
}

// GetAllTables returns the base tables of the schema, sorted.
func (c *PostgresAdapter) GetAllTables(ctx context.Context) ([]string, error) {
	const query = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var names []string
	if err := sqlx.SelectContext(ctx, c.conn, &names, query, c.schemaName); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// TableExists reports whether the schema has a base table of that name.
func (c *PostgresAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	const query = `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2 AND table_type = 'BASE TABLE'`

	var n int
	if err := sqlx.GetContext(ctx, c.conn, &n, query, c.schemaName, table); err != nil {
		return false, fmt.Errorf("table exists %q: %w", table, err)
	}
	return n > 0, nil
}

// ColumnExists reports whether the table has the column.
func (c *PostgresAdapter) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	const query = `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`

	var n int
	if err := sqlx.GetContext(ctx, c.conn, &n, query, c.schemaName, table, column); err != nil {
		return false, fmt.Errorf("column exists %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// GetTableColumns returns the table's columns in ordinal order with types
// folded into the canonical MySQL-style grammar.
func (c *PostgresAdapter) GetTableColumns(ctx context.Context, table string) ([]model.Column, error) {
	const query = `SELECT column_name, data_type, udt_name,
		character_maximum_length, numeric_precision, numeric_scale,
		is_nullable, column_default, is_identity
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	var rows []columnRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("columns of %q: %w", table, err)
	}

	indexes, err := c.GetTableIndexes(ctx, table)
	if err != nil {
		return nil, err
	}
	keys := columnKeys(indexes)

	columns := make([]model.Column, 0, len(rows))
	for _, r := range rows {
		col := columnFromRow(r)
		col.Key = keys[r.ColumnName]
		columns = append(columns, col)
	}
	return columns, nil
}

// columnFromRow converts a catalog row into a canonical column. Sequence
// and identity defaults become the auto_increment extra.
func columnFromRow(r columnRow) model.Column {
	col := model.Column{
		Name:     r.ColumnName,
		Type:     canonicalType(r),
		Nullable: r.IsNullable == "YES",
	}
	if r.IsIdentity == "YES" || (r.Default != nil && strings.HasPrefix(*r.Default, "nextval(")) {
		col.Extra = "auto_increment"
		return col
	}
	col.Default = connector.NormalizeDefault(r.Default)
	if col.Default != nil && col.Type == "tinyint(1)" {
		switch strings.ToLower(*col.Default) {
		case "true":
			col.Default = model.StringPtr("1")
		case "false":
			col.Default = model.StringPtr("0")
		}
	}
	return col
}

// canonicalType folds a PostgreSQL data type into the canonical grammar.
func canonicalType(r columnRow) string {
	switch r.DataType {
	case "character varying":
		if r.MaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *r.MaxLength)
		}
		return "varchar"
	case "character":
		if r.MaxLength != nil {
			return fmt.Sprintf("char(%d)", *r.MaxLength)
		}
		return "char"
	case "integer":
		return "int"
	case "smallint", "bigint", "text", "date", "json", "jsonb", "uuid":
		return r.DataType
	case "numeric":
		if r.Precision != nil && r.Scale != nil {
			return fmt.Sprintf("decimal(%d,%d)", *r.Precision, *r.Scale)
		}
		return "decimal"
	case "real":
		return "float"
	case "double precision":
		return "double"
	case "boolean":
		return "tinyint(1)"
	case "timestamp without time zone":
		return "timestamp"
	case "timestamp with time zone":
		return "timestamptz"
	case "time without time zone", "time with time zone":
		return "time"
	case "bytea":
		return "blob"
	case "USER-DEFINED", "ARRAY":
		return r.UDTName
	}
	return r.DataType
}

// columnKeys marks primary key columns and columns that carry a
// single-column unique index of their own.
func columnKeys(indexes []model.Index) map[string]model.KeyType {
	keys := make(map[string]model.KeyType)
	for _, idx := range indexes {
		switch {
		case idx.Primary:
			for _, col := range idx.Columns {
				keys[col] = model.KeyPrimary
			}
		case idx.Unique && len(idx.Columns) == 1:
			if keys[idx.Columns[0]] == model.KeyNone {
				keys[idx.Columns[0]] = model.KeyUnique
			}
		}
	}
	return keys
}

// GetTableIndexes returns every index on the table, the primary key
// included, with columns in key order.
func (c *PostgresAdapter) GetTableIndexes(ctx context.Context, table string) ([]model.Index, error) {
	const query = `SELECT i.relname AS index_name, a.attname AS column_name,
		ix.indisunique AS is_unique, ix.indisprimary AS is_primary,
		am.amname AS index_type
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, k.ord`

	var rows []indexRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("indexes of %q: %w", table, err)
	}
	return groupIndexes(rows), nil
}

// groupIndexes folds per-column rows, already ordered by index name and key
// position, into indexes.
func groupIndexes(rows []indexRow) []model.Index {
	indexes := []model.Index{}
	for _, r := range rows {
		n := len(indexes)
		if n > 0 && indexes[n-1].Name == r.IndexName {
			indexes[n-1].Columns = append(indexes[n-1].Columns, r.ColumnName)
			continue
		}
		indexes = append(indexes, model.Index{
			Name:    r.IndexName,
			Columns: []string{r.ColumnName},
			Unique:  r.IsUnique || r.IsPrimary,
			Primary: r.IsPrimary,
			Type:    strings.ToUpper(r.IndexType),
		})
	}
	return indexes
}

// GetTableForeignKeys returns the table's single-column foreign keys by
// constraint name.
func (c *PostgresAdapter) GetTableForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	const query = `SELECT con.conname AS constraint_name,
		a.attname AS column_name, ft.relname AS foreign_table, fa.attname AS foreign_column,
		CASE con.confdeltype WHEN 'c' THEN 'cascade' WHEN 'n' THEN 'set null'
			WHEN 'r' THEN 'restrict' WHEN 'd' THEN 'set default' ELSE '' END AS delete_rule,
		CASE con.confupdtype WHEN 'c' THEN 'cascade' WHEN 'n' THEN 'set null'
			WHEN 'r' THEN 'restrict' WHEN 'd' THEN 'set default' ELSE '' END AS update_rule
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class ft ON ft.oid = con.confrelid
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = con.confkey[1]
		WHERE con.contype = 'f' AND n.nspname = $1 AND t.relname = $2
		ORDER BY con.conname`

	var rows []fkRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query, c.schemaName, table); err != nil {
		return nil, fmt.Errorf("foreign keys of %q: %w", table, err)
	}

	fks := make([]model.ForeignKey, 0, len(rows))
	for _, r := range rows {
		fks = append(fks, model.ForeignKey{
			Name:          r.ConstraintName,
			Column:        r.ColumnName,
			ForeignTable:  r.ForeignTable,
			ForeignColumn: r.ForeignColumn,
			OnDelete:      connector.CanonicalAction(r.DeleteRule),
			OnUpdate:      connector.CanonicalAction(r.UpdateRule),
		})
	}
	return fks, nil
}

// GetTableStructure rebuilds the table's DDL from the catalog. PostgreSQL
// keeps no CREATE TABLE text, so the statements are regenerated from the
// introspected definition and joined by ";\n". A missing table yields "".
func (c *PostgresAdapter) GetTableStructure(ctx context.Context, table string) (string, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return "", err
	}
	def, err := c.tableSchema(ctx, table)
	if err != nil {
		return "", err
	}
	stmts := c.CreateTableSQL(table, def)
	return strings.Join(stmts, ";\n"), nil
}

func (c *PostgresAdapter) tableSchema(ctx context.Context, table string) (model.TableSchema, error) {
	cols, err := c.GetTableColumns(ctx, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	idx, err := c.GetTableIndexes(ctx, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	fks, err := c.GetTableForeignKeys(ctx, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	return model.TableSchema{Columns: cols, Indexes: idx, ForeignKeys: fks}, nil
}
