package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list().
type foreignKeyRow struct {
	ID       int    `db:"id"`
	Seq      int    `db:"seq"`
	Table    string `db:"table"`
	From     string `db:"from"`
	To       string `db:"to"`
	OnUpdate string `db:"on_update"`
	OnDelete string `db:"on_delete"`
	Match    string `db:"match"`
}

// indexListRow holds a row from PRAGMA index_list().
type indexListRow struct {
	Seq     int    `db:"seq"`
	Name    string `db:"name"`
	Unique  int    `db:"unique"`
	Origin  string `db:"origin"`
	Partial int    `db:"partial"`
}

// indexInfoRow holds a row from PRAGMA index_info().
type indexInfoRow struct {
	SeqNo int     `db:"seqno"`
	CID   int     `db:"cid"`
	Name  *string `db:"name"`
}

// GetAllTables returns all user table names, sorted.
func (c *SQLiteAdapter) GetAllTables(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	var names []string
	if err := sqlx.SelectContext(ctx, c.conn, &names, query); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// TableExists reports whether a table of that name exists.
func (c *SQLiteAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	const query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if err := sqlx.GetContext(ctx, c.conn, &n, query, table); err != nil {
		return false, fmt.Errorf("table exists %q: %w", table, err)
	}
	return n > 0, nil
}

// ColumnExists reports whether the table has the column. A missing table
// reports false.
func (c *SQLiteAdapter) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := c.tableInfo(ctx, table)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.Name == column {
			return true, nil
		}
	}
	return false, nil
}

func (c *SQLiteAdapter) tableInfo(ctx context.Context, table string) ([]tableInfoRow, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdentifier(table))
	var rows []tableInfoRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query); err != nil {
		return nil, fmt.Errorf("table_info for %q: %w", table, err)
	}
	return rows, nil
}

// GetTableColumns returns the table's columns in declared order. Declared
// types are lower-cased; SQLite keeps whatever the DDL said.
func (c *SQLiteAdapter) GetTableColumns(ctx context.Context, table string) ([]model.Column, error) {
	info, err := c.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return []model.Column{}, nil
	}

	pkCols := []string{}
	for _, col := range info {
		if col.PK > 0 {
			pkCols = append(pkCols, col.Name)
		}
	}
	autoIncrCols := c.detectAutoIncrement(ctx, table, pkCols)

	uniqueCols, err := c.uniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	columns := make([]model.Column, 0, len(info))
	for _, col := range info {
		isPK := col.PK > 0
		mc := model.Column{
			Name:     col.Name,
			Type:     strings.ToLower(strings.TrimSpace(col.Type)),
			Nullable: col.NotNull == 0 && !isPK,
			Default:  connector.NormalizeDefault(col.Default),
		}
		switch {
		case isPK:
			mc.Key = model.KeyPrimary
		case uniqueCols[col.Name]:
			mc.Key = model.KeyUnique
		}
		if autoIncrCols[col.Name] {
			mc.Extra = "auto_increment"
		}
		columns = append(columns, mc)
	}
	return columns, nil
}

// uniqueColumns returns the columns covered on their own by a unique index.
func (c *SQLiteAdapter) uniqueColumns(ctx context.Context, table string) (map[string]bool, error) {
	lists, err := c.indexList(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, idx := range lists {
		if idx.Unique != 1 || idx.Origin == "pk" {
			continue
		}
		cols, err := c.indexColumns(ctx, idx.Name)
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			out[cols[0]] = true
		}
	}
	return out, nil
}

func (c *SQLiteAdapter) indexList(ctx context.Context, table string) ([]indexListRow, error) {
	query := fmt.Sprintf("PRAGMA index_list(%s)", c.QuoteIdentifier(table))
	var rows []indexListRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query); err != nil {
		return nil, fmt.Errorf("index_list for %q: %w", table, err)
	}
	return rows, nil
}

func (c *SQLiteAdapter) indexColumns(ctx context.Context, index string) ([]string, error) {
	query := fmt.Sprintf("PRAGMA index_info(%s)", c.QuoteIdentifier(index))
	var rows []indexInfoRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query); err != nil {
		return nil, fmt.Errorf("index_info for %q: %w", index, err)
	}
	cols := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Name != nil {
			cols = append(cols, *r.Name)
		}
	}
	return cols, nil
}

// GetTableIndexes returns indexes created with CREATE INDEX. Indexes SQLite
// builds implicitly for PRIMARY KEY and UNIQUE constraints are reported
// through the column Key instead; they cannot be recreated by name.
func (c *SQLiteAdapter) GetTableIndexes(ctx context.Context, table string) ([]model.Index, error) {
	lists, err := c.indexList(ctx, table)
	if err != nil {
		return nil, err
	}

	indexes := make([]model.Index, 0, len(lists))
	for _, idx := range lists {
		if idx.Origin != "c" {
			continue
		}
		cols, err := c.indexColumns(ctx, idx.Name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, model.Index{
			Name:    idx.Name,
			Columns: cols,
			Unique:  idx.Unique == 1,
		})
	}
	sortIndexes(indexes)
	return indexes, nil
}

// GetTableForeignKeys returns the table's foreign keys. SQLite does not
// name constraints in its catalog, so names are read from the stored DDL
// and derived from the column when the constraint is unnamed.
func (c *SQLiteAdapter) GetTableForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", c.QuoteIdentifier(table))
	var rows []foreignKeyRow
	if err := sqlx.SelectContext(ctx, c.conn, &rows, query); err != nil {
		return nil, fmt.Errorf("foreign_key_list for %q: %w", table, err)
	}
	if len(rows) == 0 {
		return []model.ForeignKey{}, nil
	}
	createSQL, err := c.tableSQL(ctx, table)
	if err != nil {
		return nil, err
	}
	names := foreignKeyNames(createSQL)

	fks := make([]model.ForeignKey, 0, len(rows))
	for _, fk := range rows {
		name := names[fk.From]
		if name == "" {
			name = fmt.Sprintf("fk_%s_%s", table, fk.From)
		}
		fks = append(fks, model.ForeignKey{
			Name:          name,
			Column:        fk.From,
			ForeignTable:  fk.Table,
			ForeignColumn: fk.To,
			OnDelete:      connector.CanonicalAction(fk.OnDelete),
			OnUpdate:      connector.CanonicalAction(fk.OnUpdate),
		})
	}
	return fks, nil
}

// GetTableStructure returns the stored CREATE TABLE statement followed by
// the table's CREATE INDEX statements, joined by ";\n". A missing table
// yields "".
func (c *SQLiteAdapter) GetTableStructure(ctx context.Context, table string) (string, error) {
	createSQL, err := c.tableSQL(ctx, table)
	if err != nil || createSQL == "" {
		return "", err
	}
	indexSQL, err := c.indexSQL(ctx, table)
	if err != nil {
		return "", err
	}
	return strings.Join(append([]string{createSQL}, indexSQL...), ";\n"), nil
}

func (c *SQLiteAdapter) tableSQL(ctx context.Context, table string) (string, error) {
	var stmts []string
	const query = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
	if err := sqlx.SelectContext(ctx, c.conn, &stmts, query, table); err != nil {
		return "", fmt.Errorf("structure of %q: %w", table, err)
	}
	if len(stmts) == 0 {
		return "", nil
	}
	return stmts[0], nil
}

func (c *SQLiteAdapter) indexSQL(ctx context.Context, table string) ([]string, error) {
	var stmts []string
	const query = `SELECT sql FROM sqlite_master
		WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL
		ORDER BY name`
	if err := sqlx.SelectContext(ctx, c.conn, &stmts, query, table); err != nil {
		return nil, fmt.Errorf("indexes of %q: %w", table, err)
	}
	return stmts, nil
}

// detectAutoIncrement checks if the primary key column is a rowid alias
// by inspecting the CREATE TABLE SQL in sqlite_master.
func (c *SQLiteAdapter) detectAutoIncrement(ctx context.Context, table string, pkCols []string) map[string]bool {
	result := make(map[string]bool)

	if len(pkCols) != 1 {
		return result
	}

	createSQL, err := c.tableSQL(ctx, table)
	if err != nil {
		return result
	}

	upper := strings.ToUpper(createSQL)
	// INTEGER PRIMARY KEY is implicitly an alias for rowid (auto-increment behavior)
	if strings.Contains(upper, "INTEGER PRIMARY KEY") {
		result[pkCols[0]] = true
	}

	return result
}

func sortIndexes(indexes []model.Index) {
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
}
