package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// CreateTableSQL returns the CREATE TABLE statement followed by one CREATE
// INDEX per non-primary index. A single auto-increment primary key is
// declared inline as a rowid alias.
func (c *SQLiteAdapter) CreateTableSQL(table string, def model.TableSchema) []string {
	plan := connector.PlanKeys(table, def)
	inlinePK := ""
	if len(plan.Primary) == 1 {
		if col, ok := def.Column(plan.Primary[0]); ok && col.IsAutoIncrement() {
			inlinePK = col.Name
		}
	}

	lines := make([]string, 0, len(def.Columns)+len(def.ForeignKeys)+1)
	for _, col := range def.Columns {
		if col.Name == inlinePK {
			lines = append(lines, c.QuoteIdentifier(col.Name)+" integer PRIMARY KEY AUTOINCREMENT")
			continue
		}
		lines = append(lines, c.columnDef(col))
	}
	if len(plan.Primary) > 0 && inlinePK == "" {
		lines = append(lines, "PRIMARY KEY ("+connector.QuoteList(c.QuoteIdentifier, plan.Primary)+")")
	}
	for _, fk := range def.ForeignKeys {
		lines = append(lines, "CONSTRAINT "+c.QuoteIdentifier(fk.Name)+" "+connector.ForeignKeyClause(c.QuoteIdentifier, fk))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(c.QuoteIdentifier(table))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(lines, ",\n  "))
	b.WriteString("\n)")

	stmts := []string{b.String()}
	for _, idx := range plan.Indexes {
		if s := c.CreateIndexSQL(table, idx); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// DropTableSQL returns a DROP TABLE statement.
func (c *SQLiteAdapter) DropTableSQL(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + c.QuoteIdentifier(table)
	}
	return "DROP TABLE " + c.QuoteIdentifier(table)
}

// RenameTableSQL returns an ALTER TABLE ... RENAME TO statement.
func (c *SQLiteAdapter) RenameTableSQL(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// AddColumnSQL returns an ALTER TABLE ... ADD COLUMN statement. Uniqueness
// is left to a separate index; SQLite cannot add a UNIQUE column.
func (c *SQLiteAdapter) AddColumnSQL(table string, col model.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.QuoteIdentifier(table), c.columnDef(col))
}

// DropColumnSQL returns an ALTER TABLE ... DROP COLUMN statement (3.35+)
// for a plain column. SQLite refuses to drop a key, indexed or foreign key
// column, so those are dropped by rebuilding the table without the column
// and the indexes and foreign keys that use it. A column that is part of
// the primary key takes the whole key with it. Unknown tables and columns
// get the plain statement, which fails when run.
func (c *SQLiteAdapter) DropColumnSQL(ctx context.Context, table, column string) ([]string, error) {
	native := []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.QuoteIdentifier(table), c.QuoteIdentifier(column))}

	def, err := c.tableDef(ctx, table)
	if err != nil {
		return nil, err
	}
	col, ok := def.Column(column)
	if !ok || len(def.Columns) == 1 || !needsRebuild(def, col) {
		return native, nil
	}

	kept := model.TableSchema{}
	for _, mc := range def.Columns {
		if mc.Name == column {
			continue
		}
		if col.Key == model.KeyPrimary && mc.Key == model.KeyPrimary {
			mc.Key = model.KeyNone
		}
		kept.Columns = append(kept.Columns, mc)
	}
	for _, idx := range def.Indexes {
		if !slices.Contains(idx.Columns, column) {
			kept.Indexes = append(kept.Indexes, idx)
		}
	}
	for _, fk := range def.ForeignKeys {
		if fk.Column != column {
			kept.ForeignKeys = append(kept.ForeignKeys, fk)
		}
	}
	return c.rebuildSQL(table, kept), nil
}

// needsRebuild reports whether SQLite's DROP COLUMN would reject col.
func needsRebuild(def model.TableSchema, col model.Column) bool {
	if col.Key != model.KeyNone {
		return true
	}
	for _, idx := range def.Indexes {
		if slices.Contains(idx.Columns, col.Name) {
			return true
		}
	}
	for _, fk := range def.ForeignKeys {
		if fk.Column == col.Name {
			return true
		}
	}
	return false
}

// RenameColumnSQL returns an ALTER TABLE ... RENAME COLUMN statement (3.25+).
func (c *SQLiteAdapter) RenameColumnSQL(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		c.QuoteIdentifier(table), c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// CreateIndexSQL returns a CREATE [UNIQUE] INDEX statement. SQLite cannot
// add a primary key to an existing table, so primary indexes yield "".
func (c *SQLiteAdapter) CreateIndexSQL(table string, idx model.Index) string {
	if idx.Primary {
		return ""
	}
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind,
		c.QuoteIdentifier(idx.Name), c.QuoteIdentifier(table),
		connector.QuoteList(c.QuoteIdentifier, idx.Columns))
}

// DropIndexSQL returns a DROP INDEX statement. Index names are global in
// SQLite, so the table is not needed.
func (c *SQLiteAdapter) DropIndexSQL(_ string, name string) string {
	return "DROP INDEX " + c.QuoteIdentifier(name)
}

// AddForeignKeySQL rebuilds the table with fk added: SQLite only accepts
// foreign keys in CREATE TABLE. A foreign key of the same name is replaced.
func (c *SQLiteAdapter) AddForeignKeySQL(ctx context.Context, table string, fk model.ForeignKey) ([]string, error) {
	def, err := c.tableDef(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("add foreign key %s: table %s does not exist", fk.Name, table)
	}
	if _, ok := def.Column(fk.Column); !ok {
		return nil, fmt.Errorf("add foreign key %s: column %s.%s does not exist", fk.Name, table, fk.Column)
	}

	fks := make([]model.ForeignKey, 0, len(def.ForeignKeys)+1)
	for _, existing := range def.ForeignKeys {
		if existing.Name != fk.Name {
			fks = append(fks, existing)
		}
	}
	def.ForeignKeys = append(fks, fk)
	return c.rebuildSQL(table, def), nil
}

// DropForeignKeySQL rebuilds the table without the named foreign key.
func (c *SQLiteAdapter) DropForeignKeySQL(ctx context.Context, table, name string) ([]string, error) {
	def, err := c.tableDef(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("drop foreign key %s: table %s does not exist", name, table)
	}

	fks := make([]model.ForeignKey, 0, len(def.ForeignKeys))
	for _, fk := range def.ForeignKeys {
		if fk.Name != name {
			fks = append(fks, fk)
		}
	}
	if len(fks) == len(def.ForeignKeys) {
		return nil, fmt.Errorf("drop foreign key %s: no such foreign key on %s", name, table)
	}
	def.ForeignKeys = fks
	return c.rebuildSQL(table, def), nil
}

// ModifyColumnSQL returns a table rebuild: SQLite has no ALTER COLUMN.
func (c *SQLiteAdapter) ModifyColumnSQL(ctx context.Context, table string, col model.Column) ([]string, error) {
	def, err := c.tableDef(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("modify column %s.%s: table does not exist", table, col.Name)
	}

	found := false
	for i, existing := range def.Columns {
		if existing.Name == col.Name {
			if col.Key == model.KeyNone {
				col.Key = existing.Key
			}
			def.Columns[i] = col
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("modify column %s.%s: column does not exist", table, col.Name)
	}
	return c.rebuildSQL(table, def), nil
}

// tableDef reads the table's columns, indexes and foreign keys. A missing
// table yields an empty definition.
func (c *SQLiteAdapter) tableDef(ctx context.Context, table string) (model.TableSchema, error) {
	columns, err := c.GetTableColumns(ctx, table)
	if err != nil || len(columns) == 0 {
		return model.TableSchema{}, err
	}
	indexes, err := c.GetTableIndexes(ctx, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	fks, err := c.GetTableForeignKeys(ctx, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	return model.TableSchema{Columns: columns, Indexes: indexes, ForeignKeys: fks}, nil
}

// rebuildSQL returns the statements that turn table into def: create a
// copy with the new definition, copy every row of def's columns across,
// swap the tables and recreate the indexes. Run it through ExecuteBatch to
// make the swap atomic.
func (c *SQLiteAdapter) rebuildSQL(table string, def model.TableSchema) []string {
	names := make([]string, len(def.Columns))
	for i, col := range def.Columns {
		names[i] = col.Name
	}

	tmp := tempTableName(table)
	create := c.CreateTableSQL(tmp, model.TableSchema{Columns: def.Columns, ForeignKeys: def.ForeignKeys})

	stmts := []string{create[0]}
	// Unique-column indexes generated for tmp would carry tmp's name.
	stmts = append(stmts,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			c.QuoteIdentifier(tmp), connector.QuoteList(c.QuoteIdentifier, names),
			connector.QuoteList(c.QuoteIdentifier, names), c.QuoteIdentifier(table)),
		c.DropTableSQL(table, false),
		c.RenameTableSQL(tmp, table),
	)
	for _, idx := range def.Indexes {
		stmts = append(stmts, c.CreateIndexSQL(table, idx))
	}
	for _, mc := range def.Columns {
		if mc.Key == model.KeyUnique && !indexCovers(def.Indexes, mc.Name) {
			stmts = append(stmts, c.CreateIndexSQL(table, model.Index{
				Name:    fmt.Sprintf("%s_%s_unique", table, mc.Name),
				Columns: []string{mc.Name},
				Unique:  true,
			}))
		}
	}
	return stmts
}

func indexCovers(indexes []model.Index, column string) bool {
	for _, idx := range indexes {
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == column {
			return true
		}
	}
	return false
}

// columnDef renders a column for CREATE TABLE or ADD COLUMN without key
// constraints.
func (c *SQLiteAdapter) columnDef(col model.Column) string {
	var b strings.Builder
	b.WriteString(c.QuoteIdentifier(col.Name))
	b.WriteString(" ")
	b.WriteString(nativeType(col.Type))
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(formatDefault(*col.Default))
	}
	return b.String()
}

// nativeType maps a canonical type to a declaration SQLite accepts. SQLite
// keeps declared names verbatim, so most types pass through; only syntax it
// rejects is rewritten.
func nativeType(canonical string) string {
	ct := model.ParseColumnType(canonical)
	switch ct.Base {
	case "enum":
		return "varchar(255)"
	case "set":
		return "text"
	case "jsonb":
		return "json"
	case "uuid":
		return "char(36)"
	case "":
		return "text"
	}
	// "int(10) unsigned" is not a valid SQLite type name.
	ct.Unsigned = false
	return ct.String()
}

// formatDefault wraps expression defaults in parentheses as SQLite requires.
func formatDefault(v string) string {
	lit := connector.FormatDefault(v)
	if strings.HasSuffix(lit, ")") {
		return "(" + lit + ")"
	}
	return lit
}

func tempTableName(table string) string {
	return "__safeshift_tmp_" + table
}
