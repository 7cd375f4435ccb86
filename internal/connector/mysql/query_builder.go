package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// CreateTableSQL returns a single CREATE TABLE statement with the primary
// key, indexes and foreign keys declared inline.
func (c *MySQLAdapter) CreateTableSQL(table string, def model.TableSchema) []string {
	plan := connector.PlanKeys(table, def)

	lines := make([]string, 0, len(def.Columns)+len(plan.Indexes)+len(def.ForeignKeys)+1)
	for _, col := range def.Columns {
		lines = append(lines, c.columnDef(col.Name, col))
	}
	if len(plan.Primary) > 0 {
		lines = append(lines, "PRIMARY KEY ("+connector.QuoteList(c.QuoteIdentifier, plan.Primary)+")")
	}
	for _, idx := range plan.Indexes {
		lines = append(lines, fmt.Sprintf("%s %s (%s)", indexKind(idx, "KEY"),
			c.QuoteIdentifier(idx.Name), connector.QuoteList(c.QuoteIdentifier, idx.Columns)))
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
	return []string{b.String()}
}

// DropTableSQL returns a DROP TABLE statement.
func (c *MySQLAdapter) DropTableSQL(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + c.QuoteIdentifier(table)
	}
	return "DROP TABLE " + c.QuoteIdentifier(table)
}

// RenameTableSQL returns a RENAME TABLE statement.
func (c *MySQLAdapter) RenameTableSQL(from, to string) string {
	return fmt.Sprintf("RENAME TABLE %s TO %s", c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// AddColumnSQL returns an ALTER TABLE ... ADD COLUMN statement. An
// auto-increment primary column carries its PRIMARY KEY inline since MySQL
// requires the key in the same statement.
func (c *MySQLAdapter) AddColumnSQL(table string, col model.Column) string {
	def := c.columnDef(col.Name, col)
	if col.Key == model.KeyPrimary && col.IsAutoIncrement() {
		def += " PRIMARY KEY"
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.QuoteIdentifier(table), def)
}

// ModifyColumnSQL returns an ALTER TABLE ... MODIFY COLUMN statement.
func (c *MySQLAdapter) ModifyColumnSQL(_ context.Context, table string, col model.Column) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s",
		c.QuoteIdentifier(table), c.columnDef(col.Name, col))}, nil
}

// DropColumnSQL returns an ALTER TABLE ... DROP COLUMN statement.
func (c *MySQLAdapter) DropColumnSQL(_ context.Context, table, column string) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.QuoteIdentifier(table), c.QuoteIdentifier(column))}, nil
}

// RenameColumnSQL returns an ALTER TABLE ... RENAME COLUMN statement
// (MySQL 8.0, MariaDB 10.5).
func (c *MySQLAdapter) RenameColumnSQL(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		c.QuoteIdentifier(table), c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// changeColumnSQL renames a column while restating its definition, which
// works on every MySQL version.
func (c *MySQLAdapter) changeColumnSQL(table, from, to string, col model.Column) string {
	return fmt.Sprintf("ALTER TABLE %s CHANGE COLUMN %s %s",
		c.QuoteIdentifier(table), c.QuoteIdentifier(from), c.columnDef(to, col))
}

// CreateIndexSQL returns an ALTER TABLE ... ADD statement for the index.
func (c *MySQLAdapter) CreateIndexSQL(table string, idx model.Index) string {
	cols := connector.QuoteList(c.QuoteIdentifier, idx.Columns)
	if idx.Primary {
		return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", c.QuoteIdentifier(table), cols)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s (%s)", c.QuoteIdentifier(table),
		indexKind(idx, "INDEX"), c.QuoteIdentifier(idx.Name), cols)
}

// DropIndexSQL returns an ALTER TABLE ... DROP statement. The index named
// PRIMARY is the primary key.
func (c *MySQLAdapter) DropIndexSQL(table, name string) string {
	if strings.EqualFold(name, "PRIMARY") {
		return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", c.QuoteIdentifier(table))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", c.QuoteIdentifier(table), c.QuoteIdentifier(name))
}

// AddForeignKeySQL returns an ALTER TABLE ... ADD CONSTRAINT statement.
func (c *MySQLAdapter) AddForeignKeySQL(_ context.Context, table string, fk model.ForeignKey) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", c.QuoteIdentifier(table),
		c.QuoteIdentifier(fk.Name), connector.ForeignKeyClause(c.QuoteIdentifier, fk))}, nil
}

// DropForeignKeySQL returns an ALTER TABLE ... DROP FOREIGN KEY statement.
func (c *MySQLAdapter) DropForeignKeySQL(_ context.Context, table, name string) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", c.QuoteIdentifier(table), c.QuoteIdentifier(name))}, nil
}

// columnDef renders `name type [NOT] NULL [DEFAULT x] [extra]` without key
// constraints.
func (c *MySQLAdapter) columnDef(name string, col model.Column) string {
	var b strings.Builder
	b.WriteString(c.QuoteIdentifier(name))
	b.WriteString(" ")
	b.WriteString(nativeType(col.Type))
	if col.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(connector.FormatDefault(*col.Default))
	}
	if col.IsAutoIncrement() {
		b.WriteString(" AUTO_INCREMENT")
	}
	if strings.Contains(strings.ToLower(col.Extra), "on update current_timestamp") {
		b.WriteString(" ON UPDATE CURRENT_TIMESTAMP")
	}
	return b.String()
}

// nativeType maps the few canonical types MySQL does not spell the same way.
func nativeType(canonical string) string {
	ct := model.ParseColumnType(canonical)
	switch ct.Base {
	case "jsonb":
		return "json"
	case "uuid":
		return "char(36)"
	case "":
		return "text"
	}
	return canonical
}

// indexKind returns the index keyword: UNIQUE, FULLTEXT, SPATIAL or the
// plain keyword ("KEY" in CREATE TABLE, "INDEX" in ALTER TABLE).
func indexKind(idx model.Index, plain string) string {
	switch strings.ToUpper(idx.Type) {
	case "FULLTEXT":
		return "FULLTEXT " + plain
	case "SPATIAL":
		return "SPATIAL " + plain
	}
	if idx.Unique {
		return "UNIQUE " + plain
	}
	return plain
}
