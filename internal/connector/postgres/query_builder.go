package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// CreateTableSQL returns the CREATE TABLE statement followed by one CREATE
// INDEX per non-primary index. Auto-increment integers become serial types.
func (c *PostgresAdapter) CreateTableSQL(table string, def model.TableSchema) []string {
	plan := connector.PlanKeys(table, def)

	lines := make([]string, 0, len(def.Columns)+len(def.ForeignKeys)+1)
	for _, col := range def.Columns {
		lines = append(lines, c.columnDef(col))
	}
	if len(plan.Primary) > 0 {
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
		stmts = append(stmts, c.CreateIndexSQL(table, idx))
	}
	return stmts
}

// DropTableSQL returns a DROP TABLE statement.
func (c *PostgresAdapter) DropTableSQL(table string, ifExists bool) string {
	if ifExists {
		return "DROP TABLE IF EXISTS " + c.QuoteIdentifier(table)
	}
	return "DROP TABLE " + c.QuoteIdentifier(table)
}

// RenameTableSQL returns an ALTER TABLE ... RENAME TO statement.
func (c *PostgresAdapter) RenameTableSQL(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// AddColumnSQL returns an ALTER TABLE ... ADD COLUMN statement.
func (c *PostgresAdapter) AddColumnSQL(table string, col model.Column) string {
	s := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.QuoteIdentifier(table), c.columnDef(col))
	if col.Key == model.KeyPrimary {
		s += " PRIMARY KEY"
	}
	return s
}

// DropColumnSQL returns an ALTER TABLE ... DROP COLUMN statement.
func (c *PostgresAdapter) DropColumnSQL(_ context.Context, table, column string) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.QuoteIdentifier(table), c.QuoteIdentifier(column))}, nil
}

// RenameColumnSQL returns an ALTER TABLE ... RENAME COLUMN statement.
func (c *PostgresAdapter) RenameColumnSQL(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		c.QuoteIdentifier(table), c.QuoteIdentifier(from), c.QuoteIdentifier(to))
}

// ModifyColumnSQL returns the ALTER COLUMN statements that bring an existing
// column to col's definition: type, nullability and default are set
// separately.
func (c *PostgresAdapter) ModifyColumnSQL(_ context.Context, table string, col model.Column) ([]string, error) {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", c.QuoteIdentifier(table), c.QuoteIdentifier(col.Name))
	typ := nativeType(model.Column{Type: col.Type})

	stmts := []string{prefix + fmt.Sprintf("TYPE %s USING %s::%s", typ, c.QuoteIdentifier(col.Name), typ)}
	if col.Nullable {
		stmts = append(stmts, prefix+"DROP NOT NULL")
	} else {
		stmts = append(stmts, prefix+"SET NOT NULL")
	}
	switch {
	case col.IsAutoIncrement():
	case col.Default != nil:
		stmts = append(stmts, prefix+"SET DEFAULT "+formatDefault(typ, *col.Default))
	default:
		stmts = append(stmts, prefix+"DROP DEFAULT")
	}
	return stmts, nil
}

// CreateIndexSQL returns a CREATE [UNIQUE] INDEX statement, or an ADD
// PRIMARY KEY for primary indexes.
func (c *PostgresAdapter) CreateIndexSQL(table string, idx model.Index) string {
	cols := connector.QuoteList(c.QuoteIdentifier, idx.Columns)
	if idx.Primary {
		return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", c.QuoteIdentifier(table), cols)
	}
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	using := ""
	if m := indexMethod(idx.Type); m != "" {
		using = " USING " + m
	}
	return fmt.Sprintf("CREATE %s %s ON %s%s (%s)", kind,
		c.QuoteIdentifier(idx.Name), c.QuoteIdentifier(table), using, cols)
}

// indexMethod maps an index type to a PostgreSQL access method. btree is
// the default and is never spelled out. FULLTEXT has no column-level
// equivalent and falls back to btree.
func indexMethod(typ string) string {
	switch strings.ToUpper(typ) {
	case "HASH":
		return "hash"
	case "GIN":
		return "gin"
	case "GIST", "SPATIAL":
		return "gist"
	case "BRIN":
		return "brin"
	}
	return ""
}

// DropIndexSQL returns a DROP INDEX statement. Primary key indexes belong
// to a constraint and are dropped through it.
func (c *PostgresAdapter) DropIndexSQL(table, name string) string {
	if strings.HasSuffix(name, "_pkey") {
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", c.QuoteIdentifier(table), c.QuoteIdentifier(name))
	}
	return "DROP INDEX " + c.QuoteIdentifier(name)
}

// AddForeignKeySQL returns an ALTER TABLE ... ADD CONSTRAINT statement.
func (c *PostgresAdapter) AddForeignKeySQL(_ context.Context, table string, fk model.ForeignKey) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", c.QuoteIdentifier(table),
		c.QuoteIdentifier(fk.Name), connector.ForeignKeyClause(c.QuoteIdentifier, fk))}, nil
}

// DropForeignKeySQL returns an ALTER TABLE ... DROP CONSTRAINT statement.
func (c *PostgresAdapter) DropForeignKeySQL(_ context.Context, table, name string) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", c.QuoteIdentifier(table), c.QuoteIdentifier(name))}, nil
}

func (c *PostgresAdapter) columnDef(col model.Column) string {
	typ := nativeType(col)
	var b strings.Builder
	b.WriteString(c.QuoteIdentifier(col.Name))
	b.WriteString(" ")
	b.WriteString(typ)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil && !col.IsAutoIncrement() {
		b.WriteString(" DEFAULT ")
		b.WriteString(formatDefault(typ, *col.Default))
	}
	return b.String()
}

// nativeType maps a canonical column to its PostgreSQL declaration.
// Unsigned has no equivalent and is dropped.
func nativeType(col model.Column) string {
	ct := model.ParseColumnType(col.Type)
	if col.IsAutoIncrement() {
		switch ct.Base {
		case "bigint":
			return "bigserial"
		case "smallint", "tinyint":
			return "smallserial"
		}
		return "serial"
	}

	switch ct.Base {
	case "tinyint":
		if len(ct.Args) == 1 && ct.Args[0] == "1" {
			return "boolean"
		}
		return "smallint"
	case "bool", "boolean":
		return "boolean"
	case "smallint":
		return "smallint"
	case "mediumint", "int", "integer", "year":
		return "integer"
	case "bigint":
		return "bigint"
	case "decimal", "numeric":
		ct.Base = "numeric"
		ct.Unsigned = false
		return ct.String()
	case "float", "real":
		return "real"
	case "double", "double precision":
		return "double precision"
	case "tinytext", "mediumtext", "longtext", "text":
		return "text"
	case "enum", "set":
		return "varchar(255)"
	case "datetime", "timestamp":
		return "timestamp"
	case "tinyblob", "blob", "mediumblob", "longblob", "binary", "varbinary", "bytea":
		return "bytea"
	case "":
		return "text"
	}
	ct.Unsigned = false
	return ct.String()
}

// formatDefault renders a default for the given native type. Boolean
// defaults arrive as 0/1 in canonical form.
func formatDefault(native, v string) string {
	if native == "boolean" {
		switch strings.ToLower(v) {
		case "1", "true":
			return "true"
		case "0", "false":
			return "false"
		}
	}
	return connector.FormatDefault(v)
}
