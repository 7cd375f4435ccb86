package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// Blueprint collects the columns, indexes and foreign keys of one Create or
// Table call. Column types use the canonical MySQL grammar; each adapter
// maps them to its native types.
type Blueprint struct {
	table    string
	creating bool
	commands []command
}

func newBlueprint(table string, creating bool) *Blueprint {
	return &Blueprint{table: table, creating: creating}
}

// command is one compiled unit of an alter-table Blueprint.
type command interface {
	compile(ctx context.Context, a connector.Adapter, table string) ([]string, error)
}

// Column adds a column of an arbitrary canonical type.
func (t *Blueprint) Column(name, typ string) *ColumnDefinition {
	def := &ColumnDefinition{col: model.Column{Name: name}, ct: model.ParseColumnType(typ)}
	t.commands = append(t.commands, addColumn{def})
	return def
}

func (t *Blueprint) increments(name, base string) *ColumnDefinition {
	return t.Column(name, base+" unsigned").AutoIncrement().Primary()
}

// ID adds the conventional "id" bigint unsigned auto-increment primary key.
func (t *Blueprint) ID() *ColumnDefinition { return t.increments("id", "bigint") }

// Increments adds an int unsigned auto-increment primary key.
func (t *Blueprint) Increments(name string) *ColumnDefinition { return t.increments(name, "int") }

// TinyIncrements adds a tinyint unsigned auto-increment primary key.
func (t *Blueprint) TinyIncrements(name string) *ColumnDefinition {
	return t.increments(name, "tinyint")
}

// SmallIncrements adds a smallint unsigned auto-increment primary key.
func (t *Blueprint) SmallIncrements(name string) *ColumnDefinition {
	return t.increments(name, "smallint")
}

// MediumIncrements adds a mediumint unsigned auto-increment primary key.
func (t *Blueprint) MediumIncrements(name string) *ColumnDefinition {
	return t.increments(name, "mediumint")
}

// BigIncrements adds a bigint unsigned auto-increment primary key.
func (t *Blueprint) BigIncrements(name string) *ColumnDefinition {
	return t.increments(name, "bigint")
}

func (t *Blueprint) TinyInteger(name string) *ColumnDefinition   { return t.Column(name, "tinyint") }
func (t *Blueprint) SmallInteger(name string) *ColumnDefinition  { return t.Column(name, "smallint") }
func (t *Blueprint) MediumInteger(name string) *ColumnDefinition { return t.Column(name, "mediumint") }
func (t *Blueprint) Integer(name string) *ColumnDefinition       { return t.Column(name, "int") }
func (t *Blueprint) BigInteger(name string) *ColumnDefinition    { return t.Column(name, "bigint") }

// Decimal adds a decimal column. Precision and scale are optional.
func (t *Blueprint) Decimal(name string, precisionScale ...int) *ColumnDefinition {
	return t.Column(name, withArgs("decimal", precisionScale...))
}

func (t *Blueprint) Float(name string) *ColumnDefinition  { return t.Column(name, "float") }
func (t *Blueprint) Double(name string) *ColumnDefinition { return t.Column(name, "double") }

// String adds a varchar column, 255 characters unless length is given.
func (t *Blueprint) String(name string, length ...int) *ColumnDefinition {
	return t.Column(name, withArgs("varchar", defaultLength(length)))
}

// Char adds a fixed-length char column, 255 characters unless length is given.
func (t *Blueprint) Char(name string, length ...int) *ColumnDefinition {
	return t.Column(name, withArgs("char", defaultLength(length)))
}

func (t *Blueprint) Text(name string) *ColumnDefinition       { return t.Column(name, "text") }
func (t *Blueprint) MediumText(name string) *ColumnDefinition { return t.Column(name, "mediumtext") }
func (t *Blueprint) LongText(name string) *ColumnDefinition   { return t.Column(name, "longtext") }

// Enum adds an enum column limited to values.
func (t *Blueprint) Enum(name string, values []string) *ColumnDefinition {
	return t.Column(name, "enum("+quoteValues(values)+")")
}

// Set adds a set column whose value is any subset of values.
func (t *Blueprint) Set(name string, values []string) *ColumnDefinition {
	return t.Column(name, "set("+quoteValues(values)+")")
}

// Boolean adds a tinyint(1) column.
func (t *Blueprint) Boolean(name string) *ColumnDefinition { return t.Column(name, "tinyint(1)") }

func (t *Blueprint) Date(name string) *ColumnDefinition        { return t.Column(name, "date") }
func (t *Blueprint) DateTime(name string) *ColumnDefinition    { return t.Column(name, "datetime") }
func (t *Blueprint) Timestamp(name string) *ColumnDefinition   { return t.Column(name, "timestamp") }
func (t *Blueprint) TimestampTz(name string) *ColumnDefinition { return t.Column(name, "timestamptz") }
func (t *Blueprint) Time(name string) *ColumnDefinition        { return t.Column(name, "time") }
func (t *Blueprint) Year(name string) *ColumnDefinition        { return t.Column(name, "year") }
func (t *Blueprint) JSON(name string) *ColumnDefinition        { return t.Column(name, "json") }
func (t *Blueprint) JSONB(name string) *ColumnDefinition       { return t.Column(name, "jsonb") }
func (t *Blueprint) Binary(name string) *ColumnDefinition      { return t.Column(name, "blob") }
func (t *Blueprint) UUID(name string) *ColumnDefinition        { return t.Column(name, "uuid") }

// Timestamps adds nullable created_at and updated_at timestamps.
func (t *Blueprint) Timestamps() {
	t.Timestamp("created_at").Nullable()
	t.Timestamp("updated_at").Nullable()
}

// SoftDeletes adds a nullable deleted_at timestamp.
func (t *Blueprint) SoftDeletes() { t.Timestamp("deleted_at").Nullable() }

// DropTimestamps drops created_at and updated_at.
func (t *Blueprint) DropTimestamps() { t.DropColumn("created_at", "updated_at") }

// DropSoftDeletes drops deleted_at.
func (t *Blueprint) DropSoftDeletes() { t.DropColumn("deleted_at") }

// DropColumn drops one or more columns, one after the other, so the plan
// for each column sees the table the earlier drops left behind.
func (t *Blueprint) DropColumn(names ...string) {
	for _, name := range names {
		t.commands = append(t.commands, dropColumn{name})
	}
}

// RenameColumn renames a column.
func (t *Blueprint) RenameColumn(from, to string) {
	t.commands = append(t.commands, renameColumn{from, to})
}

// Index adds a plain index. An empty name becomes "<table>_<cols>_index".
func (t *Blueprint) Index(name string, columns ...string) *IndexDefinition {
	return t.addIndex(name, "index", model.Index{Columns: columns})
}

// UniqueIndex adds a unique index named "<table>_<cols>_unique" by default.
func (t *Blueprint) UniqueIndex(name string, columns ...string) *IndexDefinition {
	return t.addIndex(name, "unique", model.Index{Columns: columns, Unique: true})
}

// Primary declares the primary key over columns.
func (t *Blueprint) Primary(columns ...string) *IndexDefinition {
	return t.addIndex(t.table+"_pkey", "", model.Index{Columns: columns, Unique: true, Primary: true})
}

// FullText adds a FULLTEXT index.
func (t *Blueprint) FullText(name string, columns ...string) *IndexDefinition {
	return t.addIndex(name, "fulltext", model.Index{Columns: columns, Type: "FULLTEXT"})
}

// SpatialIndex adds a SPATIAL index.
func (t *Blueprint) SpatialIndex(name string, columns ...string) *IndexDefinition {
	return t.addIndex(name, "spatial", model.Index{Columns: columns, Type: "SPATIAL"})
}

func (t *Blueprint) addIndex(name, suffix string, idx model.Index) *IndexDefinition {
	if name == "" {
		name = fmt.Sprintf("%s_%s_%s", t.table, strings.Join(idx.Columns, "_"), suffix)
	}
	idx.Name = name
	def := &IndexDefinition{idx: idx}
	t.commands = append(t.commands, addIndex{def})
	return def
}

// DropIndex drops an index by name.
func (t *Blueprint) DropIndex(name string) {
	t.commands = append(t.commands, dropIndex{name})
}

// Foreign starts a foreign key on column. An empty name becomes
// "<table>_<column>_foreign".
func (t *Blueprint) Foreign(name, column string) *ForeignKeyDefinition {
	if name == "" {
		name = fmt.Sprintf("%s_%s_foreign", t.table, column)
	}
	def := &ForeignKeyDefinition{fk: model.ForeignKey{Name: name, Column: column}}
	t.commands = append(t.commands, addForeign{def})
	return def
}

// DropForeign drops a foreign key by name.
func (t *Blueprint) DropForeign(name string) {
	t.commands = append(t.commands, dropForeign{name})
}

// tableSchema assembles the definition of a table being created.
func (t *Blueprint) tableSchema() (model.TableSchema, error) {
	def := model.TableSchema{
		Columns:     []model.Column{},
		Indexes:     []model.Index{},
		ForeignKeys: []model.ForeignKey{},
	}
	for _, cmd := range t.commands {
		switch c := cmd.(type) {
		case addColumn:
			def.Columns = append(def.Columns, c.def.Column())
		case addIndex:
			def.Indexes = append(def.Indexes, c.def.idx)
		case addForeign:
			def.ForeignKeys = append(def.ForeignKeys, c.def.fk)
		default:
			return def, fmt.Errorf("create %q: %T is only valid when altering a table", t.table, cmd)
		}
	}
	return def, nil
}

type addColumn struct{ def *ColumnDefinition }

func (c addColumn) compile(ctx context.Context, a connector.Adapter, table string) ([]string, error) {
	col := c.def.Column()
	if c.def.change {
		return a.ModifyColumnSQL(ctx, table, col)
	}
	stmts := []string{a.AddColumnSQL(table, col)}
	if col.Key == model.KeyUnique {
		stmts = append(stmts, a.CreateIndexSQL(table, model.Index{
			Name:    fmt.Sprintf("%s_%s_unique", table, col.Name),
			Columns: []string{col.Name},
			Unique:  true,
		}))
	}
	return stmts, nil
}

type dropColumn struct{ name string }

func (c dropColumn) compile(ctx context.Context, a connector.Adapter, table string) ([]string, error) {
	return a.DropColumnSQL(ctx, table, c.name)
}

type renameColumn struct{ from, to string }

func (c renameColumn) compile(_ context.Context, a connector.Adapter, table string) ([]string, error) {
	return []string{a.RenameColumnSQL(table, c.from, c.to)}, nil
}

type addIndex struct{ def *IndexDefinition }

func (c addIndex) compile(_ context.Context, a connector.Adapter, table string) ([]string, error) {
	return []string{a.CreateIndexSQL(table, c.def.idx)}, nil
}

type dropIndex struct{ name string }

func (c dropIndex) compile(_ context.Context, a connector.Adapter, table string) ([]string, error) {
	return []string{a.DropIndexSQL(table, c.name)}, nil
}

type addForeign struct{ def *ForeignKeyDefinition }

func (c addForeign) compile(ctx context.Context, a connector.Adapter, table string) ([]string, error) {
	return a.AddForeignKeySQL(ctx, table, c.def.fk)
}

type dropForeign struct{ name string }

func (c dropForeign) compile(ctx context.Context, a connector.Adapter, table string) ([]string, error) {
	return a.DropForeignKeySQL(ctx, table, c.name)
}

func withArgs(base string, args ...int) string {
	if len(args) == 0 {
		return base
	}
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = strconv.Itoa(v)
	}
	return base + "(" + strings.Join(parts, ",") + ")"
}

func defaultLength(length []int) int {
	if len(length) > 0 && length[0] > 0 {
		return length[0]
	}
	return 255
}

func quoteValues(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}
