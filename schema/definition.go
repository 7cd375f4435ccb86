package schema

import (
	"fmt"

	"github.com/faucetdb/safeshift/internal/model"
)

// ColumnDefinition is a column being declared. Its modifiers chain.
type ColumnDefinition struct {
	col    model.Column
	ct     model.ColumnType
	change bool
}

// Column returns the canonical column described so far.
func (c *ColumnDefinition) Column() model.Column {
	col := c.col
	col.Type = c.ct.String()
	return col
}

// Nullable allows NULL values.
func (c *ColumnDefinition) Nullable() *ColumnDefinition {
	c.col.Nullable = true
	return c
}

// Default sets the column default. Booleans become 1 and 0; nil clears it.
func (c *ColumnDefinition) Default(v any) *ColumnDefinition {
	switch v := v.(type) {
	case nil:
		c.col.Default = nil
	case string:
		c.col.Default = model.StringPtr(v)
	case bool:
		if v {
			c.col.Default = model.StringPtr("1")
		} else {
			c.col.Default = model.StringPtr("0")
		}
	default:
		c.col.Default = model.StringPtr(fmt.Sprint(v))
	}
	return c
}

// UseCurrent defaults the column to CURRENT_TIMESTAMP.
func (c *ColumnDefinition) UseCurrent() *ColumnDefinition {
	return c.Default("CURRENT_TIMESTAMP")
}

// UseCurrentOnUpdate refreshes the column to CURRENT_TIMESTAMP on update
// where the dialect supports it.
func (c *ColumnDefinition) UseCurrentOnUpdate() *ColumnDefinition {
	c.col.Extra = "on update current_timestamp"
	return c
}

// Unsigned marks a numeric column unsigned.
func (c *ColumnDefinition) Unsigned() *ColumnDefinition {
	c.ct.Unsigned = true
	return c
}

// Unique adds a single-column unique index named "<table>_<column>_unique".
func (c *ColumnDefinition) Unique() *ColumnDefinition {
	c.col.Key = model.KeyUnique
	return c
}

// Primary makes the column the table's primary key.
func (c *ColumnDefinition) Primary() *ColumnDefinition {
	c.col.Key = model.KeyPrimary
	return c
}

// AutoIncrement makes the column auto-incrementing.
func (c *ColumnDefinition) AutoIncrement() *ColumnDefinition {
	c.col.Extra = "auto_increment"
	return c
}

// Change turns the declaration into a modification of an existing column.
func (c *ColumnDefinition) Change() *ColumnDefinition {
	c.change = true
	return c
}

// IndexDefinition is an index being declared.
type IndexDefinition struct {
	idx model.Index
}

// Algorithm sets the index method, e.g. BTREE, HASH or GIN.
func (i *IndexDefinition) Algorithm(typ string) *IndexDefinition {
	i.idx.Type = typ
	return i
}

// ForeignKeyDefinition is a foreign key being declared.
type ForeignKeyDefinition struct {
	fk model.ForeignKey
}

// References names the referenced column.
func (f *ForeignKeyDefinition) References(column string) *ForeignKeyDefinition {
	f.fk.ForeignColumn = column
	return f
}

// On names the referenced table.
func (f *ForeignKeyDefinition) On(table string) *ForeignKeyDefinition {
	f.fk.ForeignTable = table
	return f
}

// OnDelete sets the ON DELETE action, e.g. "cascade" or "set null".
func (f *ForeignKeyDefinition) OnDelete(action string) *ForeignKeyDefinition {
	f.fk.OnDelete = action
	return f
}

// OnUpdate sets the ON UPDATE action.
func (f *ForeignKeyDefinition) OnUpdate(action string) *ForeignKeyDefinition {
	f.fk.OnUpdate = action
	return f
}

func (f *ForeignKeyDefinition) CascadeOnDelete() *ForeignKeyDefinition  { return f.OnDelete("cascade") }
func (f *ForeignKeyDefinition) NullOnDelete() *ForeignKeyDefinition     { return f.OnDelete("set null") }
func (f *ForeignKeyDefinition) RestrictOnDelete() *ForeignKeyDefinition { return f.OnDelete("restrict") }
func (f *ForeignKeyDefinition) NoActionOnDelete() *ForeignKeyDefinition { return f.OnDelete("no action") }
func (f *ForeignKeyDefinition) CascadeOnUpdate() *ForeignKeyDefinition  { return f.OnUpdate("cascade") }
func (f *ForeignKeyDefinition) NullOnUpdate() *ForeignKeyDefinition     { return f.OnUpdate("set null") }
func (f *ForeignKeyDefinition) RestrictOnUpdate() *ForeignKeyDefinition { return f.OnUpdate("restrict") }
func (f *ForeignKeyDefinition) NoActionOnUpdate() *ForeignKeyDefinition { return f.OnUpdate("no action") }
