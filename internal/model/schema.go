package model

import (
	"sort"
	"strings"
)

// KeyType classifies the key role a column plays in its table.
type KeyType string

const (
	KeyNone    KeyType = ""
	KeyPrimary KeyType = "primary"
	KeyUnique  KeyType = "unique"
)

// Schema maps table names to their structural description. Table names are
// case-sensitive; whether two names collide is up to the dialect.
type Schema map[string]TableSchema

// TableNames returns the schema's table names in sorted order.
func (s Schema) TableNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableSchema describes the structure of a single table. RowCount is
// informational and never takes part in diffing.
type TableSchema struct {
	Columns     []Column     `json:"columns" yaml:"columns"`
	Indexes     []Index      `json:"indexes" yaml:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys" yaml:"foreign_keys"`
	RowCount    int64        `json:"row_count,omitempty" yaml:"row_count,omitempty"`
}

// Column returns the column with the given name, or false if the table has
// no such column.
func (t TableSchema) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Column describes a single column in canonical form. Type uses the MySQL
// column-type grammar (e.g. "varchar(255)", "bigint unsigned",
// "decimal(8,2)", "enum('a','b')") regardless of the dialect it came from.
type Column struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable" yaml:"nullable"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty"`
	Key      KeyType `json:"key,omitempty" yaml:"key,omitempty"`
	Extra    string  `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsAutoIncrement reports whether the column is generated by the database
// on insert.
func (c Column) IsAutoIncrement() bool {
	return strings.Contains(strings.ToLower(c.Extra), "auto_increment")
}

// Index describes a database index. Columns keep the index's declared order.
type Index struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique" yaml:"unique"`
	Primary bool     `json:"primary" yaml:"primary"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"` // BTREE, FULLTEXT, SPATIAL
}

// ForeignKey describes a single-column foreign key constraint.
type ForeignKey struct {
	Name          string `json:"name" yaml:"name"`
	Column        string `json:"column" yaml:"column"`
	ForeignTable  string `json:"foreign_table" yaml:"foreign_table"`
	ForeignColumn string `json:"foreign_column" yaml:"foreign_column"`
	OnDelete      string `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
	OnUpdate      string `json:"on_update,omitempty" yaml:"on_update,omitempty"`
}

// Row is a single table row keyed by column name.
type Row map[string]interface{}

// StringPtr returns a pointer to s. Handy for building column defaults.
func StringPtr(s string) *string {
	return &s
}
