package diff

import (
	"sort"

	"github.com/faucetdb/safeshift/internal/model"
)

// Diff is the structural difference between a source and a target schema.
// Applying it to the source yields the target.
type Diff struct {
	TablesToCreate map[string]model.TableSchema `json:"tables_to_create"`
	TablesToDrop   []string                     `json:"tables_to_drop"`
	TablesToModify map[string]TableDiff         `json:"tables_to_modify"`
}

// TableDiff holds the changes to one table present in both schemas. Column
// adds keep the target's column order; everything else follows the source.
type TableDiff struct {
	ColumnsToAdd      []model.Column     `json:"columns_to_add,omitempty"`
	ColumnsToDrop     []string           `json:"columns_to_drop,omitempty"`
	ColumnsToRename   []ColumnRename     `json:"columns_to_rename,omitempty"`
	ColumnsToModify   []ColumnChange     `json:"columns_to_modify,omitempty"`
	IndexesToAdd      []model.Index      `json:"indexes_to_add,omitempty"`
	IndexesToDrop     []string           `json:"indexes_to_drop,omitempty"`
	ForeignKeysToAdd  []model.ForeignKey `json:"foreign_keys_to_add,omitempty"`
	ForeignKeysToDrop []string           `json:"foreign_keys_to_drop,omitempty"`
}

// ColumnRename pairs a dropped column with the added column it became.
type ColumnRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ColumnChange records a column whose type, nullability or default changed.
type ColumnChange struct {
	Name string       `json:"name"`
	From model.Column `json:"from"`
	To   model.Column `json:"to"`
}

// IsEmpty reports whether the table diff has nothing in any bucket.
func (td TableDiff) IsEmpty() bool {
	return len(td.ColumnsToAdd) == 0 &&
		len(td.ColumnsToDrop) == 0 &&
		len(td.ColumnsToRename) == 0 &&
		len(td.ColumnsToModify) == 0 &&
		len(td.IndexesToAdd) == 0 &&
		len(td.IndexesToDrop) == 0 &&
		len(td.ForeignKeysToAdd) == 0 &&
		len(td.ForeignKeysToDrop) == 0
}

// IsEmpty reports whether the two schemas were structurally identical.
func (d *Diff) IsEmpty() bool {
	return d == nil || (len(d.TablesToCreate) == 0 && len(d.TablesToDrop) == 0 && len(d.TablesToModify) == 0)
}

// CreateNames returns the names of the tables to create, sorted.
func (d *Diff) CreateNames() []string { return sortedKeys(d.TablesToCreate) }

// ModifyNames returns the names of the tables to modify, sorted.
func (d *Diff) ModifyNames() []string { return sortedKeys(d.TablesToModify) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
