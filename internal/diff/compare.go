package diff

import (
	"slices"
	"sort"
	"strings"

	"github.com/faucetdb/safeshift/internal/model"
)

// Options tunes a comparison. The zero value compares everything and uses
// DefaultRenameThreshold.
type Options struct {
	// IgnoredTables are left out of the diff entirely.
	IgnoredTables []string
	// IgnoredColumns are left out of column diffing of shared tables.
	IgnoredColumns []string
	// RenameThreshold is the minimum name similarity for a drop/add pair
	// to be reported as a rename.
	RenameThreshold float64
}

func (o Options) threshold() float64 {
	if o.RenameThreshold <= 0 {
		return DefaultRenameThreshold
	}
	return o.RenameThreshold
}

// Compare computes the diff that turns source into target. It is pure and
// deterministic: tables are visited in sorted order and columns, indexes
// and foreign keys in their declared order.
func Compare(source, target model.Schema, opts Options) *Diff {
	d := &Diff{
		TablesToCreate: map[string]model.TableSchema{},
		TablesToDrop:   []string{},
		TablesToModify: map[string]TableDiff{},
	}

	for _, name := range target.TableNames() {
		if slices.Contains(opts.IgnoredTables, name) {
			continue
		}
		if _, ok := source[name]; !ok {
			d.TablesToCreate[name] = target[name]
		}
	}

	for _, name := range source.TableNames() {
		if slices.Contains(opts.IgnoredTables, name) {
			continue
		}
		to, ok := target[name]
		if !ok {
			d.TablesToDrop = append(d.TablesToDrop, name)
			continue
		}
		td := compareTable(source[name], to, opts)
		if !td.IsEmpty() {
			d.TablesToModify[name] = td
		}
	}
	return d
}

func compareTable(from, to model.TableSchema, opts Options) TableDiff {
	var td TableDiff
	compareColumns(&td, filterColumns(from.Columns, opts.IgnoredColumns), filterColumns(to.Columns, opts.IgnoredColumns), opts.threshold())
	compareIndexes(&td, from.Indexes, to.Indexes)
	compareForeignKeys(&td, from.ForeignKeys, to.ForeignKeys)
	return td
}

func filterColumns(cols []model.Column, ignored []string) []model.Column {
	if len(ignored) == 0 {
		return cols
	}
	out := make([]model.Column, 0, len(cols))
	for _, c := range cols {
		if !slices.Contains(ignored, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func compareColumns(td *TableDiff, from, to []model.Column, threshold float64) {
	fromByName := make(map[string]model.Column, len(from))
	for _, c := range from {
		fromByName[c.Name] = c
	}
	toByName := make(map[string]model.Column, len(to))
	for _, c := range to {
		toByName[c.Name] = c
	}

	var dropped, added []model.Column
	for _, c := range from {
		if _, ok := toByName[c.Name]; !ok {
			dropped = append(dropped, c)
		}
	}
	for _, c := range to {
		if _, ok := fromByName[c.Name]; !ok {
			added = append(added, c)
		}
	}

	renames := DetectRenames(dropped, added, threshold)
	renamedFrom := make(map[string]bool, len(renames))
	renamedTo := make(map[string]bool, len(renames))
	for _, r := range renames {
		renamedFrom[r.From] = true
		renamedTo[r.To] = true
		td.ColumnsToRename = append(td.ColumnsToRename, r)
	}

	for _, c := range dropped {
		if !renamedFrom[c.Name] {
			td.ColumnsToDrop = append(td.ColumnsToDrop, c.Name)
		}
	}
	for _, c := range added {
		if !renamedTo[c.Name] {
			td.ColumnsToAdd = append(td.ColumnsToAdd, c)
		}
	}

	for _, c := range from {
		if other, ok := toByName[c.Name]; ok && !columnsEqual(c, other) {
			td.ColumnsToModify = append(td.ColumnsToModify, ColumnChange{Name: c.Name, From: c, To: other})
		}
	}
	// A rename across a type family still needs the new definition applied.
	for _, r := range renames {
		prev, next := fromByName[r.From], toByName[r.To]
		prev.Name = r.To
		if !columnsEqual(prev, next) {
			td.ColumnsToModify = append(td.ColumnsToModify, ColumnChange{Name: r.To, From: prev, To: next})
		}
	}
}

func columnsEqual(a, b model.Column) bool {
	if !strings.EqualFold(strings.TrimSpace(a.Type), strings.TrimSpace(b.Type)) {
		return false
	}
	if a.Nullable != b.Nullable {
		return false
	}
	if (a.Default == nil) != (b.Default == nil) {
		return false
	}
	return a.Default == nil || *a.Default == *b.Default
}

func compareIndexes(td *TableDiff, from, to []model.Index) {
	fromByName := make(map[string]model.Index, len(from))
	for _, idx := range from {
		fromByName[idx.Name] = idx
	}
	toByName := make(map[string]model.Index, len(to))
	for _, idx := range to {
		toByName[idx.Name] = idx
	}

	for _, idx := range from {
		if other, ok := toByName[idx.Name]; !ok || !indexesEqual(idx, other) {
			td.IndexesToDrop = append(td.IndexesToDrop, idx.Name)
		}
	}
	for _, idx := range to {
		if other, ok := fromByName[idx.Name]; !ok || !indexesEqual(idx, other) {
			td.IndexesToAdd = append(td.IndexesToAdd, idx)
		}
	}
}

func indexesEqual(a, b model.Index) bool {
	return slices.Equal(a.Columns, b.Columns) &&
		a.Unique == b.Unique &&
		a.Primary == b.Primary &&
		indexType(a.Type) == indexType(b.Type)
}

// indexType treats an unreported type as the BTREE every dialect defaults to.
func indexType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if t == "" {
		return "BTREE"
	}
	return t
}

func compareForeignKeys(td *TableDiff, from, to []model.ForeignKey) {
	fromByName := make(map[string]model.ForeignKey, len(from))
	for _, fk := range from {
		fromByName[fk.Name] = fk
	}
	toByName := make(map[string]model.ForeignKey, len(to))
	for _, fk := range to {
		toByName[fk.Name] = fk
	}

	for _, fk := range from {
		if other, ok := toByName[fk.Name]; !ok || !foreignKeysEqual(fk, other) {
			td.ForeignKeysToDrop = append(td.ForeignKeysToDrop, fk.Name)
		}
	}
	for _, fk := range to {
		if other, ok := fromByName[fk.Name]; !ok || !foreignKeysEqual(fk, other) {
			td.ForeignKeysToAdd = append(td.ForeignKeysToAdd, fk)
		}
	}
}

func foreignKeysEqual(a, b model.ForeignKey) bool {
	return a.Column == b.Column &&
		a.ForeignTable == b.ForeignTable &&
		a.ForeignColumn == b.ForeignColumn &&
		action(a.OnDelete) == action(b.OnDelete) &&
		action(a.OnUpdate) == action(b.OnUpdate)
}

// action folds the implicit NO ACTION default into the empty string.
func action(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if a == "no action" {
		return ""
	}
	return a
}

// Tables returns every table name the diff touches, sorted and unique.
func (d *Diff) Tables() []string {
	seen := make(map[string]bool)
	for name := range d.TablesToCreate {
		seen[name] = true
	}
	for _, name := range d.TablesToDrop {
		seen[name] = true
	}
	for name := range d.TablesToModify {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
