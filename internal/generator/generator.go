// Package generator renders a schema diff as a Go migration file for the
// schema package.
package generator

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"time"
	"unicode"

	"github.com/faucetdb/safeshift/internal/diff"
	"github.com/faucetdb/safeshift/internal/model"
)

// SchemaImport is the import path generated migrations use.
const SchemaImport = "github.com/faucetdb/safeshift/schema"

// Build renders d as the source of a migration registered under name. The
// output is deterministic for a given diff and name. Up applies creates,
// then drops, then per-table modifications; Down inverts what can be
// inverted and leaves TODO comments for what cannot.
func Build(d *diff.Diff, name string) string {
	w := &writer{}
	typ := TypeName(name)

	w.line("package migrations")
	w.line("")
	w.line("import %q", SchemaImport)
	w.line("")
	w.line("func init() {")
	w.line("schema.Register(%q, &%s{})", name, typ)
	w.line("}")
	w.line("")
	w.line("type %s struct{}", typ)
	w.line("")

	w.line("func (m *%s) Up(s *schema.Builder) error {", typ)
	if d.IsEmpty() {
		w.line("// No changes detected.")
	} else {
		writeUp(w, d)
	}
	w.line("return s.Err()")
	w.line("}")
	w.line("")

	w.line("func (m *%s) Down(s *schema.Builder) error {", typ)
	if d.IsEmpty() {
		w.line("// No rollback needed.")
	} else {
		writeDown(w, d)
	}
	w.line("return s.Err()")
	w.line("}")

	src := w.buf.Bytes()
	if formatted, err := format.Source(src); err == nil {
		return string(formatted)
	}
	return string(src)
}

func writeUp(w *writer, d *diff.Diff) {
	for _, table := range d.CreateNames() {
		writeCreate(w, table, d.TablesToCreate[table])
	}
	for _, table := range d.TablesToDrop {
		w.line("s.DropIfExists(%q)", table)
	}
	for _, table := range d.ModifyNames() {
		td := d.TablesToModify[table]
		w.line("s.Table(%q, func(t *schema.Blueprint) {", table)
		for _, name := range td.ForeignKeysToDrop {
			w.line("t.DropForeign(%q)", name)
		}
		for _, name := range td.IndexesToDrop {
			w.line("t.DropIndex(%q)", name)
		}
		for _, r := range td.ColumnsToRename {
			w.line("t.RenameColumn(%q, %q)", r.From, r.To)
		}
		for _, ch := range td.ColumnsToModify {
			w.line("%s.Change()", columnCall(ch.To))
		}
		for _, col := range td.ColumnsToAdd {
			w.line("%s", columnCall(col)+keyModifier(col))
		}
		if len(td.ColumnsToDrop) > 0 {
			w.line("t.DropColumn(%s)", quoteList(td.ColumnsToDrop))
		}
		for _, idx := range td.IndexesToAdd {
			w.line("%s", indexCall(idx))
		}
		for _, fk := range td.ForeignKeysToAdd {
			w.line("%s", foreignCall(fk))
		}
		w.line("})")
	}
}

func writeDown(w *writer, d *diff.Diff) {
	modified := d.ModifyNames()
	for i := len(modified) - 1; i >= 0; i-- {
		table := modified[i]
		td := d.TablesToModify[table]
		w.line("s.Table(%q, func(t *schema.Blueprint) {", table)
		for _, fk := range td.ForeignKeysToAdd {
			w.line("t.DropForeign(%q)", fk.Name)
		}
		for _, idx := range td.IndexesToAdd {
			w.line("t.DropIndex(%q)", idx.Name)
		}
		if len(td.ColumnsToAdd) > 0 {
			names := make([]string, len(td.ColumnsToAdd))
			for i, col := range td.ColumnsToAdd {
				names[i] = col.Name
			}
			w.line("t.DropColumn(%s)", quoteList(names))
		}
		for _, ch := range td.ColumnsToModify {
			w.line("// Previous type: %s", ch.From.Type)
			w.line("%s.Change()", columnCall(ch.From))
		}
		for j := len(td.ColumnsToRename) - 1; j >= 0; j-- {
			r := td.ColumnsToRename[j]
			w.line("t.RenameColumn(%q, %q)", r.To, r.From)
		}
		for _, name := range td.ColumnsToDrop {
			w.line("// TODO: re-add dropped column %q; its definition is not in the diff.", name)
		}
		for _, name := range td.IndexesToDrop {
			w.line("// TODO: recreate dropped index %q; its definition is not in the diff.", name)
		}
		for _, name := range td.ForeignKeysToDrop {
			w.line("// TODO: recreate dropped foreign key %q; its definition is not in the diff.", name)
		}
		w.line("})")
	}
	for _, table := range d.TablesToDrop {
		w.line("// Table %q was dropped in Up and is not recreated here.", table)
	}
	created := d.CreateNames()
	for i := len(created) - 1; i >= 0; i-- {
		w.line("s.DropIfExists(%q)", created[i])
	}
}

// writeCreate renders one s.Create block. created_at/updated_at collapse to
// Timestamps and deleted_at to SoftDeletes when they have the conventional
// shape.
func writeCreate(w *writer, table string, def model.TableSchema) {
	timestamps := hasShorthandColumn(def, "created_at") && hasShorthandColumn(def, "updated_at")
	softDeletes := hasShorthandColumn(def, "deleted_at")

	pk := primaryColumns(def)
	impliedPK := len(pk) == 1 && isAutoIncrementColumn(def, pk[0])
	covered := uniqueCovered(def.Indexes)

	w.line("s.Create(%q, func(t *schema.Blueprint) {", table)
	for _, col := range def.Columns {
		switch {
		case timestamps && col.Name == "created_at":
			w.line("t.Timestamps()")
			continue
		case timestamps && col.Name == "updated_at":
			continue
		case softDeletes && col.Name == "deleted_at":
			w.line("t.SoftDeletes()")
			continue
		}
		call := columnCall(col)
		if len(pk) == 1 && !impliedPK && pk[0] == col.Name {
			call += ".Primary()"
		}
		if col.Key == model.KeyUnique && !covered[col.Name] {
			call += ".Unique()"
		}
		w.line("%s", call)
	}
	if len(pk) > 1 {
		w.line("t.Primary(%s)", quoteList(pk))
	}
	for _, idx := range def.Indexes {
		if idx.Primary {
			continue
		}
		w.line("%s", indexCall(idx))
	}
	for _, fk := range def.ForeignKeys {
		w.line("%s", foreignCall(fk))
	}
	w.line("})")
}

func hasShorthandColumn(def model.TableSchema, name string) bool {
	col, ok := def.Column(name)
	if !ok || !col.Nullable || col.Default != nil {
		return false
	}
	switch model.ParseColumnType(col.Type).Base {
	case "timestamp", "datetime", "timestamptz":
		return true
	}
	return false
}

// primaryColumns prefers an explicit primary index over column markers.
func primaryColumns(def model.TableSchema) []string {
	for _, idx := range def.Indexes {
		if idx.Primary {
			return idx.Columns
		}
	}
	var pk []string
	for _, col := range def.Columns {
		if col.Key == model.KeyPrimary {
			pk = append(pk, col.Name)
		}
	}
	return pk
}

func isAutoIncrementColumn(def model.TableSchema, name string) bool {
	col, ok := def.Column(name)
	return ok && col.IsAutoIncrement() && isIntegerBase(model.ParseColumnType(col.Type).Base)
}

func uniqueCovered(indexes []model.Index) map[string]bool {
	covered := make(map[string]bool)
	for _, idx := range indexes {
		if idx.Unique && !idx.Primary && len(idx.Columns) == 1 {
			covered[idx.Columns[0]] = true
		}
	}
	return covered
}

// keyModifier adds the key modifier for a column added to an existing table.
func keyModifier(col model.Column) string {
	switch {
	case col.Key == model.KeyUnique:
		return ".Unique()"
	case col.Key == model.KeyPrimary && !col.IsAutoIncrement():
		return ".Primary()"
	}
	return ""
}

func indexCall(idx model.Index) string {
	cols := quoteList(idx.Columns)
	switch {
	case idx.Primary:
		return fmt.Sprintf("t.Primary(%s)", cols)
	case strings.EqualFold(idx.Type, "FULLTEXT"):
		return fmt.Sprintf("t.FullText(%q, %s)", idx.Name, cols)
	case strings.EqualFold(idx.Type, "SPATIAL"):
		return fmt.Sprintf("t.SpatialIndex(%q, %s)", idx.Name, cols)
	}
	call := fmt.Sprintf("t.Index(%q, %s)", idx.Name, cols)
	if idx.Unique {
		call = fmt.Sprintf("t.UniqueIndex(%q, %s)", idx.Name, cols)
	}
	if typ := strings.ToUpper(idx.Type); typ != "" && typ != "BTREE" {
		call += fmt.Sprintf(".Algorithm(%q)", typ)
	}
	return call
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

// TypeName derives the migration's Go type name from its registered name:
// "2024_05_01_120000_add_users" becomes "m20240501120000AddUsers".
func TypeName(name string) string {
	var b strings.Builder
	b.WriteByte('m')
	upper := true
	for _, r := range name {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
			upper = true
		case unicode.IsLetter(r):
			if upper {
				r = unicode.ToUpper(r)
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	return b.String()
}

// TimestampLayout prefixes generated migration names so that lexicographic
// order is chronological.
const TimestampLayout = "2006_01_02_150405"

// MigrationName returns the registered name for a migration generated at
// now: the timestamp followed by name in snake case.
func MigrationName(now time.Time, name string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsUpper(r):
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			if prev != '_' && b.Len() > 0 {
				b.WriteByte('_')
			}
			r = '_'
		}
		prev = r
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "sync"
	}
	return now.Format(TimestampLayout) + "_" + slug
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) line(format string, args ...any) {
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
}
