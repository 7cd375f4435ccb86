package diff

import (
	"fmt"
	"strings"
)

// Severity classifies how a change affects code written against the
// source schema.
type Severity string

const (
	// Additive changes leave existing reads and writes valid.
	Additive Severity = "additive"
	// Breaking changes remove or reshape something that may be in use.
	Breaking Severity = "breaking"
)

// Item describes a single difference in human terms.
type Item struct {
	Severity    Severity `json:"severity"`
	Category    string   `json:"category"` // "table_added", "column_removed", "type_changed", ...
	Table       string   `json:"table"`
	Name        string   `json:"name,omitempty"`
	OldValue    string   `json:"old_value,omitempty"`
	NewValue    string   `json:"new_value,omitempty"`
	Description string   `json:"description"`
}

// Report is a flattened, classified view of a Diff.
type Report struct {
	Items         []Item `json:"items"`
	AdditiveCount int    `json:"additive_count"`
	BreakingCount int    `json:"breaking_count"`
	HasChanges    bool   `json:"has_changes"`
	HasBreaking   bool   `json:"has_breaking"`
}

// Summarize classifies every change in d, tables in sorted order.
func Summarize(d *Diff) Report {
	report := Report{Items: []Item{}}
	if d.IsEmpty() {
		return report
	}

	add := func(it Item) { report.Items = append(report.Items, it) }

	for _, name := range d.CreateNames() {
		add(Item{Severity: Additive, Category: "table_added", Table: name,
			Description: fmt.Sprintf("Table %q is new", name)})
	}
	for _, name := range d.TablesToDrop {
		add(Item{Severity: Breaking, Category: "table_removed", Table: name,
			Description: fmt.Sprintf("Table %q was removed", name)})
	}

	for _, table := range d.ModifyNames() {
		td := d.TablesToModify[table]
		for _, col := range td.ColumnsToAdd {
			sev := Additive
			// A NOT NULL column without a default rejects existing inserts.
			if !col.Nullable && col.Default == nil && !col.IsAutoIncrement() {
				sev = Breaking
			}
			add(Item{Severity: sev, Category: "column_added", Table: table, Name: col.Name, NewValue: col.Type,
				Description: fmt.Sprintf("Column %q was added to table %q", col.Name, table)})
		}
		for _, name := range td.ColumnsToDrop {
			add(Item{Severity: Breaking, Category: "column_removed", Table: table, Name: name,
				Description: fmt.Sprintf("Column %q was removed from table %q", name, table)})
		}
		for _, r := range td.ColumnsToRename {
			add(Item{Severity: Breaking, Category: "column_renamed", Table: table, Name: r.To, OldValue: r.From, NewValue: r.To,
				Description: fmt.Sprintf("Column %q of table %q was renamed to %q", r.From, table, r.To)})
		}
		for _, ch := range td.ColumnsToModify {
			report.Items = append(report.Items, columnChangeItems(table, ch)...)
		}
		for _, idx := range td.IndexesToAdd {
			add(Item{Severity: Additive, Category: "index_added", Table: table, Name: idx.Name, NewValue: strings.Join(idx.Columns, ","),
				Description: fmt.Sprintf("Index %q was added to table %q", idx.Name, table)})
		}
		for _, name := range td.IndexesToDrop {
			add(Item{Severity: Additive, Category: "index_removed", Table: table, Name: name,
				Description: fmt.Sprintf("Index %q was removed from table %q", name, table)})
		}
		for _, fk := range td.ForeignKeysToAdd {
			add(Item{Severity: Breaking, Category: "foreign_key_added", Table: table, Name: fk.Name,
				NewValue:    fk.ForeignTable + "." + fk.ForeignColumn,
				Description: fmt.Sprintf("Foreign key %q on %s.%s was added", fk.Name, table, fk.Column)})
		}
		for _, name := range td.ForeignKeysToDrop {
			add(Item{Severity: Additive, Category: "foreign_key_removed", Table: table, Name: name,
				Description: fmt.Sprintf("Foreign key %q was removed from table %q", name, table)})
		}
	}

	for _, it := range report.Items {
		switch it.Severity {
		case Additive:
			report.AdditiveCount++
		case Breaking:
			report.BreakingCount++
		}
	}
	report.HasChanges = len(report.Items) > 0
	report.HasBreaking = report.BreakingCount > 0
	return report
}

func columnChangeItems(table string, ch ColumnChange) []Item {
	var items []Item
	if !sameType(ch.From.Type, ch.To.Type) {
		items = append(items, Item{Severity: Breaking, Category: "type_changed", Table: table, Name: ch.Name,
			OldValue: ch.From.Type, NewValue: ch.To.Type,
			Description: fmt.Sprintf("Column %q type changed from %q to %q", ch.Name, ch.From.Type, ch.To.Type)})
	}
	switch {
	case ch.From.Nullable && !ch.To.Nullable:
		items = append(items, Item{Severity: Breaking, Category: "nullable_changed", Table: table, Name: ch.Name,
			OldValue: "nullable", NewValue: "not null",
			Description: fmt.Sprintf("Column %q changed from nullable to NOT NULL", ch.Name)})
	case !ch.From.Nullable && ch.To.Nullable:
		items = append(items, Item{Severity: Additive, Category: "nullable_changed", Table: table, Name: ch.Name,
			OldValue: "not null", NewValue: "nullable",
			Description: fmt.Sprintf("Column %q changed from NOT NULL to nullable", ch.Name)})
	}
	if defaultString(ch.From.Default) != defaultString(ch.To.Default) {
		items = append(items, Item{Severity: Additive, Category: "default_changed", Table: table, Name: ch.Name,
			OldValue: defaultString(ch.From.Default), NewValue: defaultString(ch.To.Default),
			Description: fmt.Sprintf("Column %q default changed", ch.Name)})
	}
	return items
}

func defaultString(v *string) string {
	if v == nil {
		return "NULL"
	}
	return *v
}

// Describe renders the report one change per line, or "schemas match".
func Describe(d *Diff) string {
	r := Summarize(d)
	if !r.HasChanges {
		return "schemas match"
	}
	lines := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, fmt.Sprintf("[%s] %s", it.Severity, it.Description))
	}
	return strings.Join(lines, "\n")
}
