package connector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/faucetdb/safeshift/internal/model"
)

var (
	numericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	castSuffix     = regexp.MustCompile(`::[a-zA-Z_ ]+(\[\])?(\(\d+(,\d+)?\))?$`)
)

// rawDefaults are default expressions written without quoting.
var rawDefaults = map[string]bool{
	"CURRENT_TIMESTAMP":   true,
	"CURRENT_TIMESTAMP()": true,
	"CURRENT_DATE":        true,
	"CURRENT_TIME":        true,
	"NOW()":               true,
	"NULL":                true,
	"TRUE":                true,
	"FALSE":               true,
}

// FormatDefault renders a canonical default value as a SQL literal. Numbers
// and well-known expressions are written raw, everything else is quoted.
func FormatDefault(v string) string {
	upper := strings.ToUpper(strings.TrimSpace(v))
	switch {
	case numericLiteral.MatchString(v):
		return v
	case rawDefaults[upper]:
		return upper
	case strings.HasSuffix(v, ")") && strings.Contains(v, "("):
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// NormalizeDefault turns a dialect's stored default expression into the
// canonical unquoted value: casts and wrapping parentheses are stripped and
// quoted literals are unquoted.
func NormalizeDefault(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	for len(v) >= 2 && v[0] == '(' && v[len(v)-1] == ')' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	v = castSuffix.ReplaceAllString(v, "")
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		v = strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	if strings.EqualFold(v, "NULL") {
		return nil
	}
	return &v
}

// KeyPlan is the key layout of a table definition once column-level key
// markers and explicit indexes have been reconciled.
type KeyPlan struct {
	Primary []string      // primary key columns, in order
	Indexes []model.Index // non-primary indexes to create
}

// PlanKeys reconciles column Key markers with the table's indexes. An
// explicit primary index wins over column markers, and a unique column gets
// a "<table>_<column>_unique" index unless one already covers it.
func PlanKeys(table string, def model.TableSchema) KeyPlan {
	var plan KeyPlan
	covered := make(map[string]bool)

	for _, idx := range def.Indexes {
		if idx.Primary {
			plan.Primary = append([]string(nil), idx.Columns...)
			continue
		}
		if idx.Unique && len(idx.Columns) == 1 {
			covered[idx.Columns[0]] = true
		}
		plan.Indexes = append(plan.Indexes, idx)
	}

	for _, col := range def.Columns {
		switch col.Key {
		case model.KeyPrimary:
			if !hasPrimaryIndex(def.Indexes) {
				plan.Primary = append(plan.Primary, col.Name)
			}
		case model.KeyUnique:
			if !covered[col.Name] {
				plan.Indexes = append(plan.Indexes, model.Index{
					Name:    fmt.Sprintf("%s_%s_unique", table, col.Name),
					Columns: []string{col.Name},
					Unique:  true,
				})
				covered[col.Name] = true
			}
		}
	}
	return plan
}

func hasPrimaryIndex(indexes []model.Index) bool {
	for _, idx := range indexes {
		if idx.Primary {
			return true
		}
	}
	return false
}

// QuoteList quotes and comma-joins identifiers.
func QuoteList(quote QuoteFunc, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// ReferentialAction upper-cases an ON DELETE / ON UPDATE action and maps
// empty or unknown values to "".
func ReferentialAction(action string) string {
	switch a := strings.ToUpper(strings.TrimSpace(action)); a {
	case "CASCADE", "SET NULL", "RESTRICT", "NO ACTION", "SET DEFAULT":
		return a
	}
	return ""
}

// ForeignKeyClause renders "FOREIGN KEY (col) REFERENCES t (col) ON ..."
// without a leading CONSTRAINT name.
func ForeignKeyClause(quote QuoteFunc, fk model.ForeignKey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FOREIGN KEY (%s) REFERENCES %s (%s)",
		quote(fk.Column), quote(fk.ForeignTable), quote(fk.ForeignColumn))
	if a := ReferentialAction(fk.OnDelete); a != "" {
		b.WriteString(" ON DELETE " + a)
	}
	if a := ReferentialAction(fk.OnUpdate); a != "" {
		b.WriteString(" ON UPDATE " + a)
	}
	return b.String()
}

// CanonicalAction lower-cases an action reported by a catalog and drops the
// implicit default so introspected and declared keys compare equal.
func CanonicalAction(action string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	if a == "no action" || a == "" {
		return ""
	}
	return a
}
