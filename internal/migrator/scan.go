package migrator

import (
	"regexp"
	"strings"
)

// The scanner reads migration source text rather than running the migration.
// Only literal string table and column names are seen; a name built from a
// variable is invisible to it.

var (
	upMethod  = regexp.MustCompile(`func\s*\([^)]*\)\s*Up\s*\(`)
	tableCall = regexp.MustCompile(`\.(Create|Table|Drop|DropIfExists|Rename)\(\s*"([^"]+)"(?:\s*,\s*"([^"]+)")?`)
	dropCols  = regexp.MustCompile(`\.(DropColumn|DropTimestamps|DropSoftDeletes)\(([^)]*)\)`)
	quoted    = regexp.MustCompile(`"([^"]+)"`)
)

// ColumnDrop names a column a migration drops.
type ColumnDrop struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Scan is what a migration's Up method touches, in source order.
type Scan struct {
	Created        []string
	Modified       []string
	Dropped        []string
	Renamed        [][2]string
	DroppedColumns []ColumnDrop

	tables []string
}

// Tables returns every table the migration references, de-duplicated in
// order of first appearance.
func (s Scan) Tables() []string {
	return s.tables
}

// ScanSource scans the Up method of a migration source file. When no Up
// method is found the whole text is scanned.
func ScanSource(src string) Scan {
	body := upBody(src)
	var s Scan
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			s.tables = append(s.tables, name)
		}
	}

	for _, m := range tableCall.FindAllStringSubmatchIndex(body, -1) {
		call := body[m[2]:m[3]]
		table := body[m[4]:m[5]]
		add(table)
		switch call {
		case "Create":
			s.Created = append(s.Created, table)
		case "Table":
			s.Modified = append(s.Modified, table)
			for _, col := range droppedColumns(callBlock(body, m[1])) {
				s.DroppedColumns = append(s.DroppedColumns, ColumnDrop{Table: table, Column: col})
			}
		case "Drop", "DropIfExists":
			s.Dropped = append(s.Dropped, table)
		case "Rename":
			if m[6] < 0 {
				continue
			}
			to := body[m[6]:m[7]]
			add(to)
			s.Renamed = append(s.Renamed, [2]string{table, to})
		}
	}
	return s
}

// GetAffectedTables returns every table name a migration's Up method creates,
// modifies, drops or renames, de-duplicated in source order.
func GetAffectedTables(src string) []string {
	tables := ScanSource(src).Tables()
	if tables == nil {
		return []string{}
	}
	return tables
}

func upBody(src string) string {
	loc := upMethod.FindStringIndex(src)
	if loc == nil {
		return src
	}
	rest := src[loc[1]:]
	if i := strings.Index(rest, "\nfunc "); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// callBlock returns the first brace-delimited block among the arguments of
// the call whose argument list continues at pos. It returns "" when the call
// closes without one, as when the callback is a variable. Literals are
// skipped.
func callBlock(src string, pos int) string {
	depth := 1
	for i := pos; i < len(src); i++ {
		switch src[i] {
		case '"', '`', '\'':
			i = skipString(src, i)
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return ""
			}
		case '{':
			return block(src, i)
		}
	}
	return ""
}

// block returns the contents of the braces opening at start.
func block(src string, start int) string {
	depth := 0
	for i := start; i < len(src); i++ {
		switch src[i] {
		case '"', '`', '\'':
			i = skipString(src, i)
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[start+1 : i]
			}
		}
	}
	return src[start+1:]
}

// skipString returns the index of the closing quote of the literal at i.
func skipString(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		if q != '`' && src[j] == '\\' {
			j++
			continue
		}
		if src[j] == q {
			return j
		}
	}
	return len(src)
}

func droppedColumns(block string) []string {
	var cols []string
	for _, m := range dropCols.FindAllStringSubmatch(block, -1) {
		switch m[1] {
		case "DropTimestamps":
			cols = append(cols, "created_at", "updated_at")
		case "DropSoftDeletes":
			cols = append(cols, "deleted_at")
		default:
			for _, q := range quoted.FindAllStringSubmatch(m[2], -1) {
				cols = append(cols, q[1])
			}
		}
	}
	return cols
}
