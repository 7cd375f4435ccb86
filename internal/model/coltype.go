package model

import "strings"

// ColumnType is a parsed canonical column type such as "decimal(8,2)" or
// "int unsigned".
type ColumnType struct {
	Base     string   // lower-cased type name without arguments, e.g. "varchar"
	Args     []string // raw arguments inside the parentheses, quotes preserved
	Unsigned bool
}

// ParseColumnType splits a canonical type string into its base name,
// arguments and the unsigned flag. Unknown shapes parse into Base only.
func ParseColumnType(t string) ColumnType {
	s := strings.TrimSpace(t)
	lower := strings.ToLower(s)

	var ct ColumnType
	if strings.HasSuffix(lower, " zerofill") {
		lower = strings.TrimSuffix(lower, " zerofill")
		s = s[:len(lower)]
	}
	if strings.HasSuffix(lower, " unsigned") {
		ct.Unsigned = true
		lower = strings.TrimSpace(strings.TrimSuffix(lower, " unsigned"))
		s = s[:len(lower)]
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		ct.Base = lower
		return ct
	}
	ct.Base = strings.TrimSpace(lower[:open])
	ct.Args = splitArgs(s[open+1 : len(s)-1])
	return ct
}

// String renders the type back into canonical form.
func (ct ColumnType) String() string {
	var b strings.Builder
	b.WriteString(ct.Base)
	if len(ct.Args) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(ct.Args, ","))
		b.WriteByte(')')
	}
	if ct.Unsigned {
		b.WriteString(" unsigned")
	}
	return b.String()
}

// Values returns the unquoted member list of an enum or set type.
func (ct ColumnType) Values() []string {
	out := make([]string, 0, len(ct.Args))
	for _, a := range ct.Args {
		a = strings.TrimSpace(a)
		if len(a) >= 2 && a[0] == '\'' && a[len(a)-1] == '\'' {
			a = strings.ReplaceAll(a[1:len(a)-1], "''", "'")
		}
		out = append(out, a)
	}
	return out
}

// splitArgs splits on commas that are not inside single-quoted strings.
func splitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '\'' && inQuote && i+1 < len(s) && s[i+1] == '\'':
			cur.WriteString("''")
			i++
		case ch == '\'':
			inQuote = !inQuote
			cur.WriteByte(ch)
		case ch == ',' && !inQuote:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" || len(args) > 0 {
		args = append(args, rest)
	}
	return args
}
