package sqlite

import (
	"strings"

	"github.com/faucetdb/safeshift/internal/connector"
)

// token is one lexical unit of stored SQLite DDL. Whitespace runs,
// single-quoted literals and punctuation are tokens too, so joining every
// raw value gives back the input.
type token struct {
	raw    string
	name   string // identifier value with quotes removed
	ident  bool
	quoted bool
}

func (t token) space() bool { return strings.TrimSpace(t.raw) == "" }

// keyword reports whether t is the bare word kw.
func (t token) keyword(kw string) bool {
	return t.ident && !t.quoted && strings.EqualFold(t.raw, kw)
}

func (t token) is(punct string) bool { return !t.ident && t.raw == punct }

func tokenize(sql string) []token {
	var toks []token
	for i := 0; i < len(sql); {
		ch := sql[i]
		switch {
		case ch == '\'':
			j := endQuoted(sql, i, '\'')
			toks = append(toks, token{raw: sql[i:j]})
			i = j
		case ch == '"' || ch == '`' || ch == '[':
			closer := ch
			if ch == '[' {
				closer = ']'
			}
			j := endQuoted(sql, i, closer)
			raw := sql[i:j]
			name := raw[1:]
			if strings.HasSuffix(name, string(closer)) {
				name = name[:len(name)-1]
			}
			if closer != ']' {
				name = strings.ReplaceAll(name, string([]byte{closer, closer}), string(closer))
			}
			toks = append(toks, token{raw: raw, name: name, ident: true, quoted: true})
			i = j
		case isIdentChar(ch):
			j := i
			for j < len(sql) && isIdentChar(sql[j]) {
				j++
			}
			toks = append(toks, token{raw: sql[i:j], name: sql[i:j], ident: true})
			i = j
		case isSpace(ch):
			j := i
			for j < len(sql) && isSpace(sql[j]) {
				j++
			}
			toks = append(toks, token{raw: sql[i:j]})
			i = j
		default:
			toks = append(toks, token{raw: sql[i : i+1]})
			i++
		}
	}
	return toks
}

// closing returns the index of the ")" matching the "(" at toks[open], or
// the last index when the input is unbalanced.
func closing(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch {
		case toks[i].is("("):
			depth++
		case toks[i].is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(toks) - 1
}

func join(toks []token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.raw)
	}
	return b.String()
}

// tableConstraint reports whether a definition starting with t is a table
// constraint rather than a column.
func tableConstraint(t token) bool {
	for _, kw := range []string{"CONSTRAINT", "PRIMARY", "UNIQUE", "CHECK", "FOREIGN"} {
		if t.keyword(kw) {
			return true
		}
	}
	return false
}

// renameColumnRefs renames column from to quote(to) in the parenthesized
// body of a CREATE TABLE statement. In a column definition only the leading
// name and CHECK or generated-column expressions are rewritten, so a type
// that happens to match the column name survives. Table constraints are
// rewritten throughout, except for the columns named after REFERENCES.
func renameColumnRefs(body, from, to string, quote connector.QuoteFunc) string {
	toks := tokenize(body)
	open := -1
	for i, t := range toks {
		if t.is("(") {
			open = i
			break
		}
	}
	if open < 0 {
		return body
	}
	end := closing(toks, open)

	var b strings.Builder
	b.WriteString(join(toks[:open+1]))
	depth, start := 0, open+1
	for i := open + 1; i < end; i++ {
		switch {
		case toks[i].is("("):
			depth++
		case toks[i].is(")"):
			depth--
		case toks[i].is(",") && depth == 0:
			b.WriteString(renameInDefinition(toks[start:i], from, to, quote))
			b.WriteString(",")
			start = i + 1
		}
	}
	b.WriteString(renameInDefinition(toks[start:end], from, to, quote))
	b.WriteString(join(toks[end:]))
	return b.String()
}

func renameInDefinition(def []token, from, to string, quote connector.QuoteFunc) string {
	first := -1
	for i, t := range def {
		if !t.space() {
			first = i
			break
		}
	}
	if first < 0 {
		return join(def)
	}
	if tableConstraint(def[first]) {
		return renameRefs(def, from, to, quote)
	}

	var b strings.Builder
	b.WriteString(join(def[:first]))
	if def[first].ident && strings.EqualFold(def[first].name, from) {
		b.WriteString(quote(to))
	} else {
		b.WriteString(def[first].raw)
	}
	prev := def[first]
	for i := first + 1; i < len(def); i++ {
		t := def[i]
		if t.is("(") {
			end := closing(def, i)
			if prev.keyword("CHECK") || prev.keyword("AS") {
				b.WriteString(renameRefs(def[i:end+1], from, to, quote))
			} else {
				b.WriteString(join(def[i : end+1]))
			}
			i, prev = end, def[end]
			continue
		}
		b.WriteString(t.raw)
		if !t.space() {
			prev = t
		}
	}
	return b.String()
}

// renameRefs rewrites every identifier equal to from (case-insensitive)
// into quote(to). Constraint and collation names are kept, as are the
// table and column list following REFERENCES, which name another table's
// columns.
func renameRefs(toks []token, from, to string, quote connector.QuoteFunc) string {
	const (
		refNone = iota
		refTable
		refColumns
	)

	var b strings.Builder
	state := refNone
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.space():
		case t.keyword("REFERENCES"):
			state = refTable
		case t.keyword("CONSTRAINT") || t.keyword("COLLATE"):
			b.WriteString(t.raw)
			for i+1 < len(toks) && toks[i+1].space() {
				i++
				b.WriteString(toks[i].raw)
			}
			if i+1 < len(toks) {
				i++
				b.WriteString(toks[i].raw)
			}
			state = refNone
			continue
		case t.ident && state == refTable:
			state = refColumns
		case t.is("(") && state == refColumns:
			end := closing(toks, i)
			b.WriteString(join(toks[i : end+1]))
			i, state = end, refNone
			continue
		case t.ident && strings.EqualFold(t.name, from):
			state = refNone
			b.WriteString(quote(to))
			continue
		default:
			state = refNone
		}
		b.WriteString(t.raw)
	}
	return b.String()
}

// foreignKeyNames maps each column of a CREATE TABLE statement to the name
// of the foreign key constraint declared on it, for both
// "CONSTRAINT n FOREIGN KEY (col)" and "col ... CONSTRAINT n REFERENCES".
// Unnamed constraints are absent.
func foreignKeyNames(createSQL string) map[string]string {
	var toks []token
	for _, t := range tokenize(createSQL) {
		if !t.space() {
			toks = append(toks, t)
		}
	}

	names := make(map[string]string)
	depth, column, atStart := 0, "", false
	for i, t := range toks {
		switch {
		case t.is("("):
			depth++
			if depth == 1 {
				atStart = true
			}
			continue
		case t.is(")"):
			depth--
			continue
		case t.is(",") && depth == 1:
			atStart = true
			continue
		}
		if depth != 1 {
			continue
		}
		if atStart {
			atStart = false
			column = ""
			if t.ident && !tableConstraint(t) {
				column = t.name
			}
		}
		if !t.keyword("CONSTRAINT") || i+2 >= len(toks) {
			continue
		}
		name, next := toks[i+1].name, toks[i+2]
		switch {
		case next.keyword("FOREIGN") && i+5 < len(toks) && toks[i+4].is("("):
			names[toks[i+5].name] = name
		case next.keyword("REFERENCES") && column != "":
			names[column] = name
		}
	}
	return names
}

// endQuoted returns the index just past the quoted run starting at i.
// Doubled closers are escapes except inside brackets.
func endQuoted(s string, i int, closer byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != closer {
			continue
		}
		if closer != ']' && j+1 < len(s) && s[j+1] == closer {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') ||
		ch >= 0x80
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
