package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/faucetdb/safeshift/internal/model"
)

// integerLiteral matches defaults that survive a round trip through an int.
var integerLiteral = regexp.MustCompile(`^-?(0|[1-9]\d{0,17})$`)

// integerBuilders maps integer base types to their plain and
// auto-increment builders.
var integerBuilders = map[string][2]string{
	"tinyint":   {"TinyInteger", "TinyIncrements"},
	"smallint":  {"SmallInteger", "SmallIncrements"},
	"mediumint": {"MediumInteger", "MediumIncrements"},
	"int":       {"Integer", "Increments"},
	"integer":   {"Integer", "Increments"},
	"bigint":    {"BigInteger", "BigIncrements"},
}

// simpleBuilders maps base types that take no arguments to their builder.
var simpleBuilders = map[string]string{
	"float":       "Float",
	"real":        "Float",
	"double":      "Double",
	"text":        "Text",
	"tinytext":    "Text",
	"mediumtext":  "MediumText",
	"longtext":    "LongText",
	"bool":        "Boolean",
	"boolean":     "Boolean",
	"date":        "Date",
	"datetime":    "DateTime",
	"timestamp":   "Timestamp",
	"timestamptz": "TimestampTz",
	"time":        "Time",
	"year":        "Year",
	"json":        "JSON",
	"jsonb":       "JSONB",
	"uuid":        "UUID",
	"blob":        "Binary",
	"tinyblob":    "Binary",
	"mediumblob":  "Binary",
	"longblob":    "Binary",
	"binary":      "Binary",
	"varbinary":   "Binary",
	"bytea":       "Binary",
}

func isIntegerBase(base string) bool {
	_, ok := integerBuilders[base]
	return ok
}

// columnCall renders the builder call for a column with its nullable and
// default modifiers. Key modifiers are left to the caller.
func columnCall(col model.Column) string {
	call, implicitUnsigned := builderCall(col)
	ct := model.ParseColumnType(col.Type)
	if ct.Unsigned && !implicitUnsigned {
		call += ".Unsigned()"
	}
	if col.IsAutoIncrement() && !isIntegerBase(ct.Base) {
		call += ".AutoIncrement()"
	}
	if col.Nullable {
		call += ".Nullable()"
	}
	if col.Default != nil {
		call += ".Default(" + defaultLiteral(*col.Default) + ")"
	}
	if strings.EqualFold(col.Extra, "on update current_timestamp") {
		call += ".UseCurrentOnUpdate()"
	}
	return call
}

// builderCall picks the Blueprint method for a column type. The second
// result reports whether the builder already implies unsigned.
func builderCall(col model.Column) (string, bool) {
	ct := model.ParseColumnType(col.Type)
	name := fmt.Sprintf("%q", col.Name)

	if b, ok := integerBuilders[ct.Base]; ok {
		switch {
		case col.IsAutoIncrement() && ct.Base == "bigint" && ct.Unsigned && col.Name == "id":
			return "t.ID()", true
		case col.IsAutoIncrement():
			return fmt.Sprintf("t.%s(%s)", b[1], name), true
		case ct.Base == "tinyint" && len(ct.Args) == 1 && ct.Args[0] == "1":
			return fmt.Sprintf("t.Boolean(%s)", name), false
		}
		return fmt.Sprintf("t.%s(%s)", b[0], name), false
	}

	switch ct.Base {
	case "decimal", "numeric":
		if len(ct.Args) > 0 {
			return fmt.Sprintf("t.Decimal(%s, %s)", name, strings.Join(ct.Args, ", ")), false
		}
		return fmt.Sprintf("t.Decimal(%s)", name), false
	case "varchar", "char":
		method := "String"
		if ct.Base == "char" {
			method = "Char"
		}
		if len(ct.Args) == 1 && ct.Args[0] != "255" {
			return fmt.Sprintf("t.%s(%s, %s)", method, name, ct.Args[0]), false
		}
		return fmt.Sprintf("t.%s(%s)", method, name), false
	case "enum", "set":
		method := "Enum"
		if ct.Base == "set" {
			method = "Set"
		}
		return fmt.Sprintf("t.%s(%s, []string{%s})", method, name, quoteList(ct.Values())), false
	}

	if b, ok := simpleBuilders[ct.Base]; ok {
		return fmt.Sprintf("t.%s(%s)", b, name), false
	}
	return fmt.Sprintf("t.Column(%s, %q)", name, col.Type), false
}

// defaultLiteral renders a default as a Go literal: integers stay integers,
// everything else is a string so "0.00" keeps its scale.
func defaultLiteral(v string) string {
	if integerLiteral.MatchString(v) {
		return v
	}
	return fmt.Sprintf("%q", v)
}

// foreignCall renders a Foreign chain with its referential actions.
func foreignCall(fk model.ForeignKey) string {
	call := fmt.Sprintf("t.Foreign(%q, %q).References(%q).On(%q)", fk.Name, fk.Column, fk.ForeignColumn, fk.ForeignTable)
	call += actionCall(fk.OnDelete, "Delete")
	call += actionCall(fk.OnUpdate, "Update")
	return call
}

func actionCall(action, event string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "":
		return ""
	case "cascade":
		return ".CascadeOn" + event + "()"
	case "set null":
		return ".NullOn" + event + "()"
	case "restrict":
		return ".RestrictOn" + event + "()"
	case "no action":
		return ".NoActionOn" + event + "()"
	}
	return fmt.Sprintf(".On%s(%q)", event, strings.ToLower(action))
}
