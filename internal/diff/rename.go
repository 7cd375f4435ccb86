package diff

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/faucetdb/safeshift/internal/model"
)

// DefaultRenameThreshold is the similarity a dropped and an added column
// name must reach to be treated as a rename.
const DefaultRenameThreshold = 0.6

// containmentScore is the similarity given to a name that contains the
// other, as in "email" and "email_address".
const containmentScore = 0.8

// minContainedLen keeps short names like "id" from matching everything.
const minContainedLen = 3

// Similarity scores two column names between 0 and 1: the Levenshtein ratio,
// raised to containmentScore when one name contains the other.
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	score := 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)

	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= minContainedLen && strings.Contains(long, short) && score < containmentScore {
		score = containmentScore
	}
	return score
}

// typeFamilies groups interchangeable base types.
var typeFamilies = map[string]string{
	"varchar":     "string",
	"char":        "string",
	"text":        "string",
	"tinytext":    "string",
	"mediumtext":  "string",
	"longtext":    "string",
	"int":         "integer",
	"integer":     "integer",
	"bigint":      "integer",
	"smallint":    "integer",
	"tinyint":     "integer",
	"mediumint":   "integer",
	"decimal":     "decimal",
	"numeric":     "decimal",
	"float":       "decimal",
	"double":      "decimal",
	"real":        "decimal",
	"datetime":    "datetime",
	"timestamp":   "datetime",
	"timestamptz": "datetime",
}

// TypeFamily returns the family of a canonical column type, or "" when the
// type belongs to none.
func TypeFamily(t string) string {
	return typeFamilies[model.ParseColumnType(t).Base]
}

// sameType reports an exact match of two canonical type strings.
func sameType(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// TypesCompatible reports whether a column could be renamed from type a to
// type b: the same type, or two types of the same family.
func TypesCompatible(a, b string) bool {
	if sameType(a, b) {
		return true
	}
	fa := TypeFamily(a)
	return fa != "" && fa == TypeFamily(b)
}

// DetectRenames pairs dropped columns with added ones. Each dropped column,
// in order, takes the first added column that is similar enough and has
// the same type; failing that, the first one of a compatible type. A column
// joins at most one pair.
func DetectRenames(dropped, added []model.Column, threshold float64) []ColumnRename {
	var renames []ColumnRename
	used := make([]bool, len(added))

	pick := func(d model.Column, match func(a, b string) bool) int {
		for i, a := range added {
			if used[i] || !match(d.Type, a.Type) {
				continue
			}
			if Similarity(d.Name, a.Name) >= threshold {
				return i
			}
		}
		return -1
	}

	for _, d := range dropped {
		i := pick(d, sameType)
		if i < 0 {
			i = pick(d, TypesCompatible)
		}
		if i < 0 {
			continue
		}
		used[i] = true
		renames = append(renames, ColumnRename{From: d.Name, To: added[i].Name})
	}
	return renames
}
