package diff

import (
	"strings"
	"testing"

	"github.com/faucetdb/safeshift/internal/model"
)

func TestSummarize_Empty(t *testing.T) {
	r := Summarize(&Diff{})
	if r.HasChanges || r.HasBreaking || len(r.Items) != 0 {
		t.Errorf("expected empty report, got %+v", r)
	}
	if got := Describe(nil); got != "schemas match" {
		t.Errorf("Describe(nil) = %q", got)
	}
}

func TestSummarize_Classification(t *testing.T) {
	d := &Diff{
		TablesToCreate: map[string]model.TableSchema{"tags": {}},
		TablesToDrop:   []string{"legacy"},
		TablesToModify: map[string]TableDiff{
			"users": {
				ColumnsToAdd: []model.Column{
					{Name: "bio", Type: "text", Nullable: true},
					{Name: "age", Type: "int"},
				},
				ColumnsToModify: []ColumnChange{{
					Name: "name",
					From: model.Column{Name: "name", Type: "varchar(100)"},
					To:   model.Column{Name: "name", Type: "varchar(255)", Nullable: true},
				}},
			},
		},
	}

	r := Summarize(d)
	categories := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		categories = append(categories, string(it.Severity)+":"+it.Category)
	}
	want := []string{
		"additive:table_added",
		"breaking:table_removed",
		"additive:column_added",
		"breaking:column_added",
		"breaking:type_changed",
		"additive:nullable_changed",
	}
	if strings.Join(categories, " ") != strings.Join(want, " ") {
		t.Errorf("got  %v\nwant %v", categories, want)
	}
	if r.AdditiveCount != 3 || r.BreakingCount != 3 || !r.HasBreaking {
		t.Errorf("unexpected counts %+v", r)
	}
	if !strings.Contains(Describe(d), `[breaking] Table "legacy" was removed`) {
		t.Errorf("Describe missing table removal:\n%s", Describe(d))
	}
}
