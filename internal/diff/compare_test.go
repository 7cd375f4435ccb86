package diff

import (
	"reflect"
	"testing"

	"github.com/faucetdb/safeshift/internal/model"
)

func usersSchema() model.Schema {
	return model.Schema{
		"users": {
			Columns: []model.Column{
				{Name: "id", Type: "bigint unsigned", Key: model.KeyPrimary, Extra: "auto_increment"},
				{Name: "user_name", Type: "varchar(100)"},
				{Name: "email", Type: "varchar(255)", Key: model.KeyUnique},
			},
			Indexes: []model.Index{
				{Name: "users_email_unique", Columns: []string{"email"}, Unique: true},
			},
		},
		"posts": {
			Columns: []model.Column{
				{Name: "id", Type: "bigint unsigned", Key: model.KeyPrimary, Extra: "auto_increment"},
				{Name: "user_id", Type: "bigint unsigned"},
			},
			ForeignKeys: []model.ForeignKey{
				{Name: "posts_user_id_foreign", Column: "user_id", ForeignTable: "users", ForeignColumn: "id", OnDelete: "cascade"},
			},
		},
	}
}

func TestCompare_Identical(t *testing.T) {
	s := usersSchema()
	d := Compare(s, s, Options{})
	if !d.IsEmpty() {
		t.Fatalf("expected empty diff, got %+v", d)
	}
	if len(d.TablesToCreate) != 0 || len(d.TablesToDrop) != 0 || len(d.TablesToModify) != 0 {
		t.Errorf("expected no entries in any bucket, got %+v", d)
	}
}

func TestCompare_NoDriftScenario(t *testing.T) {
	live := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "integer"}}, Indexes: []model.Index{}, ForeignKeys: []model.ForeignKey{}}}
	// A snapshot read back from YAML has nil slices where live has empty ones.
	baseline := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "integer"}}}}

	if d := Compare(baseline, live, Options{}); !d.IsEmpty() {
		t.Errorf("expected no drift, got %s", Describe(d))
	}
}

func TestCompare_MissingTable(t *testing.T) {
	baseline := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "int"}}}}
	live := model.Schema{}

	drift := Compare(baseline, live, Options{})
	if !reflect.DeepEqual(drift.TablesToDrop, []string{"users"}) {
		t.Errorf("drift direction: expected users in TablesToDrop, got %v", drift.TablesToDrop)
	}
	if len(drift.TablesToCreate) != 0 {
		t.Errorf("drift direction: expected nothing to create, got %v", drift.CreateNames())
	}

	sync := Compare(live, baseline, Options{})
	if _, ok := sync.TablesToCreate["users"]; !ok {
		t.Errorf("sync direction: expected users in TablesToCreate, got %v", sync.CreateNames())
	}
	if len(sync.TablesToDrop) != 0 {
		t.Errorf("sync direction: expected nothing to drop, got %v", sync.TablesToDrop)
	}
}

func TestCompare_RenameBoundary(t *testing.T) {
	tests := []struct {
		name       string
		from, to   model.Column
		wantRename bool
	}{
		{"similar name same type", model.Column{Name: "user_name", Type: "varchar(100)"}, model.Column{Name: "username", Type: "varchar(100)"}, true},
		{"dissimilar name same type", model.Column{Name: "email", Type: "varchar(255)"}, model.Column{Name: "password", Type: "varchar(255)"}, false},
		{"similar name compatible family", model.Column{Name: "total", Type: "int"}, model.Column{Name: "totals", Type: "bigint"}, true},
		{"similar name incompatible family", model.Column{Name: "created", Type: "varchar(20)"}, model.Column{Name: "created_on", Type: "datetime"}, false},
		{"containment", model.Column{Name: "email", Type: "varchar(255)"}, model.Column{Name: "email_address", Type: "text"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "int"}, tt.from}}}
			target := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "int"}, tt.to}}}

			td := Compare(source, target, Options{}).TablesToModify["users"]
			if tt.wantRename {
				want := []ColumnRename{{From: tt.from.Name, To: tt.to.Name}}
				if !reflect.DeepEqual(td.ColumnsToRename, want) {
					t.Errorf("expected rename %v, got %v", want, td.ColumnsToRename)
				}
				if len(td.ColumnsToAdd) != 0 || len(td.ColumnsToDrop) != 0 {
					t.Errorf("rename must consume the add/drop pair, got add=%v drop=%v", td.ColumnsToAdd, td.ColumnsToDrop)
				}
				return
			}
			if len(td.ColumnsToRename) != 0 {
				t.Errorf("expected no rename, got %v", td.ColumnsToRename)
			}
			if len(td.ColumnsToAdd) != 1 || td.ColumnsToAdd[0].Name != tt.to.Name {
				t.Errorf("expected %s added, got %v", tt.to.Name, td.ColumnsToAdd)
			}
			if !reflect.DeepEqual(td.ColumnsToDrop, []string{tt.from.Name}) {
				t.Errorf("expected %s dropped, got %v", tt.from.Name, td.ColumnsToDrop)
			}
		})
	}
}

func TestCompare_RenameAcrossFamilyMemberAlsoModifies(t *testing.T) {
	source := model.Schema{"t": {Columns: []model.Column{{Name: "total", Type: "int"}}}}
	target := model.Schema{"t": {Columns: []model.Column{{Name: "totals", Type: "bigint"}}}}

	td := Compare(source, target, Options{}).TablesToModify["t"]
	if len(td.ColumnsToModify) != 1 {
		t.Fatalf("expected one modify entry, got %v", td.ColumnsToModify)
	}
	ch := td.ColumnsToModify[0]
	if ch.Name != "totals" || ch.From.Type != "int" || ch.To.Type != "bigint" {
		t.Errorf("unexpected change %+v", ch)
	}
}

func TestCompare_RenameConsumesEachNameOnce(t *testing.T) {
	source := model.Schema{"t": {Columns: []model.Column{
		{Name: "first_name", Type: "varchar(50)"},
		{Name: "first_nam", Type: "varchar(50)"},
	}}}
	target := model.Schema{"t": {Columns: []model.Column{
		{Name: "firstname", Type: "varchar(50)"},
	}}}

	td := Compare(source, target, Options{}).TablesToModify["t"]
	if !reflect.DeepEqual(td.ColumnsToRename, []ColumnRename{{From: "first_name", To: "firstname"}}) {
		t.Errorf("expected first dropped column to win, got %v", td.ColumnsToRename)
	}
	if !reflect.DeepEqual(td.ColumnsToDrop, []string{"first_nam"}) {
		t.Errorf("expected the loser to be dropped, got %v", td.ColumnsToDrop)
	}
	for _, name := range td.ColumnsToDrop {
		for _, r := range td.ColumnsToRename {
			if r.From == name {
				t.Errorf("column %s is both dropped and renamed", name)
			}
		}
	}
}

func TestCompare_ExactTypePreferredOverFamily(t *testing.T) {
	dropped := []model.Column{{Name: "amount", Type: "int"}}
	added := []model.Column{
		{Name: "amounts", Type: "bigint"},
		{Name: "amount_", Type: "int"},
	}
	got := DetectRenames(dropped, added, DefaultRenameThreshold)
	if !reflect.DeepEqual(got, []ColumnRename{{From: "amount", To: "amount_"}}) {
		t.Errorf("expected the exact type match, got %v", got)
	}
}

func TestCompare_ModifiedColumn(t *testing.T) {
	source := model.Schema{"users": {Columns: []model.Column{{Name: "name", Type: "varchar(100)"}}}}
	target := model.Schema{"users": {Columns: []model.Column{{Name: "name", Type: "varchar(255)", Nullable: true, Default: model.StringPtr("anon")}}}}

	td := Compare(source, target, Options{}).TablesToModify["users"]
	if len(td.ColumnsToModify) != 1 {
		t.Fatalf("expected one modified column, got %v", td.ColumnsToModify)
	}
	ch := td.ColumnsToModify[0]
	if ch.From.Type != "varchar(100)" || ch.To.Type != "varchar(255)" {
		t.Errorf("unexpected change %+v", ch)
	}
}

func TestCompare_DefaultsAndTypeCase(t *testing.T) {
	source := model.Schema{"t": {Columns: []model.Column{{Name: "c", Type: "VARCHAR(10)", Default: model.StringPtr("x")}}}}
	same := model.Schema{"t": {Columns: []model.Column{{Name: "c", Type: "varchar(10)", Default: model.StringPtr("x")}}}}
	changed := model.Schema{"t": {Columns: []model.Column{{Name: "c", Type: "varchar(10)"}}}}

	if d := Compare(source, same, Options{}); !d.IsEmpty() {
		t.Errorf("type case must not matter, got %s", Describe(d))
	}
	if d := Compare(source, changed, Options{}); d.IsEmpty() {
		t.Error("dropping a default must be a modification")
	}
}

func TestCompare_IgnoredColumns(t *testing.T) {
	baseline := model.Schema{"users": {Columns: []model.Column{{Name: "id", Type: "int"}}}}
	live := model.Schema{"users": {Columns: []model.Column{
		{Name: "id", Type: "int"},
		{Name: "created_at", Type: "timestamp", Nullable: true},
		{Name: "updated_at", Type: "timestamp", Nullable: true},
	}}}

	d := Compare(baseline, live, Options{IgnoredColumns: []string{"created_at", "updated_at"}})
	if !d.IsEmpty() {
		t.Errorf("ignored columns leaked into the diff: %s", Describe(d))
	}

	d = Compare(baseline, live, Options{})
	if got := len(d.TablesToModify["users"].ColumnsToAdd); got != 2 {
		t.Errorf("expected 2 added columns without ignores, got %d", got)
	}
}

func TestCompare_IgnoredTables(t *testing.T) {
	baseline := model.Schema{}
	live := model.Schema{"migrations": {Columns: []model.Column{{Name: "id", Type: "int"}}}}

	if d := Compare(baseline, live, Options{IgnoredTables: []string{"migrations"}}); !d.IsEmpty() {
		t.Errorf("ignored table leaked into the diff: %s", Describe(d))
	}
}

func TestCompare_IndexesAndForeignKeys(t *testing.T) {
	source := usersSchema()
	target := usersSchema()

	users := target["users"]
	users.Indexes = []model.Index{
		{Name: "users_email_unique", Columns: []string{"email", "id"}, Unique: true},
		{Name: "users_user_name_index", Columns: []string{"user_name"}},
	}
	target["users"] = users

	posts := target["posts"]
	posts.ForeignKeys = []model.ForeignKey{
		{Name: "posts_user_id_foreign", Column: "user_id", ForeignTable: "users", ForeignColumn: "id", OnDelete: "set null"},
	}
	target["posts"] = posts

	d := Compare(source, target, Options{})

	ud := d.TablesToModify["users"]
	if !reflect.DeepEqual(ud.IndexesToDrop, []string{"users_email_unique"}) {
		t.Errorf("changed index must be dropped, got %v", ud.IndexesToDrop)
	}
	if len(ud.IndexesToAdd) != 2 || ud.IndexesToAdd[0].Name != "users_email_unique" || ud.IndexesToAdd[1].Name != "users_user_name_index" {
		t.Errorf("unexpected index adds %v", ud.IndexesToAdd)
	}

	pd := d.TablesToModify["posts"]
	if !reflect.DeepEqual(pd.ForeignKeysToDrop, []string{"posts_user_id_foreign"}) || len(pd.ForeignKeysToAdd) != 1 {
		t.Errorf("changed foreign key must be drop+add, got drop=%v add=%v", pd.ForeignKeysToDrop, pd.ForeignKeysToAdd)
	}
}

func TestCompare_EquivalentIndexTypesAndActions(t *testing.T) {
	source := model.Schema{"t": {
		Indexes:     []model.Index{{Name: "i", Columns: []string{"a"}}},
		ForeignKeys: []model.ForeignKey{{Name: "f", Column: "a", ForeignTable: "u", ForeignColumn: "id"}},
	}}
	target := model.Schema{"t": {
		Indexes:     []model.Index{{Name: "i", Columns: []string{"a"}, Type: "BTREE"}},
		ForeignKeys: []model.ForeignKey{{Name: "f", Column: "a", ForeignTable: "u", ForeignColumn: "id", OnDelete: "NO ACTION"}},
	}}
	if d := Compare(source, target, Options{}); !d.IsEmpty() {
		t.Errorf("expected equivalent definitions to match, got %s", Describe(d))
	}
}

func TestCompare_Deterministic(t *testing.T) {
	source := usersSchema()
	target := model.Schema{}
	for i := 0; i < 20; i++ {
		d := Compare(source, target, Options{})
		if !reflect.DeepEqual(d.TablesToDrop, []string{"posts", "users"}) {
			t.Fatalf("iteration %d: expected sorted drops, got %v", i, d.TablesToDrop)
		}
	}
}

func TestDiffTables(t *testing.T) {
	d := &Diff{
		TablesToCreate: map[string]model.TableSchema{"b": {}},
		TablesToDrop:   []string{"c", "a"},
		TablesToModify: map[string]TableDiff{"b": {ColumnsToDrop: []string{"x"}}},
	}
	if got := d.Tables(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Tables() = %v", got)
	}
}
