package generator

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/safeshift/internal/diff"
	"github.com/faucetdb/safeshift/internal/model"
)

func mustParse(t *testing.T, src string) {
	t.Helper()
	if _, err := parser.ParseFile(token.NewFileSet(), "migration.go", src, 0); err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, src)
	}
}

func assertContains(t *testing.T, src string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(src, want) {
			t.Errorf("missing %q in:\n%s", want, src)
		}
	}
}

func section(t *testing.T, src, method string) string {
	t.Helper()
	start := strings.Index(src, ") "+method+"(s *schema.Builder) error {")
	if start < 0 {
		t.Fatalf("no %s method in:\n%s", method, src)
	}
	end := strings.Index(src[start:], "\n}\n")
	if end < 0 {
		return src[start:]
	}
	return src[start : start+end]
}

func TestBuild_EmptyDiff(t *testing.T) {
	src := Build(diff.Compare(model.Schema{}, model.Schema{}, diff.Options{}), "2024_05_01_120000_sync")
	mustParse(t, src)
	assertContains(t, src,
		"package migrations",
		`import "github.com/faucetdb/safeshift/schema"`,
		`schema.Register("2024_05_01_120000_sync", &m20240501120000Sync{})`,
		"// No changes detected.",
		"// No rollback needed.",
		"return s.Err()",
	)
}

func TestBuild_CreateTable(t *testing.T) {
	d := &diff.Diff{
		TablesToCreate: map[string]model.TableSchema{
			"posts": {
				Columns: []model.Column{
					{Name: "id", Type: "bigint unsigned", Key: model.KeyPrimary, Extra: "auto_increment"},
					{Name: "user_id", Type: "bigint unsigned"},
					{Name: "slug", Type: "varchar(255)", Key: model.KeyUnique},
					{Name: "title", Type: "varchar(120)"},
					{Name: "status", Type: "enum('draft','published')", Default: model.StringPtr("draft")},
					{Name: "price", Type: "decimal(8,2)", Default: model.StringPtr("0.00")},
					{Name: "views", Type: "int unsigned", Default: model.StringPtr("0")},
					{Name: "rating", Type: "decimal"},
					{Name: "published", Type: "tinyint(1)", Default: model.StringPtr("0")},
					{Name: "body", Type: "longtext", Nullable: true},
					{Name: "meta", Type: "json", Nullable: true},
					{Name: "location", Type: "point"},
					{Name: "created_at", Type: "timestamp", Nullable: true},
					{Name: "updated_at", Type: "timestamp", Nullable: true},
					{Name: "deleted_at", Type: "timestamp", Nullable: true},
				},
				Indexes: []model.Index{
					{Name: "posts_title_body_fulltext", Columns: []string{"title", "body"}, Type: "FULLTEXT"},
				},
				ForeignKeys: []model.ForeignKey{
					{Name: "posts_user_id_foreign", Column: "user_id", ForeignTable: "users", ForeignColumn: "id", OnDelete: "cascade", OnUpdate: "no action"},
				},
			},
		},
	}

	src := Build(d, "2024_05_01_120000_create_posts")
	mustParse(t, src)

	up := section(t, src, "Up")
	assertContains(t, up,
		`s.Create("posts", func(t *schema.Blueprint) {`,
		`t.ID()`,
		`t.BigInteger("user_id").Unsigned()`,
		`t.String("slug").Unique()`,
		`t.String("title", 120)`,
		`t.Enum("status", []string{"draft", "published"}).Default("draft")`,
		`t.Decimal("price", 8, 2).Default("0.00")`,
		`t.Integer("views").Unsigned().Default(0)`,
		`t.Decimal("rating")`,
		`t.Boolean("published").Default(0)`,
		`t.LongText("body").Nullable()`,
		`t.JSON("meta").Nullable()`,
		`t.Column("location", "point")`,
		`t.Timestamps()`,
		`t.SoftDeletes()`,
		`t.FullText("posts_title_body_fulltext", "title", "body")`,
		`t.Foreign("posts_user_id_foreign", "user_id").References("id").On("users").CascadeOnDelete().NoActionOnUpdate()`,
	)
	for _, unwanted := range []string{`"created_at"`, `"updated_at"`, `"deleted_at"`, `t.ID().Primary()`} {
		if strings.Contains(up, unwanted) {
			t.Errorf("shorthand not applied, found %s in:\n%s", unwanted, up)
		}
	}

	down := section(t, src, "Down")
	assertContains(t, down, `s.DropIfExists("posts")`)
}

func TestBuild_TimestampsRequireBothColumns(t *testing.T) {
	d := &diff.Diff{TablesToCreate: map[string]model.TableSchema{
		"logs": {Columns: []model.Column{
			{Name: "created_at", Type: "timestamp", Nullable: true},
			{Name: "updated_at", Type: "varchar(20)", Nullable: true},
		}},
	}}
	src := Build(d, "logs")
	if strings.Contains(src, "t.Timestamps()") {
		t.Errorf("expected no Timestamps shorthand:\n%s", src)
	}
	assertContains(t, src, `t.Timestamp("created_at").Nullable()`, `t.String("updated_at", 20).Nullable()`)
}

func TestBuild_CompositePrimaryKey(t *testing.T) {
	d := &diff.Diff{TablesToCreate: map[string]model.TableSchema{
		"role_user": {Columns: []model.Column{
			{Name: "role_id", Type: "int", Key: model.KeyPrimary},
			{Name: "user_id", Type: "int", Key: model.KeyPrimary},
		}},
		"codes": {Columns: []model.Column{
			{Name: "code", Type: "char(3)", Key: model.KeyPrimary},
		}},
	}}
	src := Build(d, "pivots")
	mustParse(t, src)
	assertContains(t, src,
		`t.Primary("role_id", "user_id")`,
		`t.Char("code", 3).Primary()`,
	)
}

func TestBuild_DropTable(t *testing.T) {
	d := &diff.Diff{TablesToDrop: []string{"legacy"}}
	src := Build(d, "drop_legacy")
	mustParse(t, src)

	assertContains(t, section(t, src, "Up"), `s.DropIfExists("legacy")`)
	down := section(t, src, "Down")
	if strings.Contains(down, `s.Create("legacy"`) || strings.Contains(down, `s.DropIfExists("legacy")`) {
		t.Errorf("a dropped table must not be recreated in Down:\n%s", down)
	}
}

func TestBuild_ModifyTable(t *testing.T) {
	source := model.Schema{"users": {
		Columns: []model.Column{
			{Name: "id", Type: "int", Key: model.KeyPrimary, Extra: "auto_increment"},
			{Name: "user_name", Type: "varchar(100)"},
			{Name: "old_email", Type: "varchar(255)"},
			{Name: "age", Type: "smallint"},
		},
		Indexes: []model.Index{{Name: "users_old_email_index", Columns: []string{"old_email"}}},
	}}
	target := model.Schema{"users": {
		Columns: []model.Column{
			{Name: "id", Type: "int", Key: model.KeyPrimary, Extra: "auto_increment"},
			{Name: "username", Type: "varchar(100)"},
			{Name: "age", Type: "int", Nullable: true},
			{Name: "bio", Type: "text", Nullable: true},
		},
		Indexes: []model.Index{{Name: "users_username_index", Columns: []string{"username"}, Type: "HASH"}},
		ForeignKeys: []model.ForeignKey{
			{Name: "users_team_id_foreign", Column: "team_id", ForeignTable: "teams", ForeignColumn: "id", OnDelete: "set null"},
		},
	}}

	src := Build(diff.Compare(source, target, diff.Options{}), "2024_05_02_000000_rework_users")
	mustParse(t, src)

	up := section(t, src, "Up")
	assertContains(t, up,
		`s.Table("users", func(t *schema.Blueprint) {`,
		`t.DropIndex("users_old_email_index")`,
		`t.RenameColumn("user_name", "username")`,
		`t.Integer("age").Nullable().Change()`,
		`t.Text("bio").Nullable()`,
		`t.DropColumn("old_email")`,
		`t.Index("users_username_index", "username").Algorithm("HASH")`,
		`t.Foreign("users_team_id_foreign", "team_id").References("id").On("teams").NullOnDelete()`,
	)
	if strings.Index(up, "DropIndex") > strings.Index(up, "DropColumn") {
		t.Errorf("indexes must be dropped before columns:\n%s", up)
	}

	down := section(t, src, "Down")
	assertContains(t, down,
		`t.DropForeign("users_team_id_foreign")`,
		`t.DropIndex("users_username_index")`,
		`t.DropColumn("bio")`,
		`// Previous type: smallint`,
		`t.SmallInteger("age").Change()`,
		`t.RenameColumn("username", "user_name")`,
		`// TODO: re-add dropped column "old_email"`,
		`// TODO: recreate dropped index "users_old_email_index"`,
	)
}

func TestBuild_Deterministic(t *testing.T) {
	d := &diff.Diff{
		TablesToCreate: map[string]model.TableSchema{
			"b": {Columns: []model.Column{{Name: "id", Type: "int"}}},
			"a": {Columns: []model.Column{{Name: "id", Type: "int"}}},
			"c": {Columns: []model.Column{{Name: "id", Type: "int"}}},
		},
	}
	first := Build(d, "x")
	for i := 0; i < 10; i++ {
		if got := Build(d, "x"); got != first {
			t.Fatalf("output changed between runs")
		}
	}
	if !(strings.Index(first, `s.Create("a"`) < strings.Index(first, `s.Create("b"`) &&
		strings.Index(first, `s.Create("b"`) < strings.Index(first, `s.Create("c"`)) {
		t.Errorf("creates are not sorted:\n%s", first)
	}
}

func TestBuild_UpOrder(t *testing.T) {
	d := &diff.Diff{
		TablesToCreate: map[string]model.TableSchema{"z_new": {Columns: []model.Column{{Name: "id", Type: "int"}}}},
		TablesToDrop:   []string{"a_old"},
		TablesToModify: map[string]diff.TableDiff{"m": {ColumnsToDrop: []string{"x"}}},
	}
	up := section(t, Build(d, "order"), "Up")
	create := strings.Index(up, `s.Create("z_new"`)
	drop := strings.Index(up, `s.DropIfExists("a_old")`)
	modify := strings.Index(up, `s.Table("m"`)
	if !(create < drop && drop < modify) {
		t.Errorf("expected creates, drops, modifies in that order:\n%s", up)
	}
}

func TestColumnCall(t *testing.T) {
	tests := []struct {
		col  model.Column
		want string
	}{
		{model.Column{Name: "id", Type: "bigint unsigned", Extra: "auto_increment"}, `t.ID()`},
		{model.Column{Name: "post_id", Type: "bigint unsigned", Extra: "auto_increment"}, `t.BigIncrements("post_id")`},
		{model.Column{Name: "id", Type: "int unsigned", Extra: "auto_increment"}, `t.Increments("id")`},
		{model.Column{Name: "id", Type: "tinyint unsigned", Extra: "auto_increment"}, `t.TinyIncrements("id")`},
		{model.Column{Name: "id", Type: "smallint", Extra: "auto_increment"}, `t.SmallIncrements("id")`},
		{model.Column{Name: "id", Type: "mediumint unsigned", Extra: "auto_increment"}, `t.MediumIncrements("id")`},
		{model.Column{Name: "n", Type: "mediumint"}, `t.MediumInteger("n")`},
		{model.Column{Name: "n", Type: "tinyint"}, `t.TinyInteger("n")`},
		{model.Column{Name: "amount", Type: "double"}, `t.Double("amount")`},
		{model.Column{Name: "ratio", Type: "float", Nullable: true}, `t.Float("ratio").Nullable()`},
		{model.Column{Name: "code", Type: "char(255)"}, `t.Char("code")`},
		{model.Column{Name: "perms", Type: "set('r','w','it''s')"}, `t.Set("perms", []string{"r", "w", "it's"})`},
		{model.Column{Name: "born", Type: "date"}, `t.Date("born")`},
		{model.Column{Name: "at", Type: "datetime"}, `t.DateTime("at")`},
		{model.Column{Name: "at", Type: "time"}, `t.Time("at")`},
		{model.Column{Name: "y", Type: "year"}, `t.Year("y")`},
		{model.Column{Name: "doc", Type: "jsonb"}, `t.JSONB("doc")`},
		{model.Column{Name: "raw", Type: "varbinary(16)"}, `t.Binary("raw")`},
		{model.Column{Name: "uid", Type: "uuid"}, `t.UUID("uid")`},
		{model.Column{Name: "at", Type: "timestamptz"}, `t.TimestampTz("at")`},
		{model.Column{Name: "m", Type: "mediumtext"}, `t.MediumText("m")`},
		{model.Column{Name: "updated_at", Type: "timestamp", Default: model.StringPtr("CURRENT_TIMESTAMP"), Extra: "on update current_timestamp"}, `t.Timestamp("updated_at").Default("CURRENT_TIMESTAMP").UseCurrentOnUpdate()`},
		{model.Column{Name: "seq", Type: "decimal(20,0)", Extra: "auto_increment"}, `t.Decimal("seq", 20, 0).AutoIncrement()`},
		{model.Column{Name: "zip", Type: "varchar(5)", Default: model.StringPtr("007")}, `t.String("zip", 5).Default("007")`},
		{model.Column{Name: "temp", Type: "int", Default: model.StringPtr("-4")}, `t.Integer("temp").Default(-4)`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := columnCall(tt.col); got != tt.want {
				t.Errorf("columnCall(%+v) = %s, want %s", tt.col, got, tt.want)
			}
		})
	}
}

func TestTypeName(t *testing.T) {
	tests := map[string]string{
		"2024_05_01_120000_add_users": "m20240501120000AddUsers",
		"sync":                        "mSync",
		"fix-the thing":               "mFixTheThing",
	}
	for in, want := range tests {
		if got := TypeName(in); got != want {
			t.Errorf("TypeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrationName(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]string{
		"add users":      "2024_05_01_120000_add_users",
		"syncDrift":      "2024_05_01_120000_sync_drift",
		"HTTPLog":        "2024_05_01_120000_httplog",
		"fix--the thing": "2024_05_01_120000_fix_the_thing",
		"  ":             "2024_05_01_120000_sync",
	}
	for in, want := range tests {
		if got := MigrationName(now, in); got != want {
			t.Errorf("MigrationName(%q) = %q, want %q", in, got, want)
		}
	}
}
