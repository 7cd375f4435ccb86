package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/safeshift/schema"
)

type funcMigration struct {
	up, down func(s *schema.Builder)
}

func (f funcMigration) Up(s *schema.Builder) error {
	if f.up != nil {
		f.up(s)
	}
	return s.Err()
}

func (f funcMigration) Down(s *schema.Builder) error {
	if f.down != nil {
		f.down(s)
	}
	return s.Err()
}

// cliHarness runs commands against a SQLite file and an in-memory
// filesystem holding /migrations and /snapshots.
type cliHarness struct {
	dsn         string
	fs          afero.Fs
	registry    *schema.Registry
	interactive bool
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Setenv("SAFESHIFT_DATABASE_DRIVER", "")
	t.Setenv("SAFESHIFT_DATABASE_DSN", "")
	return &cliHarness{
		dsn:      filepath.Join(t.TempDir(), "app.db"),
		fs:       afero.NewMemMapFs(),
		registry: schema.NewRegistry(),
	}
}

// run executes one command line. Every run gets a fresh command tree and
// viper instance, as separate process invocations would.
func (h *cliHarness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	e := &env{
		v:           viper.New(),
		migrations:  h.registry,
		fs:          h.fs,
		interactive: func() bool { return h.interactive },
	}
	cmd := newRootCmd(e, "1.2.3", "abc123", "2024-05-01")

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--no-color",
		"--driver", "sqlite",
		"--dsn", h.dsn,
		"--migrations-dir", "/migrations",
		"--snapshots-dir", "/snapshots",
	}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// exec runs SQL directly against the harness database.
func (h *cliHarness) exec(t *testing.T, stmts ...string) {
	t.Helper()
	db, err := sqlx.Open("sqlite", h.dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func (h *cliHarness) tableExists(t *testing.T, table string) bool {
	t.Helper()
	db, err := sqlx.Open("sqlite", h.dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table); err != nil {
		t.Fatalf("table lookup: %v", err)
	}
	return n > 0
}

// add writes a migration source file and registers its implementation.
func (h *cliHarness) add(t *testing.T, name, upBody string, mig schema.Migration) {
	t.Helper()
	src := "package migrations\n\nfunc (m *x) Up(s *schema.Builder) error {\n" + upBody + "\n\treturn s.Err()\n}\n"
	if err := afero.WriteFile(h.fs, "/migrations/"+name+".go", []byte(src), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	h.registry.Register(name, mig)
}

func (h *cliHarness) addCreatePosts(t *testing.T) {
	t.Helper()
	h.add(t, "2024_01_01_000000_create_posts", `	s.Create("posts", func(t *schema.Blueprint) { t.ID(); t.String("title") })`,
		funcMigration{up: func(s *schema.Builder) {
			s.Create("posts", func(t *schema.Blueprint) {
				t.ID()
				t.String("title")
			})
		}})
}

func TestVersion(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "safeshift 1.2.3") || !strings.Contains(out, "abc123") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = h.run(t, "", "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["version"] != "1.2.3" {
		t.Errorf("version = %q", info["version"])
	}
}

func TestMigrateStatusRollback(t *testing.T) {
	h := newCLIHarness(t)
	h.addCreatePosts(t)

	out, err := h.run(t, "", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Pending") {
		t.Errorf("status before migrate:\n%s", out)
	}

	out, err = h.run(t, "", "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "2024_01_01_000000_create_posts") {
		t.Errorf("migrate output:\n%s", out)
	}
	if !h.tableExists(t, "posts") {
		t.Fatal("posts table was not created")
	}

	out, err = h.run(t, "", "migrate")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !strings.Contains(out, "Nothing to migrate.") {
		t.Errorf("second migrate output:\n%s", out)
	}

	out, err = h.run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(rows) != 1 || rows[0]["ran"] != true || rows[0]["batch"] != float64(1) {
		t.Errorf("status rows = %v", rows)
	}

	if _, err := h.run(t, "", "rollback"); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("non-interactive rollback without --force: err = %v", err)
	}

	out, err = h.run(t, "", "rollback", "--force")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(out, "rolled back 2024_01_01_000000_create_posts") {
		t.Errorf("rollback output:\n%s", out)
	}

	out, err = h.run(t, "", "rollback", "--force")
	if err != nil {
		t.Fatalf("second rollback: %v", err)
	}
	if !strings.Contains(out, "Nothing to roll back.") {
		t.Errorf("second rollback output:\n%s", out)
	}
}

func TestRollbackConfirmation(t *testing.T) {
	h := newCLIHarness(t)
	h.addCreatePosts(t)
	h.interactive = true

	if _, err := h.run(t, "", "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := h.run(t, "n\n", "rollback")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(out, "Rollback cancelled.") {
		t.Errorf("declined rollback output:\n%s", out)
	}

	out, err = h.run(t, "yes\n", "rollback")
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(out, "rolled back") {
		t.Errorf("confirmed rollback output:\n%s", out)
	}
}

func TestMigratePretend(t *testing.T) {
	h := newCLIHarness(t)
	h.addCreatePosts(t)

	out, err := h.run(t, "", "migrate", "--pretend")
	if err != nil {
		t.Fatalf("migrate --pretend: %v", err)
	}
	if !strings.Contains(out, `CREATE TABLE "posts"`) {
		t.Errorf("pretend output:\n%s", out)
	}
	if h.tableExists(t, "posts") {
		t.Error("pretend created the table")
	}
}

func TestMigrateFailureRestores(t *testing.T) {
	h := newCLIHarness(t)
	h.exec(t,
		`CREATE TABLE users (id integer primary key, name text)`,
		`INSERT INTO users (name) VALUES ('ada'), ('grace')`,
	)
	h.add(t, "2024_01_01_000000_break_users", `	s.Table("users", func(t *schema.Blueprint) { t.String("nick") })`,
		funcMigration{up: func(s *schema.Builder) {
			s.Table("users", func(t *schema.Blueprint) { t.String("nick").Nullable() })
			s.Statement("THIS IS NOT SQL")
		}})

	out, err := h.run(t, "", "migrate")
	if err == nil {
		t.Fatal("expected migrate to fail")
	}
	if !strings.Contains(out, "restored: users") {
		t.Errorf("failure output:\n%s", out)
	}
}

func TestSnapshotDriftGenerate(t *testing.T) {
	h := newCLIHarness(t)
	h.exec(t, `CREATE TABLE users (id integer primary key, email varchar(255) NOT NULL)`)

	if _, err := h.run(t, "", "drift"); err == nil {
		t.Fatal("drift without a snapshot should fail")
	}

	out, err := h.run(t, "", "snapshot", "baseline")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.Contains(out, "Saved snapshot baseline (v1, 1 tables)") {
		t.Errorf("snapshot output:\n%s", out)
	}

	out, err = h.run(t, "", "snapshot", "list")
	if err != nil {
		t.Fatalf("snapshot list: %v", err)
	}
	if !strings.Contains(out, "baseline") {
		t.Errorf("snapshot list output:\n%s", out)
	}

	out, err = h.run(t, "", "drift", "--exit-code")
	if err != nil {
		t.Fatalf("drift: %v", err)
	}
	if !strings.Contains(out, "No drift") {
		t.Errorf("drift output:\n%s", out)
	}

	h.exec(t, `CREATE TABLE audit (id integer primary key)`)

	out, err = h.run(t, "", "drift", "--exit-code")
	if !errors.Is(err, errDrift) {
		t.Fatalf("drift --exit-code: err = %v, want errDrift", err)
	}
	if ExitCode(err) != 2 {
		t.Errorf("ExitCode = %d, want 2", ExitCode(err))
	}
	if !strings.Contains(out, `Table "audit" is new`) {
		t.Errorf("drift output:\n%s", out)
	}

	out, err = h.run(t, "", "generate", "restore")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "Created /migrations/") || !strings.Contains(out, "_restore.go") {
		t.Errorf("generate output:\n%s", out)
	}
	files, err := afero.Glob(h.fs, "/migrations/*_restore.go")
	if err != nil || len(files) != 1 {
		t.Fatalf("generated files = %v, err %v", files, err)
	}
}

func TestImpact(t *testing.T) {
	h := newCLIHarness(t)
	h.exec(t,
		`CREATE TABLE legacy (id integer primary key)`,
		`INSERT INTO legacy (id) VALUES (1), (2)`,
	)
	h.add(t, "2024_01_01_000000_drop_legacy", `	s.Drop("legacy")`,
		funcMigration{up: func(s *schema.Builder) { s.Drop("legacy") }})

	out, err := h.run(t, "", "impact", "2024_01_01_000000_drop_legacy")
	if err != nil {
		t.Fatalf("impact: %v", err)
	}
	for _, want := range []string{"Tables: legacy", "drops data", "table", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("impact output missing %q:\n%s", want, out)
		}
	}

	if _, err := h.run(t, "", "impact", "2099_01_01_000000_missing"); err == nil {
		t.Error("impact of a missing migration should fail")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	h := newCLIHarness(t)

	if _, err := h.run(t, "", "config", "init", "-o", "/etc/safeshift.yaml"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if ok, _ := afero.Exists(h.fs, "/etc/safeshift.yaml"); !ok {
		t.Fatal("config file was not written")
	}
	if _, err := h.run(t, "", "config", "init", "-o", "/etc/safeshift.yaml"); err == nil {
		t.Error("second init without --force should fail")
	}
	if _, err := h.run(t, "", "config", "init", "-o", "/etc/safeshift.yaml", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	out, err := h.run(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "driver: sqlite") || !strings.Contains(out, "migrations: /migrations") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		if got := confirm(strings.NewReader(tt.in), io.Discard, "Continue?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
