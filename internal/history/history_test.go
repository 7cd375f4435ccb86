package history

import (
	"context"
	"reflect"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector/sqlite"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	r := NewSQLRepository(sqlite.NewWithConn(db), "")
	if err := r.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	return r
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Migration
	}
	return out
}

func TestEnsureTable_Idempotent(t *testing.T) {
	r := newTestRepository(t)
	if err := r.EnsureTable(context.Background()); err != nil {
		t.Fatalf("second EnsureTable: %v", err)
	}
	if ok, err := r.Exists(context.Background()); err != nil || !ok {
		t.Errorf("expected ledger table to exist, got %v (%v)", ok, err)
	}
	if r.Table() != DefaultTable {
		t.Errorf("expected default table name, got %q", r.Table())
	}
}

func TestLedger(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	next, err := r.GetNextBatchNumber(ctx)
	if err != nil {
		t.Fatalf("GetNextBatchNumber: %v", err)
	}
	if next != 1 {
		t.Errorf("expected first batch to be 1, got %d", next)
	}
	last, err := r.GetLast(ctx)
	if err != nil || len(last) != 0 {
		t.Errorf("expected empty last batch, got %v (%v)", last, err)
	}

	for _, m := range []struct {
		name  string
		batch int
	}{
		{"2024_01_01_000000_create_users", 1},
		{"2024_01_02_000000_create_posts", 1},
		{"2024_02_01_000000_add_bio", 2},
	} {
		if err := r.Log(ctx, m.name, m.batch); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	ran, err := r.GetRan(ctx)
	if err != nil {
		t.Fatalf("GetRan: %v", err)
	}
	want := []string{"2024_01_01_000000_create_users", "2024_01_02_000000_create_posts", "2024_02_01_000000_add_bio"}
	if !reflect.DeepEqual(ran, want) {
		t.Errorf("GetRan = %v, want %v", ran, want)
	}

	if n, _ := r.GetLastBatchNumber(ctx); n != 2 {
		t.Errorf("expected last batch 2, got %d", n)
	}
	if n, _ := r.GetNextBatchNumber(ctx); n != 3 {
		t.Errorf("expected next batch 3, got %d", n)
	}

	batch1, err := r.GetMigrations(ctx, 1)
	if err != nil {
		t.Fatalf("GetMigrations: %v", err)
	}
	if got := names(batch1); !reflect.DeepEqual(got, []string{"2024_01_02_000000_create_posts", "2024_01_01_000000_create_users"}) {
		t.Errorf("batch 1 newest first, got %v", got)
	}

	lastN, err := r.GetLastN(ctx, 2)
	if err != nil {
		t.Fatalf("GetLastN: %v", err)
	}
	if got := names(lastN); !reflect.DeepEqual(got, []string{"2024_02_01_000000_add_bio", "2024_01_02_000000_create_posts"}) {
		t.Errorf("GetLastN = %v", got)
	}

	if err := r.Delete(ctx, "2024_02_01_000000_add_bio"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete(ctx, "never_ran"); err != nil {
		t.Fatalf("Delete of unknown name: %v", err)
	}
	lastBatch, err := r.GetLast(ctx)
	if err != nil {
		t.Fatalf("GetLast: %v", err)
	}
	if len(lastBatch) != 2 || lastBatch[0].Batch != 1 {
		t.Errorf("expected batch 1 to be last after delete, got %+v", lastBatch)
	}

	entries, err := r.GetEntries(ctx)
	if err != nil || len(entries) != 2 || entries[0].ID == 0 {
		t.Errorf("GetEntries = %+v (%v)", entries, err)
	}
}
