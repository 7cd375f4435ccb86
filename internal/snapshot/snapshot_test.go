package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/faucetdb/safeshift/internal/model"
)

func newTestStore(t *testing.T) (*FileStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, "/snapshots")
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, fs
}

func usersSchema() model.Schema {
	return model.Schema{
		"users": {
			Columns: []model.Column{
				{Name: "id", Type: "int", Key: model.KeyPrimary, Extra: "auto_increment"},
				{Name: "email", Type: "varchar(255)", Default: model.StringPtr("")},
			},
			Indexes: []model.Index{{Name: "users_email_index", Columns: []string{"email"}}},
		},
	}
}

func TestLatest_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	snap, err := s.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot from empty store, got %+v", snap)
	}
	list, err := s.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Errorf("expected empty list, got %v (%v)", list, err)
	}
}

func TestSaveAndLatest(t *testing.T) {
	s, fs := newTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "Initial Schema", usersSchema())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.Version != 1 || first.FormatVersion != CurrentFormatVersion {
		t.Errorf("unexpected first snapshot: %+v", first)
	}
	if ok, _ := afero.Exists(fs, "/snapshots/0001_initial_schema.yaml"); !ok {
		t.Error("expected 0001_initial_schema.yaml to be written")
	}

	second, err := s.Save(ctx, "add posts", model.Schema{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Name != "add posts" || latest.Version != 2 || len(latest.Schema) != 0 {
		t.Errorf("unexpected latest: %+v", latest)
	}

	got, err := s.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	users := got.Schema["users"]
	if len(users.Columns) != 2 || users.Columns[1].Default == nil || *users.Columns[1].Default != "" {
		t.Errorf("schema did not round-trip: %+v", users)
	}
	if !got.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", got.Timestamp)
	}

	if _, err := s.Get(ctx, 9); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}

	list, err := s.List(ctx)
	if err != nil || len(list) != 2 || list[0].Version != 1 {
		t.Errorf("List = %+v (%v)", list, err)
	}
}

func TestLatest_IgnoresForeignFiles(t *testing.T) {
	s, fs := newTestStore(t)
	afero.WriteFile(fs, "/snapshots/README.md", []byte("notes"), 0o644)
	afero.WriteFile(fs, "/snapshots/0010_manual.yaml", []byte("name: manual\nversion: 10\nformat_version: \"1.0\"\n"), 0o644)

	latest, err := s.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Name != "manual" || latest.Schema == nil {
		t.Fatalf("expected manual snapshot with empty schema, got %+v", latest)
	}

	next, err := s.Save(context.Background(), "next", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if next.Version != 11 {
		t.Errorf("expected version 11 after 10, got %d", next.Version)
	}
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantMsg string
	}{
		{CurrentFormatVersion, ""},
		{"1.0.0", ""},
		{"0.9", "older format"},
		{"2.0", "newer format"},
		{"", "no format version"},
		{"banana", "unrecognized"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got := CheckFormat(&Snapshot{Name: "s", FormatVersion: tt.format})
			if tt.wantMsg == "" {
				if got != "" {
					t.Errorf("expected no warning, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.wantMsg) {
				t.Errorf("warning %q does not contain %q", got, tt.wantMsg)
			}
		})
	}
	if CheckFormat(nil) != "" {
		t.Error("nil snapshot should not warn")
	}
}
