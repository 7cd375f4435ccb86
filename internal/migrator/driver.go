package migrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// MigrationStatus is one row of the status table.
type MigrationStatus struct {
	Name  string `json:"name"`
	Ran   bool   `json:"ran"`
	Batch int    `json:"batch,omitempty"`
	// Missing is set for ledger entries whose source file is gone.
	Missing bool `json:"missing,omitempty"`
}

// Files returns the migration names found in the migrations directory,
// sorted. File names are timestamp-prefixed, so this is run order.
func (m *SafeMigrator) Files() ([]string, error) {
	infos, err := afero.ReadDir(m.fs, m.opts.MigrationsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := []string{}
	for _, fi := range infos {
		n := fi.Name()
		if fi.IsDir() || filepath.Ext(n) != ".go" || strings.HasSuffix(n, "_test.go") {
			continue
		}
		names = append(names, MigrationName(n))
	}
	sort.Strings(names)
	return names, nil
}

func (m *SafeMigrator) ran(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	exists, err := m.ledger.Exists(ctx)
	if err != nil || !exists {
		return out, err
	}
	entries, err := m.ledger.GetEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.Migration] = e.Batch
	}
	return out, nil
}

// Pending returns the migrations with a source file that have not run,
// in run order.
func (m *SafeMigrator) Pending(ctx context.Context) ([]string, error) {
	files, err := m.Files()
	if err != nil {
		return nil, err
	}
	ran, err := m.ran(ctx)
	if err != nil {
		return nil, err
	}
	pending := []string{}
	for _, f := range files {
		if _, ok := ran[f]; !ok {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// RunPending runs every pending migration under one new batch number. It
// stops at the first failure; migrations that already committed stay
// committed.
func (m *SafeMigrator) RunPending(ctx context.Context, pretend bool) ([]*RunResult, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	results := []*RunResult{}
	if len(pending) == 0 {
		return results, nil
	}

	batch := 1
	if !pretend {
		if err := m.ledger.EnsureTable(ctx); err != nil {
			return nil, err
		}
		if batch, err = m.ledger.GetNextBatchNumber(ctx); err != nil {
			return nil, err
		}
	}

	for _, name := range pending {
		res, err := m.RunSafe(ctx, name, batch, pretend)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RollbackLastBatch undoes every migration of the last batch, newest first,
// and returns their names. A ledger entry whose source file is missing
// stops the rollback with ErrMigrationNotFound.
func (m *SafeMigrator) RollbackLastBatch(ctx context.Context) ([]string, error) {
	rolled := []string{}
	exists, err := m.ledger.Exists(ctx)
	if err != nil || !exists {
		return rolled, err
	}
	entries, err := m.ledger.GetLast(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := m.UndoSafe(ctx, e.Migration); err != nil {
			return rolled, err
		}
		rolled = append(rolled, e.Migration)
	}
	return rolled, nil
}

// Status lists every migration file and ledger entry, in run order.
func (m *SafeMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	files, err := m.Files()
	if err != nil {
		return nil, err
	}
	ran, err := m.ran(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]MigrationStatus, len(files)+len(ran))
	for _, f := range files {
		byName[f] = MigrationStatus{Name: f}
	}
	for name, batch := range ran {
		_, hasFile := byName[name]
		byName[name] = MigrationStatus{Name: name, Ran: true, Batch: batch, Missing: !hasFile}
	}

	out := make([]MigrationStatus, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
