// Package drift compares the live database with the latest snapshot and
// generates migrations that bring the two back in line.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/diff"
	"github.com/faucetdb/safeshift/internal/generator"
	"github.com/faucetdb/safeshift/internal/model"
	"github.com/faucetdb/safeshift/internal/snapshot"
)

// Introspect reads the live schema through the adapter. Tables named in
// ignored are skipped.
func Introspect(ctx context.Context, a connector.Adapter, ignored []string) (model.Schema, error) {
	tables, err := a.GetAllTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	s := make(model.Schema, len(tables))
	for _, table := range tables {
		if slices.Contains(ignored, table) {
			continue
		}
		cols, err := a.GetTableColumns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		indexes, err := a.GetTableIndexes(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("indexes of %s: %w", table, err)
		}
		fks, err := a.GetTableForeignKeys(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
		}
		count, err := a.GetTableRowCount(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("row count of %s: %w", table, err)
		}
		s[table] = model.TableSchema{Columns: cols, Indexes: indexes, ForeignKeys: fks, RowCount: count}
	}
	return s, nil
}

// Options configures a Checker.
type Options struct {
	Diff                  diff.Options
	MigrationsDir         string
	SuppressFormatWarning bool
}

// Report is the result of a drift check. Diff turns the snapshot into the
// live schema.
type Report struct {
	Snapshot string      `json:"snapshot"`
	Version  int         `json:"version"`
	Diff     *diff.Diff  `json:"diff"`
	Summary  diff.Report `json:"summary"`
	Warnings []string    `json:"warnings,omitempty"`
}

// HasDrift reports whether the live schema differs from the snapshot.
func (r *Report) HasDrift() bool {
	return !r.Diff.IsEmpty()
}

// Checker compares the live database with the latest snapshot.
type Checker struct {
	adapter connector.Adapter
	store   snapshot.Store
	fs      afero.Fs
	opts    Options
	logger  *slog.Logger
}

// NewChecker returns a Checker. Generated migrations are written to
// opts.MigrationsDir on fs.
func NewChecker(adapter connector.Adapter, store snapshot.Store, fs afero.Fs, opts Options, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{adapter: adapter, store: store, fs: fs, opts: opts, logger: logger}
}

func (c *Checker) latest(ctx context.Context) (*snapshot.Snapshot, []string, error) {
	snap, err := c.store.Latest(ctx)
	if err != nil {
		return nil, nil, err
	}
	if snap == nil {
		return nil, nil, fmt.Errorf("%w: take one with `safeshift snapshot`", snapshot.ErrNoSnapshot)
	}
	var warnings []string
	if !c.opts.SuppressFormatWarning {
		if w := snapshot.CheckFormat(snap); w != "" {
			c.logger.Warn("snapshot format mismatch", "snapshot", snap.Name, "format_version", snap.FormatVersion)
			warnings = append(warnings, w)
		}
	}
	return snap, warnings, nil
}

// Check compares the latest snapshot (expected) with the live schema.
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	snap, warnings, err := c.latest(ctx)
	if err != nil {
		return nil, err
	}
	current, err := Introspect(ctx, c.adapter, c.opts.Diff.IgnoredTables)
	if err != nil {
		return nil, err
	}
	d := diff.Compare(snap.Schema, current, c.opts.Diff)
	c.logger.Info("drift checked", "snapshot", snap.Name, "version", snap.Version, "drift", !d.IsEmpty())
	return &Report{
		Snapshot: snap.Name,
		Version:  snap.Version,
		Diff:     d,
		Summary:  diff.Summarize(d),
		Warnings: warnings,
	}, nil
}

// Generate writes a migration that turns the live schema back into the
// latest snapshot and returns its path. When there is nothing to change no
// file is written and the path is "".
func (c *Checker) Generate(ctx context.Context, name string, now time.Time) (string, error) {
	snap, _, err := c.latest(ctx)
	if err != nil {
		return "", err
	}
	current, err := Introspect(ctx, c.adapter, c.opts.Diff.IgnoredTables)
	if err != nil {
		return "", err
	}
	d := diff.Compare(current, snap.Schema, c.opts.Diff)
	if d.IsEmpty() {
		return "", nil
	}

	migration := generator.MigrationName(now, name)
	path := filepath.Join(c.opts.MigrationsDir, migration+".go")
	if err := c.fs.MkdirAll(c.opts.MigrationsDir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	if err := afero.WriteFile(c.fs, path, []byte(generator.Build(d, migration)), 0o644); err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	c.logger.Info("migration generated", "path", path, "tables", d.Tables())
	return path, nil
}

// TakeSnapshot saves the live schema as the next snapshot.
func (c *Checker) TakeSnapshot(ctx context.Context, name string) (*snapshot.Snapshot, error) {
	current, err := Introspect(ctx, c.adapter, c.opts.Diff.IgnoredTables)
	if err != nil {
		return nil, err
	}
	snap, err := c.store.Save(ctx, name, current)
	if err != nil {
		return nil, err
	}
	c.logger.Info("snapshot saved", "name", snap.Name, "version", snap.Version, "tables", len(current))
	return snap, nil
}
