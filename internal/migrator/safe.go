package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faucetdb/safeshift/internal/model"
	"github.com/faucetdb/safeshift/schema"
)

// Backup is a full copy of one table taken before a migration runs.
type Backup struct {
	Table     string
	Structure string
	Rows      []model.Row
	RowCount  int64
}

// RunResult describes one migration run.
type RunResult struct {
	Migration  string        `json:"migration"`
	RunID      string        `json:"run_id"`
	Batch      int           `json:"batch"`
	Pretend    bool          `json:"pretend"`
	Statements []string      `json:"statements,omitempty"`
	Affected   []string      `json:"affected"`
	BackedUp   []string      `json:"backed_up"`
	Duration   time.Duration `json:"duration"`
}

// DataLoss is one table or column a migration would drop, with the number
// of rows whose data would go with it.
type DataLoss struct {
	Type  string `json:"type"` // "table" or "column"
	Table string `json:"table"`
	Name  string `json:"name"`
	Rows  int64  `json:"rows"`
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RunSafe applies the migration in file under batch.
//
// In pretend mode the migration runs against a recording builder and the
// statements it would issue are returned; nothing is written. Otherwise
// every existing table the source references is backed up, the migration
// runs, and on success it is logged to the ledger. On failure every backup
// is restored and a *MigrationError wrapping the original failure is
// returned.
func (m *SafeMigrator) RunSafe(ctx context.Context, file string, batch int, pretend bool) (*RunResult, error) {
	name, mig, src, err := m.resolve(file)
	if err != nil {
		return nil, err
	}

	start := m.now()
	res := &RunResult{Migration: name, RunID: newRunID(), Batch: batch, Pretend: pretend}
	log := m.logger.With("run_id", res.RunID, "migration", name)
	defer m.setState(StateIdle, log)

	if pretend {
		b := schema.NewPretendBuilder(ctx, m.adapter)
		if err := mig.Up(b); err != nil {
			return nil, fmt.Errorf("explain %s: %w", name, err)
		}
		if err := b.Err(); err != nil {
			return nil, fmt.Errorf("explain %s: %w", name, err)
		}
		res.Statements = b.Statements()
		res.Affected = GetAffectedTables(src)
		return res, nil
	}

	m.setState(StateScanning, log)
	res.Affected = GetAffectedTables(src)

	var backups []Backup
	if m.opts.AutoBackup {
		m.setState(StateBackingUp, log)
		backups, err = m.backupTables(ctx, res.Affected)
		if err != nil {
			return nil, fmt.Errorf("back up %s: %w", name, err)
		}
		for _, b := range backups {
			res.BackedUp = append(res.BackedUp, b.Table)
		}
		log.Info("tables backed up", "tables", res.BackedUp)
	}

	m.setState(StateExecuting, log)
	out := m.execute(ctx, mig, backups, log)
	res.Duration = m.now().Sub(start)
	if out.err != nil {
		return res, &MigrationError{
			Migration:     name,
			Err:           out.err,
			Affected:      res.Affected,
			Restored:      out.restored,
			RestoreErrors: out.restoreErrs,
		}
	}

	if err := m.ledger.Log(ctx, name, batch); err != nil {
		return res, fmt.Errorf("record %s: %w", name, err)
	}
	m.setState(StateCommitted, log)
	return res, nil
}

// backupTables copies every table in tables that currently exists.
func (m *SafeMigrator) backupTables(ctx context.Context, tables []string) ([]Backup, error) {
	var backups []Backup
	for _, table := range tables {
		exists, err := m.adapter.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		b, err := m.backup(ctx, table)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, nil
}

func (m *SafeMigrator) backup(ctx context.Context, table string) (Backup, error) {
	structure, err := m.adapter.GetTableStructure(ctx, table)
	if err != nil {
		return Backup{}, err
	}
	rows, err := m.adapter.GetTableData(ctx, table)
	if err != nil {
		return Backup{}, err
	}
	count, err := m.adapter.GetTableRowCount(ctx, table)
	if err != nil {
		return Backup{}, err
	}
	return Backup{Table: table, Structure: structure, Rows: rows, RowCount: count}, nil
}

// execute runs Up. A failure or panic restores the backups before the
// result is returned.
func (m *SafeMigrator) execute(ctx context.Context, mig schema.Migration, backups []Backup, log *slog.Logger) execResult {
	b := schema.NewBuilder(ctx, m.adapter)
	err := runUp(mig, b)
	if err == nil {
		return execResult{}
	}

	log.Error("migration failed", "error", err)
	m.setState(StateRollingBack, log)
	restored, failures := m.restore(ctx, backups, log)
	return execResult{err: err, restored: restored, restoreErrs: failures}
}

func runUp(mig schema.Migration, b *schema.Builder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()
	if err := mig.Up(b); err != nil {
		return err
	}
	return b.Err()
}

// restore puts every backup back. A table that fails to restore is logged
// and skipped; the rest still run.
func (m *SafeMigrator) restore(ctx context.Context, backups []Backup, log *slog.Logger) ([]string, map[string]error) {
	var restored []string
	failures := make(map[string]error)
	for _, b := range backups {
		if err := m.restoreTable(ctx, b); err != nil {
			log.Error("restore failed", "table", b.Table, "error", err)
			failures[b.Table] = err
			continue
		}
		log.Info("table restored", "table", b.Table, "rows", len(b.Rows))
		restored = append(restored, b.Table)
	}
	if len(failures) == 0 {
		failures = nil
	}
	return restored, failures
}

func (m *SafeMigrator) restoreTable(ctx context.Context, b Backup) error {
	if b.Structure == "" {
		return fmt.Errorf("no structure captured for %q", b.Table)
	}
	if err := m.adapter.Execute(ctx, m.adapter.DropTableSQL(b.Table, true)); err != nil {
		return err
	}
	for _, stmt := range strings.Split(b.Structure, ";\n") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if err := m.adapter.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return m.adapter.InsertRows(ctx, b.Table, b.Rows)
}

// UndoSafe rolls back the migration in file.
//
// With safe rollback enabled, the tables and columns the migration's Up
// drops are renamed to archive names instead of being recreated empty, and
// Down is not run. Targets that no longer exist are skipped. With safe
// rollback disabled, Down runs as written. Either way the ledger entry is
// removed afterwards.
func (m *SafeMigrator) UndoSafe(ctx context.Context, file string) (bool, error) {
	name, mig, src, err := m.resolve(file)
	if err != nil {
		return false, err
	}
	log := m.logger.With("run_id", newRunID(), "migration", name)

	if !m.opts.SafeRollback {
		b := schema.NewBuilder(ctx, m.adapter)
		if err := mig.Down(b); err != nil {
			return false, fmt.Errorf("roll back %s: %w", name, err)
		}
		if err := b.Err(); err != nil {
			return false, fmt.Errorf("roll back %s: %w", name, err)
		}
		if err := m.ledger.Delete(ctx, name); err != nil {
			return false, err
		}
		log.Info("migration rolled back")
		return true, nil
	}

	scan := ScanSource(src)
	suffix := m.archiveSuffix()
	for _, d := range scan.DroppedColumns {
		archived := ArchiveName(m.opts.ArchivePrefix, d.Column, suffix)
		ok, err := m.adapter.ArchiveColumn(ctx, d.Table, d.Column, archived)
		if err != nil {
			return false, err
		}
		if ok {
			log.Info("column archived", "table", d.Table, "column", d.Column, "archive", archived)
		}
	}
	for _, table := range scan.Dropped {
		archived := ArchiveName(m.opts.ArchivePrefix, table, suffix)
		ok, err := m.adapter.ArchiveTable(ctx, table, archived)
		if err != nil {
			return false, err
		}
		if ok {
			log.Info("table archived", "table", table, "archive", archived)
		}
	}

	if err := m.ledger.Delete(ctx, name); err != nil {
		return false, err
	}
	log.Info("migration rolled back", "safe", true)
	return true, nil
}

// EstimateDataLoss reports, for each table and column the migration's Up
// drops that still exists, how many rows of data would be lost. Columns
// count only non-NULL values. Nothing is copied.
func (m *SafeMigrator) EstimateDataLoss(ctx context.Context, file string) ([]DataLoss, error) {
	src, err := m.source(file)
	if err != nil {
		return nil, err
	}
	scan := ScanSource(src)

	losses := []DataLoss{}
	for _, table := range scan.Dropped {
		exists, err := m.adapter.TableExists(ctx, table)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		n, err := m.adapter.GetTableRowCount(ctx, table)
		if err != nil {
			return nil, err
		}
		losses = append(losses, DataLoss{Type: "table", Table: table, Name: table, Rows: n})
	}
	for _, d := range scan.DroppedColumns {
		exists, err := m.adapter.ColumnExists(ctx, d.Table, d.Column)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		n, err := m.adapter.CountNonNull(ctx, d.Table, d.Column)
		if err != nil {
			return nil, err
		}
		losses = append(losses, DataLoss{Type: "column", Table: d.Table, Name: d.Column, Rows: n})
	}
	return losses, nil
}
