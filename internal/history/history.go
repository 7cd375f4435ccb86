// Package history records which migrations have run and in which batch.
package history

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// DefaultTable is the ledger table name when none is configured.
const DefaultTable = "migrations"

// Entry is one applied migration.
type Entry struct {
	ID        int64  `db:"id" json:"id"`
	Migration string `db:"migration" json:"migration"`
	Batch     int    `db:"batch" json:"batch"`
}

// Repository is the migration ledger the migrator reads and appends to.
type Repository interface {
	// EnsureTable creates the ledger table if it does not exist.
	EnsureTable(ctx context.Context) error
	// Exists reports whether the ledger table has been created.
	Exists(ctx context.Context) (bool, error)
	// Log appends a migration to the ledger under batch.
	Log(ctx context.Context, name string, batch int) error
	// GetRan returns every applied migration name, oldest first.
	GetRan(ctx context.Context) ([]string, error)
	// GetEntries returns every entry, oldest first.
	GetEntries(ctx context.Context) ([]Entry, error)
	// GetMigrations returns the entries of one batch, newest first.
	GetMigrations(ctx context.Context, batch int) ([]Entry, error)
	// GetLast returns the entries of the last batch, newest first.
	GetLast(ctx context.Context) ([]Entry, error)
	// GetLastN returns the n most recent entries, newest first.
	GetLastN(ctx context.Context, n int) ([]Entry, error)
	// GetNextBatchNumber returns the batch number the next run should use.
	GetNextBatchNumber(ctx context.Context) (int, error)
	// GetLastBatchNumber returns the highest batch number, or 0.
	GetLastBatchNumber(ctx context.Context) (int, error)
	// Delete removes a migration from the ledger.
	Delete(ctx context.Context, name string) error
}

// SQLRepository stores the ledger in a table of the migrated database. It
// goes through the adapter so the table is created with the dialect's DDL.
type SQLRepository struct {
	adapter connector.Adapter
	table   string
}

// NewSQLRepository returns a ledger stored in table, DefaultTable if empty.
func NewSQLRepository(adapter connector.Adapter, table string) *SQLRepository {
	if table == "" {
		table = DefaultTable
	}
	return &SQLRepository{adapter: adapter, table: table}
}

// Table returns the ledger table name.
func (r *SQLRepository) Table() string { return r.table }

func (r *SQLRepository) q(query string) string {
	return r.adapter.Conn().Rebind(fmt.Sprintf(query, r.adapter.QuoteIdentifier(r.table)))
}

// Exists reports whether the ledger table has been created.
func (r *SQLRepository) Exists(ctx context.Context) (bool, error) {
	exists, err := r.adapter.TableExists(ctx, r.table)
	if err != nil {
		return false, fmt.Errorf("check ledger table: %w", err)
	}
	return exists, nil
}

// EnsureTable creates the ledger table if it does not exist.
func (r *SQLRepository) EnsureTable(ctx context.Context) error {
	exists, err := r.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	def := model.TableSchema{Columns: []model.Column{
		{Name: "id", Type: "int unsigned", Key: model.KeyPrimary, Extra: "auto_increment"},
		{Name: "migration", Type: "varchar(255)"},
		{Name: "batch", Type: "int"},
	}}
	for _, stmt := range r.adapter.CreateTableSQL(r.table, def) {
		if err := r.adapter.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("create ledger table: %w", err)
		}
	}
	return nil
}

// Log appends a migration to the ledger under batch.
func (r *SQLRepository) Log(ctx context.Context, name string, batch int) error {
	query := r.q("INSERT INTO %s (migration, batch) VALUES (?, ?)")
	if _, err := r.adapter.Conn().ExecContext(ctx, query, name, batch); err != nil {
		return fmt.Errorf("log migration %q: %w", name, err)
	}
	return nil
}

// GetRan returns every applied migration name, oldest first.
func (r *SQLRepository) GetRan(ctx context.Context) ([]string, error) {
	var names []string
	query := r.q("SELECT migration FROM %s ORDER BY batch, migration")
	if err := sqlx.SelectContext(ctx, r.adapter.Conn(), &names, query); err != nil {
		return nil, fmt.Errorf("list ran migrations: %w", err)
	}
	return names, nil
}

// GetEntries returns every entry, oldest first.
func (r *SQLRepository) GetEntries(ctx context.Context) ([]Entry, error) {
	return r.selectEntries(ctx, "SELECT id, migration, batch FROM %s ORDER BY batch, migration")
}

// GetMigrations returns the entries of one batch, newest first.
func (r *SQLRepository) GetMigrations(ctx context.Context, batch int) ([]Entry, error) {
	return r.selectEntries(ctx, "SELECT id, migration, batch FROM %s WHERE batch = ? ORDER BY migration DESC", batch)
}

// GetLast returns the entries of the last batch, newest first.
func (r *SQLRepository) GetLast(ctx context.Context) ([]Entry, error) {
	batch, err := r.GetLastBatchNumber(ctx)
	if err != nil {
		return nil, err
	}
	if batch == 0 {
		return []Entry{}, nil
	}
	return r.GetMigrations(ctx, batch)
}

// GetLastN returns the n most recent entries, newest first.
func (r *SQLRepository) GetLastN(ctx context.Context, n int) ([]Entry, error) {
	return r.selectEntries(ctx, "SELECT id, migration, batch FROM %s ORDER BY batch DESC, migration DESC LIMIT ?", n)
}

func (r *SQLRepository) selectEntries(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	entries := []Entry{}
	if err := sqlx.SelectContext(ctx, r.adapter.Conn(), &entries, r.q(query), args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// GetLastBatchNumber returns the highest batch number, or 0.
func (r *SQLRepository) GetLastBatchNumber(ctx context.Context) (int, error) {
	var batch int
	query := r.q("SELECT COALESCE(MAX(batch), 0) FROM %s")
	if err := sqlx.GetContext(ctx, r.adapter.Conn(), &batch, query); err != nil {
		return 0, fmt.Errorf("last batch number: %w", err)
	}
	return batch, nil
}

// GetNextBatchNumber returns the batch number the next run should use.
func (r *SQLRepository) GetNextBatchNumber(ctx context.Context) (int, error) {
	batch, err := r.GetLastBatchNumber(ctx)
	if err != nil {
		return 0, err
	}
	return batch + 1, nil
}

// Delete removes a migration from the ledger. Deleting an unknown name is
// not an error.
func (r *SQLRepository) Delete(ctx context.Context, name string) error {
	query := r.q("DELETE FROM %s WHERE migration = ?")
	if _, err := r.adapter.Conn().ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("delete migration %q: %w", name, err)
	}
	return nil
}
