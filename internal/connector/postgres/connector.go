package postgres

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// PostgresAdapter implements connector.Adapter for PostgreSQL databases.
// Generated DDL uses unqualified table names and relies on search_path
// reaching the configured schema.
type PostgresAdapter struct {
	db         *sqlx.DB
	conn       connector.Conn
	schemaName string
}

// New creates a new, unconnected PostgresAdapter for the public schema.
func New() connector.Adapter {
	return &PostgresAdapter{schemaName: "public"}
}

// NewWithConn wraps an already-open connection.
func NewWithConn(conn connector.Conn, schemaName string) *PostgresAdapter {
	if schemaName == "" {
		schemaName = "public"
	}
	a := &PostgresAdapter{conn: conn, schemaName: schemaName}
	if db, ok := conn.(*sqlx.DB); ok {
		a.db = db
	}
	return a
}

// Connect establishes a connection to the PostgreSQL database using the
// provided configuration. It configures connection pool settings and stores
// the schema name for introspection queries.
func (c *PostgresAdapter) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}

	c.db = db
	c.conn = db
	return nil
}

// Disconnect closes the database connection pool.
func (c *PostgresAdapter) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *PostgresAdapter) Ping(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("postgres: not connected")
	}
	return c.db.PingContext(ctx)
}

// Conn returns the raw execution channel.
func (c *PostgresAdapter) Conn() connector.Conn { return c.conn }

// DriverName returns the driver identifier for PostgreSQL.
func (c *PostgresAdapter) DriverName() string { return "postgres" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes to prevent SQL injection.
func (c *PostgresAdapter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Execute runs a raw statement. Statements without arguments go over the
// simple protocol, so ";"-separated batches are accepted.
func (c *PostgresAdapter) Execute(ctx context.Context, query string) error {
	if _, err := c.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("postgres execute: %w", err)
	}
	return nil
}

// InsertRows bulk-inserts rows into table.
func (c *PostgresAdapter) InsertRows(ctx context.Context, table string, rows []model.Row) error {
	return connector.BulkInsert(ctx, c.conn, c.QuoteIdentifier, table, rows)
}

// GetTableData returns every row of the table.
func (c *PostgresAdapter) GetTableData(ctx context.Context, table string) ([]model.Row, error) {
	return connector.FetchRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// GetTableRowCount returns the exact number of rows in the table.
func (c *PostgresAdapter) GetTableRowCount(ctx context.Context, table string) (int64, error) {
	return connector.CountRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// CountNonNull returns how many rows hold a non-NULL value in column.
func (c *PostgresAdapter) CountNonNull(ctx context.Context, table, column string) (int64, error) {
	return connector.CountNonNull(ctx, c.conn, c.QuoteIdentifier, table, column)
}

// ArchiveTable renames table to newName. It returns false when the table
// does not exist.
func (c *PostgresAdapter) ArchiveTable(ctx context.Context, table, newName string) (bool, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return false, err
	}
	if err := c.Execute(ctx, c.RenameTableSQL(table, newName)); err != nil {
		return false, fmt.Errorf("archive table %q: %w", table, err)
	}
	return true, nil
}

// ArchiveColumn renames column to newName with RENAME COLUMN. It returns
// false when the column does not exist.
func (c *PostgresAdapter) ArchiveColumn(ctx context.Context, table, column, newName string) (bool, error) {
	exists, err := c.ColumnExists(ctx, table, column)
	if err != nil || !exists {
		return false, err
	}
	if err := c.Execute(ctx, c.RenameColumnSQL(table, column, newName)); err != nil {
		return false, fmt.Errorf("archive column %s.%s: %w", table, column, err)
	}
	return true, nil
}
