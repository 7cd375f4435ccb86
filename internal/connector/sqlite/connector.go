package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// SQLiteAdapter implements connector.Adapter for SQLite databases.
type SQLiteAdapter struct {
	db         *sqlx.DB
	conn       connector.Conn
	schemaName string // always "main" for SQLite
}

// New creates a new, unconnected SQLiteAdapter.
func New() connector.Adapter {
	return &SQLiteAdapter{schemaName: "main"}
}

// NewWithConn wraps an already-open connection.
func NewWithConn(conn connector.Conn) *SQLiteAdapter {
	a := &SQLiteAdapter{conn: conn, schemaName: "main"}
	if db, ok := conn.(*sqlx.DB); ok {
		a.db = db
	}
	return a
}

// Connect opens a connection to the SQLite database file specified in the DSN.
// The DSN should be a file path (e.g., "/path/to/db.sqlite") or ":memory:"
// for an in-memory database.
func (c *SQLiteAdapter) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("sqlite connect: %w", err)
	}

	// An in-memory database exists per connection, so keep exactly one.
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
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

// Disconnect closes the database connection.
func (c *SQLiteAdapter) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *SQLiteAdapter) Ping(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("sqlite: not connected")
	}
	return c.db.PingContext(ctx)
}

// Conn returns the raw execution channel.
func (c *SQLiteAdapter) Conn() connector.Conn { return c.conn }

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteAdapter) DriverName() string { return "sqlite" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes to prevent SQL injection.
func (c *SQLiteAdapter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Execute runs a raw statement.
func (c *SQLiteAdapter) Execute(ctx context.Context, query string) error {
	if _, err := c.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite execute: %w", err)
	}
	return nil
}

// connPinner is satisfied by *sqlx.DB.
type connPinner interface {
	Connx(ctx context.Context) (*sqlx.Conn, error)
}

// ExecuteBatch runs stmts in one transaction on one connection, so a table
// rebuild that fails part way leaves the original table in place. Foreign
// key enforcement is switched off for the batch: dropping the original
// table would otherwise cascade into the tables that reference it. A
// connection that cannot be pinned runs the statements one by one.
func (c *SQLiteAdapter) ExecuteBatch(ctx context.Context, stmts []string) error {
	p, ok := c.conn.(connPinner)
	if !ok {
		for _, stmt := range stmts {
			if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite execute: %w", err)
			}
		}
		return nil
	}

	conn, err := p.Connx(ctx)
	if err != nil {
		return fmt.Errorf("sqlite conn: %w", err)
	}
	defer conn.Close()

	var enforced int
	if err := conn.QueryRowxContext(ctx, "PRAGMA foreign_keys").Scan(&enforced); err != nil {
		return fmt.Errorf("sqlite foreign_keys: %w", err)
	}
	if enforced == 1 {
		// The pragma is a no-op inside a transaction.
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return fmt.Errorf("sqlite foreign_keys: %w", err)
		}
		defer conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON")
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite execute: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// InsertRows bulk-inserts rows into table.
func (c *SQLiteAdapter) InsertRows(ctx context.Context, table string, rows []model.Row) error {
	return connector.BulkInsert(ctx, c.conn, c.QuoteIdentifier, table, rows)
}

// GetTableData returns every row of the table in rowid order.
func (c *SQLiteAdapter) GetTableData(ctx context.Context, table string) ([]model.Row, error) {
	return connector.FetchRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// GetTableRowCount returns the number of rows in the table.
func (c *SQLiteAdapter) GetTableRowCount(ctx context.Context, table string) (int64, error) {
	return connector.CountRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// CountNonNull returns how many rows hold a non-NULL value in column.
func (c *SQLiteAdapter) CountNonNull(ctx context.Context, table, column string) (int64, error) {
	return connector.CountNonNull(ctx, c.conn, c.QuoteIdentifier, table, column)
}
