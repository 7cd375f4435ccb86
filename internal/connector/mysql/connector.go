package mysql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/model"
)

// MySQLAdapter implements connector.Adapter for MySQL and MariaDB.
type MySQLAdapter struct {
	db         *sqlx.DB
	conn       connector.Conn
	schemaName string
}

// New creates a new, unconnected MySQLAdapter.
func New() connector.Adapter {
	return &MySQLAdapter{}
}

// NewWithConn wraps an already-open connection. schemaName is the database
// introspection queries are scoped to.
func NewWithConn(conn connector.Conn, schemaName string) *MySQLAdapter {
	a := &MySQLAdapter{conn: conn, schemaName: schemaName}
	if db, ok := conn.(*sqlx.DB); ok {
		a.db = db
	}
	return a
}

// Connect establishes a connection to the MySQL database using the provided
// configuration. It configures connection pool settings and stores the schema
// name for introspection queries.
func (c *MySQLAdapter) Connect(cfg connector.ConnectionConfig) error {
	db, err := sqlx.Connect("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
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

	// If no schema name provided, query the current database name
	if c.schemaName == "" {
		var dbName string
		if err := db.Get(&dbName, "SELECT DATABASE()"); err == nil && dbName != "" {
			c.schemaName = dbName
		}
	}

	c.db = db
	c.conn = db
	return nil
}

// Disconnect closes the database connection pool.
func (c *MySQLAdapter) Disconnect() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (c *MySQLAdapter) Ping(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("mysql: not connected")
	}
	return c.db.PingContext(ctx)
}

// Conn returns the raw execution channel.
func (c *MySQLAdapter) Conn() connector.Conn { return c.conn }

// DriverName returns the driver identifier for MySQL.
func (c *MySQLAdapter) DriverName() string { return "mysql" }

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks to prevent SQL injection.
func (c *MySQLAdapter) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Execute runs a raw statement.
func (c *MySQLAdapter) Execute(ctx context.Context, query string) error {
	if _, err := c.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("mysql execute: %w", err)
	}
	return nil
}

// InsertRows bulk-inserts rows into table.
func (c *MySQLAdapter) InsertRows(ctx context.Context, table string, rows []model.Row) error {
	return connector.BulkInsert(ctx, c.conn, c.QuoteIdentifier, table, rows)
}

// GetTableData returns every row of the table.
func (c *MySQLAdapter) GetTableData(ctx context.Context, table string) ([]model.Row, error) {
	return connector.FetchRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// GetTableRowCount returns the exact number of rows in the table.
func (c *MySQLAdapter) GetTableRowCount(ctx context.Context, table string) (int64, error) {
	return connector.CountRows(ctx, c.conn, c.QuoteIdentifier, table)
}

// CountNonNull returns how many rows hold a non-NULL value in column.
func (c *MySQLAdapter) CountNonNull(ctx context.Context, table, column string) (int64, error) {
	return connector.CountNonNull(ctx, c.conn, c.QuoteIdentifier, table, column)
}

// ArchiveTable renames table to newName with RENAME TABLE. It returns false
// when the table does not exist.
func (c *MySQLAdapter) ArchiveTable(ctx context.Context, table, newName string) (bool, error) {
	exists, err := c.TableExists(ctx, table)
	if err != nil || !exists {
		return false, err
	}
	if err := c.Execute(ctx, c.RenameTableSQL(table, newName)); err != nil {
		return false, fmt.Errorf("archive table %q: %w", table, err)
	}
	return true, nil
}

// ArchiveColumn renames column to newName with CHANGE COLUMN, restating the
// full column definition. It returns false when the column does not exist.
func (c *MySQLAdapter) ArchiveColumn(ctx context.Context, table, column, newName string) (bool, error) {
	cols, err := c.GetTableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	col, ok := model.TableSchema{Columns: cols}.Column(column)
	if !ok {
		return false, nil
	}
	if err := c.Execute(ctx, c.changeColumnSQL(table, column, newName, col)); err != nil {
		return false, fmt.Errorf("archive column %s.%s: %w", table, column, err)
	}
	return true, nil
}
