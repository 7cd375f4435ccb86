package connector

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/safeshift/internal/model"
)

// ErrUnsupportedDriver is returned when no adapter is registered for a driver.
var ErrUnsupportedDriver = errors.New("unsupported driver")

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Conn is the raw SQL execution channel an adapter works through. *sqlx.DB
// satisfies it; tests wrap it to observe the statements an adapter issues.
type Conn interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(query string) string
	DriverName() string
}

// Adapter is the interface every dialect adapter implements. The comparator,
// builder and migrator depend only on this interface.
type Adapter interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	Conn() Conn

	// Metadata
	DriverName() string
	QuoteIdentifier(name string) string

	// Introspection. Columns come back in canonical form; indexes are grouped
	// by name with columns in declared order.
	GetAllTables(ctx context.Context) ([]string, error)
	GetTableColumns(ctx context.Context, table string) ([]model.Column, error)
	GetTableIndexes(ctx context.Context, table string) ([]model.Index, error)
	GetTableForeignKeys(ctx context.Context, table string) ([]model.ForeignKey, error)

	// GetTableStructure returns the dialect's native DDL for the table, or ""
	// when the table does not exist.
	GetTableStructure(ctx context.Context, table string) (string, error)
	GetTableData(ctx context.Context, table string) ([]model.Row, error)
	GetTableRowCount(ctx context.Context, table string) (int64, error)
	CountNonNull(ctx context.Context, table, column string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)

	// Archiving renames in place. Both return false, nil when the target
	// does not exist.
	ArchiveTable(ctx context.Context, table, newName string) (bool, error)
	ArchiveColumn(ctx context.Context, table, column, newName string) (bool, error)

	// Execution
	Execute(ctx context.Context, query string) error
	InsertRows(ctx context.Context, table string, rows []model.Row) error

	// DDL generation. Canonical column types are mapped to native ones.
	// Methods taking a context may read the table to plan a rebuild where
	// the dialect has no ALTER for the change.
	CreateTableSQL(table string, def model.TableSchema) []string
	DropTableSQL(table string, ifExists bool) string
	RenameTableSQL(from, to string) string
	AddColumnSQL(table string, col model.Column) string
	ModifyColumnSQL(ctx context.Context, table string, col model.Column) ([]string, error)
	DropColumnSQL(ctx context.Context, table, column string) ([]string, error)
	RenameColumnSQL(table, from, to string) string
	CreateIndexSQL(table string, idx model.Index) string
	DropIndexSQL(table, name string) string
	AddForeignKeySQL(ctx context.Context, table string, fk model.ForeignKey) ([]string, error)
	DropForeignKeySQL(ctx context.Context, table, name string) ([]string, error)
}

// BatchExecutor is implemented by adapters that can run a multi-statement
// plan atomically, such as a SQLite table rebuild.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, stmts []string) error
}

// SanitizeDSN ensures that URL-style DSNs (postgres://) have their userinfo
// percent-encoded. Raw passwords containing @, # or % otherwise make the URL
// parser mis-split the authority and the adapter fails to connect with a
// misleading host error.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by go-sql-driver.
// SQLite file paths are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "pgx":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper). We look for the last "@" followed by what looks like host:port/db.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it correctly. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes from users:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
//
// When the password contains "@", the driver's ParseDSN splits on the last
// "@" before "/". That works only when "tcp(" is present, otherwise the
// parser treats the password fragment as a network name.
func sanitizeMySQLDSN(dsn string) string {
	// If it already parses cleanly and has a known network, trust it.
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	// Try to fix common patterns.

	// Pattern: user:pass@(host:port)/db is missing "tcp" keyword.
	// Find the last "@" followed immediately by "(" but NOT preceded by
	// a network name like "tcp" or "unix".
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		// Insert "tcp" between "@" and "("
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Pattern: user:pass@host:port/db has no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		userpass := m[1] // everything before the last @host:port
		hostport := m[2]
		dbpart := m[3] // /dbname or empty
		fixed := userpass + "@tcp(" + hostport + ")" + dbpart
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Nothing worked. Return as-is and let the connect call give a clear error.
	return dsn
}

// sanitizeURLDSN parses a DSN that begins with a scheme (e.g.
// postgres://user:p@ss#word@host/db) and re-encodes the password so the
// URL library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	// Find the scheme separator.
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // not a URL-style DSN, return as-is
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:] // everything after "://"

	// Split off query/fragment from the authority+path portion.
	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Find the LAST '@': everything before it is userinfo, everything after is host+path.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn // no credentials in the DSN
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	// Split userinfo into user and password at the FIRST ':'.
	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	// Re-encode. url.PathEscape is too aggressive; url.QueryEscape encodes
	// spaces as '+' which isn't great for passwords. Use a manual approach:
	// percent-encode only the characters that break URL parsing.
	encodedUser := url.PathEscape(user)
	encodedPass := url.PathEscape(pass)

	return scheme + "://" + encodedUser + ":" + encodedPass + "@" + hostpath + query
}

// RedactDSN masks the password in a DSN so it can be logged. Both URL DSNs
// and go-sql-driver's user:pass@net(addr)/db form are handled.
func RedactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				return u.String()
			}
		}
		return dsn
	}
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && cfg.Passwd != "" {
		cfg.Passwd = "xxxxx"
		return cfg.FormatDSN()
	}
	return dsn
}
