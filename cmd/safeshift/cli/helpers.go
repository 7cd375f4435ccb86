package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/config"
	"github.com/faucetdb/safeshift/internal/connector"
	"github.com/faucetdb/safeshift/internal/connector/mysql"
	"github.com/faucetdb/safeshift/internal/connector/postgres"
	"github.com/faucetdb/safeshift/internal/connector/sqlite"
	"github.com/faucetdb/safeshift/internal/drift"
	"github.com/faucetdb/safeshift/internal/history"
	"github.com/faucetdb/safeshift/internal/migrator"
	"github.com/faucetdb/safeshift/internal/snapshot"
)

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("sqlite", sqlite.New)
	return registry
}

// app is everything a command needs once configuration is loaded and the
// database is open.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	adapter  connector.Adapter
	ledger   *history.SQLRepository
	store    *snapshot.FileStore
	migrator *migrator.SafeMigrator
	checker  *drift.Checker
}

// loadConfig reads the configuration with flags bound to e.v on top.
func (e *env) loadConfig() (*config.Config, error) {
	return config.LoadWith(e.v, e.cfgFile)
}

// open loads configuration, connects to the database and wires the
// migrator and drift checker. Callers must Close the app.
func (e *env) open(cmd *cobra.Command) (*app, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	adapter, err := newRegistry().Open(cfg.ConnectionConfig())
	if err != nil {
		return nil, err
	}
	logger.Debug("database connected", "driver", cfg.Database.Driver, "dsn", connector.RedactDSN(cfg.Database.DSN))

	ledger := history.NewSQLRepository(adapter, cfg.History.Table)
	store := snapshot.NewFileStore(e.fs, cfg.Paths.Snapshots)
	return &app{
		cfg:      cfg,
		logger:   logger,
		adapter:  adapter,
		ledger:   ledger,
		store:    store,
		migrator: migrator.New(adapter, ledger, e.migrations, e.fs, cfg.MigratorOptions(), logger),
		checker:  drift.NewChecker(adapter, store, e.fs, cfg.DriftOptions(), logger),
	}, nil
}

// Close releases the database connection.
func (a *app) Close() error {
	return a.adapter.Disconnect()
}

// withApp runs fn against an opened app and closes it afterwards.
func (e *env) withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := e.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// confirm asks a yes/no question on in and reports whether the answer was
// yes. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
