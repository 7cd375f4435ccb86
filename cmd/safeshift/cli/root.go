// Package cli implements the safeshift command line. Programs that define
// their own migrations import their migrations package for its Register
// calls and hand control to Execute.
package cli

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/faucetdb/safeshift/schema"
)

// errDrift is returned by `drift --exit-code` when drift was found.
var errDrift = errors.New("schema drift detected")

// ExitCode maps an error returned by Execute to a process exit status:
// 2 for detected drift, 1 for anything else.
func ExitCode(err error) int {
	if errors.Is(err, errDrift) {
		return 2
	}
	return 1
}

// Execute creates the root command tree over the default migration
// registry and runs it.
func Execute(version, commit, date string) error {
	return NewRootCmd(version, commit, date, schema.Default()).Execute()
}

// env is the state shared by every command of one invocation.
type env struct {
	v          *viper.Viper
	cfgFile    string
	noColor    bool
	migrations *schema.Registry
	fs         afero.Fs
	// interactive reports whether prompts can be answered.
	interactive func() bool
}

// NewRootCmd builds the command tree. Migrations are looked up in
// migrations.
func NewRootCmd(version, commit, date string, migrations *schema.Registry) *cobra.Command {
	e := &env{
		v:          viper.New(),
		migrations: migrations,
		fs:         afero.NewOsFs(),
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
	return newRootCmd(e, version, commit, date)
}

func newRootCmd(e *env, version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safeshift",
		Short: "Schema migrations that back up before they break",
		Long: `safeshift runs schema migrations against MySQL, PostgreSQL and SQLite with a safety net.

Every table a migration touches is backed up first and restored if the migration fails.
Rollbacks archive dropped tables and columns instead of destroying them, and drift
checks compare the live schema with the last snapshot you took.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if e.noColor {
				color.NoColor = true
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&e.cfgFile, "config", "", "config file (default is ./safeshift.yaml)")
	flags.BoolVar(&e.noColor, "no-color", false, "disable colored output")
	flags.String("driver", "", "database driver: mysql, postgres or sqlite")
	flags.String("dsn", "", "database connection string")
	flags.String("schema", "", "database schema (postgres) or database name (mysql)")
	flags.String("migrations-dir", "", "directory holding migration files")
	flags.String("snapshots-dir", "", "directory holding schema snapshots")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	for key, flag := range map[string]string{
		"database.driver":  "driver",
		"database.dsn":     "dsn",
		"database.schema":  "schema",
		"paths.migrations": "migrations-dir",
		"paths.snapshots":  "snapshots-dir",
		"logging.level":    "log-level",
		"logging.format":   "log-format",
	} {
		e.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newMigrateCmd(e))
	cmd.AddCommand(newRollbackCmd(e))
	cmd.AddCommand(newStatusCmd(e))
	cmd.AddCommand(newDriftCmd(e))
	cmd.AddCommand(newGenerateCmd(e))
	cmd.AddCommand(newSnapshotCmd(e))
	cmd.AddCommand(newImpactCmd(e))
	cmd.AddCommand(newServeCmd(e))
	cmd.AddCommand(newConfigCmd(e))
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}
