package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/migrator"
)

func newMigrateCmd(e *env) *cobra.Command {
	var pretend bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run pending migrations",
		Long: `Run every pending migration under a new batch.

Before each migration runs, every existing table it touches is backed up. If the
migration fails the backups are restored and no later migration runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				return runMigrate(cmd, a, pretend)
			})
		},
	}

	cmd.Flags().BoolVar(&pretend, "pretend", false, "print the SQL that would run without executing it")

	return cmd
}

func runMigrate(cmd *cobra.Command, a *app, pretend bool) error {
	out := cmd.OutOrStdout()
	results, err := a.migrator.RunPending(cmd.Context(), pretend)

	if len(results) == 0 && err == nil {
		fmt.Fprintln(out, "Nothing to migrate.")
		return nil
	}
	for _, res := range results {
		if pretend {
			printPretend(out, res)
			continue
		}
		success(out, "%s %s", res.Migration, faint(fmt.Sprintf("(batch %d, %s)", res.Batch, res.Duration.Round(time.Millisecond))))
	}

	var merr *migrator.MigrationError
	if errors.As(err, &merr) {
		failure(out, "%s", merr.Migration)
		fmt.Fprintf(out, "  %s\n", merr.Err)
		if len(merr.Restored) > 0 {
			fmt.Fprintf(out, "  restored: %s\n", strings.Join(merr.Restored, ", "))
		}
		for table, rerr := range merr.RestoreErrors {
			fmt.Fprintf(out, "  %s %s: %v\n", red("restore failed"), table, rerr)
		}
	}
	return err
}

func printPretend(w io.Writer, res *migrator.RunResult) {
	fmt.Fprintf(w, "%s %s\n", cyan("--"), bold(res.Migration))
	if len(res.Statements) == 0 {
		fmt.Fprintln(w, faint("-- no statements"))
	}
	for _, stmt := range res.Statements {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
	fmt.Fprintln(w)
}
