package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRollbackCmd(e *env) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the last batch of migrations",
		Long: `Roll back every migration of the last batch, newest first.

With safety.safe_rollback enabled (the default) tables and columns the migrations
dropped are renamed to archive names instead of being destroyed. Otherwise each
migration's Down method runs as written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				return runRollback(cmd, e, a, force)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")

	return cmd
}

func runRollback(cmd *cobra.Command, e *env, a *app, force bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var names []string
	exists, err := a.ledger.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		entries, err := a.ledger.GetLast(ctx)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			names = append(names, entry.Migration)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(out, "Nothing to roll back.")
		return nil
	}

	if !force {
		if !e.interactive() {
			return fmt.Errorf("rollback needs confirmation: rerun with --force")
		}
		fmt.Fprintln(out, "The following migrations will be rolled back:")
		for _, name := range names {
			fmt.Fprintf(out, "  %s\n", name)
		}
		if !a.cfg.Safety.SafeRollback {
			warn(out, "safe rollback is disabled; Down methods run as written")
		}
		if !confirm(cmd.InOrStdin(), out, "Continue?") {
			fmt.Fprintln(out, "Rollback cancelled.")
			return nil
		}
	}

	rolled, err := a.migrator.RollbackLastBatch(ctx)
	for _, name := range rolled {
		success(out, "rolled back %s", name)
	}
	return err
}
