package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/diff"
	"github.com/faucetdb/safeshift/internal/drift"
)

func newDriftCmd(e *env) *cobra.Command {
	var (
		jsonOutput bool
		exitCode   bool
	)

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare the live schema with the latest snapshot",
		Long: `Compare the live database schema with the latest snapshot and report every
difference, classified as additive or breaking.

With --exit-code the command exits with status 2 when drift is found, for use in CI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				report, err := a.checker.Check(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(report); err != nil {
						return err
					}
				} else {
					printDrift(cmd.OutOrStdout(), report)
				}
				if exitCode && report.HasDrift() {
					return errDrift
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Exit with status 2 when drift is found")

	return cmd
}

func printDrift(w io.Writer, r *drift.Report) {
	for _, warning := range r.Warnings {
		warn(w, "%s", warning)
	}
	if !r.HasDrift() {
		success(w, "No drift from snapshot %s (v%d).", r.Snapshot, r.Version)
		return
	}

	fmt.Fprintf(w, "Drift from snapshot %s (v%d):\n", bold(r.Snapshot), r.Version)
	for _, item := range r.Summary.Items {
		mark := green("+")
		if item.Severity == diff.Breaking {
			mark = red("-")
		}
		fmt.Fprintf(w, "  %s %s\n", mark, item.Description)
	}
	fmt.Fprintf(w, "\n%d additive, %d breaking. Run `safeshift generate <name>` to write a migration that restores the snapshot.\n",
		r.Summary.AdditiveCount, r.Summary.BreakingCount)
}
