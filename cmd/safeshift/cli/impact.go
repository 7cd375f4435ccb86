package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/migrator"
)

func newImpactCmd(e *env) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "impact <migration>",
		Short: "Show what a migration touches and how much data it would drop",
		Long: `Scan a migration's Up method for the tables it creates, modifies, drops or renames,
and count the rows that would be lost to every table and column it drops.

The migration may be given as a file path or as its name in the migrations directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				affected, err := a.migrator.GetAffectedTables(args[0])
				if err != nil {
					return err
				}
				loss, err := a.migrator.EstimateDataLoss(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{
						"migration": migrator.MigrationName(args[0]),
						"affected":  affected,
						"data_loss": loss,
					})
				}

				fmt.Fprintf(out, "%s %s\n", bold("Migration:"), migrator.MigrationName(args[0]))
				if len(affected) == 0 {
					fmt.Fprintln(out, "Touches no tables.")
				} else {
					fmt.Fprintf(out, "%s %s\n", bold("Tables:"), strings.Join(affected, ", "))
				}
				if len(loss) == 0 {
					success(out, "No data would be dropped.")
					return nil
				}

				rows := make([][]string, len(loss))
				for i, l := range loss {
					target := l.Table
					if l.Type == "column" {
						target = l.Table + "." + l.Name
					}
					rows[i] = []string{l.Type, target, strconv.FormatInt(l.Rows, 10)}
				}
				warn(out, "This migration drops data:")
				table(out, []string{"Kind", "Target", "Rows"}, rows, rows)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the impact report as JSON")

	return cmd
}
