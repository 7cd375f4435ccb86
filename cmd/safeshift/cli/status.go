package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCmd(e *env) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which migrations have run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				return runStatus(cmd, a, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, a *app, jsonOutput bool) error {
	rows, err := a.migrator.Status(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No migrations found in %s.\n", a.cfg.Paths.Migrations)
		return nil
	}

	styled := make([][]string, len(rows))
	plain := make([][]string, len(rows))
	for i, row := range rows {
		batch, state, style := "", "Pending", yellow
		switch {
		case row.Missing:
			batch, state, style = strconv.Itoa(row.Batch), "Missing", red
		case row.Ran:
			batch, state, style = strconv.Itoa(row.Batch), "Ran", green
		}
		plain[i] = []string{row.Name, batch, state}
		styled[i] = []string{row.Name, batch, style(state)}
	}
	table(out, []string{"Migration", "Batch", "Status"}, styled, plain)
	return nil
}
