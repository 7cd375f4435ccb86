package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newGenerateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <name>",
		Short: "Write a migration that brings the database back to the latest snapshot",
		Long: `Compare the live schema with the latest snapshot and write a Go migration whose
Up turns the live schema into the snapshot and whose Down reverses it.

The file is written to the migrations directory. Add it to your migrations package
build and it registers itself under its file name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				path, err := a.checker.Generate(cmd.Context(), args[0], time.Now())
				if err != nil {
					return err
				}
				if path == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Schema matches the snapshot; nothing to generate.")
					return nil
				}
				success(cmd.OutOrStdout(), "Created %s", path)
				return nil
			})
		},
	}
}
