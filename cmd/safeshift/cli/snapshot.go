package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/snapshot"
)

func newSnapshotCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <name>",
		Short: "Save the live schema as the next snapshot",
		Long: `Save the live schema as the next numbered snapshot. Drift checks compare against
the latest snapshot.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				snap, err := a.checker.TakeSnapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Saved snapshot %s (v%d, %d tables)", snap.Name, snap.Version, len(snap.Schema))
				return nil
			})
		},
	}

	cmd.AddCommand(newSnapshotListCmd(e))

	return cmd
}

func newSnapshotListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			store := snapshot.NewFileStore(e.fs, cfg.Paths.Snapshots)
			snaps, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(snaps) == 0 {
				fmt.Fprintf(out, "No snapshots in %s.\n", cfg.Paths.Snapshots)
				return nil
			}

			rows := make([][]string, len(snaps))
			for i, s := range snaps {
				rows[i] = []string{strconv.Itoa(s.Version), s.Name, s.Timestamp.Format("2006-01-02 15:04:05"), strconv.Itoa(len(s.Schema))}
			}
			table(out, []string{"Version", "Name", "Taken", "Tables"}, rows, rows)
			return nil
		},
	}
}
