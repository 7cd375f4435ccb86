package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/safeshift/internal/config"
	"github.com/faucetdb/safeshift/internal/connector"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage safeshift configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd(e))
	cmd.AddCommand(newConfigShowCmd(e))

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd(e *env) *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default safeshift.yaml configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				exists, err := afero.Exists(e.fs, path)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.WriteDefaultConfig(e.fs, path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			success(cmd.OutOrStdout(), "Created %s", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set database.driver and database.dsn, then run 'safeshift status'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", config.DefaultFileName, "Path to write")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			shown.Database.DSN = connector.RedactDSN(cfg.Database.DSN)

			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
