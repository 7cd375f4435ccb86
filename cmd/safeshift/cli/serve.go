package cli

import (
	"github.com/spf13/cobra"

	"github.com/faucetdb/safeshift/internal/server"
)

func newServeCmd(e *env) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only status API",
		Long: `Start an HTTP server that reports migration status, schema drift and migration
impact as JSON. The server never changes the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(a *app) error {
				cfg := server.Config{
					Host:            a.cfg.Server.Host,
					Port:            a.cfg.Server.Port,
					ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
					CORSOrigins:     a.cfg.Server.CORSOrigins,
					RateLimit:       a.cfg.Server.RateLimit,
				}
				if cmd.Flags().Changed("host") {
					cfg.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}
				srv := server.New(cfg, a.adapter, a.migrator, a.checker, a.logger)
				return srv.ListenAndServe(cmd.Context())
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen address (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")

	return cmd
}
