package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"geolift/adapters/api"
	"geolift/internal/batch"
	"geolift/internal/migration"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		port    string
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the JSON API under /api/v1, prometheus metrics on /metrics and a
health check on /healthz. With DATABASE_URL set, runs and batches are
persisted and can be listed and fetched again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			if migrate && e.db != nil {
				if err := migration.NewRunner().Run(cmd.Context(), e.db); err != nil {
					return err
				}
			}
			if port == "" {
				port = e.cfg.Server.Port
			}
			gin.SetMode(e.cfg.Server.GinMode)

			runner := batch.NewRunner(e.service,
				batch.WithConcurrency(e.cfg.Engine.BatchConcurrency),
				batch.WithStore(e.store),
				batch.WithMetrics(e.metrics),
				batch.WithLogger(e.log),
			)
			server := api.NewServer(api.Deps{
				Service:   e.service,
				Runner:    runner,
				Templates: e.templates,
				Metrics:   e.metrics,
				Logger:    e.log,
				Alpha:     e.cfg.Engine.DefaultAlpha,
				Power:     e.cfg.Engine.DefaultPower,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Start(ctx, ":"+port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Create missing tables before serving when a database is configured")
	return cmd
}
