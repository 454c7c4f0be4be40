package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"geolift/internal/errors"
	"geolift/internal/migration"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the persistence tables in DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			if e.db == nil {
				return errors.ConfigInvalid("DATABASE_URL is required")
			}
			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), e.db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s ready: %v\n", runner.Version(), migration.Tables())
			return nil
		},
	}
}
