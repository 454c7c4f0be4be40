package main

import (
	"io"

	"github.com/spf13/cobra"

	"geolift/adapters/export"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		spec specFlags
		out  outputFlags
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, estimate and decide one experiment",
		Long: `Run one synthetic experiment end to end: generate test and control series
with the requested effect, build a control, estimate the effect over the
post-period, run validity diagnostics and issue a recommendation.

Example: geolift run --template title_tag_optimization --market chicago --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := spec.build(e, cmd)
			if err != nil {
				return err
			}
			res, err := e.service.Run(cmd.Context(), s, seed)
			if err != nil {
				return err
			}
			if res.Fallback != "" {
				e.log.Warn().Str("reason", res.Fallback).Msg("fell back to a single control")
			}
			return out.emit(cmd.OutOrStdout(), func(w io.Writer, f export.Format) error {
				return export.Run(w, res.Record, f)
			})
		},
	}

	spec.register(cmd)
	out.register(cmd)
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed; the same seed and spec reproduce the run")
	return cmd
}
