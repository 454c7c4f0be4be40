package main

import (
	"io"

	"github.com/spf13/cobra"

	"geolift/adapters/export"
	"geolift/app"
)

func newDesignCmd(g *globalFlags) *cobra.Command {
	var (
		spec   specFlags
		out    outputFlags
		seed   int64
		alpha  float64
		target float64
	)

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Size an experiment: controls, required duration and power",
		Long: `Calibrate a baseline from a generated pre-period with no effect, rank
candidate controls and compute the duration needed to detect --mde.

Example: geolift design --market chicago --mde 0.08 --post 42`,
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
			if alpha == 0 {
				alpha = e.cfg.Engine.DefaultAlpha
			}
			if target == 0 {
				target = e.cfg.Engine.DefaultPower
			}
			res, err := e.service.Design(cmd.Context(), app.DesignRequest{Spec: s, Seed: seed, Alpha: alpha, Power: target})
			if err != nil {
				return err
			}
			return out.emit(cmd.OutOrStdout(), func(w io.Writer, f export.Format) error {
				return export.Design(w, res, f)
			})
		},
	}

	spec.register(cmd)
	out.register(cmd)
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the calibration series")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "Significance level (default DEFAULT_ALPHA)")
	cmd.Flags().Float64Var(&target, "power", 0, "Target power (default DEFAULT_POWER)")
	return cmd
}
