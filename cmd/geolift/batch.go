package main

import (
	"io"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"geolift/adapters/export"
	"geolift/internal/batch"
	"geolift/internal/errors"
	"geolift/ports"
)

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		out         outputFlags
		template    string
		marketIDs   []string
		effects     []float64
		experiments int
		post        int
		confounders bool
		matched     bool
		seedBase    int64
		randomSeeds bool
		gridSeed    uint64
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a grid of experiments and summarize the outcomes",
		Long: `Pair markets in order (1st vs 2nd, 3rd vs 4th, ...) and cross each pair with
every effect size. Runs execute in parallel with independent seeds; failures
are recorded, not retried.

Example: geolift batch --template schema_markup --markets chicago,philadelphia,boston,seattle --effects 0,0.05,0.1 --experiments 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(g)
			if err != nil {
				return err
			}
			defer e.Close()

			tpl, err := e.templates.Get(template)
			if err != nil {
				return err
			}
			if len(marketIDs) == 0 {
				marketIDs = e.table.IDs()
			}
			specs, err := batch.Grid(batch.GridRequest{
				Template:       tpl,
				Markets:        marketIDs,
				Effects:        effects,
				Experiments:    experiments,
				PostPeriodDays: post,
				Confounders:    confounders,
				Matched:        matched,
			}, rand.New(rand.NewPCG(gridSeed, 0)))
			if err != nil {
				return err
			}

			var seeds ports.SeedSource = batch.SequentialSeeds{Base: seedBase}
			if randomSeeds {
				seeds = batch.NewRandomSeeds()
			}
			if concurrency == 0 {
				concurrency = e.cfg.Engine.BatchConcurrency
			}
			runner := batch.NewRunner(e.service,
				batch.WithConcurrency(concurrency),
				batch.WithStore(e.store),
				batch.WithMetrics(e.metrics),
				batch.WithLogger(e.log),
			)
			summary, err := runner.Run(cmd.Context(), specs, seeds)
			if err != nil {
				return err
			}
			if summary.Succeeded == 0 {
				e.log.Warn().Int("failed", summary.Failed).Msg("every run in the batch failed")
			}
			return out.emit(cmd.OutOrStdout(), func(w io.Writer, f export.Format) error {
				return export.Batch(w, summary, f)
			})
		},
	}

	out.register(cmd)
	cmd.Flags().StringVar(&template, "template", "", "Template id supplying periods, metric and shape")
	cmd.Flags().StringSliceVar(&marketIDs, "markets", nil, "Market ids to pair in order (default: every market)")
	cmd.Flags().Float64SliceVar(&effects, "effects", []float64{0.05}, "Effect magnitudes as fractions")
	cmd.Flags().IntVar(&experiments, "experiments", 5, "Number of market pairs")
	cmd.Flags().IntVar(&post, "post", 0, "Post-period days (default: template)")
	cmd.Flags().BoolVar(&confounders, "confounders", false, "Inject a random confounder into about half of the runs")
	cmd.Flags().BoolVar(&matched, "matched", false, "Let the engine choose controls instead of the paired market")
	cmd.Flags().Int64Var(&seedBase, "seed", 1, "Seed of the first run; run i uses seed+i")
	cmd.Flags().BoolVar(&randomSeeds, "random-seeds", false, "Draw seeds at random instead of seed+i")
	cmd.Flags().Uint64Var(&gridSeed, "grid-seed", 42, "Seed for confounder placement across the grid")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel runs (default BATCH_CONCURRENCY)")
	_ = cmd.MarkFlagRequired("template")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if experiments <= 0 {
			return errors.Configuration("cli", "experiments", "must be positive")
		}
		return nil
	}
	return cmd
}
