// Package batch runs many independent experiments and aggregates their
// outcomes. Runs share no mutable state: each gets its own spec, seed and
// generator, and writes only its own result slot.
package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"geolift/app"
	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/metrics"
	"geolift/ports"
)

// DefaultConcurrency bounds parallel runs when the runner is not configured.
const DefaultConcurrency = 4

// Pipeline is the single-run entry point the batch drives.
type Pipeline interface {
	RunInBatch(ctx context.Context, spec experiment.ExperimentSpec, seed int64, batchID core.BatchID) (*app.RunResult, error)
}

// Runner executes batches with bounded parallelism.
type Runner struct {
	pipeline    Pipeline
	concurrency int
	store       ports.RunStore
	metrics     *metrics.Registry
	log         zerolog.Logger
	now         func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithStore(store ports.RunStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

func WithMetrics(m *metrics.Registry) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a batch runner over pipeline.
func NewRunner(pipeline Pipeline, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline:    pipeline,
		concurrency: DefaultConcurrency,
		log:         zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one pipeline invocation per spec, seeding the i-th with
// seeds.Seed(i). Failed runs are recorded with their error kind and never
// retried. Only cancellation of ctx aborts the batch.
func (r *Runner) Run(ctx context.Context, specs []experiment.ExperimentSpec, seeds ports.SeedSource) (*experiment.BatchSummary, error) {
	if len(specs) == 0 {
		return nil, errors.Configuration("batch", "specs", "a batch needs at least one experiment")
	}
	if seeds == nil {
		seeds = SequentialSeeds{}
	}
	batchID := core.NewBatchID()
	log := r.log.With().Str("batch_id", batchID.String()).Int("runs", len(specs)).Logger()
	log.Info().Int("concurrency", r.concurrency).Msg("batch started")

	if r.metrics != nil {
		r.metrics.ActiveBatches.Inc()
		defer r.metrics.ActiveBatches.Dec()
	}

	started := time.Now()
	runs := make([]experiment.BatchRun, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range specs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := seeds.Seed(i)
			runs[i] = r.runOne(gctx, i, specs[i], seed, batchID)
			if r.metrics != nil {
				result := "ok"
				if runs[i].Failed() {
					result = runs[i].ErrorKind
				}
				r.metrics.BatchRuns.WithLabelValues(result).Inc()
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Warn().Err(err).Msg("batch cancelled")
		return nil, err
	}

	summary := Summarize(runs)
	summary.ID = batchID
	summary.CreatedAt = r.now().UTC()
	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Float64("win_rate", summary.WinRate).
		Dur("elapsed", time.Since(started)).
		Msg("batch finished")

	if r.store != nil {
		if err := r.store.SaveBatch(ctx, &summary); err != nil {
			return nil, errors.Wrap(err, "persist batch")
		}
	}
	return &summary, nil
}

func (r *Runner) runOne(ctx context.Context, i int, spec experiment.ExperimentSpec, seed int64, batchID core.BatchID) experiment.BatchRun {
	row := experiment.BatchRun{
		Index:          i,
		Seed:           seed,
		TestMarket:     spec.TestMarket,
		Magnitude:      spec.Effect.Magnitude,
		Shape:          spec.Effect.Shape,
		PostPeriodDays: spec.PostPeriodDays,
		Confounders:    len(spec.Confounders),
	}
	if row.Shape == "" {
		row.Shape = experiment.ShapeStep
	}
	res, err := r.pipeline.RunInBatch(ctx, spec, seed, batchID)
	if err != nil {
		row.Error = err.Error()
		row.ErrorKind = errors.GetCode(err)
		r.log.Debug().Int("index", i).Str("kind", row.ErrorKind).Err(err).Msg("batch run failed")
		return row
	}
	rec := res.Record
	row.RunID = rec.ID
	row.ControlMode = rec.ControlMode
	row.EffectPct = rec.Estimate.EffectPct
	row.PValue = rec.Estimate.PValue
	row.ZScore = rec.Estimate.ZScore
	row.Recommendation = rec.Decision.Recommendation
	row.Validity = rec.Report.Overall
	return row
}
