package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/decision"
	"geolift/internal/diagnostics"
	"geolift/internal/errors"
	"geolift/internal/estimator"
	"geolift/internal/generator"
	"geolift/internal/markets"
	"geolift/internal/matching"
	"geolift/internal/metrics"
	"geolift/internal/power"
	"geolift/ports"
)

// Pipeline stage names used in logs and metrics.
const (
	StageGenerate    = "generate"
	StageMatch       = "match"
	StageEstimate    = "estimate"
	StageDiagnostics = "diagnostics"
	StagePersist     = "persist"
)

// ExperimentService runs the end-to-end pipeline for one experiment:
// generate, match, estimate, diagnose, decide and optionally persist.
type ExperimentService struct {
	table   *markets.Table
	store   ports.RunStore
	metrics *metrics.Registry
	log     zerolog.Logger
	diag    diagnostics.Config
	alpha   float64
	now     func() time.Time
}

// Option configures an ExperimentService.
type Option func(*ExperimentService)

// WithStore persists every successful run.
func WithStore(store ports.RunStore) Option {
	return func(s *ExperimentService) { s.store = store }
}

// WithMetrics records run outcomes and stage timings.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *ExperimentService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *ExperimentService) { s.log = l }
}

// WithAlpha sets the significance level for intervals and diagnostics.
func WithAlpha(alpha float64) Option {
	return func(s *ExperimentService) {
		s.alpha = alpha
		s.diag.Alpha = alpha
	}
}

// WithDiagnostics overrides the diagnostics configuration.
func WithDiagnostics(cfg diagnostics.Config) Option {
	return func(s *ExperimentService) { s.diag = cfg }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ExperimentService) { s.now = now }
}

// NewExperimentService creates the pipeline over a market table.
func NewExperimentService(table *markets.Table, opts ...Option) *ExperimentService {
	s := &ExperimentService{
		table: table,
		log:   zerolog.Nop(),
		diag:  diagnostics.DefaultConfig(),
		alpha: estimator.DefaultAlpha,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Markets returns the reference table the service runs against.
func (s *ExperimentService) Markets() *markets.Table { return s.table }

// Store returns the configured run store, or nil.
func (s *ExperimentService) Store() ports.RunStore { return s.store }

// RunResult is a finished run: the persisted record plus the working data
// that produced it.
type RunResult struct {
	Record   *experiment.RunRecord `json:"record"`
	Ranked   []matching.Candidate  `json:"ranked"`
	Model    *estimator.Model      `json:"model"`
	Dataset  *generator.Dataset    `json:"-"`
	Fallback string                `json:"fallback,omitempty"`
}

// Run executes the pipeline for spec with seed.
func (s *ExperimentService) Run(ctx context.Context, spec experiment.ExperimentSpec, seed int64) (*RunResult, error) {
	res, err := s.run(ctx, spec, seed, "")
	s.record(res, err)
	return res, err
}

// RunInBatch is Run with the record tagged with a batch id.
func (s *ExperimentService) RunInBatch(ctx context.Context, spec experiment.ExperimentSpec, seed int64, batchID core.BatchID) (*RunResult, error) {
	res, err := s.run(ctx, spec, seed, batchID)
	s.record(res, err)
	return res, err
}

func (s *ExperimentService) run(ctx context.Context, spec experiment.ExperimentSpec, seed int64, batchID core.BatchID) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.WithDefaults()
	runID := core.NewRunID()
	log := s.log.With().Str("run_id", runID.String()).Str("test_market", spec.TestMarket).Int64("seed", seed).Logger()

	start := time.Now()
	ds, err := generator.Generate(spec, seed, s.table)
	if err != nil {
		return nil, errors.Wrap(err, "generate series")
	}
	s.metrics.ObserveStage(StageGenerate, start)
	log.Debug().Str("dataset_hash", core.Hash(ds.Metadata.DatasetHash).Short()).Int("controls", len(ds.ControlOrder)).Msg("series generated")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	sel, err := s.selectControls(spec, ds)
	if err != nil {
		return nil, errors.Wrap(err, "select controls")
	}
	s.metrics.ObserveStage(StageMatch, start)
	if sel.fallback != "" {
		log.Warn().Str("reason", sel.fallback).Str("control", sel.controlIDs[0]).Msg("falling back to single best-match control")
	}

	start = time.Now()
	est, err := estimator.Estimate(ds.Test, sel.series, ds.Pre(), ds.Post(), estimator.Options{Alpha: s.alpha})
	if err != nil {
		return nil, errors.Wrap(err, "estimate effect")
	}
	s.metrics.ObserveStage(StageEstimate, start)

	start = time.Now()
	report, err := diagnostics.Run(diagnostics.Input{
		Test:         ds.Test,
		Controls:     sel.series,
		Candidates:   sel.candidates,
		Weights:      sel.weights,
		Pre:          ds.Pre(),
		Post:         ds.Post(),
		Model:        est.Model,
		Estimate:     est.Estimate,
		RidgePenalty: spec.RidgePenalty,
	}, s.diag)
	if err != nil {
		return nil, errors.Wrap(err, "run diagnostics")
	}
	s.metrics.ObserveStage(StageDiagnostics, start)

	dec := decision.FromEstimate(est.Estimate)
	record := &experiment.RunRecord{
		ID:          runID,
		BatchID:     batchID,
		CreatedAt:   s.now().UTC(),
		Spec:        spec,
		Seed:        seed,
		Metadata:    ds.Metadata,
		ControlMode: sel.mode,
		Controls:    sel.controlIDs,
		Weights:     sel.weights,
		Estimate:    est.Estimate,
		Report:      *report,
		Decision:    dec,
		Daily:       est.Daily,
	}
	log.Info().
		Str("control_mode", string(sel.mode)).
		Float64("effect_pct", est.Estimate.EffectPct).
		Float64("p_value", est.Estimate.PValue).
		Str("validity", string(report.Overall)).
		Str("decision", string(dec.Recommendation)).
		Msg("experiment evaluated")

	if s.store != nil {
		start = time.Now()
		if err := s.store.SaveRun(ctx, record); err != nil {
			return nil, errors.Wrap(err, "persist run")
		}
		s.metrics.ObserveStage(StagePersist, start)
	}

	return &RunResult{
		Record:   record,
		Ranked:   sel.ranked,
		Model:    est.Model,
		Dataset:  ds,
		Fallback: sel.fallback,
	}, nil
}

func (s *ExperimentService) record(res *RunResult, err error) {
	if err != nil {
		s.metrics.RecordRun(errors.GetCode(err), "", "")
		return
	}
	s.metrics.RecordRun("ok", string(res.Record.Decision.Recommendation), string(res.Record.Report.Overall))
}

// selection is the outcome of control matching for one run.
type selection struct {
	mode       experiment.ControlMode
	ranked     []matching.Candidate
	controlIDs []string
	series     []experiment.TimeSeries
	weights    *experiment.SyntheticControlWeights
	candidates map[string]experiment.TimeSeries
	fallback   string
}

// selectControls ranks the generated controls and returns the series the
// estimator should regress on. Explicit control markets are all used; with
// none, the TopK nearest by characteristics are. In auto mode a synthetic
// control that cannot be built degrades to the single best match.
func (s *ExperimentService) selectControls(spec experiment.ExperimentSpec, ds *generator.Dataset) (*selection, error) {
	testMarket, _ := s.table.Get(spec.TestMarket)
	cands, err := s.table.Lookup(ds.ControlOrder)
	if err != nil {
		return nil, err
	}
	pre := ds.Pre()
	testPre, err := ds.Test.Slice(pre)
	if err != nil {
		return nil, err
	}
	candPre := make(map[string]experiment.TimeSeries, len(ds.ControlOrder))
	for _, id := range ds.ControlOrder {
		sp, err := ds.Controls[id].Slice(pre)
		if err != nil {
			return nil, err
		}
		candPre[id] = sp
	}
	ranked, err := matching.RankControls(testMarket, cands, testPre, candPre)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, errors.InsufficientData("matching", "no control candidates available")
	}

	chosen := matching.TopK(ranked, len(ranked))
	if len(spec.ControlMarkets) == 0 {
		chosen = matching.TopK(ranked, spec.TopK)
	}

	sel := &selection{ranked: ranked}
	single := func(reason string) (*selection, error) {
		best := chosen[0]
		sel.mode = experiment.ControlSingle
		sel.controlIDs = []string{best}
		sel.series = []experiment.TimeSeries{ds.Controls[best]}
		sel.weights = nil
		sel.candidates = nil
		sel.fallback = reason
		return sel, nil
	}
	if spec.ControlMode == experiment.ControlSingle {
		return single("")
	}

	pres := make([]experiment.TimeSeries, 0, len(chosen))
	for _, id := range chosen {
		pres = append(pres, candPre[id])
	}
	weights, err := matching.BuildSyntheticControl(testPre, pres, spec.RidgePenalty)
	switch {
	case matching.IsTooFewControls(err):
		return single(fmt.Sprintf("%d control candidate(s); a synthetic control needs at least 2", len(chosen)))
	case err != nil && spec.ControlMode == experiment.ControlAuto && errors.Is(err, errors.CodeNumericalFit):
		return single("synthetic control fit failed: " + err.Error())
	case err != nil:
		return nil, err
	}

	full := make(map[string]experiment.TimeSeries, len(chosen))
	for _, id := range chosen {
		full[id] = ds.Controls[id]
	}
	combined, err := matching.Combine(weights, full)
	if err != nil {
		return nil, err
	}
	sel.mode = experiment.ControlSynthetic
	sel.controlIDs = chosen
	sel.series = []experiment.TimeSeries{combined}
	sel.weights = weights
	sel.candidates = full
	return sel, nil
}

// DesignRequest asks for a test plan. Spec supplies the market, pre-period
// and planned post-period; Spec.Effect.Magnitude is the minimum detectable
// effect.
type DesignRequest struct {
	Spec  experiment.ExperimentSpec `json:"spec"`
	Seed  int64                     `json:"seed"`
	Alpha float64                   `json:"alpha"`
	Power float64                   `json:"power"`
}

// DesignResult is a test plan: ranked controls, the calibrated baseline,
// the required duration and the power at the planned duration.
type DesignResult struct {
	TestMarket string               `json:"test_market"`
	Candidates []matching.Candidate `json:"candidates"`
	Baseline   power.Baseline       `json:"baseline"`
	Plan       power.Plan           `json:"plan"`
	Planned    power.Assessment     `json:"planned"`
	Curve      []power.Assessment   `json:"curve"`
}

// Design calibrates a baseline from a generated pre-period with no effect
// and sizes the experiment.
func (s *ExperimentService) Design(ctx context.Context, req DesignRequest) (*DesignResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Spec.Validate(); err != nil {
		return nil, err
	}
	spec := req.Spec.WithDefaults()
	mde := spec.Effect.Magnitude
	if mde == 0 {
		return nil, errors.Domain("power", "mde", "minimum detectable effect must be non-zero")
	}
	alpha, target := req.Alpha, req.Power
	if alpha == 0 {
		alpha = s.alpha
	}
	if target == 0 {
		target = power.HighPowerThreshold
	}

	calib := spec
	calib.Effect = experiment.EffectSpec{Magnitude: 0, Shape: experiment.ShapeStep}
	calib.Confounders = nil
	ds, err := generator.Generate(calib, req.Seed, s.table)
	if err != nil {
		return nil, errors.Wrap(err, "generate calibration series")
	}
	sel, err := s.selectControls(calib, ds)
	if err != nil {
		return nil, errors.Wrap(err, "rank controls")
	}
	testPre, err := ds.Test.Slice(ds.Pre())
	if err != nil {
		return nil, err
	}
	baseline, err := power.BaselineFromSeries(testPre)
	if err != nil {
		return nil, err
	}
	plan, err := power.RequiredDuration(alpha, target, mde, baseline.Mean, baseline.Std)
	if err != nil {
		return nil, err
	}
	planned, err := power.Assess(spec.PostPeriodDays, alpha, mde, baseline.Mean, baseline.Std)
	if err != nil {
		return nil, err
	}
	curve, err := power.Curve([]int{7, 14, 21, 28, 42, 56, 70, 90}, alpha, mde, baseline.Mean, baseline.Std)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("test_market", spec.TestMarket).
		Float64("mde", mde).
		Int("required_days", plan.RequiredDays).
		Float64("planned_power", planned.Power).
		Str("status", string(planned.Status)).
		Msg("design computed")

	return &DesignResult{
		TestMarket: spec.TestMarket,
		Candidates: sel.ranked,
		Baseline:   baseline,
		Plan:       plan,
		Planned:    planned,
		Curve:      curve,
	}, nil
}

// GetRun loads a persisted run.
func (s *ExperimentService) GetRun(ctx context.Context, id core.RunID) (*experiment.RunRecord, error) {
	if s.store == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "persistence is not configured")
	}
	return s.store.GetRun(ctx, id)
}

// ListRuns lists persisted runs.
func (s *ExperimentService) ListRuns(ctx context.Context, filter ports.RunFilter) ([]experiment.RunSummary, error) {
	if s.store == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "persistence is not configured")
	}
	return s.store.ListRuns(ctx, filter)
}
