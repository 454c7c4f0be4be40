// Package testkit provides fixtures shared by package tests: a small market
// table, spec builders, hand-built run records and an in-memory RunStore.
package testkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/markets"
	"geolift/ports"
)

// FixedTime is the timestamp used by every fixture.
var FixedTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

// SmallTable returns a five-market table with two characteristics each.
func SmallTable() *markets.Table {
	t, err := markets.NewTable([]experiment.Market{
		{ID: "alpha", Name: "Alpha", Characteristics: []float64{1.0, 10}},
		{ID: "bravo", Name: "Bravo", Characteristics: []float64{1.1, 11}},
		{ID: "charlie", Name: "Charlie", Characteristics: []float64{1.4, 9}},
		{ID: "delta", Name: "Delta", Characteristics: []float64{3.0, 20}},
		{ID: "echo", Name: "Echo", Characteristics: []float64{0.5, 5}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// SpecOption tweaks a fixture spec.
type SpecOption func(*experiment.ExperimentSpec)

// WithEffect sets the effect magnitude and shape.
func WithEffect(mag float64, shape experiment.EffectShape) SpecOption {
	return func(s *experiment.ExperimentSpec) { s.Effect = experiment.EffectSpec{Magnitude: mag, Shape: shape} }
}

// WithControls sets explicit control markets.
func WithControls(ids ...string) SpecOption {
	return func(s *experiment.ExperimentSpec) { s.ControlMarkets = ids }
}

// WithPeriods sets pre- and post-period lengths.
func WithPeriods(pre, post int) SpecOption {
	return func(s *experiment.ExperimentSpec) { s.PrePeriodDays, s.PostPeriodDays = pre, post }
}

// WithConfounders appends confounders.
func WithConfounders(cs ...experiment.ConfounderSpec) SpecOption {
	return func(s *experiment.ExperimentSpec) { s.Confounders = append(s.Confounders, cs...) }
}

// Spec returns a valid spec against SmallTable: alpha vs the rest, 60 + 28
// days, 10% step lift.
func Spec(opts ...SpecOption) experiment.ExperimentSpec {
	s := experiment.ExperimentSpec{
		Template:       "fixture",
		Metric:         "organic_clicks",
		TestMarket:     "alpha",
		PrePeriodDays:  60,
		PostPeriodDays: 28,
		Effect:         experiment.EffectSpec{Magnitude: 0.10, Shape: experiment.ShapeStep},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// SampleRun returns a complete, hand-built run record with three post days.
func SampleRun() *experiment.RunRecord {
	spec := Spec(WithControls("bravo", "charlie"), WithPeriods(60, 3)).WithDefaults()
	start := spec.StartDate.AddDate(0, 0, 60)
	daily := []experiment.DailyEffect{
		{Date: start, Actual: 1100, Counterfactual: 1000, Effect: 100, Cumulative: 100},
		{Date: start.AddDate(0, 0, 1), Actual: 1120, Counterfactual: 1010, Effect: 110, Cumulative: 210},
		{Date: start.AddDate(0, 0, 2), Actual: 0, Counterfactual: 990, Missing: true, Cumulative: 210},
	}
	return &experiment.RunRecord{
		ID:        core.RunID("0195a0b4-6f2e-7c1a-9d3e-2b4f6a8c0e12"),
		CreatedAt: FixedTime,
		Spec:      spec,
		Seed:      42,
		Metadata: experiment.GenerationMetadata{
			Seed:              42,
			DatasetHash:       "9f2c1a7e5b3d4c6a8e0f1b2d3c4e5f6a7b8c9d0e1f2a3b4c5d6e7f8091a2b3c4",
			BaselineMean:      1000,
			TestPreMean:       980,
			RequestedEffect:   0.10,
			AppliedEffect:     0.104,
			Shape:             experiment.ShapeStep,
			InterventionIndex: 60,
			InterventionDate:  start,
		},
		ControlMode: experiment.ControlSynthetic,
		Controls:    []string{"bravo", "charlie"},
		Weights: &experiment.SyntheticControlWeights{
			Weights: map[string]float64{"bravo": 0.62, "charlie": 0.41},
			Order:   []string{"bravo", "charlie"},
			Penalty: 1,
			Fit:     experiment.FitQuality{Correlation: 0.97, RMSE: 21.5, RMSEPct: 2.1, MAE: 17.2, RSquared: 0.94, Observations: 60},
		},
		Estimate: experiment.CausalEstimate{
			CumulativeEffect:    210,
			AverageDailyEffect:  105,
			EffectPct:           10.34,
			StandardError:       3.54,
			ZScore:              59.4,
			PValue:              0,
			CILower:             203.1,
			CIUpper:             216.9,
			Alpha:               0.05,
			PostObservations:    2,
			CounterfactualTotal: 2010,
			ActualTotal:         2220,
		},
		Report: experiment.ValidityReport{
			Overall: experiment.StatusWarn,
			Checks: []experiment.ValidityCheckResult{
				{Name: "pre_period_correlation", Status: experiment.StatusPass, Value: 0.97, Threshold: 0.85, Detail: "pre-period correlation 0.970 tracks the test market closely"},
				{Name: "outliers", Status: experiment.StatusWarn, Value: 1, Threshold: 3.5, Detail: "1 outlier days in the pre-period"},
			},
		},
		Decision: experiment.Decision{
			Recommendation: experiment.Ship,
			EffectPct:      10.34,
			PValue:         0,
			Direction:      experiment.DirectionPositive,
			Rationale:      "+10.34% effect exceeds 5% with p = 0.0000 < 0.05",
		},
		Daily: daily,
	}
}

// SampleBatch returns a three-run batch with one failure.
func SampleBatch() *experiment.BatchSummary {
	return &experiment.BatchSummary{
		ID:        core.BatchID("0195a0b4-6f2e-7c1a-9d3e-2b4f6a8c0e99"),
		CreatedAt: FixedTime,
		Total:     3,
		Succeeded: 2,
		Failed:    1,
		WinRate:   1.0 / 3.0,
		Decisions: map[experiment.Recommendation]int{experiment.Ship: 1, experiment.DoNotShip: 1},
		Effect:    experiment.EffectStats{Mean: 5.5, Std: 4.95, Min: 2, Q1: 3.75, Median: 5.5, Q3: 7.25, Max: 9},
		Significance: experiment.SignificanceBuckets{
			Below05: 1, Above10: 1,
		},
		ErrorKinds: map[string]int{errors.CodeInsufficientData: 1},
		Runs: []experiment.BatchRun{
			{Index: 0, RunID: "0195a0b4-6f2e-7c1a-9d3e-2b4f6a8c0e01", Seed: 1, TestMarket: "alpha", Magnitude: 0.1, Shape: experiment.ShapeStep, PostPeriodDays: 28, ControlMode: experiment.ControlSingle, EffectPct: 9, PValue: 0.001, ZScore: 12, Recommendation: experiment.Ship, Validity: experiment.StatusPass},
			{Index: 1, RunID: "0195a0b4-6f2e-7c1a-9d3e-2b4f6a8c0e02", Seed: 2, TestMarket: "bravo", Magnitude: 0, Shape: experiment.ShapeStep, PostPeriodDays: 28, ControlMode: experiment.ControlSingle, EffectPct: 2, PValue: 0.3, ZScore: 1, Recommendation: experiment.DoNotShip, Validity: experiment.StatusWarn},
			{Index: 2, Seed: 3, TestMarket: "charlie", Magnitude: 0.1, Shape: experiment.ShapeStep, PostPeriodDays: 28, Error: "estimate effect: pre-period has 5 observed days", ErrorKind: errors.CodeInsufficientData},
		},
	}
}

// InMemoryRunStore implements ports.RunStore with in-memory storage
type InMemoryRunStore struct {
	runs    map[core.RunID]*experiment.RunRecord
	order   []core.RunID
	batches map[core.BatchID]*experiment.BatchSummary
	mu      sync.RWMutex
}

var _ ports.RunStore = (*InMemoryRunStore)(nil)

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{
		runs:    make(map[core.RunID]*experiment.RunRecord),
		batches: make(map[core.BatchID]*experiment.BatchSummary),
	}
}

func (s *InMemoryRunStore) SaveRun(_ context.Context, run *experiment.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

func (s *InMemoryRunStore) GetRun(_ context.Context, id core.RunID) (*experiment.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.WithCode(errors.CodeNotFound, core.RunNotFound(id))
	}
	return run, nil
}

func (s *InMemoryRunStore) ListRuns(_ context.Context, f ports.RunFilter) ([]experiment.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []experiment.RunSummary
	for _, id := range s.order {
		r := s.runs[id]
		switch {
		case f.TestMarket != "" && r.Spec.TestMarket != f.TestMarket:
			continue
		case f.Template != "" && r.Spec.Template != f.Template:
			continue
		case f.BatchID != "" && r.BatchID != f.BatchID:
			continue
		case f.Recommendation != "" && r.Decision.Recommendation != f.Recommendation:
			continue
		}
		out = append(out, r.Summary())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemoryRunStore) SaveBatch(_ context.Context, b *experiment.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = b
	return nil
}

func (s *InMemoryRunStore) GetBatch(_ context.Context, id core.BatchID) (*experiment.BatchSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, errors.WithCode(errors.CodeNotFound, core.BatchNotFound(id))
	}
	return b, nil
}
