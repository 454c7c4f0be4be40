package batch

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/app"
	"geolift/domain/experiment"
	"geolift/internal/config"
	"geolift/internal/errors"
	"geolift/internal/markets"
	"geolift/internal/metrics"
	"geolift/ports"
)

func gridSpecs(t *testing.T) []experiment.ExperimentSpec {
	t.Helper()
	tpl := config.DefaultTemplates()[0]
	specs, err := Grid(GridRequest{
		Template:       tpl,
		Markets:        []string{"chicago", "philadelphia", "atlanta", "dallas_fort_worth"},
		Effects:        []float64{0.0, 0.10},
		Experiments:    3,
		PostPeriodDays: 30,
	}, nil)
	require.NoError(t, err)
	return specs
}

func TestRunner_IndependentOfConcurrency(t *testing.T) {
	svc := app.NewExperimentService(markets.DefaultTable())
	specs := gridSpecs(t)

	serial, err := NewRunner(svc, WithConcurrency(1)).Run(context.Background(), specs, SequentialSeeds{Base: 100})
	require.NoError(t, err)
	parallel, err := NewRunner(svc, WithConcurrency(8)).Run(context.Background(), specs, SequentialSeeds{Base: 100})
	require.NoError(t, err)

	require.Len(t, serial.Runs, len(specs))
	for i := range serial.Runs {
		a, b := serial.Runs[i], parallel.Runs[i]
		assert.Equal(t, i, a.Index)
		assert.Equal(t, int64(100+i), a.Seed)
		assert.Equal(t, a.EffectPct, b.EffectPct)
		assert.Equal(t, a.PValue, b.PValue)
		assert.Equal(t, a.Recommendation, b.Recommendation)
	}
	assert.Equal(t, serial.Effect, parallel.Effect)
	assert.Equal(t, serial.WinRate, parallel.WinRate)
	assert.Equal(t, serial.Decisions, parallel.Decisions)
	assert.NotEqual(t, serial.ID, parallel.ID)
}

func TestRunner_RecordsFailures(t *testing.T) {
	reg := metrics.NewRegistry()
	svc := app.NewExperimentService(markets.DefaultTable())
	good := experiment.ExperimentSpec{TestMarket: "chicago", PrePeriodDays: 90, PostPeriodDays: 30, Effect: experiment.EffectSpec{Magnitude: 0.1}}
	unknown := good
	unknown.TestMarket = "atlantis"
	short := good
	short.PrePeriodDays = 5

	sum, err := NewRunner(svc, WithMetrics(reg)).Run(context.Background(), []experiment.ExperimentSpec{good, unknown, short}, FixedSeeds{1})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.ErrorKinds[errors.CodeConfiguration])
	assert.Equal(t, 1, sum.ErrorKinds[errors.CodeInsufficientData])
	assert.True(t, sum.Runs[1].Failed())
	assert.Equal(t, "atlantis", sum.Runs[1].TestMarket)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.BatchRuns.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.ActiveBatches))
}

func TestRunner_Cancelled(t *testing.T) {
	svc := app.NewExperimentService(markets.DefaultTable())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(svc).Run(ctx, gridSpecs(t), nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewRunner(svc).Run(context.Background(), nil, nil)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

type batchStore struct {
	ports.RunStore
	mu    sync.Mutex
	saved []*experiment.BatchSummary
}

func (s *batchStore) SaveBatch(_ context.Context, sum *experiment.BatchSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, sum)
	return nil
}

func TestRunner_PersistsSummary(t *testing.T) {
	store := &batchStore{}
	svc := app.NewExperimentService(markets.DefaultTable())
	specs := gridSpecs(t)[:2]
	sum, err := NewRunner(svc, WithStore(store)).Run(context.Background(), specs, SequentialSeeds{})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, sum.ID, store.saved[0].ID)
}

func TestSummarize(t *testing.T) {
	runs := []experiment.BatchRun{
		{EffectPct: 8, PValue: 0.001, Recommendation: experiment.Ship},
		{EffectPct: 3, PValue: 0.07, Recommendation: experiment.Continue},
		{EffectPct: -4, PValue: 0.01, Recommendation: experiment.Continue},
		{EffectPct: 1, PValue: 0.40, Recommendation: experiment.DoNotShip},
		{Error: "boom", ErrorKind: errors.CodeNumericalFit},
	}
	s := Summarize(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 4, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 2.0/5.0, s.WinRate, 1e-12)
	assert.Equal(t, 1, s.Decisions[experiment.Ship])
	assert.Equal(t, 2, s.Decisions[experiment.Continue])
	assert.Equal(t, experiment.SignificanceBuckets{Below05: 2, Below10: 1, Above10: 1}, s.Significance)
	assert.Equal(t, map[string]int{errors.CodeNumericalFit: 1}, s.ErrorKinds)

	assert.InDelta(t, 2.0, s.Effect.Mean, 1e-12)
	assert.Equal(t, -4.0, s.Effect.Min)
	assert.Equal(t, 8.0, s.Effect.Max)
	assert.GreaterOrEqual(t, s.Effect.Median, 1.0)
	assert.LessOrEqual(t, s.Effect.Median, 3.0)
	assert.InDelta(t, math.Sqrt(74.0/3.0), s.Effect.Std, 1e-12)
	assert.LessOrEqual(t, s.Effect.Q1, s.Effect.Median)
	assert.LessOrEqual(t, s.Effect.Median, s.Effect.Q3)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.WinRate)
	assert.Equal(t, experiment.EffectStats{}, s.Effect)
}

func TestGrid(t *testing.T) {
	tpl := config.DefaultTemplates()[0]
	req := GridRequest{
		Template:    tpl,
		Markets:     []string{"a", "b", "c"},
		Effects:     []float64{0.02, 0.05},
		Experiments: 3,
		Confounders: true,
	}
	specs, err := Grid(req, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, specs, 6)

	assert.Equal(t, "a", specs[0].TestMarket)
	assert.Equal(t, []string{"b"}, specs[0].ControlMarkets)
	assert.Equal(t, 0.05, specs[1].Effect.Magnitude)
	assert.Equal(t, "c", specs[2].TestMarket)
	assert.Equal(t, []string{"a"}, specs[2].ControlMarkets)
	assert.Equal(t, tpl.PostPeriodDays, specs[0].PostPeriodDays)

	again, err := Grid(req, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, specs, again)

	req.Matched = true
	matched, err := Grid(req, nil)
	require.NoError(t, err)
	assert.Empty(t, matched[0].ControlMarkets)

	_, err = Grid(GridRequest{Markets: []string{"a"}, Experiments: 1}, nil)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
	_, err = Grid(GridRequest{Markets: []string{"a", "a"}, Experiments: 1}, nil)
	assert.Error(t, err)
}

func TestSeedSources(t *testing.T) {
	assert.Equal(t, int64(7), FixedSeeds{5, 7}.Seed(3))
	assert.Equal(t, int64(2), FixedSeeds(nil).Seed(2))
	assert.Equal(t, int64(12), SequentialSeeds{Base: 10}.Seed(2))

	r := RandomSeeds{Base: 99}
	assert.Equal(t, r.Seed(4), r.Seed(4))
	assert.NotEqual(t, r.Seed(4), r.Seed(5))
	assert.GreaterOrEqual(t, r.Seed(0), int64(0))
	_ = NewRandomSeeds()
}
