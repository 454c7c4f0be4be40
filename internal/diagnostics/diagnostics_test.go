package diagnostics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/estimator"
	"geolift/internal/generator"
	"geolift/internal/markets"
	"geolift/internal/matching"
)

func cleanSpec() experiment.ExperimentSpec {
	return experiment.ExperimentSpec{
		TestMarket:         "chicago",
		ControlMarkets:     []string{"philadelphia", "dallas_fort_worth", "atlanta"},
		PrePeriodDays:      90,
		PostPeriodDays:     30,
		Effect:             experiment.EffectSpec{Magnitude: 0.08, Shape: experiment.ShapeStep},
		ControlCorrelation: 0.92,
	}
}

// pipelineInput runs generation, matching and estimation the way the
// service does and returns the diagnostics input.
func pipelineInput(t *testing.T, spec experiment.ExperimentSpec, seed int64, synthetic bool) Input {
	t.Helper()
	ds, err := generator.Generate(spec, seed, markets.DefaultTable())
	require.NoError(t, err)

	in := Input{Test: ds.Test, Pre: ds.Pre(), Post: ds.Post(), RidgePenalty: 1}
	if synthetic {
		testPre, err := ds.Test.Slice(ds.Pre())
		require.NoError(t, err)
		var pres []experiment.TimeSeries
		for _, id := range ds.ControlOrder {
			s, err := ds.Controls[id].Slice(ds.Pre())
			require.NoError(t, err)
			pres = append(pres, s)
		}
		w, err := matching.BuildSyntheticControl(testPre, pres, 1)
		require.NoError(t, err)
		combined, err := matching.Combine(w, ds.Controls)
		require.NoError(t, err)
		in.Weights = w
		in.Candidates = ds.Controls
		in.Controls = []experiment.TimeSeries{combined}
	} else {
		in.Controls = []experiment.TimeSeries{ds.Controls[ds.ControlOrder[0]]}
	}

	res, err := estimator.Estimate(in.Test, in.Controls, in.Pre, in.Post, estimator.Options{})
	require.NoError(t, err)
	in.Model = res.Model
	in.Estimate = res.Estimate
	return in
}

func series(market string, vals []float64) experiment.TimeSeries {
	ts := experiment.TimeSeries{Market: market, Points: make([]experiment.Point, len(vals))}
	for i, v := range vals {
		ts.Points[i] = experiment.Point{Date: experiment.DefaultStartDate.AddDate(0, 0, i), Value: v}
	}
	return ts
}

func statusOf(t *testing.T, r *experiment.ValidityReport, name string) experiment.ValidityCheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not in report", name)
	return experiment.ValidityCheckResult{}
}

func TestRun_SyntheticReportHasEveryCheck(t *testing.T) {
	in := pipelineInput(t, cleanSpec(), 42, true)
	report, err := Run(in, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, report.Checks, 6)
	names := make([]string, 0, 6)
	statuses := make([]experiment.CheckStatus, 0, 6)
	for _, c := range report.Checks {
		names = append(names, c.Name)
		statuses = append(statuses, c.Status)
		assert.False(t, math.IsNaN(c.Value))
		assert.NotEmpty(t, c.Detail)
	}
	assert.Equal(t, CheckNames(), names)
	assert.Equal(t, experiment.Worst(statuses...), report.Overall)
	assert.Equal(t, experiment.StatusPass, statusOf(t, report, CheckCorrelation).Status)
}

func TestRun_SingleControlSkipsSyntheticChecks(t *testing.T) {
	in := pipelineInput(t, cleanSpec(), 7, false)
	report, err := Run(in, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, report.Checks, 4)
	for _, c := range report.Checks {
		assert.NotEqual(t, CheckDropOne, c.Name)
		assert.NotEqual(t, CheckFitRMSE, c.Name)
	}
}

func TestRun_RequiresModel(t *testing.T) {
	_, err := Run(Input{}, DefaultConfig())
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

// handInput fits a single-control model over day ranges of hand-built series.
func handInput(t *testing.T, test, control []float64, preDays int) Input {
	t.Helper()
	in := Input{
		Test:     series("test", test),
		Controls: []experiment.TimeSeries{series("control", control)},
		Pre:      experiment.Period{Start: 0, End: preDays},
		Post:     experiment.Period{Start: preDays, End: len(test)},
	}
	m, err := estimator.Fit(in.Test, in.Controls, in.Pre)
	require.NoError(t, err)
	in.Model = m
	return in
}

func noisy(n int, seed uint64, f func(i int, e float64) float64) []float64 {
	r := rand.New(rand.NewPCG(seed, 3))
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i, r.NormFloat64())
	}
	return out
}

func TestCorrelationCheck_Thresholds(t *testing.T) {
	base := make([]float64, 60)
	for i := range base {
		base[i] = 1000 + 100*math.Sin(float64(i))
	}
	tests := []struct {
		name  string
		noise float64
		want  experiment.CheckStatus
	}{
		{"tight", 5, experiment.StatusPass},
		{"loose", 60, experiment.StatusWarn},
		{"unrelated", 600, experiment.StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := noisy(60, 2, func(i int, e float64) float64 { return base[i] + tt.noise*e })
			in := handInput(t, base, ctrl, 50)
			res, ok := (&CorrelationCheck{}).Evaluate(&in)
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Status, "correlation %.3f", res.Value)
			assert.Equal(t, CorrelationPass, res.Threshold)
		})
	}
}

func TestTrendCheck(t *testing.T) {
	test := noisy(60, 3, func(i int, e float64) float64 { return 1000 + 4*float64(i) + 3*e })
	up := noisy(60, 4, func(i int, e float64) float64 { return 800 + 3.2*float64(i) + 3*e })
	down := noisy(60, 5, func(i int, e float64) float64 { return 1000 - 4*float64(i) + 3*e })

	in := handInput(t, test, up, 50)
	res, _ := (&TrendCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusPass, res.Status, res.Detail)

	in = handInput(t, test, down, 50)
	res, _ = (&TrendCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusFail, res.Status, res.Detail)
}

func TestOutlierCheck(t *testing.T) {
	ctrl := noisy(60, 6, func(i int, e float64) float64 { return 1000 + 80*math.Sin(float64(i)/2) + 10*e })
	clean := noisy(60, 7, func(i int, e float64) float64 { return 50 + ctrl[i] + 5*e })

	in := handInput(t, clean, ctrl, 50)
	res, _ := (&OutlierCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusPass, res.Status, res.Detail)

	early := append([]float64(nil), clean...)
	early[10] += 400
	in = handInput(t, early, ctrl, 50)
	res, _ = (&OutlierCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusWarn, res.Status, res.Detail)
	assert.Equal(t, 1.0, res.Value)

	late := append([]float64(nil), clean...)
	late[47] += 400
	in = handInput(t, late, ctrl, 50)
	res, _ = (&OutlierCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusFail, res.Status, res.Detail)
}

func TestOutlierCheck_TrackingBreakIsNotAnOutlier(t *testing.T) {
	ctrl := noisy(60, 8, func(i int, e float64) float64 { return 1000 + 80*math.Sin(float64(i)/2) + 10*e })
	test := noisy(60, 9, func(i int, e float64) float64 { return 50 + ctrl[i] + 5*e })
	in := handInput(t, test, ctrl, 50)
	for _, i := range []int{45, 46, 47} {
		in.Test.Points[i].Value = 0
		in.Test.Points[i].Missing = true
	}
	res, _ := (&OutlierCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusPass, res.Status, res.Detail)

	corr, _ := (&CorrelationCheck{}).Evaluate(&in)
	assert.Equal(t, experiment.StatusPass, corr.Status, corr.Detail)
}

func TestPlaceboDay(t *testing.T) {
	d, ok := placeboDay(experiment.Period{Start: 0, End: 90}, 45)
	assert.True(t, ok)
	assert.Equal(t, 45, d)

	d, ok = placeboDay(experiment.Period{Start: 0, End: 40}, 45)
	assert.True(t, ok)
	assert.Equal(t, 20, d, "falls back to the midpoint")

	_, ok = placeboDay(experiment.Period{Start: 0, End: 20}, 45)
	assert.False(t, ok)
}

func TestPlaceboCheck_ShortPreWarns(t *testing.T) {
	ctrl := noisy(30, 10, func(i int, e float64) float64 { return 1000 + 50*e })
	test := noisy(30, 11, func(i int, e float64) float64 { return ctrl[i] + 5*e })
	in := handInput(t, test, ctrl, 20)
	res, _ := (&PlaceboCheck{Day: 45}).Evaluate(&in)
	assert.Equal(t, experiment.StatusWarn, res.Status)
}

func TestPlaceboCheck_DetectsPrePeriodShift(t *testing.T) {
	ctrl := noisy(120, 12, func(i int, e float64) float64 { return 1000 + 80*math.Sin(float64(i)/2) + 10*e })
	test := noisy(120, 13, func(i int, e float64) float64 {
		v := ctrl[i] + 5*e
		if i >= 45 {
			v *= 1.10
		}
		return v
	})
	in := handInput(t, test, ctrl, 90)
	res, _ := (&PlaceboCheck{Day: 45}).Evaluate(&in)
	assert.Equal(t, experiment.StatusFail, res.Status, res.Detail)
	assert.Greater(t, res.Value, 2.0)
}

func TestPlaceboNullAcrossSeeds(t *testing.T) {
	spec := cleanSpec()
	spec.ControlMarkets = []string{"philadelphia"}
	failures := 0
	for seed := int64(1); seed <= 20; seed++ {
		in := pipelineInput(t, spec, seed, false)
		res, _ := (&PlaceboCheck{Day: DefaultPlaceboDay}).Evaluate(&in)
		if res.Status == experiment.StatusFail {
			failures++
		}
	}
	assert.LessOrEqual(t, failures, 2, "placebo should rarely show a decision-worthy effect")
}

func TestDropOneCheck(t *testing.T) {
	in := pipelineInput(t, cleanSpec(), 42, true)
	res, ok := (&DropOneCheck{}).Evaluate(&in)
	require.True(t, ok)
	assert.Equal(t, CheckDropOne, res.Name)
	assert.NotEqual(t, experiment.StatusFail, res.Status, res.Detail)
	assert.False(t, math.IsInf(res.Value, 0))

	single := pipelineInput(t, cleanSpec(), 42, false)
	_, ok = (&DropOneCheck{}).Evaluate(&single)
	assert.False(t, ok)
}

func TestClassifyRemoval(t *testing.T) {
	tests := []struct {
		name      string
		base, alt float64
		se        float64
		want      experiment.CheckStatus
	}{
		{"stable", 1000, 1100, 100, experiment.StatusPass},
		{"large move", 1000, 1700, 100, experiment.StatusWarn},
		{"sign flip outside noise", 500, -300, 100, experiment.StatusFail},
		{"tenfold shift", 2000, 150, 100, experiment.StatusFail},
		{"sign flip inside noise", 40, -30, 100, experiment.StatusPass},
		{"tenfold shift inside noise", 80, 5, 100, experiment.StatusPass},
		{"large move inside noise", 90, -90, 100, experiment.StatusWarn},
		{"one side outside noise", 40, -250, 100, experiment.StatusFail},
		{"no standard error", 40, -30, 0, experiment.StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, note := classifyRemoval(tt.base, tt.alt, tt.se)
			assert.Equal(t, tt.want, got, note)
			if got == experiment.StatusPass {
				assert.Empty(t, note)
			} else {
				assert.NotEmpty(t, note)
			}
		})
	}
}

func TestStabilityHelpers(t *testing.T) {
	assert.InDelta(t, 1.0, orderShift(100, 1000), 1e-12)
	assert.InDelta(t, 0.0, orderShift(-5, -5), 1e-12)
	assert.True(t, math.IsInf(orderShift(0, 3), 1))
	assert.InDelta(t, 0.5, relativeDeviation(10, 15), 1e-12)
	assert.Equal(t, 0.0, relativeDeviation(0, 0))

	w := &experiment.SyntheticControlWeights{Weights: map[string]float64{"a": 1, "b": 2}, Order: []string{"a", "b"}}
	out := without(w, "a")
	assert.Equal(t, []string{"b"}, out.Order)
	assert.Len(t, w.Order, 2, "input untouched")
}
