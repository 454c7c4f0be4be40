package estimator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/domain/experiment"
	"geolift/internal/distributions"
	"geolift/internal/errors"
	"geolift/internal/generator"
	"geolift/internal/markets"
)

var (
	pre  = experiment.Period{Start: 0, End: 60}
	post = experiment.Period{Start: 60, End: 90}
)

func series(market string, vals []float64) experiment.TimeSeries {
	ts := experiment.TimeSeries{Market: market, Points: make([]experiment.Point, len(vals))}
	for i, v := range vals {
		ts.Points[i] = experiment.Point{Date: experiment.DefaultStartDate.AddDate(0, 0, i), Value: v}
	}
	return ts
}

// linearPair builds test = 100 + 1.2·control + noise with lift added over post.
func linearPair(seed uint64, lift float64) (experiment.TimeSeries, experiment.TimeSeries) {
	r := rand.New(rand.NewPCG(seed, 2))
	c := make([]float64, post.End)
	y := make([]float64, post.End)
	for i := range c {
		c[i] = 1000 + 50*math.Sin(float64(i)/2) + 20*r.NormFloat64()
		y[i] = 100 + 1.2*c[i] + 5*r.NormFloat64()
		if post.Contains(i) {
			y[i] += lift
		}
	}
	return series("test", y), series("control", c)
}

func TestFit_RecoversLinearRelationship(t *testing.T) {
	test, control := linearPair(1, 0)
	m, err := Fit(test, []experiment.TimeSeries{control}, pre)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, m.Coefficients[0], 0.05)
	assert.InDelta(t, 100, m.Intercept, 50)
	assert.Equal(t, 60, m.Observations)
	assert.Greater(t, m.RSquared, 0.9)
	assert.Equal(t, []string{"control"}, m.Controls)
}

func TestEstimate_Consistency(t *testing.T) {
	test, control := linearPair(2, 60)
	res, err := Estimate(test, []experiment.TimeSeries{control}, pre, post, Options{})
	require.NoError(t, err)
	e := res.Estimate

	assert.InDelta(t, e.CumulativeEffect/e.StandardError, e.ZScore, 1e-9)
	assert.InDelta(t, distributions.TwoSidedPValue(math.Abs(e.ZScore)), e.PValue, 1e-12)
	assert.InDelta(t, 1800, e.CumulativeEffect, 200)
	assert.InDelta(t, e.CumulativeEffect/30, e.AverageDailyEffect, 1e-9)
	assert.InDelta(t, e.CumulativeEffect/e.CounterfactualTotal*100, e.EffectPct, 1e-9)
	assert.Less(t, e.CILower, e.CumulativeEffect)
	assert.Greater(t, e.CIUpper, e.CumulativeEffect)
	assert.InDelta(t, 1.959964*e.StandardError, e.CIUpper-e.CumulativeEffect, 1e-5)
	assert.Equal(t, DefaultAlpha, e.Alpha)
	assert.Len(t, res.Daily, 30)
	assert.InDelta(t, e.CumulativeEffect, res.Daily[29].Cumulative, 1e-9)
}

func TestEstimate_LargeZUnderCleanData(t *testing.T) {
	spec := experiment.ExperimentSpec{
		TestMarket: "chicago", ControlMarkets: []string{"philadelphia"},
		PrePeriodDays: 90, PostPeriodDays: 30,
		Effect:             experiment.EffectSpec{Magnitude: 0.08, Shape: experiment.ShapeStep},
		ControlCorrelation: 0.94,
	}
	ds, err := generator.Generate(spec, 42, markets.DefaultTable())
	require.NoError(t, err)
	controls, err := ds.ControlSeries(ds.ControlOrder)
	require.NoError(t, err)

	res, err := Estimate(ds.Test, controls, ds.Pre(), ds.Post(), Options{})
	require.NoError(t, err)
	assert.Greater(t, res.Estimate.ZScore, 20.0, "dispersion-based SE yields very large z")
	assert.Less(t, res.Estimate.PValue, 1e-6)
	assert.InDelta(t, ds.Metadata.AppliedEffect*100, res.Estimate.EffectPct, 4)
}

func TestFit_UsesOnlyPrePeriod(t *testing.T) {
	test, control := linearPair(3, 0)
	m1, err := Fit(test, []experiment.TimeSeries{control}, pre)
	require.NoError(t, err)

	changed := test.Clone()
	for i := post.Start; i < post.End; i++ {
		changed.Points[i].Value *= 10
	}
	m2, err := Fit(changed, []experiment.TimeSeries{control}, pre)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestFit_MultipleControls(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 2))
	a := make([]float64, 90)
	b := make([]float64, 90)
	y := make([]float64, 90)
	for i := range a {
		a[i] = 5000 + 40*r.NormFloat64()
		b[i] = 300 + 15*r.NormFloat64()
		y[i] = 20 + 0.3*a[i] + 2*b[i] + r.NormFloat64()
	}
	m, err := Fit(series("t", y), []experiment.TimeSeries{series("a", a), series("b", b)}, pre)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, m.Coefficients[0], 0.02)
	assert.InDelta(t, 2.0, m.Coefficients[1], 0.05)
	assert.Greater(t, m.RSquared, 0.99)
}

func TestFit_Failures(t *testing.T) {
	test, control := linearPair(5, 0)

	_, err := Fit(test, []experiment.TimeSeries{control}, experiment.Period{Start: 0, End: 13})
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err))

	broken := test.Clone()
	for i := 0; i < 50; i++ {
		broken.Points[i].Missing = true
	}
	_, err = Fit(broken, []experiment.TimeSeries{control}, pre)
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err), "missing days do not count")

	flat := series("flat", make([]float64, 90))
	_, err = Fit(test, []experiment.TimeSeries{flat}, pre)
	assert.Equal(t, errors.CodeNumericalFit, errors.GetCode(err))

	dup := control.Clone()
	dup.Market = "dup"
	_, err = Fit(test, []experiment.TimeSeries{control, dup}, pre)
	assert.Equal(t, errors.CodeNumericalFit, errors.GetCode(err), "collinear controls")

	_, err = Fit(test, nil, pre)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

func TestEstimate_Failures(t *testing.T) {
	test, control := linearPair(6, 10)
	controls := []experiment.TimeSeries{control}

	_, err := Estimate(test, controls, pre, experiment.Period{Start: 60, End: 61}, Options{})
	assert.Equal(t, errors.CodeInsufficientData, errors.GetCode(err))

	_, err = Estimate(test, controls, pre, experiment.Period{Start: 50, End: 90}, Options{})
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	m, err := Fit(test, controls, pre)
	require.NoError(t, err)
	exact := test.Clone()
	pred, _, err := m.Predict(controls)
	require.NoError(t, err)
	for i := post.Start; i < post.End; i++ {
		exact.Points[i].Value = pred[i] + 7
	}
	_, err = EstimateWithModel(m, exact, controls, post, Options{})
	assert.Equal(t, errors.CodeNumericalFit, errors.GetCode(err), "constant daily effect gives SE = 0")
}

func TestEstimate_SkipsMissingPostDays(t *testing.T) {
	test, control := linearPair(7, 60)
	test.Points[70].Missing = true
	test.Points[70].Value = 0

	res, err := Estimate(test, []experiment.TimeSeries{control}, pre, post, Options{Alpha: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 29, res.Estimate.PostObservations)
	assert.True(t, res.Daily[10].Missing)
	assert.Greater(t, res.Estimate.CumulativeEffect, 0.0, "a zeroed day must not read as a huge negative effect")
	assert.Equal(t, 0.1, res.Estimate.Alpha)
}
