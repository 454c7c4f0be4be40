// Package generator synthesizes daily metric series for a test market and
// its candidate controls, with an injected treatment effect and optional
// confounders. Output is a pure function of the ExperimentSpec and the seed.
package generator

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/markets"
)

// Dataset is one generated experiment: the treated test series, one series
// per control market, and the draws that produced them.
type Dataset struct {
	Spec         experiment.ExperimentSpec
	Baseline     experiment.TimeSeries
	Test         experiment.TimeSeries
	Controls     map[string]experiment.TimeSeries
	ControlOrder []string
	Metadata     experiment.GenerationMetadata
}

// Pre returns the pre-period of the dataset's spec.
func (d *Dataset) Pre() experiment.Period { return d.Spec.PrePeriod() }

// Post returns the post-period of the dataset's spec.
func (d *Dataset) Post() experiment.Period { return d.Spec.PostPeriod() }

// ControlSeries returns the control series for ids in the given order.
func (d *Dataset) ControlSeries(ids []string) ([]experiment.TimeSeries, error) {
	out := make([]experiment.TimeSeries, 0, len(ids))
	for _, id := range ids {
		s, ok := d.Controls[id]
		if !ok {
			return nil, errors.Configuration("generator", "control_markets", fmt.Sprintf("no series generated for market %q", id))
		}
		out = append(out, s)
	}
	return out, nil
}

// Generate builds the dataset for spec. When spec.ControlMarkets is empty a
// control series is generated for every other market in the table, in table
// order. Two calls with the same spec, seed and table are bit-identical.
func Generate(spec experiment.ExperimentSpec, seed int64, table *markets.Table) (*Dataset, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.WithDefaults()

	if !table.Has(spec.TestMarket) {
		return nil, errors.Configuration("generator", "test_market", fmt.Sprintf("unknown market %q", spec.TestMarket))
	}
	controlIDs := spec.ControlMarkets
	if len(controlIDs) == 0 {
		for _, m := range table.Others(spec.TestMarket) {
			controlIDs = append(controlIDs, m.ID)
		}
	}
	if _, err := table.Lookup(controlIDs); err != nil {
		return nil, err
	}

	s := newSampler(seed)
	n := spec.TotalDays()
	dates := dateRange(spec, n)

	params := drawBaselineParams(s)
	baseline := buildBaseline(s, params, dates)

	meta := experiment.GenerationMetadata{
		Seed:                 seed,
		BaselineMean:         params.level,
		WeeklyDrift:          params.weeklyDrift,
		SeasonalityAmplitude: params.seasonality,
		NoiseLevel:           params.noise,
		RequestedEffect:      spec.Effect.Magnitude,
		Shape:                spec.Effect.Shape,
		InterventionIndex:    spec.PrePeriodDays,
		InterventionDate:     dates[spec.PrePeriodDays],
	}

	controls := make(map[string][]float64, len(controlIDs))
	for _, id := range controlIDs {
		rho := spec.ControlCorrelation
		if rho == 0 {
			rho = s.uniform(ControlCorrelationMin, ControlCorrelationMax)
		}
		scale := s.uniform(ControlScaleMin, ControlScaleMax)
		values := correlatedControl(s, baseline, rho, scale)
		controls[id] = values
		meta.Controls = append(meta.Controls, experiment.ControlMetadata{
			Market:              id,
			TargetCorrelation:   rho,
			RealizedCorrelation: finiteOrZero(stat.Correlation(baseline, values, nil)),
			Scale:               scale,
		})
	}

	test := append([]float64(nil), baseline...)
	applied, daily := injectTreatment(s, test, baseline, spec)
	meta.AppliedEffect = applied
	meta.DailyEffect = daily

	values := map[string][]float64{spec.TestMarket: test}
	missing := map[string][]bool{spec.TestMarket: make([]bool, n)}
	for _, id := range controlIDs {
		values[id] = controls[id]
		missing[id] = make([]bool, n)
	}
	for _, c := range spec.Confounders {
		applied, err := injectConfounder(s, c, spec, controlIDs, values, missing)
		if err != nil {
			return nil, err
		}
		meta.Confounders = append(meta.Confounders, applied)
	}

	ds := &Dataset{
		Spec:         spec,
		Baseline:     toSeries(spec.TestMarket, dates, baseline, nil),
		Test:         toSeries(spec.TestMarket, dates, values[spec.TestMarket], missing[spec.TestMarket]),
		Controls:     make(map[string]experiment.TimeSeries, len(controlIDs)),
		ControlOrder: append([]string(nil), controlIDs...),
	}
	for _, id := range controlIDs {
		ds.Controls[id] = toSeries(id, dates, values[id], missing[id])
	}
	if pre, err := ds.Test.Slice(ds.Pre()); err == nil {
		meta.TestPreMean = finiteOrZero(stat.Mean(pre.Observed(), nil))
	}
	meta.DatasetHash = core.ComputeSeriesHash(values).String()
	ds.Metadata = meta
	return ds, nil
}

func dateRange(spec experiment.ExperimentSpec, n int) []time.Time {
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = spec.StartDate.AddDate(0, 0, i)
	}
	return dates
}

func toSeries(market string, dates []time.Time, values []float64, missing []bool) experiment.TimeSeries {
	ts := experiment.TimeSeries{Market: market, Points: make([]experiment.Point, len(values))}
	for i, v := range values {
		p := experiment.Point{Date: dates[i], Value: v}
		if missing != nil && missing[i] {
			p.Value = 0
			p.Missing = true
		}
		ts.Points[i] = p
	}
	return ts
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
