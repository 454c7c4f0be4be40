package estimator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"geolift/domain/experiment"
	"geolift/internal/distributions"
	"geolift/internal/errors"
)

// DefaultAlpha sets the confidence interval width when Options leaves it unset.
const DefaultAlpha = 0.05

// MinPostObservations is the fewest observed post-period days an estimate accepts.
const MinPostObservations = 2

// zeroDispersion is the relative standard error below which effects are
// treated as constant.
const zeroDispersion = 1e-9

// Options tune an estimate.
type Options struct {
	Alpha float64
}

func (o Options) alpha() float64 {
	if o.Alpha > 0 && o.Alpha < 1 {
		return o.Alpha
	}
	return DefaultAlpha
}

// Result is an estimate together with the model and daily series behind it.
type Result struct {
	Estimate experiment.CausalEstimate `json:"estimate"`
	Model    *Model                    `json:"model"`
	Daily    []experiment.DailyEffect  `json:"daily"`
}

// Estimate fits the counterfactual on pre and measures the effect over post.
func Estimate(test experiment.TimeSeries, controls []experiment.TimeSeries, pre, post experiment.Period, opts Options) (*Result, error) {
	if pre.End > post.Start {
		return nil, errors.Configuration("estimator", "post_period",
			fmt.Sprintf("post-period starts at day %d, before the pre-period ends at %d", post.Start, pre.End))
	}
	model, err := Fit(test, controls, pre)
	if err != nil {
		return nil, err
	}
	return EstimateWithModel(model, test, controls, post, opts)
}

// EstimateWithModel measures the effect over post using an already fitted
// model. The standard error is the population standard deviation of the
// daily effects over √N, so z = cumulative effect / SE grows with both the
// effect size and the post-period length.
func EstimateWithModel(model *Model, test experiment.TimeSeries, controls []experiment.TimeSeries, post experiment.Period, opts Options) (*Result, error) {
	if post.Start < 0 || post.End > test.Len() || post.Len() <= 0 {
		return nil, errors.Configuration("estimator", "post_period",
			fmt.Sprintf("post-period [%d,%d) outside series of %d days", post.Start, post.End, test.Len()))
	}
	pred, ok, err := model.Predict(controls)
	if err != nil {
		return nil, err
	}

	res := &Result{Model: model, Daily: make([]experiment.DailyEffect, 0, post.Len())}
	var effects []float64
	var cum, actualTotal, cfTotal float64
	for i := post.Start; i < post.End; i++ {
		p := test.Points[i]
		day := experiment.DailyEffect{Date: p.Date, Actual: p.Value, Counterfactual: pred[i]}
		if p.Missing || !ok[i] {
			day.Missing = true
			day.Cumulative = cum
			res.Daily = append(res.Daily, day)
			continue
		}
		day.Effect = p.Value - pred[i]
		cum += day.Effect
		day.Cumulative = cum
		actualTotal += p.Value
		cfTotal += pred[i]
		effects = append(effects, day.Effect)
		res.Daily = append(res.Daily, day)
	}

	n := len(effects)
	if n < MinPostObservations {
		return nil, errors.InsufficientData("estimator",
			fmt.Sprintf("post-period has %d observed days, need at least %d", n, MinPostObservations))
	}
	if cfTotal <= 0 {
		return nil, errors.NumericalFit("estimator", "counterfactual total is not positive; percent effect is undefined")
	}
	sd, err := stats.StandardDeviationPopulation(effects)
	if err != nil {
		return nil, errors.Wrap(err, "effect dispersion")
	}
	se := sd / math.Sqrt(float64(n))
	if math.IsNaN(se) || se <= zeroDispersion*math.Max(1, math.Abs(cum/float64(n))) {
		return nil, errors.NumericalFit("estimator", "daily effects have zero dispersion; standard error is zero")
	}

	alpha := opts.alpha()
	z := cum / se
	crit := distributions.CriticalValue(alpha)
	res.Estimate = experiment.CausalEstimate{
		CumulativeEffect:    cum,
		AverageDailyEffect:  cum / float64(n),
		EffectPct:           cum / cfTotal * 100,
		StandardError:       se,
		ZScore:              z,
		PValue:              distributions.TwoSidedPValue(z),
		CILower:             cum - crit*se,
		CIUpper:             cum + crit*se,
		Alpha:               alpha,
		PostObservations:    n,
		CounterfactualTotal: cfTotal,
		ActualTotal:         actualTotal,
	}
	return res, nil
}
