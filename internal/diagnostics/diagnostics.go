// Package diagnostics stress-tests a causal estimate: pre-period fit, trend
// alignment, residual outliers, a placebo intervention and drop-one-control
// sensitivity. Every check reports a pass/warn/fail status with the value
// that drove it; the overall status is the worst of them.
package diagnostics

import (
	"math"

	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/estimator"
)

// Input is everything the checks need. Controls are the series the
// estimator regressed on (a single best match or the combined synthetic
// control). Weights and Candidates are set only when a synthetic control
// was used; Candidates then holds the full series of each weighted market.
type Input struct {
	Test         experiment.TimeSeries
	Controls     []experiment.TimeSeries
	Candidates   map[string]experiment.TimeSeries
	Weights      *experiment.SyntheticControlWeights
	Pre          experiment.Period
	Post         experiment.Period
	Model        *estimator.Model
	Estimate     experiment.CausalEstimate
	RidgePenalty float64
}

// Synthetic reports whether the estimate came from a multi-market synthetic control.
func (in *Input) Synthetic() bool {
	return in.Weights != nil && len(in.Weights.Order) >= 2
}

// Config tunes the suite.
type Config struct {
	PlaceboDay int
	Alpha      float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{PlaceboDay: DefaultPlaceboDay, Alpha: estimator.DefaultAlpha}
}

// Check is one diagnostic. Evaluate returns false when the check does not
// apply to the input, for example drop-one on a single control.
type Check interface {
	Name() string
	Evaluate(in *Input) (experiment.ValidityCheckResult, bool)
}

// GetCheckByName acts as the factory for the suite.
func GetCheckByName(name string, cfg Config) Check {
	switch name {
	case CheckCorrelation:
		return &CorrelationCheck{}
	case CheckTrend:
		return &TrendCheck{}
	case CheckOutliers:
		return &OutlierCheck{}
	case CheckPlacebo:
		return &PlaceboCheck{Day: cfg.PlaceboDay, Alpha: cfg.Alpha}
	case CheckDropOne:
		return &DropOneCheck{Alpha: cfg.Alpha}
	case CheckFitRMSE:
		return &FitRMSECheck{}
	default:
		return nil
	}
}

// CheckNames lists the checks in report order.
func CheckNames() []string {
	return []string{CheckCorrelation, CheckTrend, CheckOutliers, CheckPlacebo, CheckDropOne, CheckFitRMSE}
}

// Run evaluates every applicable check.
func Run(in Input, cfg Config) (*experiment.ValidityReport, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if cfg.PlaceboDay == 0 {
		cfg.PlaceboDay = DefaultPlaceboDay
	}
	report := &experiment.ValidityReport{Overall: experiment.StatusPass}
	for _, name := range CheckNames() {
		res, ok := GetCheckByName(name, cfg).Evaluate(&in)
		if !ok {
			continue
		}
		res.Value = finite(res.Value)
		res.Threshold = finite(res.Threshold)
		report.Checks = append(report.Checks, res)
	}
	statuses := make([]experiment.CheckStatus, len(report.Checks))
	for i, c := range report.Checks {
		statuses[i] = c.Status
	}
	report.Overall = experiment.Worst(statuses...)
	return report, nil
}

func (in *Input) validate() error {
	switch {
	case in.Model == nil:
		return errors.Configuration("diagnostics", "model", "a fitted model is required")
	case len(in.Controls) == 0:
		return errors.Configuration("diagnostics", "controls", "at least one control series is required")
	case in.Pre.Len() <= 0 || in.Pre.End > in.Test.Len():
		return errors.Configuration("diagnostics", "pre_period", "pre-period is empty or outside the series")
	case in.Post.Len() <= 0 || in.Post.End > in.Test.Len():
		return errors.Configuration("diagnostics", "post_period", "post-period is empty or outside the series")
	}
	return nil
}

// comparisonSeries is the single control series the correlation and trend
// checks compare against: the control itself, or the model's prediction
// when the model regresses on several.
func (in *Input) comparisonSeries() (experiment.TimeSeries, error) {
	if len(in.Controls) == 1 {
		return in.Controls[0], nil
	}
	pred, ok, err := in.Model.Predict(in.Controls)
	if err != nil {
		return experiment.TimeSeries{}, err
	}
	out := experiment.TimeSeries{Market: "combined", Points: make([]experiment.Point, len(pred))}
	for i := range pred {
		out.Points[i] = experiment.Point{Date: in.Test.Points[i].Date, Value: pred[i], Missing: !ok[i]}
	}
	return out, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
