package diagnostics

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"geolift/domain/experiment"
	"geolift/internal/matching"
)

// CorrelationCheck grades the pre-period correlation between the test
// market and its comparison series.
type CorrelationCheck struct{}

func (c *CorrelationCheck) Name() string { return CheckCorrelation }

func (c *CorrelationCheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	res := experiment.ValidityCheckResult{Name: c.Name(), Threshold: CorrelationPass}
	ctrl, err := in.comparisonSeries()
	if err != nil {
		return failed(res, err), true
	}
	testPre, _ := in.Test.Slice(in.Pre)
	ctrlPre, _ := ctrl.Slice(in.Pre)
	r, err := matching.Correlation(testPre, ctrlPre)
	if err != nil {
		return failed(res, err), true
	}
	res.Value = r
	switch {
	case r > CorrelationPass:
		res.Status = experiment.StatusPass
		res.Detail = fmt.Sprintf("pre-period correlation %.3f tracks the test market closely", r)
	case r >= CorrelationWarn:
		res.Status = experiment.StatusWarn
		res.Detail = fmt.Sprintf("pre-period correlation %.3f is moderate; the counterfactual may drift", r)
	default:
		res.Status = experiment.StatusFail
		res.Detail = fmt.Sprintf("pre-period correlation %.3f is too weak for a credible counterfactual", r)
	}
	return res, true
}

// TrendCheck compares linear trends fitted independently to the test and
// comparison series over the pre-period.
type TrendCheck struct{}

func (c *TrendCheck) Name() string { return CheckTrend }

func (c *TrendCheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	res := experiment.ValidityCheckResult{Name: c.Name(), Threshold: TrendGapWarnPct}
	ctrl, err := in.comparisonSeries()
	if err != nil {
		return failed(res, err), true
	}
	testSlope, ok1 := normalizedSlope(in.Test, in.Pre)
	ctrlSlope, ok2 := normalizedSlope(ctrl, in.Pre)
	if !ok1 || !ok2 {
		res.Status = experiment.StatusWarn
		res.Detail = "not enough observed pre-period days to fit trends"
		return res, true
	}

	gap := math.Abs(testSlope - ctrlSlope)
	res.Value = gap
	desc := fmt.Sprintf("test trend %+.3f%%/day, control trend %+.3f%%/day", testSlope, ctrlSlope)
	switch {
	case sign(testSlope)*sign(ctrlSlope) < 0:
		res.Status = experiment.StatusFail
		res.Detail = desc + ": trends move in opposite directions"
	case gap > TrendGapWarnPct:
		res.Status = experiment.StatusWarn
		res.Detail = desc + ": trends diverge in rate"
	default:
		res.Status = experiment.StatusPass
		res.Detail = desc
	}
	return res, true
}

// normalizedSlope fits value ~ day over observed days of p and returns the
// slope as a percentage of the mean per day.
func normalizedSlope(ts experiment.TimeSeries, p experiment.Period) (float64, bool) {
	var xs, ys []float64
	for i := p.Start; i < p.End && i < ts.Len(); i++ {
		if ts.Points[i].Missing {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, ts.Points[i].Value)
	}
	if len(xs) < 3 {
		return 0, false
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	mean := stat.Mean(ys, nil)
	if mean == 0 || math.IsNaN(beta) {
		return 0, false
	}
	return beta / math.Abs(mean) * 100, true
}

func sign(slope float64) float64 {
	switch {
	case slope > FlatSlopePct:
		return 1
	case slope < -FlatSlopePct:
		return -1
	}
	return 0
}

// OutlierCheck flags pre-period days whose residual from the fitted model
// has a robust z-score above OutlierZ.
type OutlierCheck struct{}

func (c *OutlierCheck) Name() string { return CheckOutliers }

func (c *OutlierCheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	res := experiment.ValidityCheckResult{Name: c.Name(), Threshold: OutlierZ}
	residuals, days, err := in.Model.Residuals(in.Test, in.Controls, in.Pre)
	if err != nil {
		return failed(res, err), true
	}
	if len(residuals) == 0 {
		res.Status = experiment.StatusWarn
		res.Detail = "no observed pre-period residuals"
		return res, true
	}
	median, _ := stats.Median(residuals)
	mad, _ := stats.MedianAbsoluteDeviationPopulation(residuals)
	scale := MADScale * mad
	if scale == 0 {
		res.Status = experiment.StatusPass
		res.Detail = "residuals have no spread"
		return res, true
	}

	var flagged, nearBoundary int
	for k, r := range residuals {
		if math.Abs(r-median)/scale > OutlierZ {
			flagged++
			if days[k] >= in.Pre.End-BoundaryDays {
				nearBoundary++
			}
		}
	}
	res.Value = float64(flagged)
	switch {
	case nearBoundary > 0:
		res.Status = experiment.StatusFail
		res.Detail = fmt.Sprintf("%d outlier days, %d within %d days of the intervention", flagged, nearBoundary, BoundaryDays)
	case flagged > 0:
		res.Status = experiment.StatusWarn
		res.Detail = fmt.Sprintf("%d outlier days in the pre-period", flagged)
	default:
		res.Status = experiment.StatusPass
		res.Detail = "no pre-period outliers"
	}
	return res, true
}

// FitRMSECheck grades the synthetic control's pre-period RMSE as a
// percentage of the test mean.
type FitRMSECheck struct{}

func (c *FitRMSECheck) Name() string { return CheckFitRMSE }

func (c *FitRMSECheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	if !in.Synthetic() {
		return experiment.ValidityCheckResult{}, false
	}
	v := in.Weights.Fit.RMSEPct
	res := experiment.ValidityCheckResult{Name: c.Name(), Value: v, Threshold: RMSEPctPass}
	switch {
	case v < RMSEPctPass:
		res.Status = experiment.StatusPass
		res.Detail = fmt.Sprintf("synthetic control RMSE is %.1f%% of the test mean", v)
	case v < RMSEPctWarn:
		res.Status = experiment.StatusWarn
		res.Detail = fmt.Sprintf("synthetic control RMSE is %.1f%% of the test mean; fit is loose", v)
	default:
		res.Status = experiment.StatusFail
		res.Detail = fmt.Sprintf("synthetic control RMSE is %.1f%% of the test mean; fit is poor", v)
	}
	return res, true
}

func failed(res experiment.ValidityCheckResult, err error) experiment.ValidityCheckResult {
	res.Status = experiment.StatusFail
	res.Detail = err.Error()
	return res
}
