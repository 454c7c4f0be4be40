package matching

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// EvaluateFit scores predicted against actual over the days observed in
// both. Pass pre-period slices: a fit is never scored on post-period data.
func EvaluateFit(actualPre, predictedPre experiment.TimeSeries) (experiment.FitQuality, error) {
	if actualPre.Len() != predictedPre.Len() {
		return experiment.FitQuality{}, errors.Configuration("matching", "predicted",
			fmt.Sprintf("length mismatch: %d actual vs %d predicted", actualPre.Len(), predictedPre.Len()))
	}
	xs, ys := experiment.PairedObserved(actualPre, predictedPre, experiment.Period{Start: 0, End: actualPre.Len()})
	q, err := evaluate(xs, ys)
	if err != nil {
		return q, err
	}
	q.Observations = len(xs)
	return q, nil
}

func evaluate(actual, predicted []float64) (experiment.FitQuality, error) {
	var q experiment.FitQuality
	if len(actual) < 3 {
		return q, errors.InsufficientData("matching", fmt.Sprintf("fit evaluation needs at least 3 observed days, got %d", len(actual)))
	}
	mean, err := stats.Mean(actual)
	if err != nil {
		return q, errors.Wrap(err, "mean of actual series")
	}

	var ssRes, ssTot, absSum float64
	for i, a := range actual {
		r := a - predicted[i]
		ssRes += r * r
		absSum += math.Abs(r)
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot == 0 {
		return q, errors.NumericalFit("matching", "actual series has zero variance")
	}
	n := float64(len(actual))
	q.RMSE = math.Sqrt(ssRes / n)
	q.MAE = absSum / n
	q.RSquared = 1 - ssRes/ssTot
	if mean != 0 {
		q.RMSEPct = q.RMSE / mean * 100
	}
	if r, err := pearson(actual, predicted); err == nil {
		q.Correlation = r
	}
	return q, nil
}
