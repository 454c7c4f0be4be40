// Package matching ranks candidate control markets against a test market
// and builds ridge-regression synthetic controls from their pre-period
// series.
package matching

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// Candidate is one ranked control market. Distance is over the raw
// characteristic vectors; Correlation is over pre-period values and is
// reported separately from the ranking.
type Candidate struct {
	Rank        int     `json:"rank"`
	Market      string  `json:"market"`
	Name        string  `json:"name"`
	Distance    float64 `json:"distance"`
	Correlation float64 `json:"correlation"`
}

// RankControls orders candidates by ascending Euclidean distance to the
// test market's characteristics, ties broken by id. candidatePre may omit
// markets; their correlation is then reported as 0.
func RankControls(
	test experiment.Market,
	candidates []experiment.Market,
	testPre experiment.TimeSeries,
	candidatePre map[string]experiment.TimeSeries,
) ([]Candidate, error) {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == test.ID {
			continue
		}
		d, err := stats.EuclideanDistance(test.Characteristics, c.Characteristics)
		if err != nil {
			return nil, errors.Configuration("matching", "characteristics",
				fmt.Sprintf("cannot compare %s with %s: %v", test.ID, c.ID, err))
		}
		cand := Candidate{Market: c.ID, Name: c.Name, Distance: d}
		if series, ok := candidatePre[c.ID]; ok {
			if r, err := Correlation(testPre, series); err == nil {
				cand.Correlation = r
			}
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Market < out[j].Market
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// TopK returns the market ids of the first k candidates.
func TopK(ranked []Candidate, k int) []string {
	if k > len(ranked) {
		k = len(ranked)
	}
	ids := make([]string, 0, k)
	for _, c := range ranked[:k] {
		ids = append(ids, c.Market)
	}
	return ids
}

// Correlation is the Pearson correlation of a and b over days observed in
// both. Fewer than 3 shared days or a constant series is a numerical-fit error.
func Correlation(a, b experiment.TimeSeries) (float64, error) {
	n := len(a.Points)
	if len(b.Points) < n {
		n = len(b.Points)
	}
	xs, ys := experiment.PairedObserved(a, b, experiment.Period{Start: 0, End: n})
	return pearson(xs, ys)
}

func pearson(xs, ys []float64) (float64, error) {
	if len(xs) < 3 {
		return 0, errors.NumericalFit("matching", fmt.Sprintf("correlation needs at least 3 observed days, got %d", len(xs)))
	}
	for _, data := range [][]float64{xs, ys} {
		sd, err := stats.StandardDeviationPopulation(data)
		if err != nil {
			return 0, errors.Wrap(err, "standard deviation")
		}
		if sd == 0 || math.IsNaN(sd) {
			return 0, errors.NumericalFit("matching", "correlation undefined for a constant series")
		}
	}
	r, err := stats.Correlation(xs, ys)
	if err != nil {
		return 0, errors.NumericalFit("matching", err.Error())
	}
	return r, nil
}
