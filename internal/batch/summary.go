package batch

import (
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"geolift/domain/experiment"
	"geolift/internal/decision"
)

// Summarize aggregates batch rows. The win rate is over all runs, failed
// ones included; effect statistics and significance buckets cover
// successful runs only.
func Summarize(runs []experiment.BatchRun) experiment.BatchSummary {
	s := experiment.BatchSummary{
		Total:     len(runs),
		Decisions: map[experiment.Recommendation]int{},
		Runs:      append([]experiment.BatchRun(nil), runs...),
	}
	var effects []float64
	wins := 0
	for _, r := range runs {
		if r.Failed() {
			s.Failed++
			if s.ErrorKinds == nil {
				s.ErrorKinds = map[string]int{}
			}
			s.ErrorKinds[r.ErrorKind]++
			continue
		}
		s.Succeeded++
		s.Decisions[r.Recommendation]++
		effects = append(effects, r.EffectPct)
		switch {
		case r.PValue < 0.05:
			s.Significance.Below05++
		case r.PValue < 0.10:
			s.Significance.Below10++
		default:
			s.Significance.Above10++
		}
		if decision.IsWin(r.EffectPct, r.PValue) {
			wins++
		}
	}
	if s.Total > 0 {
		s.WinRate = float64(wins) / float64(s.Total)
	}
	s.Effect = describe(effects)
	return s
}

// describe returns mean, sample std and linearly interpolated quartiles.
func describe(xs []float64) experiment.EffectStats {
	if len(xs) == 0 {
		return experiment.EffectStats{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var out experiment.EffectStats
	out.Mean, _ = stats.Mean(sorted)
	out.Min, _ = stats.Min(sorted)
	out.Max, _ = stats.Max(sorted)
	if len(sorted) > 1 {
		out.Std, _ = stats.StandardDeviationSample(sorted)
	}
	out.Q1 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	out.Median = stat.Quantile(0.50, stat.LinInterp, sorted, nil)
	out.Q3 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return out
}
