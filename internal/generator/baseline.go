package generator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// baselineParams are the per-dataset draws shaping the test market baseline.
type baselineParams struct {
	level       float64
	weeklyDrift float64
	seasonality float64
	noise       float64
}

// drawBaselineParams draws each parameter uniformly from its configured range.
func drawBaselineParams(s *sampler) baselineParams {
	return baselineParams{
		level:       s.uniform(BaselineMeanMin, BaselineMeanMax),
		weeklyDrift: s.uniform(-MaxWeeklyDrift, MaxWeeklyDrift),
		seasonality: s.uniform(SeasonalityMin, SeasonalityMax),
		noise:       s.uniform(NoiseMin, NoiseMax),
	}
}

// buildBaseline composes trend, weekly seasonality and noise. The trend is a
// multiplicative random walk whose daily step is clamped to twice the
// maximum daily drift; seasonality and noise scale with the local level.
func buildBaseline(s *sampler, p baselineParams, dates []time.Time) []float64 {
	daily := MaxWeeklyDrift / 7
	out := make([]float64, len(dates))
	level := p.level
	for i, d := range dates {
		if i > 0 {
			step := p.weeklyDrift/7 + s.normal(0, daily)
			step = math.Max(-2*daily, math.Min(2*daily, step))
			level *= 1 + step
		}
		seasonal := p.seasonality * level * math.Sin(2*math.Pi*float64(weekdayIndex(d))/7)
		v := level + seasonal + s.normal(0, p.noise*level)
		out[i] = math.Max(0, v)
	}
	return out
}

// weekdayIndex maps Monday to 0 and Sunday to 6.
func weekdayIndex(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// correlatedControl mixes the centered baseline with independent noise so
// the control's correlation with the baseline approaches rho.
func correlatedControl(s *sampler, baseline []float64, rho, scale float64) []float64 {
	mean, sd := stat.MeanStdDev(baseline, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	mix := math.Sqrt(1 - rho*rho)
	out := make([]float64, len(baseline))
	for i, b := range baseline {
		v := mean + rho*(b-mean) + mix*sd*s.normal(0, 1)
		out[i] = math.Max(0, scale*v)
	}
	return out
}
