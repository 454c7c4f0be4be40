package generator

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// injectTreatment adds the shaped effect to test over the post-period and
// returns the jittered magnitude and the absolute full-strength daily effect.
func injectTreatment(s *sampler, test, baseline []float64, spec experiment.ExperimentSpec) (applied, daily float64) {
	post := spec.PostPeriod()
	applied = spec.Effect.Magnitude * s.uniform(1-EffectJitter, 1+EffectJitter)
	daily = applied * stat.Mean(baseline[post.Start:post.End], nil)

	for k := 0; k < post.Len(); k++ {
		i := post.Start + k
		v := test[i] + daily*shapeFactor(spec.Effect, k)
		if v < 0 {
			v = 0
		}
		test[i] = v
	}
	return applied, daily
}

// shapeFactor is the fraction of the full effect present on post-period day k (0-based).
func shapeFactor(e experiment.EffectSpec, k int) float64 {
	switch e.Shape {
	case experiment.ShapeRamp:
		if k+1 >= e.RampDays {
			return 1
		}
		return float64(k+1) / float64(e.RampDays)
	case experiment.ShapeDelayed:
		if k < e.DelayDays {
			return 0
		}
		return 1
	}
	return 1
}

// injectConfounder resolves defaults and random draws for c and applies it
// to the targeted series in place.
func injectConfounder(
	s *sampler,
	c experiment.ConfounderSpec,
	spec experiment.ExperimentSpec,
	controlIDs []string,
	values map[string][]float64,
	missing map[string][]bool,
) (experiment.AppliedConfounder, error) {
	out := experiment.AppliedConfounder{Type: c.Type, Magnitude: c.Magnitude, Length: c.Length}

	switch c.Type {
	case experiment.AlgorithmUpdate:
		if out.Magnitude == 0 {
			out.Magnitude = s.uniform(AlgorithmUpdateDropMin, AlgorithmUpdateDropMax)
		}
		if out.Length == 0 {
			out.Length = AlgorithmUpdateDays
		}
	case experiment.SeasonalitySpike:
		if out.Magnitude == 0 {
			out.Magnitude = SeasonalitySpikeBoost
		}
		if out.Length == 0 {
			out.Length = SeasonalitySpikeDays
		}
	case experiment.TrackingBreak:
		if out.Magnitude == 0 {
			out.Magnitude = TrackingBreakProbability
		}
		if out.Length == 0 {
			out.Length = TrackingBreakDays
		}
	default:
		return out, errors.Configuration("generator", "confounders.type", fmt.Sprintf("unknown confounder type %q", c.Type))
	}

	n := spec.TotalDays()
	start := c.StartDay - 1
	if c.StartDay == 0 {
		post := spec.PostPeriod()
		start = post.Start + s.intn(post.Len()-out.Length+1)
	}
	end := start + out.Length
	if end > n {
		end = n
	}
	out.StartDay = start + 1
	out.Length = end - start

	out.Markets = confounderTargets(c, spec.TestMarket, controlIDs)
	for _, id := range out.Markets {
		vs, miss := values[id], missing[id]
		for i := start; i < end; i++ {
			switch c.Type {
			case experiment.AlgorithmUpdate:
				vs[i] *= 1 - out.Magnitude
				out.AffectedDays++
			case experiment.SeasonalitySpike:
				vs[i] *= 1 + out.Magnitude
				out.AffectedDays++
			case experiment.TrackingBreak:
				if s.float64() < out.Magnitude {
					vs[i] = 0
					miss[i] = true
					out.AffectedDays++
				}
			}
		}
	}
	return out, nil
}

// confounderTargets lists the series a confounder touches, test first and
// controls in generation order.
func confounderTargets(c experiment.ConfounderSpec, test string, controlIDs []string) []string {
	target := c.Target
	if target == experiment.TargetDefault {
		target = experiment.TargetAll
		if c.Type == experiment.TrackingBreak {
			target = experiment.TargetTest
		}
	}
	switch target {
	case experiment.TargetTest:
		return []string{test}
	case experiment.TargetControls:
		return append([]string(nil), controlIDs...)
	}
	return append([]string{test}, controlIDs...)
}
