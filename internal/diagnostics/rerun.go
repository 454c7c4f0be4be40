package diagnostics

import (
	"fmt"
	"math"
	"strings"

	"geolift/domain/experiment"
	"geolift/internal/decision"
	"geolift/internal/estimator"
	"geolift/internal/matching"
)

// PlaceboCheck re-runs the estimator with a fake intervention inside the
// pre-period. A placebo effect large and significant enough to drive a
// decision fails the check.
type PlaceboCheck struct {
	Day   int
	Alpha float64
}

func (c *PlaceboCheck) Name() string { return CheckPlacebo }

func (c *PlaceboCheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	res := experiment.ValidityCheckResult{Name: c.Name(), Threshold: decision.ContinueEffectPct}
	day, ok := placeboDay(in.Pre, c.Day)
	if !ok {
		res.Status = experiment.StatusWarn
		res.Detail = fmt.Sprintf("pre-period of %d days is too short for a placebo test", in.Pre.Len())
		return res, true
	}
	fakePre := experiment.Period{Start: in.Pre.Start, End: day}
	fakePost := experiment.Period{Start: day, End: in.Pre.End}

	controls, err := refitControls(in, in.Weights, fakePre)
	if err != nil {
		return failed(res, err), true
	}
	est, err := estimator.Estimate(in.Test, controls, fakePre, fakePost, estimator.Options{Alpha: c.Alpha})
	if err != nil {
		res.Status = experiment.StatusWarn
		res.Detail = "placebo estimate failed: " + err.Error()
		return res, true
	}

	pct, p := est.Estimate.EffectPct, est.Estimate.PValue
	res.Value = pct
	d := decision.Decide(pct, p)
	desc := fmt.Sprintf("placebo at day %d: %+.2f%% effect, p = %.4f", day+1, pct, p)
	switch {
	case d.Recommendation != experiment.DoNotShip:
		res.Status = experiment.StatusFail
		res.Detail = desc + ": spurious effect would have triggered " + string(d.Recommendation)
	case math.Abs(pct) > PlaceboWarnPct:
		res.Status = experiment.StatusWarn
		res.Detail = desc + ": visible pre-period drift"
	default:
		res.Status = experiment.StatusPass
		res.Detail = desc
	}
	return res, true
}

// placeboDay returns the fake intervention index, falling back to the
// pre-period midpoint when the configured day leaves either side too short.
func placeboDay(pre experiment.Period, configured int) (int, bool) {
	fits := func(d int) bool {
		return d-pre.Start >= estimator.MinPreObservations && pre.End-d >= estimator.MinPostObservations
	}
	if d := pre.Start + configured; configured > 0 && fits(d) {
		return d, true
	}
	if d := pre.Start + pre.Len()/2; fits(d) {
		return d, true
	}
	return 0, false
}

// DropOneCheck re-fits the synthetic control once per removed market and
// re-estimates. A sign flip or an order-of-magnitude change fails unless both
// estimates sit within one standard error of zero.
type DropOneCheck struct {
	Alpha float64
}

func (c *DropOneCheck) Name() string { return CheckDropOne }

func (c *DropOneCheck) Evaluate(in *Input) (experiment.ValidityCheckResult, bool) {
	if !in.Synthetic() {
		return experiment.ValidityCheckResult{}, false
	}
	res := experiment.ValidityCheckResult{Name: c.Name(), Threshold: DropOneWarnDeviation, Status: experiment.StatusPass}
	base := in.Estimate.CumulativeEffect

	var worstDev float64
	var notes []string
	for _, drop := range in.Weights.Order {
		w := without(in.Weights, drop)
		controls, err := refitControls(in, w, in.Pre)
		if err != nil {
			res.Status = experiment.Worst(res.Status, experiment.StatusWarn)
			notes = append(notes, fmt.Sprintf("without %s: refit failed (%v)", drop, err))
			continue
		}
		est, err := estimator.Estimate(in.Test, controls, in.Pre, in.Post, estimator.Options{Alpha: c.Alpha})
		if err != nil {
			res.Status = experiment.Worst(res.Status, experiment.StatusWarn)
			notes = append(notes, fmt.Sprintf("without %s: estimate failed (%v)", drop, err))
			continue
		}
		alt := est.Estimate.CumulativeEffect
		dev := relativeDeviation(base, alt)
		worstDev = math.Max(worstDev, dev)

		status, note := classifyRemoval(base, alt, in.Estimate.StandardError)
		res.Status = experiment.Worst(res.Status, status)
		if note != "" {
			notes = append(notes, fmt.Sprintf("without %s: %s", drop, note))
		}
	}
	res.Value = worstDev
	if len(notes) == 0 {
		res.Detail = fmt.Sprintf("effect stable across %d removals (max deviation %.0f%%)", len(in.Weights.Order), worstDev*100)
	} else {
		res.Detail = strings.Join(notes, "; ")
	}
	return res, true
}

// refitControls returns the control series to regress on when the
// synthetic control is re-fitted over fit with weights' markets. With no
// synthetic control the input controls are returned unchanged; with a single
// remaining market its raw series is used.
func refitControls(in *Input, w *experiment.SyntheticControlWeights, fit experiment.Period) ([]experiment.TimeSeries, error) {
	if w == nil || len(w.Order) == 0 || in.Candidates == nil {
		return in.Controls, nil
	}
	if len(w.Order) == 1 {
		s, ok := in.Candidates[w.Order[0]]
		if !ok {
			return nil, fmt.Errorf("no series for %s", w.Order[0])
		}
		return []experiment.TimeSeries{s}, nil
	}
	testPre, err := in.Test.Slice(fit)
	if err != nil {
		return nil, err
	}
	pres := make([]experiment.TimeSeries, 0, len(w.Order))
	for _, id := range w.Order {
		s, ok := in.Candidates[id]
		if !ok {
			return nil, fmt.Errorf("no series for %s", id)
		}
		sp, err := s.Slice(fit)
		if err != nil {
			return nil, err
		}
		pres = append(pres, sp)
	}
	refit, err := matching.BuildSyntheticControl(testPre, pres, in.RidgePenalty)
	if err != nil {
		return nil, err
	}
	combined, err := matching.Combine(refit, in.Candidates)
	if err != nil {
		return nil, err
	}
	return []experiment.TimeSeries{combined}, nil
}

// classifyRemoval grades one drop-one estimate against the full one. Sign
// flips and order-of-magnitude shifts fail only when at least one of the two
// estimates lies outside the noise band of DropOneNoiseSE standard errors
// around zero; inside it they are compared by absolute movement.
func classifyRemoval(base, alt, se float64) (experiment.CheckStatus, string) {
	band := DropOneNoiseSE * se
	if band > 0 && math.Abs(base) <= band && math.Abs(alt) <= band {
		if math.Abs(alt-base) > band {
			return experiment.StatusWarn, fmt.Sprintf("effect moves %.1f within the noise band (%.1f vs %.1f)", alt-base, alt, base)
		}
		return experiment.StatusPass, ""
	}
	switch dev := relativeDeviation(base, alt); {
	case base*alt < 0:
		return experiment.StatusFail, fmt.Sprintf("sign flips (%.1f vs %.1f)", alt, base)
	case orderShift(base, alt) >= DropOneMagnitudeOrders:
		return experiment.StatusFail, fmt.Sprintf("magnitude shifts (%.1f vs %.1f)", alt, base)
	case dev > DropOneWarnDeviation:
		return experiment.StatusWarn, fmt.Sprintf("effect moves %.0f%%", dev*100)
	}
	return experiment.StatusPass, ""
}

func without(w *experiment.SyntheticControlWeights, drop string) *experiment.SyntheticControlWeights {
	out := &experiment.SyntheticControlWeights{Weights: map[string]float64{}, Penalty: w.Penalty}
	for _, id := range w.Order {
		if id == drop {
			continue
		}
		out.Order = append(out.Order, id)
		out.Weights[id] = w.Weights[id]
	}
	return out
}

func relativeDeviation(base, alt float64) float64 {
	if base == 0 {
		if alt == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(alt-base) / math.Abs(base)
}

// orderShift is |log10(|alt| / |base|)|, infinite when exactly one is zero.
func orderShift(base, alt float64) float64 {
	if base == 0 && alt == 0 {
		return 0
	}
	if base == 0 || alt == 0 {
		return math.Inf(1)
	}
	return math.Abs(math.Log10(math.Abs(alt) / math.Abs(base)))
}
