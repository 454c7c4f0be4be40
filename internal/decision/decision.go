// Package decision maps an effect size and its significance to a
// ship / continue / do_not_ship recommendation.
package decision

import (
	"fmt"
	"math"

	"geolift/domain/experiment"
)

// ==========================================
// DECISION THRESHOLDS
// ==========================================

const (
	ShipEffectPct = 5.0
	ShipPValue    = 0.05

	ContinueEffectPct = 2.0
	ContinuePValue    = 0.10
)

// Decide applies the fixed thresholds. The sign of the effect is kept in
// Direction: ship on a negative effect means the regression is confidently
// detected and should be acted on.
func Decide(effectPct, pValue float64) experiment.Decision {
	d := experiment.Decision{
		EffectPct: effectPct,
		PValue:    pValue,
		Direction: direction(effectPct),
	}
	abs := math.Abs(effectPct)
	switch {
	case abs > ShipEffectPct && pValue < ShipPValue:
		d.Recommendation = experiment.Ship
		d.Rationale = fmt.Sprintf("%+.2f%% effect exceeds %.0f%% with p = %.4f < %.2f", effectPct, ShipEffectPct, pValue, ShipPValue)
	case abs > ContinueEffectPct && pValue < ContinuePValue:
		d.Recommendation = experiment.Continue
		d.Rationale = fmt.Sprintf("%+.2f%% effect is promising (p = %.4f) but below the ship bar; keep collecting data", effectPct, pValue)
	default:
		d.Recommendation = experiment.DoNotShip
		d.Rationale = fmt.Sprintf("%+.2f%% effect with p = %.4f is not distinguishable from noise at the required size", effectPct, pValue)
	}
	return d
}

// FromEstimate decides on an estimate's percent effect and p-value.
func FromEstimate(e experiment.CausalEstimate) experiment.Decision {
	return Decide(e.EffectPct, e.PValue)
}

// IsWin reports whether an outcome is a positive lift that clears the
// continue bar. Batch summaries count these as wins.
func IsWin(effectPct, pValue float64) bool {
	return effectPct > ContinueEffectPct && pValue < ContinuePValue
}

func direction(pct float64) experiment.Direction {
	switch {
	case pct > 0:
		return experiment.DirectionPositive
	case pct < 0:
		return experiment.DirectionNegative
	}
	return experiment.DirectionFlat
}
