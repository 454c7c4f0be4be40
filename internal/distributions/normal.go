// Package distributions wraps the gonum distributions used for p-values,
// critical values and power.
package distributions

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormalCDF computes cumulative distribution function for standard normal
func NormalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// NormalQuantile computes quantile function for standard normal (inverse CDF)
func NormalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// TwoSidedPValue is 2·(1 − Φ(|z|)), computed through the survival function
// so large |z| underflows to 0 instead of losing precision.
func TwoSidedPValue(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	p := 2 * distuv.UnitNormal.Survival(math.Abs(z))
	if p > 1 {
		return 1
	}
	return p
}

// CriticalValue returns z_{1-alpha/2} for a two-sided test.
func CriticalValue(alpha float64) float64 {
	return distuv.UnitNormal.Quantile(1 - alpha/2)
}
