// Package power converts a minimum detectable effect into a required
// experiment length and back, using the two-sample normal approximation
// with one observation per day per arm.
package power

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"geolift/domain/experiment"
	"geolift/internal/distributions"
	"geolift/internal/errors"
)

// Status buckets achieved power.
type Status string

const (
	StatusHigh   Status = "high"
	StatusMedium Status = "medium"
	StatusLow    Status = "low"
)

const (
	HighPowerThreshold   = 0.80
	MediumPowerThreshold = 0.70

	// powerCeiling keeps achieved power strictly inside (0, 1).
	powerCeiling = 1 - 1e-12
	powerFloor   = 1e-12
)

// Plan is the outcome of a duration calculation.
type Plan struct {
	Alpha        float64 `json:"alpha"`
	Power        float64 `json:"power"`
	MDE          float64 `json:"mde"`
	BaselineMean float64 `json:"baseline_mean"`
	BaselineStd  float64 `json:"baseline_std"`
	CV           float64 `json:"cv"`
	Delta        float64 `json:"delta"`
	RequiredN    float64 `json:"required_n"`
	RequiredDays int     `json:"required_days"`
}

// Baseline holds the summary statistics the calculator consumes.
type Baseline struct {
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
	CV           float64 `json:"cv"`
	Observations int     `json:"observations"`
}

// RequiredDuration returns n = ⌈2·(z_{1−α/2} + z_{power})²·std² / (mde·mean)²⌉
// days per arm. Tiny std yields tiny durations; nothing is clamped.
func RequiredDuration(alpha, power, mde, mean, std float64) (Plan, error) {
	if err := checkInputs(alpha, mde, mean, std); err != nil {
		return Plan{}, err
	}
	if !(power > 0 && power < 1) {
		return Plan{}, errors.Domain("power", "power", fmt.Sprintf("power must be in (0,1), got %v", power))
	}

	delta := math.Abs(mde) * mean
	z := distributions.CriticalValue(alpha) + distributions.NormalQuantile(power)
	n := 2 * z * z * std * std / (delta * delta)

	return Plan{
		Alpha:        alpha,
		Power:        power,
		MDE:          mde,
		BaselineMean: mean,
		BaselineStd:  std,
		CV:           std / mean,
		Delta:        delta,
		RequiredN:    n,
		RequiredDays: int(math.Ceil(n)),
	}, nil
}

// AchievedPower inverts RequiredDuration: the probability of detecting an
// effect of mde at the given duration, Φ(ncp − z) + Φ(−ncp − z) with
// ncp = (mde·mean/std)·√(days/2).
func AchievedPower(days int, alpha, mde, mean, std float64) (float64, error) {
	if err := checkInputs(alpha, mde, mean, std); err != nil {
		return 0, err
	}
	if days <= 0 {
		return 0, errors.Domain("power", "days", fmt.Sprintf("duration must be positive, got %d", days))
	}

	z := distributions.CriticalValue(alpha)
	ncp := math.Inf(1)
	if std > 0 {
		ncp = math.Abs(mde) * mean / std * math.Sqrt(float64(days)/2)
	}
	p := distributions.NormalCDF(ncp-z) + distributions.NormalCDF(-ncp-z)
	return math.Min(powerCeiling, math.Max(powerFloor, p)), nil
}

// ClassifyPower buckets a power fraction and explains the bucket.
func ClassifyPower(p float64) (Status, string) {
	pct := p * 100
	switch {
	case p >= HighPowerThreshold:
		return StatusHigh, fmt.Sprintf("%.1f%% power: the design will reliably detect the target effect", pct)
	case p >= MediumPowerThreshold:
		return StatusMedium, fmt.Sprintf("%.1f%% power: adequate, but a true effect of this size is missed roughly %.0f%% of the time", pct, 100-pct)
	default:
		return StatusLow, fmt.Sprintf("%.1f%% power: underpowered, extend the duration or target a larger effect", pct)
	}
}

// Assessment pairs achieved power with its status.
type Assessment struct {
	Days        int     `json:"days"`
	Power       float64 `json:"power"`
	Status      Status  `json:"status"`
	Explanation string  `json:"explanation"`
}

// Assess computes achieved power at days and classifies it.
func Assess(days int, alpha, mde, mean, std float64) (Assessment, error) {
	p, err := AchievedPower(days, alpha, mde, mean, std)
	if err != nil {
		return Assessment{}, err
	}
	status, why := ClassifyPower(p)
	return Assessment{Days: days, Power: p, Status: status, Explanation: why}, nil
}

// Curve evaluates Assess for each duration, in order.
func Curve(days []int, alpha, mde, mean, std float64) ([]Assessment, error) {
	out := make([]Assessment, 0, len(days))
	for _, d := range days {
		a, err := Assess(d, alpha, mde, mean, std)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// BaselineFromSeries summarizes the observed days of a calibration series
// using the sample standard deviation.
func BaselineFromSeries(ts experiment.TimeSeries) (Baseline, error) {
	vals := ts.Observed()
	if len(vals) < 2 {
		return Baseline{}, errors.InsufficientData("power", fmt.Sprintf("baseline needs at least 2 observed days, got %d", len(vals)))
	}
	mean, err := stats.Mean(vals)
	if err != nil {
		return Baseline{}, errors.Wrap(err, "baseline mean")
	}
	std, err := stats.StandardDeviationSample(vals)
	if err != nil {
		return Baseline{}, errors.Wrap(err, "baseline std")
	}
	b := Baseline{Mean: mean, Std: std, Observations: len(vals)}
	if mean != 0 {
		b.CV = std / mean
	}
	return b, nil
}

func checkInputs(alpha, mde, mean, std float64) error {
	switch {
	case math.IsNaN(mde) || mde == 0:
		return errors.Domain("power", "mde", "minimum detectable effect must be non-zero")
	case !(alpha > 0 && alpha < 1):
		return errors.Domain("power", "alpha", fmt.Sprintf("alpha must be in (0,1), got %v", alpha))
	case !(mean > 0) || math.IsInf(mean, 0):
		return errors.Domain("power", "baseline_mean", fmt.Sprintf("baseline mean must be positive, got %v", mean))
	case !(std >= 0) || math.IsInf(std, 0):
		return errors.Domain("power", "baseline_std", fmt.Sprintf("baseline std must be non-negative, got %v", std))
	}
	return nil
}
