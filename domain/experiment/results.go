package experiment

import (
	"time"
)

// FitQuality summarizes how well a prediction tracks the test market over
// the pre-period.
type FitQuality struct {
	Correlation  float64 `json:"correlation"`
	RMSE         float64 `json:"rmse"`
	RMSEPct      float64 `json:"rmse_pct"`
	MAE          float64 `json:"mae"`
	RSquared     float64 `json:"r_squared"`
	Observations int     `json:"observations"`
}

// SyntheticControlWeights maps control markets to unconstrained weights.
// Order preserves the column order used in the fit.
type SyntheticControlWeights struct {
	Weights map[string]float64 `json:"weights"`
	Order   []string           `json:"order"`
	Penalty float64            `json:"penalty"`
	Fit     FitQuality         `json:"fit"`
}

// CausalEstimate is the estimator's summary of the post-period effect.
// ZScore equals CumulativeEffect / StandardError and PValue is the
// two-sided normal tail of |ZScore|.
type CausalEstimate struct {
	CumulativeEffect    float64 `json:"cumulative_effect"`
	AverageDailyEffect  float64 `json:"average_daily_effect"`
	EffectPct           float64 `json:"effect_pct"`
	StandardError       float64 `json:"standard_error"`
	ZScore              float64 `json:"z_score"`
	PValue              float64 `json:"p_value"`
	CILower             float64 `json:"ci_lower"`
	CIUpper             float64 `json:"ci_upper"`
	Alpha               float64 `json:"alpha"`
	PostObservations    int     `json:"post_observations"`
	CounterfactualTotal float64 `json:"counterfactual_total"`
	ActualTotal         float64 `json:"actual_total"`
}

// DailyEffect is one post-period day of the counterfactual comparison.
type DailyEffect struct {
	Date           time.Time `json:"date"`
	Actual         float64   `json:"actual"`
	Counterfactual float64   `json:"counterfactual"`
	Effect         float64   `json:"effect"`
	Cumulative     float64   `json:"cumulative"`
	Missing        bool      `json:"missing,omitempty"`
}

// CheckStatus is the traffic-light outcome of a validity check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Severity orders statuses so the worst can be picked.
func (s CheckStatus) Severity() int {
	switch s {
	case StatusPass:
		return 0
	case StatusWarn:
		return 1
	}
	return 2
}

// Worst returns the most severe of the given statuses, pass when empty.
func Worst(statuses ...CheckStatus) CheckStatus {
	worst := StatusPass
	for _, s := range statuses {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// ValidityCheckResult is one diagnostic with the evidence that drove it.
type ValidityCheckResult struct {
	Name      string      `json:"name"`
	Status    CheckStatus `json:"status"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Detail    string      `json:"detail"`
}

// ValidityReport aggregates the checks; Overall is the worst individual status.
type ValidityReport struct {
	Checks  []ValidityCheckResult `json:"checks"`
	Overall CheckStatus           `json:"overall"`
}

// Recommendation is the categorical outcome of the decision framework.
type Recommendation string

const (
	Ship      Recommendation = "ship"
	Continue  Recommendation = "continue"
	DoNotShip Recommendation = "do_not_ship"
)

// Rank orders recommendations by confidence, do_not_ship lowest.
func (r Recommendation) Rank() int {
	switch r {
	case Ship:
		return 2
	case Continue:
		return 1
	}
	return 0
}

// Direction records the sign of the effect behind a decision.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionFlat     Direction = "flat"
)

// Decision is derived last from effect % and p-value.
type Decision struct {
	Recommendation Recommendation `json:"recommendation"`
	EffectPct      float64        `json:"effect_pct"`
	PValue         float64        `json:"p_value"`
	Direction      Direction      `json:"direction"`
	Rationale      string         `json:"rationale"`
}

// ControlMetadata records how one control series was generated.
type ControlMetadata struct {
	Market              string  `json:"market"`
	TargetCorrelation   float64 `json:"target_correlation"`
	RealizedCorrelation float64 `json:"realized_correlation"`
	Scale               float64 `json:"scale"`
}

// AppliedConfounder is the resolved form of a ConfounderSpec after defaults
// and random draws.
type AppliedConfounder struct {
	Type         ConfounderType `json:"type"`
	Markets      []string       `json:"markets"`
	StartDay     int            `json:"start_day"`
	Length       int            `json:"length"`
	Magnitude    float64        `json:"magnitude"`
	AffectedDays int            `json:"affected_days"`
}

// GenerationMetadata describes the draws behind a generated dataset.
type GenerationMetadata struct {
	Seed                 int64               `json:"seed"`
	DatasetHash          string              `json:"dataset_hash"`
	BaselineMean         float64             `json:"baseline_mean"`
	TestPreMean          float64             `json:"test_pre_mean"`
	WeeklyDrift          float64             `json:"weekly_drift"`
	SeasonalityAmplitude float64             `json:"seasonality_amplitude"`
	NoiseLevel           float64             `json:"noise_level"`
	RequestedEffect      float64             `json:"requested_effect"`
	AppliedEffect        float64             `json:"applied_effect"`
	DailyEffect          float64             `json:"daily_effect"`
	Shape                EffectShape         `json:"shape"`
	InterventionIndex    int                 `json:"intervention_index"`
	InterventionDate     time.Time           `json:"intervention_date"`
	Controls             []ControlMetadata   `json:"controls"`
	Confounders          []AppliedConfounder `json:"confounders"`
}
