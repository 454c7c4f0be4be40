package experiment

import (
	"time"

	"geolift/domain/core"
)

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	ID             core.RunID     `json:"id" db:"id"`
	BatchID        *string        `json:"batch_id,omitempty" db:"batch_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	Template       string         `json:"template" db:"template"`
	TestMarket     string         `json:"test_market" db:"test_market"`
	Seed           int64          `json:"seed" db:"seed"`
	EffectPct      float64        `json:"effect_pct" db:"effect_pct"`
	PValue         float64        `json:"p_value" db:"p_value"`
	Recommendation Recommendation `json:"recommendation" db:"recommendation"`
	Validity       CheckStatus    `json:"validity" db:"validity"`
}

// BatchRun is one row of a batch: the inputs that varied and the outcome,
// or the error kind when the run failed.
type BatchRun struct {
	Index          int            `json:"index"`
	RunID          core.RunID     `json:"run_id,omitempty"`
	Seed           int64          `json:"seed"`
	TestMarket     string         `json:"test_market"`
	Magnitude      float64        `json:"magnitude"`
	Shape          EffectShape    `json:"shape"`
	PostPeriodDays int            `json:"post_period_days"`
	Confounders    int            `json:"confounders"`
	ControlMode    ControlMode    `json:"control_mode,omitempty"`
	EffectPct      float64        `json:"effect_pct"`
	PValue         float64        `json:"p_value"`
	ZScore         float64        `json:"z_score"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Validity       CheckStatus    `json:"validity,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r BatchRun) Failed() bool { return r.Error != "" }

// EffectStats describes the distribution of effect percentages.
type EffectStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
}

// SignificanceBuckets counts successful runs by p-value band.
type SignificanceBuckets struct {
	Below05 int `json:"p_lt_0_05"`
	Below10 int `json:"p_0_05_to_0_10"`
	Above10 int `json:"p_ge_0_10"`
}

// BatchSummary aggregates a batch of independent runs.
type BatchSummary struct {
	ID           core.BatchID           `json:"id"`
	CreatedAt    time.Time              `json:"created_at"`
	Total        int                    `json:"total"`
	Succeeded    int                    `json:"succeeded"`
	Failed       int                    `json:"failed"`
	WinRate      float64                `json:"win_rate"`
	Decisions    map[Recommendation]int `json:"decisions"`
	Effect       EffectStats            `json:"effect"`
	Significance SignificanceBuckets    `json:"significance"`
	ErrorKinds   map[string]int         `json:"error_kinds,omitempty"`
	Runs         []BatchRun             `json:"runs"`
}
