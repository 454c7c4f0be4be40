package experiment

import (
	"time"

	"geolift/domain/core"
)

// RunRecord is everything a storage collaborator persists for one run.
type RunRecord struct {
	ID          core.RunID               `json:"id"`
	BatchID     core.BatchID             `json:"batch_id,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	Spec        ExperimentSpec           `json:"spec"`
	Seed        int64                    `json:"seed"`
	Metadata    GenerationMetadata       `json:"metadata"`
	ControlMode ControlMode              `json:"control_mode"`
	Controls    []string                 `json:"controls"`
	Weights     *SyntheticControlWeights `json:"weights,omitempty"`
	Estimate    CausalEstimate           `json:"estimate"`
	Report      ValidityReport           `json:"report"`
	Decision    Decision                 `json:"decision"`
	Daily       []DailyEffect            `json:"daily,omitempty"`
}

// Summary returns the listing view of the record.
func (r *RunRecord) Summary() RunSummary {
	s := RunSummary{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Template:       r.Spec.Template,
		TestMarket:     r.Spec.TestMarket,
		Seed:           r.Seed,
		EffectPct:      r.Estimate.EffectPct,
		PValue:         r.Estimate.PValue,
		Recommendation: r.Decision.Recommendation,
		Validity:       r.Report.Overall,
	}
	if r.BatchID != "" {
		b := r.BatchID.String()
		s.BatchID = &b
	}
	return s
}
