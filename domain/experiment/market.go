package experiment

// Market is a geographic unit with a fixed-length characteristics vector
// used for distance-based matching.
type Market struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	Characteristics []float64 `json:"characteristics" yaml:"characteristics"`
}

// Template is an opaque bundle of defaults that seeds an ExperimentSpec.
type Template struct {
	ID                 string           `json:"id" yaml:"id"`
	Name               string           `json:"name" yaml:"name"`
	Description        string           `json:"description" yaml:"description"`
	PrimaryMetric      string           `json:"primary_metric" yaml:"primary_metric"`
	DefaultMDE         float64          `json:"default_mde" yaml:"default_mde"`
	MDERange           [2]float64       `json:"mde_range" yaml:"mde_range"`
	DefaultShape       EffectShape      `json:"default_shape" yaml:"default_shape"`
	DefaultConfounders []ConfounderType `json:"default_confounders" yaml:"default_confounders"`
	PrePeriodDays      int              `json:"pre_period_days" yaml:"pre_period_days"`
	PostPeriodDays     int              `json:"post_period_days" yaml:"post_period_days"`
}

// NewSpec builds an ExperimentSpec from the template defaults. Confounders
// are included only when withConfounders is set.
func (t Template) NewSpec(testMarket string, withConfounders bool) ExperimentSpec {
	spec := ExperimentSpec{
		Template:       t.ID,
		Metric:         t.PrimaryMetric,
		TestMarket:     testMarket,
		PrePeriodDays:  t.PrePeriodDays,
		PostPeriodDays: t.PostPeriodDays,
		Effect:         EffectSpec{Magnitude: t.DefaultMDE, Shape: t.DefaultShape},
	}
	if spec.Effect.Shape == "" {
		spec.Effect.Shape = ShapeStep
	}
	if withConfounders {
		for _, c := range t.DefaultConfounders {
			spec.Confounders = append(spec.Confounders, ConfounderSpec{Type: c})
		}
	}
	return spec
}

// Fill returns spec with zero-valued periods, metric and effect taken from
// the template. An explicit zero effect cannot be expressed through Fill;
// callers wanting a null run set the magnitude after filling.
func (t Template) Fill(spec ExperimentSpec, withConfounders bool) ExperimentSpec {
	base := t.NewSpec(spec.TestMarket, withConfounders)
	out := spec
	out.Template = t.ID
	if out.Metric == "" {
		out.Metric = base.Metric
	}
	if out.PrePeriodDays == 0 {
		out.PrePeriodDays = base.PrePeriodDays
	}
	if out.PostPeriodDays == 0 {
		out.PostPeriodDays = base.PostPeriodDays
	}
	if out.Effect.Magnitude == 0 {
		out.Effect.Magnitude = base.Effect.Magnitude
	}
	if out.Effect.Shape == "" {
		out.Effect.Shape = base.Effect.Shape
	}
	if len(out.Confounders) == 0 {
		out.Confounders = base.Confounders
	}
	return out
}
