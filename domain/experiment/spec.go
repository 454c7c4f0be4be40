package experiment

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"geolift/internal/errors"
)

// EffectShape describes how the injected treatment unfolds over the post-period.
type EffectShape string

const (
	ShapeStep    EffectShape = "step"
	ShapeRamp    EffectShape = "ramp"
	ShapeDelayed EffectShape = "delayed"
)

// ParseEffectShape maps a name to an EffectShape. "delayed_step" is accepted
// as an alias of "delayed"; anything else unknown is a configuration error.
func ParseEffectShape(s string) (EffectShape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "step":
		return ShapeStep, nil
	case "ramp":
		return ShapeRamp, nil
	case "delayed", "delayed_step":
		return ShapeDelayed, nil
	}
	return "", errors.Configuration("spec", "effect.shape", fmt.Sprintf("unknown effect shape %q", s))
}

// ConfounderType names a disturbance injected into the generated series.
type ConfounderType string

const (
	AlgorithmUpdate  ConfounderType = "algorithm_update"
	SeasonalitySpike ConfounderType = "seasonality_spike"
	TrackingBreak    ConfounderType = "tracking_break"
)

// ParseConfounderType maps a name to a ConfounderType.
func ParseConfounderType(s string) (ConfounderType, error) {
	switch ConfounderType(strings.ToLower(strings.TrimSpace(s))) {
	case AlgorithmUpdate:
		return AlgorithmUpdate, nil
	case SeasonalitySpike:
		return SeasonalitySpike, nil
	case TrackingBreak:
		return TrackingBreak, nil
	}
	return "", errors.Configuration("spec", "confounders.type", fmt.Sprintf("unknown confounder type %q", s))
}

// ConfounderTarget selects which series a confounder touches.
type ConfounderTarget string

const (
	TargetDefault  ConfounderTarget = ""
	TargetTest     ConfounderTarget = "test"
	TargetControls ConfounderTarget = "controls"
	TargetAll      ConfounderTarget = "all"
)

// ControlMode chooses between a single best-match control and a synthetic combination.
type ControlMode string

const (
	ControlAuto      ControlMode = "auto"
	ControlSingle    ControlMode = "single"
	ControlSynthetic ControlMode = "synthetic"
)

// EffectSpec is the requested treatment. Magnitude is a fraction of the
// post-period baseline mean (0.08 = 8%).
type EffectSpec struct {
	Magnitude float64     `json:"magnitude" yaml:"magnitude" validate:"gte=-0.9,lte=5"`
	Shape     EffectShape `json:"shape" yaml:"shape"`
	RampDays  int         `json:"ramp_days,omitempty" yaml:"ramp_days" validate:"gte=0"`
	DelayDays int         `json:"delay_days,omitempty" yaml:"delay_days" validate:"gte=0"`
}

// ConfounderSpec describes one confounder window. Zero Magnitude or Length
// selects the type default. StartDay is 1-based over the whole series; 0
// picks a random day after the intervention.
type ConfounderSpec struct {
	Type      ConfounderType   `json:"type" yaml:"type"`
	Magnitude float64          `json:"magnitude,omitempty" yaml:"magnitude" validate:"gte=0,lte=1"`
	StartDay  int              `json:"start_day,omitempty" yaml:"start_day" validate:"gte=0"`
	Length    int              `json:"length,omitempty" yaml:"length" validate:"gte=0"`
	Target    ConfounderTarget `json:"target,omitempty" yaml:"target"`
}

// ExperimentSpec fully determines generation given a seed.
type ExperimentSpec struct {
	Template           string           `json:"template,omitempty" yaml:"template"`
	Metric             string           `json:"metric,omitempty" yaml:"metric"`
	TestMarket         string           `json:"test_market" yaml:"test_market" validate:"required"`
	ControlMarkets     []string         `json:"control_markets,omitempty" yaml:"control_markets" validate:"dive,required"`
	PrePeriodDays      int              `json:"pre_period_days" yaml:"pre_period_days" validate:"gt=0"`
	PostPeriodDays     int              `json:"post_period_days" yaml:"post_period_days" validate:"gt=0"`
	Effect             EffectSpec       `json:"effect" yaml:"effect"`
	Confounders        []ConfounderSpec `json:"confounders,omitempty" yaml:"confounders" validate:"dive"`
	ControlCorrelation float64          `json:"control_correlation,omitempty" yaml:"control_correlation" validate:"gte=0,lt=1"`
	StartDate          time.Time        `json:"start_date,omitempty" yaml:"start_date"`
	ControlMode        ControlMode      `json:"control_mode,omitempty" yaml:"control_mode"`
	TopK               int              `json:"top_k,omitempty" yaml:"top_k" validate:"gte=0,lte=20"`
	RidgePenalty       float64          `json:"ridge_penalty,omitempty" yaml:"ridge_penalty" validate:"gte=0"`
}

const (
	DefaultRampDays     = 14
	DefaultDelayDays    = 7
	DefaultTopK         = 3
	DefaultRidgePenalty = 1.0
)

var validate = validator.New()

// Validate checks field ranges and enum membership. The first problem found
// is reported as a configuration error naming the field. An empty effect
// shape means step.
func (s ExperimentSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Configuration("spec", fieldPath(fe.Namespace()),
				fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()))
		}
		return errors.Configuration("spec", "", err.Error())
	}
	if s.Effect.Shape != "" {
		if _, err := ParseEffectShape(string(s.Effect.Shape)); err != nil {
			return err
		}
	}
	for i, c := range s.Confounders {
		if _, err := ParseConfounderType(string(c.Type)); err != nil {
			return errors.Configuration("spec", fmt.Sprintf("confounders[%d].type", i), err.(*errors.AppError).Message)
		}
		switch c.Target {
		case TargetDefault, TargetTest, TargetControls, TargetAll:
		default:
			return errors.Configuration("spec", fmt.Sprintf("confounders[%d].target", i), fmt.Sprintf("unknown target %q", c.Target))
		}
		if c.StartDay > s.PrePeriodDays+s.PostPeriodDays {
			return errors.Configuration("spec", fmt.Sprintf("confounders[%d].start_day", i), "start day beyond the end of the series")
		}
	}
	switch s.ControlMode {
	case "", ControlAuto, ControlSingle, ControlSynthetic:
	default:
		return errors.Configuration("spec", "control_mode", fmt.Sprintf("unknown control mode %q", s.ControlMode))
	}
	seen := map[string]bool{s.TestMarket: true}
	for _, id := range s.ControlMarkets {
		if seen[id] {
			return errors.Configuration("spec", "control_markets", fmt.Sprintf("market %q listed twice or equal to the test market", id))
		}
		seen[id] = true
	}
	return nil
}

// WithDefaults returns a copy with zero-valued optional fields filled in.
func (s ExperimentSpec) WithDefaults() ExperimentSpec {
	out := s
	out.ControlMarkets = append([]string(nil), s.ControlMarkets...)
	out.Confounders = append([]ConfounderSpec(nil), s.Confounders...)
	if out.Effect.Shape == "" {
		out.Effect.Shape = ShapeStep
	} else if shape, err := ParseEffectShape(string(s.Effect.Shape)); err == nil {
		out.Effect.Shape = shape
	}
	if out.Effect.RampDays == 0 {
		out.Effect.RampDays = DefaultRampDays
	}
	if out.Effect.DelayDays == 0 {
		out.Effect.DelayDays = DefaultDelayDays
	}
	if out.StartDate.IsZero() {
		out.StartDate = DefaultStartDate
	}
	if out.ControlMode == "" {
		out.ControlMode = ControlAuto
	}
	if out.TopK == 0 {
		out.TopK = DefaultTopK
	}
	if out.RidgePenalty == 0 {
		out.RidgePenalty = DefaultRidgePenalty
	}
	return out
}

// PrePeriod returns the day range before the intervention.
func (s ExperimentSpec) PrePeriod() Period { return Period{Start: 0, End: s.PrePeriodDays} }

// PostPeriod returns the day range from the intervention to the end.
func (s ExperimentSpec) PostPeriod() Period {
	return Period{Start: s.PrePeriodDays, End: s.PrePeriodDays + s.PostPeriodDays}
}

// TotalDays returns the length of every generated series.
func (s ExperimentSpec) TotalDays() int { return s.PrePeriodDays + s.PostPeriodDays }

// fieldPath turns "ExperimentSpec.Effect.RampDays" into "Effect.RampDays".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
