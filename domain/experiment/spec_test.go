package experiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/internal/errors"
)

func validSpec() ExperimentSpec {
	return ExperimentSpec{
		TestMarket:     "chicago",
		PrePeriodDays:  90,
		PostPeriodDays: 30,
		Effect:         EffectSpec{Magnitude: 0.08, Shape: ShapeStep},
	}
}

func TestValidate_AcceptsMinimalSpec(t *testing.T) {
	require.NoError(t, validSpec().Validate())
}

func TestValidate_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*ExperimentSpec)
		field string
	}{
		{"negative pre period", func(s *ExperimentSpec) { s.PrePeriodDays = -5 }, "PrePeriodDays"},
		{"zero post period", func(s *ExperimentSpec) { s.PostPeriodDays = 0 }, "PostPeriodDays"},
		{"missing test market", func(s *ExperimentSpec) { s.TestMarket = "" }, "TestMarket"},
		{"unknown shape", func(s *ExperimentSpec) { s.Effect.Shape = "exponential" }, "effect.shape"},
		{"unknown confounder", func(s *ExperimentSpec) {
			s.Confounders = []ConfounderSpec{{Type: "solar_flare"}}
		}, "confounders[0].type"},
		{"unknown target", func(s *ExperimentSpec) {
			s.Confounders = []ConfounderSpec{{Type: TrackingBreak, Target: "everyone"}}
		}, "confounders[0].target"},
		{"correlation of one", func(s *ExperimentSpec) { s.ControlCorrelation = 1 }, "ControlCorrelation"},
		{"duplicate control", func(s *ExperimentSpec) { s.ControlMarkets = []string{"dallas", "dallas"} }, "control_markets"},
		{"control equals test", func(s *ExperimentSpec) { s.ControlMarkets = []string{"chicago"} }, "control_markets"},
		{"unknown control mode", func(s *ExperimentSpec) { s.ControlMode = "magic" }, "control_mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mut(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
			appErr, ok := err.(*errors.AppError)
			require.True(t, ok)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestParseEffectShape_Alias(t *testing.T) {
	shape, err := ParseEffectShape("delayed_step")
	require.NoError(t, err)
	assert.Equal(t, ShapeDelayed, shape)
}

func TestWithDefaults(t *testing.T) {
	s := validSpec().WithDefaults()
	assert.Equal(t, DefaultRampDays, s.Effect.RampDays)
	assert.Equal(t, DefaultDelayDays, s.Effect.DelayDays)
	assert.Equal(t, DefaultStartDate, s.StartDate)
	assert.Equal(t, ControlAuto, s.ControlMode)
	assert.Equal(t, DefaultTopK, s.TopK)
	assert.Equal(t, DefaultRidgePenalty, s.RidgePenalty)
	assert.Equal(t, Period{Start: 90, End: 120}, s.PostPeriod())
	assert.Equal(t, 120, s.TotalDays())
}

func TestTimeSeriesHelpers(t *testing.T) {
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	ts := TimeSeries{Market: "x"}
	for i := 0; i < 5; i++ {
		ts.Points = append(ts.Points, Point{Date: start.AddDate(0, 0, i), Value: float64(i + 1), Missing: i == 2})
	}

	assert.True(t, ts.Contiguous())
	assert.Equal(t, []float64{1, 2, 4, 5}, ts.Observed())
	assert.Equal(t, 1, ts.MissingCount())

	sub, err := ts.Slice(Period{Start: 1, End: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Len())
	sub.Points[0].Value = 99
	assert.Equal(t, 2.0, ts.Points[1].Value, "slice must not alias the source")

	_, err = ts.Slice(Period{Start: 3, End: 9})
	assert.Error(t, err)

	gap := ts.Clone()
	gap.Points[4].Date = gap.Points[4].Date.AddDate(0, 0, 1)
	assert.False(t, gap.Contiguous())
	assert.False(t, Aligned(ts, gap))

	xs, ys := PairedObserved(ts, ts, Period{Start: 0, End: 5})
	assert.Len(t, xs, 4)
	assert.Equal(t, xs, ys)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusPass, Worst())
	assert.Equal(t, StatusWarn, Worst(StatusPass, StatusWarn))
	assert.Equal(t, StatusFail, Worst(StatusWarn, StatusFail, StatusPass))
}

func TestTemplateNewSpec(t *testing.T) {
	tpl := Template{
		ID: "seo", PrimaryMetric: "organic_sessions", DefaultMDE: 0.08,
		DefaultConfounders: []ConfounderType{AlgorithmUpdate},
		PrePeriodDays:      90, PostPeriodDays: 30,
	}
	s := tpl.NewSpec("chicago", true)
	assert.Equal(t, ShapeStep, s.Effect.Shape)
	assert.Len(t, s.Confounders, 1)
	require.NoError(t, s.Validate())
	assert.Empty(t, tpl.NewSpec("chicago", false).Confounders)
}

func TestTemplateFill(t *testing.T) {
	tpl := Template{
		ID: "seo", PrimaryMetric: "organic_sessions", DefaultMDE: 0.08, DefaultShape: ShapeRamp,
		PrePeriodDays: 90, PostPeriodDays: 30,
	}
	s := tpl.Fill(ExperimentSpec{TestMarket: "chicago", PostPeriodDays: 45}, false)
	assert.Equal(t, "seo", s.Template)
	assert.Equal(t, "organic_sessions", s.Metric)
	assert.Equal(t, 90, s.PrePeriodDays)
	assert.Equal(t, 45, s.PostPeriodDays)
	assert.Equal(t, EffectSpec{Magnitude: 0.08, Shape: ShapeRamp}, s.Effect)

	summary := (&RunRecord{Spec: s, BatchID: "b-1"}).Summary()
	require.NotNil(t, summary.BatchID)
	assert.Equal(t, "b-1", *summary.BatchID)
	assert.Equal(t, "chicago", summary.TestMarket)
}
