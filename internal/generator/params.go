package generator

// Parameter ranges for the synthetic baseline and its disturbances.
const (
	BaselineMeanMin = 500.0
	BaselineMeanMax = 5000.0

	// MaxWeeklyDrift bounds the trend's expected weekly change.
	MaxWeeklyDrift = 0.005

	SeasonalityMin = 0.10
	SeasonalityMax = 0.15

	NoiseMin = 0.05
	NoiseMax = 0.08

	ControlCorrelationMin = 0.80
	ControlCorrelationMax = 0.95

	ControlScaleMin = 0.7
	ControlScaleMax = 1.3

	// EffectJitter widens the requested magnitude to U(1-j, 1+j) times itself.
	EffectJitter = 0.20
)

// ==========================================
// CONFOUNDER DEFAULTS
// ==========================================

const (
	AlgorithmUpdateDropMin = 0.15
	AlgorithmUpdateDropMax = 0.25
	AlgorithmUpdateDays    = 7

	SeasonalitySpikeBoost = 0.20
	SeasonalitySpikeDays  = 5

	TrackingBreakProbability = 0.30
	TrackingBreakDays        = 3
)
