package diagnostics

// diagnostics_const.go
//
// Thresholds for the validity checks. Each block lists the value that turns a
// check yellow and the value that turns it red.

// ============================================================================
// 1. PRE-PERIOD CORRELATION
// ============================================================================

const (
	CorrelationPass = 0.85
	CorrelationWarn = 0.60
)

// ============================================================================
// 2. TREND ALIGNMENT (slopes in percent of the series mean per day)
// ============================================================================

const (
	// FlatSlopePct treats slopes smaller than this as having no sign.
	FlatSlopePct = 0.02

	TrendGapWarnPct = 0.10
)

// ============================================================================
// 3. OUTLIERS (robust z on pre-period residuals)
// ============================================================================

const (
	// MADScale makes the median absolute deviation consistent with a normal sd.
	MADScale = 1.4826

	OutlierZ = 3.5

	// BoundaryDays is the window before the intervention where an outlier is
	// treated as a failure rather than a warning.
	BoundaryDays = 7
)

// ============================================================================
// 4. PLACEBO
// ============================================================================

const (
	// DefaultPlaceboDay is the fake intervention index inside the pre-period.
	DefaultPlaceboDay = 45

	// PlaceboWarnPct warns on placebo effects that are visible but not decisive.
	PlaceboWarnPct = 1.0
)

// ============================================================================
// 5. DROP-ONE-CONTROL SENSITIVITY
// ============================================================================

const (
	DropOneWarnDeviation = 0.50

	// DropOneMagnitudeOrders fails a removal that moves the effect by a
	// factor of ten or more.
	DropOneMagnitudeOrders = 1.0

	// DropOneNoiseSE is the half-width, in standard errors of the full
	// estimate, of the band around zero where sign and magnitude are noise.
	DropOneNoiseSE = 1.0
)

// ============================================================================
// 6. SYNTHETIC FIT RMSE (percent of the test mean)
// ============================================================================

const (
	RMSEPctPass = 10.0
	RMSEPctWarn = 15.0
)

// Check names as they appear in reports and persisted rows.
const (
	CheckCorrelation = "pre_period_correlation"
	CheckTrend       = "trend_alignment"
	CheckOutliers    = "outliers"
	CheckPlacebo     = "placebo"
	CheckDropOne     = "drop_one_control"
	CheckFitRMSE     = "synthetic_fit_rmse"
)
