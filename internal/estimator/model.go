// Package estimator fits a counterfactual for the test market from its
// controls over the pre-period and measures the post-period effect against
// it.
package estimator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// MinPreObservations is the fewest observed pre-period days a fit accepts.
const MinPreObservations = 14

// maxCondition rejects normal equations that are numerically singular.
const maxCondition = 1e12

// Model is a fitted linear counterfactual: test ≈ Intercept + Σ Coefficients[j]·control_j.
// It is a plain value so callers can reuse it for prediction.
type Model struct {
	Intercept    float64           `json:"intercept"`
	Coefficients []float64         `json:"coefficients"`
	Controls     []string          `json:"controls"`
	Pre          experiment.Period `json:"pre"`
	Observations int               `json:"observations"`
	ResidualStd  float64           `json:"residual_std"`
	RSquared     float64           `json:"r_squared"`
}

// PredictAt returns the model's prediction for one day given the control
// values on that day, in Controls order.
func (m *Model) PredictAt(values []float64) float64 {
	y := m.Intercept
	for j, c := range m.Coefficients {
		y += c * values[j]
	}
	return y
}

// Predict returns one prediction per day of the controls and a mask that is
// false on days where any control is missing.
func (m *Model) Predict(controls []experiment.TimeSeries) ([]float64, []bool, error) {
	if len(controls) != len(m.Coefficients) {
		return nil, nil, errors.Configuration("estimator", "controls",
			fmt.Sprintf("model has %d coefficients, got %d controls", len(m.Coefficients), len(controls)))
	}
	n := controls[0].Len()
	pred := make([]float64, n)
	ok := make([]bool, n)
	row := make([]float64, len(controls))
	for i := 0; i < n; i++ {
		ok[i] = true
		for j, c := range controls {
			if c.Len() != n {
				return nil, nil, errors.Configuration("estimator", "controls", "control series differ in length")
			}
			row[j] = c.Points[i].Value
			if c.Points[i].Missing {
				ok[i] = false
			}
		}
		pred[i] = m.PredictAt(row)
	}
	return pred, ok, nil
}

// Residuals returns actual minus predicted on the observed days of p.
func (m *Model) Residuals(test experiment.TimeSeries, controls []experiment.TimeSeries, p experiment.Period) ([]float64, []int, error) {
	pred, ok, err := m.Predict(controls)
	if err != nil {
		return nil, nil, err
	}
	var res []float64
	var days []int
	for i := p.Start; i < p.End && i < test.Len(); i++ {
		if !ok[i] || test.Points[i].Missing {
			continue
		}
		res = append(res, test.Points[i].Value-pred[i])
		days = append(days, i)
	}
	return res, days, nil
}

// Fit regresses test on controls with an intercept using only the observed
// days inside pre. Post-period values are never read.
func Fit(test experiment.TimeSeries, controls []experiment.TimeSeries, pre experiment.Period) (*Model, error) {
	if len(controls) == 0 {
		return nil, errors.Configuration("estimator", "controls", "at least one control series is required")
	}
	if pre.Start < 0 || pre.End > test.Len() || pre.Len() <= 0 {
		return nil, errors.Configuration("estimator", "pre_period",
			fmt.Sprintf("pre-period [%d,%d) outside series of %d days", pre.Start, pre.End, test.Len()))
	}
	for _, c := range controls {
		if !experiment.Aligned(test, c) {
			return nil, errors.Configuration("estimator", "controls", fmt.Sprintf("control %s is not aligned with the test series", c.Market))
		}
	}

	y, cols := observedRows(test, controls, pre)
	if len(y) < MinPreObservations {
		return nil, errors.InsufficientData("estimator",
			fmt.Sprintf("pre-period has %d observed days, need at least %d", len(y), MinPreObservations))
	}
	for j, col := range cols {
		sd, err := stats.StandardDeviationPopulation(col)
		if err != nil || sd == 0 || math.IsNaN(sd) {
			return nil, errors.NumericalFit("estimator", fmt.Sprintf("control %s is constant over the pre-period", controls[j].Market))
		}
	}

	m := &Model{Pre: pre, Observations: len(y)}
	for _, c := range controls {
		m.Controls = append(m.Controls, c.Market)
	}

	if len(cols) == 1 {
		alpha, beta := stat.LinearRegression(cols[0], y, nil, false)
		m.Intercept = alpha
		m.Coefficients = []float64{beta}
	} else {
		coef, err := solveOLS(y, cols)
		if err != nil {
			return nil, err
		}
		m.Intercept = coef[0]
		m.Coefficients = coef[1:]
	}
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return nil, errors.NumericalFit("estimator", "regression produced a non-finite intercept")
	}
	for _, c := range m.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.NumericalFit("estimator", "regression produced a non-finite coefficient")
		}
	}

	residuals := make([]float64, len(y))
	row := make([]float64, len(cols))
	for i := range y {
		for j := range cols {
			row[j] = cols[j][i]
		}
		residuals[i] = y[i] - m.PredictAt(row)
	}
	m.ResidualStd, _ = stats.StandardDeviationPopulation(residuals)
	m.RSquared = stat.RSquaredFrom(predictedFrom(y, residuals), y, nil)
	return m, nil
}

// observedRows collects the days of p on which test and every control are observed.
func observedRows(test experiment.TimeSeries, controls []experiment.TimeSeries, p experiment.Period) ([]float64, [][]float64) {
	cols := make([][]float64, len(controls))
	var y []float64
	for i := p.Start; i < p.End; i++ {
		if test.Points[i].Missing {
			continue
		}
		skip := false
		for _, c := range controls {
			if c.Points[i].Missing {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		y = append(y, test.Points[i].Value)
		for j, c := range controls {
			cols[j] = append(cols[j], c.Points[i].Value)
		}
	}
	return y, cols
}

// solveOLS fits on mean-centered columns so the intercept does not inflate
// the condition number, then recovers [intercept, coefficients...].
func solveOLS(y []float64, cols [][]float64) ([]float64, error) {
	n, k := len(y), len(cols)
	means := make([]float64, k)
	X := mat.NewDense(n, k, nil)
	for j, col := range cols {
		means[j] = stat.Mean(col, nil)
		for i, v := range col {
			X.Set(i, j, v-means[j])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(n, yc))

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, errors.NumericalFit("estimator", "controls are collinear over the pre-period")
	}
	if c := chol.Cond(); c > maxCondition || math.IsInf(c, 0) {
		return nil, errors.NumericalFit("estimator", fmt.Sprintf("controls are nearly collinear (condition %.3g)", c))
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, errors.NumericalFit("estimator", err.Error())
	}

	out := make([]float64, k+1)
	out[0] = yMean
	for j := 0; j < k; j++ {
		out[j+1] = beta.AtVec(j)
		out[0] -= out[j+1] * means[j]
	}
	return out, nil
}

func predictedFrom(y, residuals []float64) []float64 {
	out := make([]float64, len(y))
	for i := range y {
		out[i] = y[i] - residuals[i]
	}
	return out
}
