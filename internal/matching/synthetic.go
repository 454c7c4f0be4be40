package matching

import (
	stderrors "errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// ErrTooFewControls is returned when a synthetic control is requested with
// fewer than two candidates. Callers fall back to single best-match mode.
var ErrTooFewControls = errors.InsufficientData("matching", "synthetic control needs at least 2 candidate controls")

// IsTooFewControls reports whether err is (or wraps) ErrTooFewControls.
func IsTooFewControls(err error) bool { return stderrors.Is(err, ErrTooFewControls) }

// maxCondition rejects ridge systems that are numerically singular.
const maxCondition = 1e12

// SyntheticMarket is the market id given to combined control series.
const SyntheticMarket = "synthetic_control"

// BuildSyntheticControl fits testPre as an unconstrained linear combination
// of candidatesPre by minimizing ||y - Xw||² + penalty·||w||² with no
// intercept. Only days observed in every series enter the fit, and only the
// series passed in are read, so callers pass pre-period slices.
func BuildSyntheticControl(testPre experiment.TimeSeries, candidatesPre []experiment.TimeSeries, penalty float64) (*experiment.SyntheticControlWeights, error) {
	if len(candidatesPre) < 2 {
		return nil, ErrTooFewControls
	}
	if penalty < 0 || math.IsNaN(penalty) {
		return nil, errors.Configuration("matching", "ridge_penalty", fmt.Sprintf("penalty must be >= 0, got %v", penalty))
	}

	y, X, rows, err := designMatrix(testPre, candidatesPre)
	if err != nil {
		return nil, err
	}
	k := len(candidatesPre)

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	for i := 0; i < k; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+penalty)
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, errors.NumericalFit("matching", "ridge system is not positive definite; candidates are collinear")
	}
	if c := chol.Cond(); c > maxCondition || math.IsInf(c, 0) {
		return nil, errors.NumericalFit("matching", fmt.Sprintf("ridge system is ill-conditioned (condition %.3g)", c))
	}
	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return nil, errors.NumericalFit("matching", err.Error())
	}

	result := &experiment.SyntheticControlWeights{
		Weights: make(map[string]float64, k),
		Order:   make([]string, k),
		Penalty: penalty,
	}
	for j, c := range candidatesPre {
		wj := w.AtVec(j)
		if math.IsNaN(wj) || math.IsInf(wj, 0) {
			return nil, errors.NumericalFit("matching", "ridge solution is not finite")
		}
		result.Order[j] = c.Market
		result.Weights[c.Market] = wj
	}

	var pred mat.VecDense
	pred.MulVec(X, &w)
	fit, err := evaluate(y.RawVector().Data, pred.RawVector().Data)
	if err != nil {
		return nil, err
	}
	fit.Observations = rows
	result.Fit = fit
	return result, nil
}

// designMatrix stacks the observed days shared by every series. It rejects
// candidates that are all zero, constant, or non-finite.
func designMatrix(test experiment.TimeSeries, cands []experiment.TimeSeries) (*mat.VecDense, *mat.Dense, int, error) {
	n := test.Len()
	for _, c := range cands {
		if c.Len() != n {
			return nil, nil, 0, errors.Configuration("matching", "candidates",
				fmt.Sprintf("candidate %s has %d days, test has %d", c.Market, c.Len(), n))
		}
	}

	var ys []float64
	var xs []float64
	for i := 0; i < n; i++ {
		if test.Points[i].Missing {
			continue
		}
		skip := false
		for _, c := range cands {
			if c.Points[i].Missing {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		ys = append(ys, test.Points[i].Value)
		for _, c := range cands {
			xs = append(xs, c.Points[i].Value)
		}
	}
	rows := len(ys)
	if rows < 3 {
		return nil, nil, 0, errors.InsufficientData("matching", fmt.Sprintf("only %d pre-period days observed in every series", rows))
	}

	k := len(cands)
	X := mat.NewDense(rows, k, xs)
	for j, c := range cands {
		col := mat.Col(nil, j, X)
		if err := checkColumn(c.Market, col); err != nil {
			return nil, nil, 0, err
		}
	}
	for _, v := range ys {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, 0, errors.NumericalFit("matching", "test series contains non-finite values")
		}
	}
	return mat.NewVecDense(rows, ys), X, rows, nil
}

func checkColumn(market string, col []float64) error {
	allZero := true
	for _, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NumericalFit("matching", fmt.Sprintf("candidate %s contains non-finite values", market))
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return errors.NumericalFit("matching", fmt.Sprintf("candidate %s is all zero", market))
	}
	sd, err := stats.StandardDeviationPopulation(col)
	if err != nil || sd == 0 {
		return errors.NumericalFit("matching", fmt.Sprintf("candidate %s has zero variance", market))
	}
	return nil
}

// Combine applies weights to the full control series. A day is missing when
// any weighted control is missing on it.
func Combine(w *experiment.SyntheticControlWeights, controls map[string]experiment.TimeSeries) (experiment.TimeSeries, error) {
	if w == nil || len(w.Order) == 0 {
		return experiment.TimeSeries{}, errors.Configuration("matching", "weights", "no weights to combine")
	}
	first, ok := controls[w.Order[0]]
	if !ok {
		return experiment.TimeSeries{}, errors.Configuration("matching", "weights", fmt.Sprintf("missing series for %s", w.Order[0]))
	}
	out := experiment.TimeSeries{Market: SyntheticMarket, Points: make([]experiment.Point, first.Len())}
	for i := range out.Points {
		out.Points[i].Date = first.Points[i].Date
	}
	for _, id := range w.Order {
		s, ok := controls[id]
		if !ok {
			return experiment.TimeSeries{}, errors.Configuration("matching", "weights", fmt.Sprintf("missing series for %s", id))
		}
		if !experiment.Aligned(first, s) {
			return experiment.TimeSeries{}, errors.Configuration("matching", "weights", fmt.Sprintf("series %s is not aligned with %s", id, first.Market))
		}
		wt := w.Weights[id]
		for i, p := range s.Points {
			out.Points[i].Value += wt * p.Value
			if p.Missing {
				out.Points[i].Missing = true
			}
		}
	}
	for i := range out.Points {
		if out.Points[i].Missing {
			out.Points[i].Value = 0
		}
	}
	return out, nil
}
