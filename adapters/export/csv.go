package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"geolift/domain/experiment"
)

var dailyHeader = []string{"date", "actual", "counterfactual", "effect", "cumulative", "missing"}

var batchHeader = []string{
	"index", "run_id", "seed", "test_market", "magnitude", "shape", "post_period_days",
	"confounders", "control_mode", "effect_pct", "p_value", "z_score", "recommendation",
	"validity", "error_kind", "error",
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// DailyCSV writes the post-period daily comparison of a run.
func DailyCSV(w io.Writer, run *experiment.RunRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dailyHeader); err != nil {
		return err
	}
	for _, d := range run.Daily {
		rec := []string{
			d.Date.Format("2006-01-02"),
			ftoa(d.Actual),
			ftoa(d.Counterfactual),
			ftoa(d.Effect),
			ftoa(d.Cumulative),
			strconv.FormatBool(d.Missing),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BatchCSV writes one row per batch run.
func BatchCSV(w io.Writer, summary *experiment.BatchSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(batchHeader); err != nil {
		return err
	}
	for _, r := range summary.Runs {
		if err := cw.Write(batchRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func batchRecord(r experiment.BatchRun) []string {
	return []string{
		strconv.Itoa(r.Index),
		r.RunID.String(),
		strconv.FormatInt(r.Seed, 10),
		r.TestMarket,
		ftoa(r.Magnitude),
		string(r.Shape),
		strconv.Itoa(r.PostPeriodDays),
		strconv.Itoa(r.Confounders),
		string(r.ControlMode),
		ftoa(r.EffectPct),
		ftoa(r.PValue),
		ftoa(r.ZScore),
		string(r.Recommendation),
		string(r.Validity),
		r.ErrorKind,
		r.Error,
	}
}
