package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"geolift/domain/experiment"
)

const (
	sheetSummary = "Summary"
	sheetDaily   = "Daily"
	sheetChecks  = "Checks"
	sheetRuns    = "Runs"
)

// RunWorkbook writes a workbook with the run summary, daily effects and
// validity checks on separate sheets.
func RunWorkbook(w io.Writer, run *experiment.RunRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	est := run.Estimate
	summary := [][]interface{}{
		{"run_id", run.ID.String()},
		{"template", run.Spec.Template},
		{"test_market", run.Spec.TestMarket},
		{"controls", fmt.Sprint(run.Controls)},
		{"control_mode", string(run.ControlMode)},
		{"seed", run.Seed},
		{"applied_effect", run.Metadata.AppliedEffect},
		{"cumulative_effect", est.CumulativeEffect},
		{"effect_pct", est.EffectPct},
		{"standard_error", est.StandardError},
		{"z_score", est.ZScore},
		{"p_value", est.PValue},
		{"ci_lower", est.CILower},
		{"ci_upper", est.CIUpper},
		{"recommendation", string(run.Decision.Recommendation)},
		{"validity", string(run.Report.Overall)},
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}

	daily := [][]interface{}{toRow(dailyHeader)}
	for _, d := range run.Daily {
		daily = append(daily, []interface{}{d.Date.Format("2006-01-02"), d.Actual, d.Counterfactual, d.Effect, d.Cumulative, d.Missing})
	}
	if err := writeSheet(f, sheetDaily, daily); err != nil {
		return err
	}

	checks := [][]interface{}{{"name", "status", "value", "threshold", "detail"}}
	for _, c := range run.Report.Checks {
		checks = append(checks, []interface{}{c.Name, string(c.Status), c.Value, c.Threshold, c.Detail})
	}
	if err := writeSheet(f, sheetChecks, checks); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// BatchWorkbook writes the aggregate statistics and one row per run.
func BatchWorkbook(w io.Writer, summary *experiment.BatchSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	e := summary.Effect
	rows := [][]interface{}{
		{"batch_id", summary.ID.String()},
		{"total", summary.Total},
		{"succeeded", summary.Succeeded},
		{"failed", summary.Failed},
		{"win_rate", summary.WinRate},
		{"ship", summary.Decisions[experiment.Ship]},
		{"continue", summary.Decisions[experiment.Continue]},
		{"do_not_ship", summary.Decisions[experiment.DoNotShip]},
		{"effect_mean", e.Mean},
		{"effect_std", e.Std},
		{"effect_min", e.Min},
		{"effect_q1", e.Q1},
		{"effect_median", e.Median},
		{"effect_q3", e.Q3},
		{"effect_max", e.Max},
		{"p_lt_0_05", summary.Significance.Below05},
		{"p_0_05_to_0_10", summary.Significance.Below10},
		{"p_ge_0_10", summary.Significance.Above10},
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}

	runs := [][]interface{}{toRow(batchHeader)}
	for _, r := range summary.Runs {
		runs = append(runs, []interface{}{
			r.Index, r.RunID.String(), r.Seed, r.TestMarket, r.Magnitude, string(r.Shape),
			r.PostPeriodDays, r.Confounders, string(r.ControlMode), r.EffectPct, r.PValue,
			r.ZScore, string(r.Recommendation), string(r.Validity), r.ErrorKind, r.Error,
		})
	}
	if err := writeSheet(f, sheetRuns, runs); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	if err := writeRows(f, name, rows); err != nil {
		return err
	}
	return f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toRow(header []string) []interface{} {
	out := make([]interface{}, len(header))
	for i, h := range header {
		out[i] = h
	}
	return out
}
