package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"geolift/app"
	"geolift/domain/experiment"
)

// RunMarkdown renders a run report: decision, estimate, fit, checks and the
// daily comparison.
func RunMarkdown(run *experiment.RunRecord) string {
	var b strings.Builder
	est := run.Estimate

	fmt.Fprintf(&b, "# Experiment %s\n\n", run.ID)
	fmt.Fprintf(&b, "**Recommendation: %s** (%s)\n\n", strings.ToUpper(string(run.Decision.Recommendation)), run.Decision.Rationale)

	b.WriteString("## Setup\n\n")
	b.WriteString("| field | value |\n|---|---|\n")
	if run.Spec.Template != "" {
		fmt.Fprintf(&b, "| template | %s |\n", run.Spec.Template)
	}
	fmt.Fprintf(&b, "| test market | %s |\n", run.Spec.TestMarket)
	fmt.Fprintf(&b, "| controls | %s (%s) |\n", strings.Join(run.Controls, ", "), run.ControlMode)
	fmt.Fprintf(&b, "| periods | %d pre / %d post days |\n", run.Spec.PrePeriodDays, run.Spec.PostPeriodDays)
	fmt.Fprintf(&b, "| effect | %s, requested %.2f%%, applied %.2f%% |\n",
		run.Metadata.Shape, run.Metadata.RequestedEffect*100, run.Metadata.AppliedEffect*100)
	fmt.Fprintf(&b, "| seed | %d |\n", run.Seed)
	fmt.Fprintf(&b, "| dataset | `%s` |\n\n", run.Metadata.DatasetHash)

	b.WriteString("## Estimate\n\n")
	b.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| cumulative effect | %.2f |\n", est.CumulativeEffect)
	fmt.Fprintf(&b, "| average daily effect | %.2f |\n", est.AverageDailyEffect)
	fmt.Fprintf(&b, "| effect | %+.2f%% |\n", est.EffectPct)
	fmt.Fprintf(&b, "| standard error | %.2f |\n", est.StandardError)
	fmt.Fprintf(&b, "| z | %.3f |\n", est.ZScore)
	fmt.Fprintf(&b, "| p-value | %.4f |\n", est.PValue)
	fmt.Fprintf(&b, "| %.0f%% interval | [%.2f, %.2f] |\n\n", (1-est.Alpha)*100, est.CILower, est.CIUpper)

	writeImpact(&b, ImpactOf(run))

	if w := run.Weights; w != nil {
		b.WriteString("## Synthetic control\n\n")
		b.WriteString("| market | weight |\n|---|---|\n")
		for _, id := range w.Order {
			fmt.Fprintf(&b, "| %s | %.4f |\n", id, w.Weights[id])
		}
		fmt.Fprintf(&b, "\nPre-period fit: correlation %.3f, R² %.3f, RMSE %.2f (%.1f%%).\n\n",
			w.Fit.Correlation, w.Fit.RSquared, w.Fit.RMSE, w.Fit.RMSEPct)
	}

	fmt.Fprintf(&b, "## Validity: %s\n\n", run.Report.Overall)
	b.WriteString("| check | status | value | threshold | detail |\n|---|---|---|---|---|\n")
	for _, c := range run.Report.Checks {
		fmt.Fprintf(&b, "| %s | %s | %.4g | %.4g | %s |\n", c.Name, c.Status, c.Value, c.Threshold, escapeCell(c.Detail))
	}
	b.WriteString("\n")

	if len(run.Daily) > 0 {
		b.WriteString("## Daily effects\n\n")
		b.WriteString("| date | actual | counterfactual | effect | cumulative |\n|---|---|---|---|---|\n")
		for _, d := range run.Daily {
			if d.Missing {
				fmt.Fprintf(&b, "| %s | missing | %.1f | | %.1f |\n", d.Date.Format("2006-01-02"), d.Counterfactual, d.Cumulative)
				continue
			}
			fmt.Fprintf(&b, "| %s | %.1f | %.1f | %+.1f | %.1f |\n",
				d.Date.Format("2006-01-02"), d.Actual, d.Counterfactual, d.Effect, d.Cumulative)
		}
	}
	return b.String()
}

// RevenuePerUnit lists the monetization scenarios of the impact projection,
// in currency per unit of the metric.
var RevenuePerUnit = []float64{2, 5, 10}

// Impact holds the detailed metrics and the rollout projection derived from
// a run's estimate and daily rows.
type Impact struct {
	PreMean            float64 `json:"pre_mean"`
	PostMean           float64 `json:"post_mean"`
	CounterfactualMean float64 `json:"counterfactual_mean"`
	PrePostChangePct   float64 `json:"pre_post_change_pct"`
	AbsoluteLift       float64 `json:"absolute_lift"`
	RelativeLiftPct    float64 `json:"relative_lift_pct"`
	DailyEffectPct     float64 `json:"daily_effect_pct"`
	Monthly            float64 `json:"monthly"`
	Annual             float64 `json:"annual"`
}

// ImpactOf derives the business impact of a run. Means skip missing days;
// projections scale the average daily effect to 30 and 365 days.
func ImpactOf(run *experiment.RunRecord) Impact {
	var actual, counterfactual []float64
	for _, d := range run.Daily {
		if d.Missing {
			continue
		}
		actual = append(actual, d.Actual)
		counterfactual = append(counterfactual, d.Counterfactual)
	}
	imp := Impact{
		PreMean:         run.Metadata.TestPreMean,
		AbsoluteLift:    run.Estimate.AverageDailyEffect,
		RelativeLiftPct: run.Estimate.EffectPct,
		Monthly:         run.Estimate.AverageDailyEffect * 30,
		Annual:          run.Estimate.AverageDailyEffect * 365,
	}
	if m, err := stats.Mean(actual); err == nil {
		imp.PostMean = m
	}
	if m, err := stats.Mean(counterfactual); err == nil {
		imp.CounterfactualMean = m
	}
	if imp.PreMean > 0 {
		imp.PrePostChangePct = (imp.PostMean - imp.PreMean) / imp.PreMean * 100
	}
	if imp.PostMean > 0 {
		imp.DailyEffectPct = imp.AbsoluteLift / imp.PostMean * 100
	}
	return imp
}

func writeImpact(b *strings.Builder, imp Impact) {
	b.WriteString("## Business impact\n\n")
	b.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(b, "| pre-period mean | %.1f |\n", imp.PreMean)
	fmt.Fprintf(b, "| post-period mean | %.1f (%+.2f%% vs pre) |\n", imp.PostMean, imp.PrePostChangePct)
	fmt.Fprintf(b, "| counterfactual mean | %.1f |\n", imp.CounterfactualMean)
	fmt.Fprintf(b, "| absolute lift | %+.1f per day |\n", imp.AbsoluteLift)
	fmt.Fprintf(b, "| relative lift | %+.2f%% |\n", imp.RelativeLiftPct)
	fmt.Fprintf(b, "| daily effect | %+.2f%% of post-period mean |\n\n", imp.DailyEffectPct)

	b.WriteString("Projected on rollout:\n\n")
	fmt.Fprintf(b, "- 30 days: %+.0f incremental\n", imp.Monthly)
	fmt.Fprintf(b, "- 365 days: %+.0f incremental\n", imp.Annual)
	for _, r := range RevenuePerUnit {
		fmt.Fprintf(b, "- at %.0f per unit: %+.0f per year\n", r, imp.Annual*r)
	}
	b.WriteString("\n")
}

// BatchMarkdown renders the aggregate statistics of a batch.
func BatchMarkdown(s *experiment.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Batch %s\n\n", s.ID)
	fmt.Fprintf(&b, "%d runs: %d succeeded, %d failed. Win rate %.1f%%.\n\n", s.Total, s.Succeeded, s.Failed, s.WinRate*100)

	b.WriteString("## Decisions\n\n| recommendation | runs |\n|---|---|\n")
	for _, r := range []experiment.Recommendation{experiment.Ship, experiment.Continue, experiment.DoNotShip} {
		fmt.Fprintf(&b, "| %s | %d |\n", r, s.Decisions[r])
	}

	e := s.Effect
	b.WriteString("\n## Effect distribution (%)\n\n")
	b.WriteString("| mean | std | min | Q1 | median | Q3 | max |\n|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %.2f | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n", e.Mean, e.Std, e.Min, e.Q1, e.Median, e.Q3, e.Max)

	sig := s.Significance
	b.WriteString("\n## Significance\n\n| p < 0.05 | 0.05 ≤ p < 0.10 | p ≥ 0.10 |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d |\n", sig.Below05, sig.Below10, sig.Above10)

	if len(s.ErrorKinds) > 0 {
		b.WriteString("\n## Failures\n\n| kind | runs |\n|---|---|\n")
		for _, kind := range sortedKeys(s.ErrorKinds) {
			fmt.Fprintf(&b, "| %s | %d |\n", kind, s.ErrorKinds[kind])
		}
	}
	return b.String()
}

// DesignMarkdown renders a test plan with its power curve.
func DesignMarkdown(d *app.DesignResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test design: %s\n\n", d.TestMarket)
	fmt.Fprintf(&b, "Baseline mean %.1f, std %.1f (CV %.3f) over %d days.\n\n",
		d.Baseline.Mean, d.Baseline.Std, d.Baseline.CV, d.Baseline.Observations)
	fmt.Fprintf(&b, "Detecting a %.1f%% effect at α = %.2f with %.0f%% power needs **%d days**.\n\n",
		d.Plan.MDE*100, d.Plan.Alpha, d.Plan.Power*100, d.Plan.RequiredDays)
	fmt.Fprintf(&b, "Planned %d days: %s\n\n", d.Planned.Days, d.Planned.Explanation)

	b.WriteString("## Candidate controls\n\n| rank | market | distance | correlation |\n|---|---|---|---|\n")
	for _, c := range d.Candidates {
		fmt.Fprintf(&b, "| %d | %s | %.3f | %.3f |\n", c.Rank, c.Market, c.Distance, c.Correlation)
	}

	b.WriteString("\n## Power curve\n\n| days | power | status |\n|---|---|---|\n")
	for _, a := range d.Curve {
		fmt.Fprintf(&b, "| %d | %.3f | %s |\n", a.Days, a.Power, a.Status)
	}
	return b.String()
}

// ToHTML converts a Markdown report into a complete HTML page.
func ToHTML(title string, md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank,
	})
	return markdown.ToHTML(md, p, renderer)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
