package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"geolift/app"
	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/matching"
	"geolift/internal/power"
	"geolift/internal/testkit"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json": FormatJSON, ".csv": FormatCSV, "XLSX": FormatXLSX, "excel": FormatXLSX,
		"md": FormatMarkdown, "markdown": FormatMarkdown, ".html": FormatHTML,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	f, err := FormatFromPath("/tmp/report.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
}

func TestDailyCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Run(&buf, testkit.SampleRun(), FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, dailyHeader, records[0])
	assert.Equal(t, []string{"2024-11-30", "1100", "1000", "100", "100", "false"}, records[1])
	assert.Equal(t, "true", records[3][5])
}

func TestBatchCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Batch(&buf, testkit.SampleBatch(), FormatCSV))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "charlie", records[3][3])
	assert.Equal(t, errors.CodeInsufficientData, records[3][14])
}

func TestRunWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Run(&buf, testkit.SampleRun(), FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheetSummary, sheetDaily, sheetChecks}, f.GetSheetList())

	rows, err := f.GetRows(sheetDaily)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "counterfactual", rows[0][2])

	val, err := f.GetCellValue(sheetSummary, "B3")
	require.NoError(t, err)
	assert.Equal(t, "alpha", val)

	checks, err := f.GetRows(sheetChecks)
	require.NoError(t, err)
	assert.Len(t, checks, 3)
}

func TestBatchWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Batch(&buf, testkit.SampleBatch(), FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheetRuns)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	total, err := f.GetCellValue(sheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "3", total)
}

func TestRunMarkdownAndHTML(t *testing.T) {
	run := testkit.SampleRun()
	md := RunMarkdown(run)
	assert.Contains(t, md, "**Recommendation: SHIP**")
	assert.Contains(t, md, "| bravo | 0.6200 |")
	assert.Contains(t, md, "## Validity: warn")
	assert.Contains(t, md, "| missing |")

	var buf bytes.Buffer
	require.NoError(t, Run(&buf, run, FormatHTML))
	page := buf.String()
	assert.Contains(t, page, "<title>Experiment "+run.ID.String()+"</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "Recommendation: SHIP")
	assert.Contains(t, page, "Business impact")
}

func TestImpactOf(t *testing.T) {
	imp := ImpactOf(testkit.SampleRun())
	assert.Equal(t, 980.0, imp.PreMean)
	assert.InDelta(t, 1110, imp.PostMean, 1e-9, "missing day skipped")
	assert.InDelta(t, 1005, imp.CounterfactualMean, 1e-9)
	assert.InDelta(t, 13.2653, imp.PrePostChangePct, 1e-3)
	assert.Equal(t, 105.0, imp.AbsoluteLift)
	assert.Equal(t, 10.34, imp.RelativeLiftPct)
	assert.InDelta(t, 9.4595, imp.DailyEffectPct, 1e-3)
	assert.Equal(t, 3150.0, imp.Monthly)
	assert.Equal(t, 38325.0, imp.Annual)

	md := RunMarkdown(testkit.SampleRun())
	assert.Contains(t, md, "## Business impact")
	assert.Contains(t, md, "| post-period mean | 1110.0 (+13.27% vs pre) |")
	assert.Contains(t, md, "| daily effect | +9.46% of post-period mean |")
	assert.Contains(t, md, "- 365 days: +38325 incremental")
	assert.Contains(t, md, "- at 2 per unit: +76650 per year")
	assert.Contains(t, md, "- at 10 per unit: +383250 per year")

	empty := ImpactOf(&experiment.RunRecord{})
	assert.Zero(t, empty.PostMean)
	assert.Zero(t, empty.DailyEffectPct)
	assert.Zero(t, empty.PrePostChangePct)
}

func TestBatchMarkdown(t *testing.T) {
	md := BatchMarkdown(testkit.SampleBatch())
	assert.Contains(t, md, "3 runs: 2 succeeded, 1 failed. Win rate 33.3%.")
	assert.Contains(t, md, "| ship | 1 |")
	assert.Contains(t, md, "| "+errors.CodeInsufficientData+" | 1 |")
}

func TestDesignExport(t *testing.T) {
	d := &app.DesignResult{
		TestMarket: "alpha",
		Candidates: []matching.Candidate{{Rank: 1, Market: "bravo", Distance: 1.0, Correlation: 0.9}},
		Baseline:   power.Baseline{Mean: 1000, Std: 150, CV: 0.15, Observations: 60},
		Plan:       power.Plan{Alpha: 0.05, Power: 0.8, MDE: 0.08, RequiredDays: 56},
		Planned:    power.Assessment{Days: 42, Power: 0.71, Status: power.StatusMedium, Explanation: "71.0% power"},
		Curve:      []power.Assessment{{Days: 28, Power: 0.52, Status: power.StatusLow}},
	}
	md := DesignMarkdown(d)
	assert.Contains(t, md, "needs **56 days**")
	assert.Contains(t, md, "| 1 | bravo |")

	var buf bytes.Buffer
	require.NoError(t, Design(&buf, d, FormatJSON))
	var back app.DesignResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, 56, back.Plan.RequiredDays)

	err := Design(&buf, d, FormatCSV)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}

func TestRunJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Run(&buf, testkit.SampleRun(), FormatJSON))
	var back experiment.RunRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, experiment.Ship, back.Decision.Recommendation)
}
