package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// execute runs the CLI with a clean environment and no database.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEMPLATES_FILE", "")
	t.Setenv("MARKETS_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand_JSON(t *testing.T) {
	out, err := execute(t, "run", "--market", "chicago", "--mde", "0.10", "--pre", "90", "--post", "30", "--seed", "42", "-o", "json")
	require.NoError(t, err, out)

	var rec experiment.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec), out)
	assert.Equal(t, "chicago", rec.Spec.TestMarket)
	assert.Equal(t, int64(42), rec.Seed)
	assert.Equal(t, experiment.Ship, rec.Decision.Recommendation)
}

func TestRunCommand_TemplateAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.xlsx")
	out, err := execute(t, "run", "--template", "title_tag_optimization", "--market", "chicago", "--export", path)
	require.NoError(t, err, out)
	assert.Contains(t, out, "# Experiment")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Daily")
}

func TestRunCommand_ExplicitZeroEffectOverridesTemplate(t *testing.T) {
	out, err := execute(t, "run", "--template", "title_tag_optimization", "--market", "chicago", "--mde", "0", "-o", "json")
	require.NoError(t, err, out)
	var rec experiment.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Zero(t, rec.Spec.Effect.Magnitude)
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, "run", "--market", "atlantis", "--pre", "90", "--post", "30")
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	_, err = execute(t, "run", "--market", "chicago", "--pre", "90", "--post", "30", "--shape", "wave")
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	_, err = execute(t, "run", "--market", "chicago", "--pre", "90", "--post", "30", "-o", "xlsx")
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	_, err = execute(t, "run", "--pre", "90")
	assert.Error(t, err, "market is required")
}

func TestDesignCommand(t *testing.T) {
	out, err := execute(t, "design", "--market", "chicago", "--mde", "0.08", "--pre", "90", "--post", "42", "-o", "json")
	require.NoError(t, err, out)
	var res struct {
		TestMarket string `json:"test_market"`
		Plan       struct {
			RequiredDays int     `json:"required_days"`
			Alpha        float64 `json:"alpha"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, "chicago", res.TestMarket)
	assert.Greater(t, res.Plan.RequiredDays, 0)
	assert.Equal(t, 0.05, res.Plan.Alpha)
}

func TestBatchCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	out, err := execute(t, "batch", "--template", "schema_markup",
		"--markets", "chicago,philadelphia,boston,seattle",
		"--effects", "0,0.1", "--experiments", "2", "--concurrency", "2", "-o", "json", "--export", path)
	require.NoError(t, err, out)

	var summary experiment.BatchSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary), out)
	assert.Equal(t, 4, summary.Total)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "index,run_id,seed")
}

func TestTemplatesAndMarkets(t *testing.T) {
	out, err := execute(t, "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "title_tag_optimization")

	out, err = execute(t, "markets", "--json")
	require.NoError(t, err)
	var ms []experiment.Market
	require.NoError(t, json.Unmarshal([]byte(out), &ms))
	assert.NotEmpty(t, ms)
}

func TestMigrateRequiresDatabase(t *testing.T) {
	_, err := execute(t, "migrate")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
