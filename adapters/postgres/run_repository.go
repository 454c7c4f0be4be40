package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/batch"
	"geolift/internal/errors"
	"geolift/ports"
)

// RunRepository persists experiment runs and batch rows in PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

var _ ports.RunStore = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

type experimentRow struct {
	ID          string         `db:"id"`
	BatchID     sql.NullString `db:"batch_id"`
	Seed        int64          `db:"seed"`
	ControlMode string         `db:"control_mode"`
	Controls    pq.StringArray `db:"controls"`
	Spec        []byte         `db:"spec"`
	Metadata    []byte         `db:"metadata"`
	Weights     []byte         `db:"weights"`
	CreatedAt   time.Time      `db:"created_at"`
}

type causalRow struct {
	CumulativeEffect    float64 `db:"cumulative_effect"`
	AverageDailyEffect  float64 `db:"average_daily_effect"`
	EffectPct           float64 `db:"effect_pct"`
	StandardError       float64 `db:"standard_error"`
	ZScore              float64 `db:"z_score"`
	PValue              float64 `db:"p_value"`
	CILower             float64 `db:"ci_lower"`
	CIUpper             float64 `db:"ci_upper"`
	Alpha               float64 `db:"alpha"`
	PostObservations    int     `db:"post_observations"`
	CounterfactualTotal float64 `db:"counterfactual_total"`
	ActualTotal         float64 `db:"actual_total"`
	Recommendation      string  `db:"recommendation"`
	Direction           string  `db:"direction"`
	Rationale           string  `db:"rationale"`
	Validity            string  `db:"validity"`
}

type checkRow struct {
	Name      string  `db:"check_name"`
	Status    string  `db:"status"`
	Value     float64 `db:"value"`
	Threshold float64 `db:"threshold"`
	Detail    string  `db:"detail"`
}

type metricRow struct {
	Date           time.Time `db:"date"`
	Actual         float64   `db:"actual"`
	Counterfactual float64   `db:"counterfactual"`
	Effect         float64   `db:"effect"`
	Cumulative     float64   `db:"cumulative"`
	Missing        bool      `db:"missing"`
}

type batchRow struct {
	RunIndex       int            `db:"run_index"`
	RunID          sql.NullString `db:"run_id"`
	Seed           int64          `db:"seed"`
	TestMarket     string         `db:"test_market"`
	Magnitude      float64        `db:"magnitude"`
	Shape          string         `db:"effect_shape"`
	PostPeriodDays int            `db:"post_period_days"`
	Confounders    int            `db:"confounders"`
	ControlMode    string         `db:"control_mode"`
	EffectPct      float64        `db:"effect_pct"`
	PValue         float64        `db:"p_value"`
	ZScore         float64        `db:"z_score"`
	Recommendation string         `db:"recommendation"`
	Validity       string         `db:"validity"`
	Error          string         `db:"error"`
	ErrorKind      string         `db:"error_kind"`
	CreatedAt      time.Time      `db:"created_at"`
}

func dbError(err error, format string, args ...interface{}) error {
	return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, format, args...))
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveRun writes the run, its estimate, checks and daily rows in one transaction.
func (r *RunRepository) SaveRun(ctx context.Context, run *experiment.RunRecord) error {
	specJSON, err := json.Marshal(run.Spec)
	if err != nil {
		return fmt.Errorf("failed to marshal spec: %w", err)
	}
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var weightsJSON []byte
	if run.Weights != nil {
		if weightsJSON, err = json.Marshal(run.Weights); err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO experiments (
			id, batch_id, template, metric, test_market, controls, control_mode,
			intervention_day, pre_period_days, post_period_days, mde_requested,
			mde_applied, effect_shape, seed, dataset_hash, spec, metadata, weights, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		run.ID.String(),
		nullable(run.BatchID.String()),
		run.Spec.Template,
		run.Spec.Metric,
		run.Spec.TestMarket,
		pq.Array(run.Controls),
		string(run.ControlMode),
		run.Metadata.InterventionIndex,
		run.Spec.PrePeriodDays,
		run.Spec.PostPeriodDays,
		run.Metadata.RequestedEffect,
		run.Metadata.AppliedEffect,
		string(run.Metadata.Shape),
		run.Seed,
		run.Metadata.DatasetHash,
		specJSON,
		metaJSON,
		weightsJSON,
		run.CreatedAt,
	)
	if err != nil {
		return dbError(err, "failed to insert experiment")
	}

	est := run.Estimate
	_, err = tx.ExecContext(ctx, `
		INSERT INTO causal_results (
			run_id, cumulative_effect, average_daily_effect, effect_pct, standard_error,
			z_score, p_value, ci_lower, ci_upper, alpha, post_observations,
			counterfactual_total, actual_total, recommendation, direction, rationale, validity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		run.ID.String(), est.CumulativeEffect, est.AverageDailyEffect, est.EffectPct, est.StandardError,
		est.ZScore, est.PValue, est.CILower, est.CIUpper, est.Alpha, est.PostObservations,
		est.CounterfactualTotal, est.ActualTotal,
		string(run.Decision.Recommendation), string(run.Decision.Direction), run.Decision.Rationale,
		string(run.Report.Overall),
	)
	if err != nil {
		return dbError(err, "failed to insert causal result")
	}

	for i, c := range run.Report.Checks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO validity_checks (run_id, position, check_name, status, value, threshold, detail)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			run.ID.String(), i, c.Name, string(c.Status), c.Value, c.Threshold, c.Detail)
		if err != nil {
			return dbError(err, "failed to insert validity check %s", c.Name)
		}
	}

	for i, d := range run.Daily {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO experiment_metrics (run_id, day_num, date, actual, counterfactual, effect, cumulative, missing)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			run.ID.String(), i, d.Date, d.Actual, d.Counterfactual, d.Effect, d.Cumulative, d.Missing)
		if err != nil {
			return dbError(err, "failed to insert daily metric %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "failed to commit run")
	}
	return nil
}

// GetRun loads a run and everything stored alongside it.
func (r *RunRepository) GetRun(ctx context.Context, id core.RunID) (*experiment.RunRecord, error) {
	var row experimentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, batch_id, seed, control_mode, controls, spec, metadata, weights, created_at
		FROM experiments WHERE id = $1`, id.String())
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.WithCode(errors.CodeNotFound, core.RunNotFound(id))
		}
		return nil, dbError(err, "failed to get run")
	}

	run := &experiment.RunRecord{
		ID:          core.RunID(row.ID),
		Seed:        row.Seed,
		ControlMode: experiment.ControlMode(row.ControlMode),
		Controls:    []string(row.Controls),
		CreatedAt:   row.CreatedAt,
	}
	if row.BatchID.Valid {
		run.BatchID = core.BatchID(row.BatchID.String)
	}
	if err := json.Unmarshal(row.Spec, &run.Spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spec: %w", err)
	}
	if err := json.Unmarshal(row.Metadata, &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if len(row.Weights) > 0 {
		run.Weights = &experiment.SyntheticControlWeights{}
		if err := json.Unmarshal(row.Weights, run.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
	}

	var cr causalRow
	err = r.db.GetContext(ctx, &cr, `
		SELECT cumulative_effect, average_daily_effect, effect_pct, standard_error, z_score,
			   p_value, ci_lower, ci_upper, alpha, post_observations, counterfactual_total,
			   actual_total, recommendation, direction, rationale, validity
		FROM causal_results WHERE run_id = $1`, id.String())
	if err != nil {
		return nil, dbError(err, "failed to get causal result")
	}
	run.Estimate = experiment.CausalEstimate{
		CumulativeEffect:    cr.CumulativeEffect,
		AverageDailyEffect:  cr.AverageDailyEffect,
		EffectPct:           cr.EffectPct,
		StandardError:       cr.StandardError,
		ZScore:              cr.ZScore,
		PValue:              cr.PValue,
		CILower:             cr.CILower,
		CIUpper:             cr.CIUpper,
		Alpha:               cr.Alpha,
		PostObservations:    cr.PostObservations,
		CounterfactualTotal: cr.CounterfactualTotal,
		ActualTotal:         cr.ActualTotal,
	}
	run.Decision = experiment.Decision{
		Recommendation: experiment.Recommendation(cr.Recommendation),
		EffectPct:      cr.EffectPct,
		PValue:         cr.PValue,
		Direction:      experiment.Direction(cr.Direction),
		Rationale:      cr.Rationale,
	}
	run.Report.Overall = experiment.CheckStatus(cr.Validity)

	var checks []checkRow
	err = r.db.SelectContext(ctx, &checks, `
		SELECT check_name, status, value, threshold, detail
		FROM validity_checks WHERE run_id = $1 ORDER BY position`, id.String())
	if err != nil {
		return nil, dbError(err, "failed to get validity checks")
	}
	for _, c := range checks {
		run.Report.Checks = append(run.Report.Checks, experiment.ValidityCheckResult{
			Name:      c.Name,
			Status:    experiment.CheckStatus(c.Status),
			Value:     c.Value,
			Threshold: c.Threshold,
			Detail:    c.Detail,
		})
	}

	var metrics []metricRow
	err = r.db.SelectContext(ctx, &metrics, `
		SELECT date, actual, counterfactual, effect, cumulative, missing
		FROM experiment_metrics WHERE run_id = $1 ORDER BY day_num`, id.String())
	if err != nil {
		return nil, dbError(err, "failed to get daily metrics")
	}
	for _, m := range metrics {
		run.Daily = append(run.Daily, experiment.DailyEffect{
			Date:           m.Date,
			Actual:         m.Actual,
			Counterfactual: m.Counterfactual,
			Effect:         m.Effect,
			Cumulative:     m.Cumulative,
			Missing:        m.Missing,
		})
	}
	return run, nil
}

// ListRuns returns run summaries, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, filter ports.RunFilter) ([]experiment.RunSummary, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.TestMarket != "" {
		add("e.test_market = $%d", filter.TestMarket)
	}
	if filter.Template != "" {
		add("e.template = $%d", filter.Template)
	}
	if filter.BatchID != "" {
		add("e.batch_id = $%d", filter.BatchID.String())
	}
	if filter.Recommendation != "" {
		add("c.recommendation = $%d", string(filter.Recommendation))
	}

	query := `
		SELECT e.id, e.batch_id, e.created_at, e.template, e.test_market, e.seed,
			   c.effect_pct, c.p_value, c.recommendation, c.validity
		FROM experiments e
		JOIN causal_results c ON c.run_id = e.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY e.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var out []experiment.RunSummary
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, dbError(err, "failed to list runs")
	}
	return out, nil
}

// SaveBatch stores one row per batch run.
func (r *RunRepository) SaveBatch(ctx context.Context, summary *experiment.BatchSummary) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, run := range summary.Runs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_results (
				batch_id, run_index, run_id, seed, test_market, magnitude, effect_shape,
				post_period_days, confounders, control_mode, effect_pct, p_value, z_score,
				recommendation, validity, error, error_kind, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			summary.ID.String(), run.Index, nullable(run.RunID.String()), run.Seed, run.TestMarket,
			run.Magnitude, string(run.Shape), run.PostPeriodDays, run.Confounders, string(run.ControlMode),
			run.EffectPct, run.PValue, run.ZScore, string(run.Recommendation), string(run.Validity),
			run.Error, run.ErrorKind, summary.CreatedAt,
		)
		if err != nil {
			return dbError(err, "failed to insert batch run %d", run.Index)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "failed to commit batch")
	}
	return nil
}

// GetBatch reloads the batch rows and recomputes the summary from them.
func (r *RunRepository) GetBatch(ctx context.Context, id core.BatchID) (*experiment.BatchSummary, error) {
	var rows []batchRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_index, run_id, seed, test_market, magnitude, effect_shape, post_period_days,
			   confounders, control_mode, effect_pct, p_value, z_score, recommendation,
			   validity, error, error_kind, created_at
		FROM batch_results WHERE batch_id = $1 ORDER BY run_index`, id.String())
	if err != nil {
		return nil, dbError(err, "failed to get batch")
	}
	if len(rows) == 0 {
		return nil, errors.WithCode(errors.CodeNotFound, core.BatchNotFound(id))
	}

	runs := make([]experiment.BatchRun, len(rows))
	for i, row := range rows {
		runs[i] = experiment.BatchRun{
			Index:          row.RunIndex,
			RunID:          core.RunID(row.RunID.String),
			Seed:           row.Seed,
			TestMarket:     row.TestMarket,
			Magnitude:      row.Magnitude,
			Shape:          experiment.EffectShape(row.Shape),
			PostPeriodDays: row.PostPeriodDays,
			Confounders:    row.Confounders,
			ControlMode:    experiment.ControlMode(row.ControlMode),
			EffectPct:      row.EffectPct,
			PValue:         row.PValue,
			ZScore:         row.ZScore,
			Recommendation: experiment.Recommendation(row.Recommendation),
			Validity:       experiment.CheckStatus(row.Validity),
			Error:          row.Error,
			ErrorKind:      row.ErrorKind,
		}
	}
	summary := batch.Summarize(runs)
	summary.ID = id
	summary.CreatedAt = rows[0].CreatedAt
	return &summary, nil
}
