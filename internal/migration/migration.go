package migration

import (
	"context"

	"github.com/jmoiron/sqlx"

	"geolift/internal/errors"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

type step struct {
	name string
	sql  string
}

// steps run in order; every statement is idempotent.
var steps = []step{
	{"experiments", `
		CREATE TABLE IF NOT EXISTS experiments (
			id UUID PRIMARY KEY,
			batch_id UUID,
			template VARCHAR(100) NOT NULL DEFAULT '',
			metric VARCHAR(100) NOT NULL DEFAULT '',
			test_market VARCHAR(100) NOT NULL,
			controls TEXT[] NOT NULL,
			control_mode VARCHAR(20) NOT NULL,
			intervention_day INTEGER NOT NULL,
			pre_period_days INTEGER NOT NULL,
			post_period_days INTEGER NOT NULL,
			mde_requested DOUBLE PRECISION NOT NULL,
			mde_applied DOUBLE PRECISION NOT NULL,
			effect_shape VARCHAR(20) NOT NULL,
			seed BIGINT NOT NULL,
			dataset_hash VARCHAR(64) NOT NULL,
			spec JSONB NOT NULL,
			metadata JSONB NOT NULL,
			weights JSONB,
			status VARCHAR(20) NOT NULL DEFAULT 'completed',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`},
	{"experiment_metrics", `
		CREATE TABLE IF NOT EXISTS experiment_metrics (
			run_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			day_num INTEGER NOT NULL,
			date DATE NOT NULL,
			actual DOUBLE PRECISION NOT NULL,
			counterfactual DOUBLE PRECISION NOT NULL,
			effect DOUBLE PRECISION NOT NULL,
			cumulative DOUBLE PRECISION NOT NULL,
			missing BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (run_id, day_num)
		)`},
	{"causal_results", `
		CREATE TABLE IF NOT EXISTS causal_results (
			run_id UUID PRIMARY KEY REFERENCES experiments(id) ON DELETE CASCADE,
			cumulative_effect DOUBLE PRECISION NOT NULL,
			average_daily_effect DOUBLE PRECISION NOT NULL,
			effect_pct DOUBLE PRECISION NOT NULL,
			standard_error DOUBLE PRECISION NOT NULL,
			z_score DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			ci_lower DOUBLE PRECISION NOT NULL,
			ci_upper DOUBLE PRECISION NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			post_observations INTEGER NOT NULL,
			counterfactual_total DOUBLE PRECISION NOT NULL,
			actual_total DOUBLE PRECISION NOT NULL,
			recommendation VARCHAR(20) NOT NULL,
			direction VARCHAR(20) NOT NULL,
			rationale TEXT NOT NULL DEFAULT '',
			validity VARCHAR(10) NOT NULL
		)`},
	{"validity_checks", `
		CREATE TABLE IF NOT EXISTS validity_checks (
			run_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			position INTEGER NOT NULL DEFAULT 0,
			check_name VARCHAR(50) NOT NULL,
			status VARCHAR(10) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, check_name)
		)`},
	{"batch_results", `
		CREATE TABLE IF NOT EXISTS batch_results (
			batch_id UUID NOT NULL,
			run_index INTEGER NOT NULL,
			run_id UUID,
			seed BIGINT NOT NULL,
			test_market VARCHAR(100) NOT NULL,
			magnitude DOUBLE PRECISION NOT NULL,
			effect_shape VARCHAR(20) NOT NULL,
			post_period_days INTEGER NOT NULL,
			confounders INTEGER NOT NULL DEFAULT 0,
			control_mode VARCHAR(20) NOT NULL DEFAULT '',
			effect_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			p_value DOUBLE PRECISION NOT NULL DEFAULT 1,
			z_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			recommendation VARCHAR(20) NOT NULL DEFAULT '',
			validity VARCHAR(10) NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			error_kind VARCHAR(50) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (batch_id, run_index)
		)`},
	{"indexes", `
		CREATE INDEX IF NOT EXISTS idx_experiments_test_market ON experiments(test_market);
		CREATE INDEX IF NOT EXISTS idx_experiments_batch_id ON experiments(batch_id);
		CREATE INDEX IF NOT EXISTS idx_experiments_created_at ON experiments(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_causal_results_recommendation ON causal_results(recommendation)`},
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, s := range steps {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to create %s", s.name))
		}
	}
	return nil
}

// Tables lists the tables the migration creates, in creation order.
func Tables() []string {
	var out []string
	for _, s := range steps {
		if s.name != "indexes" {
			out = append(out, s.name)
		}
	}
	return out
}
