package main

import (
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"geolift/adapters/postgres"
	"geolift/app"
	"geolift/internal/config"
	"geolift/internal/errors"
	"geolift/internal/logging"
	"geolift/internal/markets"
	"geolift/internal/metrics"
	"geolift/ports"
)

// env is everything a subcommand needs, built once from configuration.
type env struct {
	cfg       *config.Config
	log       zerolog.Logger
	table     *markets.Table
	templates *config.Templates
	metrics   *metrics.Registry
	db        *sqlx.DB
	store     ports.RunStore
	service   *app.ExperimentService
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// loadEnv reads configuration, reference data and, when DATABASE_URL is
// set, opens the database.
func loadEnv(g *globalFlags) (*env, error) {
	config.LoadDotenv(g.envFile)
	if g.logLevel != "" {
		os.Setenv("LOG_LEVEL", g.logLevel)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.templatesFile != "" {
		cfg.Paths.TemplatesFile = g.templatesFile
	}
	if g.marketsFile != "" {
		cfg.Paths.MarketsFile = g.marketsFile
	}

	e := &env{
		cfg:     cfg,
		log:     logging.New(cfg.Logging, os.Stderr),
		metrics: metrics.NewRegistry(),
	}

	if e.templates, err = config.LoadTemplates(cfg.Paths.TemplatesFile); err != nil {
		return nil, err
	}
	if e.table, err = config.LoadMarkets(cfg.Paths.MarketsFile); err != nil {
		return nil, err
	}

	if cfg.PersistenceEnabled() {
		if e.db, err = openDatabase(cfg.Database); err != nil {
			return nil, err
		}
		e.store = postgres.NewRunRepository(e.db)
		e.log.Debug().Msg("persistence enabled")
	}

	opts := []app.Option{
		app.WithLogger(e.log),
		app.WithMetrics(e.metrics),
		app.WithAlpha(cfg.Engine.DefaultAlpha),
	}
	if e.store != nil {
		opts = append(opts, app.WithStore(e.store))
	}
	e.service = app.NewExperimentService(e.table, opts...)
	return e, nil
}

// openDatabase initializes the PostgreSQL database connection
func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return db, nil
}
