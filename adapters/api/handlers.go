package api

import (
	"bytes"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"geolift/adapters/export"
	"geolift/app"
	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/batch"
	"geolift/internal/errors"
	"geolift/internal/power"
	"geolift/ports"
)

// RunRequest starts one experiment. When Template is set, zero fields of
// Spec are filled from it. A missing Seed draws a random one.
type RunRequest struct {
	Template    string                    `json:"template"`
	Confounders bool                      `json:"template_confounders"`
	Spec        experiment.ExperimentSpec `json:"spec"`
	Seed        *int64                    `json:"seed"`
}

// DesignRequest sizes an experiment before running it.
type DesignRequest struct {
	Template string                    `json:"template"`
	Spec     experiment.ExperimentSpec `json:"spec"`
	Seed     int64                     `json:"seed"`
	Alpha    float64                   `json:"alpha" binding:"gte=0,lt=1"`
	Power    float64                   `json:"power" binding:"gte=0,lt=1"`
}

// PowerRequest computes duration and a power curve from known baseline
// statistics, without generating data.
type PowerRequest struct {
	Alpha        float64 `json:"alpha" binding:"gte=0,lt=1"`
	Power        float64 `json:"power" binding:"gte=0,lt=1"`
	MDE          float64 `json:"mde" binding:"required"`
	BaselineMean float64 `json:"baseline_mean" binding:"required,gt=0"`
	BaselineStd  float64 `json:"baseline_std" binding:"gte=0"`
	Days         []int   `json:"days" binding:"dive,gt=0"`
}

// PowerResponse pairs the required duration with a power curve.
type PowerResponse struct {
	Plan  power.Plan         `json:"plan"`
	Curve []power.Assessment `json:"curve"`
}

// BatchRequest expands into a grid of runs: market pairs × effect sizes.
type BatchRequest struct {
	Template       string    `json:"template" binding:"required"`
	Markets        []string  `json:"markets" binding:"required,min=2"`
	Effects        []float64 `json:"effects"`
	Experiments    int       `json:"experiments" binding:"required,gt=0"`
	PostPeriodDays int       `json:"post_period_days" binding:"gte=0"`
	Confounders    bool      `json:"confounders"`
	Matched        bool      `json:"matched"`
	SeedBase       *int64    `json:"seed_base"`
	GridSeed       uint64    `json:"grid_seed"`
}

var defaultCurveDays = []int{7, 14, 21, 28, 42, 56, 70, 90}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markets": s.deps.Service.Markets().All()})
}

func (s *Server) handleTemplates(c *gin.Context) {
	var out []experiment.Template
	if s.deps.Templates != nil {
		out = s.deps.Templates.All()
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// resolveSpec applies a named template to spec.
func (s *Server) resolveSpec(template string, spec experiment.ExperimentSpec, withConfounders bool) (experiment.ExperimentSpec, error) {
	if template == "" {
		return spec, nil
	}
	if s.deps.Templates == nil {
		return spec, errors.Configuration("api", "template", "no templates are loaded")
	}
	tpl, err := s.deps.Templates.Get(template)
	if err != nil {
		return spec, err
	}
	return tpl.Fill(spec, withConfounders), nil
}

func (s *Server) handleDesign(c *gin.Context) {
	var req DesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid design request", err))
		return
	}
	spec, err := s.resolveSpec(req.Template, req.Spec, false)
	if err != nil {
		s.fail(c, err)
		return
	}
	alpha, target := req.Alpha, req.Power
	if alpha == 0 {
		alpha = s.deps.Alpha
	}
	if target == 0 {
		target = s.deps.Power
	}
	res, err := s.deps.Service.Design(c.Request.Context(), app.DesignRequest{Spec: spec, Seed: req.Seed, Alpha: alpha, Power: target})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondExport(c, func(f export.Format, buf *bytes.Buffer) error { return export.Design(buf, res, f) }, res)
}

func (s *Server) handlePower(c *gin.Context) {
	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid power request", err))
		return
	}
	alpha, target := req.Alpha, req.Power
	if alpha == 0 {
		alpha = s.deps.Alpha
	}
	if target == 0 {
		target = s.deps.Power
	}
	plan, err := power.RequiredDuration(alpha, target, req.MDE, req.BaselineMean, req.BaselineStd)
	if err != nil {
		s.fail(c, err)
		return
	}
	days := req.Days
	if len(days) == 0 {
		days = defaultCurveDays
	}
	curve, err := power.Curve(days, alpha, req.MDE, req.BaselineMean, req.BaselineStd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, PowerResponse{Plan: plan, Curve: curve})
}

func (s *Server) handleCreateExperiment(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid experiment request", err))
		return
	}
	spec, err := s.resolveSpec(req.Template, req.Spec, req.Confounders)
	if err != nil {
		s.fail(c, err)
		return
	}
	seed := rand.Int64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	res, err := s.deps.Service.Run(c.Request.Context(), spec, seed)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
	s.respondExport(c, func(f export.Format, buf *bytes.Buffer) error { return export.Run(buf, res.Record, f) }, res)
}

func (s *Server) handleListExperiments(c *gin.Context) {
	filter := ports.RunFilter{
		TestMarket:     c.Query("test_market"),
		Template:       c.Query("template"),
		Recommendation: experiment.Recommendation(c.Query("recommendation")),
	}
	if v := c.Query("batch_id"); v != "" {
		id, err := core.ParseBatchID(v)
		if err != nil {
			s.fail(c, badRequest("invalid batch_id", err))
			return
		}
		filter.BatchID = id
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit", 50); err != nil {
		s.fail(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		s.fail(c, err)
		return
	}
	runs, err := s.deps.Service.ListRuns(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []experiment.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"experiments": runs, "count": len(runs)})
}

func (s *Server) handleGetExperiment(c *gin.Context) {
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		s.fail(c, badRequest("invalid experiment id", err))
		return
	}
	run, err := s.deps.Service.GetRun(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondExport(c, func(f export.Format, buf *bytes.Buffer) error { return export.Run(buf, run, f) }, run)
}

func (s *Server) handleCreateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid batch request", err))
		return
	}
	tpl, err := s.templateOrError(req.Template)
	if err != nil {
		s.fail(c, err)
		return
	}
	specs, err := batch.Grid(batch.GridRequest{
		Template:       tpl,
		Markets:        req.Markets,
		Effects:        req.Effects,
		Experiments:    req.Experiments,
		PostPeriodDays: req.PostPeriodDays,
		Confounders:    req.Confounders,
		Matched:        req.Matched,
	}, rand.New(rand.NewPCG(req.GridSeed, 0)))
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(specs) > s.deps.MaxBatchRuns {
		s.fail(c, errors.Configuration("api", "experiments",
			"batch expands to "+strconv.Itoa(len(specs))+" runs, limit is "+strconv.Itoa(s.deps.MaxBatchRuns)))
		return
	}

	var seeds ports.SeedSource = batch.NewRandomSeeds()
	if req.SeedBase != nil {
		seeds = batch.SequentialSeeds{Base: *req.SeedBase}
	}
	summary, err := s.deps.Runner.Run(c.Request.Context(), specs, seeds)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
	s.respondExport(c, func(f export.Format, buf *bytes.Buffer) error { return export.Batch(buf, summary, f) }, summary)
}

func (s *Server) handleGetBatch(c *gin.Context) {
	id, err := core.ParseBatchID(c.Param("id"))
	if err != nil {
		s.fail(c, badRequest("invalid batch id", err))
		return
	}
	store := s.deps.Service.Store()
	if store == nil {
		s.fail(c, errors.ConfigInvalid("persistence is not configured"))
		return
	}
	summary, err := store.GetBatch(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.respondExport(c, func(f export.Format, buf *bytes.Buffer) error { return export.Batch(buf, summary, f) }, summary)
}

func (s *Server) templateOrError(id string) (experiment.Template, error) {
	if s.deps.Templates == nil {
		return experiment.Template{}, errors.Configuration("api", "template", "no templates are loaded")
	}
	return s.deps.Templates.Get(id)
}

var contentTypes = map[export.Format]string{
	export.FormatCSV:      "text/csv; charset=utf-8",
	export.FormatXLSX:     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	export.FormatMarkdown: "text/markdown; charset=utf-8",
	export.FormatHTML:     "text/html; charset=utf-8",
}

// respondExport writes v as JSON, or renders it with write when the
// format query parameter names another format.
func (s *Server) respondExport(c *gin.Context, write func(export.Format, *bytes.Buffer) error, v interface{}) {
	status := c.Writer.Status()
	name := c.Query("format")
	if name == "" {
		c.JSON(status, v)
		return
	}
	f, err := export.ParseFormat(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	if f == export.FormatJSON {
		c.JSON(status, v)
		return
	}
	var buf bytes.Buffer
	if err := write(f, &buf); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(status, contentTypes[f], buf.Bytes())
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput(key + " must be a non-negative integer")
	}
	return n, nil
}
