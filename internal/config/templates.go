package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/markets"
)

// templateFile is the on-disk YAML layout. Both sections are optional.
type templateFile struct {
	Templates []templateYAML      `yaml:"templates"`
	Markets   []experiment.Market `yaml:"markets"`
}

// templateYAML keeps shapes and confounders as strings so aliases and typos
// go through the same parsers as CLI flags.
type templateYAML struct {
	ID                 string     `yaml:"id"`
	Name               string     `yaml:"name"`
	Description        string     `yaml:"description"`
	PrimaryMetric      string     `yaml:"primary_metric"`
	DefaultMDE         float64    `yaml:"default_mde"`
	MDERange           [2]float64 `yaml:"mde_range"`
	DefaultShape       string     `yaml:"default_shape"`
	DefaultConfounders []string   `yaml:"default_confounders"`
	PrePeriodDays      int        `yaml:"pre_period_days"`
	PostPeriodDays     int        `yaml:"post_period_days"`
}

// Templates is an id-indexed, read-only set of experiment templates.
type Templates struct {
	byID  map[string]experiment.Template
	order []string
}

// NewTemplates indexes ts, rejecting empty or duplicate ids.
func NewTemplates(ts []experiment.Template) (*Templates, error) {
	out := &Templates{byID: make(map[string]experiment.Template, len(ts))}
	for i, t := range ts {
		if t.ID == "" {
			return nil, errors.Configuration("templates", fmt.Sprintf("templates[%d].id", i), "template id is required")
		}
		if _, dup := out.byID[t.ID]; dup {
			return nil, errors.Configuration("templates", fmt.Sprintf("templates[%d].id", i), fmt.Sprintf("duplicate template id %q", t.ID))
		}
		out.byID[t.ID] = t
		out.order = append(out.order, t.ID)
	}
	return out, nil
}

// Get returns the template with the given id.
func (t *Templates) Get(id string) (experiment.Template, error) {
	tpl, ok := t.byID[id]
	if !ok {
		known := append([]string(nil), t.order...)
		sort.Strings(known)
		return experiment.Template{}, errors.Configuration("templates", "template",
			fmt.Sprintf("unknown template %q (known: %v)", id, known))
	}
	return tpl, nil
}

// All returns the templates in definition order.
func (t *Templates) All() []experiment.Template {
	out := make([]experiment.Template, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// LoadTemplates reads templates from a YAML file. An empty path returns the
// built-in set.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return NewTemplates(DefaultTemplates())
	}
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if len(f.Templates) == 0 {
		return nil, errors.Configuration("templates", "templates", fmt.Sprintf("%s defines no templates", path))
	}
	ts := make([]experiment.Template, 0, len(f.Templates))
	for i, raw := range f.Templates {
		t, err := raw.toTemplate(i)
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return NewTemplates(ts)
}

// LoadMarkets reads a market table from the markets section of a YAML
// file. An empty path returns the built-in DMA table.
func LoadMarkets(path string) (*markets.Table, error) {
	if path == "" {
		return markets.DefaultTable(), nil
	}
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if len(f.Markets) == 0 {
		return nil, errors.Configuration("markets", "markets", fmt.Sprintf("%s defines no markets", path))
	}
	return markets.NewTable(f.Markets)
}

func readFile(path string) (*templateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfiguration, fmt.Errorf("read %s: %w", path, err))
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.WithCode(errors.CodeConfiguration, fmt.Errorf("parse %s: %w", path, err))
	}
	return &f, nil
}

func (raw templateYAML) toTemplate(i int) (experiment.Template, error) {
	field := func(name string) string { return fmt.Sprintf("templates[%d].%s", i, name) }
	t := experiment.Template{
		ID:             raw.ID,
		Name:           raw.Name,
		Description:    raw.Description,
		PrimaryMetric:  raw.PrimaryMetric,
		DefaultMDE:     raw.DefaultMDE,
		MDERange:       raw.MDERange,
		PrePeriodDays:  raw.PrePeriodDays,
		PostPeriodDays: raw.PostPeriodDays,
		DefaultShape:   experiment.ShapeStep,
	}
	if raw.DefaultShape != "" {
		shape, err := experiment.ParseEffectShape(raw.DefaultShape)
		if err != nil {
			return t, errors.Configuration("templates", field("default_shape"), err.Error())
		}
		t.DefaultShape = shape
	}
	for _, c := range raw.DefaultConfounders {
		ct, err := experiment.ParseConfounderType(c)
		if err != nil {
			return t, errors.Configuration("templates", field("default_confounders"), err.Error())
		}
		t.DefaultConfounders = append(t.DefaultConfounders, ct)
	}
	switch {
	case t.DefaultMDE == 0:
		return t, errors.Configuration("templates", field("default_mde"), "default MDE must be non-zero")
	case t.PrePeriodDays <= 0:
		return t, errors.Configuration("templates", field("pre_period_days"), "must be positive")
	case t.PostPeriodDays <= 0:
		return t, errors.Configuration("templates", field("post_period_days"), "must be positive")
	case t.MDERange[1] != 0 && t.MDERange[0] > t.MDERange[1]:
		return t, errors.Configuration("templates", field("mde_range"), "lower bound exceeds upper bound")
	}
	return t, nil
}

// DefaultTemplates returns the built-in SEO experiment templates.
func DefaultTemplates() []experiment.Template {
	return []experiment.Template{
		{
			ID:                 "title_tag_optimization",
			Name:               "Title Tag Optimization",
			Description:        "Rewrite title tags on category pages to lift organic click-through.",
			PrimaryMetric:      "organic_clicks",
			DefaultMDE:         0.08,
			MDERange:           [2]float64{0.05, 0.20},
			DefaultShape:       experiment.ShapeRamp,
			DefaultConfounders: []experiment.ConfounderType{experiment.AlgorithmUpdate},
			PrePeriodDays:      90,
			PostPeriodDays:     30,
		},
		{
			ID:                 "schema_markup",
			Name:               "Structured Data Markup",
			Description:        "Add product schema to unlock rich results.",
			PrimaryMetric:      "organic_clicks",
			DefaultMDE:         0.10,
			MDERange:           [2]float64{0.05, 0.25},
			DefaultShape:       experiment.ShapeDelayed,
			DefaultConfounders: []experiment.ConfounderType{experiment.AlgorithmUpdate, experiment.TrackingBreak},
			PrePeriodDays:      90,
			PostPeriodDays:     42,
		},
		{
			ID:                 "internal_linking",
			Name:               "Internal Linking",
			Description:        "Add contextual internal links from high-authority pages.",
			PrimaryMetric:      "organic_sessions",
			DefaultMDE:         0.05,
			MDERange:           [2]float64{0.03, 0.15},
			DefaultShape:       experiment.ShapeRamp,
			DefaultConfounders: []experiment.ConfounderType{experiment.SeasonalitySpike},
			PrePeriodDays:      90,
			PostPeriodDays:     56,
		},
		{
			ID:                 "page_speed",
			Name:               "Page Speed",
			Description:        "Ship image compression and deferred scripts to improve Core Web Vitals.",
			PrimaryMetric:      "organic_conversions",
			DefaultMDE:         0.06,
			MDERange:           [2]float64{0.03, 0.15},
			DefaultShape:       experiment.ShapeStep,
			DefaultConfounders: []experiment.ConfounderType{experiment.TrackingBreak},
			PrePeriodDays:      90,
			PostPeriodDays:     30,
		},
		{
			ID:                 "content_refresh",
			Name:               "Content Refresh",
			Description:        "Refresh stale long-form content with updated facts and sections.",
			PrimaryMetric:      "organic_sessions",
			DefaultMDE:         0.12,
			MDERange:           [2]float64{0.05, 0.30},
			DefaultShape:       experiment.ShapeDelayed,
			DefaultConfounders: []experiment.ConfounderType{experiment.SeasonalitySpike, experiment.AlgorithmUpdate},
			PrePeriodDays:      90,
			PostPeriodDays:     42,
		},
	}
}
