package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"geolift/adapters/export"
	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// specFlags describe one experiment on the command line. Unset values come
// from the template when one is named.
type specFlags struct {
	template            string
	market              string
	controls            []string
	mde                 float64
	shape               string
	pre                 int
	post                int
	confounders         []string
	templateConfounders bool
	controlMode         string
	topK                int
	ridge               float64
	correlation         float64
}

func (f *specFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.template, "template", "", "Template id supplying defaults (list with: geolift templates)")
	cmd.Flags().StringVar(&f.market, "market", "", "Test market id")
	cmd.Flags().StringSliceVar(&f.controls, "controls", nil, "Explicit control market ids (default: nearest by characteristics)")
	cmd.Flags().Float64Var(&f.mde, "mde", 0, "Effect magnitude as a fraction, e.g. 0.08 for 8%")
	cmd.Flags().StringVar(&f.shape, "shape", "", "Effect shape: step|ramp|delayed")
	cmd.Flags().IntVar(&f.pre, "pre", 0, "Pre-period days")
	cmd.Flags().IntVar(&f.post, "post", 0, "Post-period days")
	cmd.Flags().StringSliceVar(&f.confounders, "confounder", nil, "Confounder types: algorithm_update|seasonality_spike|tracking_break")
	cmd.Flags().BoolVar(&f.templateConfounders, "template-confounders", false, "Inject the template's default confounders")
	cmd.Flags().StringVar(&f.controlMode, "control-mode", "", "Control mode: auto|single|synthetic")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "Nearest markets to consider when no controls are given")
	cmd.Flags().Float64Var(&f.ridge, "ridge", 0, "Ridge penalty for the synthetic control")
	cmd.Flags().Float64Var(&f.correlation, "control-correlation", 0, "Target correlation of generated controls (0 draws one)")
	_ = cmd.MarkFlagRequired("market")
}

func (f *specFlags) build(e *env, cmd *cobra.Command) (experiment.ExperimentSpec, error) {
	spec := experiment.ExperimentSpec{
		TestMarket:         f.market,
		ControlMarkets:     f.controls,
		PrePeriodDays:      f.pre,
		PostPeriodDays:     f.post,
		Effect:             experiment.EffectSpec{Magnitude: f.mde},
		ControlMode:        experiment.ControlMode(f.controlMode),
		TopK:               f.topK,
		RidgePenalty:       f.ridge,
		ControlCorrelation: f.correlation,
	}
	if f.shape != "" {
		shape, err := experiment.ParseEffectShape(f.shape)
		if err != nil {
			return spec, err
		}
		spec.Effect.Shape = shape
	}
	for _, name := range f.confounders {
		ct, err := experiment.ParseConfounderType(name)
		if err != nil {
			return spec, err
		}
		spec.Confounders = append(spec.Confounders, experiment.ConfounderSpec{Type: ct})
	}

	if f.template != "" {
		tpl, err := e.templates.Get(f.template)
		if err != nil {
			return spec, err
		}
		spec = tpl.Fill(spec, f.templateConfounders)
		if cmd.Flags().Changed("mde") {
			spec.Effect.Magnitude = f.mde
		}
	}
	return spec, nil
}

// outputFlags select what goes to stdout and what, if anything, to a file.
type outputFlags struct {
	format     string
	exportPath string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.format, "output", "o", "markdown", "Stdout format: json|markdown")
	cmd.Flags().StringVar(&o.exportPath, "export", "", "Also write to this file; format from the extension (.csv, .xlsx, .md, .html, .json)")
}

type renderFunc func(io.Writer, export.Format) error

func (o *outputFlags) emit(w io.Writer, render renderFunc) error {
	f, err := export.ParseFormat(o.format)
	if err != nil {
		return err
	}
	if f != export.FormatJSON && f != export.FormatMarkdown {
		return errors.Configuration("cli", "output", fmt.Sprintf("stdout supports json or markdown, not %s", f))
	}
	if err := render(w, f); err != nil {
		return err
	}
	if o.exportPath == "" {
		return nil
	}

	ef, err := export.FormatFromPath(o.exportPath)
	if err != nil {
		return err
	}
	file, err := os.Create(o.exportPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", o.exportPath)
	}
	if err := render(file, ef); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
