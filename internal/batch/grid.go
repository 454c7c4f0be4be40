package batch

import (
	"fmt"
	"math/rand/v2"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// GridRequest describes a batch as a cross product of market pairs and
// effect sizes.
type GridRequest struct {
	Template experiment.Template
	// Markets are paired in order: experiment i tests Markets[2i] against
	// Markets[2i+1], wrapping around the list.
	Markets        []string
	Effects        []float64
	Experiments    int
	PostPeriodDays int
	// Confounders injects one random confounder into roughly half the runs.
	Confounders bool
	// Matched ignores the pairing control and lets the pipeline pick the
	// nearest markets instead.
	Matched bool
}

var confounderChoices = []experiment.ConfounderType{
	experiment.AlgorithmUpdate,
	experiment.SeasonalitySpike,
	experiment.TrackingBreak,
}

// Grid expands req into specs, experiments outer and effects inner. rng
// only decides confounders, so a fixed rng gives a fixed grid.
func Grid(req GridRequest, rng *rand.Rand) ([]experiment.ExperimentSpec, error) {
	if req.Experiments <= 0 {
		return nil, errors.Configuration("batch", "experiments", "must be positive")
	}
	if len(req.Markets) < 2 {
		return nil, errors.Configuration("batch", "markets", "need at least two markets to form a pair")
	}
	effects := req.Effects
	if len(effects) == 0 {
		effects = []float64{0.05}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(42, 0))
	}

	var specs []experiment.ExperimentSpec
	for e := 0; e < req.Experiments; e++ {
		test := req.Markets[(2*e)%len(req.Markets)]
		ctrl := req.Markets[(2*e+1)%len(req.Markets)]
		if test == ctrl {
			return nil, errors.Configuration("batch", "markets", fmt.Sprintf("experiment %d pairs %s with itself", e+1, test))
		}
		for _, eff := range effects {
			spec := req.Template.NewSpec(test, false)
			spec.Effect.Magnitude = eff
			spec.Effect.Shape = experiment.ShapeStep
			if spec.PrePeriodDays == 0 {
				spec.PrePeriodDays = 90
			}
			if req.PostPeriodDays > 0 {
				spec.PostPeriodDays = req.PostPeriodDays
			}
			if spec.PostPeriodDays == 0 {
				spec.PostPeriodDays = 30
			}
			if !req.Matched {
				spec.ControlMarkets = []string{ctrl}
			}
			if req.Confounders && rng.Float64() > 0.5 {
				spec.Confounders = []experiment.ConfounderSpec{{Type: confounderChoices[rng.IntN(len(confounderChoices))]}}
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}
