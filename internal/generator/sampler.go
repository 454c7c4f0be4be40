package generator

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// sampler draws every random number of one generation run from a single
// PCG stream, so the draw order alone fixes the output for a seed.
type sampler struct {
	src *rand.PCG
	rng *rand.Rand
}

// pcgStream keeps generator draws on their own PCG sequence.
const pcgStream = 0x67656f6c696674

func newSampler(seed int64) *sampler {
	src := rand.NewPCG(uint64(seed), pcgStream)
	return &sampler{src: src, rng: rand.New(src)}
}

func (s *sampler) uniform(min, max float64) float64 {
	return distuv.Uniform{Min: min, Max: max, Src: s.src}.Rand()
}

func (s *sampler) normal(mu, sigma float64) float64 {
	if sigma <= 0 {
		return mu
	}
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

func (s *sampler) float64() float64 { return s.rng.Float64() }

// intn returns a value in [0, n); n <= 0 yields 0.
func (s *sampler) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.rng.IntN(n)
}
