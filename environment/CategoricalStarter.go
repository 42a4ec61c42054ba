package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// CategoricalStarter returns states whose dimensions are sampled from
// independent uniform categorical distributions. Dimension i takes values
// in (offset, offset+1, ... offset+bounds[i]-1).
type CategoricalStarter struct {
	features int
	offset   float64
	seed     uint64
	rand     []distuv.Categorical
}

// NewCategoricalStarter returns a new CategoricalStarter, sampling
// dimension i from (offset, ... offset+bounds[i]-1)
func NewCategoricalStarter(bounds []int, offset float64,
	seed uint64) CategoricalStarter {
	source := rand.NewSource(seed)

	rand := make([]distuv.Categorical, len(bounds))
	for i := range rand {
		// Create the weights for the uniform categorical distribution
		weights := make([]float64, bounds[i])
		for j := range weights {
			weights[j] = 1.0 / float64(len(weights))
		}

		rand[i] = distuv.NewCategorical(weights, source)
	}

	return CategoricalStarter{len(bounds), offset, seed, rand}
}

// Start returns a state sampled from the starter
func (c CategoricalStarter) Start() []float64 {
	start := make([]float64, c.features)
	for i := range start {
		start[i] = c.offset + c.rand[i].Rand()
	}

	return start
}
