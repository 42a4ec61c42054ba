package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// HeUConfig implements a configuration of the He uniform
// initialization algorithm.
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a new He Uniform weight initializer
func NewHeU(gain float64) *InitWFn {
	return newInitWFn(HeUConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeUConfig) Type() Type {
	return HeU
}

// Create returns the weight initialization algorithm. Weights are
// drawn from U[-limit, limit] with limit = gain * sqrt(6 / in).
func (h HeUConfig) Create(src rand.Source) Fn {
	return func(in, out int) []float64 {
		limit := h.Gain * math.Sqrt(6/float64(in))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
		return draw(func(int, int) float64 { return dist.Rand() })(in, out)
	}
}

// HeNConfig implements a configuration of the He normal
// initialization algorithm.
type HeNConfig struct {
	Gain float64
}

// NewHeN returns a new He Normal weight initializer
func NewHeN(gain float64) *InitWFn {
	return newInitWFn(HeNConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (h HeNConfig) Type() Type {
	return HeN
}

// Create returns the weight initialization algorithm
func (h HeNConfig) Create(src rand.Source) Fn {
	return func(in, out int) []float64 {
		std := h.Gain * math.Sqrt(2/float64(in))
		dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
		return draw(func(int, int) float64 { return dist.Rand() })(in, out)
	}
}
