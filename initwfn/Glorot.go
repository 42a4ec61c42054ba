package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) *InitWFn {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm. Weights are
// drawn from U[-limit, limit] with limit = gain * sqrt(6 / (in + out)).
func (g GlorotUConfig) Create(src rand.Source) Fn {
	return func(in, out int) []float64 {
		limit := g.Gain * math.Sqrt(6/float64(in+out))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
		return draw(func(int, int) float64 { return dist.Rand() })(in, out)
	}
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer
func NewGlorotN(gain float64) *InitWFn {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm. Weights are
// drawn from N(0, gain^2 * 2 / (in + out)).
func (g GlorotNConfig) Create(src rand.Source) Fn {
	return func(in, out int) []float64 {
		std := g.Gain * math.Sqrt(2/float64(in+out))
		dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
		return draw(func(int, int) float64 { return dist.Rand() })(in, out)
	}
}
