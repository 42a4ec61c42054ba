package initwfn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// UniformConfig implements a configuration of a weight initializer
// that draws weights uniformly from [Low, High)
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) *InitWFn {
	return newInitWFn(UniformConfig{Low: low, High: high})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the weight initialization algorithm
func (u UniformConfig) Create(src rand.Source) Fn {
	dist := distuv.Uniform{Min: u.Low, Max: u.High, Src: src}
	return draw(func(int, int) float64 { return dist.Rand() })
}
