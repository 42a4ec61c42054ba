package initwfn

import "golang.org/x/exp/rand"

// ConstantConfig implements a configuration of a weight initializer
// that initializes all weights to a constant value.
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a new constant weight initializer
func NewConstant(value float64) *InitWFn {
	return newInitWFn(ConstantConfig{value})
}

// Type returns the type of the weight initializer created using this
// config
func (c ConstantConfig) Type() Type {
	return Constant
}

// Create creates the weight initializer from this config. The source
// is unused.
func (c ConstantConfig) Create(rand.Source) Fn {
	return draw(func(int, int) float64 { return c.Value })
}

// ZeroesConfig implements a configuration of a zero weight initializer
type ZeroesConfig struct{}

// NewZeroes returns a new zeroes weight intializer
func NewZeroes() *InitWFn {
	return newInitWFn(ZeroesConfig{})
}

// Type returns the type of the weight initializer created using this
// config
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create creates the weight initializer from this config
func (z ZeroesConfig) Create(rand.Source) Fn {
	return func(in, out int) []float64 {
		return make([]float64, in*out)
	}
}
