package estimators

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"gonum.org/v1/gonum/mat"
)

// Preprocessor converts a rank-1 batch of states into module inputs,
// one row per state
type Preprocessor interface {
	Preprocess(s *states.States) (*mat.Dense, error)
	OutputDim() int
}

// Identity passes raw states through unchanged
type Identity struct {
	dim int
}

// NewIdentity returns a new Identity preprocessor for states of dim
// float64s
func NewIdentity(dim int) Identity {
	return Identity{dim}
}

// Preprocess implements the Preprocessor interface
func (p Identity) Preprocess(s *states.States) (*mat.Dense, error) {
	if s.Space().StateDim() != p.dim {
		return nil, gfnerr.Shape("preprocess", p.dim, s.Space().StateDim())
	}
	data := make([]float64, len(s.Tensor().Data()))
	copy(data, s.Tensor().Data())
	return mat.NewDense(s.Len(), p.dim, data), nil
}

// OutputDim implements the Preprocessor interface
func (p Identity) OutputDim() int { return p.dim }

// Enum represents each state by its index in an enumerable environment
type Enum struct {
	env environment.Enumerable
}

// NewEnum returns a new Enum preprocessor
func NewEnum(env environment.Enumerable) Enum {
	return Enum{env}
}

// Preprocess implements the Preprocessor interface
func (p Enum) Preprocess(s *states.States) (*mat.Dense, error) {
	indices, err := p.env.StatesIndices(s)
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(indices))
	for i, idx := range indices {
		data[i] = float64(idx)
	}
	return mat.NewDense(len(indices), 1, data), nil
}

// OutputDim implements the Preprocessor interface
func (p Enum) OutputDim() int { return 1 }

// OneHot represents each state by the one-hot encoding of its index in
// an enumerable environment
type OneHot struct {
	env environment.Enumerable
}

// NewOneHot returns a new OneHot preprocessor
func NewOneHot(env environment.Enumerable) OneHot {
	return OneHot{env}
}

// Preprocess implements the Preprocessor interface
func (p OneHot) Preprocess(s *states.States) (*mat.Dense, error) {
	indices, err := p.env.StatesIndices(s)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(indices), p.OutputDim(), nil)
	for i, idx := range indices {
		out.Set(i, idx, 1)
	}
	return out, nil
}

// OutputDim implements the Preprocessor interface
func (p OneHot) OutputDim() int { return p.env.NStates() }

// KHot represents each state by the concatenated one-hot encodings of
// its dimensions. Each dimension takes one of n integer values starting
// at offset.
type KHot struct {
	ndim, n int
	offset  float64
}

// NewKHot returns a new KHot preprocessor
func NewKHot(ndim, n int, offset float64) KHot {
	return KHot{ndim, n, offset}
}

// Preprocess implements the Preprocessor interface
func (p KHot) Preprocess(s *states.States) (*mat.Dense, error) {
	if s.Space().StateDim() != p.ndim {
		return nil, gfnerr.Shape("preprocess", p.ndim, s.Space().StateDim())
	}

	out := mat.NewDense(s.Len(), p.OutputDim(), nil)
	for i := 0; i < s.Len(); i++ {
		for d, v := range s.Row(i) {
			k := int(v - p.offset)
			if k < 0 || k >= p.n {
				return nil, fmt.Errorf("preprocess: value %v of dimension "+
					"%v outside [%v, %v)", v, d, p.offset,
					p.offset+float64(p.n))
			}
			out.Set(i, d*p.n+k, 1)
		}
	}
	return out, nil
}

// OutputDim implements the Preprocessor interface
func (p KHot) OutputDim() int { return p.ndim * p.n }
