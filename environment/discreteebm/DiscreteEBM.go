// Package discreteebm implements the DiscreteEBM environment. States are
// vectors in {-1, 0, 1}^ndim where -1 marks an unset dimension. Starting
// from all dimensions unset, action i sets dimension i to 0, action
// ndim+i sets dimension i to 1, and the last action exits once every
// dimension is set. The log-reward of a full state is its negative
// energy under an Ising model.
package discreteebm

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DiscreteEBM is the discrete energy-based model environment
type DiscreteEBM struct {
	ndim        int
	alpha       float64
	coupling    *mat.SymDense
	stateSpace  *states.Space
	actionSpace *actions.Space
	starter     environment.CategoricalStarter
}

// New returns a new DiscreteEBM with ndim dimensions, inverse
// temperature alpha and a fully connected Ising coupling
func New(ndim int, alpha float64, seed uint64) (*DiscreteEBM, error) {
	j := mat.NewSymDense(ndim, nil)
	for a := 0; a < ndim; a++ {
		for b := a + 1; b < ndim; b++ {
			j.SetSym(a, b, 1)
		}
	}
	return NewWithCoupling(ndim, alpha, j, seed)
}

// NewWithCoupling returns a new DiscreteEBM with the given symmetric
// Ising coupling matrix
func NewWithCoupling(ndim int, alpha float64, coupling *mat.SymDense,
	seed uint64) (*DiscreteEBM, error) {
	if ndim < 1 {
		return nil, fmt.Errorf("new: ndim must be >= 1, have %v", ndim)
	}
	if n := coupling.Symmetric(); n != ndim {
		return nil, gfnerr.Shape("new", ndim, n)
	}

	e := &DiscreteEBM{ndim: ndim, alpha: alpha, coupling: coupling}

	s0 := make([]float64, ndim)
	sf := make([]float64, ndim)
	for i := range s0 {
		s0[i] = -1
		sf[i] = 2
	}

	var err error
	e.stateSpace, err = states.NewDiscreteSpace([]int{ndim}, s0, sf,
		2*ndim+1, states.MaskerFunc(e.masks), device.CPU)
	if err != nil {
		return nil, err
	}
	e.actionSpace = actions.NewDiscreteSpace(2*ndim+1, device.CPU)

	bounds := make([]int, ndim)
	for i := range bounds {
		bounds[i] = 3
	}
	e.starter = environment.NewCategoricalStarter(bounds, -1, seed)

	return e, nil
}

// NDim returns the number of dimensions
func (e *DiscreteEBM) NDim() int { return e.ndim }

// StateSpace implements the environment.Environment interface
func (e *DiscreteEBM) StateSpace() *states.Space { return e.stateSpace }

// ActionSpace implements the environment.Environment interface
func (e *DiscreteEBM) ActionSpace() *actions.Space { return e.actionSpace }

// Device implements the environment.Environment interface
func (e *DiscreteEBM) Device() device.Device { return device.CPU }

// Starter samples uniformly random states, full or not
func (e *DiscreteEBM) Starter() environment.Starter { return e.starter }

func (e *DiscreteEBM) masks(s []float64, forward, backward []bool) {
	full := true
	for i, v := range s {
		forward[i] = v == -1
		forward[e.ndim+i] = v == -1
		backward[i] = v == 0
		backward[e.ndim+i] = v == 1
		if v == -1 {
			full = false
		}
	}
	forward[2*e.ndim] = full
}

// MasklessStep implements the environment.Environment interface
func (e *DiscreteEBM) MasklessStep(s *states.States, a *actions.Actions) (
	*states.States, error) {
	out := s.Tensor().Clone()
	for i := 0; i < s.Len(); i++ {
		idx := a.Index(i)
		if idx < 0 || idx >= 2*e.ndim {
			return nil, gfnerr.New("masklessStep", gfnerr.ErrNonValidAction,
				"action %v does not set a dimension", idx)
		}
		out.Row(i)[idx%e.ndim] = float64(idx / e.ndim)
	}
	return e.stateSpace.FromTensor(out)
}

// MasklessBackwardStep implements the environment.Environment interface
func (e *DiscreteEBM) MasklessBackwardStep(s *states.States,
	a *actions.Actions) (*states.States, error) {
	out := s.Tensor().Clone()
	for i := 0; i < s.Len(); i++ {
		idx := a.Index(i)
		if idx < 0 || idx >= 2*e.ndim {
			return nil, gfnerr.New("masklessBackwardStep",
				gfnerr.ErrNonValidAction,
				"action %v does not unset a dimension", idx)
		}
		out.Row(i)[idx%e.ndim] = -1
	}
	return e.stateSpace.FromTensor(out)
}

// IsActionValid implements the environment.Environment interface
func (e *DiscreteEBM) IsActionValid(s *states.States, a *actions.Actions,
	backward bool) bool {
	return environment.MaskValid(s, a, backward)
}

// Energy returns the Ising energy -sᵀJs of each state
func (e *DiscreteEBM) Energy(s *states.States) []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		v := mat.NewVecDense(e.ndim, append([]float64{}, s.Row(i)...))
		out[i] = -mat.Inner(v, e.coupling, v)
	}
	return out
}

// LogReward returns -alpha times the energy of each state
func (e *DiscreteEBM) LogReward(final *states.States) ([]float64, error) {
	out := e.Energy(final)
	floats.Scale(-e.alpha, out)
	return out, nil
}

// NStates implements the environment.Enumerable interface
func (e *DiscreteEBM) NStates() int { return pow(3, e.ndim) }

// AllStates implements the environment.Enumerable interface
func (e *DiscreteEBM) AllStates() *states.States {
	return e.enumerate(3, -1)
}

// StatesIndices implements the environment.Enumerable interface. The
// index of a state is its values shifted by one read as a base-3 number.
func (e *DiscreteEBM) StatesIndices(s *states.States) ([]int, error) {
	return e.indices(s, 3, -1)
}

// NTerminatingStates implements the environment.Enumerable interface
func (e *DiscreteEBM) NTerminatingStates() int { return pow(2, e.ndim) }

// TerminatingStates implements the environment.Enumerable interface
func (e *DiscreteEBM) TerminatingStates() *states.States {
	return e.enumerate(2, 0)
}

// TerminatingStatesIndices implements the environment.Enumerable
// interface. The index of a full state is its values read as a binary
// number.
func (e *DiscreteEBM) TerminatingStatesIndices(s *states.States) ([]int,
	error) {
	return e.indices(s, 2, 0)
}

// enumerate returns every state with values in [offset, offset+base)
// in index order
func (e *DiscreteEBM) enumerate(base int, offset float64) *states.States {
	n := pow(base, e.ndim)
	data := make([]float64, n*e.ndim)
	for idx := 0; idx < n; idx++ {
		rem := idx
		for d := e.ndim - 1; d >= 0; d-- {
			data[idx*e.ndim+d] = float64(rem%base) + offset
			rem /= base
		}
	}

	s, err := e.stateSpace.New(data, n)
	if err != nil {
		panic(err)
	}
	return s
}

func (e *DiscreteEBM) indices(s *states.States, base int,
	offset float64) ([]int, error) {
	out := make([]int, s.Len())
	for i := range out {
		idx := 0
		for _, v := range s.Row(i) {
			k := int(v - offset)
			if k < 0 || k >= base {
				return nil, gfnerr.New("indices", gfnerr.ErrShape,
					"state %v outside the enumerated states", s.Row(i))
			}
			idx = idx*base + k
		}
		out[i] = idx
	}
	return out, nil
}

// TrueDistPMF implements the environment.Enumerable interface
func (e *DiscreteEBM) TrueDistPMF() ([]float64, error) {
	lr, err := e.LogReward(e.TerminatingStates())
	if err != nil {
		return nil, err
	}

	logZ := floats.LogSumExp(lr)
	for i := range lr {
		lr[i] = math.Exp(lr[i] - logZ)
	}
	return lr, nil
}

// LogPartition implements the environment.Enumerable interface
func (e *DiscreteEBM) LogPartition() (float64, error) {
	lr, err := e.LogReward(e.TerminatingStates())
	if err != nil {
		return 0, err
	}
	return floats.LogSumExp(lr), nil
}

// String implements the fmt.Stringer interface
func (e *DiscreteEBM) String() string {
	return fmt.Sprintf("DiscreteEBM(ndim=%v, alpha=%v)", e.ndim, e.alpha)
}

func pow(base, exp int) int {
	p := 1
	for i := 0; i < exp; i++ {
		p *= base
	}
	return p
}
