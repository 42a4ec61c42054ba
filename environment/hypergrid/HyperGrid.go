// Package hypergrid implements the HyperGrid environment: an
// ndim-dimensional grid of side height, entered at the origin, where
// action d increments coordinate d and the last action exits. Every
// state is terminating.
package hypergrid

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"gonum.org/v1/gonum/floats"
)

// Reward parameterizes the HyperGrid reward
type Reward struct {
	R0, R1, R2 float64

	// Cos selects the cosine reward instead of the standard
	// three-level reward
	Cos bool
}

// DefaultReward is the standard HyperGrid reward
var DefaultReward = Reward{R0: 0.1, R1: 0.5, R2: 2.0}

// HyperGrid is an ndim-dimensional grid of side height
type HyperGrid struct {
	ndim, height int
	reward       Reward
	stateSpace   *states.Space
	actionSpace  *actions.Space
	starter      environment.CategoricalStarter
}

// New returns a new HyperGrid with the default reward
func New(ndim, height int, seed uint64) (*HyperGrid, error) {
	return NewWithReward(ndim, height, DefaultReward, seed)
}

// NewWithReward returns a new HyperGrid with the given reward. The seed
// seeds the sampling of random states.
func NewWithReward(ndim, height int, reward Reward,
	seed uint64) (*HyperGrid, error) {
	if ndim < 1 {
		return nil, fmt.Errorf("new: ndim must be >= 1, have %v", ndim)
	}
	if height < 2 {
		return nil, fmt.Errorf("new: height must be >= 2, have %v", height)
	}

	h := &HyperGrid{ndim: ndim, height: height, reward: reward}

	s0 := make([]float64, ndim)
	sf := make([]float64, ndim)
	for i := range sf {
		sf[i] = -1
	}

	var err error
	h.stateSpace, err = states.NewDiscreteSpace([]int{ndim}, s0, sf,
		ndim+1, states.MaskerFunc(h.masks), device.CPU)
	if err != nil {
		return nil, err
	}
	h.actionSpace = actions.NewDiscreteSpace(ndim+1, device.CPU)

	bounds := make([]int, ndim)
	for i := range bounds {
		bounds[i] = height
	}
	h.starter = environment.NewCategoricalStarter(bounds, 0, seed)

	return h, nil
}

// NDim returns the number of dimensions of the grid
func (h *HyperGrid) NDim() int { return h.ndim }

// Height returns the side length of the grid
func (h *HyperGrid) Height() int { return h.height }

// StateSpace implements the environment.Environment interface
func (h *HyperGrid) StateSpace() *states.Space { return h.stateSpace }

// ActionSpace implements the environment.Environment interface
func (h *HyperGrid) ActionSpace() *actions.Space { return h.actionSpace }

// Device implements the environment.Environment interface
func (h *HyperGrid) Device() device.Device { return device.CPU }

// Starter samples uniformly random grid states
func (h *HyperGrid) Starter() environment.Starter { return h.starter }

// masks blocks dimension d at the upper wall going forward and at the
// lower wall going backward. Exit is always allowed.
func (h *HyperGrid) masks(s []float64, forward, backward []bool) {
	top := float64(h.height - 1)
	for d := 0; d < h.ndim; d++ {
		forward[d] = s[d] != top
		backward[d] = s[d] != 0
	}
	forward[h.ndim] = true
}

// MasklessStep implements the environment.Environment interface
func (h *HyperGrid) MasklessStep(s *states.States, a *actions.Actions) (
	*states.States, error) {
	return h.move(s, a, 1)
}

// MasklessBackwardStep implements the environment.Environment interface
func (h *HyperGrid) MasklessBackwardStep(s *states.States,
	a *actions.Actions) (*states.States, error) {
	return h.move(s, a, -1)
}

func (h *HyperGrid) move(s *states.States, a *actions.Actions,
	delta float64) (*states.States, error) {
	out := s.Tensor().Clone()
	for i := 0; i < s.Len(); i++ {
		d := a.Index(i)
		if d < 0 || d >= h.ndim {
			return nil, gfnerr.New("move", gfnerr.ErrNonValidAction,
				"action %v does not move along a dimension", d)
		}
		out.Row(i)[d] += delta
	}
	return h.stateSpace.FromTensor(out)
}

// IsActionValid implements the environment.Environment interface
func (h *HyperGrid) IsActionValid(s *states.States, a *actions.Actions,
	backward bool) bool {
	return environment.MaskValid(s, a, backward)
}

// Reward returns the reward of each state
func (h *HyperGrid) Reward(final *states.States) ([]float64, error) {
	r := h.reward
	out := make([]float64, final.Len())
	ax := make([]float64, h.ndim)

	for i := range out {
		for d, v := range final.Row(i) {
			ax[d] = math.Abs(v/float64(h.height-1) - 0.5)
		}

		if r.Cos {
			prod := 1.0
			for _, x := range ax {
				pdf := math.Exp(-(5*x)*(5*x)/2) / math.Sqrt(2*math.Pi)
				prod *= (math.Cos(50*x) + 1) * pdf
			}
			out[i] = r.R0 + prod*r.R1
			continue
		}

		outer, band := 1.0, 1.0
		for _, x := range ax {
			if !(0.25 < x) {
				outer = 0
			}
			if !(0.3 < x && x < 0.4) {
				band = 0
			}
		}
		out[i] = r.R0 + outer*r.R1 + band*r.R2
	}
	return out, nil
}

// NStates implements the environment.Enumerable interface
func (h *HyperGrid) NStates() int {
	return int(math.Pow(float64(h.height), float64(h.ndim)))
}

// AllStates implements the environment.Enumerable interface
func (h *HyperGrid) AllStates() *states.States {
	n := h.NStates()
	data := make([]float64, 0, n*h.ndim)
	for idx := 0; idx < n; idx++ {
		data = append(data, h.coordinates(idx)...)
	}

	s, err := h.stateSpace.New(data, n)
	if err != nil {
		panic(err)
	}
	return s
}

// coordinates is the inverse of the state index
func (h *HyperGrid) coordinates(idx int) []float64 {
	c := make([]float64, h.ndim)
	for d := h.ndim - 1; d >= 0; d-- {
		c[d] = float64(idx % h.height)
		idx /= h.height
	}
	return c
}

// StatesIndices implements the environment.Enumerable interface. The
// index of a state is its coordinates read as a base-height number.
func (h *HyperGrid) StatesIndices(s *states.States) ([]int, error) {
	out := make([]int, s.Len())
	for i := range out {
		idx := 0
		for _, v := range s.Row(i) {
			if v < 0 || v >= float64(h.height) {
				return nil, gfnerr.New("statesIndices", gfnerr.ErrShape,
					"state %v is not a grid state", s.Row(i))
			}
			idx = idx*h.height + int(v)
		}
		out[i] = idx
	}
	return out, nil
}

// NTerminatingStates implements the environment.Enumerable interface
func (h *HyperGrid) NTerminatingStates() int { return h.NStates() }

// TerminatingStates implements the environment.Enumerable interface
func (h *HyperGrid) TerminatingStates() *states.States { return h.AllStates() }

// TerminatingStatesIndices implements the environment.Enumerable
// interface
func (h *HyperGrid) TerminatingStatesIndices(s *states.States) ([]int,
	error) {
	return h.StatesIndices(s)
}

// TrueDistPMF implements the environment.Enumerable interface
func (h *HyperGrid) TrueDistPMF() ([]float64, error) {
	r, err := h.Reward(h.TerminatingStates())
	if err != nil {
		return nil, err
	}
	floats.Scale(1/floats.Sum(r), r)
	return r, nil
}

// LogPartition implements the environment.Enumerable interface
func (h *HyperGrid) LogPartition() (float64, error) {
	r, err := h.Reward(h.TerminatingStates())
	if err != nil {
		return 0, err
	}
	return math.Log(floats.Sum(r)), nil
}

// String implements the fmt.Stringer interface
func (h *HyperGrid) String() string {
	return fmt.Sprintf("HyperGrid(ndim=%v, height=%v)", h.ndim, h.height)
}
