// Package box implements the Box environment: a continuous walk in the
// unit square starting at the origin. The first step moves at most delta
// away from the origin and every later step moves exactly delta in a
// non-negative direction. A trajectory may exit at any state, the origin
// included.
package box

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"gonum.org/v1/gonum/spatial/r1"
	"gorgonia.org/tensor"
)

// normTolerance bounds the error allowed on the length of a non-initial
// step
const normTolerance = 1e-5

// Config configures a Box
type Config struct {
	Delta float64

	// Epsilon is the tolerance allowed on the walls of the box when
	// checking the validity of actions
	Epsilon float64

	R0, R1, R2 float64
}

// DefaultConfig is the default Box configuration
var DefaultConfig = Config{
	Delta:   0.1,
	Epsilon: 1e-4,
	R0:      0.1,
	R1:      0.5,
	R2:      2.0,
}

// Box is the continuous box environment
type Box struct {
	Config
	stateSpace  *states.Space
	actionSpace *actions.Space
	starter     environment.UniformStarter
}

// New returns a new Box. The seed seeds the sampling of random states.
func New(c Config, seed uint64) (*Box, error) {
	if c.Delta <= 0 || c.Delta > 1 {
		return nil, fmt.Errorf("new: delta must be in (0, 1], have %v",
			c.Delta)
	}
	if c.Epsilon < 0 {
		return nil, fmt.Errorf("new: epsilon must be >= 0, have %v",
			c.Epsilon)
	}

	ninf, inf := math.Inf(-1), math.Inf(1)
	stateSpace, err := states.NewContinuousSpace([]int{2},
		[]float64{0, 0}, []float64{ninf, ninf}, device.CPU)
	if err != nil {
		return nil, err
	}
	actionSpace, err := actions.NewSpace([]int{2}, []float64{inf, inf},
		[]float64{ninf, ninf}, device.CPU)
	if err != nil {
		return nil, err
	}

	unit := r1.Interval{Min: 0, Max: 1}
	starter := environment.NewUniformStarter([]r1.Interval{unit, unit},
		seed)

	return &Box{
		Config:      c,
		stateSpace:  stateSpace,
		actionSpace: actionSpace,
		starter:     starter,
	}, nil
}

// StateSpace implements the environment.Environment interface
func (b *Box) StateSpace() *states.Space { return b.stateSpace }

// ActionSpace implements the environment.Environment interface
func (b *Box) ActionSpace() *actions.Space { return b.actionSpace }

// Device implements the environment.Environment interface
func (b *Box) Device() device.Device { return device.CPU }

// Starter samples states uniformly from the unit square
func (b *Box) Starter() environment.Starter { return b.starter }

// MasklessStep implements the environment.Environment interface
func (b *Box) MasklessStep(s *states.States, a *actions.Actions) (
	*states.States, error) {
	return b.move(s, a, false)
}

// MasklessBackwardStep implements the environment.Environment interface
func (b *Box) MasklessBackwardStep(s *states.States, a *actions.Actions) (
	*states.States, error) {
	return b.move(s, a, true)
}

func (b *Box) move(s *states.States, a *actions.Actions,
	backward bool) (*states.States, error) {
	if s.Len() == 0 {
		return b.stateSpace.Empty(), nil
	}

	var next tensor.Tensor
	var err error
	if backward {
		next, err = tensor.Sub(s.Dense(), a.Dense())
	} else {
		next, err = tensor.Add(s.Dense(), a.Dense())
	}
	if err != nil {
		return nil, fmt.Errorf("move: %v", err)
	}
	return b.stateSpace.FromDense(next.(*tensor.Dense))
}

// IsActionValid implements the environment.Environment interface
func (b *Box) IsActionValid(s *states.States, a *actions.Actions,
	backward bool) bool {
	exit := a.IsExit()
	initial := s.IsInitial()
	dummy := a.IsDummy()

	for i := 0; i < s.Len(); i++ {
		if dummy[i] {
			return false
		}
		if exit[i] {
			if backward {
				return false
			}
			continue
		}

		st, act := s.Row(i), a.Row(i)
		norm := math.Hypot(act[0], act[1])

		if initial[i] {
			if backward || norm > b.Delta+normTolerance {
				return false
			}
			continue
		}

		if act[0] < 0 || act[1] < 0 {
			return false
		}

		if !backward {
			if math.Abs(norm-b.Delta) > normTolerance {
				return false
			}
			if st[0]+act[0] > 1+b.Epsilon || st[1]+act[1] > 1+b.Epsilon {
				return false
			}
			continue
		}

		if st[0]-act[0] < -b.Epsilon || st[1]-act[1] < -b.Epsilon {
			return false
		}
		if math.Hypot(st[0], st[1]) < b.Delta &&
			(act[0] != st[0] || act[1] != st[1]) {
			return false
		}
	}
	return true
}

// Reward returns the reward of each state. The reward is highest near
// the corners of the box, with a band of highest reward at distance
// (0.3, 0.4) from the center along both axes.
func (b *Box) Reward(final *states.States) ([]float64, error) {
	out := make([]float64, final.Len())
	for i := range out {
		outer, band := 1.0, 1.0
		for _, v := range final.Row(i) {
			ax := math.Abs(v - 0.5)
			if !(0.25 < ax) {
				outer = 0
			}
			if !(0.3 < ax && ax < 0.4) {
				band = 0
			}
		}
		out[i] = b.R0 + outer*b.R1 + band*b.R2
	}
	return out, nil
}

// LogPartition returns the log of the integral of the reward over the
// box
func (b *Box) LogPartition() float64 {
	return math.Log(b.R0 + math.Pow(2*0.25, 2)*b.R1 +
		math.Pow(2*0.1, 2)*b.R2)
}

// checkRows ensures a batch of states belongs to the box
func (b *Box) checkRows(op string, s *states.States) error {
	if s.Space() != b.stateSpace {
		return gfnerr.New(op, gfnerr.ErrShape,
			"states do not belong to this environment")
	}
	return nil
}

// String implements the fmt.Stringer interface
func (b *Box) String() string {
	return fmt.Sprintf("Box(delta=%v)", b.Delta)
}
