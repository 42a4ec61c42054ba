// Package states implements batches of environment states.
//
// A Space describes the states of one environment: their shape, the
// initial state s0, the sink state sf and, for discrete environments, the
// number of actions and how masks are computed. States built from a Space
// always carry masks computed from their own content. Masks are never
// updated in place; any operation that produces new state content
// produces a new *States with fresh masks.
package states

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"gorgonia.org/tensor"
)

// Masker computes the masks of a single discrete state. The forward
// mask has one entry per action including exit, the backward mask one
// entry per action excluding exit. Both slices are zeroed before the
// call.
type Masker interface {
	Masks(state []float64, forward, backward []bool)
}

// MaskerFunc adapts a function to the Masker interface
type MaskerFunc func(state []float64, forward, backward []bool)

// Masks implements the Masker interface
func (f MaskerFunc) Masks(state []float64, forward, backward []bool) {
	f(state, forward, backward)
}

// Space describes the states of an environment
type Space struct {
	stateShape []int
	s0, sf     []float64
	nActions   int
	masker     Masker
	dev        device.Device
}

// NewContinuousSpace returns a new Space whose states carry no masks
func NewContinuousSpace(stateShape []int, s0, sf []float64,
	dev device.Device) (*Space, error) {
	return newSpace(stateShape, s0, sf, 0, nil, dev)
}

// NewDiscreteSpace returns a new Space for an environment with nActions
// actions, the last of which is the exit action
func NewDiscreteSpace(stateShape []int, s0, sf []float64, nActions int,
	masker Masker, dev device.Device) (*Space, error) {
	if nActions < 1 {
		return nil, fmt.Errorf("newDiscreteSpace: nActions must be >= 1")
	}
	if masker == nil {
		return nil, fmt.Errorf("newDiscreteSpace: masker must not be nil")
	}
	return newSpace(stateShape, s0, sf, nActions, masker, dev)
}

func newSpace(stateShape []int, s0, sf []float64, nActions int,
	masker Masker, dev device.Device) (*Space, error) {
	size := 1
	for _, d := range stateShape {
		size *= d
	}
	if len(s0) != size {
		return nil, gfnerr.Shape("newSpace", size, len(s0))
	}
	if len(sf) != size {
		return nil, gfnerr.Shape("newSpace", size, len(sf))
	}
	if dev == "" {
		dev = device.Default
	}

	return &Space{
		stateShape: append([]int{}, stateShape...),
		s0:         append([]float64{}, s0...),
		sf:         append([]float64{}, sf...),
		nActions:   nActions,
		masker:     masker,
		dev:        dev,
	}, nil
}

// StateShape returns the shape of a single state
func (sp *Space) StateShape() []int { return append([]int{}, sp.stateShape...) }

// StateDim returns the number of float64s in a single state
func (sp *Space) StateDim() int { return len(sp.s0) }

// S0 returns the initial state
func (sp *Space) S0() []float64 { return append([]float64{}, sp.s0...) }

// Sf returns the sink state
func (sp *Space) Sf() []float64 { return append([]float64{}, sp.sf...) }

// NActions returns the number of actions including exit, or 0 for
// continuous spaces
func (sp *Space) NActions() int { return sp.nActions }

// IsDiscrete returns whether states of the space carry masks
func (sp *Space) IsDiscrete() bool { return sp.masker != nil }

// Device returns the device states of the space live on
func (sp *Space) Device() device.Device { return sp.dev }

// New returns a batch of states of the given batch shape backed by data
func (sp *Space) New(data []float64, batchShape ...int) (*States, error) {
	t, err := batch.New(data, batchShape, sp.stateShape)
	if err != nil {
		return nil, err
	}
	return sp.wrap(t), nil
}

// FromTensor returns a batch of states holding t, whose element shape
// must be the state shape
func (sp *Space) FromTensor(t batch.Tensor) (*States, error) {
	if !equalInts(t.ElemShape(), sp.stateShape) {
		return nil, gfnerr.Shape("fromTensor", sp.stateShape, t.ElemShape())
	}
	return sp.wrap(t), nil
}

// FromDense returns a batch of states from a tensor of shape
// (*batchShape, *stateShape)
func (sp *Space) FromDense(d *tensor.Dense) (*States, error) {
	t, err := batch.FromDense(d, sp.stateShape)
	if err != nil {
		return nil, err
	}
	return sp.wrap(t), nil
}

// Initial returns a batch of initial states
func (sp *Space) Initial(batchShape ...int) *States {
	return sp.wrap(batch.Full(sp.s0, sp.stateShape, batchShape...))
}

// Sink returns a batch of sink states
func (sp *Space) Sink(batchShape ...int) *States {
	return sp.wrap(batch.Full(sp.sf, sp.stateShape, batchShape...))
}

// Empty returns an empty rank-1 batch of states
func (sp *Space) Empty() *States {
	return sp.Initial(0)
}

func (sp *Space) wrap(t batch.Tensor) *States {
	s := &States{t: t, space: sp}
	if !sp.IsDiscrete() {
		return s
	}

	n := t.Len()
	s.forward = make([]bool, n*sp.nActions)
	s.backward = make([]bool, n*(sp.nActions-1))
	for r := 0; r < n; r++ {
		sp.masker.Masks(t.Row(r), s.forwardRow(r), s.backwardRow(r))
	}
	return s
}

// States is a batch of states with the masks of every state
type States struct {
	t        batch.Tensor
	space    *Space
	forward  []bool
	backward []bool
}

// Space returns the Space the states belong to
func (s *States) Space() *Space { return s.space }

// Tensor returns the underlying batch tensor
func (s *States) Tensor() batch.Tensor { return s.t }

// Dense returns the states as a tensor of shape (*batch, *state)
func (s *States) Dense() *tensor.Dense { return s.t.Dense() }

// BatchShape returns the batch shape
func (s *States) BatchShape() []int { return s.t.BatchShape() }

// Len returns the number of states in the batch
func (s *States) Len() int { return s.t.Len() }

// Row returns a view of the state at flat index r
func (s *States) Row(r int) []float64 { return s.t.Row(r) }

// At returns a view of state (t, i) of a rank-2 batch
func (s *States) At(t, i int) []float64 { return s.t.At(t, i) }

// IsSink returns which states equal the sink state
func (s *States) IsSink() []bool { return s.t.Equal(s.space.sf) }

// IsInitial returns which states equal the initial state
func (s *States) IsInitial() []bool { return s.t.Equal(s.space.s0) }

// ForwardMask returns the forward mask of the state at flat index r,
// or nil for continuous states
func (s *States) ForwardMask(r int) []bool {
	if s.forward == nil {
		return nil
	}
	return s.forwardRow(r)
}

// BackwardMask returns the backward mask of the state at flat index r,
// or nil for continuous states
func (s *States) BackwardMask(r int) []bool {
	if s.backward == nil {
		return nil
	}
	return s.backwardRow(r)
}

func (s *States) forwardRow(r int) []bool {
	n := s.space.nActions
	return s.forward[r*n : (r+1)*n]
}

func (s *States) backwardRow(r int) []bool {
	n := s.space.nActions - 1
	return s.backward[r*n : (r+1)*n]
}

// Select returns a rank-1 batch of the states at the given flat indices
func (s *States) Select(rows []int) *States {
	return s.space.wrap(s.t.Gather(rows))
}

// Where returns a rank-1 batch of the states at flat indices where keep
// is true
func (s *States) Where(keep []bool) *States {
	return s.space.wrap(s.t.Where(keep))
}

// Flatten returns the states as a rank-1 batch
func (s *States) Flatten() *States {
	t, err := s.t.Reshape(s.Len())
	if err != nil {
		panic(err)
	}
	return &States{t: t, space: s.space, forward: s.forward,
		backward: s.backward}
}

// Reshape returns the states with a new batch shape of equal size
func (s *States) Reshape(batchShape ...int) (*States, error) {
	t, err := s.t.Reshape(batchShape...)
	if err != nil {
		return nil, err
	}
	return &States{t: t, space: s.space, forward: s.forward,
		backward: s.backward}, nil
}

// Columns selects trajectories cols from a rank-2 batch
func (s *States) Columns(cols []int) (*States, error) {
	t, err := s.t.Columns(cols)
	if err != nil {
		return nil, err
	}
	return s.space.wrap(t), nil
}

// TimeSlice returns time steps [from, to) of a rank-2 batch
func (s *States) TimeSlice(from, to int) (*States, error) {
	t, err := s.t.TimeSlice(from, to)
	if err != nil {
		return nil, err
	}
	return s.space.wrap(t), nil
}

// PadTime pads a rank-2 batch with sink states up to length time steps
func (s *States) PadTime(length int) (*States, error) {
	t, err := s.t.PadTime(length, s.space.sf)
	if err != nil {
		return nil, err
	}
	return s.space.wrap(t), nil
}

// Extend concatenates other onto s along the batch dimension. Rank-2
// batches are padded with sink states to a common time length first.
func (s *States) Extend(other *States) error {
	if err := s.compatible("extend", other); err != nil {
		return err
	}

	t, err := batch.Concat(s.t, other.t, s.space.sf)
	if err != nil {
		return err
	}
	*s = *s.space.wrap(t)
	return nil
}

// Clone returns a deep copy of s
func (s *States) Clone() *States {
	c := &States{t: s.t.Clone(), space: s.space}
	if s.forward != nil {
		c.forward = append([]bool{}, s.forward...)
		c.backward = append([]bool{}, s.backward...)
	}
	return c
}

// Equal returns whether s and other hold bit-identical states of the
// same batch shape
func (s *States) Equal(other *States) bool {
	return batch.BitEqual(s.t, other.t)
}

// String implements the fmt.Stringer interface
func (s *States) String() string {
	return fmt.Sprintf("States%v%v", s.t.BatchShape(), s.t.Data())
}

func (s *States) compatible(op string, other *States) error {
	if err := device.Ensure(op, s.space.dev, other.space.dev); err != nil {
		return err
	}
	if !equalInts(s.space.stateShape, other.space.stateShape) {
		return gfnerr.Shape(op, s.space.stateShape, other.space.stateShape)
	}
	return nil
}

// Stack stacks batches of equal batch shape into one batch with an
// added leading dimension
func Stack(list ...*States) (*States, error) {
	if len(list) == 0 {
		return nil, gfnerr.New("stack", gfnerr.ErrShape,
			"cannot stack zero batches")
	}

	ts := make([]batch.Tensor, len(list))
	for i, s := range list {
		if err := list[0].compatible("stack", s); err != nil {
			return nil, err
		}
		ts[i] = s.t
	}

	t, err := batch.Stack(ts...)
	if err != nil {
		return nil, err
	}
	return list[0].space.wrap(t), nil
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
