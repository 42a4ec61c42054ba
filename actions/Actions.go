// Package actions implements batches of environment actions
package actions

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"gorgonia.org/tensor"
)

// Space describes the actions of an environment: their shape, the
// dummy action used as padding and the exit action
type Space struct {
	actionShape []int
	dummy, exit []float64
	nActions    int
	dev         device.Device
}

// NewSpace returns a new Space of continuous actions
func NewSpace(actionShape []int, dummy, exit []float64,
	dev device.Device) (*Space, error) {
	size := 1
	for _, d := range actionShape {
		size *= d
	}
	if len(dummy) != size {
		return nil, gfnerr.Shape("newSpace", size, len(dummy))
	}
	if len(exit) != size {
		return nil, gfnerr.Shape("newSpace", size, len(exit))
	}
	if dev == "" {
		dev = device.Default
	}

	return &Space{
		actionShape: append([]int{}, actionShape...),
		dummy:       append([]float64{}, dummy...),
		exit:        append([]float64{}, exit...),
		dev:         dev,
	}, nil
}

// NewDiscreteSpace returns a new Space of nActions discrete actions
// represented as a single index. The dummy action is -1 and the exit
// action is nActions-1.
func NewDiscreteSpace(nActions int, dev device.Device) *Space {
	if nActions < 1 {
		panic(fmt.Sprintf("newDiscreteSpace: nActions must be >= 1, have %v",
			nActions))
	}

	sp, err := NewSpace([]int{1}, []float64{-1},
		[]float64{float64(nActions - 1)}, dev)
	if err != nil {
		panic(err)
	}
	sp.nActions = nActions
	return sp
}

// ActionShape returns the shape of a single action
func (sp *Space) ActionShape() []int { return append([]int{}, sp.actionShape...) }

// ActionDim returns the number of float64s in a single action
func (sp *Space) ActionDim() int { return len(sp.dummy) }

// Dummy returns the dummy action
func (sp *Space) Dummy() []float64 { return append([]float64{}, sp.dummy...) }

// Exit returns the exit action
func (sp *Space) Exit() []float64 { return append([]float64{}, sp.exit...) }

// NActions returns the number of discrete actions including exit, or 0
// for continuous spaces
func (sp *Space) NActions() int { return sp.nActions }

// IsDiscrete returns whether actions are discrete indices
func (sp *Space) IsDiscrete() bool { return sp.nActions > 0 }

// Device returns the device actions of the space live on
func (sp *Space) Device() device.Device { return sp.dev }

// New returns a batch of actions of the given batch shape backed by data
func (sp *Space) New(data []float64, batchShape ...int) (*Actions, error) {
	t, err := batch.New(data, batchShape, sp.actionShape)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: sp}, nil
}

// FromTensor returns a batch of actions holding t
func (sp *Space) FromTensor(t batch.Tensor) (*Actions, error) {
	if !equalInts(t.ElemShape(), sp.actionShape) {
		return nil, gfnerr.Shape("fromTensor", sp.actionShape, t.ElemShape())
	}
	return &Actions{t: t, space: sp}, nil
}

// FromDense returns a batch of actions from a tensor of shape
// (*batchShape, *actionShape)
func (sp *Space) FromDense(d *tensor.Dense) (*Actions, error) {
	t, err := batch.FromDense(d, sp.actionShape)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: sp}, nil
}

// FromIndices returns a rank-1 batch of discrete actions
func (sp *Space) FromIndices(indices []int) (*Actions, error) {
	if !sp.IsDiscrete() {
		return nil, gfnerr.New("fromIndices", gfnerr.ErrUnsupported,
			"action space is continuous")
	}
	data := make([]float64, len(indices))
	for i, idx := range indices {
		if idx < -1 || idx >= sp.nActions {
			return nil, gfnerr.New("fromIndices", gfnerr.ErrShape,
				"action index %v out of range [-1, %v)", idx, sp.nActions)
		}
		data[i] = float64(idx)
	}
	return sp.New(data, len(indices))
}

// Dummies returns a batch of dummy actions
func (sp *Space) Dummies(batchShape ...int) *Actions {
	return &Actions{t: batch.Full(sp.dummy, sp.actionShape, batchShape...),
		space: sp}
}

// Exits returns a batch of exit actions
func (sp *Space) Exits(batchShape ...int) *Actions {
	return &Actions{t: batch.Full(sp.exit, sp.actionShape, batchShape...),
		space: sp}
}

// Empty returns an empty rank-1 batch of actions
func (sp *Space) Empty() *Actions {
	return sp.Dummies(0)
}

// Actions is a batch of actions
type Actions struct {
	t     batch.Tensor
	space *Space
}

// Space returns the Space the actions belong to
func (a *Actions) Space() *Space { return a.space }

// Tensor returns the underlying batch tensor
func (a *Actions) Tensor() batch.Tensor { return a.t }

// Dense returns the actions as a tensor of shape (*batch, *action)
func (a *Actions) Dense() *tensor.Dense { return a.t.Dense() }

// BatchShape returns the batch shape
func (a *Actions) BatchShape() []int { return a.t.BatchShape() }

// Len returns the number of actions in the batch
func (a *Actions) Len() int { return a.t.Len() }

// Row returns a view of the action at flat index r
func (a *Actions) Row(r int) []float64 { return a.t.Row(r) }

// At returns a view of action (t, i) of a rank-2 batch
func (a *Actions) At(t, i int) []float64 { return a.t.At(t, i) }

// Index returns the discrete action at flat index r
func (a *Actions) Index(r int) int {
	return int(math.Round(a.t.Row(r)[0]))
}

// IsDummy returns which actions equal the dummy action
func (a *Actions) IsDummy() []bool { return a.t.Equal(a.space.dummy) }

// IsExit returns which actions equal the exit action
func (a *Actions) IsExit() []bool { return a.t.Equal(a.space.exit) }

// Select returns a rank-1 batch of the actions at the given flat indices
func (a *Actions) Select(rows []int) *Actions {
	return &Actions{t: a.t.Gather(rows), space: a.space}
}

// Where returns a rank-1 batch of the actions at flat indices where keep
// is true
func (a *Actions) Where(keep []bool) *Actions {
	return &Actions{t: a.t.Where(keep), space: a.space}
}

// Flatten returns the actions as a rank-1 batch
func (a *Actions) Flatten() *Actions {
	t, err := a.t.Reshape(a.Len())
	if err != nil {
		panic(err)
	}
	return &Actions{t: t, space: a.space}
}

// Reshape returns the actions with a new batch shape of equal size
func (a *Actions) Reshape(batchShape ...int) (*Actions, error) {
	t, err := a.t.Reshape(batchShape...)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: a.space}, nil
}

// Columns selects trajectories cols from a rank-2 batch
func (a *Actions) Columns(cols []int) (*Actions, error) {
	t, err := a.t.Columns(cols)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: a.space}, nil
}

// TimeSlice returns time steps [from, to) of a rank-2 batch
func (a *Actions) TimeSlice(from, to int) (*Actions, error) {
	t, err := a.t.TimeSlice(from, to)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: a.space}, nil
}

// PadTime pads a rank-2 batch with dummy actions up to length time steps
func (a *Actions) PadTime(length int) (*Actions, error) {
	t, err := a.t.PadTime(length, a.space.dummy)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: a.space}, nil
}

// Extend concatenates other onto a along the batch dimension. Rank-2
// batches are padded with dummy actions to a common time length first.
func (a *Actions) Extend(other *Actions) error {
	if err := a.compatible("extend", other); err != nil {
		return err
	}

	t, err := batch.Concat(a.t, other.t, a.space.dummy)
	if err != nil {
		return err
	}
	a.t = t
	return nil
}

// Clone returns a deep copy of a
func (a *Actions) Clone() *Actions {
	return &Actions{t: a.t.Clone(), space: a.space}
}

// Equal returns whether a and other hold bit-identical actions of the
// same batch shape
func (a *Actions) Equal(other *Actions) bool {
	return batch.BitEqual(a.t, other.t)
}

// String implements the fmt.Stringer interface
func (a *Actions) String() string {
	return fmt.Sprintf("Actions%v%v", a.t.BatchShape(), a.t.Data())
}

func (a *Actions) compatible(op string, other *Actions) error {
	if err := device.Ensure(op, a.space.dev, other.space.dev); err != nil {
		return err
	}
	if !equalInts(a.space.actionShape, other.space.actionShape) {
		return gfnerr.Shape(op, a.space.actionShape, other.space.actionShape)
	}
	return nil
}

// Stack stacks batches of equal batch shape into one batch with an
// added leading dimension
func Stack(list ...*Actions) (*Actions, error) {
	if len(list) == 0 {
		return nil, gfnerr.New("stack", gfnerr.ErrShape,
			"cannot stack zero batches")
	}

	ts := make([]batch.Tensor, len(list))
	for i, a := range list {
		if err := list[0].compatible("stack", a); err != nil {
			return nil, err
		}
		ts[i] = a.t
	}

	t, err := batch.Stack(ts...)
	if err != nil {
		return nil, err
	}
	return &Actions{t: t, space: list[0].space}, nil
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
