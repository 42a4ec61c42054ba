package containers

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"github.com/samuelfneumann/gogfn/utils/intutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Transitions is a flat batch of (state, action, next state) steps.
// Row order carries no meaning.
type Transitions struct {
	env           environment.Environment
	states        *states.States
	actions       *actions.Actions
	nextStates    *states.States
	isTerminating []bool
	isBackward    bool

	logProbs     []float64
	conditioning *mat.Dense
	clip         *float64
	logRewards   logRewardCache
}

// NewTransitions returns a new batch of transitions. The states,
// actions and next states must be rank-1 batches of equal length.
func NewTransitions(env environment.Environment, s *states.States,
	a *actions.Actions, next *states.States, isTerminating []bool,
	isBackward bool, opts ...Option) (*Transitions, error) {
	const op = "newTransitions"
	if err := device.Ensure(op, env.Device(), s.Space().Device(),
		a.Space().Device(), next.Space().Device()); err != nil {
		return nil, err
	}

	for _, shape := range [][]int{s.BatchShape(), a.BatchShape(),
		next.BatchShape()} {
		if len(shape) != 1 {
			return nil, gfnerr.New(op, gfnerr.ErrShape,
				"transitions must have batch rank 1, have shape %v", shape)
		}
	}

	n := s.Len()
	if a.Len() != n || next.Len() != n || len(isTerminating) != n {
		return nil, gfnerr.New(op, gfnerr.ErrShape,
			"lengths differ: states %v, actions %v, next states %v, "+
				"terminating %v", n, a.Len(), next.Len(), len(isTerminating))
	}

	o := newOptional(opts)
	if o.logProbs != nil && len(o.logProbs) != n {
		return nil, gfnerr.Shape(op, n, len(o.logProbs))
	}
	if o.logRewards != nil && len(o.logRewards) != n {
		return nil, gfnerr.Shape(op, n, len(o.logRewards))
	}
	if o.conditioning != nil && n > 0 {
		if r, _ := o.conditioning.Dims(); r != n {
			return nil, gfnerr.Shape(op, n, r)
		}
	}

	t := &Transitions{
		env:           env,
		states:        s,
		actions:       a,
		nextStates:    next,
		isTerminating: append([]bool{}, isTerminating...),
		isBackward:    isBackward,
		logProbs:      o.logProbs,
		conditioning:  o.conditioning,
		clip:          o.clip,
	}
	t.logRewards.set(o.logRewards)
	return t, nil
}

// EmptyTransitions returns a batch of zero transitions
func EmptyTransitions(env environment.Environment,
	isBackward bool) *Transitions {
	return &Transitions{
		env:           env,
		states:        env.StateSpace().Empty(),
		actions:       env.ActionSpace().Empty(),
		nextStates:    env.StateSpace().Empty(),
		isTerminating: []bool{},
		isBackward:    isBackward,
	}
}

// Env implements the Container interface
func (t *Transitions) Env() environment.Environment { return t.env }

// Len implements the Container interface
func (t *Transitions) Len() int { return t.states.Len() }

// States returns the states the actions were taken in
func (t *Transitions) States() *states.States { return t.states }

// Actions returns the actions taken
func (t *Transitions) Actions() *actions.Actions { return t.actions }

// NextStates returns the states reached
func (t *Transitions) NextStates() *states.States { return t.nextStates }

// IsTerminating returns which transitions take the exit action
func (t *Transitions) IsTerminating() []bool {
	return append([]bool{}, t.isTerminating...)
}

// IsBackward returns whether the transitions were recorded backward
func (t *Transitions) IsBackward() bool { return t.isBackward }

// LogProbs returns the log-probability of every action, or nil if the
// transitions carry none
func (t *Transitions) LogProbs() []float64 {
	if t.logProbs == nil {
		return nil
	}
	return append([]float64{}, t.logProbs...)
}

// Conditioning returns the conditioning rows, or nil if the
// transitions carry none
func (t *Transitions) Conditioning() *mat.Dense { return t.conditioning }

// LogRewards implements the Container interface. Non-terminating
// transitions have a log-reward of -inf. The result is computed once
// and memoized.
func (t *Transitions) LogRewards() ([]float64, error) {
	if t.isBackward {
		return nil, gfnerr.New("logRewards", gfnerr.ErrUnsupported,
			"log-rewards of backward transitions are undefined")
	}

	return t.logRewards.get(func() ([]float64, error) {
		out := make([]float64, t.Len())
		for i := range out {
			out[i] = math.Inf(-1)
		}

		lr, err := logRewardsOf(t.env, t.states.Where(t.isTerminating),
			t.clip)
		if err != nil {
			return nil, err
		}
		for k, i := range indices(t.isTerminating) {
			out[i] = lr[k]
		}
		return out, nil
	})
}

// AllLogRewards returns an (n, 2) matrix holding the log-rewards of the
// state and next state of every transition whose next state is not the
// sink state. Other rows hold -inf. This is meaningful for environments
// where every state is terminating.
func (t *Transitions) AllLogRewards() (*mat.Dense, error) {
	if t.isBackward {
		return nil, gfnerr.New("allLogRewards", gfnerr.ErrUnsupported,
			"log-rewards of backward transitions are undefined")
	}

	n := t.Len()
	if n == 0 {
		return &mat.Dense{}, nil
	}

	out := mat.NewDense(n, 2, nil)
	ninf := math.Inf(-1)
	for i := 0; i < n; i++ {
		out.Set(i, 0, ninf)
		out.Set(i, 1, ninf)
	}

	live := not(t.nextStates.IsSink())
	parents, err := logRewardsOf(t.env, t.states.Where(live), t.clip)
	if err != nil {
		return nil, err
	}
	children, err := logRewardsOf(t.env, t.nextStates.Where(live), t.clip)
	if err != nil {
		return nil, err
	}

	for k, i := range indices(live) {
		out.Set(i, 0, parents[k])
		out.Set(i, 1, children[k])
	}
	return out, nil
}

// Select returns the transitions at the given rows. Optional fields are
// carried over only when present.
func (t *Transitions) Select(rows []int) (*Transitions, error) {
	if err := checkRows("select", t.Len(), rows); err != nil {
		return nil, err
	}

	return &Transitions{
		env:           t.env,
		states:        t.states.Select(rows),
		actions:       t.actions.Select(rows),
		nextStates:    t.nextStates.Select(rows),
		isTerminating: gatherBools(t.isTerminating, rows),
		isBackward:    t.isBackward,
		logProbs:      gatherFloats(t.logProbs, rows),
		conditioning:  gatherRows(t.conditioning, rows),
		clip:          t.clip,
		logRewards:    t.logRewards.gather(rows),
	}, nil
}

// Mask returns the transitions at rows where keep is true
func (t *Transitions) Mask(keep []bool) (*Transitions, error) {
	if len(keep) != t.Len() {
		return nil, gfnerr.Shape("mask", t.Len(), len(keep))
	}
	return t.Select(indices(keep))
}

// Subset implements the Container interface
func (t *Transitions) Subset(rows []int) (Container, error) {
	return t.Select(rows)
}

// Sample returns min(n, Len()) transitions drawn uniformly without
// replacement
func (t *Transitions) Sample(n int, src rand.Source) (*Transitions, error) {
	perm := rand.New(src).Perm(t.Len())
	return t.Select(perm[:intutils.Clip(n, 0, t.Len())])
}

// Extend concatenates other onto t. Extending an empty batch adopts the
// content of other. Conditional transitions cannot be extended.
// Log-probabilities are kept only if both batches carry them.
func (t *Transitions) Extend(other *Transitions) error {
	const op = "extend"
	if t.conditioning != nil || other.conditioning != nil {
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot extend conditional transitions")
	}
	if t.isBackward != other.isBackward {
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot extend forward transitions with backward ones")
	}

	if other.Len() == 0 {
		return nil
	}
	if t.Len() == 0 {
		*t = *other.Clone()
		return nil
	}

	s, err := extendStates(t.states, other.states)
	if err != nil {
		return err
	}
	a, err := extendActions(t.actions, other.actions)
	if err != nil {
		return err
	}
	next, err := extendStates(t.nextStates, other.nextStates)
	if err != nil {
		return err
	}
	t.states, t.actions, t.nextStates = s, a, next
	t.isTerminating = append(t.isTerminating, other.isTerminating...)

	if t.logProbs != nil && other.logProbs != nil {
		t.logProbs = append(t.logProbs, other.logProbs...)
	} else {
		t.logProbs = nil
	}
	t.logRewards.extend(&other.logRewards)
	return nil
}

// Append implements the Container interface
func (t *Transitions) Append(other Container) error {
	o, ok := other.(*Transitions)
	if !ok {
		return gfnerr.New("append", gfnerr.ErrUnsupported,
			"cannot append %T to transitions", other)
	}
	return t.Extend(o)
}

// Clone returns a deep copy of t
func (t *Transitions) Clone() *Transitions {
	c := *t
	c.states = t.states.Clone()
	c.actions = t.actions.Clone()
	c.nextStates = t.nextStates.Clone()
	c.isTerminating = append([]bool{}, t.isTerminating...)
	if t.logProbs != nil {
		c.logProbs = append([]float64{}, t.logProbs...)
	}
	c.conditioning = cloneDense(t.conditioning)
	c.logRewards = t.logRewards.gather(intutils.Arange(0, t.Len()))
	return &c
}

// String implements the fmt.Stringer interface
func (t *Transitions) String() string {
	return fmt.Sprintf("Transitions(n=%v, backward=%v)", t.Len(),
		t.isBackward)
}

func not(b []bool) []bool {
	out := make([]bool, len(b))
	for i, v := range b {
		out[i] = !v
	}
	return out
}
