package containers

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"github.com/samuelfneumann/gogfn/utils/intutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Trajectories is a padded batch of B trajectories of at most T steps.
// States have batch shape (T+1, B) and actions (T, B). Column i holds
// trajectory i, padded with sink states and dummy actions past its
// terminating index.
//
// For a forward trajectory with terminating index k, states[k] is the
// last state, actions[k] is the exit action and states[k+1] is the sink
// state. A backward trajectory with terminating index L took L backward
// steps from states[0], reaching states[L], and actions[L] is the dummy
// action.
type Trajectories struct {
	env            environment.Environment
	states         *states.States
	actions        *actions.Actions
	terminatingIdx []int
	isBackward     bool
	truncated      []bool

	logProbs         []float64
	estimatorOutputs *batch.Tensor
	conditioning     *mat.Dense
	clip             *float64
	logRewards       logRewardCache
}

// NewTrajectories returns a new batch of trajectories
func NewTrajectories(env environment.Environment, s *states.States,
	a *actions.Actions, terminatingIdx []int, isBackward bool,
	opts ...Option) (*Trajectories, error) {
	const op = "newTrajectories"
	if err := device.Ensure(op, env.Device(), s.Space().Device(),
		a.Space().Device()); err != nil {
		return nil, err
	}

	ss, as := s.BatchShape(), a.BatchShape()
	if len(ss) != 2 || len(as) != 2 {
		return nil, gfnerr.New(op, gfnerr.ErrShape,
			"trajectories must have batch rank 2, have states %v and "+
				"actions %v", ss, as)
	}
	T, B := as[0], as[1]
	if ss[0] != T+1 || ss[1] != B {
		return nil, gfnerr.Shape(op, []int{T + 1, B}, ss)
	}
	if len(terminatingIdx) != B {
		return nil, gfnerr.Shape(op, B, len(terminatingIdx))
	}
	for _, k := range terminatingIdx {
		if k < 0 || k >= T {
			return nil, gfnerr.New(op, gfnerr.ErrShape,
				"terminating index %v out of range [0, %v)", k, T)
		}
	}

	o := newOptional(opts)
	if o.logProbs != nil && len(o.logProbs) != T*B {
		return nil, gfnerr.Shape(op, T*B, len(o.logProbs))
	}
	if o.logRewards != nil && len(o.logRewards) != B {
		return nil, gfnerr.Shape(op, B, len(o.logRewards))
	}
	if o.truncated != nil && len(o.truncated) != B {
		return nil, gfnerr.Shape(op, B, len(o.truncated))
	}
	if o.conditioning != nil && B > 0 {
		if r, _ := o.conditioning.Dims(); r != B {
			return nil, gfnerr.Shape(op, B, r)
		}
	}
	if o.estimatorOutputs != nil {
		if shape := o.estimatorOutputs.BatchShape(); len(shape) != 2 ||
			shape[0] != T || shape[1] != B {
			return nil, gfnerr.Shape(op, []int{T, B}, shape)
		}
	}

	t := &Trajectories{
		env:              env,
		states:           s,
		actions:          a,
		terminatingIdx:   append([]int{}, terminatingIdx...),
		isBackward:       isBackward,
		truncated:        o.truncated,
		logProbs:         o.logProbs,
		estimatorOutputs: o.estimatorOutputs,
		conditioning:     o.conditioning,
		clip:             o.clip,
	}
	t.logRewards.set(o.logRewards)
	return t, nil
}

// EmptyTrajectories returns a batch of zero trajectories
func EmptyTrajectories(env environment.Environment,
	isBackward bool) *Trajectories {
	return &Trajectories{
		env:            env,
		states:         env.StateSpace().Sink(1, 0),
		actions:        env.ActionSpace().Dummies(0, 0),
		terminatingIdx: []int{},
		isBackward:     isBackward,
	}
}

// Env implements the Container interface
func (t *Trajectories) Env() environment.Environment { return t.env }

// Len implements the Container interface. It returns the number of
// trajectories.
func (t *Trajectories) Len() int { return len(t.terminatingIdx) }

// MaxLength returns the length T of the time axis of the actions
func (t *Trajectories) MaxLength() int { return t.actions.BatchShape()[0] }

// States returns the states with batch shape (T+1, B)
func (t *Trajectories) States() *states.States { return t.states }

// Actions returns the actions with batch shape (T, B)
func (t *Trajectories) Actions() *actions.Actions { return t.actions }

// TerminatingIdx returns the terminating index of every trajectory
func (t *Trajectories) TerminatingIdx() []int {
	return append([]int{}, t.terminatingIdx...)
}

// IsBackward returns whether the trajectories were sampled backward
func (t *Trajectories) IsBackward() bool { return t.isBackward }

// Truncated returns which trajectories were cut off at a maximum
// length
func (t *Trajectories) Truncated() []bool {
	if t.truncated == nil {
		return make([]bool, t.Len())
	}
	return append([]bool{}, t.truncated...)
}

// LogProbs returns the recorded log-probability of action (ti, i) at
// index ti*B + i, or nil if the trajectories carry none
func (t *Trajectories) LogProbs() []float64 {
	if t.logProbs == nil {
		return nil
	}
	return append([]float64{}, t.logProbs...)
}

// EstimatorOutputs returns the recorded estimator outputs, or nil
func (t *Trajectories) EstimatorOutputs() *batch.Tensor {
	return t.estimatorOutputs
}

// Conditioning returns the conditioning rows, or nil
func (t *Trajectories) Conditioning() *mat.Dense { return t.conditioning }

// LastStates returns states[terminatingIdx[i], i] for every trajectory
func (t *Trajectories) LastStates() *states.States {
	B := t.Len()
	rows := make([]int, B)
	for i, k := range t.terminatingIdx {
		rows[i] = k*B + i
	}
	return t.states.Select(rows)
}

// TerminatingStates returns the reward-bearing state of every
// trajectory: the last state of forward trajectories and the first
// state of backward ones
func (t *Trajectories) TerminatingStates() *states.States {
	if !t.isBackward {
		return t.LastStates()
	}
	return t.states.Select(intutils.Arange(0, t.Len()))
}

// LogRewards implements the Container interface. The result is
// computed once and memoized.
func (t *Trajectories) LogRewards() ([]float64, error) {
	return t.logRewards.get(func() ([]float64, error) {
		return logRewardsOf(t.env, t.TerminatingStates(), t.clip)
	})
}

// Select returns the trajectories at the given columns, with the time
// axis trimmed to the longest selected trajectory
func (t *Trajectories) Select(cols []int) (*Trajectories, error) {
	const op = "select"
	B := t.Len()
	if err := checkRows(op, B, cols); err != nil {
		return nil, err
	}

	tidx := make([]int, len(cols))
	for k, c := range cols {
		tidx[k] = t.terminatingIdx[c]
	}
	T := timeLength(tidx)

	s, err := t.states.Columns(cols)
	if err != nil {
		return nil, err
	}
	if s, err = s.TimeSlice(0, T+1); err != nil {
		return nil, err
	}
	a, err := t.actions.Columns(cols)
	if err != nil {
		return nil, err
	}
	if a, err = a.TimeSlice(0, T); err != nil {
		return nil, err
	}

	out := &Trajectories{
		env:            t.env,
		states:         s,
		actions:        a,
		terminatingIdx: tidx,
		isBackward:     t.isBackward,
		truncated:      gatherBools(t.truncated, cols),
		conditioning:   gatherRows(t.conditioning, cols),
		clip:           t.clip,
		logRewards:     t.logRewards.gather(cols),
	}

	if t.logProbs != nil {
		out.logProbs = make([]float64, T*len(cols))
		for ti := 0; ti < T; ti++ {
			for k, c := range cols {
				out.logProbs[ti*len(cols)+k] = t.logProbs[ti*B+c]
			}
		}
	}

	if t.estimatorOutputs != nil {
		o, err := t.estimatorOutputs.Columns(cols)
		if err != nil {
			return nil, err
		}
		if o, err = o.TimeSlice(0, T); err != nil {
			return nil, err
		}
		out.estimatorOutputs = &o
	}
	return out, nil
}

// Mask returns the trajectories where keep is true
func (t *Trajectories) Mask(keep []bool) (*Trajectories, error) {
	if len(keep) != t.Len() {
		return nil, gfnerr.Shape("mask", t.Len(), len(keep))
	}
	return t.Select(indices(keep))
}

// Subset implements the Container interface
func (t *Trajectories) Subset(rows []int) (Container, error) {
	return t.Select(rows)
}

// Sample returns min(n, Len()) trajectories drawn uniformly without
// replacement
func (t *Trajectories) Sample(n int, src rand.Source) (*Trajectories,
	error) {
	perm := rand.New(src).Perm(t.Len())
	return t.Select(perm[:intutils.Clip(n, 0, t.Len())])
}

// Extend concatenates other onto t along the trajectory axis, padding
// the shorter batch with sink states and dummy actions. Extending an
// empty batch adopts the content of other. Conditional trajectories
// cannot be extended.
//
// Log-probabilities and estimator outputs are kept only if both batches
// carry them. Otherwise the result carries none.
func (t *Trajectories) Extend(other *Trajectories) error {
	const op = "extend"
	if t.conditioning != nil || other.conditioning != nil {
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot extend conditional trajectories")
	}
	if t.isBackward != other.isBackward {
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot extend forward trajectories with backward ones")
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

	var logProbs []float64
	if t.logProbs != nil && other.logProbs != nil {
		logProbs, err = concatTime(t.logProbs, t.MaxLength(), t.Len(),
			other.logProbs, other.MaxLength(), other.Len())
		if err != nil {
			return err
		}
	}

	var outputs *batch.Tensor
	if t.estimatorOutputs != nil && other.estimatorOutputs != nil {
		fill := make([]float64, t.estimatorOutputs.ElemSize())
		o, err := batch.Concat(*t.estimatorOutputs, *other.estimatorOutputs,
			fill)
		if err != nil {
			return err
		}
		outputs = &o
	}

	if t.truncated != nil || other.truncated != nil {
		t.truncated = append(t.Truncated(), other.Truncated()...)
	}
	t.states, t.actions = s, a
	t.terminatingIdx = append(t.terminatingIdx, other.terminatingIdx...)
	t.logProbs = logProbs
	t.estimatorOutputs = outputs
	t.logRewards.extend(&other.logRewards)
	return nil
}

// Append implements the Container interface
func (t *Trajectories) Append(other Container) error {
	o, ok := other.(*Trajectories)
	if !ok {
		return gfnerr.New("append", gfnerr.ErrUnsupported,
			"cannot append %T to trajectories", other)
	}
	return t.Extend(o)
}

// Merge returns a batch holding trajectory i of other where accept[i]
// is true and trajectory i of t otherwise
func (t *Trajectories) Merge(accept []bool, other *Trajectories) (
	*Trajectories, error) {
	const op = "merge"
	B := t.Len()
	if len(accept) != B {
		return nil, gfnerr.Shape(op, B, len(accept))
	}
	if other.Len() != B {
		return nil, gfnerr.Shape(op, B, other.Len())
	}
	if B == 0 {
		return t.Clone(), nil
	}

	both := t.Clone()
	if err := both.Extend(other); err != nil {
		return nil, err
	}

	cols := make([]int, B)
	for i, a := range accept {
		if a {
			cols[i] = B + i
		} else {
			cols[i] = i
		}
	}
	return both.Select(cols)
}

// ToTransitions flattens the trajectories into transitions, dropping
// the padding. For forward trajectories the transition taken at the
// terminating index is the terminating one. Backward trajectories give
// backward transitions, none of which terminate.
func (t *Trajectories) ToTransitions() (*Transitions, error) {
	T, B := t.MaxLength(), t.Len()

	var rows, next, traj []int
	var terminating []bool
	for ti := 0; ti < T; ti++ {
		for i, k := range t.terminatingIdx {
			if ti > k || (t.isBackward && ti == k) {
				continue
			}
			rows = append(rows, ti*B+i)
			next = append(next, (ti+1)*B+i)
			traj = append(traj, i)
			terminating = append(terminating, !t.isBackward && ti == k)
		}
	}
	if len(rows) == 0 {
		return EmptyTransitions(t.env, t.isBackward), nil
	}

	var opts []Option
	if t.logProbs != nil {
		opts = append(opts, WithLogProbs(gatherFloats(t.logProbs, rows)))
	}
	if t.clip != nil {
		opts = append(opts, WithLogRewardClip(*t.clip))
	}
	if t.conditioning != nil {
		opts = append(opts, WithConditioning(gatherRows(t.conditioning,
			traj)))
	}
	if !t.isBackward && t.logRewards.valid {
		lr := make([]float64, len(rows))
		for k, i := range traj {
			if terminating[k] {
				lr[k] = t.logRewards.values[i]
			} else {
				lr[k] = negInf
			}
		}
		opts = append(opts, WithLogRewards(lr))
	}

	return NewTransitions(t.env, t.states.Select(rows),
		t.actions.Select(rows), t.states.Select(next), terminating,
		t.isBackward, opts...)
}

// Reverse returns the trajectories walked in the opposite direction.
// Trajectory i of length L = terminatingIdx[i] becomes the trajectory
// with states[j] = states[L-j] and actions[j] = actions[L-1-j] for
// j < L. A reversed backward trajectory exits at L, and a reversed
// forward trajectory ends at L with the dummy action. Log-probabilities
// are reversed the same way with 0 at L. Estimator outputs are dropped.
func (t *Trajectories) Reverse() (*Trajectories, error) {
	T, B := t.MaxLength(), t.Len()
	sp, ap := t.states.Space(), t.actions.Space()

	st := batch.Full(sp.Sf(), sp.StateShape(), T+1, B)
	at := batch.Full(ap.Dummy(), ap.ActionShape(), T, B)
	end := ap.Dummy()
	if t.isBackward {
		end = ap.Exit()
	}

	var logProbs []float64
	if t.logProbs != nil {
		logProbs = make([]float64, T*B)
	}

	for i, L := range t.terminatingIdx {
		for j := 0; j <= L; j++ {
			st.SetRow(j*B+i, t.states.At(L-j, i))
		}
		for j := 0; j < L; j++ {
			at.SetRow(j*B+i, t.actions.At(L-1-j, i))
			if logProbs != nil {
				logProbs[j*B+i] = t.logProbs[(L-1-j)*B+i]
			}
		}
		at.SetRow(L*B+i, end)
	}

	s, err := sp.FromTensor(st)
	if err != nil {
		return nil, err
	}
	a, err := ap.FromTensor(at)
	if err != nil {
		return nil, err
	}

	return &Trajectories{
		env:            t.env,
		states:         s,
		actions:        a,
		terminatingIdx: t.TerminatingIdx(),
		isBackward:     !t.isBackward,
		truncated:      gatherBools(t.truncated, intutils.Arange(0, B)),
		logProbs:       logProbs,
		conditioning:   cloneDense(t.conditioning),
		clip:           t.clip,
		logRewards:     t.logRewards.gather(intutils.Arange(0, B)),
	}, nil
}

// Clone returns a deep copy of t
func (t *Trajectories) Clone() *Trajectories {
	c := *t
	c.states = t.states.Clone()
	c.actions = t.actions.Clone()
	c.terminatingIdx = t.TerminatingIdx()
	c.truncated = gatherBools(t.truncated, intutils.Arange(0, t.Len()))
	if t.logProbs != nil {
		c.logProbs = t.LogProbs()
	}
	if t.estimatorOutputs != nil {
		o := t.estimatorOutputs.Clone()
		c.estimatorOutputs = &o
	}
	c.conditioning = cloneDense(t.conditioning)
	c.logRewards = t.logRewards.gather(intutils.Arange(0, t.Len()))
	return &c
}

// String implements the fmt.Stringer interface
func (t *Trajectories) String() string {
	return fmt.Sprintf("Trajectories(n=%v, T=%v, backward=%v)", t.Len(),
		t.MaxLength(), t.isBackward)
}

// timeLength returns the length of the time axis needed to hold
// trajectories with the given terminating indices
func timeLength(terminatingIdx []int) int {
	if len(terminatingIdx) == 0 {
		return 0
	}
	return intutils.Max(terminatingIdx...) + 1
}

// concatTime concatenates two (T, B) scalar grids along B, padding the
// shorter with zeros
func concatTime(a []float64, ta, ba int, b []float64, tb, bb int) (
	[]float64, error) {
	x, err := batch.New(a, []int{ta, ba}, nil)
	if err != nil {
		return nil, err
	}
	y, err := batch.New(b, []int{tb, bb}, nil)
	if err != nil {
		return nil, err
	}
	out, err := batch.Concat(x, y, []float64{0})
	if err != nil {
		return nil, err
	}
	return out.Data(), nil
}
