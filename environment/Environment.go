// Package environment outlines the interfaces and structs needed to
// implement concrete GFlowNet environments, and the top-level step
// functions that wrap them with validity checking and sink handling.
package environment

import (
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
)

// Environment implements a directed acyclic state graph rooted at s0
// whose terminating states carry a reward
type Environment interface {
	// StateSpace returns the space of states, including s0 and sf
	StateSpace() *states.Space

	// ActionSpace returns the space of actions, including the dummy and
	// exit actions
	ActionSpace() *actions.Space

	// Device returns the device the environment's tensors live on
	Device() device.Device

	// MasklessStep applies non-exit actions to non-sink states of a
	// rank-1 batch. Validity is assumed.
	MasklessStep(s *states.States, a *actions.Actions) (*states.States,
		error)

	// MasklessBackwardStep applies backward actions to non-initial,
	// non-sink states of a rank-1 batch. Validity is assumed.
	MasklessBackwardStep(s *states.States, a *actions.Actions) (
		*states.States, error)

	// IsActionValid returns whether every action of the rank-1 batch
	// is legal at the corresponding state
	IsActionValid(s *states.States, a *actions.Actions, backward bool) bool
}

// Rewarder implements environments that define a reward
type Rewarder interface {
	Reward(final *states.States) ([]float64, error)
}

// LogRewarder implements environments that define a log-reward directly
type LogRewarder interface {
	LogReward(final *states.States) ([]float64, error)
}

// Enumerable implements environments with a finite state space
type Enumerable interface {
	Environment

	// NStates returns the number of states, excluding sf
	NStates() int

	// AllStates returns every state in index order
	AllStates() *states.States

	// StatesIndices returns the index of every state in the batch
	StatesIndices(s *states.States) ([]int, error)

	// NTerminatingStates returns the number of terminating states
	NTerminatingStates() int

	// TerminatingStates returns every terminating state in index order
	TerminatingStates() *states.States

	// TerminatingStatesIndices returns the index of every terminating
	// state in the batch
	TerminatingStatesIndices(s *states.States) ([]int, error)

	// TrueDistPMF returns the reward-proportional distribution over
	// terminating states
	TrueDistPMF() ([]float64, error)

	// LogPartition returns the log of the sum of rewards
	LogPartition() (float64, error)
}

// RandomStarter implements environments which can sample random states
type RandomStarter interface {
	Starter() Starter
}

// Step takes one forward step for each state in the rank-1 batch s.
// Sink states are passed through unchanged and exit actions move to
// the sink state. Invalid actions at non-sink states fail with a
// NonValidAction error. The returned states carry fresh masks.
func Step(env Environment, s *states.States, a *actions.Actions) (
	*states.States, error) {
	if err := checkStep("step", env, s, a); err != nil {
		return nil, err
	}

	sink := s.IsSink()
	live := not(sink)
	if count(live) > 0 && !env.IsActionValid(s.Where(live), a.Where(live),
		false) {
		return nil, gfnerr.New("step", gfnerr.ErrNonValidAction,
			"some actions are not valid")
	}

	exit := a.IsExit()
	move := make([]bool, s.Len())
	for i := range move {
		move[i] = live[i] && !exit[i]
	}

	out := s.Tensor().Clone()
	sf := env.StateSpace().Sf()
	for i := range exit {
		if live[i] && exit[i] {
			out.SetRow(i, sf)
		}
	}

	if count(move) > 0 {
		next, err := env.MasklessStep(s.Where(move), a.Where(move))
		if err != nil {
			return nil, err
		}
		scatter(out.Data(), next, move)
	}

	return env.StateSpace().FromTensor(out)
}

// BackwardStep takes one backward step for each state in the rank-1
// batch s. Initial and sink states are passed through unchanged. Invalid
// actions at the remaining states fail with a NonValidAction error.
func BackwardStep(env Environment, s *states.States, a *actions.Actions) (
	*states.States, error) {
	if err := checkStep("backwardStep", env, s, a); err != nil {
		return nil, err
	}

	sink, initial := s.IsSink(), s.IsInitial()
	move := make([]bool, s.Len())
	for i := range move {
		move[i] = !sink[i] && !initial[i]
	}

	out := s.Tensor().Clone()
	if count(move) > 0 {
		ms, ma := s.Where(move), a.Where(move)
		if !env.IsActionValid(ms, ma, true) {
			return nil, gfnerr.New("backwardStep", gfnerr.ErrNonValidAction,
				"some actions are not valid")
		}

		next, err := env.MasklessBackwardStep(ms, ma)
		if err != nil {
			return nil, err
		}
		scatter(out.Data(), next, move)
	}

	return env.StateSpace().FromTensor(out)
}

// LogRewards returns the log-reward of each state in final, using the
// environment's LogReward if it has one and the log of its Reward
// otherwise
func LogRewards(env Environment, final *states.States) ([]float64, error) {
	if lr, ok := env.(LogRewarder); ok {
		return lr.LogReward(final)
	}

	r, ok := env.(Rewarder)
	if !ok {
		return nil, gfnerr.New("logRewards", gfnerr.ErrUnsupported,
			"environment defines neither Reward nor LogReward")
	}
	rewards, err := r.Reward(final)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(rewards))
	for i, v := range rewards {
		out[i] = math.Log(v)
	}
	return out, nil
}

// Reset returns a fresh batch of states. If sink is true, the batch
// holds sink states. If random is true, states are sampled from the
// environment's Starter. Otherwise the batch holds initial states.
func Reset(env Environment, random, sink bool, batchShape ...int) (
	*states.States, error) {
	sp := env.StateSpace()
	switch {
	case random && sink:
		return nil, gfnerr.New("reset", gfnerr.ErrUnsupported,
			"random and sink are mutually exclusive")

	case sink:
		return sp.Sink(batchShape...), nil

	case random:
		rs, ok := env.(RandomStarter)
		if !ok {
			return nil, gfnerr.New("reset", gfnerr.ErrUnsupported,
				"environment cannot sample random states")
		}

		n := 1
		for _, d := range batchShape {
			n *= d
		}
		dim := sp.StateDim()
		data := make([]float64, 0, n*dim)
		starter := rs.Starter()
		for i := 0; i < n; i++ {
			data = append(data, starter.Start()...)
		}
		return sp.New(data, batchShape...)
	}

	return sp.Initial(batchShape...), nil
}

func checkStep(op string, env Environment, s *states.States,
	a *actions.Actions) error {
	if err := device.Ensure(op, env.Device(), s.Space().Device(),
		a.Space().Device()); err != nil {
		return err
	}
	if len(s.BatchShape()) != 1 || len(a.BatchShape()) != 1 {
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"steps require rank-1 batches")
	}
	if s.Len() != a.Len() {
		return gfnerr.Shape(op, s.Len(), a.Len())
	}
	return nil
}

// scatter copies the rows of next into the rows of out where mask is
// true, in order
func scatter(out []float64, next *states.States, mask []bool) {
	dim := next.Space().StateDim()
	k := 0
	for i, m := range mask {
		if m {
			copy(out[i*dim:(i+1)*dim], next.Row(k))
			k++
		}
	}
}

func not(b []bool) []bool {
	out := make([]bool, len(b))
	for i := range b {
		out[i] = !b[i]
	}
	return out
}

func count(b []bool) int {
	n := 0
	for _, v := range b {
		if v {
			n++
		}
	}
	return n
}
