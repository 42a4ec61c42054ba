// Package samplers implements vectorized forward and backward rollouts
// of a policy estimator in an environment, and local search over
// sampled trajectories.
package samplers

import (
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Sampler samples actions and trajectories from a policy estimator.
// A backward estimator gives a backward sampler.
type Sampler struct {
	estimator estimators.PolicyEstimator
	src       rand.Source
	logger    zerolog.Logger
}

// Option configures a Sampler
type Option func(*Sampler)

// WithLogger sets the logger of a Sampler
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sampler) {
		s.logger = l
	}
}

// New returns a new Sampler drawing actions from the estimator with a
// source seeded by seed
func New(estimator estimators.PolicyEstimator, seed uint64,
	opts ...Option) *Sampler {
	s := &Sampler{
		estimator: estimator,
		src:       rand.NewSource(seed),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "sampler").
		Bool("backward", estimator.IsBackward()).Logger()
	return s
}

// Estimator returns the policy estimator of the sampler
func (s *Sampler) Estimator() estimators.PolicyEstimator {
	return s.estimator
}

// IsBackward returns whether the sampler samples backward
func (s *Sampler) IsBackward() bool {
	return s.estimator.IsBackward()
}

// SampleActions samples one action at each state of the rank-1 batch
// st. The log-probabilities of the actions and the raw estimator
// outputs are returned when requested, and are nil otherwise. Outputs
// are also nil if the estimator's distributions do not expose them.
func (s *Sampler) SampleActions(st *states.States, saveLogProbs,
	saveOutputs bool) (*actions.Actions, []float64, *mat.Dense, error) {
	dist, err := s.estimator.Distribution(st)
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := dist.Sample(s.src)
	if err != nil {
		return nil, nil, nil, err
	}

	var logProbs []float64
	if saveLogProbs {
		if logProbs, err = dist.LogProb(a); err != nil {
			return nil, nil, nil, err
		}
	}

	var outputs *mat.Dense
	if saveOutputs {
		if op, ok := dist.(estimators.OutputProvider); ok {
			outputs = op.Outputs()
		}
	}
	return a, logProbs, outputs, nil
}

// SampleOptions configures the sampling of trajectories
type SampleOptions struct {
	// N is the number of trajectories to sample when States is nil.
	// Forward trajectories then start at s0 and backward trajectories
	// at random states of the environment.
	N int

	// States holds the rank-1 batch of starting states
	States *states.States

	SaveLogProbs         bool
	SaveEstimatorOutputs bool

	// MaxLength caps the number of steps of a trajectory. Forward
	// trajectories still running after MaxLength steps are forced to
	// exit, backward ones are stopped. Both are flagged as truncated.
	// Zero means no cap.
	MaxLength int
}

// SampleTrajectories samples a batch of trajectories. All trajectories
// are advanced together. A forward trajectory terminates when it takes
// the exit action and a backward trajectory when it reaches s0.
func (s *Sampler) SampleTrajectories(env environment.Environment,
	opts SampleOptions) (*containers.Trajectories, error) {
	const op = "sampleTrajectories"
	if err := device.Ensure(op, env.Device(),
		s.estimator.Device()); err != nil {
		return nil, err
	}
	if opts.MaxLength < 0 {
		return nil, gfnerr.New(op, gfnerr.ErrShape,
			"max length must be >= 0, have %v", opts.MaxLength)
	}

	backward := s.IsBackward()
	current, err := s.start(env, opts)
	if err != nil {
		return nil, err
	}

	sp, ap := env.StateSpace(), env.ActionSpace()
	B := current.Len()
	done := make([]bool, B)
	tidx := make([]int, B)
	truncated := make([]bool, B)
	if backward {
		for i, initial := range current.IsInitial() {
			done[i] = initial
		}
	}

	stateSteps := []*states.States{current}
	var actionSteps []*actions.Actions
	var logProbs []float64
	var outputs []stepOutputs

	for t := 0; ; t++ {
		active := indices(not(done))
		if len(active) == 0 {
			break
		}

		next := batch.Full(sp.Sf(), sp.StateShape(), B)
		acts := batch.Full(ap.Dummy(), ap.ActionShape(), B)
		lp := make([]float64, B)

		if opts.MaxLength > 0 && t == opts.MaxLength {
			for _, i := range active {
				if !backward {
					acts.SetRow(i, ap.Exit())
				}
				done[i], tidx[i], truncated[i] = true, t, true
			}
			outputs = append(outputs, stepOutputs{})
			s.logger.Debug().Int("truncated", len(active)).
				Int("max_length", opts.MaxLength).
				Msg("trajectories reached the maximum length")
		} else {
			sub := current.Select(active)
			a, subLP, out, err := s.SampleActions(sub, opts.SaveLogProbs,
				opts.SaveEstimatorOutputs)
			if err != nil {
				return nil, err
			}

			var reached *states.States
			if backward {
				reached, err = environment.BackwardStep(env, sub, a)
			} else {
				reached, err = environment.Step(env, sub, a)
			}
			if err != nil {
				return nil, err
			}

			exit := a.IsExit()
			initial := reached.IsInitial()
			for k, i := range active {
				acts.SetRow(i, a.Row(k))
				next.SetRow(i, reached.Row(k))
				if subLP != nil {
					lp[i] = subLP[k]
				}

				switch {
				case !backward && exit[k]:
					done[i], tidx[i] = true, t
				case backward && initial[k]:
					done[i], tidx[i] = true, t+1
				}
			}

			outputs = append(outputs, stepOutputs{out, active})
		}

		nextStates, err := sp.FromTensor(next)
		if err != nil {
			return nil, err
		}
		step, err := ap.FromTensor(acts)
		if err != nil {
			return nil, err
		}
		stateSteps = append(stateSteps, nextStates)
		actionSteps = append(actionSteps, step)
		logProbs = append(logProbs, lp...)
		current = nextStates
	}

	return s.assemble(env, stateSteps, actionSteps, tidx, truncated,
		logProbs, outputs, opts)
}

// start returns the starting states of a batch of trajectories
func (s *Sampler) start(env environment.Environment,
	opts SampleOptions) (*states.States, error) {
	const op = "sampleTrajectories"
	if opts.States != nil {
		if len(opts.States.BatchShape()) != 1 {
			return nil, gfnerr.New(op, gfnerr.ErrShape,
				"starting states must have batch rank 1, have %v",
				opts.States.BatchShape())
		}
		return opts.States, nil
	}

	if opts.N < 0 {
		return nil, gfnerr.New(op, gfnerr.ErrShape,
			"number of trajectories must be >= 0, have %v", opts.N)
	}
	return environment.Reset(env, s.IsBackward(), false, opts.N)
}

// assemble stacks the sampled steps into trajectories, padding the time
// axis to the longest trajectory
func (s *Sampler) assemble(env environment.Environment,
	stateSteps []*states.States, actionSteps []*actions.Actions,
	tidx []int, truncated []bool, logProbs []float64,
	outputs []stepOutputs, opts SampleOptions) (*containers.Trajectories,
	error) {
	B := len(tidx)
	T := timeLength(tidx)

	st, err := states.Stack(stateSteps...)
	if err != nil {
		return nil, err
	}
	if st, err = st.PadTime(T + 1); err != nil {
		return nil, err
	}

	at := env.ActionSpace().Dummies(0, B)
	if len(actionSteps) > 0 {
		if at, err = actions.Stack(actionSteps...); err != nil {
			return nil, err
		}
	}
	if at, err = at.PadTime(T); err != nil {
		return nil, err
	}

	trajOpts := []containers.Option{containers.WithTruncated(truncated)}
	if opts.SaveLogProbs {
		logProbs = append(logProbs, make([]float64, T*B-len(logProbs))...)
		trajOpts = append(trajOpts, containers.WithLogProbs(logProbs))
	}
	if opts.SaveEstimatorOutputs {
		o, ok, err := stackOutputs(outputs, B, T)
		if err != nil {
			return nil, err
		}
		if ok {
			trajOpts = append(trajOpts, containers.WithEstimatorOutputs(o))
		} else {
			s.logger.Warn().Msg("estimator does not expose its outputs")
		}
	}

	traj, err := containers.NewTrajectories(env, st, at, tidx,
		s.IsBackward(), trajOpts...)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int("n", B).Int("max_length", T).
		Msg("sampled trajectories")
	return traj, nil
}

// stepOutputs holds the estimator outputs of one step, one row per
// active trajectory
type stepOutputs struct {
	out    *mat.Dense
	active []int
}

// stackOutputs stacks the outputs of every step into a (T, B) batch,
// with zeros at inactive and padded positions. It returns false if no
// step recorded outputs.
func stackOutputs(steps []stepOutputs, B, T int) (batch.Tensor, bool,
	error) {
	dim := -1
	for _, st := range steps {
		if st.out != nil {
			_, dim = st.out.Dims()
			break
		}
	}
	if dim < 0 {
		return batch.Tensor{}, false, nil
	}

	data := make([]float64, T*B*dim)
	for t, st := range steps {
		if st.out == nil {
			continue
		}
		for k, i := range st.active {
			copy(data[(t*B+i)*dim:(t*B+i+1)*dim], st.out.RawRowView(k))
		}
	}

	o, err := batch.New(data, []int{T, B}, []int{dim})
	return o, err == nil, err
}

func timeLength(terminatingIdx []int) int {
	T := 0
	for _, k := range terminatingIdx {
		if k+1 > T {
			T = k + 1
		}
	}
	return T
}

func indices(keep []bool) []int {
	out := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			out = append(out, i)
		}
	}
	return out
}

func not(b []bool) []bool {
	out := make([]bool, len(b))
	for i, v := range b {
		out[i] = !v
	}
	return out
}
