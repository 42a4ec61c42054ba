package experiment

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/experiment/tracker"
	"github.com/samuelfneumann/gogfn/expreplay"
	"github.com/samuelfneumann/gogfn/gflownet"
	"github.com/samuelfneumann/gogfn/samplers"
	"gonum.org/v1/gonum/floats"
)

// Report summarizes the trajectories generated by an experiment
type Report struct {
	RunID       string
	Environment string
	Iterations  int

	// Trajectories counts every sampled trajectory and local search
	// candidate
	Trajectories  int
	MeanLogReward float64
	MaxLogReward  float64
	MeanLength    float64

	// Local search candidates proposed and accepted
	Proposed int
	Accepted int

	BufferLen int

	// Log-partition variance of the last batch replayed from the buffer
	ReplayLoss float64

	// L1 distance between the empirical distribution of terminating
	// states and the reward distribution, for enumerable environments
	L1 *float64 `json:",omitempty"`
}

// Online is an Experiment that samples trajectories, refines them with
// local search, and replays them from a buffer. No parameters are
// learned.
type Online struct {
	env     environment.Environment
	sampler *samplers.LocalSearchSampler
	buffer  *expreplay.ReplayBuffer
	loss    *gflownet.LogPartitionVariance

	n, maxLength, iterations int
	replaySize               int
	ls                       LocalSearchConfig

	trackers []tracker.Tracker
	runID    string
	logger   zerolog.Logger
}

// NewOnline creates and returns a new online experiment on a given
// environment with the given forward and backward policies. The t
// parameter is a slice of tracker.Tracker which determine what data is
// saved.
func NewOnline(env environment.Environment, pf,
	pb estimators.PolicyEstimator, c Config, seed uint64, runID string,
	logger zerolog.Logger, t ...tracker.Tracker) (*Online, error) {
	if c.N < 1 {
		return nil, fmt.Errorf("newOnline: N must be >= 1, have %v", c.N)
	}
	if c.LocalSearch.Loops < 0 {
		return nil, fmt.Errorf("newOnline: local search loops must be "+
			">= 0, have %v", c.LocalSearch.Loops)
	}

	s, err := samplers.NewLocalSearch(pf, pb, seed,
		samplers.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	buffer, err := c.Buffer.Create(seed+3, expreplay.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &Online{
		env:        env,
		sampler:    s,
		buffer:     buffer,
		loss:       gflownet.NewLogPartitionVariance(pf, pb, logger),
		n:          c.N,
		maxLength:  c.MaxLength,
		iterations: c.Iterations,
		replaySize: c.ReplaySize,
		ls:         c.LocalSearch,
		trackers:   t,
		runID:      runID,
		logger:     logger.With().Str("component", "experiment").Logger(),
	}, nil
}

// Register registers a tracker.Tracker with an Experiment so that data
// generated during the experiment can be tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Run runs every iteration of the experiment
func (o *Online) Run() (Report, error) {
	r := Report{
		RunID:        o.runID,
		Environment:  fmt.Sprint(o.env),
		MaxLogReward: math.Inf(-1),
	}

	var counts []float64
	enum, enumerable := o.env.(environment.Enumerable)
	if enumerable {
		counts = make([]float64, enum.NTerminatingStates())
	}

	var sumLogReward, sumLength float64
	for i := 0; i < o.iterations; i++ {
		traj, proposed, accepted, err := o.sample()
		if err != nil {
			return r, err
		}
		if err := o.track(traj); err != nil {
			return r, err
		}

		lr, err := traj.LogRewards()
		if err != nil {
			return r, err
		}
		sumLogReward += floats.Sum(lr)
		if len(lr) > 0 {
			r.MaxLogReward = math.Max(r.MaxLogReward, floats.Max(lr))
		}
		for _, k := range traj.TerminatingIdx() {
			sumLength += float64(k)
		}
		if enumerable {
			if err := count(enum, traj, counts); err != nil {
				return r, err
			}
		}

		r.Trajectories += traj.Len()
		r.Proposed += proposed
		r.Accepted += accepted

		if err := o.buffer.Add(traj); err != nil {
			return r, err
		}
		loss, err := o.replay()
		if err != nil {
			return r, err
		}
		r.ReplayLoss = loss
		r.Iterations++

		o.logger.Info().Int("iteration", i).Int("trajectories", traj.Len()).
			Int("accepted", accepted).Int("buffer", o.buffer.Len()).
			Float64("replay_loss", loss).Msg("iteration done")
	}

	if r.Trajectories > 0 {
		r.MeanLogReward = sumLogReward / float64(r.Trajectories)
		r.MeanLength = sumLength / float64(r.Trajectories)
	}
	r.BufferLen = o.buffer.Len()

	if enumerable && floats.Sum(counts) > 0 {
		pmf, err := enum.TrueDistPMF()
		if err != nil {
			return r, err
		}
		floats.Scale(1/floats.Sum(counts), counts)
		l1 := floats.Distance(counts, pmf, 1)
		r.L1 = &l1
	}
	return r, nil
}

// sample samples a batch of trajectories and runs the local search
// loops on it. The returned batch holds the initial trajectories and
// every candidate.
func (o *Online) sample() (traj *containers.Trajectories, proposed,
	accepted int, err error) {
	current, err := o.sampler.SampleTrajectories(o.env,
		samplers.SampleOptions{N: o.n, SaveLogProbs: true,
			MaxLength: o.maxLength})
	if err != nil {
		return nil, 0, 0, err
	}
	all := current.Clone()

	opts := o.ls.LocalSearchOptions
	opts.MaxLength = o.maxLength
	for k := 0; k < o.ls.Loops; k++ {
		res, err := o.sampler.LocalSearch(o.env, current, opts)
		if err != nil {
			return nil, 0, 0, err
		}
		if err := all.Extend(res.Candidates); err != nil {
			return nil, 0, 0, err
		}
		if current, err = res.Merged(); err != nil {
			return nil, 0, 0, err
		}
		proposed += res.Candidates.Len()
		accepted += res.NAccepted()
	}
	return all, proposed, accepted, nil
}

// replay scores a batch sampled from the buffer. Nothing is scored
// until the buffer holds its minimum number of rows.
func (o *Online) replay() (float64, error) {
	if o.replaySize < 1 {
		return 0, nil
	}
	c, err := o.buffer.Sample(o.replaySize)
	if expreplay.IsInsufficientSamples(err) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	traj, ok := c.(*containers.Trajectories)
	if !ok {
		return 0, fmt.Errorf("replay: buffer holds %T", c)
	}
	return o.loss.Loss(traj, false, gflownet.Mean)
}

// track tracks the current batch by caching its data in each Tracker
func (o *Online) track(traj *containers.Trajectories) error {
	for _, t := range o.trackers {
		if err := t.Track(traj); err != nil {
			return err
		}
	}
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return err
		}
	}
	return nil
}

// count adds the number of untruncated trajectories ending in each
// terminating state to counts
func count(env environment.Enumerable, traj *containers.Trajectories,
	counts []float64) error {
	var rows []int
	for i, t := range traj.Truncated() {
		if !t {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	done, err := traj.Select(rows)
	if err != nil {
		return err
	}

	idx, err := env.TerminatingStatesIndices(done.LastStates())
	if err != nil {
		return err
	}
	for _, i := range idx {
		counts[i]++
	}
	return nil
}
