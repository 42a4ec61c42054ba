package samplers

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/utils/intutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// AcceptanceRule determines which local search candidates replace the
// trajectories they were built from
type AcceptanceRule string

const (
	// AcceptAll accepts every candidate
	AcceptAll AcceptanceRule = "all"

	// Greedy accepts candidates whose log-reward is at least that of
	// the trajectory they replace
	Greedy AcceptanceRule = "greedy"

	// MetropolisHastings accepts candidates with the Metropolis-Hastings
	// acceptance probability of the destroy/reconstruct proposal
	MetropolisHastings AcceptanceRule = "mh"
)

// LocalSearchOptions configures a single local search move
type LocalSearchOptions struct {
	// BackSteps is the number of backward steps taken from each
	// terminal state. If zero, ceil(BackRatio * L) steps are taken for
	// a trajectory of length L.
	BackSteps int
	BackRatio float64

	Acceptance AcceptanceRule

	// Debug rebuilds every candidate with a per-trajectory loop and
	// fails with gfnerr.ErrInconsistent if the result differs in any
	// bit from the batched construction
	Debug bool

	// MaxLength caps the length of the reconstructed trajectories, see
	// SampleOptions
	MaxLength int
}

func (o LocalSearchOptions) validate() error {
	const op = "localSearch"
	if o.BackSteps < 0 {
		return gfnerr.New(op, gfnerr.ErrShape,
			"back steps must be >= 0, have %v", o.BackSteps)
	}
	if o.BackSteps == 0 && (o.BackRatio <= 0 || o.BackRatio > 1) {
		return gfnerr.New(op, gfnerr.ErrShape,
			"back ratio must be in (0, 1], have %v", o.BackRatio)
	}
	switch o.Acceptance {
	case AcceptAll, Greedy, MetropolisHastings:
	default:
		return gfnerr.New(op, gfnerr.ErrUnsupported,
			"unknown acceptance rule %q", o.Acceptance)
	}
	return nil
}

// Result is the outcome of a local search move
type Result struct {
	// Previous holds the trajectories the candidates were built from.
	// They end in the same terminal states as the searched
	// trajectories, but follow the path resampled backward.
	Previous *containers.Trajectories

	// Candidates holds one reconstructed trajectory per searched
	// trajectory
	Candidates *containers.Trajectories

	// Accepted reports which candidates were accepted
	Accepted []bool
}

// NAccepted returns the number of accepted candidates
func (r Result) NAccepted() int {
	n := 0
	for _, a := range r.Accepted {
		if a {
			n++
		}
	}
	return n
}

// Merged returns the previous trajectories with every accepted
// candidate swapped in
func (r Result) Merged() (*containers.Trajectories, error) {
	return r.Previous.Merge(r.Accepted, r.Candidates)
}

// LocalSearchSampler is a forward Sampler that can refine the
// trajectories it samples by destroying part of each trajectory with a
// backward policy and reconstructing it with the forward policy.
type LocalSearchSampler struct {
	*Sampler
	backward *Sampler
	src      rand.Source
	logger   zerolog.Logger
}

// NewLocalSearch returns a new LocalSearchSampler with forward policy
// pf and backward policy pb
func NewLocalSearch(pf, pb estimators.PolicyEstimator, seed uint64,
	opts ...Option) (*LocalSearchSampler, error) {
	if pf.IsBackward() || !pb.IsBackward() {
		return nil, gfnerr.New("newLocalSearch", gfnerr.ErrUnsupported,
			"need a forward and a backward estimator, have backward "+
				"flags %v and %v", pf.IsBackward(), pb.IsBackward())
	}

	base := &Sampler{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(base)
	}

	return &LocalSearchSampler{
		Sampler:  New(pf, seed, opts...),
		backward: New(pb, seed+1, opts...),
		src:      rand.NewSource(seed + 2),
		logger: base.logger.With().Str("component", "local_search").
			Logger(),
	}, nil
}

// Backward returns the backward sampler used to destroy trajectories
func (l *LocalSearchSampler) Backward() *Sampler {
	return l.backward
}

// LocalSearch performs one destroy/reconstruct move on each of the
// forward trajectories trajs and decides which candidates to accept.
func (l *LocalSearchSampler) LocalSearch(env environment.Environment,
	trajs *containers.Trajectories,
	opts LocalSearchOptions) (Result, error) {
	const op = "localSearch"
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if trajs.IsBackward() {
		return Result{}, gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot search backward trajectories")
	}
	if trajs.Len() == 0 {
		return Result{
			Previous:   trajs.Clone(),
			Candidates: trajs.Clone(),
			Accepted:   []bool{},
		}, nil
	}

	pf, pb := l.Estimator(), l.backward.Estimator()

	// Destroy
	back, err := l.backward.SampleTrajectories(env, SampleOptions{
		States:       trajs.TerminatingStates(),
		SaveLogProbs: true,
	})
	if err != nil {
		return Result{}, err
	}
	reversed, err := back.Reverse()
	if err != nil {
		return Result{}, err
	}
	prevLPB := reversed.LogProbs()
	prevLPF, err := TrajectoryLogPFs(pf, reversed)
	if err != nil {
		return Result{}, err
	}
	prev, err := containers.NewTrajectories(env, reversed.States(),
		reversed.Actions(), reversed.TerminatingIdx(), false,
		containers.WithLogProbs(prevLPF),
		containers.WithTruncated(reversed.Truncated()))
	if err != nil {
		return Result{}, err
	}

	B := prev.Len()
	junction := make([]int, B)
	rows := make([]int, B)
	for i, L := range prev.TerminatingIdx() {
		b := opts.BackSteps
		if b == 0 {
			b = int(math.Ceil(opts.BackRatio * float64(L)))
		}
		junction[i] = intutils.Clip(L-b, 0, L)
		rows[i] = junction[i]*B + i
	}

	// Reconstruct
	recon, err := l.SampleTrajectories(env, SampleOptions{
		States:       prev.States().Select(rows),
		SaveLogProbs: true,
		MaxLength:    opts.MaxLength,
	})
	if err != nil {
		return Result{}, err
	}
	reconLPB, err := TrajectoryLogPBs(pb, recon)
	if err != nil {
		return Result{}, err
	}

	cand, err := combine(env, prev, recon, junction, prevLPB, reconLPB)
	if err != nil {
		return Result{}, err
	}
	if opts.Debug {
		loop, err := combineLoop(env, prev, recon, junction, prevLPB,
			reconLPB)
		if err != nil {
			return Result{}, err
		}
		if err := cand.check(loop); err != nil {
			return Result{}, err
		}
	}

	accepted, err := l.accept(trajs, prev, cand, opts.Acceptance)
	if err != nil {
		return Result{}, err
	}

	res := Result{Previous: prev, Candidates: cand.traj, Accepted: accepted}
	l.logger.Debug().Int("n", B).Int("accepted", res.NAccepted()).
		Str("rule", string(opts.Acceptance)).Msg("local search")
	return res, nil
}

// SampleWithLocalSearch samples opts.N forward trajectories and runs
// loops local search moves on them. Each move searches the
// trajectories kept by the previous move. The initial trajectories
// and the candidates of every move are returned in a single batch.
func (l *LocalSearchSampler) SampleWithLocalSearch(
	env environment.Environment, opts SampleOptions, loops int,
	ls LocalSearchOptions) (*containers.Trajectories, error) {
	if loops < 0 {
		return nil, gfnerr.New("sampleWithLocalSearch", gfnerr.ErrShape,
			"loops must be >= 0, have %v", loops)
	}

	opts.SaveLogProbs = true
	current, err := l.SampleTrajectories(env, opts)
	if err != nil {
		return nil, err
	}
	all := current.Clone()

	for k := 0; k < loops; k++ {
		res, err := l.LocalSearch(env, current, ls)
		if err != nil {
			return nil, err
		}
		if err := all.Extend(res.Candidates); err != nil {
			return nil, err
		}
		if current, err = res.Merged(); err != nil {
			return nil, err
		}
		l.logger.Debug().Int("loop", k).Int("accepted", res.NAccepted()).
			Msg("local search loop done")
	}
	return all, nil
}

// accept applies the acceptance rule to the candidates built from prev.
// trajs and prev end in the same terminal states.
func (l *LocalSearchSampler) accept(trajs, prev *containers.Trajectories,
	cand candidates, rule AcceptanceRule) ([]bool, error) {
	B := prev.Len()
	accepted := make([]bool, B)
	if rule == AcceptAll {
		for i := range accepted {
			accepted[i] = true
		}
		return accepted, nil
	}

	prevLR, err := trajs.LogRewards()
	if err != nil {
		return nil, err
	}
	newLR, err := cand.traj.LogRewards()
	if err != nil {
		return nil, err
	}

	if rule == Greedy {
		for i := range accepted {
			accepted[i] = newLR[i] >= prevLR[i]
		}
		return accepted, nil
	}

	prevLPF := sumTime(prev.LogProbs(), prev.MaxLength(), B)
	prevLPB := sumTime(cand.prevLogPB, prev.MaxLength(), B)
	newLPF := sumTime(cand.traj.LogProbs(), cand.traj.MaxLength(), B)
	newLPB := sumTime(cand.logPB, cand.traj.MaxLength(), B)

	u := distuv.Uniform{Min: 0, Max: 1, Src: l.src}
	for i := range accepted {
		logAccept := newLR[i] + prevLPB[i] + newLPF[i] -
			prevLR[i] - newLPB[i] - prevLPF[i]
		accepted[i] = u.Rand() < math.Exp(math.Min(0, logAccept))
	}
	return accepted, nil
}

// candidates holds local search candidates along with the backward
// log-probabilities needed to score the move that produced them
type candidates struct {
	// traj carries the forward log-probabilities of the candidates
	traj *containers.Trajectories

	logPB     []float64
	prevLogPB []float64
}

// check returns an error if c and other differ in any bit
func (c candidates) check(other candidates) error {
	const op = "localSearch"
	a, b := c.traj, other.traj
	switch {
	case !batch.BitEqual(a.States().Tensor(), b.States().Tensor()):
		return gfnerr.New(op, gfnerr.ErrInconsistent, "states differ")
	case !batch.BitEqual(a.Actions().Tensor(), b.Actions().Tensor()):
		return gfnerr.New(op, gfnerr.ErrInconsistent, "actions differ")
	case !equalInts(a.TerminatingIdx(), b.TerminatingIdx()):
		return gfnerr.New(op, gfnerr.ErrInconsistent,
			"terminating indices differ \n\twant(%v)\n\thave(%v)",
			a.TerminatingIdx(), b.TerminatingIdx())
	case !bitEqualFloats(a.LogProbs(), b.LogProbs()):
		return gfnerr.New(op, gfnerr.ErrInconsistent,
			"forward log-probabilities differ")
	case !bitEqualFloats(c.logPB, other.logPB):
		return gfnerr.New(op, gfnerr.ErrInconsistent,
			"backward log-probabilities differ")
	}
	return nil
}

// combine splices each previous trajectory up to its junction with the
// trajectory reconstructed from the junction state. All trajectories
// are spliced at once by gathering from the concatenation of prev and
// recon.
func combine(env environment.Environment, prev,
	recon *containers.Trajectories, junction []int, prevLPB,
	reconLPB []float64) (candidates, error) {
	B := prev.Len()
	Tp := prev.MaxLength()
	tidx := spliceIdx(junction, recon.TerminatingIdx())
	T := intutils.Max(tidx...) + 1
	sp, ap := env.StateSpace(), env.ActionSpace()

	rs, err := recon.States().PadTime(T + 1)
	if err != nil {
		return candidates{}, err
	}
	st, err := gather(prev.States().Tensor(), rs.Tensor(),
		spliceIndex(junction, B, T+1, (Tp+1)*B), T+1, B)
	if err != nil {
		return candidates{}, err
	}
	s, err := sp.FromTensor(st)
	if err != nil {
		return candidates{}, err
	}

	ra, err := recon.Actions().PadTime(T)
	if err != nil {
		return candidates{}, err
	}
	index := spliceIndex(junction, B, T, Tp*B)
	at, err := gather(prev.Actions().Tensor(), ra.Tensor(), index, T, B)
	if err != nil {
		return candidates{}, err
	}
	a, err := ap.FromTensor(at)
	if err != nil {
		return candidates{}, err
	}

	pad := func(v []float64) []float64 {
		return append(append([]float64{}, v...),
			make([]float64, T*B-len(v))...)
	}
	splice := func(p, r []float64) []float64 {
		src := append(append([]float64{}, p...), pad(r)...)
		out := make([]float64, len(index))
		for k, idx := range index {
			out[k] = src[idx]
		}
		return out
	}

	traj, err := containers.NewTrajectories(env, s, a, tidx, false,
		containers.WithLogProbs(splice(prev.LogProbs(), recon.LogProbs())),
		containers.WithTruncated(recon.Truncated()))
	if err != nil {
		return candidates{}, err
	}
	return candidates{
		traj:      traj,
		logPB:     splice(prevLPB, reconLPB),
		prevLogPB: prevLPB,
	}, nil
}

// combineLoop computes the same candidates as combine, one trajectory
// and one step at a time
func combineLoop(env environment.Environment, prev,
	recon *containers.Trajectories, junction []int, prevLPB,
	reconLPB []float64) (candidates, error) {
	B := prev.Len()
	Br := recon.Len()
	Tr := recon.MaxLength()
	tidx := spliceIdx(junction, recon.TerminatingIdx())
	T := intutils.Max(tidx...) + 1
	sp, ap := env.StateSpace(), env.ActionSpace()

	st := batch.Full(sp.Sf(), sp.StateShape(), T+1, B)
	at := batch.Full(ap.Dummy(), ap.ActionShape(), T, B)
	lpf := make([]float64, T*B)
	lpb := make([]float64, T*B)

	prevLPF, reconLPF := prev.LogProbs(), recon.LogProbs()
	for i := 0; i < B; i++ {
		j := junction[i]
		for t := 0; t < j; t++ {
			st.SetRow(t*B+i, prev.States().At(t, i))
			at.SetRow(t*B+i, prev.Actions().At(t, i))
			lpf[t*B+i] = prevLPF[t*B+i]
			lpb[t*B+i] = prevLPB[t*B+i]
		}
		for t := j; t <= T; t++ {
			r := t - j
			if r <= Tr {
				st.SetRow(t*B+i, recon.States().At(r, i))
			} else {
				st.SetRow(t*B+i, sp.Sf())
			}
			if t == T {
				continue
			}
			if r < Tr {
				at.SetRow(t*B+i, recon.Actions().At(r, i))
				lpf[t*B+i] = reconLPF[r*Br+i]
				lpb[t*B+i] = reconLPB[r*Br+i]
			} else {
				at.SetRow(t*B+i, ap.Dummy())
				lpf[t*B+i], lpb[t*B+i] = 0, 0
			}
		}
	}

	s, err := sp.FromTensor(st)
	if err != nil {
		return candidates{}, err
	}
	a, err := ap.FromTensor(at)
	if err != nil {
		return candidates{}, err
	}
	traj, err := containers.NewTrajectories(env, s, a, tidx, false,
		containers.WithLogProbs(lpf),
		containers.WithTruncated(recon.Truncated()))
	if err != nil {
		return candidates{}, err
	}
	return candidates{traj: traj, logPB: lpb, prevLogPB: prevLPB}, nil
}

// spliceIdx returns the terminating indices of spliced trajectories
func spliceIdx(junction, reconIdx []int) []int {
	out := make([]int, len(junction))
	for i := range out {
		out[i] = junction[i] + reconIdx[i]
	}
	return out
}

// spliceIndex returns, for each of the rows*B positions of a spliced
// (rows, B) batch, its flat index into the concatenation of a previous
// batch and a reconstructed batch that starts at offset
func spliceIndex(junction []int, B, rows, offset int) []int {
	index := make([]int, rows*B)
	for t := 0; t < rows; t++ {
		for i, j := range junction {
			if t < j {
				index[t*B+i] = t*B + i
			} else {
				index[t*B+i] = offset + (t-j)*B + i
			}
		}
	}
	return index
}

// gather gathers index from the concatenation of the flattened batches
// p and r and returns the result as a (rows, B) batch
func gather(p, r batch.Tensor, index []int, rows, B int) (batch.Tensor,
	error) {
	fp, err := p.Reshape(p.Len())
	if err != nil {
		return batch.Tensor{}, err
	}
	fr, err := r.Reshape(r.Len())
	if err != nil {
		return batch.Tensor{}, err
	}
	src, err := batch.Concat(fp, fr, nil)
	if err != nil {
		return batch.Tensor{}, err
	}
	return src.Gather(index).Reshape(rows, B)
}

// sumTime sums a (T, B) grid over time
func sumTime(v []float64, T, B int) []float64 {
	out := make([]float64, B)
	col := make([]float64, T)
	for i := range out {
		for t := 0; t < T; t++ {
			col[t] = v[t*B+i]
		}
		out[i] = floats.Sum(col)
	}
	return out
}

func bitEqualFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			return false
		}
	}
	return true
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
