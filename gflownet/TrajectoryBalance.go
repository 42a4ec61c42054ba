// Package gflownet implements trajectory-based GFlowNet objectives that
// score batches of trajectories.
package gflownet

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/samplers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Reduction determines how per-trajectory losses are reduced
type Reduction string

const (
	Mean Reduction = "mean"
	Sum  Reduction = "sum"
)

// reduce reduces v with r
func reduce(v []float64, r Reduction) (float64, error) {
	switch r {
	case Mean, "":
		if len(v) == 0 {
			return 0, nil
		}
		return stat.Mean(v, nil), nil

	case Sum:
		return floats.Sum(v), nil
	}
	return 0, fmt.Errorf("reduce: unknown reduction %v", r)
}

// Scorer scores forward trajectories with a forward and a backward
// policy
type Scorer struct {
	pf, pb estimators.PolicyEstimator
	logger zerolog.Logger
}

// NewScorer returns a new Scorer
func NewScorer(pf, pb estimators.PolicyEstimator,
	logger zerolog.Logger) Scorer {
	return Scorer{
		pf:     pf,
		pb:     pb,
		logger: logger.With().Str("component", "gflownet").Logger(),
	}
}

// Scores returns the summed forward and backward log-probabilities of
// each trajectory along with its score
//
//	log PF(tau) - log PB(tau | x) - log R(x)
//
// The log-probabilities recorded in the trajectories are used unless
// recalculate is true or none were recorded.
func (s Scorer) Scores(traj *containers.Trajectories,
	recalculate bool) (logPF, logPB, scores []float64, err error) {
	const op = "scores"
	if traj.IsBackward() {
		return nil, nil, nil, gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot score backward trajectories")
	}

	lpf := traj.LogProbs()
	if recalculate || lpf == nil {
		if !recalculate {
			s.logger.Warn().Msg("trajectories carry no log-probabilities, " +
				"recalculating them")
		}
		if lpf, err = samplers.TrajectoryLogPFs(s.pf, traj); err != nil {
			return nil, nil, nil, err
		}
	}
	lpb, err := samplers.TrajectoryLogPBs(s.pb, traj)
	if err != nil {
		return nil, nil, nil, err
	}
	logRewards, err := traj.LogRewards()
	if err != nil {
		return nil, nil, nil, err
	}

	T, B := traj.MaxLength(), traj.Len()
	logPF = sumTime(lpf, T, B)
	logPB = sumTime(lpb, T, B)
	scores = make([]float64, B)
	floats.SubTo(scores, logPF, logPB)
	floats.Sub(scores, logRewards)
	return logPF, logPB, scores, nil
}

// TrajectoryBalance is the trajectory balance objective
//
//	(log Z + log PF(tau) - log PB(tau | x) - log R(x))^2
type TrajectoryBalance struct {
	Scorer
	LogZ float64
}

// NewTrajectoryBalance returns a new TrajectoryBalance objective with
// log-partition estimate logZ
func NewTrajectoryBalance(pf, pb estimators.PolicyEstimator, logZ float64,
	logger zerolog.Logger) *TrajectoryBalance {
	return &TrajectoryBalance{NewScorer(pf, pb, logger), logZ}
}

// Loss returns the reduced trajectory balance loss of traj. A NaN loss
// is an error.
func (tb *TrajectoryBalance) Loss(traj *containers.Trajectories,
	recalculate bool, r Reduction) (float64, error) {
	_, _, scores, err := tb.Scores(traj, recalculate)
	if err != nil {
		return 0, err
	}
	for i := range scores {
		scores[i] = math.Pow(scores[i]+tb.LogZ, 2)
	}

	loss, err := reduce(scores, r)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) {
		return loss, gfnerr.New("loss", gfnerr.ErrNaN, "trajectory balance")
	}
	return loss, nil
}

// LogPartitionVariance is the log-partition variance objective, the
// squared deviation of each trajectory's score from the batch mean.
// It needs no estimate of log Z.
type LogPartitionVariance struct {
	Scorer
}

// NewLogPartitionVariance returns a new LogPartitionVariance objective
func NewLogPartitionVariance(pf, pb estimators.PolicyEstimator,
	logger zerolog.Logger) *LogPartitionVariance {
	return &LogPartitionVariance{NewScorer(pf, pb, logger)}
}

// Loss returns the reduced log-partition variance loss of traj. A NaN
// loss is an error.
func (lv *LogPartitionVariance) Loss(traj *containers.Trajectories,
	recalculate bool, r Reduction) (float64, error) {
	_, _, scores, err := lv.Scores(traj, recalculate)
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, nil
	}

	mean := stat.Mean(scores, nil)
	for i := range scores {
		scores[i] = math.Pow(scores[i]-mean, 2)
	}

	loss, err := reduce(scores, r)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(loss) {
		return loss, gfnerr.New("loss", gfnerr.ErrNaN,
			"log-partition variance")
	}
	return loss, nil
}

// sumTime sums a (T, B) grid over time
func sumTime(v []float64, T, B int) []float64 {
	out := make([]float64, B)
	for t := 0; t < T; t++ {
		floats.Add(out, v[t*B:(t+1)*B])
	}
	return out
}
