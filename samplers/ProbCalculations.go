package samplers

import (
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
)

// TrajectoryLogPFs scores every action of a batch of forward
// trajectories under the forward estimator pf. The result is indexed
// like the trajectories' log-probabilities, by t*B + i, and is zero at
// padding and at the forced exits of truncated trajectories.
func TrajectoryLogPFs(pf estimators.PolicyEstimator,
	traj *containers.Trajectories) ([]float64, error) {
	const op = "trajectoryLogPFs"
	if pf.IsBackward() {
		return nil, gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot score forward steps with a backward estimator")
	}
	if traj.IsBackward() {
		return nil, gfnerr.New(op, gfnerr.ErrUnsupported,
			"trajectories must be forward trajectories")
	}

	T, B := traj.MaxLength(), traj.Len()
	truncated := traj.Truncated()
	var rows []int
	for t := 0; t < T; t++ {
		for i, k := range traj.TerminatingIdx() {
			if t < k || (t == k && !truncated[i]) {
				rows = append(rows, t*B+i)
			}
		}
	}
	return score(pf, traj, rows, rows, T*B)
}

// TrajectoryLogPBs scores every non-exit action of a batch of forward
// trajectories under the backward estimator pb. The backward step
// undoing action t is taken from state t+1, so entry t*B + i holds the
// log-probability of moving back from states[t+1, i] to states[t, i].
// Entries at and past the terminating index are zero.
func TrajectoryLogPBs(pb estimators.PolicyEstimator,
	traj *containers.Trajectories) ([]float64, error) {
	const op = "trajectoryLogPBs"
	if !pb.IsBackward() {
		return nil, gfnerr.New(op, gfnerr.ErrUnsupported,
			"cannot score backward steps with a forward estimator")
	}
	if traj.IsBackward() {
		return nil, gfnerr.New(op, gfnerr.ErrUnsupported,
			"trajectories must be forward trajectories")
	}

	T, B := traj.MaxLength(), traj.Len()
	var stateRows, actionRows []int
	for t := 0; t < T; t++ {
		for i, k := range traj.TerminatingIdx() {
			if t < k {
				stateRows = append(stateRows, (t+1)*B+i)
				actionRows = append(actionRows, t*B+i)
			}
		}
	}
	return score(pb, traj, stateRows, actionRows, T*B)
}

// score evaluates the log-probability of the actions at actionRows in
// the states at stateRows in a single batch, and scatters them into a
// zero vector of length n
func score(est estimators.PolicyEstimator, traj *containers.Trajectories,
	stateRows, actionRows []int, n int) ([]float64, error) {
	out := make([]float64, n)
	if len(actionRows) == 0 {
		return out, nil
	}

	dist, err := est.Distribution(traj.States().Select(stateRows))
	if err != nil {
		return nil, err
	}
	lp, err := dist.LogProb(traj.Actions().Select(actionRows))
	if err != nil {
		return nil, err
	}

	for k, r := range actionRows {
		out[r] = lp[k]
	}
	return out, nil
}
