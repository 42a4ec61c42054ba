package containers

import (
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// countingGrid counts calls to Reward and can be made to fail
type countingGrid struct {
	*hypergrid.HyperGrid
	calls int
	fail  bool
}

func (c *countingGrid) Reward(s *states.States) ([]float64, error) {
	c.calls++
	if c.fail {
		return nil, errors.New("reward: failed")
	}
	return c.HyperGrid.Reward(s)
}

func newGrid(t *testing.T) *countingGrid {
	env, err := hypergrid.New(2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	return &countingGrid{HyperGrid: env}
}

// walk builds forward trajectories following the given action indices,
// each path ending with the exit action. The log-probability of action
// (ti, i) is -(ti+1) - i/10.
func walk(t *testing.T, env environment.Environment, paths [][]int,
	opts ...Option) *Trajectories {
	sp, ap := env.StateSpace(), env.ActionSpace()
	B := len(paths)
	T := 0
	for _, p := range paths {
		if len(p) > T {
			T = len(p)
		}
	}

	st := batch.Full(sp.Sf(), sp.StateShape(), T+1, B)
	at := batch.Full(ap.Dummy(), ap.ActionShape(), T, B)
	logProbs := make([]float64, T*B)
	tidx := make([]int, B)

	for i, p := range paths {
		s := sp.Initial(1)
		for ti, idx := range p {
			st.SetRow(ti*B+i, s.Row(0))
			a, err := ap.FromIndices([]int{idx})
			if err != nil {
				t.Fatal(err)
			}
			at.SetRow(ti*B+i, a.Row(0))
			logProbs[ti*B+i] = -float64(ti+1) - float64(i)/10

			if s, err = environment.Step(env, s, a); err != nil {
				t.Fatal(err)
			}
		}
		tidx[i] = len(p) - 1
	}

	s, err := sp.FromTensor(st)
	if err != nil {
		t.Fatal(err)
	}
	a, err := ap.FromTensor(at)
	if err != nil {
		t.Fatal(err)
	}

	opts = append([]Option{WithLogProbs(logProbs)}, opts...)
	traj, err := NewTrajectories(env, s, a, tidx, false, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return traj
}

// paths on a 2-dimensional grid, where action 2 exits
var paths = [][]int{
	{0, 1, 1, 2},
	{2},
	{1, 0, 2},
}

func checkInvariants(t *testing.T, traj *Trajectories) {
	t.Helper()
	sink := traj.States().Space().Sf()
	exit := traj.Actions().Space().Exit()
	T := traj.MaxLength()

	for i, k := range traj.TerminatingIdx() {
		if !floats.Equal(traj.Actions().At(k, i), exit) {
			t.Errorf("trajectory %v: action at %v is %v, not exit", i, k,
				traj.Actions().At(k, i))
		}
		for ti := k + 1; ti <= T; ti++ {
			if !floats.Equal(traj.States().At(ti, i), sink) {
				t.Errorf("trajectory %v: state at %v is %v, not sink", i, ti,
					traj.States().At(ti, i))
			}
		}
	}
}

func TestNewTrajectoriesValidates(t *testing.T) {
	env := newGrid(t)
	sp, ap := env.StateSpace(), env.ActionSpace()

	tests := []struct {
		name string
		s    *states.States
		tidx []int
	}{
		{"timeMismatch", sp.Sink(3, 2), []int{0, 0}},
		{"rank1", sp.Sink(6), []int{0, 0}},
		{"idxLength", sp.Sink(4, 2), []int{0}},
		{"idxRange", sp.Sink(4, 2), []int{0, 3}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewTrajectories(env, test.s, ap.Dummies(3, 2),
				test.tidx, false)
			if !gfnerr.IsShape(err) {
				t.Errorf("want shape error, have %v", err)
			}
		})
	}
}

func TestTrajectoryInvariants(t *testing.T) {
	traj := walk(t, newGrid(t), paths)
	if traj.Len() != 3 || traj.MaxLength() != 4 {
		t.Fatalf("want 3 trajectories of length 4, have %v", traj)
	}
	checkInvariants(t, traj)

	last := traj.LastStates()
	want := [][]float64{{1, 2}, {0, 0}, {1, 1}}
	for i, w := range want {
		if !floats.Equal(last.Row(i), w) {
			t.Errorf("trajectory %v: last state %v, want %v", i, last.Row(i),
				w)
		}
	}
}

func TestReverse(t *testing.T) {
	traj := walk(t, newGrid(t), paths)

	back, err := traj.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	if !back.IsBackward() {
		t.Fatal("reversed forward trajectories should be backward")
	}

	s0 := traj.States().Space().S0()
	dummy := traj.Actions().Space().Dummy()
	lp, blp := traj.LogProbs(), back.LogProbs()
	B := traj.Len()
	for i, L := range traj.TerminatingIdx() {
		if !floats.Equal(back.States().At(L, i), s0) {
			t.Errorf("trajectory %v: backward walk should end at s0", i)
		}
		if !floats.Equal(back.Actions().At(L, i), dummy) {
			t.Errorf("trajectory %v: backward walk should end with dummy", i)
		}
		for j := 0; j < L; j++ {
			if !floats.Equal(back.Actions().At(j, i),
				traj.Actions().At(L-1-j, i)) {
				t.Errorf("trajectory %v: action %v not reversed", i, j)
			}
			if blp[j*B+i] != lp[(L-1-j)*B+i] {
				t.Errorf("trajectory %v: log-prob %v not reversed", i, j)
			}
		}
		for j := 0; j <= L; j++ {
			if !floats.Equal(back.States().At(j, i), traj.States().At(L-j, i)) {
				t.Errorf("trajectory %v: state %v not reversed", i, j)
			}
		}
	}

	// Reversing twice gives back the original
	again, err := back.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	if again.IsBackward() {
		t.Error("reversed backward trajectories should be forward")
	}
	checkInvariants(t, again)
	if !again.States().Equal(traj.States()) ||
		!again.Actions().Equal(traj.Actions()) {
		t.Error("reversing twice should reproduce the trajectories")
	}

	// Exit log-probabilities are dropped by the round trip
	alp := again.LogProbs()
	for i, k := range traj.TerminatingIdx() {
		for ti := 0; ti < k; ti++ {
			if alp[ti*B+i] != lp[ti*B+i] {
				t.Errorf("trajectory %v: log-prob %v changed", i, ti)
			}
		}
		if alp[k*B+i] != 0 {
			t.Errorf("trajectory %v: exit log-prob should be 0", i)
		}
	}
}

func TestToTransitions(t *testing.T) {
	env := newGrid(t)
	traj := walk(t, env, paths)

	t.Run("forward", func(t *testing.T) {
		tr, err := traj.ToTransitions()
		if err != nil {
			t.Fatal(err)
		}
		if tr.Len() != 4+1+3 {
			t.Fatalf("want 8 transitions, have %v", tr.Len())
		}

		term, err := tr.Mask(tr.IsTerminating())
		if err != nil {
			t.Fatal(err)
		}
		if term.Len() != traj.Len() {
			t.Fatalf("want %v terminating transitions, have %v", traj.Len(),
				term.Len())
		}

		// Transitions are flattened time-major, so terminating rows come
		// in order of terminating index
		order := []int{1, 2, 0}
		last := traj.LastStates()
		for k, i := range order {
			if !floats.Equal(term.States().Row(k), last.Row(i)) {
				t.Errorf("terminating state %v: want %v, have %v", k,
					last.Row(i), term.States().Row(k))
			}
		}
		for _, exit := range term.Actions().IsExit() {
			if !exit {
				t.Error("terminating transitions should take the exit action")
			}
		}
		for _, sink := range term.NextStates().IsSink() {
			if !sink {
				t.Error("terminating transitions should reach the sink state")
			}
		}
		if lp := tr.LogProbs(); len(lp) != tr.Len() {
			t.Errorf("want %v log-probs, have %v", tr.Len(), len(lp))
		}
	})

	t.Run("backward", func(t *testing.T) {
		back, err := traj.Reverse()
		if err != nil {
			t.Fatal(err)
		}
		tr, err := back.ToTransitions()
		if err != nil {
			t.Fatal(err)
		}
		if !tr.IsBackward() || tr.Len() != 3+0+2 {
			t.Fatalf("want 5 backward transitions, have %v", tr)
		}
		for _, term := range tr.IsTerminating() {
			if term {
				t.Error("backward transitions should never terminate")
			}
		}
	})
}

func TestSelectTrims(t *testing.T) {
	traj := walk(t, newGrid(t), paths)

	sel, err := traj.Select([]int{2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if sel.MaxLength() != 3 {
		t.Errorf("want time length 3, have %v", sel.MaxLength())
	}
	if idx := sel.TerminatingIdx(); idx[0] != 2 || idx[1] != 0 {
		t.Errorf("want terminating indices [2 0], have %v", idx)
	}
	checkInvariants(t, sel)

	if lp := sel.LogProbs(); lp[0] != -1.2 || lp[1] != -1.1 {
		t.Errorf("log-probs not selected, have %v", lp)
	}

	if _, err := traj.Select([]int{3}); !gfnerr.IsShape(err) {
		t.Errorf("want shape error, have %v", err)
	}
}

func TestExtend(t *testing.T) {
	env := newGrid(t)
	short := walk(t, env, paths[1:2])
	long := walk(t, env, paths[:1])

	if err := short.Extend(long); err != nil {
		t.Fatal(err)
	}
	if short.Len() != 2 || short.MaxLength() != 4 {
		t.Fatalf("want 2 trajectories of length 4, have %v", short)
	}
	checkInvariants(t, short)

	lp := short.LogProbs()
	for ti := 1; ti < 4; ti++ {
		if lp[ti*2] != 0 {
			t.Errorf("padded log-prob at %v should be 0, have %v", ti,
				lp[ti*2])
		}
	}

	empty := EmptyTrajectories(env, false)
	if err := empty.Extend(long); err != nil {
		t.Fatal(err)
	}
	if !empty.States().Equal(long.States()) {
		t.Error("extending empty trajectories should adopt the other batch")
	}

	t.Run("conditioning", func(t *testing.T) {
		cond := walk(t, env, paths[:1],
			WithConditioning(mat.NewDense(1, 1, []float64{1})))
		err := cond.Extend(walk(t, env, paths[:1]))
		if !gfnerr.IsUnsupported(err) {
			t.Errorf("want unsupported operation, have %v", err)
		}
	})

	t.Run("oneSidedOptionals", func(t *testing.T) {
		full := walk(t, env, paths[:1])
		T, B := full.MaxLength(), full.Len()
		withOutputs, err := NewTrajectories(env, full.States(),
			full.Actions(), full.TerminatingIdx(), false,
			WithLogProbs(full.LogProbs()),
			WithEstimatorOutputs(batch.Full([]float64{0}, []int{1}, T, B)))
		if err != nil {
			t.Fatal(err)
		}
		bare, err := NewTrajectories(env, full.States(), full.Actions(),
			full.TerminatingIdx(), false)
		if err != nil {
			t.Fatal(err)
		}

		if err := withOutputs.Extend(bare); err != nil {
			t.Fatal(err)
		}
		if withOutputs.Len() != 2 {
			t.Fatalf("want 2 trajectories, have %v", withOutputs.Len())
		}
		if withOutputs.LogProbs() != nil {
			t.Error("log-probs carried by one side only should be dropped")
		}
		if withOutputs.EstimatorOutputs() != nil {
			t.Error("estimator outputs carried by one side only should " +
				"be dropped")
		}
	})

	t.Run("direction", func(t *testing.T) {
		back, err := walk(t, env, paths[:1]).Reverse()
		if err != nil {
			t.Fatal(err)
		}
		if err := walk(t, env, paths).Extend(back); !gfnerr.IsUnsupported(err) {
			t.Errorf("want unsupported operation, have %v", err)
		}
	})
}

func TestMerge(t *testing.T) {
	env := newGrid(t)
	a := walk(t, env, [][]int{{2}, {0, 2}})
	b := walk(t, env, [][]int{{1, 1, 1, 2}, {1, 2}})

	merged, err := a.Merge([]bool{true, false}, b)
	if err != nil {
		t.Fatal(err)
	}
	if idx := merged.TerminatingIdx(); idx[0] != 3 || idx[1] != 1 {
		t.Errorf("want terminating indices [3 1], have %v", idx)
	}
	checkInvariants(t, merged)

	last := merged.LastStates()
	if !floats.Equal(last.Row(0), []float64{0, 3}) ||
		!floats.Equal(last.Row(1), []float64{1, 0}) {
		t.Errorf("unexpected merged last states %v", last)
	}
}

func TestLogRewardsMemoized(t *testing.T) {
	env := newGrid(t)
	traj := walk(t, env, paths)

	env.fail = true
	if _, err := traj.LogRewards(); err == nil {
		t.Fatal("expected the reward error")
	}

	env.fail = false
	lr, err := traj.LogRewards()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := traj.LogRewards(); err != nil {
		t.Fatal(err)
	}
	if env.calls != 2 {
		t.Errorf("want 2 reward calls, have %v", env.calls)
	}

	want := []float64{math.Log(0.1), math.Log(0.6), math.Log(0.1)}
	for i := range want {
		if math.Abs(lr[i]-want[i]) > 1e-12 {
			t.Errorf("trajectory %v: want %v, have %v", i, want[i], lr[i])
		}
	}

	// Extending with an unscored batch clears the cache
	if err := traj.Extend(walk(t, env, paths[:1])); err != nil {
		t.Fatal(err)
	}
	if lr, err = traj.LogRewards(); err != nil {
		t.Fatal(err)
	}
	if env.calls != 3 || len(lr) != 4 {
		t.Errorf("want recomputed log-rewards, have %v after %v calls", lr,
			env.calls)
	}
}

func TestLogRewardClip(t *testing.T) {
	traj := walk(t, newGrid(t), paths, WithLogRewardClip(-1))
	lr, err := traj.LogRewards()
	if err != nil {
		t.Fatal(err)
	}
	if lr[0] != -1 || lr[1] != math.Log(0.6) {
		t.Errorf("unexpected clipped log-rewards %v", lr)
	}
}
