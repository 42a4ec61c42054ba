package containers

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gogfn/gfnerr"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestExtendEmptyTransitions(t *testing.T) {
	env := newGrid(t)
	tr, err := walk(t, env, paths).ToTransitions()
	if err != nil {
		t.Fatal(err)
	}

	empty := EmptyTransitions(env, false)
	if err := empty.Extend(tr); err != nil {
		t.Fatal(err)
	}

	if empty.Len() != tr.Len() {
		t.Fatalf("want %v transitions, have %v", tr.Len(), empty.Len())
	}
	if !empty.States().Equal(tr.States()) ||
		!empty.Actions().Equal(tr.Actions()) ||
		!empty.NextStates().Equal(tr.NextStates()) {
		t.Error("extending an empty batch should adopt the other batch")
	}
	for i, term := range tr.IsTerminating() {
		if empty.IsTerminating()[i] != term {
			t.Errorf("row %v: terminating flag changed", i)
		}
	}

	// Extending with an empty batch is a no-op
	n := tr.Len()
	if err := tr.Extend(EmptyTransitions(env, false)); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != n {
		t.Errorf("want %v transitions, have %v", n, tr.Len())
	}
}

func TestTransitionsCopyLogProbs(t *testing.T) {
	env := newGrid(t)
	tr, err := walk(t, env, paths).ToTransitions()
	if err != nil {
		t.Fatal(err)
	}
	n := tr.Len()

	// The caller's slice has spare capacity holding values of its own
	backing := make([]float64, 2*n)
	for i := n; i < 2*n; i++ {
		backing[i] = 42
	}
	mine, err := NewTransitions(env, tr.States(), tr.Actions(),
		tr.NextStates(), tr.IsTerminating(), false,
		WithLogProbs(backing[:n]))
	if err != nil {
		t.Fatal(err)
	}

	if err := mine.Extend(tr); err != nil {
		t.Fatal(err)
	}
	for i := n; i < 2*n; i++ {
		if backing[i] != 42 {
			t.Fatalf("extend wrote into the caller's slice at %v: %v", i,
				backing[i])
		}
	}
	if lp := mine.LogProbs(); len(lp) != 2*n {
		t.Errorf("want %v log-probs, have %v", 2*n, len(lp))
	}

	backing[0] = 7
	if mine.LogProbs()[0] == 7 {
		t.Error("transitions should not share the caller's slice")
	}
}

func TestTransitionsLogRewards(t *testing.T) {
	env := newGrid(t)
	traj := walk(t, env, paths)
	tr, err := traj.ToTransitions()
	if err != nil {
		t.Fatal(err)
	}

	lr, err := tr.LogRewards()
	if err != nil {
		t.Fatal(err)
	}
	want, err := traj.LogRewards()
	if err != nil {
		t.Fatal(err)
	}

	order := []int{1, 2, 0}
	k := 0
	for i, term := range tr.IsTerminating() {
		if !term {
			if !math.IsInf(lr[i], -1) {
				t.Errorf("row %v: non-terminating log-reward %v", i, lr[i])
			}
			continue
		}
		if lr[i] != want[order[k]] {
			t.Errorf("row %v: want %v, have %v", i, want[order[k]], lr[i])
		}
		k++
	}

	back, err := traj.Reverse()
	if err != nil {
		t.Fatal(err)
	}
	btr, err := back.ToTransitions()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := btr.LogRewards(); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}

func TestAllLogRewards(t *testing.T) {
	env := newGrid(t)
	traj := walk(t, env, paths)
	tr, err := traj.ToTransitions()
	if err != nil {
		t.Fatal(err)
	}

	all, err := tr.AllLogRewards()
	if err != nil {
		t.Fatal(err)
	}
	if r, c := all.Dims(); r != tr.Len() || c != 2 {
		t.Fatalf("want shape (%v, 2), have (%v, %v)", tr.Len(), r, c)
	}

	for i, term := range tr.IsTerminating() {
		if term {
			if !math.IsInf(all.At(i, 0), -1) || !math.IsInf(all.At(i, 1), -1) {
				t.Errorf("row %v: sink transitions should have -inf", i)
			}
			continue
		}
		if math.IsInf(all.At(i, 0), 0) || math.IsInf(all.At(i, 1), 0) {
			t.Errorf("row %v: want finite log-rewards, have %v", i,
				mat.Row(nil, i, all))
		}
	}

	empty, err := EmptyTransitions(env, false).AllLogRewards()
	if err != nil {
		t.Fatal(err)
	}
	if !empty.IsEmpty() {
		t.Error("want an empty matrix for zero transitions")
	}

	_, err = EmptyTransitions(env, true).AllLogRewards()
	if !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}

func TestTransitionsExtendConditioning(t *testing.T) {
	env := newGrid(t)
	cond := walk(t, env, paths[1:2],
		WithConditioning(mat.NewDense(1, 2, []float64{0.5, 0.5})))

	tr, err := cond.ToTransitions()
	if err != nil {
		t.Fatal(err)
	}
	if r, c := tr.Conditioning().Dims(); r != tr.Len() || c != 2 {
		t.Errorf("conditioning should follow every transition, have "+
			"(%v, %v)", r, c)
	}

	other, err := walk(t, env, paths[:1]).ToTransitions()
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Extend(other); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}

func TestTransitionsSample(t *testing.T) {
	env := newGrid(t)
	tr, err := walk(t, env, paths).ToTransitions()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"fewer", 3, 3},
		{"all", tr.Len(), tr.Len()},
		{"more", 100, tr.Len()},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := tr.Sample(test.n, rand.NewSource(1))
			if err != nil {
				t.Fatal(err)
			}
			if s.Len() != test.want {
				t.Errorf("want %v transitions, have %v", test.want, s.Len())
			}
		})
	}

	traj := walk(t, env, paths)
	if err := tr.Append(traj); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}
