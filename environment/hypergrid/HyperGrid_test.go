package hypergrid

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"gonum.org/v1/gonum/floats"
)

func TestEnumeration(t *testing.T) {
	env, err := New(2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}

	if n := env.NStates(); n != 16 {
		t.Fatalf("want 16 states, have %v", n)
	}

	all := env.AllStates()
	indices, err := env.StatesIndices(all)
	if err != nil {
		t.Fatal(err)
	}
	for i, idx := range indices {
		if idx != i {
			t.Errorf("index %v: have %v", i, idx)
		}
	}

	pmf, err := env.TrueDistPMF()
	if err != nil {
		t.Fatal(err)
	}
	if sum := floats.Sum(pmf); math.Abs(sum-1) > 1e-9 {
		t.Errorf("pmf should sum to 1, have %v", sum)
	}
}

func TestReward(t *testing.T) {
	tests := []struct {
		name  string
		state []float64
		want  float64
	}{
		{"corner", []float64{0, 0}, 0.1 + 0.5},
		{"center", []float64{3, 4}, 0.1},
		{"band", []float64{1, 6}, 0.1 + 0.5 + 2.0},
	}

	env, err := New(2, 8, 0)
	if err != nil {
		t.Fatal(err)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := env.StateSpace().New(test.state, 1)
			if err != nil {
				t.Fatal(err)
			}
			r, err := env.Reward(s)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(r[0]-test.want) > 1e-12 {
				t.Errorf("want %v, have %v", test.want, r[0])
			}
		})
	}
}

func TestStep(t *testing.T) {
	env, err := New(2, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	sp, ap := env.StateSpace(), env.ActionSpace()

	s, err := sp.New([]float64{0, 0, 1, 2, -1, -1}, 3)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("forward", func(t *testing.T) {
		a, _ := ap.FromIndices([]int{1, 2, 0})
		next, err := environment.Step(env, s, a)
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{0, 1, -1, -1, -1, -1}
		if !floats.Equal(next.Tensor().Data(), want) {
			t.Errorf("want %v, have %v", want, next.Tensor().Data())
		}
		if next.ForwardMask(0)[1] != true || next.BackwardMask(0)[1] != true {
			t.Error("masks should be recomputed for the new state")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		a, _ := ap.FromIndices([]int{0, 1, 0})
		_, err := environment.Step(env, s, a)
		if !gfnerr.IsNonValidAction(err) {
			t.Errorf("want non-valid action error, have %v", err)
		}
	})

	t.Run("backward", func(t *testing.T) {
		a, _ := ap.FromIndices([]int{0, 1, 0})
		prev, err := environment.BackwardStep(env, s, a)
		if err != nil {
			t.Fatal(err)
		}
		want := []float64{0, 0, 1, 1, -1, -1}
		if !floats.Equal(prev.Tensor().Data(), want) {
			t.Errorf("want %v, have %v", want, prev.Tensor().Data())
		}
	})

	t.Run("backwardExitInvalid", func(t *testing.T) {
		a, _ := ap.FromIndices([]int{0, 2, 0})
		_, err := environment.BackwardStep(env, s, a)
		if !gfnerr.IsNonValidAction(err) {
			t.Errorf("want non-valid action error, have %v", err)
		}
	})
}

func TestResetRandom(t *testing.T) {
	env, err := New(3, 5, 42)
	if err != nil {
		t.Fatal(err)
	}

	s, err := environment.Reset(env, true, false, 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.StatesIndices(s); err != nil {
		t.Errorf("random states should lie on the grid: %v", err)
	}
}
