package box

import (
	"math"
	"testing"

	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/estimators"
	"golang.org/x/exp/rand"
)

func newBox(t *testing.T) *Box {
	env, err := New(DefaultConfig, 0)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestIsActionValid(t *testing.T) {
	d := DefaultConfig.Delta
	c := d / math.Sqrt2
	ninf := math.Inf(-1)

	tests := []struct {
		name     string
		state    []float64
		action   []float64
		backward bool
		want     bool
	}{
		{"originShort", []float64{0, 0}, []float64{0.03, 0.04}, false, true},
		{"originLong", []float64{0, 0}, []float64{0.1, 0.1}, false, false},
		{"step", []float64{0.5, 0.5}, []float64{c, c}, false, true},
		{"stepShort", []float64{0.5, 0.5}, []float64{0.01, 0}, false, false},
		{"stepNegative", []float64{0.5, 0.5}, []float64{-d, 0}, false, false},
		{"stepOutside", []float64{0.95, 0.5}, []float64{d, 0}, false, false},
		{"exit", []float64{0.5, 0.5}, []float64{ninf, ninf}, false, true},
		{"originExit", []float64{0, 0}, []float64{ninf, ninf}, false, true},
		{"backExit", []float64{0.5, 0.5}, []float64{ninf, ninf}, true, false},
		{"back", []float64{0.5, 0.5}, []float64{c, c}, true, true},
		{"backOutside", []float64{0.05, 0.5}, []float64{d, 0}, true, false},
		{"backNear", []float64{0.03, 0.04}, []float64{0.03, 0.04}, true, true},
		{"backNearWrong", []float64{0.03, 0.04}, []float64{0.03, 0}, true,
			false},
		{"backOrigin", []float64{0, 0}, []float64{0, 0}, true, false},
	}

	env := newBox(t)
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := env.StateSpace().New(test.state, 1)
			if err != nil {
				t.Fatal(err)
			}
			a, err := env.ActionSpace().New(test.action, 1)
			if err != nil {
				t.Fatal(err)
			}
			if got := env.IsActionValid(s, a, test.backward); got != test.want {
				t.Errorf("want %v, have %v", test.want, got)
			}
		})
	}
}

func TestPoliciesProduceValidActions(t *testing.T) {
	env := newBox(t)
	pf, err := NewPFEstimator(env, DefaultPolicy)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := NewPBEstimator(env, DefaultPolicy)
	if err != nil {
		t.Fatal(err)
	}
	src := rand.NewSource(3)

	s, err := environment.Reset(env, true, false, 50)
	if err != nil {
		t.Fatal(err)
	}

	for _, est := range []estimators.PolicyEstimator{pf, pb} {
		dist, err := est.Distribution(s)
		if err != nil {
			t.Fatal(err)
		}
		acts, err := dist.Sample(src)
		if err != nil {
			t.Fatal(err)
		}
		if !env.IsActionValid(s, acts, est.IsBackward()) {
			t.Errorf("backward=%v: sampled actions should be valid",
				est.IsBackward())
		}

		lp, err := dist.LogProb(acts)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range lp {
			if math.IsInf(v, 0) || math.IsNaN(v) {
				t.Errorf("backward=%v row %v: log-prob of a sampled "+
					"action is %v", est.IsBackward(), i, v)
			}
		}
	}
}

func TestLogPartition(t *testing.T) {
	env := newBox(t)
	want := math.Log(0.1 + 0.25*0.5 + 0.04*2.0)
	if got := env.LogPartition(); math.Abs(got-want) > 1e-12 {
		t.Errorf("want %v, have %v", want, got)
	}
}

func TestMove(t *testing.T) {
	env := newBox(t)
	s, err := env.StateSpace().New([]float64{0.2, 0.3, 0.5, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	a, err := env.ActionSpace().New([]float64{0.06, 0.08, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}

	next, err := env.MasklessStep(s, a)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{0.2 + 0.06, 0.3 + 0.08}, {0.5 + 0.1, 0.1}}
	for i, w := range want {
		if row := next.Row(i); row[0] != w[0] || row[1] != w[1] {
			t.Errorf("forward row %v: want %v, have %v", i, w, row)
		}
	}

	back, err := env.MasklessBackwardStep(next, a)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < s.Len(); i++ {
		for j, v := range back.Row(i) {
			if math.Abs(v-s.Row(i)[j]) > 1e-12 {
				t.Errorf("backward row %v: want %v, have %v", i, s.Row(i),
					back.Row(i))
			}
		}
	}

	empty, err := env.MasklessStep(env.StateSpace().Empty(),
		env.ActionSpace().Empty())
	if err != nil {
		t.Fatal(err)
	}
	if empty.Len() != 0 {
		t.Errorf("want an empty batch, have %v", empty)
	}
}

func TestSampleEmpty(t *testing.T) {
	env := newBox(t)
	pf, err := NewPFEstimator(env, DefaultPolicy)
	if err != nil {
		t.Fatal(err)
	}
	dist, err := pf.Distribution(env.StateSpace().Empty())
	if err != nil {
		t.Fatal(err)
	}
	a, err := dist.Sample(rand.NewSource(0))
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 0 {
		t.Errorf("want no actions, have %v", a)
	}
}
