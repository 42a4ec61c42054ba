package gflownet

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/samplers"
	"gonum.org/v1/gonum/floats"
)

const tolerance = 1e-10

type fixture struct {
	env    *hypergrid.HyperGrid
	pf, pb *estimators.Discrete
}

func newFixture(t *testing.T) fixture {
	env, err := hypergrid.New(2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	pre := estimators.NewKHot(2, 4, 0)
	pf, err := estimators.NewDiscrete(estimators.NewUniform(3), pre,
		env.ActionSpace(), false)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := estimators.NewDiscrete(estimators.NewUniform(2), pre,
		env.ActionSpace(), true)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{env, pf, pb}
}

// exitAtOrigin returns n trajectories that exit at s0
func (f fixture) exitAtOrigin(t *testing.T, n int) *containers.Trajectories {
	sp, ap := f.env.StateSpace(), f.env.ActionSpace()
	var data []float64
	for _, elem := range [][]float64{sp.S0(), sp.Sf()} {
		for i := 0; i < n; i++ {
			data = append(data, elem...)
		}
	}
	s, err := sp.New(data, 2, n)
	if err != nil {
		t.Fatal(err)
	}

	traj, err := containers.NewTrajectories(f.env, s, ap.Exits(1, n),
		make([]int, n), false)
	if err != nil {
		t.Fatal(err)
	}
	return traj
}

func TestScores(t *testing.T) {
	f := newFixture(t)
	tb := NewTrajectoryBalance(f.pf, f.pb, 0, zerolog.Nop())

	logPF, logPB, scores, err := tb.Scores(f.exitAtOrigin(t, 1), false)
	if err != nil {
		t.Fatal(err)
	}

	// Three actions are legal at the origin, whose reward is R0 + R1
	wantPF := -math.Log(3)
	want := wantPF - math.Log(0.6)
	if math.Abs(logPF[0]-wantPF) > tolerance {
		t.Errorf("want log PF %v, have %v", wantPF, logPF[0])
	}
	if logPB[0] != 0 {
		t.Errorf("want log PB 0, have %v", logPB[0])
	}
	if math.Abs(scores[0]-want) > tolerance {
		t.Errorf("want score %v, have %v", want, scores[0])
	}
}

func TestScoresUseRecordedLogProbs(t *testing.T) {
	f := newFixture(t)
	traj, err := samplers.New(f.pf, 4).SampleTrajectories(f.env,
		samplers.SampleOptions{N: 12, SaveLogProbs: true})
	if err != nil {
		t.Fatal(err)
	}

	tb := NewTrajectoryBalance(f.pf, f.pb, 0, zerolog.Nop())
	recorded, _, a, err := tb.Scores(traj, false)
	if err != nil {
		t.Fatal(err)
	}
	recalculated, _, b, err := tb.Scores(traj, true)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(recorded, recalculated, tolerance) ||
		!floats.EqualApprox(a, b, tolerance) {
		t.Errorf("recorded %v and recalculated %v log PF differ", recorded,
			recalculated)
	}
}

func TestTrajectoryBalanceLoss(t *testing.T) {
	f := newFixture(t)
	traj := f.exitAtOrigin(t, 4)
	score := -math.Log(3) - math.Log(0.6)

	tests := []struct {
		name      string
		logZ      float64
		reduction Reduction
		want      float64
	}{
		{"balanced", -score, Mean, 0},
		{"mean", 1 - score, Mean, 1},
		{"sum", 2 - score, Sum, 16},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tb := NewTrajectoryBalance(f.pf, f.pb, test.logZ, zerolog.Nop())
			loss, err := tb.Loss(traj, true, test.reduction)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(loss-test.want) > 1e-9 {
				t.Errorf("want %v, have %v", test.want, loss)
			}
		})
	}

	tb := NewTrajectoryBalance(f.pf, f.pb, math.NaN(), zerolog.Nop())
	if _, err := tb.Loss(traj, true, Mean); !gfnerr.IsNaN(err) {
		t.Errorf("want NaN loss, have %v", err)
	}
	tb.LogZ = 0
	if _, err := tb.Loss(traj, true, "max"); err == nil {
		t.Error("want error for unknown reduction")
	}
}

func TestLogPartitionVariance(t *testing.T) {
	f := newFixture(t)
	lv := NewLogPartitionVariance(f.pf, f.pb, zerolog.Nop())

	loss, err := lv.Loss(f.exitAtOrigin(t, 3), true, Mean)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(loss) > tolerance {
		t.Errorf("equal trajectories should have zero variance, have %v",
			loss)
	}

	traj, err := samplers.New(f.pf, 8).SampleTrajectories(f.env,
		samplers.SampleOptions{N: 16})
	if err != nil {
		t.Fatal(err)
	}
	_, _, scores, err := lv.Scores(traj, true)
	if err != nil {
		t.Fatal(err)
	}
	loss, err = lv.Loss(traj, true, Mean)
	if err != nil {
		t.Fatal(err)
	}

	mean := floats.Sum(scores) / float64(len(scores))
	want := 0.0
	for _, s := range scores {
		want += (s - mean) * (s - mean)
	}
	want /= float64(len(scores))
	if math.Abs(loss-want) > 1e-9 {
		t.Errorf("want %v, have %v", want, loss)
	}
}

func TestScoresBackward(t *testing.T) {
	f := newFixture(t)
	back, err := f.exitAtOrigin(t, 2).Reverse()
	if err != nil {
		t.Fatal(err)
	}
	tb := NewTrajectoryBalance(f.pf, f.pb, 0, zerolog.Nop())
	if _, _, _, err := tb.Scores(back, true); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}
