package dp

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/environment/discreteebm"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gflownet"
	"github.com/samuelfneumann/gogfn/samplers"
	"gonum.org/v1/gonum/floats"
)

const tolerance = 1e-9

func environments(t *testing.T) map[string]environment.Enumerable {
	small, err := hypergrid.New(2, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	cube, err := hypergrid.New(3, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	ebm, err := discreteebm.New(3, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]environment.Enumerable{
		"hypergrid":      small,
		"hypergrid cube": cube,
		"ebm":            ebm,
	}
}

func uniformPB(t *testing.T, env environment.Enumerable) *estimators.Discrete {
	space := env.ActionSpace()
	pb, err := estimators.NewDiscrete(estimators.NewUniform(space.NActions()-1),
		estimators.NewEnum(env), space, true)
	if err != nil {
		t.Fatal(err)
	}
	return pb
}

func TestSolve(t *testing.T) {
	for name, env := range environments(t) {
		t.Run(name, func(t *testing.T) {
			flows, err := Solve(env, uniformPB(t, env))
			if err != nil {
				t.Fatal(err)
			}

			wantZ, err := env.LogPartition()
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(flows.LogPartition()-wantZ) > tolerance {
				t.Errorf("want log Z %v, have %v", wantZ, flows.LogPartition())
			}

			want, err := env.TrueDistPMF()
			if err != nil {
				t.Fatal(err)
			}
			have, err := flows.TerminatingDistribution()
			if err != nil {
				t.Fatal(err)
			}
			if !floats.EqualApprox(want, have, tolerance) {
				t.Errorf("want distribution %v, have %v", want, have)
			}
		})
	}
}

func TestFlowConservation(t *testing.T) {
	for name, env := range environments(t) {
		t.Run(name, func(t *testing.T) {
			pb := uniformPB(t, env)
			flows, err := Solve(env, pb)
			if err != nil {
				t.Fatal(err)
			}
			e, err := graph(env, pb)
			if err != nil {
				t.Fatal(err)
			}

			state := flows.StateFlows()
			edge := flows.EdgeFlows()
			inflow := make([]float64, len(state))
			for k := range e.parent {
				inflow[e.child[k]] += edge.At(e.parent[k], e.action[k])
			}

			for i := range state {
				outflow := floats.Sum(edge.RawRowView(i))
				if math.Abs(outflow-state[i]) > tolerance {
					t.Errorf("state %v: outflow %v, state flow %v", i, outflow,
						state[i])
				}
				if i != flows.s0 && math.Abs(inflow[i]-state[i]) > tolerance {
					t.Errorf("state %v: inflow %v, state flow %v", i, inflow[i],
						state[i])
				}
			}
		})
	}
}

// The forward policy induced by the flows satisfies trajectory balance
// with log Z exactly on every trajectory it samples
func TestInducedPolicy(t *testing.T) {
	for name, env := range environments(t) {
		t.Run(name, func(t *testing.T) {
			pb := uniformPB(t, env)
			flows, err := Solve(env, pb)
			if err != nil {
				t.Fatal(err)
			}
			pf, err := estimators.NewDiscrete(flows.Module(),
				estimators.NewEnum(env), env.ActionSpace(), false)
			if err != nil {
				t.Fatal(err)
			}

			traj, err := samplers.New(pf, 3).SampleTrajectories(env,
				samplers.SampleOptions{N: 32, SaveLogProbs: true})
			if err != nil {
				t.Fatal(err)
			}

			tb := gflownet.NewTrajectoryBalance(pf, pb, flows.LogPartition(),
				zerolog.Nop())
			loss, err := tb.Loss(traj, false, gflownet.Sum)
			if err != nil {
				t.Fatal(err)
			}
			if loss > 1e-12 {
				t.Errorf("want zero trajectory balance loss, have %v", loss)
			}
		})
	}
}

func TestSolveNeedsBackwardPolicy(t *testing.T) {
	env, err := hypergrid.New(2, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	pf, err := estimators.NewDiscrete(estimators.NewUniform(3),
		estimators.NewEnum(env), env.ActionSpace(), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Solve(env, pf); err == nil {
		t.Error("want error for a forward policy")
	}
}
