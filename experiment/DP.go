package experiment

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/samuelfneumann/gogfn/dp"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/environment/envconfig"
	"github.com/samuelfneumann/gogfn/estimators"
	"gonum.org/v1/gonum/floats"
)

// DPReport summarizes the exact flows of an enumerable environment
type DPReport struct {
	RunID       string
	Environment string

	LogPartition     float64
	TrueLogPartition float64

	// L1 distance between the terminating distribution induced by the
	// flows and the reward distribution
	L1 float64
}

// SolveDP computes the exact flows of the environment configured by c
// under the uniform backward policy
func SolveDP(c envconfig.Config, seed uint64) (DPReport, error) {
	e, err := c.Create(seed)
	if err != nil {
		return DPReport{}, err
	}
	env, ok := e.(environment.Enumerable)
	if !ok {
		return DPReport{}, fmt.Errorf("solveDP: environment %v is not "+
			"enumerable", e)
	}

	space := env.ActionSpace()
	pb, err := estimators.NewDiscrete(estimators.NewUniform(space.NActions()-1),
		estimators.NewEnum(env), space, true)
	if err != nil {
		return DPReport{}, err
	}
	flows, err := dp.Solve(env, pb)
	if err != nil {
		return DPReport{}, err
	}

	induced, err := flows.TerminatingDistribution()
	if err != nil {
		return DPReport{}, err
	}
	pmf, err := env.TrueDistPMF()
	if err != nil {
		return DPReport{}, err
	}
	logZ, err := env.LogPartition()
	if err != nil {
		return DPReport{}, err
	}

	return DPReport{
		RunID:            uuid.New().String(),
		Environment:      fmt.Sprint(env),
		LogPartition:     flows.LogPartition(),
		TrueLogPartition: logZ,
		L1:               floats.Distance(induced, pmf, 1),
	}, nil
}
