// Package experiment implements functionality for running an experiment
package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/environment/box"
	"github.com/samuelfneumann/gogfn/environment/discreteebm"
	"github.com/samuelfneumann/gogfn/environment/envconfig"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/experiment/tracker"
	"github.com/samuelfneumann/gogfn/expreplay"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/initwfn"
	"github.com/samuelfneumann/gogfn/network"
	"github.com/samuelfneumann/gogfn/samplers"
)

// Interface Experiment outlines structs that can run experiments.
// Experiments send each batch of trajectories they generate to their
// Trackers, which cache the data they need in RAM. The Save() method
// then saves all cached data to disk, usually after Run() has returned.
type Experiment interface {
	// Run runs the experiment and reports on the generated trajectories
	Run() (Report, error)

	// Register adds a new tracker.Tracker to the (possibly already
	// running) experiment
	Register(t tracker.Tracker)

	// Save saves all tracked data to disk
	Save() error
}

type Type string

const (
	OnlineExp Type = "OnlineExperiment"
)

// PolicyType names the module that parameterizes the policies of
// discrete environments
type PolicyType string

const (
	UniformPolicy PolicyType = "uniform"
	MLPPolicy     PolicyType = "mlp"
)

// PolicyConfig configures the forward and backward policies. Box
// environments always use their polar policies.
type PolicyConfig struct {
	Type        PolicyType
	HiddenSizes []int
	Activations []*network.Activation

	// Init draws the MLP weights, Glorot uniform if nil
	Init *initwfn.InitWFn

	Temperature float64
	SfBias      float64
	Epsilon     float64
}

// LocalSearchConfig configures the local search moves run on each
// sampled batch. No local search is run when Loops is 0.
type LocalSearchConfig struct {
	Loops int
	samplers.LocalSearchOptions
}

// Config represents a configuration of an experiment.
type Config struct {
	Type
	Env    envconfig.Config
	Policy PolicyConfig

	// Trajectories sampled per iteration
	N          int
	MaxLength  int
	Iterations int

	LocalSearch LocalSearchConfig

	Buffer expreplay.Config

	// Rows sampled from the replay buffer per iteration
	ReplaySize int
}

// DefaultConfig returns an online experiment on a small HyperGrid with
// uniform policies
func DefaultConfig() Config {
	return Config{
		Type:       OnlineExp,
		Env:        envconfig.Config{Environment: envconfig.HyperGrid},
		Policy:     PolicyConfig{Type: UniformPolicy},
		N:          16,
		Iterations: 10,
		LocalSearch: LocalSearchConfig{
			LocalSearchOptions: samplers.LocalSearchOptions{
				BackRatio:  0.5,
				Acceptance: samplers.MetropolisHastings,
			},
		},
		Buffer: expreplay.Config{
			RemoveMethod:      expreplay.Fifo,
			MaxReplayCapacity: 1000,
		},
		ReplaySize: 16,
	}
}

// Load reads a JSON Config from path. Fields absent from the file keep
// their DefaultConfig values.
func Load(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("load: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("load: could not decode %v: %w", path, err)
	}
	return c, nil
}

// CreateExp creates the experiment described by the Config. Each
// experiment gets a fresh run id, attached to every log line.
func (c Config) CreateExp(seed uint64, logger zerolog.Logger,
	t ...tracker.Tracker) (Experiment, error) {
	env, err := c.Env.Create(seed)
	if err != nil {
		return nil, err
	}
	pf, pb, err := Policies(env, c.Policy, seed)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger = logger.With().Str("run_id", runID).Logger()

	switch c.Type {
	case OnlineExp, "":
		return NewOnline(env, pf, pb, c, seed, runID, logger, t...)
	}

	return nil, fmt.Errorf("createExp: no such experiment type %v", c.Type)
}

// Policies returns the forward and backward policies configured by c
// for env
func Policies(env environment.Environment, c PolicyConfig,
	seed uint64) (pf, pb estimators.PolicyEstimator, err error) {
	if b, ok := env.(*box.Box); ok {
		if pf, err = box.NewPFEstimator(b, box.DefaultPolicy); err != nil {
			return nil, nil, err
		}
		if pb, err = box.NewPBEstimator(b, box.DefaultPolicy); err != nil {
			return nil, nil, err
		}
		return pf, pb, nil
	}

	pre, err := preprocessor(env)
	if err != nil {
		return nil, nil, err
	}

	var opts []estimators.Option
	if c.Temperature != 0 {
		opts = append(opts, estimators.WithTemperature(c.Temperature))
	}
	opts = append(opts, estimators.WithSfBias(c.SfBias),
		estimators.WithEpsilon(c.Epsilon))

	space := env.ActionSpace()
	fwd, bwd, err := modules(c, pre.OutputDim(), space.NActions(), seed)
	if err != nil {
		return nil, nil, err
	}

	if pf, err = estimators.NewDiscrete(fwd, pre, space, false,
		opts...); err != nil {
		return nil, nil, err
	}
	if pb, err = estimators.NewDiscrete(bwd, pre, space, true); err != nil {
		return nil, nil, err
	}
	return pf, pb, nil
}

// modules returns the forward and backward modules configured by c
func modules(c PolicyConfig, features, nActions int,
	seed uint64) (fwd, bwd estimators.Module, err error) {
	switch c.Type {
	case UniformPolicy, "":
		return estimators.NewUniform(nActions),
			estimators.NewUniform(nActions - 1), nil

	case MLPPolicy:
		acts := c.Activations
		if len(acts) == 0 {
			for range c.HiddenSizes {
				acts = append(acts, network.ReLU())
			}
		}
		init := c.Init
		if init == nil {
			init = initwfn.NewGlorotU(1)
		}
		if fwd, err = network.NewMLPWithInit(features, c.HiddenSizes,
			nActions, acts, init, seed); err != nil {
			return nil, nil, err
		}
		if bwd, err = network.NewMLPWithInit(features, c.HiddenSizes,
			nActions-1, acts, init, seed+1); err != nil {
			return nil, nil, err
		}
		return fwd, bwd, nil
	}

	return nil, nil, fmt.Errorf("modules: no such policy type %v", c.Type)
}

// preprocessor returns the state preprocessor for a discrete environment
func preprocessor(env environment.Environment) (estimators.Preprocessor,
	error) {
	switch e := env.(type) {
	case *hypergrid.HyperGrid:
		return estimators.NewKHot(e.NDim(), e.Height(), 0), nil

	case *discreteebm.DiscreteEBM:
		return estimators.NewKHot(e.NDim(), 3, -1), nil

	case environment.Enumerable:
		return estimators.NewOneHot(e), nil
	}

	return nil, gfnerr.New("preprocessor", gfnerr.ErrUnsupported,
		"no preprocessor for environment %v", env)
}
