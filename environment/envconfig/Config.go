// Package envconfig provides configuration structs for configuring
// environments with default parameters. Environment configurations in
// this package are JSON serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/environment/box"
	"github.com/samuelfneumann/gogfn/environment/discreteebm"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	HyperGrid   EnvName = "HyperGrid"
	Box         EnvName = "Box"
	DiscreteEBM EnvName = "DiscreteEBM"
)

// Config implements a specific configuration of a specific environment.
// Fields which do not apply to the configured environment are ignored,
// and zero-valued fields take the environment's default value.
type Config struct {
	Environment EnvName

	// HyperGrid and DiscreteEBM
	NDim int

	// HyperGrid
	Height    int
	RewardCos bool

	// Box
	Delta   float64
	Epsilon float64

	// DiscreteEBM
	Alpha float64

	// HyperGrid and Box
	R0, R1, R2 float64
}

// Create returns the environment described by the Config
func (c Config) Create(seed uint64) (env.Environment, error) {
	switch c.Environment {
	case HyperGrid:
		return CreateHyperGrid(c, seed)

	case Box:
		return CreateBox(c, seed)

	case DiscreteEBM:
		return CreateDiscreteEBM(c, seed)
	}

	return nil, fmt.Errorf("create: cannot create environment %v, no such "+
		"environment", c.Environment)
}

// CreateHyperGrid is a factory for creating the HyperGrid environment.
// A zero-valued reward takes the default HyperGrid reward.
func CreateHyperGrid(c Config, seed uint64) (*hypergrid.HyperGrid, error) {
	reward := hypergrid.DefaultReward
	if c.R0 != 0 || c.R1 != 0 || c.R2 != 0 {
		reward = hypergrid.Reward{R0: c.R0, R1: c.R1, R2: c.R2}
	}
	reward.Cos = c.RewardCos

	return hypergrid.NewWithReward(orDefault(c.NDim, 2),
		orDefault(c.Height, 4), reward, seed)
}

// CreateBox is a factory for creating the Box environment
func CreateBox(c Config, seed uint64) (*box.Box, error) {
	bc := box.DefaultConfig
	if c.Delta != 0 {
		bc.Delta = c.Delta
	}
	if c.Epsilon != 0 {
		bc.Epsilon = c.Epsilon
	}
	if c.R0 != 0 || c.R1 != 0 || c.R2 != 0 {
		bc.R0, bc.R1, bc.R2 = c.R0, c.R1, c.R2
	}
	return box.New(bc, seed)
}

// CreateDiscreteEBM is a factory for creating the DiscreteEBM
// environment
func CreateDiscreteEBM(c Config, seed uint64) (*discreteebm.DiscreteEBM,
	error) {
	alpha := c.Alpha
	if alpha == 0 {
		alpha = 1
	}
	return discreteebm.New(orDefault(c.NDim, 4), alpha, seed)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
