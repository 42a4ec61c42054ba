// Package estimators defines the contract between policy estimators and
// the samplers, and implements masked categorical policies for discrete
// environments.
package estimators

import (
	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/states"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// PolicyEstimator produces a distribution over actions for each state
// of a batch. Forward estimators cover every action including exit,
// backward estimators every action except exit.
type PolicyEstimator interface {
	// IsBackward returns whether the estimator is a backward policy
	IsBackward() bool

	// Device returns the device the estimator computes on
	Device() device.Device

	// Distribution returns the action distributions at each state of
	// the rank-1 batch s. Illegal actions have zero probability.
	Distribution(s *states.States) (Distribution, error)
}

// Distribution is a batch of action distributions, one per state
type Distribution interface {
	// Len returns the number of distributions in the batch
	Len() int

	// Sample samples one action per distribution
	Sample(src rand.Source) (*actions.Actions, error)

	// LogProb returns the log-probability of each action of the rank-1
	// batch a under the corresponding distribution
	LogProb(a *actions.Actions) ([]float64, error)
}

// OutputProvider is implemented by distributions that expose the raw
// estimator outputs they were built from, one row per state
type OutputProvider interface {
	Outputs() *mat.Dense
}
