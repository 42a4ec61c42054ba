package expreplay

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/utils/intutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SelectorType determines the type of Selector used
type SelectorType string

const (
	Uniform     SelectorType = "Uniform"
	Fifo        SelectorType = "Fifo"
	Prioritized SelectorType = "Prioritized"
)

// Selector implements functionality for choosing how data should be
// sampled and/or removed from a replay buffer
type Selector interface {
	// choose selects n rows of the buffer contents c. Buffer contents
	// are kept in insertion order.
	choose(c containers.Container, n int) ([]int, error)
}

// CreateSelector is a factory for creating Selectors
func CreateSelector(t SelectorType, seed uint64) (Selector, error) {
	switch t {
	case Uniform:
		return NewUniformSelector(seed), nil

	case Fifo:
		return NewFifoSelector(), nil

	case Prioritized:
		return NewPrioritizedSelector(), nil
	}
	return nil, fmt.Errorf("createSelector: no such selector type %v", t)
}

// uniformSelector is a Selector which selects data from a replay buffer
// uniformly at random without replacement
type uniformSelector struct {
	src rand.Source
}

// NewUniformSelector returns a new Selector which selects data uniformly
// randomly without replacement from a replay buffer
func NewUniformSelector(seed uint64) Selector {
	return &uniformSelector{src: rand.NewSource(seed)}
}

// choose selects a number of rows at which to draw data from the
// buffer
func (u *uniformSelector) choose(c containers.Container, n int) ([]int,
	error) {
	n = intutils.Min(n, c.Len())
	selected := make([]int, n)
	if n == 0 {
		return selected, nil
	}

	sampleuv.WithoutReplacement(selected, c.Len(), u.src)
	return selected, nil
}

// fifoSelector is a Selector which selects the oldest data in a replay
// buffer
type fifoSelector struct{}

// NewFifoSelector returns a new Selector which draws data from a
// replay buffer first-in-first-out
func NewFifoSelector() Selector {
	return fifoSelector{}
}

// choose selects the n oldest rows of the buffer
func (f fifoSelector) choose(c containers.Container, n int) ([]int,
	error) {
	return intutils.Arange(0, intutils.Min(n, c.Len())), nil
}

// prioritizedSelector is a Selector which selects the data with the
// lowest log-rewards in a replay buffer. As a remover, it keeps the
// data with the highest log-rewards.
type prioritizedSelector struct{}

// NewPrioritizedSelector returns a new Selector which draws data from
// a replay buffer in order of increasing log-reward
func NewPrioritizedSelector() Selector {
	return prioritizedSelector{}
}

// choose selects the n rows of the buffer with the lowest log-rewards
func (p prioritizedSelector) choose(c containers.Container, n int) ([]int,
	error) {
	lr, err := c.LogRewards()
	if err != nil {
		return nil, fmt.Errorf("choose: cannot prioritize: %v", err)
	}

	rows := intutils.Arange(0, len(lr))
	floats.Argsort(lr, rows)
	return rows[:intutils.Min(n, len(rows))], nil
}
