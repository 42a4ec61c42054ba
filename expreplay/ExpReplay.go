// Package expreplay implements bounded replay buffers of trajectories or
// transitions.
package expreplay

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/utils/intutils"
)

// Config implements a specific configuration of a ReplayBuffer
type Config struct {
	RemoveMethod      SelectorType
	MaxReplayCapacity int
	MinReplayCapacity int
}

// Create creates and returns the ReplayBuffer with the specified
// Config. Data is always sampled uniformly.
func (c Config) Create(seed uint64, opts ...Option) (*ReplayBuffer,
	error) {
	remover, err := CreateSelector(c.RemoveMethod, seed)
	if err != nil {
		return nil, err
	}
	sampler := NewUniformSelector(seed)

	minCapacity := c.MinReplayCapacity
	if minCapacity == 0 {
		minCapacity = 1
	}
	return New(remover, sampler, minCapacity, c.MaxReplayCapacity, opts...)
}

// ReplayBuffer stores the most recent, or the highest rewarded, rows of
// the containers added to it. All containers added to a buffer must be
// of the same concrete type, which is also the type returned by Sample.
type ReplayBuffer struct {
	contents containers.Container

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	minCapacity int
	maxCapacity int

	logger zerolog.Logger
}

// Option configures a ReplayBuffer
type Option func(*ReplayBuffer)

// WithLogger sets the logger of a ReplayBuffer
func WithLogger(l zerolog.Logger) Option {
	return func(r *ReplayBuffer) {
		r.logger = l
	}
}

// New creates and returns a new ReplayBuffer. The remover and sampler
// parameters are Selectors which determine how data is removed and
// sampled from the replay buffer. At most maxCapacity rows are kept,
// and at least minCapacity rows must be stored before sampling.
func New(remover, sampler Selector, minCapacity, maxCapacity int,
	opts ...Option) (*ReplayBuffer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return nil, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if minCapacity > maxCapacity {
		return nil, fmt.Errorf("new: cannot have min capacity (%v) > max "+
			"capacity (%v)", minCapacity, maxCapacity)
	}

	r := &ReplayBuffer{
		remover:     remover,
		sampler:     sampler,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "replay_buffer").Logger()
	return r, nil
}

// Len returns the current number of rows in the buffer
func (r *ReplayBuffer) Len() int {
	if r.contents == nil {
		return 0
	}
	return r.contents.Len()
}

// MaxCapacity returns the maximum number of rows that are allowed in
// the buffer
func (r *ReplayBuffer) MaxCapacity() int {
	return r.maxCapacity
}

// MinCapacity returns the minimum number of rows required in the
// buffer before sampling is allowed
func (r *ReplayBuffer) MinCapacity() int {
	return r.minCapacity
}

// Add adds every row of c to the buffer, then removes rows with the
// remover until the buffer holds at most MaxCapacity rows. The buffer
// stores a copy of c.
func (r *ReplayBuffer) Add(c containers.Container) error {
	all := intutils.Arange(0, c.Len())
	if r.contents == nil {
		contents, err := c.Subset(all)
		if err != nil {
			return fmt.Errorf("add: cannot add to buffer: %w", err)
		}
		r.contents = contents
	} else {
		added, err := c.Subset(all)
		if err != nil {
			return fmt.Errorf("add: cannot add to buffer: %w", err)
		}
		if err := r.contents.Append(added); err != nil {
			return fmt.Errorf("add: cannot add to buffer: %w", err)
		}
	}

	excess := r.contents.Len() - r.maxCapacity
	if excess <= 0 {
		return nil
	}
	if err := r.remove(excess); err != nil {
		return fmt.Errorf("add: cannot add to buffer: %w", err)
	}

	r.logger.Debug().Int("added", c.Len()).Int("removed", excess).
		Int("len", r.Len()).Msg("buffer full")
	return nil
}

// remove removes n rows chosen by the remover from the buffer
func (r *ReplayBuffer) remove(n int) error {
	rows, err := r.remover.choose(r.contents, n)
	if err != nil {
		return err
	}

	removed := make([]bool, r.contents.Len())
	for _, row := range rows {
		removed[row] = true
	}
	keep := make([]int, 0, len(removed)-len(rows))
	for row, rm := range removed {
		if !rm {
			keep = append(keep, row)
		}
	}

	contents, err := r.contents.Subset(keep)
	if err != nil {
		return err
	}
	r.contents = contents
	return nil
}

// Sample samples and returns min(n, Len()) rows from the replay
// buffer, as a container of the type stored in the buffer. A buffer
// that was never added to has no stored type, so sampling it fails
// with an empty buffer error. Sampling fails with an insufficient
// samples error below MinCapacity rows.
func (r *ReplayBuffer) Sample(n int) (containers.Container, error) {
	if r.Len() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return nil, err
	}
	if r.Len() < r.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return nil, err
	}

	rows, err := r.sampler.choose(r.contents, n)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return r.contents.Subset(rows)
}

// String returns the string representation of the buffer
func (r *ReplayBuffer) String() string {
	return fmt.Sprintf("ReplayBuffer(len=%v, max=%v, contents=%v)", r.Len(),
		r.maxCapacity, r.contents)
}
