// Package containers implements batches of transitions and padded
// batches of trajectories, the units of training data produced by the
// samplers and stored by replay buffers.
package containers

import (
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/batch"
	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"github.com/samuelfneumann/gogfn/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

var negInf = math.Inf(-1)

// Container implements a batch of training data that can be stored in
// and sampled from a replay buffer
type Container interface {
	// Len returns the number of rows of the container
	Len() int

	// Env returns the environment the container was built for
	Env() environment.Environment

	// LogRewards returns the log-reward of every row
	LogRewards() ([]float64, error)

	// Subset returns a new container of the same type holding the
	// given rows
	Subset(rows []int) (Container, error)

	// Append concatenates other onto the container. Other must be of
	// the same concrete type.
	Append(other Container) error
}

// optional holds the fields a container may or may not carry
type optional struct {
	logProbs         []float64
	logRewards       []float64
	conditioning     *mat.Dense
	clip             *float64
	estimatorOutputs *batch.Tensor
	truncated        []bool
}

// Option configures the optional fields of a container
type Option func(*optional)

// WithLogProbs sets the log-probabilities of the actions. Trajectories
// index them by t*B + i.
func WithLogProbs(logProbs []float64) Option {
	return func(o *optional) {
		o.logProbs = copyFloats(logProbs)
	}
}

// WithLogRewards sets precomputed log-rewards, which are then never
// recomputed from the environment
func WithLogRewards(logRewards []float64) Option {
	return func(o *optional) {
		o.logRewards = copyFloats(logRewards)
	}
}

// WithConditioning sets a conditioning row per trajectory or
// transition
func WithConditioning(c *mat.Dense) Option {
	return func(o *optional) {
		o.conditioning = c
	}
}

// WithLogRewardClip clips log-rewards computed from the environment
// from below at min
func WithLogRewardClip(min float64) Option {
	return func(o *optional) {
		o.clip = &min
	}
}

// WithEstimatorOutputs sets the raw estimator outputs recorded while
// sampling trajectories, with batch shape (T, B)
func WithEstimatorOutputs(t batch.Tensor) Option {
	return func(o *optional) {
		o.estimatorOutputs = &t
	}
}

// WithTruncated flags trajectories that were cut off at a maximum
// length
func WithTruncated(truncated []bool) Option {
	return func(o *optional) {
		if truncated != nil {
			o.truncated = append(make([]bool, 0, len(truncated)),
				truncated...)
		}
	}
}

// copyFloats copies v, keeping nil as nil
func copyFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append(make([]float64, 0, len(v)), v...)
}

func newOptional(opts []Option) optional {
	var o optional
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// logRewardCache is a memo cell owned by a single container. It is
// cleared whenever the container's core tensors change.
type logRewardCache struct {
	values []float64
	valid  bool
}

// get returns the memoized values, computing them on first use. A
// failed computation leaves the cell empty.
func (c *logRewardCache) get(compute func() ([]float64, error)) (
	[]float64, error) {
	if !c.valid {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(v)
	}
	return append([]float64{}, c.values...), nil
}

func (c *logRewardCache) set(v []float64) {
	c.values = append([]float64{}, v...)
	c.valid = v != nil
}

func (c *logRewardCache) invalidate() {
	c.values = nil
	c.valid = false
}

// gather returns a cell holding the memoized values of the given rows
func (c *logRewardCache) gather(rows []int) logRewardCache {
	if !c.valid {
		return logRewardCache{}
	}
	out := make([]float64, len(rows))
	for k, r := range rows {
		out[k] = c.values[r]
	}
	return logRewardCache{values: out, valid: true}
}

// extend concatenates two cells, or clears c if either is empty
func (c *logRewardCache) extend(other *logRewardCache) {
	if !c.valid || !other.valid {
		c.invalidate()
		return
	}
	c.values = append(c.values, other.values...)
}

// logRewardsOf computes the log-rewards of s, clipping them from below
// if clip is set. NaNs are not clipped.
func logRewardsOf(env environment.Environment, s *states.States,
	clip *float64) ([]float64, error) {
	if s.Len() == 0 {
		return []float64{}, nil
	}
	lr, err := environment.LogRewards(env, s)
	if err != nil {
		return nil, err
	}
	if clip != nil {
		for i, v := range lr {
			if !math.IsNaN(v) {
				lr[i] = floatutils.Max(v, *clip)
			}
		}
	}
	return lr, nil
}

// gatherRows returns the rows of a conditioning matrix
func gatherRows(m *mat.Dense, rows []int) *mat.Dense {
	if m == nil {
		return nil
	}
	_, c := m.Dims()
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(rows), c, nil)
	for k, r := range rows {
		out.SetRow(k, m.RawRowView(r))
	}
	return out
}

func gatherFloats(v []float64, rows []int) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(rows))
	for k, r := range rows {
		out[k] = v[r]
	}
	return out
}

func gatherBools(v []bool, rows []int) []bool {
	if v == nil {
		return nil
	}
	out := make([]bool, len(rows))
	for k, r := range rows {
		out[k] = v[r]
	}
	return out
}

func indices(keep []bool) []int {
	out := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			out = append(out, i)
		}
	}
	return out
}

func checkRows(op string, n int, rows []int) error {
	for _, r := range rows {
		if r < 0 || r >= n {
			return gfnerr.New(op, gfnerr.ErrShape,
				"index %v out of range [0, %v)", r, n)
		}
	}
	return nil
}

// extendStates returns a concatenated with b, leaving a untouched
func extendStates(a, b *states.States) (*states.States, error) {
	out := *a
	if err := out.Extend(b); err != nil {
		return nil, err
	}
	return &out, nil
}

// extendActions returns a concatenated with b, leaving a untouched
func extendActions(a, b *actions.Actions) (*actions.Actions, error) {
	out := *a
	if err := out.Extend(b); err != nil {
		return nil, err
	}
	return &out, nil
}

func cloneDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	if r, _ := m.Dims(); r == 0 {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(m)
}
