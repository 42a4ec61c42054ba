package estimators

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Module maps preprocessed states to one row of logits per state
type Module interface {
	Forward(input *mat.Dense) (*mat.Dense, error)
	OutputDim() int
}

// Discrete is a masked categorical policy over the actions of a discrete
// environment. Logits for illegal actions are replaced by -inf before
// normalization.
type Discrete struct {
	module   Module
	pre      Preprocessor
	space    *actions.Space
	backward bool
	dev      device.Device

	temperature float64
	sfBias      float64
	epsilon     float64
}

// Option configures a Discrete estimator
type Option func(*Discrete)

// WithTemperature divides logits by t before normalization
func WithTemperature(t float64) Option {
	return func(d *Discrete) { d.temperature = t }
}

// WithSfBias subtracts b from the exit logit of a forward policy
func WithSfBias(b float64) Option {
	return func(d *Discrete) { d.sfBias = b }
}

// WithEpsilon mixes the policy with the uniform policy over legal
// actions with weight e
func WithEpsilon(e float64) Option {
	return func(d *Discrete) { d.epsilon = e }
}

// WithDevice places the estimator on device dev
func WithDevice(dev device.Device) Option {
	return func(d *Discrete) { d.dev = dev }
}

// NewDiscrete returns a new Discrete policy estimator over the actions
// of space. A forward module outputs one logit per action, a backward
// module one logit per action excluding exit.
func NewDiscrete(module Module, pre Preprocessor, space *actions.Space,
	backward bool, opts ...Option) (*Discrete, error) {
	if !space.IsDiscrete() {
		return nil, gfnerr.New("newDiscrete", gfnerr.ErrUnsupported,
			"action space is continuous")
	}

	want := space.NActions()
	if backward {
		want--
	}
	if module.OutputDim() != want {
		return nil, gfnerr.Shape("newDiscrete", want, module.OutputDim())
	}

	d := &Discrete{
		module:      module,
		pre:         pre,
		space:       space,
		backward:    backward,
		dev:         space.Device(),
		temperature: 1.0,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.temperature <= 0 {
		return nil, fmt.Errorf("newDiscrete: temperature must be > 0, "+
			"have %v", d.temperature)
	}
	if d.epsilon < 0 || d.epsilon > 1 {
		return nil, fmt.Errorf("newDiscrete: epsilon must be in [0, 1], "+
			"have %v", d.epsilon)
	}
	return d, nil
}

// IsBackward implements the PolicyEstimator interface
func (d *Discrete) IsBackward() bool { return d.backward }

// Device implements the PolicyEstimator interface
func (d *Discrete) Device() device.Device { return d.dev }

// Module returns the module producing the logits
func (d *Discrete) Module() Module { return d.module }

// Distribution implements the PolicyEstimator interface
func (d *Discrete) Distribution(s *states.States) (Distribution, error) {
	if err := device.Ensure("distribution", d.dev,
		s.Space().Device()); err != nil {
		return nil, err
	}

	n := s.Len()
	dim := d.module.OutputDim()
	c := &Categorical{space: d.space, logProbs: make([][]float64, n)}
	if n == 0 {
		return c, nil
	}

	input, err := d.pre.Preprocess(s)
	if err != nil {
		return nil, err
	}
	out, err := d.module.Forward(input)
	if err != nil {
		return nil, err
	}
	if r, col := out.Dims(); r != n || col != dim {
		return nil, gfnerr.Shape("distribution", []int{n, dim},
			[]int{r, col})
	}
	c.outputs = out

	for i := 0; i < n; i++ {
		var mask []bool
		if d.backward {
			mask = s.BackwardMask(i)
		} else {
			mask = s.ForwardMask(i)
		}

		logp, err := d.normalize(out.RawRowView(i), mask)
		if err != nil {
			return nil, gfnerr.New("distribution", gfnerr.ErrInvalidPolicy,
				"state %v: %v", s.Row(i), err)
		}
		c.logProbs[i] = logp
	}
	return c, nil
}

// normalize returns the masked, tempered log-probabilities of a row of
// logits
func (d *Discrete) normalize(logits []float64, mask []bool) ([]float64,
	error) {
	logp := make([]float64, len(logits))
	legal := 0
	for j, l := range logits {
		if !mask[j] {
			logp[j] = math.Inf(-1)
			continue
		}
		legal++

		logp[j] = l / d.temperature
		if !d.backward && j == len(logits)-1 {
			logp[j] -= d.sfBias
		}
	}

	lse := floats.LogSumExp(logp)
	if math.IsNaN(lse) {
		return nil, fmt.Errorf("NaN logits")
	}
	if legal == 0 || math.IsInf(lse, -1) {
		return nil, fmt.Errorf("no legal action has positive probability")
	}
	for j := range logp {
		logp[j] -= lse
	}

	if d.epsilon > 0 {
		for j := range logp {
			if !mask[j] {
				continue
			}
			p := (1-d.epsilon)*math.Exp(logp[j]) + d.epsilon/float64(legal)
			logp[j] = math.Log(p)
		}
	}
	return logp, nil
}

// Categorical is a batch of categorical distributions over discrete
// actions
type Categorical struct {
	space    *actions.Space
	logProbs [][]float64
	outputs  *mat.Dense
}

// Len implements the Distribution interface
func (c *Categorical) Len() int { return len(c.logProbs) }

// Probs returns the probabilities of the distribution at row i
func (c *Categorical) Probs(i int) []float64 {
	p := make([]float64, len(c.logProbs[i]))
	for j, l := range c.logProbs[i] {
		p[j] = math.Exp(l)
	}
	return p
}

// Sample implements the Distribution interface
func (c *Categorical) Sample(src rand.Source) (*actions.Actions, error) {
	indices := make([]int, c.Len())
	for i := range indices {
		dist := distuv.NewCategorical(c.Probs(i), src)
		indices[i] = int(dist.Rand())
	}
	return c.space.FromIndices(indices)
}

// LogProb implements the Distribution interface
func (c *Categorical) LogProb(a *actions.Actions) ([]float64, error) {
	if a.Len() != c.Len() {
		return nil, gfnerr.Shape("logProb", c.Len(), a.Len())
	}

	out := make([]float64, a.Len())
	for i := range out {
		idx := a.Index(i)
		if idx < 0 || idx >= len(c.logProbs[i]) {
			return nil, gfnerr.New("logProb", gfnerr.ErrNonValidAction,
				"action %v outside the support of the policy", idx)
		}
		out[i] = c.logProbs[i][idx]
	}
	return out, nil
}

// Outputs implements the OutputProvider interface
func (c *Categorical) Outputs() *mat.Dense { return c.outputs }
