package box

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/states"
	"github.com/samuelfneumann/gogfn/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Policy parameterizes the polar policies of the box. Step angles are
// drawn from a Beta distribution rescaled to the feasible arc, and the
// first step's radius from a Beta distribution rescaled to [0, delta].
type Policy struct {
	// ExitLogit is the logit of exiting at a state where moving is
	// feasible
	ExitLogit float64

	RadiusAlpha, RadiusBeta float64
	AngleAlpha, AngleBeta   float64
}

// DefaultPolicy draws radii and angles uniformly and exits with
// probability one half
var DefaultPolicy = Policy{
	RadiusAlpha: 1,
	RadiusBeta:  1,
	AngleAlpha:  1,
	AngleBeta:   1,
}

func (p Policy) validate() error {
	for _, v := range []float64{p.RadiusAlpha, p.RadiusBeta, p.AngleAlpha,
		p.AngleBeta} {
		if v <= 0 {
			return fmt.Errorf("validate: Beta parameters must be > 0, "+
				"have %+v", p)
		}
	}
	return nil
}

// PFEstimator is the forward policy of the box
type PFEstimator struct {
	env *Box
	Policy
}

// NewPFEstimator returns a new forward policy for env
func NewPFEstimator(env *Box, p Policy) (*PFEstimator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &PFEstimator{env, p}, nil
}

// IsBackward implements the estimators.PolicyEstimator interface
func (e *PFEstimator) IsBackward() bool { return false }

// Device implements the estimators.PolicyEstimator interface
func (e *PFEstimator) Device() device.Device { return device.CPU }

// Distribution implements the estimators.PolicyEstimator interface
func (e *PFEstimator) Distribution(s *states.States) (
	estimators.Distribution, error) {
	if err := e.env.checkRows("distribution", s); err != nil {
		return nil, err
	}

	d := newPolar(e.env, e.Policy, false, s.Len())
	initial := s.IsInitial()
	delta := e.env.Delta
	for i := 0; i < s.Len(); i++ {
		if initial[i] {
			d.kinds[i] = fromOrigin
			continue
		}

		st := s.Row(i)
		d.lo[i] = math.Acos(clip((1 - st[0]) / delta))
		d.hi[i] = math.Asin(clip((1 - st[1]) / delta))
		if d.hi[i]-d.lo[i] < 1e-9 {
			d.kinds[i] = mustExit
		} else {
			d.kinds[i] = free
		}
	}
	return d, nil
}

// PBEstimator is the backward policy of the box
type PBEstimator struct {
	env *Box
	Policy
}

// NewPBEstimator returns a new backward policy for env
func NewPBEstimator(env *Box, p Policy) (*PBEstimator, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &PBEstimator{env, p}, nil
}

// IsBackward implements the estimators.PolicyEstimator interface
func (e *PBEstimator) IsBackward() bool { return true }

// Device implements the estimators.PolicyEstimator interface
func (e *PBEstimator) Device() device.Device { return device.CPU }

// Distribution implements the estimators.PolicyEstimator interface.
// States within delta of the origin step back to the origin
// deterministically.
func (e *PBEstimator) Distribution(s *states.States) (
	estimators.Distribution, error) {
	if err := e.env.checkRows("distribution", s); err != nil {
		return nil, err
	}

	d := newPolar(e.env, e.Policy, true, s.Len())
	delta := e.env.Delta
	for i := 0; i < s.Len(); i++ {
		st := s.Row(i)
		if math.Hypot(st[0], st[1]) < delta {
			d.kinds[i] = fixed
			d.fixed[i] = []float64{st[0], st[1]}
			continue
		}

		d.lo[i] = math.Acos(clip(st[0] / delta))
		d.hi[i] = math.Asin(clip(st[1] / delta))
		if d.hi[i]-d.lo[i] < 1e-12 {
			d.kinds[i] = fixed
			d.fixed[i] = []float64{
				delta * math.Cos(d.lo[i]),
				delta * math.Sin(d.lo[i]),
			}
		} else {
			d.kinds[i] = free
		}
	}
	return d, nil
}

type rowKind int

const (
	fromOrigin rowKind = iota
	mustExit
	free
	fixed
)

// polar is a batch of polar step distributions
type polar struct {
	env      *Box
	p        Policy
	backward bool

	kinds  []rowKind
	lo, hi []float64
	fixed  [][]float64
}

func newPolar(env *Box, p Policy, backward bool, n int) *polar {
	return &polar{
		env:      env,
		p:        p,
		backward: backward,
		kinds:    make([]rowKind, n),
		lo:       make([]float64, n),
		hi:       make([]float64, n),
		fixed:    make([][]float64, n),
	}
}

// Len implements the estimators.Distribution interface
func (d *polar) Len() int { return len(d.kinds) }

func (d *polar) exitProb() float64 {
	return 1 / (1 + math.Exp(-d.p.ExitLogit))
}

// Sample implements the estimators.Distribution interface
func (d *polar) Sample(src rand.Source) (*actions.Actions, error) {
	uniform := distuv.Uniform{Min: 0, Max: 1, Src: src}
	angle := distuv.Beta{Alpha: d.p.AngleAlpha, Beta: d.p.AngleBeta,
		Src: src}
	radius := distuv.Beta{Alpha: d.p.RadiusAlpha, Beta: d.p.RadiusBeta,
		Src: src}

	if d.Len() == 0 {
		return d.env.actionSpace.Empty(), nil
	}

	delta := d.env.Delta
	exit := d.env.actionSpace.Exit()
	data := make([]float64, 0, 2*d.Len())
	for i, kind := range d.kinds {
		switch kind {
		case fromOrigin:
			r := delta * radius.Rand()
			theta := math.Pi / 2 * angle.Rand()
			data = append(data, r*math.Cos(theta), r*math.Sin(theta))

		case mustExit:
			data = append(data, exit...)

		case free:
			if !d.backward && uniform.Rand() < d.exitProb() {
				data = append(data, exit...)
				continue
			}
			theta := d.lo[i] + (d.hi[i]-d.lo[i])*angle.Rand()
			data = append(data, delta*math.Cos(theta),
				delta*math.Sin(theta))

		case fixed:
			data = append(data, d.fixed[i]...)
		}
	}
	return d.env.actionSpace.FromDense(tensor.New(
		tensor.WithShape(d.Len(), 2), tensor.WithBacking(data)))
}

// LogProb implements the estimators.Distribution interface
func (d *polar) LogProb(a *actions.Actions) ([]float64, error) {
	if a.Len() != d.Len() {
		return nil, gfnerr.Shape("logProb", d.Len(), a.Len())
	}

	angle := distuv.Beta{Alpha: d.p.AngleAlpha, Beta: d.p.AngleBeta}
	radius := distuv.Beta{Alpha: d.p.RadiusAlpha, Beta: d.p.RadiusBeta}

	delta := d.env.Delta
	exit := a.IsExit()
	out := make([]float64, a.Len())
	for i, kind := range d.kinds {
		act := a.Row(i)
		theta := math.Atan2(act[1], act[0])

		switch kind {
		case fromOrigin:
			if exit[i] {
				out[i] = math.Inf(-1)
				continue
			}
			r := math.Hypot(act[0], act[1])
			out[i] = betaLogProb(radius, r/delta) - math.Log(delta) +
				betaLogProb(angle, theta/(math.Pi/2)) - math.Log(math.Pi/2)

		case mustExit:
			if exit[i] {
				out[i] = 0
			} else {
				out[i] = math.Inf(-1)
			}

		case free:
			width := d.hi[i] - d.lo[i]
			move := betaLogProb(angle, (theta-d.lo[i])/width) -
				math.Log(width)
			switch {
			case d.backward:
				out[i] = move
			case exit[i]:
				out[i] = math.Log(d.exitProb())
			default:
				out[i] = math.Log(1-d.exitProb()) + move
			}

		case fixed:
			if act[0] == d.fixed[i][0] && act[1] == d.fixed[i][1] {
				out[i] = 0
			} else {
				out[i] = math.Inf(-1)
			}
		}
	}
	return out, nil
}

// betaLogProb evaluates the log density of b at u, keeping u off the
// boundary of the support where the density is undefined
func betaLogProb(b distuv.Beta, u float64) float64 {
	const tiny = 1e-12
	if u < tiny {
		u = tiny
	} else if u > 1-tiny {
		u = 1 - tiny
	}
	return b.LogProb(u)
}

func clip(x float64) float64 {
	return floatutils.Clip(x, 0, 1)
}
