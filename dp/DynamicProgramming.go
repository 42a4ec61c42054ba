// Package dp computes exact GFlowNet flows on environments with a finite
// state space. Given a backward policy, the flow through every edge of
// the state graph is determined by the reward, and the forward policy
// these flows induce samples terminating states in proportion to their
// reward. The flows serve as a reference solution for samplers and
// losses.
package dp

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/environment"
	"github.com/samuelfneumann/gogfn/estimators"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Flows holds the exact state and edge flows of an environment
type Flows struct {
	env environment.Enumerable

	// state[i] is the flow through state i
	state []float64

	// edge.At(i, j) is the flow from state i along forward action j.
	// The last column holds the terminating flows.
	edge *mat.Dense

	s0 int
}

// edges holds the non-exit edges of the state graph
type edges struct {
	parent, action, child []int
	logPB                 []float64
}

// Solve computes the flows of env under the backward policy pb. Every
// forward action index must undo as the backward action of the same
// index. States are visited from the leaves of the graph toward s0,
// each state passing its flow to its parents in proportion to pb.
func Solve(env environment.Enumerable,
	pb estimators.PolicyEstimator) (*Flows, error) {
	if !pb.IsBackward() {
		return nil, fmt.Errorf("solve: need a backward policy")
	}

	n := env.NStates()
	nActions := env.ActionSpace().NActions()
	exit := nActions - 1
	all := env.AllStates()

	e, err := graph(env, pb)
	if err != nil {
		return nil, err
	}

	edge := mat.NewDense(n, nActions, nil)
	state := make([]float64, n)

	// Terminating flows
	var term []int
	for i := 0; i < n; i++ {
		if all.ForwardMask(i)[exit] {
			term = append(term, i)
		}
	}
	if len(term) > 0 {
		logRewards, err := environment.LogRewards(env, all.Select(term))
		if err != nil {
			return nil, err
		}
		for k, i := range term {
			r := math.Exp(logRewards[k])
			edge.Set(i, exit, r)
			state[i] = r
		}
	}

	children := make([]int, n)
	incoming := make([][]int, n)
	for k := range e.parent {
		children[e.parent[k]]++
		incoming[e.child[k]] = append(incoming[e.child[k]], k)
	}

	var queue []int
	for i, c := range children {
		if c == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited++

		for _, k := range incoming[i] {
			p := e.parent[k]
			f := state[i] * math.Exp(e.logPB[k])
			edge.Set(p, e.action[k], f)
			state[p] += f

			children[p]--
			if children[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	if visited != n {
		return nil, fmt.Errorf("solve: state graph has a cycle, visited %v "+
			"of %v states", visited, n)
	}

	s0, err := env.StatesIndices(env.StateSpace().Initial(1))
	if err != nil {
		return nil, err
	}
	return &Flows{env: env, state: state, edge: edge, s0: s0[0]}, nil
}

// graph returns every non-exit edge of the state graph of env along
// with the backward log-probability pb assigns to it
func graph(env environment.Enumerable,
	pb estimators.PolicyEstimator) (edges, error) {
	all := env.AllStates()
	exit := env.ActionSpace().NActions() - 1

	var e edges
	for i := 0; i < all.Len(); i++ {
		for j, legal := range all.ForwardMask(i) {
			if legal && j != exit {
				e.parent = append(e.parent, i)
				e.action = append(e.action, j)
			}
		}
	}
	if len(e.parent) == 0 {
		return e, nil
	}

	a, err := env.ActionSpace().FromIndices(e.action)
	if err != nil {
		return edges{}, err
	}
	next, err := environment.Step(env, all.Select(e.parent), a)
	if err != nil {
		return edges{}, err
	}
	if e.child, err = env.StatesIndices(next); err != nil {
		return edges{}, err
	}

	dist, err := pb.Distribution(next)
	if err != nil {
		return edges{}, err
	}
	if e.logPB, err = dist.LogProb(a); err != nil {
		return edges{}, err
	}
	return e, nil
}

// StateFlows returns the flow through each state, in state index order
func (f *Flows) StateFlows() []float64 {
	return append([]float64{}, f.state...)
}

// EdgeFlows returns an (NStates, NActions) matrix whose (i, j) entry is
// the flow out of state i along action j
func (f *Flows) EdgeFlows() *mat.Dense {
	return mat.DenseCopyOf(f.edge)
}

// LogPartition returns the log of the flow through s0, which equals the
// log-partition function of the environment
func (f *Flows) LogPartition() float64 {
	return math.Log(f.state[f.s0])
}

// TerminatingDistribution returns the probability with which the
// forward policy induced by the flows terminates in each terminating
// state, in terminating state index order
func (f *Flows) TerminatingDistribution() ([]float64, error) {
	all := f.env.AllStates()
	exit := f.env.ActionSpace().NActions() - 1

	var term []int
	for i := 0; i < all.Len(); i++ {
		if all.ForwardMask(i)[exit] {
			term = append(term, i)
		}
	}
	idx, err := f.env.TerminatingStatesIndices(all.Select(term))
	if err != nil {
		return nil, err
	}

	out := make([]float64, f.env.NTerminatingStates())
	for k, i := range term {
		out[idx[k]] = f.edge.At(i, exit)
	}
	floats.Scale(1/f.state[f.s0], out)
	return out, nil
}

// Module returns a tabular module whose logits are the log edge flows.
// Fed by an Enum preprocessor, it gives the forward policy induced by
// the flows.
func (f *Flows) Module() *estimators.Tabular {
	n, nActions := f.edge.Dims()
	t := estimators.NewTabular(n, nActions, 0)
	table := t.Table()
	for i := 0; i < n; i++ {
		for j := 0; j < nActions; j++ {
			table.Set(i, j, math.Log(f.edge.At(i, j)))
		}
	}
	return t
}
