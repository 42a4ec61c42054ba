// Package network implements neural network modules that map
// preprocessed states to policy logits
package network

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/initwfn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP is a fully connected feed forward network. Hidden layers use the
// given activations and the output layer is linear.
//
// A computational graph is built lazily for each batch size that the
// MLP is fed. All graphs share the same weight tensors.
type MLP struct {
	features    int
	hiddenSizes []int
	outputs     int
	activations []*Activation

	weights []*tensor.Dense
	biases  []*tensor.Dense

	graphs map[int]*mlpGraph
}

type mlpGraph struct {
	g       *G.ExprGraph
	input   *G.Node
	vm      G.VM
	predVal G.Value
}

// NewMLP returns a new MLP with Glorot uniform weights drawn from a
// source seeded with seed and zero biases
func NewMLP(features int, hiddenSizes []int, outputs int,
	activations []*Activation, seed uint64) (*MLP, error) {
	return NewMLPWithInit(features, hiddenSizes, outputs, activations,
		initwfn.NewGlorotU(1), seed)
}

// NewMLPWithInit returns a new MLP whose weights are drawn by init from
// a source seeded with seed. Biases are zero.
func NewMLPWithInit(features int, hiddenSizes []int, outputs int,
	activations []*Activation, init *initwfn.InitWFn,
	seed uint64) (*MLP, error) {
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if features < 1 || outputs < 1 {
		return nil, fmt.Errorf("newMLP: features and outputs must be >= 1")
	}

	fn := init.Fn(rand.NewSource(seed))
	sizes := append(append([]int{features}, hiddenSizes...), outputs)

	weights := make([]*tensor.Dense, len(sizes)-1)
	biases := make([]*tensor.Dense, len(sizes)-1)
	for l := range weights {
		in, out := sizes[l], sizes[l+1]
		weights[l] = tensor.New(tensor.WithShape(in, out),
			tensor.WithBacking(fn(in, out)))
		biases[l] = tensor.New(tensor.WithShape(1, out),
			tensor.WithBacking(make([]float64, out)))
	}

	return &MLP{
		features:    features,
		hiddenSizes: append([]int{}, hiddenSizes...),
		outputs:     outputs,
		activations: activations,
		weights:     weights,
		biases:      biases,
		graphs:      make(map[int]*mlpGraph),
	}, nil
}

// Features returns the number of input features
func (m *MLP) Features() int { return m.features }

// OutputDim returns the number of outputs
func (m *MLP) OutputDim() int { return m.outputs }

// Forward computes the outputs of the network for each row of input
func (m *MLP) Forward(input *mat.Dense) (*mat.Dense, error) {
	batch, features := input.Dims()
	if features != m.features {
		return nil, fmt.Errorf("forward: invalid number of features"+
			"\n\twant(%v)\n\thave(%v)", m.features, features)
	}

	gr, ok := m.graphs[batch]
	if !ok {
		var err error
		gr, err = m.build(batch)
		if err != nil {
			return nil, err
		}
		m.graphs[batch] = gr
	}

	inputData := mat.DenseCopyOf(input).RawMatrix().Data
	inputTensor := tensor.New(
		tensor.WithShape(batch, features),
		tensor.WithBacking(inputData),
	)
	if err := G.Let(gr.input, inputTensor); err != nil {
		return nil, fmt.Errorf("forward: could not set input: %v", err)
	}

	defer gr.vm.Reset()
	if err := gr.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward: %v", err)
	}

	pred := gr.predVal.Data().([]float64)
	out := make([]float64, len(pred))
	copy(out, pred)
	return mat.NewDense(batch, m.outputs, out), nil
}

// build constructs the computational graph for a batch size
func (m *MLP) build(batch int) (*mlpGraph, error) {
	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, m.features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	x := input
	for l := range m.weights {
		w := G.NewMatrix(g, tensor.Float64, G.WithShape(m.weights[l].Shape()...),
			G.WithName(fmt.Sprintf("L%dW", l)), G.WithValue(m.weights[l]))
		b := G.NewMatrix(g, tensor.Float64, G.WithShape(m.biases[l].Shape()...),
			G.WithName(fmt.Sprintf("L%dB", l)), G.WithValue(m.biases[l]))

		x = G.Must(G.Mul(x, w))

		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, b, nil, []byte{0}))

		if l < len(m.activations) {
			var err error
			x, err = m.activations[l].fwd(x)
			if err != nil {
				return nil, fmt.Errorf("build: could not apply activation "+
					"%v: %v", m.activations[l], err)
			}
		}
	}

	gr := &mlpGraph{g: g, input: input}
	G.Read(x, &gr.predVal)
	gr.vm = G.NewTapeMachine(g)
	return gr, nil
}

// String implements the fmt.Stringer interface
func (m *MLP) String() string {
	return fmt.Sprintf("MLP(%v -> %v -> %v, %v)", m.features, m.hiddenSizes,
		m.outputs, m.activations)
}
