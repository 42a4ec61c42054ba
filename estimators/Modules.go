package estimators

import (
	"fmt"

	"github.com/samuelfneumann/gogfn/gfnerr"
	"gonum.org/v1/gonum/mat"
)

// Uniform outputs zero logits, which a masked categorical turns into
// the uniform policy over legal actions
type Uniform struct {
	dim int
}

// NewUniform returns a new Uniform module with dim outputs
func NewUniform(dim int) Uniform {
	return Uniform{dim}
}

// Forward implements the Module interface
func (u Uniform) Forward(input *mat.Dense) (*mat.Dense, error) {
	r, _ := input.Dims()
	return mat.NewDense(r, u.dim, nil), nil
}

// OutputDim implements the Module interface
func (u Uniform) OutputDim() int { return u.dim }

// Tabular stores one row of logits per state index. It must be fed by an
// Enum preprocessor.
type Tabular struct {
	table *mat.Dense
}

// NewTabular returns a new Tabular module with all logits set to init
func NewTabular(nStates, dim int, init float64) *Tabular {
	table := mat.NewDense(nStates, dim, nil)
	for i := 0; i < nStates; i++ {
		for j := 0; j < dim; j++ {
			table.Set(i, j, init)
		}
	}
	return &Tabular{table}
}

// Table returns the table of logits. Modifying it changes the module.
func (t *Tabular) Table() *mat.Dense { return t.table }

// Forward implements the Module interface
func (t *Tabular) Forward(input *mat.Dense) (*mat.Dense, error) {
	r, c := input.Dims()
	if c != 1 {
		return nil, gfnerr.Shape("forward", 1, c)
	}

	nStates, dim := t.table.Dims()
	out := mat.NewDense(r, dim, nil)
	for i := 0; i < r; i++ {
		idx := int(input.At(i, 0))
		if idx < 0 || idx >= nStates {
			return nil, fmt.Errorf("forward: state index %v out of range "+
				"[0, %v)", idx, nStates)
		}
		out.SetRow(i, t.table.RawRowView(idx))
	}
	return out, nil
}

// OutputDim implements the Module interface
func (t *Tabular) OutputDim() int {
	_, c := t.table.Dims()
	return c
}
