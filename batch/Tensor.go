// Package batch implements a flat tensor of per-element vectors with
// batch-shape metadata. It is the storage used by batches of states and
// actions.
//
// A Tensor with batch shape (T, B) and element shape (d) stores T*B*d
// float64s in row-major order. Flat row r = t*B + i holds element (t, i).
package batch

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/gogfn/gfnerr"
	"gorgonia.org/tensor"
)

// Tensor is a batch of equally shaped elements
type Tensor struct {
	data       []float64
	batchShape []int
	elemShape  []int
}

// New returns a new Tensor with the given batch and element shapes. The
// data slice is used as backing storage and is not copied.
func New(data []float64, batchShape, elemShape []int) (Tensor, error) {
	for _, d := range append(append([]int{}, batchShape...), elemShape...) {
		if d < 0 {
			return Tensor{}, gfnerr.New("new", gfnerr.ErrShape,
				"negative dimension in %v, %v", batchShape, elemShape)
		}
	}
	if len(batchShape) == 0 {
		return Tensor{}, gfnerr.New("new", gfnerr.ErrShape,
			"batch shape must have at least one dimension")
	}

	want := prod(batchShape) * prod(elemShape)
	if len(data) != want {
		return Tensor{}, gfnerr.Shape("new", want, len(data))
	}

	return Tensor{
		data:       data,
		batchShape: append([]int{}, batchShape...),
		elemShape:  append([]int{}, elemShape...),
	}, nil
}

// FromDense constructs a Tensor from a *tensor.Dense whose trailing
// dimensions must equal elemShape. The leading dimensions become the
// batch shape. Data is copied.
func FromDense(t *tensor.Dense, elemShape []int) (Tensor, error) {
	shape := []int(t.Shape())
	if len(shape) <= len(elemShape) {
		return Tensor{}, gfnerr.Shape("fromDense",
			fmt.Sprintf("(*batch, %v)", elemShape), shape)
	}

	split := len(shape) - len(elemShape)
	for i, d := range elemShape {
		if shape[split+i] != d {
			return Tensor{}, gfnerr.Shape("fromDense",
				fmt.Sprintf("(*batch, %v)", elemShape), shape)
		}
	}

	if t.IsView() {
		t = t.Materialize().(*tensor.Dense)
	}
	raw, ok := t.Data().([]float64)
	if !ok {
		return Tensor{}, gfnerr.New("fromDense", gfnerr.ErrShape,
			"dtype must be float64, have %v", t.Dtype())
	}

	data := make([]float64, len(raw))
	copy(data, raw)
	return New(data, shape[:split], elemShape)
}

// Full returns a Tensor with every element equal to elem
func Full(elem []float64, elemShape []int, batchShape ...int) Tensor {
	size := prod(elemShape)
	if len(elem) != size {
		panic(fmt.Sprintf("full: element length \n\twant(%v)\n\thave(%v)",
			size, len(elem)))
	}

	n := prod(batchShape)
	data := make([]float64, n*size)
	for r := 0; r < n; r++ {
		copy(data[r*size:(r+1)*size], elem)
	}

	t, err := New(data, batchShape, elemShape)
	if err != nil {
		panic(err)
	}
	return t
}

// BatchShape returns the batch shape
func (t Tensor) BatchShape() []int {
	return append([]int{}, t.batchShape...)
}

// ElemShape returns the per-element shape
func (t Tensor) ElemShape() []int {
	return append([]int{}, t.elemShape...)
}

// Rank returns the number of batch dimensions
func (t Tensor) Rank() int {
	return len(t.batchShape)
}

// Len returns the number of elements in the batch
func (t Tensor) Len() int {
	return prod(t.batchShape)
}

// ElemSize returns the number of float64s in a single element
func (t Tensor) ElemSize() int {
	return prod(t.elemShape)
}

// Data returns the backing data. The returned slice must not be
// modified.
func (t Tensor) Data() []float64 {
	return t.data
}

// Row returns a view of the element at flat index r
func (t Tensor) Row(r int) []float64 {
	size := t.ElemSize()
	return t.data[r*size : (r+1)*size]
}

// At returns a view of element (ti, i) of a rank-2 Tensor
func (t Tensor) At(ti, i int) []float64 {
	if t.Rank() != 2 {
		panic(fmt.Sprintf("at: batch rank must be 2, have %v", t.Rank()))
	}
	return t.Row(ti*t.batchShape[1] + i)
}

// SetRow copies v into the element at flat index r
func (t Tensor) SetRow(r int, v []float64) {
	copy(t.Row(r), v)
}

// Equal compares every element with elem across all element dimensions
// and returns one boolean per element of the batch
func (t Tensor) Equal(elem []float64) []bool {
	out := make([]bool, t.Len())
	for r := range out {
		out[r] = equalRow(t.Row(r), elem)
	}
	return out
}

// Gather returns a rank-1 Tensor of the elements at the given flat
// indices
func (t Tensor) Gather(rows []int) Tensor {
	size := t.ElemSize()
	data := make([]float64, len(rows)*size)
	for k, r := range rows {
		copy(data[k*size:(k+1)*size], t.Row(r))
	}
	return Tensor{
		data:       data,
		batchShape: []int{len(rows)},
		elemShape:  t.ElemShape(),
	}
}

// Where returns a rank-1 Tensor of the elements whose flat index is
// true in keep
func (t Tensor) Where(keep []bool) Tensor {
	if len(keep) != t.Len() {
		panic(fmt.Sprintf("where: mask length \n\twant(%v)\n\thave(%v)",
			t.Len(), len(keep)))
	}
	rows := make([]int, 0, len(keep))
	for r, k := range keep {
		if k {
			rows = append(rows, r)
		}
	}
	return t.Gather(rows)
}

// Reshape returns a Tensor sharing data with t but with a new batch
// shape holding the same number of elements
func (t Tensor) Reshape(batchShape ...int) (Tensor, error) {
	if prod(batchShape) != t.Len() {
		return Tensor{}, gfnerr.Shape("reshape", t.batchShape, batchShape)
	}
	return New(t.data, batchShape, t.elemShape)
}

// Columns selects trajectories cols from a rank-2 Tensor
func (t Tensor) Columns(cols []int) (Tensor, error) {
	if t.Rank() != 2 {
		return Tensor{}, gfnerr.New("columns", gfnerr.ErrUnsupported,
			"batch rank must be 2, have %v", t.Rank())
	}

	rows, b := t.batchShape[0], t.batchShape[1]
	flat := make([]int, 0, rows*len(cols))
	for ti := 0; ti < rows; ti++ {
		for _, c := range cols {
			if c < 0 || c >= b {
				return Tensor{}, gfnerr.New("columns", gfnerr.ErrShape,
					"column %v out of range [0, %v)", c, b)
			}
			flat = append(flat, ti*b+c)
		}
	}

	out := t.Gather(flat)
	out.batchShape = []int{rows, len(cols)}
	return out, nil
}

// TimeSlice returns time steps [from, to) of a rank-2 Tensor
func (t Tensor) TimeSlice(from, to int) (Tensor, error) {
	if t.Rank() != 2 {
		return Tensor{}, gfnerr.New("timeSlice", gfnerr.ErrUnsupported,
			"batch rank must be 2, have %v", t.Rank())
	}
	if from < 0 || to > t.batchShape[0] || from > to {
		return Tensor{}, gfnerr.New("timeSlice", gfnerr.ErrShape,
			"range [%v, %v) out of bounds [0, %v)", from, to, t.batchShape[0])
	}

	stride := t.batchShape[1] * t.ElemSize()
	data := make([]float64, (to-from)*stride)
	copy(data, t.data[from*stride:to*stride])
	return New(data, []int{to - from, t.batchShape[1]}, t.elemShape)
}

// PadTime pads a rank-2 Tensor along the time axis with fill until it
// has length time steps
func (t Tensor) PadTime(length int, fill []float64) (Tensor, error) {
	if t.Rank() != 2 {
		return Tensor{}, gfnerr.New("padTime", gfnerr.ErrUnsupported,
			"batch rank must be 2, have %v", t.Rank())
	}
	if length < t.batchShape[0] {
		return Tensor{}, gfnerr.New("padTime", gfnerr.ErrShape,
			"cannot pad %v time steps to %v", t.batchShape[0], length)
	}

	b := t.batchShape[1]
	pad := Full(fill, t.elemShape, length-t.batchShape[0], b)
	data := make([]float64, 0, length*b*t.ElemSize())
	data = append(data, t.data...)
	data = append(data, pad.data...)
	return New(data, []int{length, b}, t.elemShape)
}

// Clone returns a deep copy of t
func (t Tensor) Clone() Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return Tensor{
		data:       data,
		batchShape: t.BatchShape(),
		elemShape:  t.ElemShape(),
	}
}

// Dense returns t as a *tensor.Dense of shape (*batchShape, *elemShape).
// Data is copied.
func (t Tensor) Dense() *tensor.Dense {
	shape := append(t.BatchShape(), t.elemShape...)
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// String implements the fmt.Stringer interface
func (t Tensor) String() string {
	return fmt.Sprintf("Tensor{batch: %v, elem: %v, data: %v}",
		t.batchShape, t.elemShape, t.data)
}

// Concat concatenates a and b along the batch dimension. Rank-1 Tensors
// are appended. Rank-2 Tensors are first padded along the time axis with
// fill to the longer of the two and then concatenated along the
// trajectory axis. Other ranks are unsupported.
func Concat(a, b Tensor, fill []float64) (Tensor, error) {
	if a.Rank() != b.Rank() {
		return Tensor{}, gfnerr.New("concat", gfnerr.ErrUnsupported,
			"batch ranks differ \n\twant(%v)\n\thave(%v)", a.Rank(), b.Rank())
	}
	if !equalInts(a.elemShape, b.elemShape) {
		return Tensor{}, gfnerr.Shape("concat", a.elemShape, b.elemShape)
	}

	switch a.Rank() {
	case 1:
		data := make([]float64, 0, len(a.data)+len(b.data))
		data = append(data, a.data...)
		data = append(data, b.data...)
		return New(data, []int{a.Len() + b.Len()}, a.elemShape)

	case 2:
		length := a.batchShape[0]
		if b.batchShape[0] > length {
			length = b.batchShape[0]
		}
		pa, err := a.PadTime(length, fill)
		if err != nil {
			return Tensor{}, err
		}
		pb, err := b.PadTime(length, fill)
		if err != nil {
			return Tensor{}, err
		}

		ba, bb := a.batchShape[1], b.batchShape[1]
		size := a.ElemSize()
		data := make([]float64, 0, length*(ba+bb)*size)
		for ti := 0; ti < length; ti++ {
			data = append(data, pa.data[ti*ba*size:(ti+1)*ba*size]...)
			data = append(data, pb.data[ti*bb*size:(ti+1)*bb*size]...)
		}
		return New(data, []int{length, ba + bb}, a.elemShape)
	}

	return Tensor{}, gfnerr.New("concat", gfnerr.ErrUnsupported,
		"cannot concatenate batches of rank %v", a.Rank())
}

// Stack stacks Tensors of equal batch shape into a single Tensor with
// an added leading dimension
func Stack(ts ...Tensor) (Tensor, error) {
	if len(ts) == 0 {
		return Tensor{}, gfnerr.New("stack", gfnerr.ErrShape,
			"cannot stack zero tensors")
	}

	first := ts[0]
	data := make([]float64, 0, len(ts)*len(first.data))
	for _, t := range ts {
		if !equalInts(t.batchShape, first.batchShape) {
			return Tensor{}, gfnerr.Shape("stack", first.batchShape,
				t.batchShape)
		}
		if !equalInts(t.elemShape, first.elemShape) {
			return Tensor{}, gfnerr.Shape("stack", first.elemShape,
				t.elemShape)
		}
		data = append(data, t.data...)
	}

	return New(data, append([]int{len(ts)}, first.batchShape...),
		first.elemShape)
}

// BitEqual returns whether a and b have equal shapes and bit-identical
// data. NaNs with equal bit patterns compare equal.
func BitEqual(a, b Tensor) bool {
	if !equalInts(a.batchShape, b.batchShape) ||
		!equalInts(a.elemShape, b.elemShape) {
		return false
	}
	for i := range a.data {
		if math.Float64bits(a.data[i]) != math.Float64bits(b.data[i]) {
			return false
		}
	}
	return true
}

func equalRow(row, elem []float64) bool {
	if len(row) != len(elem) {
		return false
	}
	for i := range row {
		if row[i] != elem[i] {
			return false
		}
	}
	return true
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func prod(shape []int) int {
	p := 1
	for _, d := range shape {
		p *= d
	}
	return p
}
