package states

import (
	"testing"

	"github.com/samuelfneumann/gogfn/device"
	"github.com/samuelfneumann/gogfn/gfnerr"
)

// lineSpace is a 1D line of length 3 with actions {right, exit}
func lineSpace(t *testing.T) *Space {
	masker := MaskerFunc(func(s []float64, forward, backward []bool) {
		forward[0] = s[0] >= 0 && s[0] < 2
		forward[1] = s[0] >= 0
		backward[0] = s[0] > 0
	})

	sp, err := NewDiscreteSpace([]int{1}, []float64{0}, []float64{-1}, 2,
		masker, device.CPU)
	if err != nil {
		t.Fatal(err)
	}
	return sp
}

func TestNewValidatesShape(t *testing.T) {
	sp := lineSpace(t)
	if _, err := sp.New([]float64{0, 1, 2}, 2); !gfnerr.IsShape(err) {
		t.Errorf("want shape error, have %v", err)
	}
}

func TestMasksComputedFromContent(t *testing.T) {
	sp := lineSpace(t)
	s, err := sp.New([]float64{0, 2, -1}, 3)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		row      int
		forward  []bool
		backward []bool
	}{
		{0, []bool{true, true}, []bool{false}},
		{1, []bool{false, true}, []bool{true}},
		{2, []bool{false, false}, []bool{false}},
	}
	for _, test := range tests {
		for j, want := range test.forward {
			if have := s.ForwardMask(test.row)[j]; have != want {
				t.Errorf("row %v forward[%v]: want %v, have %v", test.row, j,
					want, have)
			}
		}
		for j, want := range test.backward {
			if have := s.BackwardMask(test.row)[j]; have != want {
				t.Errorf("row %v backward[%v]: want %v, have %v", test.row,
					j, want, have)
			}
		}
	}

	sel := s.Select([]int{1})
	if sel.ForwardMask(0)[0] {
		t.Error("selected state should carry its own masks")
	}
}

func TestSentinels(t *testing.T) {
	sp := lineSpace(t)
	s, err := sp.New([]float64{0, 1, -1}, 3)
	if err != nil {
		t.Fatal(err)
	}

	init, sink := s.IsInitial(), s.IsSink()
	if !init[0] || init[1] || init[2] {
		t.Errorf("unexpected initial flags %v", init)
	}
	if sink[0] || sink[1] || !sink[2] {
		t.Errorf("unexpected sink flags %v", sink)
	}
}

func TestExtendPadsWithSink(t *testing.T) {
	sp := lineSpace(t)
	a, err := sp.New([]float64{0, 1}, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	b := sp.Initial(3, 2)

	if err := a.Extend(b); err != nil {
		t.Fatal(err)
	}
	if shape := a.BatchShape(); shape[0] != 3 || shape[1] != 3 {
		t.Fatalf("want shape [3 3], have %v", shape)
	}
	if !a.IsSink()[2*3+0] {
		t.Error("padding should be the sink state")
	}

	c := sp.Initial(2, 2, 2)
	if err := c.Extend(sp.Initial(2, 2, 2)); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported error, have %v", err)
	}

	flat := sp.Initial(4)
	if err := flat.Extend(sp.Initial(2, 2)); !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported error for mismatched ranks, have %v", err)
	}
}

func TestStack(t *testing.T) {
	sp := lineSpace(t)
	s, err := Stack(sp.Initial(4), sp.Sink(4))
	if err != nil {
		t.Fatal(err)
	}
	if shape := s.BatchShape(); shape[0] != 2 || shape[1] != 4 {
		t.Fatalf("want shape [2 4], have %v", shape)
	}
	if !s.IsSink()[4] || s.IsSink()[3] {
		t.Errorf("unexpected sink flags %v", s.IsSink())
	}
}
