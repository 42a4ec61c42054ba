package intutils

import "testing"

func TestMinMax(t *testing.T) {
	tests := []struct {
		name     string
		in       []int
		min, max int
	}{
		{"single", []int{3}, 3, 3},
		{"ascending", []int{1, 2, 5}, 1, 5},
		{"mixed", []int{4, -2, 9, 0}, -2, 9},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Min(test.in...); got != test.min {
				t.Errorf("min: want %v, have %v", test.min, got)
			}
			if got := Max(test.in...); got != test.max {
				t.Errorf("max: want %v, have %v", test.max, got)
			}
		})
	}
}

func TestArange(t *testing.T) {
	if got := Arange(2, 2); len(got) != 0 {
		t.Errorf("want empty range, have %v", got)
	}
	got := Arange(1, 4)
	for i, v := range []int{1, 2, 3} {
		if got[i] != v {
			t.Errorf("index %v: want %v, have %v", i, v, got[i])
		}
	}
	if Clip(7, 0, 5) != 5 || Clip(-1, 0, 5) != 0 || Clip(3, 0, 5) != 3 {
		t.Error("clip out of bounds")
	}
}
