// Package intutils provides utilities for working with ints
package intutils

// Min calculates and returns the minimum integer in a list
func Min(ints ...int) int {
	min := ints[0]
	for _, val := range ints {
		if val < min {
			min = val
		}
	}
	return min
}

// Max calculates and returns the maximum int in a list
func Max(ints ...int) int {
	max := ints[0]
	for _, val := range ints {
		if val > max {
			max = val
		}
	}
	return max
}

// Arange returns the ints in [start, stop)
func Arange(start, stop int) []int {
	if stop <= start {
		return []int{}
	}
	out := make([]int, stop-start)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// Clip clips value to be within [min, max]
func Clip(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
