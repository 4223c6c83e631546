package testUtils

import "math"

// FloatEqUpTo returns true if abs(a-b)<=maxDiff
func FloatEqUpTo(a, b, maxDiff float64) bool {
	return math.Abs(a-b) <= maxDiff
}

// FloatSliceEqUpTo returns true if FloatEqUpTo(a[i],b[i],maxDiff) holds for all elements
func FloatSliceEqUpTo(a, b []float64, maxDiff float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !FloatEqUpTo(a[i], b[i], maxDiff) {
			return false
		}
	}
	return true
}

// IntsWithin returns true if got and want have the same length and every got[i] is within tolerance of want[i]
func IntsWithin(got, want []int, tolerance int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		d := got[i] - want[i]
		if d < -tolerance || d > tolerance {
			return false
		}
	}
	return true
}
