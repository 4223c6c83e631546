package drs4

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

type number interface {
	constraints.Integer | constraints.Float
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// median returns the middle value of values, averaging the two central
// entries for even lengths. values is not modified.
func median[T number](values []T) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	for i, v := range values {
		sorted[i] = float64(v)
	}
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean[T number](values []T) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// interpolateCrossing returns the fractional position between x0 and x1 at
// which a line through (x0, y0) and (x1, y1) reaches level.
func interpolateCrossing(x0, y0, x1, y1, level float64) float64 {
	if y1 == y0 {
		return x0
	}
	return x0 + (level-y0)*(x1-x0)/(y1-y0)
}
