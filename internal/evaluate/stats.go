package evaluate

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// mean returns the arithmetic mean, or ok=false for an empty or non-finite
// input so callers can report "inconclusive" instead of dividing by zero.
func mean(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	m := stat.Mean(xs, nil)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, false
	}
	return m, true
}

// meanAbsDiff returns mean(|a[i]-b[i]|) over equal-length inputs.
func meanAbsDiff(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	for i, d := range diff {
		diff[i] = math.Abs(d)
	}
	return mean(diff)
}

// percentAbove returns the share (0-100) of readings strictly above limit.
func percentAbove(xs []float64, limit float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	n := 0
	for _, x := range xs {
		if x > limit {
			n++
		}
	}
	return float64(n) / float64(len(xs)) * 100, true
}

// percentBelow returns the share (0-100) of readings strictly below limit.
func percentBelow(xs []float64, limit float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	n := 0
	for _, x := range xs {
		if x < limit {
			n++
		}
	}
	return float64(n) / float64(len(xs)) * 100, true
}
