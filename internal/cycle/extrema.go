package cycle

import "sort"

// FindPeaks returns the indices of local maxima of xs in ascending order.
// A flat plateau yields its middle index; endpoints are never peaks. Among
// peaks closer than minDistance samples, only the higher survives.
func FindPeaks(xs []float64, minDistance int) []int {
	return compete(xs, localMaxima(xs), minDistance, func(a, b float64) bool { return a > b })
}

// FindValleys returns the indices of local minima of xs, with the same rules
// as FindPeaks applied to the lower values.
func FindValleys(xs []float64, minDistance int) []int {
	neg := make([]float64, len(xs))
	for i, v := range xs {
		neg[i] = -v
	}
	return compete(xs, localMaxima(neg), minDistance, func(a, b float64) bool { return a < b })
}

func localMaxima(xs []float64) []int {
	var out []int
	i := 1
	for i < len(xs)-1 {
		if xs[i] <= xs[i-1] {
			i++
			continue
		}
		j := i
		for j+1 < len(xs) && xs[j+1] == xs[i] {
			j++
		}
		if j+1 < len(xs) && xs[j+1] < xs[i] {
			out = append(out, (i+j)/2)
		}
		i = j + 1
	}
	return out
}

// compete keeps, in order of extremity, each candidate that is not within
// minDistance of an already kept one. more reports whether a is more extreme
// than b.
func compete(xs []float64, idx []int, minDistance int, more func(a, b float64) bool) []int {
	if minDistance <= 1 || len(idx) < 2 {
		return idx
	}
	order := make([]int, len(idx))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return more(xs[idx[order[a]]], xs[idx[order[b]]])
	})

	removed := make([]bool, len(idx))
	for _, k := range order {
		if removed[k] {
			continue
		}
		for j := k - 1; j >= 0 && idx[k]-idx[j] < minDistance; j-- {
			removed[j] = true
		}
		for j := k + 1; j < len(idx) && idx[j]-idx[k] < minDistance; j++ {
			removed[j] = true
		}
	}

	out := make([]int, 0, len(idx))
	for k, i := range idx {
		if !removed[k] {
			out = append(out, i)
		}
	}
	return out
}
