package cycle

import (
	"sort"
	"time"
)

type extremum struct {
	index int
	peak  bool
}

// Align enforces strict peak/valley alternation. Of two same-type extrema with
// no opposite extremum between them, the less extreme is dropped; a peak
// followed by a valley less than minDuration later is deleted together with
// that valley. The walk repeats until nothing changes; a trailing unmatched
// extremum is then trimmed so both slices have equal length. ok is false when
// the walk does not converge, in which case no extrema are returned.
func Align(values []float64, times []time.Time, peaks, valleys []int, minDuration time.Duration) (alignedPeaks, alignedValleys []int, ok bool) {
	events := make([]extremum, 0, len(peaks)+len(valleys))
	for _, p := range peaks {
		events = append(events, extremum{index: p, peak: true})
	}
	for _, v := range valleys {
		events = append(events, extremum{index: v})
	}
	sort.Slice(events, func(a, b int) bool { return events[a].index < events[b].index })

	// Every pass removes at least one event, so len(events)+1 passes suffice.
	converged := false
	for pass := 0; pass <= len(peaks)+len(valleys); pass++ {
		next, changed := alignPass(values, times, events, minDuration)
		events = next
		if !changed {
			converged = true
			break
		}
	}
	if !converged {
		return nil, nil, false
	}

	if len(events)%2 == 1 {
		events = events[:len(events)-1]
	}
	for _, e := range events {
		if e.peak {
			alignedPeaks = append(alignedPeaks, e.index)
		} else {
			alignedValleys = append(alignedValleys, e.index)
		}
	}
	return alignedPeaks, alignedValleys, true
}

// alignPass applies the first applicable fix-up and reports whether one was
// applied.
func alignPass(values []float64, times []time.Time, events []extremum, minDuration time.Duration) ([]extremum, bool) {
	for i := 0; i+1 < len(events); i++ {
		a, b := events[i], events[i+1]
		if a.peak == b.peak {
			drop := i
			if a.peak == (values[b.index] < values[a.index]) {
				drop = i + 1
			}
			return append(events[:drop:drop], events[drop+1:]...), true
		}
		if a.peak && times[b.index].Sub(times[a.index]) < minDuration {
			return append(events[:i:i], events[i+2:]...), true
		}
	}
	return events, false
}
