// Package window buffers per-sample readings for one equipment unit and decides
// when enough data has accumulated to evaluate a diagnostic window.
package window

import (
	"time"

	"aircx/internal/types"
)

// Row is one accepted sample: its timestamp and the finite readings of every
// channel that reported.
type Row struct {
	Timestamp time.Time
	Readings  map[types.Channel][]float64
}

// Average returns the mean of the channel's readings in this row.
func (r Row) Average(c types.Channel) (float64, bool) {
	vs := r.Readings[c]
	if len(vs) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs)), true
}

// Window is an append-only, time-ordered buffer of rows. It is owned by a
// single diagnostic application and is not safe for concurrent use.
type Window struct {
	rows []Row
}

// New returns an empty window.
func New() *Window {
	return &Window{}
}

// Accept appends the sample set. Channels without usable readings are simply
// absent from the row.
func (w *Window) Accept(set types.SampleSet) {
	readings := make(map[types.Channel][]float64, len(set.Values))
	for c := range set.Values {
		if vs := set.Readings(c); len(vs) > 0 {
			readings[c] = vs
		}
	}
	w.rows = append(w.rows, Row{Timestamp: set.Timestamp, Readings: readings})
}

// Reset empties the window.
func (w *Window) Reset() {
	w.rows = nil
}

// Len returns the number of buffered rows.
func (w *Window) Len() int {
	return len(w.rows)
}

// Rows returns the buffered rows. Callers must not modify the slice.
func (w *Window) Rows() []Row {
	return w.rows
}

// Timestamps returns the buffered timestamps in arrival order.
func (w *Window) Timestamps() []time.Time {
	out := make([]time.Time, len(w.rows))
	for i, r := range w.rows {
		out[i] = r.Timestamp
	}
	return out
}

// Averages returns the per-row averaged values of a channel, skipping rows in
// which the channel did not report.
func (w *Window) Averages(c types.Channel) []float64 {
	out := make([]float64, 0, len(w.rows))
	for _, r := range w.rows {
		if v, ok := r.Average(c); ok {
			out = append(out, v)
		}
	}
	return out
}

// Paired returns equal-length per-row averages of two channels, keeping only
// rows where both reported.
func (w *Window) Paired(a, b types.Channel) ([]float64, []float64) {
	as := make([]float64, 0, len(w.rows))
	bs := make([]float64, 0, len(w.rows))
	for _, r := range w.rows {
		va, okA := r.Average(a)
		vb, okB := r.Average(b)
		if okA && okB {
			as = append(as, va)
			bs = append(bs, vb)
		}
	}
	return as, bs
}

// Readings returns every individual reading of a channel across the window,
// e.g. one value per zone damper per sample.
func (w *Window) Readings(c types.Channel) []float64 {
	var out []float64
	for _, r := range w.rows {
		out = append(out, r.Readings[c]...)
	}
	return out
}

// AnyPositive reports whether any reading of the channel is non-zero, used for
// boolean flags such as operator overrides.
func (w *Window) AnyPositive(c types.Channel) bool {
	for _, r := range w.rows {
		for _, v := range r.Readings[c] {
			if v > 0 {
				return true
			}
		}
	}
	return false
}
