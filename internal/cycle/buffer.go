// Package cycle segments a raw scalar series into peaks and valleys and derives
// on/off cycle statistics and implied setpoints from them.
package cycle

import "time"

// Point is one raw sample. HasSetpoint is false when the equipment publishes
// no setpoint channel for the series.
type Point struct {
	Timestamp   time.Time
	Value       float64
	Setpoint    float64
	HasSetpoint bool
}

// Buffer is a bounded ring of points in arrival order. When full, pushing
// evicts the oldest point.
type Buffer struct {
	data []Point
	head int
	size int
}

// NewBuffer returns a buffer holding at most capacity points.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]Point, capacity)}
}

// Push appends p, evicting the oldest point when the buffer is full.
func (b *Buffer) Push(p Point) {
	if b.size == len(b.data) {
		b.data[b.head] = p
		b.head = (b.head + 1) % len(b.data)
		return
	}
	b.data[(b.head+b.size)%len(b.data)] = p
	b.size++
}

// RetainSince drops every point older than cutoff.
func (b *Buffer) RetainSince(cutoff time.Time) {
	for b.size > 0 && b.data[b.head].Timestamp.Before(cutoff) {
		b.data[b.head] = Point{}
		b.head = (b.head + 1) % len(b.data)
		b.size--
	}
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Points returns a copy of the buffered points, oldest first.
func (b *Buffer) Points() []Point {
	out := make([]Point, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}

// Last returns the newest point.
func (b *Buffer) Last() (Point, bool) {
	if b.size == 0 {
		return Point{}, false
	}
	return b.data[(b.head+b.size-1)%len(b.data)], true
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	clear(b.data)
	b.head, b.size = 0, 0
}
