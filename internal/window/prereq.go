package window

// PrereqTracker counts consecutive prerequisite failures (unit off, required
// channel missing) per reason so a diagnostic can tell a transient blip from a
// persistent condition and report the latter once. Each diagnostic application
// owns its own tracker; trackers are never shared across equipment.
type PrereqTracker struct {
	threshold int
	counts    map[string]int
	reported  map[string]bool
}

// NewPrereqTracker returns a tracker that declares a failure persistent after
// threshold consecutive occurrences. A threshold below 1 is treated as 1.
func NewPrereqTracker(threshold int) *PrereqTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &PrereqTracker{
		threshold: threshold,
		counts:    make(map[string]int),
		reported:  make(map[string]bool),
	}
}

// Fail records one more consecutive failure for reason. persistent is true
// once the threshold is reached; first is true only on the call that should
// emit the persistent-failure message.
func (p *PrereqTracker) Fail(reason string) (persistent, first bool) {
	p.counts[reason]++
	if p.counts[reason] < p.threshold {
		return false, false
	}
	if p.reported[reason] {
		return true, false
	}
	p.reported[reason] = true
	return true, true
}

// Clear resets the counter for reason after a passing sample.
func (p *PrereqTracker) Clear(reason string) {
	delete(p.counts, reason)
	delete(p.reported, reason)
}

// Count returns the current consecutive failure count for reason.
func (p *PrereqTracker) Count(reason string) int {
	return p.counts[reason]
}

// Reset forgets every counter.
func (p *PrereqTracker) Reset() {
	clear(p.counts)
	clear(p.reported)
}
